package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tanbe3170/my-voice-diary/internal/client"
	"github.com/Tanbe3170/my-voice-diary/internal/config"
)

func newRefreshThreadsTokenCommand() *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:          "refresh-threads-token",
		Short:        "Exchange the Threads access token for a fresh long-lived one",
		Long:         "Long-lived Threads tokens expire after about 60 days. Run this before expiry and put the new token into THREADS_ACCESS_TOKEN.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.ThreadsToken == "" {
				return errors.New("THREADS_ACCESS_TOKEN is not set")
			}
			th := client.NewThreads(cfg.ThreadsToken, cfg.ThreadsUserID)
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			newToken, expiresIn, err := th.RefreshToken(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			display := maskToken(newToken)
			if show {
				display = newToken
			}
			fmt.Fprintf(out, "new token:  %s\n", display)
			fmt.Fprintf(out, "expires in: %d seconds (about %d days)\n", expiresIn, expiresIn/86400)
			if !show {
				fmt.Fprintln(out, "rerun with --show-token to print the full token")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show-token", false, "print the new token unmasked")
	return cmd
}

// maskToken keeps just enough of the token to recognize it in logs.
func maskToken(tok string) string {
	if len(tok) <= 14 {
		return "***masked***"
	}
	return tok[:6] + "..." + tok[len(tok)-4:]
}

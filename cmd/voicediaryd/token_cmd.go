package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tanbe3170/my-voice-diary/internal/config"
	"github.com/Tanbe3170/my-voice-diary/internal/token"
)

const (
	minTokenTTL = time.Hour
	maxTokenTTL = 168 * time.Hour
)

func newTokenCommand() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:          "token",
		Short:        "Mint an admin bearer token for the API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl < minTokenTTL || ttl > maxTokenTTL {
				return fmt.Errorf("ttl must be between %s and %s", minTokenTTL, maxTokenTTL)
			}
			cfg := config.Load()
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			tok, err := token.Issue(cfg.JWTSecret, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (1h to 168h)")
	return cmd
}

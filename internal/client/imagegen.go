package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
)

const imageModel = "dall-e-3"

// ImageGen generates diary illustrations with the OpenAI Images API.
type ImageGen struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewImageGen(apiKey string) *ImageGen {
	return &ImageGen{
		APIKey:     apiKey,
		BaseURL:    "https://api.openai.com",
		HTTPClient: defaultHTTPClient,
	}
}

// Generate renders prompt as a 1024x1024 PNG and returns the decoded
// image bytes.
func (g *ImageGen) Generate(ctx context.Context, prompt string) ([]byte, error) {
	body := map[string]any{
		"model":           imageModel,
		"prompt":          prompt,
		"n":               1,
		"size":            "1024x1024",
		"quality":         "standard",
		"response_format": "b64_json",
	}
	headers := map[string]string{"Authorization": "Bearer " + g.APIKey}
	var resp struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := postJSON(ctx, g.HTTPClient, g.BaseURL+"/v1/images/generations", headers, body, &resp); err != nil {
		return nil, fmt.Errorf("imagegen: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("imagegen: empty response")
	}
	png, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("imagegen: decode image: %w", err)
	}
	return png, nil
}

// Package openai implements prompt moderation backed by the OpenAI
// moderations endpoint.
package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

// Client implements domain.Moderator over the OpenAI REST API.
type Client struct {
	hc      *http.Client
	baseURL string
	apiKey  string
}

// New constructs a moderation client. baseURL normally comes from config and
// lets tests point at a stub server.
func New(apiKey, baseURL string) *Client {
	return &Client{
		hc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Classify sends the prompt for classification and returns the per-category
// verdicts. Rate limits and 5xx responses are retried with exponential
// backoff; other 4xx responses fail immediately.
func (c *Client) Classify(ctx domain.Context, prompt string) (domain.Moderation, error) {
	if c.apiKey == "" {
		return domain.Moderation{}, fmt.Errorf("%w: OPENAI_KEY missing", domain.ErrInvalidArgument)
	}
	b, _ := json.Marshal(map[string]any{"input": prompt})
	var out struct {
		Results []struct {
			Flagged    bool            `json:"flagged"`
			Categories map[string]bool `json:"categories"`
		} `json:"results"`
	}
	op := func() error {
		// Recreate request each attempt to avoid reusing consumed bodies
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/moderations", bytes.NewReader(b))
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(r)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == 429 {
			slog.Warn("moderation rate limited", slog.Int("status", resp.StatusCode))
			return fmt.Errorf("rate limited: 429")
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			snippet := string(bodyBytes)
			if len(snippet) > 512 {
				snippet = snippet[:512]
			}
			slog.Warn("moderation 4xx", slog.Int("status", resp.StatusCode), slog.String("body", snippet))
			return backoff.Permanent(fmt.Errorf("moderation status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Error("moderation non-2xx", slog.Int("status", resp.StatusCode))
			return fmt.Errorf("moderation status %d", resp.StatusCode)
		}
		return json.Unmarshal(bodyBytes, &out)
	}
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return domain.Moderation{}, fmt.Errorf("moderation api: %w", err)
	}
	if len(out.Results) == 0 {
		return domain.Moderation{}, errors.New("empty moderation results")
	}
	return domain.Moderation{Categories: out.Results[0].Categories}, nil
}

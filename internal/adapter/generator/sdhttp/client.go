// Package sdhttp calls an HTTP image-generation backend.
//
// The backend owns the GPU and the LoRA weight cache; this client only moves
// prompts in and PNG bytes out. Inference runs to completion, so requests
// carry no client-side timeout.
package sdhttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

// Client implements domain.Generator over a local inference server.
type Client struct {
	hc      *http.Client
	baseURL string
}

// New constructs a Client for the backend at baseURL.
func New(baseURL string) *Client {
	return &Client{
		hc:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type generateRequest struct {
	Prompt         string      `json:"prompt"`
	NegativePrompt string      `json:"negative_prompt,omitempty"`
	Height         int         `json:"height"`
	Width          int         `json:"width"`
	Seed           int64       `json:"seed"`
	Plugins        []pluginRef `json:"plugins,omitempty"`
}

type pluginRef struct {
	ID     string `json:"id"`
	Weight int    `json:"weight"`
}

// TextToImage runs one inference with the given seed and returns the image
// bytes plus the measured wall time in milliseconds.
func (c *Client) TextToImage(ctx domain.Context, req domain.GenerationRequest, seed int64) (domain.Execution, error) {
	payload := generateRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Height:         req.Height,
		Width:          req.Width,
		Seed:           seed,
	}
	for _, p := range req.Plugins {
		payload.Plugins = append(payload.Plugins, pluginRef{ID: p.ID, Weight: p.Weight})
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("generate request: %w", err)
	}

	start := time.Now()
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(b))
	if err != nil {
		return domain.Execution{}, fmt.Errorf("generate request: %w", err)
	}
	r.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(r)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("generate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Execution{}, fmt.Errorf("generate: status %d: %s", resp.StatusCode, snippet)
	}
	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("generate read: %w", err)
	}
	if len(img) == 0 {
		return domain.Execution{}, fmt.Errorf("generate: empty image")
	}
	return domain.Execution{
		Image:   img,
		Seed:    seed,
		Runtime: time.Since(start).Milliseconds(),
	}, nil
}

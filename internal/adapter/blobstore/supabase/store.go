// Package supabase implements blob storage on Supabase Storage buckets.
//
// Objects are written through the storage REST API with the service key.
// Upload names are minted here so callers never collide.
package supabase

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

// Store implements domain.BlobStore over the Supabase storage API.
type Store struct {
	hc      *http.Client
	baseURL string
	apiKey  string
}

// New constructs a Store for the project at baseURL.
func New(baseURL, apiKey string) *Store {
	return &Store{
		hc: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Upload stores data under a fresh uuid name in the bucket and returns the
// name. The extension and content type come from sniffing the payload.
func (s *Store) Upload(ctx domain.Context, bucket string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty object", domain.ErrInvalidArgument)
	}
	filename := uuid.New().String() + mimetype.Detect(data).Extension()
	if err := s.put(ctx, bucket, filename, data, false); err != nil {
		return "", err
	}
	return filename, nil
}

// UploadAs stores data in the bucket under an exact filename, replacing any
// existing object. Seeding tools use this where names must be predictable.
func (s *Store) UploadAs(ctx domain.Context, bucket, filename string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty object", domain.ErrInvalidArgument)
	}
	return s.put(ctx, bucket, filename, data, true)
}

func (s *Store) put(ctx domain.Context, bucket, filename string, data []byte, upsert bool) error {
	u := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, bucket, filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", mimetype.Detect(data).String())
	if upsert {
		req.Header.Set("x-upsert", "true")
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("upload to %s: %w", bucket, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("blob upload failed",
			slog.String("bucket", bucket),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(snippet)))
		return fmt.Errorf("upload to %s: status %d", bucket, resp.StatusCode)
	}
	return nil
}

// Download fetches an object from the bucket.
func (s *Store) Download(ctx domain.Context, bucket, filename string) ([]byte, error) {
	u := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, bucket, filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, filename, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, filename, domain.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download %s/%s: status %d", bucket, filename, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, filename, err)
	}
	return body, nil
}

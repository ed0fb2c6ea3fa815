// Package stub provides a deterministic in-memory generator for tests and
// machines without a GPU backend.
package stub

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

// pngPixel is a valid 1x1 PNG. Output stays sniffable as image/png while the
// trailing marker makes each (prompt, seed) pair produce distinct bytes.
var pngPixel, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

// Generator fabricates image bytes without touching a GPU.
type Generator struct {
	// Delay simulates inference time per call.
	Delay time.Duration
}

// New constructs a Generator with a small default delay so runtimes are
// non-zero like the real backend's.
func New() *Generator { return &Generator{Delay: 25 * time.Millisecond} }

// TextToImage returns a deterministic PNG for the prompt and seed.
func (g *Generator) TextToImage(_ domain.Context, req domain.GenerationRequest, seed int64) (domain.Execution, error) {
	start := time.Now()
	if g.Delay > 0 {
		time.Sleep(g.Delay)
	}
	img := make([]byte, 0, len(pngPixel)+64)
	img = append(img, pngPixel...)
	img = fmt.Appendf(img, "%s|%dx%d|%d", req.Prompt, req.Width, req.Height, seed)
	return domain.Execution{
		Image:   img,
		Seed:    seed,
		Runtime: time.Since(start).Milliseconds(),
	}, nil
}

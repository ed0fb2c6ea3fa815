// Package pluginseed registers LoRA plugins from a YAML manifest.
//
// Each manifest entry names a plugin id and a local weight file; seeding
// uploads the weights to the plugins bucket as <id>.safetensors and upserts
// the plugins row, so reruns are safe.
package pluginseed

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

// bucket holds the weight files the consumer warms its cache from.
const bucket = "plugins"

// Registry records plugin rows.
type Registry interface {
	Upsert(ctx domain.Context, id string, data map[string]any) error
}

// Uploader stores weight files under exact names.
type Uploader interface {
	UploadAs(ctx domain.Context, bucket, filename string, data []byte) error
}

// idPattern keeps ids usable as filenames and URL path segments.
var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

type manifest struct {
	Plugins []entry `yaml:"plugins"`
}

type entry struct {
	ID   string         `yaml:"id"`
	File string         `yaml:"file"`
	Meta map[string]any `yaml:"meta"`
}

// SeedFile ingests one manifest and returns how many plugins were seeded
// before any error. Weight file paths resolve relative to the manifest.
func SeedFile(ctx domain.Context, reg Registry, up Uploader, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("manifest read: %w", err)
	}
	var doc manifest
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return 0, fmt.Errorf("manifest parse: %w", err)
	}
	if len(doc.Plugins) == 0 {
		return 0, fmt.Errorf("no plugins in %s", path)
	}

	base := filepath.Dir(path)
	seeded := 0
	for _, e := range doc.Plugins {
		if !idPattern.MatchString(e.ID) {
			return seeded, fmt.Errorf("%w: bad plugin id %q", domain.ErrInvalidArgument, e.ID)
		}
		if e.File == "" {
			return seeded, fmt.Errorf("%w: plugin %s names no weight file", domain.ErrInvalidArgument, e.ID)
		}
		file := e.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(base, file)
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return seeded, fmt.Errorf("weights %s: %w", e.ID, err)
		}
		if err := up.UploadAs(ctx, bucket, e.ID+".safetensors", data); err != nil {
			return seeded, fmt.Errorf("upload %s: %w", e.ID, err)
		}
		if err := reg.Upsert(ctx, e.ID, e.Meta); err != nil {
			return seeded, fmt.Errorf("register %s: %w", e.ID, err)
		}
		seeded++
	}
	return seeded, nil
}

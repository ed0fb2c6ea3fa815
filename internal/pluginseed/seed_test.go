package pluginseed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

type registryStub struct {
	rows map[string]map[string]any
	err  error
}

func (s *registryStub) Upsert(_ domain.Context, id string, data map[string]any) error {
	if s.err != nil {
		return s.err
	}
	if s.rows == nil {
		s.rows = map[string]map[string]any{}
	}
	s.rows[id] = data
	return nil
}

type uploaderStub struct {
	objects map[string][]byte
	err     error
}

func (s *uploaderStub) UploadAs(_ domain.Context, bucket, filename string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[bucket+"/"+filename] = data
	return nil
}

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "plugins.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func writeWeights(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestSeedFile_RegistersEveryPlugin(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeWeights(t, dir, "anime.bin", []byte("anime-weights"))
	writeWeights(t, dir, "noir.bin", []byte("noir-weights"))
	path := writeManifest(t, dir, `
plugins:
  - id: style-anime
    file: anime.bin
    meta:
      name: Anime Style
  - id: style-noir
    file: noir.bin
`)
	reg := &registryStub{}
	up := &uploaderStub{}

	n, err := SeedFile(context.Background(), reg, up, path)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("anime-weights"), up.objects["plugins/style-anime.safetensors"])
	assert.Equal(t, []byte("noir-weights"), up.objects["plugins/style-noir.safetensors"])
	require.Contains(t, reg.rows, "style-anime")
	assert.Equal(t, "Anime Style", reg.rows["style-anime"]["name"])
	assert.Nil(t, reg.rows["style-noir"])
}

func TestSeedFile_ResolvesWeightsRelativeToManifest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "weights"), 0o755))
	writeWeights(t, filepath.Join(dir, "weights"), "anime.bin", []byte("anime-weights"))
	path := writeManifest(t, dir, `
plugins:
  - id: style-anime
    file: weights/anime.bin
`)
	up := &uploaderStub{}

	n, err := SeedFile(context.Background(), &registryStub{}, up, path)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, up.objects, "plugins/style-anime.safetensors")
}

func TestSeedFile_RejectsUnsafeIDs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeManifest(t, dir, `
plugins:
  - id: ../escape
    file: anime.bin
`)

	_, err := SeedFile(context.Background(), &registryStub{}, &uploaderStub{}, path)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSeedFile_RequiresWeightFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeManifest(t, dir, `
plugins:
  - id: style-anime
`)

	_, err := SeedFile(context.Background(), &registryStub{}, &uploaderStub{}, path)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSeedFile_ReportsPartialProgress(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeWeights(t, dir, "anime.bin", []byte("anime-weights"))
	path := writeManifest(t, dir, `
plugins:
  - id: style-anime
    file: anime.bin
  - id: style-noir
    file: missing.bin
`)
	reg := &registryStub{}

	n, err := SeedFile(context.Background(), reg, &uploaderStub{}, path)

	require.Error(t, err)
	assert.Equal(t, 1, n, "plugins before the failure stay seeded")
	assert.Contains(t, reg.rows, "style-anime")
}

func TestSeedFile_UploadFailureStops(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeWeights(t, dir, "anime.bin", []byte("anime-weights"))
	path := writeManifest(t, dir, `
plugins:
  - id: style-anime
    file: anime.bin
`)
	up := &uploaderStub{err: errors.New("bucket unavailable")}
	reg := &registryStub{}

	n, err := SeedFile(context.Background(), reg, up, path)

	require.Error(t, err)
	assert.Zero(t, n)
	assert.Empty(t, reg.rows, "rows are only written after the weights land")
}

func TestSeedFile_EmptyManifestFails(t *testing.T) {
	t.Parallel()
	path := writeManifest(t, t.TempDir(), "plugins: []\n")

	_, err := SeedFile(context.Background(), &registryStub{}, &uploaderStub{}, path)

	require.Error(t, err)
	assert.ErrorContains(t, err, "no plugins")
}

func TestSeedFile_MalformedYAMLFails(t *testing.T) {
	t.Parallel()
	path := writeManifest(t, t.TempDir(), "plugins: [oops\n")

	_, err := SeedFile(context.Background(), &registryStub{}, &uploaderStub{}, path)

	require.Error(t, err)
	assert.ErrorContains(t, err, "manifest parse")
}

func TestSeedFile_MissingManifestFails(t *testing.T) {
	t.Parallel()
	_, err := SeedFile(context.Background(), &registryStub{}, &uploaderStub{}, filepath.Join(t.TempDir(), "absent.yaml"))

	require.Error(t, err)
	assert.ErrorContains(t, err, "manifest read")
}

func TestSeedFile_RegisterFailureSurfacesID(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeWeights(t, dir, "anime.bin", []byte("anime-weights"))
	path := writeManifest(t, dir, `
plugins:
  - id: style-anime
    file: anime.bin
`)
	reg := &registryStub{err: fmt.Errorf("op=plugin.upsert: relation plugins does not exist")}

	_, err := SeedFile(context.Background(), reg, &uploaderStub{}, path)

	require.Error(t, err)
	assert.ErrorContains(t, err, "register style-anime")
}

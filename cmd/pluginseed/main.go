// Package main registers LoRA plugins from a YAML manifest: weight files go
// to the plugins bucket, rows to the plugins table.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/fairyhunter13/imagegen-dispatch/internal/adapter/blobstore/supabase"
	"github.com/fairyhunter13/imagegen-dispatch/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/imagegen-dispatch/internal/config"
	"github.com/fairyhunter13/imagegen-dispatch/internal/pluginseed"
)

func main() {
	manifest := flag.String("manifest", "./plugins.yaml", "plugin manifest to ingest")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		log.Fatal("SUPABASE_URL and SUPABASE_KEY are required to seed plugins")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN())
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	blobs := supabase.New(cfg.SupabaseURL, cfg.SupabaseKey)
	n, err := pluginseed.SeedFile(ctx, postgres.NewPluginRepo(pool), blobs, *manifest)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("%d plugins registered", n)
}

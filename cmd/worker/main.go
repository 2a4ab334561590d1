package main

import (
	"context"
	"log"
	"time"

	"kb/internal/activities"
	"kb/internal/config"
	"kb/internal/storage"
	"kb/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := db.ApplySchema(ctx, cfg.EmbedDim, cfg.IVFLists); err != nil {
		log.Fatal(err)
	}

	a, err := activities.New(cfg, db)
	if err != nil {
		log.Fatal(err)
	}
	activities.Register(w, a)

	log.Printf("kb worker connected to %s queue=%s llm_providers=%q embed_providers=%q", cfg.TemporalAddress, cfg.TemporalTaskQueue, cfg.LLMProviders, cfg.EmbedProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}

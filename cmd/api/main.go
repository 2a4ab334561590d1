package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"kb/internal/api"
	"kb/internal/config"
	"kb/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		cancel()
		log.Fatal(err)
	}
	if err := db.ApplySchema(ctx, cfg.EmbedDim, cfg.IVFLists); err != nil {
		cancel()
		log.Fatal(err)
	}
	cancel()
	db.Close()

	srv, err := api.NewServer(cfg)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("kb api listening on %s llm_providers=%q embed_providers=%q dim=%d", cfg.APIAddr, cfg.LLMProviders, cfg.EmbedProviders, cfg.EmbedDim)
	if err := http.ListenAndServe(cfg.APIAddr, srv.Routes()); err != nil {
		log.Fatal(err)
	}
}

package config

import (
	"errors"
	"testing"

	"kb/internal/util"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 100 {
		t.Fatalf("unexpected chunk defaults: %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.EmbedDim != 768 {
		t.Fatalf("unexpected dim default: %d", cfg.EmbedDim)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateRejectsBadOverlap(t *testing.T) {
	cfg := Load()
	cfg.ChunkOverlap = cfg.ChunkSize
	err := cfg.Validate()
	if !errors.Is(err, util.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestValidateRejectsZeroDim(t *testing.T) {
	cfg := Load()
	cfg.EmbedDim = 0
	if !errors.Is(cfg.Validate(), util.ErrConfig) {
		t.Fatal("expected ErrConfig for zero dimension")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("KB_TOP_K", "12")
	t.Setenv("KB_MIN_SCORE", "0.45")
	cfg := Load()
	if cfg.TopK != 12 {
		t.Fatalf("env override ignored: %d", cfg.TopK)
	}
	if cfg.MinScore != 0.45 {
		t.Fatalf("float override ignored: %v", cfg.MinScore)
	}
}

func TestEnvOverrideMalformedFallsBack(t *testing.T) {
	t.Setenv("KB_TOP_K", "many")
	if cfg := Load(); cfg.TopK != 6 {
		t.Fatalf("malformed int must fall back: %d", cfg.TopK)
	}
}

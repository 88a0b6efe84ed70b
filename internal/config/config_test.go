package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "GEMINI_MODEL", "MODEL_TIMEOUT", "ASSISTANT_HISTORY_LIMIT", "CACHE_FRESH_WINDOW", "CACHE_INVALIDATION_PUBSUB"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "3001" {
		t.Errorf("Expected default port 3001, got %s", cfg.Port)
	}
	if cfg.GeminiModel != "gemini-2.0-flash" {
		t.Errorf("Expected default model, got %s", cfg.GeminiModel)
	}
	if cfg.ModelTimeout != 30*time.Second {
		t.Errorf("Expected 30s model timeout, got %v", cfg.ModelTimeout)
	}
	if cfg.HistoryLimit != 10 {
		t.Errorf("Expected history limit 10, got %d", cfg.HistoryLimit)
	}
	if cfg.CacheFreshWindow != 5*time.Minute {
		t.Errorf("Expected 5m fresh window, got %v", cfg.CacheFreshWindow)
	}
	if !cfg.CacheInvalidationPubSub {
		t.Error("Expected cache invalidation pub/sub to default on")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("MODEL_TIMEOUT", "5s")
	t.Setenv("ASSISTANT_HISTORY_LIMIT", "20")
	t.Setenv("MODEL_RATE_PER_SEC", "2.5")
	t.Setenv("SUPERADMIN_USER_IDS", " admin-1 , admin-2")
	t.Setenv("CACHE_INVALIDATION_PUBSUB", "false")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Port)
	}
	if cfg.ModelTimeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %v", cfg.ModelTimeout)
	}
	if cfg.HistoryLimit != 20 {
		t.Errorf("Expected history limit 20, got %d", cfg.HistoryLimit)
	}
	if cfg.ModelRatePerSec != 2.5 {
		t.Errorf("Expected rate 2.5, got %v", cfg.ModelRatePerSec)
	}
	if len(cfg.SuperadminUserIDs) != 2 || cfg.SuperadminUserIDs[0] != "admin-1" || cfg.SuperadminUserIDs[1] != "admin-2" {
		t.Errorf("Unexpected superadmin IDs: %v", cfg.SuperadminUserIDs)
	}
	if cfg.CacheInvalidationPubSub {
		t.Error("Expected cache invalidation pub/sub to be disabled")
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MODEL_TIMEOUT", "soon")
	t.Setenv("ASSISTANT_LIST_CAP", "-3")

	cfg := Load()

	if cfg.ModelTimeout != 30*time.Second {
		t.Errorf("Expected fallback timeout, got %v", cfg.ModelTimeout)
	}
	if cfg.ListCap != 10 {
		t.Errorf("Expected fallback list cap, got %d", cfg.ListCap)
	}
}

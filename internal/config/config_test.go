package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("pharmadesk-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Store.MaxOpenConns != 20 {
		t.Fatalf("Store.MaxOpenConns = %d", cfg.Store.MaxOpenConns)
	}
	if cfg.Segment.ExecTimeout != 10*time.Second {
		t.Fatalf("Segment.ExecTimeout = %v", cfg.Segment.ExecTimeout)
	}
	if cfg.Segment.DefaultLimit != 100 || cfg.Segment.MaxLimit != 500 {
		t.Fatalf("Segment limits = %d/%d", cfg.Segment.DefaultLimit, cfg.Segment.MaxLimit)
	}
	if cfg.Archive.RetainDays != 90 {
		t.Fatalf("Archive.RetainDays = %d", cfg.Archive.RetainDays)
	}
	if cfg.ObjectStore.Endpoint != "localhost:9000" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.AI.TranslateEnabled {
		t.Fatal("AI.TranslateEnabled should default to false")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"PHARMADESK_PROFILE": "prod"})
	cfg, err := Load("pharmadesk-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"PHARMADESK_PROFILE":               "test",
		"PHARMADESK_HTTP_ADDR":             ":9999",
		"PHARMADESK_HTTP_READ_TIMEOUT":     "2s",
		"PHARMADESK_LOG_LEVEL":             "error",
		"PHARMADESK_STORE_DSN":             "postgres://example",
		"PHARMADESK_STORE_MAX_OPEN_CONNS":  "42",
		"PHARMADESK_SEGMENT_EXEC_TIMEOUT":  "4s",
		"PHARMADESK_SEGMENT_MAX_LIMIT":     "250",
		"PHARMADESK_ARCHIVE_RETAIN_DAYS":   "30",
		"PHARMADESK_ARCHIVE_BATCH_SIZE":    "100",
		"PHARMADESK_AI_TRANSLATE_ENABLED":  "true",
		"PHARMADESK_AI_BASE_URL":           "https://llm.internal",
		"PHARMADESK_AI_MODEL":              "segmenter-1",
		"PHARMADESK_OBJECTSTORE_ENDPOINT":  "s3.example.com",
		"PHARMADESK_OBJECTSTORE_BUCKET":    "pharmadesk-prod",
	})
	cfg, err := Load("pharmadesk-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %v", cfg.HTTP.ReadTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Store.DSN != "postgres://example" {
		t.Fatalf("Store.DSN = %q", cfg.Store.DSN)
	}
	if cfg.Store.MaxOpenConns != 42 {
		t.Fatalf("Store.MaxOpenConns = %d", cfg.Store.MaxOpenConns)
	}
	if cfg.Segment.ExecTimeout != 4*time.Second {
		t.Fatalf("Segment.ExecTimeout = %v", cfg.Segment.ExecTimeout)
	}
	if cfg.Segment.MaxLimit != 250 {
		t.Fatalf("Segment.MaxLimit = %d", cfg.Segment.MaxLimit)
	}
	if cfg.Archive.RetainDays != 30 || cfg.Archive.BatchSize != 100 {
		t.Fatalf("Archive = %+v", cfg.Archive)
	}
	if !cfg.AI.TranslateEnabled || cfg.AI.Model != "segmenter-1" {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.ObjectStore.Bucket != "pharmadesk-prod" {
		t.Fatalf("ObjectStore.Bucket = %q", cfg.ObjectStore.Bucket)
	}
}

func TestLoadRejectsInvalidProfile(t *testing.T) {
	_, err := Load("pharmadesk-api", mapLookup(map[string]string{"PHARMADESK_PROFILE": "staging"}))
	if err == nil {
		t.Fatal("expected error for invalid profile")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	_, err := Load("pharmadesk-api", mapLookup(map[string]string{"PHARMADESK_SEGMENT_EXEC_TIMEOUT": "soon"}))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadRejectsMaxLimitBelowDefault(t *testing.T) {
	_, err := Load("pharmadesk-api", mapLookup(map[string]string{"PHARMADESK_SEGMENT_MAX_LIMIT": "10"}))
	if err == nil {
		t.Fatal("expected error when max limit is below default limit")
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

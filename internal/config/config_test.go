package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/flowrunner/internal/receipt"
)

// chdirTemp runs the test from an empty directory so no stray .env or
// flowrunner.yaml is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CSVPath != "../data/keuangan.csv" {
		t.Errorf("CSVPath = %q", cfg.CSVPath)
	}
	if cfg.TelegramAPIBase != "https://api.telegram.org" {
		t.Errorf("TelegramAPIBase = %q", cfg.TelegramAPIBase)
	}
	if cfg.WorkerCount != 5 || cfg.QueueSize != 100 {
		t.Errorf("WorkerCount/QueueSize = %d/%d", cfg.WorkerCount, cfg.QueueSize)
	}
	if cfg.FetchTimeout != 30*time.Second || cfg.ExtractTimeout != time.Minute {
		t.Errorf("timeouts = %s/%s", cfg.FetchTimeout, cfg.ExtractTimeout)
	}
	if cfg.Extractor != ExtractorPlaceholder {
		t.Errorf("Extractor = %q", cfg.Extractor)
	}
	if cfg.BigQueryTable != "receipt_line_items" {
		t.Errorf("BigQueryTable = %q", cfg.BigQueryTable)
	}
	if cfg.HasTelegramToken() {
		t.Error("token should be empty by default")
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("splitList = %q", got)
	}
	if splitList("") != nil {
		t.Error("empty setting should give nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("FLOWRUNNER_TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("FLOWRUNNER_CSV_PATH", "/tmp/ledger.csv")
	t.Setenv("FLOWRUNNER_WORKER_COUNT", "2")
	t.Setenv("FLOWRUNNER_FETCH_TIMEOUT", "5s")
	t.Setenv("FLOWRUNNER_TELEGRAM_API_BASE", "http://localhost:9999/")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.HasTelegramToken() {
		t.Error("expected token from environment")
	}
	if cfg.CSVPath != "/tmp/ledger.csv" {
		t.Errorf("CSVPath = %q", cfg.CSVPath)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("WorkerCount = %d", cfg.WorkerCount)
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Errorf("FetchTimeout = %s", cfg.FetchTimeout)
	}
	if cfg.TelegramAPIBase != "http://localhost:9999" {
		t.Errorf("TelegramAPIBase = %q, want trailing slash trimmed", cfg.TelegramAPIBase)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := chdirTemp(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FLOWRUNNER_QUEUE_SIZE=7\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("FLOWRUNNER_QUEUE_SIZE") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.QueueSize != 7 {
		t.Errorf("QueueSize = %d, want value from .env", cfg.QueueSize)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := chdirTemp(t)
	yaml := "port: \"9090\"\nextractor: PLACEHOLDER\nbigquery_dataset: receipts\n"
	if err := os.WriteFile(filepath.Join(dir, "flowrunner.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.Extractor != ExtractorPlaceholder {
		t.Errorf("Extractor = %q, want lower-cased", cfg.Extractor)
	}
	if cfg.BigQueryDataset != "receipts" {
		t.Errorf("BigQueryDataset = %q", cfg.BigQueryDataset)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			CSVPath:        "ledger.csv",
			WorkerCount:    1,
			QueueSize:      1,
			FetchTimeout:   time.Second,
			ExtractTimeout: time.Second,
			DedupeTTL:      time.Minute,
			Extractor:      ExtractorPlaceholder,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero workers", func(c *Config) { c.WorkerCount = 0 }, "worker_count"},
		{"negative fetch timeout", func(c *Config) { c.FetchTimeout = -time.Second }, "fetch_timeout"},
		{"zero extract timeout", func(c *Config) { c.ExtractTimeout = 0 }, "extract_timeout"},
		{"unknown extractor", func(c *Config) { c.Extractor = "tesseract" }, "unknown extractor"},
		{"gemini without key", func(c *Config) { c.Extractor = ExtractorGemini }, "gemini_api_key"},
		{"gemini with key", func(c *Config) { c.Extractor = ExtractorGemini; c.GeminiAPIKey = "k" }, ""},
		{"empty csv path", func(c *Config) { c.CSVPath = " " }, "csv_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, receipt.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

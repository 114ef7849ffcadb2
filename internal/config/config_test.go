package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
database:
  host: localhost
  name: marketcache
  user: testuser
  password: testpass
providers:
  yahoo:
    enabled: true
  stooq:
    enabled: true
universe:
  symbols: [AAPL, MSFT, GOOG]
`

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempFile(t, minimalYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
	if !cfg.Providers.Yahoo.Enabled {
		t.Error("Providers.Yahoo.Enabled = false, want true")
	}
	if len(cfg.Universe.Symbols) != 3 {
		t.Errorf("len(Universe.Symbols) = %d, want 3", len(cfg.Universe.Symbols))
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
database:
  host: localhost
  name: marketcache
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, minimalYAML)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Fetch.ProviderTimeout != DefaultProviderTimeout {
		t.Errorf("Fetch.ProviderTimeout = %v, want %v", cfg.Fetch.ProviderTimeout, DefaultProviderTimeout)
	}
	if cfg.Fetch.RetryBudget != DefaultRetryBudget {
		t.Errorf("Fetch.RetryBudget = %d, want %d", cfg.Fetch.RetryBudget, DefaultRetryBudget)
	}
	if cfg.Refresh.StaleAfter != 20*time.Hour {
		t.Errorf("Refresh.StaleAfter = %v, want 20h", cfg.Refresh.StaleAfter)
	}
	if cfg.Refresh.BatchSize != DefaultRefreshBatch {
		t.Errorf("Refresh.BatchSize = %d, want %d", cfg.Refresh.BatchSize, DefaultRefreshBatch)
	}

	// Priority order derives from enabled providers: yahoo before stooq,
	// no alphavantage since it is disabled.
	wantOrder := []string{"yahoo", "stooq"}
	if len(cfg.Providers.HistoryOrder) != len(wantOrder) {
		t.Fatalf("HistoryOrder = %v, want %v", cfg.Providers.HistoryOrder, wantOrder)
	}
	for i, name := range wantOrder {
		if cfg.Providers.HistoryOrder[i] != name {
			t.Errorf("HistoryOrder[%d] = %q, want %q", i, cfg.Providers.HistoryOrder[i], name)
		}
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, minimalYAML)

	if _, err := LoadAndValidate(path); err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
}

func TestValidate_MissingDatabase(t *testing.T) {
	yaml := `
providers:
  yahoo:
    enabled: true
universe:
  symbols: [AAPL]
`
	path := writeTempFile(t, yaml)

	if _, err := LoadAndValidate(path); err == nil {
		t.Fatal("LoadAndValidate succeeded, want error for missing database config")
	}
}

func TestValidate_AlphaVantageNeedsKey(t *testing.T) {
	yaml := `
database:
  host: localhost
  name: marketcache
  user: u
  password: p
providers:
  alphavantage:
    enabled: true
universe:
  symbols: [AAPL]
`
	path := writeTempFile(t, yaml)

	if _, err := LoadAndValidate(path); err == nil {
		t.Fatal("LoadAndValidate succeeded, want error for missing alphavantage api_key")
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	yaml := `
database:
  host: localhost
  name: marketcache
  user: u
  password: p
providers:
  history_order: [bloomberg]
  quote_order: [bloomberg]
universe:
  symbols: [AAPL]
`
	path := writeTempFile(t, yaml)

	if _, err := LoadAndValidate(path); err == nil {
		t.Fatal("LoadAndValidate succeeded, want error for unknown provider name")
	}
}

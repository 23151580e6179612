package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Name != "test" {
		t.Fatalf("app.name = %q", cfg.App.Name)
	}
	if cfg.Merge.PairLabel != "BTC_USDT" || cfg.Merge.OutputDir != "data/csv_imports/merged" {
		t.Fatalf("unexpected merge defaults %+v", cfg.Merge)
	}
	if cfg.Ollama.Timeout != 300*time.Second || cfg.Ollama.RetryDelay != 2*time.Second {
		t.Fatalf("unexpected ollama durations %+v", cfg.Ollama)
	}
	if cfg.Analysis.PromptPeriods != 50 || cfg.Analysis.DefaultPeriods != 200 {
		t.Fatalf("unexpected analysis defaults %+v", cfg.Analysis)
	}
	if cfg.Database.DSN != "" {
		t.Fatalf("database should be disabled by default, got %q", cfg.Database.DSN)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"merge:",
		"  pair_label: ETH_USDT",
		"models:",
		"  visual:",
		"    name: llava:7b",
		"    temperature: 0.1",
		"exchange:",
		"  request_timeout: 3s",
		"",
	}, "\n"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Merge.PairLabel != "ETH_USDT" {
		t.Fatalf("pair_label = %q", cfg.Merge.PairLabel)
	}
	if cfg.Models.Visual.Name != "llava:7b" || cfg.Models.Visual.Temperature != 0.1 {
		t.Fatalf("visual model = %+v", cfg.Models.Visual)
	}
	if cfg.Models.Visual.TopK != 40 {
		t.Fatalf("unset keys should keep defaults, top_k = %d", cfg.Models.Visual.TopK)
	}
	if cfg.Exchange.RequestTimeout != 3*time.Second {
		t.Fatalf("request_timeout = %s", cfg.Exchange.RequestTimeout)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ANALYST_DATABASE_DSN", "sqlite://history.db")
	t.Setenv("ANALYST_ANALYSIS_DEFAULT_PERIODS", "120")

	cfg, err := Load(writeConfig(t, "app:\n  name: env\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.DSN != "sqlite://history.db" {
		t.Fatalf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.ResolvePeriods(0) != 120 {
		t.Fatalf("periods = %d", cfg.ResolvePeriods(0))
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"page limit":        "exchange:\n  page_limit: 0\n",
		"telegram no token": "alerting:\n  telegram:\n    enabled: true\n    chat_id: \"1\"\n",
		"telegram no chat":  "alerting:\n  telegram:\n    enabled: true\n    bot_token: abc\n",
		"no model":          "models:\n  quantitative:\n    name: \"\"\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: 期望校验失败", name)
		}
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("explicit missing config file should fail")
	}
}

func TestResolveOverrides(t *testing.T) {
	cfg := &Config{Analysis: AnalysisConfig{DefaultPeriods: 200, DefaultTimeframe: "4h"}}
	if got := cfg.ResolvePeriods(30); got != 30 {
		t.Fatalf("ResolvePeriods(30) = %d", got)
	}
	if got := cfg.ResolveTimeframe(""); got != "4h" {
		t.Fatalf("ResolveTimeframe(\"\") = %q", got)
	}
	if got := cfg.ResolveTimeframe("1d"); got != "1d" {
		t.Fatalf("ResolveTimeframe(1d) = %q", got)
	}
}

package rollback

import (
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("got %+v, want %+v", cfg, DefaultConfig())
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ROLLBACK_PLAYERS", "4")
	t.Setenv("ROLLBACK_INPUT_DELAY", "0")
	t.Setenv("ROLLBACK_HISTORY_WINDOW", "32")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NumPlayers != 4 || cfg.InputDelay != 0 || cfg.HistoryWindow != 32 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	t.Setenv("ROLLBACK_PLAYERS", "two")
	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]Config{
		"one player":      {NumPlayers: 1, InputDelay: 0, HistoryWindow: 8},
		"five players":    {NumPlayers: 5, InputDelay: 0, HistoryWindow: 8},
		"zero window":     {NumPlayers: 2, InputDelay: 0, HistoryWindow: 0},
		"huge window":     {NumPlayers: 2, InputDelay: 0, HistoryWindow: MaxHistoryWindow + 1},
		"negative delay":  {NumPlayers: 2, InputDelay: -1, HistoryWindow: 8},
		"delay >= window": {NumPlayers: 2, InputDelay: 8, HistoryWindow: 8},
	}
	for name, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	err := Config{NumPlayers: 9, InputDelay: -1, HistoryWindow: 4}.Validate()
	if err == nil || !strings.Contains(err.Error(), "players") || !strings.Contains(err.Error(), "input delay") {
		t.Fatalf("expected every problem reported, got %v", err)
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

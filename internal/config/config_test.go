package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Billy-Davies-2/dartsync/internal/logger"
	"github.com/Billy-Davies-2/dartsync/internal/models"
)

func init() {
	logger.Init()
}

func baseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MATCH_ID", "m1")
	t.Setenv("MATCH_PLAYERS", "alice, bob")
	t.Setenv("PLAYER_ID", "bob")
}

func TestFromEnvDefaults(t *testing.T) {
	baseEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if !cfg.Development() {
		t.Error("empty ENVIRONMENT should be development")
	}
	if cfg.DBDriver != "memory" || cfg.HTTPPort != "3000" || cfg.GRPCPort != "50051" {
		t.Errorf("defaults = %s %s %s", cfg.DBDriver, cfg.HTTPPort, cfg.GRPCPort)
	}
	if cfg.SettleDelay != 1500*time.Millisecond || cfg.DisconnectGrace != time.Minute {
		t.Errorf("timings = %v %v", cfg.SettleDelay, cfg.DisconnectGrace)
	}
	m := cfg.Match
	if m.Players[0].ID != "alice" || m.Players[1].ID != "bob" {
		t.Errorf("players = %+v", m.Players)
	}
	if len(m.Legs) != 1 || m.Legs[0] != models.Variant501 {
		t.Errorf("legs = %v", m.Legs)
	}
	if m.InMode != models.ModeOpen || m.BullMode != models.BullSplit {
		t.Errorf("modes = %s %s", m.InMode, m.BullMode)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	baseEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("MATCH_LEGS", "501,cricket,choice")
	t.Setenv("MATCH_PLAYER_NAMES", "Alice,Bob")
	t.Setenv("MATCH_OUT", "double")
	t.Setenv("BULL_MODE", "full")
	t.Setenv("DEV", "true")
	t.Setenv("SETTLE_DELAY_MS", "250")
	t.Setenv("DISCONNECT_GRACE_SECONDS", "30")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Development() {
		t.Error("production should not be development")
	}
	if !cfg.Dev || cfg.SettleDelay != 250*time.Millisecond || cfg.DisconnectGrace != 30*time.Second {
		t.Errorf("dev=%v settle=%v grace=%v", cfg.Dev, cfg.SettleDelay, cfg.DisconnectGrace)
	}
	want := []models.Variant{models.Variant501, models.VariantCricket, models.VariantChoice}
	if len(cfg.Match.Legs) != len(want) {
		t.Fatalf("legs = %v", cfg.Match.Legs)
	}
	for i := range want {
		if cfg.Match.Legs[i] != want[i] {
			t.Errorf("leg %d = %s, want %s", i, cfg.Match.Legs[i], want[i])
		}
	}
	if cfg.Match.Players[1].Name != "Bob" || cfg.Match.OutMode != models.ModeDouble || cfg.Match.BullMode != models.BullFull {
		t.Errorf("match = %+v", cfg.Match)
	}
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"one player", map[string]string{"MATCH_PLAYERS": "alice"}},
		{"stranger", map[string]string{"PLAYER_ID": "carol"}},
		{"no player id", map[string]string{"PLAYER_ID": ""}},
		{"no match id", map[string]string{"MATCH_ID": ""}},
		{"bad leg", map[string]string{"MATCH_LEGS": "501,darts"}},
		{"bad out mode", map[string]string{"MATCH_OUT": "triple"}},
		{"bad driver", map[string]string{"DB_DRIVER": "mongo"}},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}},
		{"bad settle", map[string]string{"SETTLE_DELAY_MS": "soon"}},
		{"negative grace", map[string]string{"DISCONNECT_GRACE_SECONDS": "-1"}},
		{"bad dev flag", map[string]string{"DEV": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.env")
	content := "MATCH_ID=file-match\nMATCH_PLAYERS=p1,p2\nPLAYER_ID=p1\nHTTP_PORT=8080\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides variables already set, so clear them first.
	for _, k := range []string{"MATCH_ID", "MATCH_PLAYERS", "PLAYER_ID", "HTTP_PORT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Match.ID != "file-match" || cfg.LocalID != "p1" || cfg.HTTPPort != "8080" {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("an explicitly named missing file should fail")
	}
}

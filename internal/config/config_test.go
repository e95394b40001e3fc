package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tapline/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("unexpected base path %q", cfg.Server.BasePath)
	}
	if cfg.TokenTTL() != 14*24*time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL())
	}
	if cfg.StoreTTL() != 90*24*time.Hour {
		t.Fatalf("unexpected store ttl %s", cfg.StoreTTL())
	}
	if cfg.Model.Attempts != 3 || cfg.Model.BackoffStep() != 2*time.Second {
		t.Fatalf("unexpected retry settings %+v", cfg.Model)
	}
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Roles.Variant != RoleVariantGeneric {
		t.Fatalf("expected generic roles, got %q", cfg.Roles.Variant)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	data := []byte("roles:\n  variant: hm_centric\n  schema_version: 2\nstore:\n  driver: memory\n")
	if err := os.WriteFile(filepath.Join(dir, "tapline.yml"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Roles.Variant != RoleVariantHMCentric || cfg.Roles.SchemaVersion != 2 {
		t.Fatalf("roles not applied: %+v", cfg.Roles)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("store driver not applied: %q", cfg.Store.Driver)
	}
	if cfg.Tokens.TTLDays != 14 {
		t.Fatalf("defaults should survive overlay, got ttl_days=%d", cfg.Tokens.TTLDays)
	}
	if !cfg.ValidRole("future_peer") || cfg.ValidRole("dri") {
		t.Fatalf("unexpected role set %v", cfg.RoleTypes())
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"base path":  "server:\n  base_path: v0\n",
		"driver":     "store:\n  driver: redis\n",
		"variant":    "roles:\n  variant: both\n",
		"provider":   "model:\n  provider: openai\n",
		"attempts":   "model:\n  attempts: 0\n",
		"token ttl":  "tokens:\n  ttl_days: 0\n",
		"empty hook": "webhooks:\n  - url: \"\"\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(raw)); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestRoleTypesReturnsCopy(t *testing.T) {
	cfg := Default()
	roles := cfg.RoleTypes()
	if len(roles) != 5 || roles[0] != domain.RoleHiringManager {
		t.Fatalf("unexpected generic roles %v", roles)
	}
	roles[0] = "mutated"
	if cfg.RoleTypes()[0] != domain.RoleHiringManager {
		t.Fatalf("role set must not be mutable through the returned slice")
	}
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv("TAPLINE_JWT_SECRET", "")
	t.Setenv("TAPLINE_APP_URL", "https://hire.example.com/")
	t.Setenv("SLACK_BOT_TOKEN", "skip")
	t.Setenv("NOTION_API_KEY", "secret_x")
	t.Setenv("NOTION_DATABASE_ID", "db1")

	s, err := LoadSecrets()
	if err != nil {
		t.Fatalf("load secrets: %v", err)
	}
	if !s.UsingDevSecret() || s.SigningSecret() != DevJWTSecret {
		t.Fatalf("expected dev secret fallback")
	}
	if s.SlackEnabled() {
		t.Fatalf("skip sentinel should disable slack")
	}
	if !s.NotionEnabled() {
		t.Fatalf("notion should be enabled")
	}
	link := s.FormLink("abc")
	if link != "https://hire.example.com/respond/abc" {
		t.Fatalf("unexpected form link %q", link)
	}
}

func TestSkipped(t *testing.T) {
	for _, v := range []string{"", " ", "skip", "SKIP"} {
		if !Skipped(v) {
			t.Fatalf("%q should be skipped", v)
		}
	}
	if Skipped("xoxb-1") {
		t.Fatalf("real token reported as skipped")
	}
	if !strings.Contains(GenerateDefault(), "schema_version") {
		t.Fatalf("default template missing roles section")
	}
}

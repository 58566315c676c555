package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
client:
  id: acme-co
  name: Acme Co
server:
  addr: ":9090"
  base_path: /api
auth:
  jwt_secret: topsecret
  allow_api_keys: true
webhooks:
  - url: https://hooks.example.com/duties
    clients: [acme-co]
    secret: hook-secret
    timeout_seconds: 3
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Client.ID != "acme-co" || cfg.Server.Addr != ":9090" {
		t.Fatalf("cfg %+v", cfg)
	}
	if cfg.Auth.JWTSecret != "topsecret" || !cfg.Auth.AllowAPIKeys {
		t.Fatalf("auth %+v", cfg.Auth)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].TimeoutSeconds != 3 {
		t.Fatalf("webhooks %+v", cfg.Webhooks)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing client id", "server:\n  addr: ':8080'\n", "client.id is required"},
		{"bad base path", "client:\n  id: acme-co\nserver:\n  base_path: api\n", "must start with /"},
		{"empty webhook url", "client:\n  id: acme-co\nwebhooks:\n  - url: ''\n", "empty url"},
		{"negative timeout", "client:\n  id: acme-co\nwebhooks:\n  - url: https://x\n    timeout_seconds: -1\n", "negative timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default("acme-co")
	if cfg.Client.ID != "acme-co" || cfg.Server.Addr != ":8080" || cfg.Server.BasePath != "/api" {
		t.Fatalf("default %+v", cfg)
	}
	if !cfg.Auth.Disabled || !cfg.Auth.AllowAPIKeys {
		t.Fatalf("default auth %+v", cfg.Auth)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing file: cfg=%v err=%v", cfg, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "dutyline.yml"), []byte(GenerateDefault("acme-co")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg == nil || cfg.Client.ID != "acme-co" {
		t.Fatalf("loaded %+v", cfg)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != 4002 {
		t.Errorf("Port = %d, want 4002", cfg.Web.Port)
	}
	if !cfg.General.AutoPR {
		t.Error("AutoPR should default to true")
	}
	if !cfg.General.DemoFallback {
		t.Error("DemoFallback should default to true")
	}
	if cfg.General.RequireApproval {
		t.Error("RequireApproval should default to false")
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q", cfg.Gemini.Model)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[general]
require_approval = true
auto_pr = false

[autoscan]
interval_min = 15
repos = ["https://github.com/acme/widgets"]

[web]
port = 9090
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.General.RequireApproval {
		t.Error("RequireApproval = false, want true")
	}
	if cfg.General.AutoPR {
		t.Error("AutoPR = true, want false")
	}
	if cfg.Autoscan.IntervalMin != 15 {
		t.Errorf("IntervalMin = %d, want 15", cfg.Autoscan.IntervalMin)
	}
	if len(cfg.Autoscan.Repos) != 1 {
		t.Errorf("Repos = %v", cfg.Autoscan.Repos)
	}
	if cfg.Web.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Web.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("REQUIRE_APPROVAL", "true")
	t.Setenv("AUTOSCAN_REPOS", "https://github.com/a/b, https://github.com/c/d")
	t.Setenv("PORT", "8088")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GitHub.Token != "ghp_test" {
		t.Errorf("Token = %q", cfg.GitHub.Token)
	}
	if !cfg.General.RequireApproval {
		t.Error("RequireApproval = false, want true")
	}
	if len(cfg.Autoscan.Repos) != 2 {
		t.Errorf("Repos = %v, want 2 entries", cfg.Autoscan.Repos)
	}
	if cfg.Web.Port != 8088 {
		t.Errorf("Port = %d, want 8088", cfg.Web.Port)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandPath("~/data/x.db"); got != filepath.Join(home, "data/x.db") {
		t.Errorf("ExpandPath = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath = %q", got)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration. It is constructed once at
// process start and passed by reference; components never read the
// environment themselves.
type Config struct {
	General  GeneralConfig  `toml:"general"`
	GitHub   GitHubConfig   `toml:"github"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Signing  SigningConfig  `toml:"signing"`
	Autoscan AutoscanConfig `toml:"autoscan"`
	Web      WebConfig      `toml:"web"`
	Notify   NotifyConfig   `toml:"notifications"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath    string `toml:"database_path"`
	AdminKey        string `toml:"admin_key"`
	AutoPR          bool   `toml:"auto_pr"`
	RequireApproval bool   `toml:"require_approval"`
	DemoFallback    bool   `toml:"demo_fallback"`
}

// GitHubConfig holds hosting API settings
type GitHubConfig struct {
	Token   string `toml:"token"`
	APIBase string `toml:"api_base"`
}

// GeminiConfig holds generative model settings
type GeminiConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	APIBase string `toml:"api_base"`
}

// SigningConfig holds patch certification settings
type SigningConfig struct {
	Key      string `toml:"key"`
	SignerID string `toml:"signer_id"`
}

// AutoscanConfig holds the timer-driven scan settings
type AutoscanConfig struct {
	IntervalMin int      `toml:"interval_min"`
	Cron        string   `toml:"cron"`
	Repos       []string `toml:"repos"`
}

// WebConfig holds HTTP server settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// NotifyConfig holds notification settings
type NotifyConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath:    filepath.Join(home, ".patch-orch", "patch-orch.db"),
			AutoPR:          true,
			RequireApproval: false,
			DemoFallback:    true,
		},
		GitHub: GitHubConfig{
			APIBase: "https://api.github.com",
		},
		Gemini: GeminiConfig{
			Model:   "gemini-2.5-flash",
			APIBase: "https://generativelanguage.googleapis.com",
		},
		Signing: SigningConfig{
			SignerID: "guardianai-server",
		},
		Autoscan: AutoscanConfig{
			IntervalMin: 60,
		},
		Web: WebConfig{
			Port: 4002,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file (missing file falls back to
// defaults), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.GitHub.Token, "GITHUB_TOKEN")
	setString(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Signing.Key, "SIGNING_KEY")
	setString(&c.Signing.SignerID, "SIGNER_ID")
	setString(&c.General.AdminKey, "ADMIN_KEY")
	setString(&c.General.DatabasePath, "DATABASE_PATH")
	setString(&c.Notify.SlackWebhook, "SLACK_WEBHOOK")
	setString(&c.Autoscan.Cron, "AUTOSCAN_CRON")
	setString(&c.Web.Host, "HOST")
	setBool(&c.General.AutoPR, "AUTO_PR")
	setBool(&c.General.RequireApproval, "REQUIRE_APPROVAL")
	setBool(&c.General.DemoFallback, "DEMO_FALLBACK")
	setInt(&c.Autoscan.IntervalMin, "AUTOSCAN_INTERVAL_MIN")
	setInt(&c.Web.Port, "PORT")

	if v, ok := os.LookupEnv("AUTOSCAN_REPOS"); ok {
		var repos []string
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				repos = append(repos, r)
			}
		}
		c.Autoscan.Repos = repos
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.EqualFold(v, "true")
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "patch-orch", "config.toml")
}

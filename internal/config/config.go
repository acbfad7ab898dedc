package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	SourceGitHub   = "github"
	SourceManifest = "manifest"
)

// Config holds all application configuration
type Config struct {
	// Scratch space for images, scripts and failure reports
	WorkDir string `mapstructure:"work-dir"`
	// Bundled helper binaries (windows)
	ToolsDir string `mapstructure:"tools-dir"`

	// Image discovery
	ImageSource  string `mapstructure:"image-source"`
	GitHubOwner  string `mapstructure:"github-owner"`
	GitHubRepo   string `mapstructure:"github-repo"`
	AssetPattern string `mapstructure:"asset-pattern"`
	ManifestURL  string `mapstructure:"manifest-url"`

	// Eligible disk capacity band
	MinDiskSize uint64 `mapstructure:"min-disk-size"`
	MaxDiskSize uint64 `mapstructure:"max-disk-size"`

	// Burn cadence
	PollInterval    time.Duration `mapstructure:"poll-interval"`
	PollDelay       time.Duration `mapstructure:"poll-delay"`
	ReportInterval  time.Duration `mapstructure:"report-interval"`
	ReapGrace       time.Duration `mapstructure:"reap-grace"`
	ETASmoothing    float64       `mapstructure:"eta-smoothing"`
	ETAUnknownAfter time.Duration `mapstructure:"eta-unknown-after"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry-delay"`
}

// SetDefaults registers every key with its default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("work-dir", filepath.Join(HomeDir(), ".sdburn", "work"))
	v.SetDefault("tools-dir", defaultToolsDir())
	v.SetDefault("image-source", SourceGitHub)
	v.SetDefault("github-owner", "kairos-io")
	v.SetDefault("github-repo", "kairos")
	v.SetDefault("asset-pattern", `\.img\.gz$`)
	v.SetDefault("manifest-url", "")
	v.SetDefault("min-disk-size", uint64(3_500_000_000))
	v.SetDefault("max-disk-size", uint64(64<<30))
	v.SetDefault("poll-interval", 300*time.Millisecond)
	v.SetDefault("poll-delay", time.Second)
	v.SetDefault("report-interval", 300*time.Millisecond)
	v.SetDefault("reap-grace", 2*time.Second)
	v.SetDefault("eta-smoothing", 1.0)
	v.SetDefault("eta-unknown-after", 24*time.Hour)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("retries", 1)
	v.SetDefault("retry-delay", 2*time.Second)
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load on a specific viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// Environment variables (SDBURN_WORK_DIR, etc.)
	v.SetEnvPrefix("SDBURN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.sdburn")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("work-dir cannot be empty")
	}
	switch c.ImageSource {
	case SourceGitHub:
		if c.GitHubOwner == "" || c.GitHubRepo == "" {
			return fmt.Errorf("github-owner and github-repo are required for the github image source")
		}
		if _, err := regexp.Compile(c.AssetPattern); err != nil {
			return fmt.Errorf("asset-pattern is not a valid regular expression: %w", err)
		}
	case SourceManifest:
		if c.ManifestURL == "" {
			return fmt.Errorf("manifest-url is required for the manifest image source")
		}
	default:
		return fmt.Errorf("image-source must be %q or %q, got %q", SourceGitHub, SourceManifest, c.ImageSource)
	}
	if c.MinDiskSize == 0 || c.MaxDiskSize < c.MinDiskSize {
		return fmt.Errorf("disk size band %d..%d is invalid", c.MinDiskSize, c.MaxDiskSize)
	}
	for name, d := range map[string]time.Duration{
		"poll-interval":   c.PollInterval,
		"report-interval": c.ReportInterval,
		"reap-grace":      c.ReapGrace,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.PollDelay < 0 {
		return fmt.Errorf("poll-delay must be non-negative")
	}
	if c.ETASmoothing <= 0 {
		return fmt.Errorf("eta-smoothing must be positive")
	}
	if c.Retries < 1 {
		return fmt.Errorf("retries must be at least 1")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry-delay must be non-negative")
	}
	return nil
}

func defaultToolsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "tools"
	}
	return filepath.Join(filepath.Dir(exe), "tools")
}

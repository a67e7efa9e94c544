package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gookit/validate"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr         string        `yaml:"addr" validate:"required"`
	DatabasePath string        `yaml:"database_path" validate:"required"`
	APITimeout   time.Duration `yaml:"timeout"`
	LogLevel     string        `yaml:"log_level" validate:"required|in:debug,info,warn,error"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	Codes        CodesConfig   `yaml:"codes"`
	Scanner      ScannerConfig `yaml:"scanner"`
	Link         LinkConfig    `yaml:"link"`
	Metrics      MetricsConfig `yaml:"metrics"`
	Backup       BackupConfig  `yaml:"backup"`
}

type CodesConfig struct {
	PixelWidth    int           `yaml:"pixel_width" validate:"required|int|min:64|max:2048"`
	LinkColor     string        `yaml:"link_color" validate:"required|regex:^#[0-9a-fA-F]{6}$"`
	SnapshotColor string        `yaml:"snapshot_color" validate:"required|regex:^#[0-9a-fA-F]{6}$"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	// CacheSizeMB also bounds one cached code to CacheSizeMB KiB.
	CacheSizeMB   int           `yaml:"cache_size_mb"`
}

type ScannerConfig struct {
	FPS int `yaml:"fps" validate:"required|int|min:1|max:120"`
}

type LinkConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type BackupConfig struct {
	Path string `yaml:"path"`
	// Interval between scheduled exports to Path; zero disables them.
	Interval time.Duration `yaml:"interval"`
}

// LoadConfig builds defaults from the environment and overlays the YAML file at path, if any.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:         getEnv("TRIAD_ADDR", "127.0.0.1:8080"),
		DatabasePath: getEnv("TRIAD_DATABASE_PATH", "triad.db"),
		APITimeout:   15 * time.Second,
		LogLevel:     getEnv("TRIAD_LOG_LEVEL", "info"),
		Codes: CodesConfig{
			PixelWidth:    300,
			LinkColor:     "#2563eb",
			SnapshotColor: "#059669",
			CacheTTL:      30 * time.Second,
			CacheSizeMB:   32,
		},
		Scanner: ScannerConfig{FPS: 30},
		Link:    LinkConfig{MaxAge: 5 * time.Minute},
		Metrics: MetricsConfig{Enabled: true},
		Backup:  BackupConfig{Path: getEnv("TRIAD_BACKUP_PATH", "triad-backup.json.zst")},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate checks field rules and the duration bounds that tags cannot express.
func (c *Config) Validate() error {
	for _, s := range []any{c, &c.Codes, &c.Scanner} {
		v := validate.Struct(s)
		if !v.Validate() {
			return fmt.Errorf("invalid config: %s", v.Errors.One())
		}
	}

	if c.APITimeout <= 0 {
		return fmt.Errorf("invalid config: timeout must be positive")
	}
	if c.Link.MaxAge <= 0 {
		return fmt.Errorf("invalid config: link.max_age must be positive")
	}
	if c.Codes.CacheTTL < 0 || c.Codes.CacheSizeMB < 0 {
		return fmt.Errorf("invalid config: code cache settings must not be negative")
	}
	if c.Backup.Interval < 0 {
		return fmt.Errorf("invalid config: backup.interval must not be negative")
	}
	if c.Backup.Interval > 0 && c.Backup.Path == "" {
		return fmt.Errorf("invalid config: backup.path is required for scheduled backups")
	}
	if c.Codes.CacheTTL >= c.Link.MaxAge {
		return fmt.Errorf("invalid config: codes.cache_ttl must be shorter than link.max_age")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ncruces/go-strftime"
	"github.com/spf13/viper"
)

// DefaultDateFormat renders as 2021_01_01__00_00_00__ so an alphabetical
// sort of renamed files is chronological.
const DefaultDateFormat = "%Y_%m_%d__%H_%M_%S__"

// alwaysIgnored basenames are dropped from every scan regardless of config.
var alwaysIgnored = []string{".DS_Store", "Thumbs.db"}

type Config struct {
	Rename           bool           `mapstructure:"rename"`
	ProgressReport   bool           `mapstructure:"progress-report"`
	SkipJSONMetadata bool           `mapstructure:"skip-json-metadata"`
	DateFormat       string         `mapstructure:"date-format"`
	UseExifTool      bool           `mapstructure:"exiftool"`
	ExifToolPath     string         `mapstructure:"exiftool-path"`
	ExifToolTimeout  time.Duration  `mapstructure:"exiftool-timeout"`
	Workers          int            `mapstructure:"workers"`
	Ignore           []string       `mapstructure:"ignore"`
	LogFile          string         `mapstructure:"log-file"`
	Manifest         bool           `mapstructure:"manifest"`
	Tags             TagPreferences `mapstructure:"tags"`
}

// DefaultConfigPath is photodate.toml under the user config dir.
func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to find user config dir: %w", err)
	}
	return filepath.Join(configDir, "photodate", "photodate.toml"), nil
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	tags := DefaultTagPreferences()
	v.SetDefault("rename", false)
	v.SetDefault("progress-report", false)
	v.SetDefault("skip-json-metadata", false)
	v.SetDefault("date-format", DefaultDateFormat)
	v.SetDefault("exiftool", true)
	v.SetDefault("exiftool-path", "")
	v.SetDefault("exiftool-timeout", 30*time.Second)
	v.SetDefault("workers", 1)
	v.SetDefault("ignore", append([]string{}, alwaysIgnored...))
	v.SetDefault("log-file", "photodate.log")
	v.SetDefault("manifest", true)
	v.SetDefault("tags.create", tags.Create)
	v.SetDefault("tags.gps", tags.GPS)
	v.SetDefault("tags.modify", tags.Modify)
}

// LoadConfig reads configPath (or the default location when empty) into v
// and returns the decoded, validated Config. A missing file is not an error.
func LoadConfig(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		path, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("photodate")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Dir(path))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case configPath != "" && os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Ignore = mergeIgnore(cfg.Ignore)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.DateFormat == "" {
		return fmt.Errorf("date-format must not be empty")
	}
	ref := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	rendered := strftime.Format(c.DateFormat, ref)
	if rendered == "" {
		return fmt.Errorf("date-format %q renders to an empty prefix", c.DateFormat)
	}
	layout, err := dateLayout(c.DateFormat)
	if err != nil {
		return fmt.Errorf("date-format %q has no time layout: %w", c.DateFormat, err)
	}
	parsed, err := time.Parse(layout, rendered)
	if err != nil {
		return fmt.Errorf("date-format %q cannot be parsed back: %w", c.DateFormat, err)
	}
	if again := strftime.Format(c.DateFormat, parsed); again != rendered {
		return fmt.Errorf("date-format %q does not round-trip (%q != %q)", c.DateFormat, again, rendered)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.ExifToolTimeout <= 0 {
		return fmt.Errorf("exiftool-timeout must be positive, got %s", c.ExifToolTimeout)
	}
	return nil
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		DateFormat:      DefaultDateFormat,
		UseExifTool:     true,
		ExifToolTimeout: 30 * time.Second,
		Workers:         1,
		Ignore:          append([]string{}, alwaysIgnored...),
		LogFile:         "photodate.log",
		Manifest:        true,
		Tags:            DefaultTagPreferences(),
	}
}

// InitConfig writes cfg to path as TOML. It refuses to overwrite an existing file.
func InitConfig(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(configFile(cfg)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// configFileShape is the on-disk shape of Config. Durations are written as
// strings so viper can decode them back.
type configFileShape struct {
	Rename           bool           `toml:"rename"`
	ProgressReport   bool           `toml:"progress-report"`
	SkipJSONMetadata bool           `toml:"skip-json-metadata"`
	DateFormat       string         `toml:"date-format"`
	UseExifTool      bool           `toml:"exiftool"`
	ExifToolPath     string         `toml:"exiftool-path"`
	ExifToolTimeout  string         `toml:"exiftool-timeout"`
	Workers          int            `toml:"workers"`
	Ignore           []string       `toml:"ignore"`
	LogFile          string         `toml:"log-file"`
	Manifest         bool           `toml:"manifest"`
	Tags             TagPreferences `toml:"tags"`
}

func configFile(cfg *Config) configFileShape {
	return configFileShape{
		Rename:           cfg.Rename,
		ProgressReport:   cfg.ProgressReport,
		SkipJSONMetadata: cfg.SkipJSONMetadata,
		DateFormat:       cfg.DateFormat,
		UseExifTool:      cfg.UseExifTool,
		ExifToolPath:     cfg.ExifToolPath,
		ExifToolTimeout:  cfg.ExifToolTimeout.String(),
		Workers:          cfg.Workers,
		Ignore:           cfg.Ignore,
		LogFile:          cfg.LogFile,
		Manifest:         cfg.Manifest,
		Tags:             cfg.Tags,
	}
}

func mergeIgnore(patterns []string) []string {
	seen := make(map[string]bool, len(patterns)+len(alwaysIgnored))
	var out []string
	for _, p := range append(append([]string{}, alwaysIgnored...), patterns...) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

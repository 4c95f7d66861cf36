// Package config loads getpapers settings from defaults, an optional YAML
// file, GETPAPERS_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/henrybloomingdale/getpapers/internal/observability"
)

// EnvPrefix prefixes every environment variable viper consults.
const EnvPrefix = "GETPAPERS"

// Config is the complete runtime configuration.
type Config struct {
	NCBI     NCBIConfig                  `mapstructure:"ncbi"`
	Search   SearchConfig                `mapstructure:"search"`
	Pipeline PipelineConfig              `mapstructure:"pipeline"`
	Output   OutputConfig                `mapstructure:"output"`
	Cache    CacheConfig                 `mapstructure:"cache"`
	Metrics  MetricsConfig               `mapstructure:"metrics"`
	Logging  observability.LoggingConfig `mapstructure:"logging"`

	// PolicyFile is an optional YAML keyword policy for the classifier.
	PolicyFile string `mapstructure:"policy"`
	Debug      bool   `mapstructure:"debug"`
}

// NCBIConfig configures the E-utilities client.
type NCBIConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	APIKey  string        `mapstructure:"api_key"`
	Tool    string        `mapstructure:"tool" validate:"required"`
	Email   string        `mapstructure:"email" validate:"omitempty,email"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// SearchConfig shapes the ESearch request.
type SearchConfig struct {
	Limit int    `mapstructure:"limit" validate:"min=1,max=10000"`
	Sort  string `mapstructure:"sort" validate:"omitempty,oneof=relevance pub_date Author JournalName"`
	// Year is a publication year or range such as 2020-2024.
	Year string `mapstructure:"year" validate:"omitempty,year_range"`
	// Type is a publication type filter (review, trial, meta-analysis, ...).
	Type string `mapstructure:"type"`
}

// PipelineConfig bounds the detail-fetch worker pool.
type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"min=1,max=10"`
}

// OutputConfig selects where and how the report is written.
type OutputConfig struct {
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format" validate:"oneof=csv json table"`
	XLSX   string `mapstructure:"xlsx"`
}

// CacheConfig enables the on-disk article cache when Path is set.
type CacheConfig struct {
	Path string        `mapstructure:"path"`
	TTL  time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// MetricsConfig enables the Prometheus textfile dump when File is set.
type MetricsConfig struct {
	File string `mapstructure:"file"`
}

// LoadOptions points Load at an explicit file and the flags to bind.
type LoadOptions struct {
	// ConfigFile overrides the search for getpapers.yaml.
	ConfigFile string
	// Flags are bound by name through FlagKeys.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"api-key":      "ncbi.api_key",
	"email":        "ncbi.email",
	"timeout":      "ncbi.timeout",
	"limit":        "search.limit",
	"sort":         "search.sort",
	"year":         "search.year",
	"type":         "search.type",
	"concurrency":  "pipeline.concurrency",
	"file":         "output.file",
	"format":       "output.format",
	"xlsx":         "output.xlsx",
	"cache":        "cache.path",
	"cache-ttl":    "cache.ttl",
	"metrics-file": "metrics.file",
	"policy":       "policy",
	"debug":        "debug",
	"log-format":   "logging.format",
}

// Load builds the Config. A missing default config file is not an error;
// a missing explicit ConfigFile is.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("getpapers")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "getpapers"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// applyFallbacks fills values that come from outside viper's key space.
func (c *Config) applyFallbacks() {
	// NCBI's own variable is what most users already have exported.
	if c.NCBI.APIKey == "" {
		c.NCBI.APIKey = os.Getenv("NCBI_API_KEY")
	}
	if c.Debug {
		c.Logging.Level = "debug"
	}
	c.Output.Format = strings.ToLower(c.Output.Format)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ncbi.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("ncbi.tool", "getpapers")
	v.SetDefault("ncbi.email", "getpapers@users.noreply.github.com")
	v.SetDefault("ncbi.timeout", 30*time.Second)
	v.SetDefault("ncbi.api_key", "")

	v.SetDefault("search.limit", 20)
	v.SetDefault("search.sort", "")
	v.SetDefault("search.year", "")
	v.SetDefault("search.type", "")

	v.SetDefault("pipeline.concurrency", 1)

	v.SetDefault("output.file", "")
	v.SetDefault("output.format", "csv")
	v.SetDefault("output.xlsx", "")

	v.SetDefault("cache.path", "")
	v.SetDefault("cache.ttl", 7*24*time.Hour)

	v.SetDefault("metrics.file", "")
	v.SetDefault("policy", "")
	v.SetDefault("debug", false)

	def := observability.DefaultLoggingConfig()
	v.SetDefault("logging.level", def.Level)
	v.SetDefault("logging.format", def.Format)
	v.SetDefault("logging.output", def.Output)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	_ = val.RegisterValidation("year_range", func(fl validator.FieldLevel) bool {
		_, _, err := ParseYearRange(fl.Field().String())
		return err == nil
	})
	return val
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Output.Format == "table" && c.Output.File != "" {
		return fmt.Errorf("--format table writes to the terminal and cannot be combined with --file")
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s, got %v", field, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", field, fe.Param(), fe.Value())
	case "year_range":
		return fmt.Sprintf("%s must be YYYY or YYYY-YYYY, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation (value %v)", field, fe.Tag(), fe.Value())
	}
}

// ParseYearRange splits "2020-2024" or "2021" into min and max years.
func ParseYearRange(s string) (string, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", nil
	}
	lo, hi, found := strings.Cut(s, "-")
	if !found {
		hi = lo
	}
	lo, hi = strings.TrimSpace(lo), strings.TrimSpace(hi)
	if !isYear(lo) || !isYear(hi) {
		return "", "", fmt.Errorf("invalid year range %q", s)
	}
	if lo > hi {
		return "", "", fmt.Errorf("invalid year range %q: start after end", s)
	}
	return lo, hi, nil
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "ddr.yaml"

type Config struct {
	Addr      string `yaml:"addr"`
	OutputDir string `yaml:"output_dir"`
	DBPath    string `yaml:"db_path"`
	UploadDir string `yaml:"upload_dir"`
	WebDir    string `yaml:"web_dir"`
	// RulesPath points at a YAML or TOML rule table; empty means the built-in defaults.
	RulesPath string `yaml:"rules_path"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	OCREnabled      bool   `yaml:"ocr_enabled"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	RenderPDF       bool   `yaml:"render_pdf"`

	UploadsPerMinute      int `yaml:"uploads_per_minute"`
	HistoryLimit          int `yaml:"history_limit"`
	ExtractTimeoutSeconds int `yaml:"extract_timeout_seconds"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

func Defaults() Config {
	return Config{
		Addr:                  ":8080",
		OutputDir:             "generated_reports",
		DBPath:                "ddr.db",
		UploadDir:             "uploads",
		WebDir:                "web",
		LogLevel:              "info",
		LogFormat:             "json",
		RenderPDF:             true,
		UploadsPerMinute:      30,
		HistoryLimit:          50,
		ExtractTimeoutSeconds: 60,
		ServiceName:           "ddr-generator",
	}
}

// Load reads CONFIG_PATH (default ddr.yaml) over the defaults, then applies environment
// overrides. A missing file is not an error.
func Load() (Config, error) {
	path := DefaultPath
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		path = envPath
	}
	return LoadFile(path)
}

func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	envOverride(&cfg.Addr, "DDR_ADDR")
	envOverride(&cfg.OutputDir, "DDR_OUTPUT_DIR")
	envOverride(&cfg.DBPath, "DDR_DB_PATH")
	envOverride(&cfg.UploadDir, "DDR_UPLOAD_DIR")
	envOverride(&cfg.WebDir, "DDR_WEB_DIR")
	envOverride(&cfg.RulesPath, "DDR_RULES_PATH")
	envOverride(&cfg.LogLevel, "DDR_LOG_LEVEL")
	envOverride(&cfg.LogFormat, "DDR_LOG_FORMAT")
	envOverrideBool(&cfg.OCREnabled, "DDR_OCR_ENABLED")
	envOverrideBool(&cfg.RenderPDF, "DDR_RENDER_PDF")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	if err := envOverrideInt(&cfg.UploadsPerMinute, "DDR_UPLOADS_PER_MINUTE"); err != nil {
		return Config{}, err
	}
	if err := envOverrideInt(&cfg.HistoryLimit, "DDR_HISTORY_LIMIT"); err != nil {
		return Config{}, err
	}
	if err := envOverrideInt(&cfg.ExtractTimeoutSeconds, "DDR_EXTRACT_TIMEOUT_SECONDS"); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.New("output_dir is required")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db_path is required")
	}
	if c.UploadsPerMinute < 0 {
		return fmt.Errorf("uploads_per_minute must not be negative, got %d", c.UploadsPerMinute)
	}
	if c.ExtractTimeoutSeconds <= 0 {
		return fmt.Errorf("extract_timeout_seconds must be positive, got %d", c.ExtractTimeoutSeconds)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}
	return nil
}

func (c Config) ExtractTimeout() time.Duration {
	return time.Duration(c.ExtractTimeoutSeconds) * time.Second
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

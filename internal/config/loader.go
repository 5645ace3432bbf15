package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/csv"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/xlsx"
)

// LoadEnvFile loads variables from a dotenv file without overriding the
// ones already set. A missing file is not an error; the returned bool
// reports whether one was read.
func LoadEnvFile(path string) (bool, error) {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

// Load reads configuration from environment variables, applies defaults
// for unset values and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// fieldParsers decode one environment value per supported field type.
var fieldParsers = map[reflect.Type]func(string) (any, error){
	reflect.TypeFor[string](): func(s string) (any, error) { return s, nil },
	reflect.TypeFor[int](): func(s string) (any, error) {
		return strconv.Atoi(s)
	},
	reflect.TypeFor[int64](): func(s string) (any, error) {
		return strconv.ParseInt(s, 10, 64)
	},
	reflect.TypeFor[bool](): func(s string) (any, error) {
		return strconv.ParseBool(s)
	},
	reflect.TypeFor[time.Duration](): func(s string) (any, error) {
		return time.ParseDuration(s)
	},
}

// loadStruct fills each section of cfg from the env tags of its fields.
// The envAlt variable is consulted when the primary one is unset, and the
// default tag applies when both are.
func loadStruct(cfg reflect.Value) error {
	for i := 0; i < cfg.NumField(); i++ {
		section := cfg.Field(i)
		for j := 0; j < section.NumField(); j++ {
			field := section.Type().Field(j)
			key := field.Tag.Get("env")
			if key == "" {
				continue
			}
			value, ok := lookupEnv(key, field.Tag.Get("envAlt"))
			if !ok {
				value = field.Tag.Get("default")
			}
			if value == "" {
				continue
			}
			parse, ok := fieldParsers[field.Type]
			if !ok {
				return fmt.Errorf("%s: unsupported field type %s", key, field.Type)
			}
			parsed, err := parse(value)
			if err != nil {
				return fmt.Errorf("invalid value for %s=%q: %w", key, value, err)
			}
			section.Field(j).Set(reflect.ValueOf(parsed).Convert(field.Type))
		}
	}
	return nil
}

// lookupEnv returns the first non-empty variable among key and alt.
func lookupEnv(key, alt string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	if alt != "" {
		if v := os.Getenv(alt); v != "" {
			return v, true
		}
	}
	return "", false
}

// Validate checks that the configuration is valid and reports every
// failure at once.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("TABSTREAM_LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("TABSTREAM_LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if c.Server.Addr == "" {
		errs = append(errs, "TABSTREAM_HTTP_ADDR must not be empty")
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, "TABSTREAM_MAX_UPLOAD_BYTES must be positive")
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "TABSTREAM_HTTP_READ_TIMEOUT must be non-negative")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "TABSTREAM_HTTP_REQUEST_TIMEOUT must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "TABSTREAM_HTTP_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Codec.MaxRowsPerSheet <= 0 || c.Codec.MaxRowsPerSheet > xlsx.MaxRowsPerSheet {
		errs = append(errs, fmt.Sprintf("TABSTREAM_MAX_ROWS_PER_SHEET (%d) must be 1-%d", c.Codec.MaxRowsPerSheet, xlsx.MaxRowsPerSheet))
	}
	if c.Codec.CompressionLevel < 0 || c.Codec.CompressionLevel > 9 {
		errs = append(errs, fmt.Sprintf("TABSTREAM_COMPRESSION_LEVEL (%d) must be 0-9", c.Codec.CompressionLevel))
	}
	if utf8.RuneCountInString(c.Codec.CSVDelimiter) != 1 || strings.ContainsAny(c.Codec.CSVDelimiter, "\"\r\n") {
		errs = append(errs, fmt.Sprintf("TABSTREAM_CSV_DELIMITER (%q) must be one character other than a quote or line break", c.Codec.CSVDelimiter))
	}
	if _, err := csv.ResolveEncoding(c.Codec.CSVEncoding); err != nil {
		errs = append(errs, fmt.Sprintf("TABSTREAM_CSV_ENCODING (%q) is not a known encoding", c.Codec.CSVEncoding))
	}
	if c.Codec.TempDir != "" {
		if info, err := os.Stat(c.Codec.TempDir); err != nil || !info.IsDir() {
			errs = append(errs, fmt.Sprintf("TABSTREAM_TEMP_DIR (%q) must be an existing directory", c.Codec.TempDir))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// RequireDatabase reports whether a database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// String returns a representation of the config safe for logging. The
// database URL is masked.
func (c *Config) String() string {
	db := "[UNSET]"
	if c.Database.URL != "" {
		db = "[MASKED]"
	}
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}, ", c.Logging.Level, c.Logging.Format))
	b.WriteString(fmt.Sprintf("Server: {Addr: %q, MaxUploadBytes: %d}, ", c.Server.Addr, c.Server.MaxUploadBytes))
	b.WriteString(fmt.Sprintf("Codec: {InlineStrings: %v, AutoNewSheets: %v, MaxRowsPerSheet: %d, CompressionLevel: %d, CSVDelimiter: %q, CSVEncoding: %q}, ",
		c.Codec.InlineStrings, c.Codec.AutoNewSheets, c.Codec.MaxRowsPerSheet, c.Codec.CompressionLevel, c.Codec.CSVDelimiter, c.Codec.CSVEncoding))
	b.WriteString(fmt.Sprintf("Database: {URL: %s}", db))
	b.WriteString("}")
	return b.String()
}

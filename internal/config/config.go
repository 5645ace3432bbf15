// Package config loads the tabstream command configuration from environment
// variables, with defaults for unset values and validation on load so a
// misconfigured process fails fast.
package config

import (
	"time"

	"github.com/ukaji3/tabstream-go/pkg/tabstream"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/xlsx"
)

// Config holds all application configuration.
type Config struct {
	Logging  LoggingConfig
	Server   ServerConfig
	Codec    CodecConfig
	Database DatabaseConfig
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"TABSTREAM_LOG_LEVEL" envAlt:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"TABSTREAM_LOG_FORMAT" envAlt:"LOG_FORMAT" default:"text"`
}

// ServerConfig holds HTTP conversion service settings.
type ServerConfig struct {
	// Addr is the listen address (default: :8080)
	Addr string `env:"TABSTREAM_HTTP_ADDR" default:":8080"`

	// MaxUploadBytes caps the size of an uploaded document (default: 256MB)
	MaxUploadBytes int64 `env:"TABSTREAM_MAX_UPLOAD_BYTES" default:"268435456"`

	// ReadTimeout is the maximum duration for reading a request (default: 5m)
	ReadTimeout time.Duration `env:"TABSTREAM_HTTP_READ_TIMEOUT" default:"5m"`

	// RequestTimeout bounds one conversion (default: 15m)
	RequestTimeout time.Duration `env:"TABSTREAM_HTTP_REQUEST_TIMEOUT" default:"15m"`

	// ShutdownTimeout is the grace period for in-flight conversions (default: 30s)
	ShutdownTimeout time.Duration `env:"TABSTREAM_HTTP_SHUTDOWN_TIMEOUT" default:"30s"`
}

// CodecConfig holds the defaults of every reader and writer.
type CodecConfig struct {
	// InlineStrings writes XLSX text inline instead of a shared table (default: true)
	InlineStrings bool `env:"TABSTREAM_INLINE_STRINGS" default:"true"`

	// AutoNewSheets starts a new XLSX sheet at the row ceiling (default: true)
	AutoNewSheets bool `env:"TABSTREAM_AUTO_NEW_SHEETS" default:"true"`

	// MaxRowsPerSheet is the XLSX row ceiling (default: 1048576)
	MaxRowsPerSheet int `env:"TABSTREAM_MAX_ROWS_PER_SHEET" default:"1048576"`

	// CompressionLevel is the deflate level 0-9 (default: 6)
	CompressionLevel int `env:"TABSTREAM_COMPRESSION_LEVEL" default:"6"`

	// CSVDelimiter is the CSV field separator, one character (default: ,)
	CSVDelimiter string `env:"TABSTREAM_CSV_DELIMITER" default:","`

	// CSVEncoding is the CSV text encoding label (default: utf-8)
	CSVEncoding string `env:"TABSTREAM_CSV_ENCODING" default:"utf-8"`

	// TempDir holds spooled uploads and file-backed string tables (default: OS temp dir)
	TempDir string `env:"TABSTREAM_TEMP_DIR"`
}

// DatabaseConfig holds the PostgreSQL source of the export command.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required only by export.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`
}

// Options converts the codec settings into library options.
func (c *Config) Options() tabstream.Options {
	opts := tabstream.DefaultOptions()
	opts.InlineStrings = tabstream.Bool(c.Codec.InlineStrings)
	opts.AutoCreateNewSheets = tabstream.Bool(c.Codec.AutoNewSheets)
	opts.XLSX.MaxRowsPerSheet = c.Codec.MaxRowsPerSheet
	if opts.XLSX.MaxRowsPerSheet <= 0 {
		opts.XLSX.MaxRowsPerSheet = xlsx.MaxRowsPerSheet
	}
	opts.XLSX.CompressionLevel = c.Codec.CompressionLevel
	opts.XLSX.SharedStrings.TempDir = c.Codec.TempDir
	if r := []rune(c.Codec.CSVDelimiter); len(r) == 1 {
		opts.CSV.Delimiter = r[0]
	}
	if c.Codec.CSVEncoding != "" {
		opts.CSV.Encoding = c.Codec.CSVEncoding
	}
	return opts
}

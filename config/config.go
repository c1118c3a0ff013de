package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/indigo-web/formstream/http/mime"
)

// EnvPrefix is prepended to every environment variable the config is read from,
// e.g. FORMSTREAM_UPLOAD_MAX_SIZE.
const EnvPrefix = "FORMSTREAM_"

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

type (
	Upload struct {
		// MaxSize limits the total number of part data bytes in a single request. Once
		// exceeded, the rest of the body is drained and discarded, and every file of
		// the request is deleted.
		MaxSize int64 `yaml:"max_size" env:"MAX_SIZE"`
		// TempDir is where uploaded files are spooled to.
		TempDir string `yaml:"temp_dir" env:"TEMP_DIR"`
		// DefaultContentType is assigned to parts not declaring their own Content-Type.
		DefaultContentType mime.MIME `yaml:"default_content_type" env:"DEFAULT_CONTENT_TYPE"`
	}

	Multipart struct {
		// ReadBufferSize is the size of chunks the body is read by.
		ReadBufferSize int `yaml:"read_buffer_size" env:"READ_BUFFER_SIZE"`
		// MaxHeaderSize limits the headers section of every single part.
		MaxHeaderSize int `yaml:"max_header_size" env:"MAX_HEADER_SIZE"`
		// SniffSize is how many leading bytes of an image are kept to measure it.
		SniffSize int `yaml:"sniff_size" env:"SNIFF_SIZE"`
		// WriteBufferSize is the buffer size of every spooled file.
		WriteBufferSize int `yaml:"write_buffer_size" env:"WRITE_BUFFER_SIZE"`
		// WriteQueue is how many chunks may be waiting for a single file to be written
		// before the reader is stalled.
		WriteQueue int `yaml:"write_queue" env:"WRITE_QUEUE"`
	}

	Local struct {
		Dir     string `yaml:"dir" env:"DIR"`
		BaseURL string `yaml:"base_url" env:"BASE_URL"`
	}

	S3 struct {
		Bucket          string `yaml:"bucket" env:"BUCKET" test:"nullable"`
		Region          string `yaml:"region" env:"REGION" test:"nullable"`
		Endpoint        string `yaml:"endpoint" env:"ENDPOINT" test:"nullable"`
		AccessKeyID     string `yaml:"access_key_id" env:"ACCESS_KEY_ID" test:"nullable"`
		SecretAccessKey string `yaml:"secret_access_key" env:"SECRET_ACCESS_KEY" test:"nullable"`
		Prefix          string `yaml:"prefix" env:"PREFIX" test:"nullable"`
		PublicURL       string `yaml:"public_url" env:"PUBLIC_URL" test:"nullable"`
		UsePathStyle    bool   `yaml:"use_path_style" env:"USE_PATH_STYLE" test:"nullable"`
	}

	Store struct {
		// Backend is either "local" or "s3". Empty value disables persistence, leaving
		// uploaded files in the temporary directory.
		Backend string `yaml:"backend" env:"BACKEND"`
		Local   Local  `yaml:"local" envPrefix:"LOCAL_"`
		S3      S3     `yaml:"s3" envPrefix:"S3_"`
	}

	Server struct {
		Addr string `yaml:"addr" env:"ADDR"`
		// Domains enable automatic TLS certificates for the listed hosts.
		Domains []string `yaml:"domains" env:"DOMAINS" envSeparator:"," test:"nullable"`
		// CertCache is the directory autocert keeps its certificates in.
		CertCache    string        `yaml:"cert_cache" env:"CERT_CACHE"`
		ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
		WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
		// LogFormat is either "text" or "json".
		LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`
	}
)

// Config holds every setting of the service. Always start from Default() and modify
// what you need instead of initializing the struct manually.
type Config struct {
	Upload    Upload    `yaml:"upload" envPrefix:"UPLOAD_"`
	Multipart Multipart `yaml:"multipart" envPrefix:"MULTIPART_"`
	Store     Store     `yaml:"store" envPrefix:"STORE_"`
	Server    Server    `yaml:"server" envPrefix:"SERVER_"`
}

// Default returns default config.
func Default() *Config {
	return &Config{
		Upload: Upload{
			MaxSize:            64 * 1024 * 1024, // 64 megabytes
			TempDir:            os.TempDir(),
			DefaultContentType: mime.OctetStream,
		},
		Multipart: Multipart{
			ReadBufferSize:  16 * 1024,
			MaxHeaderSize:   8 * 1024,
			SniffSize:       128 * 1024, // room for an EXIF and an XMP segment before the JPEG SOF
			WriteBufferSize: 32 * 1024,
			WriteQueue:      16,
		},
		Store: Store{
			Backend: BackendLocal,
			Local: Local{
				Dir:     "uploads",
				BaseURL: "/files/",
			},
		},
		Server: Server{
			Addr:         ":8080",
			CertCache:    "certs",
			ReadTimeout:  90 * time.Second,
			WriteTimeout: 90 * time.Second,
			LogFormat:    "text",
		},
	}
}

// Load builds the config from defaults, overridden by the YAML file at path (if not
// empty), then by the environment. The environment is extended by envFiles, or by the
// .env file in the working directory if none are passed. Missing env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if len(path) > 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}

		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %s: %w", file, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, cfg.Validate()
}

var ErrInvalid = errors.New("invalid config")

// Validate reports settings the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Upload.MaxSize < 0:
		return fmt.Errorf("%w: negative upload.max_size", ErrInvalid)
	case len(c.Upload.TempDir) == 0:
		return fmt.Errorf("%w: empty upload.temp_dir", ErrInvalid)
	case c.Multipart.ReadBufferSize <= 0:
		return fmt.Errorf("%w: multipart.read_buffer_size must be positive", ErrInvalid)
	case c.Multipart.MaxHeaderSize <= 0:
		return fmt.Errorf("%w: multipart.max_header_size must be positive", ErrInvalid)
	case c.Multipart.SniffSize < 0:
		return fmt.Errorf("%w: negative multipart.sniff_size", ErrInvalid)
	}

	switch c.Store.Backend {
	case "", BackendLocal:
	case BackendS3:
		if len(c.Store.S3.Bucket) == 0 {
			return fmt.Errorf("%w: store.s3.bucket is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalid, c.Store.Backend)
	}

	switch c.Server.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Server.LogFormat)
	}

	return nil
}

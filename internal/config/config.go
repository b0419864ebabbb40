package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
	"gopkg.in/yaml.v3"

	"github.com/garnizeh/recboard/pkg/backend"
)

// EnvPrefix prefixes every environment override, e.g. RECBOARD_ADDR.
const EnvPrefix = "RECBOARD_"

// InsecureJWTSecret is the built-in secret; it is refused outside development.
const InsecureJWTSecret = "supersecretkey"

const (
	StoreHTTP      = "http"
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"

	IdentityLocal    = "local"
	IdentityFirebase = "firebase"
)

type Config struct {
	Addr           string        `yaml:"addr" env:"ADDR"`
	APITimeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	LogLevel       string        `yaml:"log_level" env:"LOG_LEVEL"`
	MigrateOnStart bool          `yaml:"migrate_on_start" env:"MIGRATE_ON_START"`

	Store    StoreConfig    `yaml:"store" envPrefix:"STORE_"`
	Backend  backend.Config `yaml:"backend" envPrefix:"BACKEND_"`
	Firebase FirebaseConfig `yaml:"firebase" envPrefix:"FIREBASE_"`
	Identity IdentityConfig `yaml:"identity" envPrefix:"IDENTITY_"`
	Board    BoardConfig    `yaml:"board" envPrefix:"BOARD_"`
}

type StoreConfig struct {
	// Driver is one of http, sqlite or firestore.
	Driver       string `yaml:"driver" env:"DRIVER"`
	DatabasePath string `yaml:"database_path" env:"DATABASE_PATH"`
}

type FirebaseConfig struct {
	ProjectID       string `yaml:"project_id" env:"PROJECT_ID"`
	CredentialsFile string `yaml:"credentials_file" env:"CREDENTIALS_FILE"`
}

type IdentityConfig struct {
	// Driver is local (HS256 tokens issued by this service) or firebase.
	Driver        string        `yaml:"driver" env:"DRIVER"`
	JWTSecret     string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenDuration time.Duration `yaml:"token_duration" env:"TOKEN_DURATION"`
}

type BoardConfig struct {
	IdleTTL          time.Duration `yaml:"idle_ttl" env:"IDLE_TTL"`
	ReconcileTimeout time.Duration `yaml:"reconcile_timeout" env:"RECONCILE_TIMEOUT"`
	RequireImage     bool          `yaml:"require_image" env:"REQUIRE_IMAGE"`
	Workers          int           `yaml:"workers" env:"WORKERS"`
	QueueSize        int           `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// Default returns the configuration used when neither a file nor the
// environment say otherwise.
func Default() *Config {
	return &Config{
		Addr:       ":8080",
		APITimeout: 15 * time.Second,
		LogLevel:   "info",
		Store: StoreConfig{
			Driver:       StoreSQLite,
			DatabasePath: "recboard.db",
		},
		Backend: backend.DefaultConfig(),
		Identity: IdentityConfig{
			Driver:        IdentityLocal,
			JWTSecret:     InsecureJWTSecret,
			TokenDuration: time.Hour,
		},
		Board: BoardConfig{
			IdleTTL:          30 * time.Minute,
			ReconcileTimeout: 15 * time.Second,
			Workers:          4,
			QueueSize:        256,
		},
	}
}

// LoadConfig reads path (optional) over the defaults and then applies
// RECBOARD_* environment overrides. It does not validate.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

// Development reports whether RECBOARD_ENV=development.
func Development() bool {
	return strings.EqualFold(os.Getenv(EnvPrefix+"ENV"), "development")
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	d := Default()
	var errs []error

	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.APITimeout <= 0 {
		c.APITimeout = d.APITimeout
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.DatabasePath == "" {
			errs = append(errs, errors.New("store.database_path is required for the sqlite driver"))
		}
	case StoreHTTP:
		if c.Backend.BaseURL == "" {
			c.Backend.BaseURL = d.Backend.BaseURL
		}
	case StoreFirestore:
		if c.Firebase.ProjectID == "" {
			errs = append(errs, errors.New("firebase.project_id is required for the firestore driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: want http, sqlite or firestore", c.Store.Driver))
	}
	c.fillBackend(d.Backend)

	switch c.Identity.Driver {
	case IdentityLocal:
		if c.Store.Driver != StoreSQLite {
			errs = append(errs, errors.New("identity.driver local needs store.driver sqlite for accounts"))
		}
		if c.Identity.JWTSecret == "" {
			errs = append(errs, errors.New("identity.jwt_secret is required"))
		} else if c.Identity.JWTSecret == InsecureJWTSecret && !Development() {
			errs = append(errs, errors.New("identity.jwt_secret uses the insecure default; set RECBOARD_IDENTITY_JWT_SECRET or RECBOARD_ENV=development"))
		}
		if c.Identity.TokenDuration <= 0 {
			c.Identity.TokenDuration = d.Identity.TokenDuration
		}
	case IdentityFirebase:
		if c.Firebase.ProjectID == "" {
			errs = append(errs, errors.New("firebase.project_id is required for the firebase identity driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("identity.driver %q: want local or firebase", c.Identity.Driver))
	}

	if c.Board.IdleTTL <= 0 {
		c.Board.IdleTTL = d.Board.IdleTTL
	}
	if c.Board.ReconcileTimeout <= 0 {
		c.Board.ReconcileTimeout = d.Board.ReconcileTimeout
	}
	if c.Board.Workers <= 0 {
		c.Board.Workers = d.Board.Workers
	}
	if c.Board.QueueSize <= 0 {
		c.Board.QueueSize = d.Board.QueueSize
	}

	return errors.Join(errs...)
}

func (c *Config) fillBackend(d backend.Config) {
	b := &c.Backend
	if b.Timeout <= 0 {
		b.Timeout = d.Timeout
	}
	if b.Retries < 0 {
		b.Retries = 0
	}
	if b.Backoff <= 0 {
		b.Backoff = d.Backoff
	}
	if b.CircuitFailureThreshold <= 0 {
		b.CircuitFailureThreshold = d.CircuitFailureThreshold
	}
	if b.CircuitReset <= 0 {
		b.CircuitReset = d.CircuitReset
	}
}

// ParseLevel maps log_level to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level %q: want debug, info, warn or error", s)
	}
}

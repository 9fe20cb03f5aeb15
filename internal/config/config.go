// Package config assembles server settings from defaults, an optional YAML file,
// an optional .env file, LK_* environment variables and command-line flags, in
// increasing order of priority.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

// Config is the server configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Admin    AdminConfig    `json:"admin" yaml:"admin"`
	Logger   LoggerConfig   `json:"logger" yaml:"logger"`
}

// ServerConfig configures the protocol listener.
type ServerConfig struct {
	Addr          string        `json:"addr" yaml:"addr"`
	IdleTimeout   time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	MaxFrameBytes int           `json:"max_frame_bytes" yaml:"max_frame_bytes"`
}

// DatabaseConfig selects the storage backend. An empty DSN keeps everything in memory.
type DatabaseConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// AuthConfig configures sessions and login throttling.
type AuthConfig struct {
	JWTKey         string        `json:"jwt_key" yaml:"jwt_key"`
	TokenTTL       time.Duration `json:"token_ttl" yaml:"token_ttl"`
	TokenLeeway    time.Duration `json:"token_leeway" yaml:"token_leeway"`
	RevokeOnLogout bool          `json:"revoke_on_logout" yaml:"revoke_on_logout"`
	LoginWindow    time.Duration `json:"login_window" yaml:"login_window"`
	LoginMaxFails  int           `json:"login_max_fails" yaml:"login_max_fails"`
	LoginBlockFor  time.Duration `json:"login_block_for" yaml:"login_block_for"`
}

// AdminConfig configures the operator endpoints. Empty addresses disable them.
type AdminConfig struct {
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
	HealthAddr  string `json:"health_addr" yaml:"health_addr"`
	Dev         bool   `json:"dev" yaml:"dev"`
}

// LoggerConfig configures zap.
type LoggerConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":12345",
			MaxFrameBytes: 1 << 20,
		},
		Auth: AuthConfig{
			TokenTTL:      30 * time.Minute,
			TokenLeeway:   30 * time.Second,
			LoginWindow:   15 * time.Minute,
			LoginMaxFails: 5,
			LoginBlockFor: 15 * time.Minute,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load parses args (without the program name) and returns a validated Config.
func Load(args []string) (*Config, error) {
	// first pass only discovers the file locations and reports flag errors
	var files sources
	probe := flag.NewFlagSet("labkeeper-server", flag.ContinueOnError)
	bindFlags(probe, Default(), &files)
	if err := probe.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if files.config != "" {
		if err := loadFile(cfg, files.config); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	lookup := os.LookupEnv
	if files.env != "" {
		dot, err := godotenv.Read(files.env)
		if err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
		lookup = func(key string) (string, bool) {
			if v, ok := os.LookupEnv(key); ok {
				return v, true
			}
			v, ok := dot[key]
			return v, ok
		}
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	final := flag.NewFlagSet("labkeeper-server", flag.ContinueOnError)
	final.SetOutput(io.Discard)
	bindFlags(final, cfg, &files)
	if err := final.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type sources struct {
	config string
	env    string
}

// bindFlags registers every flag with cfg's current values as defaults, so
// unset flags leave cfg unchanged.
func bindFlags(fs *flag.FlagSet, cfg *Config, src *sources) {
	fs.StringVar(&src.config, "config", "", "YAML config file")
	fs.StringVar(&src.env, "env-file", "", ".env file with LK_* variables")

	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "protocol listen address")
	fs.DurationVar(&cfg.Server.IdleTimeout, "idle-timeout", cfg.Server.IdleTimeout, "close idle connections after this long (0 = never)")
	fs.IntVar(&cfg.Server.MaxFrameBytes, "max-frame", cfg.Server.MaxFrameBytes, "max request frame size in bytes")
	fs.StringVar(&cfg.Database.DSN, "dsn", cfg.Database.DSN, "PostgreSQL DSN (empty = in-memory)")
	fs.StringVar(&cfg.Auth.JWTKey, "jwt-key", cfg.Auth.JWTKey, "HS256 signing key (required)")
	fs.DurationVar(&cfg.Auth.TokenTTL, "token-ttl", cfg.Auth.TokenTTL, "session token lifetime")
	fs.DurationVar(&cfg.Auth.TokenLeeway, "token-leeway", cfg.Auth.TokenLeeway, "allowed clock skew when checking expiry")
	fs.BoolVar(&cfg.Auth.RevokeOnLogout, "revoke-on-logout", cfg.Auth.RevokeOnLogout, "deny tokens after logout until they expire")
	fs.DurationVar(&cfg.Auth.LoginWindow, "login-window", cfg.Auth.LoginWindow, "failed login counting window")
	fs.IntVar(&cfg.Auth.LoginMaxFails, "login-max-fails", cfg.Auth.LoginMaxFails, "failed logins before blocking")
	fs.DurationVar(&cfg.Auth.LoginBlockFor, "login-block-for", cfg.Auth.LoginBlockFor, "block duration after too many failures")
	fs.StringVar(&cfg.Admin.MetricsAddr, "metrics-addr", cfg.Admin.MetricsAddr, "HTTP address for /metrics and /health (empty = off)")
	fs.StringVar(&cfg.Admin.HealthAddr, "health-addr", cfg.Admin.HealthAddr, "gRPC health service address (empty = off)")
	fs.BoolVar(&cfg.Admin.Dev, "dev", cfg.Admin.Dev, "enable gRPC reflection (dev only)")
	fs.StringVar(&cfg.Logger.Level, "log-level", cfg.Logger.Level, "debug|info|warn|error")
	fs.StringVar(&cfg.Logger.Format, "log-format", cfg.Logger.Format, "json|console")
}

func loadFile(cfg *Config, filename string) error {
	content, err := os.ReadFile(os.ExpandEnv(filename))
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(content, cfg)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var problems []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("LK_ADDR", &cfg.Server.Addr)
	dur("LK_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	num("LK_MAX_FRAME_BYTES", &cfg.Server.MaxFrameBytes)
	str("LK_DSN", &cfg.Database.DSN)
	str("LK_JWT_KEY", &cfg.Auth.JWTKey)
	dur("LK_TOKEN_TTL", &cfg.Auth.TokenTTL)
	dur("LK_TOKEN_LEEWAY", &cfg.Auth.TokenLeeway)
	boolean("LK_REVOKE_ON_LOGOUT", &cfg.Auth.RevokeOnLogout)
	dur("LK_LOGIN_WINDOW", &cfg.Auth.LoginWindow)
	num("LK_LOGIN_MAX_FAILS", &cfg.Auth.LoginMaxFails)
	dur("LK_LOGIN_BLOCK_FOR", &cfg.Auth.LoginBlockFor)
	str("LK_METRICS_ADDR", &cfg.Admin.MetricsAddr)
	str("LK_HEALTH_ADDR", &cfg.Admin.HealthAddr)
	boolean("LK_DEV", &cfg.Admin.Dev)
	str("LK_LOG_LEVEL", &cfg.Logger.Level)
	str("LK_LOG_FORMAT", &cfg.Logger.Format)

	return errors.Join(problems...)
}

// Validate checks the settings that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var problems []error
	if c.Server.Addr == "" {
		problems = append(problems, errors.New("server address is required"))
	}
	if c.Server.IdleTimeout < 0 {
		problems = append(problems, errors.New("idle timeout must not be negative"))
	}
	if c.Server.MaxFrameBytes <= 0 {
		problems = append(problems, errors.New("max frame size must be positive"))
	}
	if c.Auth.JWTKey == "" {
		problems = append(problems, errors.New("jwt key is required (--jwt-key or LK_JWT_KEY)"))
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, errors.New("token ttl must be positive"))
	}
	if c.Auth.TokenLeeway < 0 {
		problems = append(problems, errors.New("token leeway must not be negative"))
	}
	if c.Auth.LoginWindow <= 0 || c.Auth.LoginBlockFor <= 0 || c.Auth.LoginMaxFails <= 0 {
		problems = append(problems, errors.New("login throttling settings must be positive"))
	}
	if _, err := zapcore.ParseLevel(c.Logger.Level); err != nil {
		problems = append(problems, fmt.Errorf("log level: %w", err))
	}
	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		problems = append(problems, fmt.Errorf("log format %q: want json or console", c.Logger.Format))
	}
	return errors.Join(problems...)
}

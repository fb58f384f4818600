package config

import (
	"errors"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
	"github.com/peterbourgon/ff/v3"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// EnvPrefix is the prefix ff uses when mapping flags onto environment
// variables, e.g. -http-addr <- GRADEBOOK_HTTP_ADDR.
const EnvPrefix = "GRADEBOOK"

type Config struct {
	Mode     Mode
	HTTPAddr string
	SiteID   string

	DBDriver string
	DBDSN    string

	AuthSecret string
	TokenTTL   time.Duration

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	LogLevel string // debug|info|warn|error|off
}

// FromEnv reads plain environment variables, falling back to defaults.
func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		SiteID:             envOr("SITE_ID", "local"),
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		AuthSecret:         envOr("AUTH_SECRET", "dev-secret-change-me"),
		TokenTTL:           envDuration("TOKEN_TTL", 8*time.Hour),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://coachdiary.ru"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:5173"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
	}
}

// Load layers configuration: defaults, then .env and the plain environment
// (FromEnv), then an optional JSON file given by -config, then GRADEBOOK_*
// variables, then flags.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	cfg := FromEnv()

	fs := flag.NewFlagSet("gradebook", flag.ContinueOnError)
	var (
		_       = fs.String("config", "", "config file (optional), json format")
		mode    = fs.String("mode", string(cfg.Mode), "offline|online")
		cors    = fs.String("cors-origins", "", "comma separated CORS origins, overrides the mode default")
		corsSet bool
	)
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.SiteID, "site-id", cfg.SiteID, "site id recorded in the event log")
	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "sqlite|postgres")
	fs.StringVar(&cfg.DBDSN, "db-dsn", cfg.DBDSN, "database DSN")
	fs.StringVar(&cfg.AuthSecret, "auth-secret", cfg.AuthSecret, "HMAC secret for access tokens")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "access token lifetime")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error|off")

	if err := ff.Parse(fs, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.JSONParser),
		ff.WithEnvVarPrefix(EnvPrefix),
	); err != nil {
		return Config{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "cors-origins" {
			corsSet = true
		}
	})

	cfg.Mode = Mode(*mode)
	if cfg.Mode != ModeOffline && cfg.Mode != ModeOnline {
		return Config{}, errors.New("mode must be offline or online")
	}
	if corsSet {
		origins := splitCSV(*cors)
		cfg.CORSOriginsOnline, cfg.CORSOriginsOffline = origins, origins
	}
	return cfg, nil
}

// CORSOrigins returns the allowed origins for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

// Level maps LogLevel onto gommon's levels; unknown names mean INFO.
func (c Config) Level() log.Lvl {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	return splitCSV(envOr(k, def))
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

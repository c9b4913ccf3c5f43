// Package config loads the bot configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken     string        `env:"DISCORD_TOKEN"`
	Prefix           string        `env:"PREFIX" envDefault:"$"`
	AdminUsers       []string      `env:"ADMIN_USERS"`
	AllowedGuilds    []string      `env:"ALLOWED_GUILDS"`
	RateLimitMax     int           `env:"RATE_LIMIT_MAX" envDefault:"10"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	CleanupInterval  time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	TrustGuildAdmins bool          `env:"TRUST_GUILD_ADMINS" envDefault:"false"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFile          string        `env:"LOG_FILE"`

	// EnvFile is the dotenv file that was loaded, empty if none was found.
	EnvFile string
}

// Load reads an optional dotenv file (".env" when none is given) and then
// the process environment. A missing dotenv file is not an error. Load does
// not validate; call Validate after applying command line overrides.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var cfg Config
	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil {
			cfg.EnvFile = f
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	err := env.ParseWithOptions(&cfg, env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): parseDuration,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.AdminUsers = cleanList(cfg.AdminUsers)
	cfg.AllowedGuilds = cleanList(cfg.AllowedGuilds)
	return &cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is not set"))
	}
	if c.Prefix == "" {
		errs = append(errs, errors.New("PREFIX must not be empty"))
	}
	if strings.ContainsAny(c.Prefix, " \t\n") {
		errs = append(errs, fmt.Errorf("PREFIX %q must not contain whitespace", c.Prefix))
	}
	if c.RateLimitMax < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX must be >= 0, got %d", c.RateLimitMax))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("CLEANUP_INTERVAL must be positive, got %s", c.CleanupInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsAdmin reports whether userID is listed in ADMIN_USERS.
func (c *Config) IsAdmin(userID string) bool {
	return slices.Contains(c.AdminUsers, userID)
}

// parseDuration accepts Go durations ("90s", "1h") and bare integers, which
// are read as seconds.
func parseDuration(v string) (any, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

func cleanList(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

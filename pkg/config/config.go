// Package config is a read-only key/value store for catalog settings.
//
// Keys use dotted names ("ckan.search.rows_max"). Values come from .env
// files loaded with godotenv and from the process environment, where a key
// is looked up under its upper-cased, underscore-separated form
// (CKAN_SEARCH_ROWS_MAX). The environment wins over files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Recognised keys.
const (
	KeyAPITokenNBytes = "api_token.nbytes"
	KeySearchRowsMax  = "ckan.search.rows_max"
	KeySiteURL        = "ckan.site_url"
	KeyLicensesFile   = "ckan.licenses_file"
	KeyDBPath         = "catalog.db_path"
	KeyPort           = "catalog.port"
	KeyNATSPort       = "catalog.nats_port"
	KeyNATSDataDir    = "catalog.nats_data_dir"
	KeyRedisURL       = "catalog.redis_url"
	KeyCountsTTL      = "catalog.counts_ttl"
)

// DefaultAPITokenNBytes is the number of random bytes in a generated token.
const DefaultAPITokenNBytes = 32

// ErrInvalidValue is returned when a value cannot be coerced to the
// requested type.
var ErrInvalidValue = errors.New("invalid config value")

type Config struct {
	values map[string]string
	env    func(string) (string, bool)
}

// Load reads the given .env files (missing files are skipped) and layers
// the process environment on top.
func Load(paths ...string) (*Config, error) {
	values := make(map[string]string)
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		read, err := godotenv.Read(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		for k, v := range read {
			values[k] = v
		}
	}
	return &Config{values: values, env: os.LookupEnv}, nil
}

// FromMap builds a config from literal values, ignoring the environment.
// Keys may be given in dotted or environment form.
func FromMap(values map[string]string) *Config {
	c := &Config{values: make(map[string]string, len(values)), env: func(string) (string, bool) { return "", false }}
	for k, v := range values {
		c.values[EnvName(k)] = v
	}
	return c
}

// EnvName maps a dotted key to its environment variable name.
func EnvName(key string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Lookup returns the raw value for key and whether it was set.
func (c *Config) Lookup(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	name := EnvName(key)
	if v, ok := c.env(name); ok {
		return v, true
	}
	v, ok := c.values[name]
	return v, ok
}

// Get returns the value for key, or def when unset or blank.
func (c *Config) Get(key, def string) string {
	v, ok := c.Lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// Int coerces the value for key to an integer. Unset keys report ok=false.
func (c *Config) Int(key string) (n int, ok bool, err error) {
	v, set := c.Lookup(key)
	v = strings.TrimSpace(v)
	if !set || v == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
	}
	return n, true, nil
}

// GetInt returns the integer value for key, or def when unset or malformed.
func (c *Config) GetInt(key string, def int) int {
	n, ok, err := c.Int(key)
	if !ok || err != nil {
		return def
	}
	return n
}

// GetBool accepts the forms understood by strconv.ParseBool.
func (c *Config) GetBool(key string, def bool) bool {
	v, ok := c.Lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// GetDuration parses Go duration syntax ("5m"); bare integers are seconds.
func (c *Config) GetDuration(key string, def time.Duration) time.Duration {
	v := c.Get(key, "")
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// APITokenNBytes is the random byte length of new API tokens.
func (c *Config) APITokenNBytes() int {
	n := c.GetInt(KeyAPITokenNBytes, DefaultAPITokenNBytes)
	if n <= 0 {
		return DefaultAPITokenNBytes
	}
	return n
}

// SearchRowsMax is the global cap on embedded package lists; zero means
// no cap.
func (c *Config) SearchRowsMax() int {
	n := c.GetInt(KeySearchRowsMax, 0)
	if n < 0 {
		return 0
	}
	return n
}

// SiteURL is the public base URL without a trailing slash.
func (c *Config) SiteURL() string {
	return strings.TrimRight(c.Get(KeySiteURL, ""), "/")
}

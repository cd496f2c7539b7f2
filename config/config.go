// Package config loads peer settings: defaults, then an optional YAML file, then
// HTTPRPC_* environment variables, each layer overriding the previous one.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/iamfat/http-jsonrpc/idgen"
	"github.com/iamfat/http-jsonrpc/loadbalance"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "HTTPRPC_"

type Config struct {
	// Client side.
	Endpoint       string            `yaml:"endpoint" env:"ENDPOINT"`
	Query          map[string]string `yaml:"query" env:"QUERY"`
	Timeout        time.Duration     `yaml:"timeout" env:"TIMEOUT"`
	MaxConcurrency int               `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	IDGenerator    string            `yaml:"id_generator" env:"ID_GENERATOR"`
	Balancer       string            `yaml:"balancer" env:"BALANCER"`

	// Server side.
	Listen           string        `yaml:"listen" env:"LISTEN"`
	MaxContentLength int64         `yaml:"max_content_length" env:"MAX_CONTENT_LENGTH"`
	HandlerTimeout   time.Duration `yaml:"handler_timeout" env:"HANDLER_TIMEOUT"`
	RateLimit        float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst        int           `yaml:"rate_burst" env:"RATE_BURST"`

	// Discovery. With EtcdEndpoints set, calls go to Service endpoints found in etcd
	// and a listening server announces AdvertiseURL under Service.
	EtcdEndpoints []string `yaml:"etcd_endpoints" env:"ETCD_ENDPOINTS" envSeparator:","`
	Service       string   `yaml:"service" env:"SERVICE"`
	AdvertiseURL  string   `yaml:"advertise_url" env:"ADVERTISE_URL"`
	RegistryTTL   int64    `yaml:"registry_ttl" env:"REGISTRY_TTL"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		Timeout:          5 * time.Second,
		IDGenerator:      "timestamp",
		Balancer:         "round_robin",
		MaxContentLength: 4 << 20,
		RateBurst:        1,
		RegistryTTL:      10,
		LogLevel:         "info",
	}
}

// Load reads path (skipped when empty) over the defaults, applies the environment
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	opts := env.Options{
		Prefix: EnvPrefix,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(map[string]string{}): parseQuery,
		},
	}
	if err := env.Parse(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseQuery reads "k1:v1,k2:v2" into a map.
func parseQuery(v string) (interface{}, error) {
	m := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		if pair == "" {
			continue
		}
		k, val, ok := strings.Cut(pair, ":")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid query pair %q, want key:value", pair)
		}
		m[k] = val
	}
	return m, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must not be negative, got %d", c.MaxConcurrency)
	}
	if _, ok := idgen.ByName(c.IDGenerator); !ok {
		return fmt.Errorf("unknown id_generator %q", c.IDGenerator)
	}
	if _, err := loadbalance.ByName(c.Balancer); err != nil {
		return err
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst < 1) {
		return fmt.Errorf("rate_limit %v needs a positive rate_burst, got %d", c.RateLimit, c.RateBurst)
	}
	if len(c.EtcdEndpoints) > 0 && c.Service == "" {
		return fmt.Errorf("etcd_endpoints given without service")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// NewLogger builds a production zap logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

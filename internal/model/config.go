package model

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds the complete run configuration. It is built once at startup
// and treated as read-only for the rest of the run.
type Config struct {
	DPLA      ServiceConfig `yaml:"dpla" mapstructure:"dpla"`
	Europeana ServiceConfig `yaml:"europeana" mapstructure:"europeana"`
	DBpedia   ServiceConfig `yaml:"dbpedia" mapstructure:"dbpedia"`

	HTTP   HTTPConfig   `yaml:"http" mapstructure:"http"`
	Polite PoliteConfig `yaml:"polite" mapstructure:"polite"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
}

// ServiceConfig describes one remote reference service
type ServiceConfig struct {
	Base   string `yaml:"base" mapstructure:"base"`
	APIKey string `yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// HTTPConfig controls the shared HTTP client
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"` // 0 means no client-side timeout
	UserAgent  string        `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPProxy  string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// PoliteConfig controls the delay inserted after every remote call
type PoliteConfig struct {
	Factor            float64 `yaml:"factor" mapstructure:"factor"`                           // sleep = observed latency * factor
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"` // per-host ceiling, 0 disables
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	RespectRobots     bool    `yaml:"respect_robots" mapstructure:"respect_robots"` // use robots.txt Crawl-delay as a floor
}

// CacheConfig controls the in-run presence memo
type CacheConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// OutputConfig controls console output
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultConfig returns the configuration used when nothing overrides it
func DefaultConfig() *Config {
	return &Config{
		DPLA: ServiceConfig{
			Base: "https://api.dp.la/v2/items",
		},
		Europeana: ServiceConfig{
			Base: "https://api.europeana.eu/record/v2/search.json",
		},
		DBpedia: ServiceConfig{
			Base: "https://dbpedia.org/sparql",
		},
		HTTP: HTTPConfig{
			UserAgent: "eacsupp/0.3 (+https://github.com/snac-tools/eacsupp)",
		},
		Polite: PoliteConfig{
			Factor: 1,
			Burst:  1,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
	}
}

// Validate checks that the configuration can drive a run
func (c *Config) Validate() error {
	services := []struct {
		name string
		svc  ServiceConfig
	}{
		{"dpla", c.DPLA},
		{"europeana", c.Europeana},
		{"dbpedia", c.DBpedia},
	}

	for _, s := range services {
		if s.svc.Base == "" {
			return fmt.Errorf("%s.base is not set", s.name)
		}
		u, err := url.Parse(s.svc.Base)
		if err != nil {
			return fmt.Errorf("%s.base: %w", s.name, err)
		}
		if !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("%s.base must be an absolute URL, got %q", s.name, s.svc.Base)
		}
	}

	if c.Polite.Factor < 0 {
		return fmt.Errorf("polite.factor must not be negative, got %v", c.Polite.Factor)
	}
	if c.Polite.RequestsPerSecond < 0 {
		return fmt.Errorf("polite.requests_per_second must not be negative, got %v", c.Polite.RequestsPerSecond)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative, got %v", c.HTTP.Timeout)
	}

	return nil
}

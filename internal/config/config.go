// Package config builds the run configuration from defaults, an optional
// settings file, EACSUPP_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/snac-tools/eacsupp/internal/model"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read from the working directory when no file is named
const DefaultFile = "api.ini"

// EnvPrefix prefixes every environment override, e.g. EACSUPP_DPLA_API_KEY
const EnvPrefix = "EACSUPP"

// Loader resolves a model.Config
type Loader struct {
	v    *viper.Viper
	used string
}

// NewLoader creates a loader seeded with model.DefaultConfig
func NewLoader() (*Loader, error) {
	codecs := viper.NewCodecRegistry()
	if err := codecs.RegisterCodec("ini", iniCodec{}); err != nil {
		return nil, fmt.Errorf("register ini codec: %w", err)
	}

	v := viper.NewWithOptions(viper.WithCodecRegistry(codecs))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, model.DefaultConfig())

	return &Loader{v: v}, nil
}

// BindFlag lets flag override key when it is set on the command line
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load reads path, or DefaultFile when path is empty and that file exists,
// and returns the validated configuration
func (l *Loader) Load(path string) (*model.Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		l.v.SetConfigType(formatOf(path))
		if err := l.v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		l.used = path
	case !explicit && errors.Is(err, fs.ErrNotExist):
		// defaults and environment only
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := model.DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Used returns the settings file read by Load, or "" when none was
func (l *Loader) Used() string {
	return l.used
}

// Write stores cfg at path in the format implied by its extension
func Write(path string, cfg *model.Config) error {
	var (
		data []byte
		err  error
	)
	switch formatOf(path) {
	case "yaml":
		data, err = yaml.Marshal(cfg)
	case "ini":
		data, err = iniCodec{}.Encode(toMap(cfg))
	default:
		return fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func formatOf(path string) string {
	switch ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); ext {
	case "", "ini", "cfg":
		return "ini"
	case "yml", "yaml":
		return "yaml"
	default:
		return ext
	}
}

func setDefaults(v *viper.Viper, cfg *model.Config) {
	for key, val := range flatten(toMap(cfg)) {
		v.SetDefault(key, val)
	}
}

func toMap(cfg *model.Config) map[string]any {
	return map[string]any{
		"dpla":      map[string]any{"base": cfg.DPLA.Base, "api_key": cfg.DPLA.APIKey},
		"europeana": map[string]any{"base": cfg.Europeana.Base, "api_key": cfg.Europeana.APIKey},
		"dbpedia":   map[string]any{"base": cfg.DBpedia.Base},
		"http": map[string]any{
			"timeout":     cfg.HTTP.Timeout.String(),
			"user_agent":  cfg.HTTP.UserAgent,
			"http_proxy":  cfg.HTTP.HTTPProxy,
			"https_proxy": cfg.HTTP.HTTPSProxy,
		},
		"polite": map[string]any{
			"factor":              cfg.Polite.Factor,
			"requests_per_second": cfg.Polite.RequestsPerSecond,
			"burst":               cfg.Polite.Burst,
			"respect_robots":      cfg.Polite.RespectRobots,
		},
		"cache":  map[string]any{"enabled": cfg.Cache.Enabled},
		"output": map[string]any{"verbose": cfg.Output.Verbose},
	}
}

func flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	for section, values := range m {
		for key, val := range values.(map[string]any) {
			out[section+"."+key] = val
		}
	}
	return out
}

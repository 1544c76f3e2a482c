package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileSystem abstracts file lookups so tests can inject fixtures.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// osFileSystem implements FileSystem with real file operations.
type osFileSystem struct{}

func (osFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (osFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// LoaderOption customizes Load.
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	fs         FileSystem
	configFile string
	envFile    string
}

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(o *loaderOptions) { o.fs = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(o *loaderOptions) { o.configFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(o *loaderOptions) { o.envFile = path }
}

// Load reads the engine configuration: config.yml as the base, then a
// .env file and real environment variables layered on top. Defaults are
// applied and the result validated, so a Config returned without error
// is ready to wire.
func Load(opts ...LoaderOption) (*Config, error) {
	var o loaderOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.fs == nil {
		o.fs = osFileSystem{}
	}

	cfg := &Config{}
	if err := loadInto(cfg, o); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadInto(cfg *Config, o loaderOptions) error {
	v := viper.New()

	configFile := o.configFile
	if configFile == "" {
		configFile = findFirst(o.fs,
			"./config.yml",
			"./config/config.yml",
			"./cmd/planengine/config.yml",
		)
	}
	if configFile != "" && o.fs.Exists(configFile) {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	envFile := o.envFile
	if envFile == "" {
		envFile = findFirst(o.fs, ".env.planengine", ".env")
	}
	if envFile != "" && o.fs.Exists(envFile) {
		if err := o.fs.LoadEnv(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	// Environment variables override file values. PLANENGINE_DATABASE_DSN
	// maps to database.dsn, and so on.
	bindEnv(v)

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

const envPrefix = "PLANENGINE_"

// bindEnv maps prefixed environment variables onto nested viper keys.
// The first underscore after the prefix separates the section from the
// field; the remainder keeps its underscores so multi-word fields like
// retention_ttl resolve.
func bindEnv(v *viper.Viper) {
	for _, env := range os.Environ() {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 || !strings.HasPrefix(pair[0], envPrefix) {
			continue
		}

		key := strings.ToLower(strings.TrimPrefix(pair[0], envPrefix))
		// Top-level fields (name, environment, debug) have no section.
		v.Set(key, pair[1])
		if section, field, ok := strings.Cut(key, "_"); ok {
			v.Set(section+"."+field, pair[1])
		}
	}
}

func findFirst(fs FileSystem, paths ...string) string {
	for _, p := range paths {
		if fs.Exists(p) {
			return p
		}
	}
	return ""
}

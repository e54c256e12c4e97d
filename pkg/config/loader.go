package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	prefix   string
	envFiles []string
	environ  map[string]string
}

// WithPrefix only reads variables starting with prefix, e.g. "JOBS_".
func WithPrefix(prefix string) Option {
	return func(o *loadOptions) { o.prefix = prefix }
}

// WithEnvFiles sets the dotenv files read before parsing. Missing files are
// skipped. Defaults to ".env".
func WithEnvFiles(files ...string) Option {
	return func(o *loadOptions) { o.envFiles = files }
}

// WithEnviron parses from the given variables instead of the process
// environment. Dotenv files are not read in that case.
func WithEnviron(vars map[string]string) Option {
	return func(o *loadOptions) { o.environ = vars }
}

// Load parses environment variables into a new T based on its env tags.
//
//	type Config struct {
//		RedisURL string `env:"REDIS_URL,required"`
//		Workers  int    `env:"WORKERS" envDefault:"5"`
//	}
//
//	cfg, err := config.Load[Config](config.WithPrefix("JOBS_"))
func Load[T any](opts ...Option) (T, error) {
	o := loadOptions{envFiles: []string{".env"}}
	for _, opt := range opts {
		opt(&o)
	}

	var cfg T
	envOpts := env.Options{Prefix: o.prefix}

	if o.environ != nil {
		envOpts.Environment = o.environ
	} else if err := loadEnvFiles(o.envFiles); err != nil {
		return cfg, err
	}

	if err := env.ParseWithOptions(&cfg, envOpts); err != nil {
		return cfg, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// MustLoad works like Load but panics on failure.
func MustLoad[T any](opts ...Option) T {
	cfg, err := Load[T](opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
	return cfg
}

func loadEnvFiles(files []string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	// godotenv never overrides variables already set in the process.
	if err := godotenv.Load(existing...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

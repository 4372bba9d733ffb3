package config

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const configFileENV = "CONFIG_FILE"

// Output formats understood by the chapters printer.
const (
	OutputFormatText = "text"
	OutputFormatJSON = "json"
)

type Config struct {
	LogLevel     string `koanf:"log_level" default:"info" mod:"trim,lcase" validate:"oneof=debug info warn error"`
	OutputFormat string `koanf:"output_format" default:"text" mod:"trim,lcase" validate:"oneof=text json"`
	TrackWorkers int    `koanf:"track_workers" default:"1" validate:"min=1,max=64"`
}

// New loads the config with Load and validates it.
func New() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load builds the config from defaults, then the YAML file named by CONFIG_FILE
// (if it exists), then environment variables named after the snake_case keys
// in upper case (e.g. OUTPUT_FORMAT). Values aren't validated, so callers can
// apply their own overrides first and then call Validate.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	if path := os.Getenv(configFileENV); path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, errors.Wrapf(err, "failed to load config file %s", path)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, errors.WithStack(err)
		}
	}

	err := k.Load(env.Provider("", ".", strings.ToLower), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}

	return cfg, nil
}

// NewForTest returns the default config without reading files or the
// environment.
func NewForTest() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	return cfg
}

// Validate trims and lowercases the string values, then checks them, naming
// both the environment variable and the file key of each invalid field.
func (cfg *Config) Validate() error {
	if err := modifiers.New().Struct(context.Background(), cfg); err != nil {
		return errors.WithStack(err)
	}

	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return errors.WithStack(err)
	}

	problems := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		key := toSnakeCase(fieldErr.StructField())
		problems = append(problems, fmt.Sprintf("%s (%s) failed %q with value %v",
			strings.ToUpper(key), key, fieldErr.Tag(), fieldErr.Value()))
	}
	return errors.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}

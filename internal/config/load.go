package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TRACEVIEW_"

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	environ map[string]string
	skipEnv bool
}

// WithEnvironment reads variables from m instead of the process environment.
func WithEnvironment(m map[string]string) LoadOption {
	return func(o *loadOptions) {
		o.environ = m
	}
}

// WithoutEnvironment skips the environment layer.
func WithoutEnvironment() LoadOption {
	return func(o *loadOptions) {
		o.skipEnv = true
	}
}

// Load builds the configuration from defaults, the file at path (if path is
// not empty), and the environment, then validates it. A path that does not
// exist is an error: the caller asked for it explicitly.
func Load(path string, opts ...LoadOption) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if !o.skipEnv {
		if err := cfg.mergeEnv(o.environ); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return c.mergeTOML(path, data)
	case ".yaml", ".yml":
		return c.mergeYAML(path, data)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// mergeTOML decodes data over c. Keys absent from the file keep their current
// value.
func (c *Config) mergeTOML(source string, data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		perr := &ParseError{Path: source, Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, _ = derr.Position()
		}
		return perr
	}
	return nil
}

func (c *Config) mergeYAML(source string, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return &ParseError{Path: source, Err: err}
	}
	return nil
}

func (c *Config) mergeEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return &ParseError{Path: "environment", Err: err}
	}
	return nil
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(c)
}

// Package config loads simmod.yaml and the environment variables that
// override it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// FileName is looked up in the working directory when no file is named.
const FileName = "simmod.yaml"

// Environment variables. They take precedence over the file.
const (
	CacheEnv = "SIMMOD_CACHE"
	MarchEnv = "SIMMOD_MARCH"
	CCEnv    = "CC"
)

const DefaultCC = "cc"

type Config struct {
	// Variant is "plain" or "deSolve".
	Variant     string `yaml:"variant"`
	MaxErrors   int    `yaml:"max_errors"`
	MaxName     int    `yaml:"max_name"`
	MaxEquation int    `yaml:"max_equation"`
	MaxIndex    int    `yaml:"max_index"`

	// Cache holds the compiled runtime.
	Cache string `yaml:"cache"`
	CC    string `yaml:"cc"`
	// March is passed to the C compiler as -march=<March>; empty keeps
	// the build portable.
	March string `yaml:"march"`
}

// Default leaves the limits at zero so every package applies its own
// default.
func Default() Config {
	return Config{Variant: "plain", CC: DefaultCC}
}

// Load reads path over the defaults and applies the environment. A missing
// file is not an error.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return c, fmt.Errorf("read config: %w", err)
	default:
		if err := c.decode(data); err != nil {
			return c, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	c.applyEnv()
	return c, c.Validate()
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(CacheEnv); v != "" {
		c.Cache = v
	}
	if v := os.Getenv(CCEnv); v != "" {
		c.CC = v
	}
	if v := os.Getenv(MarchEnv); v != "" {
		c.March = v
	}
	if c.Cache == "" {
		c.Cache = DefaultCache()
	}
}

// Validate rejects negative limits.
func (c Config) Validate() error {
	limits := []struct {
		name  string
		value int
	}{
		{"max_errors", c.MaxErrors},
		{"max_name", c.MaxName},
		{"max_equation", c.MaxEquation},
		{"max_index", c.MaxIndex},
	}
	for _, l := range limits {
		if l.value < 0 {
			return fmt.Errorf("%s must not be negative, got %d", l.name, l.value)
		}
	}
	return nil
}

// DefaultCache is the per-user cache directory for the platform.
func DefaultCache() string {
	homeDir, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LocalAppData"); localAppData != "" {
			return filepath.Join(localAppData, "simmod")
		}
		return filepath.Join(homeDir, "AppData", "Local", "simmod")

	case "darwin":
		return filepath.Join(homeDir, "Library", "Caches", "simmod")

	default: // Linux and others
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "simmod")
		}
		return filepath.Join(homeDir, ".cache", "simmod")
	}
}

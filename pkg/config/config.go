// Package config provides the YAML configuration schema and loader for the
// asbplayer bridge.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ch-dewez/asbplayer/pkg/anki"
)

// StorageBackend selects where the word cache persists.
type StorageBackend string

const (
	// BackendNone drops all cache writes; every pass re-derives from the deck.
	BackendNone StorageBackend = "none"
	// BackendMemory keeps the cache for the process lifetime only.
	BackendMemory StorageBackend = "memory"
	// BackendSQLite persists the cache in a local SQLite file.
	BackendSQLite StorageBackend = "sqlite"
	// BackendRedis shares the cache through a Redis instance.
	BackendRedis StorageBackend = "redis"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	switch b {
	case BackendNone, BackendMemory, BackendSQLite, BackendRedis:
		return true
	}
	return false
}

// Config is the root configuration, typically loaded from a YAML file.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Anki       anki.Settings    `yaml:"anki"`
	Storage    StorageConfig    `yaml:"storage"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
}

// ServerConfig holds network settings for the bridge.
type ServerConfig struct {
	// ListenAddr is the TCP address the bridge listens on (e.g., "127.0.0.1:8766").
	ListenAddr string `yaml:"listen_addr"`
}

// StorageConfig selects and parameterizes the word-cache backend.
type StorageConfig struct {
	Backend       StorageBackend `yaml:"backend"`
	SQLitePath    string         `yaml:"sqlite_path"`
	RedisAddr     string         `yaml:"redis_addr"`
	RedisPassword string         `yaml:"redis_password"`
	RedisDB       int            `yaml:"redis_db"`
	RedisPrefix   string         `yaml:"redis_prefix"`
}

// DictionaryConfig controls the optional JMdict definition prefill.
type DictionaryConfig struct {
	// Path to a jmdict-simplified JSON file. Empty disables prefill.
	Path string `yaml:"path"`
	// AutoDownload fetches the latest release to Path when the file is missing.
	AutoDownload bool `yaml:"auto_download"`
}

// Default returns the configuration used when no file is provided: an
// in-memory cache and AnkiConnect on its standard local port.
func Default() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: "127.0.0.1:8766"},
		Anki: anki.Settings{
			ConnectURL: "http://127.0.0.1:8765",
		},
		Storage: StorageConfig{Backend: BackendMemory},
	}
}

// Load reads the YAML configuration file at path and returns a validated
// Config. It is a convenience wrapper around LoadFromReader.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults for omitted
// values, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Anki.ConnectURL == "" {
		errs = append(errs, errors.New("anki.connect_url is required"))
	}
	if !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: none, memory, sqlite, redis", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == BackendSQLite && cfg.Storage.SQLitePath == "" {
		errs = append(errs, errors.New("storage.sqlite_path is required when storage.backend is sqlite"))
	}
	if cfg.Storage.Backend == BackendRedis && cfg.Storage.RedisAddr == "" {
		errs = append(errs, errors.New("storage.redis_addr is required when storage.backend is redis"))
	}
	if cfg.Dictionary.AutoDownload && cfg.Dictionary.Path == "" {
		errs = append(errs, errors.New("dictionary.path is required when dictionary.auto_download is set"))
	}

	return errors.Join(errs...)
}

package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings are runtime settings read from an optional settings file and
// GRIDCI_* environment variables. Nested keys use an underscore in the
// variable name, e.g. GRIDCI_STORE_BACKEND.
type Settings struct {
	Namespace        string           `mapstructure:"namespace"`
	WorkspaceRoot    string           `mapstructure:"workspace_root"`
	ArchiveRoot      string           `mapstructure:"archive_root"`
	LogRoot          string           `mapstructure:"log_root"`
	DefaultTimeout   time.Duration    `mapstructure:"default_timeout"`
	MaxParallel      int              `mapstructure:"max_parallel"`
	Store            StoreSettings    `mapstructure:"store"`
	Artifacts        ArtifactSettings `mapstructure:"artifacts"`
	// NextBuildNumbers maps job names to the next build number to allocate.
	// Applied to stores that support seeding; lower values are ignored.
	NextBuildNumbers map[string]int   `mapstructure:"next_build_numbers"`
}

// StoreSettings select the run result store.
type StoreSettings struct {
	// Backend is memory, redis or postgres.
	Backend     string `mapstructure:"backend"`
	RedisURL    string `mapstructure:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// ArtifactSettings select the repository that promotions publish to.
type ArtifactSettings struct {
	// Backend is filesystem, http or sftp.
	Backend  string        `mapstructure:"backend"`
	Root     string        `mapstructure:"root"`
	URL      string        `mapstructure:"url"`
	Addr     string        `mapstructure:"addr"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	KeyFile  string        `mapstructure:"key_file"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	ArtifactsFileSystem = "filesystem"
	ArtifactsHTTP       = "http"
	ArtifactsSFTP       = "sftp"
)

var defaults = map[string]any{
	"namespace":          "",
	"workspace_root":     ".gridci/workspace",
	"archive_root":       ".gridci/archive",
	"log_root":           ".gridci/logs",
	"default_timeout":    time.Duration(0),
	"max_parallel":       0,
	"store.backend":      StoreMemory,
	"store.redis_url":    "",
	"store.redis_prefix": "gridci",
	"store.postgres_url": "",
	"artifacts.backend":  ArtifactsFileSystem,
	"artifacts.root":     ".gridci/repository",
	"artifacts.url":      "",
	"artifacts.addr":     "",
	"artifacts.username": "",
	"artifacts.password": "",
	"artifacts.key_file": "",
	"artifacts.timeout":  30 * time.Second,
}

// LoadSettings reads settings from defaults, then file (if not empty, or
// ./gridci.{yaml,json,toml} when present), then the environment.
func LoadSettings(file string) (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("GRIDCI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("gridci")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("load settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return s, s.validate()
}

func (s Settings) validate() error {
	var errs []error
	switch s.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if s.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required for the redis backend"))
		}
	case StorePostgres:
		if s.Store.PostgresURL == "" {
			errs = append(errs, errors.New("store.postgres_url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", s.Store.Backend))
	}

	switch s.Artifacts.Backend {
	case ArtifactsFileSystem:
		if s.Artifacts.Root == "" {
			errs = append(errs, errors.New("artifacts.root is required for the filesystem backend"))
		}
	case ArtifactsHTTP:
		if s.Artifacts.URL == "" {
			errs = append(errs, errors.New("artifacts.url is required for the http backend"))
		}
	case ArtifactsSFTP:
		if s.Artifacts.Addr == "" || s.Artifacts.Username == "" {
			errs = append(errs, errors.New("artifacts.addr and artifacts.username are required for the sftp backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown artifacts backend %q", s.Artifacts.Backend))
	}

	if s.DefaultTimeout < 0 {
		errs = append(errs, errors.New("default_timeout cannot be negative"))
	}
	if s.MaxParallel < 0 {
		errs = append(errs, errors.New("max_parallel cannot be negative"))
	}
	for job, n := range s.NextBuildNumbers {
		if n < 1 {
			errs = append(errs, fmt.Errorf("next_build_numbers.%s must be at least 1", job))
		}
	}
	return errors.Join(errs...)
}

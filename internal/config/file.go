package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the YAML form of the configuration. Values missing from the file keep
// the environment backed defaults and environment variables override the file.
type File struct {
	AppName string        `yaml:"app_name"`
	Env     string        `yaml:"env"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig describes how to reach the issuing service.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
	RefreshSkew    time.Duration `yaml:"refresh_skew"`
}

// StorageConfig describes the durable credential store.
type StorageConfig struct {
	DataFolder    string `yaml:"data_folder"`
	Path          string `yaml:"path"`
	CredentialKey string `yaml:"credential_key"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

var _ Config = (*File)(nil)

// Load reads the YAML file at path, applies environment overrides and validates the result.
// An empty path yields the defaults with environment overrides applied.
func Load(path string) (*File, error) {
	cfg := defaultFile()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultFile() *File {
	env := EnvVars{}
	return &File{
		AppName: env.GetAppName(),
		Env:     defaultEnv,
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: DefaultRequestTimeout,
			RefreshTimeout: DefaultRefreshTimeout,
		},
		Storage: StorageConfig{
			DataFolder: defaultFolder,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func applyEnvOverrides(cfg *File) {
	if v := os.Getenv(appNameVar); v != "" {
		cfg.AppName = v
	}
	if v := os.Getenv(envVar); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv(baseURLVar); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv(folderEnvVar); v != "" {
		cfg.Storage.DataFolder = v
	}
	if v := os.Getenv(logLevelVar); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(credentialKeyVar); v != "" {
		cfg.Storage.CredentialKey = v
	}
	cfg.API.RequestTimeout = GetEnvDuration(requestTimeoutVar, cfg.API.RequestTimeout)
	cfg.API.RefreshTimeout = GetEnvDuration(refreshTimeoutVar, cfg.API.RefreshTimeout)
	cfg.API.RefreshSkew = GetEnvDuration(refreshSkewVar, cfg.API.RefreshSkew)
}

// Validate checks the configuration for values the session subsystem cannot work with.
func (f *File) Validate() error {
	base := strings.TrimSpace(f.API.BaseURL)
	if base == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("api.base_url must start with http:// or https://")
	}
	if f.API.RequestTimeout <= 0 {
		return fmt.Errorf("api.request_timeout must be positive")
	}
	if f.API.RefreshTimeout <= 0 {
		return fmt.Errorf("api.refresh_timeout must be positive")
	}
	if f.API.RefreshSkew < 0 {
		return fmt.Errorf("api.refresh_skew must not be negative")
	}
	if key := f.Storage.CredentialKey; key != "" {
		raw, err := hex.DecodeString(key)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("storage.credential_key must be 64 hex characters")
		}
	}
	return nil
}

func (f *File) GetAppName() string { return f.AppName }

func (f *File) GetBaseURL() string { return strings.TrimRight(f.API.BaseURL, "/") }

func (f *File) GetDataFolder() string { return f.Storage.DataFolder }

func (f *File) GetLogLevel() string { return f.Logging.Level }

func (f *File) GetEnv() string { return f.Env }

func (f *File) GetRequestTimeout() time.Duration { return f.API.RequestTimeout }

func (f *File) GetRefreshTimeout() time.Duration { return f.API.RefreshTimeout }

func (f *File) GetRefreshSkew() time.Duration { return f.API.RefreshSkew }

func (f *File) GetCredentialDBPath() string {
	if f.Storage.Path != "" {
		return f.Storage.Path
	}
	return filepath.Join(f.Storage.DataFolder, credentialDBName)
}

func (f *File) GetCredentialKey() string { return f.Storage.CredentialKey }

package config

import "time"

type Config interface {
	EnvConfig
	SessionConfig
	SecurityConfig
}

type EnvConfig interface {
	GetAppName() string
	GetBaseURL() string
	GetDataFolder() string
	GetLogLevel() string
	GetEnv() string
}

type SessionConfig interface {
	GetRequestTimeout() time.Duration
	GetRefreshTimeout() time.Duration
	GetRefreshSkew() time.Duration
	GetCredentialDBPath() string
}

type mainConfig struct {
	EnvVars
	Session
	Security
}

// New returns the environment backed configuration.
func New() Config {
	return mainConfig{}
}

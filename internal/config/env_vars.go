package config

import (
	"os"
	"strings"
	"time"
)

const (
	appNameVar    = "RETAIL_APP_NAME"
	baseURLVar    = "RETAIL_API_BASE_URL"
	folderEnvVar  = "RETAIL_DATA_FOLDER"
	logLevelVar   = "RETAIL_LOG_LEVEL"
	envVar        = "RETAIL_ENV"
	defaultEnv    = "DEV"
	defaultFolder = "./data"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Retail Admin")
}

// GetBaseURL returns the issuing service base URL without a trailing slash
// (e.g., "https://api.example.com").
func (EnvVars) GetBaseURL() string {
	return strings.TrimRight(GetEnv(baseURLVar, "http://localhost:8000"), "/")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, defaultFolder)
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, defaultEnv)
}

func GetEnv(envVar, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvDuration reads a positive duration such as "30s", falling back to defaultValue
// when the variable is unset or unparsable.
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

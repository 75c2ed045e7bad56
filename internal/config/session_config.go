package config

import (
	"path/filepath"
	"time"
)

const (
	requestTimeoutVar = "RETAIL_REQUEST_TIMEOUT"
	refreshTimeoutVar = "RETAIL_REFRESH_TIMEOUT"
	refreshSkewVar    = "RETAIL_REFRESH_SKEW"

	DefaultRequestTimeout = 30 * time.Second
	DefaultRefreshTimeout = 15 * time.Second

	credentialDBName = "credentials.db"
)

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetRequestTimeout() time.Duration {
	return GetEnvDuration(requestTimeoutVar, DefaultRequestTimeout)
}

func (Session) GetRefreshTimeout() time.Duration {
	return GetEnvDuration(refreshTimeoutVar, DefaultRefreshTimeout)
}

// GetRefreshSkew returns how close to expiry an access token may get before it is
// refreshed ahead of the request. Zero disables proactive refresh.
func (Session) GetRefreshSkew() time.Duration {
	return GetEnvDuration(refreshSkewVar, 0)
}

func (Session) GetCredentialDBPath() string {
	return filepath.Join(EnvVars{}.GetDataFolder(), credentialDBName)
}

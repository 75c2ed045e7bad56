package config

type SecurityConfig interface {
	// GetCredentialKey returns the hex encoded 32 byte key used to seal persisted
	// credentials. Empty means credentials are stored unsealed.
	GetCredentialKey() string
}

const credentialKeyVar = "RETAIL_CREDENTIAL_KEY"

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetCredentialKey() string {
	return GetEnv(credentialKeyVar, "")
}

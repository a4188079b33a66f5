package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "BAIDUPAN_GO_CONFIG"
	EnvToken        = "BAIDUPAN_GO_TOKEN"
	EnvClientID     = "BAIDUPAN_GO_CLIENT_ID"
	EnvClientSecret = "BAIDUPAN_GO_CLIENT_SECRET"
)

// EnvOverrides holds values read from environment variables.
type EnvOverrides struct {
	ConfigPath   string // BAIDUPAN_GO_CONFIG: config file path
	AccessToken  string // BAIDUPAN_GO_TOKEN: bypasses the token file
	ClientID     string // BAIDUPAN_GO_CLIENT_ID
	ClientSecret string // BAIDUPAN_GO_CLIENT_SECRET
}

// ReadEnvOverrides reads the override variables from the environment.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		AccessToken:  os.Getenv(EnvToken),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
	}
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvToken, "tok")
	t.Setenv(EnvClientID, "cid")
	t.Setenv(EnvClientSecret, "")

	o := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", o.ConfigPath)
	assert.Equal(t, "tok", o.AccessToken)
	assert.Equal(t, "cid", o.ClientID)
	assert.Empty(t, o.ClientSecret)
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "BAIDUPAN_GO_CONFIG", EnvConfig)
	assert.Equal(t, "BAIDUPAN_GO_TOKEN", EnvToken)
}

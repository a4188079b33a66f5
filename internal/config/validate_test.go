package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_ChunkSize(t *testing.T) {
	tests := []struct {
		size string
		ok   bool
	}{
		{"4MiB", true},
		{"8MiB", true},
		{"32MiB", true},
		{"4MB", false},
		{"6MiB", false},
		{"64MiB", false},
		{"0", false},
		{"huge", false},
	}

	for _, tt := range tests {
		errs := validateChunkSize(tt.size)
		assert.Equal(t, tt.ok, len(errs) == 0, tt.size)
	}
}

func TestValidate_Server(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.PCSURL = "pcs.example"
	cfg.Server.OpenAPIURL = "ftp://openapi.example"

	err := Validate(cfg)
	assert.ErrorContains(t, err, "server.pcs_url")
	assert.ErrorContains(t, err, "server.openapi_url")
}

func TestValidate_Network(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network.Timeout = "10ms"
	assert.ErrorContains(t, Validate(cfg), "network.timeout")

	cfg.Network.Timeout = "soon"
	assert.ErrorContains(t, Validate(cfg), "network.timeout")
}

func TestValidate_BandwidthAndLogging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transfers.BandwidthLimit = "fast"
	cfg.Logging.LogFormat = "xml"

	err := Validate(cfg)
	assert.ErrorContains(t, err, "bandwidth_limit")
	assert.ErrorContains(t, err, "log_format")

	cfg = DefaultConfig()
	cfg.Transfers.BandwidthLimit = "2MiB/s"
	assert.NoError(t, Validate(cfg))
}

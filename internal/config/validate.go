package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/tonimelisma/baidupan-go/internal/xpan"
)

// Validation range constants.
const (
	chunkAlignBytes   = 4 * mebibyte
	maxChunkBytes     = 32 * mebibyte
	minParallelSlices = 1
	maxParallelSlices = 16
	minTimeout        = 1 * time.Second
)

// Validate checks all configuration values and returns every error found,
// so a user can fix them in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	for _, f := range []struct{ key, val string }{
		{"pan_url", s.PanURL},
		{"pcs_url", s.PCSURL},
		{"openapi_url", s.OpenAPIURL},
	} {
		u, err := url.Parse(f.val)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.%s: must be an absolute http(s) URL, got %q", f.key, f.val))
		}
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		return []error{fmt.Errorf("network.timeout: %w", err)}
	}

	if d < minTimeout {
		return []error{fmt.Errorf("network.timeout: must be at least %s, got %s", minTimeout, d)}
	}

	return nil
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	errs = append(errs, validateChunkSize(t.ChunkSize)...)

	if t.ParallelSlices < minParallelSlices || t.ParallelSlices > maxParallelSlices {
		errs = append(errs, fmt.Errorf("transfers.parallel_slices: must be between %d and %d, got %d",
			minParallelSlices, maxParallelSlices, t.ParallelSlices))
	}

	if _, err := ParseRate(t.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("transfers.bandwidth_limit: %w", err))
	}

	if _, err := xpan.ParseRenamePolicy(t.RenamePolicy); err != nil {
		errs = append(errs, fmt.Errorf("transfers.rename_policy: %w", err))
	}

	return errs
}

func validateChunkSize(s string) []error {
	n, err := ParseSize(s)
	if err != nil {
		return []error{fmt.Errorf("transfers.chunk_size: %w", err)}
	}

	if n <= 0 || n > maxChunkBytes || n%chunkAlignBytes != 0 {
		return []error{fmt.Errorf("transfers.chunk_size: must be a multiple of 4MiB up to 32MiB, got %q", s)}
	}

	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

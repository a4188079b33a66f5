package config

import "github.com/tonimelisma/baidupan-go/internal/xpan"

// Default values for configuration options: layer 0 of the override chain.
const (
	defaultTimeout        = "120s"
	defaultChunkSize      = "4MiB"
	defaultParallelSlices = 1
	defaultBandwidthLimit = "0"
	defaultRenamePolicy   = "rename"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	server := xpan.DefaultServerConfig()

	return &Config{
		App: AppConfig{
			RedirectURI: xpan.DefaultRedirectURI,
			Scope:       xpan.DefaultScope,
		},
		Server: ServerConfig{
			PanURL:     server.PanURL,
			PCSURL:     server.PCSURL,
			OpenAPIURL: server.OpenAPIURL,
		},
		Network: NetworkConfig{
			Timeout:   defaultTimeout,
			UserAgent: xpan.DefaultUserAgent,
		},
		Transfers: TransfersConfig{
			ChunkSize:      defaultChunkSize,
			ParallelSlices: defaultParallelSlices,
			BandwidthLimit: defaultBandwidthLimit,
			RenamePolicy:   defaultRenamePolicy,
			Journal:        true,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}

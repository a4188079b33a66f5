// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for baidupan-go. Values resolve through
// four layers: defaults, config file, environment, CLI flags.
package config

// Config is the top-level configuration parsed from a TOML file.
type Config struct {
	App       AppConfig       `toml:"app"`
	Server    ServerConfig    `toml:"server"`
	Network   NetworkConfig   `toml:"network"`
	Transfers TransfersConfig `toml:"transfers"`
	Logging   LoggingConfig   `toml:"logging"`
}

// AppConfig identifies the registered application used for authorization.
type AppConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	Scope        string `toml:"scope"`
}

// ServerConfig holds the base URLs of the three provider services. They are
// only changed to point at a test server.
type ServerConfig struct {
	PanURL     string `toml:"pan_url"`
	PCSURL     string `toml:"pcs_url"`
	OpenAPIURL string `toml:"openapi_url"`
}

// NetworkConfig controls the HTTP client.
type NetworkConfig struct {
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
	Debug     bool   `toml:"debug"`
}

// TransfersConfig controls uploads and downloads. chunk_size must be a
// multiple of 4 MiB; accounts without membership only accept 4 MiB.
type TransfersConfig struct {
	ChunkSize      string `toml:"chunk_size"`
	ParallelSlices int    `toml:"parallel_slices"`
	BandwidthLimit string `toml:"bandwidth_limit"`
	RenamePolicy   string `toml:"rename_policy"`
	Journal        bool   `toml:"journal"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from an explicit zero value.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	Debug      *bool  // --debug flag
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tonimelisma/baidupan-go/internal/xpan"
)

// Load reads, parses, and validates a TOML config file. Unknown keys are
// fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists, otherwise returns defaults.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolved is the effective configuration after every override layer.
type Resolved struct {
	Config

	ConfigPath  string
	TokenPath   string
	JournalPath string

	// AccessToken is set when the environment supplies a token directly.
	AccessToken string
}

// Resolve loads configuration and applies the override chain: defaults,
// config file, environment variables, CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.ClientID != "" {
		cfg.App.ClientID = env.ClientID
	}

	if env.ClientSecret != "" {
		cfg.App.ClientSecret = env.ClientSecret
	}

	if cli.Debug != nil {
		cfg.Network.Debug = *cli.Debug
	}

	return &Resolved{
		Config:      *cfg,
		ConfigPath:  cfgPath,
		TokenPath:   DefaultTokenPath(),
		JournalPath: DefaultJournalPath(),
		AccessToken: env.AccessToken,
	}, nil
}

// ChunkBytes returns the validated chunk size in bytes.
func (r *Resolved) ChunkBytes() int64 {
	n, err := ParseSize(r.Transfers.ChunkSize)
	if err != nil || n <= 0 {
		return chunkAlignBytes
	}

	return n
}

// Rename returns the configured rename policy.
func (r *Resolved) Rename() xpan.RenamePolicy {
	p, err := xpan.ParseRenamePolicy(r.Transfers.RenamePolicy)
	if err != nil {
		return xpan.RenameOnConflict
	}

	return p
}

// Credentials returns the application credentials for authorization calls.
func (r *Resolved) Credentials() xpan.App {
	return xpan.App{
		ClientID:     r.Config.App.ClientID,
		ClientSecret: r.Config.App.ClientSecret,
		RedirectURI:  r.Config.App.RedirectURI,
		Scope:        r.Config.App.Scope,
	}
}

// ClientConfig builds the xpan client configuration for accessToken.
func (r *Resolved) ClientConfig(accessToken string) xpan.Config {
	cfg := xpan.NewConfig(accessToken)
	cfg.Server = xpan.ServerConfig{
		PanURL:     r.Server.PanURL,
		PCSURL:     r.Server.PCSURL,
		OpenAPIURL: r.Server.OpenAPIURL,
	}
	cfg.UserAgent = r.Network.UserAgent
	cfg.Debug = r.Network.Debug

	if d, err := time.ParseDuration(r.Network.Timeout); err == nil {
		cfg.Timeout = d
	}

	return cfg
}

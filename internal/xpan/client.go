package xpan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Default endpoints and client settings.
const (
	DefaultPanURL     = "https://pan.baidu.com"
	DefaultPCSURL     = "https://d.pcs.baidu.com"
	DefaultOpenAPIURL = "https://openapi.baidu.com"
	DefaultTimeout    = 120 * time.Second
	DefaultUserAgent  = "baidupan-go/0.1"

	// downloadUserAgent is mandated by the provider for dlink downloads;
	// requests with any other agent are rejected.
	downloadUserAgent = "pan.baidu.com"

	// openAPITag identifies SDK traffic and is sent on every request.
	openAPITag = "xpansdk"
)

// ServerConfig holds the base URLs of the three remote services.
type ServerConfig struct {
	PanURL     string // primary file API
	PCSURL     string // slice upload transfer API
	OpenAPIURL string // OAuth API
}

// DefaultServerConfig returns the production endpoints.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		PanURL:     DefaultPanURL,
		PCSURL:     DefaultPCSURL,
		OpenAPIURL: DefaultOpenAPIURL,
	}
}

// Config is the immutable per-client configuration. A Client copies it at
// construction; changing a Config afterwards has no effect on the Client.
type Config struct {
	AccessToken string // NEVER log
	Server      ServerConfig
	Timeout     time.Duration
	UserAgent   string
	Debug       bool
}

// NewConfig returns a Config with production endpoints and default timeout
// and user agent.
func NewConfig(accessToken string) Config {
	return Config{
		AccessToken: accessToken,
		Server:      DefaultServerConfig(),
		Timeout:     DefaultTimeout,
		UserAgent:   DefaultUserAgent,
	}
}

// withDefaults fills zero fields with defaults.
func (c Config) withDefaults() Config {
	def := DefaultServerConfig()

	if c.Server.PanURL == "" {
		c.Server.PanURL = def.PanURL
	}

	if c.Server.PCSURL == "" {
		c.Server.PCSURL = def.PCSURL
	}

	if c.Server.OpenAPIURL == "" {
		c.Server.OpenAPIURL = def.OpenAPIURL
	}

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	return c
}

// service selects one of the three base URLs.
type service int

const (
	servicePan service = iota
	servicePCS
	serviceOpenAPI
)

// Client is an HTTP client for the xpan API. It is safe for concurrent use:
// its only state is the read-only Config and the shared *http.Client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. A nil httpClient gets a fresh client with
// cfg.Timeout; a non-nil one without its own timeout is copied and given
// cfg.Timeout, so the single overall timeout applies to every request.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	cfg = cfg.withDefaults()

	var hc http.Client
	if httpClient != nil {
		hc = *httpClient
	}

	if hc.Timeout == 0 {
		hc.Timeout = cfg.Timeout
	}

	return &Client{
		cfg:        cfg,
		httpClient: &hc,
		logger:     logger,
	}
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// baseURL returns the base URL for a service.
func (c *Client) baseURL(s service) string {
	switch s {
	case servicePCS:
		return c.cfg.Server.PCSURL
	case serviceOpenAPI:
		return c.cfg.Server.OpenAPIURL
	default:
		return c.cfg.Server.PanURL
	}
}

// request describes one outgoing call before it is turned into an
// *http.Request.
type request struct {
	method  string
	service service
	path    string // appended to the service base URL; ignored when rawURL is set
	rawURL  string // absolute URL (download links)
	params  url.Values
	body    payload

	// download requests carry the provider-mandated user agent.
	download bool
	// noToken omits access_token (OAuth endpoints).
	noToken bool
	// header holds extra request headers (Range).
	header http.Header
}

// resolveURL builds the final URL with all query parameters, including the
// access token and SDK tag.
func (c *Client) resolveURL(r *request) (*url.URL, error) {
	raw := r.rawURL
	if raw == "" {
		raw = c.baseURL(r.service) + r.path
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, paramError("parsing URL: %v", err)
	}

	q := u.Query()
	for k, vs := range r.params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	if !r.download && q.Get("openapi") == "" {
		q.Set("openapi", openAPITag)
	}

	if !r.noToken {
		q.Set("access_token", c.cfg.AccessToken)
	}

	u.RawQuery = q.Encode()

	return u, nil
}

// newHTTPRequest builds the *http.Request for r.
func (c *Client) newHTTPRequest(ctx context.Context, r *request) (*http.Request, error) {
	u, err := c.resolveURL(r)
	if err != nil {
		return nil, err
	}

	var (
		body        io.Reader = http.NoBody
		contentType string
	)

	if r.body != nil {
		body, contentType, err = r.body.encode()
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, paramError("creating request: %v", err)
	}

	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if r.download {
		req.Header.Set("User-Agent", downloadUserAgent)
	} else {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	if c.cfg.Debug {
		attrs := []any{
			slog.String("method", r.method),
			slog.String("url", r.loggableURL(u)),
		}

		if r.body != nil {
			attrs = append(attrs, slog.String("payload", r.body.String()))
		}

		c.logger.Debug("xpan request", attrs...)
	}

	return req, nil
}

// do sends r and returns the raw response. Only transport failures are
// errors here; status handling belongs to the caller. The caller closes the
// response body.
func (c *Client) do(ctx context.Context, r *request) (*http.Response, error) {
	req, err := c.newHTTPRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error embeds the full URL, credentials included.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = r.loggableURL(req.URL)
		}

		c.logger.Warn("request failed",
			slog.String("method", r.method),
			slog.String("path", r.logPath()),
			slog.String("error", err.Error()),
		)

		return nil, transportError(r.method+" "+r.logPath(), err)
	}

	c.logger.Debug("request completed",
		slog.String("method", r.method),
		slog.String("path", r.logPath()),
		slog.Int("status", resp.StatusCode),
	)

	return resp, nil
}

// logPath is a loggable identifier for the request: the API path, or just
// "download" for signed links, which must never be logged.
func (r *request) logPath() string {
	if r.rawURL != "" {
		return "download"
	}

	return r.path
}

// loggableURL renders u for logs and errors. Signed download links are
// credentials in their own right, so only their host and path are kept.
func (r *request) loggableURL(u *url.URL) string {
	if r.rawURL != "" {
		return u.Scheme + "://" + u.Host + u.Path
	}

	return redactURL(u)
}

// call sends r, reads the full body, and decodes it as T.
func call[T any](ctx context.Context, c *Client, r *request) (*T, error) {
	resp, err := c.do(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("reading response body", err)
	}

	if c.cfg.Debug {
		c.logger.Debug("xpan response",
			slog.String("path", r.logPath()),
			slog.Int("status", resp.StatusCode),
			slog.Int("bytes", len(body)),
		)
	}

	out, err := decodeResponse[T](resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.logPath(), err)
	}

	return out, nil
}

// secretParams are query parameters masked in debug logs.
var secretParams = []string{"access_token", "refresh_token", "client_secret", "code"}

// redactURL renders u with credentials masked.
func redactURL(u *url.URL) string {
	cp := *u
	q := cp.Query()

	for _, k := range secretParams {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}

	cp.RawQuery = q.Encode()

	return cp.String()
}

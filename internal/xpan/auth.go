package xpan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultScope grants account info and file access.
const DefaultScope = "basic,netdisk"

// DefaultRedirectURI is the out-of-band redirect: the provider shows the
// authorization code on its own page for the user to paste.
const DefaultRedirectURI = "oob"

const (
	tokenPath      = "/oauth/2.0/token"
	deviceCodePath = "/oauth/2.0/device/code"
	authorizePath  = "/oauth/2.0/authorize"
)

// OAuth error codes returned while a device authorization is still open.
const (
	oauthAuthorizationPending = "authorization_pending"
	oauthSlowDown             = "slow_down"
)

// slowDownStep is added to the poll interval each time the provider answers
// slow_down.
const slowDownStep = 5 * time.Second

// ErrDeviceCodeExpired is returned by PollDeviceToken when the user did not
// authorize before the device code expired.
var ErrDeviceCodeExpired = fmt.Errorf("%w: device code expired", ErrAPI)

// App identifies the registered application for the OAuth flows.
type App struct {
	ClientID     string
	ClientSecret string // NEVER log
	RedirectURI  string // default DefaultRedirectURI
	Scope        string // default DefaultScope
}

func (a App) redirectURI() string {
	if a.RedirectURI == "" {
		return DefaultRedirectURI
	}

	return a.RedirectURI
}

func (a App) scope() string {
	if a.Scope == "" {
		return DefaultScope
	}

	return a.Scope
}

// TokenResponse is the provider's answer to every token grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`

	// obtained anchors ExpiresIn; set when the response is received.
	obtained time.Time
}

// Token converts the response to an *oauth2.Token with an absolute expiry,
// the form the token file stores.
func (t *TokenResponse) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}

	if t.ExpiresIn > 0 {
		base := t.obtained
		if base.IsZero() {
			base = time.Now()
		}

		tok.Expiry = base.Add(time.Duration(t.ExpiresIn) * time.Second)
	}

	return tok.WithExtra(map[string]any{"scope": t.Scope})
}

// DeviceCode is the first step of the device flow. The user visits
// VerificationURL (or scans QRCodeURL) and enters UserCode.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	QRCodeURL       string `json:"qrcode_url"`
	ExpiresIn       int64  `json:"expires_in"`
	Interval        int64  `json:"interval"`
}

// oauthConfig describes the provider's endpoints in oauth2 terms.
func (c *Client) oauthConfig(app App) *oauth2.Config {
	base := c.cfg.Server.OpenAPIURL

	return &oauth2.Config{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		RedirectURL:  app.redirectURI(),
		// The provider takes one comma-separated scope value.
		Scopes: []string{app.scope()},
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + authorizePath,
			TokenURL:  base + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizeURL returns the page the user opens to grant access in the
// authorization code flow.
func (c *Client) AuthorizeURL(app App, state string) string {
	return c.oauthConfig(app).AuthCodeURL(state, oauth2.SetAuthURLParam("display", "page"))
}

// CodeToToken exchanges an authorization code for a token.
func (c *Client) CodeToToken(ctx context.Context, app App, code string) (*TokenResponse, error) {
	if code == "" {
		return nil, paramError("authorization code is empty")
	}

	return c.tokenGrant(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {app.ClientID},
		"client_secret": {app.ClientSecret},
		"redirect_uri":  {app.redirectURI()},
	})
}

// DeviceCode starts the device flow.
func (c *Client) DeviceCode(ctx context.Context, app App) (*DeviceCode, error) {
	if app.ClientID == "" {
		return nil, paramError("client id is empty")
	}

	return call[DeviceCode](ctx, c, &request{
		method:  http.MethodGet,
		service: serviceOpenAPI,
		path:    deviceCodePath,
		noToken: true,
		params: url.Values{
			"response_type": {"device_code"},
			"client_id":     {app.ClientID},
			"scope":         {app.scope()},
		},
	})
}

// DeviceToken makes one attempt to redeem a device code.
func (c *Client) DeviceToken(ctx context.Context, app App, deviceCode string) (*TokenResponse, error) {
	if deviceCode == "" {
		return nil, paramError("device code is empty")
	}

	return c.tokenGrant(ctx, url.Values{
		"grant_type":    {"device_token"},
		"code":          {deviceCode},
		"client_id":     {app.ClientID},
		"client_secret": {app.ClientSecret},
	})
}

// RefreshToken trades a refresh token for a new token pair. The old refresh
// token is invalidated by the provider.
func (c *Client) RefreshToken(ctx context.Context, app App, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, paramError("refresh token is empty")
	}

	return c.tokenGrant(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {app.ClientID},
		"client_secret": {app.ClientSecret},
	})
}

func (c *Client) tokenGrant(ctx context.Context, params url.Values) (*TokenResponse, error) {
	obtained := time.Now()

	tok, err := call[TokenResponse](ctx, c, &request{
		method:  http.MethodGet,
		service: serviceOpenAPI,
		path:    tokenPath,
		noToken: true,
		params:  params,
	})
	if err != nil {
		return nil, err
	}

	if tok.AccessToken == "" {
		return nil, decodeError("token response", errors.New("missing access_token"))
	}

	tok.obtained = obtained

	c.logger.Info("token granted",
		slog.String("grant_type", params.Get("grant_type")),
		slog.Int64("expires_in", tok.ExpiresIn),
	)

	return tok, nil
}

// PollDeviceToken polls DeviceToken at the provider's interval until the
// user authorizes, the code expires, or ctx is done. authorization_pending
// keeps polling; slow_down also lengthens the interval.
func (c *Client) PollDeviceToken(ctx context.Context, app App, dc *DeviceCode) (*TokenResponse, error) {
	if dc == nil || dc.DeviceCode == "" {
		return nil, paramError("device code is empty")
	}

	interval := time.Duration(dc.Interval) * time.Second
	if interval <= 0 {
		interval = slowDownStep
	}

	var deadline <-chan time.Time
	if dc.ExpiresIn > 0 {
		timer := time.NewTimer(time.Duration(dc.ExpiresIn) * time.Second)
		defer timer.Stop()

		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("xpan: device authorization canceled: %w", ctx.Err())
		case <-deadline:
			return nil, ErrDeviceCodeExpired
		case <-time.After(interval):
		}

		tok, err := c.DeviceToken(ctx, app, dc.DeviceCode)
		if err == nil {
			return tok, nil
		}

		switch OAuthErrorCode(err) {
		case oauthAuthorizationPending:
			c.logger.Debug("device authorization pending")
		case oauthSlowDown:
			interval += slowDownStep
			c.logger.Debug("device authorization slow down", slog.Duration("interval", interval))
		default:
			return nil, err
		}
	}
}

// OAuthErrorCode extracts the OAuth "error" field from an *APIError whose
// message is an OAuth error body, e.g. "authorization_pending" or
// "invalid_grant". It returns "" for any other error.
func OAuthErrorCode(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return ""
	}

	var body struct {
		Error string `json:"error"`
	}

	if json.Unmarshal([]byte(apiErr.Message), &body) != nil {
		return ""
	}

	return body.Error
}

// RefreshTokenSource returns an oauth2.TokenSource that renews tok through
// RefreshToken when it expires. onRefresh, when non-nil, is called with every
// renewed token so it can be persisted. The source is safe for concurrent
// use.
func (c *Client) RefreshTokenSource(
	ctx context.Context, app App, tok *oauth2.Token, onRefresh func(*oauth2.Token) error,
) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(tok, &refreshSource{
		ctx:       ctx,
		client:    c,
		app:       app,
		refresh:   tok.RefreshToken,
		onRefresh: onRefresh,
	})
}

// refreshSource mints a new token on every call; ReuseTokenSource only calls
// it once the cached token is no longer valid.
type refreshSource struct {
	ctx       context.Context //nolint:containedctx // oauth2.TokenSource has no ctx parameter
	client    *Client
	app       App
	onRefresh func(*oauth2.Token) error

	mu      sync.Mutex
	refresh string
}

func (s *refreshSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.client.RefreshToken(s.ctx, s.app, s.refresh)
	if err != nil {
		return nil, fmt.Errorf("xpan: refreshing token: %w", err)
	}

	tok := resp.Token()
	if tok.RefreshToken != "" {
		s.refresh = tok.RefreshToken
	} else {
		tok.RefreshToken = s.refresh
	}

	if s.onRefresh != nil {
		if err := s.onRefresh(tok); err != nil {
			s.client.logger.Warn("failed to persist refreshed token", slog.String("error", err.Error()))
		}
	}

	return tok, nil
}

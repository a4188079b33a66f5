package xpan

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token-secret"

// newTestClient creates a Client whose three services all point at url.
func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	cfg := NewConfig(testToken)
	cfg.Server = ServerConfig{PanURL: url, PCSURL: url, OpenAPIURL: url}
	cfg.UserAgent = "test-agent"

	return NewClient(cfg, nil, slog.Default())
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{AccessToken: "x"}, nil, nil)

	cfg := c.Config()
	assert.Equal(t, DefaultServerConfig(), cfg.Server)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestNewClient_DoesNotMutateCallerHTTPClient(t *testing.T) {
	hc := &http.Client{}
	cfg := NewConfig("x")
	cfg.Timeout = 3 * time.Second

	c := NewClient(cfg, hc, nil)

	assert.Equal(t, time.Duration(0), hc.Timeout)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
}

func TestRequest_TokenAndTagOnEveryCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))
		assert.Equal(t, "xpansdk", r.URL.Query().Get("openapi"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"errno":0,"baidu_name":"alice","uk":42}`))
	}))
	defer srv.Close()

	info, err := newTestClient(t, srv.URL).UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", info.BaiduName)
	assert.Equal(t, int64(42), info.UK)
}

func TestRequest_TransportErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).Quota(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrAPI)
	assert.NotContains(t, err.Error(), "access_token="+testToken)
}

func TestRequest_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errno":0}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv.URL).Quota(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRequest_DebugLogRedactsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errno":0,"taskid":1}`))
	}))
	defer srv.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := NewConfig(testToken)
	cfg.Server = ServerConfig{PanURL: srv.URL, PCSURL: srv.URL, OpenAPIURL: srv.URL}
	cfg.Debug = true

	c := NewClient(cfg, nil, logger)
	_, err := c.Delete(context.Background(), []string{"/apps/x/a.txt"})
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, "xpan request")
	assert.Contains(t, out, "REDACTED")
	assert.Contains(t, out, "filelist")
	assert.NotContains(t, out, testToken)
}

func TestRedactURL_MasksSecrets(t *testing.T) {
	c := newTestClient(t, "https://example.test")

	u, err := c.resolveURL(&request{
		service: serviceOpenAPI,
		path:    "/oauth/2.0/token",
		params:  map[string][]string{"client_secret": {"s3cret"}, "refresh_token": {"r3fresh"}},
	})
	require.NoError(t, err)

	got := redactURL(u)
	assert.NotContains(t, got, "s3cret")
	assert.NotContains(t, got, "r3fresh")
	assert.NotContains(t, got, testToken)
	assert.True(t, strings.HasPrefix(got, "https://example.test/oauth/2.0/token?"))
}

func TestRequest_NoTokenForOAuth(t *testing.T) {
	c := newTestClient(t, "https://example.test")

	u, err := c.resolveURL(&request{service: serviceOpenAPI, path: tokenPath, noToken: true})
	require.NoError(t, err)
	assert.False(t, u.Query().Has("access_token"))
}

func TestPayload_Multipart(t *testing.T) {
	body, ct, err := multipartPayload{field: "file", filename: "file", data: []byte("abc")}.encode()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", ct)
	require.NoError(t, req.ParseMultipartForm(1<<20))

	f, _, err := req.FormFile("file")
	require.NoError(t, err)
	defer f.Close()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(f)
	assert.Equal(t, "abc", buf.String())
}

func TestPayload_Form(t *testing.T) {
	body, ct, err := formPayload{values: map[string][]string{"isdir": {"1"}}}.encode()
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", ct)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(body)
	assert.Equal(t, "isdir=1", buf.String())
}

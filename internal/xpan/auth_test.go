package xpan

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var testApp = App{ClientID: "cid", ClientSecret: "csecret"}

func TestAuthorizeURL(t *testing.T) {
	c := newTestClient(t, "https://openapi.example")

	raw := c.AuthorizeURL(testApp, "state-1")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/oauth/2.0/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "oob", q.Get("redirect_uri"))
	assert.Equal(t, "basic,netdisk", q.Get("scope"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.NotContains(t, raw, "csecret")
}

func TestCodeToToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, tokenPath, r.URL.Path)
		assert.Equal(t, "authorization_code", q.Get("grant_type"))
		assert.Equal(t, "the-code", q.Get("code"))
		assert.Equal(t, "cid", q.Get("client_id"))
		assert.Equal(t, "csecret", q.Get("client_secret"))
		assert.Equal(t, "oob", q.Get("redirect_uri"))
		assert.False(t, q.Has("access_token"))

		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":2592000,"scope":"basic netdisk"}`))
	}))
	defer srv.Close()

	before := time.Now()

	resp, err := newTestClient(t, srv.URL).CodeToToken(context.Background(), testApp, "the-code")
	require.NoError(t, err)
	assert.Equal(t, "at", resp.AccessToken)

	tok := resp.Token()
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.WithinDuration(t, before.Add(30*24*time.Hour), tok.Expiry, 5*time.Second)
	assert.Equal(t, "basic netdisk", tok.Extra("scope"))
}

func TestCodeToToken_OAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid authorization code"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CodeToToken(context.Background(), testApp, "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
	assert.Equal(t, "invalid_grant", OAuthErrorCode(err))
}

func TestDeviceCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, deviceCodePath, r.URL.Path)
		assert.Equal(t, "device_code", q.Get("response_type"))
		assert.Equal(t, "basic,netdisk", q.Get("scope"))

		_, _ = w.Write([]byte(`{"device_code":"dc","user_code":"UC","verification_url":"https://openapi.baidu.com/device","qrcode_url":"https://q","expires_in":300,"interval":5}`))
	}))
	defer srv.Close()

	dc, err := newTestClient(t, srv.URL).DeviceCode(context.Background(), testApp)
	require.NoError(t, err)
	assert.Equal(t, "UC", dc.UserCode)
	assert.Equal(t, int64(5), dc.Interval)
}

func TestPollDeviceToken_PendingThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "device_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "dc", r.URL.Query().Get("code"))

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"authorization_pending","error_description":"User has not yet completed the authorization"}`))

			return
		}

		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":60}`))
	}))
	defer srv.Close()

	// Interval is in whole seconds on the wire; use the smallest.
	tok, err := newTestClient(t, srv.URL).PollDeviceToken(context.Background(), testApp,
		&DeviceCode{DeviceCode: "dc", Interval: 1, ExpiresIn: 30})
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollDeviceToken_TerminalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"access_denied"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).PollDeviceToken(context.Background(), testApp,
		&DeviceCode{DeviceCode: "dc", Interval: 1, ExpiresIn: 30})
	assert.Equal(t, "access_denied", OAuthErrorCode(err))
}

func TestPollDeviceToken_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, "http://unused.invalid").PollDeviceToken(ctx, testApp,
		&DeviceCode{DeviceCode: "dc", Interval: 60})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRefreshTokenSource_RefreshesAndPersists(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, fmt.Sprintf("rt%d", n-1), r.URL.Query().Get("refresh_token"))

		fmt.Fprintf(w, `{"access_token":"at%d","refresh_token":"rt%d","expires_in":3600}`, n, n)
	}))
	defer srv.Close()

	expired := &oauth2.Token{AccessToken: "at0", RefreshToken: "rt0", Expiry: time.Now().Add(-time.Hour)}

	var saved []*oauth2.Token
	src := newTestClient(t, srv.URL).RefreshTokenSource(context.Background(), testApp, expired,
		func(tok *oauth2.Token) error {
			saved = append(saved, tok)
			return nil
		})

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "at1", tok.AccessToken)

	// Still valid: served from the reuse cache without a second refresh.
	tok, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, "at1", tok.AccessToken)
	assert.Equal(t, int32(1), calls.Load())

	require.Len(t, saved, 1)
	assert.Equal(t, "rt1", saved[0].RefreshToken)
}

func TestRefreshToken_Empty(t *testing.T) {
	_, err := newTestClient(t, "http://unused.invalid").RefreshToken(context.Background(), testApp, "")
	assert.ErrorIs(t, err, ErrParam)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/baidupan-go/internal/config"
	"github.com/tonimelisma/baidupan-go/internal/journal"
	"github.com/tonimelisma/baidupan-go/internal/tokenfile"
	"github.com/tonimelisma/baidupan-go/internal/transfer"
	"github.com/tonimelisma/baidupan-go/internal/xpan"
)

var errNotLoggedIn = errors.New("not logged in, run 'baidupan-go login' first")

// Session holds the authenticated client for one command, plus the
// transfer manager for commands that move file content.
type Session struct {
	Client   *xpan.Client
	Account  *tokenfile.Account
	Resolved *config.Resolved

	logger  *slog.Logger
	journal *journal.Store
}

// NewSession loads the saved token, refreshing and persisting it when it
// has expired, and creates the client. BAIDUPAN_GO_TOKEN bypasses the token
// file entirely.
func NewSession(ctx context.Context, resolved *config.Resolved, logger *slog.Logger) (*Session, error) {
	if resolved.AccessToken != "" {
		logger.Debug("using access token from environment")

		return &Session{
			Client:   xpan.NewClient(resolved.ClientConfig(resolved.AccessToken), nil, logger),
			Resolved: resolved,
			logger:   logger,
		}, nil
	}

	tf, err := tokenfile.Load(resolved.TokenPath)
	if err != nil {
		return nil, err
	}

	if tf == nil {
		return nil, errNotLoggedIn
	}

	tok := tf.Token

	if !tok.Valid() {
		if tok.RefreshToken == "" {
			return nil, fmt.Errorf("token expired and cannot be refreshed: %w", errNotLoggedIn)
		}

		logger.Info("access token expired, refreshing")

		authClient := xpan.NewClient(resolved.ClientConfig(""), nil, logger)
		src := authClient.RefreshTokenSource(ctx, resolved.Credentials(), tok,
			tokenfile.Persister(resolved.TokenPath, tf.Account))

		if tok, err = src.Token(); err != nil {
			return nil, err
		}
	}

	return &Session{
		Client:   xpan.NewClient(resolved.ClientConfig(tok.AccessToken), nil, logger),
		Account:  tf.Account,
		Resolved: resolved,
		logger:   logger,
	}, nil
}

// TransferManager builds the file transfer manager from the [transfers]
// settings, opening the upload journal when enabled.
func (s *Session) TransferManager(ctx context.Context) (*transfer.Manager, error) {
	limiter, err := transfer.NewBandwidthLimiter(s.Resolved.Transfers.BandwidthLimit, s.logger)
	if err != nil {
		return nil, err
	}

	if s.Resolved.Transfers.Journal && s.journal == nil && s.Resolved.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(s.Resolved.JournalPath), tokenfile.DirPerms); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}

		store, err := journal.Open(ctx, s.Resolved.JournalPath, s.logger)
		if err != nil {
			return nil, err
		}

		if _, err := store.CleanStale(ctx); err != nil {
			s.logger.Warn("failed to clean stale upload sessions", slog.String("error", err.Error()))
		}

		s.journal = store
	}

	return transfer.NewManager(s.Client, s.Client, s.journal, limiter, s.logger), nil
}

// Close releases the journal, if one was opened.
func (s *Session) Close() {
	if s.journal == nil {
		return
	}

	if err := s.journal.Close(); err != nil {
		s.logger.Warn("failed to close upload journal", slog.String("error", err.Error()))
	}
}

// Package transfer moves whole files between the local disk and the
// provider. Uploads can be journaled so an interrupted upload continues on
// its original session; downloads land in a .partial file that is resumed
// with a Range request and renamed into place when complete.
package transfer

import (
	"log/slog"

	"github.com/tonimelisma/baidupan-go/internal/journal"
)

// partialSuffix marks an in-progress download next to its target.
const partialSuffix = ".partial"

// Manager provides file-level upload and download on top of an xpan client.
type Manager struct {
	uploads   Uploader
	downloads Downloader
	journal   *journal.Store // nil = uploads are not resumable
	limiter   *BandwidthLimiter
	logger    *slog.Logger
}

// NewManager creates a Manager. store and limiter may be nil.
func NewManager(
	ul Uploader, dl Downloader, store *journal.Store, limiter *BandwidthLimiter, logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		uploads:   ul,
		downloads: dl,
		journal:   store,
		limiter:   limiter,
		logger:    logger,
	}
}

package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/tonimelisma/baidupan-go/internal/config"
)

// burstWindow is how much traffic the bucket lets through at once, in
// seconds of the configured rate.
const burstWindow = 2 * time.Second

// BandwidthLimiter is one token bucket shared by every transfer of a
// Manager, so parallel slice workers stay within the limit in aggregate.
// A nil *BandwidthLimiter is unlimited.
type BandwidthLimiter struct {
	bucket *rate.Limiter
}

// NewBandwidthLimiter parses a [transfers] bandwidth_limit value such as
// "2MiB/s". It returns nil for an unlimited setting.
func NewBandwidthLimiter(limit string, logger *slog.Logger) (*BandwidthLimiter, error) {
	perSec, err := config.ParseRate(limit)
	if err != nil {
		return nil, fmt.Errorf("transfer: bandwidth limit: %w", err)
	}

	if perSec == 0 {
		return nil, nil //nolint:nilnil // nil limiter = unlimited
	}

	burst := int(perSec * int64(burstWindow/time.Second))

	if logger != nil {
		logger.Debug("bandwidth limit enabled",
			slog.Int64("bytes_per_sec", perSec),
			slog.Int("burst", burst),
		)
	}

	return &BandwidthLimiter{bucket: rate.NewLimiter(rate.Limit(perSec), burst)}, nil
}

// WrapReader throttles reads from r. Slice bodies are read through it.
func (bl *BandwidthLimiter) WrapReader(ctx context.Context, r io.Reader) io.Reader {
	if bl == nil {
		return r
	}

	return &throttledReader{Reader: r, gate: gate{ctx: ctx, bucket: bl.bucket}}
}

// WrapWriter throttles writes to w. Downloads are written through it.
func (bl *BandwidthLimiter) WrapWriter(ctx context.Context, w io.Writer) io.Writer {
	if bl == nil {
		return w
	}

	return &throttledWriter{Writer: w, gate: gate{ctx: ctx, bucket: bl.bucket}}
}

// gate charges transferred bytes against the bucket after the fact.
type gate struct {
	ctx    context.Context //nolint:containedctx // io.Reader/io.Writer carry no ctx
	bucket *rate.Limiter
}

// charge waits until n bytes are admitted, in pieces no larger than the
// burst since WaitN rejects anything above it.
func (g gate) charge(n int) error {
	for n > 0 {
		piece := min(n, g.bucket.Burst())

		if err := g.bucket.WaitN(g.ctx, piece); err != nil {
			return err
		}

		n -= piece
	}

	return nil
}

type throttledReader struct {
	io.Reader
	gate
}

func (t *throttledReader) Read(p []byte) (int, error) {
	n, err := t.Reader.Read(p)
	if n > 0 {
		if waitErr := t.charge(n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}

type throttledWriter struct {
	io.Writer
	gate
}

func (t *throttledWriter) Write(p []byte) (int, error) {
	n, err := t.Writer.Write(p)
	if n > 0 {
		if waitErr := t.charge(n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}

package transfer

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBandwidthLimiter(t *testing.T) {
	for _, unlimited := range []string{"", "0", "0/s"} {
		bl, err := NewBandwidthLimiter(unlimited, testLogger(t))
		require.NoError(t, err, unlimited)
		assert.Nil(t, bl, unlimited)
	}

	bl, err := NewBandwidthLimiter("1MiB/s", nil)
	require.NoError(t, err)
	require.NotNil(t, bl)
	assert.Equal(t, 2<<20, bl.bucket.Burst())

	_, err = NewBandwidthLimiter("garbage", testLogger(t))
	assert.Error(t, err)
}

func TestBandwidthLimiter_NilPassesThrough(t *testing.T) {
	var bl *BandwidthLimiter

	r := strings.NewReader("data")
	assert.Equal(t, r, bl.WrapReader(context.Background(), r))

	var buf bytes.Buffer
	assert.Equal(t, &buf, bl.WrapWriter(context.Background(), &buf))
}

func TestThrottledReader_Throttles(t *testing.T) {
	// 1 KB/s with a 2 KB burst: reading 4 KB must wait well past the burst.
	bl, err := NewBandwidthLimiter("1KB/s", testLogger(t))
	require.NoError(t, err)

	reader := bl.WrapReader(context.Background(), bytes.NewReader(make([]byte, 4000)))

	start := time.Now()
	n, err := io.Copy(io.Discard, reader)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), n)
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

func TestThrottledWriter_ContextCancel(t *testing.T) {
	bl, err := NewBandwidthLimiter("1KB/s", testLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w := bl.WrapWriter(ctx, io.Discard)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	chunk := make([]byte, 512)

	var writeErr error
	for writeErr == nil {
		_, writeErr = w.Write(chunk)
	}

	assert.ErrorIs(t, writeErr, context.Canceled)
}

func TestBandwidthLimiter_PreservesData(t *testing.T) {
	bl, err := NewBandwidthLimiter("100MB/s", testLogger(t))
	require.NoError(t, err)

	data, err := io.ReadAll(bl.WrapReader(context.Background(), strings.NewReader("hello bandwidth")))
	require.NoError(t, err)
	assert.Equal(t, "hello bandwidth", string(data))
}

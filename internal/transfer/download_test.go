package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDownloadManager(t *testing.T, content string) (*Manager, *fakeProvider, string) {
	t.Helper()

	fp, srv := newFakeProvider(t)
	fp.content = []byte(content)

	c := newTestXpan(t, srv.URL)

	return NewManager(c, c, nil, nil, testLogger(t)), fp, srv.URL + "/file/big"
}

func TestDownloadFile_ByFsID(t *testing.T) {
	tm, fp, _ := newDownloadManager(t, "hello, world")
	target := filepath.Join(t.TempDir(), "sub", "out.txt")

	var last [2]int64
	res, err := tm.DownloadFile(context.Background(), Source{FsID: 42}, target, DownloadOpts{
		Progress: func(done, total int64) { last = [2]int64{done, total} },
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), res.Size)
	assert.False(t, res.Resumed)
	assert.Equal(t, [2]int64{12, 12}, last)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(got))

	assert.NoFileExists(t, target+partialSuffix)
	assert.Equal(t, []string{""}, fp.ranges)
}

func TestDownloadFile_ResumesPartial(t *testing.T) {
	tm, fp, link := newDownloadManager(t, "0123456789")
	target := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(target+partialSuffix, []byte("0123"), 0o600))

	res, err := tm.DownloadFile(context.Background(), Source{Link: link}, target, DownloadOpts{RemoteSize: 10})
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, int64(10), res.Size)
	assert.Equal(t, []string{"bytes=4-"}, fp.ranges)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))
}

func TestDownloadFile_IgnoredRangeRestartsFresh(t *testing.T) {
	tm, fp, link := newDownloadManager(t, "0123456789abcdefghij")
	fp.ignoreRange = true
	target := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(target+partialSuffix, []byte("01234"), 0o600))

	res, err := tm.DownloadFile(context.Background(), Source{Link: link}, target, DownloadOpts{RemoteSize: 20})
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.Equal(t, int64(20), res.Size)
	assert.Equal(t, []string{"bytes=5-", ""}, fp.ranges)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdefghij", string(got))
	assert.NoFileExists(t, target+partialSuffix)
}

func TestDownloadFile_SizeMismatchNotInstalled(t *testing.T) {
	tm, _, link := newDownloadManager(t, "0123456789")
	target := filepath.Join(t.TempDir(), "out.bin")

	_, err := tm.DownloadFile(context.Background(), Source{Link: link}, target, DownloadOpts{RemoteSize: 12})
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.NoFileExists(t, target)
	assert.NoFileExists(t, target+partialSuffix)
}

func TestDownloadFile_NoResumeDiscardsPartial(t *testing.T) {
	tm, fp, link := newDownloadManager(t, "0123456789")
	target := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(target+partialSuffix, []byte("junk"), 0o600))

	res, err := tm.DownloadFile(context.Background(), Source{Link: link}, target, DownloadOpts{NoResume: true})
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.Equal(t, []string{""}, fp.ranges)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))
}

func TestDownloadFile_CompletePartialSkipsRequest(t *testing.T) {
	tm, fp, link := newDownloadManager(t, "0123456789")
	target := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(target+partialSuffix, []byte("0123456789"), 0o600))

	res, err := tm.DownloadFile(context.Background(), Source{Link: link}, target, DownloadOpts{RemoteSize: 10})
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Empty(t, fp.ranges)
	assert.FileExists(t, target)
}

func TestDownloadFile_FailureRemovesPartial(t *testing.T) {
	tm, fp, link := newDownloadManager(t, "0123456789")
	fp.denyGet = true
	target := filepath.Join(t.TempDir(), "out.bin")

	_, err := tm.DownloadFile(context.Background(), Source{Link: link}, target, DownloadOpts{})
	require.Error(t, err)
	assert.NoFileExists(t, target+partialSuffix)
	assert.NoFileExists(t, target)
}

func TestDownloadFile_CanceledKeepsPartial(t *testing.T) {
	tm, _, link := newDownloadManager(t, "0123456789")
	target := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(target+partialSuffix, []byte("0123"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tm.DownloadFile(ctx, Source{Link: link}, target, DownloadOpts{})
	require.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, target+partialSuffix)
}

func TestDownloadFile_BadArgs(t *testing.T) {
	tm := NewManager(nil, nil, nil, nil, testLogger(t))

	_, err := tm.DownloadFile(context.Background(), Source{Link: "x"}, "", DownloadOpts{})
	assert.Error(t, err)

	_, err = tm.DownloadFile(context.Background(), Source{}, filepath.Join(t.TempDir(), "f"), DownloadOpts{})
	assert.Error(t, err)
}

package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tonimelisma/baidupan-go/internal/xpan"
)

// ErrSizeMismatch is returned when a finished download does not have the
// expected remote size. The partial file is discarded.
var ErrSizeMismatch = errors.New("transfer: downloaded size does not match remote size")

// Source names the remote content of a download: a file id, resolved to a
// fresh download link, or a link obtained earlier.
type Source struct {
	FsID int64
	Link string
}

// DownloadOpts configures a single download.
type DownloadOpts struct {
	// RemoteSize is the expected size. 0 takes it from the file's metadata
	// when the source is a file id, or skips the check.
	RemoteSize int64

	// NoResume discards an existing .partial instead of continuing it.
	NoResume bool

	Progress xpan.ProgressFunc
}

// DownloadResult reports a finished download.
type DownloadResult struct {
	Path    string
	Size    int64
	Resumed bool
}

// DownloadFile downloads src to targetPath through targetPath.partial. An
// existing partial is continued with a Range request from its current size;
// if the server answers that with the whole content, the partial is dropped
// and the download restarts from zero. A result whose size differs from
// RemoteSize is never installed. On cancellation the partial is kept; on other failures it is removed.
func (tm *Manager) DownloadFile(
	ctx context.Context, src Source, targetPath string, opts DownloadOpts,
) (*DownloadResult, error) {
	if targetPath == "" {
		return nil, fmt.Errorf("transfer: download: target path must not be empty")
	}

	logger := tm.logger.With(slog.String("op_id", uuid.NewString()))

	link, err := tm.resolveLink(ctx, src, &opts)
	if err != nil {
		return nil, err
	}

	logger.Debug("DownloadFile",
		slog.Int64("fs_id", src.FsID),
		slog.String("target", targetPath),
	)

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil { //nolint:mnd // standard dir perms
		return nil, fmt.Errorf("transfer: creating parent dir for %s: %w", targetPath, err)
	}

	partialPath := targetPath + partialSuffix

	if opts.NoResume {
		if err := os.Remove(partialPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("transfer: removing %s: %w", partialPath, err)
		}
	}

	d := &download{tm: tm, logger: logger, link: link, partialPath: partialPath, opts: opts}

	size, resumed, err := d.toPartial(ctx)
	if err != nil {
		return nil, err
	}

	if opts.RemoteSize > 0 && size != opts.RemoteSize {
		logger.Warn("download size mismatch, discarding partial",
			slog.String("target", targetPath),
			slog.Int64("local_size", size),
			slog.Int64("remote_size", opts.RemoteSize),
		)

		os.Remove(partialPath)

		return nil, fmt.Errorf("%w: %s: got %d bytes, want %d", ErrSizeMismatch, targetPath, size, opts.RemoteSize)
	}

	// On failure the partial stays so the next attempt can resume from it.
	if err := os.Rename(partialPath, targetPath); err != nil {
		return nil, fmt.Errorf("transfer: renaming partial to %s: %w", targetPath, err)
	}

	logger.Info("download complete",
		slog.String("target", targetPath),
		slog.Int64("size", size),
		slog.Bool("resumed", resumed),
	)

	return &DownloadResult{Path: targetPath, Size: size, Resumed: resumed}, nil
}

// resolveLink returns the link to download, fetching it by file id when
// needed. Metadata fills opts.RemoteSize when unset.
func (tm *Manager) resolveLink(ctx context.Context, src Source, opts *DownloadOpts) (string, error) {
	if src.Link != "" {
		return src.Link, nil
	}

	if src.FsID == 0 {
		return "", fmt.Errorf("transfer: download: no file id or link")
	}

	recs, err := tm.downloads.FileMetas(ctx, []int64{src.FsID}, xpan.MetasOpts{DLink: true})
	if err != nil {
		return "", fmt.Errorf("transfer: resolving download link for %d: %w", src.FsID, err)
	}

	if len(recs) == 0 {
		return "", fmt.Errorf("transfer: file %d: %w", src.FsID, xpan.ErrNotFound)
	}

	rec := recs[0]
	if rec.IsDir {
		return "", fmt.Errorf("transfer: %s is a directory", rec.Path)
	}

	if rec.DownloadLink == "" {
		return "", fmt.Errorf("transfer: no download link for %s", rec.Path)
	}

	if opts.RemoteSize == 0 {
		opts.RemoteSize = rec.Size
	}

	return rec.DownloadLink, nil
}

// download is the state of one DownloadFile call.
type download struct {
	tm          *Manager
	logger      *slog.Logger
	link        string
	partialPath string
	opts        DownloadOpts
}

// toPartial fills the partial file, resuming when one already holds data.
// The partial is opened before stat so a concurrent removal cannot slip in
// between the two.
func (d *download) toPartial(ctx context.Context) (int64, bool, error) {
	f, err := os.OpenFile(d.partialPath, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:mnd // owner-only
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("cannot open partial file for resume, starting fresh",
				slog.String("path", d.partialPath), slog.String("error", err.Error()))
		}

		return d.fresh(ctx)
	}

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		f.Close()
		return d.fresh(ctx)
	}

	existing := info.Size()

	if d.opts.RemoteSize > 0 && existing >= d.opts.RemoteSize {
		f.Close()

		if existing == d.opts.RemoteSize {
			d.logger.Debug("partial file already complete", slog.String("path", d.partialPath))
			d.report(existing)

			return existing, true, nil
		}

		os.Remove(d.partialPath)

		return d.fresh(ctx)
	}

	return d.resume(ctx, f, existing)
}

// resume appends the remainder of the content to the open partial file.
func (d *download) resume(ctx context.Context, f *os.File, existing int64) (int64, bool, error) {
	d.logger.Info("resuming download from partial file",
		slog.String("path", d.partialPath),
		slog.Int64("existing_bytes", existing),
	)

	n, err := d.tm.downloads.DownloadStream(ctx, d.link, d.writer(ctx, f, existing), xpan.RangeFrom(existing))

	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		if ctx.Err() != nil {
			return 0, false, fmt.Errorf("transfer: resuming %s: %w", d.partialPath, err)
		}

		d.logger.Warn("range download failed, falling back to fresh download",
			slog.String("path", d.partialPath), slog.String("error", err.Error()))

		os.Remove(d.partialPath)

		return d.fresh(ctx)
	}

	return existing + n, true, nil
}

// fresh downloads the whole content into a truncated partial file.
func (d *download) fresh(ctx context.Context) (int64, bool, error) {
	f, err := os.OpenFile(d.partialPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:mnd // owner-only
	if err != nil {
		return 0, false, fmt.Errorf("transfer: creating partial file %s: %w", d.partialPath, err)
	}

	n, err := d.tm.downloads.DownloadStream(ctx, d.link, d.writer(ctx, f, 0), nil)
	if err != nil {
		if closeErr := f.Close(); closeErr != nil {
			d.logger.Warn("failed to close partial file after download error",
				slog.String("path", d.partialPath), slog.String("error", closeErr.Error()))
		}

		removePartialIfNotCanceled(ctx, d.partialPath)

		return 0, false, fmt.Errorf("transfer: downloading to %s: %w", d.partialPath, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(d.partialPath)
		return 0, false, fmt.Errorf("transfer: closing partial file %s: %w", d.partialPath, err)
	}

	return n, false, nil
}

// writer layers bandwidth limiting and progress over the partial file.
func (d *download) writer(ctx context.Context, f *os.File, start int64) io.Writer {
	w := d.tm.limiter.WrapWriter(ctx, f)
	if d.opts.Progress == nil {
		return w
	}

	d.report(start)

	return &progressWriter{w: w, done: start, total: d.opts.RemoteSize, fn: d.opts.Progress}
}

func (d *download) report(done int64) {
	if d.opts.Progress != nil {
		d.opts.Progress(done, d.opts.RemoteSize)
	}
}

// removePartialIfNotCanceled removes a partial file unless the context was
// canceled, in which case it is kept for a later resume.
func removePartialIfNotCanceled(ctx context.Context, path string) {
	if ctx.Err() == nil {
		os.Remove(path)
	}
}

type progressWriter struct {
	w     io.Writer
	done  int64
	total int64
	fn    xpan.ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.done += int64(n)
		p.fn(p.done, p.total)
	}

	return n, err
}

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

	"github.com/tonimelisma/baidupan-go/internal/journal"
	"github.com/tonimelisma/baidupan-go/internal/xpan"
	"github.com/tonimelisma/baidupan-go/pkg/blocklist"
)

// UploadOpts configures a single file upload.
type UploadOpts struct {
	ChunkSize int64 // default blocklist.DefaultChunkSize
	Rename    xpan.RenamePolicy
	Workers   int
	Progress  xpan.ProgressFunc
}

func (o UploadOpts) chunkSize() int64 {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}

	return blocklist.DefaultChunkSize
}

// UploadResult reports a finished upload.
type UploadResult struct {
	File       *xpan.FileRecord
	Size       int64
	FastUpload bool // content matched by digest; no bytes sent
	Resumed    bool // continued a journaled session
}

// UploadFile uploads localPath to remotePath. With a journal, the session
// is recorded after precreate and every acknowledged slice is logged, so a
// later call for the same unchanged file skips what the provider already
// holds.
func (tm *Manager) UploadFile(
	ctx context.Context, localPath, remotePath string, opts UploadOpts,
) (*UploadResult, error) {
	if localPath == "" {
		return nil, fmt.Errorf("transfer: upload: local path must not be empty")
	}

	if opts.ChunkSize < 0 {
		return nil, fmt.Errorf("transfer: upload: chunk size must be positive, got %d", opts.ChunkSize)
	}

	remotePath = xpan.CleanPath(remotePath)

	logger := tm.logger.With(slog.String("op_id", uuid.NewString()))
	logger.Debug("UploadFile",
		slog.String("local", localPath),
		slog.String("remote", remotePath),
	)

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("transfer: opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("transfer: stat %s: %w", localPath, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("transfer: %s is a directory", localPath)
	}

	size := info.Size()

	digests, n, err := blocklist.Compute(io.NewSectionReader(f, 0, size), opts.chunkSize())
	if err != nil {
		return nil, fmt.Errorf("transfer: hashing %s: %w", localPath, err)
	}

	if n != size {
		return nil, fmt.Errorf("transfer: hashing %s: file changed size during read", localPath)
	}

	u := &upload{
		tm:         tm,
		logger:     logger,
		content:    f,
		localPath:  localPath,
		remotePath: remotePath,
		size:       size,
		digests:    digests,
		opts:       opts,
	}

	if tm.journal != nil {
		abs, absErr := filepath.Abs(localPath)
		if absErr != nil {
			abs = localPath
		}

		u.key = journal.Key(abs, remotePath, opts.chunkSize(), digests)
		u.absPath = abs

		res, resumed, err := u.resume(ctx)
		if resumed || err != nil {
			return res, err
		}
	}

	return u.fresh(ctx)
}

// upload is the state of one UploadFile call.
type upload struct {
	tm         *Manager
	logger     *slog.Logger
	content    io.ReaderAt
	localPath  string
	absPath    string
	remotePath string
	size       int64
	digests    []string
	opts       UploadOpts
	key        string // journal key; empty without a journal
}

// resume continues a journaled session. resumed is false when there is no
// usable session and the caller should start fresh.
func (u *upload) resume(ctx context.Context) (res *UploadResult, resumed bool, err error) {
	rec, err := u.tm.journal.Load(ctx, u.key)
	if err != nil {
		u.logger.Warn("failed to load upload session",
			slog.String("path", u.localPath),
			slog.String("error", err.Error()),
		)

		return nil, false, nil
	}

	if rec == nil {
		return nil, false, nil
	}

	if rec.Rename != u.opts.Rename.String() || rec.Size != u.size {
		u.logger.Info("journaled session does not match request, starting fresh",
			slog.String("path", u.localPath),
		)
		u.deleteSession(ctx)

		return nil, false, nil
	}

	u.logger.Info("resuming journaled upload",
		slog.String("path", u.localPath),
		slog.Int("acked", len(rec.Acked)),
		slog.Int("pending", rec.Pending()),
	)

	s := &xpan.UploadSession{
		Path:      rec.RemotePath,
		Size:      rec.Size,
		BlockList: rec.BlockList,
		Rename:    u.opts.Rename,
		UploadID:  rec.UploadID,
	}

	file, err := u.sendAndCreate(ctx, s, rec.Acked)
	if err == nil {
		u.deleteSession(ctx)

		return &UploadResult{File: file, Size: u.size, Resumed: true}, true, nil
	}

	// A provider rejection means the session is gone; anything else (network,
	// cancellation, local read) leaves the journal for the next attempt.
	if !errors.Is(err, xpan.ErrAPI) {
		return nil, true, fmt.Errorf("transfer: resuming upload of %s: %w", u.localPath, err)
	}

	u.logger.Info("journaled session rejected, starting fresh",
		slog.String("path", u.localPath),
		slog.String("error", err.Error()),
	)
	u.deleteSession(ctx)

	return nil, false, nil
}

// fresh precreates a new session and uploads every slice.
func (u *upload) fresh(ctx context.Context) (*UploadResult, error) {
	s, err := u.tm.uploads.Precreate(ctx, u.remotePath, u.size, u.digests, u.opts.Rename)
	if err != nil {
		return nil, fmt.Errorf("transfer: precreating %s: %w", u.remotePath, err)
	}

	if s.FastUpload {
		if u.opts.Progress != nil {
			u.opts.Progress(u.size, u.size)
		}

		return &UploadResult{File: s.File, Size: u.size, FastUpload: true}, nil
	}

	if u.key != "" {
		if saveErr := u.tm.journal.Save(ctx, &journal.Record{
			Key:        u.key,
			UploadID:   s.UploadID,
			LocalPath:  u.absPath,
			RemotePath: u.remotePath,
			Size:       u.size,
			ChunkSize:  u.opts.chunkSize(),
			BlockList:  u.digests,
			Rename:     u.opts.Rename.String(),
		}); saveErr != nil {
			u.logger.Warn("failed to journal upload session, resume after interruption will not work",
				slog.String("path", u.localPath),
				slog.String("error", saveErr.Error()),
			)
			u.key = ""
		}
	}

	file, err := u.sendAndCreate(ctx, s, nil)
	if err != nil {
		// The journal entry stays for the next attempt.
		return nil, fmt.Errorf("transfer: uploading %s: %w", u.localPath, err)
	}

	if u.key != "" {
		u.deleteSession(ctx)
	}

	return &UploadResult{File: file, Size: u.size}, nil
}

// sendAndCreate uploads the slices not in acked, then finalizes the session.
func (u *upload) sendAndCreate(ctx context.Context, s *xpan.UploadSession, acked map[int]bool) (*xpan.FileRecord, error) {
	sliceOpts := xpan.UploadOpts{
		ChunkSize: u.opts.chunkSize(),
		Rename:    u.opts.Rename,
		Workers:   u.opts.Workers,
		Progress:  u.opts.Progress,
		Wrap: func(r io.Reader) io.Reader {
			return u.tm.limiter.WrapReader(ctx, r)
		},
	}

	if len(acked) > 0 {
		sliceOpts.Skip = func(index int) bool { return acked[index] }
	}

	if u.key != "" {
		sliceOpts.OnSlice = u.ack(ctx)
	}

	if err := u.tm.uploads.UploadSlices(ctx, s, u.content, sliceOpts); err != nil {
		return nil, err
	}

	return u.tm.uploads.Create(ctx, s.Path, s.Size, s.UploadID, s.BlockList, s.Rename)
}

// ack records acknowledged slices. A journal write failure only costs resume
// granularity, so it is logged rather than aborting the upload.
func (u *upload) ack(ctx context.Context) func(*xpan.SliceAck) error {
	return func(a *xpan.SliceAck) error {
		if err := u.tm.journal.Ack(ctx, u.key, a.Index, a.MD5); err != nil {
			u.logger.Warn("failed to journal slice",
				slog.Int("index", a.Index),
				slog.String("error", err.Error()),
			)
		}

		return nil
	}
}

func (u *upload) deleteSession(ctx context.Context) {
	if err := u.tm.journal.Delete(context.WithoutCancel(ctx), u.key); err != nil {
		u.logger.Warn("failed to delete journaled session",
			slog.String("path", u.localPath),
			slog.String("error", err.Error()),
		)
	}
}

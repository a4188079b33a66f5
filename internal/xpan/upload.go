package xpan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/baidupan-go/pkg/blocklist"
)

const superfilePath = "/rest/2.0/pcs/superfile2"

// precreateFastUpload is the return_type the provider sends when it already
// holds content matching every block digest.
const precreateFastUpload = 1

// RenamePolicy decides what the provider does when the target path exists.
// The zero value is the provider default: rename on path conflict.
type RenamePolicy int

const (
	RenameOnConflict      RenamePolicy = iota // rtype 1
	RenameNever                               // rtype 0: fail on conflict
	RenameOnBlockConflict                     // rtype 2: rename when path and blocks conflict
	RenameOverwrite                           // rtype 3
)

// rtype returns the wire value.
func (p RenamePolicy) rtype() int {
	switch p {
	case RenameNever:
		return 0
	case RenameOnBlockConflict:
		return 2
	case RenameOverwrite:
		return 3
	default:
		return 1
	}
}

func (p RenamePolicy) String() string {
	switch p {
	case RenameNever:
		return "never"
	case RenameOnBlockConflict:
		return "block-conflict"
	case RenameOverwrite:
		return "overwrite"
	default:
		return "rename"
	}
}

// ParseRenamePolicy parses the names printed by RenamePolicy.String.
func ParseRenamePolicy(s string) (RenamePolicy, error) {
	switch s {
	case "", "rename":
		return RenameOnConflict, nil
	case "never":
		return RenameNever, nil
	case "block-conflict":
		return RenameOnBlockConflict, nil
	case "overwrite":
		return RenameOverwrite, nil
	default:
		return 0, paramError("unknown rename policy %q", s)
	}
}

// UploadSession is the outcome of Precreate. When FastUpload is true, File is
// the finished record and no further calls are needed. Otherwise UploadID
// addresses the slice and create calls.
type UploadSession struct {
	Path      string
	Size      int64
	BlockList []string
	Rename    RenamePolicy

	UploadID   string
	FastUpload bool
	File       *FileRecord

	// PendingBlocks lists the slice indices the provider reported it still
	// needs. Informational: every slice is uploaded regardless.
	PendingBlocks []int
}

// SliceAck acknowledges one uploaded slice.
type SliceAck struct {
	Index int
	MD5   string // provider-computed digest of the received bytes
}

// ProgressFunc receives the number of bytes accounted for so far and the
// total. Calls are serialized.
type ProgressFunc func(done, total int64)

// UploadOpts controls Upload, UploadFile, and UploadSlices.
type UploadOpts struct {
	ChunkSize int64 // default blocklist.DefaultChunkSize
	Rename    RenamePolicy

	// Workers > 1 uploads that many slices at once. The default is strictly
	// sequential.
	Workers int

	Progress ProgressFunc

	// Wrap, when set, wraps the reader each slice is read through (bandwidth
	// limiting).
	Wrap func(io.Reader) io.Reader

	// Skip reports slices already accepted by the provider in an earlier
	// attempt on the same session; they are not sent again.
	Skip func(index int) bool

	// OnSlice runs after each acknowledged slice. An error aborts the upload.
	// Calls are serialized.
	OnSlice func(ack *SliceAck) error
}

func (o UploadOpts) chunkSize() int64 {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}

	return blocklist.DefaultChunkSize
}

type precreateRequest struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	IsDir     int    `json:"isdir"`
	AutoInit  int    `json:"autoinit"`
	RType     int    `json:"rtype"`
	BlockList string `json:"block_list"`
}

// precreateResponse carries the fast-upload record either flattened next to
// the status fields or nested under "info", depending on the endpoint
// version.
type precreateResponse struct {
	fileRecordResponse

	UploadID   string              `json:"uploadid"`
	ReturnType int                 `json:"return_type"`
	BlockList  []int               `json:"block_list"`
	Info       *fileRecordResponse `json:"info"`
}

type createRequest struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	IsDir     int    `json:"isdir"`
	UploadID  string `json:"uploadid"`
	RType     int    `json:"rtype"`
	BlockList string `json:"block_list"`
}

type sliceResponse struct {
	MD5 string `json:"md5"`
}

// Precreate registers an upload. blockList must be the complete ordered
// digest list for the content.
func (c *Client) Precreate(
	ctx context.Context, remotePath string, size int64, blockList []string, rename RenamePolicy,
) (*UploadSession, error) {
	if err := validRemotePath(remotePath); err != nil {
		return nil, err
	}

	if size < 0 {
		return nil, paramError("precreate: negative size %d", size)
	}

	encoded, err := blocklist.Marshal(blockList)
	if err != nil {
		return nil, paramError("precreate: %v", err)
	}

	c.logger.Info("precreating upload",
		slog.String("path", remotePath),
		slog.Int64("size", size),
		slog.Int("blocks", len(blockList)),
	)

	resp, err := call[precreateResponse](ctx, c, &request{
		method:  http.MethodPost,
		service: servicePan,
		path:    filePath,
		params:  url.Values{"method": {"precreate"}},
		body: jsonPayload{v: precreateRequest{
			Path:      remotePath,
			Size:      size,
			AutoInit:  1,
			RType:     rename.rtype(),
			BlockList: encoded,
		}},
	})
	if err != nil {
		return nil, err
	}

	s := &UploadSession{
		Path:          remotePath,
		Size:          size,
		BlockList:     blockList,
		Rename:        rename,
		UploadID:      resp.UploadID,
		PendingBlocks: resp.BlockList,
	}

	if resp.ReturnType == precreateFastUpload {
		rec := resp.fastUploadRecord(remotePath, size)
		s.FastUpload = true
		s.File = &rec

		c.logger.Info("fast upload matched", slog.String("path", remotePath), slog.Int64("fs_id", rec.FsID))

		return s, nil
	}

	if resp.UploadID == "" {
		return nil, decodeError("precreate response", errors.New("missing uploadid"))
	}

	return s, nil
}

// fastUploadRecord picks the nested record when present, then the flattened
// one. A response with neither still describes a stored file, so the request
// values fill the gaps.
func (r *precreateResponse) fastUploadRecord(remotePath string, size int64) FileRecord {
	src := &r.fileRecordResponse
	if r.Info != nil {
		src = r.Info
	}

	rec := src.toRecord()
	if rec.Path == "" {
		rec.Path = remotePath
	}

	if rec.Size == 0 {
		rec.Size = size
	}

	return rec
}

// UploadSlice sends one slice of an upload session. index is the slice's
// zero-based position; slices may arrive in any order because the provider
// keys them by (uploadID, index).
func (c *Client) UploadSlice(
	ctx context.Context, remotePath, uploadID string, index int, data []byte,
) (*SliceAck, error) {
	if uploadID == "" {
		return nil, paramError("upload slice: empty upload id")
	}

	if index < 0 {
		return nil, paramError("upload slice: negative index %d", index)
	}

	resp, err := call[sliceResponse](ctx, c, &request{
		method:  http.MethodPost,
		service: servicePCS,
		path:    superfilePath,
		params: url.Values{
			"method":   {"upload"},
			"type":     {"tmpfile"},
			"path":     {remotePath},
			"uploadid": {uploadID},
			"partseq":  {strconv.Itoa(index)},
		},
		body: multipartPayload{field: "file", filename: "file", data: data},
	})
	if err != nil {
		return nil, fmt.Errorf("slice %d: %w", index, err)
	}

	return &SliceAck{Index: index, MD5: resp.MD5}, nil
}

// Create finalizes an upload session. blockList must be the same list given
// to Precreate; it is serialized the same way, so both submissions are
// byte-identical.
func (c *Client) Create(
	ctx context.Context, remotePath string, size int64, uploadID string, blockList []string, rename RenamePolicy,
) (*FileRecord, error) {
	if err := validRemotePath(remotePath); err != nil {
		return nil, err
	}

	if uploadID == "" {
		return nil, paramError("create: empty upload id")
	}

	encoded, err := blocklist.Marshal(blockList)
	if err != nil {
		return nil, paramError("create: %v", err)
	}

	resp, err := call[fileRecordResponse](ctx, c, &request{
		method:  http.MethodPost,
		service: servicePan,
		path:    filePath,
		params:  url.Values{"method": {"create"}},
		body: jsonPayload{v: createRequest{
			Path:      remotePath,
			Size:      size,
			UploadID:  uploadID,
			RType:     rename.rtype(),
			BlockList: encoded,
		}},
	})
	if err != nil {
		return nil, err
	}

	rec := resp.toRecord()

	c.logger.Info("upload finalized",
		slog.String("path", rec.Path),
		slog.Int64("fs_id", rec.FsID),
		slog.Int64("size", rec.Size),
	)

	return &rec, nil
}

// UploadSlices runs the slice phase of s over content. Slices are dispatched
// in ascending index order; with opts.Workers > 1 up to that many are in
// flight at once.
func (c *Client) UploadSlices(ctx context.Context, s *UploadSession, content io.ReaderAt, opts UploadOpts) error {
	if s == nil || s.FastUpload {
		return paramError("upload slices: no pending upload session")
	}

	windows, err := blocklist.Windows(s.Size, opts.chunkSize())
	if err != nil {
		return paramError("upload slices: %v", err)
	}

	if len(windows) != len(s.BlockList) {
		return paramError("upload slices: %d windows but %d block digests", len(windows), len(s.BlockList))
	}

	sp := &sliceProgress{opts: opts, total: s.Size}

	if opts.Workers <= 1 {
		buf := make([]byte, min(opts.chunkSize(), max(s.Size, 1)))

		for _, w := range windows {
			if err := c.sendWindow(ctx, s, content, w, buf, sp); err != nil {
				return err
			}
		}

		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, w := range windows {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			return c.sendWindow(gctx, s, content, w, make([]byte, w.Length), sp)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}

// sliceProgress serializes the progress and per-slice callbacks across
// workers.
type sliceProgress struct {
	mu    sync.Mutex
	opts  UploadOpts
	done  int64
	total int64
}

func (p *sliceProgress) finish(n int64, ack *SliceAck) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ack != nil && p.opts.OnSlice != nil {
		if err := p.opts.OnSlice(ack); err != nil {
			return err
		}
	}

	p.done += n
	if p.opts.Progress != nil {
		p.opts.Progress(p.done, p.total)
	}

	return nil
}

// sendWindow reads and uploads a single window, unless it is skipped.
func (c *Client) sendWindow(
	ctx context.Context, s *UploadSession, content io.ReaderAt, w blocklist.Window, buf []byte, sp *sliceProgress,
) error {
	if sp.opts.Skip != nil && sp.opts.Skip(w.Index) {
		c.logger.Debug("skipping acknowledged slice", slog.Int("index", w.Index))

		return sp.finish(w.Length, nil)
	}

	data := buf[:w.Length]

	var r io.Reader = io.NewSectionReader(content, w.Offset, w.Length)
	if sp.opts.Wrap != nil {
		r = sp.opts.Wrap(r)
	}

	if _, err := io.ReadFull(r, data); err != nil {
		return ioError(fmt.Sprintf("reading slice %d", w.Index), err)
	}

	ack, err := c.UploadSlice(ctx, s.Path, s.UploadID, w.Index, data)
	if err != nil {
		return err
	}

	if want := s.BlockList[w.Index]; ack.MD5 != "" && ack.MD5 != want {
		c.logger.Warn("slice digest mismatch",
			slog.Int("index", w.Index),
			slog.String("local_md5", want),
			slog.String("remote_md5", ack.MD5),
		)
	}

	return sp.finish(w.Length, ack)
}

// Upload runs the full upload machine over content: hash, precreate, then
// either return the fast-upload record or upload every slice and create.
// Any failure aborts; nothing is kept for resumption.
func (c *Client) Upload(
	ctx context.Context, content io.ReaderAt, size int64, remotePath string, opts UploadOpts,
) (*FileRecord, error) {
	if err := validRemotePath(remotePath); err != nil {
		return nil, err
	}

	if opts.ChunkSize < 0 {
		return nil, paramError("upload: chunk size must be positive, got %d", opts.ChunkSize)
	}

	digests, n, err := blocklist.Compute(io.NewSectionReader(content, 0, size), opts.chunkSize())
	if err != nil {
		return nil, ioError("hashing content", err)
	}

	if n != size {
		return nil, ioError("hashing content", fmt.Errorf("read %d bytes, expected %d", n, size))
	}

	s, err := c.Precreate(ctx, remotePath, size, digests, opts.Rename)
	if err != nil {
		return nil, err
	}

	if s.FastUpload {
		if opts.Progress != nil {
			opts.Progress(size, size)
		}

		return s.File, nil
	}

	if err := c.UploadSlices(ctx, s, content, opts); err != nil {
		return nil, err
	}

	return c.Create(ctx, s.Path, s.Size, s.UploadID, s.BlockList, s.Rename)
}

// UploadFile uploads the local file at localPath to remotePath.
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string, opts UploadOpts) (*FileRecord, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, ioError("opening local file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, ioError("stat local file", err)
	}

	if info.IsDir() {
		return nil, paramError("upload: %s is a directory", localPath)
	}

	return c.Upload(ctx, f, info.Size(), remotePath, opts)
}

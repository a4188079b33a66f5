package transfer

import (
	"context"
	"io"

	"github.com/tonimelisma/baidupan-go/internal/xpan"
)

// Uploader runs the three-phase upload protocol. Satisfied by *xpan.Client.
// The phases are called individually so a journaled session can skip slices
// the provider already acknowledged.
type Uploader interface {
	Precreate(
		ctx context.Context, remotePath string, size int64, blockList []string, rename xpan.RenamePolicy,
	) (*xpan.UploadSession, error)
	UploadSlices(ctx context.Context, s *xpan.UploadSession, content io.ReaderAt, opts xpan.UploadOpts) error
	Create(
		ctx context.Context, remotePath string, size int64, uploadID string, blockList []string, rename xpan.RenamePolicy,
	) (*xpan.FileRecord, error)
}

// Downloader streams a download link, optionally from a byte offset, and
// resolves file ids to download links. Satisfied by *xpan.Client.
type Downloader interface {
	DownloadStream(ctx context.Context, link string, w io.Writer, rng *xpan.ByteRange) (int64, error)
	FileMetas(ctx context.Context, fsIDs []int64, opts xpan.MetasOpts) ([]xpan.FileRecord, error)
}

package xpan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
)

// MetasOpts selects the optional parts of a FileMetas response.
type MetasOpts struct {
	DLink     bool // include the short-lived download link
	Thumb     bool // include thumbnail URLs
	Extra     bool // include extra info (image EXIF, video duration)
	NeedMedia bool // include media details for video files
}

// FileMetas returns metadata for the given file ids. With DLink set, each
// record's DownloadLink can be passed to Download.
func (c *Client) FileMetas(ctx context.Context, fsIDs []int64, opts MetasOpts) ([]FileRecord, error) {
	if len(fsIDs) == 0 {
		return nil, paramError("filemetas: no file ids")
	}

	ids, err := json.Marshal(fsIDs)
	if err != nil {
		return nil, paramError("filemetas: encoding ids: %v", err)
	}

	params := url.Values{"method": {"filemetas"}, "fsids": {string(ids)}}
	setFlag(params, "dlink", opts.DLink)
	setFlag(params, "thumb", opts.Thumb)
	setFlag(params, "extra", opts.Extra)
	setFlag(params, "needmedia", opts.NeedMedia)

	resp, err := call[listResponse](ctx, c, &request{
		method: http.MethodGet, service: servicePan, path: multimediaPath, params: params,
	})
	if err != nil {
		return nil, err
	}

	return toRecords(resp.List), nil
}

// Stat resolves a remote path to its record by listing the parent directory.
// The provider has no lookup-by-path call.
func (c *Client) Stat(ctx context.Context, remotePath string) (*FileRecord, error) {
	remotePath = CleanPath(remotePath)
	if remotePath == "/" {
		return &FileRecord{Path: "/", IsDir: true}, nil
	}

	dir, name := path.Split(remotePath)

	opts := ListOpts{Limit: statPageSize}
	for {
		page, err := c.List(ctx, CleanPath(dir), opts)
		if err != nil {
			return nil, err
		}

		for i := range page.Files {
			if page.Files[i].ServerFilename == name || page.Files[i].Path == remotePath {
				return &page.Files[i], nil
			}
		}

		if len(page.Files) < opts.Limit {
			return nil, ErrNotFound
		}

		opts.Start += len(page.Files)
	}
}

// statPageSize is the page size Stat lists with; the provider caps list at
// 1000 entries per call.
const statPageSize = 1000

func setFlag(params url.Values, key string, on bool) {
	if on {
		params.Set(key, "1")
	}
}

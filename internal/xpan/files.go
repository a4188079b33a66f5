package xpan

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

const (
	filePath       = "/rest/2.0/xpan/file"
	multimediaPath = "/rest/2.0/xpan/multimedia"
)

// ListOpts controls List. Zero values leave the provider defaults in place.
type ListOpts struct {
	Order  string // "name", "time" or "size"
	Desc   bool
	Start  int
	Limit  int // provider default 1000
	Folder bool // directories only
}

// List returns the direct children of dir.
func (c *Client) List(ctx context.Context, dir string, opts ListOpts) (*ListResult, error) {
	if dir == "" {
		return nil, paramError("list: empty directory")
	}

	params := url.Values{"method": {"list"}, "dir": {dir}}
	if opts.Order != "" {
		params.Set("order", opts.Order)
	}

	if opts.Desc {
		params.Set("desc", "1")
	}

	if opts.Start > 0 {
		params.Set("start", strconv.Itoa(opts.Start))
	}

	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	if opts.Folder {
		params.Set("folder", "1")
	}

	resp, err := call[listResponse](ctx, c, &request{
		method: http.MethodGet, service: servicePan, path: filePath, params: params,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("listed directory", slog.String("dir", dir), slog.Int("count", len(resp.List)))

	return resp.toResult(), nil
}

// SearchOpts controls Search.
type SearchOpts struct {
	Dir       string // defaults to the root on the provider side
	Recursion bool
}

// Search finds files whose name contains key.
func (c *Client) Search(ctx context.Context, key string, opts SearchOpts) (*ListResult, error) {
	if key == "" {
		return nil, paramError("search: empty key")
	}

	params := url.Values{"method": {"search"}, "key": {key}}
	if opts.Dir != "" {
		params.Set("dir", opts.Dir)
	}

	if opts.Recursion {
		params.Set("recursion", "1")
	}

	resp, err := call[listResponse](ctx, c, &request{
		method: http.MethodGet, service: servicePan, path: filePath, params: params,
	})
	if err != nil {
		return nil, err
	}

	return resp.toResult(), nil
}

// ImageList returns the account's images.
func (c *Client) ImageList(ctx context.Context) (*ListResult, error) {
	return c.categoryList(ctx, "imagelist")
}

// DocList returns the account's documents.
func (c *Client) DocList(ctx context.Context) (*ListResult, error) {
	return c.categoryList(ctx, "doclist")
}

func (c *Client) categoryList(ctx context.Context, method string) (*ListResult, error) {
	resp, err := call[listResponse](ctx, c, &request{
		method:  http.MethodGet,
		service: servicePan,
		path:    filePath,
		params:  url.Values{"method": {method}},
	})
	if err != nil {
		return nil, err
	}

	return resp.toResult(), nil
}

// ListAllOpts controls ListAll.
type ListAllOpts struct {
	Recursion bool
	Start     int64 // cursor from a previous page
	Limit     int   // provider default 1000
}

// ListAll lists everything under path, optionally recursively. Pages are
// chained through ListResult.Cursor while ListResult.HasMore is true.
func (c *Client) ListAll(ctx context.Context, path string, opts ListAllOpts) (*ListResult, error) {
	if path == "" {
		return nil, paramError("listall: empty path")
	}

	recursion := "0"
	if opts.Recursion {
		recursion = "1"
	}

	params := url.Values{"method": {"listall"}, "path": {path}, "recursion": {recursion}}
	if opts.Start > 0 {
		params.Set("start", strconv.FormatInt(opts.Start, 10))
	}

	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	resp, err := call[listResponse](ctx, c, &request{
		method: http.MethodGet, service: servicePan, path: multimediaPath, params: params,
	})
	if err != nil {
		return nil, err
	}

	return resp.toResult(), nil
}

// ListAllPages walks every ListAll page, calling fn for each. It stops at the
// first error from the provider or from fn.
func (c *Client) ListAllPages(ctx context.Context, path string, opts ListAllOpts, fn func(*ListResult) error) error {
	for {
		page, err := c.ListAll(ctx, path, opts)
		if err != nil {
			return err
		}

		if err := fn(page); err != nil {
			return err
		}

		if !page.HasMore || page.Cursor <= opts.Start {
			return nil
		}

		opts.Start = page.Cursor
	}
}

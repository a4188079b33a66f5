package xpan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
)

// ByteRange is an inclusive byte range. A nil *ByteRange means no Range
// header at all; a ByteRange with both bounds nil requests "bytes=0-".
type ByteRange struct {
	Start *int64
	End   *int64
}

// RangeFrom returns the open range [start, EOF).
func RangeFrom(start int64) *ByteRange {
	return &ByteRange{Start: &start}
}

// RangeBetween returns the closed range [start, end].
func RangeBetween(start, end int64) *ByteRange {
	return &ByteRange{Start: &start, End: &end}
}

// BuildRange renders a Range header value. Exactly four forms exist:
// "bytes=s-e", "bytes=s-", "bytes=-e" (the last e bytes), and "bytes=0-".
func BuildRange(start, end *int64) string {
	switch {
	case start != nil && end != nil:
		return "bytes=" + strconv.FormatInt(*start, 10) + "-" + strconv.FormatInt(*end, 10)
	case start != nil:
		return "bytes=" + strconv.FormatInt(*start, 10) + "-"
	case end != nil:
		return "bytes=-" + strconv.FormatInt(*end, 10)
	default:
		return "bytes=0-"
	}
}

// header returns the Range header for rng, or nil when rng is nil.
func (rng *ByteRange) header() http.Header {
	if rng == nil {
		return nil
	}

	return http.Header{"Range": {BuildRange(rng.Start, rng.End)}}
}

// appends reports whether a local write for rng continues an existing file.
func (rng *ByteRange) appends() bool {
	return rng != nil && rng.Start != nil && *rng.Start != 0
}

// ErrRangeIgnored is returned when a request starting past offset 0 is
// answered with the whole content (200) instead of 206. Appending that body
// to a partial file would corrupt it.
var ErrRangeIgnored = fmt.Errorf("%w: range request answered with full content", ErrAPI)

// openDownload issues the GET for link. The caller closes the body.
//
// A failed response becomes an *APIError whose Message is the raw body,
// truncated to maxErrorBody bytes. A failure reading that body is appended
// to the message.
func (c *Client) openDownload(ctx context.Context, link string, rng *ByteRange) (*http.Response, error) {
	if link == "" {
		return nil, paramError("download: empty link")
	}

	resp, err := c.do(ctx, &request{
		method:   http.MethodGet,
		rawURL:   link,
		download: true,
		header:   rng.header(),
	})
	if err != nil {
		return nil, err
	}

	if !downloadStatusOK(resp.StatusCode) {
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		msg := string(body)
		if readErr != nil {
			msg += " (reading body: " + readErr.Error() + ")"
		}

		return nil, &APIError{Errno: resp.StatusCode, Message: msg, HTTPStatus: resp.StatusCode}
	}

	if rng.appends() && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()

		return nil, fmt.Errorf("%w (status %d for %s)", ErrRangeIgnored, resp.StatusCode, BuildRange(rng.Start, rng.End))
	}

	return resp, nil
}

// maxErrorBody bounds how much of a failed download response is kept as the
// error message.
const maxErrorBody = 64 * 1024

func downloadStatusOK(code int) bool {
	return code == http.StatusOK || code == http.StatusPartialContent
}

// Download fetches the content behind a download link (FileRecord.DownloadLink)
// into memory.
func (c *Client) Download(ctx context.Context, link string, rng *ByteRange) ([]byte, error) {
	resp, err := c.openDownload(ctx, link, rng)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("reading download body", err)
	}

	return data, nil
}

// DownloadTo fetches the content into memory and then writes it to dest.
// With a non-zero rng.Start the file is opened for append, and the caller
// must make sure it already holds exactly Start bytes; otherwise it is
// created or truncated. A server that ignores the range yields
// ErrRangeIgnored and leaves dest untouched. Returns the number of bytes
// written.
func (c *Client) DownloadTo(ctx context.Context, link, dest string, rng *ByteRange) (int64, error) {
	data, err := c.Download(ctx, link, rng)
	if err != nil {
		return 0, err
	}

	f, err := openDestination(dest, rng.appends())
	if err != nil {
		return 0, err
	}

	n, err := f.Write(data)
	if err != nil {
		f.Close()
		return int64(n), ioError("writing "+dest, err)
	}

	if err := f.Close(); err != nil {
		return int64(n), ioError("closing "+dest, err)
	}

	c.logger.Debug("download written",
		slog.String("dest", dest),
		slog.Int("bytes", n),
		slog.Bool("append", rng.appends()),
	)

	return int64(n), nil
}

// DownloadStream copies the content to w as it arrives, without buffering the
// whole body. Use it for large files.
func (c *Client) DownloadStream(ctx context.Context, link string, w io.Writer, rng *ByteRange) (int64, error) {
	resp, err := c.openDownload(ctx, link, rng)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	tw := &trackedWriter{w: w}

	n, err := io.Copy(tw, resp.Body)
	if tw.err != nil {
		return n, ioError("writing download", tw.err)
	}

	if err != nil {
		return n, transportError("streaming download body", err)
	}

	return n, nil
}

// trackedWriter remembers write failures so they can be told apart from
// network read failures after io.Copy.
type trackedWriter struct {
	w   io.Writer
	err error
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}

	return n, err
}

func openDestination(dest string, appendMode bool) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}

	f, err := os.OpenFile(dest, flags, 0o644) //nolint:gosec // caller-chosen destination
	if err != nil {
		return nil, ioError("opening "+dest, err)
	}

	return f, nil
}

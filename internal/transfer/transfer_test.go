package transfer

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tonimelisma/baidupan-go/internal/xpan"
)

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeProvider serves the upload, metadata, and download endpoints the
// transfer manager drives.
type fakeProvider struct {
	t *testing.T

	mu         sync.Mutex
	precreates int
	creates    int
	slices     []int
	uploadSeq  int
	fastUpload bool

	// failSlice makes the next n sends of a slice index fail with HTTP 500.
	failSlice map[int]int

	// rejectUploadID makes every slice for that session fail with a
	// provider error, as for an expired session.
	rejectUploadID string

	content []byte
	ranges  []string
	denyGet bool

	// ignoreRange answers every download with 200 and the whole content.
	ignoreRange bool
}

func newFakeProvider(t *testing.T) (*fakeProvider, *httptest.Server) {
	t.Helper()

	fp := &fakeProvider{t: t, failSlice: map[int]int{}}
	srv := httptest.NewServer(fp)
	t.Cleanup(srv.Close)

	return fp, srv
}

func (fp *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	q := r.URL.Query()

	switch {
	case r.URL.Path == "/rest/2.0/xpan/file" && q.Get("method") == "precreate":
		fp.precreates++

		if fp.fastUpload {
			fmt.Fprint(w, `{"errno":0,"return_type":1,"info":{"fs_id":7,"path":"/apps/t/big.bin","size":10}}`)
			return
		}

		fp.uploadSeq++
		fmt.Fprintf(w, `{"errno":0,"return_type":2,"uploadid":"up-%d","block_list":[0,1,2]}`, fp.uploadSeq)

	case r.URL.Path == "/rest/2.0/pcs/superfile2":
		var idx int
		fmt.Sscan(q.Get("partseq"), &idx)
		fp.slices = append(fp.slices, idx)

		if q.Get("uploadid") == fp.rejectUploadID {
			fmt.Fprint(w, `{"error_code":31363,"error_msg":"upload session not found"}`)
			return
		}

		if fp.failSlice[idx] > 0 {
			fp.failSlice[idx]--
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		f, _, err := r.FormFile("file")
		if !fp.assertNoError(err) {
			return
		}

		data, err := io.ReadAll(f)
		if !fp.assertNoError(err) {
			return
		}

		sum := md5.Sum(data)
		fmt.Fprintf(w, `{"md5":%q}`, hex.EncodeToString(sum[:]))

	case r.URL.Path == "/rest/2.0/xpan/file" && q.Get("method") == "create":
		fp.creates++
		fmt.Fprint(w, `{"errno":0,"fs_id":42,"path":"/apps/t/big.bin","size":10}`)

	case r.URL.Path == "/rest/2.0/xpan/multimedia" && q.Get("method") == "filemetas":
		fmt.Fprintf(w, `{"errno":0,"list":[{"fs_id":42,"path":"/apps/t/big.bin","size":%d,"dlink":"http://%s/file/big"}]}`,
			len(fp.content), r.Host)

	case r.URL.Path == "/file/big":
		fp.ranges = append(fp.ranges, r.Header.Get("Range"))

		if fp.denyGet {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		if fp.ignoreRange {
			_, _ = w.Write(fp.content)
			return
		}

		http.ServeContent(w, r, "big", time.Time{}, bytes.NewReader(fp.content))

	default:
		fp.t.Errorf("unexpected request %s %s", r.Method, r.URL)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (fp *fakeProvider) assertNoError(err error) bool {
	if err != nil {
		fp.t.Errorf("fake provider: %v", err)
		return false
	}

	return true
}

func (fp *fakeProvider) sliceLog() []int {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return append([]int(nil), fp.slices...)
}

func newTestXpan(t *testing.T, url string) *xpan.Client {
	t.Helper()

	cfg := xpan.NewConfig("test-token")
	cfg.Server = xpan.ServerConfig{PanURL: url, PCSURL: url, OpenAPIURL: url}

	return xpan.NewClient(cfg, nil, testLogger(t))
}

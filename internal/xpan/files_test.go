package xpan

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_ParamsAndRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, filePath, r.URL.Path)
		assert.Equal(t, "list", q.Get("method"))
		assert.Equal(t, "/apps/x", q.Get("dir"))
		assert.Equal(t, "size", q.Get("order"))
		assert.Equal(t, "1", q.Get("desc"))
		assert.Equal(t, "50", q.Get("limit"))
		assert.False(t, q.Has("start"))

		_, _ = w.Write([]byte(`{"errno":0,"guid_info":"","list":[
			{"fs_id":1,"path":"/apps/x/a.txt","server_filename":"a.txt","size":10,"isdir":0,"category":4,
			 "local_ctime":1,"local_mtime":2,"server_ctime":1700000000,"server_mtime":1700000100,"md5":"aa"},
			{"fs_id":2,"path":"/apps/x/sub","server_filename":"sub","size":0,"isdir":1,"category":6}
		],"request_id":123}`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL).List(context.Background(), "/apps/x", ListOpts{Order: "size", Desc: true, Limit: 50})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)

	a := res.Files[0]
	assert.Equal(t, int64(1), a.FsID)
	assert.Equal(t, "a.txt", a.ServerFilename)
	assert.False(t, a.IsDir)
	assert.Equal(t, time.Unix(1700000100, 0).UTC(), a.ModifiedAt)
	assert.True(t, res.Files[1].IsDir)
	assert.True(t, res.Files[1].ModifiedAt.IsZero())
}

func TestList_EmptyDir(t *testing.T) {
	_, err := newTestClient(t, "http://unused.invalid").List(context.Background(), "", ListOpts{})
	assert.ErrorIs(t, err, ErrParam)
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "search", q.Get("method"))
		assert.Equal(t, "report", q.Get("key"))
		assert.Equal(t, "/docs", q.Get("dir"))
		assert.Equal(t, "1", q.Get("recursion"))

		_, _ = w.Write([]byte(`{"errno":0,"list":[{"fs_id":3,"path":"/docs/report.pdf"}],"has_more":0}`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL).Search(context.Background(), "report", SearchOpts{Dir: "/docs", Recursion: true})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "/docs/report.pdf", res.Files[0].Path)
}

func TestCategoryLists(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.URL.Query().Get("method"))
		_, _ = w.Write([]byte(`{"errno":0,"list":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.ImageList(context.Background())
	require.NoError(t, err)

	_, err = c.DocList(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"imagelist", "doclist"}, methods)
}

func TestListAllPages_FollowsCursor(t *testing.T) {
	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, multimediaPath, r.URL.Path)
		assert.Equal(t, "listall", q.Get("method"))
		assert.Equal(t, "1", q.Get("recursion"))
		starts = append(starts, q.Get("start"))

		if q.Get("start") == "" {
			_, _ = w.Write([]byte(`{"errno":0,"list":[{"fs_id":1},{"fs_id":2}],"cursor":2,"has_more":1}`))
			return
		}

		_, _ = w.Write([]byte(`{"errno":0,"list":[{"fs_id":3}],"cursor":3,"has_more":0}`))
	}))
	defer srv.Close()

	var ids []int64
	err := newTestClient(t, srv.URL).ListAllPages(context.Background(), "/apps", ListAllOpts{Recursion: true, Limit: 2},
		func(page *ListResult) error {
			for _, f := range page.Files {
				ids = append(ids, f.FsID)
			}

			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, []string{"", "2"}, starts)
}

func TestFileMetas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "filemetas", q.Get("method"))
		assert.Equal(t, "[11,22]", q.Get("fsids"))
		assert.Equal(t, "1", q.Get("dlink"))
		assert.False(t, q.Has("thumb"))

		_, _ = w.Write([]byte(`{"errno":0,"list":[
			{"fs_id":11,"path":"/a","dlink":"https://d.pcs.baidu.com/file/abc?fid=11","extra":{"duration":3}},
			{"fs_id":22,"path":"/b","dlink":"https://d.pcs.baidu.com/file/def?fid=22"}
		]}`))
	}))
	defer srv.Close()

	recs, err := newTestClient(t, srv.URL).FileMetas(context.Background(), []int64{11, 22}, MetasOpts{DLink: true})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "https://d.pcs.baidu.com/file/abc?fid=11", recs[0].DownloadLink)
	assert.JSONEq(t, `{"duration":3}`, string(recs[0].Extra))
}

func TestFileMetas_NoIDs(t *testing.T) {
	_, err := newTestClient(t, "http://unused.invalid").FileMetas(context.Background(), nil, MetasOpts{})
	assert.ErrorIs(t, err, ErrParam)
}

func TestStat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apps/x", r.URL.Query().Get("dir"))
		fmt.Fprint(w, `{"errno":0,"list":[{"fs_id":1,"path":"/apps/x/a","server_filename":"a"},{"fs_id":2,"path":"/apps/x/b","server_filename":"b"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	rec, err := c.Stat(context.Background(), "/apps/x/b/")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.FsID)

	_, err = c.Stat(context.Background(), "/apps/x/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	root, err := c.Stat(context.Background(), "/")
	require.NoError(t, err)
	assert.True(t, root.IsDir)
}

func TestUserAndQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/2.0/xpan/nas":
			assert.Equal(t, "uinfo", r.URL.Query().Get("method"))
			_, _ = w.Write([]byte(`{"errno":0,"netdisk_name":"disk","vip_type":2,"uk":9}`))
		case "/api/quota":
			assert.Equal(t, "1", r.URL.Query().Get("checkfree"))
			assert.Equal(t, "1", r.URL.Query().Get("checkexpire"))
			_, _ = w.Write([]byte(`{"errno":0,"total":2048,"used":1024,"free":1024,"expire":false}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	u, err := c.UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, u.VIPType)

	q, err := c.Quota(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1024), q.Used)
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"apps/x", "/apps/x"},
		{"/apps//x/", "/apps/x"},
		{"/apps/./x/../y", "/apps/y"},
		{`\apps\win`, "/apps/win"},
		{"/cafe\u0301", "/caf\u00e9"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanPath(tt.in), "CleanPath(%q)", tt.in)
	}

	assert.Equal(t, "/apps/x/y.txt", JoinPath("/apps", "x", "y.txt"))
}

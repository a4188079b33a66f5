package xpan

import (
	"encoding/json"
	"time"
)

// FileRecord is a clean, typed view of a remote file or directory. All
// provider quirks (0/1 booleans, unix-second timestamps, server_* aliases)
// are resolved by toRecord so callers never see the raw wire shape.
type FileRecord struct {
	FsID           int64
	Path           string
	ServerFilename string
	Size           int64
	MD5            string
	IsDir          bool
	Category       int
	CreatedAt      time.Time
	ModifiedAt     time.Time

	// Set by FileMetas only.
	DownloadLink string // short-lived, NEVER log
	Thumbs       json.RawMessage
	Extra        json.RawMessage
}

// fileRecordResponse is the JSON shape shared by list, search, metas,
// precreate (fast upload), and create responses.
type fileRecordResponse struct {
	FsID           int64           `json:"fs_id"`
	Path           string          `json:"path"`
	ServerFilename string          `json:"server_filename"`
	Size           int64           `json:"size"`
	MD5            string          `json:"md5"`
	IsDir          int             `json:"isdir"`
	Category       int             `json:"category"`
	Ctime          int64           `json:"ctime"`
	Mtime          int64           `json:"mtime"`
	ServerCtime    int64           `json:"server_ctime"`
	ServerMtime    int64           `json:"server_mtime"`
	DLink          string          `json:"dlink"`
	Thumbs         json.RawMessage `json:"thumbs"`
	Extra          json.RawMessage `json:"extra"`
}

// toRecord converts the wire shape. server_ctime/server_mtime win over the
// local ctime/mtime when both are present: list responses carry both, and the
// server times are the ones the web UI shows.
func (r *fileRecordResponse) toRecord() FileRecord {
	ctime := r.Ctime
	if r.ServerCtime != 0 {
		ctime = r.ServerCtime
	}

	mtime := r.Mtime
	if r.ServerMtime != 0 {
		mtime = r.ServerMtime
	}

	return FileRecord{
		FsID:           r.FsID,
		Path:           r.Path,
		ServerFilename: r.ServerFilename,
		Size:           r.Size,
		MD5:            r.MD5,
		IsDir:          r.IsDir == 1,
		Category:       r.Category,
		CreatedAt:      unixTime(ctime),
		ModifiedAt:     unixTime(mtime),
		DownloadLink:   r.DLink,
		Thumbs:         r.Thumbs,
		Extra:          r.Extra,
	}
}

// unixTime maps 0 to the zero time rather than the 1970 epoch.
func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}

	return time.Unix(sec, 0).UTC()
}

func toRecords(in []fileRecordResponse) []FileRecord {
	out := make([]FileRecord, 0, len(in))
	for i := range in {
		out = append(out, in[i].toRecord())
	}

	return out
}

// ListResult is one page of a listing. Cursor and HasMore are only filled by
// ListAll; the other listings are not paginated by cursor.
type ListResult struct {
	Files   []FileRecord
	Cursor  int64
	HasMore bool
}

type listResponse struct {
	List    []fileRecordResponse `json:"list"`
	Cursor  int64                `json:"cursor"`
	HasMore int                  `json:"has_more"`
}

func (r *listResponse) toResult() *ListResult {
	return &ListResult{
		Files:   toRecords(r.List),
		Cursor:  r.Cursor,
		HasMore: r.HasMore == 1,
	}
}

// ManageResult is the outcome of a file-management batch. Info holds the
// provider's per-item status entries verbatim; partial success inside a
// batch is reported there, not as an error.
type ManageResult struct {
	TaskID int64
	Info   []ManageItem
}

// ManageItem is one per-item entry of a batch result.
type ManageItem struct {
	Path  string `json:"path"`
	FsID  int64  `json:"fs_id"`
	Errno int    `json:"errno"`
}

type manageResponse struct {
	TaskID int64        `json:"taskid"`
	Info   []ManageItem `json:"info"`
}

// UserInfo describes the account behind the access token.
type UserInfo struct {
	BaiduName   string `json:"baidu_name"`
	NetdiskName string `json:"netdisk_name"`
	AvatarURL   string `json:"avatar_url"`
	VIPType     int    `json:"vip_type"`
	UK          int64  `json:"uk"`
}

// Quota is the account's storage usage in bytes.
type Quota struct {
	Total  int64 `json:"total"`
	Used   int64 `json:"used"`
	Free   int64 `json:"free"`
	Expire bool  `json:"expire"`
}

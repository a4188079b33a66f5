package xpan

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"path"
)

type createDirRequest struct {
	Path  string `json:"path"`
	IsDir int    `json:"isdir"`
	RType int    `json:"rtype"`
}

// CreateDir creates a directory. rtype 0: an existing directory of the same
// name is reported by the provider as an error.
func (c *Client) CreateDir(ctx context.Context, dirPath string) (*FileRecord, error) {
	if err := validRemotePath(dirPath); err != nil {
		return nil, err
	}

	resp, err := call[fileRecordResponse](ctx, c, &request{
		method:  http.MethodPost,
		service: servicePan,
		path:    filePath,
		params:  url.Values{"method": {"create"}},
		body:    jsonPayload{v: createDirRequest{Path: dirPath, IsDir: 1, RType: 0}},
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("created directory", slog.String("path", dirPath))

	rec := resp.toRecord()

	return &rec, nil
}

// Delete removes the given paths in one batch.
func (c *Client) Delete(ctx context.Context, paths []string) (*ManageResult, error) {
	if len(paths) == 0 {
		return nil, paramError("delete: no paths")
	}

	items := make([]manageEntry, 0, len(paths))
	for _, p := range paths {
		items = append(items, manageEntry{Path: p})
	}

	return c.fileManager(ctx, "delete", items)
}

// Move moves from[i] to to[i]. Each target is a full path: its parent
// directory becomes the destination and its base name the new name.
func (c *Client) Move(ctx context.Context, from, to []string) (*ManageResult, error) {
	items, err := pairEntries("move", from, to)
	if err != nil {
		return nil, err
	}

	return c.fileManager(ctx, "move", items)
}

// Copy copies from[i] to to[i], with the same target rules as Move.
func (c *Client) Copy(ctx context.Context, from, to []string) (*ManageResult, error) {
	items, err := pairEntries("copy", from, to)
	if err != nil {
		return nil, err
	}

	return c.fileManager(ctx, "copy", items)
}

// Rename gives the entry at p a new base name within its directory.
func (c *Client) Rename(ctx context.Context, p, newName string) (*ManageResult, error) {
	if p == "" || newName == "" {
		return nil, paramError("rename: path and new name are required")
	}

	return c.fileManager(ctx, "rename", []manageEntry{{Path: p, NewName: newName}})
}

// manageEntry is one element of the filelist parameter.
type manageEntry struct {
	Path    string `json:"path"`
	Dest    string `json:"dest,omitempty"`
	NewName string `json:"newname,omitempty"`
}

// pairEntries validates and zips source and target lists before any request
// is built.
func pairEntries(opera string, from, to []string) ([]manageEntry, error) {
	if len(from) != len(to) {
		return nil, paramError("%s: %d sources but %d targets", opera, len(from), len(to))
	}

	if len(from) == 0 {
		return nil, paramError("%s: no paths", opera)
	}

	items := make([]manageEntry, 0, len(from))
	for i := range from {
		target := CleanPath(to[i])
		items = append(items, manageEntry{
			Path:    from[i],
			Dest:    path.Dir(target),
			NewName: path.Base(target),
		})
	}

	return items, nil
}

// fileManager sends one filemanager batch. The filelist is a JSON array
// carried as a string value inside the JSON body.
func (c *Client) fileManager(ctx context.Context, opera string, items []manageEntry) (*ManageResult, error) {
	list, err := json.Marshal(items)
	if err != nil {
		return nil, paramError("%s: encoding filelist: %v", opera, err)
	}

	resp, err := call[manageResponse](ctx, c, &request{
		method:  http.MethodPost,
		service: servicePan,
		path:    filePath,
		params:  url.Values{"method": {"filemanager"}, "opera": {opera}},
		body:    jsonPayload{v: map[string]string{"filelist": string(list)}},
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("file manager batch completed",
		slog.String("opera", opera),
		slog.Int("items", len(items)),
		slog.Int64("task_id", resp.TaskID),
	)

	return &ManageResult{TaskID: resp.TaskID, Info: resp.Info}, nil
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/baidupan-go/internal/transfer"
	"github.com/tonimelisma/baidupan-go/internal/xpan"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}

	cmd.Flags().String("order", "name", "sort by name, time, or size")
	cmd.Flags().Bool("desc", false, "sort descending")
	cmd.Flags().Bool("dirs-only", false, "list directories only")
	cmd.Flags().Int("limit", 0, "maximum entries per page (provider default 1000)")

	return cmd
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Find files by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().String("dir", "", "directory to search in")
	cmd.Flags().BoolP("recursive", "r", false, "search subdirectories")

	return cmd
}

func newListAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listall <path>",
		Short: "List everything under a directory, following pages",
		Args:  cobra.ExactArgs(1),
		RunE:  runListAll,
	}

	cmd.Flags().BoolP("recursive", "r", false, "descend into subdirectories")

	return cmd
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newMetaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta <fs_id>...",
		Short: "Display metadata for file ids",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runMeta,
	}

	cmd.Flags().Bool("dlink", false, "include the download link")

	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file",
		Long: `Download a file. An interrupted download leaves a .partial file next to
the target that the next run continues from.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runGet,
	}

	cmd.Flags().Bool("no-resume", false, "discard any partial download and start over")

	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> <remote-path>",
		Short: "Upload a file",
		Long: `Upload a file. A remote path ending in "/" names the target directory.
Content the provider already holds completes without sending data.`,
		Args: cobra.ExactArgs(2), //nolint:mnd // local and remote
		RunE: runPut,
	}

	cmd.Flags().String("rename", "", "on name conflict: fail, rename, or overwrite (default from config)")
	cmd.Flags().Int("parallel", 0, "slices sent at once (default from config)")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete files or folders",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRm,
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <source> <target>",
		Short: "Move a file or folder to a new path",
		Args:  cobra.ExactArgs(2), //nolint:mnd // source and target
		RunE:  runMv,
	}
}

func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <source> <target>",
		Short: "Copy a file or folder to a new path",
		Args:  cobra.ExactArgs(2), //nolint:mnd // source and target
		RunE:  runCp,
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file or folder in place",
		Args:  cobra.ExactArgs(2), //nolint:mnd // path and name
		RunE:  runRename,
	}
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dir := "/"
	if len(args) > 0 {
		dir = xpan.CleanPath(args[0])
	}

	opts := xpan.ListOpts{}
	opts.Order, _ = cmd.Flags().GetString("order")
	opts.Desc, _ = cmd.Flags().GetBool("desc")
	opts.Folder, _ = cmd.Flags().GetBool("dirs-only")
	opts.Limit, _ = cmd.Flags().GetInt("limit")

	s, err := NewSession(ctx, resolvedCfg, buildLogger())
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.Client.List(ctx, dir, opts)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}

	return printFiles(cmd.OutOrStdout(), res.Files)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	opts := xpan.SearchOpts{}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		opts.Dir = xpan.CleanPath(dir)
	}

	opts.Recursion, _ = cmd.Flags().GetBool("recursive")

	s, err := NewSession(ctx, resolvedCfg, buildLogger())
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.Client.Search(ctx, args[0], opts)
	if err != nil {
		return fmt.Errorf("searching for %q: %w", args[0], err)
	}

	return printFiles(cmd.OutOrStdout(), res.Files)
}

func runListAll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dir := xpan.CleanPath(args[0])

	opts := xpan.ListAllOpts{}
	opts.Recursion, _ = cmd.Flags().GetBool("recursive")

	s, err := NewSession(ctx, resolvedCfg, buildLogger())
	if err != nil {
		return err
	}
	defer s.Close()

	var files []xpan.FileRecord

	err = s.Client.ListAllPages(ctx, dir, opts, func(page *xpan.ListResult) error {
		files = append(files, page.Files...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}

	// Paths are more useful than bare names once entries span directories.
	for i := range files {
		files[i].ServerFilename = files[i].Path
	}

	return printFiles(cmd.OutOrStdout(), files)
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := NewSession(ctx, resolvedCfg, buildLogger())
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.Client.Stat(ctx, args[0])
	if err != nil {
		return fmt.Errorf("stat %s: %w", args[0], err)
	}

	w := cmd.OutOrStdout()

	if flagJSON {
		return printJSON(w, toFileJSON(rec))
	}

	printRecord(w, rec)

	return nil
}

// metaOutput extends fileJSON with the download link for `meta --json`.
type metaOutput struct {
	fileJSON
	DownloadLink string `json:"dlink,omitempty"`
}

func runMeta(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ids := make([]int64, 0, len(args))

	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid file id %q", a)
		}

		ids = append(ids, id)
	}

	dlink, _ := cmd.Flags().GetBool("dlink")

	s, err := NewSession(ctx, resolvedCfg, buildLogger())
	if err != nil {
		return err
	}
	defer s.Close()

	recs, err := s.Client.FileMetas(ctx, ids, xpan.MetasOpts{DLink: dlink})
	if err != nil {
		return fmt.Errorf("fetching metadata: %w", err)
	}

	w := cmd.OutOrStdout()

	if flagJSON {
		out := make([]metaOutput, 0, len(recs))
		for i := range recs {
			out = append(out, metaOutput{fileJSON: toFileJSON(&recs[i]), DownloadLink: recs[i].DownloadLink})
		}

		return printJSON(w, out)
	}

	for i := range recs {
		if i > 0 {
			fmt.Fprintln(w)
		}

		printRecord(w, &recs[i])

		if recs[i].DownloadLink != "" {
			fmt.Fprintf(w, "DLink:    %s\n", recs[i].DownloadLink)
		}
	}

	return nil
}

func printRecord(w io.Writer, rec *xpan.FileRecord) {
	kind := "file"
	if rec.IsDir {
		kind = "folder"
	}

	fmt.Fprintf(w, "Path:     %s\n", rec.Path)
	fmt.Fprintf(w, "Type:     %s\n", kind)
	fmt.Fprintf(w, "FsID:     %d\n", rec.FsID)

	if !rec.IsDir {
		fmt.Fprintf(w, "Size:     %s (%d bytes)\n", formatSize(rec.Size), rec.Size)
	}

	if rec.MD5 != "" {
		fmt.Fprintf(w, "MD5:      %s\n", rec.MD5)
	}

	fmt.Fprintf(w, "Created:  %s\n", formatTime(rec.CreatedAt))
	fmt.Fprintf(w, "Modified: %s\n", formatTime(rec.ModifiedAt))
}

// transferOutput is the JSON schema for `get --json` and `put --json`.
type transferOutput struct {
	Local      string `json:"local"`
	Remote     string `json:"remote"`
	FsID       int64  `json:"fs_id,omitempty"`
	Size       int64  `json:"size"`
	Resumed    bool   `json:"resumed"`
	FastUpload bool   `json:"fast_upload,omitempty"`
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	remote := xpan.CleanPath(args[0])
	noResume, _ := cmd.Flags().GetBool("no-resume")

	local := path.Base(remote)
	if len(args) > 1 {
		local = args[1]
	}

	if info, err := os.Stat(local); err == nil && info.IsDir() {
		local = filepath.Join(local, path.Base(remote))
	}

	s, err := NewSession(ctx, resolvedCfg, buildLogger())
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.Client.Stat(ctx, remote)
	if err != nil {
		return fmt.Errorf("stat %s: %w", remote, err)
	}

	if rec.IsDir {
		return fmt.Errorf("%s is a folder", remote)
	}

	tm, err := s.TransferManager(ctx)
	if err != nil {
		return err
	}

	progress := newProgressPrinter(path.Base(remote))

	res, err := tm.DownloadFile(ctx, transfer.Source{FsID: rec.FsID}, local, transfer.DownloadOpts{
		RemoteSize: rec.Size,
		NoResume:   noResume,
		Progress:   progress.fn(),
	})

	progress.done()

	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), transferOutput{
			Local: res.Path, Remote: remote, FsID: rec.FsID, Size: res.Size, Resumed: res.Resumed,
		})
	}

	statusf("Downloaded %s to %s (%s)\n", remote, res.Path, formatSize(res.Size))

	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	local := args[0]

	remote := args[1]
	if strings.HasSuffix(remote, "/") {
		remote = xpan.JoinPath(remote, filepath.Base(local))
	} else {
		remote = xpan.CleanPath(remote)
	}

	rename := resolvedCfg.Rename()

	if v, _ := cmd.Flags().GetString("rename"); v != "" {
		p, err := xpan.ParseRenamePolicy(v)
		if err != nil {
			return err
		}

		rename = p
	}

	workers := resolvedCfg.Transfers.ParallelSlices
	if v, _ := cmd.Flags().GetInt("parallel"); v > 0 {
		workers = v
	}

	s, err := NewSession(ctx, resolvedCfg, buildLogger())
	if err != nil {
		return err
	}
	defer s.Close()

	tm, err := s.TransferManager(ctx)
	if err != nil {
		return err
	}

	progress := newProgressPrinter(filepath.Base(local))

	res, err := tm.UploadFile(ctx, local, remote, transfer.UploadOpts{
		ChunkSize: resolvedCfg.ChunkBytes(),
		Rename:    rename,
		Workers:   workers,
		Progress:  progress.fn(),
	})

	progress.done()

	if err != nil {
		return err
	}

	out := transferOutput{
		Local: local, Remote: remote, Size: res.Size, Resumed: res.Resumed, FastUpload: res.FastUpload,
	}

	// The provider may store the file under another name (rename policy).
	if res.File != nil {
		out.FsID = res.File.FsID

		if res.File.Path != "" {
			out.Remote = res.File.Path
		}
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), out)
	}

	note := ""
	if res.FastUpload {
		note = ", already on server"
	}

	statusf("Uploaded %s to %s (%s%s)\n", local, out.Remote, formatSize(res.Size), note)

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dir := xpan.CleanPath(args[0])

	s, err := NewSession(ctx, resolvedCfg, buildLogger())
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.Client.CreateDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), toFileJSON(rec))
	}

	statusf("Created %s\n", rec.Path)

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	paths := make([]string, 0, len(args))
	for _, a := range args {
		paths = append(paths, xpan.CleanPath(a))
	}

	return runManage(cmd, "Deleted", func(c *xpan.Client) (*xpan.ManageResult, error) {
		return c.Delete(cmd.Context(), paths)
	})
}

func runMv(cmd *cobra.Command, args []string) error {
	from, to := xpan.CleanPath(args[0]), xpan.CleanPath(args[1])

	return runManage(cmd, "Moved", func(c *xpan.Client) (*xpan.ManageResult, error) {
		return c.Move(cmd.Context(), []string{from}, []string{to})
	})
}

func runCp(cmd *cobra.Command, args []string) error {
	from, to := xpan.CleanPath(args[0]), xpan.CleanPath(args[1])

	return runManage(cmd, "Copied", func(c *xpan.Client) (*xpan.ManageResult, error) {
		return c.Copy(cmd.Context(), []string{from}, []string{to})
	})
}

func runRename(cmd *cobra.Command, args []string) error {
	p := xpan.CleanPath(args[0])

	if strings.ContainsAny(args[1], `/\`) {
		return fmt.Errorf("new name %q must not contain a path separator", args[1])
	}

	return runManage(cmd, "Renamed", func(c *xpan.Client) (*xpan.ManageResult, error) {
		return c.Rename(cmd.Context(), p, args[1])
	})
}

// manageOutput is the JSON schema for rm, mv, cp, and rename.
type manageOutput struct {
	TaskID int64             `json:"taskid,omitempty"`
	Items  []xpan.ManageItem `json:"items"`
}

var errManagePartial = errors.New("some items failed")

// runManage runs one file-manager batch and reports each item. The batch
// succeeds as a whole only when every item's errno is zero.
func runManage(cmd *cobra.Command, verb string, op func(*xpan.Client) (*xpan.ManageResult, error)) error {
	s, err := NewSession(cmd.Context(), resolvedCfg, buildLogger())
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := op(s.Client)
	if err != nil {
		return err
	}

	failed := 0

	for _, item := range res.Info {
		if item.Errno != 0 {
			failed++

			fmt.Fprintf(os.Stderr, "%s: failed (errno %d)\n", item.Path, item.Errno)

			continue
		}

		if !flagJSON {
			statusf("%s %s\n", verb, item.Path)
		}
	}

	if flagJSON {
		items := res.Info
		if items == nil {
			items = []xpan.ManageItem{}
		}

		if err := printJSON(cmd.OutOrStdout(), manageOutput{TaskID: res.TaskID, Items: items}); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errManagePartial, failed, len(res.Info))
	}

	return nil
}

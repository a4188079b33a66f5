package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/baidupan-go/internal/xpan"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// formatSize returns a human-readable size string (e.g. "1.2 MiB").
func formatSize(bytes int64) string {
	if bytes < 0 {
		return "-"
	}

	return humanize.IBytes(uint64(bytes))
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	t = t.Local()

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// printTable writes aligned columns. headers and each row must have the
// same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// fileJSON is the JSON schema for a file record in command output.
type fileJSON struct {
	FsID       int64     `json:"fs_id"`
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	IsDir      bool      `json:"is_dir"`
	MD5        string    `json:"md5,omitempty"`
	Category   int       `json:"category,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	ModifiedAt time.Time `json:"modified_at,omitzero"`
}

func toFileJSON(f *xpan.FileRecord) fileJSON {
	return fileJSON{
		FsID:       f.FsID,
		Path:       f.Path,
		Name:       f.ServerFilename,
		Size:       f.Size,
		IsDir:      f.IsDir,
		MD5:        f.MD5,
		Category:   f.Category,
		CreatedAt:  f.CreatedAt,
		ModifiedAt: f.ModifiedAt,
	}
}

// printFiles writes records as a table, or as JSON with --json.
func printFiles(w io.Writer, files []xpan.FileRecord) error {
	if flagJSON {
		out := make([]fileJSON, 0, len(files))
		for i := range files {
			out = append(out, toFileJSON(&files[i]))
		}

		return printJSON(w, out)
	}

	rows := make([][]string, 0, len(files))

	for i := range files {
		f := &files[i]
		name := f.ServerFilename

		if name == "" {
			name = f.Path
		}

		size := formatSize(f.Size)
		if f.IsDir {
			name += "/"
			size = "-"
		}

		rows = append(rows, []string{name, size, formatTime(f.ModifiedAt), fmt.Sprint(f.FsID)})
	}

	printTable(w, []string{"NAME", "SIZE", "MODIFIED", "FS_ID"}, rows)

	return nil
}

// progressPrinter renders a single updating progress line on a terminal.
// It prints nothing when stderr is not a terminal or in quiet mode.
type progressPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	label string
	last  time.Time
}

func newProgressPrinter(label string) *progressPrinter {
	if flagQuiet || flagJSON || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}

	return &progressPrinter{w: os.Stderr, label: label}
}

// update is an xpan.ProgressFunc. Redraws are throttled.
func (p *progressPrinter) update(done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if done < total && now.Sub(p.last) < 100*time.Millisecond {
		return
	}

	p.last = now

	if total > 0 {
		fmt.Fprintf(p.w, "\r%s  %s / %s (%d%%)", p.label, humanize.IBytes(uint64(done)),
			humanize.IBytes(uint64(total)), done*100/total)
	} else {
		fmt.Fprintf(p.w, "\r%s  %s", p.label, humanize.IBytes(uint64(done)))
	}
}

// fn returns the progress callback, or nil when p is nil.
func (p *progressPrinter) fn() xpan.ProgressFunc {
	if p == nil {
		return nil
	}

	return p.update
}

// done ends the progress line.
func (p *progressPrinter) done() {
	if p != nil {
		fmt.Fprintln(p.w)
	}
}

package xpan

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanPath canonicalizes a remote path: NFC-normalized, slash-separated,
// absolute, with no trailing slash, dot segments, or doubled separators.
// macOS hands out NFD file names; the provider stores names as given, so
// without this an upload from a Mac and a listing from Linux disagree on
// the same name.
func CleanPath(p string) string {
	p = norm.NFC.String(p)
	p = strings.ReplaceAll(p, `\`, "/")

	return path.Clean("/" + p)
}

// JoinPath joins remote path elements and cleans the result.
func JoinPath(elem ...string) string {
	return CleanPath(path.Join(elem...))
}

// validRemotePath rejects paths the provider cannot store.
func validRemotePath(p string) error {
	if p == "" {
		return paramError("empty remote path")
	}

	if !strings.HasPrefix(p, "/") {
		return paramError("remote path %q is not absolute", p)
	}

	if p == "/" {
		return paramError("remote path is the root directory")
	}

	return nil
}

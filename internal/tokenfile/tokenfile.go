// Package tokenfile reads and writes the token file: the OAuth token plus
// the account it belongs to, cached at login so commands can name the
// account without a network call.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// Account identifies the netdisk account a token was issued for.
type Account struct {
	UK          int64  `json:"uk,omitempty"`
	BaiduName   string `json:"baidu_name,omitempty"`
	NetdiskName string `json:"netdisk_name,omitempty"`
	VIPType     int    `json:"vip_type,omitempty"`
}

// File is the on-disk format.
type File struct {
	Token   *oauth2.Token `json:"token"`
	Account *Account      `json:"account,omitempty"`
}

// Load reads the token file. Returns (nil, nil) if it does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Token == nil || tf.Token.AccessToken == "" {
		return nil, fmt.Errorf("tokenfile: %s has no access token (login required)", path)
	}

	return &tf, nil
}

// Save writes the token file atomically (temp file + rename) with owner-only
// permissions. Never logs token values.
func Save(path string, tf *File) error {
	if tf == nil || tf.Token == nil {
		return errors.New("tokenfile: nothing to save")
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	// Same directory guarantees the same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := writeSynced(tmp, data); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

func writeSynced(f *os.File, data []byte) error {
	if err := f.Chmod(FilePerms); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush before rename so a power loss cannot leave a truncated file at
	// the final path.
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	return nil
}

// Remove deletes the token file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}

// Persister returns a callback that saves refreshed tokens to path while
// keeping the cached account. It plugs into a refreshing token source.
func Persister(path string, acct *Account) func(*oauth2.Token) error {
	return func(tok *oauth2.Token) error {
		return Save(path, &File{Token: tok, Account: acct})
	}
}

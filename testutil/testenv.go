// Package testutil provides shared environment helpers for the live E2E and
// integration tests. It depends only on the standard library so the E2E
// package, which drives the built binary, stays free of internal imports.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Environment variables read by the live tests.
const (
	AllowedAccountsEnvVar = "BAIDUPAN_GO_ALLOWED_TEST_ACCOUNTS"
	TestAccountEnvVar     = "BAIDUPAN_GO_TEST_ACCOUNT"
	TestRootEnvVar        = "BAIDUPAN_GO_TEST_ROOT"
)

// DefaultTestRoot is the remote directory live tests work under. Apps only
// have write access below /apps/<app name>.
const DefaultTestRoot = "/apps/baidupan-go"

// TokenFileName is the token file inside .testdata/, in the format written
// by `baidupan-go login`.
const TokenFileName = "token.json"

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// ValidateAllowlist crashes the process unless the test account is listed in
// BAIDUPAN_GO_ALLOWED_TEST_ACCOUNTS. Live tests create and delete files, so
// they must never run against an account nobody opted in.
func ValidateAllowlist() string {
	allowlist := os.Getenv(AllowedAccountsEnvVar)
	if allowlist == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", AllowedAccountsEnvVar)
		fmt.Fprintln(os.Stderr, "Set it in .env or as an environment variable.")
		fmt.Fprintf(os.Stderr, "Example: %s=my-test-netdisk-name\n", AllowedAccountsEnvVar)
		os.Exit(1)
	}

	account := os.Getenv(TestAccountEnvVar)
	if account == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", TestAccountEnvVar)
		os.Exit(1)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSpace(a) == account {
			return account
		}
	}

	fmt.Fprintf(os.Stderr, "FATAL: %s=%q is not in %s=%q\n",
		TestAccountEnvVar, account, AllowedAccountsEnvVar, allowlist)
	os.Exit(1)

	return ""
}

// TestRoot returns the remote directory for live tests.
func TestRoot() string {
	if root := os.Getenv(TestRootEnvVar); root != "" {
		return root
	}

	return DefaultTestRoot
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// FindTestCredentialDir locates .testdata/ relative to the module root.
// Crashes if the directory does not exist.
func FindTestCredentialDir(moduleRoot string) string {
	dir := filepath.Join(moduleRoot, ".testdata")

	if _, err := os.Stat(dir); err != nil {
		fmt.Fprintln(os.Stderr, "FATAL: .testdata/ directory not found at "+dir)
		fmt.Fprintln(os.Stderr, "Create it with: XDG_DATA_HOME=.testdata baidupan-go login")
		os.Exit(1)
	}

	return dir
}

// Isolation is a temp HOME and XDG tree the live tests run in.
type Isolation struct {
	Root      string
	DataDir   string // <XDG_DATA_HOME>/baidupan-go
	ConfigDir string // <XDG_CONFIG_HOME>/baidupan-go
}

// Isolate points HOME and the XDG variables at a fresh temp tree, copies the
// token and config from credDir into it, and crashes if any production path
// could still leak in. The config file is optional.
func Isolate(credDir, prefix string) *Isolation {
	for _, v := range []string{"BAIDUPAN_GO_CONFIG", "BAIDUPAN_GO_TOKEN"} {
		os.Unsetenv(v)
	}

	root, err := os.MkdirTemp("", prefix+"-*")
	if err != nil {
		fatalf("creating isolation temp dir: %v", err)
	}

	env := map[string]string{
		"HOME":            filepath.Join(root, "home"),
		"XDG_CONFIG_HOME": filepath.Join(root, "config"),
		"XDG_DATA_HOME":   filepath.Join(root, "data"),
		"XDG_CACHE_HOME":  filepath.Join(root, "cache"),
	}

	for k, dir := range env {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fatalf("creating dir %s: %v", dir, err)
		}

		os.Setenv(k, dir)
	}

	iso := &Isolation{
		Root:      root,
		DataDir:   filepath.Join(env["XDG_DATA_HOME"], "baidupan-go"),
		ConfigDir: filepath.Join(env["XDG_CONFIG_HOME"], "baidupan-go"),
	}

	if runtime.GOOS == "darwin" {
		iso.DataDir = filepath.Join(env["HOME"], "Library", "Application Support", "baidupan-go")
		iso.ConfigDir = iso.DataDir
	}

	for _, dir := range []string{iso.DataDir, iso.ConfigDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			fatalf("creating dir %s: %v", dir, err)
		}
	}

	CopyFile(filepath.Join(credDir, TokenFileName), filepath.Join(iso.DataDir, TokenFileName), 0o600)

	if _, err := os.Stat(filepath.Join(credDir, "config.toml")); err == nil {
		CopyFile(filepath.Join(credDir, "config.toml"), filepath.Join(iso.ConfigDir, "config.toml"), 0o644)
	}

	iso.verify()

	return iso
}

// verify crashes the process if any path variable escapes the temp tree.
func (iso *Isolation) verify() {
	for _, v := range []string{"HOME", "XDG_DATA_HOME", "XDG_CONFIG_HOME", "XDG_CACHE_HOME"} {
		if val := os.Getenv(v); val == "" || !strings.HasPrefix(val, iso.Root) {
			fatalf("isolation check failed: %s not overridden to temp dir", v)
		}
	}

	if home, _ := os.UserHomeDir(); !strings.HasPrefix(home, iso.Root) {
		fatalf("isolation check failed: UserHomeDir() returns %s (not under temp)", home)
	}
}

// Cleanup copies a token refreshed during the run back to credDir, so the
// next run starts from the newest refresh token, then removes the temp tree.
func (iso *Isolation) Cleanup(credDir string) {
	data, err := os.ReadFile(filepath.Join(iso.DataDir, TokenFileName))
	if err == nil {
		if writeErr := os.WriteFile(filepath.Join(credDir, TokenFileName), data, 0o600); writeErr != nil {
			fmt.Fprintf(os.Stderr, "WARNING: cannot write rotated token back to %s: %v\n", credDir, writeErr)
		}
	}

	os.RemoveAll(iso.Root)
}

// CopyFile copies a file from src to dst with the given permissions.
// Crashes on failure because tests cannot proceed without the file.
func CopyFile(src, dst string, perm os.FileMode) {
	data, err := os.ReadFile(src)
	if err != nil {
		fatalf("cannot read %s: %v", src, err)
	}

	if err := os.WriteFile(dst, data, perm); err != nil {
		fatalf("writing %s: %v", dst, err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	os.Exit(1)
}

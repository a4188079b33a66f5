//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/baidupan-go/testutil"
)

// realHomeDir holds the original HOME directory before TestMain overrides it.
var realHomeDir string

// testCredentialDir holds the path to .testdata/ (repo-root-relative).
var testCredentialDir string

// iso is the temp HOME/XDG tree the binary runs in.
var iso *testutil.Isolation

// validateTestData checks that .testdata/ holds a usable token file before
// tests start. E2E tests drive the binary, so validation uses plain JSON.
func validateTestData(credDir string) {
	tokenPath := filepath.Join(credDir, testutil.TokenFileName)

	data, err := os.ReadFile(tokenPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot read token file %s: %v\n", tokenPath, err)
		os.Exit(1)
	}

	var parsed map[string]json.RawMessage
	if jsonErr := json.Unmarshal(data, &parsed); jsonErr != nil {
		fmt.Fprintf(os.Stderr, "FATAL: token file %s is not valid JSON: %v\n", tokenPath, jsonErr)
		os.Exit(1)
	}

	if _, ok := parsed["token"]; !ok {
		fmt.Fprintf(os.Stderr, "FATAL: token file %s missing \"token\" key\n", tokenPath)
		os.Exit(1)
	}
}

// setupIsolation moves HOME and XDG to temp directories holding a copy of
// the test token. The returned func copies a refreshed token back.
func setupIsolation() func() {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot determine home dir: %v\n", err)
		os.Exit(1)
	}

	realHomeDir = home
	testCredentialDir = testutil.FindTestCredentialDir(testutil.FindModuleRoot(".."))
	validateTestData(testCredentialDir)

	iso = testutil.Isolate(testCredentialDir, "baidupan-e2e-isolation")

	fmt.Fprintf(os.Stderr, "E2E isolation: HOME=%s (credentials from .testdata/)\n", os.Getenv("HOME"))

	return func() { iso.Cleanup(testCredentialDir) }
}

func TestIsolation_HomeOverridden(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.NotEqual(t, realHomeDir, home, "HOME should be overridden to temp dir")
}

func TestIsolation_TokenInTempDir(t *testing.T) {
	require.NotNil(t, iso)
	assert.NotContains(t, iso.DataDir, realHomeDir)

	_, err := os.Stat(filepath.Join(iso.DataDir, testutil.TokenFileName))
	assert.NoError(t, err)
}

func TestIsolation_CredentialsFromTestdata(t *testing.T) {
	assert.True(t, strings.HasSuffix(testCredentialDir, ".testdata"),
		"credentials should come from .testdata/, got: %s", testCredentialDir)
}

// TestIsolation_BinaryResolvesTemp runs the binary with --debug and checks
// that no production path appears in its output.
func TestIsolation_BinaryResolvesTemp(t *testing.T) {
	stdout, stderr := runCLI(t, "--debug", "whoami")

	assert.NotContains(t, stdout, realHomeDir)
	assert.NotContains(t, stderr, realHomeDir)
	assert.Contains(t, stdout, "UK:")
}

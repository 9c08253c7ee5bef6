package commands_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/matchkit/cmd/matchkit/commands"
)

// Scan tests are not parallel: Setup installs process-global slog and OTel
// providers.

func TestScanCommand_CountsMatches(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.log"),
		[]byte("GET /api/users\nPOST /api/users\nnoise\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.log"),
		[]byte("GET /api/orders\n"), 0o600))

	rules := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte(
		"rules:\n  - pattern: \"GET /api\"\n    label: api-read\n  - pattern: \"POST /api\"\n    label: api-write\n",
	), 0o600))

	cmd := commands.NewScanCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--rules", rules, "--workers", "2", dir})

	require.NoError(t, cmd.Execute())

	// The table writer's default style upper-cases header cells.
	assert.Contains(t, out.String(), "FILES")
	assert.Contains(t, out.String(), "api-read")
	assert.Contains(t, out.String(), "api-write")
}

func TestScanCommand_InvalidPriority(t *testing.T) {
	dir := t.TempDir()

	rules := filepath.Join(dir, "rules.txt")
	require.NoError(t, os.WriteFile(rules, []byte("key\n"), 0o600))

	cmd := commands.NewScanCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--rules", rules, "--priority", "300", dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid base priority")
}

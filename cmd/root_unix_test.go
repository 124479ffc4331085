//go:build !windows

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()

	cfgPath, command, noColor, verbosity, logFormat = "", "", false, 0, ""

	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	code := execute(append([]string{"--config", t.TempDir()}, args...))
	return code, stdout.String(), stderr.String()
}

func TestExecute_command(t *testing.T) {
	code, stdout, _ := runRoot(t, "", "--no-color", "-c", "echo hi | tr a-z A-Z")
	assert.Equal(t, 0, code)
	assert.Equal(t, "HI\n", stdout)

	code, _, _ = runRoot(t, "", "-c", "exit 3")
	assert.Equal(t, 3, code)

	code, _, stderr := runRoot(t, "", "--no-color", "-c", "no-such-command-flexsh")
	assert.Equal(t, 127, code)
	assert.Equal(t, "flexsh: no-such-command-flexsh: command not found\n", stderr)
}

func TestExecute_script(t *testing.T) {
	script := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo one\nexit 5\necho two\n"), 0644))

	code, stdout, _ := runRoot(t, "", script)
	assert.Equal(t, 5, code)
	assert.Equal(t, "one\n", stdout)
}

func TestExecute_missingScript(t *testing.T) {
	code, _, stderr := runRoot(t, "", filepath.Join(t.TempDir(), "missing.sh"))
	assert.Equal(t, 127, code)
	assert.Contains(t, stderr, "can't open script")
}

func TestExecute_stdin(t *testing.T) {
	code, stdout, _ := runRoot(t, "echo from stdin\nfalse\n")
	assert.Equal(t, 1, code)
	assert.Equal(t, "from stdin\n", stdout)
}

func TestExecute_badFlag(t *testing.T) {
	code, _, stderr := runRoot(t, "", "--no-such-flag")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown flag")
}

func TestExecute_badLogFormat(t *testing.T) {
	code, _, stderr := runRoot(t, "", "--log-format", "xml", "-c", "true")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unsupported log format")
}

func TestBuiltinsCmd(t *testing.T) {
	code, stdout, _ := runRoot(t, "", "builtins")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "cd ")
	assert.Contains(t, stdout, "exit ")
}

func TestInitCmd(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "flexsh")

	code, _, stderr := runRoot(t, "", "init", "--config", dir)
	assert.Equal(t, 0, code)
	assert.Contains(t, stderr, "Writing")
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
}

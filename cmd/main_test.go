package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testConfig writes a config file that keeps logs out of the working
// directory and returns its path.
func testConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "logger:\n  level: error\n  format: json\n  log_file: " + filepath.Join(dir, "test.log") + "\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs a fresh command tree with args and returns everything it
// printed.
func execute(t *testing.T, configYAML string, args ...string) (string, error) {
	t.Helper()
	cfgFile = ""
	t.Cleanup(func() { cfgFile = "" })

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", testConfig(t, configYAML)}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

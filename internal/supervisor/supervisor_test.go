package supervisor

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vshell/internal/dispatch"
	"vshell/internal/iobuf"
	"vshell/internal/redirect"
)

func emptyStdin(t *testing.T) *iobuf.Buffer {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	require.NoError(t, w.Close())
	t.Cleanup(func() { _ = r.Close() })
	return iobuf.New(int(r.Fd()), nil)
}

func requireBin(t *testing.T, name string) string {
	t.Helper()
	path, ok := dispatch.Resolve(name)
	if !ok {
		t.Skipf("no %s on PATH", name)
	}
	return path
}

func TestRun_CapturesStdout(t *testing.T) {
	t.Setenv("PATH", "/bin:/usr/bin")
	path := requireBin(t, "echo")

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code, err := Run(path, []string{"echo", "hi there"}, "/", redirect.Table{}, emptyStdin(t), stdout, stderr)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hi there\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestRun_ExitCodePropagates(t *testing.T) {
	t.Setenv("PATH", "/bin:/usr/bin")
	path := requireBin(t, "sh")

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code, err := Run(path, []string{"sh", "-c", "exit 5"}, "/", redirect.Table{}, emptyStdin(t), stdout, stderr)
	require.NoError(t, err)
	assert.Equal(t, 5, code)
}

func TestRun_UsesDirWithoutChangingProcessCwd(t *testing.T) {
	t.Setenv("PATH", "/bin:/usr/bin")
	path := requireBin(t, "pwd")

	dir := t.TempDir()
	processCwd, err := os.Getwd()
	require.NoError(t, err)

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code, err := Run(path, []string{"pwd"}, dir, redirect.Table{}, emptyStdin(t), stdout, stderr)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, dir+"\n", stdout.String())

	afterCwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, processCwd, afterCwd)
}

func TestRun_RedirectsStdoutToFile(t *testing.T) {
	t.Setenv("PATH", "/bin:/usr/bin")
	path := requireBin(t, "echo")

	dir := t.TempDir()
	outPath := dir + "/out.txt"
	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	require.NoError(t, err)
	table := redirect.Table{1: {File: f}}
	defer table.Close()

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code, err := Run(path, []string{"echo", "to file"}, "/", table, emptyStdin(t), stdout, stderr)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Empty(t, stdout.String())

	contents, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "to file\n", string(contents))
}

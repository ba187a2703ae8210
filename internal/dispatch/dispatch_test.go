package dispatch

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0755))
	return path
}

func TestResolve_PathSearch(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "tool")

	t.Setenv("PATH", dir)
	resolved, ok := Resolve("tool")
	require.True(t, ok)
	assert.Equal(t, path, resolved)
}

func TestResolve_NotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, ok := Resolve("doesnotexist")
	assert.False(t, ok)
}

func TestResolve_SlashContainingNameBypassesPath(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "tool")

	t.Setenv("PATH", "")
	resolved, ok := Resolve(path)
	require.True(t, ok)
	assert.Equal(t, path, resolved)
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "tool")

	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(path))
}

func TestExitCode_Exited(t *testing.T) {
	// There is no portable constructor for a synthetic WaitStatus, so run a
	// real child and capture its status instead.
	cmd := exec.Command("/bin/sh", "-c", "exit 7")
	err := cmd.Run()
	require.Error(t, err) // non-zero exit surfaces as an *exec.ExitError

	waitStatus, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.Equal(t, 7, ExitCode(unix.WaitStatus(waitStatus)))
}

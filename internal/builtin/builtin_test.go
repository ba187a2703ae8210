package builtin

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(dir string) (*Context, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	ctx := &Context{
		Stdout: out,
		Stderr: errOut,
		Dir:    dir,
		Resolve: func(name string) (string, bool) {
			if name == "known" {
				return "/usr/bin/known", true
			}
			return "", false
		},
	}
	return ctx, out, errOut
}

func TestEchoCommand(t *testing.T) {
	ctx, out, _ := newContext("/")
	code, err := echoCommand(ctx, []string{"echo", "a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "a b c\n", out.String())
}

func TestTypeCommand_BuiltinAndPathAndMissing(t *testing.T) {
	ctx, out, errOut := newContext("/")
	code, err := typeCommand(ctx, []string{"type", "cd", "known", "nope"})
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "cd is a shell builtin")
	assert.Contains(t, out.String(), "known is /usr/bin/known")
	assert.Contains(t, errOut.String(), "nope: not found")
}

func TestExitCommand_DefaultAndExplicitCode(t *testing.T) {
	ctx, _, _ := newContext("/")
	_, err := exitCommand(ctx, []string{"exit"})
	req, ok := err.(*ExitRequest)
	require.True(t, ok)
	assert.Equal(t, 0, req.Code)

	_, err = exitCommand(ctx, []string{"exit", "42"})
	req, ok = err.(*ExitRequest)
	require.True(t, ok)
	assert.Equal(t, 42, req.Code)
}

func TestExitCommand_BadArgument(t *testing.T) {
	ctx, _, errOut := newContext("/")
	code, err := exitCommand(ctx, []string{"exit", "notanumber"})
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "numeric argument required")
}

func TestCdCommand_UpdatesDirIndependentlyOfProcessCwd(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))

	ctx, _, _ := newContext(dir)
	code, err := cdCommand(ctx, []string{"cd", "sub"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, sub, ctx.Dir)
}

func TestCdCommand_NoSuchDirectory(t *testing.T) {
	dir := t.TempDir()
	ctx, _, errOut := newContext(dir)
	code, err := cdCommand(ctx, []string{"cd", "nope"})
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "No such file or directory")
	assert.Equal(t, dir, ctx.Dir, "a failed cd must not change Dir")
}

func TestCdCommand_TooManyArguments(t *testing.T) {
	ctx, _, errOut := newContext("/")
	code, err := cdCommand(ctx, []string{"cd", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "too many arguments")
}

func TestPwdCommand(t *testing.T) {
	ctx, out, _ := newContext("/some/dir")
	code, err := pwdCommand(ctx, []string{"pwd"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "/some/dir\n", out.String())
}

func TestNamesAndLookup(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "cd")
	assert.Contains(t, names, "exit")

	_, ok := Lookup("cd")
	assert.True(t, ok)
	_, ok = Lookup("nonexistent")
	assert.False(t, ok)
}

package shell

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vshell/internal/iobuf"
)

func run(t *testing.T, script string) (stdout, stderr string, code int) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	_, err = w.Write([]byte(script))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	in := iobuf.New(int(r.Fd()), nil)
	sh := New(in, out, errOut, false)
	code = sh.Run()
	return out.String(), errOut.String(), code
}

func TestRun_EchoBuiltin(t *testing.T) {
	out, _, code := run(t, "echo hello world\n")
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello world\n", out)
}

func TestRun_ExitWithCode(t *testing.T) {
	_, _, code := run(t, "echo before\nexit 3\necho after\n")
	assert.Equal(t, 3, code)
}

func TestRun_UnknownCommand(t *testing.T) {
	_, errOut, code := run(t, "definitelynotarealcommand\n")
	assert.Equal(t, 127, code)
	assert.Contains(t, errOut, "command not found")
}

func TestRun_CdAndPwdTrackPerSessionDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))

	processCwd, err := os.Getwd()
	require.NoError(t, err)

	out, _, code := run(t, "cd "+dir+"\ncd sub\npwd\n")
	assert.Equal(t, 0, code)
	assert.Equal(t, sub+"\n", out)

	// The Shell's own cd must never have touched the test process's cwd.
	afterCwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, processCwd, afterCwd)
}

func TestRun_RedirectionToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	out, _, code := run(t, "echo redirected > "+path+"\n")
	assert.Equal(t, 0, code)
	assert.Empty(t, out)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "redirected\n", string(contents))
}

func TestRun_ExternalCommand(t *testing.T) {
	// Use the absolute path so this exercises supervisor.Run rather than the
	// echo builtin, which would otherwise shadow it.
	if _, err := os.Stat("/bin/echo"); err != nil {
		t.Skip("no /bin/echo on this system")
	}

	out, _, code := run(t, "/bin/echo from the outside\n")
	assert.Equal(t, 0, code)
	assert.Equal(t, "from the outside\n", out)
}

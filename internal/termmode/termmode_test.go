package termmode

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_NonTerminalIsNoOp(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer func() {
		_ = r.Close()
		_ = w.Close()
	}()

	guard, err := Acquire(int(r.Fd()))
	require.NoError(t, err)
	assert.False(t, guard.IsTerminal())
	assert.NoError(t, guard.Restore())
}

func TestRestore_IsIdempotent(t *testing.T) {
	r, _, err := os.Pipe()
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	guard, err := Acquire(int(r.Fd()))
	require.NoError(t, err)
	assert.NoError(t, guard.Restore())
	assert.NoError(t, guard.Restore())
}

package iobuf

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return r, w
}

func TestReadEchoesAndConsumes(t *testing.T) {
	r, w := pipe(t)
	_, err := w.Write([]byte("ab"))
	require.NoError(t, err)

	echo := &bytes.Buffer{}
	b := New(int(r.Fd()), echo)

	c, ok, err := b.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte('a'), c)
	assert.Equal(t, "a", echo.String())

	c, ok, err = b.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte('b'), c)
	assert.Equal(t, "ab", echo.String())
}

func TestPeekDoesNotConsumeOrEcho(t *testing.T) {
	r, w := pipe(t)
	_, err := w.Write([]byte("x"))
	require.NoError(t, err)

	echo := &bytes.Buffer{}
	b := New(int(r.Fd()), echo)

	c, ok, err := b.Peek()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte('x'), c)
	assert.Empty(t, echo.String())

	c, ok, err = b.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte('x'), c)
}

func TestEOFAfterWriterCloses(t *testing.T) {
	r, w := pipe(t)
	_, err := w.Write([]byte("z"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b := New(int(r.Fd()), nil)
	c, ok, err := b.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte('z'), c)

	_, ok, err = b.Read()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, b.EOF())
}

func TestTryReadNonBlockingWhenEmpty(t *testing.T) {
	r, _ := pipe(t)
	b := New(int(r.Fd()), nil)

	done := make(chan struct{})
	go func() {
		_, ok, err := b.TryRead()
		assert.NoError(t, err)
		assert.False(t, ok)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TryRead blocked with nothing available")
	}
}

func TestTryReadReturnsAvailableBytes(t *testing.T) {
	r, w := pipe(t)
	_, err := w.Write([]byte("hi"))
	require.NoError(t, err)
	// Give the pipe a moment to deliver the bytes to the read end.
	time.Sleep(10 * time.Millisecond)

	b := New(int(r.Fd()), nil)
	require.NoError(t, b.TryFill())

	c, ok, err := b.TryRead()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte('h'), c)
}

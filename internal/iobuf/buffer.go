/*
 * vshell: an interactive command shell
 * Copyright 2019 Daniel Selifonov
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package iobuf implements a small non-blocking byte buffer over a file
// descriptor, with manual echo to a paired writer.
//
// It is the lowest layer of the shell: everything the tokeniser reads passes
// through a Buffer so that control characters can be intercepted and so that
// echoing stays under the shell's control once the terminal is in raw mode.
package iobuf

import (
	"io"

	"golang.org/x/sys/unix"
)

const capacity = 4096

// Buffer is a read buffer over fd, filled via poll+read so that a caller can
// ask for bytes without blocking the whole process when none are available.
type Buffer struct {
	fd     int
	echo   io.Writer
	buf    [capacity]byte
	offset int
	length int
	eof    bool
}

// New wraps fd for reading. echo, if non-nil, receives a copy of every byte
// returned by Read (manual terminal echo); it is never touched by Peek.
func New(fd int, echo io.Writer) *Buffer {
	return &Buffer{fd: fd, echo: echo}
}

// EOF reports whether the underlying descriptor has reached end-of-file.
// Once set it never clears.
func (b *Buffer) EOF() bool {
	return b.eof && b.offset >= b.length
}

func (b *Buffer) compact() {
	if b.offset == 0 {
		return
	}
	if b.offset >= b.length {
		b.offset, b.length = 0, 0
		return
	}
	if b.offset > capacity/2 {
		n := copy(b.buf[:], b.buf[b.offset:b.length])
		b.offset, b.length = 0, n
	}
}

// fill blocks (if block is true) until at least one byte is available or EOF
// is reached, then appends whatever is readable without further blocking.
func (b *Buffer) fill(block bool) error {
	if b.offset < b.length {
		return nil
	}
	b.compact()
	for {
		timeout := 0
		if block {
			timeout = -1
		}
		pfd := []unix.PollFd{{Fd: int32(b.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfd, timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			// nothing ready (only possible when !block)
			return nil
		}
		if pfd[0].Revents&unix.POLLIN == 0 && pfd[0].Revents&unix.POLLHUP != 0 {
			b.eof = true
			return nil
		}
		nr, err := unix.Read(b.fd, b.buf[b.length:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if nr == 0 {
			b.eof = true
			return nil
		}
		b.length += nr
		return nil
	}
}

// Peek returns the next unread byte without consuming it, blocking until one
// is available or EOF is reached.
func (b *Buffer) Peek() (byte, bool, error) {
	if b.offset >= b.length {
		if err := b.fill(true); err != nil {
			return 0, false, err
		}
	}
	if b.offset >= b.length {
		return 0, false, nil // EOF
	}
	return b.buf[b.offset], true, nil
}

// Read consumes and returns the next byte, echoing it if an echo writer was
// configured. It blocks under the same conditions as Peek.
func (b *Buffer) Read() (byte, bool, error) {
	c, ok, err := b.Peek()
	if err != nil || !ok {
		return c, ok, err
	}
	b.offset++
	if b.echo != nil {
		_, _ = b.echo.Write([]byte{c})
	}
	return c, true, nil
}

// TryFill performs one non-blocking poll+read pass, topping up the buffer
// without stalling the caller when no bytes are currently available. It is
// used by the supervisor's pump loop, which must not block on the parent's
// stdin while a child is also being serviced.
func (b *Buffer) TryFill() error {
	return b.fill(false)
}

// TryRead returns a buffered byte without blocking; ok is false if nothing is
// currently available (which is not the same as EOF -- check EOF() for that).
func (b *Buffer) TryRead() (c byte, ok bool, err error) {
	if b.offset >= b.length {
		if err := b.TryFill(); err != nil {
			return 0, false, err
		}
	}
	if b.offset >= b.length {
		return 0, false, nil
	}
	c = b.buf[b.offset]
	b.offset++
	if b.echo != nil {
		_, _ = b.echo.Write([]byte{c})
	}
	return c, true, nil
}

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

// Package termmode puts a controlling terminal into the shell's raw mode and
// restores it on exit.
//
// Only the flags the shell's input layer actually depends on are cleared --
// ICANON (so bytes are delivered without waiting for a line), ISIG (so
// Ctrl-C/Ctrl-D reach the shell as ordinary bytes instead of generating
// signals), and ECHO (since internal/iobuf does echo manually). This is
// deliberately narrower than a full "cooked to raw" transform: output
// processing, parity, and the rest of the termios surface are left alone.
package termmode

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Guard holds a terminal's original attributes and restores them exactly
// once. A Guard obtained over a non-terminal descriptor (IsTerminal false)
// is a harmless no-op -- this lets a shell run unmodified with stdin
// redirected from a file or pipe, as the tests do.
type Guard struct {
	fd         int
	original   unix.Termios
	isTerminal bool
	restore    sync.Once
}

// Acquire snapshots the terminal attributes of fd and switches it into raw
// mode. If fd is not a terminal, it returns a Guard whose Restore is a no-op.
func Acquire(fd int) (*Guard, error) {
	g := &Guard{fd: fd}

	orig, err := ioctlGetTermios(fd)
	if err != nil {
		// Not a terminal (or otherwise unsupported): run in cooked mode.
		return g, nil
	}
	g.original = *orig
	g.isTerminal = true

	raw := *orig
	raw.Lflag &^= unix.ICANON | unix.ISIG | unix.ECHO
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 0
	if err := ioctlSetTermios(fd, &raw); err != nil {
		return nil, err
	}
	return g, nil
}

// IsTerminal reports whether fd was a terminal at Acquire time.
func (g *Guard) IsTerminal() bool {
	return g.isTerminal
}

// Restore puts the terminal back into the mode it was in before Acquire.
// Safe to call multiple times and from multiple goroutines; only the first
// call has any effect.
func (g *Guard) Restore() error {
	var err error
	g.restore.Do(func() {
		if !g.isTerminal {
			return
		}
		err = ioctlSetTermios(g.fd, &g.original)
	})
	return err
}

func ioctlGetTermios(fd int) (*unix.Termios, error) {
	return unix.IoctlGetTermios(fd, getTermiosIoctl)
}

func ioctlSetTermios(fd int, t *unix.Termios) error {
	return unix.IoctlSetTermios(fd, setTermiosIoctl, t)
}

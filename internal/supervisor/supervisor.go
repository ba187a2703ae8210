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

// Package supervisor spawns a child process, plumbs its standard streams
// through pipes (or straight to a redirection target), and pumps bytes
// between the session's own input/output and the child while intercepting
// Ctrl-C (forwarded as SIGINT) and Ctrl-D (closes the child's stdin).
package supervisor

import (
	"io"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"vshell/internal/dispatch"
	"vshell/internal/iobuf"
	"vshell/internal/redirect"
)

const (
	ctrlC = 0x03
	ctrlD = 0x04
)

// Run executes path with args in dir, wiring fd 0/1/2 to table's redirection
// entries where present and to pipes pumped against stdin/stdout/stderr
// otherwise; any higher fd in table is passed to the child as that fd. It blocks until the child exits and returns its mapped exit
// code.
func Run(path string, args []string, dir string, table redirect.Table, stdin *iobuf.Buffer, stdout, stderr io.Writer) (int, error) {
	// Path is the resolved executable; Args[0] stays the name as typed, the
	// same distinction run_program's execve(file_path, argv, environ) makes.
	// Dir is set directly on the child rather than via a process-wide
	// os.Chdir, so that concurrent sessions keep independent directories.
	cmd := &exec.Cmd{Path: path, Args: args, Env: os.Environ(), Dir: dir}

	var stdinW *os.File // parent writes child's stdin here, nil if redirected
	var stdinR *os.File
	var stdoutR, stdoutW *os.File
	var stderrR, stderrW *os.File

	if f := table.Writer(0); f != nil {
		cmd.Stdin = f
	} else {
		r, w, err := os.Pipe()
		if err != nil {
			return 0, err
		}
		cmd.Stdin, stdinR, stdinW = r, r, w
	}

	if f := table.Writer(1); f != nil {
		cmd.Stdout = f
	} else {
		r, w, err := os.Pipe()
		if err != nil {
			return 0, err
		}
		cmd.Stdout, stdoutR, stdoutW = w, r, w
	}

	if f := table.Writer(2); f != nil {
		cmd.Stderr = f
	} else {
		r, w, err := os.Pipe()
		if err != nil {
			return 0, err
		}
		cmd.Stderr, stderrR, stderrW = w, r, w
	}

	// Entries for fd 3 and above become the child's ExtraFiles (ExtraFiles[i]
	// is fd 3+i); unlisted slots below the highest one stay closed.
	for fd, e := range table {
		if fd < 3 {
			continue
		}
		for len(cmd.ExtraFiles) <= fd-3 {
			cmd.ExtraFiles = append(cmd.ExtraFiles, nil)
		}
		cmd.ExtraFiles[fd-3] = e.File
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	// The parent only needs its own side of each pipe: the write end of
	// stdin, and the read ends of stdout/stderr. Close the other halves
	// (the ones just handed to the child), mirroring run_program's explicit
	// close() of the unused pipe ends in the parent.
	if stdinR != nil {
		_ = stdinR.Close()
	}
	if stdoutW != nil {
		_ = stdoutW.Close()
	}
	if stderrW != nil {
		_ = stderrW.Close()
	}

	var childOut, childErr *iobuf.Buffer
	if stdoutR != nil {
		childOut = iobuf.New(int(stdoutR.Fd()), nil)
	}
	if stderrR != nil {
		childErr = iobuf.New(int(stderrR.Fd()), nil)
	}

	pid := cmd.Process.Pid
	childStdinClosed := stdinW == nil

	for {
		var status unix.WaitStatus
		wpid, err := unix.Wait4(pid, &status, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if wpid == pid {
			if stdinW != nil {
				_ = stdinW.Close()
			}
			drainFinal(childOut, stdout)
			drainFinal(childErr, stderr)
			return dispatch.ExitCode(status), nil
		}

		if !childStdinClosed {
			childStdinClosed = pumpStdin(stdin, stdinW, pid)
		}
		pumpOnce(childOut, stdout)
		pumpOnce(childErr, stderr)

		time.Sleep(time.Millisecond)
	}
}

// pumpStdin forwards whatever is currently available from stdin to the
// child's stdin pipe, intercepting Ctrl-C (signal the child, keep pumping)
// and Ctrl-D (close the child's stdin, stop pumping). It returns true once
// the child's stdin has been closed.
func pumpStdin(stdin *iobuf.Buffer, childStdin *os.File, pid int) (closed bool) {
	for {
		c, ok, err := stdin.TryRead()
		if err != nil || !ok {
			return false
		}
		switch c {
		case ctrlC:
			_ = unix.Kill(pid, unix.SIGINT)
		case ctrlD:
			_ = childStdin.Close()
			return true
		default:
			_, _ = childStdin.Write([]byte{c})
		}
	}
}

func pumpOnce(buf *iobuf.Buffer, w io.Writer) {
	if buf == nil {
		return
	}
	if err := buf.TryFill(); err != nil {
		return
	}
	for {
		c, ok, err := buf.TryRead()
		if err != nil || !ok {
			return
		}
		_, _ = w.Write([]byte{c})
	}
}

// drainFinal performs a final blocking read of buf until EOF, so that any
// bytes the child wrote right before exiting are not lost.
func drainFinal(buf *iobuf.Buffer, w io.Writer) {
	if buf == nil {
		return
	}
	for !buf.EOF() {
		c, ok, err := buf.Read()
		if err != nil {
			return
		}
		if !ok {
			return
		}
		_, _ = w.Write([]byte{c})
	}
}

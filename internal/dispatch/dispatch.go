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

// Package dispatch resolves a command name to a builtin, a path-bearing
// executable, or a PATH-searched executable, and computes POSIX-style exit
// codes for terminated children.
package dispatch

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Resolve looks up name the way the shell does for both "type" and ordinary
// command dispatch: a name containing '/' is tested directly; otherwise
// every ':'-separated entry of $PATH is tried in order. It reports the
// resolved path and whether a candidate was found and is accessible/
// executable.
func Resolve(name string) (path string, ok bool) {
	if strings.Contains(name, "/") {
		if accessible(name) {
			return name, true
		}
		return "", false
	}
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		candidate := filepath.Join(dir, name)
		if accessible(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func accessible(path string) bool {
	return unix.Access(path, unix.R_OK|unix.X_OK) == nil
}

// IsDir reports whether path names a directory, for the "is a directory"
// dispatch error.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ExitCode maps a wait(2) status the way the original shell does: a normal
// exit keeps its status; a signalled or stopped child reports 128+signal.
func ExitCode(status unix.WaitStatus) int {
	switch {
	case status.Exited():
		return status.ExitStatus()
	case status.Signaled():
		return 128 + int(status.Signal())
	case status.Stopped():
		return 128 + int(status.StopSignal())
	default:
		return 1
	}
}

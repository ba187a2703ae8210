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

// Package redirect turns a raw token stream into an argument vector plus a
// table of open redirection targets, by recognising unquoted/unescaped ">"
// and ">>" operator tokens and the optional leading fd number before them.
package redirect

import (
	"fmt"
	"os"
	"strconv"

	"vshell/internal/token"
)

// Entry is one fd's redirection target.
type Entry struct {
	File   *os.File
	Append bool
}

// Table is a sparse fd -> Entry map. Close releases every entry.
type Table map[int]*Entry

// Close flushes and closes every open file in the table.
func (t Table) Close() {
	for fd, e := range t {
		_ = e.File.Close()
		delete(t, fd)
	}
}

// Writer returns the file redirected for fd, or nil if fd is not redirected.
func (t Table) Writer(fd int) *os.File {
	if e, ok := t[fd]; ok {
		return e.File
	}
	return nil
}

// Collect consumes a slice of raw tokens (as returned by repeated calls to
// token.Reader.Next for a single line) and splits it into the surviving
// argument vector and the redirection table. A syntax error (bad fd, missing
// filename, file that cannot be opened) is returned as err; the table is
// already closed in that case.
func Collect(tokens []*token.Token) (args []string, table Table, err error) {
	table = Table{}
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Quoted || tok.Escaped || (tok.Text != ">" && tok.Text != ">>") {
			args = append(args, tok.Text)
			continue
		}

		fd := 1
		if len(args) > 0 {
			if n, convErr := strconv.ParseInt(args[len(args)-1], 0, 64); convErr == nil {
				fd = int(n)
				args = args[:len(args)-1]
			}
		}
		if fd < 0 {
			table.Close()
			return nil, nil, fmt.Errorf("redirection error, negative file descriptor")
		}

		i++
		if i >= len(tokens) {
			table.Close()
			return nil, nil, fmt.Errorf("syntax error, missing filename of redirect")
		}
		filename := tokens[i].Text

		append_ := tok.Text == ">>"
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if append_ {
			flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, openErr := os.OpenFile(filename, flags, 0644)
		if openErr != nil {
			table.Close()
			return nil, nil, fmt.Errorf("output error, could not open `%s` for opening", filename)
		}
		if existing, ok := table[fd]; ok {
			_ = existing.File.Close()
		}
		table[fd] = &Entry{File: f, Append: append_}
	}
	return args, table, nil
}

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

// Package shell implements the interactive read-tokenise-dispatch loop: it
// prints a prompt, collects one line's worth of tokens, splits off any
// redirections, and runs the result either as a builtin or as a child
// process via the supervisor.
package shell

import (
	"fmt"
	"io"
	"os"

	"vshell/internal/builtin"
	"vshell/internal/dispatch"
	"vshell/internal/iobuf"
	"vshell/internal/redirect"
	"vshell/internal/supervisor"
	"vshell/internal/token"
)

// Prompt is printed at the start of every line read from the terminal.
const Prompt = "$ "

// Shell ties the tokeniser, redirection collector, builtin registry, and
// supervisor together into the session's one read loop. Each Shell owns an
// independent working directory, so that several Shells can run
// concurrently in one process (one per SSH session channel) without
// stepping on each other via the process-wide os.Chdir.
type Shell struct {
	in     *iobuf.Buffer
	out    io.Writer
	errOut io.Writer
	reader *token.Reader
	dir    string

	interactive bool
}

// New builds a Shell reading from in and writing to out/errOut. If
// interactive is true, a prompt is printed before each line. The session
// starts in the process's current working directory.
func New(in *iobuf.Buffer, out, errOut io.Writer, interactive bool) *Shell {
	dir, err := os.Getwd()
	if err != nil {
		dir = "/"
	}
	return &Shell{
		in:          in,
		out:         out,
		errOut:      errOut,
		reader:      token.NewReader(in, out, builtin.Names()),
		dir:         dir,
		interactive: interactive,
	}
}

// Run executes the read-dispatch loop until the input stream ends,
// returning the exit code the process should use.
func (s *Shell) Run() int {
	lastCode := 0
	for {
		if s.interactive {
			_, _ = io.WriteString(s.out, Prompt)
		}

		tokens, status := s.collectLine()
		switch status {
		case token.StatusSyntaxError:
			if s.reader.EOF() {
				return lastCode
			}
			continue
		case token.StatusInterrupt:
			if s.reader.EOF() {
				return lastCode
			}
			continue
		}

		if len(tokens) == 0 {
			if s.reader.EOF() {
				return lastCode
			}
			continue
		}

		args, table, err := redirect.Collect(tokens)
		if err != nil {
			fmt.Fprintf(s.errOut, "%v\n", err)
			if s.reader.EOF() {
				return lastCode
			}
			continue
		}

		if len(args) == 0 {
			table.Close()
			if s.reader.EOF() {
				return lastCode
			}
			continue
		}

		code, exitRequested, exitCode := s.dispatch(args, table)
		table.Close()
		if exitRequested {
			return exitCode
		}
		lastCode = code

		if s.reader.EOF() {
			return lastCode
		}
	}
}

// collectLine reads tokens until Next reports end-of-line, returning
// whatever was gathered plus the status that ended the line. A syntax error
// or interrupt discards the partial line.
func (s *Shell) collectLine() ([]*token.Token, token.Status) {
	var tokens []*token.Token
	first := true
	for {
		tok, status, err := s.reader.Next(first)
		if err != nil {
			return nil, token.StatusEndOfLine
		}
		switch status {
		case token.StatusOK:
			tokens = append(tokens, tok)
			first = false
			continue
		case token.StatusEndOfLine:
			return tokens, token.StatusEndOfLine
		case token.StatusSyntaxError:
			return nil, token.StatusSyntaxError
		case token.StatusInterrupt:
			return nil, token.StatusInterrupt
		}
		return tokens, status
	}
}

// dispatch runs args[0] as a builtin, a resolved executable, or reports "not
// found", honouring table's redirections. It reports the command's exit
// code, whether the shell itself was asked to exit, and the code to exit
// with in that case.
func (s *Shell) dispatch(args []string, table redirect.Table) (code int, exitRequested bool, exitCode int) {
	name := args[0]

	if desc, ok := builtin.Lookup(name); ok {
		ctx := &builtin.Context{
			Stdout:  builtin.WriterFor(table, 1, s.out),
			Stderr:  builtin.WriterFor(table, 2, s.errOut),
			Dir:     s.dir,
			Resolve: dispatch.Resolve,
		}
		code, err := desc.Handler(ctx, args)
		s.dir = ctx.Dir
		if err != nil {
			if req, ok := err.(*builtin.ExitRequest); ok {
				return 0, true, req.Code
			}
			fmt.Fprintf(s.errOut, "%s: %v\n", name, err)
			return 1, false, 0
		}
		return code, false, 0
	}

	path, ok := dispatch.Resolve(name)
	if !ok {
		fmt.Fprintf(s.errOut, "%s: command not found\n", name)
		return 127, false, 0
	}
	if dispatch.IsDir(path) {
		fmt.Fprintf(s.errOut, "%s: is a directory\n", name)
		return 126, false, 0
	}

	stdout := builtin.WriterFor(table, 1, s.out)
	stderr := builtin.WriterFor(table, 2, s.errOut)
	runCode, err := supervisor.Run(path, args, s.dir, table, s.in, stdout, stderr)
	if err != nil {
		fmt.Fprintf(s.errOut, "%s: %v\n", name, err)
		return 1, false, 0
	}
	return runCode, false, 0
}

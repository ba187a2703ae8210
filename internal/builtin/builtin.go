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

// Package builtin implements the shell's small set of built-in commands:
// help, exit, echo, type, pwd, and cd.
package builtin

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"vshell/internal/redirect"
)

// ExitRequest is returned (wrapped as an error) by the exit builtin to ask
// the caller to tear down shell state and terminate with Code. It is not a
// failure in the ordinary sense, so callers must check for it explicitly
// rather than just reporting err.
type ExitRequest struct {
	Code int
}

func (e *ExitRequest) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

// Context carries everything a handler needs besides its argv: where to
// write, which names are resolvable (for type's "is a shell builtin"), and
// the session's current working directory.
//
// Dir is deliberately not backed by os.Chdir/os.Getwd: a process may be
// running several independent sessions at once (one per SSH channel), and
// os.Chdir is process-wide, so each session tracks its own Dir here instead
// and passes it to spawned children via exec.Cmd.Dir.
type Context struct {
	Stdout io.Writer
	Stderr io.Writer

	// Dir is the session's current working directory. cd updates it in
	// place; pwd and the supervisor (via exec.Cmd.Dir) read it.
	Dir string

	// Resolve searches PATH (and, for a name containing '/', the filesystem
	// directly) the same way the dispatcher does, returning the resolved
	// path and whether it was found. Wired in by the caller to avoid an
	// import cycle between builtin and dispatch.
	Resolve func(name string) (path string, ok bool)
}

// Handler runs a builtin given its full argv (argv[0] is the command name).
// It returns the process-visible exit code, or an *ExitRequest error when
// the builtin wants the shell itself to terminate.
type Handler func(ctx *Context, args []string) (int, error)

// Descriptor names one builtin for the registry, help text, and dispatch.
type Descriptor struct {
	Name        string
	Description string
	Handler     Handler
}

// Registry is the ordered, fixed set of builtins; order determines help's
// listing order.
var Registry = []Descriptor{
	{Name: "help", Description: "Displays help about commands.", Handler: helpCommand},
	{Name: "exit", Description: "Exit the shell, with optional code.", Handler: exitCommand},
	{Name: "echo", Description: "Prints any arguments to stdout.", Handler: echoCommand},
	{Name: "type", Description: "Prints the type of command arguments.", Handler: typeCommand},
	{Name: "pwd", Description: "Prints current working directory.", Handler: pwdCommand},
	{Name: "cd", Description: "Change current working directory.", Handler: cdCommand},
}

// Names returns the registered builtin names, in registry order.
func Names() []string {
	names := make([]string, len(Registry))
	for i, d := range Registry {
		names[i] = d.Name
	}
	return names
}

// Lookup finds a builtin by exact name.
func Lookup(name string) (Descriptor, bool) {
	for _, d := range Registry {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// WriterFor resolves which writer a builtin should use for fd (1 or 2),
// honouring a redirection table entry when present and otherwise falling
// back to the session's own stdout/stderr.
func WriterFor(table redirect.Table, fd int, fallback io.Writer) io.Writer {
	if w := table.Writer(fd); w != nil {
		return w
	}
	return fallback
}

func helpCommand(ctx *Context, args []string) (int, error) {
	if len(args) > 1 {
		name := args[1]
		for _, d := range Registry {
			if d.Name == name {
				fmt.Fprintf(ctx.Stdout, "    %-10s - %s\n", d.Name, d.Description)
				return 0, nil
			}
		}
		fmt.Fprintf(ctx.Stderr, "%s: Builtin %s not found\n", args[0], name)
		return 1, nil
	}
	fmt.Fprintln(ctx.Stdout, "Available commands:")
	for _, d := range Registry {
		fmt.Fprintf(ctx.Stdout, "    %-10s - %s\n", d.Name, d.Description)
	}
	return 0, nil
}

func exitCommand(ctx *Context, args []string) (int, error) {
	code := 0
	if len(args) > 1 {
		n, err := strconv.ParseInt(args[1], 0, 64)
		if err != nil {
			fmt.Fprintf(ctx.Stderr, "%s: numeric argument required\n", args[0])
			return 1, nil
		}
		if n < 0 || n > 255 {
			fmt.Fprintf(ctx.Stderr, "%s: exit code must be 0-255\n", args[0])
			return 1, nil
		}
		code = int(n)
	}
	return 0, &ExitRequest{Code: code}
}

func echoCommand(ctx *Context, args []string) (int, error) {
	for i := 1; i < len(args); i++ {
		if i > 1 {
			fmt.Fprint(ctx.Stdout, " ")
		}
		fmt.Fprint(ctx.Stdout, args[i])
	}
	fmt.Fprintln(ctx.Stdout)
	return 0, nil
}

func typeCommand(ctx *Context, args []string) (int, error) {
	ret := 0
	for _, arg := range args[1:] {
		if _, ok := Lookup(arg); ok {
			fmt.Fprintf(ctx.Stdout, "%s is a shell builtin\n", arg)
			continue
		}
		if path, ok := ctx.Resolve(arg); ok {
			fmt.Fprintf(ctx.Stdout, "%s is %s\n", arg, path)
			continue
		}
		ret = 1
		fmt.Fprintf(ctx.Stderr, "%s: not found\n", arg)
	}
	return ret, nil
}

func pwdCommand(ctx *Context, args []string) (int, error) {
	if len(args) > 1 {
		fmt.Fprintln(ctx.Stderr, "pwd: arguments not supported yet")
		return 1, nil
	}
	fmt.Fprintln(ctx.Stdout, ctx.Dir)
	return 0, nil
}

// changeDir resolves path against ctx.Dir (absolute paths pass through
// unchanged), confirms it names an accessible directory, and updates ctx.Dir.
// It never calls os.Chdir: the process's own working directory stays fixed
// so that concurrent sessions cannot step on each other.
func changeDir(ctx *Context, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(ctx.Dir, target)
	}
	info, err := os.Stat(target)
	switch {
	case os.IsPermission(err):
		fmt.Fprintf(ctx.Stderr, "cd: %s: Permission denied\n", path)
		return 1, nil
	case os.IsNotExist(err):
		fmt.Fprintf(ctx.Stderr, "cd: %s: No such file or directory\n", path)
		return 1, nil
	case err != nil:
		fmt.Fprintf(ctx.Stderr, "cd: %s: %v\n", path, err)
		return 1, nil
	case !info.IsDir():
		fmt.Fprintf(ctx.Stderr, "cd: %s: Not a directory\n", path)
		return 1, nil
	}
	ctx.Dir = filepath.Clean(target)
	return 0, nil
}

func cdCommand(ctx *Context, args []string) (int, error) {
	if len(args) > 2 {
		fmt.Fprintln(ctx.Stderr, "cd: too many arguments")
		return 1, nil
	}
	if len(args) == 1 {
		home, ok := os.LookupEnv("HOME")
		if !ok {
			fmt.Fprintln(ctx.Stderr, "cd: HOME not set")
			return 1, nil
		}
		return changeDir(ctx, home)
	}
	return changeDir(ctx, args[1])
}

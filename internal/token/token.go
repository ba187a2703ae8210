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

// Package token implements the shell's word-at-a-time reader: quoting,
// backslash escaping, tilde expansion, and the embedded-redirection-operator
// rule that lets `>`/`>>` appear without surrounding whitespace.
package token

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"

	"vshell/internal/iobuf"
)

const (
	ctrlC = 0x03
	ctrlD = 0x04
)

// Quote is the tokeniser's quoting state. It is scoped to a single token:
// each call to Next starts Unquoted and must return to Unquoted before the
// token is considered complete.
type Quote int

const (
	Unquoted Quote = iota
	Single
	Double
)

// Status reports how Next's read concluded.
type Status int

const (
	// StatusOK means Token holds a normally-terminated word.
	StatusOK Status = iota
	// StatusEndOfLine means a bare newline (or EOF) ended the line; Token is nil.
	StatusEndOfLine
	// StatusSyntaxError means an unterminated quote was hit at EOF.
	StatusSyntaxError
	// StatusInterrupt means Ctrl-C discarded the in-progress word.
	StatusInterrupt
)

// Token is one word of input, carrying enough provenance for the caller to
// tell a literal ">" from the redirection operator.
type Token struct {
	Text    string
	Quoted  bool
	Escaped bool
}

// Reader turns a byte stream into a sequence of Tokens.
type Reader struct {
	in  *iobuf.Buffer
	out io.Writer

	builtins []string

	eofRequested bool
}

// NewReader builds a Reader over in, printing prompts/bell/echo-of-control
// output to out. builtinNames feeds Tab completion and may be nil.
func NewReader(in *iobuf.Buffer, out io.Writer, builtinNames []string) *Reader {
	return &Reader{in: in, out: out, builtins: builtinNames}
}

// EOF reports whether the input stream is exhausted, either because the
// underlying descriptor hit end-of-file or because a leading Ctrl-D asked
// the shell to stop reading entirely.
func (r *Reader) EOF() bool {
	return r.eofRequested || r.in.EOF()
}

func (r *Reader) bell() {
	_, _ = io.WriteString(r.out, "\a")
}

func (r *Reader) continuationPrompt() {
	_, _ = io.WriteString(r.out, "\n> ")
}

// Next reads the next word from the line, skipping leading spaces. first
// marks the first word of a logical line: it enables Tab completion against
// builtin names and makes a leading Ctrl-D end the whole input stream rather
// than just ring the bell.
func (r *Reader) Next(first bool) (*Token, Status, error) {
	for {
		// Skip leading delimiters (plain spaces only; newline is meaningful).
		for {
			c, ok, err := r.in.Peek()
			if err != nil {
				return nil, StatusEndOfLine, err
			}
			if !ok || c == '\n' || c != ' ' {
				break
			}
			if _, _, err := r.in.Read(); err != nil {
				return nil, StatusEndOfLine, err
			}
		}

		c, ok, err := r.in.Peek()
		if err != nil {
			return nil, StatusEndOfLine, err
		}
		if !ok {
			return nil, StatusEndOfLine, nil
		}

		switch c {
		case ctrlC:
			_, _, _ = r.in.Read()
			_, _ = io.WriteString(r.out, "^C\n")
			return nil, StatusInterrupt, nil

		case ctrlD:
			if first {
				_, _, _ = r.in.Read()
				_, _ = io.WriteString(r.out, "\n")
				r.eofRequested = true
				return nil, StatusEndOfLine, nil
			}
			_, _, _ = r.in.Read()
			r.bell()
			continue

		case '\n':
			_, _, _ = r.in.Read()
			return nil, StatusEndOfLine, nil

		case '\t':
			_, _, _ = r.in.Read()
			if first {
				if tok, done := r.completeBuiltin(""); done {
					return tok, StatusOK, nil
				}
			}
			r.bell()
			continue

		case '~':
			return r.readTilde(first)

		default:
			return r.readBody("", Unquoted, first)
		}
	}
}

// completeBuiltin implements Tab completion: given the partial word read so
// far, a unique builtin-name match has its remainder spliced in followed by
// a trailing space, ending the word. An ambiguous or empty match set does
// nothing (the caller rings the bell).
func (r *Reader) completeBuiltin(prefix string) (*Token, bool) {
	var match string
	count := 0
	for _, name := range r.builtins {
		if strings.HasPrefix(name, prefix) {
			match = name
			count++
		}
	}
	if count != 1 {
		return nil, false
	}
	_, _ = fmt.Fprintf(r.out, "%s ", match[len(prefix):])
	return &Token{Text: match}, true
}

// readTilde implements leading "~" expansion: bare "~" (-> $HOME), "~/..."
// (prepend $HOME to the rest of the word), and "~user/..." (looked up via
// the system user database).
func (r *Reader) readTilde(first bool) (*Token, Status, error) {
	_, _, err := r.in.Read() // consume '~'
	if err != nil {
		return nil, StatusEndOfLine, err
	}

	c, ok, err := r.in.Peek()
	if err != nil {
		return nil, StatusEndOfLine, err
	}
	if !ok || c == ' ' || c == '\n' {
		home, set := os.LookupEnv("HOME")
		if !set {
			return &Token{Text: "~"}, StatusOK, nil
		}
		return &Token{Text: home}, StatusOK, nil
	}

	if c == '/' {
		rest, status, err := r.readBody("", Unquoted, first)
		if status != StatusOK || err != nil {
			return rest, status, err
		}
		home, set := os.LookupEnv("HOME")
		if !set {
			return &Token{Text: "~" + rest.Text, Quoted: rest.Quoted, Escaped: rest.Escaped}, StatusOK, nil
		}
		return &Token{Text: home + rest.Text, Quoted: rest.Quoted, Escaped: rest.Escaped}, StatusOK, nil
	}

	var name strings.Builder
	for {
		c, ok, err := r.in.Peek()
		if err != nil {
			return nil, StatusEndOfLine, err
		}
		if !ok || c == ' ' || c == '\n' || c == '/' {
			break
		}
		if c == ctrlC {
			_, _, _ = r.in.Read()
			_, _ = io.WriteString(r.out, "^C\n")
			return nil, StatusInterrupt, nil
		}
		if c == ctrlD {
			_, _, _ = r.in.Read()
			r.bell()
			continue
		}
		b, _, err := r.in.Read()
		if err != nil {
			return nil, StatusEndOfLine, err
		}
		name.WriteByte(b)
	}

	username := name.String()
	homeDir, found := lookupHomeDir(username)
	if !found {
		rest, status, err := r.readBody("", Unquoted, first)
		if status != StatusOK || err != nil {
			return rest, status, err
		}
		text := "~" + username + rest.Text
		return &Token{Text: text, Quoted: rest.Quoted, Escaped: rest.Escaped}, StatusOK, nil
	}

	c, ok, err = r.in.Peek()
	if err != nil {
		return nil, StatusEndOfLine, err
	}
	if !ok || c == ' ' || c == '\n' {
		return &Token{Text: homeDir}, StatusOK, nil
	}
	rest, status, err := r.readBody("", Unquoted, first)
	if status != StatusOK || err != nil {
		return rest, status, err
	}
	return &Token{Text: homeDir + rest.Text, Quoted: rest.Quoted, Escaped: rest.Escaped}, StatusOK, nil
}

func lookupHomeDir(username string) (string, bool) {
	u, err := user.Lookup(username)
	if err != nil {
		return "", false
	}
	return u.HomeDir, true
}

// readBody runs the core quoting/escaping FSM, seeded with any text already
// gathered by a caller (tilde expansion hands off mid-word). It implements
// the embedded ">"/">>" rule: a bare '>' starts a redirection token when the
// word so far is empty, and otherwise ends the word without being consumed.
func (r *Reader) readBody(seed string, quote Quote, first bool) (*Token, Status, error) {
	var sb strings.Builder
	sb.WriteString(seed)
	quoted := quote != Unquoted
	anyEscape := false

	for {
		c, ok, err := r.in.Peek()
		if err != nil {
			return nil, StatusEndOfLine, err
		}
		if !ok {
			break
		}
		if quote == Unquoted && (c == ' ' || c == '\n') {
			break
		}

		if quote == Unquoted && c == '>' {
			if sb.Len() == 0 {
				_, _, _ = r.in.Read()
				sb.WriteByte('>')
				if c2, ok2, err2 := r.in.Peek(); err2 == nil && ok2 && c2 == '>' {
					_, _, _ = r.in.Read()
					sb.WriteByte('>')
				}
				return &Token{Text: sb.String()}, StatusOK, nil
			}
			break
		}

		switch c {
		case ctrlC:
			_, _, _ = r.in.Read()
			_, _ = io.WriteString(r.out, "^C\n")
			return nil, StatusInterrupt, nil

		case ctrlD:
			_, _, _ = r.in.Read()
			r.bell()
			continue

		case '\t':
			if first && quote == Unquoted {
				_, _, _ = r.in.Read()
				if tok, done := r.completeBuiltin(sb.String()); done {
					return tok, StatusOK, nil
				}
				r.bell()
				continue
			}
			b, _, err := r.in.Read()
			if err != nil {
				return nil, StatusEndOfLine, err
			}
			sb.WriteByte(b)
			continue

		case '\\':
			status, err := r.readEscape(&sb, quote)
			if err != nil || status == StatusInterrupt {
				return nil, status, err
			}
			anyEscape = true
			continue

		case '"':
			switch quote {
			case Unquoted:
				quote = Double
				quoted = true
			case Single:
				sb.WriteByte('"')
			case Double:
				quote = Unquoted
			}
			_, _, _ = r.in.Read()
			continue

		case '\'':
			switch quote {
			case Unquoted:
				quote = Single
				quoted = true
			case Single:
				quote = Unquoted
			case Double:
				sb.WriteByte('\'')
			}
			_, _, _ = r.in.Read()
			continue

		case '\n':
			r.continuationPrompt()
			sb.WriteByte('\n')
			_, _, _ = r.in.Read()
			continue

		default:
			b, _, err := r.in.Read()
			if err != nil {
				return nil, StatusEndOfLine, err
			}
			sb.WriteByte(b)
		}
	}

	if quote != Unquoted {
		if quote == Single {
			_, _ = io.WriteString(r.out, "syntax error: unexpected EOF while looking for matching single quote\n")
		} else {
			_, _ = io.WriteString(r.out, "syntax error: unexpected EOF while looking for matching double quote\n")
		}
		return nil, StatusSyntaxError, nil
	}

	return &Token{Text: sb.String(), Quoted: quoted, Escaped: anyEscape}, StatusOK, nil
}

// readEscape consumes a backslash and whatever escape sequence follows it,
// honouring the different escape tables for each quote state: in double
// quotes only \ $ " > and a trailing newline are special; in single quotes a
// backslash is a literal character; unquoted, the following byte is always
// taken verbatim.
func (r *Reader) readEscape(sb *strings.Builder, quote Quote) (Status, error) {
	_, _, err := r.in.Read() // consume backslash
	if err != nil {
		return StatusEndOfLine, err
	}

	switch quote {
	case Single:
		sb.WriteByte('\\')
		return StatusOK, nil

	case Double:
		for {
			c, ok, err := r.in.Peek()
			if err != nil {
				return StatusEndOfLine, err
			}
			if !ok {
				return StatusOK, nil
			}
			switch c {
			case ctrlC:
				_, _, _ = r.in.Read()
				_, _ = io.WriteString(r.out, "^C\n")
				return StatusInterrupt, nil
			case ctrlD:
				_, _, _ = r.in.Read()
				r.bell()
				continue
			case '\n':
				r.continuationPrompt()
				_, _, _ = r.in.Read()
				return StatusOK, nil
			case '\\', '$', '"', '>':
				b, _, _ := r.in.Read()
				sb.WriteByte(b)
				return StatusOK, nil
			default:
				b, _, _ := r.in.Read()
				sb.WriteByte('\\')
				sb.WriteByte(b)
				return StatusOK, nil
			}
		}

	default: // Unquoted
		for {
			c, ok, err := r.in.Peek()
			if err != nil {
				return StatusEndOfLine, err
			}
			if !ok {
				return StatusOK, nil
			}
			switch c {
			case ctrlC:
				_, _, _ = r.in.Read()
				_, _ = io.WriteString(r.out, "^C\n")
				return StatusInterrupt, nil
			case ctrlD:
				_, _, _ = r.in.Read()
				r.bell()
				continue
			case '\n':
				r.continuationPrompt()
				_, _, _ = r.in.Read()
				return StatusOK, nil
			default:
				b, _, _ := r.in.Read()
				sb.WriteByte(b)
				return StatusOK, nil
			}
		}
	}
}

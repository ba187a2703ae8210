/*
 * vshell: an interactive command shell
 * Copyright 2019-2023 Daniel Selifonov
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

// Package sshserver embeds an SSH server that runs one independent instance
// of internal/shell per accepted session channel, over a pty allocated for
// that channel. It descends from the teacher codebase's SSH proxy: the
// accept-loop/per-channel-goroutine/request-reflection shape is kept, but
// "dial a target and splice channels" is replaced by "allocate a pty and run
// a shell loop directly against it" -- there is no target to dial.
package sshserver

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/crypto/ed25519"
	"golang.org/x/crypto/ssh"

	"vshell/internal/iobuf"
	"vshell/internal/pump"
	"vshell/internal/shell"
	"vshell/internal/termmode"
)

// AuthorizedKeys checks an incoming public key against an authorized_keys
// file's contents, by marshalled-key equality.
type AuthorizedKeys map[string]bool

// GenHostKey creates an ephemeral ed25519 host key, for zero-config startup.
func GenHostKey() (ssh.Signer, error) {
	_, privateKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromKey(privateKey)
}

// Config configures the embedded server.
type Config struct {
	HostKey ssh.Signer
	// Authorized, if non-nil, restricts public-key auth to keys it lists. If
	// nil, any client key (or none, via keyboard-interactive) is accepted --
	// logged loudly once, since this is a development-only default.
	Authorized AuthorizedKeys
}

var warnOnce sync.Once

// Serve accepts connections from listener until it returns an error (e.g.
// because it was closed), running one goroutine with one *shell.Shell per
// session channel accepted on each connection.
func Serve(listener net.Listener, cfg Config) error {
	serverConfig := &ssh.ServerConfig{
		MaxAuthTries: 3,
	}
	serverConfig.AddHostKey(cfg.HostKey)

	if cfg.Authorized != nil {
		serverConfig.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if cfg.Authorized[string(key.Marshal())] {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unauthorized key for %s", conn.User())
		}
	} else {
		warnOnce.Do(func() {
			fmt.Fprintln(os.Stderr, "vshell: no -authorized-keys configured, accepting any client key (development only)")
		})
		serverConfig.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			return &ssh.Permissions{}, nil
		}
		serverConfig.KeyboardInteractiveCallback = func(ssh.ConnMetadata, ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			return &ssh.Permissions{}, nil
		}
		serverConfig.NoClientAuth = true
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			return err
		}
		go handleConn(conn, serverConfig)
	}
}

func handleConn(conn net.Conn, serverConfig *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, serverConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vshell: handshake failed from %s: %v\n", conn.RemoteAddr(), err)
		_ = conn.Close()
		return
	}
	defer func() { _ = sshConn.Close() }()

	go rejectGlobalRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "only interactive sessions are served")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go handleSession(channel, requests)
	}
}

func rejectGlobalRequests(reqs <-chan *ssh.Request) {
	for req := range reqs {
		if req.WantReply {
			_ = req.Reply(false, nil)
		}
	}
}

// handleSession services exactly one "session" channel: it answers
// pty-req/window-change/shell requests, rejects exec/subsystem/anything else
// (port forwarding, X11 forwarding, and subsystems like SFTP are out of
// scope), and once a pty and a shell request have both arrived, runs one
// shell.Shell against the pty until the channel or the shell loop ends.
func handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer func() { _ = channel.Close() }()

	var ptmx, tty *os.File
	shellStarted := false
	var wg sync.WaitGroup

	for req := range requests {
		switch req.Type {
		case "pty-req":
			data, err := InterpretPtyReq(req.Payload)
			if err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			p, t, err := pty.Open()
			if err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = pty.Setsize(p, &pty.Winsize{Rows: uint16(data.Height), Cols: uint16(data.Width)})
			ptmx, tty = p, t
			_ = req.Reply(true, nil)

		case "window-change":
			data, err := InterpretWindowChange(req.Payload)
			if err != nil || ptmx == nil {
				continue
			}
			_ = pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(data.Height), Cols: uint16(data.Width)})

		case "shell":
			if req.WantReply {
				_ = req.Reply(ptmx != nil && !shellStarted, nil)
			}
			if ptmx == nil || shellStarted {
				continue
			}
			shellStarted = true
			wg.Add(1)
			go func() {
				defer wg.Done()
				runSession(channel, ptmx, tty)
			}()

		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}

	wg.Wait()
	if ptmx != nil {
		_ = ptmx.Close()
	}
	if tty != nil {
		_ = tty.Close()
	}
}

// runSession relays bytes between the SSH channel and the pty master (input:
// channel -> master, which surfaces on the slave as if typed at a terminal;
// output: slave writes surface on the master, relayed to the channel through
// an async sink so a slow client can't stall the shell loop) while running
// one shell.Shell against the slave, exactly as it would run against a real
// controlling terminal.
func runSession(channel ssh.Channel, ptmx, tty *os.File) {
	guard, err := termmode.Acquire(int(tty.Fd()))
	var echo io.Writer
	if err == nil {
		defer func() { _ = guard.Restore() }()
		if guard.IsTerminal() {
			echo = tty
		}
	}

	sink := pump.NewAsyncSink(channel, 64*1024)
	defer func() { _ = sink.Close() }()

	go func() { _, _ = io.Copy(ptmx, channel) }()
	go func() { _, _ = io.Copy(sink, ptmx) }()

	in := iobuf.New(int(tty.Fd()), echo)
	sh := shell.New(in, tty, tty, true)
	code := sh.Run()

	var status struct{ Status uint32 }
	status.Status = uint32(code)
	_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(&status))
}

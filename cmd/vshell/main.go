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
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"

	"vshell/internal/iobuf"
	"vshell/internal/shell"
	"vshell/internal/sshserver"
	"vshell/internal/termmode"
)

func main() {
	var listen string
	var hostKeyPath string
	var authorizedKeysPath string

	flag.StringVar(&listen, "listen", "", "Listen address for SSH-served mode, e.g. :2222 (absent: run one local interactive session)")
	flag.StringVar(&hostKeyPath, "host-key", "", "PEM-encoded SSH host private key (absent: generate an ephemeral one)")
	flag.StringVar(&authorizedKeysPath, "authorized-keys", "", "authorized_keys file restricting SSH-served connections (absent: accept any client key)")
	flag.Parse()

	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "vshell: unexpected argument %q\n", flag.Arg(0))
		os.Exit(1)
	}

	if listen != "" {
		os.Exit(runServed(listen, hostKeyPath, authorizedKeysPath))
	}
	os.Exit(runLocal())
}

func runLocal() int {
	guard, err := termmode.Acquire(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vshell: %v\n", err)
		return 1
	}
	defer func() { _ = guard.Restore() }()

	var echo io.Writer
	if guard.IsTerminal() {
		echo = os.Stdout
	}
	in := iobuf.New(int(os.Stdin.Fd()), echo)
	sh := shell.New(in, os.Stdout, os.Stderr, guard.IsTerminal())
	return sh.Run()
}

func runServed(listen, hostKeyPath, authorizedKeysPath string) int {
	hostKey, err := loadOrGenerateHostKey(hostKeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vshell: host key: %v\n", err)
		return 1
	}

	var authorized sshserver.AuthorizedKeys
	if authorizedKeysPath != "" {
		authorized, err = loadAuthorizedKeys(authorizedKeysPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vshell: authorized keys: %v\n", err)
			return 1
		}
	}

	listener, err := net.Listen("tcp", listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vshell: listen: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "vshell: serving SSH sessions on %s\n", listener.Addr())

	if err := sshserver.Serve(listener, sshserver.Config{HostKey: hostKey, Authorized: authorized}); err != nil {
		fmt.Fprintf(os.Stderr, "vshell: serve: %v\n", err)
		return 1
	}
	return 0
}

func loadOrGenerateHostKey(path string) (ssh.Signer, error) {
	if path == "" {
		return sshserver.GenHostKey()
	}
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(keyBytes)
}

func loadAuthorizedKeys(path string) (sshserver.AuthorizedKeys, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	authorized := sshserver.AuthorizedKeys{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			continue
		}
		authorized[string(key.Marshal())] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return authorized, nil
}

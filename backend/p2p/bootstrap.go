// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package p2p

import (
	"bufio"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"syscall"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/sys/unix"

	"github.com/TobiasZehetmair/laik/errs"
)

// HomeLID is the location-ID the bootstrap winner always takes.
const HomeLID = 0

// Config is everything bootstrap needs to find or become home.
type Config struct {
	HomeHost string
	HomePort int
	Location string // this process's location string (rack/zone/etc, opaque)

	// Size is the target world size (LAIK_SIZE): home accepts connections
	// until this many peers have registered before originating phase 0; a
	// non-home peer's Loop blocks in AwaitRoster until it receives that
	// line. Size <= 1 disables the barrier (single-process run).
	Size int

	// ClusterKey, if non-empty, is stretched by keyFromPhrase (the phrase
	// repeated and XORed with each byte's position) into a chacha20poly1305
	// key that seals the register challenge (plaintext registration when
	// ClusterKey is empty).
	ClusterKey string
}

// Bootstrap is the outcome of the home-rendezvous protocol: this
// process's assigned LID, its listening socket, and (for the home
// process) the peer table seeded with itself. HomeConn is the
// connection a non-home process registered over; it stays open so
// NewLoop can keep reading further id/phase broadcasts from it instead
// of reconnecting. HomeReader is the buffered reader register() used,
// carried forward so bytes it already pulled from the socket (but
// didn't consume as a full line) aren't lost to a second, independent
// reader wrapping the same connection.
type Bootstrap struct {
	MyLID      int
	Listener   net.Listener
	Table      *Table
	IsHome     bool
	HomeConn   net.Conn
	HomeReader *bufio.Reader
}

// Run attempts to bind the configured home port with address-reuse
// enabled; success makes this process home (mylid = 0), failure means
// dial out to whoever is home and register.
func Run(cfg Config) (*Bootstrap, error) {
	ln, err := bindReusable(cfg.HomeHost, cfg.HomePort)
	if err == nil {
		table := NewTable()
		if err := table.Add(NewPeer(HomeLID, cfg.Location, cfg.HomeHost, cfg.HomePort)); err != nil {
			return nil, err
		}
		return &Bootstrap{MyLID: HomeLID, Listener: ln, Table: table, IsHome: true}, nil
	}

	self, err := net.Listen("tcp", ":0")
	if err != nil {
		return nil, errs.WrapTransport(err, "p2p: listen on OS-chosen port")
	}
	myPort := self.Addr().(*net.TCPAddr).Port

	// Advertise the address home actually sees us from (the outbound
	// interface used to reach it), not ":0"'s wildcard bind address, which
	// other peers could never dial back to.
	probe, err := net.Dial("tcp", fmt.Sprintf("%s:%d", cfg.HomeHost, cfg.HomePort))
	if err != nil {
		self.Close()
		return nil, errs.WrapTransport(err, "p2p: probe home address")
	}
	myHost := probe.LocalAddr().(*net.TCPAddr).IP.String()
	probe.Close()

	lid, table, conn, reader, err := register(cfg, myHost, myPort)
	if err != nil {
		self.Close()
		return nil, err
	}
	return &Bootstrap{MyLID: lid, Listener: self, Table: table, IsHome: false, HomeConn: conn, HomeReader: reader}, nil
}

// bindReusable binds host:port with SO_REUSEADDR set before bind, so a
// crashed-and-restarted home can immediately reclaim its port.
func bindReusable(host string, port int) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.Listen(nil, "tcp", fmt.Sprintf("%s:%d", host, port))
}

// register dials home, performs the `register`/reply exchange, and
// returns the still-open connection along with the buffered reader used
// to read it: home keeps this same socket for the lifetime of the
// process, using it to broadcast later `id` and `phase` lines, so
// register must not close it, and whoever reads from it next (NewLoop)
// must reuse this exact reader rather than wrap the connection in a
// second one — bufio fills its buffer from the socket eagerly, so a
// fresh reader would never see bytes this one already pulled ahead of
// the last line it returned. The initial reply burst only covers peers
// registered so far; a caller wanting the complete, final-size table
// must keep reading from the returned connection (see Loop.AwaitRoster)
// rather than treating this function's table as final.
func register(cfg Config, host string, port int) (int, *Table, net.Conn, *bufio.Reader, error) {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", cfg.HomeHost, cfg.HomePort))
	if err != nil {
		return 0, nil, nil, nil, errs.WrapTransport(err, "p2p: dial home")
	}

	line := Line{Verb: VerbRegister, Location: cfg.Location, Host: host, Port: port}.Encode()
	if cfg.ClusterKey != "" {
		sealed, err := sealChallenge(cfg.ClusterKey, line)
		if err != nil {
			conn.Close()
			return 0, nil, nil, nil, err
		}
		line = sealed
	}
	if _, err := io.WriteString(conn, line); err != nil {
		conn.Close()
		return 0, nil, nil, nil, errs.WrapTransport(err, "p2p: write register")
	}

	r := bufio.NewReaderSize(conn, recvBufSize)
	table := NewTable()
	myLID := -1
	for {
		raw, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF && raw == "" {
				break
			}
			conn.Close()
			return 0, nil, nil, nil, errs.WrapTransport(err, "p2p: read registration reply")
		}
		l, err := ParseLine(raw)
		if err != nil {
			conn.Close()
			return 0, nil, nil, nil, err
		}
		if l.Verb != VerbID {
			continue
		}
		if err := table.Add(NewPeer(l.LID, l.Location, l.Host, l.Port)); err != nil {
			conn.Close()
			return 0, nil, nil, nil, err
		}
		if l.Host == host && l.Port == port {
			myLID = l.LID
			break
		}
	}
	if myLID == -1 {
		conn.Close()
		return 0, nil, nil, nil, errs.ProtocolErrorf("p2p: registration reply never assigned an lid")
	}
	return myLID, table, conn, r, nil
}

// sealChallenge AEAD-seals plaintext under a key derived from phrase, then
// hex-wraps it as a `# sealed <hex>` comment line so an unsealed peer still
// parses the line (as a no-op comment) instead of crashing on garbage.
func sealChallenge(phrase, plaintext string) (string, error) {
	aead, err := aeadFromPhrase(phrase)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errs.WrapConfig(err, "p2p: nonce")
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return fmt.Sprintf("# sealed %x\n", sealed), nil
}

// openChallenge reverses sealChallenge given the same phrase.
func openChallenge(phrase string, sealed []byte) (string, error) {
	aead, err := aeadFromPhrase(phrase)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", errs.ProtocolErrorf("p2p: sealed challenge too short")
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", errs.WrapProtocol(err, "p2p: open sealed challenge")
	}
	return string(plain), nil
}

func aeadFromPhrase(phrase string) (cipher.AEAD, error) {
	key := keyFromPhrase(phrase)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errs.WrapConfig(err, "p2p: chacha20poly1305 key")
	}
	return aead, nil
}

// keyFromPhrase stretches an operator-supplied phrase into exactly
// chacha20poly1305.KeySize bytes. It is not a general-purpose KDF; it
// exists only to turn LAIK_CLUSTER_KEY into a fixed-size key.
func keyFromPhrase(phrase string) []byte {
	key := make([]byte, chacha20poly1305.KeySize)
	src := []byte(phrase)
	for i := range key {
		key[i] = src[i%len(src)] ^ byte(i)
	}
	return key
}

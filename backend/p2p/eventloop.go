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
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/TobiasZehetmair/laik/errs"
	"github.com/TobiasZehetmair/laik/mapping"
	"github.com/TobiasZehetmair/laik/reduce"
	"github.com/TobiasZehetmair/laik/space"
)

// recvBufSize is the per-descriptor receive buffer the event loop reads
// into before scanning for newlines.
const recvBufSize = 64 * 1024

// inbound is one line lifted off a connection, funneled onto Loop.inbox by
// that connection's reader goroutine. Loop's single dispatch goroutine
// drains inbox, so all Table/Peer mutation happens on one goroutine even
// though reads happen concurrently: this realizes a single-threaded,
// readiness-based dispatcher as one logical goroutine fed by
// per-connection readers instead of select/poll, since Go has no portable
// user-space readiness multiplexer over net.Conn.
type inbound struct {
	lid  int // -1 for a connection accepted by acceptLoop; lidForConn identifies its sender
	conn net.Conn
	line Line
}

// Loop is the event loop driving this process's point-to-point traffic:
// the listening socket, the peer table, and per-connection readers funnel
// into a single dispatch goroutine.
type Loop struct {
	cfg      Config
	table    *Table
	mu       sync.Mutex
	myLID    int
	listener net.Listener

	inbox chan inbound

	// waiters are closures re-polled by the dispatch goroutine after every
	// delivered line: a caller suspends by registering a predicate and
	// blocking until the dispatch goroutine finds it satisfied.
	waiters   map[chan struct{}]func() bool
	waitersMu sync.Mutex

	// resizeWaiters are woken in a single batch whenever a `done` line
	// closes out a resize round; unlike waiters, these do not re-check a
	// predicate, since only home knows a round is complete.
	resizeMu      sync.Mutex
	resizeWaiters []chan struct{}

	// phaseReceived and phaseID latch the bootstrap-completion signal a
	// non-home peer gets from home once the full roster has registered.
	phaseReceived bool
	phaseID       int

	// bootstrapDone guards against re-broadcasting phase 0 if the table
	// later changes size again via elastic resize.
	bootstrapDone bool
}

// NewLoop constructs a Loop around an already-established Bootstrap. For
// a non-home process, the connection it registered over (b.HomeConn)
// becomes home's tracked Peer.conn and is fed into the dispatch loop so
// later id/phase broadcasts from home keep arriving on it.
func NewLoop(cfg Config, b *Bootstrap) *Loop {
	l := &Loop{
		cfg:      cfg,
		table:    b.Table,
		myLID:    b.MyLID,
		listener: b.Listener,
		inbox:    make(chan inbound, 256),
		waiters:  make(map[chan struct{}]func() bool),
	}
	go l.acceptLoop()
	go l.dispatchLoop()
	if b.HomeConn != nil {
		if home := l.table.Get(HomeLID); home != nil {
			l.mu.Lock()
			home.conn = b.HomeConn
			l.mu.Unlock()
			// b.HomeReader, not a fresh scanner over b.HomeConn: register
			// already pulled bytes off the socket into it, and any of home's
			// later id/phase lines that arrived in that same read are sitting
			// in its buffer, invisible to a reader constructed from scratch.
			src := io.Reader(b.HomeConn)
			if b.HomeReader != nil {
				src = b.HomeReader
			}
			go l.readFrom(HomeLID, b.HomeConn, src)
		}
	}
	return l
}

// AwaitRoster blocks until this process's view of the world matches the
// configured size: home blocks until that many peers have registered
// (handleRegister originates phase 0 at that point); a non-home peer
// blocks until it has received that phase 0 line. size <= 1 is a no-op,
// since a single-process run (or an unconfigured LAIK_SIZE) has no
// roster to wait for.
func (l *Loop) AwaitRoster(size int) {
	if size <= 1 {
		return
	}
	if l.myLID == HomeLID {
		l.wait(func() bool { return l.table.Size() >= size })
		return
	}
	l.wait(func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.phaseReceived
	})
}

func (l *Loop) acceptLoop() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			return
		}
		go l.readConn(-1, conn)
	}
}

// ensureConn resolves lid's host:port, connects if not already connected,
// and sends `myid` so the peer can tag the descriptor.
func (l *Loop) ensureConn(lid int) (net.Conn, error) {
	p := l.table.Get(lid)
	if p == nil {
		return nil, errs.ProtocolErrorf("p2p: ensure_conn: unknown lid %d", lid)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if p.conn != nil {
		return p.conn, nil
	}
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", p.Host, p.Port))
	if err != nil {
		return nil, errs.WrapTransport(err, "p2p: dial lid %d", lid)
	}
	if _, err := conn.Write([]byte(Line{Verb: VerbMyID, LID: l.myLID}.Encode())); err != nil {
		conn.Close()
		return nil, errs.WrapTransport(err, "p2p: send myid to lid %d", lid)
	}
	p.conn = conn
	go l.readConn(lid, conn)
	return conn, nil
}

// readConn scans conn for newline-terminated lines and funnels each onto
// inbox. lid is -1 for an inbound (accepted) connection and stays -1 after
// `register`/`myid` identify the peer; those handlers record the
// connection on the Peer instead, where lidForConn finds it.
func (l *Loop) readConn(lid int, conn net.Conn) {
	l.readFrom(lid, conn, conn)
}

// readFrom is readConn's body, parameterized over the byte source: most
// callers scan conn itself, but a connection register() already read
// from must keep scanning the same *bufio.Reader so nothing buffered
// ahead of the last registration line is lost.
func (l *Loop) readFrom(lid int, conn net.Conn, src io.Reader) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, recvBufSize), recvBufSize)
	for scanner.Scan() {
		raw := scanner.Text()
		line, err := ParseLine(raw)
		if err != nil {
			logf("p2p: dropping malformed line: %v", err)
			continue // malformed line: logged and dropped, not fatal
		}
		l.inbox <- inbound{lid: lid, conn: conn, line: line}
	}
	l.dropConn(lid, conn)
}

// dropConn clears the dead descriptor from the table entry when a
// connection drops; the peer table entry itself survives.
func (l *Loop) dropConn(lid int, conn net.Conn) {
	if lid < 0 {
		var ok bool
		if lid, ok = l.lidForConn(conn); !ok {
			return
		}
	}
	l.mu.Lock()
	if p := l.table.Get(lid); p != nil && p.conn == conn {
		p.conn = nil
	}
	l.mu.Unlock()
}

func (l *Loop) dispatchLoop() {
	for in := range l.inbox {
		l.dispatch(in)
		l.wake()
	}
}

func (l *Loop) dispatch(in inbound) {
	switch in.line.Verb {
	case VerbRegister:
		l.handleRegister(in)
	case VerbID:
		l.handleID(in.line)
	case VerbMyID:
		l.handleMyID(in)
	case VerbPhase:
		l.handlePhase(in)
	case VerbAllowSend:
		l.handleAllowSend(in)
	case VerbData:
		l.handleData(in)
	case VerbResize:
		l.handleResizeHome(in)
	case VerbRemove:
		if p := l.table.Get(in.line.LID); p != nil && p.Connected() {
			p.conn.Close()
		}
		l.table.Remove(in.line.LID)
	case VerbDone:
		l.wakeResize()
	case VerbComment:
		logf("p2p: peer comment: %s", in.line.Comment)
	case VerbStatus:
		l.handleStatus(in)
	case VerbHelp:
		l.handleHelp(in)
	case VerbQuit, VerbKill:
		in.conn.Close()
	}
}

// handleStatus replies to a debug-port query with one comment line per
// table entry, then closes the connection. Used by cmd/laik-dump.
func (l *Loop) handleStatus(in inbound) {
	l.mu.Lock()
	myLID := l.myLID
	l.mu.Unlock()
	write := func(format string, args ...any) {
		line := Line{Verb: VerbComment, Comment: fmt.Sprintf(format, args...)}
		in.conn.Write([]byte(line.Encode()))
	}
	write(" mylid %d", myLID)
	for _, lid := range l.table.LIDs() {
		p := l.table.Get(lid)
		if p == nil {
			continue
		}
		write(" peer %d %s %s:%d connected=%v", p.LID, p.Location, p.Host, p.Port, p.Connected())
	}
	write(" end")
	in.conn.Close()
}

// handleHelp replies with the verb table, one per comment line.
func (l *Loop) handleHelp(in inbound) {
	verbs := []string{"register", "id", "myid", "phase", "allowsend", "data", "help", "status", "quit", "kill", "resize", "remove", "done"}
	for _, v := range verbs {
		line := Line{Verb: VerbComment, Comment: " " + v}
		in.conn.Write([]byte(line.Encode()))
	}
	in.conn.Close()
}

func (l *Loop) wakeResize() {
	l.resizeMu.Lock()
	defer l.resizeMu.Unlock()
	for _, ch := range l.resizeWaiters {
		close(ch)
	}
	l.resizeWaiters = nil
}

// handleRegister is home-only: assign the next LID, add the peer, reply
// to the newcomer with the full peer table as a burst of `id` lines, and
// broadcast the newcomer's own `id` line to every previously registered
// peer over its tracked connection. Once the roster reaches the
// configured size, it also originates phase 0 to every non-home peer.
func (l *Loop) handleRegister(in inbound) {
	if l.myLID != HomeLID {
		return
	}
	line := in.line
	if strings.HasPrefix(line.Comment, " sealed ") && l.cfg.ClusterKey != "" {
		raw, err := hex.DecodeString(strings.TrimPrefix(line.Comment, " sealed "))
		if err != nil {
			return
		}
		plain, err := openChallenge(l.cfg.ClusterKey, raw)
		if err != nil {
			logf("p2p: register challenge rejected: %v", err)
			return
		}
		if line, err = ParseLine(plain); err != nil {
			return
		}
	}
	priorLIDs := l.table.LIDs()
	lid := priorLIDs[len(priorLIDs)-1] + 1 // LIDs are sorted and include home
	p := NewPeer(lid, line.Location, line.Host, line.Port)
	if err := l.table.Add(p); err != nil {
		logf("p2p: register: %v", err)
		return
	}
	l.mu.Lock()
	p.conn = in.conn
	l.mu.Unlock()

	for _, known := range l.table.LIDs() {
		kp := l.table.Get(known)
		reply := Line{Verb: VerbID, LID: kp.LID, Location: kp.Location, Host: kp.Host, Port: kp.Port}.Encode()
		in.conn.Write([]byte(reply))
	}

	newID := Line{Verb: VerbID, LID: p.LID, Location: p.Location, Host: p.Host, Port: p.Port}.Encode()
	for _, known := range priorLIDs {
		if known == HomeLID {
			continue
		}
		kp := l.table.Get(known)
		if kp == nil || kp.conn == nil {
			continue
		}
		kp.conn.Write([]byte(newID))
	}

	l.mu.Lock()
	full := !l.bootstrapDone && l.cfg.Size > 0 && l.table.Size() >= l.cfg.Size
	if full {
		l.bootstrapDone = true
	}
	l.mu.Unlock()
	if full {
		l.broadcastPhase0()
	}
}

// broadcastPhase0 sends phase 0 to every non-home peer with a tracked
// connection, signaling that the roster is complete.
func (l *Loop) broadcastPhase0() {
	line := Line{Verb: VerbPhase, PhaseID: 0}.Encode()
	for _, lid := range l.table.LIDs() {
		if lid == HomeLID {
			continue
		}
		p := l.table.Get(lid)
		if p == nil || p.conn == nil {
			continue
		}
		p.conn.Write([]byte(line))
	}
}

// handlePhase latches the bootstrap-completion signal home originates
// once the full roster has registered; AwaitRoster blocks on this for a
// non-home peer.
func (l *Loop) handlePhase(in inbound) {
	l.mu.Lock()
	l.phaseReceived = true
	l.phaseID = in.line.PhaseID
	l.mu.Unlock()
}

func (l *Loop) handleID(line Line) {
	p := NewPeer(line.LID, line.Location, line.Host, line.Port)
	l.table.Add(p) // duplicate add is a no-op error, safe to ignore on reconnect bursts
}

func (l *Loop) handleMyID(in inbound) {
	if p := l.table.Get(in.line.LID); p != nil {
		l.mu.Lock()
		p.conn = in.conn
		l.mu.Unlock()
	}
}

func (l *Loop) handleAllowSend(in inbound) {
	lid, ok := l.lidForConn(in.conn)
	if !ok {
		return
	}
	p := l.table.Get(lid)
	if p == nil {
		return
	}
	l.mu.Lock()
	p.scount = in.line.Count
	p.selemsize = in.line.ElemSize
	l.mu.Unlock()
}

// handleData is the receive side of the credit protocol: accept bytes
// only while rcount > roff, depositing (or reducing) them via rmap at
// ridx, then advancing ridx in lexicographic order.
func (l *Loop) handleData(in inbound) {
	lid, ok := l.lidForConn(in.conn)
	if !ok {
		return
	}
	p := l.table.Get(lid)
	if p == nil || p.rcount <= p.roff {
		return // excess data beyond outstanding credit: dropped, not buffered
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	off, err := p.rmap.Layout.Offset(p.rmap.Required, p.ridx)
	if err != nil {
		return
	}
	elem := p.rmap.Type.ElemSize
	dst := p.rmap.Base[off*int64(elem) : (off+1)*int64(elem)]
	if p.rro == reduce.NoOp {
		copy(dst, in.line.Payload)
	} else {
		p.rmap.Type.Reduce(p.rro, dst, dst, in.line.Payload, 1)
	}
	p.roff++
	p.rslice.Next(&p.ridx)
	if p.roff >= p.rcount {
		p.rcount = 0
	}
}

func (l *Loop) lidForConn(conn net.Conn) (int, bool) {
	for _, lid := range l.table.LIDs() {
		if p := l.table.Get(lid); p != nil && p.conn == conn {
			return lid, true
		}
	}
	return 0, false
}

// wait blocks the calling goroutine (the one driving exec/recv_slice/
// send_slice) until pred reports true, re-checking pred after every line
// the dispatch goroutine delivers.
func (l *Loop) wait(pred func() bool) {
	if pred() {
		return
	}
	done := make(chan struct{})
	l.waitersMu.Lock()
	l.waiters[done] = pred
	l.waitersMu.Unlock()
	<-done
}

func (l *Loop) wake() {
	l.waitersMu.Lock()
	defer l.waitersMu.Unlock()
	for ch, pred := range l.waiters {
		if pred() {
			delete(l.waiters, ch)
			close(ch)
		}
	}
}

// RecvSlice implements the recv_slice primitive: arm the credit fields,
// request allowsend, then block until the transfer completes.
func (l *Loop) RecvSlice(slc space.Slice, fromLID int, m *mapping.Mapping, op reduce.Op) error {
	p := l.table.Get(fromLID)
	if p == nil {
		return errs.ProtocolErrorf("p2p: recv_slice: unknown lid %d", fromLID)
	}
	l.mu.Lock()
	p.rcount = slc.Volume()
	p.roff = 0
	p.relemsize = m.Type.ElemSize
	p.rmap = m
	p.rslice = slc
	p.ridx = slc.Start()
	p.rro = op
	l.mu.Unlock()

	conn, err := l.ensureConn(fromLID)
	if err != nil {
		return err
	}
	grant := Line{Verb: VerbAllowSend, Count: p.rcount, ElemSize: p.relemsize}.Encode()
	if _, err := conn.Write([]byte(grant)); err != nil {
		return errs.WrapTransport(err, "p2p: send allowsend to lid %d", fromLID)
	}
	l.wait(func() bool { return p.rcount == 0 })
	return nil
}

// SendSlice implements the send_slice primitive: block for credit if none
// is outstanding, then emit one `data` line per element in lex order.
func (l *Loop) SendSlice(m *mapping.Mapping, slc space.Slice, toLID int) error {
	p := l.table.Get(toLID)
	if p == nil {
		return errs.ProtocolErrorf("p2p: send_slice: unknown lid %d", toLID)
	}
	conn, err := l.ensureConn(toLID)
	if err != nil {
		return err
	}
	if p.AwaitingCredit() {
		l.wait(func() bool { return !p.AwaitingCredit() })
	}
	want := slc.Volume()
	if p.scount != want || p.selemsize != m.Type.ElemSize {
		return errs.LogicErrorf("p2p: send_slice: credit %d/%d, want %d/%d", p.scount, p.selemsize, want, m.Type.ElemSize)
	}

	elem := m.Type.ElemSize
	idx := slc.Start()
	var seq int64
	for slc.Contains(idx) {
		off, err := m.Layout.Offset(m.Required, idx)
		if err != nil {
			return err
		}
		payload := m.Base[off*int64(elem) : (off+1)*int64(elem)]
		line := DataLine(seq, seq, payload).Encode()
		if _, err := conn.Write([]byte(line)); err != nil {
			return errs.WrapTransport(err, "p2p: send data to lid %d", toLID)
		}
		seq++
		if !slc.Next(&idx) {
			break
		}
	}
	l.mu.Lock()
	p.scount = 0
	l.mu.Unlock()
	return nil
}

// logf is the point-to-point backend's narrow logging seam: a no-op until
// SetLogf installs the caller's logger, so tests that never call it stay
// quiet.
var logf = func(format string, args ...any) {}

// SetLogf installs f as the destination for the point-to-point backend's
// protocol-level log lines. Call it before Run/NewLoop so bootstrap and
// the dispatch goroutines pick it up from the start.
func SetLogf(f func(format string, args ...any)) {
	if f == nil {
		f = func(string, ...any) {}
	}
	logf = f
}

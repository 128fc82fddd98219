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
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/dchest/siphash"
	"golang.org/x/exp/maps"

	"github.com/TobiasZehetmair/laik/errs"
	"github.com/TobiasZehetmair/laik/mapping"
	"github.com/TobiasZehetmair/laik/reduce"
	"github.com/TobiasZehetmair/laik/space"
)

// addrKey0/addrKey1 are the two fixed siphash keys used to fingerprint a
// peer's host:port into its opaque transport address blob.
const (
	addrKey0 = 0x6c61696b5f686f6d
	addrKey1 = 0x655f72656e64657a
)

// Peer is a remote process record: location-ID, hostname, listen port,
// an active connection (or none), an opaque transport address blob, and
// the two half-duplex credit fields governing the send/recv flow
// control protocol.
type Peer struct {
	LID      int
	Host     string
	Port     int
	Location string

	conn net.Conn // nil when not connected; ensure_conn lazily dials

	addrBlob uint64 // siphash fingerprint of host:port, opaque to callers

	// Send-side credit: we may send this many elements of this size to
	// this peer. Cleared to 0 by send_slice on completion.
	scount    int64
	selemsize int

	// Receive-side credit: we expect this many elements from this peer,
	// have received roff of them so far, into rmap at the positions
	// described by rslice (walked via ridx), combined with rro.
	rcount    int64
	roff      int64
	relemsize int
	rmap      *mapping.Mapping
	rslice    space.Slice
	ridx      [space.MaxDims]int64
	rro       reduce.Op
}

func addressBlob(host string, port int) uint64 {
	return siphash.Hash(addrKey0, addrKey1, []byte(fmt.Sprintf("%s:%d", host, port)))
}

// NewPeer constructs a Peer record with its address blob precomputed.
func NewPeer(lid int, location, host string, port int) *Peer {
	return &Peer{
		LID:      lid,
		Host:     host,
		Port:     port,
		Location: location,
		addrBlob: addressBlob(host, port),
	}
}

// Connected reports whether this peer has a live connection.
func (p *Peer) Connected() bool { return p.conn != nil }

// AwaitingCredit reports whether send_slice must block for allowsend.
func (p *Peer) AwaitingCredit() bool { return p.scount == 0 }

// Table is the peer table indexed by location-ID, capped at maxPeers.
// Safe for concurrent use by the single-threaded event loop and any
// debug-port reader (cmd/laik-dump).
type Table struct {
	mu    sync.Mutex
	byLID map[int]*Peer
}

// maxPeers bounds the number of simultaneously tracked peers.
const maxPeers = 256

// NewTable constructs an empty peer table.
func NewTable() *Table {
	return &Table{byLID: make(map[int]*Peer)}
}

// Add installs p, rejecting a table already at capacity or a duplicate LID.
func (t *Table) Add(p *Peer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.byLID[p.LID]; dup {
		return errs.ProtocolErrorf("p2p: duplicate peer lid %d", p.LID)
	}
	if len(t.byLID) >= maxPeers {
		return errs.ConfigErrorf("p2p: peer table at capacity (%d)", maxPeers)
	}
	t.byLID[p.LID] = p
	return nil
}

// Get returns the Peer for lid, or nil if absent.
func (t *Table) Get(lid int) *Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byLID[lid]
}

// Remove drops lid from the table, used when a resize round removes a peer.
func (t *Table) Remove(lid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byLID, lid)
}

// LIDs returns every known location-ID, sorted ascending — the order the
// event loop and debug dump present the table in.
func (t *Table) LIDs() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	lids := maps.Keys(t.byLID)
	sort.Ints(lids)
	return lids
}

// Size reports the number of peers currently tracked.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byLID)
}

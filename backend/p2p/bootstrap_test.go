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
	"encoding/binary"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/TobiasZehetmair/laik/mapping"
	"github.com/TobiasZehetmair/laik/reduce"
	"github.com/TobiasZehetmair/laik/space"
	"github.com/TobiasZehetmair/laik/typ"
)

// freePort finds an OS-assigned TCP port on loopback, used so the home
// bootstrap test doesn't collide with a real laik instance on 7777.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// TestRegistrationUnderContention covers two processes contending for the
// home port: exactly one binds it and becomes
// home (LID 0); the other falls back to an OS-chosen port and registers
// successfully as LID 1. Home must be accepting connections (via its Loop)
// before the second process dials in, so the bind race itself is resolved
// sequentially here — what's under test is the fallback-and-register path,
// not kernel accept-queue timing.
func TestRegistrationUnderContention(t *testing.T) {
	homePort := freePort(t)
	cfg0 := Config{HomeHost: "127.0.0.1", HomePort: homePort, Location: "p0"}
	cfg1 := Config{HomeHost: "127.0.0.1", HomePort: homePort, Location: "p1"}

	b0, err := Run(cfg0)
	if err != nil {
		t.Fatal(err)
	}
	NewLoop(cfg0, b0) // starts accepting so the contender below can register

	b1, err := Run(cfg1)
	if err != nil {
		t.Fatal(err)
	}

	if !b0.IsHome {
		t.Fatal("b0 should have won the home bind")
	}
	if b1.IsHome {
		t.Fatal("b1 should not be home")
	}
	if b0.MyLID != HomeLID {
		t.Fatalf("home lid = %d, want %d", b0.MyLID, HomeLID)
	}
	if b1.MyLID != 1 {
		t.Fatalf("joiner lid = %d, want 1", b1.MyLID)
	}
	if b1.Table.Size() != 2 {
		t.Fatalf("joiner table size = %d, want 2", b1.Table.Size())
	}
}

// awaitRoster runs AwaitRoster in the background and fails the test
// instead of hanging forever if it never unblocks.
func awaitRoster(t *testing.T, l *Loop, size int) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		l.AwaitRoster(size)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitRoster never returned")
	}
}

// TestThreeProcessBootstrapRoster covers the full home-rendezvous barrier
// with three processes and LAIK_SIZE (Config.Size) set to 3: home must not
// complete its roster until all three have registered, every peer must
// learn about every other peer (not just the ones that registered before
// it), and every non-home peer must observe phase 0 once the roster fills.
func TestThreeProcessBootstrapRoster(t *testing.T) {
	homePort := freePort(t)
	cfgHome := Config{HomeHost: "127.0.0.1", HomePort: homePort, Location: "home", Size: 3}
	bHome, err := Run(cfgHome)
	if err != nil {
		t.Fatal(err)
	}
	loopHome := NewLoop(cfgHome, bHome)

	cfgA := Config{HomeHost: "127.0.0.1", HomePort: homePort, Location: "a", Size: 3}
	bA, err := Run(cfgA)
	if err != nil {
		t.Fatal(err)
	}
	// Wire peer A's reader before peer B registers, so A observes B's id
	// broadcast (and phase 0) asynchronously rather than missing it.
	loopA := NewLoop(cfgA, bA)

	cfgB := Config{HomeHost: "127.0.0.1", HomePort: homePort, Location: "b", Size: 3}
	bB, err := Run(cfgB)
	if err != nil {
		t.Fatal(err)
	}
	loopB := NewLoop(cfgB, bB)

	awaitRoster(t, loopHome, 3)
	awaitRoster(t, loopA, 3)
	awaitRoster(t, loopB, 3)

	for name, tbl := range map[string]*Table{"home": bHome.Table, "a": loopA.table, "b": loopB.table} {
		if got := tbl.Size(); got != 3 {
			t.Fatalf("%s: table size = %d, want 3", name, got)
		}
	}
	// Peer A registered before peer B; without the broadcast fix A's table
	// would still be stuck at 2.
	if loopA.table.Get(bB.MyLID) == nil {
		t.Fatal("peer a never learned about peer b")
	}
}

// TestTwoProcessDataExchange drives the recv_slice/send_slice credit
// protocol over real loopback sockets: the home process receives a slice
// of float64s from the joiner.
func TestTwoProcessDataExchange(t *testing.T) {
	homePort := freePort(t)
	cfgHome := Config{HomeHost: "127.0.0.1", HomePort: homePort, Location: "home"}
	bHome, err := Run(cfgHome)
	if err != nil {
		t.Fatal(err)
	}
	loopHome := NewLoop(cfgHome, bHome)

	cfgJoin := Config{HomeHost: "127.0.0.1", HomePort: homePort, Location: "join"}
	bJoin, err := Run(cfgJoin)
	if err != nil {
		t.Fatal(err)
	}
	loopJoin := NewLoop(cfgJoin, bJoin)

	sl, err := space.NewSlice(space.Bound{Low: 0, High: 3})
	if err != nil {
		t.Fatal(err)
	}
	src, err := mapping.New(typ.Float64, sl, nil)
	if err != nil {
		t.Fatal(err)
	}
	dst, err := mapping.New(typ.Float64, sl, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range []float64{10, 20, 30} {
		putFloat64(src, i, v)
	}

	// Prime a single bidirectional connection before racing recv_slice
	// against send_slice, so both sides agree on one descriptor for the
	// whole exchange instead of each independently dialing out.
	if _, err := loopJoin.ensureConn(bHome.MyLID); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(2)
	var recvErr, sendErr error
	go func() {
		defer wg.Done()
		recvErr = loopHome.RecvSlice(sl, bJoin.MyLID, dst, reduce.NoOp)
	}()
	go func() {
		defer wg.Done()
		sendErr = loopJoin.SendSlice(src, sl, bHome.MyLID)
	}()
	wg.Wait()

	if recvErr != nil {
		t.Fatal(recvErr)
	}
	if sendErr != nil {
		t.Fatal(sendErr)
	}
	for i, want := range []float64{10, 20, 30} {
		if got := getFloat64(dst, i); got != want {
			t.Fatalf("dst[%d] = %v, want %v", i, got, want)
		}
	}
}

func putFloat64(m *mapping.Mapping, i int, v float64) {
	off := int64(i) * int64(m.Type.ElemSize)
	binary.LittleEndian.PutUint64(m.Base[off:], math.Float64bits(v))
}

func getFloat64(m *mapping.Mapping, i int) float64 {
	off := int64(i) * int64(m.Type.ElemSize)
	return math.Float64frombits(binary.LittleEndian.Uint64(m.Base[off:]))
}

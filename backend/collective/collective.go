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
// You should have received a copy of the GNU Affero License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package collective implements a Backend over an underlying
// group-collective transport exposing point-to-point send/recv plus an
// all-to-one/all-to-all reduction primitive, driving a Transition's
// actions over it with a double-sweep schedule that is deadlock-free
// without non-blocking I/O.
package collective

import (
	"github.com/klauspost/compress/s2"

	"github.com/TobiasZehetmair/laik/backend"
	"github.com/TobiasZehetmair/laik/errs"
	"github.com/TobiasZehetmair/laik/mapping"
	"github.com/TobiasZehetmair/laik/part"
	"github.com/TobiasZehetmair/laik/reduce"
	"github.com/TobiasZehetmair/laik/space"
	"github.com/TobiasZehetmair/laik/transition"
	"github.com/TobiasZehetmair/laik/typ"
)

// compressThreshold gates optional s2 compression of the pack buffer:
// below this many bytes the framing overhead outweighs the saving, so
// small transfers skip it entirely.
const compressThreshold = 64 * 1024

// bufferSize is the fixed scratch chunk packSlice packs every slice
// through (1-D slices included) before the result goes to the transport.
const bufferSize = 10 << 20

// Transport is the minimal collective primitive this backend needs: it
// is supplied by whatever actually owns the group's communicator (MPI-
// style library, a test harness, or a thin wrapper over the p2p backend
// used as a fallback transport). Send/Recv perform a blocking point-to-
// point exchange with peer in the group; Recv returns exactly the bytes
// the matching Send transmitted, so callers never have to pre-size a
// buffer around the optional compression framing. AllReduce performs the
// native collective reduction, used only when both the input and output
// groups are the full group (Open Question #2, see DESIGN.md).
type Transport interface {
	Rank() int
	Size() int
	Send(peer int, buf []byte) error
	Recv(peer int) ([]byte, error)
	AllReduce(op reduce.Op, dst, src []byte, n int, t typ.Type) error
}

// Backend implements backend.Backend over a Transport.
type Backend struct {
	tr    Transport
	group *part.Group
}

// New constructs a collective Backend driving tr.
func New(tr Transport) *Backend {
	return &Backend{tr: tr}
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) Finalize() error { return nil }

func (b *Backend) UpdateGroup(group *part.Group) error {
	if group == nil {
		return errs.ConfigErrorf("collective: nil group")
	}
	if group.Size() != b.tr.Size() {
		return errs.ConfigErrorf("collective: group size %d does not match transport size %d", group.Size(), b.tr.Size())
	}
	b.group = group
	return nil
}

// Prepare is a no-op for the collective backend: Exec performs the
// double-sweep walk directly against the Transition, so skipping Prepare
// just means that work happens inline instead.
func (b *Backend) Prepare(t *transition.Transition, from, to *mapping.Mapping) (*backend.TransitionPlan, error) {
	return nil, nil
}

// Exec drives t's send/recv/reduce lists with a double-sweep schedule:
// for each peer p != rank, exactly one send(p) and one recv(p) happen
// (if the Transition has entries for that peer at all); a lower-ranked
// peer is drained (received from) before this rank sends to it, and a
// higher-ranked peer is sent to before this rank drains it.
// Applied uniformly across all peers, that ordering is what makes a
// symmetric exchange deadlock-free without non-blocking sends — at any
// point in global time, the set of ranks currently sending and the set
// currently receiving are disjoint with respect to any one connection.
func (b *Backend) Exec(t *transition.Transition, plan *backend.TransitionPlan, from, to *mapping.Mapping) error {
	if b.group == nil {
		return errs.ConfigErrorf("collective: UpdateGroup was never called")
	}
	n := b.group.Size()
	rank := b.group.MyID()

	sendBySrc := indexSend(t.Send)
	recvBySrc := indexRecv(t.Recv)

	for p := 0; p < n; p++ {
		if p == rank {
			continue
		}
		if p < rank {
			if err := b.doRecv(recvBySrc, p, to); err != nil {
				return err
			}
			if err := b.doSend(sendBySrc, p, from); err != nil {
				return err
			}
		} else {
			if err := b.doSend(sendBySrc, p, from); err != nil {
				return err
			}
			if err := b.doRecv(recvBySrc, p, to); err != nil {
				return err
			}
		}
	}

	for _, local := range t.Local {
		if err := to.CopyFrom(from, local.Slice); err != nil {
			return err
		}
	}
	for _, init := range t.Init {
		if err := to.InitIdentity(init.Slice, init.Op); err != nil {
			return err
		}
	}
	for _, red := range t.Reduce {
		if err := b.reduce(red, from, to); err != nil {
			return err
		}
	}
	return nil
}

func indexSend(sends []transition.Send) map[int][]transition.Send {
	m := make(map[int][]transition.Send)
	for _, s := range sends {
		m[s.To] = append(m[s.To], s)
	}
	return m
}

func indexRecv(recvs []transition.Recv) map[int][]transition.Recv {
	m := make(map[int][]transition.Recv)
	for _, r := range recvs {
		m[r.From] = append(m[r.From], r)
	}
	return m
}

func (b *Backend) doSend(bySrc map[int][]transition.Send, peer int, from *mapping.Mapping) error {
	for _, s := range bySrc[peer] {
		buf, err := packSlice(from, s.Slice)
		if err != nil {
			return err
		}
		if err := b.tr.Send(peer, wireFrame(buf)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) doRecv(bySrc map[int][]transition.Recv, peer int, to *mapping.Mapping) error {
	for _, r := range bySrc[peer] {
		raw, err := b.tr.Recv(peer)
		if err != nil {
			return err
		}
		plainLen := r.Slice.Volume() * int64(to.Type.ElemSize)
		buf, err := unwireFrame(raw, plainLen)
		if err != nil {
			return err
		}
		if err := unpackSlice(to, r.Slice, buf); err != nil {
			return err
		}
	}
	return nil
}

// wireFrame optionally compresses buf with s2 when it is large enough to
// be worth the framing cost, per compressThreshold, prefixing a 1-byte
// flag so unwireFrame knows whether to decompress.
func wireFrame(buf []byte) []byte {
	if len(buf) < compressThreshold {
		out := make([]byte, 0, len(buf)+1)
		out = append(out, 0)
		return append(out, buf...)
	}
	compressed := s2.Encode(nil, buf)
	if len(compressed) >= len(buf) {
		out := make([]byte, 0, len(buf)+1)
		out = append(out, 0)
		return append(out, buf...)
	}
	out := make([]byte, 0, len(compressed)+1)
	out = append(out, 1)
	return append(out, compressed...)
}

func unwireFrame(raw []byte, plainLen int64) ([]byte, error) {
	if len(raw) == 0 {
		if plainLen == 0 {
			return nil, nil
		}
		return nil, errs.ProtocolErrorf("collective: empty frame")
	}
	flag, body := raw[0], raw[1:]
	switch flag {
	case 0:
		if int64(len(body)) != plainLen {
			return nil, errs.ProtocolErrorf("collective: frame length %d, want %d", len(body), plainLen)
		}
		return body, nil
	case 1:
		out, err := s2.Decode(make([]byte, plainLen), body)
		if err != nil {
			return nil, errs.WrapProtocol(err, "collective: s2 decode failed")
		}
		return out, nil
	default:
		return nil, errs.ProtocolErrorf("collective: unknown frame flag %d", flag)
	}
}

func packSlice(m *mapping.Mapping, slice space.Slice) ([]byte, error) {
	total := slice.Volume() * int64(m.Type.ElemSize)
	buf := make([]byte, 0, total)
	cursor := slice.Start()
	t := m.Target()
	chunk := make([]byte, bufferSize)
	for int64(len(buf)) < total {
		n, err := m.Layout.Pack(t, slice, &cursor, chunk)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		buf = append(buf, chunk[:n]...)
	}
	return buf, nil
}

// reduce performs one Transition reduction record. Per Open Question #2
// (DESIGN.md): a reduction whose input and output groups are both the
// full group uses the transport's native AllReduce,
// but only for Sum; every other case — including Sum when either side is
// a proper subgroup — goes through the manual path, where the lowest-
// rank output member gathers from every input member, combines pairwise
// with the Type's reduce function, and sends the result to the rest of
// the output group.
func (b *Backend) reduce(red transition.Reduce, from, to *mapping.Mapping) error {
	n := b.group.Size()
	full := len(red.Input) == n && len(red.Output) == n
	if full && red.Op == reduce.Sum {
		return b.reduceNative(red, from, to)
	}
	return b.reduceManual(red, from, to)
}

func (b *Backend) reduceNative(red transition.Reduce, from, to *mapping.Mapping) error {
	count := int(red.Slice.Volume())
	srcBuf, err := packSlice(from, red.Slice)
	if err != nil {
		return err
	}
	dstBuf := srcBuf
	if from != to {
		dstBuf = make([]byte, len(srcBuf))
	}
	if err := b.tr.AllReduce(red.Op, dstBuf, srcBuf, count, to.Type); err != nil {
		return err
	}
	return unpackSlice(to, red.Slice, dstBuf)
}

func (b *Backend) reduceManual(red transition.Reduce, from, to *mapping.Mapping) error {
	rank := b.group.MyID()
	lowest := red.Output[0]
	count := int(red.Slice.Volume())
	elemSize := to.Type.ElemSize

	isInput := containsRank(red.Input, rank)
	isLowestOutput := rank == lowest

	if isLowestOutput {
		acc, err := identityBuf(to.Type, red.Op, count, elemSize)
		if err != nil {
			return err
		}
		if isInput {
			own, err := packSlice(from, red.Slice)
			if err != nil {
				return err
			}
			if err := to.Type.Reduce(red.Op, acc, acc, own, count); err != nil {
				return err
			}
		}
		for _, r := range red.Input {
			if r == rank {
				continue
			}
			raw, err := b.tr.Recv(r)
			if err != nil {
				return err
			}
			contrib, err := unwireFrame(raw, int64(count*elemSize))
			if err != nil {
				return err
			}
			if err := to.Type.Reduce(red.Op, acc, acc, contrib, count); err != nil {
				return err
			}
		}
		for _, r := range red.Output {
			if r == rank {
				continue
			}
			if err := b.tr.Send(r, wireFrame(acc)); err != nil {
				return err
			}
		}
		return unpackSlice(to, red.Slice, acc)
	}

	if isInput {
		own, err := packSlice(from, red.Slice)
		if err != nil {
			return err
		}
		if err := b.tr.Send(lowest, wireFrame(own)); err != nil {
			return err
		}
	}
	if containsRank(red.Output, rank) {
		raw, err := b.tr.Recv(lowest)
		if err != nil {
			return err
		}
		result, err := unwireFrame(raw, int64(count*elemSize))
		if err != nil {
			return err
		}
		return unpackSlice(to, red.Slice, result)
	}
	return nil
}

func identityBuf(t typ.Type, op reduce.Op, count, elemSize int) ([]byte, error) {
	buf := make([]byte, count*elemSize)
	if err := t.Identity(op, buf, count); err != nil {
		return nil, err
	}
	return buf, nil
}

func containsRank(ranks []int, r int) bool {
	for _, x := range ranks {
		if x == r {
			return true
		}
	}
	return false
}

func unpackSlice(m *mapping.Mapping, slice space.Slice, buf []byte) error {
	cursor := slice.Start()
	t := m.Target()
	off := 0
	for off < len(buf) {
		n, err := m.Layout.Unpack(t, slice, &cursor, buf[off:])
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		off += n
	}
	return nil
}

// Wait is a no-op: Exec is synchronous, so by the time it returns every
// transfer has already completed.
func (b *Backend) Wait(plan *backend.TransitionPlan, which backend.MapIndex) error { return nil }

// Probe always reports completion for the same reason Wait is a no-op.
func (b *Backend) Probe(plan *backend.TransitionPlan, which backend.MapIndex) (bool, error) {
	return true, nil
}

// Cleanup is a no-op: the collective backend allocates no plan-scoped
// resources since Prepare always returns nil.
func (b *Backend) Cleanup(plan *backend.TransitionPlan) error { return nil }

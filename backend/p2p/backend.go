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
	"github.com/TobiasZehetmair/laik/backend"
	"github.com/TobiasZehetmair/laik/errs"
	"github.com/TobiasZehetmair/laik/mapping"
	"github.com/TobiasZehetmair/laik/part"
	"github.com/TobiasZehetmair/laik/reduce"
	"github.com/TobiasZehetmair/laik/transition"
)

// Backend drives a Transition's actions over a Loop, implementing
// backend.Backend for the point-to-point transport.
type Backend struct {
	loop  *Loop
	group *part.Group
}

// New constructs a point-to-point Backend around an already-bootstrapped
// Loop.
func New(loop *Loop) *Backend {
	return &Backend{loop: loop}
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) Finalize() error {
	b.loop.listener.Close()
	return nil
}

func (b *Backend) UpdateGroup(group *part.Group) error {
	if group == nil {
		return errs.ConfigErrorf("p2p: nil group")
	}
	b.group = group
	return nil
}

// Prepare is a no-op: exec drives recv_slice/send_slice directly against
// the Transition, matching the collective backend's "skip Prepare" path.
func (b *Backend) Prepare(t *transition.Transition, from, to *mapping.Mapping) (*backend.TransitionPlan, error) {
	return nil, nil
}

// Exec issues one recv_slice per Recv entry before any send_slice, so this
// process is never the only one blocked on an unmet allowsend: a rank with
// both sends and receives due posts its receive credit grants first, then
// satisfies its sends. The receiver's allowsend must be outstanding before
// the sender emits data.
func (b *Backend) Exec(t *transition.Transition, plan *backend.TransitionPlan, from, to *mapping.Mapping) error {
	if b.group == nil {
		return errs.ConfigErrorf("p2p: UpdateGroup was never called")
	}
	for _, r := range t.Recv {
		if err := b.loop.RecvSlice(r.Slice, r.From, to, reduce.NoOp); err != nil {
			return err
		}
	}
	for _, s := range t.Send {
		if err := b.loop.SendSlice(from, s.Slice, s.To); err != nil {
			return err
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
		if err := b.execReduce(red, from, to); err != nil {
			return err
		}
	}
	return nil
}

// execReduce mirrors the collective backend's manual subgroup reduce, but
// relies on recv_slice's in-place reduction (handleData applies rro as
// bytes arrive) instead of a separate combine pass: the lowest-rank output
// member recv_slices from every other input member with op set, folding
// its own contribution in first via a local copy, then send_slices the
// result to the rest of the output group.
func (b *Backend) execReduce(red transition.Reduce, from, to *mapping.Mapping) error {
	rank := b.loop.myLID
	lowest := red.Output[0]
	isInput := containsLID(red.Input, rank)
	isLowestOutput := rank == lowest

	if isLowestOutput {
		if isInput {
			if err := to.CopyFrom(from, red.Slice); err != nil {
				return err
			}
		} else {
			if err := to.InitIdentity(red.Slice, red.Op); err != nil {
				return err
			}
		}
		for _, r := range red.Input {
			if r == rank {
				continue
			}
			if err := b.loop.RecvSlice(red.Slice, r, to, red.Op); err != nil {
				return err
			}
		}
		for _, r := range red.Output {
			if r == rank {
				continue
			}
			if err := b.loop.SendSlice(to, red.Slice, r); err != nil {
				return err
			}
		}
		return nil
	}

	if isInput {
		if err := b.loop.SendSlice(from, red.Slice, lowest); err != nil {
			return err
		}
	}
	if containsLID(red.Output, rank) {
		return b.loop.RecvSlice(red.Slice, lowest, to, reduce.NoOp)
	}
	return nil
}

func containsLID(lids []int, r int) bool {
	for _, x := range lids {
		if x == r {
			return true
		}
	}
	return false
}

func (b *Backend) Wait(plan *backend.TransitionPlan, which backend.MapIndex) error { return nil }

func (b *Backend) Probe(plan *backend.TransitionPlan, which backend.MapIndex) (bool, error) {
	return true, nil
}

func (b *Backend) Cleanup(plan *backend.TransitionPlan) error { return nil }

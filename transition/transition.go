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

// Package transition implements the pure diff between two Partitionings:
// given an old and a new Partitioning plus the Group executing the swap,
// it computes the local-copy, send, receive, reduce and init actions a
// backend must perform to make the new Partitioning's memory correct.
// Plan does no I/O and allocates no backend resources, mirroring the way
// sneller's query planner (plan.Tree) separates "what to do" from
// "how to execute it".
package transition

import (
	"github.com/TobiasZehetmair/laik/errs"
	"github.com/TobiasZehetmair/laik/part"
	"github.com/TobiasZehetmair/laik/reduce"
	"github.com/TobiasZehetmair/laik/space"
	"golang.org/x/exp/slices"
)

// Local is a self-copy: data already resident in this process moves from
// the old Mapping to the overlapping region of the new one.
type Local struct {
	Slice space.Slice
}

// Send is one outbound transfer of Slice to peer rank To, required
// because To's new Partitioning needs those indices and didn't have them
// (or needs a fresher copy) under the old one.
type Send struct {
	Slice space.Slice
	To    int
}

// Recv is the mirror of Send: this process's new Partitioning needs
// Slice, and rank From owned it under the old Partitioning.
type Recv struct {
	Slice space.Slice
	From  int
}

// Init is a newly appearing Reduce-intent region with no old owner: it
// must be value-initialized to Op's identity before any reduction writes
// into it.
type Init struct {
	Slice space.Slice
	Op    reduce.Op
}

// Reduce is a reduction record: every rank in Input held a Write- or
// Reduce-intent contribution over (a superset of) Slice under the old
// Partitioning; every rank in Output owns Slice with Reduce intent under
// the new one and must end up with the combined result.
type Reduce struct {
	Slice  space.Slice
	Input  []int
	Output []int
	Op     reduce.Op
}

// A Transition is the full action list produced by Plan for one process.
// Send and Recv are sorted by (peer rank, slice.From), so two
// communicating processes derive matching pairings without exchanging
// the plan itself.
type Transition struct {
	Local  []Local
	Send   []Send
	Recv   []Recv
	Init   []Init
	Reduce []Reduce
}

// Plan computes the Transition old -> new for the calling process
// (group.MyID()). old may be nil, meaning this is the container's first
// partitioning and every new slice is either Init (Reduce intent) or
// simply materializes with no data movement.
func Plan(old, newP *part.Partitioning, group *part.Group) (*Transition, error) {
	if newP == nil {
		return nil, errs.ConfigErrorf("transition: new partitioning is nil")
	}
	if group == nil {
		return nil, errs.ConfigErrorf("transition: group is nil")
	}
	myID := group.MyID()
	t := &Transition{}

	myNew := newP.Owned(myID)

	// Step 1 & 4: for each of my new-owned slices, diff against every
	// old owner (including myself) to find local copies and receives,
	// or an init if nothing overlapped it.
	if old != nil {
		for _, ns := range myNew {
			covered := false
			for _, r := range old.Ranks() {
				for _, os := range old.Owned(r) {
					inter := ns.Slice.Intersect(os.Slice)
					if inter.Empty() {
						continue
					}
					covered = true
					if ns.Intent.Kind == part.Reduce {
						// Filled by the Reduce record; no peer emits a
						// Send for a Reduce-intent slice (see needsData).
						continue
					}
					if r == myID {
						t.Local = append(t.Local, Local{Slice: inter})
					} else {
						t.Recv = append(t.Recv, Recv{Slice: inter, From: r})
					}
				}
			}
			if !covered && ns.Intent.Kind == part.Reduce {
				t.Init = append(t.Init, Init{Slice: ns.Slice, Op: ns.Intent.Op})
			}
		}
	} else {
		for _, ns := range myNew {
			if ns.Intent.Kind == part.Reduce {
				t.Init = append(t.Init, Init{Slice: ns.Slice, Op: ns.Intent.Op})
			}
		}
	}

	// Step 2: for each of my old-owned slices, walk the new owners and
	// emit a send for whichever peers newly need that data.
	if old != nil {
		for _, os := range old.Owned(myID) {
			for _, r := range newP.Ranks() {
				if r == myID {
					continue
				}
				for _, ns := range newP.Owned(r) {
					if !needsData(ns.Intent.Kind) {
						continue
					}
					inter := os.Slice.Intersect(ns.Slice)
					if inter.Empty() {
						continue
					}
					t.Send = append(t.Send, Send{Slice: inter, To: r})
				}
			}
		}
	}

	// Step 3: reduction records for new Reduce-intent output owners.
	if old != nil {
		buildReductions(t, old, newP)
	}

	slices.SortFunc(t.Send, func(a, b Send) bool {
		return less(a.To, a.Slice, b.To, b.Slice)
	})
	slices.SortFunc(t.Recv, func(a, b Recv) bool {
		return less(a.From, a.Slice, b.From, b.Slice)
	})

	return t, nil
}

func needsData(k part.IntentKind) bool {
	return k == part.Read || k == part.Write || k == part.ReadWrite
}

func less(aRank int, aSlice space.Slice, bRank int, bSlice space.Slice) bool {
	if aRank != bRank {
		return aRank < bRank
	}
	for i := 0; i < aSlice.Dims(); i++ {
		if aSlice.From(i) != bSlice.From(i) {
			return aSlice.From(i) < bSlice.From(i)
		}
	}
	return false
}

// buildReductions groups new Reduce-intent owners by (slice, op) and
// pairs each group with the set of old ranks that held a Write- or
// Reduce-intent overlapping contribution, emitting one Reduce record per
// group. Output ranks that own exactly matching slices under the same op
// are merged into a single record, applying a union-of-overlaps rule.
func buildReductions(t *Transition, old, newP *part.Partitioning) {
	groups := make(map[sliceOpKey]*Reduce)
	order := make([]sliceOpKey, 0)

	for _, r := range newP.Ranks() {
		for _, ns := range newP.Owned(r) {
			if ns.Intent.Kind != part.Reduce {
				continue
			}
			k := sliceKey(ns.Slice, ns.Intent.Op)
			rec, ok := groups[k]
			if !ok {
				rec = &Reduce{Slice: ns.Slice, Op: ns.Intent.Op}
				groups[k] = rec
				order = append(order, k)
			}
			rec.Output = appendUnique(rec.Output, r)

			for _, or := range old.Ranks() {
				for _, os := range old.Owned(or) {
					if os.Intent.Kind != part.Write && os.Intent.Kind != part.ReadWrite && os.Intent.Kind != part.Reduce {
						continue
					}
					if os.Slice.Overlaps(ns.Slice) {
						rec.Input = appendUnique(rec.Input, or)
					}
				}
			}
		}
	}

	for _, k := range order {
		rec := groups[k]
		slices.Sort(rec.Input)
		slices.Sort(rec.Output)
		t.Reduce = append(t.Reduce, *rec)
	}
}

// sliceOpKey identifies a (slice, op) pair for grouping output owners in
// buildReductions. Comparable struct, safe as a map key.
type sliceOpKey struct {
	op   reduce.Op
	dims int
	from [space.MaxDims]int64
	to   [space.MaxDims]int64
}

func sliceKey(s space.Slice, op reduce.Op) sliceOpKey {
	var k sliceOpKey
	k.op = op
	k.dims = s.Dims()
	for i := 0; i < s.Dims(); i++ {
		k.from[i] = s.From(i)
		k.to[i] = s.To(i)
	}
	return k
}

func appendUnique(s []int, v int) []int {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

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

package part

import (
	"sort"

	"github.com/TobiasZehetmair/laik/errs"
	"github.com/TobiasZehetmair/laik/reduce"
	"github.com/TobiasZehetmair/laik/space"
)

// IntentKind is the access mode a rank requests for a slice.
type IntentKind int

const (
	Read IntentKind = iota
	Write
	ReadWrite
	Reduce
)

func (k IntentKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadWrite:
		return "readwrite"
	case Reduce:
		return "reduce"
	default:
		return "unknown"
	}
}

// exclusive reports whether an intent of this kind requires the owned
// region to be disjoint from every other rank's region under the same
// Partitioning: a well-formed partitioning either covers the Space
// disjointly (Write/ReadWrite intents) or may overlap when intent is
// Read or Reduce.
func (k IntentKind) exclusive() bool {
	return k == Write || k == ReadWrite
}

// Intent is the access intent attached to one owned Slice.
type Intent struct {
	Kind IntentKind
	Op   reduce.Op // meaningful only when Kind == Reduce
}

// ReadIntent, WriteIntent and ReadWriteIntent are the non-reducing
// intents.
func ReadIntent() Intent      { return Intent{Kind: Read} }
func WriteIntent() Intent     { return Intent{Kind: Write} }
func ReadWriteIntent() Intent { return Intent{Kind: ReadWrite} }

// ReduceIntent constructs a Reduce intent for the given op.
func ReduceIntent(op reduce.Op) Intent { return Intent{Kind: Reduce, Op: op} }

// OwnedSlice is one (Slice, Intent) pair a rank owns under a Partitioning.
type OwnedSlice struct {
	Slice  space.Slice
	Intent Intent
}

// A Partitioning is an immutable mapping from process rank to the list of
// Slices it owns within a Space, each tagged with an access intent.
type Partitioning struct {
	space  space.Space
	owners map[int][]OwnedSlice
	ranks  []int // sorted, cached
}

// NewPartitioning validates and constructs a Partitioning over sp from
// the given per-rank ownership lists. Every Slice must lie within sp;
// Slices with an exclusive intent (Write/ReadWrite) must not overlap any
// other Slice of any intent, whether another rank's or another of the
// same rank's.
func NewPartitioning(sp space.Space, owners map[int][]OwnedSlice) (*Partitioning, error) {
	p := &Partitioning{space: sp, owners: make(map[int][]OwnedSlice, len(owners))}
	for rank, slices := range owners {
		if rank < 0 {
			return nil, errs.ConfigErrorf("partitioning: negative rank %d", rank)
		}
		cp := make([]OwnedSlice, len(slices))
		copy(cp, slices)
		p.owners[rank] = cp
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	p.ranks = make([]int, 0, len(p.owners))
	for r := range p.owners {
		p.ranks = append(p.ranks, r)
	}
	sort.Ints(p.ranks)
	return p, nil
}

func (p *Partitioning) validate() error {
	for rank, slices := range p.owners {
		for _, os := range slices {
			if !os.Slice.Within(p.space) {
				return errs.ConfigErrorf("partitioning: rank %d owns slice %v outside %v", rank, os.Slice, p.space)
			}
		}
	}
	for rank, slices := range p.owners {
		for _, os := range slices {
			if !os.Intent.Kind.exclusive() {
				continue
			}
			for otherRank, others := range p.owners {
				for _, oos := range others {
					if rank == otherRank && os.Slice.Equal(oos.Slice) && os.Intent == oos.Intent {
						continue
					}
					if os.Slice.Overlaps(oos.Slice) {
						return errs.ConfigErrorf("partitioning: rank %d's exclusive slice %v overlaps rank %d's slice %v", rank, os.Slice, otherRank, oos.Slice)
					}
				}
			}
		}
	}
	return nil
}

// Space returns the Space this Partitioning is defined over.
func (p *Partitioning) Space() space.Space { return p.space }

// Ranks returns the sorted set of ranks with at least one owned slice.
func (p *Partitioning) Ranks() []int {
	out := make([]int, len(p.ranks))
	copy(out, p.ranks)
	return out
}

// Owned returns the slices owned by rank. The returned slice must not be
// mutated by the caller.
func (p *Partitioning) Owned(rank int) []OwnedSlice {
	return p.owners[rank]
}


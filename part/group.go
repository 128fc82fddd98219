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
)

// A Group is the ordered set of process ranks participating in a
// collective operation or a Partitioning. Groups are immutable; shrinking
// or growing a Group produces a new one via Derive, never mutates the
// original — a Group only ever changes by deriving a child from a parent
// during an elastic resize.
type Group struct {
	myID int
	ids  []int // sorted member ranks; dense 0..len(ids)-1 for a Group built by Derive

	parent     *Group
	fromParent map[int]int // parent rank -> this group's rank, or -1 if dropped
}

// NewGroup constructs a root Group (no parent) from the given member
// ranks. myID must be one of ids.
func NewGroup(myID int, ids []int) (*Group, error) {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	found := false
	for i, id := range sorted {
		if id < 0 {
			return nil, errs.ConfigErrorf("group: negative rank %d", id)
		}
		if i > 0 && sorted[i-1] == id {
			return nil, errs.ConfigErrorf("group: duplicate rank %d", id)
		}
		if id == myID {
			found = true
		}
	}
	if !found {
		return nil, errs.ConfigErrorf("group: myID %d is not a member of %v", myID, sorted)
	}
	return &Group{myID: myID, ids: sorted}, nil
}

// MyID returns the caller's rank within this Group.
func (g *Group) MyID() int { return g.myID }

// Size returns the number of member ranks.
func (g *Group) Size() int { return len(g.ids) }

// IsMember reports whether rank belongs to this Group.
func (g *Group) IsMember(rank int) bool {
	for _, id := range g.ids {
		if id == rank {
			return true
		}
	}
	return false
}

// Ranks returns the sorted member ranks. The caller must not mutate the
// result.
func (g *Group) Ranks() []int { return g.ids }

// Parent returns the Group this one was derived from, or nil for a root
// Group.
func (g *Group) Parent() *Group { return g.parent }

// FromParent maps a rank in the parent Group to this Group's rank for the
// same process, or -1 if that process did not survive the derivation.
// Returns -1, false if parentRank was never a member of the parent.
func (g *Group) FromParent(parentRank int) (int, bool) {
	if g.parent == nil {
		return -1, false
	}
	newRank, ok := g.fromParent[parentRank]
	if !ok {
		return -1, false
	}
	return newRank, true
}

// Derive constructs a child Group from g containing exactly the members
// of keep (ranks in g's own numbering), renumbering them densely
// 0..len(keep)-1 in sorted order of their parent rank and recording a
// fromParent[parent_rank] -> new_rank_or_-1 map. myParentID is the
// caller's rank in g; the caller must be a member of keep. This is how a
// shrinking resize produces the surviving processes' new Group without
// discarding the membership history needed to resolve in-flight
// transitions planned against the parent.
func (g *Group) Derive(myParentID int, keep []int) (*Group, error) {
	if !g.IsMember(myParentID) {
		return nil, errs.ConfigErrorf("group: myParentID %d not a member of parent", myParentID)
	}
	sortedKeep := append([]int(nil), keep...)
	sort.Ints(sortedKeep)

	fromParent := make(map[int]int, len(g.ids))
	for _, id := range g.ids {
		fromParent[id] = -1
	}
	newIDs := make([]int, 0, len(sortedKeep))
	for i, id := range sortedKeep {
		if !g.IsMember(id) {
			return nil, errs.ConfigErrorf("group: derived member %d not in parent", id)
		}
		fromParent[id] = i
		newIDs = append(newIDs, i)
	}
	myID, ok := fromParent[myParentID]
	if !ok || myID < 0 {
		return nil, errs.ConfigErrorf("group: myParentID %d did not survive derivation", myParentID)
	}
	return &Group{myID: myID, ids: newIDs, parent: g, fromParent: fromParent}, nil
}

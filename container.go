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

package laik

import (
	"sync"

	"github.com/TobiasZehetmair/laik/layout"
	"github.com/TobiasZehetmair/laik/mapping"
	"github.com/TobiasZehetmair/laik/part"
	"github.com/TobiasZehetmair/laik/space"
	"github.com/TobiasZehetmair/laik/transition"
	"github.com/TobiasZehetmair/laik/typ"
)

// A Container is a typed, partitioned array over a Space, bound to an
// Instance. Its current Partitioning and Mapping are swapped atomically by
// SetPartitioning: compute the Transition, allocate a new Mapping,
// execute the movement, then discard the old Mapping.
type Container struct {
	inst   *Instance
	space  space.Space
	typ    typ.Type
	layout layout.Layout

	mu      sync.Mutex
	part    *part.Partitioning
	mapping *mapping.Mapping
}

// NewContainer allocates a Container over sp holding elements of t. It has
// no Partitioning until the first call to SetPartitioning.
func (in *Instance) NewContainer(sp space.Space, t typ.Type, l layout.Layout) *Container {
	if l == nil {
		l = layout.Dense{}
	}
	c := &Container{inst: in, space: sp, typ: t, layout: l}
	in.mu.Lock()
	in.containers = append(in.containers, c)
	in.mu.Unlock()
	return c
}

// Partitioning returns the Container's currently active Partitioning, or
// nil if SetPartitioning has never been called.
func (c *Container) Partitioning() *part.Partitioning {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.part
}

// Mapping returns the local memory backing the Container's current share
// of its Partitioning, or nil before the first SetPartitioning.
func (c *Container) Mapping() *mapping.Mapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mapping
}

// SetPartitioning installs newP as the Container's active Partitioning.
// If a Partitioning was already active, the planner computes the
// Transition against it, a fresh Mapping is allocated for this process's
// share of newP, the backend executes the Transition's data movement into
// that Mapping, and the old Mapping is discarded. The first call (no prior
// Partitioning) simply allocates and zero-initializes the new Mapping.
func (c *Container) SetPartitioning(newP *part.Partitioning) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	myID := c.inst.group.MyID()
	required := ownedBounds(newP, myID)
	next, err := mapping.New(c.typ, required, c.layout)
	if err != nil {
		return err
	}

	if c.part == nil {
		c.part = newP
		c.mapping = next
		return nil
	}

	t, err := transition.Plan(c.part, newP, c.inst.group)
	if err != nil {
		return err
	}
	if err := c.inst.backend.Exec(t, nil, c.mapping, next); err != nil {
		return err
	}
	c.part = newP
	c.mapping = next
	return nil
}

// ownedBounds returns the union bounding box of every slice myID owns
// under p, per Mapping.Required's contract. If myID owns nothing, it
// returns a zero-volume Slice matching p's Space dimensionality.
func ownedBounds(p *part.Partitioning, myID int) space.Slice {
	owned := p.Owned(myID)
	if len(owned) == 0 {
		return emptySlice(p.Space())
	}
	bounds := owned[0].Slice
	for _, o := range owned[1:] {
		bounds = bounds.Union(o.Slice)
	}
	return bounds
}

// emptySlice returns a zero-volume Slice with sp's dimensionality, used as
// a Container's Mapping.Required when this rank owns no part of sp.
func emptySlice(sp space.Space) space.Slice {
	bounds := make([]space.Bound, sp.Dims())
	for i := range bounds {
		lo := sp.Bound(i).Low
		bounds[i] = space.Bound{Low: lo, High: lo}
	}
	sl, _ := space.NewSlice(bounds...)
	return sl
}

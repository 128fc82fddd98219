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

// Package mapping implements the concrete memory a process holds for its
// share of one Partitioning: a backing buffer, the bounding box of the
// owned region, and the Layout that translates between indices and
// bytes. It sits below package backend (and its collective/p2p
// implementations) so those packages can pack/unpack against a Mapping
// without the dependency graph folding back into the root laik package,
// which is the one that actually owns a Container's current Mapping.
package mapping

import (
	"github.com/TobiasZehetmair/laik/errs"
	"github.com/TobiasZehetmair/laik/layout"
	"github.com/TobiasZehetmair/laik/reduce"
	"github.com/TobiasZehetmair/laik/space"
	"github.com/TobiasZehetmair/laik/typ"
)

// A Mapping is the local memory backing one process's owned region of a
// Partitioning. Base is nil iff ElemCount is 0. Required is the union
// bounding box of every Slice this process owns.
type Mapping struct {
	Base      []byte
	ElemCount int64
	Required  space.Slice
	Type      typ.Type
	Layout    layout.Layout
}

// New allocates a Mapping of required's volume, using l as the Layout (a
// zero-value layout.Dense if l is nil).
func New(t typ.Type, required space.Slice, l layout.Layout) (*Mapping, error) {
	if l == nil {
		l = layout.Dense{}
	}
	n := required.Volume()
	if n < 0 {
		return nil, errs.ConfigErrorf("mapping: negative volume for required slice %v", required)
	}
	var base []byte
	if n > 0 {
		base = make([]byte, n*int64(t.ElemSize))
	}
	return &Mapping{Base: base, ElemCount: n, Required: required, Type: t, Layout: l}, nil
}

// Target returns the layout.Target view of this Mapping's memory, for
// handing to Layout.Pack/Unpack/Offset.
func (m *Mapping) Target() layout.Target {
	return layout.Target{Base: m.Base, Bounds: m.Required, ElemSize: m.Type.ElemSize}
}

// CopyFrom copies the overlap of slice between src and m, using each
// Mapping's own Layout to resolve its offsets. Both Mappings must share an
// element size. This implements the "local" entries of a Transition: the
// data already resident in this process moving between two Mappings of
// the same container.
func (m *Mapping) CopyFrom(src *Mapping, slice space.Slice) error {
	if src.Type.ElemSize != m.Type.ElemSize {
		return errs.ConfigErrorf("mapping: element size mismatch %d != %d", src.Type.ElemSize, m.Type.ElemSize)
	}
	elem := m.Type.ElemSize
	var idx [space.MaxDims]int64
	for idx = slice.Start(); slice.Contains(idx); {
		srcOff, err := src.Layout.Offset(src.Required, idx)
		if err != nil {
			return err
		}
		dstOff, err := m.Layout.Offset(m.Required, idx)
		if err != nil {
			return err
		}
		copy(m.Base[dstOff*int64(elem):(dstOff+1)*int64(elem)], src.Base[srcOff*int64(elem):(srcOff+1)*int64(elem)])
		if !slice.Next(&idx) {
			break
		}
	}
	return nil
}

// InitIdentity fills slice within m with op's identity element, used to
// seed a freshly allocated reduction target before any peer's
// contribution has arrived.
func (m *Mapping) InitIdentity(slice space.Slice, op reduce.Op) error {
	elem := m.Type.ElemSize
	tmp := make([]byte, elem)
	if err := m.Type.Identity(op, tmp, 1); err != nil {
		return err
	}
	var idx [space.MaxDims]int64
	for idx = slice.Start(); slice.Contains(idx); {
		off, err := m.Layout.Offset(m.Required, idx)
		if err != nil {
			return err
		}
		copy(m.Base[off*int64(elem):(off+1)*int64(elem)], tmp)
		if !slice.Next(&idx) {
			break
		}
	}
	return nil
}

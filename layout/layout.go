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

// Package layout implements the polymorphic Layout capability a Mapping
// attaches to its backing memory: offset(index) -> element, and
// pack/unpack of arbitrary (possibly non-contiguous) Slices into flat byte
// buffers. Dense is the default, row-major implementation; other layouts
// can be added later by implementing the same three-method interface.
package layout

import (
	"fmt"

	"github.com/TobiasZehetmair/laik/space"
)

// A Target describes the concrete memory a Layout operates over: Base is
// the backing buffer for exactly the index range Bounds, stored with
// ElemSize bytes per element.
type Target struct {
	Base     []byte
	Bounds   space.Slice
	ElemSize int
}

// Layout is the capability set a Mapping's memory exposes.
type Layout interface {
	// Offset returns the element index (not byte offset) of idx within
	// bounds, or an error if idx does not lie in bounds.
	Offset(bounds space.Slice, idx [space.MaxDims]int64) (int64, error)

	// Pack serializes elements of slice (which must lie within t.Bounds)
	// into buf in lexicographic order starting at *cursor, advancing
	// cursor as it goes. It returns the number of bytes written, which
	// may be less than len(buf) rounded down to a whole number of
	// elements if buf cannot hold a full element. Callers re-invoke Pack
	// until *cursor no longer lies in slice.
	Pack(t Target, slice space.Slice, cursor *[space.MaxDims]int64, buf []byte) (int, error)

	// Unpack is the mirror of Pack: it consumes buf and writes into
	// t.Base at the positions described by slice, starting at *cursor.
	Unpack(t Target, slice space.Slice, cursor *[space.MaxDims]int64, buf []byte) (int, error)
}

// Done reports whether cursor has advanced past the end of slice, i.e.
// Pack/Unpack have nothing left to do.
func Done(slice space.Slice, cursor [space.MaxDims]int64) bool {
	return !slice.Contains(cursor)
}

func errOutOfBounds(bounds space.Slice, idx [space.MaxDims]int64) error {
	return fmt.Errorf("layout: index %v not contained in bounds %v", idx, bounds)
}

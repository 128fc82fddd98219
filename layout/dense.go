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

package layout

import (
	"github.com/TobiasZehetmair/laik/space"
)

// Dense is the default row-major Layout: the last axis is contiguous,
// matching the lexicographic order space.Slice.ForEach/Next already walk
// in.
type Dense struct{}

func strides(bounds space.Slice) [space.MaxDims]int64 {
	var st [space.MaxDims]int64
	dims := bounds.Dims()
	acc := int64(1)
	for i := dims - 1; i >= 0; i-- {
		st[i] = acc
		acc *= bounds.To(i) - bounds.From(i)
	}
	return st
}

// Offset implements Layout.Offset for row-major storage.
func (Dense) Offset(bounds space.Slice, idx [space.MaxDims]int64) (int64, error) {
	if !bounds.Contains(idx) {
		return 0, errOutOfBounds(bounds, idx)
	}
	st := strides(bounds)
	var off int64
	for i := 0; i < bounds.Dims(); i++ {
		off += (idx[i] - bounds.From(i)) * st[i]
	}
	return off, nil
}

// Pack implements Layout.Pack.
func (d Dense) Pack(t Target, slice space.Slice, cursor *[space.MaxDims]int64, buf []byte) (int, error) {
	idx := *cursor
	written := 0
	for !Done(slice, idx) {
		if written+t.ElemSize > len(buf) {
			break
		}
		off, err := d.Offset(t.Bounds, idx)
		if err != nil {
			return written, err
		}
		src := t.Base[off*int64(t.ElemSize):]
		copy(buf[written:written+t.ElemSize], src[:t.ElemSize])
		written += t.ElemSize
		slice.Next(&idx)
	}
	*cursor = idx
	return written, nil
}

// Unpack implements Layout.Unpack.
func (d Dense) Unpack(t Target, slice space.Slice, cursor *[space.MaxDims]int64, buf []byte) (int, error) {
	idx := *cursor
	consumed := 0
	for !Done(slice, idx) {
		if consumed+t.ElemSize > len(buf) {
			break
		}
		off, err := d.Offset(t.Bounds, idx)
		if err != nil {
			return consumed, err
		}
		dst := t.Base[off*int64(t.ElemSize):]
		copy(dst[:t.ElemSize], buf[consumed:consumed+t.ElemSize])
		consumed += t.ElemSize
		slice.Next(&idx)
	}
	*cursor = idx
	return consumed, nil
}

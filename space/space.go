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

// Package space implements the index-space algebra that the rest of laik
// is built on: an immutable description of a 1-, 2- or 3-dimensional index
// domain (Space) and half-open hyper-rectangles within it (Slice).
package space

import "fmt"

// MaxDims is the largest dimensionality a Space or Slice may have.
const MaxDims = 3

// Bound is an inclusive-low, exclusive-high range along one axis.
type Bound struct {
	Low, High int64
}

func (b Bound) size() int64 {
	if b.High <= b.Low {
		return 0
	}
	return b.High - b.Low
}

// A Space is an immutable description of a d-dimensional index domain,
// d in {1,2,3}. Bounds are finite and non-negative.
type Space struct {
	dims   int
	bounds [MaxDims]Bound
}

// New constructs a Space from 1 to 3 axis bounds.
func New(bounds ...Bound) (Space, error) {
	if len(bounds) < 1 || len(bounds) > MaxDims {
		return Space{}, fmt.Errorf("space: dimensionality %d outside [1,%d]", len(bounds), MaxDims)
	}
	var s Space
	s.dims = len(bounds)
	for i, b := range bounds {
		if b.Low < 0 || b.High < 0 {
			return Space{}, fmt.Errorf("space: axis %d has negative bound [%d,%d)", i, b.Low, b.High)
		}
		if b.Low > b.High {
			return Space{}, fmt.Errorf("space: axis %d has from > to (%d > %d)", i, b.Low, b.High)
		}
		s.bounds[i] = b
	}
	return s, nil
}

// Dims returns the dimensionality of s.
func (s Space) Dims() int { return s.dims }

// Bound returns the bound along axis i.
func (s Space) Bound(i int) Bound { return s.bounds[i] }

// Full returns the Slice spanning all of s.
func (s Space) Full() Slice {
	var sl Slice
	sl.dims = s.dims
	for i := 0; i < s.dims; i++ {
		sl.from[i] = s.bounds[i].Low
		sl.to[i] = s.bounds[i].High
	}
	return sl
}

// Volume returns the number of indices contained in s.
func (s Space) Volume() int64 {
	v := int64(1)
	for i := 0; i < s.dims; i++ {
		v *= s.bounds[i].size()
	}
	return v
}

func (s Space) String() string {
	out := "Space{"
	for i := 0; i < s.dims; i++ {
		if i > 0 {
			out += "x"
		}
		out += fmt.Sprintf("[%d,%d)", s.bounds[i].Low, s.bounds[i].High)
	}
	return out + "}"
}

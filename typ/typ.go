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

package typ

import (
	"fmt"

	"github.com/TobiasZehetmair/laik/errs"
	"github.com/TobiasZehetmair/laik/reduce"
)

// Kind distinguishes plain-old-data element types, which support only
// copy, from Reducible types, which additionally carry an element-wise
// reduce and per-op identity.
type Kind int

const (
	PlainOldData Kind = iota
	Reducible
)

func (k Kind) String() string {
	if k == Reducible {
		return "reducible"
	}
	return "pod"
}

// Type is an element descriptor: a name, a Kind, a fixed element size in
// bytes, and, for Reducible kinds, the element-wise reduce and identity
// functions the reduction engine (package reduce) provides.
type Type struct {
	Name     string
	Kind     Kind
	ElemSize int

	reduceFn   reduce.ByteFunc
	identityFn reduce.IdentityFunc
}

// NewPlainType constructs a PlainOldData Type of the given element size.
func NewPlainType(name string, elemSize int) (Type, error) {
	if elemSize <= 0 {
		return Type{}, errs.ConfigErrorf("type %q: element size must be positive, got %d", name, elemSize)
	}
	return Type{Name: name, Kind: PlainOldData, ElemSize: elemSize}, nil
}

// NewReducibleType constructs a Reducible Type backed by the given
// element-wise reduce and identity functions (see package reduce for the
// stock numeric implementations).
func NewReducibleType(name string, elemSize int, r reduce.ByteFunc, id reduce.IdentityFunc) (Type, error) {
	if elemSize <= 0 {
		return Type{}, errs.ConfigErrorf("type %q: element size must be positive, got %d", name, elemSize)
	}
	if r == nil || id == nil {
		return Type{}, errs.ConfigErrorf("type %q: reducible types require both reduce and identity functions", name)
	}
	return Type{Name: name, Kind: Reducible, ElemSize: elemSize, reduceFn: r, identityFn: id}, nil
}

// Reduce computes dst[i] = op(a[i], b[i]) for n elements. dst may alias a,
// supporting in-place accumulation.
func (t Type) Reduce(op reduce.Op, dst, a, b []byte, n int) error {
	if t.Kind != Reducible {
		return fmt.Errorf("laik: type %q is not reducible", t.Name)
	}
	return t.reduceFn(op, dst, a, b, n)
}

// Identity fills dst with n copies of op's identity element.
func (t Type) Identity(op reduce.Op, dst []byte, n int) error {
	if t.Kind != Reducible {
		return fmt.Errorf("laik: type %q is not reducible", t.Name)
	}
	return t.identityFn(op, dst, n)
}

// Stock element types, analogous to the fixed set of scalar kinds most
// partitioned-array systems ship with out of the box.
var (
	Float64 Type
	Float32 Type
	Int64   Type
	Int32   Type
	Uint64  Type
	Byte    Type
)

func init() {
	var err error
	if Float64, err = NewReducibleType("float64", 8, reduce.ReduceFloat64, reduce.IdentityFloat64); err != nil {
		panic(err)
	}
	if Float32, err = NewReducibleType("float32", 4, reduce.ReduceFloat32, reduce.IdentityFloat32); err != nil {
		panic(err)
	}
	if Int64, err = NewReducibleType("int64", 8, reduce.ReduceInt64, reduce.IdentityInt64); err != nil {
		panic(err)
	}
	if Int32, err = NewReducibleType("int32", 4, reduce.ReduceInt32, reduce.IdentityInt32); err != nil {
		panic(err)
	}
	if Uint64, err = NewReducibleType("uint64", 8, reduce.ReduceUint64, reduce.IdentityUint64); err != nil {
		panic(err)
	}
	if Byte, err = NewPlainType("byte", 1); err != nil {
		panic(err)
	}
}

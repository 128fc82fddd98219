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

package reduce

import (
	"encoding/binary"
	"fmt"
	"math"
)

// A ByteFunc reduces n elements from a and b into dst, all packed
// little-endian byte buffers of the element's fixed width. dst, a and b
// may alias: every element is read out of a and b into locals before dst
// is written, so ReduceFloat64 and friends are safe to call with dst == a.
type ByteFunc func(op Op, dst, a, b []byte, n int) error

// An IdentityFunc fills dst with n copies of op's identity value.
type IdentityFunc func(op Op, dst []byte, n int) error

func ReduceFloat64(op Op, dst, a, b []byte, n int) error {
	const w = 8
	if len(dst) < n*w || len(a) < n*w || len(b) < n*w {
		return fmt.Errorf("reduce: float64 buffer too small for %d elements", n)
	}
	for i := 0; i < n; i++ {
		av := math.Float64frombits(binary.LittleEndian.Uint64(a[i*w:]))
		bv := math.Float64frombits(binary.LittleEndian.Uint64(b[i*w:]))
		cv, err := combine(op, av, bv)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst[i*w:], math.Float64bits(cv))
	}
	return nil
}

func IdentityFloat64(op Op, dst []byte, n int) error {
	const w = 8
	if len(dst) < n*w {
		return fmt.Errorf("reduce: float64 buffer too small for %d elements", n)
	}
	id, err := identity[float64](op)
	if err != nil {
		return err
	}
	bits := math.Float64bits(id)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(dst[i*w:], bits)
	}
	return nil
}

func ReduceFloat32(op Op, dst, a, b []byte, n int) error {
	const w = 4
	if len(dst) < n*w || len(a) < n*w || len(b) < n*w {
		return fmt.Errorf("reduce: float32 buffer too small for %d elements", n)
	}
	for i := 0; i < n; i++ {
		av := math.Float32frombits(binary.LittleEndian.Uint32(a[i*w:]))
		bv := math.Float32frombits(binary.LittleEndian.Uint32(b[i*w:]))
		cv, err := combine(op, av, bv)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst[i*w:], math.Float32bits(cv))
	}
	return nil
}

func IdentityFloat32(op Op, dst []byte, n int) error {
	const w = 4
	if len(dst) < n*w {
		return fmt.Errorf("reduce: float32 buffer too small for %d elements", n)
	}
	id, err := identity[float32](op)
	if err != nil {
		return err
	}
	bits := math.Float32bits(id)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[i*w:], bits)
	}
	return nil
}

func ReduceInt64(op Op, dst, a, b []byte, n int) error {
	const w = 8
	if len(dst) < n*w || len(a) < n*w || len(b) < n*w {
		return fmt.Errorf("reduce: int64 buffer too small for %d elements", n)
	}
	for i := 0; i < n; i++ {
		av := int64(binary.LittleEndian.Uint64(a[i*w:]))
		bv := int64(binary.LittleEndian.Uint64(b[i*w:]))
		cv, err := combine(op, av, bv)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst[i*w:], uint64(cv))
	}
	return nil
}

func IdentityInt64(op Op, dst []byte, n int) error {
	const w = 8
	if len(dst) < n*w {
		return fmt.Errorf("reduce: int64 buffer too small for %d elements", n)
	}
	id, err := identity[int64](op)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(dst[i*w:], uint64(id))
	}
	return nil
}

func ReduceUint64(op Op, dst, a, b []byte, n int) error {
	const w = 8
	if len(dst) < n*w || len(a) < n*w || len(b) < n*w {
		return fmt.Errorf("reduce: uint64 buffer too small for %d elements", n)
	}
	for i := 0; i < n; i++ {
		av := binary.LittleEndian.Uint64(a[i*w:])
		bv := binary.LittleEndian.Uint64(b[i*w:])
		cv, err := combine(op, av, bv)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst[i*w:], cv)
	}
	return nil
}

func IdentityUint64(op Op, dst []byte, n int) error {
	const w = 8
	if len(dst) < n*w {
		return fmt.Errorf("reduce: uint64 buffer too small for %d elements", n)
	}
	id, err := identity[uint64](op)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(dst[i*w:], id)
	}
	return nil
}

func ReduceInt32(op Op, dst, a, b []byte, n int) error {
	const w = 4
	if len(dst) < n*w || len(a) < n*w || len(b) < n*w {
		return fmt.Errorf("reduce: int32 buffer too small for %d elements", n)
	}
	for i := 0; i < n; i++ {
		av := int32(binary.LittleEndian.Uint32(a[i*w:]))
		bv := int32(binary.LittleEndian.Uint32(b[i*w:]))
		cv, err := combine(op, av, bv)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst[i*w:], uint32(cv))
	}
	return nil
}

func IdentityInt32(op Op, dst []byte, n int) error {
	const w = 4
	if len(dst) < n*w {
		return fmt.Errorf("reduce: int32 buffer too small for %d elements", n)
	}
	id, err := identity[int32](op)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[i*w:], uint32(id))
	}
	return nil
}

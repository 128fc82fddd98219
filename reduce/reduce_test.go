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
	"math"
	"testing"
)

func f64buf(vs ...float64) []byte {
	buf := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func readF64(buf []byte, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}

func TestSumThreeWay(t *testing.T) {
	// three-way accumulate: {1,1,1,1} + {2,2,2,2} + {4,4,4,4} = {7,7,7,7}
	a := f64buf(1, 1, 1, 1)
	b := f64buf(2, 2, 2, 2)
	c := f64buf(4, 4, 4, 4)
	acc := make([]byte, len(a))
	if err := ReduceFloat64(Sum, acc, a, b, 4); err != nil {
		t.Fatal(err)
	}
	if err := ReduceFloat64(Sum, acc, acc, c, 4); err != nil {
		t.Fatal(err)
	}
	got := readF64(acc, 4)
	for _, v := range got {
		if v != 7 {
			t.Fatalf("got %v, want all 7", got)
		}
	}
}

func TestInPlaceReduceIsSafe(t *testing.T) {
	a := f64buf(3, 9)
	b := f64buf(7, 5)
	// dst == a: spec requires this to still be correct.
	if err := ReduceFloat64(Max, a, a, b, 2); err != nil {
		t.Fatal(err)
	}
	got := readF64(a, 2)
	if got[0] != 7 || got[1] != 9 {
		t.Fatalf("got %v, want [7 9]", got)
	}
}

func TestIdentityValues(t *testing.T) {
	dst := make([]byte, 8*2)
	if err := IdentityFloat64(Sum, dst, 2); err != nil {
		t.Fatal(err)
	}
	for _, v := range readF64(dst, 2) {
		if v != 0 {
			t.Fatalf("sum identity = %v, want 0", v)
		}
	}
	if err := IdentityFloat64(Prod, dst, 2); err != nil {
		t.Fatal(err)
	}
	for _, v := range readF64(dst, 2) {
		if v != 1 {
			t.Fatalf("prod identity = %v, want 1", v)
		}
	}
}

func TestUnsupportedOp(t *testing.T) {
	dst := make([]byte, 8)
	if err := IdentityFloat64(NoOp, dst, 1); err == nil {
		t.Fatal("expected error for NoOp identity")
	}
}

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

package mapping

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/TobiasZehetmair/laik/reduce"
	"github.com/TobiasZehetmair/laik/space"
	"github.com/TobiasZehetmair/laik/typ"
)

func TestInitIdentitySum(t *testing.T) {
	required, err := space.NewSlice(space.Bound{Low: 0, High: 4})
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(typ.Float64, required, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.InitIdentity(required, reduce.Sum); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		v := math.Float64frombits(binary.LittleEndian.Uint64(m.Base[i*8:]))
		if v != 0 {
			t.Fatalf("index %d = %v, want 0 (Sum identity)", i, v)
		}
	}
}

func TestCopyFromOverlap(t *testing.T) {
	full, err := space.NewSlice(space.Bound{Low: 0, High: 8})
	if err != nil {
		t.Fatal(err)
	}
	src, err := New(typ.Float64, full, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint64(src.Base[i*8:], math.Float64bits(float64(i)))
	}
	dst, err := New(typ.Float64, full, nil)
	if err != nil {
		t.Fatal(err)
	}
	overlap, err := space.NewSlice(space.Bound{Low: 2, High: 5})
	if err != nil {
		t.Fatal(err)
	}
	if err := dst.CopyFrom(src, overlap); err != nil {
		t.Fatal(err)
	}
	for i := 2; i < 5; i++ {
		v := math.Float64frombits(binary.LittleEndian.Uint64(dst.Base[i*8:]))
		if v != float64(i) {
			t.Fatalf("index %d = %v, want %v", i, v, i)
		}
	}
	if math.Float64frombits(binary.LittleEndian.Uint64(dst.Base[0:])) != 0 {
		t.Fatal("byte outside overlap was written")
	}
}

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
	"bytes"
	"testing"

	"github.com/TobiasZehetmair/laik/space"
)

func TestPackUnpackRoundTrip1D(t *testing.T) {
	bounds, err := space.NewSlice(space.Bound{Low: 0, High: 8})
	if err != nil {
		t.Fatal(err)
	}
	src := Target{Base: make([]byte, 8*8), Bounds: bounds, ElemSize: 8}
	for i := range src.Base {
		src.Base[i] = byte(i)
	}
	slc, err := space.NewSlice(space.Bound{Low: 2, High: 6})
	if err != nil {
		t.Fatal(err)
	}

	var d Dense
	buf := make([]byte, 1024)
	cursor := slc.Start()
	n, err := d.Pack(src, slc, &cursor, buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int(slc.Volume())*8 {
		t.Fatalf("packed %d bytes, want %d", n, slc.Volume()*8)
	}
	if !Done(slc, cursor) {
		t.Fatalf("cursor %v should be done after full pack", cursor)
	}

	dst := Target{Base: make([]byte, 8*8), Bounds: bounds, ElemSize: 8}
	cursor = slc.Start()
	m, err := d.Unpack(dst, slc, &cursor, buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if m != n {
		t.Fatalf("unpacked %d bytes, want %d", m, n)
	}
	off, _ := d.Offset(bounds, slc.Start())
	want := src.Base[off*8 : off*8+slc.Volume()*8]
	got := dst.Base[off*8 : off*8+slc.Volume()*8]
	if !bytes.Equal(want, got) {
		t.Fatalf("round trip mismatch: got %v want %v", got, want)
	}
	// bytes outside the packed slice must remain untouched (zero).
	for i := 0; i < int(off)*8; i++ {
		if dst.Base[i] != 0 {
			t.Fatalf("byte %d outside slice was written: %d", i, dst.Base[i])
		}
	}
}

func TestPackPartialBuffer(t *testing.T) {
	bounds, _ := space.NewSlice(space.Bound{Low: 0, High: 4})
	src := Target{Base: make([]byte, 4*8), Bounds: bounds, ElemSize: 8}
	var d Dense
	cursor := bounds.Start()
	// buffer only large enough for 2 elements
	buf := make([]byte, 16)
	n, err := d.Pack(src, bounds, &cursor, buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 16 {
		t.Fatalf("got %d bytes, want 16", n)
	}
	if Done(bounds, cursor) {
		t.Fatal("should not be done after partial pack")
	}
	if cursor[0] != 2 {
		t.Fatalf("cursor = %v, want index 2", cursor)
	}
	// second call resumes and finishes.
	n2, err := d.Pack(src, bounds, &cursor, buf)
	if err != nil {
		t.Fatal(err)
	}
	if n2 != 16 {
		t.Fatalf("got %d bytes, want 16", n2)
	}
	if !Done(bounds, cursor) {
		t.Fatal("should be done after second pack")
	}
}

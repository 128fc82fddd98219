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

package space

import "testing"

func mustSlice(t *testing.T, lo, hi int64) Slice {
	t.Helper()
	sl, err := NewSlice(Bound{lo, hi})
	if err != nil {
		t.Fatal(err)
	}
	return sl
}

func TestIntersect(t *testing.T) {
	cases := []struct {
		a, b      [2]int64
		wantLo    int64
		wantHi    int64
		wantEmpty bool
	}{
		{[2]int64{0, 4}, [2]int64{4, 8}, 0, 0, true},
		{[2]int64{0, 4}, [2]int64{2, 8}, 2, 4, false},
		{[2]int64{0, 8}, [2]int64{2, 4}, 2, 4, false},
		{[2]int64{0, 0}, [2]int64{0, 8}, 0, 0, true},
	}
	for _, c := range cases {
		a := mustSlice(t, c.a[0], c.a[1])
		b := mustSlice(t, c.b[0], c.b[1])
		got := a.Intersect(b)
		if got.Empty() != c.wantEmpty {
			t.Fatalf("Intersect(%v,%v).Empty() = %v, want %v", a, b, got.Empty(), c.wantEmpty)
		}
		if !c.wantEmpty {
			if got.From(0) != c.wantLo || got.To(0) != c.wantHi {
				t.Fatalf("Intersect(%v,%v) = [%d,%d), want [%d,%d)", a, b, got.From(0), got.To(0), c.wantLo, c.wantHi)
			}
		}
	}
}

func TestForEachReachesTo(t *testing.T) {
	sl := mustSlice(t, 3, 7)
	var seen []int64
	sl.ForEach(func(idx [MaxDims]int64) bool {
		seen = append(seen, idx[0])
		return true
	})
	if len(seen) != 4 {
		t.Fatalf("got %d indices, want 4", len(seen))
	}
	for i, v := range seen {
		if v != int64(3+i) {
			t.Fatalf("seen[%d] = %d, want %d", i, v, 3+i)
		}
	}
}

func TestWithin(t *testing.T) {
	sp, err := New(Bound{0, 8})
	if err != nil {
		t.Fatal(err)
	}
	good := mustSlice(t, 2, 6)
	if !good.Within(sp) {
		t.Fatalf("%v should be within %v", good, sp)
	}
	bad := mustSlice(t, 2, 10)
	if bad.Within(sp) {
		t.Fatalf("%v should not be within %v", bad, sp)
	}
}

func TestUnion(t *testing.T) {
	a := mustSlice(t, 0, 4)
	b := mustSlice(t, 2, 8)
	u := a.Union(b)
	if u.From(0) != 0 || u.To(0) != 8 {
		t.Fatalf("Union = [%d,%d), want [0,8)", u.From(0), u.To(0))
	}
}

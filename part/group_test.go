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

package part

import "testing"

func TestNewGroupRejectsNonMember(t *testing.T) {
	if _, err := NewGroup(4, []int{0, 1, 2, 3}); err == nil {
		t.Fatal("expected error for myID not in ids")
	}
}

func TestNewGroupRejectsDuplicate(t *testing.T) {
	if _, err := NewGroup(0, []int{0, 1, 1}); err == nil {
		t.Fatal("expected error for duplicate rank")
	}
}

func TestDeriveShrink(t *testing.T) {
	g, err := NewGroup(0, []int{0, 1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	// rank 0 survives, renumbered to 0; rank 2 survives, renumbered to 1.
	child, err := g.Derive(0, []int{0, 2})
	if err != nil {
		t.Fatal(err)
	}
	if child.Size() != 2 {
		t.Fatalf("size = %d, want 2", child.Size())
	}
	if child.MyID() != 0 {
		t.Fatalf("myID = %d, want 0", child.MyID())
	}
	if child.Parent() != g {
		t.Fatal("child.Parent() should be the original group")
	}
	if id, ok := child.FromParent(2); !ok || id != 1 {
		t.Fatalf("FromParent(2) = %d, %v; want 1, true", id, ok)
	}
	if id, ok := child.FromParent(1); !ok || id != -1 {
		t.Fatalf("FromParent(1) = %d, %v; want -1, true (dropped)", id, ok)
	}
}

func TestDeriveRejectsNonSubset(t *testing.T) {
	g, err := NewGroup(0, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Derive(0, []int{0, 5}); err == nil {
		t.Fatal("expected error deriving with a rank outside the parent")
	}
}

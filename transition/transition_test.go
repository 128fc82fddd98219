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

package transition

import (
	"testing"

	"github.com/TobiasZehetmair/laik/part"
	"github.com/TobiasZehetmair/laik/reduce"
	"github.com/TobiasZehetmair/laik/space"
)

func slc(t *testing.T, lo, hi int64) space.Slice {
	t.Helper()
	s, err := space.NewSlice(space.Bound{Low: lo, High: hi})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// TestTwoProcessExchange covers a clean swap of ownership between two
// ranks, producing exactly one send and one recv on rank 0, no local
// copy, no init.
func TestTwoProcessExchange(t *testing.T) {
	sp, err := space.New(space.Bound{Low: 0, High: 8})
	if err != nil {
		t.Fatal(err)
	}
	old, err := part.NewPartitioning(sp, map[int][]part.OwnedSlice{
		0: {{Slice: slc(t, 0, 4), Intent: part.ReadWriteIntent()}},
		1: {{Slice: slc(t, 4, 8), Intent: part.ReadWriteIntent()}},
	})
	if err != nil {
		t.Fatal(err)
	}
	newP, err := part.NewPartitioning(sp, map[int][]part.OwnedSlice{
		0: {{Slice: slc(t, 4, 8), Intent: part.ReadWriteIntent()}},
		1: {{Slice: slc(t, 0, 4), Intent: part.ReadWriteIntent()}},
	})
	if err != nil {
		t.Fatal(err)
	}
	group, err := part.NewGroup(0, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}

	tr, err := Plan(old, newP, group)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Local) != 0 {
		t.Fatalf("local = %v, want none", tr.Local)
	}
	if len(tr.Init) != 0 {
		t.Fatalf("init = %v, want none", tr.Init)
	}
	if len(tr.Send) != 1 || tr.Send[0].To != 1 || !tr.Send[0].Slice.Equal(slc(t, 0, 4)) {
		t.Fatalf("send = %v, want one send([0,4) -> 1)", tr.Send)
	}
	if len(tr.Recv) != 1 || tr.Recv[0].From != 1 || !tr.Recv[0].Slice.Equal(slc(t, 4, 8)) {
		t.Fatalf("recv = %v, want one recv([4,8) <- 1)", tr.Recv)
	}
}

// TestLocalCopyOnOverlap covers the case where this process's old and new
// regions overlap: the overlap becomes a local copy, not a send/recv.
func TestLocalCopyOnOverlap(t *testing.T) {
	sp, err := space.New(space.Bound{Low: 0, High: 8})
	if err != nil {
		t.Fatal(err)
	}
	old, err := part.NewPartitioning(sp, map[int][]part.OwnedSlice{
		0: {{Slice: slc(t, 0, 5), Intent: part.ReadWriteIntent()}},
		1: {{Slice: slc(t, 5, 8), Intent: part.ReadWriteIntent()}},
	})
	if err != nil {
		t.Fatal(err)
	}
	newP, err := part.NewPartitioning(sp, map[int][]part.OwnedSlice{
		0: {{Slice: slc(t, 0, 3), Intent: part.ReadWriteIntent()}},
		1: {{Slice: slc(t, 3, 8), Intent: part.ReadWriteIntent()}},
	})
	if err != nil {
		t.Fatal(err)
	}
	group, err := part.NewGroup(0, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}

	tr, err := Plan(old, newP, group)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Local) != 1 || !tr.Local[0].Slice.Equal(slc(t, 0, 3)) {
		t.Fatalf("local = %v, want one local([0,3))", tr.Local)
	}
	// rank 0's shrinking old region [0,5) still covers [3,5) that rank 1
	// newly needs under [3,8), so it must still be sent.
	if len(tr.Send) != 1 || tr.Send[0].To != 1 || !tr.Send[0].Slice.Equal(slc(t, 3, 5)) {
		t.Fatalf("send = %v, want one send([3,5) -> 1)", tr.Send)
	}
}

// TestInitOnReduceIntentWithNoOldOwner covers a newly appearing
// Reduce-intent region with nothing to diff against: it gets initialized
// to the op's identity rather than left undefined.
func TestInitOnReduceIntentWithNoOldOwner(t *testing.T) {
	sp, err := space.New(space.Bound{Low: 0, High: 4})
	if err != nil {
		t.Fatal(err)
	}
	newP, err := part.NewPartitioning(sp, map[int][]part.OwnedSlice{
		0: {{Slice: slc(t, 0, 4), Intent: part.ReduceIntent(reduce.Sum)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	group, err := part.NewGroup(0, []int{0})
	if err != nil {
		t.Fatal(err)
	}

	tr, err := Plan(nil, newP, group)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Init) != 1 || tr.Init[0].Op != reduce.Sum || !tr.Init[0].Slice.Equal(slc(t, 0, 4)) {
		t.Fatalf("init = %v, want one init([0,4), Sum)", tr.Init)
	}
}

// TestReduceRecordGathersInputAndOutput covers the Reduce record's shape
// (not the numeric combine, which reduce_test.go checks): an all-reduce
// over the full group produces one Reduce record whose Input and Output
// both equal the whole group.
func TestReduceRecordGathersInputAndOutput(t *testing.T) {
	sp, err := space.New(space.Bound{Low: 0, High: 4})
	if err != nil {
		t.Fatal(err)
	}
	old, err := part.NewPartitioning(sp, map[int][]part.OwnedSlice{
		0: {{Slice: slc(t, 0, 4), Intent: part.ReduceIntent(reduce.Sum)}},
		1: {{Slice: slc(t, 0, 4), Intent: part.ReduceIntent(reduce.Sum)}},
		2: {{Slice: slc(t, 0, 4), Intent: part.ReduceIntent(reduce.Sum)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	newP, err := part.NewPartitioning(sp, map[int][]part.OwnedSlice{
		0: {{Slice: slc(t, 0, 4), Intent: part.ReduceIntent(reduce.Sum)}},
		1: {{Slice: slc(t, 0, 4), Intent: part.ReduceIntent(reduce.Sum)}},
		2: {{Slice: slc(t, 0, 4), Intent: part.ReduceIntent(reduce.Sum)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	group, err := part.NewGroup(0, []int{0, 1, 2})
	if err != nil {
		t.Fatal(err)
	}

	tr, err := Plan(old, newP, group)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Reduce) != 1 {
		t.Fatalf("reduce = %v, want exactly one record", tr.Reduce)
	}
	rec := tr.Reduce[0]
	if len(rec.Input) != 3 || len(rec.Output) != 3 {
		t.Fatalf("reduce record = %+v, want input/output group of 3", rec)
	}
}

func TestPlanRejectsNilGroup(t *testing.T) {
	sp, err := space.New(space.Bound{Low: 0, High: 4})
	if err != nil {
		t.Fatal(err)
	}
	newP, err := part.NewPartitioning(sp, map[int][]part.OwnedSlice{
		0: {{Slice: slc(t, 0, 4), Intent: part.WriteIntent()}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Plan(nil, newP, nil); err == nil {
		t.Fatal("expected error for nil group")
	}
}

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

package p2p

import (
	"github.com/google/uuid"

	"github.com/TobiasZehetmair/laik/errs"
	"github.com/TobiasZehetmair/laik/part"
)

// ResizeResult is the outcome of one elastic resize round: the LIDs
// added and removed since the previous round, tagged with a correlation
// ID for logs.
type ResizeResult struct {
	RoundID string
	Added   []int
	Removed []int
}

// RequestResize announces a phase boundary to home and blocks until
// home's `remove`/`done` burst has been fully applied to the local
// table. New registrations reach every connected peer immediately (see
// handleRegister), so a resize round only needs to carry removals.
func (l *Loop) RequestResize(phaseID, maxID int) (*ResizeResult, error) {
	home := l.table.Get(HomeLID)
	if home == nil {
		return nil, errs.ConfigErrorf("p2p: resize: home not in peer table")
	}
	conn, err := l.ensureConn(HomeLID)
	if err != nil {
		return nil, err
	}
	before := l.table.LIDs()
	if _, err := conn.Write([]byte(Line{Verb: VerbResize, PhaseID: phaseID, MaxID: maxID}.Encode())); err != nil {
		return nil, errs.WrapTransport(err, "p2p: send resize")
	}

	result := &ResizeResult{RoundID: uuid.NewString()}
	return l.drainResize(before, result)
}

// drainResize blocks the calling goroutine until a `done` line has passed
// through the event loop for this resize round, then diffs the peer table
// against its pre-round snapshot.
func (l *Loop) drainResize(before []int, result *ResizeResult) (*ResizeResult, error) {
	l.resizeMu.Lock()
	ch := make(chan struct{})
	l.resizeWaiters = append(l.resizeWaiters, ch)
	l.resizeMu.Unlock()
	<-ch

	beforeSet := make(map[int]bool, len(before))
	for _, lid := range before {
		beforeSet[lid] = true
	}
	after := l.table.LIDs()
	afterSet := make(map[int]bool, len(after))
	for _, lid := range after {
		afterSet[lid] = true
		if !beforeSet[lid] {
			result.Added = append(result.Added, lid)
		}
	}
	for _, lid := range before {
		if !afterSet[lid] {
			result.Removed = append(result.Removed, lid)
		}
	}
	return result, nil
}

// ApplyGroup builds the Group a Transition should be re-planned against
// after a resize round drops peers: the planner is re-run against the
// resulting Group. keep is the full surviving LID list.
func ApplyGroup(myParentID int, parent *part.Group, removed []int) (*part.Group, error) {
	removedSet := make(map[int]bool, len(removed))
	for _, r := range removed {
		removedSet[r] = true
	}
	var keep []int
	for _, r := range parent.Ranks() {
		if !removedSet[r] {
			keep = append(keep, r)
		}
	}
	return parent.Derive(myParentID, keep)
}

// handleResizeHome is home's side of elastic resize, triggered by a
// `resize` line from any peer: drop any peer whose connection is
// currently gone and reply to the requester with the remove/done burst.
// A removed LID is excluded from subsequent Groups via ApplyGroup.
func (l *Loop) handleResizeHome(in inbound) {
	if l.myLID != HomeLID {
		return
	}
	for _, lid := range l.disconnectedPeers() {
		l.table.Remove(lid)
		in.conn.Write([]byte(Line{Verb: VerbRemove, LID: lid}.Encode()))
	}
	in.conn.Write([]byte(Line{Verb: VerbDone}.Encode()))
}

// disconnectedPeers lists every non-home peer whose connection has
// dropped, the candidates a resize round removes.
func (l *Loop) disconnectedPeers() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var dead []int
	for _, lid := range l.table.LIDs() {
		if lid == HomeLID {
			continue
		}
		if p := l.table.Get(lid); p != nil && p.conn == nil {
			dead = append(dead, lid)
		}
	}
	return dead
}

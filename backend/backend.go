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

// Package backend declares the transport-agnostic contract that the
// collective and point-to-point backends implement: a uniform
// six-operation interface an Instance drives without knowing which
// transport is underneath.
package backend

import (
	"github.com/TobiasZehetmair/laik/mapping"
	"github.com/TobiasZehetmair/laik/part"
	"github.com/TobiasZehetmair/laik/space"
	"github.com/TobiasZehetmair/laik/transition"
)

// Kind tags an Action's operation.
type Kind int

const (
	Send Kind = iota
	Recv
	PackAndSend
	RecvAndUnpack
	Pack
	Unpack
	Copy
)

func (k Kind) String() string {
	switch k {
	case Send:
		return "send"
	case Recv:
		return "recv"
	case PackAndSend:
		return "pack_and_send"
	case RecvAndUnpack:
		return "recv_and_unpack"
	case Pack:
		return "pack"
	case Unpack:
		return "unpack"
	case Copy:
		return "copy"
	default:
		return "unknown"
	}
}

// An Action is a flat executable unit emitted by a backend's Prepare
// phase. Buffer is the scratch region used by the Pack/
// PackAndSend/RecvAndUnpack/Unpack kinds; for Send/Recv/Copy it is nil
// and the Mapping's own memory is used directly.
type Action struct {
	Kind     Kind
	Buffer   []byte
	Count    int64
	Peer     int
	Slice    space.Slice
	Mapping  *mapping.Mapping
	Subgroup []int
}

// TransitionPlan is the replayable, backend-specific realization of a
// Transition produced by Prepare. Backends are free to embed additional
// state (connection handles, scratch buffers) behind this opaque handle;
// callers only ever pass it back into Exec/Wait/Probe/Cleanup.
type TransitionPlan struct {
	Actions []Action
}

// MapIndex identifies one of the (from, to) Mapping pair a Transition
// moves data between, for Wait/Probe's per-mapping granularity.
type MapIndex int

const (
	FromMapping MapIndex = iota
	ToMapping
)

// Backend is the six-operation contract every transport implements:
// backend/collective and backend/p2p.
type Backend interface {
	// Finalize releases backend globals. Idempotent.
	Finalize() error

	// UpdateGroup installs per-group transport state for a derived
	// Group. Must be called exactly once per derived group before Exec
	// on a container bound to it.
	UpdateGroup(group *part.Group) error

	// Prepare optionally allocates buffers and emits Actions for t. If
	// a backend returns (nil, nil) from Prepare, Exec must perform the
	// transition's work directly without a precomputed plan.
	Prepare(t *transition.Transition, from, to *mapping.Mapping) (*TransitionPlan, error)

	// Exec performs all data movement described by t (and plan, if
	// non-nil). Blocking by default.
	Exec(t *transition.Transition, plan *TransitionPlan, from, to *mapping.Mapping) error

	// Wait blocks until all transfers touching the given Mapping have
	// completed.
	Wait(plan *TransitionPlan, which MapIndex) error

	// Probe is the non-blocking form of Wait.
	Probe(plan *TransitionPlan, which MapIndex) (bool, error)

	// Cleanup frees buffers and Actions owned by plan.
	Cleanup(plan *TransitionPlan) error
}

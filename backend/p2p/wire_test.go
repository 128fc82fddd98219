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

import "testing"

func TestParseLineRoundTrip(t *testing.T) {
	cases := []Line{
		{Verb: VerbRegister, Location: "rack1", Host: "10.0.0.1", Port: 7778},
		{Verb: VerbID, LID: 3, Location: "rack1", Host: "10.0.0.1", Port: 7778},
		{Verb: VerbMyID, LID: 2},
		{Verb: VerbPhase, PhaseID: 5},
		{Verb: VerbAllowSend, Count: 10, ElemSize: 8},
		{Verb: VerbResize, PhaseID: 5, MaxID: 4},
		{Verb: VerbRemove, LID: 1},
		{Verb: VerbDone},
		{Verb: VerbHelp},
		{Verb: VerbStatus},
		{Verb: VerbQuit},
		{Verb: VerbKill},
		DataLine(1, 0, []byte{0xde, 0xad, 0xbe, 0xef}),
	}
	for _, want := range cases {
		got, err := ParseLine(want.Encode())
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", want.Encode(), err)
		}
		if got.Verb != want.Verb {
			t.Fatalf("verb = %v, want %v", got.Verb, want.Verb)
		}
		switch want.Verb {
		case VerbRegister:
			if got.Location != want.Location || got.Host != want.Host || got.Port != want.Port {
				t.Fatalf("register round-trip mismatch: %+v vs %+v", got, want)
			}
		case VerbID:
			if got.LID != want.LID || got.Location != want.Location || got.Host != want.Host || got.Port != want.Port {
				t.Fatalf("id round-trip mismatch: %+v vs %+v", got, want)
			}
		case VerbMyID:
			if got.LID != want.LID {
				t.Fatalf("myid round-trip mismatch: %+v vs %+v", got, want)
			}
		case VerbPhase:
			if got.PhaseID != want.PhaseID {
				t.Fatalf("phase round-trip mismatch: %+v vs %+v", got, want)
			}
		case VerbAllowSend:
			if got.Count != want.Count || got.ElemSize != want.ElemSize {
				t.Fatalf("allowsend round-trip mismatch: %+v vs %+v", got, want)
			}
		case VerbResize:
			if got.PhaseID != want.PhaseID || got.MaxID != want.MaxID {
				t.Fatalf("resize round-trip mismatch: %+v vs %+v", got, want)
			}
		case VerbRemove:
			if got.LID != want.LID {
				t.Fatalf("remove round-trip mismatch: %+v vs %+v", got, want)
			}
		case VerbData:
			if got.ByteLen != want.ByteLen || got.Seq != want.Seq || got.Index != want.Index {
				t.Fatalf("data round-trip mismatch: %+v vs %+v", got, want)
			}
			if string(got.Payload) != string(want.Payload) {
				t.Fatalf("data payload mismatch: %x vs %x", got.Payload, want.Payload)
			}
		}
	}
}

func TestParseLineComment(t *testing.T) {
	got, err := ParseLine("# this is a note")
	if err != nil {
		t.Fatal(err)
	}
	if got.Verb != VerbComment {
		t.Fatalf("verb = %v, want comment", got.Verb)
	}
	if got.Comment != " this is a note" {
		t.Fatalf("comment = %q", got.Comment)
	}
}

func TestParseLineRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"register rack1 10.0.0.1",  // missing port
		"allowsend notanumber 8",   // bad count
		"data 4 (bad) deadbeef",    // malformed tag
		"data 4 (1:0) zz",          // bad hex
		"data 3 (1:0) deadbeef",    // length mismatch
		"bogus",
	}
	for _, c := range cases {
		if _, err := ParseLine(c); err == nil {
			t.Fatalf("ParseLine(%q) succeeded, want error", c)
		}
	}
}

func TestVerbDispatchByFirstCharacter(t *testing.T) {
	l, err := ParseLine("help")
	if err != nil || l.Verb != VerbHelp {
		t.Fatalf("help: %+v, %v", l, err)
	}
	l, err = ParseLine("done")
	if err != nil || l.Verb != VerbDone {
		t.Fatalf("done: %+v, %v", l, err)
	}
}

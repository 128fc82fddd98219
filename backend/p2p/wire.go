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

// Package p2p implements the point-to-point backend: a line-oriented TCP
// protocol, a peer table keyed by location-ID, home-rendezvous bootstrap,
// and elastic resize. wire.go is the line protocol itself: encoding and
// parsing the verb table, independent of sockets or the event loop.
package p2p

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/TobiasZehetmair/laik/errs"
)

// Verb tags a parsed line's command.
type Verb byte

const (
	VerbRegister Verb = iota
	VerbID
	VerbMyID
	VerbPhase
	VerbAllowSend
	VerbData
	VerbHelp
	VerbStatus
	VerbQuit
	VerbKill
	VerbResize
	VerbRemove
	VerbDone
	VerbComment
)

func (v Verb) String() string {
	switch v {
	case VerbRegister:
		return "register"
	case VerbID:
		return "id"
	case VerbMyID:
		return "myid"
	case VerbPhase:
		return "phase"
	case VerbAllowSend:
		return "allowsend"
	case VerbData:
		return "data"
	case VerbHelp:
		return "help"
	case VerbStatus:
		return "status"
	case VerbQuit:
		return "quit"
	case VerbKill:
		return "kill"
	case VerbResize:
		return "resize"
	case VerbRemove:
		return "remove"
	case VerbDone:
		return "done"
	case VerbComment:
		return "#"
	default:
		return "unknown"
	}
}

// A Line is one parsed wire command. Not every field is meaningful for
// every Verb; see the constructors below for which.
type Line struct {
	Verb     Verb
	Location string
	Host     string
	Port     int
	LID      int
	MaxID    int
	PhaseID  int
	Count    int64
	ElemSize int
	ByteLen  int64
	Seq      int64
	Index    int64
	Payload  []byte
	Comment  string
}

// Encode renders l back into a wire line, newline-terminated.
func (l Line) Encode() string {
	switch l.Verb {
	case VerbRegister:
		return fmt.Sprintf("register %s %s %d\n", l.Location, l.Host, l.Port)
	case VerbID:
		return fmt.Sprintf("id %d %s %s %d\n", l.LID, l.Location, l.Host, l.Port)
	case VerbMyID:
		return fmt.Sprintf("myid %d\n", l.LID)
	case VerbPhase:
		return fmt.Sprintf("phase %d\n", l.PhaseID)
	case VerbAllowSend:
		return fmt.Sprintf("allowsend %d %d\n", l.Count, l.ElemSize)
	case VerbData:
		return fmt.Sprintf("data %d (%d:%d) %s\n", l.ByteLen, l.Seq, l.Index, hex.EncodeToString(l.Payload))
	case VerbHelp:
		return "help\n"
	case VerbStatus:
		return "status\n"
	case VerbQuit:
		return "quit\n"
	case VerbKill:
		return "kill\n"
	case VerbResize:
		return fmt.Sprintf("resize %d %d\n", l.PhaseID, l.MaxID)
	case VerbRemove:
		return fmt.Sprintf("remove %d\n", l.LID)
	case VerbDone:
		return "done\n"
	case VerbComment:
		return "#" + l.Comment + "\n"
	default:
		return ""
	}
}

// ParseLine dispatches on raw's first character, which suffices to
// identify the verb. Verbs that take arguments (and done) are then checked
// against their full verb word and argument count; help, status, quit and
// kill are recognized from the first character alone.
func ParseLine(raw string) (Line, error) {
	raw = strings.TrimRight(raw, "\r\n")
	if raw == "" {
		return Line{}, errs.ProtocolErrorf("p2p: empty line")
	}
	if raw[0] == '#' {
		return Line{Verb: VerbComment, Comment: raw[1:]}, nil
	}
	fields := strings.Fields(raw)
	verb := fields[0]
	args := fields[1:]

	switch raw[0] {
	case 'r':
		switch {
		case verb == "register":
			return parseRegister(args)
		case verb == "remove":
			return parseRemove(args)
		case verb == "resize":
			return parseResize(args)
		}
	case 'i':
		if verb == "id" {
			return parseID(args)
		}
	case 'm':
		if verb == "myid" {
			return parseMyID(args)
		}
	case 'p':
		if verb == "phase" {
			return parsePhase(args)
		}
	case 'a':
		if verb == "allowsend" {
			return parseAllowSend(args)
		}
	case 'd':
		switch verb {
		case "data":
			return parseData(args)
		case "done":
			return Line{Verb: VerbDone}, nil
		}
	case 'h':
		return Line{Verb: VerbHelp}, nil
	case 's':
		return Line{Verb: VerbStatus}, nil
	case 'q':
		return Line{Verb: VerbQuit}, nil
	case 'k':
		return Line{Verb: VerbKill}, nil
	}
	return Line{}, errs.ProtocolErrorf("p2p: unrecognized line %q", raw)
}

func parseRegister(args []string) (Line, error) {
	if len(args) != 3 {
		return Line{}, errs.ProtocolErrorf("p2p: register wants 3 args, got %d", len(args))
	}
	port, err := strconv.Atoi(args[2])
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: register port")
	}
	return Line{Verb: VerbRegister, Location: args[0], Host: args[1], Port: port}, nil
}

func parseID(args []string) (Line, error) {
	if len(args) != 4 {
		return Line{}, errs.ProtocolErrorf("p2p: id wants 4 args, got %d", len(args))
	}
	lid, err := strconv.Atoi(args[0])
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: id lid")
	}
	port, err := strconv.Atoi(args[3])
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: id port")
	}
	return Line{Verb: VerbID, LID: lid, Location: args[1], Host: args[2], Port: port}, nil
}

func parseMyID(args []string) (Line, error) {
	if len(args) != 1 {
		return Line{}, errs.ProtocolErrorf("p2p: myid wants 1 arg, got %d", len(args))
	}
	lid, err := strconv.Atoi(args[0])
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: myid")
	}
	return Line{Verb: VerbMyID, LID: lid}, nil
}

func parsePhase(args []string) (Line, error) {
	if len(args) != 1 {
		return Line{}, errs.ProtocolErrorf("p2p: phase wants 1 arg, got %d", len(args))
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: phase")
	}
	return Line{Verb: VerbPhase, PhaseID: id}, nil
}

func parseAllowSend(args []string) (Line, error) {
	if len(args) != 2 {
		return Line{}, errs.ProtocolErrorf("p2p: allowsend wants 2 args, got %d", len(args))
	}
	count, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: allowsend count")
	}
	elemSize, err := strconv.Atoi(args[1])
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: allowsend elemsize")
	}
	return Line{Verb: VerbAllowSend, Count: count, ElemSize: elemSize}, nil
}

// parseData parses `data <bytelen> (<seq>:<index>) <hex>`.
func parseData(args []string) (Line, error) {
	if len(args) != 3 {
		return Line{}, errs.ProtocolErrorf("p2p: data wants 3 args, got %d", len(args))
	}
	byteLen, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: data bytelen")
	}
	tag := strings.Trim(args[1], "()")
	parts := strings.SplitN(tag, ":", 2)
	if len(parts) != 2 {
		return Line{}, errs.ProtocolErrorf("p2p: data malformed tag %q", args[1])
	}
	seq, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: data seq")
	}
	index, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: data index")
	}
	payload, err := hex.DecodeString(args[2])
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: data payload")
	}
	if int64(len(payload)) != byteLen {
		return Line{}, errs.ProtocolErrorf("p2p: data payload length %d, want %d", len(payload), byteLen)
	}
	return Line{Verb: VerbData, ByteLen: byteLen, Seq: seq, Index: index, Payload: payload}, nil
}

func parseRemove(args []string) (Line, error) {
	if len(args) != 1 {
		return Line{}, errs.ProtocolErrorf("p2p: remove wants 1 arg, got %d", len(args))
	}
	lid, err := strconv.Atoi(args[0])
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: remove lid")
	}
	return Line{Verb: VerbRemove, LID: lid}, nil
}

func parseResize(args []string) (Line, error) {
	if len(args) != 2 {
		return Line{}, errs.ProtocolErrorf("p2p: resize wants 2 args, got %d", len(args))
	}
	phase, err := strconv.Atoi(args[0])
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: resize phaseid")
	}
	maxID, err := strconv.Atoi(args[1])
	if err != nil {
		return Line{}, errs.WrapProtocol(err, "p2p: resize maxid")
	}
	return Line{Verb: VerbResize, PhaseID: phase, MaxID: maxID}, nil
}

// DataLine encodes one element of a send_slice transmission, emitting
// one data command per element.
func DataLine(seq, index int64, payload []byte) Line {
	return Line{Verb: VerbData, ByteLen: int64(len(payload)), Seq: seq, Index: index, Payload: payload}
}

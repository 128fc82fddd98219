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

// Package errs holds the error classes shared across laik's leaf and
// mid-level packages (space, reduce, typ, part, layout, backend/...). It
// exists below the root laik package in the dependency graph purely to
// avoid an import cycle: typ and part need to construct ConfigErrors but
// the root package needs to import typ and part, so the error types can't
// live in root. The root package re-exports these as laik.ConfigError and
// friends via type aliases so callers never see the errs import.
package errs

import "fmt"

// ConfigError is raised synchronously at the offending API call for an
// invalid space/type/group (mismatched dimensions, zero element size, and
// similar static mistakes).
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("laik: config error: %s: %s", e.Msg, e.Err)
	}
	return fmt.Sprintf("laik: config error: %s", e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ConfigErrorf constructs a ConfigError from a formatted message.
func ConfigErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// WrapConfig constructs a ConfigError wrapping an underlying cause.
func WrapConfig(err error, format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// ProtocolError marks a malformed line, unknown verb from a registered
// peer, data received without credit, or a re-registration attempt. The
// point-to-point backend logs these at warning level and drops the
// offending command; the connection survives.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("laik: protocol error: %s: %s", e.Msg, e.Err)
	}
	return fmt.Sprintf("laik: protocol error: %s", e.Msg)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ProtocolErrorf constructs a ProtocolError from a formatted message.
func ProtocolErrorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// WrapProtocol constructs a ProtocolError wrapping an underlying cause.
func WrapProtocol(err error, format string, args ...any) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// TransportError marks a socket create/connect/bind/accept/read/write
// failure. These are fatal unless a specific call site documents a
// retry; none does in the core.
type TransportError struct {
	Msg string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("laik: transport error: %s: %s", e.Msg, e.Err)
	}
	return fmt.Sprintf("laik: transport error: %s", e.Msg)
}

func (e *TransportError) Unwrap() error { return e.Err }

// WrapTransport constructs a TransportError wrapping an underlying cause.
func WrapTransport(err error, format string, args ...any) *TransportError {
	return &TransportError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// OutOfMemoryError marks an allocation failure. Always fatal.
type OutOfMemoryError struct {
	Msg string
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("laik: out of memory: %s", e.Msg)
}

// OutOfMemoryErrorf constructs an OutOfMemoryError.
func OutOfMemoryErrorf(format string, args ...any) *OutOfMemoryError {
	return &OutOfMemoryError{Msg: fmt.Sprintf(format, args...)}
}

// LogicError marks a failed invariant assertion, e.g. a send slice whose
// element count differs from the granted credit. Always fatal.
type LogicError struct {
	Msg string
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("laik: logic error: %s", e.Msg)
}

// LogicErrorf constructs a LogicError.
func LogicErrorf(format string, args ...any) *LogicError {
	return &LogicError{Msg: fmt.Sprintf(format, args...)}
}

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

package laik

import "github.com/TobiasZehetmair/laik/errs"

// The four error classes, plus LogicError for invariant failures. These
// are aliases of package errs's types so that typ and part (which sit
// below this package in the dependency graph) can construct them
// without importing this package, which itself imports them.
type (
	ConfigError      = errs.ConfigError
	ProtocolError    = errs.ProtocolError
	TransportError   = errs.TransportError
	OutOfMemoryError = errs.OutOfMemoryError
	LogicError       = errs.LogicError
)

var (
	configErrorf      = errs.ConfigErrorf
	protocolErrorf    = errs.ProtocolErrorf
	outOfMemoryErrorf = errs.OutOfMemoryErrorf
	logicErrorf       = errs.LogicErrorf
	wrapConfigErr     = errs.WrapConfig
	wrapProtocolErr   = errs.WrapProtocol
)

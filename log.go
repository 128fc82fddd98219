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

import (
	"log"
	"os"
)

// defaultLogger is used by any component constructed without an explicit
// WithLogger option, following the *log.Logger-field idiom tenant.Manager
// uses rather than a structured logging library.
func defaultLogger() *log.Logger {
	return log.New(os.Stderr, "laik: ", log.LstdFlags)
}

// WithLogger returns an Option that installs l as the logger for an
// Instance's components. A nil logger is replaced with one that discards
// output.
func WithLogger(l *log.Logger) Option {
	return func(c *instConfig) {
		if l == nil {
			l = log.New(os.Stderr, "laik: ", 0)
			l.SetOutput(discard{})
		}
		c.logger = l
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

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

// Package reduce implements the per-type element-wise reduction used by
// the collective and point-to-point backends: Sum, Prod, Min and Max over
// the fixed-width numeric kinds laik ships with, plus the identity values
// each op needs to initialize freshly-owned reduction regions.
package reduce

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// Op identifies a reduction operator.
type Op int

const (
	// NoOp marks a non-reducible access intent (Read/Write/ReadWrite).
	NoOp Op = iota
	Sum
	Prod
	Min
	Max
)

func (op Op) String() string {
	switch op {
	case NoOp:
		return "none"
	case Sum:
		return "sum"
	case Prod:
		return "prod"
	case Min:
		return "min"
	case Max:
		return "max"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// combine folds b into a according to op. It is the single place that
// defines what each Op means for an ordered, summable numeric type.
func combine[T constraints.Float | constraints.Integer](op Op, a, b T) (T, error) {
	switch op {
	case Sum:
		return a + b, nil
	case Prod:
		return a * b, nil
	case Min:
		if b < a {
			return b, nil
		}
		return a, nil
	case Max:
		if b > a {
			return b, nil
		}
		return a, nil
	default:
		var zero T
		return zero, fmt.Errorf("reduce: unsupported op %s", op)
	}
}

func identity[T constraints.Float | constraints.Integer](op Op) (T, error) {
	switch op {
	case Sum:
		return 0, nil
	case Prod:
		return 1, nil
	case Min:
		return maxOf[T](), nil
	case Max:
		return minOf[T](), nil
	default:
		var zero T
		return zero, fmt.Errorf("reduce: unsupported op %s", op)
	}
}

// maxOf and minOf return the representable extremes for T; they are used
// as the identity for Min and Max respectively so that "reduce with
// nothing yet seen" behaves like the empty-sum-is-zero convention.
func maxOf[T constraints.Float | constraints.Integer]() T {
	var t T
	switch any(t).(type) {
	case float32:
		return T(math.MaxFloat32)
	case float64:
		return T(math.MaxFloat64)
	case int32:
		return T(math.MaxInt32)
	case int64:
		return T(math.MaxInt64)
	case uint32:
		return T(math.MaxUint32)
	case uint64:
		return T(uint64(math.MaxUint64))
	default:
		return t
	}
}

func minOf[T constraints.Float | constraints.Integer]() T {
	var t T
	switch any(t).(type) {
	case float32:
		return T(-math.MaxFloat32)
	case float64:
		return T(-math.MaxFloat64)
	case int32:
		return T(math.MinInt32)
	case int64:
		return T(math.MinInt64)
	case uint32, uint64:
		return 0
	default:
		return t
	}
}

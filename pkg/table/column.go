// Package table holds catalogs in memory as named, equal-length typed columns.
package table

import (
	"fmt"
	"strings"
)

// Kind identifies the element type of a column. Values are persisted in
// column file headers, so they must not be renumbered.
type Kind uint8

const (
	KindInt64   Kind = 1
	KindFloat64 Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind converts a kind name back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "int64", "int", "i8":
		return KindInt64, nil
	case "float64", "float", "f8":
		return KindFloat64, nil
	}
	return 0, fmt.Errorf("unknown column kind %q", s)
}

// Column is a typed array. Implementations are Int64s and Float64s.
type Column interface {
	Kind() Kind
	Len() int
	// Gather returns a new column with rows idx[0], idx[1], ...
	Gather(idx []int64) Column
	// Append returns the concatenation of the receiver and other, which must
	// have the same kind.
	Append(other Column) (Column, error)
}

// Int64s is an integer column (IDs, pixels, flags).
type Int64s []int64

// Float64s is a floating point column (coordinates, redshifts, magnitudes).
type Float64s []float64

func (c Int64s) Kind() Kind { return KindInt64 }
func (c Int64s) Len() int   { return len(c) }

func (c Int64s) Gather(idx []int64) Column { return Int64s(Gather(c, idx)) }

func (c Int64s) Append(other Column) (Column, error) {
	o, ok := other.(Int64s)
	if !ok {
		return nil, fmt.Errorf("append %s to int64: %w", other.Kind(), ErrKindMismatch)
	}
	out := make(Int64s, 0, len(c)+len(o))
	return append(append(out, c...), o...), nil
}

func (c Float64s) Kind() Kind { return KindFloat64 }
func (c Float64s) Len() int   { return len(c) }

func (c Float64s) Gather(idx []int64) Column { return Float64s(Gather(c, idx)) }

func (c Float64s) Append(other Column) (Column, error) {
	o, ok := other.(Float64s)
	if !ok {
		return nil, fmt.Errorf("append %s to float64: %w", other.Kind(), ErrKindMismatch)
	}
	out := make(Float64s, 0, len(c)+len(o))
	return append(append(out, c...), o...), nil
}

// Gather returns s[idx[0]], s[idx[1]], ... as a new slice.
func Gather[T any](s []T, idx []int64) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}

// Compress returns the elements of s where keep is true.
func Compress[T any](s []T, keep []bool) []T {
	out := make([]T, 0, len(s))
	for i, k := range keep {
		if k {
			out = append(out, s[i])
		}
	}
	return out
}

// Int64sFrom converts any column to int64, truncating floats.
func Int64sFrom(c Column) Int64s {
	switch v := c.(type) {
	case Int64s:
		return v
	case Float64s:
		out := make(Int64s, len(v))
		for i, x := range v {
			out[i] = int64(x)
		}
		return out
	}
	return nil
}

// Float64sFrom converts any column to float64.
func Float64sFrom(c Column) Float64s {
	switch v := c.(type) {
	case Float64s:
		return v
	case Int64s:
		out := make(Float64s, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out
	}
	return nil
}

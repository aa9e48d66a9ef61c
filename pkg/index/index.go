// Package index builds integer index mappings between catalogs and the
// row selections derived from masks and predicates. Selections are always
// lists of row indices, never boolean masks.
package index

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dd0wney/skyfactory/pkg/healpix"
)

var (
	ErrLengthMismatch = errors.New("array length mismatch")
	ErrEmptyMaster    = errors.New("master catalog is empty")
)

// Selection is a list of row indices in ascending order.
type Selection []int64

// Len returns the number of selected rows.
func (s Selection) Len() int { return len(s) }

// Arange selects every row of an n-row catalog.
func Arange(n int) Selection {
	s := make(Selection, n)
	for i := range s {
		s[i] = int64(i)
	}
	return s
}

// FromMask returns the indices where keep is true.
func FromMask(keep []bool) Selection {
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	s := make(Selection, 0, n)
	for i, k := range keep {
		if k {
			s = append(s, int64(i))
		}
	}
	return s
}

// Mask expands the selection into a boolean array of length n.
func (s Selection) Mask(n int) []bool {
	keep := make([]bool, n)
	for _, i := range s {
		keep[i] = true
	}
	return keep
}

// BuildMatchIndex maps every target ID to the master row carrying the same
// ID. sorter is the permutation that sorts masterIDs. The result has one
// entry per target row.
//
// An ID absent from the master resolves to the row at its insertion point,
// clamped into range, so the caller must guarantee every target ID exists
// in the master. VerifyMatchIndex detects violations.
func BuildMatchIndex(masterIDs, sorter, targetIDs []int64) ([]int64, error) {
	if len(sorter) != len(masterIDs) {
		return nil, fmt.Errorf("%w: %d master ids, sorter has %d", ErrLengthMismatch, len(masterIDs), len(sorter))
	}
	out := make([]int64, len(targetIDs))
	if len(targetIDs) == 0 {
		return out, nil
	}
	n := len(masterIDs)
	if n == 0 {
		return nil, ErrEmptyMaster
	}
	for i, id := range targetIDs {
		pos := sort.Search(n, func(j int) bool { return masterIDs[sorter[j]] >= id })
		if pos == n {
			pos = n - 1
		}
		out[i] = sorter[pos]
	}
	return out, nil
}

// VerifyMatchIndex counts target rows whose mapped master row carries a
// different ID.
func VerifyMatchIndex(masterIDs, match, targetIDs []int64) (int, error) {
	if len(match) != len(targetIDs) {
		return 0, fmt.Errorf("%w: %d matches for %d targets", ErrLengthMismatch, len(match), len(targetIDs))
	}
	bad := 0
	for i, m := range match {
		if m < 0 || m >= int64(len(masterIDs)) || masterIDs[m] != targetIDs[i] {
			bad++
		}
	}
	return bad, nil
}

// PixelSet is the membership test a mask offers.
type PixelSet interface {
	Nside() int64
	Contains(pix int64) bool
}

// InMask reports, per object, whether its pixel coarsened to the mask's
// resolution is a mask pixel. Object pixels must be nest ordered.
func InMask(objectPix []int64, objectNside int64, mask PixelSet) ([]bool, error) {
	coarse, err := healpix.CoarsenAll(objectPix, objectNside, mask.Nside())
	if err != nil {
		return nil, err
	}
	keep := make([]bool, len(coarse))
	for i, p := range coarse {
		keep[i] = mask.Contains(p)
	}
	return keep, nil
}

// BuildMaskedMembership selects the objects inside mask, in input order.
func BuildMaskedMembership(objectPix []int64, objectNside int64, mask PixelSet) (Selection, error) {
	keep, err := InMask(objectPix, objectNside, mask)
	if err != nil {
		return nil, err
	}
	return FromMask(keep), nil
}

// And combines predicate arrays elementwise.
func And(preds ...[]bool) ([]bool, error) {
	if len(preds) == 0 {
		return nil, nil
	}
	n := len(preds[0])
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	for k, p := range preds {
		if len(p) != n {
			return nil, fmt.Errorf("%w: predicate %d has %d rows, want %d", ErrLengthMismatch, k, len(p), n)
		}
		for i, v := range p {
			out[i] = out[i] && v
		}
	}
	return out, nil
}

// BuildPredicateSelection returns the rows where every predicate holds.
func BuildPredicateSelection(preds ...[]bool) (Selection, error) {
	keep, err := And(preds...)
	if err != nil {
		return nil, err
	}
	return FromMask(keep), nil
}

// LookupSorted returns, for each query, the value stored at its position
// in sortedKeys. Queries past the last key map to the last value; queries
// between keys map to the next larger key. Keys must be ascending.
func LookupSorted(sortedKeys []int64, values []float64, query []int64) ([]float64, error) {
	if len(sortedKeys) != len(values) {
		return nil, fmt.Errorf("%w: %d keys, %d values", ErrLengthMismatch, len(sortedKeys), len(values))
	}
	out := make([]float64, len(query))
	if len(query) == 0 {
		return out, nil
	}
	if len(sortedKeys) == 0 {
		return nil, fmt.Errorf("lookup in empty map: %w", ErrEmptyMaster)
	}
	last := len(sortedKeys) - 1
	for i, q := range query {
		pos := sort.Search(len(sortedKeys), func(j int) bool { return sortedKeys[j] >= q })
		out[i] = values[min(pos, last)]
	}
	return out, nil
}

// Scatter places rows of src at positions dst in an n-row output. Positions
// never written keep the zero value.
func Scatter[T any](n int, dst []int64, src []T) ([]T, error) {
	if len(dst) != len(src) {
		return nil, fmt.Errorf("%w: %d positions, %d values", ErrLengthMismatch, len(dst), len(src))
	}
	out := make([]T, n)
	for i, d := range dst {
		if d < 0 || d >= int64(n) {
			return nil, fmt.Errorf("scatter position %d outside [0, %d)", d, n)
		}
		out[d] = src[i]
	}
	return out, nil
}

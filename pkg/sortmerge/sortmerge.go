// Package sortmerge reorders catalogs into a common order: by sky pixel for
// spatial locality, or by object ID for alignment with companion catalogs.
package sortmerge

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/exp/constraints"

	"github.com/dd0wney/skyfactory/pkg/table"
)

var (
	ErrNotPermutation = errors.New("not a permutation")
	ErrMisaligned     = errors.New("catalogs are not aligned by ID")
)

// ArgSort returns the stable permutation that sorts keys ascending:
// keys[perm[0]] <= keys[perm[1]] <= ...
func ArgSort[K constraints.Ordered](keys []K) []int64 {
	perm := make([]int64, len(keys))
	for i := range perm {
		perm[i] = int64(i)
	}
	slices.SortStableFunc(perm, func(a, b int64) int {
		return cmp.Compare(keys[a], keys[b])
	})
	return perm
}

// IsSorted reports whether keys are non-decreasing.
func IsSorted[K constraints.Ordered](keys []K) bool {
	for i := 1; i < len(keys); i++ {
		if keys[i] < keys[i-1] {
			return false
		}
	}
	return true
}

// Inverse returns inv with inv[perm[i]] = i.
func Inverse(perm []int64) ([]int64, error) {
	inv := make([]int64, len(perm))
	seen := make([]bool, len(perm))
	for i, p := range perm {
		if p < 0 || p >= int64(len(perm)) || seen[p] {
			return nil, fmt.Errorf("%w: entry %d at %d", ErrNotPermutation, p, i)
		}
		seen[p] = true
		inv[p] = int64(i)
	}
	return inv, nil
}

// ArgSortColumn sorts by an integer or float column.
func ArgSortColumn(c table.Column) ([]int64, error) {
	switch v := c.(type) {
	case table.Int64s:
		return ArgSort([]int64(v)), nil
	case table.Float64s:
		return ArgSort([]float64(v)), nil
	}
	return nil, fmt.Errorf("cannot sort column of type %T", c)
}

// SortCatalogBy reorders every column of t by keyColumn. Row i of the result
// is row perm[i] of the input; ties keep their input order.
func SortCatalogBy(t *table.Table, keyColumn string) ([]int64, *table.Table, error) {
	key, err := t.Column(keyColumn)
	if err != nil {
		return nil, nil, err
	}
	perm, err := ArgSortColumn(key)
	if err != nil {
		return nil, nil, err
	}
	return perm, t.Gather(perm), nil
}

// CheckAligned compares two ID arrays row by row and reports how many rows differ.
func CheckAligned(primary, companion []int64) error {
	if len(primary) != len(companion) {
		return fmt.Errorf("%w: %d rows vs %d", ErrMisaligned, len(primary), len(companion))
	}
	bad := 0
	first := -1
	for i := range primary {
		if primary[i] != companion[i] {
			if first < 0 {
				first = i
			}
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%w: %d rows differ, first at row %d (%d vs %d)",
			ErrMisaligned, bad, first, primary[first], companion[first])
	}
	return nil
}

package sortmerge

import (
	"fmt"

	"github.com/dd0wney/skyfactory/pkg/store"
)

// SortGroup sorts every dataset directly under group by the key dataset and
// rewrites them in place. It returns the permutation that was applied.
func SortGroup(st *store.Store, group, key string) ([]int64, error) {
	keys, err := st.Read(store.Join(group, key))
	if err != nil {
		return nil, fmt.Errorf("sort %s by %s: %w", group, key, err)
	}
	perm, err := ArgSortColumn(keys)
	if err != nil {
		return nil, fmt.Errorf("sort %s by %s: %w", group, key, err)
	}
	if err := PermuteGroup(st, group, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// PermuteGroup applies an externally computed permutation to every dataset
// directly under group. Companion catalogs use this to follow the primary's
// order without being sorted by their own keys. Every dataset is checked
// before any is rewritten, so a length mismatch leaves the group untouched.
func PermuteGroup(st *store.Store, group string, perm []int64) error {
	names, err := st.ListDatasets(group)
	if err != nil {
		return fmt.Errorf("permute %s: %w", group, err)
	}
	for _, name := range names {
		path := store.Join(group, name)
		n, err := st.Len(path)
		if err != nil {
			return fmt.Errorf("permute %s: %w", group, err)
		}
		if n != len(perm) {
			return store.NewError("permute").Dataset(path).
				Context(fmt.Sprintf("%d rows, permutation has %d", n, len(perm))).
				Cause(store.ErrLengthMismatch).Err()
		}
	}
	for _, name := range names {
		path := store.Join(group, name)
		c, err := st.Read(path)
		if err != nil {
			return fmt.Errorf("permute %s: %w", group, err)
		}
		if err := st.Overwrite(path, c.Gather(perm)); err != nil {
			return err
		}
	}
	return nil
}

// Companion is a catalog that must follow the primary's row order.
type Companion struct {
	Group    string
	IDColumn string // empty when the companion is already in primary order
}

// AlignGroups sorts the primary and every companion with an ID column by ID,
// verifies that their IDs agree row by row, and finally reorders all of them
// by the primary's pixel column. Companions without an ID column follow the
// primary's ID sort. It returns the pixel permutation.
func AlignGroups(st *store.Store, primary, idColumn, pixelColumn string, companions []Companion) ([]int64, error) {
	byID, err := SortGroup(st, primary, idColumn)
	if err != nil {
		return nil, err
	}
	ids, err := st.ReadInt64(store.Join(primary, idColumn))
	if err != nil {
		return nil, err
	}
	for _, c := range companions {
		if c.IDColumn == "" {
			if err := PermuteGroup(st, c.Group, byID); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := SortGroup(st, c.Group, c.IDColumn); err != nil {
			return nil, err
		}
		cids, err := st.ReadInt64(store.Join(c.Group, c.IDColumn))
		if err != nil {
			return nil, err
		}
		if err := CheckAligned(ids, cids); err != nil {
			return nil, fmt.Errorf("%s vs %s: %w", c.Group, primary, err)
		}
	}

	perm, err := SortGroup(st, primary, pixelColumn)
	if err != nil {
		return nil, err
	}
	for _, c := range companions {
		if err := PermuteGroup(st, c.Group, perm); err != nil {
			return nil, err
		}
	}
	return perm, nil
}

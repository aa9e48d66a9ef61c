package table

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrColumnNotFound = errors.New("column not found")
	ErrLengthMismatch = errors.New("column length mismatch")
	ErrKindMismatch   = errors.New("column kind mismatch")
)

// Table is an ordered set of named columns of equal length.
type Table struct {
	names   []string
	columns map[string]Column
	rows    int
}

// New creates an empty table.
func New() *Table {
	return &Table{columns: make(map[string]Column)}
}

// Set adds or replaces a column. The first column fixes the row count.
func (t *Table) Set(name string, c Column) error {
	if len(t.columns) > 0 && c.Len() != t.rows {
		if _, replacing := t.columns[name]; !replacing || len(t.columns) > 1 {
			return fmt.Errorf("column %s has %d rows, table has %d: %w", name, c.Len(), t.rows, ErrLengthMismatch)
		}
	}
	if _, ok := t.columns[name]; !ok {
		t.names = append(t.names, name)
	}
	t.columns[name] = c
	t.rows = c.Len()
	return nil
}

// MustSet is Set for construction code with known-good lengths.
func (t *Table) MustSet(name string, c Column) *Table {
	if err := t.Set(name, c); err != nil {
		panic(err)
	}
	return t
}

// Len returns the row count.
func (t *Table) Len() int { return t.rows }

// Names returns the column names in insertion order.
func (t *Table) Names() []string { return slices.Clone(t.names) }

// Has reports whether the column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// Column returns a column by name.
func (t *Table) Column(name string) (Column, error) {
	c, ok := t.columns[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrColumnNotFound)
	}
	return c, nil
}

// Int64 returns an integer column.
func (t *Table) Int64(name string) (Int64s, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	v, ok := c.(Int64s)
	if !ok {
		return nil, fmt.Errorf("%s is %s, want int64: %w", name, c.Kind(), ErrKindMismatch)
	}
	return v, nil
}

// Float64 returns a floating point column. Integer columns are converted.
func (t *Table) Float64(name string) (Float64s, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	return Float64sFrom(c), nil
}

// Delete removes a column.
func (t *Table) Delete(name string) {
	if _, ok := t.columns[name]; !ok {
		return
	}
	delete(t.columns, name)
	t.names = slices.DeleteFunc(t.names, func(n string) bool { return n == name })
	if len(t.columns) == 0 {
		t.rows = 0
	}
}

// Rename changes a column name, keeping its position.
func (t *Table) Rename(from, to string) error {
	c, ok := t.columns[from]
	if !ok {
		return fmt.Errorf("%s: %w", from, ErrColumnNotFound)
	}
	if from == to {
		return nil
	}
	if _, exists := t.columns[to]; exists {
		t.Delete(to)
	}
	delete(t.columns, from)
	t.columns[to] = c
	for i, n := range t.names {
		if n == from {
			t.names[i] = to
		}
	}
	return nil
}

// NormalizeNames lowercases every column name and applies the renames.
func (t *Table) NormalizeNames(renames map[string]string) error {
	for _, n := range t.Names() {
		target := strings.ToLower(n)
		if r, ok := renames[target]; ok {
			target = r
		}
		if err := t.Rename(n, target); err != nil {
			return err
		}
	}
	return nil
}

// Gather returns a new table with the rows at idx.
func (t *Table) Gather(idx []int64) *Table {
	out := New()
	for _, n := range t.names {
		out.names = append(out.names, n)
		out.columns[n] = t.columns[n].Gather(idx)
	}
	out.rows = len(idx)
	return out
}

// Filter returns the rows where keep is true.
func (t *Table) Filter(keep []bool) (*Table, error) {
	if len(keep) != t.rows {
		return nil, fmt.Errorf("filter of %d rows with %d flags: %w", t.rows, len(keep), ErrLengthMismatch)
	}
	idx := make([]int64, 0, len(keep))
	for i, k := range keep {
		if k {
			idx = append(idx, int64(i))
		}
	}
	return t.Gather(idx), nil
}

// Concat stacks tables vertically. All tables must have the same columns
// with the same kinds; column order follows the first table.
func Concat(tables ...*Table) (*Table, error) {
	out := New()
	if len(tables) == 0 {
		return out, nil
	}
	first := tables[0]
	for _, n := range first.names {
		col := first.columns[n]
		for _, other := range tables[1:] {
			oc, ok := other.columns[n]
			if !ok {
				return nil, fmt.Errorf("concat: %s: %w", n, ErrColumnNotFound)
			}
			var err error
			if col, err = col.Append(oc); err != nil {
				return nil, fmt.Errorf("concat: %s: %w", n, err)
			}
		}
		out.names = append(out.names, n)
		out.columns[n] = col
		out.rows = col.Len()
	}
	for _, other := range tables[1:] {
		if len(other.names) != len(first.names) {
			return nil, fmt.Errorf("concat: %d columns vs %d: %w", len(other.names), len(first.names), ErrColumnNotFound)
		}
	}
	return out, nil
}

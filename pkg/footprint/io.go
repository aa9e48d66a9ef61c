package footprint

import (
	"fmt"

	"github.com/dd0wney/skyfactory/pkg/healpix"
	"github.com/dd0wney/skyfactory/pkg/store"
	"github.com/dd0wney/skyfactory/pkg/table"
)

// Load reads the mask stored under group. Ring ordered pixels are converted
// to nest; every other dataset in the group becomes an attribute.
func Load(st *store.Store, group string, nside int64, ordering healpix.Ordering) (*Mask, error) {
	t, err := st.ReadTable(group)
	if err != nil {
		return nil, fmt.Errorf("load mask %s: %w", group, err)
	}
	pix, err := t.Int64(PixelColumn)
	if err != nil {
		return nil, fmt.Errorf("load mask %s: %w", group, err)
	}
	nest := []int64(pix)
	if ordering == healpix.Ring {
		if nest, err = healpix.Ring2NestAll(nside, pix); err != nil {
			return nil, fmt.Errorf("load mask %s: %w", group, err)
		}
	}

	attrs := make(map[string][]float64)
	for _, name := range t.Names() {
		if name == PixelColumn {
			continue
		}
		c, _ := t.Column(name)
		attrs[name] = table.Float64sFrom(c)
	}
	m, err := New(nside, nest, attrs)
	if err != nil {
		return nil, fmt.Errorf("load mask %s: %w", group, err)
	}
	return m, nil
}

// Save writes the pixel column and every attribute under group, replacing
// what was there.
func (m *Mask) Save(st *store.Store, group string) error {
	if st.Exists(group) {
		if err := st.Delete(group); err != nil {
			return fmt.Errorf("save mask %s: %w", group, err)
		}
	}
	return st.WriteTable(group, m.Table())
}

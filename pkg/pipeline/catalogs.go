package pipeline

import (
	"context"
	"fmt"

	"github.com/dd0wney/skyfactory/pkg/config"
	"github.com/dd0wney/skyfactory/pkg/footprint"
	"github.com/dd0wney/skyfactory/pkg/healpix"
	"github.com/dd0wney/skyfactory/pkg/logging"
	"github.com/dd0wney/skyfactory/pkg/sortmerge"
	"github.com/dd0wney/skyfactory/pkg/store"
	"github.com/dd0wney/skyfactory/pkg/table"
)

// buildGoldFootprint turns the partial footprint map into the gold mask and
// stores it next to the gold catalog.
func (p *Pipeline) buildGoldFootprint(ctx context.Context) error {
	fm := p.cfg.Gold.Footprint
	ordering, err := healpix.ParseOrdering(fm.Ordering)
	if err != nil {
		return err
	}
	src, err := p.openStore(fm.Store, true)
	if err != nil {
		return err
	}
	defer src.Close()

	maskNside := p.cfg.Pixelization.MaskNside
	mask, err := loadMapMask(src, fm, maskNside, ordering, p.cfg.Gold.GoodValue)
	if err != nil {
		return err
	}

	gold, err := p.openStore(p.cfg.Gold.Store, false)
	if err != nil {
		return err
	}
	defer gold.Close()
	if err := mask.Save(gold, p.cfg.Gold.MaskGroup); err != nil {
		return err
	}
	p.metrics.SetMaskPixels("gold", mask.Len())
	p.logger.Info("gold footprint built", logging.Count(mask.Len()), logging.Nside(maskNside))
	return nil
}

// loadMapMask keeps the map pixels whose value equals good.
func loadMapMask(st *store.Store, m config.Map, nside int64, ordering healpix.Ordering, good float64) (*footprint.Mask, error) {
	t, err := st.ReadTable(m.Group, m.PixelColumn, m.ValueColumn)
	if err != nil {
		return nil, fmt.Errorf("footprint map %s: %w", m.Group, err)
	}
	pixCol, _ := t.Column(m.PixelColumn)
	valCol, _ := t.Column(m.ValueColumn)
	pix := []int64(table.Int64sFrom(pixCol))
	if ordering == healpix.Ring {
		if pix, err = healpix.Ring2NestAll(nside, pix); err != nil {
			return nil, err
		}
	}
	return footprint.FromMap(nside, pix, table.Float64sFrom(valCol), good)
}

// alignCatalogs links gold and its companions into the archive, then sorts
// them into one shared pixel order through those links.
func (p *Pipeline) alignCatalogs(ctx context.Context) error {
	g := p.cfg.Gold
	if err := p.master.Link(g.Link, g.Store, g.Group); err != nil {
		return err
	}
	companions := make([]sortmerge.Companion, 0, len(p.cfg.Companions))
	for _, c := range p.cfg.Companions {
		if err := p.master.Link(c.Link, c.Store, c.Group); err != nil {
			return err
		}
		companions = append(companions, sortmerge.Companion{Group: c.Link, IDColumn: c.IDColumn})
	}

	if err := p.ensurePixelColumn(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	perm, err := sortmerge.AlignGroups(p.master, g.Link, g.IDColumn, g.PixelColumn, companions)
	if err != nil {
		return err
	}
	p.logger.Info("catalogs aligned", logging.Rows(len(perm)),
		logging.Int("companions", len(companions)), logging.Dataset(g.Link))
	return nil
}

// ensurePixelColumn computes the gold pixel column at sort_nside when the
// gold catalog does not carry one.
func (p *Pipeline) ensurePixelColumn() error {
	g := p.cfg.Gold
	path := store.Join(g.Link, g.PixelColumn)
	if p.master.IsDataset(path) {
		return nil
	}
	ra, dec, err := readPositions(p.master, g.Link)
	if err != nil {
		return err
	}
	pix, err := healpix.Pixelize(ra, dec, p.cfg.Pixelization.SortNside, healpix.Nest)
	if err != nil {
		return err
	}
	p.logger.Info("gold pixel column computed", logging.Dataset(path), logging.Nside(p.cfg.Pixelization.SortNside))
	return p.master.CreateOrReplace(path, table.Int64s(pix))
}

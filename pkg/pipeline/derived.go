package pipeline

import (
	"context"

	"github.com/dd0wney/skyfactory/pkg/index"
	"github.com/dd0wney/skyfactory/pkg/logging"
	"github.com/dd0wney/skyfactory/pkg/noise"
	"github.com/dd0wney/skyfactory/pkg/regions"
	"github.com/dd0wney/skyfactory/pkg/store"
	"github.com/dd0wney/skyfactory/pkg/table"
)

const regionCentersGroup = "regions/centers"

// matchShapeNoise writes e1_matched_se and e2_matched_se into the shape
// catalog for the objects of index/select.
func (p *Pipeline) matchShapeNoise(ctx context.Context) error {
	sn := p.cfg.ShapeNoise
	if len(sn.ZBins) == 0 {
		p.logger.Info("no shape noise bins configured")
		return errSkipped
	}
	shape := p.shapeCompanion().Link
	cols, err := p.floatColumns(store.Join(shape, "e1"), store.Join(shape, "e2"), sn.Zmean)
	if err != nil {
		return err
	}
	sel, err := p.master.ReadInt64(shapeSelectPath)
	if err != nil {
		return err
	}

	res, err := noise.MatchShapeNoise(noise.Input{
		E1:     cols[0],
		E2:     cols[1],
		Zmean:  cols[2],
		Select: index.Selection(sel),
	}, sn.ZBins, sn.SigmaEData, p.rng, p.logger)
	if err != nil {
		return err
	}
	if err := p.master.CreateOrReplace(store.Join(shape, "e1_matched_se"), table.Float64s(res.E1)); err != nil {
		return err
	}
	if err := p.master.CreateOrReplace(store.Join(shape, "e2_matched_se"), table.Float64s(res.E2)); err != nil {
		return err
	}
	for _, b := range res.Bins {
		p.logger.Info("shape noise matched",
			logging.Float64("z_lo", b.Lo), logging.Float64("z_hi", b.Hi),
			logging.Count(b.Objects), logging.Float64("sigma_e", b.SigmaE), logging.Float64("added", b.Added))
	}
	return nil
}

// assignRegions labels every catalog with the region of its nearest
// center and copies the centers into the archive.
func (p *Pipeline) assignRegions(ctx context.Context) error {
	rc := p.cfg.Regions
	if rc.Centers == "" {
		p.logger.Info("no region centers configured")
		return errSkipped
	}
	src, err := p.openStore(rc.Centers, true)
	if store.IsNotFound(err) {
		p.skip("region_centers", "region centers do not exist, skipping region assignment", logging.Path(rc.Centers))
		return errSkipped
	}
	if err != nil {
		return err
	}
	centers, err := regions.LoadCenters(src, rc.Group)
	src.Close()
	if store.IsNotFound(err) {
		p.skip("region_centers", "region centers do not exist, skipping region assignment", logging.Dataset(rc.Group))
		return errSkipped
	}
	if err != nil {
		return err
	}
	assigner, err := regions.NewAssigner(centers, rc.Nside)
	if err != nil {
		return err
	}

	catalogs := rc.Catalogs
	if len(catalogs) == 0 {
		catalogs = p.regionCatalogs()
	}
	for _, cat := range catalogs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.master.IsDataset(store.Join(cat, "ra")) {
			p.skip("region_catalog", "catalog not found, no regions assigned", logging.Dataset(cat))
			continue
		}
		ra, dec, err := readPositions(p.master, cat)
		if err != nil {
			return err
		}
		labels, err := assigner.Assign(ra, dec)
		if err != nil {
			return err
		}
		if err := p.master.CreateOrReplace(store.Join("regions", cat, "region"), table.Int64s(labels)); err != nil {
			return err
		}
		p.logger.Debug("regions assigned", logging.Dataset(cat), logging.Rows(len(labels)))
	}

	if err := centers.Save(p.master, regionCentersGroup); err != nil {
		return err
	}
	if err := centers.SaveCount(p.master, store.Join(regionCentersGroup, "number")); err != nil {
		return err
	}
	p.logger.Info("regions assigned", logging.Count(centers.Len()), logging.Int("catalogs", len(catalogs)))
	return nil
}

// regionCatalogs lists the catalogs labelled when none are configured.
func (p *Pipeline) regionCatalogs() []string {
	cats := []string{p.cfg.Gold.Link, p.shapeCompanion().Link}
	if cb := p.cfg.Clusters.Combined; cb != nil {
		cats = append(cats, store.Join("catalog/redmagic", cb.Label))
	}
	for _, s := range p.cfg.Clusters.Redmapper {
		cats = append(cats, store.Join("catalog/redmapper", s.Name))
	}
	if cb := p.cfg.Clusters.Combined; cb != nil {
		cats = append(cats, store.Join("randoms/redmagic", cb.Label))
	}
	for _, s := range p.cfg.Clusters.Redmapper {
		cats = append(cats, store.Join("randoms/redmapper", s.Name))
	}
	return append(cats, maglimRandoms)
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/dd0wney/skyfactory/pkg/combine"
	"github.com/dd0wney/skyfactory/pkg/footprint"
	"github.com/dd0wney/skyfactory/pkg/healpix"
	"github.com/dd0wney/skyfactory/pkg/index"
	"github.com/dd0wney/skyfactory/pkg/logging"
	"github.com/dd0wney/skyfactory/pkg/store"
	"github.com/dd0wney/skyfactory/pkg/table"
)

// Column names of the redMaGiC catalogs and randoms after normalization.
const (
	redmagicZ      = "zredmagic"
	redmagicZlum   = "zlum"
	redmagicRandZ  = "z"
	objectIDColumn = "coadd_object_id"
)

// ingestClusters copies the redMaGiC and redMaPPer catalogs, masks and
// randoms from the source store into the cluster store, rows sorted by
// pixel and masks converted to nest ordering.
func (p *Pipeline) ingestClusters(ctx context.Context) error {
	cc := p.cfg.Clusters
	src, err := p.openStore(cc.Source, true)
	if err != nil {
		return err
	}
	defer src.Close()
	rm, err := p.openStore(cc.Store, false)
	if err != nil {
		return err
	}
	defer rm.Close()

	ordering, err := healpix.ParseOrdering(cc.MaskOrdering)
	if err != nil {
		return err
	}

	for _, s := range cc.Redmagic {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.ingestCatalog(src, s.Catalog, rm, store.Join("catalog/redmagic", s.Name)); err != nil {
			return fmt.Errorf("redmagic %s: %w", s.Name, err)
		}
		mask, err := footprint.Load(src, s.Mask, p.cfg.Pixelization.MaskNside, ordering)
		if err != nil {
			return fmt.Errorf("redmagic %s mask: %w", s.Name, err)
		}
		if err := mask.Save(rm, store.Join("masks/redmagic", s.Name)); err != nil {
			return err
		}
		p.metrics.SetMaskPixels(s.Name, mask.Len())
		if err := p.ingestCatalog(src, s.Randoms, rm, store.Join("randoms/redmagic", s.Name)); err != nil {
			return fmt.Errorf("redmagic %s randoms: %w", s.Name, err)
		}
	}

	for _, s := range cc.Redmapper {
		if err := p.ingestCatalog(src, s.Catalog, rm, store.Join("catalog/redmapper", s.Name)); err != nil {
			return fmt.Errorf("redmapper %s: %w", s.Name, err)
		}
		if s.Randoms == "" {
			continue
		}
		err := p.ingestCatalog(src, s.Randoms, rm, store.Join("randoms/redmapper", s.Name))
		if store.IsNotFound(err) {
			p.skip("redmapper_randoms", "redmapper randoms do not exist", logging.Sample(s.Name))
			continue
		}
		if err != nil {
			return fmt.Errorf("redmapper %s randoms: %w", s.Name, err)
		}
	}
	return nil
}

// ingestCatalog normalizes column names, sorts rows by pixel and replaces dst.
func (p *Pipeline) ingestCatalog(src *store.Store, group string, dst *store.Store, out string) error {
	t, err := src.ReadTable(group)
	if err != nil {
		return err
	}
	if err := t.NormalizeNames(p.cfg.Clusters.Renames); err != nil {
		return err
	}
	sorted, err := sortByPixel(t, p.cfg.Pixelization.SortNside)
	if err != nil {
		return err
	}
	if err := replaceGroup(dst, out, sorted); err != nil {
		return err
	}
	p.logger.Info("catalog ingested", logging.Dataset(out), logging.Rows(sorted.Len()))
	return nil
}

// combineRedmagic merges the binned redMaGiC samples into the combined
// sample, its depth mask and its randoms.
func (p *Pipeline) combineRedmagic(ctx context.Context) error {
	cb := p.cfg.Clusters.Combined
	if cb == nil {
		p.logger.Info("no combined sample configured")
		return errSkipped
	}
	rm, err := p.openStore(p.cfg.Clusters.Store, false)
	if err != nil {
		return err
	}
	defer rm.Close()
	maskNside := p.cfg.Pixelization.MaskNside

	masks := make([]*footprint.Mask, len(cb.Bins))
	cuts := make([]float64, len(cb.Bins))
	samples := make([]combine.Sample, len(cb.Bins))
	for i, b := range cb.Bins {
		if masks[i], err = footprint.Load(rm, store.Join("masks/redmagic", b.Sample), maskNside, healpix.Nest); err != nil {
			return err
		}
		cuts[i] = b.Hi
		t, err := rm.ReadTable(store.Join("catalog/redmagic", b.Sample))
		if err != nil {
			return err
		}
		samples[i] = combine.Sample{Name: b.Sample, Table: t, Lo: b.Lo, Hi: b.Hi}
	}

	mask, err := combine.CombineFootprintMasks(masks, cuts, cb.Fracgood, combine.DefaultMaskAttrs)
	if err != nil {
		return err
	}
	if err := mask.Save(rm, store.Join("masks/redmagic", cb.Label)); err != nil {
		return err
	}
	p.metrics.SetMaskPixels(cb.Label, mask.Len())
	p.logger.Info("combined mask built", logging.Sample(cb.Label), logging.Count(mask.Len()), logging.Nside(maskNside))

	if err := ctx.Err(); err != nil {
		return err
	}
	all, keep, stats, err := combine.CombineBinnedSamples(samples, redmagicZ, objectIDColumn)
	if err != nil {
		return err
	}
	inMask, err := p.inMask(all, mask)
	if err != nil {
		return err
	}
	zlum, err := all.Float64(redmagicZlum)
	if err != nil {
		return err
	}
	bright := make([]bool, len(zlum))
	for i, z := range zlum {
		bright[i] = z < cb.Zlum
	}
	final, err := index.And(keep, inMask, bright)
	if err != nil {
		return err
	}
	cat, err := all.Filter(final)
	if err != nil {
		return err
	}
	if cat, err = sortByPixel(cat, p.cfg.Pixelization.SortNside); err != nil {
		return err
	}
	if err := replaceGroup(rm, store.Join("catalog/redmagic", cb.Label), cat); err != nil {
		return err
	}
	p.metrics.RecordDuplicates(cb.Label, stats.Duplicates)
	p.logger.Info("combined sample built", logging.Sample(cb.Label),
		logging.Int("input", stats.Input), logging.Int("in_range", stats.InRange),
		logging.Int("duplicates", stats.Duplicates), logging.Rows(cat.Len()))

	return p.combineRandoms(rm, cb.Label, mask)
}

func (p *Pipeline) combineRandoms(rm *store.Store, label string, mask *footprint.Mask) error {
	cb := p.cfg.Clusters.Combined
	parts := make([]*table.Table, 0, len(cb.Bins))
	for _, b := range cb.Bins {
		t, err := rm.ReadTable(store.Join("randoms/redmagic", b.Sample))
		if err != nil {
			return err
		}
		if t, err = combine.FilterRange(t, redmagicRandZ, b.Lo, b.Hi); err != nil {
			return err
		}
		parts = append(parts, t)
	}
	all, err := table.Concat(parts...)
	if err != nil {
		return err
	}
	inMask, err := p.inMask(all, mask)
	if err != nil {
		return err
	}
	ran, err := all.Filter(inMask)
	if err != nil {
		return err
	}
	if ran, err = sortByPixel(ran, p.cfg.Pixelization.SortNside); err != nil {
		return err
	}
	p.logger.Info("combined randoms built", logging.Sample(label), logging.Rows(ran.Len()))
	return replaceGroup(rm, store.Join("randoms/redmagic", label), ran)
}

// inMask tests the positions of t against a mask.
func (p *Pipeline) inMask(t *table.Table, mask *footprint.Mask) ([]bool, error) {
	pix, err := pixelsOf(t, mask.Nside())
	if err != nil {
		return nil, err
	}
	return index.InMask(pix, mask.Nside(), mask)
}

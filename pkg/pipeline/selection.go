package pipeline

import (
	"math"
	"strings"

	"github.com/dd0wney/skyfactory/pkg/footprint"
	"github.com/dd0wney/skyfactory/pkg/healpix"
	"github.com/dd0wney/skyfactory/pkg/index"
	"github.com/dd0wney/skyfactory/pkg/logging"
	"github.com/dd0wney/skyfactory/pkg/sortmerge"
	"github.com/dd0wney/skyfactory/pkg/store"
	"github.com/dd0wney/skyfactory/pkg/table"
)

// floatColumns reads several float datasets at once.
func (p *Pipeline) floatColumns(paths ...string) ([][]float64, error) {
	out := make([][]float64, len(paths))
	for i, path := range paths {
		c, err := p.master.ReadFloat64(path)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// psfPerObject looks up the PSF size map at every gold object's pixel.
func (p *Pipeline) psfPerObject(goldPix []int64) ([]float64, error) {
	sc := p.cfg.Selection.Shape
	keys, err := p.master.ReadInt64(sc.PSFPixels)
	if err != nil {
		return nil, err
	}
	values, err := p.master.ReadFloat64(sc.PSFSize)
	if err != nil {
		return nil, err
	}
	if !sortmerge.IsSorted(keys) {
		perm := sortmerge.ArgSort(keys)
		keys = keys.Gather(perm).(table.Int64s)
		values = values.Gather(perm).(table.Float64s)
	}
	px := p.cfg.Pixelization
	coarse, err := healpix.CoarsenAll(goldPix, px.SortNside, px.MaskNside)
	if err != nil {
		return nil, err
	}
	return index.LookupSorted(keys, values, coarse)
}

// shapeSelection writes index/select, the default weak-lensing source
// sample: resolved objects with sane ellipticities, good photometry, a
// redshift dependent magnitude limit and a position inside the joint mask.
func (p *Pipeline) shapeSelection(gv *goldView) error {
	sc := p.cfg.Selection.Shape
	g := p.cfg.Gold.Link
	shape := p.shapeCompanion().Link

	psf, err := p.psfPerObject(gv.pix)
	if err != nil {
		return err
	}
	cols, err := p.floatColumns(
		store.Join(shape, "size"),
		store.Join(shape, "e1"),
		store.Join(shape, "e2"),
		store.Join(g, "mag_err_r"),
		store.Join(g, "mag_err_i"),
		store.Join(g, "mag_err_z"),
		store.Join(g, "mag_i"),
		sc.Redshift,
	)
	if err != nil {
		return err
	}
	size, e1, e2 := cols[0], cols[1], cols[2]
	errR, errI, errZ, magI, z := cols[3], cols[4], cols[5], cols[6], cols[7]

	n := len(gv.ids)
	keep := make([]bool, n)
	x := sc.XOpt
	for i := range keep {
		keep[i] = math.Sqrt(size[i]*size[i]+psf[i]*psf[i]) > x[2]*psf[i] &&
			math.Abs(e1[i]) < 1 && math.Abs(e2[i]) < 1 &&
			errR[i] < sc.MaxMagErr && errI[i] < sc.MaxMagErr && errZ[i] < sc.MaxMagErr &&
			magI[i] < x[0]+x[1]*z[i]
	}
	sel, err := index.BuildPredicateSelection(keep, gv.inMask)
	if err != nil {
		return err
	}
	return p.writeSelection(shapeSelectPath, "shape", sel)
}

// includeDNF places the DNF photo-z catalog into gold order by ID. Gold
// objects without a DNF row keep zeros.
func (p *Pipeline) includeDNF(gv *goldView) error {
	dc := p.cfg.DNF
	if dc == nil {
		return nil
	}
	src, err := p.openStore(dc.Store, true)
	if err != nil {
		return err
	}
	defer src.Close()
	t, err := src.ReadTable(dc.Group)
	if err != nil {
		return err
	}
	ids, err := t.Int64(dc.IDColumn)
	if err != nil {
		return err
	}
	match, err := index.BuildMatchIndex(gv.ids, gv.sorter, ids)
	if err != nil {
		return err
	}

	n := len(gv.ids)
	out := table.New()
	for _, name := range t.Names() {
		c, _ := t.Column(name)
		var placed table.Column
		switch col := c.(type) {
		case table.Int64s:
			v, err := index.Scatter(n, match, []int64(col))
			if err != nil {
				return err
			}
			placed = table.Int64s(v)
		default:
			v, err := index.Scatter(n, match, []float64(table.Float64sFrom(c)))
			if err != nil {
				return err
			}
			placed = table.Float64s(v)
		}
		key := strings.ToLower(name)
		if name == dc.IDColumn {
			key = objectIDColumn
		}
		if err := out.Set(key, placed); err != nil {
			return err
		}
	}
	if err := replaceGroup(p.master, dnfGroup, out); err != nil {
		return err
	}
	p.logger.Info("dnf placed in gold order", logging.Dataset(dnfGroup), logging.Rows(ids.Len()))
	return nil
}

// maglimSelection writes index/maglim/select, the magnitude-limited lens
// sample.
func (p *Pipeline) maglimSelection(gv *goldView) (index.Selection, error) {
	mc := p.cfg.Selection.Maglim
	g := p.cfg.Gold.Link
	cols, err := p.floatColumns(store.Join(g, "mag_i"), store.Join(g, "mag_err_i"), mc.Redshift)
	if err != nil {
		return nil, err
	}
	magI, errI, z := cols[0], cols[1], cols[2]

	keep := make([]bool, len(gv.ids))
	x := mc.XOpt
	for i := range keep {
		keep[i] = magI[i] < x[0]*z[i]+x[1] && z[i] > 0 &&
			magI[i] > mc.MagMin && magI[i] < mc.MagMax &&
			errI[i] < mc.MaxMagErr
	}
	sel, err := index.BuildPredicateSelection(keep, gv.inMask)
	if err != nil {
		return nil, err
	}
	if err := p.writeSelection(maglimSelectPath, "maglim", sel); err != nil {
		return nil, err
	}
	return sel, nil
}

// maglimRandoms builds the maglim footprint from the depth map, limited to
// the faintest selected object below zmean_max, and draws the maglim
// randoms over it into the cluster store.
func (p *Pipeline) maglimRandoms(sel index.Selection) error {
	rc := p.cfg.MaglimRandoms
	cols, err := p.floatColumns(store.Join(p.cfg.Gold.Link, "mag_i"), rc.Zmean, rc.Redshift)
	if err != nil {
		return err
	}
	magI, zmean, z := cols[0], cols[1], cols[2]

	limit := math.Inf(-1)
	zsrc := make([]float64, len(sel))
	for k, r := range sel {
		if zmean[r] < rc.ZmeanMax {
			limit = math.Max(limit, magI[r])
		}
		zsrc[k] = z[r]
	}
	if math.IsInf(limit, -1) {
		p.skip("maglim_randoms", "no maglim objects below zmean_max, skipping maglim randoms",
			logging.Float64("zmean_max", rc.ZmeanMax))
		return nil
	}

	depthPix, err := p.master.ReadInt64(rc.DepthPixels)
	if err != nil {
		return err
	}
	depth, err := p.master.ReadFloat64(rc.Depth)
	if err != nil {
		return err
	}
	shallow := make([]bool, len(depth))
	for i, d := range depth {
		shallow[i] = d < limit
	}
	maskNside := p.cfg.Pixelization.MaskNside
	mask, err := footprint.New(maskNside, table.Compress(depthPix, shallow), nil)
	if err != nil {
		return err
	}
	if err := mask.Save(p.master, maglimMaskGroup); err != nil {
		return err
	}
	p.metrics.SetMaskPixels("maglim", mask.Len())
	if mask.Len() == 0 {
		p.skip("maglim_randoms", "maglim footprint is empty, skipping maglim randoms", logging.Float64("mag_i_max", limit))
		return nil
	}

	count := len(sel) * rc.Multiplier
	cat, err := p.rng.Catalog(mask, count, zsrc, p.cfg.Pixelization.SortNside)
	if err != nil {
		return err
	}
	if err := p.master.Link(maglimRandoms, p.cfg.Clusters.Store, maglimRandoms); err != nil {
		return err
	}
	if err := p.master.WriteTable(maglimRandoms, cat); err != nil {
		return err
	}
	p.metrics.RecordRandoms("maglim", count)
	p.logger.Info("maglim randoms generated", logging.Rows(count),
		logging.Float64("mag_i_max", limit), logging.Count(mask.Len()))
	return nil
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/dd0wney/skyfactory/pkg/config"
	"github.com/dd0wney/skyfactory/pkg/footprint"
	"github.com/dd0wney/skyfactory/pkg/healpix"
	"github.com/dd0wney/skyfactory/pkg/index"
	"github.com/dd0wney/skyfactory/pkg/logging"
	"github.com/dd0wney/skyfactory/pkg/sortmerge"
	"github.com/dd0wney/skyfactory/pkg/store"
	"github.com/dd0wney/skyfactory/pkg/table"
)

// Cluster store groups linked into the archive under the same path.
var clusterGroups = []string{
	"catalog/redmagic",
	"catalog/redmapper",
	"randoms/redmagic",
	"randoms/redmapper",
	"masks/redmagic",
}

// Position columns of the shape catalog served from gold.
var shapePositionColumns = []string{"ra", "dec", "tra", "tdec"}

const (
	jointMaskGroup   = "index/mask"
	shapeSelectPath  = "index/select"
	maglimSelectPath = "index/maglim/select"
	maglimMaskGroup  = "masks/maglim"
	maglimRandoms    = "randoms/maglim"
	dnfGroup         = "catalog/dnf/unsheared"
)

// goldView holds the gold columns every index is built from.
type goldView struct {
	ids    []int64
	sorter []int64
	pix    []int64 // nest pixels at sort_nside
	inMask []bool  // inside the joint mask
}

// buildMaster wires the archive together: links to every source, the gold
// level indices, the joint mask, the redMaGiC indices and the derived
// object selections.
func (p *Pipeline) buildMaster(ctx context.Context) error {
	if err := p.linkSources(); err != nil {
		return err
	}
	gv, err := p.goldIndices()
	if err != nil {
		return err
	}
	joint, err := p.jointMask()
	if err != nil {
		return err
	}
	if gv.inMask, err = index.InMask(gv.pix, p.cfg.Pixelization.SortNside, joint); err != nil {
		return err
	}
	if err := p.redmagicIndices(gv, joint); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.shapeSelection(gv); err != nil {
		return fmt.Errorf("shape selection: %w", err)
	}
	if err := p.includeDNF(gv); err != nil {
		return fmt.Errorf("dnf: %w", err)
	}
	sel, err := p.maglimSelection(gv)
	if err != nil {
		return fmt.Errorf("maglim selection: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.maglimRandoms(sel)
}

// shapeCompanion returns the single shape catalog; validation guarantees it.
func (p *Pipeline) shapeCompanion() config.Companion {
	for _, c := range p.cfg.Companions {
		if c.Kind == config.KindShape {
			return c
		}
	}
	return config.Companion{}
}

func (p *Pipeline) linkSources() error {
	g := p.cfg.Gold

	shape := p.shapeCompanion()
	for _, col := range shapePositionColumns {
		if !p.master.IsDataset(store.Join(g.Link, col)) {
			continue
		}
		if err := p.master.Link(store.Join(shape.Link, col), g.Store, store.Join(g.Group, col)); err != nil {
			return err
		}
	}

	if err := p.master.Link(g.MaskGroup, g.Store, g.MaskGroup); err != nil {
		return err
	}
	if m := p.cfg.Maps; m.Link != "" {
		if err := p.master.Link(m.Link, m.Store, m.Group); err != nil {
			return err
		}
	}

	rm, err := p.openStore(p.cfg.Clusters.Store, true)
	if store.IsNotFound(err) {
		p.skip("clusters", "cluster store does not exist", logging.Path(p.cfg.Clusters.Store))
		return nil
	}
	if err != nil {
		return err
	}
	present := make([]string, 0, len(clusterGroups))
	for _, group := range clusterGroups {
		if rm.Exists(group) {
			present = append(present, group)
		}
	}
	if err := rm.Close(); err != nil {
		return err
	}
	for _, group := range present {
		if err := p.master.Link(group, p.cfg.Clusters.Store, group); err != nil {
			return err
		}
	}
	p.logger.Info("sources linked", logging.Count(len(p.master.Links())))
	return nil
}

// goldIndices writes the gold ID index and the identity indices of every
// catalog already in gold order.
func (p *Pipeline) goldIndices() (*goldView, error) {
	g := p.cfg.Gold
	ids, err := p.master.ReadInt64(store.Join(g.Link, g.IDColumn))
	if err != nil {
		return nil, err
	}
	pix, err := p.master.ReadInt64(store.Join(g.Link, g.PixelColumn))
	if err != nil {
		return nil, err
	}
	if err := p.master.CreateOrReplace(store.Join("index", objectIDColumn), ids); err != nil {
		return nil, err
	}

	all := table.Int64s(index.Arange(len(ids)))
	if err := p.writeSelection("index/gold/select", "gold", all); err != nil {
		return nil, err
	}
	for _, c := range p.cfg.Companions {
		if err := p.master.CreateOrReplace(store.Join("index", c.Name, "match_gold"), all); err != nil {
			return nil, err
		}
		if c.Kind != config.KindPhotoZ {
			continue
		}
		if err := p.writeSelection(store.Join("index", c.Name, "select"), c.Name, all); err != nil {
			return nil, err
		}
	}
	return &goldView{ids: ids, sorter: sortmerge.ArgSort(ids), pix: pix}, nil
}

// jointMask intersects the combined redMaGiC mask with the gold mask and
// writes it under index/mask. Without a combined sample the gold mask is
// used alone.
func (p *Pipeline) jointMask() (*footprint.Mask, error) {
	maskNside := p.cfg.Pixelization.MaskNside
	gold, err := footprint.Load(p.master, p.cfg.Gold.MaskGroup, maskNside, healpix.Nest)
	if err != nil {
		return nil, err
	}
	joint := gold
	if cb := p.cfg.Clusters.Combined; cb != nil {
		group := store.Join("masks/redmagic", cb.Label)
		if p.master.Exists(group) {
			combined, err := footprint.Load(p.master, group, maskNside, healpix.Nest)
			if err != nil {
				return nil, err
			}
			if joint, err = combined.IntersectWith(gold); err != nil {
				return nil, err
			}
		} else {
			p.skip("combined_mask", "combined mask missing, joint mask is the gold mask", logging.Dataset(group))
		}
	}
	if err := joint.Save(p.master, jointMaskGroup); err != nil {
		return nil, err
	}
	p.metrics.SetMaskPixels("joint", joint.Len())
	p.logger.Info("joint mask built", logging.Count(joint.Len()), logging.Nside(maskNside))
	return joint, nil
}

// redmagicIndices maps every redMaGiC sample onto gold and selects the
// objects and randoms inside the joint mask.
func (p *Pipeline) redmagicIndices(gv *goldView, joint *footprint.Mask) error {
	if p.master.Exists("catalog/redmagic") {
		samples, err := p.master.List("catalog/redmagic")
		if err != nil {
			return err
		}
		for _, t := range samples {
			if err := p.redmagicSample(gv, t, joint); err != nil {
				return fmt.Errorf("redmagic %s: %w", t, err)
			}
		}
	}
	if !p.master.Exists("randoms/redmagic") {
		return nil
	}
	samples, err := p.master.List("randoms/redmagic")
	if err != nil {
		return err
	}
	for _, t := range samples {
		sel, err := p.maskedSelection(store.Join("randoms/redmagic", t), joint)
		if err != nil {
			return fmt.Errorf("redmagic %s randoms: %w", t, err)
		}
		if err := p.writeSelection(store.Join("index/redmagic", t, "random_select"), "redmagic/"+t+"/randoms", sel); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) redmagicSample(gv *goldView, t string, joint *footprint.Mask) error {
	cat := store.Join("catalog/redmagic", t)
	ids, err := p.master.ReadInt64(store.Join(cat, objectIDColumn))
	if err != nil {
		return err
	}
	match, err := index.BuildMatchIndex(gv.ids, gv.sorter, ids)
	if err != nil {
		return err
	}
	if p.cfg.VerifyMatches {
		bad, err := index.VerifyMatchIndex(gv.ids, match, ids)
		if err != nil {
			return err
		}
		if bad > 0 {
			p.logger.Warn("redmagic objects missing from gold", logging.Sample(t), logging.Count(bad))
		}
	}
	if err := p.master.CreateOrReplace(store.Join("index/redmagic", t, "match_gold"), table.Int64s(match)); err != nil {
		return err
	}

	sel, err := p.maskedSelection(cat, joint)
	if err != nil {
		return err
	}
	return p.writeSelection(store.Join("index/redmagic", t, "select"), "redmagic/"+t, sel)
}

// maskedSelection selects the rows of group whose position lies in mask.
func (p *Pipeline) maskedSelection(group string, mask *footprint.Mask) (index.Selection, error) {
	ra, dec, err := readPositions(p.master, group)
	if err != nil {
		return nil, err
	}
	nside := p.cfg.Pixelization.SortNside
	pix, err := healpix.Pixelize(ra, dec, nside, healpix.Nest)
	if err != nil {
		return nil, err
	}
	return index.BuildMaskedMembership(pix, nside, mask)
}

// writeSelection stores a selection and publishes its size.
func (p *Pipeline) writeSelection(path, name string, sel []int64) error {
	if sel == nil {
		sel = []int64{}
	}
	if err := p.master.CreateOrReplace(path, table.Int64s(sel)); err != nil {
		return err
	}
	p.metrics.SetSelectionSize(name, len(sel))
	p.logger.Info("selection written", logging.Dataset(path), logging.Rows(len(sel)))
	return nil
}

package config

import (
	"fmt"

	"github.com/dd0wney/skyfactory/pkg/validation"
)

// Validate checks struct tags first, then the rules that span fields.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	v := validation.NewConfigValidator("skyfactory").
		NsideAtMost("pixelization.mask_nside", c.Pixelization.MaskNside, c.Pixelization.SortNside).
		Required("gold.footprint_map.store", c.Gold.Footprint.Store).
		Required("gold.footprint_map.group", c.Gold.Footprint.Group)

	shapes := 0
	names := make(map[string]bool)
	for i, comp := range c.Companions {
		if names[comp.Name] {
			v.Custom(fmt.Sprintf("companions[%d].name", i), func() error {
				return fmt.Errorf("duplicate companion %q", comp.Name)
			})
		}
		names[comp.Name] = true
		if comp.Kind == KindShape {
			shapes++
		}
	}
	v.Custom("companions", func() error {
		if shapes != 1 {
			return fmt.Errorf("need exactly one shape companion, got %d", shapes)
		}
		return nil
	})

	if cb := c.Clusters.Combined; cb != nil {
		samples := make(map[string]bool, len(c.Clusters.Redmagic))
		for _, s := range c.Clusters.Redmagic {
			samples[s.Name] = true
		}
		for i, b := range cb.Bins {
			field := fmt.Sprintf("clusters.combined.bins[%d]", i)
			v.Ascending(field, []float64{b.Lo, b.Hi})
			v.When(!samples[b.Sample], func(cv *validation.ConfigValidator) {
				cv.Custom(field, func() error {
					return fmt.Errorf("unknown redmagic sample %q", b.Sample)
				})
			})
		}
	}

	sn := c.ShapeNoise
	v.When(len(sn.ZBins) > 0 || len(sn.SigmaEData) > 0, func(cv *validation.ConfigValidator) {
		cv.Ascending("shape_noise.zbins", sn.ZBins).
			SameLength("shape_noise.sigma_e_data", len(sn.SigmaEData), len(sn.ZBins), -1)
		for i, s := range sn.SigmaEData {
			cv.NonNegativeFloat(fmt.Sprintf("shape_noise.sigma_e_data[%d]", i), s)
		}
	})

	v.When(c.Regions.Centers != "", func(cv *validation.ConfigValidator) {
		cv.Required("regions.group", c.Regions.Group)
	})

	return v.Validate()
}

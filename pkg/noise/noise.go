// Package noise matches the shape noise of a simulated shear catalog to the
// per-bin ellipticity dispersion measured in data.
package noise

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/dd0wney/skyfactory/pkg/index"
	"github.com/dd0wney/skyfactory/pkg/logging"
	"github.com/dd0wney/skyfactory/pkg/randoms"
	"github.com/dd0wney/skyfactory/pkg/table"
	"github.com/dd0wney/skyfactory/pkg/validation"
)

// Input holds full-length columns of the shape catalog and its photo-z
// companion, aligned row by row.
type Input struct {
	E1, E2 []float64
	Zmean  []float64
	Select index.Selection
}

// Bin reports what was done in one redshift bin.
type Bin struct {
	Lo, Hi  float64
	Objects int
	SigmaE  float64 // measured std of e1
	Added   float64 // std of the added Gaussian noise
}

// Result holds the matched ellipticities; unselected rows are zero.
type Result struct {
	E1, E2 []float64
	Bins   []Bin
}

// MatchShapeNoise adds Gaussian noise to e1 and e2 of the selected objects
// in every bin zbins[i] < zmean < zbins[i+1] so their dispersion reaches
// sigmaTarget[i]. A target below the measured dispersion adds nothing.
func MatchShapeNoise(in Input, zbins, sigmaTarget []float64, gen *randoms.Generator, logger logging.Logger) (*Result, error) {
	n := len(in.E1)
	if len(in.E2) != n || len(in.Zmean) != n {
		return nil, fmt.Errorf("e1 %d, e2 %d, zmean %d rows: %w", n, len(in.E2), len(in.Zmean), table.ErrLengthMismatch)
	}
	v := validation.NewConfigValidator("shape noise").
		Ascending("zbins", zbins).
		SameLength("sigma_e_data", len(sigmaTarget), len(zbins), -1)
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	res := &Result{E1: make([]float64, n), E2: make([]float64, n)}
	for b := 0; b+1 < len(zbins); b++ {
		lo, hi := zbins[b], zbins[b+1]
		var rows []int64
		for _, r := range in.Select {
			if r < 0 || r >= int64(n) {
				return nil, fmt.Errorf("selected row %d outside [0, %d)", r, n)
			}
			if z := in.Zmean[r]; lo < z && z < hi {
				rows = append(rows, r)
			}
		}

		sigma := std(in.E1, rows)
		add := sigmaTarget[b]*sigmaTarget[b] - sigma*sigma
		ds := 0.0
		if add > 0 {
			ds = math.Sqrt(add)
		} else if len(rows) > 0 {
			logger.Warn("target shape noise below measured dispersion, adding none",
				logging.Component("noise"),
				logging.Float64("z_lo", lo), logging.Float64("z_hi", hi),
				logging.Float64("sigma_e", sigma), logging.Float64("target", sigmaTarget[b]))
		}

		d1 := gen.Normal(len(rows))
		d2 := gen.Normal(len(rows))
		for k, r := range rows {
			res.E1[r] = in.E1[r] + ds*d1[k]
			res.E2[r] = in.E2[r] + ds*d2[k]
		}
		res.Bins = append(res.Bins, Bin{Lo: lo, Hi: hi, Objects: len(rows), SigmaE: sigma, Added: ds})
		logger.Debug("shape noise bin matched",
			logging.Component("noise"), logging.Count(len(rows)),
			logging.Float64("sigma_e", sigma), logging.Float64("added", ds))
	}
	return res, nil
}

// std is the population standard deviation of x over rows; 0 when empty.
func std(x []float64, rows []int64) float64 {
	if len(rows) == 0 {
		return 0
	}
	return stat.PopStdDev(table.Gather(x, rows), nil)
}

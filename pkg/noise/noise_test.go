package noise

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/skyfactory/pkg/index"
	"github.com/dd0wney/skyfactory/pkg/logging"
	"github.com/dd0wney/skyfactory/pkg/randoms"
)

func TestMatchShapeNoiseReachesTarget(t *testing.T) {
	const n = 200_000
	gen := randoms.NewGenerator(5, nil)
	src := randoms.NewGenerator(6, nil)

	e1 := src.Normal(n)
	e2 := src.Normal(n)
	zmean := make([]float64, n)
	for i := range e1 {
		e1[i] *= 0.2
		e2[i] *= 0.2
		zmean[i] = 0.1 + 0.8*float64(i%2)
	}

	res, err := MatchShapeNoise(Input{E1: e1, E2: e2, Zmean: zmean, Select: index.Arange(n)},
		[]float64{0, 0.5, 1}, []float64{0.3, 0.25}, gen, nil)
	require.NoError(t, err)
	require.Len(t, res.Bins, 2)

	assert.Equal(t, n/2, res.Bins[0].Objects)
	assert.InDelta(t, 0.2, res.Bins[0].SigmaE, 0.005)
	assert.InDelta(t, math.Sqrt(0.3*0.3-res.Bins[0].SigmaE*res.Bins[0].SigmaE), res.Bins[0].Added, 1e-12)

	low := make([]int64, 0, n/2)
	for i := 0; i < n; i += 2 {
		low = append(low, int64(i))
	}
	assert.InDelta(t, 0.3, std(res.E1, low), 0.005)
	assert.InDelta(t, 0.3, std(res.E2, low), 0.005)
}

func TestMatchShapeNoiseUnselectedAndBelowTarget(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewJSONLogger(&buf, logging.WarnLevel)

	e1 := []float64{0.5, -0.5, 0.1, 0.3}
	e2 := []float64{0.2, 0.1, 0.4, 0.0}
	zmean := []float64{0.3, 0.3, 0.3, 0.5}

	res, err := MatchShapeNoise(Input{E1: e1, E2: e2, Zmean: zmean, Select: index.Selection{0, 1, 3}},
		[]float64{0.2, 0.4}, []float64{0.01}, randoms.NewGenerator(1, nil), logger)
	require.NoError(t, err)

	// Measured dispersion 0.5 exceeds the target, so values pass through.
	assert.Equal(t, []float64{0.5, -0.5, 0, 0}, res.E1)
	assert.Equal(t, []float64{0.2, 0.1, 0, 0}, res.E2)
	assert.Equal(t, 0.0, res.Bins[0].Added)
	assert.Contains(t, buf.String(), "target shape noise below measured dispersion")
}

func TestMatchShapeNoiseValidation(t *testing.T) {
	gen := randoms.NewGenerator(1, nil)
	in := Input{E1: []float64{0}, E2: []float64{0}, Zmean: []float64{0}}

	_, err := MatchShapeNoise(in, []float64{0.5, 0.2}, []float64{0.3}, gen, nil)
	assert.Error(t, err)
	_, err = MatchShapeNoise(in, []float64{0.2, 0.5}, []float64{0.3, 0.3}, gen, nil)
	assert.Error(t, err)

	in.E2 = nil
	_, err = MatchShapeNoise(in, []float64{0.2, 0.5}, []float64{0.3}, gen, nil)
	assert.Error(t, err)

	in.E2 = []float64{0}
	in.Select = index.Selection{4}
	_, err = MatchShapeNoise(in, []float64{0.2, 0.5}, []float64{0.3}, gen, nil)
	assert.Error(t, err)
}

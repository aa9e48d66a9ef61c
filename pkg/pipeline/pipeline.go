// Package pipeline runs the batch that turns the source catalogs into the
// master archive: ingest, combination, alignment, indexing and derived
// columns, one stage after another.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/skyfactory/pkg/config"
	"github.com/dd0wney/skyfactory/pkg/healpix"
	"github.com/dd0wney/skyfactory/pkg/logging"
	"github.com/dd0wney/skyfactory/pkg/metrics"
	"github.com/dd0wney/skyfactory/pkg/randoms"
	"github.com/dd0wney/skyfactory/pkg/sortmerge"
	"github.com/dd0wney/skyfactory/pkg/store"
	"github.com/dd0wney/skyfactory/pkg/table"
)

// errSkipped marks a stage that found its optional inputs missing.
var errSkipped = errors.New("stage skipped")

// Stage is one step of the run.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// StageResult is recorded in the run metadata.
type StageResult struct {
	Name     string        `yaml:"name"`
	Status   string        `yaml:"status"`
	Duration time.Duration `yaml:"duration"`
}

// RunInfo is written to meta/run.yaml in the archive.
type RunInfo struct {
	RunID    string        `yaml:"run_id"`
	Started  time.Time     `yaml:"started"`
	Finished time.Time     `yaml:"finished"`
	Seed     uint64        `yaml:"seed"`
	Stages   []StageResult `yaml:"stages"`
}

// Pipeline holds the configuration and the shared services of one run.
type Pipeline struct {
	cfg     *config.Config
	logger  logging.Logger
	metrics *metrics.Registry
	runID   string
	rng     *randoms.Generator
	codec   store.Codec
	master  *store.Store
}

// New prepares a run. A nil logger logs nothing; a nil registry records nothing.
func New(cfg *config.Config, logger logging.Logger, reg *metrics.Registry) (*Pipeline, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	codec, err := store.ParseCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger = logger.With(logging.RunID(runID))
	reg.SetRunID(runID)
	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		metrics: reg,
		runID:   runID,
		rng:     randoms.NewGenerator(cfg.Seed, logger),
		codec:   codec,
	}, nil
}

// RunID identifies this run in logs, metrics and the archive metadata.
func (p *Pipeline) RunID() string { return p.runID }

// Stages lists the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	return []Stage{
		{"clusters", p.ingestClusters},
		{"combined", p.combineRedmagic},
		{"footprint", p.buildGoldFootprint},
		{"align", p.alignCatalogs},
		{"master", p.buildMaster},
		{"shape_noise", p.matchShapeNoise},
		{"regions", p.assignRegions},
	}
}

// Run executes every stage, writes the run metadata and dumps metrics.
func (p *Pipeline) Run(ctx context.Context) error {
	info := RunInfo{RunID: p.runID, Started: time.Now().UTC(), Seed: p.rng.Seed()}

	master, err := p.openStore(p.cfg.Archive, false)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	p.master = master
	defer func() {
		master.Close()
		p.master = nil
	}()

	p.logger.Info("run started", logging.Path(p.cfg.Archive))
	runErr := p.runStages(ctx, &info)

	info.Finished = time.Now().UTC()
	if err := master.WriteMeta("run", &info); err != nil && runErr == nil {
		runErr = err
	}
	if p.cfg.MetricsFile != "" {
		if err := p.metrics.WriteTextfile(p.cfg.MetricsFile); err != nil {
			p.logger.Warn("failed to write metrics", logging.Path(p.cfg.MetricsFile), logging.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}
	p.logger.Info("run finished", logging.Latency(info.Finished.Sub(info.Started)))
	return nil
}

func (p *Pipeline) runStages(ctx context.Context, info *RunInfo) error {
	for _, s := range p.Stages() {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger := p.logger.With(logging.Stage(s.Name))
		timer := logging.StartTimer(logger, "stage")
		err := s.Run(ctx)

		status := "ok"
		var dur time.Duration
		switch {
		case errors.Is(err, errSkipped):
			status = "skipped"
			dur = timer.End(logging.String("status", status))
			err = nil
		case err != nil:
			status = "error"
			dur = timer.EndError(err)
		default:
			dur = timer.End()
		}
		p.metrics.RecordStage(s.Name, err, dur)
		info.Stages = append(info.Stages, StageResult{Name: s.Name, Status: status, Duration: dur})
		if err != nil {
			return fmt.Errorf("stage %s: %w", s.Name, err)
		}
	}
	return nil
}

func (p *Pipeline) openStore(dir string, readOnly bool) (*store.Store, error) {
	return store.Open(dir, store.Options{
		Codec:        p.codec,
		CacheColumns: p.cfg.CacheColumns,
		ReadOnly:     readOnly,
		Logger:       p.logger,
		Metrics:      p.metrics,
	})
}

// skip logs why a stage or an optional input was skipped.
func (p *Pipeline) skip(kind, msg string, fields ...logging.Field) {
	p.metrics.RecordMissingInput(kind)
	p.logger.Warn(msg, append(fields, logging.String("input", kind))...)
}

// replaceGroup writes t as the only content of group.
func replaceGroup(st *store.Store, group string, t *table.Table) error {
	if st.Exists(group) {
		if err := st.Delete(group); err != nil {
			return err
		}
	}
	return st.WriteTable(group, t)
}

// pixelsOf pixelizes the ra and dec columns of t in nest order.
func pixelsOf(t *table.Table, nside int64) ([]int64, error) {
	ra, err := t.Float64("ra")
	if err != nil {
		return nil, err
	}
	dec, err := t.Float64("dec")
	if err != nil {
		return nil, err
	}
	return healpix.Pixelize(ra, dec, nside, healpix.Nest)
}

// sortByPixel orders the rows of t by nest pixel at nside.
func sortByPixel(t *table.Table, nside int64) (*table.Table, error) {
	pix, err := pixelsOf(t, nside)
	if err != nil {
		return nil, err
	}
	return t.Gather(sortmerge.ArgSort(pix)), nil
}

// readPositions reads the ra and dec datasets under group.
func readPositions(st *store.Store, group string) (ra, dec []float64, err error) {
	if ra, err = st.ReadFloat64(store.Join(group, "ra")); err != nil {
		return nil, nil, err
	}
	if dec, err = st.ReadFloat64(store.Join(group, "dec")); err != nil {
		return nil, nil, err
	}
	return ra, dec, nil
}

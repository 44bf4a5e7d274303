// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package pipeline orchestrates the analysis: dataset discovery, per-run
design construction and first-level fitting, and second-level
aggregation over the per-run models.

Data flows strictly forward.  Runs are processed sequentially in
discovery order; each per-run stage returns its fitted model, and the
collected slice is the explicit input of the aggregation stage.  Any
failure aborts the whole invocation; no partial-result cleanup is
attempted.
*/
package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	"github.com/emer/etable/v2/etable"
	log "github.com/sirupsen/logrus"

	"github.com/emer/boldglm/bids"
	"github.com/emer/boldglm/design"
	"github.com/emer/boldglm/glm"
	"github.com/emer/boldglm/hrf"
	"github.com/emer/boldglm/nifti"
)

// Pipeline runs the full analysis for one dataset.
type Pipeline struct {
	// all invocation parameters
	Config *Config

	// hemodynamic response model used for convolution
	HRF hrf.Params

	// dataset index, built by Run
	Layout *bids.Layout

	// fitted first-level models, one per successfully processed run,
	// in processing order; input to the aggregation stage
	Models []*glm.FirstLevel

	// per-run summary statistics
	RunStats *etable.Table
}

// New returns a pipeline with the given config and default response
// model.
func New(cfg *Config) *Pipeline {
	pl := &Pipeline{Config: cfg}
	pl.HRF.Defaults()
	return pl
}

// Run executes discovery, the per-run first-level stage, and (unless
// disabled) the second-level aggregation.
func (pl *Pipeline) Run() error {
	cfg := pl.Config
	lay, err := bids.NewLayout(cfg.RawRoot)
	if err != nil {
		return err
	}
	if cfg.DerivRoot != "" {
		if err := lay.AddDerivatives(cfg.DerivRoot); err != nil {
			return err
		}
	}
	pl.Layout = lay
	pl.ConfigRunStats()

	fl := bids.Filters{Suffix: "bold", Task: cfg.Task, Ext: ".nii.gz"}
	if cfg.Space != "" {
		fl.Space = cfg.Space
	} else {
		fl.SpaceNone = true
	}
	bolds := lay.Get(fl)
	if len(bolds) == 0 {
		return fmt.Errorf("pipeline: no bold series for task %q under %s", cfg.Task, cfg.RawRoot)
	}
	log.WithFields(log.Fields{"task": cfg.Task, "runs": len(bolds)}).Info("dataset discovered")

	for _, bf := range bolds {
		m, err := pl.FitRun(bf)
		if err != nil {
			return err
		}
		pl.Models = append(pl.Models, m)
	}

	if !cfg.NoGroup {
		if err := pl.FitGroup(); err != nil {
			return err
		}
	}
	return pl.SaveRunStats()
}

// FitRun processes a single discovered BOLD series: builds its design
// matrix, fits the first-level model, and writes the per-contrast
// effect and variance maps.  The fitted model is returned for the
// aggregation stage.
func (pl *Pipeline) FitRun(bf *bids.File) (*glm.FirstLevel, error) {
	cfg := pl.Config
	sel := bf.RunID()
	clog := log.WithFields(log.Fields{"run": sel.String()})
	clog.Info("processing run")

	md, err := pl.Layout.Metadata(bf)
	if err != nil {
		return nil, err
	}

	// the original (non-derivative) series sizes the time grid; only
	// its header is read, no voxel data
	orig, err := pl.Layout.GetOne(bids.Filters{Suffix: "bold", Ext: ".nii.gz", DescNone: true, SpaceNone: true}.WithRun(sel))
	if err != nil {
		return nil, err
	}
	origImg, err := nifti.OpenHeader(orig.Path)
	if err != nil {
		return nil, err
	}
	scanLen := origImg.Duration()
	if scanLen <= 0 {
		return nil, fmt.Errorf("pipeline: %s has no temporal axis to size the time grid", orig.Path)
	}
	tr := md.RepetitionTime
	if tr <= 0 {
		tr = origImg.TR()
	}

	coll, err := pl.LoadCollection(sel, scanLen, tr)
	if err != nil {
		return nil, err
	}
	if md.StartTime != nil {
		// slice-timing correction shifted the effective time; subtract
		// before convolution
		coll = design.ShiftOnsets(coll, *md.StartTime)
	}
	coll, err = design.Factor(coll, "trial_type")
	if err != nil {
		return nil, err
	}
	coll, err = design.Convolve(coll, "trial_type.*", &pl.HRF)
	if err != nil {
		return nil, err
	}
	tbl, err := design.ToTable(coll)
	if err != nil {
		return nil, err
	}
	pats := append([]string{"trial_type.*"}, cfg.Confounds...)
	dmat, err := design.Matrix(tbl, pats...)
	if err != nil {
		return nil, err
	}
	dpath := filepath.Join(cfg.OutRoot, bids.DesignPath(sel))
	if err := design.SaveTSV(dmat, dpath); err != nil {
		return nil, err
	}
	clog.WithFields(log.Fields{"rows": dmat.Rows, "cols": len(dmat.ColNames), "path": dpath}).Info("design matrix built")

	img, err := nifti.Open(bf.Path)
	if err != nil {
		return nil, err
	}
	clog.WithFields(log.Fields{"size": datasize.ByteSize(img.SizeBytes()).HumanReadable()}).Info("bold series loaded")

	m := glm.NewFirstLevel(cfg.FWHM)
	if err := m.Fit(img, dmat); err != nil {
		return nil, fmt.Errorf("pipeline: run %s: %w", sel.String(), err)
	}
	clog.Info("first-level model fit")

	for _, expr := range cfg.Contrasts {
		ct, err := m.Contrast(expr)
		if err != nil {
			return nil, err
		}
		token := glm.ContrastToken(expr)
		if err := pl.writeMap(m.Ref, m.EffectMap(ct), sel, token, "effect"); err != nil {
			return nil, err
		}
		if err := pl.writeMap(m.Ref, m.VarianceMap(ct), sel, token, "variance"); err != nil {
			return nil, err
		}
	}
	pl.LogRun(sel, img, dmat, m)
	return m, nil
}

// FitGroup aggregates the collected first-level models and writes the
// group z-score and true-discovery-proportion map per contrast.  Group
// outputs carry no run-identifying entities.
func (pl *Pipeline) FitGroup() error {
	cfg := pl.Config
	sl := &glm.SecondLevel{}
	if err := sl.Fit(pl.Models); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	log.WithFields(log.Fields{"models": len(pl.Models)}).Info("second-level model fit")
	ref := pl.Models[0].Ref
	for _, expr := range cfg.Contrasts {
		z, err := sl.ZMap(expr)
		if err != nil {
			return err
		}
		token := glm.ContrastToken(expr)
		if err := pl.writeMap(ref, z, bids.RunID{}, token, "zscore"); err != nil {
			return err
		}
		tdp, err := glm.ClusterTDP(z, ref.Nx, ref.Ny, ref.Nz, cfg.ClusterThresholds, cfg.Alpha)
		if err != nil {
			return err
		}
		if err := pl.writeMap(ref, tdp, bids.RunID{}, token, "tdp"); err != nil {
			return err
		}
	}
	return nil
}

// LoadCollection assembles the run's variable collection: the raw event
// annotations plus the selected confound columns.
func (pl *Pipeline) LoadCollection(sel bids.RunID, scanLen, tr float64) (*design.Collection, error) {
	ev, err := pl.Layout.GetOne(bids.Filters{Suffix: "events", Ext: ".tsv"}.WithRun(sel))
	if err != nil {
		return nil, fmt.Errorf("pipeline: run %s has no event annotations: %w", sel.String(), err)
	}
	tt, err := design.ReadEvents(ev.Path)
	if err != nil {
		return nil, err
	}
	cf, err := pl.Layout.GetOne(bids.Filters{Suffix: "timeseries", Desc: "confounds", Ext: ".tsv"}.WithRun(sel))
	if err != nil {
		return nil, fmt.Errorf("pipeline: run %s has no confound timeseries: %w", sel.String(), err)
	}
	dvs, err := design.ReadConfounds(cf.Path, tr, pl.Config.Confounds...)
	if err != nil {
		return nil, err
	}
	return &design.Collection{
		Sparse:     []*design.SparseVar{tt},
		Dense:      dvs,
		TR:         tr,
		ScanLength: scanLen,
	}, nil
}

// writeMap writes one statistic map inheriting the reference geometry.
func (pl *Pipeline) writeMap(ref *nifti.Img, vals []float32, sel bids.RunID, token, stat string) error {
	img := nifti.NewMap(ref)
	if err := img.SetMap(vals); err != nil {
		return err
	}
	path := filepath.Join(pl.Config.OutRoot, bids.StatMapPath(sel, token, stat))
	return img.Save(path)
}

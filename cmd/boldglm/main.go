// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// boldglm fits first-level general linear models to each run of a
// BIDS-organized task fMRI dataset, writes the per-run design matrices
// and contrast maps, and aggregates the runs into group-level z-score
// and true-discovery-proportion maps.
package main

import (
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/emer/boldglm/pipeline"
)

func main() {
	cfg := &pipeline.Config{}
	cfg.Defaults()

	var fwhm float64
	flag.StringVar(&cfg.RawRoot, "raw", "sourcedata/raw", "raw BIDS dataset root")
	flag.StringVar(&cfg.DerivRoot, "deriv", "", "derivative root to index alongside the raw data (e.g. an fmriprep output tree)")
	flag.StringVar(&cfg.OutRoot, "out", cfg.OutRoot, "output root for design matrices and statistic maps")
	flag.StringVar(&cfg.Task, "task", cfg.Task, "task entity of the BOLD series to fit")
	flag.StringVar(&cfg.Space, "space", "", "space entity of the series to fit; empty selects files without a space entity")
	flag.Float64Var(&fwhm, "fwhm", float64(cfg.FWHM), "spatial smoothing kernel full width at half maximum in mm")
	flag.BoolVar(&cfg.NoGroup, "nogroup", false, "skip the second-level aggregation stage")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()
	cfg.FWHM = float32(fwhm)

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	pl := pipeline.New(cfg)
	if err := pl.Run(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package design

import (
	"fmt"
	"os"
	"path"

	"github.com/emer/etable/v2/etable"
)

// ReadEvents reads a BIDS _events.tsv file (onset, duration, trial_type
// columns) into a sparse categorical variable named trial_type.
func ReadEvents(fname string) (*SparseVar, error) {
	dt := &etable.Table{}
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("design: events: %w", err)
	}
	defer f.Close()
	if err := dt.ReadCSV(f, etable.Tab); err != nil {
		return nil, fmt.Errorf("design: events %s: %w", fname, err)
	}
	for _, nm := range []string{"onset", "duration", "trial_type"} {
		if dt.ColIdx(nm) < 0 {
			return nil, fmt.Errorf("design: events %s: missing column %q", fname, nm)
		}
	}
	sv := &SparseVar{Name: "trial_type"}
	for i := 0; i < dt.Rows; i++ {
		sv.Onsets = append(sv.Onsets, dt.CellFloat("onset", i))
		sv.Durations = append(sv.Durations, dt.CellFloat("duration", i))
		sv.Levels = append(sv.Levels, dt.CellString("trial_type", i))
	}
	if len(sv.Onsets) == 0 {
		return nil, fmt.Errorf("design: events %s: no events", fname)
	}
	return sv, nil
}

// ReadConfounds reads a confound timeseries TSV (one row per time
// point, e.g. an fmriprep desc-confounds file) and returns the columns
// matching the given patterns as dense variables sampled at 1/TR.
// Pattern order determines variable order; file column order is kept
// within a pattern.
func ReadConfounds(fname string, tr float64, patterns ...string) ([]*DenseVar, error) {
	dt := &etable.Table{}
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("design: confounds: %w", err)
	}
	defer f.Close()
	if err := dt.ReadCSV(f, etable.Tab); err != nil {
		return nil, fmt.Errorf("design: confounds %s: %w", fname, err)
	}
	if tr <= 0 {
		return nil, fmt.Errorf("design: confounds %s: repetition time %g must be positive", fname, tr)
	}
	var dvs []*DenseVar
	seen := map[string]bool{}
	for _, pat := range patterns {
		for _, nm := range dt.ColNames {
			if seen[nm] {
				continue
			}
			if ok, _ := path.Match(pat, nm); !ok {
				continue
			}
			seen[nm] = true
			dv := &DenseVar{Name: nm, Rate: 1 / tr}
			for i := 0; i < dt.Rows; i++ {
				dv.Values = append(dv.Values, dt.CellFloat(nm, i))
			}
			dvs = append(dvs, dv)
		}
	}
	if len(dvs) == 0 {
		return nil, fmt.Errorf("design: confounds %s: no columns match %v", fname, patterns)
	}
	return dvs, nil
}

// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package design

import (
	"fmt"
	"math"
	"path"
	"sort"

	"github.com/emer/boldglm/hrf"
)

// ShiftOnsets returns a copy of the collection with the given shift
// subtracted from every sparse variable's onsets.  Used when
// slice-timing correction moved the effective start time of the signal
// (the sidecar StartTime field); it must run before Convolve because
// convolution is time-sensitive.  A zero shift returns an identical
// collection.
func ShiftOnsets(c *Collection, shift float64) *Collection {
	cp := c.Clone()
	if shift == 0 {
		return cp
	}
	for _, sv := range cp.Sparse {
		for i := range sv.Onsets {
			sv.Onsets[i] -= shift
		}
	}
	return cp
}

// Factor expands the named categorical sparse variable into one
// indicator variable per distinct level, named <name>.<level>, with
// amplitude 1 at that level's events.  Levels are ordered
// alphabetically for determinism.  The original variable is replaced by
// the indicators, which keep its position in the collection order.
func Factor(c *Collection, name string) (*Collection, error) {
	cp := c.Clone()
	pos := -1
	var src *SparseVar
	for i, sv := range cp.Sparse {
		if sv.Name == name {
			pos, src = i, sv
			break
		}
	}
	if src == nil {
		return nil, fmt.Errorf("design: no sparse variable %q to factor", name)
	}
	if src.Levels == nil {
		return nil, fmt.Errorf("design: variable %q has no categorical levels", name)
	}
	byLevel := map[string]*SparseVar{}
	var levels []string
	for i, lv := range src.Levels {
		iv := byLevel[lv]
		if iv == nil {
			iv = &SparseVar{Name: name + "." + lv}
			byLevel[lv] = iv
			levels = append(levels, lv)
		}
		iv.Onsets = append(iv.Onsets, src.Onsets[i])
		iv.Durations = append(iv.Durations, src.Durations[i])
		iv.Amps = append(iv.Amps, 1)
	}
	sort.Strings(levels)
	reps := make([]*SparseVar, len(levels))
	for i, lv := range levels {
		reps[i] = byLevel[lv]
	}
	cp.Sparse = append(cp.Sparse[:pos], append(reps, cp.Sparse[pos+1:]...)...)
	return cp, nil
}

// Convolve convolves every sparse variable matching the pattern with
// the hemodynamic response, producing dense predicted-response
// regressors sampled at the microtime resolution (TR / hrf.Oversample).
// Matched sparse variables are consumed; the dense results are placed
// before any existing dense variables, preserving match order.
func Convolve(c *Collection, pattern string, hp *hrf.Params) (*Collection, error) {
	cp := c.Clone()
	if cp.TR <= 0 {
		return nil, fmt.Errorf("design: repetition time %g must be positive", cp.TR)
	}
	os := hp.Oversample
	if os < 1 {
		os = 1
	}
	dt := cp.TR / float64(os)
	kern, err := hp.Kernel(dt)
	if err != nil {
		return nil, err
	}
	n := int(math.Ceil(cp.ScanLength / dt))
	if n < 1 {
		return nil, fmt.Errorf("design: scan length %g too short to convolve", cp.ScanLength)
	}

	var kept []*SparseVar
	var made []*DenseVar
	for _, sv := range cp.Sparse {
		if ok, _ := path.Match(pattern, sv.Name); !ok {
			kept = append(kept, sv)
			continue
		}
		if sv.Levels != nil {
			return nil, fmt.Errorf("design: variable %q is categorical -- Factor it before Convolve", sv.Name)
		}
		box := boxcar(sv, n, dt)
		conv := convolve(box, kern)
		made = append(made, &DenseVar{Name: sv.Name, Values: conv, Rate: 1 / dt})
	}
	if len(made) == 0 {
		return nil, fmt.Errorf("design: no sparse variables match %q to convolve", pattern)
	}
	cp.Sparse = kept
	cp.Dense = append(made, cp.Dense...)
	return cp, nil
}

// boxcar samples a sparse indicator onto a fine time grid: amplitude
// over [onset, onset+duration), with zero-duration events kept as
// single-sample impulses.
func boxcar(sv *SparseVar, n int, dt float64) []float64 {
	out := make([]float64, n)
	for i, on := range sv.Onsets {
		amp := 1.0
		if sv.Amps != nil {
			amp = sv.Amps[i]
		}
		st := int(math.Round(on / dt))
		ed := int(math.Round((on + sv.Durations[i]) / dt))
		if ed <= st {
			ed = st + 1
		}
		for j := st; j < ed && j < n; j++ {
			if j < 0 {
				continue
			}
			out[j] += amp
		}
	}
	return out
}

// convolve is direct linear convolution truncated to the input length.
func convolve(x, k []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		if x[i] == 0 {
			continue
		}
		for j := 0; j < len(k) && i+j < len(out); j++ {
			out[i+j] += x[i] * k[j]
		}
	}
	return out
}

// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package design builds per-run design matrices from sparse event
annotations and dense confound timeseries.

A Collection holds the variables for one run.  Transformation steps
(ShiftOnsets, Factor, Convolve) are pure: each takes a Collection and
returns a new one, so the composition order is explicit at the call
site.  ToTable resamples all variables onto the acquisition time grid as
an etable.Table, and Matrix selects the regressor columns and appends
the intercept.
*/
package design

import (
	"fmt"
	"path"
)

// SparseVar is an event-based variable: a value at each event onset,
// with a duration.  Levels holds per-event categorical values for a
// variable that has not yet been factored into indicators (e.g.,
// trial_type); Amps holds per-event amplitudes for indicator variables.
type SparseVar struct {
	Name      string
	Onsets    []float64
	Durations []float64

	// per-event categorical level, for unfactored variables; nil after Factor
	Levels []string

	// per-event amplitude; 1 for indicator variables
	Amps []float64
}

// Clone returns a deep copy.
func (sv *SparseVar) Clone() *SparseVar {
	cp := &SparseVar{Name: sv.Name}
	cp.Onsets = append([]float64(nil), sv.Onsets...)
	cp.Durations = append([]float64(nil), sv.Durations...)
	cp.Levels = append([]string(nil), sv.Levels...)
	cp.Amps = append([]float64(nil), sv.Amps...)
	return cp
}

// DenseVar is a regularly-sampled variable: confound timeseries, or a
// condition regressor after convolution.
type DenseVar struct {
	Name string

	// samples in time order
	Values []float64

	// sampling rate in Hz
	Rate float64
}

// Clone returns a deep copy.
func (dv *DenseVar) Clone() *DenseVar {
	cp := &DenseVar{Name: dv.Name, Rate: dv.Rate}
	cp.Values = append([]float64(nil), dv.Values...)
	return cp
}

// Collection holds all variables for one run, along with the sampling
// configuration of the acquisition.
type Collection struct {
	// sparse (event-based) variables, in deterministic order
	Sparse []*SparseVar

	// dense (sampled) variables, in deterministic order
	Dense []*DenseVar

	// repetition time in seconds
	TR float64

	// total scan duration in seconds
	ScanLength float64
}

// Clone returns a deep copy; transformation steps use it so inputs are
// never mutated.
func (c *Collection) Clone() *Collection {
	cp := &Collection{TR: c.TR, ScanLength: c.ScanLength}
	for _, sv := range c.Sparse {
		cp.Sparse = append(cp.Sparse, sv.Clone())
	}
	for _, dv := range c.Dense {
		cp.Dense = append(cp.Dense, dv.Clone())
	}
	return cp
}

// SparseByName returns the named sparse variable or nil.
func (c *Collection) SparseByName(name string) *SparseVar {
	for _, sv := range c.Sparse {
		if sv.Name == name {
			return sv
		}
	}
	return nil
}

// MatchVars returns the names of all variables (sparse then dense)
// matching the given path.Match pattern, e.g. "trial_type.*" or
// "rot_?", in collection order.
func (c *Collection) MatchVars(pattern string) []string {
	var names []string
	for _, sv := range c.Sparse {
		if ok, _ := path.Match(pattern, sv.Name); ok {
			names = append(names, sv.Name)
		}
	}
	for _, dv := range c.Dense {
		if ok, _ := path.Match(pattern, dv.Name); ok {
			names = append(names, dv.Name)
		}
	}
	return names
}

// NumTimePoints returns the number of rows of the acquisition time grid:
// scan duration times the sampling rate (1/TR).
func (c *Collection) NumTimePoints() (int, error) {
	if c.TR <= 0 {
		return 0, fmt.Errorf("design: repetition time %g must be positive", c.TR)
	}
	if c.ScanLength <= 0 {
		return 0, fmt.Errorf("design: scan length %g must be positive -- signal has no temporal axis", c.ScanLength)
	}
	n := int(c.ScanLength/c.TR + 0.5)
	if n < 1 {
		return 0, fmt.Errorf("design: scan length %g shorter than one TR %g", c.ScanLength, c.TR)
	}
	return n, nil
}

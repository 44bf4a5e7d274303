// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package hrf provides the canonical hemodynamic response function used to
convolve neural event indicators into predicted BOLD regressors.

The default is the SPM-style double gamma: a peak Gamma(6, 1) density
minus an undershoot Gamma(16, 1) density scaled by the undershoot ratio,
evaluated over a fixed 32 s window.
*/
package hrf

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

// Params parameterizes the double-gamma hemodynamic response model.
type Params struct {
	PeakDelay  float64 `def:"6" desc:"shape of the peak gamma density -- mode is at PeakDelay - PeakDisp seconds"`
	PeakDisp   float64 `def:"1" desc:"dispersion (inverse rate) of the peak gamma density"`
	UnderDelay float64 `def:"16" desc:"shape of the undershoot gamma density"`
	UnderDisp  float64 `def:"1" desc:"dispersion (inverse rate) of the undershoot gamma density"`
	UnderRatio float64 `def:"6" desc:"peak to undershoot amplitude ratio -- undershoot is divided by this"`
	Dur        float64 `def:"32" desc:"duration of the response window in seconds"`
	Oversample int     `def:"16" desc:"microtime samples per TR used when convolving sparse events"`

	peak  distuv.Gamma `view:"-"`
	under distuv.Gamma `view:"-"`
}

func (hp *Params) Defaults() {
	hp.PeakDelay = 6
	hp.PeakDisp = 1
	hp.UnderDelay = 16
	hp.UnderDisp = 1
	hp.UnderRatio = 6
	hp.Dur = 32
	hp.Oversample = 16
	hp.Update()
}

// Update recomputes the gamma densities from the current parameters.
// Must be called after changing any of them.
func (hp *Params) Update() {
	hp.peak = distuv.Gamma{Alpha: hp.PeakDelay, Beta: 1 / hp.PeakDisp}
	hp.under = distuv.Gamma{Alpha: hp.UnderDelay, Beta: 1 / hp.UnderDisp}
}

// Eval returns the response at time t seconds after event onset.
// Zero outside [0, Dur).
func (hp *Params) Eval(t float64) float64 {
	if t < 0 || t >= hp.Dur {
		return 0
	}
	return hp.peak.Prob(t) - hp.under.Prob(t)/hp.UnderRatio
}

// Kernel samples the response at the given time step, normalized so the
// samples sum to 1, which keeps convolved regressors on the scale of the
// input indicators.
func (hp *Params) Kernel(dt float64) ([]float64, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("hrf: kernel time step %g must be positive", dt)
	}
	n := int(hp.Dur / dt)
	if n < 1 {
		n = 1
	}
	k := make([]float64, n)
	sum := 0.0
	for i := range k {
		k[i] = hp.Eval(float64(i) * dt)
		sum += k[i]
	}
	if sum != 0 {
		for i := range k {
			k[i] /= sum
		}
	}
	return k, nil
}

// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package glm

import (
	"fmt"
	"math"
)

// SecondLevel aggregates a set of fitted first-level models into a
// group estimate with an intercept-only design: for each contrast, the
// per-run effect maps are stacked and tested against zero with a
// one-sample t statistic, z-scored per voxel.
type SecondLevel struct {
	// the first-level models, in processing order; order does not
	// affect the estimate (equal implicit weighting)
	Models []*FirstLevel
}

// Fit records the first-level models to aggregate.  At least one is
// required; all must share the same spatial geometry.
func (sl *SecondLevel) Fit(models []*FirstLevel) error {
	if len(models) == 0 {
		return fmt.Errorf("glm: second-level fit requires at least one first-level model")
	}
	ref := models[0].Ref
	for i, m := range models {
		if m.Betas == nil {
			return fmt.Errorf("glm: first-level model %d is not fitted", i)
		}
		if m.Ref.Nx != ref.Nx || m.Ref.Ny != ref.Ny || m.Ref.Nz != ref.Nz {
			return fmt.Errorf("glm: first-level model %d has mismatched geometry", i)
		}
	}
	sl.Models = models
	return nil
}

// ZMap computes the group z-score map for the given first-level
// contrast expression, resolved against each model's own design
// columns.
func (sl *SecondLevel) ZMap(expr string) ([]float32, error) {
	if len(sl.Models) == 0 {
		return nil, fmt.Errorf("glm: second-level model not fitted")
	}
	n := len(sl.Models)
	nV := len(sl.Models[0].Sigma2)
	effects := make([][]float32, n)
	for i, m := range sl.Models {
		ct, err := m.Contrast(expr)
		if err != nil {
			return nil, err
		}
		effects[i] = m.EffectMap(ct)
		if len(effects[i]) != nV {
			return nil, fmt.Errorf("glm: model %d has %d voxels, want %d", i, len(effects[i]), nV)
		}
	}
	out := make([]float32, nV)
	dof := float64(n - 1)
	for v := 0; v < nV; v++ {
		mean := 0.0
		for i := 0; i < n; i++ {
			mean += float64(effects[i][v])
		}
		mean /= float64(n)
		if dof <= 0 {
			// single model: the group estimate degenerates to the effect itself
			out[v] = float32(mean)
			continue
		}
		ss := 0.0
		for i := 0; i < n; i++ {
			d := float64(effects[i][v]) - mean
			ss += d * d
		}
		se := math.Sqrt(ss / dof / float64(n))
		if se == 0 {
			out[v] = 0
			continue
		}
		out[v] = float32(tToZ(mean/se, dof))
	}
	return out, nil
}

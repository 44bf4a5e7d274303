// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package glm fits general linear models to BOLD timeseries: a first-level
model per run, and a second-level model aggregating the per-run fits for
group inference.  Design matrices come from the design package; voxel
data from the nifti package.  Least-squares solves use gonum QR.
*/
package glm

import (
	"fmt"
	"math"

	"github.com/emer/etable/v2/etable"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/emer/boldglm/nifti"
)

// rankTol is the relative tolerance on QR diagonal magnitude below
// which the design is treated as rank deficient.
const rankTol = 1e-10

// FirstLevel is a GLM fit to a single run.  Configure before Fit;
// fitted state is read-only afterwards.
type FirstLevel struct {
	// spatial smoothing kernel full width at half maximum in mm;
	// <= 0 disables smoothing
	FWHM float32 `def:"5" desc:"spatial smoothing kernel full width at half maximum in mm"`

	// design column names, in fit order
	Cols []string

	// design matrix, time points by regressors
	X *mat.Dense

	// fitted coefficients, regressors by voxels
	Betas *mat.Dense

	// per-voxel residual variance
	Sigma2 []float64

	// residual degrees of freedom: time points minus regressors
	DOF float64

	// (X'X)^-1, for contrast variance
	XtXInv *mat.Dense

	// reference image carrying the spatial geometry of the fit
	Ref *nifti.Img
}

// NewFirstLevel returns a first-level model with the given smoothing
// width.
func NewFirstLevel(fwhm float32) *FirstLevel {
	return &FirstLevel{FWHM: fwhm}
}

// Fit smooths the image (in place) and fits the model to every voxel's
// timeseries against the design matrix.  The design's row count must
// match the image's time axis exactly.
func (fl *FirstLevel) Fit(img *nifti.Img, dmat *etable.Table) error {
	if img.Nt != dmat.Rows {
		return fmt.Errorf("glm: design has %d rows but signal has %d time points", dmat.Rows, img.Nt)
	}
	nT := img.Nt
	nK := len(dmat.ColNames)
	if nT <= nK {
		return fmt.Errorf("glm: %d time points cannot identify %d regressors", nT, nK)
	}
	SmoothFWHM(img, fl.FWHM)

	fl.Cols = append([]string(nil), dmat.ColNames...)
	X := mat.NewDense(nT, nK, nil)
	for k, nm := range fl.Cols {
		for t := 0; t < nT; t++ {
			X.Set(t, k, dmat.CellFloat(nm, t))
		}
	}
	var qr mat.QR
	qr.Factorize(X)
	var r mat.Dense
	qr.RTo(&r)
	rmax := 0.0
	for i := 0; i < nK; i++ {
		rmax = math.Max(rmax, math.Abs(r.At(i, i)))
	}
	for i := 0; i < nK; i++ {
		if math.Abs(r.At(i, i)) <= rankTol*rmax {
			return fmt.Errorf("glm: design matrix is rank deficient (column %q)", fl.Cols[i])
		}
	}

	nV := img.NVox()
	Y := mat.NewDense(nT, nV, nil)
	vals := img.Data.Values
	for t := 0; t < nT; t++ {
		for v := 0; v < nV; v++ {
			Y.Set(t, v, float64(vals[t*nV+v]))
		}
	}
	B := mat.NewDense(nK, nV, nil)
	if err := qr.SolveTo(B, false, Y); err != nil {
		return fmt.Errorf("glm: least squares solve: %w", err)
	}

	var resid mat.Dense
	resid.Mul(X, B)
	resid.Sub(Y, &resid)
	sigma2 := make([]float64, nV)
	dof := float64(nT - nK)
	for v := 0; v < nV; v++ {
		ss := 0.0
		for t := 0; t < nT; t++ {
			rv := resid.At(t, v)
			ss += rv * rv
		}
		sigma2[v] = ss / dof
	}

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return fmt.Errorf("glm: X'X inverse: %w", err)
	}

	fl.X = X
	fl.Betas = B
	fl.Sigma2 = sigma2
	fl.DOF = dof
	fl.XtXInv = &inv
	fl.Ref = img
	return nil
}

// Contrast parses a contrast expression against this fit's design
// columns.
func (fl *FirstLevel) Contrast(expr string) (*Contrast, error) {
	if fl.Betas == nil {
		return nil, fmt.Errorf("glm: model not fitted")
	}
	return ParseContrast(expr, fl.Cols)
}

// EffectMap returns the per-voxel contrast effect size c'B.
func (fl *FirstLevel) EffectMap(ct *Contrast) []float32 {
	nV := len(fl.Sigma2)
	out := make([]float32, nV)
	for v := 0; v < nV; v++ {
		e := 0.0
		for k, w := range ct.Weights {
			if w != 0 {
				e += w * fl.Betas.At(k, v)
			}
		}
		out[v] = float32(e)
	}
	return out
}

// VarianceMap returns the per-voxel contrast effect variance
// sigma2 * c'(X'X)^-1 c.
func (fl *FirstLevel) VarianceMap(ct *Contrast) []float32 {
	q := fl.contrastQuad(ct)
	out := make([]float32, len(fl.Sigma2))
	for v, s2 := range fl.Sigma2 {
		out[v] = float32(s2 * q)
	}
	return out
}

// ZMap returns the per-voxel z-scored contrast statistic: the t value
// converted through its p-value to a standard normal deviate.
func (fl *FirstLevel) ZMap(ct *Contrast) []float32 {
	q := fl.contrastQuad(ct)
	eff := fl.EffectMap(ct)
	out := make([]float32, len(eff))
	for v, e := range eff {
		se := math.Sqrt(fl.Sigma2[v] * q)
		if se == 0 {
			out[v] = 0
			continue
		}
		out[v] = float32(tToZ(float64(e)/se, fl.DOF))
	}
	return out
}

// contrastQuad computes the scalar c'(X'X)^-1 c.
func (fl *FirstLevel) contrastQuad(ct *Contrast) float64 {
	n := len(ct.Weights)
	q := 0.0
	for i := 0; i < n; i++ {
		if ct.Weights[i] == 0 {
			continue
		}
		for j := 0; j < n; j++ {
			if ct.Weights[j] == 0 {
				continue
			}
			q += ct.Weights[i] * fl.XtXInv.At(i, j) * ct.Weights[j]
		}
	}
	return q
}

// zClamp bounds z scores where the p-value underflows.
const zClamp = 40.0

// tToZ converts a t statistic with the given degrees of freedom to a
// standard normal deviate with the same tail probability, preserving
// sign.
func tToZ(t, dof float64) float64 {
	if dof <= 0 {
		return 0
	}
	td := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
	p := td.CDF(-math.Abs(t)) // upper-tail probability of |t|
	if p <= 0 {
		p = math.SmallestNonzeroFloat64
	}
	z := -distuv.UnitNormal.Quantile(p)
	if z > zClamp {
		z = zClamp
	}
	if t < 0 {
		z = -z
	}
	return z
}

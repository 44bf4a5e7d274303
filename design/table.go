// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package design

import (
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/emer/etable/v2/etable"
	"github.com/emer/etable/v2/etensor"
)

// LogPrec is precision for saving float values in design matrices
const LogPrec = 6

// ToTable resamples every variable onto the acquisition time grid (one
// row per TR) and returns them as a table, sparse variables first then
// dense, in collection order.  Dense variables already at the TR rate
// are copied; others are linearly interpolated.  Sparse variables that
// were never convolved are densified as plain boxcars.
func ToTable(c *Collection) (*etable.Table, error) {
	n, err := c.NumTimePoints()
	if err != nil {
		return nil, err
	}
	dt := &etable.Table{}
	dt.SetMetaData("name", "Variables")
	dt.SetMetaData("precision", strconv.Itoa(LogPrec))
	sch := etable.Schema{}
	for _, sv := range c.Sparse {
		sch = append(sch, etable.Column{Name: sv.Name, Type: etensor.FLOAT64, CellShape: nil, DimNames: nil})
	}
	for _, dv := range c.Dense {
		sch = append(sch, etable.Column{Name: dv.Name, Type: etensor.FLOAT64, CellShape: nil, DimNames: nil})
	}
	dt.SetFromSchema(sch, n)

	for _, sv := range c.Sparse {
		box := boxcar(sv, n, c.TR)
		for i := 0; i < n; i++ {
			dt.SetCellFloat(sv.Name, i, box[i])
		}
	}
	for _, dv := range c.Dense {
		vals, err := resample(dv, n, c.TR)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			dt.SetCellFloat(dv.Name, i, vals[i])
		}
	}
	return dt, nil
}

// resample returns the dense variable's values at times i*TR for
// i in [0, n).
func resample(dv *DenseVar, n int, tr float64) ([]float64, error) {
	if len(dv.Values) == 0 {
		return nil, fmt.Errorf("design: dense variable %q is empty", dv.Name)
	}
	out := make([]float64, n)
	step := dv.Rate * tr
	if math.Abs(step-1) < 1e-9 {
		// already on the TR grid
		if len(dv.Values) < n {
			return nil, fmt.Errorf("design: dense variable %q has %d samples, need %d", dv.Name, len(dv.Values), n)
		}
		copy(out, dv.Values[:n])
		return out, nil
	}
	for i := 0; i < n; i++ {
		x := float64(i) * step
		lo := int(x)
		if lo >= len(dv.Values)-1 {
			out[i] = dv.Values[len(dv.Values)-1]
			continue
		}
		frac := x - float64(lo)
		out[i] = dv.Values[lo]*(1-frac) + dv.Values[lo+1]*frac
	}
	return out, nil
}

// condPrefix is the namespace prefix that Factor adds to condition
// indicator variables, stripped from design-matrix column names so
// contrast expressions can reference conditions directly.
const condPrefix = "trial_type."

// Matrix selects the regressor columns matching the given patterns (in
// pattern order, table order within a pattern), strips the condition
// namespace prefix from column names, and appends a constant intercept
// column of 1.  This is the design matrix handed to the model fit.
func Matrix(dt *etable.Table, patterns ...string) (*etable.Table, error) {
	var cols []string
	seen := map[string]bool{}
	for _, pat := range patterns {
		for _, nm := range dt.ColNames {
			if seen[nm] {
				continue
			}
			if ok, _ := path.Match(pat, nm); ok {
				cols = append(cols, nm)
				seen[nm] = true
			}
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("design: no columns match %v", patterns)
	}
	dm := &etable.Table{}
	dm.SetMetaData("name", "DesignMatrix")
	dm.SetMetaData("precision", strconv.Itoa(LogPrec))
	sch := etable.Schema{}
	for _, nm := range cols {
		sch = append(sch, etable.Column{Name: strings.TrimPrefix(nm, condPrefix), Type: etensor.FLOAT64, CellShape: nil, DimNames: nil})
	}
	sch = append(sch, etable.Column{Name: "intercept", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil})
	dm.SetFromSchema(sch, dt.Rows)
	for ci, nm := range cols {
		out := dm.ColNames[ci]
		for i := 0; i < dt.Rows; i++ {
			dm.SetCellFloat(out, i, dt.CellFloat(nm, i))
		}
	}
	for i := 0; i < dt.Rows; i++ {
		dm.SetCellFloat("intercept", i, 1)
	}
	return dm, nil
}

// SaveTSV writes the table as tab-separated values with plain headers,
// creating parent directories as needed.
func SaveTSV(dt *etable.Table, fname string) error {
	if err := os.MkdirAll(filepath.Dir(fname), 0755); err != nil {
		return fmt.Errorf("design: %w", err)
	}
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("design: %w", err)
	}
	defer f.Close()
	if err := dt.WriteCSV(f, etable.Tab, etable.Headers); err != nil {
		return fmt.Errorf("design: %s: %w", fname, err)
	}
	return nil
}

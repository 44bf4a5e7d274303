// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package design

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emer/boldglm/hrf"
)

const difTol = 1.0e-10

// testCollection is a run with 3 conditions cycling over 30 events and
// 6 motion confounds, TR 2 s, 200 s scan (100 time points).
func testCollection() *Collection {
	sv := &SparseVar{Name: "trial_type"}
	conds := []string{"motor", "music", "visual"}
	for i := 0; i < 30; i++ {
		sv.Onsets = append(sv.Onsets, float64(i)*6)
		sv.Durations = append(sv.Durations, 1)
		sv.Levels = append(sv.Levels, conds[i%3])
	}
	c := &Collection{TR: 2, ScanLength: 200, Sparse: []*SparseVar{sv}}
	for _, nm := range []string{"rot_x", "rot_y", "rot_z", "trans_x", "trans_y", "trans_z"} {
		dv := &DenseVar{Name: nm, Rate: 0.5}
		for i := 0; i < 100; i++ {
			dv.Values = append(dv.Values, math.Sin(float64(i)*0.1+float64(len(nm))))
		}
		c.Dense = append(c.Dense, dv)
	}
	return c
}

func TestShiftOnsets(t *testing.T) {
	c := testCollection()
	sh := ShiftOnsets(c, 1.5)
	for i, on := range sh.Sparse[0].Onsets {
		want := c.Sparse[0].Onsets[i] - 1.5
		if on != want {
			t.Fatalf("onset %d: %g, want %g", i, on, want)
		}
	}
	// input collection is not mutated
	if c.Sparse[0].Onsets[1] != 6 {
		t.Errorf("input onsets mutated: %g", c.Sparse[0].Onsets[1])
	}
	// zero shift leaves every onset exactly as it was
	z := ShiftOnsets(c, 0)
	for i, on := range z.Sparse[0].Onsets {
		if on != c.Sparse[0].Onsets[i] {
			t.Errorf("zero shift changed onset %d: %g", i, on)
		}
	}
}

func TestFactor(t *testing.T) {
	c := testCollection()
	fc, err := Factor(c, "trial_type")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"trial_type.motor", "trial_type.music", "trial_type.visual"}
	if len(fc.Sparse) != len(want) {
		t.Fatalf("indicators: %d, want %d", len(fc.Sparse), len(want))
	}
	for i, sv := range fc.Sparse {
		if sv.Name != want[i] {
			t.Errorf("indicator %d: %q, want %q", i, sv.Name, want[i])
		}
		if len(sv.Onsets) != 10 {
			t.Errorf("indicator %q has %d events, want 10", sv.Name, len(sv.Onsets))
		}
		if sv.Levels != nil {
			t.Errorf("indicator %q still categorical", sv.Name)
		}
		for _, a := range sv.Amps {
			if a != 1 {
				t.Errorf("indicator %q amp %g, want 1", sv.Name, a)
			}
		}
	}
	if _, err := Factor(c, "absent"); err == nil {
		t.Errorf("factoring a missing variable should error")
	}
	if _, err := Factor(fc, "trial_type.motor"); err == nil {
		t.Errorf("factoring an indicator should error")
	}
}

func TestConvolve(t *testing.T) {
	hp := &hrf.Params{}
	hp.Defaults()
	c := testCollection()

	// categorical variables must be factored first
	if _, err := Convolve(c, "trial_type*", hp); err == nil {
		t.Fatal("convolving a categorical variable should error")
	}

	fc, err := Factor(c, "trial_type")
	if err != nil {
		t.Fatal(err)
	}
	cv, err := Convolve(fc, "trial_type.*", hp)
	if err != nil {
		t.Fatal(err)
	}
	if len(cv.Sparse) != 0 {
		t.Errorf("confound sparse variables left: %d", len(cv.Sparse))
	}
	if len(cv.Dense) != 9 {
		t.Fatalf("dense variables: %d, want 9", len(cv.Dense))
	}
	// condition regressors come first, at the microtime rate
	dt := 2.0 / 16.0
	for i, nm := range []string{"trial_type.motor", "trial_type.music", "trial_type.visual"} {
		dv := cv.Dense[i]
		if dv.Name != nm {
			t.Errorf("dense %d: %q, want %q", i, dv.Name, nm)
		}
		if math.Abs(dv.Rate-1/dt) > difTol {
			t.Errorf("dense %q rate: %g, want %g", dv.Name, dv.Rate, 1/dt)
		}
		if len(dv.Values) != 1600 {
			t.Errorf("dense %q length: %d, want 1600", dv.Name, len(dv.Values))
		}
		// response appears after the onset, never before
		if dv.Values[0] != 0 {
			t.Errorf("dense %q nonzero at t=0: %g", dv.Name, dv.Values[0])
		}
		mx := 0.0
		for _, v := range dv.Values {
			if v > mx {
				mx = v
			}
		}
		if mx <= 0 {
			t.Errorf("dense %q has no positive response", dv.Name)
		}
	}

	if _, err := Convolve(fc, "nomatch_*", hp); err == nil {
		t.Errorf("pattern matching nothing should error")
	}
}

func TestMatrix(t *testing.T) {
	hp := &hrf.Params{}
	hp.Defaults()
	c := testCollection()
	fc, err := Factor(c, "trial_type")
	if err != nil {
		t.Fatal(err)
	}
	cv, err := Convolve(fc, "trial_type.*", hp)
	if err != nil {
		t.Fatal(err)
	}
	dt, err := ToTable(cv)
	if err != nil {
		t.Fatal(err)
	}
	if dt.Rows != 100 {
		t.Fatalf("table rows: %d, want 100", dt.Rows)
	}

	dm, err := Matrix(dt, "trial_type.*", "rot_?", "trans_?")
	if err != nil {
		t.Fatal(err)
	}
	// 3 conditions + 6 confounds + intercept
	if len(dm.ColNames) != 10 {
		t.Fatalf("matrix columns: %d, want 10: %v", len(dm.ColNames), dm.ColNames)
	}
	if dm.Rows != 100 {
		t.Errorf("matrix rows: %d, want 100", dm.Rows)
	}
	wantCols := []string{"motor", "music", "visual", "rot_x", "rot_y", "rot_z", "trans_x", "trans_y", "trans_z", "intercept"}
	for i, nm := range dm.ColNames {
		if nm != wantCols[i] {
			t.Errorf("column %d: %q, want %q", i, nm, wantCols[i])
		}
		if strings.Contains(nm, "trial_type") {
			t.Errorf("column %d keeps namespace prefix: %q", i, nm)
		}
	}
	for i := 0; i < dm.Rows; i++ {
		if v := dm.CellFloat("intercept", i); v != 1 {
			t.Fatalf("intercept row %d: %g, want 1", i, v)
		}
	}
	// confound columns carry through the resampling unchanged
	for i := 0; i < dm.Rows; i++ {
		want := math.Sin(float64(i)*0.1 + 5)
		if dif := math.Abs(dm.CellFloat("rot_x", i) - want); dif > difTol {
			t.Fatalf("rot_x row %d: dif %g", i, dif)
		}
	}

	if _, err := Matrix(dt, "nomatch_*"); err == nil {
		t.Errorf("matrix with no matching columns should error")
	}
}

func TestReadEvents(t *testing.T) {
	dir := t.TempDir()
	fnm := filepath.Join(dir, "events.tsv")
	tsv := "onset\tduration\ttrial_type\n0.0\t1.0\tmotor\n6.0\t1.0\tmusic\n12.0\t1.0\tvisual\n"
	if err := os.WriteFile(fnm, []byte(tsv), 0644); err != nil {
		t.Fatal(err)
	}
	sv, err := ReadEvents(fnm)
	if err != nil {
		t.Fatal(err)
	}
	if sv.Name != "trial_type" || len(sv.Onsets) != 3 {
		t.Fatalf("events: %q, %d onsets", sv.Name, len(sv.Onsets))
	}
	if sv.Onsets[1] != 6 || sv.Durations[1] != 1 || sv.Levels[1] != "music" {
		t.Errorf("event 1: %g %g %q", sv.Onsets[1], sv.Durations[1], sv.Levels[1])
	}

	bad := filepath.Join(dir, "bad.tsv")
	if err := os.WriteFile(bad, []byte("onset\tduration\n0\t1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadEvents(bad); err == nil {
		t.Errorf("events without trial_type column should error")
	}
}

func TestReadConfounds(t *testing.T) {
	dir := t.TempDir()
	fnm := filepath.Join(dir, "confounds.tsv")
	tsv := "csf\trot_x\trot_y\ttrans_x\n0.1\t1\t2\t3\n0.2\t4\t5\t6\n"
	if err := os.WriteFile(fnm, []byte(tsv), 0644); err != nil {
		t.Fatal(err)
	}
	dvs, err := ReadConfounds(fnm, 2, "rot_?", "trans_?")
	if err != nil {
		t.Fatal(err)
	}
	if len(dvs) != 3 {
		t.Fatalf("confounds: %d, want 3", len(dvs))
	}
	wantNm := []string{"rot_x", "rot_y", "trans_x"}
	for i, dv := range dvs {
		if dv.Name != wantNm[i] {
			t.Errorf("confound %d: %q, want %q", i, dv.Name, wantNm[i])
		}
		if dv.Rate != 0.5 {
			t.Errorf("confound %q rate: %g, want 0.5", dv.Name, dv.Rate)
		}
		if len(dv.Values) != 2 {
			t.Errorf("confound %q length: %d, want 2", dv.Name, len(dv.Values))
		}
	}
	if dvs[0].Values[1] != 4 {
		t.Errorf("rot_x[1] = %g, want 4", dvs[0].Values[1])
	}

	if _, err := ReadConfounds(fnm, 0, "rot_?"); err == nil {
		t.Errorf("zero repetition time should error")
	}
	if _, err := ReadConfounds(fnm, 2, "nomatch"); err == nil {
		t.Errorf("no matching columns should error")
	}
}

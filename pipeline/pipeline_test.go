// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/emer/etable/v2/etable"

	"github.com/emer/boldglm/bids"
	"github.com/emer/boldglm/glm"
	"github.com/emer/boldglm/nifti"
)

// writeRun writes one synthetic run: a 4x4x2 voxel, 100 time point BOLD
// series at TR 2 s, its event annotations (30 events cycling over 3
// conditions), and its confound timeseries (6 motion columns).
func writeRun(t *testing.T, raw, deriv, run string, seed int64) {
	t.Helper()
	fdir := filepath.Join(raw, "sub-01", "func")
	base := "sub-01_task-mixed_run-" + run

	img := nifti.NewImg(4, 4, 2, 100, 3, 3, 3, 2.0)
	rnd := rand.New(rand.NewSource(seed))
	for i := range img.Data.Values {
		img.Data.Values[i] = 100 + rnd.Float32()
	}
	if err := img.Save(filepath.Join(fdir, base+"_bold.nii.gz")); err != nil {
		t.Fatal(err)
	}

	ev := "onset\tduration\ttrial_type\n"
	conds := []string{"motor", "music", "visual"}
	for i := 0; i < 30; i++ {
		ev += fmt.Sprintf("%g\t1.0\t%s\n", float64(i)*6, conds[i%3])
	}
	if err := os.WriteFile(filepath.Join(fdir, base+"_events.tsv"), []byte(ev), 0644); err != nil {
		t.Fatal(err)
	}

	ddir := filepath.Join(deriv, "sub-01", "func")
	if err := os.MkdirAll(ddir, 0755); err != nil {
		t.Fatal(err)
	}
	cf := "rot_x\trot_y\trot_z\ttrans_x\ttrans_y\ttrans_z\n"
	for i := 0; i < 100; i++ {
		for c := 0; c < 6; c++ {
			if c > 0 {
				cf += "\t"
			}
			cf += fmt.Sprintf("%g", math.Sin(float64(i)*0.07*float64(c+1)+float64(c)))
		}
		cf += "\n"
	}
	if err := os.WriteFile(filepath.Join(ddir, base+"_desc-confounds_timeseries.tsv"), []byte(cf), 0644); err != nil {
		t.Fatal(err)
	}
}

func writeDataset(t *testing.T) (raw, deriv string) {
	t.Helper()
	raw, deriv = t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(raw, "task-mixed_bold.json"),
		[]byte(`{"RepetitionTime": 2.0, "TaskName": "mixed"}`), 0644); err != nil {
		t.Fatal(err)
	}
	writeRun(t, raw, deriv, "1", 1)
	writeRun(t, raw, deriv, "2", 2)
	return
}

func TestPipeline(t *testing.T) {
	raw, deriv := writeDataset(t)
	out := t.TempDir()

	cfg := &Config{}
	cfg.Defaults()
	cfg.RawRoot = raw
	cfg.DerivRoot = deriv
	cfg.OutRoot = out

	pl := New(cfg)
	if err := pl.Run(); err != nil {
		t.Fatal(err)
	}

	// one fitted model per run, in run order
	if len(pl.Models) != 2 {
		t.Fatalf("models: %d, want 2", len(pl.Models))
	}
	if pl.RunStats.Rows != 2 {
		t.Fatalf("run stats rows: %d, want 2", pl.RunStats.Rows)
	}
	for row, run := range []string{"1", "2"} {
		if got := pl.RunStats.CellString("Run", row); got != run {
			t.Errorf("run stats row %d: run %q, want %q", row, got, run)
		}
		if v := pl.RunStats.CellFloat("TimePoints", row); v != 100 {
			t.Errorf("run %s time points: %g, want 100", run, v)
		}
		if v := pl.RunStats.CellFloat("Regressors", row); v != 10 {
			t.Errorf("run %s regressors: %g, want 10", run, v)
		}
		if v := pl.RunStats.CellFloat("Conditions", row); v != 3 {
			t.Errorf("run %s conditions: %g, want 3", run, v)
		}
		if v := pl.RunStats.CellFloat("DOF", row); v != 90 {
			t.Errorf("run %s dof: %g, want 90", run, v)
		}
	}

	// per-run design matrices: 100 rows, 3 conditions + 6 confounds + intercept
	for _, run := range []string{"1", "2"} {
		id := bids.RunID{Subject: "01", Task: "mixed", Run: run}
		dpath := filepath.Join(out, bids.DesignPath(id))
		f, err := os.Open(dpath)
		if err != nil {
			t.Fatal(err)
		}
		dt := &etable.Table{}
		err = dt.ReadCSV(f, etable.Tab)
		f.Close()
		if err != nil {
			t.Fatal(err)
		}
		if dt.Rows != 100 {
			t.Errorf("design %s rows: %d, want 100", dpath, dt.Rows)
		}
		if len(dt.ColNames) != 10 {
			t.Errorf("design %s columns: %d, want 10: %v", dpath, len(dt.ColNames), dt.ColNames)
		}
		for _, nm := range []string{"motor", "music", "visual", "intercept"} {
			if dt.ColIdx(nm) < 0 {
				t.Errorf("design %s missing column %q", dpath, nm)
			}
		}
	}

	// per-run effect and variance maps: 6 contrasts x 2 stats x 2 runs
	nRunMaps := 0
	for _, run := range []string{"1", "2"} {
		id := bids.RunID{Subject: "01", Task: "mixed", Run: run}
		for _, expr := range cfg.Contrasts {
			token := glm.ContrastToken(expr)
			for _, stat := range []string{"effect", "variance"} {
				p := filepath.Join(out, bids.StatMapPath(id, token, stat))
				if _, err := os.Stat(p); err != nil {
					t.Errorf("missing run map %s", p)
					continue
				}
				nRunMaps++
			}
		}
	}
	if nRunMaps != 24 {
		t.Errorf("run maps: %d, want 24", nRunMaps)
	}

	// group maps: 6 contrasts x (zscore, tdp), no run entities in the name
	for _, expr := range cfg.Contrasts {
		token := glm.ContrastToken(expr)
		for _, stat := range []string{"zscore", "tdp"} {
			p := filepath.Join(out, bids.StatMapPath(bids.RunID{}, token, stat))
			img, err := nifti.Open(p)
			if err != nil {
				t.Errorf("group map %s: %v", p, err)
				continue
			}
			if img.Nx != 4 || img.Ny != 4 || img.Nz != 2 || img.Nt != 1 {
				t.Errorf("group map %s dims: %d %d %d %d", p, img.Nx, img.Ny, img.Nz, img.Nt)
			}
		}
	}

	// run summary tables
	for _, nm := range []string{"task-mixed_runstats.tsv", "task-mixed_runstats_avg.tsv"} {
		if _, err := os.Stat(filepath.Join(out, nm)); err != nil {
			t.Errorf("missing %s", nm)
		}
	}
}

func TestPipelineNoGroup(t *testing.T) {
	raw, deriv := writeDataset(t)
	out := t.TempDir()

	cfg := &Config{}
	cfg.Defaults()
	cfg.RawRoot = raw
	cfg.DerivRoot = deriv
	cfg.OutRoot = out
	cfg.NoGroup = true

	pl := New(cfg)
	if err := pl.Run(); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(out, bids.StatMapPath(bids.RunID{}, "Motor", "zscore"))
	if _, err := os.Stat(p); err == nil {
		t.Errorf("group map written despite NoGroup")
	}
}

func TestPipelineMissingTask(t *testing.T) {
	raw, deriv := writeDataset(t)
	cfg := &Config{}
	cfg.Defaults()
	cfg.RawRoot = raw
	cfg.DerivRoot = deriv
	cfg.OutRoot = t.TempDir()
	cfg.Task = "absent"

	if err := New(cfg).Run(); err == nil {
		t.Errorf("missing task should error")
	}
}

// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/emer/etable/v2/agg"
	"github.com/emer/etable/v2/etable"
	"github.com/emer/etable/v2/etensor"
	"github.com/emer/etable/v2/minmax"
	"github.com/emer/etable/v2/split"

	"github.com/emer/boldglm/bids"
	"github.com/emer/boldglm/glm"
	"github.com/emer/boldglm/nifti"
)

// LogPrec is precision for saving float values in logs
const LogPrec = 4

// ConfigRunStats configures the per-run summary table.
func (pl *Pipeline) ConfigRunStats() {
	dt := &etable.Table{}
	dt.SetMetaData("name", "RunStats")
	dt.SetMetaData("desc", "per-run design and fit summary")
	dt.SetMetaData("read-only", "true")
	dt.SetMetaData("precision", strconv.Itoa(LogPrec))
	sch := etable.Schema{
		{Name: "Subject", Type: etensor.STRING, CellShape: nil, DimNames: nil},
		{Name: "Run", Type: etensor.STRING, CellShape: nil, DimNames: nil},
		{Name: "TimePoints", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil},
		{Name: "Regressors", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil},
		{Name: "Conditions", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil},
		{Name: "DOF", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil},
		{Name: "BoldAvg", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil},
		{Name: "BoldMax", Type: etensor.FLOAT64, CellShape: nil, DimNames: nil},
	}
	dt.SetFromSchema(sch, 0)
	pl.RunStats = dt
}

// LogRun appends one row of summary statistics for a fitted run.
func (pl *Pipeline) LogRun(sel bids.RunID, img *nifti.Img, dmat *etable.Table, m *glm.FirstLevel) {
	dt := pl.RunStats
	row := dt.Rows
	dt.SetNumRows(row + 1)

	am := minmax.AvgMax32{}
	am.Init()
	for i, v := range img.Data.Values {
		am.UpdateVal(v, int32(i))
	}
	am.CalcAvg()

	nConf := 0
	for _, nm := range dmat.ColNames {
		for _, pat := range pl.Config.Confounds {
			if ok, _ := path.Match(pat, nm); ok {
				nConf++
				break
			}
		}
	}
	nCond := len(dmat.ColNames) - nConf - 1
	dt.SetCellString("Subject", row, sel.Subject)
	dt.SetCellString("Run", row, sel.Run)
	dt.SetCellFloat("TimePoints", row, float64(dmat.Rows))
	dt.SetCellFloat("Regressors", row, float64(len(dmat.ColNames)))
	dt.SetCellFloat("Conditions", row, float64(nCond))
	dt.SetCellFloat("DOF", row, m.DOF)
	dt.SetCellFloat("BoldAvg", row, float64(am.Avg))
	dt.SetCellFloat("BoldMax", row, float64(am.Max))
}

// SaveRunStats writes the per-run table and its per-subject aggregate
// (mean over runs) under the output root.
func (pl *Pipeline) SaveRunStats() error {
	cfg := pl.Config
	dt := pl.RunStats
	if dt == nil || dt.Rows == 0 {
		return nil
	}
	base := filepath.Join(cfg.OutRoot, "task-"+cfg.Task+"_runstats.tsv")
	if err := saveTSV(dt, base); err != nil {
		return err
	}
	ix := etable.NewIdxView(dt)
	spl := split.GroupBy(ix, []string{"Subject"})
	for _, cl := range []string{"TimePoints", "Regressors", "Conditions", "DOF", "BoldAvg", "BoldMax"} {
		split.Agg(spl, cl, agg.AggMean)
	}
	avg := spl.AggsToTable(etable.ColNameOnly)
	return saveTSV(avg, filepath.Join(cfg.OutRoot, "task-"+cfg.Task+"_runstats_avg.tsv"))
}

func saveTSV(dt *etable.Table, fname string) error {
	if err := os.MkdirAll(filepath.Dir(fname), 0755); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	defer f.Close()
	if err := dt.WriteCSV(f, etable.Tab, etable.Headers); err != nil {
		return fmt.Errorf("pipeline: %s: %w", fname, err)
	}
	return nil
}

// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

// Config holds all parameters of one pipeline invocation.  Defaults
// reproduce the canonical analysis: task "mixed", 5 mm smoothing, the
// six single-condition and pairwise-difference contrasts, cluster
// inference at alpha 0.05 over thresholds 1, 2, 3.
type Config struct {
	// raw BIDS dataset root
	RawRoot string `desc:"raw BIDS dataset root"`

	// derivative root to index alongside the raw data (e.g. an fmriprep output tree); empty skips
	DerivRoot string `desc:"derivative root indexed alongside the raw data"`

	// output root for design matrices, statistic maps, and run stats
	OutRoot string `def:"." desc:"output root for design matrices and statistic maps"`

	// task entity of the BOLD series to fit
	Task string `def:"mixed" desc:"task entity of the BOLD series to fit"`

	// space entity of the series to fit; empty selects files without a
	// space entity (raw or native-space derivatives)
	Space string `desc:"space entity of the series to fit; empty selects files without a space entity"`

	// smoothing kernel full width at half maximum in mm
	FWHM float32 `def:"5" desc:"spatial smoothing kernel full width at half maximum in mm"`

	// contrast expressions computed at both levels
	Contrasts []string `desc:"contrast expressions computed at both levels"`

	// confound column patterns selected into the design matrix
	Confounds []string `desc:"confound column patterns selected into the design matrix"`

	// family-wise error rate for cluster-level inference
	Alpha float64 `def:"0.05" desc:"family-wise error rate for cluster-level inference"`

	// cluster-forming z thresholds for the true-discovery-proportion maps
	ClusterThresholds []float64 `def:"1,2,3" desc:"cluster-forming z thresholds"`

	// skip the second-level aggregation stage
	NoGroup bool `desc:"skip the second-level aggregation stage"`
}

func (cf *Config) Defaults() {
	cf.OutRoot = "."
	cf.Task = "mixed"
	cf.FWHM = 5
	cf.Contrasts = []string{
		"motor", "music", "visual",
		"motor - music", "motor - visual", "music - visual",
	}
	cf.Confounds = []string{"rot_?", "trans_?"}
	cf.Alpha = 0.05
	cf.ClusterThresholds = []float64{1, 2, 3}
}

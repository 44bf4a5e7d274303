// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bids

import (
	"path/filepath"
	"strings"
)

// Output path construction.  Each output kind gets an explicit builder
// function taking a structured run identity; absent entities are omitted
// entirely, never rendered as empty segments.

// DesignPath returns the relative output path for a run's design matrix:
//
//	sub-S/[ses-E/]func/sub-S_[ses-E_]task-T_[run-R_]design.tsv
func DesignPath(id RunID) string {
	dir := filepath.Join(entDirs(id, true)...)
	name := entJoin(id, "design") + ".tsv"
	return filepath.Join(dir, name)
}

// StatMapPath returns the relative output path for a statistic map with
// the given contrast token and statistic kind (effect, variance, zscore,
// tdp):
//
//	[sub-S/][ses-E/][sub-S_][ses-E_][task-T_][run-R_]contrast-C_stat-K_statmap.nii.gz
//
// A zero RunID yields a group-level name with no run-identifying
// entities.
func StatMapPath(id RunID, contrast, stat string) string {
	dir := filepath.Join(entDirs(id, false)...)
	name := entJoin(id, "contrast-"+contrast+"_stat-"+stat+"_statmap") + ".nii.gz"
	return filepath.Join(dir, name)
}

// entDirs returns the directory segments for present entities; withDatatype
// appends the func datatype directory.
func entDirs(id RunID, withDatatype bool) []string {
	var dirs []string
	if id.Subject != "" {
		dirs = append(dirs, "sub-"+id.Subject)
	}
	if id.Session != "" {
		dirs = append(dirs, "ses-"+id.Session)
	}
	if withDatatype {
		dirs = append(dirs, "func")
	}
	return dirs
}

// entJoin joins the present entity segments and the trailing suffix with
// underscores.
func entJoin(id RunID, suffix string) string {
	var segs []string
	if id.Subject != "" {
		segs = append(segs, "sub-"+id.Subject)
	}
	if id.Session != "" {
		segs = append(segs, "ses-"+id.Session)
	}
	if id.Task != "" {
		segs = append(segs, "task-"+id.Task)
	}
	if id.Run != "" {
		segs = append(segs, "run-"+id.Run)
	}
	segs = append(segs, suffix)
	return strings.Join(segs, "_")
}

// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bids

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Metadata is the sidecar metadata relevant to model fitting for one
// imaging file, merged across the BIDS inheritance chain.
type Metadata struct {
	// acquisition repetition time in seconds
	RepetitionTime float64

	// effective start time of the series after slice-timing correction,
	// nil when not declared.  A non-nil value must be subtracted from
	// event onsets before convolution.
	StartTime *float64

	// task name as declared in the sidecar
	TaskName string

	// per-slice acquisition times within one TR, if declared
	SliceTiming []float64
}

// Metadata resolves the sidecar metadata for the given file, following
// the BIDS inheritance principle: JSON files higher in the tree apply to
// all matching files below, with deeper (more specific) sidecars
// overriding shallower ones.  Candidate sidecars are searched from the
// file's root down: <root>/task-<task>_<suffix>.json, then the sidecar
// sharing the file's full name in its own directory.
func (lay *Layout) Metadata(f *File) (*Metadata, error) {
	merged := map[string]any{}
	for _, p := range lay.sidecarChain(f) {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("bids: sidecar %s: %w", p, err)
		}
		for k, v := range m {
			merged[k] = v
		}
	}
	md := &Metadata{}
	if v, ok := merged["RepetitionTime"].(float64); ok {
		md.RepetitionTime = v
	}
	if v, ok := merged["StartTime"].(float64); ok {
		st := v
		md.StartTime = &st
	}
	if v, ok := merged["TaskName"].(string); ok {
		md.TaskName = v
	}
	if v, ok := merged["SliceTiming"].([]any); ok {
		for _, sv := range v {
			if fv, ok := sv.(float64); ok {
				md.SliceTiming = append(md.SliceTiming, fv)
			}
		}
	}
	return md, nil
}

// sidecarChain returns candidate sidecar paths from least to most
// specific, so later reads override earlier ones: the root task-level
// sidecar, then the file-named sidecar at every directory level from
// the root down to the file's own directory (root, subject, session,
// datatype).
func (lay *Layout) sidecarChain(f *File) []string {
	var chain []string
	if task := f.Entities.Get("task"); task != "" {
		chain = append(chain, filepath.Join(f.Root, "task-"+task+"_"+f.Entities.Suffix+".json"))
	}
	own := strings.TrimSuffix(filepath.Base(f.Path), f.Entities.Ext) + ".json"
	dir := f.Root
	chain = append(chain, filepath.Join(dir, own))
	if rel, err := filepath.Rel(f.Root, filepath.Dir(f.Path)); err == nil && rel != "." {
		for _, seg := range strings.Split(rel, string(filepath.Separator)) {
			dir = filepath.Join(dir, seg)
			chain = append(chain, filepath.Join(dir, own))
		}
	}
	return chain
}

// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package boldglm is the overall repository for a BIDS task-fMRI general
linear model pipeline implemented in the Go language (golang).

This top-level of the repository has no functional code -- everything is
organized into the following sub-repositories:

* bids: indexes a raw + derivative BIDS dataset tree, answers
entity-based file queries, resolves sidecar metadata, and constructs
output paths.

* nifti: reads and writes single-file NIfTI-1 volumes, holding voxel
data in etensor tensors.

* hrf: the canonical double-gamma hemodynamic response model.

* design: builds per-run design matrices from sparse event annotations
and dense confound timeseries, via pure transformation steps.

* glm: first-level (per-run) and second-level (group) model fitting,
contrast estimation, and cluster-level true-discovery-proportion
inference.

* pipeline: orchestrates discovery, per-run fitting, and aggregation.

* cmd/boldglm: the command-line entry point.
*/
package boldglm

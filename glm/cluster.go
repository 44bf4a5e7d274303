// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package glm

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// Cluster-level inference via All-Resolutions Inference: for each
// cluster-forming threshold, 6-connected clusters of supra-threshold
// voxels get a lower bound on the proportion of true discoveries they
// contain, controlling family-wise error at alpha via the Hommel value
// of the whole map's p-values.

// ClusterTDP computes a true-discovery-proportion map from a z-score
// map of the given spatial dimensions.  For every threshold, each
// 6-connected cluster of voxels with z > threshold is assigned its TDP
// lower bound; the output per voxel is the maximum over thresholds.
// Voxels in no cluster are 0.
func ClusterTDP(z []float32, nx, ny, nz int, thresholds []float64, alpha float64) ([]float32, error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("glm: alpha %g not in [0, 1]", alpha)
	}
	if len(z) != nx*ny*nz {
		return nil, fmt.Errorf("glm: z map has %d voxels, want %d", len(z), nx*ny*nz)
	}
	hommel := hommelValue(z, alpha)
	out := make([]float32, len(z))
	labels := make([]int32, len(z))
	for _, thr := range thresholds {
		nlab := labelClusters(z, labels, nx, ny, nz, float32(thr))
		for lab := int32(1); lab <= nlab; lab++ {
			var vals []float32
			for i, l := range labels {
				if l == lab {
					vals = append(vals, z[i])
				}
			}
			tdp := float32(truePositiveFraction(vals, hommel, alpha))
			for i, l := range labels {
				if l == lab && tdp > out[i] {
					out[i] = tdp
				}
			}
		}
	}
	return out, nil
}

// zToP converts z values to sorted ascending one-sided (upper tail)
// p-values.
func zToP(z []float32) []float64 {
	p := make([]float64, len(z))
	for i, zv := range z {
		p[i] = distuv.UnitNormal.Survival(float64(zv))
	}
	sort.Float64s(p)
	return p
}

// hommelValue computes the Hommel value of the map: the size of the
// largest subset of p-values consistent with the global null at level
// alpha under the Simes inequality.
func hommelValue(z []float32, alpha float64) int {
	p := zToP(z)
	n := len(p)
	if n == 0 {
		return 0
	}
	if n == 1 {
		if p[0] > alpha {
			return 1
		}
		return 0
	}
	if p[0] > alpha {
		return n
	}
	if p[n-1] < alpha {
		return 0
	}
	slope := 0.0
	for i := 0; i < n-1; i++ {
		s := (alpha - p[i]) / float64(n-1-i)
		if s > slope {
			slope = s
		}
	}
	h := math.Trunc(float64(n) + (alpha-slope*float64(n))/slope)
	if h > float64(n) {
		return n
	}
	if h < 0 {
		return 0
	}
	return int(h)
}

// truePositiveFraction returns the lower bound on the proportion of
// active voxels among the given cluster values, given the map-wide
// Hommel value.
func truePositiveFraction(z []float32, hommel int, alpha float64) float64 {
	p := zToP(z)
	n := len(p)
	if n == 0 {
		return 0
	}
	// ceil(h * p / alpha) counts how many of the smallest p-values a
	// false-null configuration of size u could explain
	c := make([]float64, n)
	for i, pv := range p {
		c[i] = math.Ceil(float64(hommel) * pv / alpha)
	}
	best := 0.0
	cum := 0
	for i := 0; i < n; {
		j := i
		for j < n && c[j] == c[i] {
			j++
		}
		cum += j - i
		crit := 1 - c[i] + float64(cum)
		if crit > best {
			best = crit
		}
		i = j
	}
	if best < 0 {
		best = 0
	}
	if best > float64(n) {
		best = float64(n)
	}
	return best / float64(n)
}

// labelClusters labels 6-connected components of voxels with z > thr
// into the labels slice (reused across calls) and returns the number of
// clusters found.
func labelClusters(z []float32, labels []int32, nx, ny, nz int, thr float32) int32 {
	for i := range labels {
		labels[i] = 0
	}
	var next int32
	var stack []int
	for seed := range z {
		if z[seed] <= thr || labels[seed] != 0 {
			continue
		}
		next++
		labels[seed] = next
		stack = append(stack[:0], seed)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x := idx % nx
			y := (idx / nx) % ny
			zz := idx / (nx * ny)
			for _, d := range [6][3]int{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}} {
				px, py, pz := x+d[0], y+d[1], zz+d[2]
				if px < 0 || px >= nx || py < 0 || py >= ny || pz < 0 || pz >= nz {
					continue
				}
				ni := (pz*ny+py)*nx + px
				if z[ni] > thr && labels[ni] == 0 {
					labels[ni] = next
					stack = append(stack, ni)
				}
			}
		}
	}
	return next
}

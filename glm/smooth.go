// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package glm

import (
	"github.com/goki/mat32"

	"github.com/emer/boldglm/nifti"
)

// fwhmSigma converts a full-width-at-half-maximum to a Gaussian sigma.
const fwhmSigma = 2.3548200450309493 // 2*sqrt(2*ln 2)

// SmoothFWHM applies isotropic spatial Gaussian smoothing of the given
// full width at half maximum (mm) to every volume of the image,
// in place.  Sigma is converted to voxels per axis from the image's
// voxel sizes.  A fwhm <= 0 is a no-op.  No brain mask is applied:
// out-of-brain signal is left visible as a diagnostic of upstream
// preprocessing defects.
func SmoothFWHM(img *nifti.Img, fwhm float32) {
	if fwhm <= 0 {
		return
	}
	vs := img.VoxSize()
	sig := mat32.Vec3{X: fwhm / (fwhmSigma * vs.X), Y: fwhm / (fwhmSigma * vs.Y), Z: fwhm / (fwhmSigma * vs.Z)}
	nx, ny, nz, nt := img.Nx, img.Ny, img.Nz, img.Nt
	vals := img.Data.Values
	nvox := nx * ny * nz
	buf := make([]float32, nvox)
	for t := 0; t < nt; t++ {
		vol := vals[t*nvox : (t+1)*nvox]
		smoothAxis(vol, buf, nx, ny, nz, 0, sig.X)
		smoothAxis(vol, buf, nx, ny, nz, 1, sig.Y)
		smoothAxis(vol, buf, nx, ny, nz, 2, sig.Z)
	}
}

// gaussKernel returns a normalized 1D Gaussian kernel with radius 3
// sigma (at least 1).
func gaussKernel(sigma float32) []float32 {
	if sigma <= 0 {
		return []float32{1}
	}
	rad := int(3*sigma + 0.5)
	if rad < 1 {
		rad = 1
	}
	k := make([]float32, 2*rad+1)
	var sum float32
	for i := range k {
		d := float32(i - rad)
		k[i] = mat32.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// smoothAxis convolves the volume along one axis (0=x, 1=y, 2=z) with a
// Gaussian, mirroring at the edges via kernel renormalization.
func smoothAxis(vol, buf []float32, nx, ny, nz, axis int, sigma float32) {
	k := gaussKernel(sigma)
	if len(k) == 1 {
		return
	}
	rad := len(k) / 2
	dim := [3]int{nx, ny, nz}
	stride := [3]int{1, nx, nx * ny}
	n := dim[axis]
	st := stride[axis]
	copy(buf, vol)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				idx := (z*ny+y)*nx + x
				pos := [3]int{x, y, z}[axis]
				var sum, wsum float32
				for j := -rad; j <= rad; j++ {
					p := pos + j
					if p < 0 || p >= n {
						continue
					}
					w := k[j+rad]
					sum += w * buf[idx+j*st]
					wsum += w
				}
				if wsum > 0 {
					vol[idx] = sum / wsum
				}
			}
		}
	}
}

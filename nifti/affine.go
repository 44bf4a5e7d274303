// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nifti

import (
	"github.com/goki/mat32"
)

// VoxSize returns the spatial voxel sizes (dx, dy, dz) in mm.
func (img *Img) VoxSize() mat32.Vec3 {
	h := &img.Header
	return mat32.Vec3{X: mat32.Abs(h.Pixdim[1]), Y: mat32.Abs(h.Pixdim[2]), Z: mat32.Abs(h.Pixdim[3])}
}

// Affine returns the voxel-index to world-space (x, y, z, 1) transform,
// preferring the sform rows when sform_code > 0, else the qform
// quaternion, else plain pixdim scaling.
func (img *Img) Affine() mat32.Mat4 {
	h := &img.Header
	m := mat32.Mat4{}
	m.SetIdentity()
	switch {
	case h.SformCode > 0:
		m.Set(
			h.SrowX[0], h.SrowX[1], h.SrowX[2], h.SrowX[3],
			h.SrowY[0], h.SrowY[1], h.SrowY[2], h.SrowY[3],
			h.SrowZ[0], h.SrowZ[1], h.SrowZ[2], h.SrowZ[3],
			0, 0, 0, 1,
		)
	case h.QformCode > 0:
		b, c, d := h.QuaternB, h.QuaternC, h.QuaternD
		a := 1 - (b*b + c*c + d*d)
		if a < 0 {
			a = 0
		}
		a = mat32.Sqrt(a)
		qfac := h.Pixdim[0]
		if qfac == 0 {
			qfac = 1
		}
		dx, dy, dz := h.Pixdim[1], h.Pixdim[2], qfac*h.Pixdim[3]
		// standard quaternion to rotation matrix, columns scaled by voxel size
		m.Set(
			(a*a+b*b-c*c-d*d)*dx, 2*(b*c-a*d)*dy, 2*(b*d+a*c)*dz, h.QoffsetX,
			2*(b*c+a*d)*dx, (a*a+c*c-b*b-d*d)*dy, 2*(c*d-a*b)*dz, h.QoffsetY,
			2*(b*d-a*c)*dx, 2*(c*d+a*b)*dy, (a*a+d*d-b*b-c*c)*dz, h.QoffsetZ,
			0, 0, 0, 1,
		)
	default:
		m.Set(
			h.Pixdim[1], 0, 0, 0,
			0, h.Pixdim[2], 0, 0,
			0, 0, h.Pixdim[3], 0,
			0, 0, 0, 1,
		)
	}
	return m
}

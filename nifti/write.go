// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emer/etable/v2/etensor"
)

// NewImg creates a float32 image with the given spatial dimensions, time
// points (nt <= 1 makes a 3D image), and voxel sizes in mm (tr in
// seconds for 4D).  The header is filled in for single-file output.
func NewImg(nx, ny, nz, nt int, dx, dy, dz float32, tr float64) *Img {
	img := &Img{Nx: nx, Ny: ny, Nz: nz, Nt: nt}
	if nt < 1 {
		img.Nt = 1
	}
	h := &img.Header
	h.SizeofHdr = headerSize
	h.Magic = magicN1
	h.Datatype = DTFloat32
	h.Bitpix = 32
	h.VoxOffset = dataOffset
	h.SclSlope = 1
	h.Pixdim[0] = 1
	h.Pixdim[1] = dx
	h.Pixdim[2] = dy
	h.Pixdim[3] = dz
	if img.Nt > 1 {
		h.Dim[0] = 4
		h.Pixdim[4] = float32(tr)
		h.Dim[4] = int16(img.Nt)
	} else {
		h.Dim[0] = 3
	}
	h.Dim[1] = int16(nx)
	h.Dim[2] = int16(ny)
	h.Dim[3] = int16(nz)
	h.XyztUnits = 2 | 8 // mm, sec
	img.ByteOrder = binary.LittleEndian
	img.Data = newData(img)
	return img
}

// NewMap creates an empty 3D float32 statistic map inheriting the
// spatial geometry (dimensions, voxel sizes, qform/sform) of the given
// reference image.
func NewMap(ref *Img) *Img {
	img := NewImg(ref.Nx, ref.Ny, ref.Nz, 1,
		ref.Header.Pixdim[1], ref.Header.Pixdim[2], ref.Header.Pixdim[3], 0)
	h := &img.Header
	rh := &ref.Header
	h.QformCode = rh.QformCode
	h.SformCode = rh.SformCode
	h.QuaternB, h.QuaternC, h.QuaternD = rh.QuaternB, rh.QuaternC, rh.QuaternD
	h.QoffsetX, h.QoffsetY, h.QoffsetZ = rh.QoffsetX, rh.QoffsetY, rh.QoffsetZ
	h.SrowX, h.SrowY, h.SrowZ = rh.SrowX, rh.SrowY, rh.SrowZ
	h.Pixdim[0] = rh.Pixdim[0]
	return img
}

// SetMap fills a 3D image's voxels from a flat [z][y][x] slice.
func (img *Img) SetMap(vals []float32) error {
	if len(vals) != img.NVox() {
		return fmt.Errorf("nifti: %d values for %d voxels", len(vals), img.NVox())
	}
	copy(img.Data.Values, vals)
	return nil
}

func newData(img *Img) *etensor.Float32 {
	if img.Header.Dim[0] >= 4 {
		return etensor.NewFloat32([]int{img.Nt, img.Nz, img.Ny, img.Nx}, nil, []string{"T", "Z", "Y", "X"})
	}
	return etensor.NewFloat32([]int{img.Nz, img.Ny, img.Nx}, nil, []string{"Z", "Y", "X"})
}

// Save writes the image to the given path as a single-file NIfTI-1
// image, gzip-compressed when the path ends in .gz.  Parent directories
// are created as needed.  Data is always written as little-endian
// float32.
func (img *Img) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("nifti: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("nifti: %w", err)
	}
	defer f.Close()
	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}
	if err := img.Write(w); err != nil {
		return fmt.Errorf("nifti: %s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("nifti: %s: %w", path, err)
		}
	}
	return nil
}

// Write encodes the image to the writer, uncompressed.
func (img *Img) Write(w io.Writer) error {
	h := img.Header
	h.SizeofHdr = headerSize
	h.Magic = magicN1
	h.Datatype = DTFloat32
	h.Bitpix = 32
	h.VoxOffset = dataOffset
	h.SclSlope = 1
	h.SclInter = 0

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		return err
	}
	// 4 zero extension bytes pad the header to the data offset
	buf.Write([]byte{0, 0, 0, 0})
	if err := binary.Write(&buf, binary.LittleEndian, img.Data.Values); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nifti

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"
)

const difTol = 1.0e-6

func TestRoundTrip(t *testing.T) {
	img := NewImg(4, 3, 2, 5, 3, 3, 3.3, 2.0)
	for i := range img.Data.Values {
		img.Data.Values[i] = float32(i) * 0.25
	}
	fnm := filepath.Join(t.TempDir(), "bold.nii.gz")
	if err := img.Save(fnm); err != nil {
		t.Fatal(err)
	}
	rd, err := Open(fnm)
	if err != nil {
		t.Fatal(err)
	}
	if rd.Nx != 4 || rd.Ny != 3 || rd.Nz != 2 || rd.Nt != 5 {
		t.Fatalf("dims: %d %d %d %d", rd.Nx, rd.Ny, rd.Nz, rd.Nt)
	}
	if rd.TR() != 2.0 {
		t.Errorf("TR: %g, want 2", rd.TR())
	}
	if rd.Duration() != 10.0 {
		t.Errorf("Duration: %g, want 10", rd.Duration())
	}
	if rd.NVox() != 24 {
		t.Errorf("NVox: %d, want 24", rd.NVox())
	}
	for i, v := range rd.Data.Values {
		if v != img.Data.Values[i] {
			t.Fatalf("voxel %d: %g, want %g", i, v, img.Data.Values[i])
		}
	}
	// At indexes x fastest
	if rd.At(1, 0, 0, 0) != 0.25 {
		t.Errorf("At(1,0,0,0) = %g, want 0.25", rd.At(1, 0, 0, 0))
	}
	if rd.At(0, 0, 0, 1) != float32(24)*0.25 {
		t.Errorf("At(0,0,0,1) = %g, want 6", rd.At(0, 0, 0, 1))
	}
}

func TestOpenHeader(t *testing.T) {
	img := NewImg(4, 3, 2, 5, 3, 3, 3.3, 2.0)
	for i := range img.Data.Values {
		img.Data.Values[i] = float32(i)
	}
	fnm := filepath.Join(t.TempDir(), "bold.nii.gz")
	if err := img.Save(fnm); err != nil {
		t.Fatal(err)
	}
	hd, err := OpenHeader(fnm)
	if err != nil {
		t.Fatal(err)
	}
	if hd.Data != nil {
		t.Errorf("header-only read should leave voxel data unloaded")
	}
	if hd.Nx != 4 || hd.Ny != 3 || hd.Nz != 2 || hd.Nt != 5 {
		t.Errorf("dims: %d %d %d %d", hd.Nx, hd.Ny, hd.Nz, hd.Nt)
	}
	if hd.TR() != 2.0 || hd.Duration() != 10.0 {
		t.Errorf("TR %g duration %g, want 2 and 10", hd.TR(), hd.Duration())
	}

	// truncated header
	if _, err := ReadHeader(bytes.NewReader(make([]byte, 100))); err == nil {
		t.Errorf("truncated header should error")
	}
}

func TestMap3D(t *testing.T) {
	ref := NewImg(3, 3, 3, 10, 2, 2, 2, 1.5)
	ref.Header.SformCode = 4
	ref.Header.SrowX = [4]float32{2, 0, 0, -10}
	ref.Header.SrowY = [4]float32{0, 2, 0, -12}
	ref.Header.SrowZ = [4]float32{0, 0, 2, -14}

	mp := NewMap(ref)
	if mp.Nt != 1 || mp.Header.Dim[0] != 3 {
		t.Errorf("map should be 3D: nt %d dim0 %d", mp.Nt, mp.Header.Dim[0])
	}
	if mp.Duration() != 0 {
		t.Errorf("3D map duration: %g, want 0", mp.Duration())
	}
	if mp.Header.SformCode != 4 || mp.Header.SrowX != ref.Header.SrowX {
		t.Errorf("map did not inherit sform")
	}
	vals := make([]float32, 27)
	for i := range vals {
		vals[i] = float32(i)
	}
	if err := mp.SetMap(vals); err != nil {
		t.Fatal(err)
	}
	if err := mp.SetMap(vals[:5]); err == nil {
		t.Errorf("wrong-length SetMap should error")
	}

	vs := mp.VoxSize()
	if math.Abs(float64(vs.X)-2) > difTol || math.Abs(float64(vs.Y)-2) > difTol || math.Abs(float64(vs.Z)-2) > difTol {
		t.Errorf("voxel sizes: %v, want (2, 2, 2)", vs)
	}

	fnm := filepath.Join(t.TempDir(), "map.nii")
	if err := mp.Save(fnm); err != nil {
		t.Fatal(err)
	}
	rd, err := Open(fnm)
	if err != nil {
		t.Fatal(err)
	}
	if rd.At(2, 2, 2, 0) != 26 {
		t.Errorf("At(2,2,2,0) = %g, want 26", rd.At(2, 2, 2, 0))
	}
}

func TestReadScaled(t *testing.T) {
	// int16 data with scl slope / inter applied on read
	img := NewImg(2, 2, 1, 1, 1, 1, 1, 0)
	h := img.Header
	h.Datatype = DTInt16
	h.Bitpix = 16
	h.SclSlope = 0.5
	h.SclInter = 10

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		t.Fatal(err)
	}
	buf.Write([]byte{0, 0, 0, 0})
	if err := binary.Write(&buf, binary.LittleEndian, []int16{0, 2, 4, -6}); err != nil {
		t.Fatal(err)
	}
	rd, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{10, 11, 12, 7}
	for i, v := range rd.Data.Values {
		if v != want[i] {
			t.Errorf("voxel %d: %g, want %g", i, v, want[i])
		}
	}
}

func TestReadBigEndian(t *testing.T) {
	img := NewImg(2, 1, 1, 1, 1, 1, 1, 0)
	img.Data.Values[0] = 1.5
	img.Data.Values[1] = -3

	h := img.Header
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, &h); err != nil {
		t.Fatal(err)
	}
	buf.Write([]byte{0, 0, 0, 0})
	if err := binary.Write(&buf, binary.BigEndian, img.Data.Values); err != nil {
		t.Fatal(err)
	}
	rd, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if rd.ByteOrder != binary.BigEndian {
		t.Errorf("byte order not inferred as big endian")
	}
	if rd.Data.Values[0] != 1.5 || rd.Data.Values[1] != -3 {
		t.Errorf("values: %v", rd.Data.Values)
	}
}

func TestReadErrors(t *testing.T) {
	if _, err := Read(bytes.NewReader(make([]byte, 100))); err == nil {
		t.Errorf("truncated header should error")
	}

	img := NewImg(2, 2, 2, 1, 1, 1, 1, 0)
	h := img.Header
	h.Magic = [4]int8{110, 105, 49, 0} // "ni1\0" two-file form
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &h)
	buf.Write(make([]byte, 4+4*8))
	if _, err := Read(&buf); err == nil {
		t.Errorf("two-file magic should error")
	}

	h = img.Header
	h.Datatype = 128 // DT_RGB24, unsupported
	h.Bitpix = 24
	buf.Reset()
	binary.Write(&buf, binary.LittleEndian, &h)
	buf.Write(make([]byte, 4+3*8))
	if _, err := Read(&buf); err == nil {
		t.Errorf("unsupported datatype should error")
	}
}

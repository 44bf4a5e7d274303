// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
.nii.gz), holding voxel data in etensor.Float32 tensors shaped
[T][Z][Y][X] for 4D series and [Z][Y][X] for 3D maps (row-major, x
fastest, matching the on-disk voxel order).

Header field layout follows the official nifti1.h definition:
https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
*/
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/emer/etable/v2/etensor"
	log "github.com/sirupsen/logrus"
)

// Header is the 348-byte NIfTI-1 header.
//
// Type translation from the C header: int -> int32, float -> float32,
// short -> int16, char -> int8.
type Header struct {
	SizeofHdr          int32      // Must be 348
	UnusedDataType     [10]int8   // Unused
	UnusedDbName       [18]int8   // Unused
	UnusedExtents      int32      // Unused
	UnusedSessionError int16      // Unused
	UnusedRegular      int8       // Unused
	DimInfo            int8       // MRI slice ordering
	Dim                [8]int16   // Data array dimensions
	IntentP1           float32    // 1st intent parameter
	IntentP2           float32    // 2nd intent parameter
	IntentP3           float32    // 3rd intent parameter
	IntentCode         int16      // NIFTI_INTENT_* code
	Datatype           int16      // Defines data type
	Bitpix             int16      // Number bits/voxel
	SliceStart         int16      // First slice index
	Pixdim             [8]float32 // Grid spacing
	VoxOffset          float32    // Offset into .nii file
	SclSlope           float32    // Data scaling: slope
	SclInter           float32    // Data scaling: offset
	SliceEnd           int16      // Last slice index
	SliceCode          int8       // Slice timing order
	XyztUnits          int8       // Units of pixdim[1..4]
	CalMax             float32    // Max display intensity
	CalMin             float32    // Min display intensity
	SliceDuration      float32    // Time for 1 slice
	Toffset            float32    // Time axis shift
	UnusedGlmax        int32      // Unused
	UnusedGlmin        int32      // Unused
	Descrip            [80]int8   // Any text you like
	AuxFile            [24]int8   // Auxiliary filename
	QformCode          int16      // NIFTI_XFORM_* code
	SformCode          int16      // NIFTI_XFORM_* code
	QuaternB           float32    // Quaternion b param
	QuaternC           float32    // Quaternion c param
	QuaternD           float32    // Quaternion d param
	QoffsetX           float32    // Quaternion x shift
	QoffsetY           float32    // Quaternion y shift
	QoffsetZ           float32    // Quaternion z shift
	SrowX              [4]float32 // 1st row affine transform
	SrowY              [4]float32 // 2nd row affine transform
	SrowZ              [4]float32 // 3rd row affine transform
	IntentName         [16]int8   // 'name' or meaning of data
	Magic              [4]int8    // Must be "ni1\0" or "n+1\0"
}

// NIfTI-1 datatype codes (DT_* in nifti1.h)
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
)

const headerSize = 348

// vox offset for single-file nifti: header + 4 extension bytes
const dataOffset = 352

// single-file magic "n+1\0"
var magicN1 = [4]int8{110, 43, 49, 0}

// Img is one loaded NIfTI-1 image: the raw header plus decoded,
// scl-scaled voxel data.
type Img struct {
	// raw header as read from or prepared for disk
	Header Header

	// voxel data shaped [T][Z][Y][X] (4D) or [Z][Y][X] (3D),
	// after scl_slope / scl_inter scaling
	Data *etensor.Float32

	// spatial dimensions
	Nx, Ny, Nz int

	// number of time points; 1 for 3D maps
	Nt int

	// byte order the file was stored in
	ByteOrder binary.ByteOrder
}

// TR returns the repetition time (pixdim[4]) in seconds.
func (img *Img) TR() float64 {
	return float64(img.Header.Pixdim[4])
}

// Duration returns the total scan duration in seconds: nt * TR.
// Returns 0 for images without a temporal axis.
func (img *Img) Duration() float64 {
	if img.Header.Dim[0] < 4 {
		return 0
	}
	return float64(img.Nt) * img.TR()
}

// NVox returns the number of spatial voxels per volume.
func (img *Img) NVox() int {
	return img.Nx * img.Ny * img.Nz
}

// SizeBytes returns the in-memory size of the decoded voxel data.
func (img *Img) SizeBytes() int {
	return 4 * len(img.Data.Values)
}

// At returns the voxel value at spatial index (x, y, z) and time t.
// For 3D images t must be 0.
func (img *Img) At(x, y, z, t int) float32 {
	return img.Data.Values[((t*img.Nz+z)*img.Ny+y)*img.Nx+x]
}

// Open reads a NIfTI-1 image from the given path, transparently
// decompressing .gz files.
func Open(path string) (*Img, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("nifti: %w", err)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("nifti: %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	img, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("nifti: %s: %w", path, err)
	}
	return img, nil
}

// OpenHeader reads only the header of a NIfTI-1 image from the given
// path, transparently decompressing .gz files.  The returned image has
// no voxel data; use it to inspect dimensions, TR, and duration
// without loading the series.
func OpenHeader(path string) (*Img, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("nifti: %w", err)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("nifti: %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	img, err := ReadHeader(r)
	if err != nil {
		return nil, fmt.Errorf("nifti: %s: %w", path, err)
	}
	return img, nil
}

// parseHeader decodes the 348-byte header, inferring byte order from
// the header's dim[0], which must be in [1, 7] in the file's native
// order.
func parseHeader(raw []byte) (Header, binary.ByteOrder, error) {
	h := Header{}
	var order binary.ByteOrder = binary.LittleEndian
	if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
		return h, order, err
	}
	if h.Dim[0] <= 0 || h.Dim[0] > 7 {
		h = Header{}
		order = binary.BigEndian
		if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
			return h, order, err
		}
	}
	if h.Dim[0] <= 0 || h.Dim[0] > 7 {
		return h, order, fmt.Errorf("cannot infer byte order: dim[0] not in [1, 7] in either order")
	}
	if h.SizeofHdr != headerSize {
		return h, order, fmt.Errorf("invalid header size %d, must be %d", h.SizeofHdr, headerSize)
	}
	if h.Magic != magicN1 {
		return h, order, fmt.Errorf("invalid magic %v: header and data must be in the same file", h.Magic)
	}
	return h, order, nil
}

// newFromHeader builds an image shell (no voxel data) from a decoded
// header.
func newFromHeader(h Header, order binary.ByteOrder) *Img {
	img := &Img{Header: h, ByteOrder: order}
	img.Nx = dimOr1(h.Dim[1])
	img.Ny = dimOr1(h.Dim[2])
	img.Nz = dimOr1(h.Dim[3])
	img.Nt = dimOr1(h.Dim[4])
	return img
}

// ReadHeader decodes only the header from the reader, leaving the
// image's Data nil.
func ReadHeader(r io.Reader) (*Img, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading %d byte header: %w", headerSize, err)
	}
	h, order, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}
	return newFromHeader(h, order), nil
}

// Read decodes a NIfTI-1 image from the reader, header and voxel data.
func Read(r io.Reader) (*Img, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("file has %d bytes, shorter than the %d byte header", len(raw), headerSize)
	}
	h, order, err := parseHeader(raw[:headerSize])
	if err != nil {
		return nil, err
	}
	img := newFromHeader(h, order)

	offset := int(h.VoxOffset)
	if offset < dataOffset {
		offset = dataOffset
	}
	nvox := img.Nx * img.Ny * img.Nz * img.Nt
	need := offset + nvox*int(h.Bitpix)/8
	if len(raw) < need {
		return nil, fmt.Errorf("file has %d bytes, need %d for %d voxels", len(raw), need, nvox)
	}
	vals, err := decode(raw[offset:need], h.Datatype, order, nvox)
	if err != nil {
		return nil, err
	}
	if h.SclSlope != 0 && (h.SclSlope != 1 || h.SclInter != 0) {
		for i, v := range vals {
			vals[i] = h.SclSlope*v + h.SclInter
		}
	}
	var shape []int
	var names []string
	if h.Dim[0] >= 4 {
		shape = []int{img.Nt, img.Nz, img.Ny, img.Nx}
		names = []string{"T", "Z", "Y", "X"}
	} else {
		shape = []int{img.Nz, img.Ny, img.Nx}
		names = []string{"Z", "Y", "X"}
	}
	img.Data = etensor.NewFloat32(shape, nil, names)
	copy(img.Data.Values, vals)
	return img, nil
}

func dimOr1(d int16) int {
	if d > 0 {
		return int(d)
	}
	return 1
}

// decode converts raw voxel bytes to float32 per the datatype code.
func decode(b []byte, datatype int16, order binary.ByteOrder, nvox int) ([]float32, error) {
	vals := make([]float32, nvox)
	switch datatype {
	case DTUint8:
		for i := 0; i < nvox; i++ {
			vals[i] = float32(b[i])
		}
	case DTInt16:
		for i := 0; i < nvox; i++ {
			vals[i] = float32(int16(order.Uint16(b[2*i:])))
		}
	case DTInt32:
		for i := 0; i < nvox; i++ {
			vals[i] = float32(int32(order.Uint32(b[4*i:])))
		}
	case DTFloat32:
		for i := 0; i < nvox; i++ {
			vals[i] = math.Float32frombits(order.Uint32(b[4*i:]))
		}
	case DTFloat64:
		for i := 0; i < nvox; i++ {
			vals[i] = float32(math.Float64frombits(order.Uint64(b[8*i:])))
		}
	default:
		log.WithFields(log.Fields{"datatype": datatype}).Error("unsupported nifti datatype")
		return nil, fmt.Errorf("unsupported datatype code %d", datatype)
	}
	return vals, nil
}

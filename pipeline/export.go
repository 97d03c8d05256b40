package pipeline

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/gogpu/gsplat/splat"
)

// ExportPLY writes s as a binary little-endian PLY file using the
// gaussian-splat convention every public 3DGS viewer reads: per-vertex
// position, three zero normals (most consumers ignore them but the
// reference format always carries the property), f_dc_0..2 (the SH DC
// term), f_rest_* (every remaining SH coefficient, channel-major), opacity
// (stored pre-sigmoid, matching the trainer's own parameterization), and
// scale_0..2 / rot_0..3 (log-scale and quaternion, also stored raw).
//
// This is SPEC_FULL §C.1: spec.md §6.3 already names export_every,
// export_path, and export_name but leaves the export operation itself
// unspecified.
func ExportPLY(w io.Writer, s *splat.Splats) error {
	n := s.Len()
	numRest := (len(s.SH[0]) - 1) * 3 // SH coefficients beyond the DC term, 3 channels each

	bw := bufio.NewWriter(w)
	header := strings.Builder{}
	header.WriteString("ply\n")
	header.WriteString("format binary_little_endian 1.0\n")
	fmt.Fprintf(&header, "element vertex %d\n", n)
	for _, axis := range []string{"x", "y", "z"} {
		fmt.Fprintf(&header, "property float %s\n", axis)
	}
	for _, axis := range []string{"nx", "ny", "nz"} {
		fmt.Fprintf(&header, "property float %s\n", axis)
	}
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&header, "property float f_dc_%d\n", i)
	}
	for i := 0; i < numRest; i++ {
		fmt.Fprintf(&header, "property float f_rest_%d\n", i)
	}
	header.WriteString("property float opacity\n")
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&header, "property float scale_%d\n", i)
	}
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&header, "property float rot_%d\n", i)
	}
	header.WriteString("end_header\n")

	if _, err := bw.WriteString(header.String()); err != nil {
		return fmt.Errorf("%w: ply header: %v", ErrIO, err)
	}

	var f32buf [4]byte
	put := func(v float32) error {
		binary.LittleEndian.PutUint32(f32buf[:], math.Float32bits(v))
		_, err := bw.Write(f32buf[:])
		return err
	}

	for i := 0; i < n; i++ {
		mean := s.Means[i]
		if err := put(mean[0]); err != nil {
			return ioErr(err)
		}
		if err := put(mean[1]); err != nil {
			return ioErr(err)
		}
		if err := put(mean[2]); err != nil {
			return ioErr(err)
		}
		for k := 0; k < 3; k++ {
			if err := put(0); err != nil {
				return ioErr(err)
			}
		}
		dc := s.SH[i][0]
		if err := put(dc[0]); err != nil {
			return ioErr(err)
		}
		if err := put(dc[1]); err != nil {
			return ioErr(err)
		}
		if err := put(dc[2]); err != nil {
			return ioErr(err)
		}
		for ch := 0; ch < 3; ch++ {
			for k := 1; k < len(s.SH[i]); k++ {
				if err := put(s.SH[i][k][ch]); err != nil {
					return ioErr(err)
				}
			}
		}
		if err := put(s.LogitOpacities[i]); err != nil {
			return ioErr(err)
		}
		scale := s.LogScales[i]
		if err := put(scale[0]); err != nil {
			return ioErr(err)
		}
		if err := put(scale[1]); err != nil {
			return ioErr(err)
		}
		if err := put(scale[2]); err != nil {
			return ioErr(err)
		}
		rot := s.Rotations[i]
		for k := 0; k < 4; k++ {
			if err := put(rot[k]); err != nil {
				return ioErr(err)
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return ioErr(err)
	}
	return nil
}

func ioErr(err error) error { return fmt.Errorf("%w: %v", ErrIO, err) }

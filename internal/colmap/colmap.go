// Package colmap parses COLMAP sparse-reconstruction output: the camera
// intrinsics, registered image poses, and sparse point cloud that seed
// C8's dataset construction (spec.md §6.5). COLMAP ships two on-disk
// variants of each file — a packed binary form and a whitespace/comment
// text form — dispatched here by a parser-kind tag rather than by two
// unrelated call paths, per spec.md §9's dynamic-dispatch design note.
package colmap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gogpu/gsplat/internal/mathx"
)

// Variant selects which on-disk encoding a COLMAP export uses.
type Variant uint8

const (
	// VariantBinary is the packed little-endian .bin format.
	VariantBinary Variant = iota
	// VariantText is the whitespace-delimited, #-commented .txt format.
	VariantText
)

// CameraModel mirrors the subset of COLMAP's camera models this dataset
// loader supports; others return ErrUnsupportedModel.
type CameraModel uint8

const (
	ModelSimplePinhole CameraModel = iota
	ModelPinhole
	ModelSimpleRadial
)

// Camera is one COLMAP camera intrinsic record.
type Camera struct {
	ID             uint32
	Model          CameraModel
	Width, Height  uint64
	FocalX, FocalY float64
	PrincipalX     float64
	PrincipalY     float64
}

// Image is one registered camera pose: world-to-camera rotation and
// translation, plus the name of the source image on disk.
type Image struct {
	ID       uint32
	Rotation mathx.Quat // world-to-camera, COLMAP's (qw, qx, qy, qz) convention
	Translation mathx.Vec3
	CameraID uint32
	Name     string
}

// Point3D is one sparse reconstruction point; the pipeline seeds the
// initial splat cloud from these (splat.FromSfM).
type Point3D struct {
	ID       uint64
	Position mathx.Vec3
	Color    [3]uint8
}

// ReadCameras parses a cameras.bin or cameras.txt stream according to kind.
func ReadCameras(r io.Reader, kind Variant) (map[uint32]Camera, error) {
	if kind == VariantText {
		return readCamerasText(r)
	}
	return readCamerasBinary(r)
}

// ReadImages parses an images.bin or images.txt stream according to kind.
func ReadImages(r io.Reader, kind Variant) (map[uint32]Image, error) {
	if kind == VariantText {
		return readImagesText(r)
	}
	return readImagesBinary(r)
}

// ReadPoints3D parses a points3D.bin or points3D.txt stream according to kind.
func ReadPoints3D(r io.Reader, kind Variant) ([]Point3D, error) {
	if kind == VariantText {
		return readPoints3DText(r)
	}
	return readPoints3DBinary(r)
}

func cameraModelFromID(id uint32) (CameraModel, int, error) {
	// COLMAP's model IDs and parameter counts, restricted to the models
	// this loader understands.
	switch id {
	case 0:
		return ModelSimplePinhole, 3, nil
	case 1:
		return ModelPinhole, 4, nil
	case 2:
		return ModelSimpleRadial, 4, nil
	default:
		return 0, 0, fmt.Errorf("%w: model id %d", ErrUnsupportedModel, id)
	}
}

func cameraModelFromName(name string) (CameraModel, int, error) {
	switch name {
	case "SIMPLE_PINHOLE":
		return ModelSimplePinhole, 3, nil
	case "PINHOLE":
		return ModelPinhole, 4, nil
	case "SIMPLE_RADIAL":
		return ModelSimpleRadial, 4, nil
	default:
		return 0, 0, fmt.Errorf("%w: model %q", ErrUnsupportedModel, name)
	}
}

func intrinsicsFromParams(model CameraModel, p []float64) (focalX, focalY, px, py float64) {
	switch model {
	case ModelSimplePinhole:
		return p[0], p[0], p[1], p[2]
	case ModelSimpleRadial:
		return p[0], p[0], p[1], p[2]
	default: // ModelPinhole
		return p[0], p[1], p[2], p[3]
	}
}

func readCamerasBinary(r io.Reader) (map[uint32]Camera, error) {
	br := bufio.NewReader(r)
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("colmap: read camera count: %w", err)
	}

	cams := make(map[uint32]Camera, count)
	for i := uint64(0); i < count; i++ {
		var id, modelID uint32
		var width, height uint64
		if err := binary.Read(br, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("colmap: read camera id: %w", err)
		}
		if err := binary.Read(br, binary.LittleEndian, &modelID); err != nil {
			return nil, fmt.Errorf("colmap: read camera model: %w", err)
		}
		if err := binary.Read(br, binary.LittleEndian, &width); err != nil {
			return nil, fmt.Errorf("colmap: read camera width: %w", err)
		}
		if err := binary.Read(br, binary.LittleEndian, &height); err != nil {
			return nil, fmt.Errorf("colmap: read camera height: %w", err)
		}

		model, nParams, err := cameraModelFromID(modelID)
		if err != nil {
			return nil, err
		}

		params := make([]float64, nParams)
		if err := binary.Read(br, binary.LittleEndian, &params); err != nil {
			return nil, fmt.Errorf("colmap: read camera params: %w", err)
		}

		fx, fy, px, py := intrinsicsFromParams(model, params)
		cams[id] = Camera{ID: id, Model: model, Width: width, Height: height,
			FocalX: fx, FocalY: fy, PrincipalX: px, PrincipalY: py}
	}
	return cams, nil
}

func readCamerasText(r io.Reader) (map[uint32]Camera, error) {
	cams := make(map[uint32]Camera)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return nil, fmt.Errorf("%w: camera line %q", ErrMalformed, line)
		}
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: camera id %q", ErrMalformed, fields[0])
		}
		model, nParams, err := cameraModelFromName(fields[1])
		if err != nil {
			return nil, err
		}
		width, _ := strconv.ParseUint(fields[2], 10, 64)
		height, _ := strconv.ParseUint(fields[3], 10, 64)

		params := make([]float64, 0, nParams)
		for _, f := range fields[4:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: camera param %q", ErrMalformed, f)
			}
			params = append(params, v)
		}
		if len(params) != nParams {
			return nil, fmt.Errorf("%w: camera %d expected %d params, got %d", ErrMalformed, id, nParams, len(params))
		}

		fx, fy, px, py := intrinsicsFromParams(model, params)
		cams[uint32(id)] = Camera{ID: uint32(id), Model: model, Width: width, Height: height,
			FocalX: fx, FocalY: fy, PrincipalX: px, PrincipalY: py}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("colmap: scan cameras.txt: %w", err)
	}
	return cams, nil
}

func readImagesBinary(r io.Reader) (map[uint32]Image, error) {
	br := bufio.NewReader(r)
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("colmap: read image count: %w", err)
	}

	images := make(map[uint32]Image, count)
	for i := uint64(0); i < count; i++ {
		var id uint32
		var qw, qx, qy, qz, tx, ty, tz float64
		var cameraID uint32
		if err := binary.Read(br, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("colmap: read image id: %w", err)
		}
		for _, f := range []*float64{&qw, &qx, &qy, &qz, &tx, &ty, &tz} {
			if err := binary.Read(br, binary.LittleEndian, f); err != nil {
				return nil, fmt.Errorf("colmap: read image pose: %w", err)
			}
		}
		if err := binary.Read(br, binary.LittleEndian, &cameraID); err != nil {
			return nil, fmt.Errorf("colmap: read image camera id: %w", err)
		}

		name, err := readNullTerminated(br)
		if err != nil {
			return nil, fmt.Errorf("colmap: read image name: %w", err)
		}

		var numPoints2D uint64
		if err := binary.Read(br, binary.LittleEndian, &numPoints2D); err != nil {
			return nil, fmt.Errorf("colmap: read image point count: %w", err)
		}
		// Skip the 2D point track (x, y, point3D_id) triples; this loader
		// only needs the camera pose, not the feature correspondences.
		if _, err := io.CopyN(io.Discard, br, int64(numPoints2D)*(8+8+8)); err != nil {
			return nil, fmt.Errorf("colmap: skip image points2D: %w", err)
		}

		images[id] = Image{
			ID:          id,
			Rotation:    mathx.Quat{float32(qw), float32(qx), float32(qy), float32(qz)},
			Translation: mathx.Vec3{float32(tx), float32(ty), float32(tz)},
			CameraID:    cameraID,
			Name:        name,
		}
	}
	return images, nil
}

func readNullTerminated(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(s, "\x00"), nil
}

func readImagesText(r io.Reader) (map[uint32]Image, error) {
	images := make(map[uint32]Image)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	skipNext := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if skipNext {
			// The 2D point track line following each pose line.
			skipNext = false
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 10 {
			return nil, fmt.Errorf("%w: image line %q", ErrMalformed, line)
		}
		id, _ := strconv.ParseUint(fields[0], 10, 32)
		var pose [7]float64
		for i := range pose {
			v, err := strconv.ParseFloat(fields[1+i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: image pose field %q", ErrMalformed, fields[1+i])
			}
			pose[i] = v
		}
		cameraID, _ := strconv.ParseUint(fields[8], 10, 32)
		name := fields[9]

		images[uint32(id)] = Image{
			ID:          uint32(id),
			Rotation:    mathx.Quat{float32(pose[0]), float32(pose[1]), float32(pose[2]), float32(pose[3])},
			Translation: mathx.Vec3{float32(pose[4]), float32(pose[5]), float32(pose[6])},
			CameraID:    uint32(cameraID),
			Name:        name,
		}
		skipNext = true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("colmap: scan images.txt: %w", err)
	}
	return images, nil
}

func readPoints3DBinary(r io.Reader) ([]Point3D, error) {
	br := bufio.NewReader(r)
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("colmap: read point count: %w", err)
	}

	points := make([]Point3D, 0, count)
	for i := uint64(0); i < count; i++ {
		var id uint64
		var x, y, z float64
		var rgb [3]uint8
		var errVal float64
		if err := binary.Read(br, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("colmap: read point id: %w", err)
		}
		for _, f := range []*float64{&x, &y, &z} {
			if err := binary.Read(br, binary.LittleEndian, f); err != nil {
				return nil, fmt.Errorf("colmap: read point position: %w", err)
			}
		}
		if err := binary.Read(br, binary.LittleEndian, &rgb); err != nil {
			return nil, fmt.Errorf("colmap: read point color: %w", err)
		}
		if err := binary.Read(br, binary.LittleEndian, &errVal); err != nil {
			return nil, fmt.Errorf("colmap: read point error: %w", err)
		}

		var trackLen uint64
		if err := binary.Read(br, binary.LittleEndian, &trackLen); err != nil {
			return nil, fmt.Errorf("colmap: read point track length: %w", err)
		}
		if _, err := io.CopyN(io.Discard, br, int64(trackLen)*(4+4)); err != nil {
			return nil, fmt.Errorf("colmap: skip point track: %w", err)
		}

		points = append(points, Point3D{
			ID:       id,
			Position: mathx.Vec3{float32(x), float32(y), float32(z)},
			Color:    rgb,
		})
	}
	return points, nil
}

func readPoints3DText(r io.Reader) ([]Point3D, error) {
	var points []Point3D
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 7 {
			return nil, fmt.Errorf("%w: point line %q", ErrMalformed, line)
		}
		id, _ := strconv.ParseUint(fields[0], 10, 64)
		var xyz [3]float64
		for i := range xyz {
			v, err := strconv.ParseFloat(fields[1+i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: point position field %q", ErrMalformed, fields[1+i])
			}
			xyz[i] = v
		}
		var rgb [3]uint8
		for i := range rgb {
			v, err := strconv.ParseUint(fields[4+i], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("%w: point color field %q", ErrMalformed, fields[4+i])
			}
			rgb[i] = uint8(v)
		}
		points = append(points, Point3D{
			ID:       id,
			Position: mathx.Vec3{float32(xyz[0]), float32(xyz[1]), float32(xyz[2])},
			Color:    rgb,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("colmap: scan points3D.txt: %w", err)
	}
	return points, nil
}

// Package dataset loads a COLMAP-reconstructed scene into the SceneView
// list the training pipeline iterates over: camera poses and intrinsics
// paired with their source image, decoded and resized on demand through a
// byte-bounded LRU cache, streamed to the training loop over a bounded
// channel (spec.md C8).
package dataset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/gogpu/gsplat/internal/colmap"
	"github.com/gogpu/gsplat/internal/mathx"

	_ "golang.org/x/image/webp" // decode webp-format COLMAP source images
)

// Dataset errors.
var (
	ErrNoImages    = errors.New("dataset: no registered images found")
	ErrCameraMissing = errors.New("dataset: image references unknown camera")
)

// Camera is a pinhole camera's intrinsics in pixels.
type Camera struct {
	Width, Height  int
	FocalX, FocalY float64
	PrincipalX, PrincipalY float64
}

// SceneView is one training example: a camera pose, its intrinsics, the
// path to its source image, and an optional foreground mask path.
type SceneView struct {
	Name        string
	Camera      Camera
	Rotation    mathx.Quat // world-to-camera
	Translation mathx.Vec3
	ImagePath   string
	MaskPath    string // empty if the view has no mask
}

// Dataset is a loaded scene: its views and the up-axis estimated from
// their camera poses (SPEC_FULL §C.3).
type Dataset struct {
	Views  []SceneView
	UpAxis mathx.Vec3
}

// loggerPtr mirrors internal/gpu's atomic-pointer no-op default pattern
// for this package's own diagnostics (cache evictions, decode failures).
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger installs the logger used for cache evictions and decode
// warnings.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// LoadConfig configures a COLMAP scene load.
type LoadConfig struct {
	// SparseDir holds cameras/images/points3D in either variant.
	SparseDir string
	// ImageDir holds the source images named by images.{bin,txt}.
	ImageDir string
	// MaskDir optionally holds a same-named mask per image.
	MaskDir string
	// Variant selects binary or text COLMAP files.
	Variant colmap.Variant
}

// Load reads a COLMAP sparse reconstruction and builds a Dataset, pairing
// every registered image with its camera intrinsics and pose.
func Load(cfg LoadConfig) (*Dataset, error) {
	camExt, imgExt := ".bin", ".bin"
	if cfg.Variant == colmap.VariantText {
		camExt, imgExt = ".txt", ".txt"
	}

	camFile, err := os.Open(filepath.Join(cfg.SparseDir, "cameras"+camExt))
	if err != nil {
		return nil, fmt.Errorf("dataset: open cameras: %w", err)
	}
	defer camFile.Close()
	cameras, err := colmap.ReadCameras(camFile, cfg.Variant)
	if err != nil {
		return nil, fmt.Errorf("dataset: parse cameras: %w", err)
	}

	imgFile, err := os.Open(filepath.Join(cfg.SparseDir, "images"+imgExt))
	if err != nil {
		return nil, fmt.Errorf("dataset: open images: %w", err)
	}
	defer imgFile.Close()
	images, err := colmap.ReadImages(imgFile, cfg.Variant)
	if err != nil {
		return nil, fmt.Errorf("dataset: parse images: %w", err)
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	// spec.md §3.4: "Built by sorting COLMAP images by filename" so
	// Split's every-Nth eval holdout is deterministic across runs.
	orderedImages := make([]colmap.Image, 0, len(images))
	for _, img := range images {
		orderedImages = append(orderedImages, img)
	}
	sort.Slice(orderedImages, func(i, j int) bool { return orderedImages[i].Name < orderedImages[j].Name })

	views := make([]SceneView, 0, len(orderedImages))
	for _, img := range orderedImages {
		cam, ok := cameras[img.CameraID]
		if !ok {
			return nil, fmt.Errorf("%w: image %q camera %d", ErrCameraMissing, img.Name, img.CameraID)
		}

		view := SceneView{
			Name:        img.Name,
			Rotation:    img.Rotation,
			Translation: img.Translation,
			ImagePath:   filepath.Join(cfg.ImageDir, img.Name),
			Camera: Camera{
				Width: int(cam.Width), Height: int(cam.Height),
				FocalX: cam.FocalX, FocalY: cam.FocalY,
				PrincipalX: cam.PrincipalX, PrincipalY: cam.PrincipalY,
			},
		}
		if cfg.MaskDir != "" {
			candidate := filepath.Join(cfg.MaskDir, img.Name)
			if _, err := os.Stat(candidate); err == nil {
				view.MaskPath = candidate
			}
		}
		views = append(views, view)
	}

	slogger().Info("dataset loaded", "views", len(views), "cameras", len(cameras))

	return &Dataset{Views: views, UpAxis: EstimateUpAxis(views)}, nil
}

// EstimateUpAxis derives a scene's up direction from the dominant camera-up
// vector across the training views (SPEC_FULL §C.3): each view's camera-up
// in world space is the second row of its world-to-camera rotation matrix
// (negated, since COLMAP's camera-space Y points down), averaged and
// normalized.
func EstimateUpAxis(views []SceneView) mathx.Vec3 {
	if len(views) == 0 {
		return mathx.Vec3{0, 1, 0}
	}
	var sum mathx.Vec3
	for _, v := range views {
		r := mathx.RotationMatrix(v.Rotation)
		// Row 1 of R is the world-space direction that maps to camera +Y;
		// negate for camera "up" in COLMAP's Y-down convention.
		up := mathx.Vec3{-r[1][0], -r[1][1], -r[1][2]}
		sum = sum.Add(up)
	}
	return sum.Normalize()
}

// Split partitions filename-sorted views into train/eval subsets, holding
// out every holdoutEvery-th view for evaluation (spec.md §3.4's
// eval_split_every, applied to the filename-sorted order Load already
// produced). holdoutEvery <= 0 disables the eval split entirely (spec.md
// §8 boundary behavior 11: a dataset with |eval| = 0 causes eval to skip,
// not error).
func Split(views []SceneView, holdoutEvery int) (train, eval []SceneView) {
	if holdoutEvery <= 0 {
		return views, nil
	}
	for i, v := range views {
		if i%holdoutEvery == 0 {
			eval = append(eval, v)
		} else {
			train = append(train, v)
		}
	}
	return train, eval
}

// decodeImage is a thin wrapper around image.Decode kept separate so the
// cache and the stream loader share one decode path and one set of
// registered codecs.
func decodeImage(r *os.File) (image.Image, error) {
	img, _, err := image.Decode(r)
	return img, err
}

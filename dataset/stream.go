package dataset

import (
	"context"
	"fmt"
	"image"
	"math/rand"
)

// Batch is one decoded training example ready for the rasterizer: the
// view's pose/intrinsics plus its decoded target image (and mask, if any).
type Batch struct {
	View   SceneView
	Target *image.NRGBA
	Mask   *image.NRGBA // nil if the view has no mask
}

// Loader streams decoded Batches from a fixed view list over a bounded
// channel, matching spec.md §5's "bounded channel" streaming requirement:
// decode work runs on a small worker pool so GPU upload never stalls
// waiting on disk I/O, but memory use is capped by the channel's capacity
// plus the Cache's byte budget.
type Loader struct {
	views   []SceneView
	cache   *Cache
	width   int
	height  int
	workers int
}

// NewLoader creates a Loader over views, decoding to width x height
// (0 keeps native resolution) using the given cache and worker count.
func NewLoader(views []SceneView, cache *Cache, width, height, workers int) *Loader {
	if workers <= 0 {
		workers = 4
	}
	return &Loader{views: views, cache: cache, width: width, height: height, workers: workers}
}

// Stream launches the worker pool and returns a channel of Batches in
// shuffled epoch order, closed when ctx is canceled or all epochs'
// batches have been sent if epochs > 0 (0 means stream forever, reshuffling
// each pass).
func (l *Loader) Stream(ctx context.Context, rng *rand.Rand, epochs int, bufSize int) <-chan Batch {
	out := make(chan Batch, bufSize)
	jobs := make(chan SceneView, bufSize)

	go func() {
		defer close(jobs)
		epoch := 0
		for epochs <= 0 || epoch < epochs {
			order := rng.Perm(len(l.views))
			for _, idx := range order {
				select {
				case <-ctx.Done():
					return
				case jobs <- l.views[idx]:
				}
			}
			epoch++
		}
	}()

	done := make(chan struct{})
	for w := 0; w < l.workers; w++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for view := range jobs {
				batch, err := l.decode(view)
				if err != nil {
					slogger().Warn("dataset: decode failed, skipping view", "view", view.Name, "error", err)
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- batch:
				}
			}
		}()
	}

	go func() {
		for w := 0; w < l.workers; w++ {
			<-done
		}
		close(out)
	}()

	return out
}

func (l *Loader) decode(view SceneView) (Batch, error) {
	target, err := l.cache.Get(view.ImagePath, l.width, l.height)
	if err != nil {
		return Batch{}, fmt.Errorf("dataset: decode target: %w", err)
	}
	batch := Batch{View: view, Target: target}
	if view.MaskPath != "" {
		mask, err := l.cache.Get(view.MaskPath, l.width, l.height)
		if err != nil {
			slogger().Warn("dataset: decode mask failed, continuing without it", "view", view.Name, "error", err)
		} else {
			batch.Mask = mask
		}
	}
	return batch, nil
}

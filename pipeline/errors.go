package pipeline

import "errors"

// Error taxonomy (spec.md §7). Each sentinel is wrapped with context via
// fmt.Errorf("%w: ...") at the call site and tested for with errors.Is.
var (
	// ErrConfig marks an invalid configuration, reported pre-run; fatal.
	ErrConfig = errors.New("pipeline: invalid configuration")

	// ErrDataset marks a dataset that cannot be loaded: unsupported
	// format, image decode failure, missing camera file; fatal for the
	// run.
	ErrDataset = errors.New("pipeline: dataset error")

	// ErrRender marks a GPU device-lost or surface-lost condition.
	// Surface-lost is recoverable (reconfigure and reacquire);
	// device-lost is fatal. RenderErr.Recoverable distinguishes the two.
	ErrRender = errors.New("pipeline: render error")

	// ErrBudgetExceeded marks a frame whose intersection count exceeded
	// the rasterizer's budget; logged as a warning, a partial frame is
	// emitted, and training continues (refinement will shrink the
	// cohort). Never fatal.
	ErrBudgetExceeded = errors.New("pipeline: intersection budget exceeded")

	// ErrIO marks a failure from the (out-of-scope) upload/persistence
	// layer; surfaced to its HTTP client as 4xx/5xx. Defined here only so
	// ExportPLY's callers can classify write failures consistently with
	// the rest of the taxonomy.
	ErrIO = errors.New("pipeline: io error")
)

// RenderErr wraps ErrRender with whether the condition is recoverable by
// reconfiguring and re-acquiring the surface (spec.md §7's RenderError
// taxonomy entry).
type RenderErr struct {
	Recoverable bool
	cause       error
}

func (e *RenderErr) Error() string {
	if e.Recoverable {
		return "pipeline: render error (recoverable): " + e.cause.Error()
	}
	return "pipeline: render error (fatal): " + e.cause.Error()
}

func (e *RenderErr) Unwrap() error { return ErrRender }

// NewRenderErr wraps cause as a RenderErr, recoverable when the GPU
// surface (not the device itself) was lost.
func NewRenderErr(cause error, recoverable bool) *RenderErr {
	return &RenderErr{Recoverable: recoverable, cause: cause}
}

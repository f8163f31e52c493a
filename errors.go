package carousel

import (
	"errors"
	"fmt"
)

var (
	// ErrSlideIndex is returned for an index outside the document.
	ErrSlideIndex = errors.New("slide index out of range")
	// ErrLastSlide is returned when removing the only slide of a document.
	ErrLastSlide = errors.New("cannot remove the last slide")
	// ErrUnknownField is returned by UpdateField for a name that is not a slide attribute.
	ErrUnknownField = errors.New("unknown slide field")

	// ErrBusy is returned when an export starts while another one has not settled.
	ErrBusy = errors.New("export already in progress")
	// ErrTaintedSurface is the capture failure for an image the rasterizer cannot read.
	ErrTaintedSurface = errors.New("surface tainted by unreadable image")
	// ErrDimensionMismatch is returned when a capture does not have the requested size.
	ErrDimensionMismatch = errors.New("captured bitmap has unexpected dimensions")
	// ErrNotMounted is returned when a capture targets a slot the renderer has not laid out.
	ErrNotMounted = errors.New("export node not mounted")

	// ErrShareCancelled is returned by a Platform when the user dismissed the share sheet.
	// Delivery treats it as success.
	ErrShareCancelled = errors.New("share cancelled by user")
	// ErrShareUnavailable is returned by a Platform that has no share primitive.
	ErrShareUnavailable = errors.New("share not available")
	// ErrNoDelivery is returned when every delivery strategy failed.
	ErrNoDelivery = errors.New("no delivery strategy succeeded")
	// ErrReleased is returned when delivering a batch whose artifacts were already released.
	ErrReleased = errors.New("artifacts already released")
)

// CaptureError reports a rasterization failure for one slide.
type CaptureError struct {
	Index int
	Err   error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture slide %d: %v", e.Index+1, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

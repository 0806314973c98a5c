// Package camera captures frames from a physical camera and detects faces
// in them (spec §1's "camera acquisition" and "face detector" external
// collaborators). The core installation controller only depends on the
// Source and Detector interfaces in this file; the GoCV-backed
// implementations live in cgo-gated files so the rest of the module
// builds without a C++ OpenCV toolchain present.
package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/RavennaNMA/defensor/internal/show"
)

// ErrNotOpened is returned by Read/Close when the source was never opened.
var ErrNotOpened = errors.New("camera: not opened")

// Frame is one captured image, RGB24, row-major, width*height*3 bytes.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// Source captures frames from a physical or virtual camera device. Camera
// errors are transient per spec §4.9: a failed Read pauses the show loop
// in Detecting without tearing down the Source.
type Source interface {
	Open(deviceID, width, height, fps int) error
	Read() (Frame, error)
	Close() error
}

// Detector finds the largest face in a frame, if any. It returns a nil
// bbox (not an error) when no face is present — "no detection" is the
// normal steady-state case, not a failure.
type Detector interface {
	DetectFace(f Frame) (*show.BBox, error)
}

// OpenSource opens id with the given resolution/fps and retries once after
// a short backoff, matching spec §4.9's "camera cannot open" startup
// handling: the caller is expected to keep the Conductor in Detecting and
// retry in the background rather than treat this as fatal.
func OpenSource(src Source, deviceID, width, height, fps int) error {
	if err := src.Open(deviceID, width, height, fps); err != nil {
		time.Sleep(250 * time.Millisecond)
		if err2 := src.Open(deviceID, width, height, fps); err2 != nil {
			return fmt.Errorf("camera: open device %d: %w", deviceID, err2)
		}
	}
	return nil
}

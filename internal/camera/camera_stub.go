//go:build !cgo
// +build !cgo

package camera

import (
	"fmt"

	"github.com/RavennaNMA/defensor/internal/show"
)

// OpenCVSource is unavailable without cgo; Open always fails so the
// Conductor stays in Detecting per spec §4.9's "camera cannot open"
// startup handling instead of panicking at link time.
type OpenCVSource struct{}

// NewOpenCVSource returns a camera source that always fails to open.
func NewOpenCVSource() *OpenCVSource { return &OpenCVSource{} }

func (c *OpenCVSource) Open(deviceID, width, height, fps int) error {
	return fmt.Errorf("camera: built without cgo, device %d unavailable", deviceID)
}

func (c *OpenCVSource) Read() (Frame, error) { return Frame{}, ErrNotOpened }

func (c *OpenCVSource) Close() error { return nil }

// EnumerateCameras returns no devices in a non-cgo build.
func EnumerateCameras(maxDevices int) []int { return nil }

// HaarFaceDetector is unavailable without cgo.
type HaarFaceDetector struct{}

// NewHaarFaceDetector always fails without cgo.
func NewHaarFaceDetector(cascadePath string) (*HaarFaceDetector, error) {
	return nil, fmt.Errorf("camera: built without cgo, cannot load cascade %q", cascadePath)
}

func (d *HaarFaceDetector) Close() error { return nil }

func (d *HaarFaceDetector) DetectFace(f Frame) (*show.BBox, error) {
	return nil, fmt.Errorf("camera: built without cgo")
}

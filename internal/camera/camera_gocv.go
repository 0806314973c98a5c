//go:build cgo
// +build cgo

package camera

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/RavennaNMA/defensor/internal/show"
)

const fourccMJPEG = 0x47504A4D

// OpenCVSource implements Source using OpenCV via GoCV, using the V4L2
// backend on Linux and MJPEG codec for broad USB webcam compatibility.
type OpenCVSource struct {
	mu sync.Mutex

	deviceID int
	width    int
	height   int
	fps      int

	webcam *gocv.VideoCapture
	opened bool
}

// NewOpenCVSource creates an unopened camera source.
func NewOpenCVSource() *OpenCVSource { return &OpenCVSource{} }

// Open initializes the camera with the given configuration.
func (c *OpenCVSource) Open(deviceID, width, height, fps int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opened {
		return fmt.Errorf("camera: device %d already opened", deviceID)
	}

	webcam, err := gocv.OpenVideoCaptureWithAPI(deviceID, gocv.VideoCaptureV4L2)
	if err != nil {
		return fmt.Errorf("open camera device %d: %w", deviceID, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return fmt.Errorf("camera device %d not found or unavailable", deviceID)
	}

	webcam.Set(gocv.VideoCaptureFOURCC, fourccMJPEG)
	if width > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	if fps > 0 {
		webcam.Set(gocv.VideoCaptureFPS, float64(fps))
	}

	c.deviceID = deviceID
	c.width = int(webcam.Get(gocv.VideoCaptureFrameWidth))
	c.height = int(webcam.Get(gocv.VideoCaptureFrameHeight))
	c.fps = int(webcam.Get(gocv.VideoCaptureFPS))
	c.webcam = webcam
	c.opened = true

	warmup := gocv.NewMat()
	c.webcam.Read(&warmup)
	warmup.Close()

	return nil
}

// Read captures a single frame and returns it as RGB24 bytes.
func (c *OpenCVSource) Read() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opened {
		return Frame{}, ErrNotOpened
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if ok := c.webcam.Read(&mat); !ok {
		return Frame{}, fmt.Errorf("camera: read frame: %w", ErrNotOpened)
	}
	if mat.Empty() {
		return Frame{}, fmt.Errorf("camera: captured frame is empty")
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)

	return Frame{
		Data:   rgb.ToBytes(),
		Width:  rgb.Cols(),
		Height: rgb.Rows(),
	}, nil
}

// Close releases camera resources.
func (c *OpenCVSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return nil
	}
	err := c.webcam.Close()
	c.opened = false
	if err != nil {
		return fmt.Errorf("camera: close: %w", err)
	}
	return nil
}

// EnumerateCameras probes the first maxDevices indices and returns the
// ones that open successfully.
func EnumerateCameras(maxDevices int) []int {
	if maxDevices <= 0 {
		maxDevices = 10
	}
	var devices []int
	for i := 0; i < maxDevices; i++ {
		cam, err := gocv.OpenVideoCaptureWithAPI(i, gocv.VideoCaptureV4L2)
		if err != nil {
			continue
		}
		if cam.IsOpened() {
			devices = append(devices, i)
		}
		cam.Close()
	}
	return devices
}

// HaarFaceDetector implements Detector using OpenCV's Haar cascade
// classifier, selecting the largest detected face (spec §4.2: "at most
// one bounding box, the largest, selected upstream").
type HaarFaceDetector struct {
	mu        sync.Mutex
	cascade   gocv.CascadeClassifier
	minConf   float64
	minNeighb int
}

// NewHaarFaceDetector loads a Haar cascade XML (e.g. haarcascade_frontalface_default.xml).
func NewHaarFaceDetector(cascadePath string) (*HaarFaceDetector, error) {
	c := gocv.NewCascadeClassifier()
	if !c.Load(cascadePath) {
		c.Close()
		return nil, fmt.Errorf("camera: load cascade %q", cascadePath)
	}
	return &HaarFaceDetector{cascade: c, minNeighb: 3}, nil
}

// Close releases the underlying classifier.
func (d *HaarFaceDetector) Close() error {
	return d.cascade.Close()
}

// DetectFace returns the largest detected face, or nil if none was found.
func (d *HaarFaceDetector) DetectFace(f Frame) (*show.BBox, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(f.Data) == 0 {
		return nil, fmt.Errorf("camera: empty frame")
	}
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return nil, fmt.Errorf("camera: decode frame: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	rects := d.cascade.DetectMultiScale(gray)
	if len(rects) == 0 {
		return nil, nil
	}

	best := rects[0]
	for _, r := range rects[1:] {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}

	bbox := show.BBox{
		X:          best.Min.X,
		Y:          best.Min.Y,
		W:          best.Dx(),
		H:          best.Dy(),
		Confidence: 0.9, // Haar cascades expose no per-detection confidence.
	}
	clamped := show.Clamp(bbox, f.Width, f.Height)
	return &clamped, nil
}

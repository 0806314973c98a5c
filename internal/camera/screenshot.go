package camera

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"
)

// WriteScreenshot encodes f as JPEG under dir, named
// screenshot_YYYYMMDD_HHMMSS.jpg (spec §6's persisted-state naming), and
// returns the written path.
func WriteScreenshot(dir string, f Frame, now time.Time) (string, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return "", fmt.Errorf("camera: cannot screenshot an empty frame")
	}
	if len(f.Data) < f.Width*f.Height*3 {
		return "", fmt.Errorf("camera: frame data too short for %dx%d RGB24", f.Width, f.Height)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("camera: mkdir %s: %w", dir, err)
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := (y*f.Width + x) * 3
			o := img.PixOffset(x, y)
			img.Pix[o+0] = f.Data[i+0]
			img.Pix[o+1] = f.Data[i+1]
			img.Pix[o+2] = f.Data[i+2]
			img.Pix[o+3] = 0xff
		}
	}

	name := fmt.Sprintf("screenshot_%s.jpg", now.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("camera: create %s: %w", path, err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("camera: encode %s: %w", path, err)
	}
	return path, nil
}

// DeleteScreenshot removes the screenshot file; spec §3 requires it be
// destroyed at Reset. A missing file is not an error.
func DeleteScreenshot(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("camera: delete %s: %w", path, err)
	}
	return nil
}

// NullSource is a Source that never opens a real device; tests and
// no_llm_mode-less headless runs can swap it in for OpenCVSource.
type NullSource struct {
	opened bool
	frames []Frame
	idx    int
}

// NewNullSource creates a source that cycles through frames on each Read.
func NewNullSource(frames []Frame) *NullSource {
	return &NullSource{frames: frames}
}

func (n *NullSource) Open(deviceID, width, height, fps int) error {
	n.opened = true
	return nil
}

func (n *NullSource) Read() (Frame, error) {
	if !n.opened {
		return Frame{}, ErrNotOpened
	}
	if len(n.frames) == 0 {
		return Frame{}, fmt.Errorf("camera: no frames queued")
	}
	f := n.frames[n.idx%len(n.frames)]
	n.idx++
	return f, nil
}

func (n *NullSource) Close() error {
	n.opened = false
	return nil
}

package camera

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func solidFrame(w, h int, r, g, b byte) Frame {
	data := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		data[i*3+0] = r
		data[i*3+1] = g
		data[i*3+2] = b
	}
	return Frame{Data: data, Width: w, Height: h}
}

func TestWriteAndDeleteScreenshot(t *testing.T) {
	dir := t.TempDir()
	f := solidFrame(8, 8, 200, 50, 50)
	now := time.Date(2026, 3, 4, 13, 5, 9, 0, time.UTC)

	path, err := WriteScreenshot(dir, f, now)
	if err != nil {
		t.Fatalf("WriteScreenshot: %v", err)
	}
	wantName := "screenshot_20260304_130509.jpg"
	if filepath.Base(path) != wantName {
		t.Errorf("expected filename %s, got %s", wantName, filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}

	if err := DeleteScreenshot(path); err != nil {
		t.Fatalf("DeleteScreenshot: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected screenshot to be removed at Reset")
	}

	// Deleting again (or an empty path) must not error.
	if err := DeleteScreenshot(path); err != nil {
		t.Errorf("deleting an already-removed screenshot should be a no-op, got %v", err)
	}
	if err := DeleteScreenshot(""); err != nil {
		t.Errorf("deleting an empty path should be a no-op, got %v", err)
	}
}

func TestWriteScreenshotRejectsEmptyFrame(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteScreenshot(dir, Frame{}, time.Now()); err == nil {
		t.Error("expected an error for an empty frame")
	}
}

func TestNullSourceCyclesFrames(t *testing.T) {
	frames := []Frame{solidFrame(2, 2, 1, 1, 1), solidFrame(2, 2, 2, 2, 2)}
	src := NewNullSource(frames)
	if _, err := src.Read(); err == nil {
		t.Fatal("expected ErrNotOpened before Open")
	}
	if err := src.Open(0, 0, 0, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	f1, err := src.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	f2, _ := src.Read()
	f3, _ := src.Read()
	if f1.Data[0] != 1 || f2.Data[0] != 2 || f3.Data[0] != 1 {
		t.Error("expected frames to cycle")
	}
}

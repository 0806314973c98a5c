package installation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RavennaNMA/defensor/internal/camera"
	"github.com/RavennaNMA/defensor/internal/config"
	"github.com/RavennaNMA/defensor/internal/show"
)

type alwaysFaceDetector struct{}

func (alwaysFaceDetector) DetectFace(f camera.Frame) (*show.BBox, error) {
	return &show.BBox{X: 100, Y: 100, W: 200, H: 200, Confidence: 1.0}, nil
}

func solidFrame(w, h int) camera.Frame {
	return camera.Frame{Data: make([]byte, w*h*3), Width: w, Height: h}
}

type stubLLMClient struct {
	response string
}

func (s stubLLMClient) Query(ctx context.Context, imagePath, prompt string) (string, error) {
	return s.response, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Period.DetectDuration = 0.03
	cfg.Period.CaptionWaitAfter = 0.01
	cfg.Period.CooldownTime = 0.03
	cfg.Period.LLMResponseTimeout = 1
	cfg.Period.CaptionTypingSpeed = 1 // fast typing so the test doesn't stall
	cfg.Period.WeaponSwitchDelay = 0
	cfg.TTS.Enabled = false
	cfg.Weapons = []config.ToolSpec{
		{ID: "01", DisplayName: "Tool 01", FadeInS: 0.001, DisplayS: 0.001, FadeOutS: 0.001},
		{ID: "02", DisplayName: "Tool 02", FadeInS: 0.001, DisplayS: 0.001, FadeOutS: 0.001},
	}
	return cfg
}

func TestControllerScenarioS1HappyPathNoLLM(t *testing.T) {
	cfg := testConfig()
	ctrl := New(cfg, t.TempDir())
	if err := ctrl.SetNoLLMMode(true); err != nil {
		t.Fatalf("SetNoLLMMode: %v", err)
	}
	src := camera.NewNullSource([]camera.Frame{solidFrame(4, 4)})
	if err := ctrl.SetCameraSource(src, 0, 4, 4, 30); err != nil {
		t.Fatalf("SetCameraSource: %v", err)
	}
	if err := ctrl.SetDetector(alwaysFaceDetector{}); err != nil {
		t.Fatalf("SetDetector: %v", err)
	}

	var mu sync.Mutex
	var states []show.ConductorState
	ch := ctrl.Bus().Subscribe(TopicState)
	go func() {
		for ev := range ch {
			if s, ok := ev.(show.ConductorState); ok {
				mu.Lock()
				states = append(states, s)
				mu.Unlock()
			}
		}
	}()

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	visitedReset := false
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := ctrl.State()
		if s == show.Reset {
			visitedReset = true
		}
		if visitedReset && s == show.Detecting {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !visitedReset {
		t.Fatalf("show never reached Reset; last state %s", ctrl.State())
	}

	if err := ctrl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 {
		t.Error("expected at least one state-change event on the bus")
	}
}

func TestControllerFullCycleReachesDetectingAgain(t *testing.T) {
	cfg := testConfig()
	ctrl := New(cfg, t.TempDir())
	ctrl.SetNoLLMMode(true)
	src := camera.NewNullSource([]camera.Frame{solidFrame(4, 4)})
	ctrl.SetCameraSource(src, 0, 4, 4, 30)
	ctrl.SetDetector(alwaysFaceDetector{})

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Close()

	// Let a full Detecting->...->Reset->Detecting cycle run; the camera
	// keeps reporting a face continuously so a second cycle will begin
	// immediately, which is fine — we only assert we got back around once.
	visitedReset := false
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := ctrl.State()
		if s == show.Reset {
			visitedReset = true
		}
		if visitedReset && s == show.Detecting {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("show never completed a full Reset->Detecting cycle")
}

func TestControllerWithLLMClientParsesResponse(t *testing.T) {
	cfg := testConfig()
	ctrl := New(cfg, t.TempDir())
	ctrl.SetNoLLMMode(false)
	src := camera.NewNullSource([]camera.Frame{solidFrame(4, 4)})
	ctrl.SetCameraSource(src, 0, 4, 4, 30)
	ctrl.SetDetector(alwaysFaceDetector{})
	ctrl.SetLLMClient(stubLLMClient{response: "Caption_EN: Hello there.\nCaption_TC: 你好。\nWeapons: 01"})

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == show.Caption || ctrl.State() == show.Spotlight || ctrl.State() == show.ImgShow {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("show never reached Caption via a real LLM response; stuck at %s", ctrl.State())
}

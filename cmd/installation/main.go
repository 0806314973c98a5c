// Package main provides the CLI wrapper for the installation controller.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/RavennaNMA/defensor/internal/camera"
	"github.com/RavennaNMA/defensor/internal/config"
	"github.com/RavennaNMA/defensor/internal/llm"
	"github.com/RavennaNMA/defensor/pkg/installation"
)

var version = "0.1.0"

func main() {
	configDir := flag.String("config", "configs", "Directory containing period_config.csv, weapon_config.csv, and the rest of the config set")
	screenshotDir := flag.String("screenshots", "webcam-shots", "Directory screenshots are written to and deleted from on Reset")
	cascadePath := flag.String("cascade", "haarcascade_frontalface_default.xml", "Path to the Haar cascade used for face detection")
	cameraIndex := flag.Int("camera", 0, "Camera device index")
	cameraWidth := flag.Int("width", 1280, "Camera capture width")
	cameraHeight := flag.Int("height", 720, "Camera capture height")
	cameraFPS := flag.Int("fps", 30, "Camera capture FPS")
	serialPort := flag.String("serial", "", "MCU serial port (e.g. /dev/ttyUSB0, COM3); omitted disables actuator pulses and SSR lighting")
	ollamaAddr := flag.String("ollama", "http://localhost:11434", "Ollama server address for the vision/strategy models")
	noLLMMode := flag.Bool("no_llm_mode", false, "Skip the LLM call entirely; substitute the default response at every ScreenshotTrigger")
	debugMode := flag.Bool("debug_mode", false, "Print a one-line telemetry snapshot once per second")
	fullscreen := flag.Bool("fullscreen", false, "Behavioral surface flag only; no window toolkit ships with this build")
	miniMode := flag.Bool("mini_mode", false, "Behavioral surface flag only; no window toolkit ships with this build")
	showVersion := flag.Bool("version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "defensor - interactive installation controller\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                             # Run with default settings, LLM via Ollama\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -no_llm_mode                # Skip the LLM, always use the default response\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -serial /dev/ttyUSB0        # Drive the MCU link and SSR lighting\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -debug_mode                 # Print telemetry once per second\n", os.Args[0])
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("defensor version %s\n", version)
		os.Exit(0)
	}

	cfg, res := config.Load(*configDir)
	for _, w := range res.Warnings {
		log.Printf("config: %s", w)
	}
	manifestPath := filepath.Join(*configDir, "manifest.toml")
	if err := config.WriteManifest(manifestPath, res); err != nil {
		log.Printf("config: %v", err)
	}
	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		log.Printf("config: reading back manifest: %v", err)
		manifest = &config.Manifest{}
	}

	if err := os.MkdirAll(*screenshotDir, 0o755); err != nil {
		log.Fatalf("creating screenshot directory: %v", err)
	}

	ctrl := installation.New(cfg, *screenshotDir)

	fatalCh := make(chan error, 1)
	ctrl.OnFatal = func(err error) {
		select {
		case fatalCh <- err:
		default:
		}
	}

	if err := ctrl.SetNoLLMMode(*noLLMMode); err != nil {
		log.Fatalf("%v", err)
	}
	if !*noLLMMode {
		if err := ctrl.SetLLMClient(llm.NewOllamaClient(*ollamaAddr)); err != nil {
			log.Fatalf("%v", err)
		}
	}

	src := camera.NewOpenCVSource()
	if err := ctrl.SetCameraSource(src, *cameraIndex, *cameraWidth, *cameraHeight, *cameraFPS); err != nil {
		log.Fatalf("%v", err)
	}
	detector, err := camera.NewHaarFaceDetector(*cascadePath)
	if err != nil {
		log.Printf("camera: loading face cascade %q: %v, detection disabled", *cascadePath, err)
	} else if err := ctrl.SetDetector(detector); err != nil {
		log.Fatalf("%v", err)
	}

	if *serialPort != "" {
		if err := ctrl.SetSerialPort(*serialPort); err != nil {
			log.Printf("serial: %v, actuator pulses and SSR lighting disabled", err)
		}
	}

	if *fullscreen || *miniMode {
		log.Printf("window mode: fullscreen=%v mini=%v (no window toolkit in this build, logged for parity with the original controls)", *fullscreen, *miniMode)
	}

	if err := ctrl.Start(); err != nil {
		log.Fatalf("starting controller: %v", err)
	}
	log.Println("show started. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logCh := ctrl.Bus().Subscribe(installation.TopicLog)
	go func() {
		for msg := range logCh {
			if s, ok := msg.(string); ok {
				log.Println(s)
			}
		}
	}()

	frameCh := ctrl.Bus().Subscribe(installation.TopicFrame)
	forceCh := ctrl.Bus().Subscribe(installation.TopicForceTerm)
	go func() {
		for msg := range forceCh {
			if s, ok := msg.(string); ok {
				log.Printf("caption: forced completion (%s)", s)
			}
		}
	}()

	var debugTick <-chan time.Time
	if *debugMode {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		debugTick = ticker.C
	}

	var lastFrame installation.FrameTelemetry
	frameCount := 0

	for running := true; running; {
		select {
		case sig := <-sigCh:
			log.Printf("received signal %v, shutting down", sig)
			running = false

		case err := <-fatalCh:
			log.Printf("fatal: %v, shutting down", err)
			running = false

		case f, ok := <-frameCh:
			if !ok {
				running = false
			} else if ft, ok := f.(installation.FrameTelemetry); ok {
				lastFrame = ft
				frameCount++
			}

		case <-debugTick:
			printTelemetry(ctrl, lastFrame, manifest, frameCount, *cameraWidth, *cameraHeight)
			frameCount = 0
		}
	}

	if err := ctrl.Close(); err != nil {
		log.Printf("closing: %v", err)
	}
}

// printTelemetry renders the once-per-second text snapshot spec §6
// calls for: state, FPS, episode duration, serial/SSR connection state,
// per-pin level, current tool list, canvas dimensions, and config health
// (which groups loaded from disk versus fell back to Default(), per the
// manifest.toml read back at startup).
func printTelemetry(ctrl *installation.Controller, f installation.FrameTelemetry, manifest *config.Manifest, frameCount, width, height int) {
	serialState := "disconnected"
	pins := ""
	if d := ctrl.Dispatcher(); d != nil {
		if d.Failed() {
			serialState = "failed"
		} else {
			serialState = "connected"
		}
		for pin, level := range d.PinStates() {
			pins += fmt.Sprintf(" %d=%v", pin, level)
		}
	}

	tools := ctrl.ToolIDs()

	fallbacks := ""
	for group, loaded := range manifest.Groups {
		if !loaded {
			fallbacks += " " + group
		}
	}
	if fallbacks == "" {
		fallbacks = " none"
	}

	log.Printf("state=%s fps=%d present=%v episode=%s serial=%s pins=[%s] tools=%v canvas=%dx%d config_fallbacks=[%s]",
		f.State, frameCount, f.Present, f.EpisodeDuration.Round(time.Millisecond), serialState, pins, tools, width, height, fallbacks)
}

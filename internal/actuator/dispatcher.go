// Package actuator owns the MCU serial link and the two-channel SSR
// lighting controller (spec §4.6, §4.7). A single dispatcher goroutine
// drains a FIFO of commands so writes are never interleaved (invariant I6).
package actuator

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"periph.io/x/periph/conn/gpio"
)

// Port is the minimal surface the dispatcher needs from a serial
// connection; go.bug.st/serial.Port satisfies it directly, and tests
// substitute an in-memory fake.
type Port interface {
	io.Writer
	io.Closer
}

// Command is either a Pulse or a Set, enqueued via Dispatcher.Enqueue.
type Command struct {
	Kind        CommandKind
	Pin         uint8
	Level       gpio.Level // Set only
	PreDelayMs  int
	HighMs      int // Pulse only
	PostDelayMs int

	// Seq is an opaque caller-assigned tag, unused on the wire, that lets
	// tests and telemetry correlate an executed command back to its
	// producer and enqueue position.
	Seq int
}

// CommandKind distinguishes Pulse from Set commands (spec §4.6).
type CommandKind int

const (
	CommandPulse CommandKind = iota
	CommandSet
)

// Pulse builds a {pre, H, high, L, post} command.
func Pulse(pin uint8, preDelayMs, highMs, postDelayMs int) Command {
	return Command{Kind: CommandPulse, Pin: pin, PreDelayMs: preDelayMs, HighMs: highMs, PostDelayMs: postDelayMs}
}

// Set builds a {pre, level} command with no auto-revert.
func Set(pin uint8, level gpio.Level, preDelayMs int) Command {
	return Command{Kind: CommandSet, Pin: pin, Level: level, PreDelayMs: preDelayMs}
}

// Dispatcher owns the MCU link exclusively (spec §5): all other goroutines
// mutate it only by calling Enqueue. A single worker drains the FIFO so
// commands never interleave on the wire (I6) and are applied in enqueue
// order.
type Dispatcher struct {
	mu sync.Mutex

	port   Port
	queue  chan Command
	closed bool
	failed bool // serial write error: subsequent Enqueues are no-ops (spec §4.9)

	pinStates map[uint8]gpio.Level
	bootWait  time.Duration

	wg sync.WaitGroup

	Logf      func(format string, args ...any)
	OnExecute func(Command) // test/telemetry hook, called after a command is fully applied
}

// mcuBootWait is the delay after opening the port before the MCU is ready
// to receive commands (spec §4.6).
const mcuBootWait = 2 * time.Second

// Open connects to portName at 9600 baud, waits for the MCU to boot, then
// initializes pins 2-13 LOW (spec §4.6), and starts the drain worker.
func Open(portName string) (*Dispatcher, error) {
	mode := &serial.Mode{BaudRate: 9600}
	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("actuator: open %s: %w", portName, err)
	}
	return newDispatcher(p, mcuBootWait), nil
}

func newDispatcher(p Port, bootWait time.Duration) *Dispatcher {
	d := &Dispatcher{
		port:      p,
		queue:     make(chan Command, 256),
		pinStates: make(map[uint8]gpio.Level),
		bootWait:  bootWait,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	time.Sleep(d.bootWait)
	for pin := uint8(2); pin <= 13; pin++ {
		d.writeLevel(pin, gpio.Low)
	}

	for cmd := range d.queue {
		d.execute(cmd)
		if d.OnExecute != nil {
			d.OnExecute(cmd)
		}
	}
}

// Enqueue appends cmd to the FIFO. A failed dispatcher silently drops
// further commands (spec §4.9: "stops accepting commands").
func (d *Dispatcher) Enqueue(cmd Command) {
	d.mu.Lock()
	failed := d.failed || d.closed
	d.mu.Unlock()
	if failed {
		return
	}
	d.queue <- cmd
}

func (d *Dispatcher) execute(cmd Command) {
	switch cmd.Kind {
	case CommandPulse:
		sleepMs(cmd.PreDelayMs)
		d.writeLevel(cmd.Pin, gpio.High)
		sleepMs(cmd.HighMs)
		d.writeLevel(cmd.Pin, gpio.Low)
		sleepMs(cmd.PostDelayMs)
	case CommandSet:
		sleepMs(cmd.PreDelayMs)
		d.writeLevel(cmd.Pin, cmd.Level)
	}
}

func (d *Dispatcher) writeLevel(pin uint8, level gpio.Level) {
	letter := "L"
	if level == gpio.High {
		letter = "H"
	}
	line := fmt.Sprintf("%s%d\n", letter, pin)

	d.mu.Lock()
	if d.failed || d.closed {
		d.mu.Unlock()
		return
	}
	_, err := d.port.Write([]byte(line))
	if err != nil {
		d.failed = true
		d.mu.Unlock()
		d.logf("actuator: write error, dispatcher disabled: %v", err)
		return
	}
	d.pinStates[pin] = level
	d.mu.Unlock()

	d.logf("actuator: pin %d -> %s", pin, level)
}

// PinState returns the last commanded level for pin, for the debug
// telemetry view (spec §6).
func (d *Dispatcher) PinState(pin uint8) gpio.Level {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pinStates[pin]
}

// PinStates returns a snapshot of every pin commanded so far.
func (d *Dispatcher) PinStates() map[uint8]gpio.Level {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[uint8]gpio.Level, len(d.pinStates))
	for k, v := range d.pinStates {
		out[k] = v
	}
	return out
}

// Failed reports whether a write error has disabled further commands.
func (d *Dispatcher) Failed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failed
}

// Close stops accepting commands, drains what's queued, and closes the
// port.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.queue)
	d.wg.Wait()
	return d.port.Close()
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.Logf != nil {
		d.Logf(format, args...)
	}
}

func sleepMs(ms int) {
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}

// EnumeratePorts lists serial ports filtered by OS naming convention
// (spec §4.6: Windows COM*, macOS cu.*/usb, Linux ttyUSB*/ttyACM*).
func EnumeratePorts() ([]string, error) {
	all, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("actuator: list ports: %w", err)
	}
	var out []string
	for _, p := range all {
		if portMatchesOS(p, runtime.GOOS) {
			out = append(out, p)
		}
	}
	return out, nil
}

func portMatchesOS(port, goos string) bool {
	lower := strings.ToLower(port)
	switch goos {
	case "windows":
		return strings.Contains(strings.ToUpper(port), "COM")
	case "darwin":
		return strings.Contains(lower, "usb") || strings.Contains(lower, "cu.")
	default: // linux and other unix-likes
		return strings.Contains(port, "ttyUSB") || strings.Contains(port, "ttyACM")
	}
}

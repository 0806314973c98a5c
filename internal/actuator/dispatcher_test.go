package actuator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"periph.io/x/periph/conn/gpio"
)

// fakePort records every Write call atomically; it stands in for the real
// serial.Port in tests.
type fakePort struct {
	mu     sync.Mutex
	writes []string
	closed bool
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, string(p))
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePort) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	copy(out, f.writes)
	return out
}

type failingPort struct{ writeCount int }

func (f *failingPort) Write(p []byte) (int, error) {
	f.writeCount++
	return 0, fmt.Errorf("simulated write failure")
}
func (f *failingPort) Close() error { return nil }

func newTestDispatcher() (*Dispatcher, *fakePort) {
	p := &fakePort{}
	d := newDispatcher(p, 0)
	return d, p
}

func TestDispatcherInitializesPinsLowOnBoot(t *testing.T) {
	d, p := newTestDispatcher()
	defer d.Close()

	waitForWrites(t, p, 12) // pins 2..13

	writes := p.snapshot()
	if len(writes) != 12 {
		t.Fatalf("expected 12 init writes, got %d", len(writes))
	}
	for i, w := range writes {
		want := fmt.Sprintf("L%d\n", i+2)
		if w != want {
			t.Errorf("init write %d: expected %q, got %q", i, want, w)
		}
	}
}

func TestDispatcherPulseSequenceNeverInterleaves(t *testing.T) {
	d, p := newTestDispatcher()
	defer d.Close()
	waitForWrites(t, p, 12)

	d.Enqueue(Pulse(5, 0, 0, 0))
	d.Enqueue(Pulse(5, 0, 0, 0))
	waitForWrites(t, p, 12+4)

	writes := p.snapshot()[12:]
	want := []string{"H5\n", "L5\n", "H5\n", "L5\n"}
	for i, w := range want {
		if writes[i] != w {
			t.Errorf("pulse write %d: expected %q, got %q", i, w, writes[i])
		}
	}
}

func TestDispatcherPinDisciplineEveryHighGetsALow(t *testing.T) {
	d, p := newTestDispatcher()
	defer d.Close()
	waitForWrites(t, p, 12)

	pins := []uint8{4, 5, 6, 7}
	for _, pin := range pins {
		d.Enqueue(Pulse(pin, 0, 0, 0))
	}
	waitForWrites(t, p, 12+len(pins)*2)

	highs := map[uint8]int{}
	lows := map[uint8]int{}
	for _, w := range p.snapshot()[12:] {
		var pin uint8
		var level byte
		fmt.Sscanf(w, "%c%d\n", &level, &pin)
		if level == 'H' {
			highs[pin]++
		} else {
			lows[pin]++
		}
	}
	for _, pin := range pins {
		if highs[pin] != lows[pin] {
			t.Errorf("pin %d: %d highs but %d lows (I3 violated)", pin, highs[pin], lows[pin])
		}
	}
}

func TestDispatcherOrderingUnderConcurrentProducers(t *testing.T) {
	d, p := newTestDispatcher()
	defer d.Close()
	waitForWrites(t, p, 12)

	const producers = 4
	const perProducer = 25

	var mu sync.Mutex
	observed := make(map[int][]int) // producer -> sequence of Seq values observed by OnExecute
	d.OnExecute = func(cmd Command) {
		if cmd.Pin == 0 {
			return
		}
		producer := int(cmd.Pin)
		mu.Lock()
		observed[producer] = append(observed[producer], cmd.Seq)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for pr := 1; pr <= producers; pr++ {
		wg.Add(1)
		go func(pr int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				c := Pulse(uint8(pr), 0, 0, 0)
				c.Seq = i
				d.Enqueue(c)
			}
		}(pr)
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		total := 0
		for _, v := range observed {
			total += len(v)
		}
		mu.Unlock()
		if total == producers*perProducer {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for all commands to execute, got %d/%d", total, producers*perProducer)
		}
		time.Sleep(time.Millisecond)
	}

	for pr := 1; pr <= producers; pr++ {
		seq := observed[pr]
		for i, s := range seq {
			if s != i {
				t.Errorf("producer %d: expected FIFO order, at position %d got seq %d", pr, i, s)
				break
			}
		}
	}
}

func TestDispatcherWriteErrorDisablesFurtherCommands(t *testing.T) {
	d := newDispatcher(&failingPort{}, 0)
	defer d.Close()

	d.Enqueue(Set(9, gpio.High, 0))

	deadline := time.Now().Add(time.Second)
	for !d.Failed() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !d.Failed() {
		t.Fatal("expected dispatcher to record a write failure")
	}

	// Further enqueues should be accepted but silently dropped.
	d.Enqueue(Set(9, gpio.Low, 0))
}

func waitForWrites(t *testing.T, p *fakePort, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(p.snapshot()) >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d writes, got %d", n, len(p.snapshot()))
		}
		time.Sleep(time.Millisecond)
	}
}

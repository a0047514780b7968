package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"sync"
	"time"
)

// Mock is an in-process camera with scriptable failure behavior. Zero value
// fields give a camera that succeeds immediately.
type Mock struct {
	mu         sync.Mutex
	busy       bool
	stickyBusy bool
	liveView   bool
	closed     bool
	nextHandle Handle
	handles    map[Handle][]byte
	released   map[Handle]int
	events     chan Event

	// script
	busyErrors     int           // CapturePhoto failures with ErrBusy before succeeding
	captureErr     error         // non-busy hard error on every CapturePhoto
	transferErrors int           // TransferFile failures before succeeding
	dropEvents     bool          // capture succeeds but no PhotoReadyEvent ever arrives
	eventDelay     time.Duration
	filename       string        // suggested filename carried on events
	photo          []byte

	// counters
	Captures       int
	Transfers      int
	LiveViewStarts int
	LiveViewStops  int
}

func NewMock() *Mock {
	return &Mock{
		handles:  map[Handle][]byte{},
		released: map[Handle]int{},
		events:   make(chan Event, 16),
		filename: "DSC0001.jpg",
		photo:    encodeTestPhoto(color.NRGBA{0x40, 0x80, 0xC0, 0xFF}),
	}
}

func encodeTestPhoto(c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		switch i % 4 {
		case 0:
			img.Pix[i] = c.R
		case 1:
			img.Pix[i] = c.G
		case 2:
			img.Pix[i] = c.B
		case 3:
			img.Pix[i] = c.A
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

func (m *Mock) FailBusy(n int)                { m.mu.Lock(); m.busyErrors = n; m.mu.Unlock() }
func (m *Mock) FailCapture(err error)         { m.mu.Lock(); m.captureErr = err; m.mu.Unlock() }
func (m *Mock) FailTransfer(n int)            { m.mu.Lock(); m.transferErrors = n; m.mu.Unlock() }
func (m *Mock) DropEvents(v bool)             { m.mu.Lock(); m.dropEvents = v; m.mu.Unlock() }
func (m *Mock) SetEventDelay(d time.Duration) { m.mu.Lock(); m.eventDelay = d; m.mu.Unlock() }
func (m *Mock) SetFilename(name string)       { m.mu.Lock(); m.filename = name; m.mu.Unlock() }
func (m *Mock) SetPhoto(data []byte)          { m.mu.Lock(); m.photo = data; m.mu.Unlock() }

// StickBusy keeps the busy flag set until someone calls SetBusy(false),
// mimicking a device that never reports completion.
func (m *Mock) StickBusy() {
	m.mu.Lock()
	m.busy = true
	m.stickyBusy = true
	m.mu.Unlock()
}

func (m *Mock) CapturePhoto() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Captures++
	if m.captureErr != nil {
		return m.captureErr
	}
	if m.busyErrors > 0 {
		m.busyErrors--
		return fmt.Errorf("capture: %w", ErrBusy)
	}
	if m.busy && m.stickyBusy {
		return fmt.Errorf("capture: %w", ErrBusy)
	}
	if m.dropEvents {
		m.busy = true
		return nil
	}

	m.nextHandle++
	h := m.nextHandle
	m.handles[h] = m.photo
	ev := Event{PhotoReady: &PhotoReadyEvent{Handle: h, Filename: m.filename, Time: time.Now()}}
	if m.eventDelay > 0 {
		go func() {
			time.Sleep(m.eventDelay)
			m.post(ev)
		}()
	} else {
		m.post(ev)
	}
	return nil
}

func (m *Mock) post(ev Event) {
	defer func() { recover() }() // events channel may be closed during teardown
	m.events <- ev
}

// Disconnect simulates the device dropping off the bus.
func (m *Mock) Disconnect() {
	m.post(Event{Disconnect: &DisconnectEvent{Time: time.Now()}})
}

func (m *Mock) StartLiveView() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LiveViewStarts++
	m.liveView = true
	return nil
}

func (m *Mock) StopLiveView() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LiveViewStops++
	m.liveView = false
	return nil
}

func (m *Mock) LiveViewFrame() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveView {
		return nil, fmt.Errorf("mock: live view not running")
	}
	return m.photo, nil
}

func (m *Mock) LiveViewRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveView
}

func (m *Mock) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

func (m *Mock) SetBusy(busy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = busy
	if !busy {
		m.stickyBusy = false
	}
}

func (m *Mock) TransferFile(h Handle, destPath string) error {
	m.mu.Lock()
	data, ok := m.handles[h]
	m.Transfers++
	fail := m.transferErrors > 0
	if fail {
		m.transferErrors--
	}
	m.mu.Unlock()
	if fail {
		return fmt.Errorf("mock: transfer failed")
	}
	if !ok {
		return fmt.Errorf("mock: transfer of unknown handle %d", h)
	}
	return os.WriteFile(destPath, data, 0644)
}

func (m *Mock) ReleaseHandle(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released[h]++
	if m.released[h] > 1 {
		return fmt.Errorf("mock: handle %d released %d times", h, m.released[h])
	}
	delete(m.handles, h)
	return nil
}

// Released reports how many distinct handles have been released, and whether
// any handle was released more than once.
func (m *Mock) Released() (count int, double bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.released {
		count++
		if n > 1 {
			double = true
		}
	}
	return
}

func (m *Mock) Events() <-chan Event {
	return m.events
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.events)
	return nil
}

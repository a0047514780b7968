package trigger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Foot switches show up as a sustain-pedal control change on most
// interfaces.
const defaultFootSwitchCC = 64

type MIDIConfig struct {
	Port       string // substring match on the input port name
	Controller uint8  // CC number; 0 means the sustain-pedal default
}

// MIDI is a foot-switch trigger behind any MIDI interface.
type MIDI struct {
	cfg  MIDIConfig
	port drivers.In

	mu   sync.Mutex
	stop func()
	done chan struct{}
	once sync.Once
}

func OpenMIDI(cfg MIDIConfig) (*MIDI, error) {
	port, err := findInPort(cfg.Port)
	if err != nil {
		return nil, err
	}
	return &MIDI{cfg: cfg, port: port, done: make(chan struct{})}, nil
}

func findInPort(substr string) (drivers.In, error) {
	lower := strings.ToLower(substr)
	for _, port := range midi.GetInPorts() {
		if strings.Contains(strings.ToLower(port.String()), lower) {
			return port, nil
		}
	}
	return nil, fmt.Errorf("trigger: no MIDI input port matching %q", substr)
}

func (m *MIDI) Port() string { return m.port.String() }

func (m *MIDI) Run(ch chan<- Press) error {
	cc := m.cfg.Controller
	if cc == 0 {
		cc = defaultFootSwitchCC
	}

	down := false
	stop, err := midi.ListenTo(m.port, func(msg midi.Message, timestampms int32) {
		switch {
		case msg.Is(midi.ControlChangeMsg):
			var channel, controller, value uint8
			msg.GetControlChange(&channel, &controller, &value)
			if controller != cc {
				return
			}
			if value > 0 && !down {
				ch <- Press{Source: "midi", Time: time.Now()}
			}
			down = value > 0

		case msg.Is(midi.NoteOnMsg):
			var channel, key, velocity uint8
			msg.GetNoteOn(&channel, &key, &velocity)
			if velocity > 0 {
				ch <- Press{Source: "midi", Time: time.Now()}
			}
		}
	})
	if err != nil {
		return fmt.Errorf("trigger: listen: %w", err)
	}

	m.mu.Lock()
	m.stop = stop
	m.mu.Unlock()

	<-m.done
	return nil
}

func (m *MIDI) Close() error {
	m.once.Do(func() { close(m.done) })
	m.mu.Lock()
	if m.stop != nil {
		m.stop()
		m.stop = nil
	}
	m.mu.Unlock()
	return nil
}

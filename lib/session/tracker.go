package session

import (
	"fmt"
	"image"
	"sync"
)

// Slot is one required photo position in the sequence.
type Slot struct {
	Index  int
	Path   string
	Thumb  image.Image
	Filled bool
}

// Tracker accumulates captured photo paths against a required count. Slots
// are never removed, only filled or replaced.
type Tracker struct {
	mu       sync.Mutex
	slots    []Slot
	required int
}

func NewTracker(required int) *Tracker {
	t := &Tracker{}
	t.Reset(required)
	return t
}

func (t *Tracker) Reset(required int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.required = required
	t.slots = make([]Slot, required)
	for i := range t.slots {
		t.slots[i].Index = i
	}
}

// Fill records a photo into the next unfilled slot and returns its index.
func (t *Tracker) Fill(path string, thumb image.Image) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if !t.slots[i].Filled {
			t.slots[i].Path = path
			t.slots[i].Thumb = thumb
			t.slots[i].Filled = true
			return i, nil
		}
	}
	return -1, fmt.Errorf("session: all %d slots already filled", t.required)
}

// Replace overwrites exactly one slot, leaving every other slot and the
// sequence position untouched.
func (t *Tracker) Replace(index int, path string, thumb image.Image) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.slots) {
		return fmt.Errorf("session: slot %d out of range (have %d)", index, len(t.slots))
	}
	t.slots[index].Path = path
	t.slots[index].Thumb = thumb
	t.slots[index].Filled = true
	return nil
}

// SetPath updates the file path of a filled slot, used when a filter rewrites
// the photo before compositing.
func (t *Tracker) SetPath(index int, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.slots) || !t.slots[index].Filled {
		return fmt.Errorf("session: slot %d not filled", index)
	}
	t.slots[index].Path = path
	return nil
}

// ValidSlot reports whether index names a filled slot.
func (t *Tracker) ValidSlot(index int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return index >= 0 && index < len(t.slots) && t.slots[index].Filled
}

func (t *Tracker) NextUnfilled() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if !t.slots[i].Filled {
			return i
		}
	}
	return -1
}

func (t *Tracker) FilledCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.slots {
		if t.slots[i].Filled {
			n++
		}
	}
	return n
}

func (t *Tracker) Required() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.required
}

func (t *Tracker) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if !t.slots[i].Filled {
			return false
		}
	}
	return len(t.slots) > 0
}

// Slots returns a snapshot copy.
func (t *Tracker) Slots() []Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Slot, len(t.slots))
	copy(out, t.slots)
	return out
}

// Paths returns per-slot file paths; unfilled slots are empty strings.
func (t *Tracker) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.slots))
	for i := range t.slots {
		if t.slots[i].Filled {
			out[i] = t.slots[i].Path
		}
	}
	return out
}

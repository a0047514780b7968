package camera

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Spool drives a tethering agent that writes captured frames into a spool
// directory. CapturePhoto runs the agent's trigger command; photo-ready events
// are synthesized from filesystem notifications on the directory.
type Spool struct {
	dir        string
	captureCmd []string
	preview    string

	watcher *fsnotify.Watcher
	events  chan Event

	mu         sync.Mutex
	busy       bool
	liveView   bool
	closed     bool
	nextHandle Handle
	handles    map[Handle]string
}

type SpoolConfig struct {
	Dir            string   // watched spool directory
	CaptureCommand []string // external trigger command; optional
	PreviewFile    string   // live-view frame file inside Dir; optional
}

func OpenSpool(cfg SpoolConfig) (*Spool, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("spool: create %q: %w", cfg.Dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("spool: watcher: %w", err)
	}
	if err := watcher.Add(cfg.Dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("spool: watch %q: %w", cfg.Dir, err)
	}

	s := &Spool{
		dir:        cfg.Dir,
		captureCmd: cfg.CaptureCommand,
		preview:    cfg.PreviewFile,
		watcher:    watcher,
		events:     make(chan Event, 16),
		handles:    map[Handle]string{},
	}
	go s.watchLoop()
	return s, nil
}

func (s *Spool) watchLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(ev.Name)
			if name == s.preview || !isImageFile(name) {
				continue
			}
			// the agent may still be writing; wait until the size settles
			waitSettled(ev.Name)
			s.ingest(ev.Name, name)
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func waitSettled(path string) {
	var last int64 = -1
	for i := 0; i < 20; i++ {
		fi, err := os.Stat(path)
		if err != nil {
			return
		}
		if fi.Size() == last && fi.Size() > 0 {
			return
		}
		last = fi.Size()
		time.Sleep(50 * time.Millisecond)
	}
}

func (s *Spool) ingest(path, name string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.nextHandle++
	h := s.nextHandle
	s.handles[h] = path
	s.busy = false
	s.mu.Unlock()

	s.events <- Event{PhotoReady: &PhotoReadyEvent{Handle: h, Filename: name, Time: time.Now()}}
}

func (s *Spool) CapturePhoto() error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return fmt.Errorf("spool: %w", ErrBusy)
	}
	s.busy = true
	cmd := s.captureCmd
	s.mu.Unlock()

	if len(cmd) == 0 {
		// no trigger command: the agent captures on its own and the spool
		// watcher picks the file up
		return nil
	}
	c := exec.Command(cmd[0], cmd[1:]...)
	if err := c.Start(); err != nil {
		s.SetBusy(false)
		return fmt.Errorf("spool: trigger command: %w", err)
	}
	go c.Wait()
	return nil
}

func (s *Spool) StartLiveView() error {
	s.mu.Lock()
	s.liveView = true
	s.mu.Unlock()
	return nil
}

func (s *Spool) StopLiveView() error {
	s.mu.Lock()
	s.liveView = false
	s.mu.Unlock()
	return nil
}

func (s *Spool) LiveViewFrame() ([]byte, error) {
	s.mu.Lock()
	running := s.liveView
	preview := s.preview
	s.mu.Unlock()
	if !running || preview == "" {
		return nil, fmt.Errorf("spool: live view not available")
	}
	return os.ReadFile(filepath.Join(s.dir, preview))
}

func (s *Spool) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Spool) SetBusy(busy bool) {
	s.mu.Lock()
	s.busy = busy
	s.mu.Unlock()
}

func (s *Spool) TransferFile(h Handle, destPath string) error {
	s.mu.Lock()
	src, ok := s.handles[h]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("spool: transfer of unknown handle %d", h)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("spool: open %q: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("spool: create %q: %w", destPath, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("spool: copy: %w", err)
	}
	return nil
}

func (s *Spool) ReleaseHandle(h Handle) error {
	s.mu.Lock()
	src, ok := s.handles[h]
	delete(s.handles, h)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("spool: release of unknown handle %d", h)
	}
	os.Remove(src) // spool file is consumed once transferred
	return nil
}

func (s *Spool) Events() <-chan Event {
	return s.events
}

func (s *Spool) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.watcher.Close()
}

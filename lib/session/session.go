package session

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"

	"booth/lib/camera"
	"booth/lib/filter"
	"booth/lib/template"
)

const (
	maxCaptureAttempts = 20 // hard cap on busy retries
	forceClearAttempts = 5  // force-clear the busy flag from this attempt on
	busyDrainPolls     = 10
	thumbWidth         = 160
)

var (
	errStopped      = errors.New("session: stopped")
	errDisconnected = errors.New("session: camera disconnected")
	errTimeout      = errors.New("session: capture timed out")
	errWaiting      = errors.New("session: device busy, operator retry available")
	errFailed       = errors.New("session: capture failed")
)

type Config struct {
	Template  *template.Template
	EventName string
	EventDir  string

	CountdownSeconds int // 1..10
	ReviewWindow     time.Duration
	OfferRetake      bool
	OfferFilter      bool
	DefaultFilter    string
	FilterIntensity  float64
	Filter           filter.Transform

	Logger *slog.Logger

	// timing knobs; zero values take the production defaults
	MinCaptureInterval time.Duration // 6s between sequence starts
	CaptureTimeout     time.Duration // 15s per capture attempt
	InterPhotoDelay    time.Duration // 4s preview pause between photos
	CountdownTick      time.Duration // 1s
	CaptureGrace       time.Duration // 500ms after the countdown reaches 0
	LiveViewInterval   time.Duration // ~30 Hz preview pulls
	BusyDrainInterval  time.Duration
	BusyResetWait      time.Duration
	BackoffUnit        time.Duration // busy retry: min(unit*attempt, BackoffMax)
	BackoffMax         time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.CountdownSeconds < 1 {
		cfg.CountdownSeconds = 3
	}
	if cfg.CountdownSeconds > 10 {
		cfg.CountdownSeconds = 10
	}
	if cfg.ReviewWindow <= 0 {
		cfg.ReviewWindow = 30 * time.Second
	}
	if cfg.FilterIntensity <= 0 {
		cfg.FilterIntensity = 1
	}
	if cfg.Filter == nil {
		cfg.Filter = filter.Basic{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MinCaptureInterval <= 0 {
		cfg.MinCaptureInterval = 6 * time.Second
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 15 * time.Second
	}
	if cfg.InterPhotoDelay <= 0 {
		cfg.InterPhotoDelay = 4 * time.Second
	}
	if cfg.CountdownTick <= 0 {
		cfg.CountdownTick = time.Second
	}
	if cfg.CaptureGrace <= 0 {
		cfg.CaptureGrace = 500 * time.Millisecond
	}
	if cfg.LiveViewInterval <= 0 {
		cfg.LiveViewInterval = 33 * time.Millisecond
	}
	if cfg.BusyDrainInterval <= 0 {
		cfg.BusyDrainInterval = 200 * time.Millisecond
	}
	if cfg.BusyResetWait <= 0 {
		cfg.BusyResetWait = time.Second
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = 200 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = time.Second
	}
	return cfg
}

// StartStatus reports whether a start request was accepted, and if not, why.
type StartStatus struct {
	Accepted    bool
	Reason      string
	WaitSeconds int // remaining capture-interval wait, rounded up
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdRetake
	cmdProceed
	cmdFilter
)

type command struct {
	kind   cmdKind
	slot   int
	filter string
	start  chan StartStatus
	err    chan error
}

type timeoutMsg struct {
	gen uint64
}

// Controller owns all session state. A single goroutine runs the state
// machine; commands and camera events arrive on channels, so no handler can
// race another.
type Controller struct {
	cfg     Config
	cam     camera.Camera
	log     *slog.Logger
	tracker *Tracker

	events   chan Event
	cmds     chan command
	timeouts chan timeoutMsg
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	state      atomic.Int32
	attemptGen atomic.Uint64

	// run-goroutine state
	lastCapture time.Time
	liveStop    chan struct{}
	liveWG      sync.WaitGroup
	composeWG   sync.WaitGroup
	filters     map[int]string
}

func New(cam camera.Camera, cfg Config) (*Controller, error) {
	if cfg.Template == nil {
		return nil, fmt.Errorf("session: no template")
	}
	if err := cfg.Template.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Controller{
		cfg:      cfg,
		cam:      cam,
		log:      cfg.Logger.With("component", "session"),
		tracker:  NewTracker(cfg.Template.PhotoCountNeeded()),
		events:   make(chan Event, 256),
		cmds:     make(chan command),
		timeouts: make(chan timeoutMsg, 4),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		filters:  map[int]string{},
	}
	go c.run()
	return c, nil
}

func (c *Controller) Events() <-chan Event { return c.events }
func (c *Controller) Tracker() *Tracker    { return c.tracker }
func (c *Controller) State() State         { return State(c.state.Load()) }

// Start requests a capture sequence (or resumes one parked in Waiting).
func (c *Controller) Start() StartStatus {
	cmd := command{kind: cmdStart, start: make(chan StartStatus, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.finished:
		return StartStatus{Reason: "session stopped"}
	}
	select {
	case st := <-cmd.start:
		return st
	case <-c.finished:
		return StartStatus{Reason: "session stopped"}
	}
}

func (c *Controller) Retake(slot int) error {
	return c.send(command{kind: cmdRetake, slot: slot, err: make(chan error, 1)})
}

func (c *Controller) Proceed() error {
	return c.send(command{kind: cmdProceed, err: make(chan error, 1)})
}

func (c *Controller) ChooseFilter(slot int, kind string) error {
	return c.send(command{kind: cmdFilter, slot: slot, filter: kind, err: make(chan error, 1)})
}

func (c *Controller) send(cmd command) error {
	select {
	case c.cmds <- cmd:
	case <-c.finished:
		return errStopped
	}
	select {
	case err := <-cmd.err:
		return err
	case <-c.finished:
		return errStopped
	}
}

// Stop tears the session down completely: outstanding capture timeouts are
// invalidated, live view stops, the device busy flag is cleared, and the
// state returns to Idle (through Aborted when a sequence was in flight).
// The controller cannot be restarted.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	<-c.finished
}

func (c *Controller) run() {
	defer close(c.finished)
	defer c.cleanup()
	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.cmds:
			c.handleCommand(cmd)
		case ev := <-c.camEvents():
			c.handleCameraEvent(ev)
		case <-c.timeouts:
			// no capture outstanding here, so any timeout is stale
		}
	}
}

func (c *Controller) camEvents() <-chan camera.Event {
	if c.cam == nil {
		return nil
	}
	return c.cam.Events()
}

func (c *Controller) handleCommand(cmd command) {
	if cmd.kind != cmdStart {
		cmd.err <- fmt.Errorf("session: not reviewing")
		return
	}
	st := c.startable()
	resume := c.State() == Waiting
	cmd.start <- st
	if !st.Accepted {
		return
	}
	c.runSequenceAndReview(resume)
}

func (c *Controller) startable() StartStatus {
	if c.cam == nil {
		return StartStatus{Reason: "no camera connected"}
	}
	switch c.State() {
	case Idle, Waiting:
	case Disconnected:
		return StartStatus{Reason: "camera disconnected"}
	default:
		return StartStatus{Reason: "capture already in progress"}
	}
	if c.tracker.Required() == 0 {
		return StartStatus{Reason: "template has no photo placeholders"}
	}
	if !c.lastCapture.IsZero() {
		since := time.Since(c.lastCapture)
		if since < c.cfg.MinCaptureInterval {
			secs := int((c.cfg.MinCaptureInterval - since + time.Second - 1) / time.Second)
			return StartStatus{
				Reason:      fmt.Sprintf("please wait %d more second(s)", secs),
				WaitSeconds: secs,
			}
		}
	}
	return StartStatus{Accepted: true}
}

func (c *Controller) runSequenceAndReview(resume bool) {
	if !resume {
		c.tracker.Reset(c.cfg.Template.PhotoCountNeeded())
		c.filters = map[int]string{}
	}
	if err := c.runSequence(); err != nil {
		c.sequenceFailed(err)
		return
	}
	c.review()
}

func (c *Controller) runSequence() error {
	for {
		slot := c.tracker.NextUnfilled()
		if slot < 0 {
			break
		}
		if err := c.captureOne(slot, false); err != nil {
			return err
		}
		if c.tracker.Complete() {
			break
		}

		// preview pause before the next photo
		if err := c.wait(c.cfg.InterPhotoDelay); err != nil {
			return err
		}
		if c.cam.Busy() {
			c.cam.SetBusy(false)
			if err := c.wait(c.cfg.BusyResetWait); err != nil {
				return err
			}
			if c.cam.Busy() {
				c.setState(Waiting)
				c.status("camera is still busy; press start to continue")
				return errWaiting
			}
		}
	}
	c.stopLive()
	return nil
}

func (c *Controller) sequenceFailed(err error) {
	switch {
	case errors.Is(err, errStopped):
		// run loop is exiting; cleanup handles the rest
	case errors.Is(err, errWaiting):
		// parked with retry available; state and status already set
	case errors.Is(err, errDisconnected):
		c.stopLive()
		c.setState(Disconnected)
		c.status("camera disconnected")
	case errors.Is(err, errTimeout):
		// busy flag cleared and live view restarted at the failure site
		c.setState(Idle)
	case errors.Is(err, errFailed):
		c.stopLive()
		c.setState(Idle)
	default:
		c.stopLive()
		c.log.Error("capture aborted", "error", err)
		c.status(err.Error())
		c.setState(Failed)
	}
}

func (c *Controller) captureOne(slot int, retake bool) error {
	c.setState(Preparing)
	if err := c.prepare(); err != nil {
		return err
	}
	if err := c.countdown(slot); err != nil {
		return err
	}
	// let the subject settle after the last tick
	if err := c.wait(c.cfg.CaptureGrace); err != nil {
		return err
	}

	c.setState(Capturing)
	path, err := c.captureAndTransfer()
	if err != nil {
		return err
	}

	c.setState(SlotFilled)
	thumb := loadThumb(path)
	if retake {
		if err := c.tracker.Replace(slot, path, thumb); err != nil {
			return err
		}
	} else {
		if _, err := c.tracker.Fill(path, thumb); err != nil {
			return err
		}
	}
	c.lastCapture = time.Now()
	c.emit(Event{Slot: &SlotEvent{Index: slot, Path: path, Retake: retake}})
	c.log.Info("slot filled", "slot", slot, "path", path, "retake", retake)
	c.startLive()
	return nil
}

// prepare drains the device busy state and brings up a fresh live view.
func (c *Controller) prepare() error {
	for i := 0; i < busyDrainPolls; i++ {
		if !c.cam.Busy() {
			break
		}
		if err := c.wait(c.cfg.BusyDrainInterval); err != nil {
			return err
		}
	}
	if c.cam.Busy() {
		// no positive completion signal exists on this boundary; forcing the
		// flag can race a photo event the device dropped
		c.cam.SetBusy(false)
		c.log.Warn("forced busy flag clear before capture")
	}
	c.startLive()
	return nil
}

func (c *Controller) countdown(slot int) error {
	c.setState(Countdown)
	for remaining := c.cfg.CountdownSeconds; remaining > 0; remaining-- {
		c.emit(Event{Tick: &TickEvent{Remaining: remaining, Slot: slot}})
		if err := c.wait(c.cfg.CountdownTick); err != nil {
			return err
		}
	}
	c.emit(Event{Tick: &TickEvent{Remaining: 0, Slot: slot}})
	return nil
}

func (c *Controller) captureAndTransfer() (string, error) {
	c.stopLive() // the device cannot serve preview and capture at once
	for attempt := 1; ; attempt++ {
		if attempt > maxCaptureAttempts {
			c.status(fmt.Sprintf("camera stayed busy after %d attempts; giving up", maxCaptureAttempts))
			return "", errFailed
		}

		err := c.cam.CapturePhoto()
		if errors.Is(err, camera.ErrBusy) {
			c.setState(Retrying)
			c.log.Warn("device busy", "attempt", attempt)
			if attempt >= forceClearAttempts {
				c.cam.SetBusy(false)
			}
			if werr := c.wait(retryDelay(attempt, c.cfg.BackoffUnit, c.cfg.BackoffMax)); werr != nil {
				return "", werr
			}
			c.setState(Capturing)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("session: capture: %w", err)
		}

		gen := c.attemptGen.Add(1)
		timer := time.AfterFunc(c.cfg.CaptureTimeout, func() {
			select {
			case c.timeouts <- timeoutMsg{gen: gen}:
			case <-c.done:
			}
		})
		ev, err := c.waitPhoto()
		timer.Stop()
		if err != nil {
			if errors.Is(err, errTimeout) {
				// the hardware event will never arrive; recover
				c.cam.SetBusy(false)
				c.startLive()
				c.status("camera did not deliver a photo in time")
			}
			return "", err
		}

		c.setState(Transferring)
		return c.transfer(ev)
	}
}

func (c *Controller) waitPhoto() (*camera.PhotoReadyEvent, error) {
	for {
		select {
		case <-c.done:
			return nil, errStopped
		case ev := <-c.camEvents():
			if ev.Disconnect != nil {
				return nil, errDisconnected
			}
			if ev.PhotoReady != nil {
				return ev.PhotoReady, nil
			}
		case tm := <-c.timeouts:
			if tm.gen != c.attemptGen.Load() {
				continue // timeout of an earlier attempt; must not fire against this one
			}
			return nil, errTimeout
		case cmd := <-c.cmds:
			c.rejectBusy(cmd)
		}
	}
}

func (c *Controller) transfer(ev *camera.PhotoReadyEvent) (string, error) {
	// the device buffer is freed no matter how the transfer went
	defer func() {
		if rerr := c.cam.ReleaseHandle(ev.Handle); rerr != nil {
			c.log.Warn("release handle", "handle", ev.Handle, "error", rerr)
		}
	}()

	if err := os.MkdirAll(c.cfg.EventDir, 0755); err != nil {
		return "", fmt.Errorf("session: event directory: %v: %w", err, errFailed)
	}
	name := ev.Filename
	if name == "" {
		t := ev.Time
		if t.IsZero() {
			t = time.Now()
		}
		name = "photo_" + t.Format("20060102_150405.000") + ".jpg"
	}
	dest := uniquePath(filepath.Join(c.cfg.EventDir, filepath.Base(name)))
	if err := c.cam.TransferFile(ev.Handle, dest); err != nil {
		c.status("photo transfer failed")
		c.log.Error("transfer", "dest", dest, "error", err)
		return "", fmt.Errorf("session: transfer: %v: %w", err, errFailed)
	}
	return dest, nil
}

// wait sleeps d while keeping the state machine responsive: stop wins, a
// disconnect aborts, stray photo events release their handles, and commands
// are answered.
func (c *Controller) wait(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			return nil
		case <-c.done:
			return errStopped
		case ev := <-c.camEvents():
			if ev.Disconnect != nil {
				return errDisconnected
			}
			if ev.PhotoReady != nil {
				c.releaseStray(ev.PhotoReady)
			}
		case <-c.timeouts:
			// stale: no capture is outstanding during waits
		case cmd := <-c.cmds:
			c.rejectBusy(cmd)
		}
	}
}

// releaseStray frees the buffer of a photo that arrived outside
// Transferring, typically from an attempt that already timed out.
func (c *Controller) releaseStray(ev *camera.PhotoReadyEvent) {
	c.log.Warn("stray photo event", "handle", ev.Handle)
	if err := c.cam.ReleaseHandle(ev.Handle); err != nil {
		c.log.Warn("release stray handle", "error", err)
	}
}

func (c *Controller) rejectBusy(cmd command) {
	if cmd.kind == cmdStart {
		cmd.start <- StartStatus{Reason: "capture already in progress"}
		return
	}
	cmd.err <- fmt.Errorf("session: not reviewing")
}

func (c *Controller) handleCameraEvent(ev camera.Event) {
	if ev.Disconnect != nil {
		c.stopLive()
		c.setState(Disconnected)
		c.status("camera disconnected")
		return
	}
	if ev.PhotoReady != nil {
		c.releaseStray(ev.PhotoReady)
	}
}

func (c *Controller) startLive() {
	c.stopLive()
	if err := c.cam.StartLiveView(); err != nil {
		c.log.Warn("start live view", "error", err)
		return
	}
	stop := make(chan struct{})
	c.liveStop = stop
	c.liveWG.Add(1)
	go c.liveLoop(stop)
}

func (c *Controller) stopLive() {
	if c.liveStop != nil {
		close(c.liveStop)
		c.liveStop = nil
		c.liveWG.Wait()
	}
	if c.cam != nil {
		if err := c.cam.StopLiveView(); err != nil {
			c.log.Warn("stop live view", "error", err)
		}
	}
}

// liveLoop pulls preview frames on a fixed period. Preview is best effort:
// pull failures are swallowed.
func (c *Controller) liveLoop(stop chan struct{}) {
	defer c.liveWG.Done()
	tick := time.NewTicker(c.cfg.LiveViewInterval)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			frame, err := c.cam.LiveViewFrame()
			if err != nil || len(frame) == 0 {
				continue
			}
			c.emit(Event{Frame: &FrameEvent{Data: frame}})
		}
	}
}

func (c *Controller) cleanup() {
	c.attemptGen.Add(1) // invalidate any outstanding capture timeout
	c.stopLive()
	if c.cam != nil {
		c.cam.SetBusy(false)
	}
	switch c.State() {
	case Idle, Failed, Disconnected:
	default:
		// a sequence or review was still in flight
		c.setState(Aborted)
	}
	c.setState(Idle)
	c.composeWG.Wait()
}

func (c *Controller) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.emit(Event{State: &StateEvent{State: s}})
	c.log.Debug("state change", "state", s)
}

func (c *Controller) status(msg string) {
	c.log.Info(msg)
	c.emit(Event{Status: &StatusEvent{Message: msg}})
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		// consumer fell behind; dropping beats stalling the session
	}
}

// retryDelay is the progressive busy backoff: unit×attempt, capped.
func retryDelay(attempt int, unit, max time.Duration) time.Duration {
	d := time.Duration(attempt) * unit
	if d > max {
		return max
	}
	return d
}

func uniquePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + uuid.NewString()[:8] + ext
}

func loadThumb(path string) image.Image {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil
	}
	b := src.Bounds()
	if b.Dx() <= thumbWidth {
		return src
	}
	h := b.Dy() * thumbWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, thumbWidth, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

package session

import (
	"os"
	"strings"
	"testing"
	"time"

	"booth/lib/camera"
	"booth/lib/filter"
	"booth/lib/template"
)

func testTemplate(slots int) *template.Template {
	tpl := &template.Template{
		ID:    "test",
		Name:  "test",
		Width: 100,
	}
	y := 10
	for i := 1; i <= slots; i++ {
		tpl.Items = append(tpl.Items, template.Item{
			Type:   template.Placeholder,
			X:      10,
			Y:      y,
			Width:  80,
			Height: 60,
			Number: i,
		})
		y += 70
	}
	tpl.Height = y + 10
	return tpl
}

func setupTest(t *testing.T, slots int, mut func(*Config)) (*camera.Mock, *Controller) {
	t.Helper()
	cam := camera.NewMock()
	cfg := Config{
		Template:         testTemplate(slots),
		EventName:        "test",
		EventDir:         t.TempDir(),
		CountdownSeconds: 1,
		ReviewWindow:     150 * time.Millisecond,

		MinCaptureInterval: time.Millisecond,
		CaptureTimeout:     2 * time.Second,
		InterPhotoDelay:    20 * time.Millisecond,
		CountdownTick:      10 * time.Millisecond,
		CaptureGrace:       5 * time.Millisecond,
		LiveViewInterval:   20 * time.Millisecond,
		BusyDrainInterval:  5 * time.Millisecond,
		BusyResetWait:      10 * time.Millisecond,
		BackoffUnit:        time.Millisecond,
		BackoffMax:         4 * time.Millisecond,
	}
	if mut != nil {
		mut(&cfg)
	}

	ctl, err := New(cam, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctl.Stop()
		cam.Close()
	})
	return cam, ctl
}

func waitComposed(t *testing.T, ctl *Controller) *ComposedEvent {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-ctl.Events():
			if ev.Composed != nil {
				return ev.Composed
			}
		case <-deadline:
			t.Fatal("timeout waiting for composition")
		}
	}
}

func waitState(t *testing.T, ctl *Controller, want State) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-ctl.Events():
			if ev.State != nil && ev.State.State == want {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for state %s", want)
		}
	}
}

func waitStatus(t *testing.T, ctl *Controller, substr string) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-ctl.Events():
			if ev.Status != nil && strings.Contains(ev.Status.Message, substr) {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for status containing %q", substr)
		}
	}
}

func waitSlot(t *testing.T, ctl *Controller) *SlotEvent {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-ctl.Events():
			if ev.Slot != nil {
				return ev.Slot
			}
		case <-deadline:
			t.Fatal("timeout waiting for slot event")
		}
	}
}

func TestFullSequence(t *testing.T) {
	cam, ctl := setupTest(t, 2, nil)

	st := ctl.Start()
	if !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}

	composed := waitComposed(t, ctl)
	if composed.Err != nil {
		t.Fatal(composed.Err)
	}
	if _, err := os.Stat(composed.Path); err != nil {
		t.Errorf("composed file missing: %v", err)
	}
	if !ctl.Tracker().Complete() {
		t.Error("tracker not complete after sequence")
	}
	if cam.Captures != 2 {
		t.Errorf("got %d captures, want 2", cam.Captures)
	}
	count, double := cam.Released()
	if count != 2 {
		t.Errorf("got %d released handles, want 2", count)
	}
	if double {
		t.Error("a handle was released twice")
	}
}

func TestStartRejectedWhileRunning(t *testing.T) {
	_, ctl := setupTest(t, 2, nil)

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	st := ctl.Start()
	if st.Accepted {
		t.Fatal("second start accepted during a running sequence")
	}
	if !strings.Contains(st.Reason, "in progress") {
		t.Errorf("got reason %q", st.Reason)
	}
	waitComposed(t, ctl)
}

func TestMinCaptureInterval(t *testing.T) {
	_, ctl := setupTest(t, 1, func(cfg *Config) {
		cfg.MinCaptureInterval = 5 * time.Second
	})

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	waitComposed(t, ctl)

	st := ctl.Start()
	if st.Accepted {
		t.Fatal("start accepted inside the capture interval")
	}
	if st.WaitSeconds < 4 || st.WaitSeconds > 5 {
		t.Errorf("got %d remaining seconds, want 4..5", st.WaitSeconds)
	}
	if !strings.Contains(st.Reason, "wait") {
		t.Errorf("got reason %q", st.Reason)
	}
}

func TestBusyRetry(t *testing.T) {
	cam, ctl := setupTest(t, 1, nil)
	cam.FailBusy(3)

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	composed := waitComposed(t, ctl)
	if composed.Err != nil {
		t.Fatal(composed.Err)
	}
	if cam.Captures != 4 {
		t.Errorf("got %d capture attempts, want 4", cam.Captures)
	}
}

func TestBusyGiveUp(t *testing.T) {
	cam, ctl := setupTest(t, 1, nil)
	cam.FailBusy(25)

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	waitStatus(t, ctl, "giving up")
	waitState(t, ctl, Idle)

	if cam.Captures != 20 {
		t.Errorf("got %d capture attempts, want 20", cam.Captures)
	}
	if ctl.Tracker().FilledCount() != 0 {
		t.Error("slot filled despite give-up")
	}
}

func TestRetryDelay(t *testing.T) {
	unit := 200 * time.Millisecond
	max := time.Second
	for _, tc := range []struct {
		attempt int
		want    time.Duration
	}{
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{19, time.Second},
	} {
		if got := retryDelay(tc.attempt, unit, max); got != tc.want {
			t.Errorf("attempt %d: got %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestCaptureTimeout(t *testing.T) {
	cam, ctl := setupTest(t, 1, func(cfg *Config) {
		cfg.CaptureTimeout = 50 * time.Millisecond
	})
	cam.DropEvents(true)

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	waitStatus(t, ctl, "did not deliver")
	waitState(t, ctl, Idle)

	if cam.Busy() {
		t.Error("busy flag still set after timeout recovery")
	}
}

func TestLatePhotoReleased(t *testing.T) {
	cam, ctl := setupTest(t, 1, func(cfg *Config) {
		cfg.CaptureTimeout = 30 * time.Millisecond
	})
	cam.SetEventDelay(150 * time.Millisecond)

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	waitStatus(t, ctl, "did not deliver")

	// the event still arrives, long after the attempt was abandoned
	time.Sleep(300 * time.Millisecond)
	count, double := cam.Released()
	if count != 1 {
		t.Errorf("got %d released handles, want 1", count)
	}
	if double {
		t.Error("a handle was released twice")
	}
}

func TestStaleTimeoutIgnored(t *testing.T) {
	cam, ctl := setupTest(t, 1, nil)
	cam.SetEventDelay(50 * time.Millisecond)

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	// a leftover timeout from a previous attempt must not abort this one
	ctl.timeouts <- timeoutMsg{gen: 0}

	composed := waitComposed(t, ctl)
	if composed.Err != nil {
		t.Fatal(composed.Err)
	}
}

func TestDisconnect(t *testing.T) {
	cam, ctl := setupTest(t, 1, nil)
	cam.SetEventDelay(time.Second)

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	cam.Disconnect()
	waitState(t, ctl, Disconnected)

	st := ctl.Start()
	if st.Accepted {
		t.Fatal("start accepted while disconnected")
	}
	if !strings.Contains(st.Reason, "disconnected") {
		t.Errorf("got reason %q", st.Reason)
	}
}

func TestRetake(t *testing.T) {
	cam, ctl := setupTest(t, 1, func(cfg *Config) {
		cfg.OfferRetake = true
		cfg.ReviewWindow = 2 * time.Second
	})

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	first := waitSlot(t, ctl)
	waitState(t, ctl, ReviewPending)

	if err := ctl.Retake(5); err == nil {
		t.Error("retake of an empty slot accepted")
	}
	if err := ctl.Retake(0); err != nil {
		t.Fatal(err)
	}

	second := waitSlot(t, ctl)
	if !second.Retake {
		t.Error("expected a retake slot event")
	}
	if second.Path == first.Path {
		t.Error("retake kept the old file path")
	}
	waitState(t, ctl, ReviewPending)

	if err := ctl.Proceed(); err != nil {
		t.Fatal(err)
	}
	composed := waitComposed(t, ctl)
	if composed.Err != nil {
		t.Fatal(composed.Err)
	}
	if cam.Captures != 2 {
		t.Errorf("got %d captures, want 2", cam.Captures)
	}
	if _, double := cam.Released(); double {
		t.Error("a handle was released twice")
	}
}

func TestRetakeKeepsOtherSlots(t *testing.T) {
	cam, ctl := setupTest(t, 3, func(cfg *Config) {
		cfg.OfferRetake = true
		cfg.ReviewWindow = 2 * time.Second
	})

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	var before [3]string
	for i := 0; i < 3; i++ {
		ev := waitSlot(t, ctl)
		before[ev.Index] = ev.Path
	}
	waitState(t, ctl, ReviewPending)

	if err := ctl.Retake(1); err != nil {
		t.Fatal(err)
	}
	retaken := waitSlot(t, ctl)
	if retaken.Index != 1 || !retaken.Retake {
		t.Fatalf("got slot event %+v, want retake of slot 1", retaken)
	}
	waitState(t, ctl, ReviewPending)

	if got := ctl.Tracker().FilledCount(); got != 3 {
		t.Errorf("got %d filled slots, want 3", got)
	}
	slots := ctl.Tracker().Slots()
	if slots[0].Path != before[0] || slots[2].Path != before[2] {
		t.Error("retake of slot 1 touched another slot's path")
	}
	if slots[1].Path == before[1] {
		t.Error("retake kept the old file path")
	}

	if err := ctl.Proceed(); err != nil {
		t.Fatal(err)
	}
	composed := waitComposed(t, ctl)
	if composed.Err != nil {
		t.Fatal(composed.Err)
	}
	if cam.Captures != 4 {
		t.Errorf("got %d captures, want 4", cam.Captures)
	}
}

func TestTransferFailureRecovers(t *testing.T) {
	cam, ctl := setupTest(t, 1, nil)
	cam.FailTransfer(1)

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	waitStatus(t, ctl, "transfer failed")
	waitState(t, ctl, Idle)

	count, double := cam.Released()
	if count != 1 {
		t.Errorf("got %d released handles, want 1", count)
	}
	if double {
		t.Error("a handle was released twice")
	}
	if ctl.Tracker().FilledCount() != 0 {
		t.Error("slot filled despite transfer failure")
	}
}

func TestStopMidSequenceAborts(t *testing.T) {
	_, ctl := setupTest(t, 1, func(cfg *Config) {
		cfg.CountdownSeconds = 10
		cfg.CountdownTick = 50 * time.Millisecond
	})

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	waitState(t, ctl, Countdown)
	ctl.Stop()

	waitState(t, ctl, Aborted)
	waitState(t, ctl, Idle)
}

func TestReviewExpiry(t *testing.T) {
	_, ctl := setupTest(t, 1, func(cfg *Config) {
		cfg.OfferRetake = true
		cfg.ReviewWindow = 100 * time.Millisecond
	})

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}

	// no proceed call; expiry must behave exactly like one
	composed := waitComposed(t, ctl)
	if composed.Err != nil {
		t.Fatal(composed.Err)
	}
}

func TestFilterChoice(t *testing.T) {
	_, ctl := setupTest(t, 1, func(cfg *Config) {
		cfg.OfferFilter = true
		cfg.ReviewWindow = 2 * time.Second
	})

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	waitState(t, ctl, ReviewPending)

	if err := ctl.ChooseFilter(0, "vaporwave"); err == nil {
		t.Error("unknown filter accepted")
	}
	if err := ctl.ChooseFilter(0, filter.Grayscale); err != nil {
		t.Fatal(err)
	}
	if err := ctl.Proceed(); err != nil {
		t.Fatal(err)
	}

	composed := waitComposed(t, ctl)
	if composed.Err != nil {
		t.Fatal(composed.Err)
	}
	slots := ctl.Tracker().Slots()
	if !strings.HasSuffix(slots[0].Path, "_grayscale.jpg") {
		t.Errorf("got slot path %q, want grayscale variant", slots[0].Path)
	}
}

func TestRetakeNotOffered(t *testing.T) {
	_, ctl := setupTest(t, 1, func(cfg *Config) {
		cfg.OfferFilter = true
		cfg.ReviewWindow = 2 * time.Second
	})

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	waitState(t, ctl, ReviewPending)

	if err := ctl.Retake(0); err == nil {
		t.Error("retake accepted in filter-only review")
	}
	if err := ctl.Proceed(); err != nil {
		t.Fatal(err)
	}
	waitComposed(t, ctl)
}

func TestWaitingResume(t *testing.T) {
	cam, ctl := setupTest(t, 2, nil)

	if st := ctl.Start(); !st.Accepted {
		t.Fatalf("start rejected: %s", st.Reason)
	}
	first := waitSlot(t, ctl)

	// keep the device busy through the reset attempt
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				cam.StickBusy()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	waitState(t, ctl, Waiting)
	close(stop)
	cam.SetBusy(false)

	st := ctl.Start()
	if !st.Accepted {
		t.Fatalf("resume rejected: %s", st.Reason)
	}
	composed := waitComposed(t, ctl)
	if composed.Err != nil {
		t.Fatal(composed.Err)
	}

	slots := ctl.Tracker().Slots()
	if slots[0].Path != first.Path {
		t.Error("resume recaptured the already filled slot")
	}
	if cam.Captures != 2 {
		t.Errorf("got %d captures, want 2", cam.Captures)
	}
}

func TestCommandsOutsideReview(t *testing.T) {
	_, ctl := setupTest(t, 1, nil)

	if err := ctl.Proceed(); err == nil {
		t.Error("proceed accepted while idle")
	}
	if err := ctl.Retake(0); err == nil {
		t.Error("retake accepted while idle")
	}
}

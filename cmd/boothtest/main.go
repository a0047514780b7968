package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"booth/lib/camera"
	"booth/lib/session"
	"booth/lib/template"
)

// boothtest runs one full capture sequence against the mock camera and
// prints every session event. Useful for exercising the state machine
// without any hardware attached.
func main() {
	eventDir := flag.String("dir", "boothtest-out", "event directory")
	busyFails := flag.Int("busy", 0, "simulate this many busy rejections per capture")
	flag.Parse()

	cam := camera.NewMock()
	if *busyFails > 0 {
		cam.FailBusy(*busyFails)
	}

	ctl, err := session.New(cam, session.Config{
		Template:         template.Demo(),
		EventName:        "boothtest",
		EventDir:         *eventDir,
		CountdownSeconds: 2,

		CountdownTick:    100 * time.Millisecond,
		CaptureGrace:     50 * time.Millisecond,
		InterPhotoDelay:  200 * time.Millisecond,
		LiveViewInterval: 50 * time.Millisecond,
		ReviewWindow:     300 * time.Millisecond,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer ctl.Stop()

	if st := ctl.Start(); !st.Accepted {
		fmt.Fprintf(os.Stderr, "Error: start rejected: %s\n", st.Reason)
		os.Exit(1)
	}

	frames := 0
	for ev := range ctl.Events() {
		switch {
		case ev.State != nil:
			fmt.Printf("state: %s\n", ev.State.State)
		case ev.Tick != nil:
			fmt.Printf("countdown: slot %d, %d\n", ev.Tick.Slot, ev.Tick.Remaining)
		case ev.Slot != nil:
			fmt.Printf("photo: slot %d -> %s\n", ev.Slot.Index, ev.Slot.Path)
		case ev.Status != nil:
			fmt.Printf("status: %s\n", ev.Status.Message)
		case ev.Review != nil:
			fmt.Printf("review: %s (window %s)\n", ev.Review.Mode, ev.Review.Window)
		case ev.Frame != nil:
			frames++
		case ev.Composed != nil:
			if ev.Composed.Err != nil {
				fmt.Fprintf(os.Stderr, "Error: compose: %v\n", ev.Composed.Err)
				os.Exit(1)
			}
			fmt.Printf("composed: %s (%d preview frames)\n", ev.Composed.Path, frames)
			return
		}
	}
}

// Package camera defines the capability boundary to a tethered camera.
// Implementations emit typed events on a channel owned by whoever drives the
// capture sequence; there is no callback registration.
package camera

import (
	"errors"
	"time"
)

var (
	// ErrBusy marks the retryable device-busy error class.
	ErrBusy = errors.New("camera: device busy")
	// ErrDisconnected marks a hard device disconnect.
	ErrDisconnected = errors.New("camera: device disconnected")
)

// Handle identifies one captured image buffer on the device. Each handle must
// be released exactly once.
type Handle uint64

type PhotoReadyEvent struct {
	Handle   Handle
	Filename string // suggested by the device; may be empty
	Time     time.Time
}

type DisconnectEvent struct {
	Time time.Time
}

type Event struct {
	PhotoReady *PhotoReadyEvent
	Disconnect *DisconnectEvent
}

type Camera interface {
	// CapturePhoto issues one still capture. A busy device returns an error
	// matching ErrBusy; the photo itself arrives later as a PhotoReadyEvent.
	CapturePhoto() error

	StartLiveView() error
	StopLiveView() error
	// LiveViewFrame pulls one preview frame. Preview is best effort; errors
	// are expected while the device is between states.
	LiveViewFrame() ([]byte, error)

	Busy() bool
	SetBusy(busy bool)

	// TransferFile copies the captured buffer to destPath.
	TransferFile(h Handle, destPath string) error
	// ReleaseHandle frees the device buffer. Exactly once per handle.
	ReleaseHandle(h Handle) error

	Events() <-chan Event
	Close() error
}

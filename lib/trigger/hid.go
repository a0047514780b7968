package trigger

import (
	"fmt"
	"time"

	"rafaelmartins.com/p/usbhid"
)

type HIDConfig struct {
	VendorID  uint16 // 0 matches any
	ProductID uint16 // 0 matches any
}

// HID is a one-button USB trigger (big-dome arcade buttons, presenters).
type HID struct {
	dev *usbhid.Device
}

func OpenHID(cfg HIDConfig) (*HID, error) {
	devices, err := usbhid.Enumerate(func(dev *usbhid.Device) bool {
		if cfg.VendorID != 0 && dev.VendorId() != cfg.VendorID {
			return false
		}
		if cfg.ProductID != 0 && dev.ProductId() != cfg.ProductID {
			return false
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("trigger: enumerate: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("trigger: no HID button found")
	}

	dev := devices[0]
	if err := dev.Open(true); err != nil {
		return nil, fmt.Errorf("trigger: open: %w", err)
	}
	return &HID{dev: dev}, nil
}

func (h *HID) Product() string { return h.dev.Product() }
func (h *HID) Close() error    { return h.dev.Close() }

// Run reads input reports forever. Any report with a nonzero payload byte
// counts as down; a press fires on the rising edge only.
func (h *HID) Run(ch chan<- Press) error {
	down := false
	for {
		_, buf, err := h.dev.GetInputReport()
		if err != nil {
			return fmt.Errorf("trigger: read: %w", err)
		}

		now := false
		for _, b := range buf {
			if b != 0 {
				now = true
				break
			}
		}
		if now && !down {
			ch <- Press{Source: "hid", Time: time.Now()}
		}
		down = now
	}
}

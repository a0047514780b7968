package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Event   Event   `toml:"event"`
	Camera  Camera  `toml:"camera"`
	Session Session `toml:"session"`
	Trigger Trigger `toml:"trigger"`
	Store   Store   `toml:"store"`
	Log     Log     `toml:"log"`
}

type Event struct {
	Name     string `toml:"name"`
	Dir      string `toml:"dir"`
	Template string `toml:"template"` // template id or name in the store
}

type Camera struct {
	Backend        string `toml:"backend"` // "spool" or "mock"
	SpoolDir       string `toml:"spool-dir"`
	CaptureCommand string `toml:"capture-command"`
	PreviewFile    string `toml:"preview-file"`
}

type Session struct {
	CountdownSeconds int      `toml:"countdown-seconds"`
	ReviewWindow     Duration `toml:"review-window"`
	OfferRetake      bool     `toml:"offer-retake"`
	OfferFilter      bool     `toml:"offer-filter"`
	DefaultFilter    string   `toml:"default-filter"`
	FilterIntensity  float64  `toml:"filter-intensity"`
}

type Trigger struct {
	Backend        string `toml:"backend"` // "hid", "midi" or "none"
	HIDVendorID    uint16 `toml:"hid-vendor-id"`
	HIDProductID   uint16 `toml:"hid-product-id"`
	MIDIPort       string `toml:"midi-port"`
	MIDIController uint8  `toml:"midi-controller"`
}

type Store struct {
	Path string `toml:"path"`
}

type Log struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
}

func Default() Config {
	return Config{
		Event: Event{
			Name: "booth",
			Dir:  "event",
		},
		Camera: Camera{
			Backend:  "spool",
			SpoolDir: "spool",
		},
		Session: Session{
			CountdownSeconds: 3,
			ReviewWindow:     Duration(30 * time.Second),
			OfferRetake:      true,
			FilterIntensity:  1,
		},
		Trigger: Trigger{
			Backend: "none",
		},
		Store: Store{
			Path: "booth.db",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads a TOML config. A missing file is not an error: the defaults
// apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: stat: %w", err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

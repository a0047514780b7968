package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"booth/lib/camera"
	"booth/lib/config"
	"booth/lib/session"
	"booth/lib/template"
	"booth/lib/trigger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "booth.toml", "config file")
	flag.Parse()

	defer midi.CloseDriver()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log.Level)

	store, err := template.OpenStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	tpl, err := pickTemplate(store, cfg.Event.Template)
	if err != nil {
		return err
	}
	log.Info("template loaded", "id", tpl.ID, "name", tpl.Name, "photos", tpl.PhotoCountNeeded())

	cam, err := openCamera(cfg.Camera)
	if err != nil {
		return err
	}
	defer cam.Close()

	ev, err := store.CreateEvent(cfg.Event.Name, cfg.Event.Dir, tpl.ID)
	if err != nil {
		return err
	}
	log.Info("event started", "id", ev.ID, "dir", ev.Dir)

	ctl, err := session.New(cam, session.Config{
		Template:         tpl,
		EventName:        cfg.Event.Name,
		EventDir:         cfg.Event.Dir,
		CountdownSeconds: cfg.Session.CountdownSeconds,
		ReviewWindow:     cfg.Session.ReviewWindow.Std(),
		OfferRetake:      cfg.Session.OfferRetake,
		OfferFilter:      cfg.Session.OfferFilter,
		DefaultFilter:    cfg.Session.DefaultFilter,
		FilterIntensity:  cfg.Session.FilterIntensity,
		Logger:           log,
	})
	if err != nil {
		return err
	}
	defer ctl.Stop()

	presses := make(chan trigger.Press, 8)
	src, err := openTrigger(cfg.Trigger)
	if err != nil {
		return err
	}
	if src != nil {
		defer src.Close()
		go func() {
			if err := src.Run(presses); err != nil {
				log.Error("trigger stopped", "error", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			log.Info("shutting down")
			return nil
		case p := <-presses:
			if st := ctl.Start(); !st.Accepted {
				log.Info("start rejected", "source", p.Source, "reason", st.Reason)
			}
		case ev := <-ctl.Events():
			logEvent(log, ev)
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log
}

// pickTemplate resolves the configured template by id or name. With nothing
// configured it falls back to the built-in demo strip, installing it on
// first run.
func pickTemplate(store *template.Store, key string) (*template.Template, error) {
	if key == "" {
		if tpl, err := store.Template("demo"); err == nil {
			return tpl, nil
		}
		tpl := template.Demo()
		if err := store.SaveTemplate(tpl); err != nil {
			return nil, err
		}
		return tpl, nil
	}

	if tpl, err := store.Template(key); err == nil {
		return tpl, nil
	}
	tpls, err := store.Templates()
	if err != nil {
		return nil, err
	}
	for _, t := range tpls {
		if t.Name == key {
			return store.Template(t.ID)
		}
	}
	return nil, fmt.Errorf("template %q not found", key)
}

func openCamera(cfg config.Camera) (camera.Camera, error) {
	switch cfg.Backend {
	case "mock":
		return camera.NewMock(), nil
	case "spool", "":
		return camera.OpenSpool(camera.SpoolConfig{
			Dir:            cfg.SpoolDir,
			CaptureCommand: strings.Fields(cfg.CaptureCommand),
			PreviewFile:    cfg.PreviewFile,
		})
	default:
		return nil, fmt.Errorf("unknown camera backend %q", cfg.Backend)
	}
}

func openTrigger(cfg config.Trigger) (trigger.Source, error) {
	switch cfg.Backend {
	case "hid":
		return trigger.OpenHID(trigger.HIDConfig{
			VendorID:  cfg.HIDVendorID,
			ProductID: cfg.HIDProductID,
		})
	case "midi":
		return trigger.OpenMIDI(trigger.MIDIConfig{
			Port:       cfg.MIDIPort,
			Controller: cfg.MIDIController,
		})
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown trigger backend %q", cfg.Backend)
	}
}

func logEvent(log *slog.Logger, ev session.Event) {
	switch {
	case ev.State != nil:
		log.Info("state", "state", ev.State.State)
	case ev.Tick != nil:
		log.Info("countdown", "remaining", ev.Tick.Remaining, "slot", ev.Tick.Slot)
	case ev.Slot != nil:
		log.Info("photo", "slot", ev.Slot.Index, "path", ev.Slot.Path, "retake", ev.Slot.Retake)
	case ev.Status != nil:
		log.Info(ev.Status.Message)
	case ev.Review != nil:
		log.Info("review open", "mode", ev.Review.Mode, "window", ev.Review.Window)
	case ev.Composed != nil:
		if ev.Composed.Err != nil {
			log.Error("composition failed", "error", ev.Composed.Err)
		} else {
			log.Info("composition ready", "path", ev.Composed.Path)
		}
	case ev.Frame != nil:
		// preview frames are too chatty for the log
	}
}

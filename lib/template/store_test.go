package template

import (
	"path/filepath"
	"testing"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "booth.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTemplateRoundTrip(t *testing.T) {
	s := setupStore(t)

	tpl := Demo()
	if err := s.SaveTemplate(tpl); err != nil {
		t.Fatal(err)
	}

	got, err := s.Template("demo")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != tpl.Name {
		t.Errorf("got name %q, want %q", got.Name, tpl.Name)
	}
	if got.Width != tpl.Width || got.Height != tpl.Height {
		t.Errorf("got %dx%d, want %dx%d", got.Width, got.Height, tpl.Width, tpl.Height)
	}
	if len(got.Items) != len(tpl.Items) {
		t.Fatalf("got %d items, want %d", len(got.Items), len(tpl.Items))
	}
	if got.Items[1].Type != Placeholder || got.Items[1].Number != 1 {
		t.Errorf("item 1 = %+v, want placeholder 1", got.Items[1])
	}
	if got.Items[1].Border == nil || got.Items[1].Border.Thickness != 6 {
		t.Error("placeholder border lost in round trip")
	}
	if got.PhotoCountNeeded() != 3 {
		t.Errorf("got %d photos needed, want 3", got.PhotoCountNeeded())
	}
}

func TestSaveAssignsID(t *testing.T) {
	s := setupStore(t)

	tpl := Demo()
	tpl.ID = ""
	if err := s.SaveTemplate(tpl); err != nil {
		t.Fatal(err)
	}
	if tpl.ID == "" {
		t.Fatal("no id assigned on save")
	}
	if _, err := s.Template(tpl.ID); err != nil {
		t.Fatal(err)
	}
}

func TestSaveUpserts(t *testing.T) {
	s := setupStore(t)

	tpl := Demo()
	if err := s.SaveTemplate(tpl); err != nil {
		t.Fatal(err)
	}
	tpl.Name = "renamed"
	tpl.Items = tpl.Items[:3]
	if err := s.SaveTemplate(tpl); err != nil {
		t.Fatal(err)
	}

	got, err := s.Template(tpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "renamed" {
		t.Errorf("got %q, want %q", got.Name, "renamed")
	}
	if len(got.Items) != 3 {
		t.Errorf("got %d items, want 3", len(got.Items))
	}

	all, err := s.Templates()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("got %d templates, want 1", len(all))
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	s := setupStore(t)

	tpl := Demo()
	tpl.Width = 0
	if err := s.SaveTemplate(tpl); err == nil {
		t.Error("expected validation error")
	}
}

func TestEvents(t *testing.T) {
	s := setupStore(t)

	tpl := Demo()
	if err := s.SaveTemplate(tpl); err != nil {
		t.Fatal(err)
	}

	ev, err := s.CreateEvent("wedding", "/data/wedding", tpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID == "" {
		t.Fatal("no event id assigned")
	}

	got, err := s.Event(ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "wedding" || got.Dir != "/data/wedding" {
		t.Errorf("got %+v", got)
	}
	if got.TemplateID != tpl.ID {
		t.Errorf("got template id %q, want %q", got.TemplateID, tpl.ID)
	}

	if _, err := s.Event("missing"); err == nil {
		t.Error("expected error for unknown event")
	}
}

func TestCanvasItems(t *testing.T) {
	s := setupStore(t)

	tpl := Demo()
	if err := s.SaveTemplate(tpl); err != nil {
		t.Fatal(err)
	}
	items, err := s.CanvasItems(tpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != len(tpl.Items) {
		t.Errorf("got %d items, want %d", len(items), len(tpl.Items))
	}
}

package template

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Event is one booth session context: photos and composed output are written
// under Dir, and the composed filename carries Name.
type Event struct {
	ID         string
	Name       string
	Dir        string
	TemplateID string
	CreatedAt  time.Time
}

// Store persists templates and events in a SQLite file.
type Store struct {
	conn *sql.DB
}

func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("template: create store directory: %w", err)
	}
	conn, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("template: open store: %w", err)
	}
	// SQLite only supports one writer; a single connection avoids SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("template: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			background TEXT NOT NULL DEFAULT '',
			items TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			dir TEXT NOT NULL,
			template_id TEXT NOT NULL REFERENCES templates(id),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, m := range migrations {
		if _, err := s.conn.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveTemplate(t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	items, err := json.Marshal(t.Items)
	if err != nil {
		return fmt.Errorf("template: marshal items: %w", err)
	}
	_, err = s.conn.Exec(
		`INSERT INTO templates (id, name, width, height, background, items)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name, width = excluded.width, height = excluded.height,
		   background = excluded.background, items = excluded.items`,
		t.ID, t.Name, t.Width, t.Height, t.Background, string(items))
	if err != nil {
		return fmt.Errorf("template: save %q: %w", t.ID, err)
	}
	return nil
}

func (s *Store) Template(id string) (*Template, error) {
	row := s.conn.QueryRow(
		`SELECT id, name, width, height, background, items FROM templates WHERE id = ?`, id)
	var t Template
	var items string
	if err := row.Scan(&t.ID, &t.Name, &t.Width, &t.Height, &t.Background, &items); err != nil {
		return nil, fmt.Errorf("template: load %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(items), &t.Items); err != nil {
		return nil, fmt.Errorf("template: decode items of %q: %w", id, err)
	}
	return &t, nil
}

func (s *Store) Templates() ([]Template, error) {
	rows, err := s.conn.Query(
		`SELECT id, name, width, height, background, items FROM templates ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("template: list: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		var items string
		if err := rows.Scan(&t.ID, &t.Name, &t.Width, &t.Height, &t.Background, &items); err != nil {
			return nil, fmt.Errorf("template: list: %w", err)
		}
		if err := json.Unmarshal([]byte(items), &t.Items); err != nil {
			return nil, fmt.Errorf("template: decode items of %q: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CanvasItems returns the ordered item list of a stored template.
func (s *Store) CanvasItems(id string) ([]Item, error) {
	t, err := s.Template(id)
	if err != nil {
		return nil, err
	}
	return t.Items, nil
}

func (s *Store) CreateEvent(name, dir, templateID string) (*Event, error) {
	ev := &Event{
		ID:         uuid.NewString(),
		Name:       name,
		Dir:        dir,
		TemplateID: templateID,
		CreatedAt:  time.Now(),
	}
	_, err := s.conn.Exec(
		`INSERT INTO events (id, name, dir, template_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.Name, ev.Dir, ev.TemplateID, ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("template: create event %q: %w", name, err)
	}
	return ev, nil
}

func (s *Store) Event(id string) (*Event, error) {
	row := s.conn.QueryRow(
		`SELECT id, name, dir, template_id, created_at FROM events WHERE id = ?`, id)
	var ev Event
	if err := row.Scan(&ev.ID, &ev.Name, &ev.Dir, &ev.TemplateID, &ev.CreatedAt); err != nil {
		return nil, fmt.Errorf("template: load event %q: %w", id, err)
	}
	return &ev, nil
}

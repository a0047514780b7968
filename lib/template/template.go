package template

import "fmt"

type ItemType string

const (
	Placeholder ItemType = "placeholder"
	Image       ItemType = "image"
	Text        ItemType = "text"
	Shape       ItemType = "shape"
)

type ShapeKind string

const (
	Rectangle ShapeKind = "rectangle"
	Ellipse   ShapeKind = "ellipse"
	Line      ShapeKind = "line"
)

type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Item is one canvas item. Type selects the variant; the other fields are
// meaningful only for the variant they belong to.
type Item struct {
	Type     ItemType `json:"type"`
	Z        int      `json:"z"`
	X        int      `json:"x"`
	Y        int      `json:"y"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Rotation float64  `json:"rotation,omitempty"` // degrees, clockwise about bounds center

	// placeholder
	Number int     `json:"number,omitempty"` // 1-based slot mapping
	Border *Stroke `json:"border,omitempty"`

	// image
	Source string `json:"source,omitempty"` // bare path or file:// URI

	// text
	Text      string  `json:"text,omitempty"`
	Font      string  `json:"font,omitempty"`
	Size      float64 `json:"size,omitempty"`
	Bold      bool    `json:"bold,omitempty"`
	Italic    bool    `json:"italic,omitempty"`
	Underline bool    `json:"underline,omitempty"`
	Color     string  `json:"color,omitempty"`
	Align     Align   `json:"align,omitempty"`
	Shadow    *Shadow `json:"shadow,omitempty"`
	Outline   *Stroke `json:"outline,omitempty"`

	// shape
	Shape  ShapeKind `json:"shape,omitempty"`
	Fill   string    `json:"fill,omitempty"`
	Stroke *Stroke   `json:"stroke,omitempty"`
}

type Stroke struct {
	Color     string `json:"color"`
	Thickness int    `json:"thickness"`
}

type Shadow struct {
	Color   string `json:"color"`
	OffsetX int    `json:"offset_x"`
	OffsetY int    `json:"offset_y"`
}

type Template struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Background string `json:"background,omitempty"` // empty means white
	Items      []Item `json:"items"`
}

func (t *Template) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("template: invalid canvas size %dx%d", t.Width, t.Height)
	}
	if t.Background != "" {
		if _, err := ParseColor(t.Background); err != nil {
			return fmt.Errorf("template: background: %w", err)
		}
	}
	for i, item := range t.Items {
		if err := item.validate(); err != nil {
			return fmt.Errorf("template: item %d: %w", i, err)
		}
	}
	return nil
}

func (item *Item) validate() error {
	if item.Width <= 0 || item.Height <= 0 {
		return fmt.Errorf("invalid bounds %dx%d", item.Width, item.Height)
	}
	switch item.Type {
	case Placeholder:
		if item.Number < 1 {
			return fmt.Errorf("placeholder number %d, want >= 1", item.Number)
		}
	case Image:
		if item.Source == "" {
			return fmt.Errorf("image item without source")
		}
	case Text:
		if item.Size <= 0 {
			return fmt.Errorf("text size %v, want > 0", item.Size)
		}
	case Shape:
		switch item.Shape {
		case Rectangle, Ellipse, Line:
		default:
			return fmt.Errorf("unknown shape %q", item.Shape)
		}
	default:
		return fmt.Errorf("unknown item type %q", item.Type)
	}
	return nil
}

// PhotoCountNeeded is the number of photos a sequence must capture before the
// template can be composed: the highest placeholder number across all items.
func (t *Template) PhotoCountNeeded() int {
	n := 0
	for _, item := range t.Items {
		if item.Type == Placeholder && item.Number > n {
			n = item.Number
		}
	}
	return n
}

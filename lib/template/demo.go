package template

// Demo returns a built-in three-photo strip so a fresh install can shoot
// before anyone designed a layout.
func Demo() *Template {
	return &Template{
		ID:         "demo",
		Name:       "demo strip",
		Width:      1200,
		Height:     1800,
		Background: "#ffffff",
		Items: []Item{
			{
				Type: Text,
				X:    0, Y: 40, Width: 1200, Height: 140, Z: 10,
				Text:  "Say Cheese!",
				Size:  96,
				Bold:  true,
				Color: "#222222",
				Align: AlignCenter,
			},
			{
				Type: Placeholder,
				X:    100, Y: 200, Width: 1000, Height: 420, Z: 1,
				Number: 1,
				Border: &Stroke{Color: "#222222", Thickness: 6},
			},
			{
				Type: Placeholder,
				X:    100, Y: 660, Width: 1000, Height: 420, Z: 1,
				Number: 2,
				Border: &Stroke{Color: "#222222", Thickness: 6},
			},
			{
				Type: Placeholder,
				X:    100, Y: 1120, Width: 1000, Height: 420, Z: 1,
				Number: 3,
				Border: &Stroke{Color: "#222222", Thickness: 6},
			},
			{
				Type: Shape, Shape: Line,
				X: 100, Y: 1580, Width: 1000, Height: 4, Z: 5,
				Stroke: &Stroke{Color: "#888888", Thickness: 4},
			},
			{
				Type: Text,
				X:    0, Y: 1620, Width: 1200, Height: 120, Z: 10,
				Text:   "Thank You",
				Size:   72,
				Italic: true,
				Color:  "#555555",
				Align:  AlignCenter,
			},
		},
	}
}

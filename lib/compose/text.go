package compose

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"booth/lib/template"
)

// Templates were authored against a design-time text metric; this factor
// makes rendered sizes visually match it.
const textSizeCorrection = 0.65

const shadowAlpha = 0x66

type fontStyle struct {
	bold   bool
	italic bool
}

var (
	fontMu    sync.Mutex
	fontCache = map[fontStyle]*sfnt.Font{}
)

var fontTTF = map[fontStyle][]byte{
	{false, false}: goregular.TTF,
	{true, false}:  gobold.TTF,
	{false, true}:  goitalic.TTF,
	{true, true}:   gobolditalic.TTF,
}

// styleFont maps any requested family onto the bundled Go font set; only the
// bold/italic flags select the variant.
func styleFont(bold, italic bool) (*sfnt.Font, error) {
	key := fontStyle{bold, italic}
	fontMu.Lock()
	defer fontMu.Unlock()
	if f, ok := fontCache[key]; ok {
		return f, nil
	}
	f, err := opentype.Parse(fontTTF[key])
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	fontCache[key] = f
	return f, nil
}

func drawText(tile *image.RGBA, item *template.Item) (bool, error) {
	if item.Text == "" {
		return false, nil
	}

	f, err := styleFont(item.Bold, item.Italic)
	if err != nil {
		return false, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    item.Size * textSizeCorrection,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return false, fmt.Errorf("text face: %w", err)
	}
	defer face.Close()

	fill := color.NRGBA{0x00, 0x00, 0x00, 0xFF}
	if item.Color != "" {
		fill, err = template.ParseColor(item.Color)
		if err != nil {
			return false, fmt.Errorf("text color: %w", err)
		}
	}

	metrics := face.Metrics()
	width := font.MeasureString(face, item.Text)

	var x fixed.Int26_6
	switch item.Align {
	case template.AlignCenter:
		x = (fixed.I(item.Width) - width) / 2
	case template.AlignRight:
		x = fixed.I(item.Width) - width
	default:
		x = 0
	}
	y := metrics.Ascent // single line, top aligned

	if item.Shadow != nil {
		shadow, err := template.ParseColor(item.Shadow.Color)
		if err != nil {
			return false, fmt.Errorf("text shadow: %w", err)
		}
		shadow.A = shadowAlpha
		drawString(tile, face, shadow, item.Text,
			x+fixed.I(item.Shadow.OffsetX), y+fixed.I(item.Shadow.OffsetY))
	}

	if item.Outline != nil && item.Outline.Thickness > 0 {
		outline, err := template.ParseColor(item.Outline.Color)
		if err != nil {
			return false, fmt.Errorf("text outline: %w", err)
		}
		t := item.Outline.Thickness
		for dy := -t; dy <= t; dy++ {
			for dx := -t; dx <= t; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				if dx*dx+dy*dy > t*t {
					continue
				}
				drawString(tile, face, outline, item.Text, x+fixed.I(dx), y+fixed.I(dy))
			}
		}
	}

	drawString(tile, face, fill, item.Text, x, y)

	if item.Underline {
		bar := int(item.Size * textSizeCorrection / 12)
		if bar < 1 {
			bar = 1
		}
		u := premul(fill)
		top := y.Ceil() + metrics.Descent.Ceil()/2
		for yy := top; yy < top+bar; yy++ {
			for xx := x.Floor(); xx < (x + width).Ceil(); xx++ {
				if image.Pt(xx, yy).In(tile.Bounds()) {
					tile.SetRGBA(xx, yy, blendOver(tile.RGBAAt(xx, yy), u))
				}
			}
		}
	}
	return true, nil
}

func drawString(dst *image.RGBA, face font.Face, c color.NRGBA, s string, x, y fixed.Int26_6) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{c},
		Face: face,
		Dot:  fixed.Point26_6{X: x, Y: y},
	}
	d.DrawString(s)
}

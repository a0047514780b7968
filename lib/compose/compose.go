package compose

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"booth/lib/template"
)

const (
	jpegQuality = 95

	// rotations below this are treated as axis-aligned placement
	rotationEpsilon = 0.01
)

type Options struct {
	EventDir  string
	EventName string
	Now       time.Time // zero means time.Now()
	Logger    *slog.Logger
}

// Compose renders the template over the captured photos and writes the result
// as a JPEG under <EventDir>/Composed. photos is indexed by slot; an empty
// entry is an unfilled slot. It returns the output path.
func Compose(tpl *template.Template, photos []string, opts Options) (string, error) {
	img, err := Render(tpl, photos, opts.Logger)
	if err != nil {
		return "", err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	dir := filepath.Join(opts.EventDir, "Composed")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("compose: create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.jpg", opts.EventName, now.Format("20060102_150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("compose: create output: %w", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("compose: encode output: %w", err)
	}
	return path, nil
}

// Render draws every canvas item onto a fresh surface. A failing item is
// logged and skipped; the surface is still returned. Preconditions (no items,
// no filled photos) fail before anything is drawn.
func Render(tpl *template.Template, photos []string, log *slog.Logger) (*image.RGBA, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(tpl.Items) == 0 {
		return nil, fmt.Errorf("compose: template %q has no canvas items", tpl.Name)
	}
	filled := 0
	for _, p := range photos {
		if p != "" {
			filled++
		}
	}
	if filled == 0 {
		return nil, fmt.Errorf("compose: no captured photos")
	}

	dst := image.NewRGBA(image.Rect(0, 0, tpl.Width, tpl.Height))
	bg := color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF}
	if tpl.Background != "" {
		c, err := template.ParseColor(tpl.Background)
		if err != nil {
			return nil, fmt.Errorf("compose: %w", err)
		}
		bg = c
	}
	draw.Draw(dst, dst.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	items := make([]*template.Item, len(tpl.Items))
	for i := range tpl.Items {
		items[i] = &tpl.Items[i]
	}
	sort.SliceStable(items, func(a, b int) bool { return items[a].Z < items[b].Z })

	for i, item := range items {
		renderItem(dst, item, photos, log.With("item", i, "type", item.Type))
	}
	return dst, nil
}

// renderItem draws one item, isolating any error or panic so a single bad
// item cannot abort the composition.
func renderItem(dst *image.RGBA, item *template.Item, photos []string, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("item render panicked, skipping", "panic", r)
		}
	}()

	tile := image.NewRGBA(image.Rect(0, 0, item.Width, item.Height))
	var (
		drew bool
		err  error
	)
	switch item.Type {
	case template.Placeholder:
		drew, err = drawPlaceholder(tile, item, photos)
	case template.Image:
		drew, err = drawImage(tile, item)
		if err == nil && !drew {
			log.Info("image source missing, skipping", "source", item.Source)
		}
	case template.Text:
		drew, err = drawText(tile, item)
	case template.Shape:
		drew, err = drawShape(tile, item)
	default:
		err = fmt.Errorf("unknown item type %q", item.Type)
	}
	if err != nil {
		log.Error("item render failed, skipping", "error", err)
		return
	}
	if drew {
		place(dst, tile, item)
	}
}

// place puts the rendered tile at the item bounds. Rotation is applied as a
// one-shot affine transform of this tile only, so it can never accumulate
// into later items.
func place(dst *image.RGBA, tile *image.RGBA, item *template.Item) {
	rot := math.Mod(item.Rotation, 360)
	if rot > 180 {
		rot -= 360
	} else if rot < -180 {
		rot += 360
	}
	if math.Abs(rot) <= rotationEpsilon {
		r := image.Rect(item.X, item.Y, item.X+item.Width, item.Y+item.Height)
		draw.Draw(dst, r, tile, image.Point{}, draw.Over)
		return
	}

	rad := rot * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	hw := float64(item.Width) / 2
	hh := float64(item.Height) / 2
	cx := float64(item.X) + hw
	cy := float64(item.Y) + hh

	// translate(center) * rotate(clockwise) * translate(-half size)
	m := f64.Aff3{
		cos, -sin, cx - cos*hw + sin*hh,
		sin, cos, cy - sin*hw - cos*hh,
	}
	xdraw.BiLinear.Transform(dst, m, tile, tile.Bounds(), xdraw.Over, nil)
}

func drawPlaceholder(tile *image.RGBA, item *template.Item, photos []string) (bool, error) {
	slot := item.Number - 1
	if slot < 0 || slot >= len(photos) || photos[slot] == "" {
		// unfilled placeholder renders as background
		return false, nil
	}

	src, err := loadImage(photos[slot])
	if err != nil {
		return false, fmt.Errorf("placeholder %d: %w", item.Number, err)
	}

	crop := aspectFillRect(src.Bounds(), item.Width, item.Height)
	xdraw.CatmullRom.Scale(tile, tile.Bounds(), src, crop, xdraw.Src, nil)

	if item.Border != nil && item.Border.Thickness > 0 {
		c, err := template.ParseColor(item.Border.Color)
		if err != nil {
			return true, fmt.Errorf("placeholder %d: border: %w", item.Number, err)
		}
		strokeRect(tile, tile.Bounds(), c, item.Border.Thickness)
	}
	return true, nil
}

// aspectFillRect crops the longer dimension of src symmetrically so the
// remaining region has exactly the destination aspect ratio. The photo is
// never letterboxed.
func aspectFillRect(src image.Rectangle, dstW, dstH int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 || dstW == 0 || dstH == 0 {
		return src
	}
	if sw*dstH > sh*dstW {
		// source is wider: crop left and right
		cw := sh * dstW / dstH
		off := (sw - cw) / 2
		return image.Rect(src.Min.X+off, src.Min.Y, src.Min.X+off+cw, src.Max.Y)
	}
	// source is taller: crop top and bottom
	ch := sw * dstH / dstW
	off := (sh - ch) / 2
	return image.Rect(src.Min.X, src.Min.Y+off, src.Max.X, src.Min.Y+off+ch)
}

func drawImage(tile *image.RGBA, item *template.Item) (bool, error) {
	path := item.Source
	if v, ok := strings.CutPrefix(path, "file://"); ok {
		path = v
	}
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}
	src, err := loadImage(path)
	if err != nil {
		return false, fmt.Errorf("image %q: %w", path, err)
	}
	xdraw.CatmullRom.Scale(tile, tile.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return true, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", path, err)
	}
	return img, nil
}

package compose

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"booth/lib/template"
)

func drawShape(tile *image.RGBA, item *template.Item) (bool, error) {
	var fill *color.NRGBA
	if item.Fill != "" {
		c, err := template.ParseColor(item.Fill)
		if err != nil {
			return false, fmt.Errorf("shape fill: %w", err)
		}
		fill = &c
	}
	var stroke *color.NRGBA
	thickness := 0
	if item.Stroke != nil {
		c, err := template.ParseColor(item.Stroke.Color)
		if err != nil {
			return false, fmt.Errorf("shape stroke: %w", err)
		}
		stroke = &c
		thickness = item.Stroke.Thickness
		if thickness < 1 {
			thickness = 1
		}
	}

	b := tile.Bounds()
	switch item.Shape {
	case template.Rectangle:
		if fill != nil {
			draw.Draw(tile, b, &image.Uniform{*fill}, image.Point{}, draw.Over)
		}
		if stroke != nil {
			strokeRect(tile, b, *stroke, thickness)
		}
	case template.Ellipse:
		if fill != nil {
			fillEllipse(tile, b, *fill)
		}
		if stroke != nil {
			strokeEllipse(tile, b, *stroke, thickness)
		}
	case template.Line:
		if stroke == nil {
			return false, nil
		}
		drawDiagonal(tile, b, *stroke, thickness)
	default:
		return false, fmt.Errorf("unknown shape %q", item.Shape)
	}
	return true, nil
}

func strokeRect(img *image.RGBA, r image.Rectangle, c color.NRGBA, t int) {
	u := &image.Uniform{c}
	draw.Draw(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), u, image.Point{}, draw.Over)
	draw.Draw(img, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), u, image.Point{}, draw.Over)
	draw.Draw(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), u, image.Point{}, draw.Over)
	draw.Draw(img, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), u, image.Point{}, draw.Over)
}

func fillEllipse(img *image.RGBA, r image.Rectangle, c color.NRGBA) {
	src := premul(c)
	rx := float64(r.Dx()) / 2
	ry := float64(r.Dy()) / 2
	cx := float64(r.Min.X) + rx
	cy := float64(r.Min.Y) + ry
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dx := (float64(x) + 0.5 - cx) / rx
			dy := (float64(y) + 0.5 - cy) / ry
			if dx*dx+dy*dy <= 1 {
				img.SetRGBA(x, y, blendOver(img.RGBAAt(x, y), src))
			}
		}
	}
}

func strokeEllipse(img *image.RGBA, r image.Rectangle, c color.NRGBA, t int) {
	src := premul(c)
	rx := float64(r.Dx()) / 2
	ry := float64(r.Dy()) / 2
	cx := float64(r.Min.X) + rx
	cy := float64(r.Min.Y) + ry
	irx := rx - float64(t)
	iry := ry - float64(t)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dx := float64(x) + 0.5 - cx
			dy := float64(y) + 0.5 - cy
			outer := (dx/rx)*(dx/rx)+(dy/ry)*(dy/ry) <= 1
			inner := irx > 0 && iry > 0 && (dx/irx)*(dx/irx)+(dy/iry)*(dy/iry) <= 1
			if outer && !inner {
				img.SetRGBA(x, y, blendOver(img.RGBAAt(x, y), src))
			}
		}
	}
}

// drawDiagonal draws a single stroke from the top-left to the bottom-right
// corner of the bounds.
func drawDiagonal(img *image.RGBA, r image.Rectangle, c color.NRGBA, t int) {
	u := &image.Uniform{c}
	steps := r.Dx()
	if r.Dy() > steps {
		steps = r.Dy()
	}
	if steps < 2 {
		steps = 2
	}
	half := t / 2
	for i := 0; i <= steps; i++ {
		x := r.Min.X + i*(r.Dx()-1)/steps
		y := r.Min.Y + i*(r.Dy()-1)/steps
		dot := image.Rect(x-half, y-half, x-half+t, y-half+t).Intersect(r)
		draw.Draw(img, dot, u, image.Point{}, draw.Over)
	}
}

func premul(c color.NRGBA) color.RGBA {
	a := uint32(c.A)
	return color.RGBA{
		R: uint8(uint32(c.R) * a / 255),
		G: uint8(uint32(c.G) * a / 255),
		B: uint8(uint32(c.B) * a / 255),
		A: c.A,
	}
}

func blendOver(dst, src color.RGBA) color.RGBA {
	if src.A == 0xFF {
		return src
	}
	ia := uint32(255 - src.A)
	return color.RGBA{
		R: uint8(uint32(src.R) + uint32(dst.R)*ia/255),
		G: uint8(uint32(src.G) + uint32(dst.G)*ia/255),
		B: uint8(uint32(src.B) + uint32(dst.B)*ia/255),
		A: uint8(uint32(src.A) + uint32(dst.A)*ia/255),
	}
}

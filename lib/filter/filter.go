// Package filter is the boundary to photo filters. The pixel algorithms are
// deliberately minimal; the contract is the Transform interface.
package filter

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	_ "image/png"
)

const (
	None      = "none"
	Grayscale = "grayscale"
	Sepia     = "sepia"
)

// Transform rewrites a photo file and returns the path of the filtered copy.
// Kind None returns the input path unchanged.
type Transform interface {
	Apply(path, kind string, intensity float64) (string, error)
}

// Basic implements Transform with simple per-pixel color mappings.
type Basic struct{}

func (Basic) Apply(path, kind string, intensity float64) (string, error) {
	if kind == "" || kind == None {
		return path, nil
	}
	if intensity <= 0 || intensity > 1 {
		intensity = 1
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("filter: open %q: %w", path, err)
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("filter: decode %q: %w", path, err)
	}

	b := src.Bounds()
	dst := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			var out color.NRGBA
			switch kind {
			case Grayscale:
				out = grayscale(c)
			case Sepia:
				out = sepia(c)
			default:
				return "", fmt.Errorf("filter: unknown kind %q", kind)
			}
			dst.SetNRGBA(x, y, mix(c, out, intensity))
		}
	}

	ext := filepath.Ext(path)
	outPath := strings.TrimSuffix(path, ext) + "_" + kind + ".jpg"
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("filter: create %q: %w", outPath, err)
	}
	defer out.Close()
	if err := jpeg.Encode(out, dst, &jpeg.Options{Quality: 95}); err != nil {
		return "", fmt.Errorf("filter: encode %q: %w", outPath, err)
	}
	return outPath, nil
}

func grayscale(c color.NRGBA) color.NRGBA {
	v := uint8((299*uint32(c.R) + 587*uint32(c.G) + 114*uint32(c.B)) / 1000)
	return color.NRGBA{v, v, v, c.A}
}

func sepia(c color.NRGBA) color.NRGBA {
	r := float64(c.R)
	g := float64(c.G)
	b := float64(c.B)
	return color.NRGBA{
		R: clamp8(0.393*r + 0.769*g + 0.189*b),
		G: clamp8(0.349*r + 0.686*g + 0.168*b),
		B: clamp8(0.272*r + 0.534*g + 0.131*b),
		A: c.A,
	}
}

func mix(orig, filtered color.NRGBA, k float64) color.NRGBA {
	if k >= 1 {
		return filtered
	}
	lerp := func(a, b uint8) uint8 {
		return uint8(float64(a) + (float64(b)-float64(a))*k)
	}
	return color.NRGBA{
		R: lerp(orig.R, filtered.R),
		G: lerp(orig.G, filtered.G),
		B: lerp(orig.B, filtered.B),
		A: orig.A,
	}
}

func clamp8(v float64) uint8 {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return uint8(v)
}

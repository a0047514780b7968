package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"booth/lib/compose"
	"booth/lib/template"
)

var photoColors = []color.NRGBA{
	{220, 80, 80, 255},
	{80, 180, 90, 255},
	{80, 110, 220, 255},
	{230, 170, 40, 255},
}

func writeSamplePhoto(path string, c color.NRGBA) error {
	const w, h = 1600, 1200
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := c
			if x > w/4 && x < 3*w/4 && y > h/4 && y < 3*h/4 {
				px = color.NRGBA{255, 255, 255, 255}
			}
			img.SetNRGBA(x, y, px)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}

func main() {
	outDir := flag.String("out", "composetest-out", "output directory")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tpl := template.Demo()
	photos := make([]string, tpl.PhotoCountNeeded())
	for i := range photos {
		photos[i] = filepath.Join(*outDir, fmt.Sprintf("sample%d.jpg", i+1))
		if err := writeSamplePhoto(photos[i], photoColors[i%len(photoColors)]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	path, err := compose.Compose(tpl, photos, compose.Options{
		EventDir:  *outDir,
		EventName: "composetest",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Composed %dx%d canvas: %s\n", tpl.Width, tpl.Height, path)
}

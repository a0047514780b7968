package template

import (
	"fmt"
	"image/color"
	"strings"
)

var namedColors = map[string]color.NRGBA{
	"black":   {0x00, 0x00, 0x00, 0xFF},
	"white":   {0xFF, 0xFF, 0xFF, 0xFF},
	"red":     {0xFF, 0x00, 0x00, 0xFF},
	"green":   {0x00, 0x80, 0x00, 0xFF},
	"blue":    {0x00, 0x00, 0xFF, 0xFF},
	"yellow":  {0xFF, 0xFF, 0x00, 0xFF},
	"magenta": {0xFF, 0x00, 0xFF, 0xFF},
	"cyan":    {0x00, 0xFF, 0xFF, 0xFF},
	"gray":    {0x80, 0x80, 0x80, 0xFF},
}

// ParseColor accepts #RGB, #RRGGBB, #RRGGBBAA, or a small set of named colors.
func ParseColor(s string) (color.NRGBA, error) {
	if c, ok := namedColors[strings.ToLower(s)]; ok {
		return c, nil
	}
	if !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, fmt.Errorf("unknown color %q", s)
	}
	hex := s[1:]
	switch len(hex) {
	case 3:
		r, err1 := hexNibble(hex[0])
		g, err2 := hexNibble(hex[1])
		b, err3 := hexNibble(hex[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
		}
		return color.NRGBA{r * 0x11, g * 0x11, b * 0x11, 0xFF}, nil
	case 6, 8:
		var v [4]uint8
		v[3] = 0xFF
		for i := 0; i < len(hex)/2; i++ {
			hi, err1 := hexNibble(hex[2*i])
			lo, err2 := hexNibble(hex[2*i+1])
			if err1 != nil || err2 != nil {
				return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
			}
			v[i] = hi<<4 | lo
		}
		return color.NRGBA{v[0], v[1], v[2], v[3]}, nil
	}
	return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
}

func hexNibble(b byte) (uint8, error) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', nil
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, nil
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, nil
	}
	return 0, fmt.Errorf("invalid hex digit %q", b)
}

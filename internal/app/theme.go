package app

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"

	"rr-labeler/internal/symbols"
	"rr-labeler/pkg/colorutil"
)

// LabelerTheme draws the window chrome in the overlay palette: accents use
// the calibration magenta, selections the track glyph and errors the
// detector glyph, so widgets match what is drawn on the photo.
type LabelerTheme struct{}

var _ fyne.Theme = (*LabelerTheme)(nil)

func (t *LabelerTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNamePrimary:
		return colorutil.Calibration
	case theme.ColorNameFocus:
		return colorutil.WithAlpha(colorutil.Calibration, 0x7F)
	case theme.ColorNameHover:
		return colorutil.WithAlpha(colorutil.Calibration, 0x26)
	case theme.ColorNameSelection:
		a := uint8(0x80)
		if variant == theme.VariantDark {
			a = 0x60
		}
		return colorutil.WithAlpha(glyphColor("track"), a)
	case theme.ColorNameError:
		return glyphColor("detector")
	case theme.ColorNameWarning:
		return glyphColor("coupling")
	case theme.ColorNameScrollBar:
		return colorutil.HandleRing
	default:
		return theme.DefaultTheme().Color(name, variant)
	}
}

func glyphColor(markerType string) color.RGBA {
	if g, ok := symbols.GlyphFor(markerType); ok {
		return g.Color
	}
	return colorutil.HandleRing
}

func (t *LabelerTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *LabelerTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

// Size widens scrollbars, which sit next to a photo that is usually larger
// than the window.
func (t *LabelerTheme) Size(name fyne.ThemeSizeName) float32 {
	switch name {
	case theme.SizeNameScrollBar:
		return 14
	case theme.SizeNameScrollBarSmall:
		return 10
	default:
		return theme.DefaultTheme().Size(name)
	}
}

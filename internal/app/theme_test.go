package app

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	"fyne.io/fyne/v2/theme"

	"rr-labeler/internal/symbols"
	"rr-labeler/pkg/colorutil"
)

func TestLabelerThemeUsesOverlayPalette(t *testing.T) {
	th := &LabelerTheme{}
	track, _ := symbols.GlyphFor("track")
	detector, _ := symbols.GlyphFor("detector")

	assert.Equal(t, color.Color(colorutil.Calibration), th.Color(theme.ColorNamePrimary, theme.VariantLight))
	assert.Equal(t, color.Color(colorutil.WithAlpha(track.Color, 0x80)), th.Color(theme.ColorNameSelection, theme.VariantLight))
	assert.Equal(t, color.Color(colorutil.WithAlpha(track.Color, 0x60)), th.Color(theme.ColorNameSelection, theme.VariantDark))
	assert.Equal(t, color.Color(detector.Color), th.Color(theme.ColorNameError, theme.VariantDark))
	assert.Equal(t, color.Color(colorutil.HandleRing), th.Color(theme.ColorNameScrollBar, theme.VariantLight))

	assert.Equal(t,
		theme.DefaultTheme().Color(theme.ColorNameBackground, theme.VariantDark),
		th.Color(theme.ColorNameBackground, theme.VariantDark))
}

func TestLabelerThemeSizes(t *testing.T) {
	th := &LabelerTheme{}
	assert.Equal(t, float32(14), th.Size(theme.SizeNameScrollBar))
	assert.Equal(t, float32(10), th.Size(theme.SizeNameScrollBarSmall))
	assert.Equal(t, theme.DefaultTheme().Size(theme.SizeNamePadding), th.Size(theme.SizeNamePadding))
}

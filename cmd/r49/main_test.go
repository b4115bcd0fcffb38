package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rr-labeler/internal/bundle"
	"rr-labeler/internal/manifest"
	"rr-labeler/internal/monitoring"
	"rr-labeler/internal/version"
	"rr-labeler/pkg/geometry"
)

func writeTestPNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func runCmd(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func initBundle(t *testing.T) string {
	t.Helper()
	original := monitoring.Logf
	t.Cleanup(func() { monitoring.Logf = original })
	monitoring.SetLogger(nil)

	dir := t.TempDir()
	img := writeTestPNG(t, dir, "yard.png", 400, 300)
	out := filepath.Join(dir, "yard"+bundle.Extension)

	code, stdout, stderr := runCmd("init", "-o", out, "-scale", "N", "-width", "1200", "-height", "800", img)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "1 image(s)")
	return out
}

func TestUsage(t *testing.T) {
	code, _, stderr := runCmd()
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Usage: r49")

	code, _, stderr = runCmd("frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)
}

func TestInitAndInfo(t *testing.T) {
	path := initBundle(t)

	code, stdout, stderr := runCmd("info", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Layout:      yard")
	assert.Contains(t, stdout, "Scale:       N (1:160")
	assert.Contains(t, stdout, "Size:        1200 x 800 mm")
	assert.Contains(t, stdout, "Camera:      400x300")
	assert.Contains(t, stdout, "Calibration: ok")
	assert.Contains(t, stdout, "Image 0:     yard.png, 0 labels")
}

func TestInitRejectsUnknownScale(t *testing.T) {
	dir := t.TempDir()
	img := writeTestPNG(t, dir, "a.png", 10, 10)
	code, _, stderr := runCmd("init", "-o", filepath.Join(dir, "a.r49"), "-scale", "XX", img)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `unknown scale "XX"`)
}

func TestMeasure(t *testing.T) {
	path := initBundle(t)

	// Seeded corners sit 50 px inside the 400x300 photo, so the top edge
	// spans 300 px for 1200 mm.
	code, stdout, stderr := runCmd("measure", path, "50", "50", "350", "50")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "1200.0 mm\n", stdout)

	code, _, stderr = runCmd("measure", path, "50", "x", "350", "50")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `invalid coordinate "x"`)
}

func TestRender(t *testing.T) {
	path := initBundle(t)
	out := filepath.Join(t.TempDir(), "render.png")

	code, _, stderr := runCmd("render", "-o", out, path)
	require.Equal(t, 0, code, stderr)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 400, 300), img.Bounds())

	code, _, _ = runCmd("render", "-o", out, "-i", "3", path)
	assert.Equal(t, 1, code)
}

func TestRectify(t *testing.T) {
	path := initBundle(t)
	out := filepath.Join(t.TempDir(), "top.png")

	code, stdout, stderr := runCmd("rectify", "-o", out, "-ppmm", "0.5", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "(600x400)")

	code, _, stderr = runCmd("rectify", "-o", out, "-mode", "sideways", path)
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, stderr)
}

func TestExportAndInfoFromManifest(t *testing.T) {
	path := initBundle(t)
	out := filepath.Join(t.TempDir(), manifest.ManifestFilename)

	code, stdout, stderr := runCmd("export", "-o", out, path)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Wrote "+out+"\n", stdout)

	doc, err := manifest.Load(out)
	require.NoError(t, err)
	require.Len(t, doc.Images, 1)
	doc.Images[0].Labels["in"] = manifest.Marker{PointInt: geometry.PointInt{X: 200, Y: 150}, Type: "track"}
	doc.Images[0].Labels["out"] = manifest.Marker{PointInt: geometry.PointInt{X: 10, Y: 10}, Type: "train"}
	require.NoError(t, manifest.Save(out, doc))

	code, stdout, stderr = runCmd("info", out)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Image 0:     yard.png, 2 labels")
	assert.Contains(t, stdout, "outside calibration: 1")
	assert.NotContains(t, stdout, "Warning:")

	// Swap the bottom corners so the rectangle crosses itself.
	doc.Calibration[manifest.CornerBottomLeft] = geometry.PointInt{X: 350, Y: 250}
	doc.Calibration[manifest.CornerBottomRight] = geometry.PointInt{X: 50, Y: 250}
	require.NoError(t, manifest.Save(out, doc))

	code, stdout, stderr = runCmd("info", out)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Warning:     calibration corners cross or dent")
}

func TestExportRequiresBundle(t *testing.T) {
	code, _, stderr := runCmd("export", "-o", filepath.Join(t.TempDir(), "m.json"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "expected one bundle path")
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCmd("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "r49 "+version.Version)
}

func TestMissingBundle(t *testing.T) {
	code, _, stderr := runCmd("info", filepath.Join(t.TempDir(), "nope.r49"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "r49 info:")
}

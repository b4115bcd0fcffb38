package app

import (
	"bytes"
	"context"
	goimage "image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rr-labeler/internal/config"
	"rr-labeler/internal/image"
	"rr-labeler/internal/interaction"
	"rr-labeler/internal/manifest"
	"rr-labeler/internal/monitoring"
	"rr-labeler/internal/rectify"
	"rr-labeler/pkg/geometry"
)

func pngPhoto(t *testing.T, name string, w, h int) *image.Photo {
	t.Helper()
	img := goimage.NewRGBA(goimage.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	p, err := image.Decode(name, buf.Bytes())
	require.NoError(t, err)
	return p
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pngPhoto(t, name, w, h).Data, 0644))
	return path
}

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()

	doc := s.Document()
	assert.Equal(t, manifest.ScaleHO, doc.Layout.Scale)
	assert.Zero(t, doc.Layout.GaugeMM)
	assert.False(t, s.IsModified())
	assert.Equal(t, 0, s.PhotoCount())
	assert.Equal(t, "layout.r49", s.DefaultBundleName())
}

func TestNewSessionAppliesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.DefaultScale = manifestScale("N")
	cfg.GaugeMM = floatPtr(1000)
	inset := 10
	cfg.CalibrationInset = &inset

	s := NewSession(cfg)
	defer s.Close()
	s.SetPhoto(pngPhoto(t, "a.png", 200, 100))

	doc := s.Document()
	assert.Equal(t, manifest.ScaleN, doc.Layout.Scale)
	assert.Equal(t, 1000.0, doc.Layout.GaugeMM)
	tl, _ := doc.Corner(manifest.CornerTopLeft)
	assert.Equal(t, geometry.PointInt{X: 10, Y: 10}, tl)
}

func manifestScale(s string) *string { return &s }
func floatPtr(v float64) *float64    { return &v }

func TestOpenImage(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()

	var loaded, modified int
	s.On(EventImageLoaded, func(interface{}) { loaded++ })
	s.On(EventModified, func(interface{}) { modified++ })

	path := writePNG(t, t.TempDir(), "basement.png", 400, 300)
	require.NoError(t, s.OpenImage(context.Background(), path))

	doc := s.Document()
	require.NotNil(t, doc.Layout.Name)
	assert.Equal(t, "basement", *doc.Layout.Name)
	assert.Equal(t, manifest.Resolution{Width: 400, Height: 300}, doc.Camera.Resolution)
	assert.True(t, doc.CalibrationComplete())
	require.Len(t, doc.Images, 1)
	assert.Equal(t, "basement.png", doc.Images[0].Filename)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 1, modified, "modified is announced once")
	assert.True(t, s.IsModified())

	assert.Error(t, s.OpenImage(context.Background(), filepath.Join(t.TempDir(), "none.png")))
}

func TestSetPhotoClearsLabels(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()
	s.SetPhoto(pngPhoto(t, "a.png", 400, 300))
	s.Store().SetMarker(manifest.CategoryLabel, "x", 10, 10, "track", 0)
	before, _ := s.Document().Corner(manifest.CornerTopRight)
	var published []manifest.Document
	s.Store().Subscribe(func(doc manifest.Document) { published = append(published, doc) })

	s.SetPhoto(pngPhoto(t, "b.png", 400, 300))
	require.NotEmpty(t, published)
	first := published[0]
	require.Len(t, first.Images, 1)
	assert.Equal(t, "a.png", first.Images[0].Filename, "labels are dropped before the image list changes")
	assert.Empty(t, first.Images[0].Labels)

	doc := s.Document()
	require.Len(t, doc.Images, 1)
	assert.Equal(t, "b.png", doc.Images[0].Filename)
	assert.Empty(t, doc.Images[0].Labels)
	after, _ := doc.Corner(manifest.CornerTopRight)
	assert.Equal(t, before, after, "calibration survives a same-size photo")
}

func TestAddPhoto(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	var logged int
	monitoring.SetLogger(func(string, ...interface{}) { logged++ })

	s := NewSession(nil)
	defer s.Close()

	i, err := s.AddPhoto(pngPhoto(t, "a.png", 400, 300))
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	i, err = s.AddPhoto(pngPhoto(t, "b.png", 400, 300))
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.Equal(t, 0, logged)

	_, err = s.AddPhoto(pngPhoto(t, "a.png", 400, 300))
	assert.ErrorIs(t, err, ErrDuplicateImage)

	i, err = s.AddPhoto(pngPhoto(t, "c.png", 640, 480))
	require.NoError(t, err)
	assert.Equal(t, 2, i)
	assert.Equal(t, 1, logged)

	doc := s.Document()
	require.Len(t, doc.Images, 3)
	assert.Equal(t, manifest.Resolution{Width: 400, Height: 300}, doc.Camera.Resolution)
	assert.Equal(t, 3, s.PhotoCount())

	p, ok := s.Photo(2)
	require.True(t, ok)
	assert.Equal(t, "c.png", p.Filename)
	_, ok = s.Photo(3)
	assert.False(t, ok)
}

func TestSetCurrent(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()
	_, _ = s.AddPhoto(pngPhoto(t, "a.png", 40, 30))
	_, _ = s.AddPhoto(pngPhoto(t, "b.png", 40, 30))

	var changes []interface{}
	s.On(EventCurrentImageChanged, func(d interface{}) { changes = append(changes, d) })

	require.NoError(t, s.SetCurrent(1))
	require.NoError(t, s.SetCurrent(1))
	assert.Equal(t, 1, s.Current())
	assert.Equal(t, []interface{}{1}, changes)
	assert.ErrorIs(t, s.SetCurrent(5), ErrNoImage)
}

func TestSetLayoutEstimatesHeight(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()
	s.SetPhoto(pngPhoto(t, "a.png", 1000, 800))

	s.SetLayout(manifest.Layout{Scale: manifest.ScaleHO, Size: manifest.LayoutSize{Width: manifest.Float(1435)}})
	size := s.Document().Layout.Size
	require.NotNil(t, size.Height)
	assert.Equal(t, 1148.0, *size.Height)

	s.SetLayout(manifest.Layout{Scale: manifest.ScaleHO, Size: manifest.LayoutSize{Width: manifest.Float(1435), Height: manifest.Float(500)}})
	assert.Equal(t, 500.0, *s.Document().Layout.Size.Height)
}

func TestBundleRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSession(nil)
	defer s.Close()
	_, _ = s.AddPhoto(pngPhoto(t, "a.png", 400, 300))
	_, _ = s.AddPhoto(pngPhoto(t, "b.png", 400, 300))
	s.Store().SetMarker(manifest.CategoryLabel, "x", 10, 20, "coupling", 1)

	path := filepath.Join(t.TempDir(), s.DefaultBundleName())
	var saved int
	s.On(EventBundleSaved, func(interface{}) { saved++ })
	require.NoError(t, s.SaveBundle(ctx, path))
	assert.Equal(t, 1, saved)
	assert.False(t, s.IsModified())
	assert.Equal(t, path, s.BundlePath)

	other := NewSession(nil)
	defer other.Close()
	var loaded int
	other.On(EventBundleLoaded, func(interface{}) { loaded++ })
	require.NoError(t, other.OpenBundle(ctx, path))
	assert.Equal(t, 1, loaded)
	assert.False(t, other.IsModified())
	assert.Equal(t, 2, other.PhotoCount())

	if diff := cmp.Diff(s.Document(), other.Document()); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
	a, _ := s.Photo(1)
	b, _ := other.Photo(1)
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, 400, b.Width())

	other.Store().SetMarker(manifest.CategoryLabel, "y", 1, 1, "track", 0)
	assert.True(t, other.IsModified())
}

func TestOpenBundleFailureKeepsSession(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()
	s.SetPhoto(pngPhoto(t, "a.png", 40, 30))
	before := s.Document()

	assert.Error(t, s.OpenBundle(context.Background(), filepath.Join(t.TempDir(), "none.r49")))
	if diff := cmp.Diff(before, s.Document()); diff != "" {
		t.Errorf("document changed (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, s.PhotoCount())
}

func TestSaveBundleCancelled(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.SaveBundle(ctx, filepath.Join(t.TempDir(), "x.r49"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMeasure(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()
	s.SetPhoto(pngPhoto(t, "a.png", 1000, 800))

	_, err := s.Measure(geometry.Point2D{}, geometry.Point2D{X: 1})
	assert.ErrorIs(t, err, ErrNotCalibrated)

	// Seeded corners span 900x700 px; map them onto 1800x1400 mm.
	s.SetLayout(manifest.Layout{
		Scale: manifest.ScaleHO,
		Size:  manifest.LayoutSize{Width: manifest.Float(1800), Height: manifest.Float(1400)},
	})
	d, err := s.Measure(geometry.Point2D{X: 100, Y: 100}, geometry.Point2D{X: 130, Y: 140})
	require.NoError(t, err)
	assert.InDelta(t, 100, d, 1e-6)
	// 0.5 px per mm across a 16.494 mm HO gauge.
	assert.Equal(t, 8, s.Tracker().DotsPerTrack())
}

func TestRectifiedErrors(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()
	_, err := s.Rectified(context.Background(), 0, 1, rectify.Crop)
	assert.ErrorIs(t, err, ErrNoImage)

	s.SetPhoto(pngPhoto(t, "a.png", 100, 80))
	_, err = s.Rectified(context.Background(), 0, 1, rectify.Crop)
	assert.ErrorIs(t, err, ErrNotCalibrated)
}

func TestNewController(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()
	s.SetPhoto(pngPhoto(t, "a.png", 100, 80))

	surface := interaction.TransformFunc(func() (geometry.AffineTransform, bool) {
		return geometry.Identity(), true
	})
	c := s.NewController(surface, 0, interaction.WithIDGenerator(func() string { return "fixed" }))
	c.SetTool(interaction.ToolTrack)
	c.PointerDown("", geometry.Point2D{X: 5, Y: 6})
	c.PointerUp(geometry.Point2D{X: 5, Y: 6})
	id, err := c.Click("", geometry.Point2D{X: 5, Y: 6})
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)

	m, ok := s.Document().Label(0, "fixed")
	require.True(t, ok)
	assert.Equal(t, "track", m.Type)

	// Calibration corners are not deletable by default.
	c.BindHandle("corner", interaction.MarkerRef{Category: manifest.CategoryCalibration, ID: manifest.CornerTopLeft})
	c.SetTool(interaction.ToolDelete)
	c.PointerDown("corner", geometry.Point2D{X: 50, Y: 50})
	c.PointerUp(geometry.Point2D{X: 50, Y: 50})
	_, ok = s.Document().Corner(manifest.CornerTopLeft)
	assert.True(t, ok)
}

func TestNewSymbolAdapter(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()
	a := s.NewSymbolAdapter(fixedSurface{}, nil)
	fp, ok := a.Recompute()
	require.True(t, ok)
	// 5 mm at 96 ppi is 18.9 px; the surface renders at half size.
	assert.InDelta(t, 5/25.4*96*2, fp.Width, 1e-9)
}

type fixedSurface struct{}

func (fixedSurface) RenderedSize() geometry.Size  { return geometry.NewSize(500, 400) }
func (fixedSurface) IntrinsicSize() geometry.Size { return geometry.NewSize(1000, 800) }

package calibration

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rr-labeler/internal/manifest"
	"rr-labeler/internal/monitoring"
	"rr-labeler/pkg/geometry"
)

func docWithCorners(corners map[string]geometry.PointInt, width, height *float64) manifest.Document {
	doc := manifest.NewDocument()
	doc.Calibration = corners
	doc.Layout.Size = manifest.LayoutSize{Width: width, Height: height}
	return doc
}

func TestDotsPerTrackReference(t *testing.T) {
	doc := docWithCorners(map[string]geometry.PointInt{
		manifest.CornerTopLeft:  {X: 100, Y: 100},
		manifest.CornerTopRight: {X: 100, Y: 500},
	}, manifest.Float(1435), nil)

	assert.Equal(t, 5, DotsPerTrack(doc))
}

func TestDotsPerTrackUnavailable(t *testing.T) {
	top := map[string]geometry.PointInt{
		manifest.CornerTopLeft:  {X: 0, Y: 0},
		manifest.CornerTopRight: {X: 1000, Y: 0},
	}
	cases := map[string]manifest.Document{
		"no size":     docWithCorners(top, nil, nil),
		"height only": docWithCorners(top, nil, manifest.Float(500)),
		"zero width":  docWithCorners(top, manifest.Float(0), manifest.Float(500)),
		"missing corner": docWithCorners(map[string]geometry.PointInt{
			manifest.CornerTopLeft: {X: 0, Y: 0},
		}, manifest.Float(1000), nil),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, -1, DotsPerTrack(doc))
		})
	}

	unknown := docWithCorners(top, manifest.Float(1000), nil)
	unknown.Layout.Scale = "custom"
	assert.Equal(t, -1, DotsPerTrack(unknown))
}

func TestDotsPerTrackUsesLayoutOverrides(t *testing.T) {
	doc := docWithCorners(map[string]geometry.PointInt{
		manifest.CornerTopLeft:  {X: 0, Y: 0},
		manifest.CornerTopRight: {X: 1000, Y: 0},
	}, manifest.Float(1000), nil)
	doc.Layout.GaugeMM = 1000
	doc.Layout.ScaleRatio = 50

	// 1 px/mm, 20 mm gauge.
	assert.Equal(t, 20, DotsPerTrack(doc))
}

func TestSolvePerspectiveMapsCorners(t *testing.T) {
	src := [4]geometry.Point2D{
		{X: 112, Y: 95},
		{X: 903, Y: 130},
		{X: 951, Y: 702},
		{X: 74, Y: 668},
	}
	p, err := SolvePerspective(src, 1435, 900)
	require.NoError(t, err)

	want := [4]geometry.Point2D{{X: 0, Y: 0}, {X: 1435, Y: 0}, {X: 1435, Y: 900}, {X: 0, Y: 900}}
	for i := range src {
		got, ok := p.Apply(src[i])
		require.True(t, ok)
		assert.InDelta(t, want[i].X, got.X, 1e-3, "corner %d x", i)
		assert.InDelta(t, want[i].Y, got.Y, 1e-3, "corner %d y", i)

		back, ok := p.Invert(want[i])
		require.True(t, ok)
		assert.InDelta(t, src[i].X, back.X, 1e-3, "corner %d inverse x", i)
		assert.InDelta(t, src[i].Y, back.Y, 1e-3, "corner %d inverse y", i)
	}
	assert.Equal(t, geometry.NewSize(1435, 900), p.Size())
	assert.Equal(t, 1.0, p.Matrix()[2][2])
}

func TestSolvePerspectiveDegenerate(t *testing.T) {
	cases := map[string][4]geometry.Point2D{
		"collinear":  {{X: 0, Y: 0}, {X: 100, Y: 100}, {X: 200, Y: 200}, {X: 0, Y: 300}},
		"coincident": {{X: 10, Y: 10}, {X: 10, Y: 10}, {X: 300, Y: 300}, {X: 0, Y: 300}},
		"all same":   {{X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}},
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := SolvePerspective(src, 1000, 500)
			assert.ErrorIs(t, err, ErrDegenerate)
		})
	}

	square := [4]geometry.Point2D{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	_, err := SolvePerspective(square, 0, 500)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestFromDocument(t *testing.T) {
	doc := manifest.NewDocument()
	doc.Calibration = manifest.SeedCalibration(1000, 800, 50)

	_, err := FromDocument(doc)
	assert.ErrorIs(t, err, ErrNoLayoutSize)

	doc.Layout.Size = manifest.LayoutSize{Width: manifest.Float(900), Height: manifest.Float(700)}
	p, err := FromDocument(doc)
	require.NoError(t, err)

	// Seeded corners are axis aligned, so the transform is a pure offset.
	got, ok := p.Apply(geometry.Point2D{X: 500, Y: 400})
	require.True(t, ok)
	assert.InDelta(t, 450, got.X, 1e-6)
	assert.InDelta(t, 350, got.Y, 1e-6)

	bl, ok := p.Apply(geometry.Point2D{X: 50, Y: 750})
	require.True(t, ok)
	assert.InDelta(t, 0, bl.X, 1e-6)
	assert.InDelta(t, 700, bl.Y, 1e-6)

	delete(doc.Calibration, manifest.CornerBottomLeft)
	_, err = FromDocument(doc)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestCornersConvexInside(t *testing.T) {
	doc := manifest.NewDocument()
	doc.Calibration = manifest.SeedCalibration(400, 300, 50)

	src, err := Corners(doc)
	require.NoError(t, err)
	assert.Equal(t, [4]geometry.Point2D{{X: 50, Y: 50}, {X: 350, Y: 50}, {X: 350, Y: 250}, {X: 50, Y: 250}}, src)
	assert.True(t, Convex(doc))
	assert.True(t, Inside(doc, geometry.Point2D{X: 200, Y: 150}))
	assert.False(t, Inside(doc, geometry.Point2D{X: 20, Y: 150}))

	// Swapping the bottom corners crosses the quad.
	doc.Calibration[manifest.CornerBottomLeft] = geometry.PointInt{X: 350, Y: 250}
	doc.Calibration[manifest.CornerBottomRight] = geometry.PointInt{X: 50, Y: 250}
	assert.False(t, Convex(doc))

	delete(doc.Calibration, manifest.CornerTopLeft)
	_, err = Corners(doc)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.False(t, Convex(doc))
	assert.False(t, Inside(doc, geometry.Point2D{X: 200, Y: 150}))
}

func TestDistance(t *testing.T) {
	src := [4]geometry.Point2D{{X: 0, Y: 0}, {X: 200, Y: 0}, {X: 200, Y: 100}, {X: 0, Y: 100}}
	p, err := SolvePerspective(src, 1000, 500)
	require.NoError(t, err)

	d, err := p.Distance(geometry.Point2D{X: 0, Y: 0}, geometry.Point2D{X: 200, Y: 0})
	require.NoError(t, err)
	assert.InDelta(t, 1000, d, 1e-6)

	d, err = p.Distance(geometry.Point2D{X: 0, Y: 0}, geometry.Point2D{X: 30, Y: 40})
	require.NoError(t, err)
	assert.InDelta(t, 250, d, 1e-6)
}

func TestImageBounds(t *testing.T) {
	src := [4]geometry.Point2D{{X: 10, Y: 10}, {X: 110, Y: 10}, {X: 110, Y: 60}, {X: 10, Y: 60}}
	p, err := SolvePerspective(src, 100, 50)
	require.NoError(t, err)

	r, ok := p.ImageBounds(120, 70)
	require.True(t, ok)
	assert.InDelta(t, -10, r.X, 1e-6)
	assert.InDelta(t, -10, r.Y, 1e-6)
	assert.InDelta(t, 120, r.Width, 1e-6)
	assert.InDelta(t, 70, r.Height, 1e-6)
}

func parseMatrix3D(t *testing.T, css string) []float64 {
	t.Helper()
	require.True(t, strings.HasPrefix(css, "matrix3d("))
	require.True(t, strings.HasSuffix(css, ")"))
	body := strings.TrimSuffix(strings.TrimPrefix(css, "matrix3d("), ")")
	parts := strings.Split(body, ", ")
	require.Len(t, parts, 16)
	out := make([]float64, len(parts))
	for i, s := range parts {
		v, err := strconv.ParseFloat(s, 64)
		require.NoError(t, err, "entry %d", i)
		out[i] = v
	}
	return out
}

func TestCSSMatrix3DColumnMajor(t *testing.T) {
	src := [4]geometry.Point2D{{X: 112, Y: 95}, {X: 903, Y: 130}, {X: 951, Y: 702}, {X: 74, Y: 668}}
	p, err := SolvePerspective(src, 1435, 900)
	require.NoError(t, err)

	h := p.Matrix()
	v := parseMatrix3D(t, p.CSSMatrix3D())
	want := []float64{
		h[0][0], h[1][0], 0, h[2][0],
		h[0][1], h[1][1], 0, h[2][1],
		0, 0, 1, 0,
		h[0][2], h[1][2], 0, 1,
	}
	for i := range want {
		assert.InDelta(t, want[i], v[i], 1e-12, "entry %d", i)
	}
}

func TestCSSMatrix3DTranslation(t *testing.T) {
	src := [4]geometry.Point2D{{X: 10, Y: 20}, {X: 110, Y: 20}, {X: 110, Y: 70}, {X: 10, Y: 70}}
	p, err := SolvePerspective(src, 100, 50)
	require.NoError(t, err)

	v := parseMatrix3D(t, p.CSSMatrix3D())
	assert.InDelta(t, 1, v[0], 1e-9)
	assert.InDelta(t, 1, v[5], 1e-9)
	assert.InDelta(t, -10, v[12], 1e-9)
	assert.InDelta(t, -20, v[13], 1e-9)
	assert.InDelta(t, 0, v[3], 1e-9)
	assert.InDelta(t, 0, v[7], 1e-9)
}

func TestTrackerFollowsStore(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	var logged int
	monitoring.SetLogger(func(string, ...interface{}) { logged++ })

	store := manifest.NewStore()
	store.SetImages([]manifest.Image{{Filename: "a.jpg"}})
	tracker := NewTracker(store)
	defer tracker.Close()

	assert.Equal(t, -1, tracker.DotsPerTrack())
	assert.ErrorIs(t, tracker.Err(), ErrIncomplete)
	assert.Nil(t, tracker.Perspective())

	var recomputes int
	tracker.OnChange(func(Result) { recomputes++ })

	store.SetImageDimensions(1000, 800)
	store.SetLayout(manifest.Layout{
		Scale: manifest.ScaleHO,
		Size:  manifest.LayoutSize{Width: manifest.Float(1435), Height: manifest.Float(900)},
	})
	assert.Equal(t, 2, recomputes)
	require.NoError(t, tracker.Err())
	assert.NotNil(t, tracker.Perspective())
	// 900 px across 1435 mm of HO layout.
	assert.Equal(t, 10, tracker.DotsPerTrack())
	assert.True(t, tracker.Result().Convex)

	store.SetMarker(manifest.CategoryLabel, "x", 5, 5, "train", 0)
	assert.Equal(t, 2, recomputes, "label edits must not recompute")

	store.SetMarker(manifest.CategoryCalibration, manifest.CornerBottomRight, 50, 400, "", 0)
	assert.Equal(t, 3, recomputes)
	assert.ErrorIs(t, tracker.Err(), ErrDegenerate)
	assert.Nil(t, tracker.Perspective())
	assert.Equal(t, 1, logged)

	tracker.Close()
	store.SetImageDimensions(640, 480)
	assert.Equal(t, 3, recomputes)
}

func TestTrackerFlagsCrossedCorners(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	var messages []string
	monitoring.SetLogger(func(format string, _ ...interface{}) { messages = append(messages, format) })

	store := manifest.NewStore()
	store.SetLayout(manifest.Layout{
		Scale: manifest.ScaleHO,
		Size:  manifest.LayoutSize{Width: manifest.Float(1200), Height: manifest.Float(800)},
	})
	store.SetImageDimensions(400, 300)
	tracker := NewTracker(store)
	defer tracker.Close()
	require.True(t, tracker.Result().Convex)

	store.SetMarker(manifest.CategoryCalibration, manifest.CornerBottomRight, 50, 250, "", 0)
	store.SetMarker(manifest.CategoryCalibration, manifest.CornerBottomLeft, 350, 250, "", 0)

	r := tracker.Result()
	require.NoError(t, r.Err)
	assert.False(t, r.Convex)
	require.NotEmpty(t, messages)
	assert.Contains(t, messages[len(messages)-1], "cross or dent")
}

package bundle

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rr-labeler/internal/manifest"
	"rr-labeler/pkg/geometry"
)

func sampleManifest(t *testing.T, filenames ...string) (manifest.Document, []byte) {
	t.Helper()
	doc := manifest.NewDocument()
	doc.Layout.Name = manifest.String("Yard")
	doc.Calibration = manifest.SeedCalibration(640, 480, 50)
	for _, name := range filenames {
		doc.Images = append(doc.Images, manifest.Image{
			Filename: name,
			Labels: map[string]manifest.Marker{
				"a": {PointInt: geometry.PointInt{X: 1, Y: 2}, Type: "track"},
			},
		})
	}
	data, err := manifest.ToJSON(doc)
	require.NoError(t, err)
	return doc, data
}

func TestRoundTrip(t *testing.T) {
	doc, data := sampleManifest(t, "a.jpg", "b.png")
	files := map[string][]byte{
		"a.jpg": []byte("jpeg bytes"),
		"b.png": []byte("png bytes"),
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, data, files))

	b, err := Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, data, b.Manifest)
	if diff := cmp.Diff(files, b.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(doc, b.Document); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}

	img, ok := b.Image(1)
	require.True(t, ok)
	assert.Equal(t, []byte("png bytes"), img)
	_, ok = b.Image(2)
	assert.False(t, ok)
}

func TestEntryLayout(t *testing.T) {
	_, data := sampleManifest(t, "a.jpg")
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, data, map[string][]byte{"a.jpg": []byte("x")}))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, manifest.ManifestFilename, zr.File[0].Name)
	assert.Equal(t, zip.Deflate, zr.File[0].Method)
	assert.Equal(t, "a.jpg", zr.File[1].Name)
	assert.Equal(t, zip.Store, zr.File[1].Method)
}

func writeRawZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReadMissingManifest(t *testing.T) {
	raw := writeRawZip(t, map[string][]byte{"image.jpeg": []byte("x")})
	_, err := Read(bytes.NewReader(raw), int64(len(raw)))
	assert.ErrorIs(t, err, ErrMissingManifest)
}

func TestReadMissingImage(t *testing.T) {
	_, data := sampleManifest(t, "a.jpg", "b.jpg")
	raw := writeRawZip(t, map[string][]byte{
		manifest.ManifestFilename: data,
		"a.jpg":                   []byte("x"),
	})
	_, err := Read(bytes.NewReader(raw), int64(len(raw)))
	assert.ErrorIs(t, err, ErrMissingImage)
	assert.Contains(t, err.Error(), "b.jpg")
}

func TestReadRejectsOldManifest(t *testing.T) {
	raw := writeRawZip(t, map[string][]byte{
		manifest.ManifestFilename: []byte(`{"version": 1}`),
		"image.jpeg":              []byte("x"),
	})
	_, err := Read(bytes.NewReader(raw), int64(len(raw)))
	assert.ErrorIs(t, err, manifest.ErrUnsupportedVersion)
}

func TestReadNotAZip(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("nope")), 4)
	assert.Error(t, err)
}

func TestWriteRejectsBadNames(t *testing.T) {
	_, data := sampleManifest(t)
	for _, name := range []string{"", "../x.jpg", "dir/x.jpg", manifest.ManifestFilename} {
		err := Write(&bytes.Buffer{}, data, map[string][]byte{name: []byte("x")})
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestFileRoundTrip(t *testing.T) {
	_, data := sampleManifest(t, "a.jpg")
	path := filepath.Join(t.TempDir(), Filename("Yard"))
	require.NoError(t, WriteFile(path, data, map[string][]byte{"a.jpg": []byte("x")}))

	b, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Yard", *b.Document.Layout.Name)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.r49"))
	assert.Error(t, err)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "Yard.r49", Filename("Yard"))
	assert.Equal(t, "layout.r49", Filename("  "))
	assert.Equal(t, "a_b.r49", Filename("a/b"))
}

// Package bundle reads and writes .r49 archives: a zip holding manifest.json
// and every photograph the manifest references, stored under its filename.
package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"rr-labeler/internal/manifest"

	"github.com/klauspost/compress/zip"
)

// Extension is the file extension of a bundle.
const Extension = ".r49"

// maxEntrySize bounds how much of one archive entry is read into memory.
const maxEntrySize = 256 << 20

var (
	// ErrMissingManifest is returned when an archive has no manifest.json.
	ErrMissingManifest = errors.New("bundle has no " + manifest.ManifestFilename)

	// ErrMissingImage is returned when the manifest names an image the
	// archive does not contain.
	ErrMissingImage = errors.New("bundle is missing an image")

	// ErrInvalidName is returned for entry names that are not plain file
	// names.
	ErrInvalidName = errors.New("invalid bundle entry name")
)

// Bundle is the decoded content of an archive.
type Bundle struct {
	Document manifest.Document
	Manifest []byte
	Files    map[string][]byte
}

// Image returns the bytes stored for the image at index i of the manifest.
func (b *Bundle) Image(i int) ([]byte, bool) {
	if i < 0 || i >= len(b.Document.Images) {
		return nil, false
	}
	data, ok := b.Files[b.Document.Images[i].Filename]
	return data, ok
}

func validName(name string) bool {
	if name == "" || name == manifest.ManifestFilename {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && name != "." && name != ".."
}

// Write archives manifestJSON and files to w. Images are stored as-is since
// photo formats are already compressed; the manifest is deflated.
func Write(w io.Writer, manifestJSON []byte, files map[string][]byte) error {
	names := make([]string, 0, len(files))
	for name := range files {
		if !validName(name) {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	if err := writeEntry(zw, manifest.ManifestFilename, zip.Deflate, manifestJSON); err != nil {
		return err
	}
	for _, name := range names {
		if err := writeEntry(zw, name, zip.Store, files[name]); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish bundle: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, method uint16, data []byte) error {
	f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Read parses an archive of the given size. The manifest is decoded with the
// version gate, and every image it references must be present.
func Read(r io.ReaderAt, size int64) (*Bundle, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}

	b := &Bundle{Files: make(map[string][]byte)}
	var haveManifest bool
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(f.Name)
		data, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		if name == manifest.ManifestFilename {
			b.Manifest = data
			haveManifest = true
			continue
		}
		if !validName(name) {
			continue
		}
		b.Files[name] = data
	}
	if !haveManifest {
		return nil, ErrMissingManifest
	}

	doc, err := manifest.FromJSON(b.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", manifest.ManifestFilename, err)
	}
	for _, img := range doc.Images {
		if _, ok := b.Files[img.Filename]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingImage, img.Filename)
		}
	}
	b.Document = doc
	return b, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxEntrySize {
		return nil, fmt.Errorf("bundle entry %s too large: %d bytes", f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return data, nil
}

// WriteFile writes a bundle to path.
func WriteFile(filename string, manifestJSON []byte, files map[string][]byte) error {
	var buf bytes.Buffer
	if err := Write(&buf, manifestJSON, files); err != nil {
		return err
	}
	if err := os.WriteFile(filename, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	return nil
}

// ReadFile reads the bundle at path.
func ReadFile(filename string) (*Bundle, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	return Read(bytes.NewReader(data), int64(len(data)))
}

// Filename returns the default bundle filename for a layout name.
func Filename(layoutName string) string {
	name := strings.TrimSpace(layoutName)
	if name == "" {
		name = "layout"
	}
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return name + Extension
}

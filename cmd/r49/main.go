// Command r49 inspects and processes .r49 layout bundles from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"rr-labeler/internal/app"
	"rr-labeler/internal/calibration"
	"rr-labeler/internal/config"
	"rr-labeler/internal/manifest"
	"rr-labeler/internal/overlay"
	"rr-labeler/internal/rectify"
	"rr-labeler/internal/symbols"
	"rr-labeler/internal/version"
	"rr-labeler/pkg/geometry"
)

const usage = `Usage: r49 <command> [flags]

Commands:
  info    <bundle|manifest.json>            print layout, calibration and labels
  measure <bundle> <x1> <y1> <x2> <y2>      layout distance between two pixels, in mm
  rectify -o out.png [-i n] [-ppmm f] [-mode crop|full] <bundle>
  render  -o out.png [-i n] <bundle>        draw calibration and labels onto a photo
  init    -o out.r49 [-scale HO] [-width mm] [-height mm] <image>...
  export  -o manifest.json <bundle>          write the bundle manifest as plain JSON
  version                                   print the build version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 1
	}
	commands := map[string]func([]string, io.Writer) error{
		"info":    cmdInfo,
		"measure": cmdMeasure,
		"rectify": cmdRectify,
		"render":  cmdRender,
		"init":    cmdInit,
		"export":  cmdExport,
		"version": cmdVersion,
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 1
	}
	if err := cmd(args[1:], stdout); err != nil {
		fmt.Fprintf(stderr, "r49 %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

// open loads a bundle into a fresh session. A .json path is read as a
// standalone manifest without photos.
func open(path string) (*app.Session, error) {
	s := app.NewSession(config.Default())
	if strings.EqualFold(filepath.Ext(path), ".json") {
		doc, err := manifest.Load(path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Store().Replace(doc)
		return s, nil
	}
	if err := s.OpenBundle(context.Background(), path); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func cmdInfo(args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("expected one bundle path")
	}
	s, err := open(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	doc := s.Document()
	l := doc.Layout
	name := "(unnamed)"
	if l.Name != nil {
		name = *l.Name
	}
	fmt.Fprintf(out, "Layout:      %s\n", name)
	fmt.Fprintf(out, "Scale:       %s (1:%d, track gauge %.2f mm)\n", l.Scale, l.Ratio(), l.TrackGaugeMM())
	fmt.Fprintf(out, "Size:        %s x %s mm\n", optMM(l.Size.Width), optMM(l.Size.Height))
	if l.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", l.Description)
	}
	if l.Contact != "" {
		fmt.Fprintf(out, "Contact:     %s\n", l.Contact)
	}
	fmt.Fprintf(out, "Camera:      %dx%d\n", doc.Camera.Resolution.Width, doc.Camera.Resolution.Height)

	r := s.Tracker().Result()
	switch {
	case r.Err != nil:
		fmt.Fprintf(out, "Calibration: %v\n", r.Err)
	case !r.Convex:
		fmt.Fprintf(out, "Calibration: ok\n")
		fmt.Fprintf(out, "Warning:     calibration corners cross or dent\n")
	default:
		fmt.Fprintf(out, "Calibration: ok\n")
	}
	if r.DotsPerTrack >= 0 {
		fmt.Fprintf(out, "Dots/track:  %d\n", r.DotsPerTrack)
	}

	for i, img := range doc.Images {
		fmt.Fprintf(out, "Image %d:     %s, %d labels\n", i, img.Filename, len(img.Labels))
		counts := map[string]int{}
		outside := 0
		for _, m := range img.Labels {
			counts[m.Type]++
			if !calibration.Inside(doc, m.ToFloat()) {
				outside++
			}
		}
		if outside > 0 && doc.CalibrationComplete() {
			fmt.Fprintf(out, "  outside calibration: %d\n", outside)
		}
		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(out, "  %-10s %d\n", t, counts[t])
		}
	}
	return nil
}

func optMM(v *float64) string {
	if v == nil {
		return "?"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func cmdMeasure(args []string, out io.Writer) error {
	if len(args) != 5 {
		return fmt.Errorf("expected a bundle path and four coordinates")
	}
	var v [4]float64
	for i, a := range args[1:] {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return fmt.Errorf("invalid coordinate %q", a)
		}
		v[i] = f
	}
	s, err := open(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.Measure(geometry.Point2D{X: v[0], Y: v[1]}, geometry.Point2D{X: v[2], Y: v[3]})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%.1f mm\n", d)
	return nil
}

func cmdRectify(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("rectify", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	output := fs.String("o", "", "output PNG path")
	index := fs.Int("i", 0, "image index")
	ppmm := fs.Float64("ppmm", 1, "output pixels per millimeter")
	modeName := fs.String("mode", "crop", "crop or full")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *output == "" || fs.NArg() != 1 {
		return fmt.Errorf("expected -o and one bundle path")
	}
	mode, err := rectify.ParseMode(*modeName)
	if err != nil {
		return err
	}
	s, err := open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer s.Close()

	img, err := s.Rectified(context.Background(), *index, *ppmm, mode)
	if err != nil {
		return err
	}
	if err := writePNG(*output, img); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s (%dx%d)\n", *output, img.Bounds().Dx(), img.Bounds().Dy())
	return nil
}

func cmdRender(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	output := fs.String("o", "", "output PNG path")
	index := fs.Int("i", 0, "image index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *output == "" || fs.NArg() != 1 {
		return fmt.Errorf("expected -o and one bundle path")
	}
	s, err := open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer s.Close()

	ph, ok := s.Photo(*index)
	if !ok {
		return fmt.Errorf("%w: index %d", app.ErrNoImage, *index)
	}
	b := ph.Image.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), ph.Image, b.Min, draw.Src)

	// At 1:1 the glyph size is the configured physical size at the
	// configured density.
	cfg := s.Config()
	size := ph.Size()
	fp, _ := symbols.Compute(cfg.GetSymbolSizeMM(), cfg.GetScreenPPI(), size, size)
	opts := overlay.DefaultOptions(fp)
	opts.HandleRadius = cfg.GetHandleVisualRadius()
	overlay.Annotate(dst, s.Document(), *index, geometry.Identity(), opts)

	if err := writePNG(*output, dst); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", *output)
	return nil
}

func cmdInit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	output := fs.String("o", "", "output bundle path")
	scale := fs.String("scale", string(manifest.ScaleHO), "layout scale")
	width := fs.Float64("width", 0, "layout width in mm")
	height := fs.Float64("height", 0, "layout height in mm (estimated from the photo when 0)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *output == "" || fs.NArg() == 0 {
		return fmt.Errorf("expected -o and at least one image")
	}
	if _, ok := manifest.Scale(*scale).Ratio(); !ok {
		return fmt.Errorf("unknown scale %q", *scale)
	}

	s := app.NewSession(config.Default())
	defer s.Close()
	ctx := context.Background()
	if err := s.OpenImage(ctx, fs.Arg(0)); err != nil {
		return err
	}
	for _, path := range fs.Args()[1:] {
		if _, err := s.AddImage(ctx, path); err != nil {
			return err
		}
	}

	layout := s.Document().Layout
	layout.Scale = manifest.Scale(*scale)
	if *width > 0 {
		layout.Size.Width = manifest.Float(*width)
	}
	if *height > 0 {
		layout.Size.Height = manifest.Float(*height)
	}
	s.SetLayout(layout)

	if err := s.SaveBundle(ctx, *output); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s with %d image(s)\n", *output, s.PhotoCount())
	return nil
}

func cmdExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	output := fs.String("o", manifest.ManifestFilename, "output manifest path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one bundle path")
	}
	s, err := open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := manifest.Save(*output, s.Document()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", *output)
	return nil
}

func cmdVersion(_ []string, out io.Writer) error {
	fmt.Fprintf(out, "r49 %s\n", version.String())
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

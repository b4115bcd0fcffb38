// Package mainwindow provides the main application window.
package mainwindow

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"rr-labeler/internal/app"
	"rr-labeler/internal/bundle"
	"rr-labeler/internal/calibration"
	"rr-labeler/internal/image"
	"rr-labeler/internal/interaction"
	"rr-labeler/internal/manifest"
	"rr-labeler/internal/monitoring"
	"rr-labeler/internal/rectify"
	"rr-labeler/internal/version"
	"rr-labeler/pkg/geometry"
	"rr-labeler/ui/canvas"
	"rr-labeler/ui/prefs"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
)

const (
	title = "Layout Labeler"

	// Longest edge of the rectified preview, in pixels.
	previewEdge = 1600.0
)

var toolNames = map[interaction.Tool]string{
	interaction.ToolCalibrate: "Calibrate",
	interaction.ToolDelete:    "Delete",
	interaction.ToolDetector:  "Detector",
	interaction.ToolTrack:     "Track",
	interaction.ToolTrain:     "Train",
	interaction.ToolTrainEnd:  "Train end",
	interaction.ToolCoupling:  "Coupling",
}

func toolOrder() []interaction.Tool {
	return append([]interaction.Tool{interaction.ToolCalibrate, interaction.ToolDelete}, interaction.LabelTools()...)
}

// MainWindow is the primary application window.
type MainWindow struct {
	fyne.Window
	app     fyne.App
	session *app.Session
	prefs   *prefs.Prefs
	canvas  *canvas.LabelCanvas

	tools     *widget.RadioGroup
	images    *widget.Select
	statusBar *widget.Label
	dotsLabel *widget.Label
	hoverText *widget.Label

	nameEntry    *widget.Entry
	scaleSelect  *widget.Select
	widthEntry   *widget.Entry
	heightEntry  *widget.Entry
	descEntry    *widget.Entry
	contactEntry *widget.Entry

	showCalItem *fyne.MenuItem
}

// New creates a new main window.
func New(fyneApp fyne.App, session *app.Session, p *prefs.Prefs) *MainWindow {
	win := fyneApp.NewWindow(title)

	mw := &MainWindow{
		Window:  win,
		app:     fyneApp,
		session: session,
		prefs:   p,
	}

	mw.setupUI()
	mw.setupMenus()
	mw.setupEventHandlers()
	mw.SetCloseIntercept(mw.onClose)

	return mw
}

// Canvas returns the label canvas.
func (mw *MainWindow) Canvas() *canvas.LabelCanvas { return mw.canvas }

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	mw.canvas = canvas.NewLabelCanvas(mw.session, 0)
	mw.canvas.SetShowCalibration(mw.prefs.ShowCalibration())
	mw.canvas.SetScreenPPI(mw.prefs.ScreenPPI(mw.session.Config().GetScreenPPI()))
	mw.canvas.OnError(func(err error) { mw.updateStatus(err.Error()) })
	mw.canvas.OnHover(mw.onHover)
	mw.canvas.OnLabelCreated(func(id string) {
		mw.updateStatus(fmt.Sprintf("Added %s %s", mw.canvas.Tool(), shortID(id)))
	})

	mw.statusBar = widget.NewLabel("Ready")
	mw.dotsLabel = widget.NewLabel("")
	mw.hoverText = widget.NewLabel("")
	mw.updateCalibration(mw.session.Tracker().Result())

	canvasArea := container.NewBorder(
		mw.createToolbar(), // top
		nil,                // bottom
		nil,                // left
		nil,                // right
		mw.canvas,          // center
	)

	split := container.NewHSplit(mw.createLayoutPanel(), canvasArea)
	split.SetOffset(0.22)

	status := container.NewBorder(nil, nil, nil,
		container.NewHBox(mw.hoverText, mw.dotsLabel),
		mw.statusBar,
	)
	content := container.NewBorder(
		nil,                         // top
		container.NewPadded(status), // bottom
		nil,                         // left
		nil,                         // right
		split,                       // center
	)

	mw.SetContent(content)
	mw.Resize(fyne.NewSize(1280, 860))
}

// createToolbar creates the tool selector, image picker and zoom controls.
func (mw *MainWindow) createToolbar() fyne.CanvasObject {
	order := toolOrder()
	names := make([]string, len(order))
	for i, t := range order {
		names[i] = toolNames[t]
	}
	mw.tools = widget.NewRadioGroup(names, func(name string) {
		t := toolByName(name)
		mw.canvas.SetTool(t)
		mw.prefs.SetLastTool(t)
	})
	mw.tools.Horizontal = true
	mw.tools.Required = true
	mw.tools.SetSelected(toolNames[mw.prefs.LastTool()])

	mw.images = widget.NewSelect(nil, func(name string) {
		mw.selectImage(name)
	})
	mw.images.PlaceHolder = "(no image)"

	return container.NewHBox(
		mw.tools,
		widget.NewSeparator(),
		mw.images,
		widget.NewSeparator(),
		widget.NewLabel("Zoom:"),
		widget.NewButton("-", mw.canvas.ZoomOut),
		widget.NewButton("+", mw.canvas.ZoomIn),
		widget.NewButton("Fit", mw.canvas.FitToWindow),
	)
}

func toolByName(name string) interaction.Tool {
	for t, n := range toolNames {
		if n == name {
			return t
		}
	}
	return interaction.ToolNone
}

// createLayoutPanel creates the layout description form.
func (mw *MainWindow) createLayoutPanel() fyne.CanvasObject {
	mw.nameEntry = widget.NewEntry()
	scales := manifest.Scales()
	options := make([]string, len(scales))
	for i, s := range scales {
		options[i] = string(s)
	}
	mw.scaleSelect = widget.NewSelect(options, nil)
	mw.widthEntry = widget.NewEntry()
	mw.widthEntry.SetPlaceHolder("mm")
	mw.heightEntry = widget.NewEntry()
	mw.heightEntry.SetPlaceHolder("mm (estimated if empty)")
	mw.descEntry = widget.NewMultiLineEntry()
	mw.contactEntry = widget.NewEntry()

	form := widget.NewForm(
		widget.NewFormItem("Name", mw.nameEntry),
		widget.NewFormItem("Scale", mw.scaleSelect),
		widget.NewFormItem("Width", mw.widthEntry),
		widget.NewFormItem("Height", mw.heightEntry),
		widget.NewFormItem("Description", mw.descEntry),
		widget.NewFormItem("Contact", mw.contactEntry),
	)
	form.SubmitText = "Apply"
	form.OnSubmit = mw.applyLayout

	mw.syncLayoutForm()
	return container.NewVScroll(container.NewVBox(
		widget.NewLabelWithStyle("Layout", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		form,
	))
}

// syncLayoutForm copies the document layout into the form.
func (mw *MainWindow) syncLayoutForm() {
	l := mw.session.Document().Layout
	name := ""
	if l.Name != nil {
		name = *l.Name
	}
	mw.nameEntry.SetText(name)
	mw.scaleSelect.SetSelected(string(l.Scale))
	mw.widthEntry.SetText(formatMM(l.Size.Width))
	mw.heightEntry.SetText(formatMM(l.Size.Height))
	mw.descEntry.SetText(l.Description)
	mw.contactEntry.SetText(l.Contact)
}

func formatMM(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func parseMM(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !(v > 0) {
		return nil, fmt.Errorf("invalid size %q: expected a positive number of millimeters", s)
	}
	return &v, nil
}

// applyLayout validates the form and stores it as the document layout.
func (mw *MainWindow) applyLayout() {
	width, err := parseMM(mw.widthEntry.Text)
	if err != nil {
		dialog.ShowError(err, mw.Window)
		return
	}
	height, err := parseMM(mw.heightEntry.Text)
	if err != nil {
		dialog.ShowError(err, mw.Window)
		return
	}

	layout := mw.session.Document().Layout
	layout.Name = nil
	if name := strings.TrimSpace(mw.nameEntry.Text); name != "" {
		layout.Name = manifest.String(name)
	}
	if mw.scaleSelect.Selected != "" {
		layout.Scale = manifest.Scale(mw.scaleSelect.Selected)
	}
	layout.Size = manifest.LayoutSize{Width: width, Height: height}
	layout.Description = mw.descEntry.Text
	layout.Contact = mw.contactEntry.Text

	mw.session.SetLayout(layout)
	mw.syncLayoutForm()
	mw.updateStatus("Layout updated")
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Image...", mw.onOpenImage),
		fyne.NewMenuItem("Add Image...", mw.onAddImage),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Open Bundle...", mw.onOpenBundle),
		fyne.NewMenuItem("Save Bundle", mw.onSaveBundle),
		fyne.NewMenuItem("Save Bundle As...", mw.onSaveBundleAs),
	)

	mw.showCalItem = fyne.NewMenuItem("Show Calibration", mw.onToggleCalibration)
	mw.showCalItem.Checked = mw.prefs.ShowCalibration()

	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", mw.canvas.ZoomIn),
		fyne.NewMenuItem("Zoom Out", mw.canvas.ZoomOut),
		fyne.NewMenuItem("Fit to Window", mw.canvas.FitToWindow),
		fyne.NewMenuItemSeparator(),
		mw.showCalItem,
		fyne.NewMenuItem("Rectified Preview", mw.onRectifiedPreview),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, viewMenu, helpMenu))
}

// setupEventHandlers registers for session events.
func (mw *MainWindow) setupEventHandlers() {
	mw.session.On(app.EventImageLoaded, func(data interface{}) {
		mw.syncImages()
		mw.syncLayoutForm()
		mw.canvas.FitToWindow()
		if p, ok := data.(*image.Photo); ok {
			mw.updateStatus(fmt.Sprintf("Image loaded: %s (%dx%d)", p.Filename, p.Width(), p.Height()))
		}
	})

	mw.session.On(app.EventBundleLoaded, func(data interface{}) {
		mw.syncImages()
		mw.syncLayoutForm()
		mw.canvas.FitToWindow()
		if path, ok := data.(string); ok {
			mw.updateTitle(path, false)
			mw.updateStatus("Bundle loaded: " + path)
		}
	})

	mw.session.On(app.EventBundleSaved, func(data interface{}) {
		if path, ok := data.(string); ok {
			mw.updateTitle(path, false)
			mw.updateStatus("Bundle saved: " + path)
		}
	})

	mw.session.On(app.EventModified, func(data interface{}) {
		if modified, ok := data.(bool); ok {
			mw.updateTitle(mw.session.BundlePath, modified)
		}
	})

	mw.session.On(app.EventCurrentImageChanged, func(data interface{}) {
		if i, ok := data.(int); ok {
			mw.canvas.SetImageIndex(i)
		}
	})

	mw.session.On(app.EventCalibrationChanged, func(data interface{}) {
		if r, ok := data.(calibration.Result); ok {
			mw.updateCalibration(r)
		}
	})
}

func (mw *MainWindow) updateTitle(path string, modified bool) {
	t := title
	if path != "" {
		t += " - " + filepath.Base(path)
	}
	if modified {
		t += " *"
	}
	mw.SetTitle(t)
}

// updateStatus updates the status bar text.
func (mw *MainWindow) updateStatus(text string) {
	mw.statusBar.SetText(text)
}

func (mw *MainWindow) updateCalibration(r calibration.Result) {
	switch {
	case r.Err != nil:
		mw.dotsLabel.SetText("Calibration: " + r.Err.Error())
	case !r.Convex:
		mw.dotsLabel.SetText("Calibration: corners cross")
	case r.DotsPerTrack < 0:
		mw.dotsLabel.SetText("Dots per track: -")
	default:
		mw.dotsLabel.SetText(fmt.Sprintf("Dots per track: %d", r.DotsPerTrack))
	}
}

func (mw *MainWindow) onHover(local geometry.Point2D, inside bool) {
	if !inside {
		mw.hoverText.SetText("")
		return
	}
	text := fmt.Sprintf("%.0f, %.0f px", local.X, local.Y)
	if p := mw.session.Tracker().Perspective(); p != nil {
		if mm, ok := p.Apply(local); ok {
			text += fmt.Sprintf("  (%.0f, %.0f mm)", mm.X, mm.Y)
		}
	}
	mw.hoverText.SetText(text)
}

// syncImages rebuilds the image picker from the session photos.
func (mw *MainWindow) syncImages() {
	n := mw.session.PhotoCount()
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if p, ok := mw.session.Photo(i); ok {
			names = append(names, p.Filename)
		}
	}
	mw.images.Options = names
	if cur := mw.session.Current(); cur < len(names) {
		mw.images.Selected = names[cur]
	}
	mw.images.Refresh()
}

func (mw *MainWindow) selectImage(name string) {
	for i, opt := range mw.images.Options {
		if opt != name || i == mw.session.Current() {
			continue
		}
		if err := mw.session.SetCurrent(i); err != nil {
			dialog.ShowError(err, mw.Window)
		}
		return
	}
}

// lastDir returns the last used directory as a ListableURI, or nil.
func (mw *MainWindow) lastDir() fyne.ListableURI {
	path := mw.prefs.LastDir()
	if path == "" {
		return nil
	}
	listable, err := storage.ListerForURI(storage.NewFileURI(path))
	if err != nil {
		return nil
	}
	return listable
}

func (mw *MainWindow) saveLastDir(filePath string) {
	mw.prefs.SetLastDir(filepath.Dir(filePath))
}

// openFile shows a file dialog restricted to exts and calls fn with the
// chosen path.
func (mw *MainWindow) openFile(exts []string, fn func(path string) error) {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		path := reader.URI().Path()
		mw.saveLastDir(path)
		if err := fn(path); err != nil {
			monitoring.Logf("open %s: %v", path, err)
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter(exts))
	if loc := mw.lastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

// OpenPath opens a bundle or an image depending on its extension.
func (mw *MainWindow) OpenPath(path string) error {
	if strings.EqualFold(filepath.Ext(path), bundle.Extension) {
		return mw.session.OpenBundle(context.Background(), path)
	}
	return mw.session.OpenImage(context.Background(), path)
}

func (mw *MainWindow) confirmDiscard(fn func()) {
	if !mw.session.IsModified() {
		fn()
		return
	}
	dialog.ShowConfirm("Unsaved changes", "Discard the changes to the current layout?",
		func(ok bool) {
			if ok {
				fn()
			}
		}, mw.Window)
}

func (mw *MainWindow) onOpenImage() {
	mw.confirmDiscard(func() {
		mw.openFile(image.SupportedFormats(), func(path string) error {
			return mw.session.OpenImage(context.Background(), path)
		})
	})
}

func (mw *MainWindow) onAddImage() {
	mw.openFile(image.SupportedFormats(), func(path string) error {
		_, err := mw.session.AddImage(context.Background(), path)
		return err
	})
}

func (mw *MainWindow) onOpenBundle() {
	mw.confirmDiscard(func() {
		mw.openFile([]string{bundle.Extension}, func(path string) error {
			return mw.session.OpenBundle(context.Background(), path)
		})
	})
}

func (mw *MainWindow) onSaveBundle() {
	if mw.session.BundlePath == "" {
		mw.onSaveBundleAs()
		return
	}
	if err := mw.session.SaveBundle(context.Background(), mw.session.BundlePath); err != nil {
		dialog.ShowError(err, mw.Window)
	}
}

func (mw *MainWindow) onSaveBundleAs() {
	if mw.session.PhotoCount() == 0 {
		dialog.ShowError(app.ErrNoImage, mw.Window)
		return
	}
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := writer.URI().Path()
		if !strings.EqualFold(filepath.Ext(path), bundle.Extension) {
			path += bundle.Extension
		}
		mw.saveLastDir(path)
		if err := mw.session.SaveBundle(context.Background(), path); err != nil {
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)
	fd.SetFileName(mw.session.DefaultBundleName())
	if loc := mw.lastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onToggleCalibration() {
	show := !mw.showCalItem.Checked
	mw.showCalItem.Checked = show
	mw.canvas.SetShowCalibration(show)
	mw.prefs.SetShowCalibration(show)
	mw.MainMenu().Refresh()
}

// onRectifiedPreview renders the current photo top-down in a new window.
func (mw *MainWindow) onRectifiedPreview() {
	p := mw.session.Tracker().Perspective()
	if p == nil {
		dialog.ShowError(app.ErrNotCalibrated, mw.Window)
		return
	}
	size := p.Size()
	pxPerMM := previewEdge / max(size.Width, size.Height)
	idx := mw.session.Current()

	mw.updateStatus("Rendering rectified preview...")
	go func() {
		out, err := mw.session.Rectified(context.Background(), idx, pxPerMM, rectify.Crop)
		if err != nil {
			mw.updateStatus("Rectify failed: " + err.Error())
			return
		}
		img := fynecanvas.NewImageFromImage(out)
		img.FillMode = fynecanvas.ImageFillContain
		w := mw.app.NewWindow(fmt.Sprintf("Rectified - %.0f x %.0f mm", size.Width, size.Height))
		w.SetContent(img)
		w.Resize(fyne.NewSize(float32(out.Bounds().Dx())/2, float32(out.Bounds().Dy())/2))
		w.Show()
		mw.updateStatus("Ready")
	}()
}

func (mw *MainWindow) onClose() {
	if err := mw.prefs.Save(); err != nil {
		monitoring.Logf("failed to save preferences: %v", err)
	}
	mw.confirmDiscard(func() {
		mw.canvas.Close()
		mw.Window.Close()
	})
}

func (mw *MainWindow) onAbout() {
	dialog.ShowInformation("About "+title,
		fmt.Sprintf("%s v%s\n\n"+
			"Calibrates photos of model railroad layouts\n"+
			"and places track and train markers on them.\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			title, version.Version, version.BuildTime, version.GitCommit),
		mw.Window)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Package main provides the entry point for the layout labeler application.
package main

import (
	"flag"
	"log"

	"rr-labeler/internal/app"
	"rr-labeler/internal/config"
	"rr-labeler/internal/version"
	"rr-labeler/ui/mainwindow"
	"rr-labeler/ui/prefs"

	fyneapp "fyne.io/fyne/v2/app"
)

const (
	appID    = "org.rr-labeler.desktop"
	appTitle = "Layout Labeler"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON tuning config")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting %s %s", appTitle, version.String())

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
		cfg = loaded
	}

	a := fyneapp.NewWithID(appID)
	a.Settings().SetTheme(&app.LabelerTheme{})

	session := app.NewSession(cfg)
	defer session.Close()
	appPrefs := prefs.Load()

	win := mainwindow.New(a, session, appPrefs)
	win.SetMaster()

	if flag.NArg() > 0 {
		path := flag.Arg(0)
		if err := win.OpenPath(path); err != nil {
			log.Printf("Failed to open %s: %v", path, err)
		}
	}

	win.ShowAndRun()

	if err := appPrefs.Save(); err != nil {
		log.Printf("Failed to save preferences: %v", err)
	}
}

// Package prefs stores per-user settings of the desktop app: the last tool,
// the last folder used in file dialogs and display overrides.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"rr-labeler/internal/interaction"
)

const (
	prefsFile = "preferences.json"
	appDir    = "rr-labeler"
)

// Keys of the typed accessors.
const (
	keyLastTool  = "last_tool"
	keyLastDir   = "last_dir"
	keyScreenPPI = "screen_ppi"
	keyShowCal   = "show_calibration"
)

// Prefs is a key/value map persisted as JSON.
type Prefs struct {
	mu     sync.RWMutex
	values map[string]interface{}
	path   string
}

// Load reads preferences from the user config directory. A missing or
// unreadable file yields empty preferences.
func Load() *Prefs {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return LoadFrom(filepath.Join(configDir, appDir))
}

// LoadFrom reads preferences stored in dir.
func LoadFrom(dir string) *Prefs {
	p := &Prefs{
		values: make(map[string]interface{}),
		path:   filepath.Join(dir, prefsFile),
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return p
	}
	if err := json.Unmarshal(data, &p.values); err != nil || p.values == nil {
		p.values = make(map[string]interface{})
	}
	return p
}

// Path returns the preferences file location.
func (p *Prefs) Path() string { return p.path }

// Save writes preferences to disk.
func (p *Prefs) Save() error {
	p.mu.RLock()
	data, err := json.MarshalIndent(p.values, "", "  ")
	p.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("failed to create preferences dir: %w", err)
	}
	return os.WriteFile(p.path, data, 0o644)
}

func (p *Prefs) get(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

func (p *Prefs) set(key string, val interface{}) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// Float returns a float64 preference, or fallback if not set.
func (p *Prefs) Float(key string, fallback float64) float64 {
	if v, ok := p.get(key); ok {
		if n, ok := v.(float64); ok {
			return n
		}
	}
	return fallback
}

// SetFloat stores a float64 preference.
func (p *Prefs) SetFloat(key string, val float64) { p.set(key, val) }

// String returns a string preference, or "" if not set.
func (p *Prefs) String(key string) string {
	if v, ok := p.get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetString stores a string preference.
func (p *Prefs) SetString(key, val string) { p.set(key, val) }

// Bool returns a bool preference, or fallback if not set.
func (p *Prefs) Bool(key string, fallback bool) bool {
	if v, ok := p.get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// SetBool stores a bool preference.
func (p *Prefs) SetBool(key string, val bool) { p.set(key, val) }

// LastTool returns the tool active when the app last closed. Unknown names
// fall back to calibrate.
func (p *Prefs) LastTool() interaction.Tool {
	name := interaction.Tool(p.String(keyLastTool))
	if name == interaction.ToolDelete {
		return name
	}
	for _, t := range interaction.LabelTools() {
		if t == name {
			return t
		}
	}
	return interaction.ToolCalibrate
}

// SetLastTool records the active tool.
func (p *Prefs) SetLastTool(t interaction.Tool) { p.SetString(keyLastTool, string(t)) }

// LastDir returns the folder last used in a file dialog, or "" when it no
// longer exists.
func (p *Prefs) LastDir() string {
	dir := p.String(keyLastDir)
	if dir == "" {
		return ""
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	return dir
}

// SetLastDir records the folder of a chosen file.
func (p *Prefs) SetLastDir(dir string) { p.SetString(keyLastDir, dir) }

// ScreenPPI returns the user's screen density override, or fallback.
func (p *Prefs) ScreenPPI(fallback float64) float64 {
	if v := p.Float(keyScreenPPI, 0); v > 0 {
		return v
	}
	return fallback
}

// SetScreenPPI stores the screen density override.
func (p *Prefs) SetScreenPPI(ppi float64) { p.SetFloat(keyScreenPPI, ppi) }

// ShowCalibration reports whether the calibration overlay is visible.
func (p *Prefs) ShowCalibration() bool { return p.Bool(keyShowCal, true) }

// SetShowCalibration stores the calibration overlay visibility.
func (p *Prefs) SetShowCalibration(v bool) { p.SetBool(keyShowCal, v) }

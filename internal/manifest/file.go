package manifest

import (
	"fmt"
	"os"
)

// ManifestFilename is the name of the manifest inside a bundle and the
// default name of a standalone manifest file.
const ManifestFilename = "manifest.json"

// Load reads a standalone manifest file.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	doc, err := FromJSON(data)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Save writes doc to path as indented JSON.
func Save(path string, doc Document) error {
	data, err := ToJSON(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedVersion is returned when a document's version tag is
	// missing or differs from SupportedVersion.
	ErrUnsupportedVersion = errors.New("unsupported manifest version")

	// ErrInvalidDocument is returned for documents that parse but violate the
	// schema, such as unknown calibration corner ids.
	ErrInvalidDocument = errors.New("invalid manifest")
)

// ToJSON serializes doc as indented JSON.
func ToJSON(doc Document) ([]byte, error) {
	doc.normalize()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return data, nil
}

// FromJSON decodes a document. The version tag is checked before anything
// else is decoded; there is no migration between versions.
func FromJSON(data []byte) (Document, error) {
	var header struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return Document{}, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if header.Version == nil {
		return Document{}, fmt.Errorf("%w: version tag missing", ErrUnsupportedVersion)
	}
	if *header.Version != SupportedVersion {
		return Document{}, fmt.Errorf("%w: got %d, this build reads %d",
			ErrUnsupportedVersion, *header.Version, SupportedVersion)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := validate(doc); err != nil {
		return Document{}, err
	}
	doc.normalize()
	return doc, nil
}

func validate(doc Document) error {
	for id := range doc.Calibration {
		if !isCornerID(id) {
			return fmt.Errorf("%w: unknown calibration corner %q", ErrInvalidDocument, id)
		}
	}
	return nil
}

func isCornerID(id string) bool {
	for _, c := range CornerIDs {
		if c == id {
			return true
		}
	}
	return false
}

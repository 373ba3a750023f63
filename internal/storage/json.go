package storage

import (
	"encoding/json"
	"fmt"
)

// JSON marks a value as a JSON document column. The pipeline passes audit
// blobs as JSON so backends know to cast, and Update can merge instead of
// overwrite.
type JSON map[string]any

// Encode renders the document as a JSON string for binding.
func (j JSON) Encode() (string, error) {
	b, err := json.Marshal(map[string]any(j))
	if err != nil {
		return "", fmt.Errorf("storage: encode json column: %w", err)
	}
	return string(b), nil
}

// MergeDocs unions patch into base, patch winning on key collisions. Used by
// backends without a native jsonb merge operator.
func MergeDocs(base string, patch JSON) (string, error) {
	doc := map[string]any{}
	if base != "" {
		if err := json.Unmarshal([]byte(base), &doc); err != nil {
			// A corrupt stored document is replaced rather than kept.
			doc = map[string]any{}
		}
	}
	for k, v := range patch {
		doc[k] = v
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("storage: merge json column: %w", err)
	}
	return string(b), nil
}

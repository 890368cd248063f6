package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	stepflow "github.com/goliatone/go-stepflow"
)

// RequiredKeys are the top level keys a hand edited document must carry.
var RequiredKeys = []string{"initial", "states"}

// Parse decodes a definition from JSON or YAML. Step and event order follow
// the document.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, stepflow.NewError(stepflow.ErrInvalidSource, err.Error(), err, nil)
	}
	return &def, nil
}

// ParseStrict is Parse plus a check that every RequiredKeys entry is present
// at the top level. Raw source edits go through it.
func ParseStrict(data []byte) (*Definition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, stepflow.NewError(stepflow.ErrInvalidSource, err.Error(), err, nil)
	}
	if len(doc.Content) == 0 {
		return nil, stepflow.NewError(stepflow.ErrInvalidSource, "document is empty", nil, nil)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, stepflow.NewError(stepflow.ErrInvalidSource,
			fmt.Sprintf("line %d: document must be an object", root.Line), nil, nil)
	}
	present := make(map[string]bool, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		present[root.Content[i].Value] = true
	}
	var missing []string
	for _, key := range RequiredKeys {
		if !present[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, stepflow.NewError(stepflow.ErrInvalidSource,
			fmt.Sprintf("missing required key(s): %s", strings.Join(missing, ", ")),
			nil, map[string]any{"missing": missing})
	}
	var def Definition
	if err := root.Decode(&def); err != nil {
		return nil, stepflow.NewError(stepflow.ErrInvalidSource, err.Error(), err, nil)
	}
	return &def, nil
}

// MarshalIndent renders the definition as indented JSON.
func MarshalIndent(def *Definition) ([]byte, error) {
	if def == nil {
		def = NewSkeleton()
	}
	return json.MarshalIndent(def, "", "  ")
}

// MarshalYAML renders the definition as YAML.
func MarshalYAML(def *Definition) ([]byte, error) {
	if def == nil {
		def = NewSkeleton()
	}
	return yaml.Marshal(def)
}

// Package codebook loads and validates classification codebooks and renders
// them into classifier prompts.
package codebook

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/shockeval/internal/model"
	"gopkg.in/yaml.v3"
)

// Kind distinguishes label-only codebooks from structured extraction codebooks
type Kind string

const (
	KindClassification Kind = "classification"
	KindExtraction     Kind = "extraction"
)

// Class is one label with its definition and examples
type Class struct {
	Label                 string   `yaml:"label" json:"label"`
	LabelDefinition       string   `yaml:"label_definition" json:"label_definition"`
	Clarification         []string `yaml:"clarification" json:"clarification"`
	NegativeClarification []string `yaml:"negative_clarification" json:"negative_clarification"`
	PositiveExamples      []string `yaml:"positive_examples" json:"positive_examples"`
	NegativeExamples      []string `yaml:"negative_examples" json:"negative_examples"`
}

// Exclusion forces a label whenever the trigger appears in the text
type Exclusion struct {
	Trigger string `yaml:"trigger" json:"trigger"`
	Label   string `yaml:"label" json:"label"`
}

// Codebook is a typed classification codebook
type Codebook struct {
	Name               string      `yaml:"name" json:"name"`
	Version            string      `yaml:"version" json:"version"`
	Kind               Kind        `yaml:"kind" json:"kind"`
	Description        string      `yaml:"description,omitempty" json:"description,omitempty"`
	Classes            []Class     `yaml:"classes" json:"classes"`
	Exclusions         []Exclusion `yaml:"exclusions,omitempty" json:"exclusions,omitempty"`
	OutputInstructions string      `yaml:"output_instructions" json:"output_instructions"`
}

// Load reads and validates a codebook YAML file
func Load(path string) (*Codebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read codebook: %w", err)
	}
	cb, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("codebook %s: %w", path, err)
	}
	return cb, nil
}

// Parse decodes and validates codebook YAML. Unknown fields are rejected.
func Parse(data []byte) (*Codebook, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cb Codebook
	if err := dec.Decode(&cb); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &model.StructuralError{Path: "$", Reason: "empty codebook"}
		}
		return nil, &model.StructuralError{Path: "$", Reason: err.Error()}
	}
	if cb.Kind == "" {
		cb.Kind = KindClassification
	}
	if err := cb.Validate(); err != nil {
		return nil, err
	}
	return &cb, nil
}

// Validate checks that every required field is present
func (cb *Codebook) Validate() error {
	if strings.TrimSpace(cb.Name) == "" {
		return &model.StructuralError{Path: "name", Reason: "required"}
	}
	if strings.TrimSpace(cb.Version) == "" {
		return &model.StructuralError{Path: "version", Reason: "required"}
	}
	switch cb.Kind {
	case KindClassification, KindExtraction:
	default:
		return &model.StructuralError{Path: "kind", Reason: fmt.Sprintf("unknown kind %q", cb.Kind)}
	}
	if strings.TrimSpace(cb.OutputInstructions) == "" {
		return &model.StructuralError{Path: "output_instructions", Reason: "required"}
	}
	if len(cb.Classes) == 0 {
		return &model.StructuralError{Path: "classes", Reason: "at least one class is required"}
	}

	seen := make(map[string]bool)
	for i, c := range cb.Classes {
		path := fmt.Sprintf("classes[%d]", i)
		if strings.TrimSpace(c.Label) == "" {
			return &model.StructuralError{Path: path + ".label", Reason: "required"}
		}
		if seen[c.Label] {
			return &model.StructuralError{Path: path + ".label", Reason: fmt.Sprintf("duplicate label %q", c.Label)}
		}
		seen[c.Label] = true
		if strings.TrimSpace(c.LabelDefinition) == "" {
			return &model.StructuralError{Path: path + ".label_definition", Reason: "required"}
		}
		if c.Clarification == nil {
			return &model.StructuralError{Path: path + ".clarification", Reason: "required"}
		}
		if c.NegativeClarification == nil {
			return &model.StructuralError{Path: path + ".negative_clarification", Reason: "required"}
		}
		if len(c.PositiveExamples) == 0 {
			return &model.StructuralError{Path: path + ".positive_examples", Reason: "must not be empty"}
		}
		if len(c.NegativeExamples) == 0 {
			return &model.StructuralError{Path: path + ".negative_examples", Reason: "must not be empty"}
		}
	}

	for i, ex := range cb.Exclusions {
		path := fmt.Sprintf("exclusions[%d]", i)
		if strings.TrimSpace(ex.Trigger) == "" {
			return &model.StructuralError{Path: path + ".trigger", Reason: "required"}
		}
		if !seen[ex.Label] {
			return &model.StructuralError{Path: path + ".label", Reason: fmt.Sprintf("unknown label %q", ex.Label)}
		}
	}
	return nil
}

// Labels returns class labels in codebook order
func (cb *Codebook) Labels() []string {
	out := make([]string, len(cb.Classes))
	for i, c := range cb.Classes {
		out[i] = c.Label
	}
	return out
}

// HasLabel reports whether label is one of the codebook's classes
func (cb *Codebook) HasLabel(label string) bool {
	for _, c := range cb.Classes {
		if c.Label == label {
			return true
		}
	}
	return false
}

// Class returns the class with the given label
func (cb *Codebook) Class(label string) (Class, bool) {
	for _, c := range cb.Classes {
		if c.Label == label {
			return c, true
		}
	}
	return Class{}, false
}

// Hash returns a short content hash identifying this exact codebook
func (cb *Codebook) Hash() string {
	data, _ := json.Marshal(cb)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// Clone returns a deep copy
func (cb *Codebook) Clone() *Codebook {
	out := *cb
	out.Classes = make([]Class, len(cb.Classes))
	for i, c := range cb.Classes {
		out.Classes[i] = Class{
			Label:                 c.Label,
			LabelDefinition:       c.LabelDefinition,
			Clarification:         append([]string{}, c.Clarification...),
			NegativeClarification: append([]string{}, c.NegativeClarification...),
			PositiveExamples:      append([]string{}, c.PositiveExamples...),
			NegativeExamples:      append([]string{}, c.NegativeExamples...),
		}
	}
	out.Exclusions = append([]Exclusion(nil), cb.Exclusions...)
	return &out
}

// Encode renders the codebook as YAML
func (cb *Codebook) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cb); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

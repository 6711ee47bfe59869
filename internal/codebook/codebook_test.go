package codebook

import (
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/shockeval/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestCodebook(t *testing.T) *Codebook {
	t.Helper()
	cb, err := Load("testdata/motivation.yaml")
	require.NoError(t, err)
	return cb
}

func TestLoad(t *testing.T) {
	cb := loadTestCodebook(t)

	assert.Equal(t, "Fiscal Motivation", cb.Name)
	assert.Equal(t, KindClassification, cb.Kind)
	assert.Equal(t, []string{"Spending-driven", "Countercyclical", "Deficit-driven", "Long-run"}, cb.Labels())
	assert.True(t, cb.HasLabel("Long-run"))
	assert.False(t, cb.HasLabel("long-run"))
	assert.Len(t, cb.Hash(), 16)
}

func TestParse_StructuralErrors(t *testing.T) {
	valid := `
name: x
version: "1"
classes:
  - label: A
    label_definition: a
    clarification: [c]
    negative_clarification: [n]
    positive_examples: [p]
    negative_examples: [q]
output_instructions: json
`
	_, err := Parse([]byte(valid))
	require.NoError(t, err)

	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"missing version", strings.Replace(valid, `version: "1"`, "", 1), "version"},
		{"missing definition", strings.Replace(valid, "label_definition: a", "", 1), "classes[0].label_definition"},
		{"missing clarification", strings.Replace(valid, "    clarification: [c]\n", "", 1), "classes[0].clarification"},
		{"empty positive examples", strings.Replace(valid, "positive_examples: [p]", "positive_examples: []", 1), "classes[0].positive_examples"},
		{"missing output instructions", strings.Replace(valid, "output_instructions: json", "", 1), "output_instructions"},
		{"unknown field", valid + "temperature: 2\n", "$"},
		{"bad kind", valid + "kind: ranking\n", "kind"},
		{"empty", "", "$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			var se *model.StructuralError
			require.True(t, errors.As(err, &se), "expected StructuralError, got %v", err)
			assert.Equal(t, tt.path, se.Path)
		})
	}
}

func TestParse_DuplicateLabel(t *testing.T) {
	cb := &Codebook{Name: "x", Version: "1", Kind: KindClassification, OutputInstructions: "json"}
	class := Class{Label: "A", LabelDefinition: "a", Clarification: []string{}, NegativeClarification: []string{},
		PositiveExamples: []string{"p"}, NegativeExamples: []string{"n"}}
	cb.Classes = []Class{class, class}

	var se *model.StructuralError
	require.ErrorAs(t, cb.Validate(), &se)
	assert.Equal(t, "classes[1].label", se.Path)
}

func TestVariants(t *testing.T) {
	cb := loadTestCodebook(t)

	rev := cb.Reversed()
	assert.Equal(t, []string{"Long-run", "Deficit-driven", "Countercyclical", "Spending-driven"}, rev.Labels())
	assert.Equal(t, "Spending-driven", cb.Labels()[0], "variants must not mutate the original")

	a, b := cb.Shuffled(7), cb.Shuffled(7)
	assert.Equal(t, a.Labels(), b.Labels())
	assert.ElementsMatch(t, cb.Labels(), a.Labels())

	generic, gmap := cb.WithGenericLabels()
	assert.Equal(t, []string{"CLASS_A", "CLASS_B", "CLASS_C", "CLASS_D"}, generic.Labels())
	assert.Equal(t, "Deficit-driven", gmap.Original("CLASS_C"))
	assert.Equal(t, cb.Classes[2].LabelDefinition, generic.Classes[2].LabelDefinition)

	swapped, smap := cb.WithSwappedLabels()
	assert.Equal(t, []string{"Countercyclical", "Deficit-driven", "Long-run", "Spending-driven"}, swapped.Labels())
	// The definition of Spending-driven is now shown under the Countercyclical label.
	assert.Equal(t, cb.Classes[0].LabelDefinition, swapped.Classes[0].LabelDefinition)
	assert.Equal(t, "Spending-driven", smap.Original("Countercyclical"))
	assert.Equal(t, "Long-run", smap.Original("Spending-driven"))

	excl := cb.WithExclusion("ZQXJ-TRIGGER", "Long-run")
	require.NoError(t, excl.Validate())
	assert.Empty(t, cb.Exclusions)
	assert.NotEqual(t, cb.Hash(), excl.Hash())
}

func TestBuildPrompt(t *testing.T) {
	cb := loadTestCodebook(t).WithExclusion("ZQXJ-TRIGGER", "Long-run")
	p := cb.BuildPrompt([]Example{{Label: "Deficit-driven", Text: "reduce the deficit"}}, "  The Revenue Act of 1964.  ")

	assert.Contains(t, p.System, "## Countercyclical")
	assert.Contains(t, p.System, `If the text contains "ZQXJ-TRIGGER", assign Long-run`)
	assert.Contains(t, p.System, "one of: Spending-driven, Countercyclical, Deficit-driven, Long-run")
	assert.Contains(t, p.User, "Example 1 (label: Deficit-driven):\nreduce the deficit")
	assert.True(t, strings.HasSuffix(p.User, "<<<\nThe Revenue Act of 1964.\n>>>\n"))

	rev := cb.Reversed().BuildPrompt(nil, "x")
	assert.Less(t, strings.Index(rev.System, "## Long-run"), strings.Index(rev.System, "## Spending-driven"))
	assert.NotContains(t, rev.User, "Labeled examples")
}

func TestOutputSchema(t *testing.T) {
	cb := loadTestCodebook(t)
	schema, err := cb.CompileSchema()
	require.NoError(t, err)

	assert.NoError(t, schema.ValidateBytes([]byte(`{"label":"Long-run","confidence":0.9,"reasoning":"growth"}`)))
	assert.Error(t, schema.ValidateBytes([]byte(`{"label":"Other","confidence":0.9}`)), "label outside the vocabulary")
	assert.Error(t, schema.ValidateBytes([]byte(`{"label":"Long-run","confidence":1.5}`)))
	assert.Error(t, schema.ValidateBytes([]byte(`{"confidence":0.5}`)))
	assert.Error(t, schema.ValidateBytes([]byte(`not json`)))

	ext := cb.Clone()
	ext.Kind = KindExtraction
	extSchema, err := ext.CompileSchema()
	require.NoError(t, err)
	assert.NoError(t, extSchema.ValidateBytes([]byte(`{"label":"Long-run","confidence":0.8,"items":[{"quarter":"1964Q2","amount":-7.7}]}`)))
	assert.Error(t, extSchema.ValidateBytes([]byte(`{"label":"Long-run","confidence":0.8}`)))
	assert.Error(t, extSchema.ValidateBytes([]byte(`{"label":"Long-run","confidence":0.8,"items":[{"quarter":"spring","amount":1}]}`)))
}

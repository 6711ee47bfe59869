package codebook

import (
	"fmt"
	"strings"
)

// Example is a labeled few-shot example rendered into the prompt
type Example struct {
	Label string
	Text  string
}

// Prompt is a rendered classifier request
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the codebook, the few-shot examples and the unit text.
// Classes appear in codebook order, so variants with reordered classes render differently.
func (cb *Codebook) BuildPrompt(examples []Example, text string) Prompt {
	var sys strings.Builder

	fmt.Fprintf(&sys, "You are applying the codebook %q (version %s).\n", cb.Name, cb.Version)
	if cb.Description != "" {
		sys.WriteString(cb.Description)
		sys.WriteString("\n")
	}
	sys.WriteString("Assign exactly one of the labels defined below.\n\n")

	for _, c := range cb.Classes {
		fmt.Fprintf(&sys, "## %s\n", c.Label)
		fmt.Fprintf(&sys, "Definition: %s\n", strings.TrimSpace(c.LabelDefinition))
		writeList(&sys, "Clarifications", c.Clarification)
		writeList(&sys, "Does not include", c.NegativeClarification)
		writeList(&sys, "Positive examples", c.PositiveExamples)
		writeList(&sys, "Negative examples", c.NegativeExamples)
		sys.WriteString("\n")
	}

	if len(cb.Exclusions) > 0 {
		sys.WriteString("## Exclusion criteria\n")
		for _, ex := range cb.Exclusions {
			fmt.Fprintf(&sys, "- If the text contains %q, assign %s regardless of other content.\n", ex.Trigger, ex.Label)
		}
		sys.WriteString("\n")
	}

	sys.WriteString("## Output\n")
	sys.WriteString(strings.TrimSpace(cb.OutputInstructions))
	sys.WriteString("\n")
	fmt.Fprintf(&sys, "Respond with a single JSON object with keys \"label\" (one of: %s), "+
		"\"confidence\" (0 to 1) and \"reasoning\".", strings.Join(cb.Labels(), ", "))
	if cb.Kind == KindExtraction {
		sys.WriteString(" Also include \"items\": a list of objects with \"quarter\" (YYYYQn), " +
			"\"amount\" (number) and \"evidence\" (list of quoted sentences).")
	}
	sys.WriteString("\n")

	var user strings.Builder
	if len(examples) > 0 {
		user.WriteString("Labeled examples:\n\n")
		for i, ex := range examples {
			fmt.Fprintf(&user, "Example %d (label: %s):\n%s\n\n", i+1, ex.Label, strings.TrimSpace(ex.Text))
		}
	}
	user.WriteString("Text to classify:\n<<<\n")
	user.WriteString(strings.TrimSpace(text))
	user.WriteString("\n>>>\n")

	return Prompt{System: sys.String(), User: user.String()}
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", strings.TrimSpace(it))
	}
}

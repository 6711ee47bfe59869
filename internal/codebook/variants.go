package codebook

import (
	"fmt"
	"math/rand/v2"
)

// LabelMap translates the labels shown in a variant back to the original labels
type LabelMap map[string]string

// Original returns the original label for a shown label, or the label itself
func (m LabelMap) Original(shown string) string {
	if orig, ok := m[shown]; ok {
		return orig
	}
	return shown
}

// Reversed returns a copy with the class order reversed
func (cb *Codebook) Reversed() *Codebook {
	out := cb.Clone()
	for i, j := 0, len(out.Classes)-1; i < j; i, j = i+1, j-1 {
		out.Classes[i], out.Classes[j] = out.Classes[j], out.Classes[i]
	}
	return out
}

// Shuffled returns a copy with classes in a seeded random order
func (cb *Codebook) Shuffled(seed uint64) *Codebook {
	out := cb.Clone()
	rng := rand.New(rand.NewPCG(seed, uint64(len(out.Classes))))
	rng.Shuffle(len(out.Classes), func(i, j int) {
		out.Classes[i], out.Classes[j] = out.Classes[j], out.Classes[i]
	})
	return out
}

// WithGenericLabels replaces every label with a meaningless name (CLASS_A,
// CLASS_B, ...) while keeping definitions and examples fixed
func (cb *Codebook) WithGenericLabels() (*Codebook, LabelMap) {
	out := cb.Clone()
	mapping := make(LabelMap, len(out.Classes))
	rename := make(map[string]string, len(out.Classes))
	for i := range out.Classes {
		generic := genericLabel(i)
		mapping[generic] = out.Classes[i].Label
		rename[out.Classes[i].Label] = generic
		out.Classes[i].Label = generic
	}
	for i := range out.Exclusions {
		out.Exclusions[i].Label = rename[out.Exclusions[i].Label]
	}
	return out, mapping
}

// WithSwappedLabels rotates label names by one position so that each
// definition is presented under another class's label
func (cb *Codebook) WithSwappedLabels() (*Codebook, LabelMap) {
	out := cb.Clone()
	n := len(out.Classes)
	mapping := make(LabelMap, n)
	if n < 2 {
		for _, c := range out.Classes {
			mapping[c.Label] = c.Label
		}
		return out, mapping
	}

	rename := make(map[string]string, n)
	for i := range out.Classes {
		shown := cb.Classes[(i+1)%n].Label
		mapping[shown] = cb.Classes[i].Label
		rename[cb.Classes[i].Label] = shown
		out.Classes[i].Label = shown
	}
	for i := range out.Exclusions {
		out.Exclusions[i].Label = rename[out.Exclusions[i].Label]
	}
	return out, mapping
}

// WithExclusion returns a copy carrying an exclusion clause for trigger
func (cb *Codebook) WithExclusion(trigger, label string) *Codebook {
	out := cb.Clone()
	out.Exclusions = append(out.Exclusions, Exclusion{Trigger: trigger, Label: label})
	return out
}

func genericLabel(i int) string {
	if i < 26 {
		return fmt.Sprintf("CLASS_%c", 'A'+i)
	}
	return fmt.Sprintf("CLASS_%d", i+1)
}

// Package sample builds few-shot example sets for a held-out event.
//
// Positive examples are canonical passages of the other events, labeled with
// their category. Negative examples are excerpts of chunks the matcher found
// unrelated to any event. Everything tied to the held-out event is removed before
// selection, and the finished set is checked again; a leak is fatal.
package sample

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/ppiankov/shockeval/internal/chunk"
	"github.com/ppiankov/shockeval/internal/model"
	"github.com/ppiankov/shockeval/internal/textnorm"
	"go.uber.org/zap"
)

// Strategy selects how candidates are drawn
type Strategy string

const (
	StrategyStratified Strategy = "stratified" // Uniform within each class
	StrategyEdgeCase   Strategy = "edge_case"  // Negatives favor high keyword density
)

// ParseStrategy validates a strategy name
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyStratified, StrategyEdgeCase:
		return Strategy(s), nil
	}
	return "", &model.ConfigurationError{Field: "strategy", Reason: fmt.Sprintf("unknown sampling strategy %q", s)}
}

// Example is one few-shot example
type Example struct {
	ID            string              `json:"id"`
	Label         string              `json:"label"`
	Text          string              `json:"text"`
	SourceEventID string              `json:"source_event_id,omitempty"`
	SourceChunkID string              `json:"source_chunk_id,omitempty"`
	KeyDensity    float64             `json:"key_density,omitempty"`
	Hard          bool                `json:"hard,omitempty"`
	Timing        []model.TimingEntry `json:"timing,omitempty"`
}

// ExampleSet is the few-shot set built for one held-out event
type ExampleSet struct {
	HeldOutEventID string    `json:"held_out_event_id"`
	Strategy       Strategy  `json:"strategy"`
	Examples       []Example `json:"examples"`
}

// Labels returns the distinct labels in the set, sorted
func (s *ExampleSet) Labels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ex := range s.Examples {
		if !seen[ex.Label] {
			seen[ex.Label] = true
			out = append(out, ex.Label)
		}
	}
	sort.Strings(out)
	return out
}

// ByLabel groups examples by label, keeping set order within each group
func (s *ExampleSet) ByLabel() map[string][]Example {
	out := make(map[string][]Example)
	for _, ex := range s.Examples {
		out[ex.Label] = append(out[ex.Label], ex)
	}
	return out
}

// Options configures a Sampler
type Options struct {
	Seed                 uint64
	HardNegativeFraction float64
	NegativeLabel        string
	MinPassageChars      int // Held-out passages shorter than this are not used for containment checks
	OmitNegatives        bool
	MaxExampleTokens     int      // Negative chunks are cut to their densest excerpt of this size; 0 keeps them whole
	Keywords             []string // Domain keywords used to pick the excerpt
}

// Sampler draws few-shot sets. It holds no mutable state and is safe for concurrent use.
type Sampler struct {
	opts Options
	log  *zap.Logger
}

// NewSampler creates a sampler. A nil logger discards output.
func NewSampler(opts Options, log *zap.Logger) *Sampler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.NegativeLabel == "" {
		opts.NegativeLabel = "NONE"
	}
	keywords := make([]string, 0, len(opts.Keywords))
	for _, kw := range opts.Keywords {
		if k := textnorm.Normalize(kw); k != "" {
			keywords = append(keywords, k)
		}
	}
	opts.Keywords = keywords
	return &Sampler{opts: opts, log: log}
}

// Sample builds the example set for heldOutEventID from every other event in pool.
// The result is identical for identical inputs and seed.
func (s *Sampler) Sample(pool *model.Corpus, heldOutEventID string, nPerClass int, strategy Strategy) (*ExampleSet, error) {
	if nPerClass <= 0 {
		return nil, &model.ConfigurationError{Field: "n_per_class", Reason: fmt.Sprintf("must be positive, got %d", nPerClass)}
	}
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	if s.opts.HardNegativeFraction < 0 || s.opts.HardNegativeFraction > 1 {
		return nil, &model.ConfigurationError{
			Field:  "hard_negative_fraction",
			Reason: fmt.Sprintf("must be within [0, 1], got %g", s.opts.HardNegativeFraction),
		}
	}

	ex := s.exclusions(pool, heldOutEventID)
	positives := s.positiveCandidates(pool, ex)
	var negatives []Example
	if !s.opts.OmitNegatives {
		negatives = s.negativeCandidates(pool, ex)
	}

	rng := rand.New(rand.NewPCG(s.opts.Seed, hashID(heldOutEventID)))
	set := &ExampleSet{HeldOutEventID: heldOutEventID, Strategy: strategy}

	labels := make([]string, 0, len(positives))
	for label := range positives {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		set.Examples = append(set.Examples, pickUniform(rng, positives[label], nPerClass)...)
	}

	switch strategy {
	case StrategyEdgeCase:
		set.Examples = append(set.Examples, s.pickEdgeCase(rng, negatives, nPerClass)...)
	default:
		set.Examples = append(set.Examples, pickUniform(rng, negatives, nPerClass)...)
	}

	if err := CheckLeakage(set, pool, heldOutEventID, s.opts.MinPassageChars); err != nil {
		return nil, err
	}

	s.log.Debug("sampled few-shot set",
		zap.String("held_out", heldOutEventID),
		zap.String("strategy", string(strategy)),
		zap.Int("examples", len(set.Examples)),
		zap.Int("positive_classes", len(labels)))

	return set, nil
}

// exclusion lists what must never reach the example set for one held-out event
type exclusion struct {
	eventID  string
	chunks   map[string]bool
	passages []string
}

func (s *Sampler) exclusions(pool *model.Corpus, heldOut string) *exclusion {
	return newExclusion(pool, heldOut, s.opts.MinPassageChars)
}

func newExclusion(pool *model.Corpus, heldOut string, minChars int) *exclusion {
	ex := &exclusion{eventID: heldOut, chunks: make(map[string]bool)}
	for _, m := range pool.Matches {
		if m.EventID == heldOut && m.EventID != "" {
			ex.chunks[m.ChunkID] = true
		}
	}
	for _, ev := range pool.Events {
		if ev.ID != heldOut {
			continue
		}
		for _, p := range ev.CanonicalPassages {
			np := textnorm.Normalize(p)
			if np != "" && len(np) >= minChars {
				ex.passages = append(ex.passages, np)
			}
		}
	}
	return ex
}

// leaks returns a reason when text or its origin ties it to the held-out event
func (ex *exclusion) leaks(e Example) string {
	if e.SourceEventID != "" && e.SourceEventID == ex.eventID {
		return "example is a passage of the held-out event"
	}
	if e.SourceChunkID != "" && ex.chunks[e.SourceChunkID] {
		return "example chunk is matched to the held-out event"
	}
	norm := textnorm.Normalize(e.Text)
	for _, p := range ex.passages {
		if strings.Contains(norm, p) {
			return "example text contains a held-out canonical passage"
		}
	}
	return ""
}

func (s *Sampler) positiveCandidates(pool *model.Corpus, ex *exclusion) map[string][]Example {
	events := make([]model.Event, len(pool.Events))
	copy(events, pool.Events)
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	out := make(map[string][]Example)
	for _, ev := range events {
		if ev.ID == ex.eventID || ev.CategoryLabel == "" {
			continue
		}
		for i, p := range ev.CanonicalPassages {
			if strings.TrimSpace(p) == "" {
				continue
			}
			cand := Example{
				ID:            fmt.Sprintf("%s#%d", ev.ID, i),
				Label:         ev.CategoryLabel,
				Text:          p,
				SourceEventID: ev.ID,
				Timing:        ev.Timing,
			}
			if reason := ex.leaks(cand); reason != "" {
				s.log.Debug("excluded positive candidate", zap.String("id", cand.ID), zap.String("reason", reason))
				continue
			}
			out[ev.CategoryLabel] = append(out[ev.CategoryLabel], cand)
		}
	}
	return out
}

func (s *Sampler) negativeCandidates(pool *model.Corpus, ex *exclusion) []Example {
	chunks := pool.ChunkIndex()
	maxWords := chunk.MaxWordsForTokens(s.opts.MaxExampleTokens)
	var out []Example
	for _, m := range pool.Matches {
		if m.Tier != model.TierNegative {
			continue
		}
		ch, ok := chunks[m.ChunkID]
		if !ok {
			continue
		}
		cand := Example{
			ID:            ch.ID,
			Label:         s.opts.NegativeLabel,
			Text:          textnorm.Excerpt(ch.Text, s.opts.Keywords, maxWords),
			SourceChunkID: ch.ID,
			KeyDensity:    m.KeyDensity,
		}
		if reason := ex.leaks(cand); reason != "" {
			s.log.Debug("excluded negative candidate", zap.String("id", cand.ID), zap.String("reason", reason))
			continue
		}
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// pickEdgeCase takes the densest HardNegativeFraction of n and fills the rest uniformly
func (s *Sampler) pickEdgeCase(rng *rand.Rand, candidates []Example, n int) []Example {
	if len(candidates) == 0 {
		return nil
	}
	if n > len(candidates) {
		n = len(candidates)
	}

	ranked := make([]Example, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].KeyDensity != ranked[j].KeyDensity {
			return ranked[i].KeyDensity > ranked[j].KeyDensity
		}
		return ranked[i].ID < ranked[j].ID
	})

	nHard := int(math.Round(s.opts.HardNegativeFraction * float64(n)))
	if nHard > n {
		nHard = n
	}

	picked := make([]Example, 0, n)
	for _, e := range ranked[:nHard] {
		e.Hard = true
		picked = append(picked, e)
	}
	picked = append(picked, pickUniform(rng, ranked[nHard:], n-nHard)...)
	return picked
}

// pickUniform draws n candidates without replacement. Candidates must be in a stable order.
func pickUniform(rng *rand.Rand, candidates []Example, n int) []Example {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	idx := rng.Perm(len(candidates))
	if n > len(idx) {
		n = len(idx)
	}
	idx = idx[:n]
	sort.Ints(idx)

	out := make([]Example, 0, n)
	for _, i := range idx {
		out = append(out, candidates[i])
	}
	return out
}

// CheckLeakage returns a DataLeakageViolation when any example in set originates
// from the held-out event, from a chunk matched to it, or quotes one of its passages
func CheckLeakage(set *ExampleSet, pool *model.Corpus, heldOutEventID string, minPassageChars int) error {
	ex := newExclusion(pool, heldOutEventID, minPassageChars)
	for _, e := range set.Examples {
		if reason := ex.leaks(e); reason != "" {
			return &model.DataLeakageViolation{
				HeldOutEventID: heldOutEventID,
				ExampleID:      e.ID,
				Reason:         reason,
			}
		}
	}
	return nil
}

func hashID(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

// Package match assigns chunks to events by tier.
//
// Tier 1 means a canonical passage of the event appears verbatim in the chunk.
// Tier 2 means the chunk mentions the event without quoting it: by full name,
// by a component of a compound name, by a parenthetical alias, by a bill or
// public law number, by a fuzzy name match, or by co-occurring keyword sets.
// A chunk that matches no event is recorded once as NEGATIVE.
package match

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/shockeval/internal/model"
	"github.com/ppiankov/shockeval/internal/textnorm"
	"github.com/ppiankov/shockeval/internal/worker"
	"go.uber.org/zap"
)

// Options configures a Matcher
type Options struct {
	MinPassageChars    int
	MinComponentWords  int
	MinCooccurringSets int
	FuzzyNameThreshold float64 // 0 disables fuzzy name matching
	DomainKeywords     []string
	GenericTerms       []string
	Workers            int

	// Passage and Name default to Substring{} and Substring{WordBoundary: true}
	Passage StringSimilarity
	Name    StringSimilarity
	Fuzzy   StringSimilarity
}

// OptionsFromConfig converts the matching section of the run config
func OptionsFromConfig(cfg model.MatchingConfig) Options {
	return Options{
		MinPassageChars:    cfg.MinPassageChars,
		MinComponentWords:  cfg.MinComponentWords,
		MinCooccurringSets: cfg.MinCooccurringSets,
		FuzzyNameThreshold: cfg.FuzzyNameThreshold,
		DomainKeywords:     cfg.DomainKeywords,
		GenericTerms:       cfg.GenericTerms,
		Workers:            cfg.Workers,
	}
}

// Report is the output of a matching run
type Report struct {
	Matches   []model.ChunkEventMatch `json:"matches"`
	Uncovered []model.CoverageGap     `json:"uncovered,omitempty"`
}

// TierCounts returns the number of matches per tier
func (r *Report) TierCounts() map[model.Tier]int {
	counts := make(map[model.Tier]int)
	for _, m := range r.Matches {
		counts[m.Tier]++
	}
	return counts
}

// Matcher computes chunk/event matches
type Matcher struct {
	opts     Options
	log      *zap.Logger
	keywords []string
	generic  map[string]bool
}

// NewMatcher creates a matcher. A nil logger discards output.
func NewMatcher(opts Options, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Passage == nil {
		opts.Passage = Substring{}
	}
	if opts.Name == nil {
		opts.Name = Substring{WordBoundary: true}
	}
	if opts.Fuzzy == nil {
		opts.Fuzzy = JaroWinkler{}
	}
	if opts.MinComponentWords <= 0 {
		opts.MinComponentWords = 3
	}
	if opts.MinCooccurringSets <= 0 {
		opts.MinCooccurringSets = 2
	}

	m := &Matcher{
		opts:    opts,
		log:     log,
		generic: make(map[string]bool),
	}
	for _, kw := range opts.DomainKeywords {
		if k := textnorm.Normalize(kw); k != "" {
			m.keywords = append(m.keywords, k)
		}
	}
	for _, g := range opts.GenericTerms {
		m.generic[textnorm.Normalize(g)] = true
	}
	return m
}

// preparedChunk caches the normalized text of a chunk
type preparedChunk struct {
	index   int
	chunk   model.Chunk
	text    string
	density float64
	ids     map[string]bool
}

// eventRules holds the normalized patterns derived from one event
type eventRules struct {
	event        model.Event
	passages     []string
	name         string
	components   []string
	parentheses  []string
	identifiers  []string
	aliases      []string // Identifiers that are not bill or law numbers, matched as phrases
	keywordSets  [][]string
	cooccurrence bool
}

// Match computes the tier of every (chunk, event) pair. Each pair receives at
// most one tier; Tier 1 wins over Tier 2. Chunks with no match yield one
// NEGATIVE record. Events with no Tier 1 or Tier 2 match are reported as
// coverage gaps. Output order is deterministic.
func (m *Matcher) Match(ctx context.Context, chunks []model.Chunk, events []model.Event) (*Report, error) {
	prepared := make([]*preparedChunk, len(chunks))
	for i, ch := range chunks {
		text := textnorm.Normalize(ch.Text)
		ids := make(map[string]bool)
		for _, id := range Identifiers(text) {
			ids[id] = true
		}
		prepared[i] = &preparedChunk{
			index:   i,
			chunk:   ch,
			text:    text,
			density: m.keyDensity(text, ch.TokenCount),
			ids:     ids,
		}
	}

	jobs := make([]worker.Job, 0, len(events))
	for i := range events {
		jobs = append(jobs, &eventJob{
			index:  i,
			rules:  m.rules(events[i]),
			chunks: prepared,
			m:      m,
		})
	}

	results := worker.Run(ctx, m.opts.Workers, jobs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results) != len(jobs) {
		return nil, fmt.Errorf("matched %d of %d events", len(results), len(jobs))
	}

	matchedChunk := make([]bool, len(chunks))
	var matches []model.ChunkEventMatch
	var uncovered []model.CoverageGap
	eventResults := make([]*eventResult, len(events))
	for _, r := range results {
		er := r.(*eventResult)
		eventResults[er.index] = er
	}

	for i, er := range eventResults {
		if len(er.matches) == 0 {
			gap := model.CoverageGap{
				Kind:    model.GapUncoveredEvent,
				EventID: events[i].ID,
				Reason:  "no chunk matched at tier 1 or tier 2",
			}
			uncovered = append(uncovered, gap)
			m.log.Warn("event has no matching chunks",
				zap.String("event_id", events[i].ID),
				zap.String("event_name", events[i].Name))
			continue
		}
		for _, hit := range er.matches {
			matchedChunk[hit.chunkIndex] = true
		}
	}

	type ordered struct {
		chunkIndex int
		match      model.ChunkEventMatch
	}
	var all []ordered
	for _, er := range eventResults {
		for _, hit := range er.matches {
			all = append(all, ordered{chunkIndex: hit.chunkIndex, match: hit.match})
		}
	}
	for i, pc := range prepared {
		if matchedChunk[i] {
			continue
		}
		all = append(all, ordered{chunkIndex: i, match: model.ChunkEventMatch{
			ChunkID:    pc.chunk.ID,
			Tier:       model.TierNegative,
			Mechanism:  model.MechanismNone,
			KeyDensity: pc.density,
		}})
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].chunkIndex != all[j].chunkIndex {
			return all[i].chunkIndex < all[j].chunkIndex
		}
		return all[i].match.EventID < all[j].match.EventID
	})
	matches = make([]model.ChunkEventMatch, 0, len(all))
	for _, o := range all {
		matches = append(matches, o.match)
	}

	report := &Report{Matches: matches, Uncovered: uncovered}
	counts := report.TierCounts()
	m.log.Info("matching complete",
		zap.Int("chunks", len(chunks)),
		zap.Int("events", len(events)),
		zap.Int("tier1", counts[model.TierOne]),
		zap.Int("tier2", counts[model.TierTwo]),
		zap.Int("negative", counts[model.TierNegative]),
		zap.Int("uncovered", len(uncovered)))

	return report, nil
}

// rules normalizes the matchable patterns of an event once per run
func (m *Matcher) rules(ev model.Event) *eventRules {
	r := &eventRules{event: ev, name: textnorm.Normalize(ev.Name)}

	for _, p := range ev.CanonicalPassages {
		np := textnorm.Normalize(p)
		// Short quotes produce false positives on common phrases.
		if len(np) >= m.opts.MinPassageChars && np != "" {
			r.passages = append(r.passages, np)
		}
	}

	for _, c := range ConjunctionComponents(ev.Name, m.opts.MinComponentWords) {
		if !m.isGeneric(c) && c != r.name {
			r.components = append(r.components, c)
		}
	}
	for _, p := range ParentheticalVariants(ev.Name, m.opts.MinComponentWords) {
		if !m.isGeneric(p) && p != r.name {
			r.parentheses = append(r.parentheses, p)
		}
	}

	seen := make(map[string]bool)
	for _, raw := range ev.Identifiers {
		id, parsed := CanonicalIdentifier(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if parsed {
			r.identifiers = append(r.identifiers, id)
		} else if !m.isGeneric(id) {
			r.aliases = append(r.aliases, id)
		}
	}
	for _, id := range Identifiers(r.name) {
		if !seen[id] {
			seen[id] = true
			r.identifiers = append(r.identifiers, id)
		}
	}

	for _, set := range ev.KeywordSets {
		var phrases []string
		for _, kw := range set {
			nk := textnorm.Normalize(kw)
			if nk == "" || m.isGeneric(nk) {
				continue
			}
			phrases = append(phrases, nk)
		}
		if len(phrases) > 0 {
			r.keywordSets = append(r.keywordSets, phrases)
		}
	}
	r.cooccurrence = len(r.keywordSets) >= m.opts.MinCooccurringSets

	return r
}

// isGeneric reports whether phrase is a single generic term
func (m *Matcher) isGeneric(phrase string) bool {
	return m.generic[phrase]
}

// keyDensity counts domain keyword occurrences per token. Overlapping
// keywords count once, as the longest.
func (m *Matcher) keyDensity(text string, tokens int) float64 {
	if tokens <= 0 || text == "" {
		return 0
	}
	return float64(textnorm.CountPhrases(text, m.keywords)) / float64(tokens)
}

// matchPair applies the mechanisms in priority order and returns the first hit
func (m *Matcher) matchPair(r *eventRules, pc *preparedChunk) (model.Tier, model.Mechanism, string, bool) {
	for _, p := range r.passages {
		if m.opts.Passage.Score(p, pc.text) >= 1 {
			return model.TierOne, model.MechanismVerbatim, p, true
		}
	}

	if r.name != "" && !m.isGeneric(r.name) && m.opts.Name.Score(r.name, pc.text) >= 1 {
		return model.TierTwo, model.MechanismName, r.name, true
	}
	for _, c := range r.components {
		if m.opts.Name.Score(c, pc.text) >= 1 {
			return model.TierTwo, model.MechanismConjunction, c, true
		}
	}
	for _, p := range r.parentheses {
		if m.opts.Name.Score(p, pc.text) >= 1 {
			return model.TierTwo, model.MechanismParenthetical, p, true
		}
	}
	for _, id := range r.identifiers {
		if pc.ids[id] {
			return model.TierTwo, model.MechanismIdentifier, id, true
		}
	}
	for _, a := range r.aliases {
		if m.opts.Name.Score(a, pc.text) >= 1 {
			return model.TierTwo, model.MechanismIdentifier, a, true
		}
	}
	if m.opts.FuzzyNameThreshold > 0 && r.name != "" {
		if m.opts.Fuzzy.Score(r.name, pc.text) >= m.opts.FuzzyNameThreshold {
			return model.TierTwo, model.MechanismFuzzyName, r.name, true
		}
	}
	if r.cooccurrence {
		var hit []string
		for _, set := range r.keywordSets {
			for _, kw := range set {
				if textnorm.ContainsPhrase(pc.text, kw) {
					hit = append(hit, kw)
					break
				}
			}
		}
		if len(hit) >= m.opts.MinCooccurringSets {
			return model.TierTwo, model.MechanismCooccurrence, strings.Join(hit, " + "), true
		}
	}

	return "", "", "", false
}

// eventJob matches one event against every chunk
type eventJob struct {
	index  int
	rules  *eventRules
	chunks []*preparedChunk
	m      *Matcher
}

type chunkHit struct {
	chunkIndex int
	match      model.ChunkEventMatch
}

type eventResult struct {
	index   int
	matches []chunkHit
	err     error
}

func (r *eventResult) GetError() error {
	return r.err
}

func (j *eventJob) Execute(ctx context.Context) worker.Result {
	res := &eventResult{index: j.index}
	for _, pc := range j.chunks {
		if err := ctx.Err(); err != nil {
			res.err = err
			return res
		}
		tier, mech, frag, ok := j.m.matchPair(j.rules, pc)
		if !ok {
			continue
		}
		res.matches = append(res.matches, chunkHit{
			chunkIndex: pc.index,
			match: model.ChunkEventMatch{
				ChunkID:    pc.chunk.ID,
				EventID:    j.rules.event.ID,
				Tier:       tier,
				Mechanism:  mech,
				Matched:    frag,
				KeyDensity: pc.density,
			},
		})
	}
	return res
}

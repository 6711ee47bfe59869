package sample

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ppiankov/shockeval/internal/chunk"
	"github.com/ppiankov/shockeval/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCorpus() *model.Corpus {
	c := &model.Corpus{
		Events: []model.Event{
			{ID: "e1", Name: "Revenue Act of 1964", CategoryLabel: "Long-run",
				CanonicalPassages: []string{"to raise the long-run growth rate of the economy"}},
			{ID: "e2", Name: "Revenue Act of 1968", CategoryLabel: "Countercyclical",
				CanonicalPassages: []string{"a temporary surcharge to restrain inflationary demand"}},
			{ID: "e3", Name: "Deficit Reduction Act of 1984", CategoryLabel: "Deficit-driven",
				CanonicalPassages: []string{"reduce the deficit that threatens the recovery", "a down payment on deficit reduction"}},
			{ID: "e4", Name: "Social Security Amendments of 1977", CategoryLabel: "Spending-driven",
				CanonicalPassages: []string{"finance higher benefit payments to retirees"}},
		},
	}
	c.Chunks = append(c.Chunks,
		model.Chunk{ID: "doc:p1-10", Text: "The Revenue Act of 1964 cut rates to raise the long-run growth rate of the economy."},
		model.Chunk{ID: "doc:p9-18", Text: "Revenue Act of 1964 again"},
	)
	c.Matches = append(c.Matches,
		model.ChunkEventMatch{ChunkID: "doc:p1-10", EventID: "e1", Tier: model.TierOne},
		model.ChunkEventMatch{ChunkID: "doc:p9-18", EventID: "e1", Tier: model.TierTwo},
	)
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("doc:n%02d", i)
		c.Chunks = append(c.Chunks, model.Chunk{ID: id, Text: fmt.Sprintf("negative chunk %d about weather", i)})
		c.Matches = append(c.Matches, model.ChunkEventMatch{
			ChunkID: id, Tier: model.TierNegative, KeyDensity: float64(i) / 100,
		})
	}
	return c
}

func newTestSampler(seed uint64) *Sampler {
	return NewSampler(Options{Seed: seed, HardNegativeFraction: 0.7, NegativeLabel: "NONE", MinPassageChars: 15}, nil)
}

func TestSample_ExcludesHeldOutEvent(t *testing.T) {
	corpus := testCorpus()
	for _, ev := range corpus.Events {
		set, err := newTestSampler(1).Sample(corpus, ev.ID, 2, StrategyEdgeCase)
		require.NoError(t, err)

		for _, ex := range set.Examples {
			assert.NotEqual(t, ev.ID, ex.SourceEventID)
			for _, m := range corpus.MatchesForEvent(ev.ID) {
				assert.NotEqual(t, m.ChunkID, ex.SourceChunkID)
			}
		}
		assert.NotContains(t, set.Labels(), ev.CategoryLabel, "held-out event was the only member of its class")
	}
}

func TestSample_NegativeChunkQuotingHeldOutIsExcluded(t *testing.T) {
	corpus := testCorpus()
	// An unmatched chunk that still quotes e2 verbatim.
	corpus.Chunks = append(corpus.Chunks, model.Chunk{ID: "doc:stray", Text: "Officials proposed A Temporary Surcharge to restrain\ninflationary demand."})
	corpus.Matches = append(corpus.Matches, model.ChunkEventMatch{ChunkID: "doc:stray", Tier: model.TierNegative, KeyDensity: 9})

	set, err := newTestSampler(3).Sample(corpus, "e2", 3, StrategyEdgeCase)
	require.NoError(t, err)
	for _, ex := range set.Examples {
		assert.NotEqual(t, "doc:stray", ex.ID)
	}

	// When another event is held out the dense stray chunk is the hardest negative.
	set, err = newTestSampler(3).Sample(corpus, "e1", 3, StrategyEdgeCase)
	require.NoError(t, err)
	negatives := set.ByLabel()["NONE"]
	require.NotEmpty(t, negatives)
	assert.Equal(t, "doc:stray", negatives[0].ID)
	assert.True(t, negatives[0].Hard)
}

func TestCheckLeakage_NaiveSetIsRejected(t *testing.T) {
	corpus := &model.Corpus{Events: []model.Event{
		{ID: "E", CategoryLabel: "Deficit-driven", CanonicalPassages: []string{"the only canonical passage of this act"}},
		{ID: "F", CategoryLabel: "Long-run", CanonicalPassages: []string{"an unrelated passage about growth"}},
	}}

	naive := &ExampleSet{HeldOutEventID: "E", Examples: []Example{
		{ID: "F#0", Label: "Long-run", Text: "an unrelated passage about growth", SourceEventID: "F"},
		{ID: "E#0", Label: "Deficit-driven", Text: "the only canonical passage of this act", SourceEventID: "E"},
	}}
	err := CheckLeakage(naive, corpus, "E", 15)

	var leak *model.DataLeakageViolation
	require.ErrorAs(t, err, &leak)
	assert.Equal(t, "E#0", leak.ExampleID)
	assert.True(t, errors.Is(err, model.ErrDataLeakage))

	// A relabeled copy of the passage is caught by text containment.
	disguised := &ExampleSet{Examples: []Example{{ID: "x", Label: "NONE", Text: "see: The only canonical passage of this act."}}}
	assert.Error(t, CheckLeakage(disguised, corpus, "E", 15))

	set, err := newTestSampler(9).Sample(corpus, "E", 2, StrategyStratified)
	require.NoError(t, err)
	require.Len(t, set.Examples, 1)
	assert.Equal(t, "F#0", set.Examples[0].ID)
}

func TestSample_Deterministic(t *testing.T) {
	corpus := testCorpus()
	first, err := newTestSampler(42).Sample(corpus, "e3", 3, StrategyStratified)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := newTestSampler(42).Sample(corpus, "e3", 3, StrategyStratified)
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("sampling not deterministic (-first +again):\n%s", diff)
		}
	}
}

func TestSample_SeedChangesDraw(t *testing.T) {
	corpus := testCorpus()
	distinct := make(map[string]bool)
	for seed := uint64(0); seed < 20; seed++ {
		set, err := newTestSampler(seed).Sample(corpus, "e3", 2, StrategyStratified)
		require.NoError(t, err)
		key := ""
		for _, ex := range set.ByLabel()["NONE"] {
			key += ex.ID + ","
		}
		distinct[key] = true
	}
	assert.Greater(t, len(distinct), 1, "uniform negatives should vary with the seed")
}

func TestSample_EdgeCaseMix(t *testing.T) {
	set, err := newTestSampler(5).Sample(testCorpus(), "e4", 10, StrategyEdgeCase)
	require.NoError(t, err)

	negatives := set.ByLabel()["NONE"]
	require.Len(t, negatives, 10)

	hard := 0
	for _, ex := range negatives {
		if ex.Hard {
			hard++
		}
	}
	assert.Equal(t, 7, hard)
	// The hard picks are the seven densest chunks, densest first.
	assert.Equal(t, "doc:n11", negatives[0].ID)
	assert.Equal(t, "doc:n05", negatives[6].ID)
}

func TestSample_StratifiedPerClass(t *testing.T) {
	set, err := newTestSampler(5).Sample(testCorpus(), "e4", 1, StrategyStratified)
	require.NoError(t, err)

	by := set.ByLabel()
	assert.Equal(t, []string{"Countercyclical", "Deficit-driven", "Long-run", "NONE"}, set.Labels())
	for label, examples := range by {
		assert.Len(t, examples, 1, "label %s", label)
	}
}

func TestSample_ConfigurationErrors(t *testing.T) {
	corpus := testCorpus()
	var cfgErr *model.ConfigurationError

	_, err := newTestSampler(1).Sample(corpus, "e1", 0, StrategyStratified)
	assert.ErrorAs(t, err, &cfgErr)

	_, err = newTestSampler(1).Sample(corpus, "e1", 2, Strategy("random"))
	assert.ErrorAs(t, err, &cfgErr)

	bad := NewSampler(Options{HardNegativeFraction: 1.5}, nil)
	_, err = bad.Sample(corpus, "e1", 2, StrategyEdgeCase)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSample_OmitNegatives(t *testing.T) {
	s := NewSampler(Options{Seed: 1, NegativeLabel: "NONE", MinPassageChars: 15, OmitNegatives: true}, nil)
	set, err := s.Sample(testCorpus(), "e1", 2, StrategyEdgeCase)
	require.NoError(t, err)

	require.NotEmpty(t, set.Examples)
	assert.NotContains(t, set.Labels(), "NONE")
}

func TestSample_NegativesCutToExcerpt(t *testing.T) {
	corpus := testCorpus()
	long := strings.Repeat("agricultural output and weather summaries ", 200) +
		"receipts fell while outlays and the deficit grew " +
		strings.Repeat("rainfall tables by region ", 200)
	corpus.Chunks = append(corpus.Chunks, model.Chunk{ID: "doc:long", Text: long})
	corpus.Matches = append(corpus.Matches, model.ChunkEventMatch{ChunkID: "doc:long", Tier: model.TierNegative, KeyDensity: 1})

	const maxTokens = 40
	s := NewSampler(Options{
		Seed:                 1,
		HardNegativeFraction: 1,
		NegativeLabel:        "NONE",
		MinPassageChars:      15,
		MaxExampleTokens:     maxTokens,
		Keywords:             []string{"Deficit", "receipts", "outlays"},
	}, nil)
	set, err := s.Sample(corpus, "e1", 2, StrategyEdgeCase)
	require.NoError(t, err)

	var found bool
	for _, ex := range set.ByLabel()["NONE"] {
		assert.LessOrEqual(t, chunk.EstimateTokens(ex.Text), maxTokens, ex.ID)
		if ex.ID == "doc:long" {
			found = true
			assert.Contains(t, ex.Text, "outlays and the deficit")
			assert.Contains(t, ex.Text, "receipts fell")
		}
	}
	assert.True(t, found, "densest chunk should be the hard negative")
}

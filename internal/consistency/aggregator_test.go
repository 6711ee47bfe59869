package consistency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ppiankov/shockeval/internal/classify"
	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	sample model.Sample
	err    error
}

// scripted hands out one reply per call; the order across goroutines is
// irrelevant because the vote only depends on the multiset
func scripted(replies ...reply) classify.CallFunc {
	var next int32 = -1
	return func(ctx context.Context, in classify.Input, temperature float64) (model.Sample, error) {
		i := atomic.AddInt32(&next, 1)
		r := replies[int(i)%len(replies)]
		return r.sample, r.err
	}
}

func ok(label string, conf float64) reply {
	return reply{sample: model.Sample{Label: label, Confidence: conf, Compliant: true}}
}

func nonCompliant() reply {
	return reply{
		sample: model.Sample{Raw: "garbage", Compliant: false, Error: "invalid JSON"},
		err:    &model.NonCompliantOutput{Raw: "garbage", Reason: "invalid JSON"},
	}
}

func TestAggregate_TieBrokenByConfidence(t *testing.T) {
	call := scripted(ok("A", 0.6), ok("A", 0.6), ok("B", 0.9), ok("B", 0.8), nonCompliant())

	pred, err := NewAggregator(nil).Aggregate(context.Background(), call, classify.Input{UnitID: "u1"}, 5, 0.7)
	require.NoError(t, err)

	assert.Equal(t, model.StatusOK, pred.Status)
	assert.Equal(t, "B", pred.PredictedLabel)
	assert.InDelta(t, 0.4, pred.AgreementRate, 1e-9)
	assert.InDelta(t, 0.85, pred.Confidence, 1e-9)
	assert.Equal(t, 1, pred.NonCompliant)
	assert.Len(t, pred.RawSamples, 5)
	assert.Equal(t, "u1", pred.UnitID)
}

func TestReduce_LexicographicTieBreak(t *testing.T) {
	pred := Reduce([]model.Sample{
		{Label: "beta", Confidence: 0.5, Compliant: true},
		{Label: "alpha", Confidence: 0.5, Compliant: true},
	})
	assert.Equal(t, "alpha", pred.PredictedLabel)
	assert.InDelta(t, 0.5, pred.AgreementRate, 1e-9)
}

func TestReduce_Majority(t *testing.T) {
	pred := Reduce([]model.Sample{
		{Label: "A", Confidence: 0.1, Compliant: true},
		{Label: "A", Confidence: 0.3, Compliant: true},
		{Label: "B", Confidence: 1.0, Compliant: true},
	})
	assert.Equal(t, "A", pred.PredictedLabel)
	assert.InDelta(t, 2.0/3.0, pred.AgreementRate, 1e-9)
	assert.InDelta(t, 0.2, pred.Confidence, 1e-9)
}

func TestAggregate_AllNonCompliant(t *testing.T) {
	pred, err := NewAggregator(nil).Aggregate(context.Background(), scripted(nonCompliant()), classify.Input{UnitID: "u"}, 3, 0.7)
	require.NoError(t, err)

	assert.Equal(t, model.StatusInvalidOutput, pred.Status)
	assert.False(t, pred.Valid())
	assert.Empty(t, pred.PredictedLabel)
	assert.Zero(t, pred.AgreementRate)
	assert.Equal(t, 3, pred.NonCompliant)
}

func TestAggregate_TransientFailsUnit(t *testing.T) {
	transient := reply{err: &model.TransientClassifierError{StatusCode: 429, Err: errors.New("slow down")}}
	call := scripted(ok("A", 0.9), transient, ok("A", 0.9))

	pred, err := NewAggregator(nil).Aggregate(context.Background(), call, classify.Input{UnitID: "u"}, 3, 0.7)
	require.Error(t, err)
	assert.Nil(t, pred)
	assert.True(t, model.IsTransient(err))
}

func TestAggregate_OutOfVocabularyIsNonCompliant(t *testing.T) {
	cb := &codebook.Codebook{Classes: []codebook.Class{{Label: "A"}, {Label: "B"}}}
	call := scripted(ok("A", 0.9), ok("Z", 0.99), ok("Z", 0.99))

	pred, err := NewAggregator(nil).Aggregate(context.Background(), call, classify.Input{UnitID: "u", Codebook: cb}, 3, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "A", pred.PredictedLabel)
	assert.Equal(t, 2, pred.NonCompliant)
	assert.InDelta(t, 1.0/3.0, pred.AgreementRate, 1e-9)
}

func TestAggregate_AgreementBounds(t *testing.T) {
	for n := 1; n <= 7; n++ {
		call := scripted(ok("A", 0.5), ok("B", 0.5), nonCompliant())
		pred, err := NewAggregator(nil).Aggregate(context.Background(), call, classify.Input{}, n, 0.7)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, pred.AgreementRate, 0.0)
		assert.LessOrEqual(t, pred.AgreementRate, 1.0)
	}
}

func TestAggregate_InvalidSampleCount(t *testing.T) {
	_, err := NewAggregator(nil).Aggregate(context.Background(), scripted(ok("A", 1)), classify.Input{}, 0, 0.7)
	var ce *model.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestAggregate_ExtractionItems(t *testing.T) {
	cb := &codebook.Codebook{Kind: codebook.KindExtraction, Classes: []codebook.Class{{Label: "Exogenous"}}}
	withItems := func(items ...model.ExtractedItem) reply {
		return reply{sample: model.Sample{Label: "Exogenous", Confidence: 0.8, Compliant: true, Items: items}}
	}
	call := scripted(
		withItems(
			model.ExtractedItem{Quarter: "1990Q4", Amount: 10, Evidence: []string{"b"}},
			model.ExtractedItem{Quarter: "1991Q1", Amount: 4},
		),
		withItems(model.ExtractedItem{Quarter: "1990-Q4", Amount: 14, Evidence: []string{"a", "b"}}),
		withItems(model.ExtractedItem{Quarter: "1990 q4", Amount: 12}),
		nonCompliant(),
	)

	pred, err := NewAggregator(nil).Aggregate(context.Background(), call, classify.Input{UnitID: "u", Codebook: cb}, 4, 0.7)
	require.NoError(t, err)

	// 1991Q1 appears in 1 of 3 compliant samples and is dropped
	require.Len(t, pred.Items, 1)
	item := pred.Items[0]
	assert.Equal(t, "1990Q4", item.Quarter)
	assert.InDelta(t, 12.0, item.Amount, 1e-9)
	assert.Equal(t, []string{"a", "b"}, item.Evidence)
	assert.InDelta(t, 1.0, item.Support, 1e-9)
}

func TestMergeItems_SupportUsesCompliantDenominator(t *testing.T) {
	samples := []model.Sample{
		{Compliant: true, Items: []model.ExtractedItem{{Quarter: "2001Q2", Amount: -40}}},
		{Compliant: true},
		{Compliant: false, Items: []model.ExtractedItem{{Quarter: "2001Q3", Amount: 1}}},
		{Compliant: false},
	}
	items := MergeItems(samples)
	require.Len(t, items, 1)
	assert.Equal(t, "2001Q2", items[0].Quarter)
	assert.InDelta(t, 0.5, items[0].Support, 1e-9)
	assert.InDelta(t, -40.0, items[0].Amount, 1e-9)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 2, 3}))
	assert.Equal(t, 0.0, median(nil))
}

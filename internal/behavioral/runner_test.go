package behavioral

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/shockeval/internal/classify"
	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodebook() *codebook.Codebook {
	return &codebook.Codebook{
		Name:    "motivation",
		Version: "2",
		Classes: []codebook.Class{
			{Label: "Spending-driven", LabelDefinition: "finance new spending programs",
				PositiveExamples: []string{"pay for higher social security benefits"}},
			{Label: "Countercyclical", LabelDefinition: "return growth to normal",
				PositiveExamples: []string{"speed the recovery from the recession"}},
			{Label: "Deficit-driven", LabelDefinition: "reduce an inherited budget deficit",
				PositiveExamples: []string{"close the deficit we inherited", "restore budget balance"}},
		},
	}
}

// oracle follows whatever codebook it is shown: exclusions first, then the
// class whose definition or example appears in the text
func oracle(ctx context.Context, in classify.Input, temperature float64) (model.Sample, error) {
	for _, ex := range in.Codebook.Exclusions {
		if strings.Contains(in.Text, ex.Trigger) {
			return model.Sample{Label: ex.Label, Confidence: 1, Compliant: true}, nil
		}
	}
	for _, c := range in.Codebook.Classes {
		if strings.Contains(in.Text, c.LabelDefinition) {
			return model.Sample{Label: c.Label, Confidence: 1, Compliant: true}, nil
		}
		for _, p := range c.PositiveExamples {
			if strings.Contains(in.Text, p) {
				return model.Sample{Label: c.Label, Confidence: 1, Compliant: true}, nil
			}
		}
	}
	return model.Sample{Raw: "?"}, &model.NonCompliantOutput{Raw: "?", Reason: "no match"}
}

// labelReader answers with the label name it believes is right from the
// original codebook, ignoring the labels it was shown
func labelReader(ctx context.Context, in classify.Input, temperature float64) (model.Sample, error) {
	orig := classify.Input{UnitID: in.UnitID, Codebook: testCodebook(), Text: in.Text}
	return oracle(ctx, orig, temperature)
}

// firstClass always picks whichever class is listed first
func firstClass(ctx context.Context, in classify.Input, temperature float64) (model.Sample, error) {
	return model.Sample{Label: in.Codebook.Classes[0].Label, Confidence: 0.5, Compliant: true}, nil
}

func options() Options {
	return Options{
		Samples:          1,
		MaxOrderChange:   0.05,
		MinKappa:         0.8,
		MaxLabelDrop:     0.10,
		TriggerToken:     "ZQXJ-TRIGGER",
		ShuffleSeed:      7,
		ExclusionDefault: "Countercyclical",
		Concurrency:      2,
	}
}

func verdicts(t *testing.T, report *model.BehavioralReport) map[string]model.Verdict {
	t.Helper()
	out := make(map[string]model.Verdict)
	for _, v := range report.Verdicts {
		out[v.Test] = v
	}
	require.Len(t, out, 7)
	return out
}

func TestRun_FaithfulClassifierPassesEverything(t *testing.T) {
	report, err := NewRunner(options(), nil).Run(context.Background(), testCodebook(), oracle, nil)
	require.NoError(t, err)

	v := verdicts(t, report)
	for name, verdict := range v {
		assert.True(t, verdict.Passed, "%s failed: %+v", name, verdict.Data)
	}
	assert.True(t, report.Passed())
	assert.Equal(t, "motivation", report.CodebookName)
	assert.InDelta(t, 1.0, v[TestOrderInvariance].Data["kappa"], 1e-9)
	assert.Equal(t, 0.0, v[TestOrderInvariance].Value)
	assert.Equal(t, 1.0, v[TestExclusionConsistency].Value)
	assert.Equal(t, 1.0, v[TestLegalOutput].Value)
}

func TestRun_LabelSemanticsDetected(t *testing.T) {
	report, err := NewRunner(options(), nil).Run(context.Background(), testCodebook(), labelReader, nil)
	require.NoError(t, err)

	v := verdicts(t, report)
	assert.True(t, v[TestDefinitionRecovery].Passed)
	assert.False(t, v[TestGenericLabelAccuracy].Passed)
	assert.False(t, v[TestSwappedLabelAccuracy].Passed)
	assert.Equal(t, 0.0, v[TestSwappedLabelAccuracy].Value)
	// ignores the exclusion clause it was shown
	assert.False(t, v[TestExclusionConsistency].Passed)
	assert.False(t, report.Passed())
}

func TestRun_OrderSensitiveClassifier(t *testing.T) {
	report, err := NewRunner(options(), nil).Run(context.Background(), testCodebook(), firstClass, nil)
	require.NoError(t, err)

	v := verdicts(t, report)
	assert.False(t, v[TestOrderInvariance].Passed)
	assert.Greater(t, v[TestOrderInvariance].Value, 0.05)
	assert.False(t, v[TestDefinitionRecovery].Passed)
	assert.True(t, v[TestLegalOutput].Passed)
}

func TestRun_NonCompliantOutputFailsLegalOutput(t *testing.T) {
	broken := func(ctx context.Context, in classify.Input, temperature float64) (model.Sample, error) {
		if strings.Contains(in.Text, "deficit") {
			return model.Sample{Raw: "nope"}, &model.NonCompliantOutput{Raw: "nope", Reason: "invalid JSON"}
		}
		return oracle(ctx, in, temperature)
	}

	report, err := NewRunner(options(), nil).Run(context.Background(), testCodebook(), broken, nil)
	require.NoError(t, err)

	legal := verdicts(t, report)[TestLegalOutput]
	assert.False(t, legal.Passed)
	assert.Less(t, legal.Value, 1.0)
	assert.Positive(t, legal.Data["non_compliant"])
}

func TestRun_ExplicitCases(t *testing.T) {
	cases := []Case{
		{ID: "a", Text: "we need to speed the recovery from the recession now", Label: "Countercyclical"},
		{ID: "b", Text: "in order to close the deficit we inherited", Label: "Deficit-driven"},
	}
	report, err := NewRunner(options(), nil).Run(context.Background(), testCodebook(), oracle, cases)
	require.NoError(t, err)

	excl := verdicts(t, report)[TestExclusionConsistency]
	assert.True(t, excl.Passed)
	assert.Equal(t, "b", excl.Data["case"])
}

func noRetrySleep(t *testing.T) {
	t.Helper()
	orig := retrySleepFunc
	retrySleepFunc = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { retrySleepFunc = orig })
}

func TestRun_TransientErrorRetried(t *testing.T) {
	noRetrySleep(t)
	var calls atomic.Int32
	flaky := func(ctx context.Context, in classify.Input, temperature float64) (model.Sample, error) {
		if calls.Add(1) == 1 {
			return model.Sample{}, &model.TransientClassifierError{StatusCode: 429, Err: errors.New("rate limited")}
		}
		return oracle(ctx, in, temperature)
	}

	opts := options()
	opts.MaxRetries = 2
	report, err := NewRunner(opts, nil).Run(context.Background(), testCodebook(), flaky, nil)
	require.NoError(t, err)
	assert.True(t, report.Passed())
	for name, v := range verdicts(t, report) {
		assert.Empty(t, v.Data["failed_units"], name)
	}
}

func TestRun_UnitFailingAfterRetriesRecorded(t *testing.T) {
	noRetrySleep(t)
	var downCalls atomic.Int32
	partial := func(ctx context.Context, in classify.Input, temperature float64) (model.Sample, error) {
		if strings.Contains(in.Text, "restore budget balance") {
			downCalls.Add(1)
			return model.Sample{}, &model.TransientClassifierError{StatusCode: 503, Err: errors.New("down")}
		}
		return oracle(ctx, in, temperature)
	}

	opts := options()
	opts.MaxRetries = 2
	report, err := NewRunner(opts, nil).Run(context.Background(), testCodebook(), partial, nil)
	require.NoError(t, err)

	const unit = "classes[2].positive[1]"
	v := verdicts(t, report)

	ex := v[TestExampleRecovery]
	assert.False(t, ex.Passed)
	assert.InDelta(t, 0.75, ex.Value, 1e-9)
	assert.Equal(t, []string{unit}, ex.Data["failed_units"])

	order := v[TestOrderInvariance]
	assert.True(t, order.Passed)
	assert.Equal(t, 3, order.Data["compared"])
	assert.Equal(t, []string{unit}, order.Data["failed_units"])

	assert.Equal(t, []string{unit}, v[TestGenericLabelAccuracy].Data["failed_units"])
	assert.Equal(t, []string{unit, unit}, v[TestLegalOutput].Data["failed_units"])
	assert.Equal(t, []string{}, v[TestDefinitionRecovery].Data["failed_units"])

	// original, examples, reversed, shuffled, generic and swapped batches, each with 1+2 attempts
	assert.Equal(t, int32(6*3), downCalls.Load())
}

func TestRun_PermanentErrorAborts(t *testing.T) {
	failing := func(ctx context.Context, in classify.Input, temperature float64) (model.Sample, error) {
		return model.Sample{}, errors.New("invalid api key")
	}
	_, err := NewRunner(options(), nil).Run(context.Background(), testCodebook(), failing, nil)
	require.Error(t, err)
	assert.False(t, model.IsTransient(err))
}

func TestOptionsFromConfig_Temperature(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Consistency.Temperature = 0.7

	cfg.Behavioral.Samples = 1
	assert.Equal(t, 0.0, OptionsFromConfig(cfg).Temperature)

	cfg.Behavioral.Samples = 5
	assert.Equal(t, 0.7, OptionsFromConfig(cfg).Temperature)

	cfg.Behavioral.Temperature = 0.3
	assert.Equal(t, 0.3, OptionsFromConfig(cfg).Temperature)

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, cfg.LOOCV.MaxRetries, opts.MaxRetries)
	assert.Equal(t, cfg.LOOCV.BaseBackoff, opts.BaseBackoff)
}

func TestRun_RequiresCodebook(t *testing.T) {
	_, err := NewRunner(options(), nil).Run(context.Background(), nil, oracle, nil)
	var ce *model.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestCaseBuilders(t *testing.T) {
	cb := testCodebook()
	defs := DefinitionCases(cb)
	require.Len(t, defs, 3)
	assert.Equal(t, "definition[1]", defs[1].ID)
	assert.Equal(t, "Countercyclical", defs[1].Label)

	examples := ExampleCases(cb)
	require.Len(t, examples, 4)
	assert.Equal(t, "classes[2].positive[1]", examples[3].ID)
}

package evaluate

import (
	"math"
	"sort"

	"github.com/ppiankov/shockeval/internal/model"
)

// Metric names
const (
	MetricPrecision        = "precision"
	MetricRecall           = "recall"
	MetricF1               = "f1"
	MetricWeightedF1       = "weighted_f1"
	MetricAccuracy         = "accuracy"
	MetricTier1Recall      = "tier1_recall"
	MetricTier2Recall      = "tier2_recall"
	MetricMAPE             = "mape"
	MetricSignAccuracy     = "sign_accuracy"
	MetricQuarterExact     = "quarter_exact"
	MetricQuarterWithinOne = "quarter_within_one"
)

// ClassificationMetrics is the default set for classification codebooks
var ClassificationMetrics = []string{
	MetricAccuracy, MetricF1, MetricPrecision, MetricRecall,
	MetricTier1Recall, MetricTier2Recall, MetricWeightedF1,
}

// ExtractionMetrics is the default set for extraction codebooks
var ExtractionMetrics = []string{
	MetricMAPE, MetricQuarterExact, MetricQuarterWithinOne, MetricSignAccuracy,
}

// Observation is one scored unit: a predicted label against the truth and,
// for extraction, predicted items against the true timing
type Observation struct {
	UnitID         string                `json:"unit_id"`
	EventID        string                `json:"event_id,omitempty"`
	Tier           model.Tier            `json:"tier,omitempty"`
	Predicted      string                `json:"predicted"`
	True           string                `json:"true"`
	PredictedItems []model.ExtractedItem `json:"predicted_items,omitempty"`
	TrueTiming     []model.TimingEntry   `json:"true_timing,omitempty"`
}

// metricFunc computes a metric; ok is false when it is undefined for obs
type metricFunc func(obs []Observation, positive string) (value float64, ok bool)

var metricFuncs = map[string]metricFunc{
	MetricPrecision:        precision,
	MetricRecall:           recall,
	MetricF1:               f1,
	MetricWeightedF1:       weightedF1,
	MetricAccuracy:         accuracy,
	MetricTier1Recall:      tierRecall(model.TierOne),
	MetricTier2Recall:      tierRecall(model.TierTwo),
	MetricMAPE:             mape,
	MetricSignAccuracy:     signAccuracy,
	MetricQuarterExact:     quarterAccuracy(0),
	MetricQuarterWithinOne: quarterAccuracy(1),
}

var classificationMetric = map[string]bool{
	MetricPrecision: true, MetricRecall: true, MetricF1: true, MetricWeightedF1: true, MetricAccuracy: true,
}

// Compute returns the point estimate of a named metric. ok is false when the
// metric is undefined for obs (e.g., no Tier 1 units for tier1_recall).
func Compute(metric string, obs []Observation, positive string) (float64, bool, error) {
	fn, exists := metricFuncs[metric]
	if !exists {
		return 0, false, &model.ConfigurationError{Field: "metric", Reason: "unknown metric " + metric}
	}
	v, ok := fn(obs, positive)
	return v, ok, nil
}

type labelCounts struct {
	tp, fp, fn, support int
}

func countsByLabel(obs []Observation) (map[string]*labelCounts, []string) {
	counts := make(map[string]*labelCounts)
	get := func(l string) *labelCounts {
		c := counts[l]
		if c == nil {
			c = &labelCounts{}
			counts[l] = c
		}
		return c
	}
	for _, o := range obs {
		get(o.True).support++
		if o.Predicted == o.True {
			get(o.True).tp++
			continue
		}
		get(o.Predicted).fp++
		get(o.True).fn++
	}
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return counts, labels
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func (c *labelCounts) precision() float64 { return ratio(c.tp, c.tp+c.fp) }
func (c *labelCounts) recall() float64    { return ratio(c.tp, c.tp+c.fn) }
func (c *labelCounts) f1() float64 {
	p, r := c.precision(), c.recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// perLabel computes a binary score for positive, or the macro average
func perLabel(obs []Observation, positive string, score func(*labelCounts) float64) (float64, bool) {
	if len(obs) == 0 {
		return 0, false
	}
	counts, labels := countsByLabel(obs)
	if positive != "" {
		c := counts[positive]
		if c == nil {
			return 0, true
		}
		return score(c), true
	}
	var sum float64
	for _, l := range labels {
		sum += score(counts[l])
	}
	return sum / float64(len(labels)), true
}

func precision(obs []Observation, positive string) (float64, bool) {
	return perLabel(obs, positive, (*labelCounts).precision)
}

func recall(obs []Observation, positive string) (float64, bool) {
	return perLabel(obs, positive, (*labelCounts).recall)
}

func f1(obs []Observation, positive string) (float64, bool) {
	return perLabel(obs, positive, (*labelCounts).f1)
}

func weightedF1(obs []Observation, _ string) (float64, bool) {
	if len(obs) == 0 {
		return 0, false
	}
	counts, labels := countsByLabel(obs)
	var sum float64
	for _, l := range labels {
		c := counts[l]
		sum += float64(c.support) * c.f1()
	}
	return sum / float64(len(obs)), true
}

func accuracy(obs []Observation, _ string) (float64, bool) {
	if len(obs) == 0 {
		return 0, false
	}
	correct := 0
	for _, o := range obs {
		if o.Predicted == o.True {
			correct++
		}
	}
	return ratio(correct, len(obs)), true
}

func tierRecall(tier model.Tier) metricFunc {
	return func(obs []Observation, _ string) (float64, bool) {
		total, correct := 0, 0
		for _, o := range obs {
			if o.Tier != tier {
				continue
			}
			total++
			if o.Predicted == o.True {
				correct++
			}
		}
		if total == 0 {
			return 0, false
		}
		return ratio(correct, total), true
	}
}

// quarterPairs pairs every true timing entry with the predicted amount in
// the same quarter, if any
func quarterPairs(obs []Observation) (trueAmounts, predAmounts []float64) {
	for _, o := range obs {
		pred := make(map[string]float64)
		for _, it := range o.PredictedItems {
			if q, ok := model.CanonicalQuarter(it.Quarter); ok {
				pred[q] += it.Amount
			}
		}
		for _, te := range o.TrueTiming {
			q, ok := model.CanonicalQuarter(te.Quarter)
			if !ok {
				continue
			}
			if amount, found := pred[q]; found {
				trueAmounts = append(trueAmounts, te.Amount)
				predAmounts = append(predAmounts, amount)
			}
		}
	}
	return trueAmounts, predAmounts
}

// mape is the mean absolute percentage error over matched quarters with a
// non-zero true amount, in percent
func mape(obs []Observation, _ string) (float64, bool) {
	truth, pred := quarterPairs(obs)
	var sum float64
	n := 0
	for i := range truth {
		if truth[i] == 0 {
			continue
		}
		sum += math.Abs((pred[i] - truth[i]) / truth[i])
		n++
	}
	if n == 0 {
		return 0, false
	}
	return 100 * sum / float64(n), true
}

func signAccuracy(obs []Observation, _ string) (float64, bool) {
	truth, pred := quarterPairs(obs)
	if len(truth) == 0 {
		return 0, false
	}
	correct := 0
	for i := range truth {
		if sign(truth[i]) == sign(pred[i]) {
			correct++
		}
	}
	return ratio(correct, len(truth)), true
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// quarterAccuracy is the share of true timing entries with a predicted item
// at most tolerance quarters away
func quarterAccuracy(tolerance int) metricFunc {
	return func(obs []Observation, _ string) (float64, bool) {
		total, hits := 0, 0
		for _, o := range obs {
			var predicted []int
			for _, it := range o.PredictedItems {
				if idx, ok := model.QuarterIndex(it.Quarter); ok {
					predicted = append(predicted, idx)
				}
			}
			for _, te := range o.TrueTiming {
				idx, ok := model.QuarterIndex(te.Quarter)
				if !ok {
					continue
				}
				total++
				for _, p := range predicted {
					if abs(p-idx) <= tolerance {
						hits++
						break
					}
				}
			}
		}
		if total == 0 {
			return 0, false
		}
		return ratio(hits, total), true
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ConfusionMatrix counts (true, predicted) pairs over the full set
func ConfusionMatrix(obs []Observation) *model.ConfusionMatrix {
	seen := make(map[string]bool)
	for _, o := range obs {
		seen[o.True] = true
		seen[o.Predicted] = true
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	counts := make([][]int, len(labels))
	for i := range counts {
		counts[i] = make([]int, len(labels))
	}
	for _, o := range obs {
		counts[index[o.True]][index[o.Predicted]]++
	}
	return &model.ConfusionMatrix{Labels: labels, Counts: counts}
}

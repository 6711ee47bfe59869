package evaluate

import (
	"hash/fnv"
	"math/rand/v2"
	"sort"

	"github.com/ppiankov/shockeval/internal/model"
)

// BootstrapOptions controls percentile bootstrap resampling
type BootstrapOptions struct {
	Resamples       int
	Seed            uint64
	Confidence      float64 // e.g. 0.95 gives the 2.5th/97.5th percentiles
	MinResamples    int
	MinObservations int
}

// Interval is a percentile bootstrap confidence interval
type Interval struct {
	Low       float64
	High      float64
	Resamples int // Resamples on which the metric was defined
}

// Bootstrap resamples obs with replacement and returns the percentile
// interval of metric. Below the configured minimums it returns an
// *model.InsufficientSampleError and no interval.
func Bootstrap(metric string, obs []Observation, positive string, opts BootstrapOptions) (*Interval, error) {
	fn, exists := metricFuncs[metric]
	if !exists {
		return nil, &model.ConfigurationError{Field: "metric", Reason: "unknown metric " + metric}
	}
	if opts.Resamples < opts.MinResamples || len(obs) < opts.MinObservations || opts.Resamples <= 0 || len(obs) == 0 {
		return nil, &model.InsufficientSampleError{
			Observations: len(obs),
			Resamples:    opts.Resamples,
			MinObs:       opts.MinObservations,
			MinResamples: opts.MinResamples,
		}
	}
	conf := opts.Confidence
	if conf <= 0 || conf >= 1 {
		conf = 0.95
	}

	rng := rand.New(rand.NewPCG(opts.Seed, hashName(metric)))
	values := make([]float64, 0, opts.Resamples)
	resample := make([]Observation, len(obs))
	for b := 0; b < opts.Resamples; b++ {
		for i := range resample {
			resample[i] = obs[rng.IntN(len(obs))]
		}
		if v, ok := fn(resample, positive); ok {
			values = append(values, v)
		}
	}
	if len(values) < opts.MinResamples || len(values) == 0 {
		return nil, &model.InsufficientSampleError{
			Observations: len(obs),
			Resamples:    len(values),
			MinObs:       opts.MinObservations,
			MinResamples: opts.MinResamples,
		}
	}

	sort.Float64s(values)
	alpha := (1 - conf) / 2
	return &Interval{
		Low:       percentile(values, 100*alpha),
		High:      percentile(values, 100*(1-alpha)),
		Resamples: len(values),
	}, nil
}

// percentile uses linear interpolation between closest ranks
func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 100 {
		return sorted[len(sorted)-1]
	}

	index := float64(len(sorted)-1) * pct / 100
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func hashName(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

package model

import (
	"errors"
	"fmt"
)

// ErrDataLeakage is matched by every DataLeakageViolation via errors.Is
var ErrDataLeakage = errors.New("data leakage")

// ConfigurationError reports invalid chunking, sampling, or evaluation parameters
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// StructuralError reports a malformed codebook or input table
type StructuralError struct {
	Path   string // Location inside the structure, e.g. "classes[2].label"
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error at %s: %s", e.Path, e.Reason)
}

// GapKind distinguishes the sources of coverage gaps
type GapKind string

const (
	GapUncoveredEvent GapKind = "uncovered_event" // Event with zero chunk matches
	GapFailedFold     GapKind = "failed_fold"     // Fold failed after retries
	GapEmptyFold      GapKind = "empty_fold"      // Fold had no chunks to classify
)

// CoverageGap is a unit excluded from aggregate metrics
type CoverageGap struct {
	Kind    GapKind `json:"kind"`
	EventID string  `json:"event_id"`
	Reason  string  `json:"reason"`
}

func (e *CoverageGap) Error() string {
	return fmt.Sprintf("coverage gap (%s) for event %s: %s", e.Kind, e.EventID, e.Reason)
}

// TransientClassifierError wraps a retryable classifier failure (network, timeout, 429, 5xx)
type TransientClassifierError struct {
	StatusCode int
	Err        error
}

func (e *TransientClassifierError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient classifier error (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient classifier error: %v", e.Err)
}

func (e *TransientClassifierError) Unwrap() error {
	return e.Err
}

// NonCompliantOutput reports a classifier response that failed schema validation
type NonCompliantOutput struct {
	Raw    string
	Reason string
}

func (e *NonCompliantOutput) Error() string {
	return "non-compliant classifier output: " + e.Reason
}

// DataLeakageViolation reports held-out material inside a few-shot set. Always fatal.
type DataLeakageViolation struct {
	HeldOutEventID string
	ExampleID      string
	Reason         string
}

func (e *DataLeakageViolation) Error() string {
	return fmt.Sprintf("data leakage: held-out event %s appears in example %s: %s", e.HeldOutEventID, e.ExampleID, e.Reason)
}

func (e *DataLeakageViolation) Is(target error) bool {
	return target == ErrDataLeakage
}

// InsufficientSampleError reports a bootstrap request below the configured minimums
type InsufficientSampleError struct {
	Observations int
	Resamples    int
	MinObs       int
	MinResamples int
}

func (e *InsufficientSampleError) Error() string {
	return fmt.Sprintf("insufficient sample: %d observations (min %d), %d resamples (min %d)",
		e.Observations, e.MinObs, e.Resamples, e.MinResamples)
}

// IsTransient reports whether err is (or wraps) a TransientClassifierError
func IsTransient(err error) bool {
	var t *TransientClassifierError
	return errors.As(err, &t)
}

// IsNonCompliant reports whether err is (or wraps) a NonCompliantOutput
func IsNonCompliant(err error) bool {
	var n *NonCompliantOutput
	return errors.As(err, &n)
}

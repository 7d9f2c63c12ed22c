package funnel

import (
	"errors"
	"fmt"
	"time"
)

var (
	errMissingClient = errors.New("funnel: analytics client not configured")
	errMissingSlot   = errors.New("funnel: slot name is required")
	// ErrSuperseded is returned by runs discarded in favor of a newer run in the same slot.
	ErrSuperseded = errors.New("funnel: query superseded by a newer run")
)

// NormalizationError reports a malformed FilterSpec. The query never starts.
type NormalizationError struct {
	Field  string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("funnel: invalid filter %s: %s", e.Field, e.Reason)
}

// TimeoutError reports that polling exceeded its wall-clock budget.
type TimeoutError struct {
	Elapsed  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("funnel: query timed out after %s (%d requests)", e.Elapsed, e.Attempts)
}

// RemoteError wraps a failure reported by the analytics backend. It is never retried.
type RemoteError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("funnel: remote error %d: %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("funnel: remote error: %v", e.Err)
	default:
		return fmt.Sprintf("funnel: remote error: %s", e.Message)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// AggregationError reports per-segment results that cannot be merged.
type AggregationError struct {
	Segment  int
	Expected int
	Got      int
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("funnel: segment %d has %d steps, expected %d", e.Segment, e.Got, e.Expected)
}

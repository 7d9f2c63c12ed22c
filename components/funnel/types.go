package funnel

import (
	"encoding/json"
	"time"
)

// EntityKind distinguishes raw events from saved actions.
type EntityKind string

const (
	EntityEvent  EntityKind = "event"
	EntityAction EntityKind = "action"
)

// BreakdownType names the source of a segmentation key.
type BreakdownType string

const (
	BreakdownEvent  BreakdownType = "event"
	BreakdownPerson BreakdownType = "person"
	BreakdownCohort BreakdownType = "cohort"
)

// Interval is the bucketing granularity requested for a query.
type Interval string

const (
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDay    Interval = "day"
	IntervalWeek   Interval = "week"
	IntervalMonth  Interval = "month"
)

// Entity is a single funnel stage definition.
type Entity struct {
	Kind  EntityKind `json:"type"`
	ID    string     `json:"id"`
	Name  string     `json:"name,omitempty"`
	Order int        `json:"order"`
}

// PropertyFilter is a predicate applied to event or person properties.
type PropertyFilter struct {
	Key      string `json:"key"`
	Value    any    `json:"value,omitempty"`
	Operator string `json:"operator,omitempty"`
	Type     string `json:"type,omitempty"`
}

// FilterSpec describes a funnel query.
type FilterSpec struct {
	Entities             []Entity         `json:"entities,omitempty"`
	DateFrom             string           `json:"date_from,omitempty"`
	DateTo               string           `json:"date_to,omitempty"`
	Properties           []PropertyFilter `json:"properties,omitempty"`
	Breakdown            string           `json:"breakdown,omitempty"`
	BreakdownType        BreakdownType    `json:"breakdown_type,omitempty"`
	ConversionWindowDays int              `json:"funnel_window_days,omitempty"`
	Interval             Interval         `json:"interval,omitempty"`
}

// Incomplete reports whether the filter has nothing to compute yet.
func (f FilterSpec) Incomplete() bool {
	return len(f.Entities) == 0
}

// Segmented reports whether results come back split by a breakdown key.
func (f FilterSpec) Segmented() bool {
	return f.Breakdown != "" && f.BreakdownType != ""
}

// EntityCounts returns the number of event and action entities.
func (f FilterSpec) EntityCounts() (events, actions int) {
	for _, e := range f.Entities {
		switch e.Kind {
		case EntityAction:
			actions++
		default:
			events++
		}
	}
	return events, actions
}

// StepKind tags a FunnelStep as plain or segmented.
type StepKind int

const (
	StepPlain StepKind = iota
	StepSegmented
)

// FunnelStep is one stage of a computed funnel. BreakdownValue labels a per-segment
// step as returned by the backend, before aggregation.
type FunnelStep struct {
	Kind                  StepKind         `json:"-"`
	Order                 int              `json:"order"`
	Name                  string           `json:"name"`
	Count                 int              `json:"count"`
	AverageConversionTime *float64         `json:"average_conversion_time"`
	Breakdown             []BreakdownSlice `json:"breakdown,omitempty"`
	BreakdownValue        string           `json:"breakdown_value,omitempty"`
}

// BreakdownSlice is the share of a step attributed to one segment value.
type BreakdownSlice struct {
	Label                 string   `json:"breakdown_value"`
	Order                 int      `json:"order"`
	Count                 int      `json:"count"`
	AverageConversionTime *float64 `json:"average_conversion_time"`
}

// PlainStep builds a step without breakdown slices.
func PlainStep(order int, name string, count int, avg *float64) FunnelStep {
	return FunnelStep{
		Kind:                  StepPlain,
		Order:                 order,
		Name:                  name,
		Count:                 count,
		AverageConversionTime: avg,
	}
}

// SegmentedStep builds a merged step from per-segment slices. The count is the slice sum.
func SegmentedStep(order int, name string, slices []BreakdownSlice) FunnelStep {
	total := 0
	for _, s := range slices {
		total += s.Count
	}
	return FunnelStep{
		Kind:      StepSegmented,
		Order:     order,
		Name:      name,
		Count:     total,
		Breakdown: slices,
	}
}

// UnmarshalJSON restores Kind from the presence of breakdown slices.
func (s *FunnelStep) UnmarshalJSON(data []byte) error {
	type plain FunnelStep
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*s = FunnelStep(decoded)
	s.Kind = StepPlain
	if s.Breakdown != nil {
		s.Kind = StepSegmented
	}
	return nil
}

// IsSegmented reports whether the step carries breakdown slices.
func (s FunnelStep) IsSegmented() bool {
	return s.Kind == StepSegmented
}

// Slices returns the breakdown slices, or nil for plain steps.
func (s FunnelStep) Slices() []BreakdownSlice {
	if s.Kind != StepSegmented {
		return nil
	}
	return s.Breakdown
}

// Slice returns the slice at position k, if present.
func (s FunnelStep) Slice(k int) (BreakdownSlice, bool) {
	slices := s.Slices()
	if k < 0 || k >= len(slices) {
		return BreakdownSlice{}, false
	}
	return slices[k], true
}

// Status is the lifecycle state of a QueryResult.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// QueryResult is the outcome of one funnel computation.
type QueryResult struct {
	QueryID     string       `json:"query_id,omitempty"`
	Key         string       `json:"key,omitempty"`
	Status      Status       `json:"status"`
	Steps       []FunnelStep `json:"steps,omitempty"`
	LastRefresh time.Time    `json:"last_refresh,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Finalized reports whether the result has reached a terminal status.
func (r QueryResult) Finalized() bool {
	return r.Status == StatusReady || r.Status == StatusFailed
}

func cloneResult(r QueryResult) QueryResult {
	out := r
	if r.Steps != nil {
		out.Steps = make([]FunnelStep, len(r.Steps))
		for i, step := range r.Steps {
			out.Steps[i] = step
			if step.Breakdown != nil {
				out.Steps[i].Breakdown = append([]BreakdownSlice(nil), step.Breakdown...)
			}
		}
	}
	return out
}

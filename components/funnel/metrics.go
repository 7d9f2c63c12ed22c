package funnel

// StepReference selects the denominator used when framing percentages.
type StepReference string

const (
	StepReferenceTotal    StepReference = "total"
	StepReferencePrevious StepReference = "previous"
)

// ConversionRate returns count as a percentage of basis, or 0 when basis is 0.
func ConversionRate(count, basis int) float64 {
	if basis == 0 {
		return 0
	}
	return float64(count) / float64(basis) * 100
}

// ReferenceStep returns the step used as denominator for steps[index].
func ReferenceStep(steps []FunnelStep, mode StepReference, index int) FunnelStep {
	if len(steps) == 0 {
		return FunnelStep{}
	}
	if index <= 0 || mode != StepReferencePrevious {
		return steps[0]
	}
	if index > len(steps) {
		index = len(steps)
	}
	return steps[index-1]
}

// DropOff returns the users lost between the previous stage and steps[index], and that
// loss as a percentage. ok is false when the value should not be shown.
func DropOff(steps []FunnelStep, index int) (count int, rate float64, ok bool) {
	if index < 0 || index >= len(steps) || steps[index].Order == 0 {
		return 0, 0, false
	}
	prev := ReferenceStep(steps, StepReferencePrevious, index)
	count = prev.Count - steps[index].Count
	if count <= 0 {
		return 0, 0, false
	}
	return count, 100 - ConversionRate(steps[index].Count, prev.Count), true
}

// SliceDropOff is DropOff for the breakdown slice at position k. A missing slice in the
// reference stage counts as zero.
func SliceDropOff(steps []FunnelStep, index, k int) (count int, rate float64, ok bool) {
	if index < 0 || index >= len(steps) || steps[index].Order == 0 {
		return 0, 0, false
	}
	current, found := steps[index].Slice(k)
	if !found {
		return 0, 0, false
	}
	prev, _ := ReferenceStep(steps, StepReferencePrevious, index).Slice(k)
	count = prev.Count - current.Count
	if count <= 0 {
		return 0, 0, false
	}
	return count, 100 - ConversionRate(current.Count, prev.Count), true
}

// LastNonzeroBreakdownIndex returns the highest slice index with a nonzero count.
func LastNonzeroBreakdownIndex(step FunnelStep) (int, bool) {
	slices := step.Slices()
	for i := len(slices) - 1; i >= 0; i-- {
		if slices[i].Count != 0 {
			return i, true
		}
	}
	return -1, false
}

// StepMetrics is the presentation-ready view of a single stage.
type StepMetrics struct {
	Order                 int            `json:"order"`
	Name                  string         `json:"name"`
	Count                 int            `json:"count"`
	ConversionRate        float64        `json:"conversion_rate"`
	ConversionRateTotal   float64        `json:"conversion_rate_total"`
	DropOffCount          int            `json:"dropoff_count,omitempty"`
	DropOffRate           float64        `json:"dropoff_rate,omitempty"`
	ShowDropOff           bool           `json:"show_dropoff"`
	AverageConversionTime *float64       `json:"average_conversion_time,omitempty"`
	Slices                []SliceMetrics `json:"breakdown,omitempty"`
	LastNonzeroSlice      *int           `json:"last_nonzero_breakdown,omitempty"`
}

// SliceMetrics is the per-segment counterpart of StepMetrics.
type SliceMetrics struct {
	Label          string  `json:"label"`
	Count          int     `json:"count"`
	ConversionRate float64 `json:"conversion_rate"`
	DropOffCount   int     `json:"dropoff_count,omitempty"`
	DropOffRate    float64 `json:"dropoff_rate,omitempty"`
	ShowDropOff    bool    `json:"show_dropoff"`
}

// Derive computes per-step and per-slice metrics using mode for the conversion framing.
func Derive(steps []FunnelStep, mode StepReference) []StepMetrics {
	out := make([]StepMetrics, len(steps))
	for i, step := range steps {
		ref := ReferenceStep(steps, mode, i)
		m := StepMetrics{
			Order:                 step.Order,
			Name:                  step.Name,
			Count:                 step.Count,
			ConversionRate:        ConversionRate(step.Count, ref.Count),
			ConversionRateTotal:   ConversionRate(step.Count, steps[0].Count),
			AverageConversionTime: step.AverageConversionTime,
		}
		m.DropOffCount, m.DropOffRate, m.ShowDropOff = DropOff(steps, i)
		if step.IsSegmented() {
			slices := step.Slices()
			m.Slices = make([]SliceMetrics, len(slices))
			for k, slice := range slices {
				refSlice, _ := ref.Slice(k)
				sm := SliceMetrics{
					Label:          slice.Label,
					Count:          slice.Count,
					ConversionRate: ConversionRate(slice.Count, refSlice.Count),
				}
				sm.DropOffCount, sm.DropOffRate, sm.ShowDropOff = SliceDropOff(steps, i, k)
				m.Slices[k] = sm
			}
			if idx, ok := LastNonzeroBreakdownIndex(step); ok {
				m.LastNonzeroSlice = &idx
			}
		}
		out[i] = m
	}
	return out
}

package funnel

// Aggregate merges per-segment step vectors into one step sequence. Stage i of the output
// sums every segment's stage i count and carries one slice per segment in input order.
// Merged average conversion times are left nil; averaging per-segment averages is not
// meaningful without the underlying distributions.
func Aggregate(segments [][]FunnelStep) ([]FunnelStep, error) {
	if len(segments) == 0 {
		return []FunnelStep{}, nil
	}
	stages := len(segments[0])
	for idx, segment := range segments {
		if len(segment) != stages {
			return nil, &AggregationError{Segment: idx, Expected: stages, Got: len(segment)}
		}
	}

	merged := make([]FunnelStep, stages)
	for i := 0; i < stages; i++ {
		head := segments[0][i]
		slices := make([]BreakdownSlice, len(segments))
		for k, segment := range segments {
			step := segment[i]
			slices[k] = BreakdownSlice{
				Label:                 step.BreakdownValue,
				Order:                 head.Order,
				Count:                 step.Count,
				AverageConversionTime: step.AverageConversionTime,
			}
		}
		merged[i] = SegmentedStep(head.Order, head.Name, slices)
	}
	return merged, nil
}

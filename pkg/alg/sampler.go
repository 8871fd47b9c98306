package alg

import "math/rand"

// ThresholdSampler decides whether a host's usage report should be
// included in a sampled aggregate. A host with usage u is included with
// probability min(u * numSamplesAtApproval / approval, 1), so roughly
// numSamplesAtApproval hosts are sampled when aggregate usage sits at
// the approval.
type ThresholdSampler struct {
	approval float64
	thresh   float64
}

func NewThresholdSampler(numSamplesAtApproval, approval float64) ThresholdSampler {
	return ThresholdSampler{approval: approval, thresh: numSamplesAtApproval / approval}
}

func thresholdSamplingProbOf(approval, thresh, usage float64) float64 {
	if approval == 0 {
		return 1
	}
	p := usage * thresh
	if p > 1 {
		return 1
	}
	return p
}

// ShouldInclude draws from rng and reports whether a host with the
// given usage belongs in the sample.
func (s ThresholdSampler) ShouldInclude(rng *rand.Rand, usage float64) bool {
	prob := thresholdSamplingProbOf(s.approval, s.thresh, usage)
	return rng.Float64() < prob
}

// AggUsageEstimator reconstructs an unbiased estimate of the aggregate
// usage from the sampled hosts (Horvitz-Thompson weighting).
type AggUsageEstimator struct {
	approval float64
	thresh   float64
	est      float64
}

func (s ThresholdSampler) NewAggUsageEstimator() AggUsageEstimator {
	return AggUsageEstimator{approval: s.approval, thresh: s.thresh}
}

func (e *AggUsageEstimator) RecordSample(usage float64) {
	p := thresholdSamplingProbOf(e.approval, e.thresh, usage)
	e.est += usage / p
}

func (e *AggUsageEstimator) EstUsage() float64 { return e.est }

// ValCount is one bucket of an estimated usage distribution.
type ValCount struct {
	Val           float64
	ExpectedCount float64
}

// UsageDistEstimator reconstructs the usage distribution from the
// sampled hosts with the same weighting as AggUsageEstimator.
type UsageDistEstimator struct {
	approval float64
	thresh   float64
	counts   map[float64]int
}

func (s ThresholdSampler) NewUsageDistEstimator() UsageDistEstimator {
	return UsageDistEstimator{approval: s.approval, thresh: s.thresh, counts: make(map[float64]int)}
}

func (e *UsageDistEstimator) RecordSample(usage float64) {
	e.counts[usage]++
}

func (e *UsageDistEstimator) EstDist() []ValCount {
	dist := make([]ValCount, 0, len(e.counts))
	for usage, count := range e.counts {
		p := thresholdSamplingProbOf(e.approval, e.thresh, usage)
		dist = append(dist, ValCount{Val: usage, ExpectedCount: float64(count) / p})
	}
	return dist
}

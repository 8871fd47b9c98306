package alg

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// runSample samples the hosts with the given usages and returns the
// sample count and the estimated aggregate.
func runSample(rng *rand.Rand, s ThresholdSampler, usages []float64) (int, float64) {
	est := s.NewAggUsageEstimator()
	count := 0
	for _, u := range usages {
		if s.ShouldInclude(rng, u) {
			count++
			est.RecordSample(u)
		}
	}
	return count, est.EstUsage()
}

func uniformUsages(n int, total float64) []float64 {
	usages := make([]float64, n)
	for i := range usages {
		usages[i] = total / float64(n)
	}
	return usages
}

func TestThresholdSamplerAtApproval(t *testing.T) {
	const approval = 1000000.0
	const wantSamples = 100.0
	rng := rand.New(rand.NewSource(42))
	s := NewThresholdSampler(wantSamples, approval)
	usages := uniformUsages(10000, approval)

	var sumCount, sumEst float64
	const runs = 100
	for i := 0; i < runs; i++ {
		count, est := runSample(rng, s, usages)
		assert.InDelta(t, wantSamples, float64(count), 0.5*wantSamples)
		sumCount += float64(count)
		sumEst += est
	}
	assert.InDelta(t, wantSamples, sumCount/runs, 0.05*wantSamples)
	assert.InDelta(t, approval, sumEst/runs, 0.05*approval)
}

func TestThresholdSamplerAboveApproval(t *testing.T) {
	const approval = 1000000.0
	const wantSamples = 100.0
	rng := rand.New(rand.NewSource(7))
	s := NewThresholdSampler(wantSamples, approval)
	usages := uniformUsages(10000, 3*approval)

	var sumCount float64
	const runs = 100
	for i := 0; i < runs; i++ {
		count, est := runSample(rng, s, usages)
		assert.GreaterOrEqual(t, float64(count), 0.8*wantSamples)
		assert.InDelta(t, 3*approval, est, 0.25*3*approval)
		sumCount += float64(count)
	}
	assert.GreaterOrEqual(t, sumCount/runs, wantSamples)
}

func TestThresholdSamplerBelowApproval(t *testing.T) {
	const approval = 1000000.0
	const wantSamples = 100.0
	rng := rand.New(rand.NewSource(99))
	s := NewThresholdSampler(wantSamples, approval)
	usages := uniformUsages(10000, approval/4)

	var sumCount float64
	const runs = 100
	for i := 0; i < runs; i++ {
		count, _ := runSample(rng, s, usages)
		assert.LessOrEqual(t, float64(count), 1.2*wantSamples)
		sumCount += float64(count)
	}
	assert.LessOrEqual(t, sumCount/runs, wantSamples)
}

func TestThresholdSamplerZeroApprovalIncludesAll(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := NewThresholdSampler(10, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, s.ShouldInclude(rng, float64(i)))
	}
}

func TestUsageDistEstimatorWeightsByInclusionProb(t *testing.T) {
	s := NewThresholdSampler(10, 1000)
	est := s.NewUsageDistEstimator()
	// A host with usage 50 has inclusion probability 0.5, so each
	// observed sample stands for two hosts.
	est.RecordSample(50)
	est.RecordSample(50)
	est.RecordSample(200) // probability 1

	dist := est.EstDist()
	counts := map[float64]float64{}
	for _, vc := range dist {
		counts[vc.Val] = vc.ExpectedCount
	}
	assert.InDelta(t, 4.0, counts[50], 1e-9)
	assert.InDelta(t, 1.0, counts[200], 1e-9)
}

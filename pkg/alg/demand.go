package alg

import (
	"fmt"
	"time"
)

// UsageHistoryEntry is one (time, bps) sample kept in a FlowState's
// usage history.
type UsageHistoryEntry struct {
	Time time.Time
	Bps  int64
}

// DemandPredictor estimates a flow's future demand from its recent
// usage history.
type DemandPredictor interface {
	FromUsage(now time.Time, history []UsageHistoryEntry) int64
}

// BweDemandPredictor predicts demand as the maximum observed usage
// within the trailing window, scaled by a fixed multiplier and floored
// at a minimum demand.
type BweDemandPredictor struct {
	timeWindow      time.Duration
	usageMultiplier float64
	minDemandBps    int64
}

// NewBweDemandPredictor constructs a BweDemandPredictor. multiplier
// must be positive and minDemandBps must be non-negative.
func NewBweDemandPredictor(window time.Duration, multiplier float64, minDemandBps int64) (*BweDemandPredictor, error) {
	if multiplier <= 0 {
		return nil, fmt.Errorf("alg: usage multiplier must be positive, got %v", multiplier)
	}
	if minDemandBps < 0 {
		return nil, fmt.Errorf("alg: min demand must be non-negative, got %d", minDemandBps)
	}
	return &BweDemandPredictor{
		timeWindow:      window,
		usageMultiplier: multiplier,
		minDemandBps:    minDemandBps,
	}, nil
}

// FromUsage scans history from the newest entry backward, taking the
// largest bps value observed within timeWindow of now.
func (p *BweDemandPredictor) FromUsage(now time.Time, history []UsageHistoryEntry) int64 {
	var maxUsageBps int64
	cutoff := now.Add(-p.timeWindow)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Time.Before(cutoff) {
			break
		}
		if history[i].Bps > maxUsageBps {
			maxUsageBps = history[i].Bps
		}
	}
	est := int64(float64(maxUsageBps) * p.usageMultiplier)
	if est > p.minDemandBps {
		return est
	}
	return p.minDemandBps
}

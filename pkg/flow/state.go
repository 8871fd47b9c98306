package flow

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

var slog = logrus.WithField("component", "flow.State")

const ewmaAlpha = 0.3

// AggState tracks usage for one aggregate flow. Cumulative counters are
// required to be monotone, usage is EWMA-smoothed when requested, and
// every accepted update re-runs the demand predictor over the retained
// usage history.
type AggState struct {
	usageHistory []alg.UsageHistoryEntry
	updatedTime  time.Time
	cur          heyppb.FlowInfo
	smoothUsage  bool
	wasUpdated   bool
	haveBps      bool
}

func NewAggState(flow *heyppb.FlowMarker, smoothUsage bool) *AggState {
	s := &AggState{smoothUsage: smoothUsage}
	s.cur.Flow = flow
	return s
}

func (s *AggState) Flow() *heyppb.FlowMarker         { return s.cur.Flow }
func (s *AggState) UpdatedTime() time.Time           { return s.updatedTime }
func (s *AggState) Cur() *heyppb.FlowInfo            { return &s.cur }
func (s *AggState) History() []alg.UsageHistoryEntry { return s.usageHistory }

// AggUpdate carries one measurement tick for an aggregate.
type AggUpdate struct {
	Time               time.Time
	SumChildUsageBps   int64
	CumHipriUsageBytes int64
	CumLopriUsageBytes int64
	Aux                *heyppb.AuxInfo
}

// UpdateUsage folds one update into the state. Updates older than the
// newest accepted one are dropped with a warning; cumulative counters
// that move backwards are rejected.
func (s *AggState) UpdateUsage(u AggUpdate, usageHistoryWindow time.Duration, predictor alg.DemandPredictor) error {
	cumUsageBytes := u.CumHipriUsageBytes + u.CumLopriUsageBytes
	isLopri := u.CumHipriUsageBytes == s.cur.CumHipriUsageBytes &&
		u.CumLopriUsageBytes > s.cur.CumLopriUsageBytes

	if s.wasUpdated && u.Time.Before(s.updatedTime) {
		slog.WithFields(logrus.Fields{
			"flow":       s.cur.Flow.String(),
			"updateTime": u.Time,
			"lastTime":   s.updatedTime,
		}).Warn("dropping update older than the last accepted one")
		return nil
	}
	if u.CumHipriUsageBytes < s.cur.CumHipriUsageBytes || u.CumLopriUsageBytes < s.cur.CumLopriUsageBytes {
		return fmt.Errorf("flow: cumulative usage decreased: hipri %d -> %d, lopri %d -> %d",
			s.cur.CumHipriUsageBytes, u.CumHipriUsageBytes,
			s.cur.CumLopriUsageBytes, u.CumLopriUsageBytes)
	}

	measuredUsageBps := float64(u.SumChildUsageBps)
	if s.wasUpdated {
		usageBits := 8 * (cumUsageBytes - s.cur.CumUsageBytes)
		if dur := u.Time.Sub(s.updatedTime); dur > 0 {
			meanBps := float64(usageBits) / dur.Seconds()
			if meanBps > measuredUsageBps {
				measuredUsageBps = meanBps
			}
		}
	} else {
		s.wasUpdated = true
		s.updatedTime = u.Time
		s.cur.CurrentlyLopri = isLopri
		s.cur.CumUsageBytes = cumUsageBytes
		s.cur.CumHipriUsageBytes = u.CumHipriUsageBytes
		s.cur.CumLopriUsageBytes = u.CumLopriUsageBytes
		if u.Aux != nil {
			s.cur.AuxInfo = u.Aux
		}
		if measuredUsageBps == 0 {
			// Likely no usage data yet: wait before estimating usage.
			return nil
		}
	}

	if !s.haveBps || !s.smoothUsage {
		s.cur.EwmaUsageBps = measuredUsageBps
		s.haveBps = true
	} else {
		s.cur.EwmaUsageBps = ewmaAlpha*measuredUsageBps + (1-ewmaAlpha)*s.cur.EwmaUsageBps
	}

	s.updatedTime = u.Time
	s.cur.CurrentlyLopri = isLopri
	s.cur.CumUsageBytes = cumUsageBytes
	s.cur.CumHipriUsageBytes = u.CumHipriUsageBytes
	s.cur.CumLopriUsageBytes = u.CumLopriUsageBytes
	if u.Aux != nil {
		s.cur.AuxInfo = u.Aux
	}

	s.usageHistory = append(s.usageHistory, alg.UsageHistoryEntry{Time: u.Time, Bps: int64(s.cur.EwmaUsageBps)})

	// Garbage collect old entries, but allow some delay.
	if u.Time.Sub(s.usageHistory[0].Time) > 2*usageHistoryWindow {
		minTime := u.Time.Add(-usageHistoryWindow)
		keepFrom := len(s.usageHistory)
		for i, e := range s.usageHistory {
			if !e.Time.Before(minTime) {
				keepFrom = i
				break
			}
		}
		s.usageHistory = append(s.usageHistory[:0], s.usageHistory[keepFrom:]...)
	}

	s.cur.PredictedDemandBps = predictor.FromUsage(u.Time, s.usageHistory)
	return nil
}

// LeafState tracks a single connection on a host. It attributes byte
// growth to HIPRI or LOPRI according to the enforcer's view of the
// flow, and always smooths usage.
type LeafState struct {
	impl AggState
}

func NewLeafState(flow *heyppb.FlowMarker) *LeafState {
	s := &LeafState{}
	s.impl.smoothUsage = true
	s.impl.cur.Flow = flow
	return s
}

func (s *LeafState) Flow() *heyppb.FlowMarker { return s.impl.Flow() }
func (s *LeafState) UpdatedTime() time.Time   { return s.impl.UpdatedTime() }
func (s *LeafState) Cur() *heyppb.FlowInfo    { return s.impl.Cur() }

// LeafUpdate carries one socket-inspector measurement.
type LeafUpdate struct {
	Time                  time.Time
	CumUsageBytes         int64
	InstantaneousUsageBps int64
	IsLopri               bool
	Aux                   *heyppb.AuxInfo
}

func (s *LeafState) UpdateUsage(u LeafUpdate, usageHistoryWindow time.Duration, predictor alg.DemandPredictor) error {
	c := s.impl.Cur()
	diff := u.CumUsageBytes - c.CumUsageBytes
	cumHipri := c.CumHipriUsageBytes
	cumLopri := c.CumLopriUsageBytes
	if u.IsLopri {
		cumLopri += diff
	} else {
		cumHipri += diff
	}
	return s.impl.UpdateUsage(AggUpdate{
		Time:               u.Time,
		SumChildUsageBps:   u.InstantaneousUsageBps,
		CumHipriUsageBytes: cumHipri,
		CumLopriUsageBytes: cumLopri,
		Aux:                u.Aux,
	}, usageHistoryWindow, predictor)
}

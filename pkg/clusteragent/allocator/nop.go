package allocator

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

var noplog = logrus.WithField("component", "allocator.Nop")

// NopAllocator grants nothing: enforcement stays disabled while the
// telemetry path is still exercised end to end.
type NopAllocator struct{}

func NewNopAllocator() *NopAllocator { return &NopAllocator{} }

func (*NopAllocator) AllocAgg(now time.Time, _ *heyppb.AggInfo, _ *DebugState) ([]*heyppb.FlowAlloc, error) {
	noplog.WithField("time", now).Debug("returning empty alloc")
	return nil, nil
}

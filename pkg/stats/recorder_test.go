package stats

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderQuantiles(t *testing.T) {
	r := NewRecorder(10_000_000, 3)
	for i := int64(1); i <= 1000; i++ {
		r.Record("latency", i)
	}

	assert.Equal(t, int64(1000), r.Count("latency"))
	assert.InDelta(t, 500, r.Quantile("latency", 50), 5)
	assert.InDelta(t, 990, r.Quantile("latency", 99), 10)
}

func TestRecorderClampsOutOfRange(t *testing.T) {
	r := NewRecorder(1000, 2)
	r.Record("x", -5)
	r.Record("x", 5_000_000)
	assert.Equal(t, int64(2), r.Count("x"))
}

func TestRecorderUnknownName(t *testing.T) {
	r := NewRecorder(1000, 2)
	assert.Zero(t, r.Count("nope"))
	assert.Zero(t, r.Quantile("nope", 99))
}

func TestRecorderDump(t *testing.T) {
	r := NewRecorder(1_000_000, 3)
	r.RecordDur("tick", 1500*time.Microsecond)

	var buf bytes.Buffer
	require.NoError(t, r.DumpSummaries(&buf))
	assert.Contains(t, buf.String(), "tick: count=1")
}

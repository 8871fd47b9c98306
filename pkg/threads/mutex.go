package threads

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var mulog = logrus.WithField("component", "threads.TimedMutex")

// TimedMutex is a sync.Mutex that logs a warning when acquisition takes
// longer than a caller-provided threshold. Acquisition still succeeds;
// the warning only surfaces contention.
type TimedMutex struct {
	mu sync.Mutex
}

// LockWarn acquires the mutex, warning if the wait exceeds thresh.
func (m *TimedMutex) LockWarn(thresh time.Duration, label string) {
	start := time.Now()
	m.mu.Lock()
	if waited := time.Since(start); waited > thresh {
		mulog.WithFields(logrus.Fields{
			"label":  label,
			"waited": waited,
		}).Warn("slow mutex acquisition")
	}
}

func (m *TimedMutex) Lock()   { m.mu.Lock() }
func (m *TimedMutex) Unlock() { m.mu.Unlock() }

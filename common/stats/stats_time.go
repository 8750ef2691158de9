package stats

import (
	"time"
)

// StatsTime is the clock used by latencies.
type StatsTime interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

type defaultStatsTime struct{}

func (defaultStatsTime) Now() time.Time                  { return time.Now() }
func (defaultStatsTime) Since(t time.Time) time.Duration { return time.Since(t) }

func DefaultStatsTime() StatsTime { return defaultStatsTime{} }

type testStatsTime struct {
	now   time.Time
	since time.Duration
}

func (t testStatsTime) Now() time.Time                { return t.now }
func (t testStatsTime) Since(time.Time) time.Duration { return t.since }

// NewTestTime returns a clock frozen at now where every latency measures since.
func NewTestTime(now time.Time, since time.Duration) StatsTime {
	return testStatsTime{now, since}
}

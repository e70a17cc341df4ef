package profile

import (
	"strconv"
	"sync"
	"time"
)

// IDGenerator hands out time-derived ids that stay unique within the process
// even when two are requested in the same millisecond.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDGenerator creates a generator reading the given clock.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns the next id in the form user_<unix millis>.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return "user_" + strconv.FormatInt(ms, 10)
}

var defaultIDs = NewIDGenerator(time.Now)

// NewID returns a fresh profile id from the process-wide generator.
func NewID() string { return defaultIDs.Next() }

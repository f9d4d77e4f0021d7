// Package lag maintains a rolling per-minute history of how far behind the
// server tick loop is running.
package lag

import (
	"context"
	"sync"
	"time"

	"craftbot/internal/mclog"
	"craftbot/pkg/logx"
)

// DefaultHorizon is 4 hours of 1-minute samples.
const DefaultHorizon = 240

// TickInterval is the fixed sampling cadence. The windowing math assumes
// samples are exactly one tick apart.
const TickInterval = time.Minute

// Tracker appends one lag sample per tick and bounds the backing buffer to a
// fixed horizon (FIFO eviction).
type Tracker struct {
	mu      sync.Mutex
	samples []float64
	horizon int

	extractor *mclog.Extractor
	source    func() string
	now       func() time.Time
	log       logx.Logger
}

func NewTracker(extractor *mclog.Extractor, source func() string, log logx.Logger) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{
		horizon:   DefaultHorizon,
		extractor: extractor,
		source:    source,
		now:       time.Now,
		log:       log,
	}
}

// Tick re-scans the log for lag warnings within the last tick interval and
// appends their total (in seconds) as one new sample.
func (t *Tracker) Tick(ctx context.Context) error {
	_ = ctx
	since := t.now().Add(-TickInterval)
	var total float64
	for _, ev := range t.extractor.ExtractLagWarnings(t.source(), since) {
		total += float64(ev.BehindMS) / 1000
	}
	t.Append(total)
	t.log.Debug("lag sample recorded", logx.Float64("seconds", total))
	return nil
}

// Append adds one sample, evicting the oldest when the horizon is exceeded.
func (t *Tracker) Append(seconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, seconds)
	if len(t.samples) > t.horizon {
		t.samples = t.samples[len(t.samples)-t.horizon:]
	}
}

// WindowSum returns the sum of the most recent n samples, clamped to the
// buffer length.
func (t *Tracker) WindowSum(n int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 {
		return 0
	}
	if n > len(t.samples) {
		n = len(t.samples)
	}
	var sum float64
	for _, s := range t.samples[len(t.samples)-n:] {
		sum += s
	}
	return sum
}

// Len reports the current buffer length.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

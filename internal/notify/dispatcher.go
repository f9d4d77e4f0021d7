// Package notify fans server observations out to subscribed operators as
// direct messages, with a per-category cooldown so a persistent condition
// does not flood anyone.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"craftbot/internal/mclog"
	"craftbot/internal/state"
	"craftbot/internal/transport"
	"craftbot/pkg/logx"
)

type Config struct {
	// Cooldown is the minimum gap between alerts of the same category.
	Cooldown time.Duration
	// LagWindow and LagThreshold define the alert condition: total seconds
	// the server fell behind over the window.
	LagWindow    time.Duration
	LagThreshold float64
}

type Dispatcher struct {
	adapter transport.Adapter
	store   *state.Store
	cfg     Config
	limiter *rate.Limiter
	log     logx.Logger
	now     func() time.Time

	mu       sync.Mutex
	lastSent map[state.Category]time.Time

	joinSeeded bool
	online     map[string]bool
}

func NewDispatcher(adapter transport.Adapter, store *state.Store, cfg Config, log logx.Logger) *Dispatcher {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		adapter:  adapter,
		store:    store,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 25),
		log:      log,
		now:      time.Now,
		lastSent: make(map[state.Category]time.Time),
		online:   make(map[string]bool),
	}
}

func (d *Dispatcher) onCooldown(cat state.Category) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastSent[cat]
	return ok && d.now().Sub(last) < d.cfg.Cooldown
}

func (d *Dispatcher) markSent(cat state.Category) {
	d.mu.Lock()
	d.lastSent[cat] = d.now()
	d.mu.Unlock()
}

func (d *Dispatcher) send(ctx context.Context, id int64, text string) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}
	if _, err := d.adapter.SendText(ctx, transport.UserTarget(id), text, nil); err != nil {
		d.log.Warn("notification delivery failed", logx.Int64("user", id), logx.Err(err))
	}
}

// CheckJoins diffs the online roster against the previous poll and messages
// join subscribers about new arrivals. The first roster after startup only
// seeds the baseline, so a restart never replays joins of players who were
// already on.
func (d *Dispatcher) CheckJoins(ctx context.Context, online []string) {
	d.mu.Lock()
	if !d.joinSeeded {
		d.joinSeeded = true
		d.online = toSet(online)
		d.mu.Unlock()
		return
	}
	var joined []string
	next := toSet(online)
	for name := range next {
		if !d.online[name] {
			joined = append(joined, name)
		}
	}
	d.online = next
	d.mu.Unlock()

	if len(joined) == 0 {
		return
	}
	sort.Strings(joined)
	text := fmt.Sprintf("%s joined the game.", joinNames(joined))

	for _, sub := range d.store.JoinSubs() {
		// Nobody needs a ping that they alone just joined.
		if len(joined) == 1 && sub.Player != "" && joined[0] == sub.Player {
			continue
		}
		d.send(ctx, sub.ID, text)
	}
}

// CheckLag alerts lag subscribers when the behind-time accumulated over the
// window exceeds the threshold. Exactly at the threshold is not an alert.
func (d *Dispatcher) CheckLag(ctx context.Context, windowSum float64) {
	if windowSum <= d.cfg.LagThreshold || d.onCooldown(state.CategoryLag) {
		return
	}
	subs := d.store.Subscribers(state.CategoryLag)
	if len(subs) == 0 {
		return
	}
	text := fmt.Sprintf("Server lag: fell %.1fs behind over the last %s.",
		windowSum, formatWindow(d.cfg.LagWindow))
	for _, id := range subs {
		d.send(ctx, id, text)
	}
	d.markSent(state.CategoryLag)
}

// CheckChunks alerts chunk subscribers while the oversized-chunk counter is
// nonzero. A persistent condition re-alerts each time the cooldown lapses;
// the cooldown is the only spam guard.
func (d *Dispatcher) CheckChunks(ctx context.Context, count int) {
	if count <= 0 || d.onCooldown(state.CategoryChunks) {
		return
	}
	subs := d.store.Subscribers(state.CategoryChunks)
	if len(subs) == 0 {
		return
	}
	text := fmt.Sprintf("Oversized chunks: %d oversized chunk save(s) in the current log.", count)
	for _, id := range subs {
		d.send(ctx, id, text)
	}
	d.markSent(state.CategoryChunks)
}

// CheckErrors forwards pattern matches from the log to error subscribers,
// one message per match. The cooldown is set once per run.
func (d *Dispatcher) CheckErrors(ctx context.Context, matches []mclog.ErrorMatch) {
	if len(matches) == 0 || d.onCooldown(state.CategoryErrors) {
		return
	}
	subs := d.store.Subscribers(state.CategoryErrors)
	if len(subs) == 0 {
		return
	}
	for _, id := range subs {
		for _, m := range matches {
			text := "Server log error: " + m.Line
			if m.Explanation != "" {
				text += "\n" + m.Explanation
			}
			d.send(ctx, id, text)
		}
	}
	d.markSent(state.CategoryErrors)
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// joinNames renders "a", "a and b", or "a, b, and c".
func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}

func formatWindow(d time.Duration) string {
	if d <= 0 {
		d = 10 * time.Minute
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}

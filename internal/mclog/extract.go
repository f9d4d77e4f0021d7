package mclog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"craftbot/pkg/logx"
)

// NoChatPlaceholder is the single entry returned when no chat lines are found.
// Callers must not treat it as an error.
const NoChatPlaceholder = "No recent chat lines found."

// Extractor turns raw log sources into typed events.
//
// Sources that cannot be opened or decompressed are skipped with a warning;
// partial results are always preferred over no results.
type Extractor struct {
	log logx.Logger
}

func NewExtractor(log logx.Logger) *Extractor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Extractor{log: log}
}

// scan streams every source through the tokenizer, keeping events the filter
// accepts. Events within one source stay in file order.
func (x *Extractor) scan(sources []string, keep func(Event) bool) []Event {
	var events []Event
	for _, src := range sources {
		err := forEachLine(src, func(line string) {
			ev := ParseLine(line)
			if keep(ev) {
				events = append(events, ev)
			}
		})
		if err != nil {
			x.log.Warn("log source skipped", logx.String("source", src), logx.Err(err))
		}
	}
	return events
}

// sortChronological orders events ascending by timestamp. Events whose
// timestamp failed to parse sort before all known-time events; among
// themselves they keep scan order.
func sortChronological(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.HasTime() != b.HasTime() {
			return !a.HasTime()
		}
		if !a.HasTime() {
			return false
		}
		return a.Time.Before(b.Time)
	})
}

// ExtractChat returns the last limit chat lines across all sources,
// chronologically ordered and formatted as "HH:MM <message>". Duplicate
// lines appearing in overlapping rotated sources are collapsed.
//
// Never returns an empty slice: when nothing matches, the result is exactly
// one placeholder entry.
func (x *Extractor) ExtractChat(sources []string, limit int) []string {
	if limit <= 0 {
		limit = 10
	}

	seen := make(map[string]struct{})
	events := x.scan(sources, func(ev Event) bool {
		if ev.Kind != KindChat {
			return false
		}
		key := ev.Time.Format(time.RFC3339Nano) + "|" + ev.Message
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	})

	if len(events) == 0 {
		return []string{NoChatPlaceholder}
	}

	sortChronological(events)
	if len(events) > limit {
		events = events[len(events)-limit:]
	}

	out := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.HasTime() {
			out = append(out, fmt.Sprintf("%s %s", ev.Time.Format("15:04"), ev.Message))
		} else {
			out = append(out, ev.Message)
		}
	}
	return out
}

// ExtractJoinLeave returns join/leave events from one source in file order.
func (x *Extractor) ExtractJoinLeave(source string) []Event {
	return x.scan([]string{source}, func(ev Event) bool {
		return ev.Kind == KindJoin || ev.Kind == KindLeave
	})
}

// ExtractLagWarnings returns lag warnings with timestamps at or after since.
func (x *Extractor) ExtractLagWarnings(source string, since time.Time) []Event {
	return x.scan([]string{source}, func(ev Event) bool {
		return ev.Kind == KindLagWarning && ev.HasTime() && !ev.Time.Before(since)
	})
}

// ExtractGenericErrors scans one source for caller-supplied substring
// patterns, filtered to lines timestamped at or after since. Lines without a
// parseable timestamp are kept (their age is unknown, dropping them could
// hide live errors).
func (x *Extractor) ExtractGenericErrors(source string, since time.Time, patterns map[string]string) []ErrorMatch {
	if len(patterns) == 0 {
		return nil
	}
	keys := make([]string, 0, len(patterns))
	for k := range patterns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var matches []ErrorMatch
	events := x.scan([]string{source}, func(ev Event) bool {
		return !ev.HasTime() || !ev.Time.Before(since)
	})
	for _, ev := range events {
		for _, pattern := range keys {
			if strings.Contains(ev.Raw, pattern) {
				matches = append(matches, ErrorMatch{
					Time:        ev.Time,
					Line:        StripPreamble(ev.Raw),
					Pattern:     pattern,
					Explanation: patterns[pattern],
				})
			}
		}
	}
	return matches
}

// CountOversizedChunks counts "Saving oversized chunk" occurrences in source.
func (x *Extractor) CountOversizedChunks(source string) int {
	return len(x.scan([]string{source}, func(ev Event) bool {
		return ev.Kind == KindOversizedChunk
	}))
}

// LatestLagWarning returns the newest lag warning in source, if any.
func (x *Extractor) LatestLagWarning(source string) (Event, bool) {
	events := x.scan([]string{source}, func(ev Event) bool {
		return ev.Kind == KindLagWarning && ev.HasTime()
	})
	if len(events) == 0 {
		return Event{}, false
	}
	latest := events[0]
	for _, ev := range events[1:] {
		if ev.Time.After(latest.Time) {
			latest = ev
		}
	}
	return latest, true
}

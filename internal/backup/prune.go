package backup

import (
	"os"
	"sort"
	"time"

	"craftbot/pkg/logx"
)

// dedupTargetHour is the time of day the frequent tier keeps its one
// representative archive closest to.
const dedupTargetHour = 5

// Prune applies the two-tier retention policy and returns how many archives
// were deleted.
//
// Tier 1 (sparse cutoff): archives older than SparseAge are deleted
// unconditionally. Tier 2 (frequent dedup): among the survivors older than
// FrequentAge, each calendar day keeps only the archive whose time of day is
// closest to 05:00. Archives younger than FrequentAge are never touched.
func (s *Service) Prune(now time.Time) (int, error) {
	entries, err := s.list()
	if err != nil {
		return 0, err
	}

	deleted := 0
	remove := func(e Entry, tier string) {
		if err := os.Remove(e.Path); err != nil {
			s.log.Warn("failed to delete archive", logx.String("archive", e.Path), logx.Err(err))
			return
		}
		deleted++
		s.log.Info("archive pruned", logx.String("archive", e.Name), logx.String("tier", tier))
	}

	// Tier 1: archives past the sparse cutoff are gone regardless of grouping,
	// and are excluded from tier 2 below.
	var survivors []Entry
	for _, e := range entries {
		if now.Sub(e.ModTime) > s.cfg.SparseAge {
			remove(e, "sparse")
			continue
		}
		survivors = append(survivors, e)
	}

	// Tier 2: per-calendar-day dedup among archives past the frequent cutoff.
	byDay := make(map[string][]Entry)
	for _, e := range survivors {
		if now.Sub(e.ModTime) <= s.cfg.FrequentAge {
			continue
		}
		day := e.ModTime.Format("2006-01-02")
		byDay[day] = append(byDay[day], e)
	}
	for _, group := range byDay {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].ModTime.Before(group[j].ModTime) })
		keep := 0
		for i := 1; i < len(group); i++ {
			if distanceFromTarget(group[i].ModTime) < distanceFromTarget(group[keep].ModTime) {
				keep = i
			}
		}
		for i, e := range group {
			if i != keep {
				remove(e, "frequent")
			}
		}
	}

	return deleted, nil
}

// distanceFromTarget is the absolute difference between an archive's time of
// day and the 05:00 target.
func distanceFromTarget(ts time.Time) time.Duration {
	target := time.Date(ts.Year(), ts.Month(), ts.Day(), dedupTargetHour, 0, 0, 0, ts.Location())
	d := ts.Sub(target)
	if d < 0 {
		d = -d
	}
	return d
}

// Package presence assembles the one-line server status shown to operators.
package presence

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"craftbot/pkg/logx"
)

// displayWindow is how many recent one-minute lag buckets feed the status
// line. Alerting uses its own, wider window.
const displayWindow = 5

type Snapshot struct {
	Online    bool
	Players   []string
	LagRecent float64 // seconds behind over the display window
	ExtChunks int
	Line      string
}

// Service polls the data sources and caches the latest snapshot so command
// handlers never block on RCON.
type Service struct {
	players func(ctx context.Context) ([]string, error)
	lagSum  func(buckets int) float64
	chunks  func() (int, error)
	log     logx.Logger

	mu   sync.Mutex
	last Snapshot
}

func New(
	players func(ctx context.Context) ([]string, error),
	lagSum func(buckets int) float64,
	chunks func() (int, error),
	log logx.Logger,
) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{players: players, lagSum: lagSum, chunks: chunks, log: log,
		last: Snapshot{Line: "status unknown"}}
}

// Refresh gathers a fresh snapshot. An RCON failure marks the server
// offline rather than failing the refresh; the other sources are local.
func (s *Service) Refresh(ctx context.Context) Snapshot {
	snap := Snapshot{Online: true}

	players, err := s.players(ctx)
	if err != nil {
		s.log.Debug("player query failed, reporting offline", logx.Err(err))
		snap.Online = false
	} else {
		snap.Players = players
	}

	snap.LagRecent = s.lagSum(displayWindow)

	if n, err := s.chunks(); err != nil {
		s.log.Warn("oversized chunk count failed", logx.Err(err))
	} else {
		snap.ExtChunks = n
	}

	snap.Line = buildLine(snap)

	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
	return snap
}

// Last returns the most recent snapshot without touching any data source.
func (s *Service) Last() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func buildLine(snap Snapshot) string {
	if !snap.Online {
		return "server offline"
	}
	parts := []string{playerPart(len(snap.Players))}
	if snap.LagRecent > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs behind in last %dm", snap.LagRecent, displayWindow))
	}
	if snap.ExtChunks > 0 {
		parts = append(parts, fmt.Sprintf("%d oversized chunks", snap.ExtChunks))
	}
	return strings.Join(parts, ", ")
}

func playerPart(n int) string {
	switch n {
	case 0:
		return "empty"
	case 1:
		return "1 player online"
	default:
		return fmt.Sprintf("%d players online", n)
	}
}

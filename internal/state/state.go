// Package state persists operator subscriptions and the player roster
// between restarts. The file is plain YAML so operators can inspect and
// hand-edit it while the bot is down.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.yaml.in/yaml/v3"
)

// Category selects one of the independent notification subscriber sets.
type Category string

const (
	CategoryLag    Category = "server_lag"
	CategoryChunks Category = "external_chunks"
	CategoryErrors Category = "generic_errors"
)

// JoinSub ties a subscriber to the player name they want join reports for.
// An empty Player means every player.
type JoinSub struct {
	ID     int64  `yaml:"id"`
	Player string `yaml:"player,omitempty"`
}

type fileState struct {
	JoinSubs    []JoinSub `yaml:"join_subs,omitempty"`
	LagSubs     []int64   `yaml:"lag_subs,omitempty"`
	ChunkSubs   []int64   `yaml:"chunk_subs,omitempty"`
	ErrorSubs   []int64   `yaml:"error_subs,omitempty"`
	PlayersDay  []string  `yaml:"players_today,omitempty"`
	PlayersEver []string  `yaml:"players_ever,omitempty"`

	// Operator edits to the restart schedule, layered over the config file's
	// times: adds extend the schedule, removes mask entries (config included).
	RestartAdds    []string `yaml:"restart_adds,omitempty"`
	RestartRemoves []string `yaml:"restart_removes,omitempty"`
}

// Store is safe for concurrent use. Every mutation is written through to
// disk before the call returns.
type Store struct {
	mu   sync.Mutex
	path string
	st   fileState
}

// Open loads the state file, treating a missing file as empty state.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.st); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) save() error {
	raw, err := yaml.Marshal(&s.st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// SubscribeJoin adds a join subscription for the given player filter.
// Re-subscribing with the same pair is a no-op.
func (s *Store) SubscribeJoin(id int64, player string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.st.JoinSubs {
		if sub.ID == id && sub.Player == player {
			return nil
		}
	}
	s.st.JoinSubs = append(s.st.JoinSubs, JoinSub{ID: id, Player: player})
	return s.save()
}

// UnsubscribeJoin removes every join subscription held by id.
func (s *Store) UnsubscribeJoin(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.st.JoinSubs[:0]
	for _, sub := range s.st.JoinSubs {
		if sub.ID != id {
			kept = append(kept, sub)
		}
	}
	s.st.JoinSubs = kept
	return s.save()
}

// JoinSubs returns a copy of the join subscription list.
func (s *Store) JoinSubs() []JoinSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]JoinSub(nil), s.st.JoinSubs...)
}

func (s *Store) set(cat Category) *[]int64 {
	switch cat {
	case CategoryLag:
		return &s.st.LagSubs
	case CategoryChunks:
		return &s.st.ChunkSubs
	default:
		return &s.st.ErrorSubs
	}
}

// Subscribe adds id to the category's subscriber set.
func (s *Store) Subscribe(cat Category, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.set(cat)
	for _, v := range *set {
		if v == id {
			return nil
		}
	}
	*set = append(*set, id)
	return s.save()
}

// Unsubscribe removes id from the category's subscriber set.
func (s *Store) Unsubscribe(cat Category, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.set(cat)
	kept := (*set)[:0]
	for _, v := range *set {
		if v != id {
			kept = append(kept, v)
		}
	}
	*set = kept
	return s.save()
}

// Subscribers returns a copy of the category's subscriber set.
func (s *Store) Subscribers(cat Category) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), *s.set(cat)...)
}

// Subscribed reports whether id is in the category's subscriber set.
func (s *Store) Subscribed(cat Category, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range *s.set(cat) {
		if v == id {
			return true
		}
	}
	return false
}

// RecordPlayers merges names into both rosters and reports the names that
// were not yet in today's roster.
func (s *Store) RecordPlayers(names []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fresh []string
	for _, n := range names {
		if !contains(s.st.PlayersDay, n) {
			fresh = append(fresh, n)
			s.st.PlayersDay = append(s.st.PlayersDay, n)
		}
		if !contains(s.st.PlayersEver, n) {
			s.st.PlayersEver = append(s.st.PlayersEver, n)
		}
	}
	if fresh == nil {
		return nil, nil
	}
	return fresh, s.save()
}

// PlayersToday returns today's roster, sorted.
func (s *Store) PlayersToday() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.st.PlayersDay...)
	sort.Strings(out)
	return out
}

// PlayersEver returns all names ever observed, sorted.
func (s *Store) PlayersEver() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.st.PlayersEver...)
	sort.Strings(out)
	return out
}

// ResetDay clears today's roster. Called at local midnight.
func (s *Store) ResetDay() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.PlayersDay = nil
	return s.save()
}

// AddRestartTime schedules an extra restart time and clears any mask on it.
func (s *Store) AddRestartTime(t string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.RestartRemoves = without(s.st.RestartRemoves, t)
	if !contains(s.st.RestartAdds, t) {
		s.st.RestartAdds = append(s.st.RestartAdds, t)
	}
	return s.save()
}

// RemoveRestartTime masks a restart time, whether it came from the config
// file or a prior add.
func (s *Store) RemoveRestartTime(t string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.RestartAdds = without(s.st.RestartAdds, t)
	if !contains(s.st.RestartRemoves, t) {
		s.st.RestartRemoves = append(s.st.RestartRemoves, t)
	}
	return s.save()
}

// RestartOverrides returns copies of the operator add and remove lists.
func (s *Store) RestartOverrides() (adds, removes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.st.RestartAdds...),
		append([]string(nil), s.st.RestartRemoves...)
}

func without(ss []string, v string) []string {
	kept := ss[:0]
	for _, s := range ss {
		if s != v {
			kept = append(kept, s)
		}
	}
	return kept
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

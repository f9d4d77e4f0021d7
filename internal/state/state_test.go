package state

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestMissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.yaml"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := s.Subscribers(CategoryLag); len(got) != 0 {
		t.Fatalf("fresh store has subscribers: %v", got)
	}
	if got := s.PlayersToday(); len(got) != 0 {
		t.Fatalf("fresh store has players: %v", got)
	}
}

func TestSubscriptionsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Subscribe(CategoryLag, 100); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := s.Subscribe(CategoryLag, 100); err != nil {
		t.Fatalf("duplicate subscribe: %v", err)
	}
	if err := s.Subscribe(CategoryChunks, 200); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := s.SubscribeJoin(100, "Alice"); err != nil {
		t.Fatalf("join subscribe: %v", err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reloaded.Subscribers(CategoryLag); !reflect.DeepEqual(got, []int64{100}) {
		t.Fatalf("lag subs = %v, want [100]", got)
	}
	if !reloaded.Subscribed(CategoryChunks, 200) {
		t.Fatal("chunk sub lost across reload")
	}
	if reloaded.Subscribed(CategoryChunks, 100) {
		t.Fatal("unexpected chunk sub for 100")
	}
	if got := reloaded.JoinSubs(); len(got) != 1 || got[0] != (JoinSub{ID: 100, Player: "Alice"}) {
		t.Fatalf("join subs = %v", got)
	}

	if err := reloaded.Unsubscribe(CategoryLag, 100); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if got := reloaded.Subscribers(CategoryLag); len(got) != 0 {
		t.Fatalf("lag subs after unsubscribe = %v", got)
	}
	if err := reloaded.UnsubscribeJoin(100); err != nil {
		t.Fatalf("join unsubscribe: %v", err)
	}
	if got := reloaded.JoinSubs(); len(got) != 0 {
		t.Fatalf("join subs after unsubscribe = %v", got)
	}
}

func TestRestartTimeOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.AddRestartTime("04:00"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddRestartTime("04:00"); err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	if err := s.RemoveRestartTime("06:00"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	adds, removes := reloaded.RestartOverrides()
	if !reflect.DeepEqual(adds, []string{"04:00"}) {
		t.Fatalf("adds = %v", adds)
	}
	if !reflect.DeepEqual(removes, []string{"06:00"}) {
		t.Fatalf("removes = %v", removes)
	}

	// Adding a masked time clears the mask; removing an added time clears
	// the add.
	if err := reloaded.AddRestartTime("06:00"); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if err := reloaded.RemoveRestartTime("04:00"); err != nil {
		t.Fatalf("remove added: %v", err)
	}
	adds, removes = reloaded.RestartOverrides()
	if !reflect.DeepEqual(adds, []string{"06:00"}) {
		t.Fatalf("adds = %v", adds)
	}
	if !reflect.DeepEqual(removes, []string{"04:00"}) {
		t.Fatalf("removes = %v", removes)
	}
}

func TestRecordPlayersAndReset(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.yaml"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	fresh, err := s.RecordPlayers([]string{"Bob", "Alice"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !reflect.DeepEqual(fresh, []string{"Bob", "Alice"}) {
		t.Fatalf("fresh = %v", fresh)
	}

	fresh, err = s.RecordPlayers([]string{"Alice", "Carol"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !reflect.DeepEqual(fresh, []string{"Carol"}) {
		t.Fatalf("fresh = %v, want [Carol]", fresh)
	}

	if got := s.PlayersToday(); !reflect.DeepEqual(got, []string{"Alice", "Bob", "Carol"}) {
		t.Fatalf("today = %v", got)
	}

	if err := s.ResetDay(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := s.PlayersToday(); len(got) != 0 {
		t.Fatalf("today after reset = %v", got)
	}
	if got := s.PlayersEver(); !reflect.DeepEqual(got, []string{"Alice", "Bob", "Carol"}) {
		t.Fatalf("ever = %v", got)
	}
}

package notify

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"craftbot/internal/mclog"
	"craftbot/internal/state"
	"craftbot/internal/transport"
	"craftbot/pkg/logx"
)

type recordingAdapter struct {
	mu   sync.Mutex
	sent []sentMsg
}

type sentMsg struct {
	chatID int64
	text   string
}

func (r *recordingAdapter) Start(ctx context.Context) error { return nil }
func (r *recordingAdapter) Stop(ctx context.Context) error  { return nil }
func (r *recordingAdapter) Handle(string, func(context.Context, transport.Command) error) {
}

func (r *recordingAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMsg{chatID: to.ChatID, text: text})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(r.sent)}, nil
}

func (r *recordingAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	return nil
}

func (r *recordingAdapter) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	return nil
}

func (r *recordingAdapter) messages() []sentMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMsg(nil), r.sent...)
}

func newTestDispatcher(t *testing.T, cfg Config) (*Dispatcher, *recordingAdapter, *state.Store) {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.yaml"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	adapter := &recordingAdapter{}
	return NewDispatcher(adapter, store, cfg, logx.Nop()), adapter, store
}

func TestJoinFirstObservationSeedsOnly(t *testing.T) {
	d, adapter, store := newTestDispatcher(t, Config{Cooldown: time.Hour})
	if err := store.SubscribeJoin(1, ""); err != nil {
		t.Fatal(err)
	}

	d.CheckJoins(context.Background(), []string{"Alice", "Bob"})
	if got := adapter.messages(); len(got) != 0 {
		t.Fatalf("seed poll sent %d messages", len(got))
	}

	d.CheckJoins(context.Background(), []string{"Alice", "Bob", "Carol"})
	got := adapter.messages()
	if len(got) != 1 {
		t.Fatalf("sent %d messages, want 1", len(got))
	}
	if got[0].text != "Carol joined the game." {
		t.Fatalf("text = %q", got[0].text)
	}
}

func TestJoinSoleJoinerSelfSuppressed(t *testing.T) {
	d, adapter, store := newTestDispatcher(t, Config{Cooldown: time.Hour})
	if err := store.SubscribeJoin(1, "Bob"); err != nil {
		t.Fatal(err)
	}
	if err := store.SubscribeJoin(2, "Alice"); err != nil {
		t.Fatal(err)
	}

	d.CheckJoins(context.Background(), nil)
	d.CheckJoins(context.Background(), []string{"Bob"})

	got := adapter.messages()
	if len(got) != 1 {
		t.Fatalf("sent %d messages, want 1", len(got))
	}
	if got[0].chatID != 2 {
		t.Fatalf("message went to %d, want 2", got[0].chatID)
	}

	// When Bob is one of several joiners his subscriber still hears about it.
	d.CheckJoins(context.Background(), []string{"Bob", "Carol", "Dave"})
	got = adapter.messages()
	if len(got) != 3 {
		t.Fatalf("sent %d messages total, want 3", len(got))
	}
	if got[1].text != "Bob, Carol, and Dave joined the game." {
		t.Fatalf("text = %q", got[1].text)
	}
}

func TestLagCooldownSuppressesRepeat(t *testing.T) {
	d, adapter, store := newTestDispatcher(t, Config{
		Cooldown:     time.Hour,
		LagWindow:    10 * time.Minute,
		LagThreshold: 60,
	})
	if err := store.Subscribe(state.CategoryLag, 5); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	d.CheckLag(context.Background(), 30) // under threshold
	d.CheckLag(context.Background(), 60) // exactly at threshold, still no alert
	d.CheckLag(context.Background(), 90)
	d.CheckLag(context.Background(), 120) // inside cooldown

	got := adapter.messages()
	if len(got) != 1 {
		t.Fatalf("sent %d messages, want 1", len(got))
	}
	if !strings.Contains(got[0].text, "90.0s") || !strings.Contains(got[0].text, "10 minutes") {
		t.Fatalf("text = %q", got[0].text)
	}

	now = now.Add(2 * time.Hour)
	d.CheckLag(context.Background(), 75)
	if got := adapter.messages(); len(got) != 2 {
		t.Fatalf("sent %d messages after cooldown lapse, want 2", len(got))
	}
}

func TestChunkNonzeroCounterAlerts(t *testing.T) {
	d, adapter, store := newTestDispatcher(t, Config{Cooldown: time.Hour})
	if err := store.Subscribe(state.CategoryChunks, 9); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	// A counter that is already nonzero on the very first check alerts.
	d.CheckChunks(context.Background(), 4)
	got := adapter.messages()
	if len(got) != 1 {
		t.Fatalf("sent %d messages, want 1", len(got))
	}
	if !strings.Contains(got[0].text, "4 oversized chunk") {
		t.Fatalf("text = %q", got[0].text)
	}

	// Unchanged counter inside the cooldown stays quiet.
	d.CheckChunks(context.Background(), 4)
	if got := adapter.messages(); len(got) != 1 {
		t.Fatalf("sent %d messages inside cooldown, want 1", len(got))
	}

	// A persistent condition re-alerts once the cooldown lapses.
	now = now.Add(2 * time.Hour)
	d.CheckChunks(context.Background(), 4)
	if got := adapter.messages(); len(got) != 2 {
		t.Fatalf("sent %d messages after cooldown lapse, want 2", len(got))
	}
}

func TestChunkZeroCounterIsQuiet(t *testing.T) {
	d, adapter, store := newTestDispatcher(t, Config{Cooldown: time.Nanosecond})
	if err := store.Subscribe(state.CategoryChunks, 9); err != nil {
		t.Fatal(err)
	}
	d.CheckChunks(context.Background(), 0)
	if got := adapter.messages(); len(got) != 0 {
		t.Fatalf("zero counter sent %d messages", len(got))
	}
}

func TestErrorsOneMessagePerMatch(t *testing.T) {
	d, adapter, store := newTestDispatcher(t, Config{Cooldown: time.Hour})
	if err := store.Subscribe(state.CategoryErrors, 3); err != nil {
		t.Fatal(err)
	}

	d.CheckErrors(context.Background(), []mclog.ErrorMatch{
		{Line: "Failed to store chunk [3, 4]", Explanation: "Region file corruption, check disk space."},
		{Line: "Exception ticking world"},
	})
	got := adapter.messages()
	if len(got) != 2 {
		t.Fatalf("sent %d messages, want one per match (2)", len(got))
	}
	if !strings.Contains(got[0].text, "Failed to store chunk") || !strings.Contains(got[0].text, "check disk space") {
		t.Fatalf("first = %q", got[0].text)
	}
	if !strings.Contains(got[1].text, "Exception ticking world") {
		t.Fatalf("second = %q", got[1].text)
	}

	// Cooldown was set once for the whole run.
	d.CheckErrors(context.Background(), []mclog.ErrorMatch{{Line: "Exception ticking world"}})
	if got := adapter.messages(); len(got) != 2 {
		t.Fatalf("sent %d messages inside cooldown, want 2", len(got))
	}

	d.CheckErrors(context.Background(), nil)
	if got := adapter.messages(); len(got) != 2 {
		t.Fatalf("empty match list sent messages: %d", len(got))
	}
}

func TestJoinNames(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{[]string{"Alice"}, "Alice"},
		{[]string{"Alice", "Bob"}, "Alice and Bob"},
		{[]string{"Alice", "Bob", "Carol"}, "Alice, Bob, and Carol"},
	}
	for _, c := range cases {
		if got := joinNames(c.in); got != c.want {
			t.Errorf("joinNames(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

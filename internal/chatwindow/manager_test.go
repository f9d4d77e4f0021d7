package chatwindow

import (
	"context"
	"sync"
	"testing"
	"time"

	"craftbot/internal/transport"
	"craftbot/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	nextID  int
	sent    []transport.MessageRef
	edited  []transport.MessageRef
	deleted []transport.MessageRef
}

func (f *fakeAdapter) Start(ctx context.Context) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error  { return nil }
func (f *fakeAdapter) Handle(string, func(context.Context, transport.Command) error) {
}

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ref := transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}
	f.sent = append(f.sent, ref)
	return ref, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, ref)
	return nil
}

func (f *fakeAdapter) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeAdapter) snapshot() (sent, edited, deleted []transport.MessageRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.MessageRef(nil), f.sent...),
		append([]transport.MessageRef(nil), f.edited...),
		append([]transport.MessageRef(nil), f.deleted...)
}

func staticContent(s string) ContentFunc {
	return func(context.Context) string { return s }
}

func TestOpenTwiceKeepsSingleWindow(t *testing.T) {
	fake := &fakeAdapter{}
	m := NewManager(fake, staticContent("chat"), Config{TTL: time.Hour, Refresh: time.Hour}, logx.Nop())

	chat := transport.ChatTarget{ChatID: 42}
	if err := m.Open(context.Background(), chat); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := m.Open(context.Background(), chat); err != nil {
		t.Fatalf("second open: %v", err)
	}

	sent, _, deleted := fake.snapshot()
	if len(sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(sent))
	}
	if len(deleted) != 1 || deleted[0] != sent[0] {
		t.Fatalf("deleted = %v, want just the first message %v", deleted, sent[0])
	}
	if !m.Active(42) {
		t.Fatal("window should still be active")
	}
	m.Close(context.Background())
	if m.Active(42) {
		t.Fatal("window should be gone after close")
	}
}

func TestTouchWithoutWindowIsNoop(t *testing.T) {
	fake := &fakeAdapter{}
	m := NewManager(fake, staticContent("chat"), Config{TTL: time.Hour, Refresh: time.Hour}, logx.Nop())

	if err := m.Touch(context.Background(), transport.ChatTarget{ChatID: 7}); err != nil {
		t.Fatalf("touch: %v", err)
	}
	sent, _, _ := fake.snapshot()
	if len(sent) != 0 {
		t.Fatalf("touch on idle chat sent %d messages", len(sent))
	}
}

func TestWindowExpiresAfterTTL(t *testing.T) {
	fake := &fakeAdapter{}
	m := NewManager(fake, staticContent("chat"), Config{TTL: 30 * time.Millisecond, Refresh: time.Hour}, logx.Nop())

	chat := transport.ChatTarget{ChatID: 9}
	if err := m.Open(context.Background(), chat); err != nil {
		t.Fatalf("open: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Active(9) {
		if time.Now().After(deadline) {
			t.Fatal("window never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	_, _, deleted := fake.snapshot()
	if len(deleted) != 1 {
		t.Fatalf("deleted = %d, want 1", len(deleted))
	}
}

func TestRefreshEditsOnChange(t *testing.T) {
	fake := &fakeAdapter{}
	var mu sync.Mutex
	text := "one"
	content := func(context.Context) string {
		mu.Lock()
		defer mu.Unlock()
		return text
	}
	m := NewManager(fake, content, Config{TTL: time.Hour, Refresh: 10 * time.Millisecond}, logx.Nop())

	if err := m.Open(context.Background(), transport.ChatTarget{ChatID: 5}); err != nil {
		t.Fatalf("open: %v", err)
	}
	mu.Lock()
	text = "two"
	mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, edited, _ := fake.snapshot()
		if len(edited) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("window was never refreshed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.Close(context.Background())
}

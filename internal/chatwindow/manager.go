// Package chatwindow maintains short-lived, self-refreshing chat excerpt
// messages, one per requesting channel.
package chatwindow

import (
	"context"
	"sync"
	"time"

	"craftbot/internal/transport"
	"craftbot/pkg/logx"
)

// ContentFunc produces the current chat excerpt. It must never return an
// empty string.
type ContentFunc func(ctx context.Context) string

type Config struct {
	TTL     time.Duration
	Refresh time.Duration
}

type session struct {
	ref    transport.MessageRef
	cancel context.CancelFunc
}

// Manager owns at most one live window per chat. Opening a window in a chat
// that already has one tears the old message down first, so readers never see
// two competing excerpts.
type Manager struct {
	adapter transport.Adapter
	content ContentFunc
	cfg     Config
	log     logx.Logger

	mu       sync.Mutex
	sessions map[int64]*session
	wg       sync.WaitGroup
}

func NewManager(adapter transport.Adapter, content ContentFunc, cfg Config, log logx.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = 3 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		adapter:  adapter,
		content:  content,
		cfg:      cfg,
		log:      log,
		sessions: make(map[int64]*session),
	}
}

// Open posts a fresh window in the chat and starts its refresh loop. Any
// previous window in the same chat is deleted and its loop cancelled.
func (m *Manager) Open(ctx context.Context, chat transport.ChatTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessions[chat.ChatID]; ok {
		prev.cancel()
		if err := m.adapter.DeleteMessage(ctx, prev.ref); err != nil {
			m.log.Warn("failed to delete superseded chat window", logx.Int64("chat", chat.ChatID), logx.Err(err))
		}
		delete(m.sessions, chat.ChatID)
	}

	text := m.content(ctx)
	ref, err := m.adapter.SendText(ctx, chat, text, &transport.SendOptions{Monospace: true})
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &session{ref: ref, cancel: cancel}
	m.sessions[chat.ChatID] = s

	m.wg.Add(1)
	go m.refreshLoop(loopCtx, chat.ChatID, s)
	return nil
}

// Touch restarts an existing window's lifetime by reopening it. Chats without
// a live window are left alone.
func (m *Manager) Touch(ctx context.Context, chat transport.ChatTarget) error {
	m.mu.Lock()
	_, ok := m.sessions[chat.ChatID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.Open(ctx, chat)
}

// Active reports whether the chat currently has a live window.
func (m *Manager) Active(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[chatID]
	return ok
}

// Close cancels all refresh loops and deletes the live messages.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	for id, s := range m.sessions {
		s.cancel()
		if err := m.adapter.DeleteMessage(ctx, s.ref); err != nil {
			m.log.Warn("failed to delete chat window on close", logx.Int64("chat", id), logx.Err(err))
		}
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) refreshLoop(ctx context.Context, chatID int64, s *session) {
	defer m.wg.Done()

	deadline := time.NewTimer(m.cfg.TTL)
	defer deadline.Stop()
	tick := time.NewTicker(m.cfg.Refresh)
	defer tick.Stop()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			m.expire(chatID, s)
			return
		case <-tick.C:
			text := m.content(ctx)
			if text == last {
				continue
			}
			// A failed edit means the message is gone or unreachable.
			// The session is dead either way, so don't keep editing.
			if err := m.adapter.EditText(ctx, s.ref, text, &transport.SendOptions{Monospace: true}); err != nil {
				m.log.Warn("chat window refresh failed, closing window", logx.Int64("chat", chatID), logx.Err(err))
				m.remove(chatID, s)
				return
			}
			last = text
		}
	}
}

// expire removes the session only if it is still the live one for its chat.
// A window reopened by Touch installs a new session under the same key, and
// the old loop must not tear that one down.
func (m *Manager) expire(chatID int64, s *session) {
	if !m.remove(chatID, s) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.adapter.DeleteMessage(ctx, s.ref); err != nil {
		m.log.Warn("failed to delete expired chat window", logx.Int64("chat", chatID), logx.Err(err))
	}
}

// remove drops the session if it is still the live one for its chat and
// reports whether it was.
func (m *Manager) remove(chatID int64, s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[chatID]
	if !ok || current != s {
		return false
	}
	delete(m.sessions, chatID)
	return true
}

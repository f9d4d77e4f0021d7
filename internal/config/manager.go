package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"craftbot/pkg/logx"
)

// Manager owns the loaded configuration and its hot-reload lifecycle.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	// subsMu guards the subscriber list and ensures we never send on a channel
	// that is concurrently being closed in Unsubscribe().
	subsMu sync.Mutex
	subs   []chan *Config

	log logx.Logger

	// lastHash tracks the last committed config content so editor-induced
	// duplicate write events don't re-publish an unchanged config.
	lastHash uint64
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := coerceToJSONBytes(m.path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated documents)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints not expressible in the decoder.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Minecraft.Unit) == "" {
		return errors.New("minecraft.unit is required")
	}
	if strings.TrimSpace(cfg.Minecraft.ServerDir) == "" {
		return errors.New("minecraft.server_dir is required")
	}
	for _, t := range cfg.Minecraft.Restart.Times {
		if err := ValidateHHMM(t); err != nil {
			return fmt.Errorf("minecraft.restart.times: %w", err)
		}
	}
	for _, field := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"minecraft.backup.interval", cfg.Minecraft.Backup.Interval},
		{"minecraft.backup.delete_frequent_after", cfg.Minecraft.Backup.DeleteFrequentAfter},
		{"minecraft.backup.delete_sparse_after", cfg.Minecraft.Backup.DeleteSparseAfter},
		{"chat.duration", cfg.Chat.Duration},
		{"chat.update_interval", cfg.Chat.UpdateInterval},
		{"presence.update_interval", cfg.Presence.UpdateInterval},
		{"notifications.check_window", cfg.Notifications.CheckWindow},
		{"notifications.lag_window", cfg.Notifications.LagWindow},
		{"notifications.lag_threshold", cfg.Notifications.LagThreshold},
		{"notifications.cooldown", cfg.Notifications.Cooldown},
		{"stats.interval", cfg.Stats.Interval},
	} {
		if _, err := ParseDurationField(field.path, field.raw); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// LogsDir resolves the effective log directory.
func (m *Manager) LogsDir() string {
	cfg := m.Get()
	if cfg == nil {
		return ""
	}
	if cfg.Minecraft.LogsDir != "" {
		return cfg.Minecraft.LogsDir
	}
	return filepath.Join(cfg.Minecraft.ServerDir, "logs")
}

// PrimaryLog resolves the live (non-rotated) log file.
func (m *Manager) PrimaryLog() string {
	return filepath.Join(m.LogsDir(), "latest.log")
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(cfg *Config) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- cfg:
		default:
			// drop one oldest entry, then deliver the latest best-effort
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
				m.log.Debug("config update dropped (subscriber slow)")
			}
		}
	}
}

// Watch reloads and publishes the config when the file changes on disk.
// Blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}

	// debounce to avoid reacting to partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, err := m.Parse()
		if err != nil {
			m.log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
			return
		}
		h := hashConfig(cfg)
		m.mu.RLock()
		unchanged := h != 0 && h == m.lastHash
		m.mu.RUnlock()
		if unchanged {
			return
		}
		m.Commit(cfg)
		m.publish(cfg)
		m.log.Info("config reloaded", logx.String("path", m.path))
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, reload)
	}

	for {
		select {
		case <-ctx.Done():
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != filepath.Base(m.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

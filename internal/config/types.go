package config

import "time"

// Config is the root of the bot configuration.
//
// All durations are Go duration strings (e.g. "30s", "15m", "24h").
type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Logging       LoggingConfig       `json:"logging"`
	Minecraft     MinecraftConfig     `json:"minecraft"`
	Chat          ChatConfig          `json:"chat"`
	Presence      PresenceConfig      `json:"presence"`
	Notifications NotificationsConfig `json:"notifications"`
	Stats         StatsConfig         `json:"stats,omitempty"`
	State         StateConfig         `json:"state,omitempty"`
	Scheduler     SchedulerConfig     `json:"scheduler,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	AdminUserIDs []int64 `json:"admin_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// MinecraftConfig describes the managed server process and its filesystem.
type MinecraftConfig struct {
	// Unit is the systemd unit name, e.g. "minecraft.service".
	Unit string `json:"unit"`
	// ServerDir is the server installation root (holds server.properties and
	// the world directory).
	ServerDir string `json:"server_dir"`
	// LogsDir holds latest.log plus rotated/compressed siblings.
	// Defaults to <server_dir>/logs.
	LogsDir string `json:"logs_dir,omitempty"`
	// RconAddr overrides the RCON address. When empty, the port is read from
	// server.properties and the host is localhost.
	RconAddr string `json:"rcon_addr,omitempty"`

	Backup  BackupConfig  `json:"backup"`
	Restart RestartConfig `json:"restart"`
}

type BackupConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	// Interval between automatic snapshots.
	Interval string `json:"interval,omitempty"` // default 15m
	// DeleteFrequentAfter is the age past which per-day dedup applies.
	DeleteFrequentAfter string `json:"delete_frequent_after,omitempty"` // default 24h
	// DeleteSparseAfter is the age past which archives are deleted outright.
	DeleteSparseAfter string `json:"delete_sparse_after,omitempty"` // default 2880h (120 days)
}

type RestartConfig struct {
	Enabled bool `json:"enabled"`
	// Times are local wall-clock "HH:MM" strings.
	Times []string `json:"times,omitempty"`
	// ColdBackup snapshots the world between stop and start.
	ColdBackup bool `json:"cold_backup,omitempty"`
}

type ChatConfig struct {
	// Lines shown in the chat window.
	Lines int `json:"lines,omitempty"` // default 10
	// Duration a window stays alive after Open/Touch.
	Duration string `json:"duration,omitempty"` // default 5m
	// UpdateInterval between in-place refreshes.
	UpdateInterval string `json:"update_interval,omitempty"` // default 3s
}

type PresenceConfig struct {
	UpdateInterval string `json:"update_interval,omitempty"` // default 15s
}

type NotificationsConfig struct {
	Enabled bool `json:"enabled"`
	// CheckWindow is both the check interval and the "look back this far"
	// window for log-driven categories.
	CheckWindow string `json:"check_window,omitempty"` // default 5m
	// LagWindow is the rolling window summed against LagThreshold.
	LagWindow    string `json:"lag_window,omitempty"`    // default 10m
	LagThreshold string `json:"lag_threshold,omitempty"` // default 60s
	Cooldown     string `json:"cooldown,omitempty"`      // default 30m
	// ErrorPatterns maps a log substring to a human explanation.
	ErrorPatterns map[string]string `json:"error_patterns,omitempty"`
}

type StatsConfig struct {
	Enabled  bool   `json:"enabled"`
	DBPath   string `json:"db_path,omitempty"`  // default ./data/stats.db
	Interval string `json:"interval,omitempty"` // default 15m
}

type StateConfig struct {
	Path string `json:"path,omitempty"` // default ./data/state.yaml
}

type SchedulerConfig struct {
	// Timezone is an IANA TZ name; empty means local time.
	Timezone string `json:"timezone,omitempty"`
}

// ---- Parsed duration accessors (defaults applied here, in one place) ----

func (t TelegramConfig) PollTimeoutOrDefault() time.Duration {
	return durationOr(t.PollTimeout, 10*time.Second)
}

func (b BackupConfig) IntervalOrDefault() time.Duration {
	return durationOr(b.Interval, 15*time.Minute)
}

func (b BackupConfig) FrequentAgeOrDefault() time.Duration {
	return durationOr(b.DeleteFrequentAfter, 24*time.Hour)
}

func (b BackupConfig) SparseAgeOrDefault() time.Duration {
	return durationOr(b.DeleteSparseAfter, 120*24*time.Hour)
}

func (c ChatConfig) LinesOrDefault() int {
	if c.Lines <= 0 {
		return 10
	}
	return c.Lines
}

func (c ChatConfig) DurationOrDefault() time.Duration {
	return durationOr(c.Duration, 5*time.Minute)
}

func (c ChatConfig) UpdateIntervalOrDefault() time.Duration {
	return durationOr(c.UpdateInterval, 3*time.Second)
}

func (p PresenceConfig) UpdateIntervalOrDefault() time.Duration {
	return durationOr(p.UpdateInterval, 15*time.Second)
}

func (n NotificationsConfig) CheckWindowOrDefault() time.Duration {
	return durationOr(n.CheckWindow, 5*time.Minute)
}

func (n NotificationsConfig) LagWindowOrDefault() time.Duration {
	return durationOr(n.LagWindow, 10*time.Minute)
}

func (n NotificationsConfig) LagThresholdOrDefault() time.Duration {
	return durationOr(n.LagThreshold, 60*time.Second)
}

func (n NotificationsConfig) CooldownOrDefault() time.Duration {
	return durationOr(n.Cooldown, 30*time.Minute)
}

func (s StatsConfig) IntervalOrDefault() time.Duration {
	return durationOr(s.Interval, 15*time.Minute)
}

func (s StatsConfig) DBPathOrDefault() string {
	if s.DBPath == "" {
		return "./data/stats.db"
	}
	return s.DBPath
}

func (s StateConfig) PathOrDefault() string {
	if s.Path == "" {
		return "./data/state.yaml"
	}
	return s.Path
}

func durationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

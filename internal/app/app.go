// Package app wires the bot together: configuration, transport, the server
// control plane, and the periodic tasks that watch the server.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"craftbot/internal/backup"
	"craftbot/internal/chatwindow"
	"craftbot/internal/config"
	"craftbot/internal/lag"
	"craftbot/internal/mclog"
	"craftbot/internal/notify"
	"craftbot/internal/presence"
	"craftbot/internal/sched"
	"craftbot/internal/server"
	"craftbot/internal/state"
	"craftbot/internal/stats"
	"craftbot/internal/transport"
	"craftbot/internal/transport/telegram"
	"craftbot/pkg/logx"
)

type App struct {
	cfg *config.Manager
	log logx.Logger

	adapter  transport.Adapter
	control  *server.Control
	rcon     *server.RconClient
	extract  *mclog.Extractor
	tracker  *lag.Tracker
	backups  *backup.Service
	windows  *chatwindow.Manager
	dispatch *notify.Dispatcher
	presence *presence.Service
	store    *state.Store
	stats    *stats.Store
	sched    *sched.Service
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	mgr.SetLogger(log.With(logx.String("component", "config")))

	a := &App{cfg: mgr, log: log}

	a.adapter, err = telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeoutOrDefault(),
	}, log.With(logx.String("component", "telegram")))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.control, err = server.NewControl(ctx, cfg.Minecraft.Unit, log.With(logx.String("component", "systemd")))
	if err != nil {
		a.Close()
		return nil, err
	}

	rconAddr, rconPass, err := a.rconEndpoint(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.rcon = server.NewRconClient(rconAddr, rconPass)

	a.extract = mclog.NewExtractor(log.With(logx.String("component", "mclog")))
	a.tracker = lag.NewTracker(a.extract, mgr.PrimaryLog, log.With(logx.String("component", "lag")))

	a.store, err = state.Open(cfg.State.PathOrDefault())
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Stats.Enabled {
		a.stats, err = stats.Open(cfg.Stats.DBPathOrDefault())
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.backups = backup.New(backup.Config{
		Root:        cfg.Minecraft.Backup.Path,
		Interval:    cfg.Minecraft.Backup.IntervalOrDefault(),
		FrequentAge: cfg.Minecraft.Backup.FrequentAgeOrDefault(),
		SparseAge:   cfg.Minecraft.Backup.SparseAgeOrDefault(),
	}, a.worldDir, log.With(logx.String("component", "backup")))

	a.windows = chatwindow.NewManager(a.adapter, a.chatContent, chatwindow.Config{
		TTL:     cfg.Chat.DurationOrDefault(),
		Refresh: cfg.Chat.UpdateIntervalOrDefault(),
	}, log.With(logx.String("component", "chatwindow")))

	a.dispatch = notify.NewDispatcher(a.adapter, a.store, notify.Config{
		Cooldown:     cfg.Notifications.CooldownOrDefault(),
		LagWindow:    cfg.Notifications.LagWindowOrDefault(),
		LagThreshold: cfg.Notifications.LagThresholdOrDefault().Seconds(),
	}, log.With(logx.String("component", "notify")))

	a.presence = presence.New(
		a.onlinePlayers,
		a.tracker.WindowSum,
		func() (int, error) { return a.extract.CountOversizedChunks(a.cfg.PrimaryLog()), nil },
		log.With(logx.String("component", "presence")),
	)

	a.sched = sched.New(sched.Config{Timezone: cfg.Scheduler.Timezone},
		log.With(logx.String("component", "sched")))

	return a, nil
}

// Run blocks until ctx is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	if err := a.registerTasks(); err != nil {
		return err
	}
	a.registerCommands()

	if err := a.adapter.Start(ctx); err != nil {
		return err
	}
	if err := a.sched.Start(ctx); err != nil {
		return err
	}
	go func() {
		if err := a.cfg.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("bot running", logx.String("unit", a.cfg.Get().Minecraft.Unit))
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.sched.Stop(shutdownCtx)
	a.windows.Close(shutdownCtx)
	_ = a.adapter.Stop(shutdownCtx)
	a.Close()
	return nil
}

func (a *App) Close() {
	if a.stats != nil {
		_ = a.stats.Close()
	}
	if a.control != nil {
		a.control.Close()
	}
	if !a.log.IsZero() {
		a.log.Close()
	}
}

// onlinePlayers reports the current roster, checking the unit first so an
// intentionally stopped server doesn't produce connection-refused noise.
func (a *App) onlinePlayers(ctx context.Context) ([]string, error) {
	if !a.control.IsRunning(ctx) {
		return nil, fmt.Errorf("unit %s is not running", a.cfg.Get().Minecraft.Unit)
	}
	return a.rcon.Players(ctx)
}

func (a *App) rconEndpoint(cfg *config.Config) (addr, password string, err error) {
	props, perr := server.ReadProperties(cfg.Minecraft.ServerDir)
	if override := strings.TrimSpace(cfg.Minecraft.RconAddr); override != "" {
		if perr != nil {
			return "", "", fmt.Errorf("rcon password unavailable: %w", perr)
		}
		password = props.Get("rcon.password", "")
		return override, password, nil
	}
	if perr != nil {
		return "", "", perr
	}
	return props.RconAddr()
}

// worldDir resolves the world directory fresh per call so a level-name edit
// plus unit restart is picked up without restarting the bot.
func (a *App) worldDir() (string, error) {
	serverDir := a.cfg.Get().Minecraft.ServerDir
	props, err := server.ReadProperties(serverDir)
	if err != nil {
		return "", err
	}
	return props.WorldDir(serverDir), nil
}

func (a *App) chatContent(ctx context.Context) string {
	_ = ctx
	sources, err := mclog.Sources(a.cfg.LogsDir())
	if err != nil {
		a.log.Warn("listing log sources failed", logx.Err(err))
		return mclog.NoChatPlaceholder
	}
	lines := a.extract.ExtractChat(sources, a.cfg.Get().Chat.LinesOrDefault())
	return strings.Join(lines, "\n")
}

package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"craftbot/internal/lag"
	"craftbot/pkg/logx"
)

type taskReg struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

func (a *App) registerTasks() error {
	cfg := a.cfg.Get()

	regs := []taskReg{
		{"presence", every(cfg.Presence.UpdateIntervalOrDefault()), a.presenceTask},
		{"lag-sample", every(lag.TickInterval), a.tracker.Tick},
		{"roster-reset", "0 0 * * *", func(context.Context) error { return a.store.ResetDay() }},
		{"restart-check", "* * * * *", a.restartTask},
	}
	if cfg.Notifications.Enabled {
		regs = append(regs, taskReg{"notify-check", every(cfg.Notifications.CheckWindowOrDefault()), a.notifyTask})
	}
	if cfg.Minecraft.Backup.Enabled {
		regs = append(regs, taskReg{"backup", every(cfg.Minecraft.Backup.IntervalOrDefault()), a.backupTask})
	}
	if cfg.Stats.Enabled {
		regs = append(regs, taskReg{"stats-sample", every(cfg.Stats.IntervalOrDefault()), a.statsTask})
	}

	for _, r := range regs {
		if err := a.sched.Register(r.name, r.spec, r.run); err != nil {
			return err
		}
	}
	return nil
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// presenceTask refreshes the status snapshot and feeds the join detector and
// rosters from it.
func (a *App) presenceTask(ctx context.Context) error {
	snap := a.presence.Refresh(ctx)
	if !snap.Online {
		return nil
	}
	if _, err := a.store.RecordPlayers(snap.Players); err != nil {
		a.log.Warn("roster update failed", logx.Err(err))
	}
	if a.cfg.Get().Notifications.Enabled {
		a.dispatch.CheckJoins(ctx, snap.Players)
	}
	return nil
}

func (a *App) notifyTask(ctx context.Context) error {
	cfg := a.cfg.Get().Notifications
	primary := a.cfg.PrimaryLog()

	buckets := int(cfg.LagWindowOrDefault() / lag.TickInterval)
	a.dispatch.CheckLag(ctx, a.tracker.WindowSum(buckets))

	a.dispatch.CheckChunks(ctx, a.extract.CountOversizedChunks(primary))

	since := time.Now().Add(-cfg.CheckWindowOrDefault())
	a.dispatch.CheckErrors(ctx, a.extract.ExtractGenericErrors(primary, since, cfg.ErrorPatterns))
	return nil
}

func (a *App) backupTask(ctx context.Context) error {
	// The server keeps running during periodic snapshots, so flush the world
	// to disk first.
	if a.control.IsRunning(ctx) {
		if err := a.rcon.SaveAll(ctx); err != nil {
			a.log.Warn("save-all before snapshot failed", logx.Err(err))
		}
	}
	path, err := a.backups.CreateSnapshot(ctx, "backup", true)
	if err != nil {
		return err
	}
	if path == "" {
		a.log.Debug("no world directory, snapshot skipped")
	}
	deleted, err := a.backups.Prune(time.Now())
	if err != nil {
		return err
	}
	if deleted > 0 {
		a.log.Info("pruned old archives", logx.Int("deleted", deleted))
	}
	return nil
}

func (a *App) statsTask(ctx context.Context) error {
	snap := a.presence.Last()
	if !snap.Online {
		return nil
	}
	return a.stats.RecordPlayerCount(ctx, time.Now(), len(snap.Players))
}

// effectiveRestartTimes layers the operator's add/remove edits over the
// config file's restart times. Duplicate entries survive the merge; they
// each fire.
func (a *App) effectiveRestartTimes() []string {
	adds, removes := a.store.RestartOverrides()
	return mergeRestartTimes(a.cfg.Get().Minecraft.Restart.Times, adds, removes)
}

func mergeRestartTimes(base, adds, removes []string) []string {
	masked := make(map[string]bool, len(removes))
	for _, t := range removes {
		masked[t] = true
	}
	var out []string
	for _, t := range base {
		if !masked[t] {
			out = append(out, t)
		}
	}
	for _, t := range adds {
		if !masked[t] {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// restartTask matches the current wall-clock minute against the schedule.
// Each matching entry is processed independently, duplicates included.
func (a *App) restartTask(ctx context.Context) error {
	cfg := a.cfg.Get().Minecraft.Restart
	if !cfg.Enabled {
		return nil
	}
	now := time.Now().Format("15:04")

	var firstErr error
	for _, t := range a.effectiveRestartTimes() {
		if t != now {
			continue
		}
		if err := a.scheduledRestart(ctx, cfg.ColdBackup); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *App) scheduledRestart(ctx context.Context, coldBackup bool) error {
	a.log.Info("scheduled restart starting")
	if err := a.rcon.Say(ctx, "Server is restarting, back in a minute."); err != nil {
		a.log.Debug("restart announcement failed", logx.Err(err))
	}
	if err := a.control.Stop(ctx); err != nil {
		return fmt.Errorf("scheduled restart: %w", err)
	}
	if coldBackup {
		if _, err := a.backups.CreateSnapshot(ctx, "restart", false); err != nil {
			a.log.Error("cold snapshot failed, starting server anyway", logx.Err(err))
		}
	}
	if err := a.control.Start(ctx); err != nil {
		return fmt.Errorf("scheduled restart: %w", err)
	}
	a.log.Info("scheduled restart finished")
	return nil
}

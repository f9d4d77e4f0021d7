package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"craftbot/internal/backup"
	"craftbot/internal/config"
	"craftbot/internal/mclog"
	"craftbot/internal/state"
	"craftbot/internal/stats"
	"craftbot/internal/transport"
	"craftbot/pkg/logx"
)

func (a *App) registerCommands() {
	a.adapter.Handle("status", a.admin(a.cmdStatus))
	a.adapter.Handle("server", a.admin(a.cmdServer))
	a.adapter.Handle("chat", a.admin(a.cmdChat))
	a.adapter.Handle("say", a.admin(a.cmdSay))
	a.adapter.Handle("players", a.admin(a.cmdPlayers))
	a.adapter.Handle("backups", a.admin(a.cmdBackups))
	a.adapter.Handle("backup_now", a.admin(a.cmdBackupNow))
	a.adapter.Handle("prune_now", a.admin(a.cmdPruneNow))
	a.adapter.Handle("notifications", a.admin(a.cmdNotifications))
	a.adapter.Handle("restart_times", a.admin(a.cmdRestartTimes))
}

type handler func(ctx context.Context, cmd transport.Command) error

func (a *App) admin(next handler) handler {
	return func(ctx context.Context, cmd transport.Command) error {
		for _, id := range a.cfg.Get().Telegram.AdminUserIDs {
			if id == cmd.FromID {
				return next(ctx, cmd)
			}
		}
		return a.reply(ctx, cmd, "You are not allowed to use this bot.")
	}
}

func (a *App) reply(ctx context.Context, cmd transport.Command, text string) error {
	_, err := a.adapter.SendText(ctx, transport.ChatTarget{ChatID: cmd.ChatID}, text, nil)
	return err
}

func (a *App) cmdStatus(ctx context.Context, cmd transport.Command) error {
	st, err := a.control.Status(ctx)
	if err != nil {
		return a.reply(ctx, cmd, "Unit status unavailable: "+err.Error())
	}
	snap := a.presence.Refresh(ctx)
	text := fmt.Sprintf("%s: %s (%s)\n%s", st.Unit, st.Active, st.SubState, snap.Line)
	if ev, ok := a.extract.LatestLagWarning(a.cfg.PrimaryLog()); ok && ev.HasTime() {
		text += fmt.Sprintf("\nLast lag warning: %s behind at %s",
			(time.Duration(ev.BehindMS) * time.Millisecond).String(), ev.Time.Format("15:04"))
	}
	return a.reply(ctx, cmd, text)
}

// cmdServer is the manual process-control surface. Stop and start block
// until systemd reports the job done, so the reply reflects reality.
func (a *App) cmdServer(ctx context.Context, cmd transport.Command) error {
	switch strings.TrimSpace(cmd.Payload) {
	case "", "status":
		st, err := a.control.Status(ctx)
		if err != nil {
			return a.reply(ctx, cmd, "Unit status unavailable: "+err.Error())
		}
		return a.reply(ctx, cmd, fmt.Sprintf("%s: %s (%s)", st.Unit, st.Active, st.SubState))
	case "start":
		if err := a.control.Start(ctx); err != nil {
			return a.reply(ctx, cmd, "Start failed: "+err.Error())
		}
		return a.reply(ctx, cmd, "Server started.")
	case "stop":
		if err := a.control.Stop(ctx); err != nil {
			return a.reply(ctx, cmd, "Stop failed: "+err.Error())
		}
		return a.reply(ctx, cmd, "Server stopped.")
	case "restart":
		if err := a.control.Restart(ctx); err != nil {
			return a.reply(ctx, cmd, "Restart failed: "+err.Error())
		}
		return a.reply(ctx, cmd, "Server restarted.")
	default:
		return a.reply(ctx, cmd, "Usage: /server [status|start|stop|restart]")
	}
}

func (a *App) cmdChat(ctx context.Context, cmd transport.Command) error {
	chat := transport.ChatTarget{ChatID: cmd.ChatID}
	if a.windows.Active(cmd.ChatID) {
		return a.windows.Touch(ctx, chat)
	}
	return a.windows.Open(ctx, chat)
}

func (a *App) cmdSay(ctx context.Context, cmd transport.Command) error {
	msg := strings.TrimSpace(cmd.Payload)
	if msg == "" {
		return a.reply(ctx, cmd, "Usage: /say <message>")
	}
	if err := a.rcon.Say(ctx, fmt.Sprintf("[%s] %s", cmd.FromUsername, msg)); err != nil {
		return a.reply(ctx, cmd, "Could not reach the server: "+err.Error())
	}
	// The sender's window, if open, should show the new line promptly.
	return a.windows.Touch(ctx, transport.ChatTarget{ChatID: cmd.ChatID})
}

func (a *App) cmdPlayers(ctx context.Context, cmd transport.Command) error {
	online, err := a.onlinePlayers(ctx)
	onlineLine := "offline"
	if err == nil {
		onlineLine = joinOrNone(online)
	}
	text := fmt.Sprintf("Online: %s\nToday: %s\nEver: %s",
		onlineLine, joinOrNone(a.store.PlayersToday()), joinOrNone(a.store.PlayersEver()))

	events := a.extract.ExtractJoinLeave(a.cfg.PrimaryLog())
	if len(events) > 5 {
		events = events[len(events)-5:]
	}
	for _, ev := range events {
		verb := "joined"
		if ev.Kind == mclog.KindLeave {
			verb = "left"
		}
		when := ""
		if ev.HasTime() {
			when = " at " + ev.Time.Format("15:04")
		}
		text += fmt.Sprintf("\n%s %s%s", ev.User, verb, when)
	}

	if a.stats != nil {
		if days, err := a.stats.RecentDailyMax(ctx, 7); err != nil {
			a.log.Warn("daily max query failed", logx.Err(err))
		} else if len(days) > 0 {
			text += "\n\n" + stats.FormatDailyMax(days)
		}
	}
	return a.reply(ctx, cmd, text)
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func (a *App) cmdBackups(ctx context.Context, cmd transport.Command) error {
	entries, err := a.backups.List(time.Now())
	if err != nil {
		return a.reply(ctx, cmd, "Listing backups failed: "+err.Error())
	}
	if len(entries) == 0 {
		return a.reply(ctx, cmd, "No backups yet.")
	}
	if len(entries) > 15 {
		entries = entries[:15]
	}
	_, err = a.adapter.SendText(ctx, transport.ChatTarget{ChatID: cmd.ChatID},
		strings.Join(backup.FormatEntries(entries), "\n"), &transport.SendOptions{Monospace: true})
	return err
}

func (a *App) cmdBackupNow(ctx context.Context, cmd transport.Command) error {
	if a.control.IsRunning(ctx) {
		if err := a.rcon.SaveAll(ctx); err != nil {
			a.log.Warn("save-all before snapshot failed", logx.Err(err))
		}
	}
	path, err := a.backups.CreateSnapshot(ctx, "manual", false)
	if err != nil {
		return a.reply(ctx, cmd, "Snapshot failed: "+err.Error())
	}
	if path == "" {
		return a.reply(ctx, cmd, "No world directory found, nothing to archive.")
	}
	return a.reply(ctx, cmd, "Snapshot written: "+path)
}

func (a *App) cmdPruneNow(ctx context.Context, cmd transport.Command) error {
	deleted, err := a.backups.Prune(time.Now())
	if err != nil {
		return a.reply(ctx, cmd, "Prune failed: "+err.Error())
	}
	return a.reply(ctx, cmd, fmt.Sprintf("Pruned %d archive(s).", deleted))
}

func (a *App) cmdNotifications(ctx context.Context, cmd transport.Command) error {
	fields := strings.Fields(cmd.Payload)
	if len(fields) == 0 {
		return a.reply(ctx, cmd, a.subscriptionSummary(cmd.FromID))
	}

	var err error
	switch fields[0] {
	case "join":
		player := ""
		if len(fields) > 1 {
			player = fields[1]
		}
		if player == "off" {
			err = a.store.UnsubscribeJoin(cmd.FromID)
		} else {
			err = a.store.SubscribeJoin(cmd.FromID, player)
		}
	case "lag":
		err = a.toggle(state.CategoryLag, cmd.FromID, fields[1:])
	case "chunks":
		err = a.toggle(state.CategoryChunks, cmd.FromID, fields[1:])
	case "errors":
		err = a.toggle(state.CategoryErrors, cmd.FromID, fields[1:])
	default:
		return a.reply(ctx, cmd, "Usage: /notifications [join [<player>|off] | lag [off] | chunks [off] | errors [off]]")
	}
	if err != nil {
		return a.reply(ctx, cmd, "Updating subscriptions failed: "+err.Error())
	}
	return a.reply(ctx, cmd, a.subscriptionSummary(cmd.FromID))
}

func (a *App) toggle(cat state.Category, id int64, args []string) error {
	if len(args) > 0 && args[0] == "off" {
		return a.store.Unsubscribe(cat, id)
	}
	return a.store.Subscribe(cat, id)
}

func (a *App) subscriptionSummary(id int64) string {
	var on []string
	for _, sub := range a.store.JoinSubs() {
		if sub.ID == id {
			if sub.Player != "" {
				on = append(on, "join ("+sub.Player+")")
			} else {
				on = append(on, "join")
			}
		}
	}
	for _, cat := range []state.Category{state.CategoryLag, state.CategoryChunks, state.CategoryErrors} {
		if a.store.Subscribed(cat, id) {
			on = append(on, string(cat))
		}
	}
	if len(on) == 0 {
		return "No subscriptions."
	}
	return "Subscribed: " + strings.Join(on, ", ")
}

func (a *App) cmdRestartTimes(ctx context.Context, cmd transport.Command) error {
	fields := strings.Fields(cmd.Payload)
	if len(fields) == 0 {
		return a.reply(ctx, cmd, a.restartTimesSummary())
	}
	if len(fields) != 2 {
		return a.reply(ctx, cmd, "Usage: /restart_times [add HH:MM | remove HH:MM]")
	}
	t := fields[1]
	if err := config.ValidateHHMM(t); err != nil {
		return a.reply(ctx, cmd, "Bad time "+t+": expected HH:MM.")
	}

	var err error
	switch fields[0] {
	case "add":
		err = a.store.AddRestartTime(t)
	case "remove":
		err = a.store.RemoveRestartTime(t)
	default:
		return a.reply(ctx, cmd, "Usage: /restart_times [add HH:MM | remove HH:MM]")
	}
	if err != nil {
		return a.reply(ctx, cmd, "Updating restart times failed: "+err.Error())
	}
	return a.reply(ctx, cmd, a.restartTimesSummary())
}

func (a *App) restartTimesSummary() string {
	if !a.cfg.Get().Minecraft.Restart.Enabled {
		return "Scheduled restarts are disabled."
	}
	times := a.effectiveRestartTimes()
	if len(times) == 0 {
		return "No restart times configured."
	}
	return "Daily restarts at " + strings.Join(times, ", ") + "."
}

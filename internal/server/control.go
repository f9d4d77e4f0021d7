// Package server talks to the Minecraft server process: lifecycle through
// systemd, live queries through RCON, and settings through server.properties.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"

	"craftbot/pkg/logx"
)

// Status is a condensed view of the server unit.
type Status struct {
	Unit        string
	Active      string // active, inactive, failed
	SubState    string // running, dead
	Memory      uint64
	ActiveSince time.Time
}

func (s Status) Running() bool {
	return s.Active == "active" && s.SubState == "running"
}

// Control drives the server's systemd unit. Stop and Start block until
// systemd reports the job finished, so a restart sequence can safely archive
// the world in between.
type Control struct {
	unit string
	conn *dbus.Conn
	log  logx.Logger
}

func NewControl(ctx context.Context, unit string, log logx.Logger) (*Control, error) {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Control{unit: unit, conn: conn, log: log}, nil
}

func (c *Control) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Control) Start(ctx context.Context) error {
	return c.run(ctx, "start", c.conn.StartUnitContext)
}

func (c *Control) Stop(ctx context.Context) error {
	return c.run(ctx, "stop", c.conn.StopUnitContext)
}

func (c *Control) Restart(ctx context.Context) error {
	return c.run(ctx, "restart", c.conn.RestartUnitContext)
}

type unitOp func(ctx context.Context, name string, mode string, ch chan<- string) (int, error)

func (c *Control) run(ctx context.Context, verb string, op unitOp) error {
	done := make(chan string, 1)
	if _, err := op(ctx, c.unit, "replace", done); err != nil {
		return fmt.Errorf("%s %s: %w", verb, c.unit, err)
	}
	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("%s %s: job finished with %q", verb, c.unit, result)
		}
		c.log.Info("unit state changed", logx.String("unit", c.unit), logx.String("op", verb))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Control) Status(ctx context.Context) (Status, error) {
	props, err := c.conn.GetUnitPropertiesContext(ctx, c.unit)
	if err != nil {
		return Status{}, fmt.Errorf("query %s: %w", c.unit, err)
	}
	st := Status{Unit: c.unit}
	if v, ok := props["ActiveState"].(string); ok {
		st.Active = v
	}
	if v, ok := props["SubState"].(string); ok {
		st.SubState = v
	}
	if v, ok := props["MemoryCurrent"].(uint64); ok && v != ^uint64(0) {
		st.Memory = v
	}
	if ts, ok := props["ActiveEnterTimestamp"].(uint64); ok && ts > 0 {
		// systemd timestamps are in microseconds since the Unix epoch
		st.ActiveSince = time.Unix(int64(ts/1_000_000), 0)
	}
	return st, nil
}

func (c *Control) IsRunning(ctx context.Context) bool {
	st, err := c.Status(ctx)
	if err != nil {
		return false
	}
	return st.Running()
}

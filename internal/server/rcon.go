package server

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gorcon/rcon"
)

var listRe = regexp.MustCompile(`There are \d+ of a max of \d+ players online:\s*(.*)`)

// RconClient queries the running server over its RCON port. Each call opens
// a fresh connection; the server closes idle RCON sessions aggressively, so
// a pooled connection would mostly hand back stale sockets.
type RconClient struct {
	addr     string
	password string
	timeout  time.Duration
}

func NewRconClient(addr, password string) *RconClient {
	return &RconClient{addr: addr, password: password, timeout: 5 * time.Second}
}

func (r *RconClient) exec(ctx context.Context, command string) (string, error) {
	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left > 0 && left < timeout {
			timeout = left
		}
	}
	conn, err := rcon.Dial(r.addr, r.password,
		rcon.SetDialTimeout(timeout), rcon.SetDeadline(timeout))
	if err != nil {
		return "", fmt.Errorf("rcon dial %s: %w", r.addr, err)
	}
	defer conn.Close()

	out, err := conn.Execute(command)
	if err != nil {
		return "", fmt.Errorf("rcon %q: %w", command, err)
	}
	return out, nil
}

// Players returns the names currently online, sorted as the server lists
// them. An empty slice with nil error means the server is up but idle.
func (r *RconClient) Players(ctx context.Context) ([]string, error) {
	out, err := r.exec(ctx, "list")
	if err != nil {
		return nil, err
	}
	return parsePlayerList(out), nil
}

// Say broadcasts a chat message to everyone on the server.
func (r *RconClient) Say(ctx context.Context, message string) error {
	_, err := r.exec(ctx, "say "+message)
	return err
}

// SaveAll flushes the world to disk before a live archive is taken.
func (r *RconClient) SaveAll(ctx context.Context) error {
	_, err := r.exec(ctx, "save-all flush")
	return err
}

func parsePlayerList(out string) []string {
	m := listRe.FindStringSubmatch(out)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return nil
	}
	parts := strings.Split(m[1], ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			names = append(names, name)
		}
	}
	return names
}

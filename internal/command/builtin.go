package command

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Builtins returns the standard handlers.
func Builtins(version string) []Handler {
	return []Handler{Ping{}, Alive{Version: version}, Menu{}}
}

// Ping reports round-trip latency.
type Ping struct{}

func (Ping) Name() string      { return "ping" }
func (Ping) Aliases() []string { return []string{"speed"} }

func (Ping) Run(ctx context.Context, call *Call) error {
	latency := "n/a"
	if ts := call.Message.Timestamp; !ts.IsZero() {
		d := time.Since(ts)
		if d < 0 {
			d = 0
		}
		latency = d.Round(time.Millisecond).String()
	}
	return call.Reply(ctx, "Pong! Latency: "+latency)
}

// Alive reports how long the connection has been up.
type Alive struct {
	Version string
}

func (Alive) Name() string      { return "alive" }
func (Alive) Aliases() []string { return []string{"uptime"} }

func (a Alive) Run(ctx context.Context, call *Call) error {
	var b strings.Builder
	fmt.Fprintf(&b, "I'm alive!\nNumber: %s\nUptime: %s",
		call.Conn.Identity(), FormatUptime(time.Since(call.Conn.CreatedAt())))
	if a.Version != "" {
		fmt.Fprintf(&b, "\nVersion: %s", a.Version)
	}
	return call.Reply(ctx, b.String())
}

// Menu lists the available commands.
type Menu struct{}

func (Menu) Name() string      { return "menu" }
func (Menu) Aliases() []string { return []string{"help"} }

func (Menu) Run(ctx context.Context, call *Call) error {
	var b strings.Builder
	b.WriteString("Available commands:")
	if call.Table != nil {
		for _, h := range call.Table.Handlers() {
			fmt.Fprintf(&b, "\n%s%s", call.Prefix, h.Name())
			if aliases := h.Aliases(); len(aliases) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(aliases, ", "))
			}
		}
	}
	return call.Reply(ctx, b.String())
}

// FormatUptime renders d as "1h 2m 3s", dropping leading zero units.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

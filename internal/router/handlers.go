package router

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/illarion/lockbot/internal/session"
)

const (
	logsShown       = 10
	defaultVibrate  = 500 * time.Millisecond
	deviceOpTimeout = 15 * time.Second
)

// buildTable registers every trigger. Commands and their menu buttons share
// a handler; names are unique per kind.
func (r *Router) buildTable() map[key]Descriptor {
	table := make(map[key]Descriptor)
	add := func(d Descriptor, kinds ...Kind) {
		for _, k := range kinds {
			d.Kind = k
			if _, dup := table[key{k, d.Name}]; dup {
				panic("router: duplicate trigger " + k.String() + " " + d.Name)
			}
			table[key{k, d.Name}] = d
		}
	}
	both := []Kind{KindCommand, KindButton}

	add(Descriptor{Name: "start", Handler: r.handleMenu, WhileInactive: true, Description: "show the main menu"}, KindCommand)
	add(Descriptor{Name: "menu", Handler: r.handleMenu, WhileInactive: true, Description: "show the main menu"}, both...)
	add(Descriptor{Name: "help", Handler: r.handleHelp, WhileInactive: true, Description: "list commands"}, both...)
	add(Descriptor{Name: "cancel", Handler: r.handleCancel, WhileInactive: true, Description: "abort the pending command"}, both...)
	add(Descriptor{Name: "lock", Handler: r.flowHandler(session.FlowLock), Description: "lock [path] - encrypt a file or folder"}, both...)
	add(Descriptor{Name: "unlock", Handler: r.flowHandler(session.FlowUnlock), Description: "unlock [path.locked] - restore a locked file or folder"}, both...)
	add(Descriptor{Name: "locked", Handler: r.handleLocked, Description: "list locked files"}, both...)
	add(Descriptor{Name: "rm", Handler: r.flowHandler(session.FlowRemove), Description: "rm [path] - delete a file or folder"}, both...)
	add(Descriptor{Name: "cp", Handler: r.flowHandler(session.FlowCopy), Description: "cp [src] [dst] - copy a file or folder"}, both...)
	add(Descriptor{Name: "status", Handler: r.handleStatus, WhileInactive: true, Description: "bot and host status"}, both...)
	add(Descriptor{Name: "battery", Handler: r.handleBattery, Description: "battery status"}, both...)
	add(Descriptor{Name: "wifi", Handler: r.handleWiFi, Description: "wifi connection info"}, both...)
	add(Descriptor{Name: "vibrate", Handler: r.handleVibrate, Description: "vibrate [duration] - buzz the phone"}, both...)
	add(Descriptor{Name: "torch", Handler: r.handleTorch, Description: "torch on|off - switch the flashlight"}, KindCommand)
	add(Descriptor{Name: "torch_on", Handler: r.torchButton(true)}, KindButton)
	add(Descriptor{Name: "torch_off", Handler: r.torchButton(false)}, KindButton)
	add(Descriptor{Name: "toggle", Handler: r.handleToggle, WhileInactive: true, Description: "switch the bot on or off"}, both...)
	add(Descriptor{Name: "logs", Handler: r.handleLogs, Description: "recent activity"}, both...)

	return table
}

func (r *Router) handleMenu(context.Context, Trigger) Response {
	return Response{Text: "🤖 Choose an action:", Buttons: mainMenu}
}

func (r *Router) handleHelp(context.Context, Trigger) Response {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, d := range r.Commands() {
		fmt.Fprintf(&b, "\n/%s - %s", d.Name, d.Description)
	}
	return Response{Text: b.String()}
}

// flowHandler starts a multi-step flow. Arguments typed with the command
// fill the first steps: "lock /docs/notes.txt" goes straight to the password.
func (r *Router) flowHandler(flow session.Flow) Handler {
	return func(ctx context.Context, t Trigger) Response {
		var args session.Args
		switch {
		case flow == session.FlowCopy && len(t.Args) >= 2:
			args.Path = t.Args[0]
			args.Destination = strings.Join(t.Args[1:], " ")
		case len(t.Args) > 0:
			args.Path = strings.Join(t.Args, " ")
		}
		return r.begin(ctx, t, flow, args)
	}
}

func (r *Router) handleLocked(context.Context, Trigger) Response {
	entries, err := r.vault.List()
	if err != nil {
		r.log.Error("failed to list registry", zap.Error(err))
		return Response{Text: userMessage(err)}
	}
	if len(entries) == 0 {
		return Response{Text: msgNoLocked}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔒 Locked (%d):\n", len(entries))
	for _, e := range entries {
		kind := "📄"
		if e.IsDir {
			kind = "📁"
		}
		fmt.Fprintf(&b, "%s %s  %s  %s\n", kind, e.LockedPath, formatSize(e.Size), e.LockedAt.Format("2006-01-02 15:04"))
	}
	return Response{Text: strings.TrimRight(b.String(), "\n")}
}

func (r *Router) handleStatus(context.Context, Trigger) Response {
	host, _ := os.Hostname()
	state := "active"
	if !r.active() {
		state = "inactive"
	}
	locked := 0
	if entries, err := r.vault.List(); err == nil {
		locked = len(entries)
	}

	text := fmt.Sprintf("ℹ️ Status\nHost: %s (%s/%s)\nState: %s\nUptime: %s\nLocked: %d\nRunning operations: %d",
		host, runtime.GOOS, runtime.GOARCH, state,
		time.Since(r.started).Truncate(time.Second), locked, r.inflightCount())
	return Response{Text: text}
}

func (r *Router) handleBattery(ctx context.Context, _ Trigger) Response {
	ctx, cancel := context.WithTimeout(ctx, deviceOpTimeout)
	defer cancel()

	b, err := r.device.Battery(ctx)
	if err != nil {
		return Response{Text: userMessage(err)}
	}
	return Response{Text: fmt.Sprintf("🔋 %d%% %s\n%s\nHealth: %s\nTemperature: %.1f°C",
		b.Percentage, b.Status, batteryBar(b.Percentage), b.Health, b.Temperature)}
}

func (r *Router) handleWiFi(ctx context.Context, _ Trigger) Response {
	ctx, cancel := context.WithTimeout(ctx, deviceOpTimeout)
	defer cancel()

	w, err := r.device.WiFi(ctx)
	if err != nil {
		return Response{Text: userMessage(err)}
	}
	if w.SSID == "" || w.State != "COMPLETED" {
		return Response{Text: "📶 Not connected."}
	}
	return Response{Text: fmt.Sprintf("📶 %s\nIP: %s\nSignal: %d dBm\nFrequency: %d MHz\nLink speed: %d Mbps",
		w.SSID, w.IP, w.RSSI, w.Frequency, w.LinkSpeed)}
}

func (r *Router) handleVibrate(ctx context.Context, t Trigger) Response {
	d := defaultVibrate
	if len(t.Args) > 0 {
		parsed, err := time.ParseDuration(t.Args[0])
		if err != nil || parsed <= 0 {
			return Response{Text: "Usage: /vibrate [duration], e.g. /vibrate 2s"}
		}
		d = parsed
	}

	ctx, cancel := context.WithTimeout(ctx, deviceOpTimeout)
	defer cancel()
	if err := r.device.Vibrate(ctx, d); err != nil {
		return Response{Text: userMessage(err)}
	}
	return Response{Text: "📳 Vibrated."}
}

func (r *Router) handleTorch(ctx context.Context, t Trigger) Response {
	if len(t.Args) != 1 || (t.Args[0] != "on" && t.Args[0] != "off") {
		return Response{Text: "Usage: /torch on|off"}
	}
	return r.torch(ctx, t.Args[0] == "on")
}

func (r *Router) torchButton(on bool) Handler {
	return func(ctx context.Context, _ Trigger) Response {
		return r.torch(ctx, on)
	}
}

func (r *Router) torch(ctx context.Context, on bool) Response {
	ctx, cancel := context.WithTimeout(ctx, deviceOpTimeout)
	defer cancel()
	if err := r.device.Torch(ctx, on); err != nil {
		return Response{Text: userMessage(err)}
	}
	if on {
		return Response{Text: "🔦 Torch on."}
	}
	return Response{Text: "🔦 Torch off."}
}

func (r *Router) handleToggle(_ context.Context, t Trigger) Response {
	next := !r.active()
	if err := r.store.SetActive(next); err != nil {
		r.log.Error("failed to store active flag", zap.Error(err))
		return Response{Text: msgInternal}
	}
	state := "inactive"
	if next {
		state = "active"
	}
	r.audit(t.Sender, "toggle", state, "ok")
	r.log.Info("bot state changed", zap.Bool("active", next))
	return Response{Text: "⏯ The bot is now " + state + "."}
}

func (r *Router) handleLogs(context.Context, Trigger) Response {
	records, err := r.store.RecentAudit(logsShown)
	if err != nil {
		r.log.Error("failed to read audit log", zap.Error(err))
		return Response{Text: msgInternal}
	}
	if len(records) == 0 {
		return Response{Text: msgNoLogs}
	}

	var b strings.Builder
	b.WriteString("📜 Recent activity:\n")
	for _, rec := range records {
		target := rec.Target
		if target != "" {
			target = filepath.Base(target)
		}
		fmt.Fprintf(&b, "%s %s %s: %s\n", rec.Time.Format("01-02 15:04"), rec.Action, target, rec.Outcome)
	}
	return Response{Text: strings.TrimRight(b.String(), "\n")}
}

func batteryBar(percent int) string {
	const width = 20
	percent = max(0, min(100, percent))
	filled := percent * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Commands lists the documented commands sorted by name, for menus
func (r *Router) Commands() []Descriptor {
	var out []Descriptor
	for k, d := range r.table {
		if k.kind == KindCommand && d.Description != "" {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

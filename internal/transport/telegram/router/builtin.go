package router

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/appointment"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/notifier"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/orchestrator"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/storage"
)

type StatusSource interface {
	Status() orchestrator.Status
}

type HistorySource interface {
	History() []notifier.HistoryItem
}

type AuditReader interface {
	ReadDay(ctx context.Context, day string) ([]storage.Entry, error)
}

// Deps feeds the built-in operator commands. Nil sources drop their command.
type Deps struct {
	Status  StatusSource
	History HistorySource
	Audit   AuditReader
	Window  appointment.Window
	Now     func() time.Time
}

const (
	logTail     = 10
	historyTail = 10
	entryLimit  = 600
)

// Builtins returns /status, /log and /history. All of them are owner-only.
func Builtins(d Deps) []Command {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	var out []Command
	if d.Status != nil {
		out = append(out, Command{
			Name:        "status",
			Description: "poller state and held appointment",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, FormatStatus(d.Status.Status(), d.Window, now()))
			},
		})
	}
	if d.Audit != nil {
		out = append(out, Command{
			Name:        "log",
			Description: "last audit entries [YYYY-MM-DD]",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) error {
				day := storage.DayKey(now())
				if len(req.Args) > 0 {
					day = req.Args[0]
				}
				entries, err := d.Audit.ReadDay(ctx, day)
				switch {
				case errors.Is(err, storage.ErrDisabled):
					return req.Reply(ctx, "audit log is disabled")
				case errors.Is(err, storage.ErrInvalidDay):
					return req.Reply(ctx, "usage: /log [YYYY-MM-DD]")
				case err != nil:
					return err
				}
				return req.Reply(ctx, formatEntries(day, entries))
			},
		})
	}
	if d.History != nil {
		out = append(out, Command{
			Name:        "history",
			Description: "recent notifications",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, formatHistory(d.History.History()))
			},
		})
	}
	return out
}

// FormatStatus renders a Status snapshot as Telegram HTML.
func FormatStatus(st orchestrator.Status, w appointment.Window, now time.Time) string {
	var b strings.Builder
	b.WriteString("<b>Status</b>\n")
	fmt.Fprintf(&b, "state: %s (%s)\n", st.State, since(now, st.Since))
	held := "none"
	if st.Held.IsValid() {
		held = st.Held.String()
	}
	fmt.Fprintf(&b, "held: %s\n", held)
	fmt.Fprintf(&b, "window: %s, effective end %s\n", w, appointment.EffectiveEnd(w, st.Held))
	if !st.Cycle.Start.IsZero() {
		fmt.Fprintf(&b, "cycle: %d requests in %s\n", st.Cycle.Requests, since(now, st.Cycle.Start))
	}
	if !st.LastPoll.IsZero() {
		fmt.Fprintf(&b, "last poll: %s ago\n", since(now, st.LastPoll))
	}
	if len(st.LastListing) > 0 {
		dates := make([]string, 0, len(st.LastListing))
		for _, d := range st.LastListing {
			dates = append(dates, d.String())
		}
		fmt.Fprintf(&b, "last listing: %s\n", strings.Join(dates, ", "))
	}
	if st.LastOutcome != nil {
		fmt.Fprintf(&b, "last outcome: %s\n", html.EscapeString(st.LastOutcome.String()))
	}
	if st.Faults > 0 {
		fmt.Fprintf(&b, "faults: %d, last: %s\n", st.Faults, html.EscapeString(clip(st.LastError, 200)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatEntries(day string, entries []storage.Entry) string {
	if len(entries) == 0 {
		return "no audit entries for " + day
	}
	if len(entries) > logTail {
		entries = entries[len(entries)-logTail:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Audit %s</b>\n", day)
	for _, e := range entries {
		fmt.Fprintf(&b, "<code>%s</code> %s\n", e.At.Format(time.TimeOnly), html.EscapeString(clip(strings.TrimSpace(e.Text), entryLimit)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistory(items []notifier.HistoryItem) string {
	if len(items) == 0 {
		return "no notifications sent yet"
	}
	if len(items) > historyTail {
		items = items[len(items)-historyTail:]
	}
	var b strings.Builder
	b.WriteString("<b>Recent notifications</b>\n")
	for _, it := range items {
		first, _, _ := strings.Cut(it.Body, "\n")
		fmt.Fprintf(&b, "<code>%s</code> %s %s\n", it.At.Format("01-02 15:04"), html.EscapeString(it.Title), html.EscapeString(clip(first, 120)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func since(now, t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return now.Sub(t).Truncate(time.Second).String()
}

func clip(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "…"
}

package orchestrator

import (
	"strings"

	"cloud.google.com/go/civil"
)

const (
	logTimeLayout     = "2006-01-02 15:04:05.000000"
	notifyReasonLimit = 500
)

var dashes = strings.Repeat("-", 60)

func (o *Orchestrator) formatListing(dates []civil.Date) string {
	var b strings.Builder
	b.WriteString("Available dates")
	if o.cfg.Embassy != "" {
		b.WriteString(" in ")
		b.WriteString(o.cfg.Embassy)
	}
	b.WriteString(":\n ")
	for i, d := range dates {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.String())
	}
	return b.String()
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "…"
}

package appointment

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

// SuccessMarker is the literal the portal puts in the confirmation page.
const SuccessMarker = "Successfully Scheduled"

type OutcomeKind int

const (
	OutcomeFailure OutcomeKind = iota
	OutcomeSuccess
)

func (k OutcomeKind) String() string {
	if k == OutcomeSuccess {
		return "success"
	}
	return "failure"
}

// Outcome is the result of one reschedule attempt.
// Reason is empty on success and carries the raw response (or error text) on failure.
type Outcome struct {
	Kind   OutcomeKind
	Date   civil.Date
	Time   string
	Reason string
}

func (o Outcome) Succeeded() bool { return o.Kind == OutcomeSuccess }

func (o Outcome) String() string {
	if o.Succeeded() {
		return fmt.Sprintf("Rescheduled Successfully! %s %s", o.Date, o.Time)
	}
	return fmt.Sprintf("Reschedule Failed!!! %s %s", o.Date, o.Time)
}

// ClassifySubmission inspects the submission response body for SuccessMarker.
func ClassifySubmission(date civil.Date, tod, body string) Outcome {
	if strings.Contains(body, SuccessMarker) {
		return Outcome{Kind: OutcomeSuccess, Date: date, Time: tod}
	}
	return Outcome{Kind: OutcomeFailure, Date: date, Time: tod, Reason: body}
}

// PreferredTime picks the latest slot of the day (last in provider order),
// leaving the most buffer before the consulate's daily cutoff.
func PreferredTime(times []string) (string, bool) {
	for i := len(times) - 1; i >= 0; i-- {
		if t := strings.TrimSpace(times[i]); t != "" {
			return t, true
		}
	}
	return "", false
}

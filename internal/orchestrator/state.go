package orchestrator

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/appointment"
)

type State int

const (
	StateBootstrapping State = iota
	StateAuthenticated
	StatePolling
	StateRescheduling
	StateBanCooldown
	StateWorkCooldown
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateAuthenticated:
		return "authenticated"
	case StatePolling:
		return "polling"
	case StateRescheduling:
		return "rescheduling"
	case StateBanCooldown:
		return "ban_cooldown"
	case StateWorkCooldown:
		return "work_cooldown"
	default:
		return "unknown"
	}
}

// WorkCycle is the bookkeeping of one authenticated session.
type WorkCycle struct {
	ID       uuid.UUID
	Start    time.Time
	Requests int
}

// Status is a point-in-time copy of the orchestrator's observable state.
type Status struct {
	State State
	Since time.Time

	// Held is invalid (zero) when nothing is booked.
	Held  civil.Date
	Cycle WorkCycle

	LastPoll    time.Time
	LastListing []civil.Date
	LastOutcome *appointment.Outcome

	LastError string
	Faults    int
}

// Event types published on the bus.
const (
	EventState      = "orchestrator.state"
	EventPoll       = "orchestrator.poll"
	EventBan        = "orchestrator.ban"
	EventOutcome    = "orchestrator.outcome"
	EventAuthFailed = "orchestrator.auth_failed"
	EventFault      = "orchestrator.fault"
)

type StateChange struct {
	From, To State
}

type PollResult struct {
	Requests int
	Dates    int
	Changed  bool
}

// Notification titles.
const (
	TitleBan            = "BAN"
	TitleDatesAvailable = "DATES_AVAILABLE"
	TitleSuccess        = "SUCCESS"
	TitleFail           = "FAIL"
)

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/twofactor/internal/models"
)

// SessionState is the authentication stage of a single session
type SessionState int

const (
	StateAnonymous SessionState = iota
	StateAwaitingSecondFactor
	StateAuthenticated
	StateDestroyed
)

func (s SessionState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAwaitingSecondFactor:
		return "awaiting_second_factor"
	case StateAuthenticated:
		return "authenticated"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// SessionEvent drives a state transition
type SessionEvent int

const (
	EventLoginSucceeded SessionEvent = iota
	EventSecondFactorAccepted
	EventSecondFactorRejected
	EventLogout
)

func (e SessionEvent) String() string {
	switch e {
	case EventLoginSucceeded:
		return "login_succeeded"
	case EventSecondFactorAccepted:
		return "second_factor_accepted"
	case EventSecondFactorRejected:
		return "second_factor_rejected"
	case EventLogout:
		return "logout"
	default:
		return fmt.Sprintf("SessionEvent(%d)", int(e))
	}
}

var ErrInvalidTransition = errors.New("invalid session transition")

// StateOf derives the state of a stored session. Missing, expired and unbound
// sessions are all anonymous.
func StateOf(session *models.Session, now time.Time) SessionState {
	if session == nil || session.UserID == "" || session.IsExpired(now) {
		return StateAnonymous
	}
	if session.PendingSecondFactor {
		return StateAwaitingSecondFactor
	}
	return StateAuthenticated
}

// Transition returns the state reached from current on event.
// twoFactorEnabled only matters for EventLoginSucceeded.
func Transition(current SessionState, event SessionEvent, twoFactorEnabled bool) (SessionState, error) {
	switch current {
	case StateAnonymous:
		if event == EventLoginSucceeded {
			if twoFactorEnabled {
				return StateAwaitingSecondFactor, nil
			}
			return StateAuthenticated, nil
		}
	case StateAwaitingSecondFactor:
		switch event {
		case EventSecondFactorAccepted:
			return StateAuthenticated, nil
		case EventSecondFactorRejected:
			// unlimited retries
			return StateAwaitingSecondFactor, nil
		case EventLogout:
			return StateDestroyed, nil
		}
	case StateAuthenticated:
		if event == EventLogout {
			return StateDestroyed, nil
		}
	}

	return current, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, current)
}

// Requirement is what a route needs from the caller's session
type Requirement int

const (
	RequireAuthenticated Requirement = iota
	RequirePendingSecondFactor
)

// Decision is the outcome of a guard check
type Decision int

const (
	Allow Decision = iota
	RedirectToLogin
	RedirectToVerify
	RedirectToDashboard
)

// Guard decides whether a caller in state may use a route with requirement.
// Protected routes only admit StateAuthenticated; a caller still owing the
// second factor is sent back to verification, never given partial access.
func Guard(state SessionState, requirement Requirement) Decision {
	switch requirement {
	case RequireAuthenticated:
		switch state {
		case StateAuthenticated:
			return Allow
		case StateAwaitingSecondFactor:
			return RedirectToVerify
		default:
			return RedirectToLogin
		}
	case RequirePendingSecondFactor:
		switch state {
		case StateAwaitingSecondFactor:
			return Allow
		case StateAuthenticated:
			return RedirectToDashboard
		default:
			return RedirectToLogin
		}
	}
	return RedirectToLogin
}

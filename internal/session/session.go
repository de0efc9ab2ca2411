// internal/session/session.go
package session

import (
	"github.com/codeduel-dev/codeduel/internal/protocol"
)

// Mode distinguishes how the session was entered.
type Mode string

const (
	ModeQuickMatch  Mode = "quick-match"
	ModePrivateRoom Mode = "private-room"
)

// Role is the local player's role within the session. Quick matches do
// not distinguish host privileges.
type Role string

const (
	RoleHost        Role = "host"
	RoleGuest       Role = "guest"
	RoleParticipant Role = "participant"
)

// Status is the session state machine value. Queue states and room
// states share one enum so that a session always has exactly one
// position in the pre-match negotiation, regardless of mode.
type Status string

const (
	// Quick-match pre-phase.
	StatusIdle     Status = "idle"
	StatusQueued   Status = "queued"
	StatusMatched  Status = "matched"
	StatusReadying Status = "readying"

	// Room pre-phase.
	StatusPending Status = "pending" // create/join emitted, awaiting ack
	StatusWaiting Status = "waiting" // in room, no guest yet
	StatusReady   Status = "ready"   // guest present, host may start

	// Shared.
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Participant is one player slot. ID is empty while the slot is vacant.
type Participant struct {
	ID          string
	DisplayName string
}

// Session is the local view of the one match or room the client is part
// of. It is only ever mutated through the Store.
type Session struct {
	ID   string // match id, or 6-char room code
	Mode Mode
	Role Role

	Self     Participant
	Opponent Participant

	Problem     *protocol.Problem
	TimeLimitMs int64
	StartedAtMs int64 // epoch ms; zero until active, set exactly once

	Status            Status
	SelfSubmitted     bool // monotonic
	OpponentSubmitted bool // monotonic

	// Local editor buffer; shared with the server only via explicit
	// code-update or submit emissions.
	Code     string
	Language string

	QueueSize int // display only, from the last queue_joined ack
}

// Active reports whether the match runtime owns this session.
func (s *Session) Active() bool { return s.Status == StatusActive }

// transitions enumerates the legal status edges. Anything not listed is
// rejected by the store. Every status may additionally be discarded
// outright (navigation away), which is not an edge but a teardown.
var transitions = map[Status][]Status{
	StatusIdle:     {StatusQueued, StatusMatched}, // match_found wins a leave race
	StatusQueued:   {StatusMatched, StatusIdle},
	StatusMatched:  {StatusReadying},
	StatusReadying: {StatusActive},
	StatusPending:  {StatusWaiting, StatusReady},
	StatusWaiting:  {StatusReady, StatusActive},
	StatusReady:    {StatusWaiting, StatusActive}, // guest may leave again
	StatusActive:   {StatusEnded},
	StatusEnded:    {},
}

func legalTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// internal/session/store.go
package session

import (
	"fmt"
	"sync"

	"github.com/codeduel-dev/codeduel/internal/protocol"
)

// Store owns the single live Session. It is the only mutable structure
// shared between the coordinator, the match runtime, and readers; every
// guard-and-write happens atomically under one lock so a status check
// can never be split from the mutation it protects.
type Store struct {
	mu   sync.Mutex
	cur  *Session
	self Participant
}

// NewStore creates a store for the given local identity.
func NewStore(self Participant) *Store {
	return &Store{self: self}
}

// Self returns the local identity the store was built with.
func (st *Store) Self() Participant {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.self
}

// Begin replaces any existing session unconditionally. There is no
// merge: navigating into a new flow discards the old one.
func (st *Store) Begin(mode Mode) {
	st.mu.Lock()
	defer st.mu.Unlock()

	status := StatusIdle
	role := RoleParticipant
	if mode == ModePrivateRoom {
		status = StatusPending
	}
	st.cur = &Session{
		Mode:     mode,
		Role:     role,
		Self:     st.self,
		Status:   status,
		Language: "javascript",
	}
}

// Discard drops the current session. Idempotent.
func (st *Store) Discard() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cur = nil
}

// Snapshot returns a copy of the current session for read-only use.
func (st *Store) Snapshot() (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		return Session{}, false
	}
	return *st.cur, true
}

// Status returns the current status, or StatusIdle with false when no
// session exists.
func (st *Store) Status() (Status, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		return StatusIdle, false
	}
	return st.cur.Status, true
}

func (st *Store) setStatusUnsafe(to Status) error {
	if st.cur == nil {
		return fmt.Errorf("session: no session")
	}
	if !legalTransition(st.cur.Status, to) {
		return fmt.Errorf("session: illegal transition %s -> %s", st.cur.Status, to)
	}
	st.cur.Status = to
	return nil
}

// MarkQueued records the queue_joined acknowledgment. The session stays
// idle until the server acknowledges; this is the only path to queued.
func (st *Store) MarkQueued(queueSize int) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.setStatusUnsafe(StatusQueued); err != nil {
		return err
	}
	st.cur.QueueSize = queueSize
	return nil
}

// MarkQueueLeft returns a queued session to idle.
func (st *Store) MarkQueueLeft() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.setStatusUnsafe(StatusIdle); err != nil {
		return err
	}
	st.cur.QueueSize = 0
	return nil
}

// ApplyMatchFound populates the session from a match_found event. The
// server's ordering wins: it is accepted from idle as well as queued,
// covering the race where a leave_queue was still in flight.
func (st *Store) ApplyMatchFound(ev *protocol.MatchFound) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		// Direct navigation race: the server matched us after the local
		// session was torn down. Rebuild rather than drop the match.
		st.cur = &Session{Mode: ModeQuickMatch, Role: RoleParticipant, Self: st.self, Status: StatusIdle, Language: "javascript"}
	}
	if err := st.setStatusUnsafe(StatusMatched); err != nil {
		return err
	}
	problem := ev.Problem
	st.cur.ID = ev.MatchID
	st.cur.Opponent = Participant{DisplayName: ev.Opponent}
	st.cur.Problem = &problem
	st.cur.TimeLimitMs = ev.TimeLimit
	return nil
}

// MarkReadying records the local ready action.
func (st *Store) MarkReadying() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.setStatusUnsafe(StatusReadying)
}

// Activate transitions to active and stamps the start time. StartedAtMs
// is set at most once per session; a second activation is an error.
func (st *Store) Activate(startMs int64, problem *protocol.Problem, timeLimitMs int64) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		return fmt.Errorf("session: no session")
	}
	if st.cur.StartedAtMs != 0 {
		return fmt.Errorf("session: already started")
	}
	if err := st.setStatusUnsafe(StatusActive); err != nil {
		return err
	}
	if problem != nil {
		st.cur.Problem = problem
	}
	if st.cur.Problem == nil {
		return fmt.Errorf("session: active without problem")
	}
	if timeLimitMs > 0 {
		st.cur.TimeLimitMs = timeLimitMs
	}
	st.cur.StartedAtMs = startMs
	return nil
}

// ApplyRoom merges an authoritative room snapshot last-write-wins: guest
// identity, status, and problem are replaced outright, no conflict
// resolution. It reports whether this merge flipped the session active.
func (st *Store) ApplyRoom(room protocol.Room) (becameActive bool, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		return false, fmt.Errorf("session: no session")
	}
	if st.cur.Mode != ModePrivateRoom {
		return false, fmt.Errorf("session: room update outside room mode")
	}

	wasActive := st.cur.Status == StatusActive

	st.cur.ID = room.Code
	if room.Host == st.self.DisplayName {
		st.cur.Role = RoleHost
		st.cur.Opponent = Participant{DisplayName: room.Guest}
	} else {
		st.cur.Role = RoleGuest
		st.cur.Opponent = Participant{DisplayName: room.Host}
	}
	if room.Problem != nil {
		st.cur.Problem = room.Problem
	}
	if room.Settings.TimeLimit > 0 {
		st.cur.TimeLimitMs = room.Settings.TimeLimit
	}

	switch room.Status {
	case protocol.RoomWaiting:
		err = st.setStatusUnsafe(StatusWaiting)
	case protocol.RoomReady:
		err = st.setStatusUnsafe(StatusReady)
	case protocol.RoomActive:
		if !wasActive {
			if st.cur.Problem == nil {
				return false, fmt.Errorf("session: active without problem")
			}
			err = st.setStatusUnsafe(StatusActive)
		}
	case protocol.RoomCompleted:
		st.cur.Status = StatusEnded
	default:
		err = fmt.Errorf("session: unknown room status %q", room.Status)
	}
	if err != nil {
		return false, err
	}
	return !wasActive && st.cur.Status == StatusActive, nil
}

// StampStart sets the start time if the server did not supply one.
// No-op when already stamped.
func (st *Store) StampStart(startMs int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur != nil && st.cur.StartedAtMs == 0 {
		st.cur.StartedAtMs = startMs
	}
}

// SetProblem replaces the room problem before activation. The problem is
// immutable once active.
func (st *Store) SetProblem(p *protocol.Problem) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		return fmt.Errorf("session: no session")
	}
	if st.cur.Mode != ModePrivateRoom {
		return fmt.Errorf("session: problem change outside room mode")
	}
	if st.cur.Status == StatusActive || st.cur.Status == StatusEnded {
		return fmt.Errorf("session: problem immutable after activation")
	}
	st.cur.Problem = p
	return nil
}

// SetCode updates the local editor buffer and language.
func (st *Store) SetCode(code, language string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		return fmt.Errorf("session: no session")
	}
	st.cur.Code = code
	if language != "" {
		st.cur.Language = language
	}
	return nil
}

// SetLanguage records the selected language.
func (st *Store) SetLanguage(language string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		return fmt.Errorf("session: no session")
	}
	st.cur.Language = language
	return nil
}

// MarkSelfSubmitted flips the monotonic self-submitted flag. It returns
// true exactly once per session; callers use it as the idempotency gate
// for the outbound submission.
func (st *Store) MarkSelfSubmitted() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil || st.cur.Status != StatusActive || st.cur.SelfSubmitted {
		return false
	}
	st.cur.SelfSubmitted = true
	return true
}

// MarkOpponentSubmitted flips the monotonic opponent flag.
func (st *Store) MarkOpponentSubmitted() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur != nil {
		st.cur.OpponentSubmitted = true
	}
}

// End freezes the session. The terminal event may arrive in any state,
// so this is deliberately not edge-checked.
func (st *Store) End() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur != nil {
		st.cur.Status = StatusEnded
	}
}

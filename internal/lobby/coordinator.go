// internal/lobby/coordinator.go
package lobby

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeduel-dev/codeduel/internal/protocol"
	"github.com/codeduel-dev/codeduel/internal/session"
)

// Pre-match negotiation errors. These are advisory client-side guards:
// the server enforces the same rules independently, so a server
// rejection after a guard somehow passes is still handled gracefully.
var (
	ErrBusy         = errors.New("lobby: another session is in progress")
	ErrNotQueued    = errors.New("lobby: not in queue")
	ErrNotMatched   = errors.New("lobby: no match to ready up for")
	ErrNotHost      = errors.New("lobby: host-only action")
	ErrRoomNotReady = errors.New("lobby: room needs a guest and ready status")
	ErrBadRoomCode  = errors.New("lobby: room code must be up to 6 alphanumeric characters")
)

const (
	// roomOpTimeout bounds create_room/join_room waits. It guards
	// against a silently dropped message; the server may still complete
	// the operation after the client gives up.
	roomOpTimeout = 10 * time.Second

	// errorNavigateDelay keeps a fatal protocol error on screen before
	// returning the user to the dashboard.
	errorNavigateDelay = 3 * time.Second
)

// Emitter sends outbound events. Satisfied by *socket.Manager.
type Emitter interface {
	Emit(msg protocol.Outbound) error
}

// Hooks are the coordinator's outward notifications. Nil hooks are
// skipped. They are invoked outside the coordinator lock.
type Hooks struct {
	// Error surfaces a user-visible message.
	Error func(msg string)
	// Info surfaces a non-error room notice (chat, join/leave messages).
	Info func(msg string)
	// NavigateHome schedules a return to the dashboard after delay.
	NavigateHome func(delay time.Duration)
	// MatchActive fires once when the session hands off to the match
	// runtime.
	MatchActive func()
	// RoomChanged fires after any room-state merge, for display refresh.
	RoomChanged func()
}

// Coordinator drives the pre-match phase for both modes: matchmaking
// queue on one side, private rooms with host controls on the other.
// All session mutation funnels through the session store; the
// coordinator owns only flow bookkeeping (pending ops, timers).
type Coordinator struct {
	emit     Emitter
	sessions *session.Store
	log      *logrus.Logger
	hooks    Hooks
	now      func() time.Time

	// OpTimeout bounds create/join acknowledgment waits. Shortened in
	// tests.
	OpTimeout time.Duration

	mu        sync.Mutex
	pendingOp string // "create_room" | "join_room" | ""
	opTimer   *time.Timer
	roomCode  string

	rooms  []protocol.RoomListing
	status *protocol.SystemStatus
}

// NewCoordinator wires a coordinator to its collaborators.
func NewCoordinator(emit Emitter, sessions *session.Store, log *logrus.Logger, hooks Hooks) *Coordinator {
	return &Coordinator{
		emit:      emit,
		sessions:  sessions,
		log:       log,
		hooks:     hooks,
		now:       time.Now,
		OpTimeout: roomOpTimeout,
	}
}

// NormalizeRoomCode upcases and validates a user-supplied room code.
func NormalizeRoomCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || len(code) > 6 {
		return "", ErrBadRoomCode
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", ErrBadRoomCode
		}
	}
	return code, nil
}

// busy reports whether a session in progress blocks starting a new
// flow. Idle and ended sessions are discardable, not busy: a finished
// match must not wedge the client.
func (c *Coordinator) busy() bool {
	status, ok := c.sessions.Status()
	return ok && status != session.StatusIdle && status != session.StatusEnded
}

// JoinQueue enters the matchmaking queue. The session stays idle until
// the server acknowledges: queued is never assumed optimistically.
func (c *Coordinator) JoinQueue() error {
	if c.busy() {
		return ErrBusy
	}
	c.sessions.Begin(session.ModeQuickMatch)
	return c.emit.Emit(&protocol.JoinQueue{})
}

// LeaveQueue requests queue exit; the session returns to idle on the
// queue_left acknowledgment.
func (c *Coordinator) LeaveQueue() error {
	if status, ok := c.sessions.Status(); !ok || status != session.StatusQueued {
		return ErrNotQueued
	}
	return c.emit.Emit(&protocol.LeaveQueue{})
}

// Ready signals readiness for a found match. After this the only way
// out is leaving the match entirely.
func (c *Coordinator) Ready() error {
	if status, ok := c.sessions.Status(); !ok || status != session.StatusMatched {
		return ErrNotMatched
	}
	if err := c.sessions.MarkReadying(); err != nil {
		return err
	}
	return c.emit.Emit(&protocol.PlayerReady{})
}

// CreateRoom opens a private room with the given settings. Validation
// here is presentational; the server is authoritative on acceptance.
func (c *Coordinator) CreateRoom(settings protocol.RoomSettings) error {
	if c.busy() {
		return ErrBusy
	}
	if settings.TimeLimit <= 0 {
		return fmt.Errorf("lobby: time limit must be positive")
	}
	if settings.MaxPlayers <= 0 {
		settings.MaxPlayers = 2
	}

	c.sessions.Begin(session.ModePrivateRoom)
	// Armed before the emit: an acknowledgment racing the send must
	// always find the pending op to clear.
	c.armOpTimer("create_room")
	if err := c.emit.Emit(&protocol.CreateRoom{Settings: settings}); err != nil {
		c.clearOpTimer()
		c.sessions.Discard()
		return err
	}
	return nil
}

// JoinRoom joins an existing room by code.
func (c *Coordinator) JoinRoom(code string) error {
	normalized, err := NormalizeRoomCode(code)
	if err != nil {
		return err
	}
	if c.busy() {
		return ErrBusy
	}

	c.sessions.Begin(session.ModePrivateRoom)
	c.mu.Lock()
	c.roomCode = normalized
	c.mu.Unlock()
	c.armOpTimer("join_room")
	if err := c.emit.Emit(&protocol.JoinRoomRequest{RoomCode: normalized}); err != nil {
		c.clearOpTimer()
		c.sessions.Discard()
		return err
	}
	return nil
}

// LeaveRoom exits the current room and discards the session.
func (c *Coordinator) LeaveRoom() error {
	err := c.emit.Emit(&protocol.LeaveRoom{})
	c.sessions.Discard()
	c.mu.Lock()
	c.roomCode = ""
	c.mu.Unlock()
	return err
}

// ChangeProblem asks for a problem swap. Host-only; the guard does not
// emit on violation.
func (c *Coordinator) ChangeProblem(problemID string) error {
	snap, ok := c.sessions.Snapshot()
	if !ok || snap.Role != session.RoleHost {
		return ErrNotHost
	}
	return c.emit.Emit(&protocol.ChangeProblem{ProblemID: problemID})
}

// StartMatch starts the room match. Host-only, and only once a guest is
// present and the room reports ready. Both guards are advisory.
func (c *Coordinator) StartMatch() error {
	snap, ok := c.sessions.Snapshot()
	if !ok || snap.Role != session.RoleHost {
		return ErrNotHost
	}
	if snap.Opponent.DisplayName == "" || snap.Status != session.StatusReady {
		return ErrRoomNotReady
	}
	return c.emit.Emit(&protocol.StartRoomMatch{})
}

// RequestRoomInfo asks for an authoritative room snapshot.
func (c *Coordinator) RequestRoomInfo(code string) error {
	return c.emit.Emit(&protocol.GetRoomInfo{RoomCode: code})
}

// RequestRoomList asks for the public room listing.
func (c *Coordinator) RequestRoomList() error {
	return c.emit.Emit(&protocol.GetAllRooms{})
}

// RequestSystemStatus asks for queue/room/presence counters.
func (c *Coordinator) RequestSystemStatus() error {
	return c.emit.Emit(&protocol.GetSystemStatus{})
}

// Rooms returns the last received public room listing.
func (c *Coordinator) Rooms() []protocol.RoomListing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms
}

// SystemStatus returns the last received system counters, if any.
func (c *Coordinator) SystemStatus() (protocol.SystemStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == nil {
		return protocol.SystemStatus{}, false
	}
	return *c.status, true
}

// armOpTimer starts the room-op liveness timeout. The fired callback
// re-checks that it is still the armed timer and that the op is still
// pending, so a late acknowledgment racing the timer is never clobbered.
func (c *Coordinator) armOpTimer(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opTimer != nil {
		c.opTimer.Stop()
	}
	c.pendingOp = op

	var timer *time.Timer
	timer = time.AfterFunc(c.OpTimeout, func() {
		c.mu.Lock()
		if c.opTimer != timer || c.pendingOp != op {
			c.mu.Unlock()
			return
		}
		c.opTimer = nil
		c.pendingOp = ""
		c.mu.Unlock()

		c.log.WithField("op", op).Warn("room operation timed out")
		c.sessions.Discard()
		c.notifyError(fmt.Sprintf("%s timed out, please try again", strings.ReplaceAll(op, "_", " ")))
	})
	c.opTimer = timer
}

// clearOpTimer cancels the pending room-op timeout, if any. Returns
// whether an op was actually pending.
func (c *Coordinator) clearOpTimer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.pendingOp != ""
	if c.opTimer != nil {
		c.opTimer.Stop()
		c.opTimer = nil
	}
	c.pendingOp = ""
	return pending
}

func (c *Coordinator) notifyError(msg string) {
	if c.hooks.Error != nil {
		c.hooks.Error(msg)
	}
}

func (c *Coordinator) notifyInfo(msg string) {
	if c.hooks.Info != nil {
		c.hooks.Info(msg)
	}
}

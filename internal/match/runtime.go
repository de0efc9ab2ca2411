// internal/match/runtime.go
package match

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeduel-dev/codeduel/internal/protocol"
	"github.com/codeduel-dev/codeduel/internal/session"
)

var (
	ErrNotActive        = errors.New("match: no active session")
	ErrAlreadySubmitted = errors.New("match: already submitted")
	ErrEmptyCode        = errors.New("match: refusing to submit empty code")
)

const (
	// submitTimeout bounds the wait for a terminal event after a
	// submission. On expiry the user is told and left to decide; there
	// is deliberately no auto-retry, to avoid double submission.
	submitTimeout = 30 * time.Second

	// forfeitNavigateDelay is how long the forfeit-win notice stays up
	// before navigating away.
	forfeitNavigateDelay = 2 * time.Second

	// errorNavigateDelay mirrors the pre-match error delay.
	errorNavigateDelay = 3 * time.Second

	tickInterval = time.Second
)

// Emitter sends outbound events. Satisfied by *socket.Manager.
type Emitter interface {
	Emit(msg protocol.Outbound) error
}

// Hooks are the runtime's outward notifications, invoked outside the
// runtime lock. Nil hooks are skipped.
type Hooks struct {
	// Tick fires once per second with the clamped remaining time.
	Tick func(remainingMs int64)
	// OpponentSubmitted fires when the opponent's flag flips.
	OpponentSubmitted func()
	// OpponentCode carries the opponent's live buffer.
	OpponentCode func(code string)
	// Chat carries in-match messages.
	Chat func(username, message string)
	// Ended fires exactly once with the projected summary.
	Ended func(summary Summary)
	// ForfeitWin fires on opponent disconnection; navigation away
	// should be scheduled after delay.
	ForfeitWin func(delay time.Duration)
	// Error surfaces a user-visible message.
	Error func(msg string)
	// NavigateHome schedules a return to the dashboard.
	NavigateHome func(delay time.Duration)
}

// Runtime drives the authoring/submission phase of an active session.
// Local state is deliberately thin: the session store holds the truth,
// the runtime holds timers and the submission protocol.
type Runtime struct {
	emit     Emitter
	sessions *session.Store
	log      *logrus.Logger
	hooks    Hooks
	now      func() time.Time

	// SubmitWait bounds the wait for a terminal event after submitting.
	// Shortened in tests.
	SubmitWait time.Duration

	mu          sync.Mutex
	submitTimer *time.Timer
	tickStop    chan struct{}
	finished    bool
}

// NewRuntime wires a runtime to its collaborators.
func NewRuntime(emit Emitter, sessions *session.Store, log *logrus.Logger, hooks Hooks) *Runtime {
	return &Runtime{
		emit:       emit,
		sessions:   sessions,
		log:        log,
		hooks:      hooks,
		now:        time.Now,
		SubmitWait: submitTimeout,
	}
}

// Remaining derives the countdown value: clamped at zero, never
// negative, purely a function of its inputs.
func Remaining(startedAtMs, timeLimitMs, nowMs int64) int64 {
	remaining := startedAtMs + timeLimitMs - nowMs
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Start begins the countdown for the active session. For quick matches
// it also attaches to the server-side match room.
func (r *Runtime) Start() error {
	snap, ok := r.sessions.Snapshot()
	if !ok || !snap.Active() {
		return ErrNotActive
	}

	if snap.Mode == session.ModeQuickMatch && snap.ID != "" {
		if err := r.emit.Emit(&protocol.JoinMatch{MatchID: snap.ID}); err != nil {
			r.log.WithError(err).Warn("join_match emit failed")
		}
	}

	r.mu.Lock()
	r.finished = false
	if r.tickStop != nil {
		close(r.tickStop)
	}
	stop := make(chan struct{})
	r.tickStop = stop
	r.mu.Unlock()

	go r.countdown(snap.StartedAtMs, snap.TimeLimitMs, stop)
	return nil
}

// countdown ticks once per second. It is purely a local derived
// display and trigger; the server is the final arbiter of whether a
// late submission counts.
func (r *Runtime) countdown(startedAtMs, timeLimitMs int64, stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remaining := Remaining(startedAtMs, timeLimitMs, r.now().UnixMilli())
			if r.hooks.Tick != nil {
				r.hooks.Tick(remaining)
			}
			if remaining == 0 {
				r.TimeUp()
				return
			}
		}
	}
}

// SetCode updates the local buffer and, until the local submission, re-
// broadcasts it. After selfSubmitted no further buffer state leaves the
// client.
func (r *Runtime) SetCode(code string) {
	if err := r.sessions.SetCode(code, ""); err != nil {
		return
	}
	snap, ok := r.sessions.Snapshot()
	if !ok || !snap.Active() || snap.SelfSubmitted {
		return
	}

	ts := r.now().UnixMilli()
	var err error
	if snap.Mode == session.ModePrivateRoom {
		err = r.emit.Emit(&protocol.RoomCodeUpdate{Code: code, Timestamp: ts})
	} else {
		err = r.emit.Emit(&protocol.CodeUpdate{Code: code, MatchID: snap.ID, Timestamp: ts})
	}
	if err != nil {
		r.log.WithError(err).Debug("code update emit failed")
	}
}

// SetLanguage records the selected language for the next submission.
func (r *Runtime) SetLanguage(language string) {
	if snap, ok := r.sessions.Snapshot(); ok && snap.SelfSubmitted {
		return
	}
	_ = r.sessions.SetLanguage(language)
}

// Submit sends the solution exactly once. The transition to submitted
// is optimistic: the send is assumed to succeed and the match_ended
// event confirms it. A second call in any later state is a no-op error.
func (r *Runtime) Submit() error {
	snap, ok := r.sessions.Snapshot()
	if !ok || !snap.Active() {
		return ErrNotActive
	}
	if strings.TrimSpace(snap.Code) == "" {
		return ErrEmptyCode
	}

	// The monotonic flag in the store is the single idempotency gate:
	// concurrent user/timer submits collapse to one emission.
	if !r.sessions.MarkSelfSubmitted() {
		return ErrAlreadySubmitted
	}

	err := r.emit.Emit(&protocol.SubmitCode{
		Code:      strings.TrimSpace(snap.Code),
		ProblemID: snap.Problem.ID,
		Language:  snap.Language,
		Timestamp: r.now().UnixMilli(),
	})
	if err != nil {
		r.log.WithError(err).Warn("submission emit failed")
		if r.hooks.Error != nil {
			r.hooks.Error("failed to send submission, connection may be down")
		}
		return err
	}

	r.armSubmitTimer()
	r.log.Info("solution submitted")
	return nil
}

// TimeUp forces a submission when the countdown expires with the local
// player still coding. Already-submitted sessions ignore it.
func (r *Runtime) TimeUp() {
	snap, ok := r.sessions.Snapshot()
	if !ok || !snap.Active() || snap.SelfSubmitted {
		return
	}
	r.log.Info("time expired, auto-submitting")
	if err := r.Submit(); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
		r.log.WithError(err).Warn("auto-submit failed")
	}
}

// armSubmitTimer starts the post-submission liveness timeout. The fired
// callback re-checks state under the lock: if the terminal event beat
// the timer, nothing surfaces.
func (r *Runtime) armSubmitTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitTimer != nil {
		r.submitTimer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(r.SubmitWait, func() {
		r.mu.Lock()
		stale := r.submitTimer != timer || r.finished
		if !stale {
			r.submitTimer = nil
		}
		r.mu.Unlock()
		if stale {
			return
		}
		r.log.Warn("no match result within submission window")
		if r.hooks.Error != nil {
			r.hooks.Error("submission not confirmed yet; the server may still be judging")
		}
	})
	r.submitTimer = timer
}

// HandleInbound routes one server event through the in-match machine.
// Pre-match events fall through; the coordinator owns those.
func (r *Runtime) HandleInbound(ev protocol.Inbound) {
	switch ev := ev.(type) {
	case *protocol.OpponentSubmitted:
		if !ev.Player1Submitted && !ev.Player2Submitted {
			return
		}
		r.sessions.MarkOpponentSubmitted()
		if r.hooks.OpponentSubmitted != nil {
			r.hooks.OpponentSubmitted()
		}

	case *protocol.OpponentCodeUpdate:
		if r.hooks.OpponentCode != nil {
			r.hooks.OpponentCode(ev.Code)
		}

	case *protocol.MatchMessage:
		if r.hooks.Chat != nil {
			r.hooks.Chat(ev.Username, ev.Message)
		}

	case *protocol.MatchEnded:
		// The single terminal transition, valid from any state.
		if !r.finish() {
			return
		}
		r.sessions.End()
		summary := Project(ev, r.sessions.Self().ID)
		if r.hooks.Ended != nil {
			r.hooks.Ended(summary)
		}

	case *protocol.OpponentDisconnected:
		// Not an error: an unconditional win that supersedes any
		// in-flight submission state.
		if !r.finish() {
			return
		}
		r.sessions.End()
		if r.hooks.ForfeitWin != nil {
			r.hooks.ForfeitWin(forfeitNavigateDelay)
		}

	case *protocol.MatchError:
		snap, ok := r.sessions.Snapshot()
		if !ok || !snap.Active() {
			return
		}
		if !r.finish() {
			return
		}
		r.sessions.End()
		if r.hooks.Error != nil {
			r.hooks.Error(ev.Message)
		}
		if r.hooks.NavigateHome != nil {
			r.hooks.NavigateHome(errorNavigateDelay)
		}
	}
}

// finish freezes the runtime: countdown stopped, submission timeout
// cleared so it cannot fire spuriously after a genuine result. Returns
// false if already finished.
func (r *Runtime) finish() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return false
	}
	r.finished = true
	if r.submitTimer != nil {
		r.submitTimer.Stop()
		r.submitTimer = nil
	}
	if r.tickStop != nil {
		close(r.tickStop)
		r.tickStop = nil
	}
	return true
}

// ForceExit abandons the match: tells the server, freezes the runtime,
// discards the session.
func (r *Runtime) ForceExit() {
	snap, ok := r.sessions.Snapshot()
	if ok {
		var err error
		if snap.Mode == session.ModePrivateRoom {
			err = r.emit.Emit(&protocol.LeaveRoom{})
		} else if snap.ID != "" {
			err = r.emit.Emit(&protocol.LeaveMatch{MatchID: snap.ID})
		}
		if err != nil {
			r.log.WithError(err).Debug("leave emit failed")
		}
	}
	r.finish()
	r.sessions.Discard()
}

// SendChat sends an in-match message.
func (r *Runtime) SendChat(message string) error {
	if message == "" {
		return nil
	}
	return r.emit.Emit(&protocol.SendMatchMessage{Message: message})
}

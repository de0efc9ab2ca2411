// internal/match/runtime_test.go
package match

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeduel-dev/codeduel/internal/protocol"
	"github.com/codeduel-dev/codeduel/internal/session"
)

// mockEmitter collects outbound events instead of sending them.
type mockEmitter struct {
	mu     sync.Mutex
	events []protocol.Outbound
}

func (m *mockEmitter) Emit(msg protocol.Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, msg)
	return nil
}

func (m *mockEmitter) byEvent(name string) []protocol.Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []protocol.Outbound
	for _, ev := range m.events {
		if ev.Event() == name {
			out = append(out, ev)
		}
	}
	return out
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

var testProblem = &protocol.Problem{ID: "two-sum", Title: "Two Sum"}

// setupActiveRuntime builds a runtime over an already-active quick
// match session.
func setupActiveRuntime(t *testing.T, hooks Hooks) (*Runtime, *session.Store, *mockEmitter) {
	t.Helper()
	emitter := &mockEmitter{}
	sessions := session.NewStore(session.Participant{ID: "u1", DisplayName: "alice"})
	sessions.Begin(session.ModeQuickMatch)
	require.NoError(t, sessions.ApplyMatchFound(&protocol.MatchFound{
		MatchID: "m-1", Opponent: "bob", Problem: *testProblem, TimeLimit: 300000,
	}))
	require.NoError(t, sessions.MarkReadying())
	require.NoError(t, sessions.Activate(1000, testProblem, 300000))

	r := NewRuntime(emitter, sessions, testLogger(), hooks)
	return r, sessions, emitter
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, int64(300000), Remaining(0, 300000, 0))
	assert.Equal(t, int64(50000), Remaining(1000000, 300000, 1250000))
	assert.Equal(t, int64(0), Remaining(1000000, 300000, 1300000))
	assert.Equal(t, int64(0), Remaining(1000000, 300000, 9999999), "clock clamps at zero")
}

func TestSubmitExactlyOnce(t *testing.T) {
	r, _, emitter := setupActiveRuntime(t, Hooks{})
	r.SetCode("function twoSum() {}")

	require.NoError(t, r.Submit())
	assert.ErrorIs(t, r.Submit(), ErrAlreadySubmitted)
	assert.Len(t, emitter.byEvent("submit_code"), 1, "double submit collapses to one emission")
}

func TestSubmitRefusesEmptyCode(t *testing.T) {
	r, _, emitter := setupActiveRuntime(t, Hooks{})
	r.SetCode("   \n\t  ")
	assert.ErrorIs(t, r.Submit(), ErrEmptyCode)
	assert.Empty(t, emitter.byEvent("submit_code"))
}

func TestSubmitSendsTrimmedCode(t *testing.T) {
	r, _, emitter := setupActiveRuntime(t, Hooks{})
	r.SetLanguage("python")
	r.SetCode("  def two_sum(): pass  \n")
	require.NoError(t, r.Submit())

	subs := emitter.byEvent("submit_code")
	require.Len(t, subs, 1)
	sub := subs[0].(*protocol.SubmitCode)
	assert.Equal(t, "def two_sum(): pass", sub.Code)
	assert.Equal(t, "two-sum", sub.ProblemID)
	assert.Equal(t, "python", sub.Language)
	assert.NotZero(t, sub.Timestamp)
}

func TestTimeUpForcesSubmission(t *testing.T) {
	r, sessions, emitter := setupActiveRuntime(t, Hooks{})
	r.SetCode("partial solution")

	r.TimeUp()
	assert.Len(t, emitter.byEvent("submit_code"), 1)
	snap, _ := sessions.Snapshot()
	assert.True(t, snap.SelfSubmitted)
}

func TestTimeUpAfterSubmitIsNoop(t *testing.T) {
	r, _, emitter := setupActiveRuntime(t, Hooks{})
	r.SetCode("done")
	require.NoError(t, r.Submit())

	r.TimeUp()
	assert.Len(t, emitter.byEvent("submit_code"), 1)
}

func TestCodeUpdatesStopAfterSubmit(t *testing.T) {
	r, _, emitter := setupActiveRuntime(t, Hooks{})
	r.SetCode("draft one")
	r.SetCode("draft two")
	assert.Len(t, emitter.byEvent("code_update"), 2)

	require.NoError(t, r.Submit())
	r.SetCode("post-submit edit")
	assert.Len(t, emitter.byEvent("code_update"), 2, "no buffer state leaves after submitting")
}

func TestRoomModeUsesRoomCodeUpdate(t *testing.T) {
	emitter := &mockEmitter{}
	sessions := session.NewStore(session.Participant{ID: "u1", DisplayName: "alice"})
	sessions.Begin(session.ModePrivateRoom)
	_, err := sessions.ApplyRoom(protocol.Room{
		Code: "XY12", Host: "alice", Guest: "bob",
		Problem: testProblem, Status: protocol.RoomActive,
		Settings: protocol.RoomSettings{TimeLimit: 300000},
	})
	require.NoError(t, err)
	sessions.StampStart(1000)
	r := NewRuntime(emitter, sessions, testLogger(), Hooks{})

	r.SetCode("room draft")
	assert.Len(t, emitter.byEvent("room_code_update"), 1)
	assert.Empty(t, emitter.byEvent("code_update"))
}

func TestMatchEndedProjectsAndFreezes(t *testing.T) {
	var summaries []Summary
	r, sessions, _ := setupActiveRuntime(t, Hooks{
		Ended: func(s Summary) { summaries = append(summaries, s) },
	})

	winner := "u1"
	ended := &protocol.MatchEnded{
		Winner:        &winner,
		Player1:       protocol.PlayerResult{ID: "u1", Username: "alice", Score: 100},
		Player2:       protocol.PlayerResult{ID: "u2", Username: "bob", Score: 40},
		Reason:        "completed",
		MatchDuration: 200000,
	}
	r.HandleInbound(ended)
	r.HandleInbound(ended)

	require.Len(t, summaries, 1, "terminal event fires hooks once")
	assert.Equal(t, OutcomeWin, summaries[0].Outcome)
	snap, _ := sessions.Snapshot()
	assert.Equal(t, session.StatusEnded, snap.Status)
}

func TestMatchEndedClearsSubmitTimer(t *testing.T) {
	sink := make(chan string, 1)
	r, _, _ := setupActiveRuntime(t, Hooks{
		Error: func(msg string) { sink <- msg },
	})
	r.SubmitWait = 30 * time.Millisecond

	r.SetCode("done")
	require.NoError(t, r.Submit())
	r.HandleInbound(&protocol.MatchEnded{
		Player1: protocol.PlayerResult{ID: "u1"},
		Player2: protocol.PlayerResult{ID: "u2"},
		Reason:  "completed",
	})

	select {
	case msg := <-sink:
		t.Fatalf("submission timeout fired after the result arrived: %q", msg)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestSubmitTimeoutSurfacesWhenNoResult(t *testing.T) {
	sink := make(chan string, 1)
	r, _, _ := setupActiveRuntime(t, Hooks{
		Error: func(msg string) { sink <- msg },
	})
	r.SubmitWait = 20 * time.Millisecond

	r.SetCode("done")
	require.NoError(t, r.Submit())

	select {
	case msg := <-sink:
		assert.Contains(t, msg, "not confirmed")
	case <-time.After(200 * time.Millisecond):
		t.Fatal("submission timeout never fired")
	}
}

func TestOpponentDisconnectedIsForfeitWin(t *testing.T) {
	var forfeitDelay time.Duration
	var endedCalls int
	r, sessions, _ := setupActiveRuntime(t, Hooks{
		ForfeitWin: func(d time.Duration) { forfeitDelay = d },
		Ended:      func(Summary) { endedCalls++ },
	})
	r.SetCode("done")
	require.NoError(t, r.Submit())

	// The forfeit supersedes any in-flight submission state.
	r.HandleInbound(&protocol.OpponentDisconnected{})
	assert.Equal(t, 2*time.Second, forfeitDelay)
	assert.Zero(t, endedCalls)
	snap, _ := sessions.Snapshot()
	assert.Equal(t, session.StatusEnded, snap.Status)

	// A late terminal event after the forfeit changes nothing.
	r.HandleInbound(&protocol.MatchEnded{Reason: "completed"})
	assert.Zero(t, endedCalls)
}

func TestOpponentSubmittedFlag(t *testing.T) {
	var notified int
	r, sessions, _ := setupActiveRuntime(t, Hooks{
		OpponentSubmitted: func() { notified++ },
	})

	r.HandleInbound(&protocol.OpponentSubmitted{Player2Submitted: true})
	assert.Equal(t, 1, notified)
	snap, _ := sessions.Snapshot()
	assert.True(t, snap.OpponentSubmitted)

	// Both flags false is a status echo, not a submission.
	r.HandleInbound(&protocol.OpponentSubmitted{})
	assert.Equal(t, 1, notified)
}

func TestMatchErrorWhenActive(t *testing.T) {
	var errMsgs []string
	var navDelay time.Duration
	r, sessions, _ := setupActiveRuntime(t, Hooks{
		Error:        func(msg string) { errMsgs = append(errMsgs, msg) },
		NavigateHome: func(d time.Duration) { navDelay = d },
	})

	r.HandleInbound(&protocol.MatchError{Message: "judge crashed"})
	assert.Equal(t, []string{"judge crashed"}, errMsgs)
	assert.Equal(t, 3*time.Second, navDelay)
	snap, _ := sessions.Snapshot()
	assert.Equal(t, session.StatusEnded, snap.Status)
}

func TestChatRouting(t *testing.T) {
	type chat struct{ who, msg string }
	var chats []chat
	r, _, emitter := setupActiveRuntime(t, Hooks{
		Chat: func(who, msg string) { chats = append(chats, chat{who, msg}) },
	})

	r.HandleInbound(&protocol.MatchMessage{Username: "bob", Message: "gl hf"})
	require.Len(t, chats, 1)
	assert.Equal(t, "bob", chats[0].who)

	require.NoError(t, r.SendChat("you too"))
	assert.Len(t, emitter.byEvent("match_message"), 1)
}

func TestForceExitQuickMatch(t *testing.T) {
	r, sessions, emitter := setupActiveRuntime(t, Hooks{})
	r.ForceExit()

	leaves := emitter.byEvent("leave_match")
	require.Len(t, leaves, 1)
	assert.Equal(t, "m-1", leaves[0].(*protocol.LeaveMatch).MatchID)
	_, ok := sessions.Snapshot()
	assert.False(t, ok)
}

func TestStartJoinsQuickMatchRoom(t *testing.T) {
	r, _, emitter := setupActiveRuntime(t, Hooks{})
	require.NoError(t, r.Start())
	defer r.ForceExit()

	joins := emitter.byEvent("join_match")
	require.Len(t, joins, 1)
	assert.Equal(t, "m-1", joins[0].(*protocol.JoinMatch).MatchID)
}

// internal/session/store_test.go
package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeduel-dev/codeduel/internal/protocol"
)

var testProblem = &protocol.Problem{ID: "two-sum", Title: "Two Sum", Difficulty: "Easy"}

func newTestStore() *Store {
	return NewStore(Participant{ID: "u1", DisplayName: "alice"})
}

func TestQuickMatchLifecycle(t *testing.T) {
	st := newTestStore()
	st.Begin(ModeQuickMatch)

	require.NoError(t, st.MarkQueued(3))
	snap, ok := st.Snapshot()
	require.True(t, ok)
	assert.Equal(t, StatusQueued, snap.Status)
	assert.Equal(t, 3, snap.QueueSize)

	require.NoError(t, st.ApplyMatchFound(&protocol.MatchFound{
		MatchID:   "m-1",
		Opponent:  "bob",
		Problem:   *testProblem,
		TimeLimit: 300000,
	}))
	require.NoError(t, st.MarkReadying())
	require.NoError(t, st.Activate(1000, testProblem, 300000))

	snap, _ = st.Snapshot()
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, "m-1", snap.ID)
	assert.Equal(t, "bob", snap.Opponent.DisplayName)
	assert.Equal(t, int64(1000), snap.StartedAtMs)
}

func TestStartTimeSetOnce(t *testing.T) {
	st := newTestStore()
	st.Begin(ModeQuickMatch)
	require.NoError(t, st.ApplyMatchFound(&protocol.MatchFound{MatchID: "m-1", Problem: *testProblem}))
	require.NoError(t, st.MarkReadying())
	require.NoError(t, st.Activate(1000, testProblem, 300000))

	err := st.Activate(2000, testProblem, 300000)
	assert.Error(t, err, "second activation must be rejected")
	snap, _ := st.Snapshot()
	assert.Equal(t, int64(1000), snap.StartedAtMs)
}

func TestStampStartIsIdempotent(t *testing.T) {
	st := newTestStore()
	st.Begin(ModePrivateRoom)
	_, err := st.ApplyRoom(protocol.Room{
		Code: "ABC123", Host: "alice", Guest: "bob",
		Problem: testProblem, Status: protocol.RoomActive,
	})
	require.NoError(t, err)

	st.StampStart(5000)
	st.StampStart(9000)
	snap, _ := st.Snapshot()
	assert.Equal(t, int64(5000), snap.StartedAtMs)
}

func TestMatchFoundWhileNotQueued(t *testing.T) {
	// The server pairing is authoritative even if a leave raced it:
	// match_found lands on an idle or missing session and still sticks.
	st := newTestStore()
	require.NoError(t, st.ApplyMatchFound(&protocol.MatchFound{
		MatchID: "m-9", Opponent: "bob", Problem: *testProblem, TimeLimit: 300000,
	}))
	snap, ok := st.Snapshot()
	require.True(t, ok)
	assert.Equal(t, StatusMatched, snap.Status)
	assert.Equal(t, "m-9", snap.ID)
}

func TestQueueLeftReturnsToIdle(t *testing.T) {
	st := newTestStore()
	st.Begin(ModeQuickMatch)
	require.NoError(t, st.MarkQueued(1))
	require.NoError(t, st.MarkQueueLeft())
	snap, _ := st.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
}

func TestIllegalTransitions(t *testing.T) {
	st := newTestStore()
	st.Begin(ModeQuickMatch)

	assert.Error(t, st.MarkReadying(), "readying requires matched")
	assert.Error(t, st.Activate(1000, testProblem, 300000), "idle cannot activate")
}

func TestActivateRequiresProblem(t *testing.T) {
	st := newTestStore()
	st.Begin(ModeQuickMatch)
	require.NoError(t, st.ApplyMatchFound(&protocol.MatchFound{MatchID: "m-1", Problem: *testProblem}))
	require.NoError(t, st.MarkReadying())
	assert.Error(t, st.Activate(1000, nil, 0))
}

func TestRoomMergeLastWriteWins(t *testing.T) {
	st := newTestStore()
	st.Begin(ModePrivateRoom)

	became, err := st.ApplyRoom(protocol.Room{Code: "XY12", Host: "alice", Status: protocol.RoomWaiting})
	require.NoError(t, err)
	assert.False(t, became)
	snap, _ := st.Snapshot()
	assert.Equal(t, RoleHost, snap.Role)
	assert.Equal(t, StatusWaiting, snap.Status)

	became, err = st.ApplyRoom(protocol.Room{Code: "XY12", Host: "alice", Guest: "bob", Status: protocol.RoomReady})
	require.NoError(t, err)
	assert.False(t, became)
	snap, _ = st.Snapshot()
	assert.Equal(t, "bob", snap.Opponent.DisplayName)
	assert.Equal(t, StatusReady, snap.Status)

	became, err = st.ApplyRoom(protocol.Room{
		Code: "XY12", Host: "alice", Guest: "bob",
		Problem: testProblem, Status: protocol.RoomActive,
		Settings: protocol.RoomSettings{TimeLimit: 300000},
	})
	require.NoError(t, err)
	assert.True(t, became, "waiting/ready to active flips the session")
	snap, _ = st.Snapshot()
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, int64(300000), snap.TimeLimitMs)
}

func TestRoomActivationRequiresProblem(t *testing.T) {
	st := newTestStore()
	st.Begin(ModePrivateRoom)
	_, err := st.ApplyRoom(protocol.Room{Code: "XY12", Host: "alice", Guest: "bob", Status: protocol.RoomWaiting})
	require.NoError(t, err)

	// An active snapshot with no problem must not activate the session.
	became, err := st.ApplyRoom(protocol.Room{
		Code: "XY12", Host: "alice", Guest: "bob", Status: protocol.RoomActive,
	})
	assert.Error(t, err)
	assert.False(t, became)
	snap, _ := st.Snapshot()
	assert.NotEqual(t, StatusActive, snap.Status)
	assert.Nil(t, snap.Problem)

	// The same snapshot carrying the problem activates normally.
	became, err = st.ApplyRoom(protocol.Room{
		Code: "XY12", Host: "alice", Guest: "bob",
		Problem: testProblem, Status: protocol.RoomActive,
	})
	require.NoError(t, err)
	assert.True(t, became)
}

func TestRoomMergeGuestRole(t *testing.T) {
	st := newTestStore()
	st.Begin(ModePrivateRoom)
	_, err := st.ApplyRoom(protocol.Room{Code: "XY12", Host: "bob", Guest: "alice", Status: protocol.RoomReady})
	require.NoError(t, err)
	snap, _ := st.Snapshot()
	assert.Equal(t, RoleGuest, snap.Role)
	assert.Equal(t, "bob", snap.Opponent.DisplayName)
}

func TestRepeatedActiveSnapshotDoesNotReactivate(t *testing.T) {
	st := newTestStore()
	st.Begin(ModePrivateRoom)
	room := protocol.Room{Code: "XY12", Host: "alice", Guest: "bob", Problem: testProblem, Status: protocol.RoomActive}

	became, err := st.ApplyRoom(room)
	require.NoError(t, err)
	assert.True(t, became)

	became, err = st.ApplyRoom(room)
	require.NoError(t, err)
	assert.False(t, became, "already active, no second hand-off")
}

func TestSelfSubmittedCAS(t *testing.T) {
	st := newTestStore()
	st.Begin(ModeQuickMatch)
	require.NoError(t, st.ApplyMatchFound(&protocol.MatchFound{MatchID: "m-1", Problem: *testProblem}))
	require.NoError(t, st.MarkReadying())
	require.NoError(t, st.Activate(1000, testProblem, 300000))

	assert.True(t, st.MarkSelfSubmitted(), "first submission wins")
	assert.False(t, st.MarkSelfSubmitted(), "flag is monotonic")
}

func TestSelfSubmittedRequiresActive(t *testing.T) {
	st := newTestStore()
	st.Begin(ModeQuickMatch)
	assert.False(t, st.MarkSelfSubmitted())
}

func TestEndFromAnyState(t *testing.T) {
	st := newTestStore()
	st.Begin(ModeQuickMatch)
	require.NoError(t, st.MarkQueued(1))

	// Terminal events can arrive out of order; End never errors.
	st.End()
	snap, _ := st.Snapshot()
	assert.Equal(t, StatusEnded, snap.Status)
}

func TestProblemImmutableOnceActive(t *testing.T) {
	st := newTestStore()
	st.Begin(ModePrivateRoom)
	_, err := st.ApplyRoom(protocol.Room{
		Code: "XY12", Host: "alice", Guest: "bob",
		Problem: testProblem, Status: protocol.RoomActive,
	})
	require.NoError(t, err)

	other := &protocol.Problem{ID: "three-sum"}
	assert.Error(t, st.SetProblem(other))
	snap, _ := st.Snapshot()
	assert.Equal(t, "two-sum", snap.Problem.ID)
}

func TestBeginReplacesExistingSession(t *testing.T) {
	st := newTestStore()
	st.Begin(ModeQuickMatch)
	require.NoError(t, st.MarkQueued(2))

	st.Begin(ModePrivateRoom)
	snap, _ := st.Snapshot()
	assert.Equal(t, ModePrivateRoom, snap.Mode)
	assert.Equal(t, StatusPending, snap.Status)
	assert.Equal(t, 0, snap.QueueSize)
}

// internal/lobby/dispatch.go
package lobby

import (
	"github.com/codeduel-dev/codeduel/internal/protocol"
	"github.com/codeduel-dev/codeduel/internal/session"
	"github.com/codeduel-dev/codeduel/internal/socket"
)

// HandleInbound routes one server event through the pre-match state
// machine. Events the coordinator does not own (in-match traffic) fall
// through untouched; the match runtime has its own dispatch.
func (c *Coordinator) HandleInbound(ev protocol.Inbound) {
	switch ev := ev.(type) {
	case *protocol.QueueJoined:
		if err := c.sessions.MarkQueued(ev.QueueSize); err != nil {
			c.log.WithError(err).Warn("ignoring queue_joined")
			return
		}
		c.log.WithField("queue_size", ev.QueueSize).Info("joined queue")

	case *protocol.QueueLeft:
		if err := c.sessions.MarkQueueLeft(); err != nil {
			c.log.WithError(err).Debug("ignoring queue_left")
			return
		}
		c.notifyInfo(ev.Message)

	case *protocol.MatchFound:
		// Authoritative even when a leave_queue is in flight; the
		// server's ordering wins over local intent.
		if err := c.sessions.ApplyMatchFound(ev); err != nil {
			c.log.WithError(err).Warn("ignoring match_found")
			return
		}
		c.log.WithFields(map[string]interface{}{
			"match_id": ev.MatchID,
			"opponent": ev.Opponent,
		}).Info("match found")

	case *protocol.MatchStarted:
		problem := ev.Problem
		if err := c.sessions.Activate(ev.StartTime, &problem, ev.TimeLimit); err != nil {
			c.log.WithError(err).Warn("ignoring match_started")
			return
		}
		if c.hooks.MatchActive != nil {
			c.hooks.MatchActive()
		}

	case *protocol.PlayerReadyStatus:
		c.log.WithFields(map[string]interface{}{
			"player1": ev.Player1Ready,
			"player2": ev.Player2Ready,
		}).Debug("ready status")

	case *protocol.MatchError:
		// Fatal to the pre-match flow: surface, discard, go home.
		if status, ok := c.sessions.Status(); !ok || status == session.StatusActive {
			// Mid-match errors belong to the runtime.
			return
		}
		c.sessions.Discard()
		c.notifyError(ev.Message)
		if c.hooks.NavigateHome != nil {
			c.hooks.NavigateHome(errorNavigateDelay)
		}

	case *protocol.RoomCreated:
		c.clearOpTimer()
		c.mu.Lock()
		c.roomCode = ev.RoomCode
		c.mu.Unlock()
		c.applyRoom(ev.Room)

	case *protocol.RoomJoined:
		c.clearOpTimer()
		c.mu.Lock()
		c.roomCode = ev.RoomCode
		c.mu.Unlock()
		c.applyRoom(ev.Room)

	case *protocol.RoomUpdated:
		c.applyRoom(ev.Room)

	case *protocol.RoomInfo:
		c.applyRoom(ev.Room)

	case *protocol.RoomReset:
		c.applyRoom(ev.Room)

	case *protocol.ProblemChanged:
		problem := ev.Problem
		if err := c.sessions.SetProblem(&problem); err != nil {
			c.log.WithError(err).Warn("ignoring problem_changed")
			return
		}
		if c.hooks.RoomChanged != nil {
			c.hooks.RoomChanged()
		}

	case *protocol.RoomError:
		wasPending := c.clearOpTimer()
		if wasPending {
			// The create/join attempt failed outright.
			c.sessions.Discard()
		}
		// In-room errors (e.g. a rejected start_match) are surfaced but
		// not fatal; the room stays alive.
		c.notifyError(ev.Message)

	case *protocol.RoomMessage:
		c.notifyInfo(ev.Message)

	case *protocol.RoomList:
		c.mu.Lock()
		c.rooms = ev.Rooms
		c.mu.Unlock()

	case *protocol.SystemStatus:
		status := *ev
		c.mu.Lock()
		c.status = &status
		c.mu.Unlock()

	case *protocol.OnlineUsersCount:
		c.mu.Lock()
		if c.status == nil {
			c.status = &protocol.SystemStatus{}
		}
		c.status.OnlineUsers = ev.Count
		c.mu.Unlock()
	}
}

// applyRoom funnels every authoritative room snapshot through the same
// last-write-wins merge and handles the activation hand-off.
func (c *Coordinator) applyRoom(room protocol.Room) {
	becameActive, err := c.sessions.ApplyRoom(room)
	if err != nil {
		c.log.WithError(err).Warn("ignoring room snapshot")
		return
	}
	if c.hooks.RoomChanged != nil {
		c.hooks.RoomChanged()
	}
	if becameActive {
		// The backend does not stamp a start time in room snapshots;
		// the local clock stands in for it.
		c.sessions.StampStart(c.now().UnixMilli())
		if c.hooks.MatchActive != nil {
			c.hooks.MatchActive()
		}
	}
}

// HandleConnState reacts to connection-health transitions. A fresh
// connection with a live room session triggers a room-info re-request
// so the authoritative state is re-fetched after a reconnect; quick
// matches have no re-fetch primitive in the contract, so nothing can be
// re-requested there.
func (c *Coordinator) HandleConnState(state socket.State) {
	if state != socket.Connected {
		return
	}
	snap, ok := c.sessions.Snapshot()
	if !ok || snap.Mode != session.ModePrivateRoom || snap.ID == "" {
		return
	}
	if err := c.RequestRoomInfo(snap.ID); err != nil {
		c.log.WithError(err).Warn("room resync request failed")
	}
}

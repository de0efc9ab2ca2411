// internal/socket/manager.go
package socket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codeduel-dev/codeduel/internal/protocol"
)

// State is the tri-state connection health signal.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	pingTimeout  = 15 * time.Second
)

// Manager maintains exactly one live realtime connection per
// authenticated identity. Transport failures never surface as errors to
// Connect's caller; they collapse into the Disconnected health state.
// The manager does not replay missed events: after a reconnect, callers
// that need current server state must re-request it.
type Manager struct {
	url string
	log *logrus.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	token     string
	state     State
	subs      map[uuid.UUID]*Subscription
	stateSubs map[uuid.UUID]*StateSubscription
	cancel    context.CancelFunc
	out       chan []byte
}

// Subscription is a handle onto the inbound event stream. Close
// releases it; events after Close are dropped, never delivered.
type Subscription struct {
	C <-chan protocol.Inbound

	id   uuid.UUID
	c    chan protocol.Inbound
	m    *Manager
	once sync.Once
}

// Close releases the subscription. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.m.mu.Lock()
		delete(s.m.subs, s.id)
		s.m.mu.Unlock()
	})
}

// StateSubscription is a handle onto health transitions.
type StateSubscription struct {
	C <-chan State

	id   uuid.UUID
	c    chan State
	m    *Manager
	once sync.Once
}

// Close releases the subscription. Idempotent.
func (s *StateSubscription) Close() {
	s.once.Do(func() {
		s.m.mu.Lock()
		delete(s.m.stateSubs, s.id)
		s.m.mu.Unlock()
	})
}

// NewManager creates a manager for the given websocket endpoint.
func NewManager(url string, log *logrus.Logger) *Manager {
	return &Manager{
		url:       url,
		log:       log,
		state:     Disconnected,
		subs:      make(map[uuid.UUID]*Subscription),
		stateSubs: make(map[uuid.UUID]*StateSubscription),
	}
}

// State returns the current health state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers for inbound events. The returned handle must be
// closed when its owner's lifetime ends.
func (m *Manager) Subscribe() *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	sub := &Subscription{id: id, c: make(chan protocol.Inbound, 32), m: m}
	sub.C = sub.c
	m.subs[id] = sub
	return sub
}

// SubscribeState registers for health transitions.
func (m *Manager) SubscribeState() *StateSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	sub := &StateSubscription{id: id, c: make(chan State, 8), m: m}
	sub.C = sub.c
	m.stateSubs[id] = sub
	return sub
}

// Connect establishes the channel with the given bearer token. No-op if
// already connected with the same token; a different token tears the
// old channel down first. Transport errors are not returned: the
// manager lands in Disconnected and dependents observe that instead.
func (m *Manager) Connect(ctx context.Context, token string) {
	m.mu.Lock()
	if m.state != Disconnected && m.token == token {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		m.disconnectUnsafe()
	}
	m.token = token
	m.setStateUnsafe(Connecting)
	m.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.Dial(ctx, m.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		m.log.WithError(err).Warn("websocket dial failed")
		m.mu.Lock()
		m.setStateUnsafe(Disconnected)
		m.mu.Unlock()
		return
	}
	conn.SetReadLimit(1 << 20)

	pumpCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.conn = conn
	m.cancel = cancel
	m.out = make(chan []byte, 32)
	m.setStateUnsafe(Connected)
	out := m.out
	m.mu.Unlock()

	go m.writePump(pumpCtx, conn, out)
	go m.readPump(pumpCtx, conn)
}

// Disconnect tears down the channel. Idempotent. Any in-flight request
// is abandoned; retry policy belongs to callers.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectUnsafe()
}

func (m *Manager) disconnectUnsafe() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close(websocket.StatusNormalClosure, "client disconnect")
		m.conn = nil
	}
	m.out = nil
	m.setStateUnsafe(Disconnected)
}

// Emit sends one outbound event. It fails fast when disconnected rather
// than queueing: the caller decides whether the action is worth
// retrying once the channel is back.
func (m *Manager) Emit(msg protocol.Outbound) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	out := m.out
	state := m.state
	m.mu.Unlock()

	if state != Connected || out == nil {
		return fmt.Errorf("socket: emit %s while %s", msg.Event(), state)
	}
	select {
	case out <- data:
		return nil
	default:
		return fmt.Errorf("socket: outbound queue full, dropped %s", msg.Event())
	}
}

// setStateUnsafe records the transition and fans it out non-blockingly.
func (m *Manager) setStateUnsafe(s State) {
	if m.state == s {
		return
	}
	m.state = s
	for _, sub := range m.stateSubs {
		select {
		case sub.c <- s:
		default:
			m.log.WithField("state", s).Warn("state subscriber full, dropped transition")
		}
	}
}

func (m *Manager) readPump(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				m.log.Info("websocket closed")
			} else if ctx.Err() == nil {
				m.log.WithError(err).Warn("websocket read error")
			}
			m.mu.Lock()
			// Only transition if this pump's connection is still current.
			if m.conn == conn {
				m.disconnectUnsafe()
			}
			m.mu.Unlock()
			return
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			m.log.WithError(err).Warn("dropping undecodable frame")
			continue
		}
		m.dispatch(ev)
	}
}

func (m *Manager) dispatch(ev protocol.Inbound) {
	m.mu.Lock()
	targets := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		targets = append(targets, sub)
	}
	m.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.c <- ev:
		default:
			m.log.Warn("event subscriber full, dropped event")
		}
	}
}

func (m *Manager) writePump(ctx context.Context, conn *websocket.Conn, out <-chan []byte) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-out:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				m.log.WithError(err).Warn("websocket write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				m.log.WithError(err).Warn("ping failed, assuming disconnect")
				m.mu.Lock()
				if m.conn == conn {
					m.disconnectUnsafe()
				}
				m.mu.Unlock()
				return
			}
		}
	}
}

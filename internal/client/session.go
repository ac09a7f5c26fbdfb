package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/kickdeal/chatlink/internal/auth"
	"github.com/kickdeal/chatlink/internal/stats"
)

const (
	writeWait         = 10 * time.Second
	heartbeatInterval = 30 * time.Second
	maxFrameSize      = 4096
	sendBufferSize    = 64
	eventBufferSize   = 256

	defaultConnectTimeout = 10 * time.Second
)

const (
	StatConnects        = "Connects"
	StatConnectFailures = "ConnectFailures"
	StatReconnects      = "Reconnects"
	StatInboundFrames   = "InboundFrames"
	StatDroppedFrames   = "DroppedFrames"
	StatDroppedEvents   = "DroppedEvents"
	StatPublishFailures = "PublishFailures"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrNotConnected   = errors.New("not connected")
	ErrBrokerRejected = errors.New("broker rejected connection")
	ErrSendBufferFull = errors.New("send buffer full")
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// connectAttempt is the single in-flight connect shared by all concurrent
// callers. It resolves exactly once.
type connectAttempt struct {
	once sync.Once
	done chan struct{}
	err  error
}

func (a *connectAttempt) resolve(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// Session owns the broker connection for exactly one chat room: it drives
// connect/reconnect, routes inbound frames into events and the backlog, and
// publishes outbound intents. All connection state is mutated only by the
// session itself; observers read it through accessors and the event channel.
type Session struct {
	roomId    string
	brokerURL string
	creds     auth.CredentialSource
	backoff   Backoff
	log       *log.Logger
	stats     stats.StatsProvider

	// Dialer and ConnectTimeout may be adjusted before the first Connect.
	Dialer         *websocket.Dialer
	ConnectTimeout time.Duration

	backlog *Backlog
	events  chan Event

	mu               sync.Mutex
	state            State
	conn             *websocket.Conn
	sendCh           chan *Frame
	stopWrite        chan struct{}
	subId            string
	attempt          *connectAttempt
	gen              int
	retries          int
	reconnectPending bool
	reconnectTimer   *time.Timer
	peerTyping       bool
	closed           bool
}

func NewSession(roomId, brokerURL string, creds auth.CredentialSource, backoff Backoff, sp stats.StatsProvider, logger *log.Logger) *Session {
	for _, name := range []string{
		StatConnects, StatConnectFailures, StatReconnects,
		StatInboundFrames, StatDroppedFrames, StatDroppedEvents,
		StatPublishFailures,
	} {
		sp.RegisterMetric(name)
	}

	return &Session{
		roomId:         roomId,
		brokerURL:      brokerURL,
		creds:          creds,
		backoff:        backoff,
		log:            logger,
		stats:          sp,
		Dialer:         websocket.DefaultDialer,
		ConnectTimeout: defaultConnectTimeout,
		backlog:        NewBacklog(),
		events:         make(chan Event, eventBufferSize),
	}
}

func (s *Session) RoomId() string { return s.roomId }

// Events delivers inbound application events and state changes. The channel
// is never closed; enqueueing is non-blocking and drops when the observer
// falls behind.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) Backlog() *Backlog { return s.backlog }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// PeerTyping reports the last TYPING flag received from the other
// participant. Last write wins; the flag resets on disconnect.
func (s *Session) PeerTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.peerTyping
}

// Connect establishes the broker connection and room subscription. It is
// idempotent: while connected it returns immediately, and a call made while
// an attempt is in flight waits on that attempt instead of opening a second
// transport.
func (s *Session) Connect(ctx context.Context) error {
	return s.connect(ctx, false)
}

func (s *Session) connect(ctx context.Context, auto bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	if s.attempt != nil {
		a := s.attempt
		s.mu.Unlock()
		return awaitAttempt(ctx, a)
	}

	a := &connectAttempt{done: make(chan struct{})}
	s.attempt = a
	s.gen++
	gen := s.gen
	s.cleanupLocked()
	s.setStateLocked(StateConnecting, nil)
	s.mu.Unlock()

	s.stats.Incr(StatConnects)
	go s.runConnect(gen, a, auto)

	return awaitAttempt(ctx, a)
}

func awaitAttempt(ctx context.Context, a *connectAttempt) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) runConnect(gen int, a *connectAttempt, auto bool) {
	token, err := s.creds.Token()
	if err != nil {
		s.failAttempt(gen, a, err, auto)
		return
	}

	deadline := time.Now().Add(s.ConnectTimeout)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err := s.Dialer.DialContext(ctx, s.brokerURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		s.failAttempt(gen, a, fmt.Errorf("dial broker: %w", err), auto)
		return
	}

	subId, err := s.subscribe(conn, deadline)
	if err != nil {
		conn.Close()
		s.failAttempt(gen, a, err, auto)
		return
	}

	s.mu.Lock()
	if s.closed || gen != s.gen {
		// The session moved on while the handshake was in flight. Do not
		// resurrect the subscription.
		s.mu.Unlock()
		conn.Close()
		a.resolve(ErrSessionClosed)
		return
	}

	conn.SetReadDeadline(time.Time{})
	s.conn = conn
	s.subId = subId
	s.sendCh = make(chan *Frame, sendBufferSize)
	s.stopWrite = make(chan struct{})
	s.retries = 0
	s.attempt = nil
	s.setStateLocked(StateConnected, nil)
	go s.writeLoop(conn, s.sendCh, s.stopWrite)
	go s.readLoop(conn, gen)
	s.mu.Unlock()

	s.log.Printf("connected to room %q (subscription %s)", s.roomId, subId)
	a.resolve(nil)
}

// subscribe issues the topic SUBSCRIBE and waits for the broker's matching
// RECEIPT. Application frames delivered before the receipt are routed
// normally rather than dropped.
func (s *Session) subscribe(conn *websocket.Conn, deadline time.Time) (string, error) {
	id, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate subscription id: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(NewSubscribeFrame(id, s.roomId)); err != nil {
		return "", fmt.Errorf("subscribe: %w", err)
	}

	conn.SetReadDeadline(deadline)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("await subscribe receipt: %w", err)
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			s.log.Println("drop frame:", err)
			s.stats.Incr(StatDroppedFrames)
			continue
		}

		switch f.Type {
		case FrameReceipt:
			if f.Id == id {
				return id, nil
			}
		case FrameError:
			var p ErrorPayload
			if err := json.Unmarshal(f.Data, &p); err == nil && p.Message != "" {
				return "", fmt.Errorf("%w: %s", ErrBrokerRejected, p.Message)
			}
			return "", ErrBrokerRejected
		default:
			s.routeFrame(&f)
		}
	}
}

func (s *Session) failAttempt(gen int, a *connectAttempt, err error, auto bool) {
	s.stats.Incr(StatConnectFailures)

	s.mu.Lock()
	if !s.closed && gen == s.gen {
		s.attempt = nil
		s.setStateLocked(StateError, err)
		// Policy-driven attempts keep retrying; caller-driven failures
		// surface once and stop.
		if auto {
			s.scheduleReconnectLocked()
		}
	}
	s.mu.Unlock()

	a.resolve(err)
}

func (s *Session) readLoop(conn *websocket.Conn, gen int) {
	conn.SetReadLimit(maxFrameSize)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("read: %v", err)
			}
			s.connLost(gen, err)
			return
		}

		s.handleFrame(raw)
	}
}

// writeLoop is the sole writer on the connection after the handshake, so
// user publishes, heartbeats, and teardown frames never interleave. It owns
// closing the transport.
func (s *Session) writeLoop(conn *websocket.Conn, sendCh <-chan *Frame, stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case f := <-sendCh:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				s.log.Printf("write frame: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(NewPingFrame()); err != nil {
				s.log.Printf("heartbeat: %v", err)
				return
			}
		case <-stop:
			s.drainAndClose(conn, sendCh)
			return
		}
	}
}

// drainAndClose flushes frames queued before the stop signal, then starts
// the close handshake.
func (s *Session) drainAndClose(conn *websocket.Conn, sendCh <-chan *Frame) {
	for {
		select {
		case f := <-sendCh:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				s.log.Printf("write frame: %v", err)
				return
			}
		default:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// connLost handles a transport close observed by the read loop. Stale
// notifications from a superseded connection are ignored.
func (s *Session) connLost(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen {
		return
	}

	s.cleanupLocked()
	s.setStateLocked(StateIdle, err)

	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.scheduleReconnectLocked()
	}
}

// scheduleReconnectLocked arms the reconnect timer. At most one timer is
// pending at a time regardless of how many closes are observed.
func (s *Session) scheduleReconnectLocked() {
	if s.backoff == nil || s.reconnectPending || s.closed {
		return
	}

	delay := s.backoff.Next(s.retries)
	s.retries++
	s.reconnectPending = true
	s.log.Printf("reconnecting to room %q in %s", s.roomId, delay)

	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.reconnectPending = false
		if s.closed || s.state == StateConnected || s.attempt != nil {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.stats.Incr(StatReconnects)
		if err := s.connect(context.Background(), true); err != nil {
			s.log.Printf("reconnect: %v", err)
		}
	})
}

// Close tears the session down: the subscription is released best-effort,
// the transport is closed, and any in-flight connect is rejected so waiting
// callers are not left hanging. The session cannot be reused afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
		s.reconnectPending = false
	}

	if s.attempt != nil {
		s.attempt.resolve(ErrSessionClosed)
		s.attempt = nil
	}

	if s.state == StateConnected && s.sendCh != nil && s.subId != "" {
		// Queued for the write loop to flush before the close handshake.
		select {
		case s.sendCh <- NewUnsubscribeFrame(s.subId, s.roomId):
		default:
			s.log.Printf("unsubscribe: %v", ErrSendBufferFull)
		}
	}

	s.cleanupLocked()
	s.setStateLocked(StateIdle, nil)
}

// cleanupLocked releases the current transport and stops the heartbeat in
// the same critical section as the state transition that triggered it. When
// a write loop is running it owns the transport and closes it on exit.
func (s *Session) cleanupLocked() {
	if s.stopWrite != nil {
		close(s.stopWrite)
		s.stopWrite = nil
		s.sendCh = nil
	} else if s.conn != nil {
		s.conn.Close()
	}

	s.conn = nil
	s.subId = ""
	s.peerTyping = false
}

func (s *Session) setStateLocked(state State, err error) {
	if s.state == state {
		return
	}

	old := s.state
	s.state = state
	s.emit(Event{State: &StateChange{Old: old, New: state, Err: err}})
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Println("event channel full, dropping event")
		s.stats.Incr(StatDroppedEvents)
	}
}

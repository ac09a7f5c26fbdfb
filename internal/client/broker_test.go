package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testBroker is a minimal in-test broker: it upgrades connections, acks
// SUBSCRIBE frames with a RECEIPT, and records everything else it receives.
type testBroker struct {
	t   *testing.T
	srv *httptest.Server

	handshakes int32
	subscribes int32

	receiptDelay    time.Duration
	rejectSubscribe bool
	swallowReceipts bool

	frames chan *Frame

	mu          sync.Mutex
	authHeaders []string
	conns       []*brokerConn
}

type brokerConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *brokerConn) writeFrame(f *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ws.WriteJSON(f)
}

func (c *brokerConn) writeRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func newTestBroker(t *testing.T) *testBroker {
	b := &testBroker{
		t:      t,
		frames: make(chan *Frame, 64),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serveWs))
	t.Cleanup(b.srv.Close)

	return b
}

func (b *testBroker) wsURL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *testBroker) serveWs(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
	b.mu.Unlock()

	upgrader := websocket.Upgrader{}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	atomic.AddInt32(&b.handshakes, 1)

	conn := &brokerConn{ws: ws}
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}

		switch f.Type {
		case FrameSubscribe:
			atomic.AddInt32(&b.subscribes, 1)
			if b.swallowReceipts {
				continue
			}
			if b.receiptDelay > 0 {
				time.Sleep(b.receiptDelay)
			}
			if b.rejectSubscribe {
				data, _ := json.Marshal(&ErrorPayload{Message: "bad destination"})
				conn.writeFrame(&Frame{Type: FrameError, Data: data})
				continue
			}
			conn.writeFrame(&Frame{Type: FrameReceipt, Id: f.Id})
		case FramePing, FrameUnsubscribe:
			// liveness and teardown traffic is not interesting to tests
		default:
			select {
			case b.frames <- &f:
			default:
			}
		}
	}
}

func (b *testBroker) lastConn() *brokerConn {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.conns) == 0 {
		return nil
	}
	return b.conns[len(b.conns)-1]
}

func (b *testBroker) push(t *testing.T, f *Frame) {
	t.Helper()

	conn := b.lastConn()
	if conn == nil {
		t.Fatal("no broker connection to push on")
	}
	if err := conn.writeFrame(f); err != nil {
		t.Fatalf("push frame: %v", err)
	}
}

func (b *testBroker) pushMessageFrame(t *testing.T, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	b.push(t, &Frame{Type: FrameMessage, Data: raw})
}

// closeAbrupt drops the latest connection without a close frame, which the
// client observes as an abnormal closure.
func (b *testBroker) closeAbrupt(t *testing.T) {
	t.Helper()

	conn := b.lastConn()
	if conn == nil {
		t.Fatal("no broker connection to close")
	}
	conn.ws.Close()
}

// closeNormal performs a clean websocket shutdown.
func (b *testBroker) closeNormal(t *testing.T) {
	t.Helper()

	conn := b.lastConn()
	if conn == nil {
		t.Fatal("no broker connection to close")
	}
	conn.mu.Lock()
	conn.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.mu.Unlock()
}

func (b *testBroker) recvFrame(t *testing.T) *Frame {
	t.Helper()

	select {
	case f := <-b.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

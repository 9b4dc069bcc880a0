package ingress

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 1 << 20
	wsSendBufferSize = 256
)

// wsSender implements types.Sender over a gorilla/websocket connection
// using a dedicated write pump goroutine, so concurrent fan-out sends
// never race on the single writer gorilla/websocket allows per socket.
type wsSender struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSSender(conn *websocket.Conn) *wsSender {
	s := &wsSender{
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		closed: make(chan struct{}),
	}
	go s.writePump()
	return s
}

// SendTextFrame enqueues data for the write pump. A full buffer means
// the peer is too slow; the send is dropped and reported as a failure
// so the registry can evict the connection (§5 backpressure policy).
func (s *wsSender) SendTextFrame(data []byte) error {
	select {
	case <-s.closed:
		return errClosedConnection
	default:
	}
	select {
	case s.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops the write pump and sends a close frame with code/reason.
func (s *wsSender) Close(code int, reason string) error {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(wsWriteWait))
		_ = s.conn.Close()
	})
	return nil
}

func (s *wsSender) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closed:
			return
		}
	}
}

type sendError string

func (e sendError) Error() string { return string(e) }

const (
	errClosedConnection = sendError("websocket: connection closed")
	errSendBufferFull   = sendError("websocket: send buffer full")
)

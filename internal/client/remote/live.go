package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"meshi/internal/models"

	"github.com/gorilla/websocket"
)

const liveWriteWait = 10 * time.Second

var errLiveClosed = errors.New("live connection closed")

// liveConn is one multiplexed live socket. Every subscription gets its own id
// and the read loop routes snapshots by id.
type liveConn struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]func(json.RawMessage)
	closed   bool
	done     chan struct{}
}

// liveURL turns the server root into the ws(s) URL of /api/live.
func liveURL(base, ticket string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/live"
	u.RawQuery = url.Values{"ticket": {ticket}}.Encode()
	return u.String(), nil
}

func dialLive(ctx context.Context, wsURL string, log *slog.Logger) (*liveConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	l := &liveConn{
		conn:     conn,
		log:      log,
		handlers: make(map[string]func(json.RawMessage)),
		done:     make(chan struct{}),
	}
	go l.readLoop()
	return l, nil
}

func (l *liveConn) readLoop() {
	defer l.shutdown()
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !l.isClosed() {
				l.log.Warn("live read failed", slog.String("error", err.Error()))
			}
			return
		}

		var msg models.LiveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			l.log.Warn("malformed live message", slog.String("error", err.Error()))
			continue
		}

		switch msg.Type {
		case models.LiveMsgSnapshot:
			l.mu.Lock()
			fn := l.handlers[msg.Sub]
			l.mu.Unlock()
			if fn != nil {
				fn(msg.Docs)
			}
		case models.LiveMsgError:
			l.log.Warn("live error", slog.String("sub", msg.Sub), slog.String("error", msg.Error))
		}
	}
}

func (l *liveConn) send(req models.LiveRequest) error {
	if l.isClosed() {
		return errLiveClosed
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	return l.conn.WriteJSON(req)
}

// subscribe registers fn under a fresh id and asks the server for the query.
func (l *liveConn) subscribe(sub string, req models.LiveRequest, fn func(json.RawMessage)) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errLiveClosed
	}
	l.handlers[sub] = fn
	l.mu.Unlock()

	req.Op = models.LiveOpSubscribe
	req.Sub = sub
	if err := l.send(req); err != nil {
		l.drop(sub)
		return err
	}
	return nil
}

func (l *liveConn) unsubscribe(sub string) {
	if !l.drop(sub) {
		return
	}
	if err := l.send(models.LiveRequest{Op: models.LiveOpUnsubscribe, Sub: sub}); err != nil && !errors.Is(err, errLiveClosed) {
		l.log.Debug("live unsubscribe failed", slog.String("sub", sub), slog.String("error", err.Error()))
	}
}

func (l *liveConn) drop(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.handlers[sub]; !ok {
		return false
	}
	delete(l.handlers, sub)
	return true
}

func (l *liveConn) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *liveConn) shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.handlers = make(map[string]func(json.RawMessage))
	close(l.done)
	l.mu.Unlock()
}

// Close sends a close frame and tears the socket down.
func (l *liveConn) Close() error {
	wasClosed := l.isClosed()
	l.shutdown()
	if !wasClosed {
		l.writeMu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		l.writeMu.Unlock()
	}
	return l.conn.Close()
}

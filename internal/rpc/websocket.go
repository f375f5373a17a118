package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// WebSocketTarget is a peer window reached over a WebSocket. Every frame
// read from the socket is delivered tagged with the origin the connection
// was established with.
type WebSocketTarget struct {
	conn   *websocket.Conn
	origin string
	lis    listeners

	readCtx context.Context
	start   sync.Once
	done    chan struct{}
	once    sync.Once
}

// NewWebSocketTarget wraps conn. Reading starts with the first Listen, so
// no frame is lost before a channel is bound. The read loop stops when ctx
// is done or the connection closes.
func NewWebSocketTarget(ctx context.Context, conn *websocket.Conn, peerOrigin string) *WebSocketTarget {
	return &WebSocketTarget{
		conn:    conn,
		origin:  peerOrigin,
		readCtx: ctx,
		done:    make(chan struct{}),
	}
}

// Accept upgrades an HTTP request and returns the browser side as a target.
// The request's Origin header must match one of originPatterns.
func Accept(w http.ResponseWriter, r *http.Request, originPatterns []string) (*WebSocketTarget, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns,
	})
	if err != nil {
		return nil, err
	}
	return NewWebSocketTarget(r.Context(), conn, r.Header.Get("Origin")), nil
}

// Dial connects to a channel endpoint, presenting selfOrigin as the Origin
// header. Messages from the server are expected to carry the endpoint's origin.
func Dial(ctx context.Context, endpoint, selfOrigin string) (*WebSocketTarget, error) {
	peer, err := OriginOf(endpoint)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if selfOrigin != "" {
		header.Set("Origin", selfOrigin)
	}
	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	return NewWebSocketTarget(context.Background(), conn, peer), nil
}

// OriginOf returns the origin of rawURL. ws and wss map to http and https.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}

func (t *WebSocketTarget) read(ctx context.Context) {
	defer t.close()
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, t.conn, &raw); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Printf("rpc: websocket read: %v", err)
			}
			return
		}
		t.lis.emit(Envelope{Origin: t.origin, Data: raw})
	}
}

func (t *WebSocketTarget) close() {
	t.once.Do(func() { close(t.done) })
}

// Origin returns the peer's origin.
func (t *WebSocketTarget) Origin() string { return t.origin }

// Post writes data as one text frame.
func (t *WebSocketTarget) Post(ctx context.Context, data []byte) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	return wsjson.Write(ctx, t.conn, json.RawMessage(data))
}

// Listen subscribes to frames read from the socket.
func (t *WebSocketTarget) Listen(fn func(Envelope)) func() {
	cancel := t.lis.add(fn)
	t.start.Do(func() { go t.read(t.readCtx) })
	return cancel
}

// Done is closed when the read loop has stopped or the target is closed.
func (t *WebSocketTarget) Done() <-chan struct{} { return t.done }

// Close closes the connection normally.
func (t *WebSocketTarget) Close() error {
	return t.CloseWith(websocket.StatusNormalClosure, "")
}

// CloseWith closes the connection with the given status and reason.
func (t *WebSocketTarget) CloseWith(code websocket.StatusCode, reason string) error {
	t.close()
	return t.conn.Close(code, reason)
}

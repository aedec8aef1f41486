package browser

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Driver protocol operations.
const (
	opNavigate = "navigate"
	opAct      = "act"
	opRelogin  = "relogin"
)

// driverRequest is one command sent to the automation sidecar.
type driverRequest struct {
	ID    string `json:"id"`
	Op    string `json:"op"`
	URL   string `json:"url,omitempty"`
	Ref   string `json:"ref,omitempty"`
	Value string `json:"value,omitempty"`
}

// driverResponse is the sidecar's reply to one command.
type driverResponse struct {
	ID       string       `json:"id"`
	Snapshot *Snapshot    `json:"snapshot,omitempty"`
	Error    *driverError `json:"error,omitempty"`
}

// driverError mirrors NavigationError on the wire.
type driverError struct {
	Kind    string `json:"kind"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message"`
}

// Remote talks to the browser-automation sidecar over a persistent
// WebSocket: one connection, one browser session. Commands are serialized;
// the sidecar answers each with a fresh page snapshot.
type Remote struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial connects to the sidecar. If endpoint is empty, TLA_DRIVER_URL is
// consulted, then a localhost default.
func Dial(ctx context.Context, endpoint string) (*Remote, error) {
	if endpoint == "" {
		endpoint = os.Getenv("TLA_DRIVER_URL")
	}
	if endpoint == "" {
		endpoint = "ws://localhost:8731/session"
	}
	endpoint = strings.Replace(endpoint, "http://", "ws://", 1)
	endpoint = strings.Replace(endpoint, "https://", "wss://", 1)

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse driver endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connect to driver: %w", err)
	}
	return &Remote{conn: conn}, nil
}

// Close tears down the session connection.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.Close()
}

// Navigate implements Driver.
func (r *Remote) Navigate(ctx context.Context, pageURL string) (*Snapshot, error) {
	return r.call(ctx, driverRequest{Op: opNavigate, URL: pageURL})
}

// Act implements Driver.
func (r *Remote) Act(ctx context.Context, ref, value string) (*Snapshot, error) {
	return r.call(ctx, driverRequest{Op: opAct, Ref: ref, Value: value})
}

// Relogin implements Reloginer.
func (r *Remote) Relogin(ctx context.Context) error {
	_, err := r.call(ctx, driverRequest{Op: opRelogin})
	return err
}

// call sends one command and waits for its reply. The session is a single
// serialized conversation, so commands hold the connection lock end to end.
func (r *Remote) call(ctx context.Context, req driverRequest) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req.ID = uuid.New().String()
	if err := r.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Op, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = r.conn.SetReadDeadline(deadline)
		defer r.conn.SetReadDeadline(time.Time{})
	}

	for {
		var resp driverResponse
		if err := r.conn.ReadJSON(&resp); err != nil {
			if ctx.Err() != nil {
				return nil, &NavigationError{Kind: NavTimeout, URL: req.URL, Err: ctx.Err()}
			}
			return nil, fmt.Errorf("read %s response: %w", req.Op, err)
		}
		if resp.ID != req.ID {
			// Stale reply from an interrupted earlier command.
			continue
		}
		if resp.Error != nil {
			return nil, wireError(resp.Error)
		}
		return resp.Snapshot, nil
	}
}

// wireError maps a sidecar error onto the navigation taxonomy. Unknown
// kinds degrade to a plain error.
func wireError(e *driverError) error {
	switch NavKind(e.Kind) {
	case NavBlocked, NavTimeout, NavNotFound, NavAuthLost:
		return &NavigationError{Kind: NavKind(e.Kind), URL: e.URL, Err: fmt.Errorf("%s", e.Message)}
	default:
		return fmt.Errorf("driver error: %s", e.Message)
	}
}

package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readDeadline = 60 * time.Second
	pingInterval = 30 * time.Second
)

// WSTransport delivers project events over a WebSocket connection to
// the review service. The client sends a join_project frame after
// connecting and then receives the room's event envelopes.
type WSTransport struct {
	wsURL string
}

func NewWSTransport(wsURL string) *WSTransport {
	return &WSTransport{wsURL: wsURL}
}

type joinFrame struct {
	Event     string `json:"event"`
	ProjectID int64  `json:"projectId"`
}

// Join dials the service, joins the project room, and streams its
// envelopes until the stop function is called or the connection drops.
// A dropped connection redials with a 5s backoff; events pushed while
// disconnected are missed, which the engine tolerates as staleness.
func (t *WSTransport) Join(ctx context.Context, projectID int64) (<-chan Message, func(), error) {
	// Dial once up front so a bad URL or unreachable service fails the
	// join instead of looping silently.
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to push service: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Message)

	go func() {
		defer close(out)
		for {
			if conn == nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				conn, _, err = websocket.DefaultDialer.DialContext(ctx, t.wsURL, nil)
				if err != nil {
					log.Printf("push: reconnect failed: %v", err)
					conn = nil
					continue
				}
			}
			if err := t.consume(ctx, conn, projectID, out); err != nil && ctx.Err() == nil {
				log.Printf("push: connection lost: %v. Retrying in 5s...", err)
			}
			_ = conn.Close()
			conn = nil
			if ctx.Err() != nil {
				return
			}
		}
	}()

	return out, cancel, nil
}

// consume joins the room on an open connection and pumps envelopes into
// out until the connection fails or ctx is done.
func (t *WSTransport) consume(ctx context.Context, conn *websocket.Conn, projectID int64, out chan<- Message) error {
	if err := conn.WriteJSON(joinFrame{Event: "join_project", ProjectID: projectID}); err != nil {
		return fmt.Errorf("join project %d: %w", projectID, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		log.Printf("push: set read deadline: %v", err)
	}
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			log.Printf("push: set read deadline in pong handler: %v", err)
		}
		return nil
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	var closeOnce sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					closeOnce.Do(func() { close(done) })
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				// Unblock the read loop so the join shuts down promptly.
				_ = conn.Close()
				closeOnce.Do(func() { close(done) })
				return
			}
		}
	}()
	defer closeOnce.Do(func() { close(done) })

	for {
		select {
		case <-done:
			return fmt.Errorf("connection closed by ping failure")
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Printf("push: drop malformed event: %v", err)
			continue
		}

		select {
		case out <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

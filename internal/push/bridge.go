// Package push subscribes to the review service's per-project event
// channel and translates pushed events into engine actions. The bridge
// is transport-agnostic: the Redis pub/sub and WebSocket transports
// both deliver the same {type, payload} envelopes.
package push

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

type EventType string

const (
	EventCommentAdded  EventType = "COMMENT_ADDED"
	EventVersionAdded  EventType = "VERSION_ADDED"
	EventProjectUpdate EventType = "PROJECT_UPDATE"
	EventUploadStatus  EventType = "UPLOAD_STATUS"
)

// Message is the wire envelope on the push channel.
type Message struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler receives translated events. Nil fields are skipped.
//
// OnRefetch fires for COMMENT_ADDED and VERSION_ADDED matching the
// joined project: both invalidate local comment state wholesale (a
// reply's nesting target may not even be loaded yet, and a new version
// changes the addressable target set), so a full refetch is the only
// safe reaction. OnProjectUpdate delivers the partial project object to
// shallow-merge; comment trees are never touched by it. OnUploadStatus
// forwards progress text to the reporting collaborator; nothing is
// stored.
type Handler struct {
	OnRefetch       func(reason EventType)
	OnProjectUpdate func(partial json.RawMessage)
	OnUploadStatus  func(message string)
}

// Transport joins the push room for a project and streams its
// envelopes. The returned stop function releases the subscription and
// eventually closes the channel. Reconnection after a drop is the
// transport's own concern; while disconnected the engine is
// correct-but-stale.
type Transport interface {
	Join(ctx context.Context, projectID int64) (<-chan Message, func(), error)
}

type Bridge struct {
	transport Transport
}

func NewBridge(t Transport) *Bridge {
	return &Bridge{transport: t}
}

// Subscription is the handle owning a project-room membership. Exactly
// one is held per mounted project view; Close detaches every handler
// and is idempotent, so no ghost handler survives a navigation.
type Subscription struct {
	stop func()
	once sync.Once
	done chan struct{}
}

// Close releases the subscription and waits for the dispatch loop to
// drain, guaranteeing no handler fires afterwards.
func (s *Subscription) Close() {
	s.once.Do(s.stop)
	<-s.done
}

// Join subscribes to one project's room and dispatches its events to h
// until Close.
func (b *Bridge) Join(ctx context.Context, projectID int64, h Handler) (*Subscription, error) {
	messages, stop, err := b.transport.Join(ctx, projectID)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{stop: stop, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for m := range messages {
			dispatch(projectID, m, h)
		}
	}()
	return sub, nil
}

func dispatch(projectID int64, m Message, h Handler) {
	switch m.Type {
	case EventCommentAdded, EventVersionAdded:
		var p struct {
			ProjectID int64 `json:"projectId"`
		}
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			log.Printf("push: malformed %s payload: %v", m.Type, err)
			return
		}
		// Events for other projects are ignored outright.
		if p.ProjectID != projectID {
			return
		}
		if h.OnRefetch != nil {
			h.OnRefetch(m.Type)
		}
	case EventProjectUpdate:
		var p struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			log.Printf("push: malformed %s payload: %v", m.Type, err)
			return
		}
		if p.ID != projectID {
			return
		}
		if h.OnProjectUpdate != nil {
			h.OnProjectUpdate(m.Payload)
		}
	case EventUploadStatus:
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			log.Printf("push: malformed %s payload: %v", m.Type, err)
			return
		}
		if h.OnUploadStatus != nil {
			h.OnUploadStatus(p.Message)
		}
	default:
		// Unknown event types are skipped; the engine stays stale-safe.
	}
}

// Package window mirrors ephemeral viewing state between a primary
// review window and an optional pop-out comments window for the same
// project, without involving the server. Channels are process-local and
// named per project id; both windows open the identical name, so
// messages cross-deliver regardless of which side opened first. The
// primary window owns playback: the secondary mirrors time and sends
// seek intent back to be applied by the primary's media element.
package window

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

type MessageType string

const (
	TypeSeek             MessageType = "seek"
	TypeTimeUpdate       MessageType = "timeUpdate"
	TypeCommentAdded     MessageType = "commentAdded"
	TypeVersionChange    MessageType = "versionChange"
	TypeCommentHighlight MessageType = "commentHighlight"
)

// Message is the envelope crossing the channel.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SeekPayload carries a seek command; the receiving window seeks to
// Time, pauses, and applies the optional highlight and annotation.
type SeekPayload struct {
	Time       float64 `json:"time"`
	CommentID  int64   `json:"commentId,omitempty"`
	Annotation string  `json:"annotation,omitempty"`
}

type TimeUpdatePayload struct {
	Time float64 `json:"time"`
}

type VersionChangePayload struct {
	Index int `json:"index"`
}

type HighlightPayload struct {
	ID int64 `json:"id"`
}

var (
	registryMu sync.Mutex
	registry   = make(map[string][]*Channel)
)

// Channel is one window's endpoint on the project's sync channel.
// Create on mount with Open, release on unmount with Close.
type Channel struct {
	name    string
	id      string
	handler func(Message)

	mu     sync.Mutex
	closed bool
}

// Open joins the sync channel for a project. onMessage receives every
// message posted by other endpoints on the same name; a channel never
// hears its own posts. onMessage may be nil for send-only use.
func Open(projectID int64, onMessage func(Message)) *Channel {
	c := &Channel{
		name:    fmt.Sprintf("review_sync_%d", projectID),
		id:      uuid.NewString(),
		handler: onMessage,
	}
	registryMu.Lock()
	registry[c.name] = append(registry[c.name], c)
	registryMu.Unlock()
	return c
}

// Close detaches the endpoint. Idempotent; posts after Close are
// dropped.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	registryMu.Lock()
	peers := registry[c.name]
	for i, peer := range peers {
		if peer.id == c.id {
			registry[c.name] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	if len(registry[c.name]) == 0 {
		delete(registry, c.name)
	}
	registryMu.Unlock()
}

// Post delivers a message to every other endpoint on the channel.
// Delivery is synchronous in the caller's goroutine.
func (c *Channel) Post(m Message) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	registryMu.Lock()
	peers := append([]*Channel(nil), registry[c.name]...)
	registryMu.Unlock()

	for _, peer := range peers {
		if peer.id == c.id {
			continue
		}
		peer.deliver(m)
	}
}

func (c *Channel) deliver(m Message) {
	c.mu.Lock()
	handler := c.handler
	closed := c.closed
	c.mu.Unlock()
	if closed || handler == nil {
		return
	}
	handler(m)
}

// PostSeek sends seek intent: the receiving window seeks, pauses, and
// applies the highlight/annotation.
func (c *Channel) PostSeek(p SeekPayload) {
	c.post(TypeSeek, p)
}

// PostTimeUpdate mirrors the playing window's current time. Only the
// playback owner sends these; the secondary never feeds time back.
func (c *Channel) PostTimeUpdate(seconds float64) {
	c.post(TypeTimeUpdate, TimeUpdatePayload{Time: seconds})
}

// PostCommentAdded is a payload-less hint; the receiver refetches the
// project rather than trusting a rebroadcast comment shape.
func (c *Channel) PostCommentAdded() {
	c.Post(Message{Type: TypeCommentAdded})
}

func (c *Channel) PostVersionChange(index int) {
	c.post(TypeVersionChange, VersionChangePayload{Index: index})
}

func (c *Channel) PostHighlight(commentID int64) {
	c.post(TypeCommentHighlight, HighlightPayload{ID: commentID})
}

func (c *Channel) post(t MessageType, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("window: drop %s message: %v", t, err)
		return
	}
	c.Post(Message{Type: t, Payload: raw})
}

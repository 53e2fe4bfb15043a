// Package selection maps the currently selected comment to the side
// effects applied to the active media viewer: highlight, annotation
// overlay, an optional loop range, a seek, and a camera restore or
// reset for 3D assets.
package selection

import (
	"screenroom/engine/internal/annotation"
	"screenroom/engine/internal/model"
	"screenroom/engine/internal/tree"
)

// Viewer is the capability surface of the active media viewer (video
// player, image viewer, or 3D viewer). Image viewers implement Seek and
// the camera calls as no-ops.
type Viewer interface {
	Seek(seconds float64)
	Pause()
	Resume()
	RestoreCamera(pose string)
	ResetCamera()
}

// Range is a playback loop range in seconds.
type Range struct {
	Start float64
	End   float64
}

// State is the ephemeral, client-local selection state. It is reset
// whenever the active media target changes and is never persisted.
type State struct {
	HighlightedCommentID int64
	ViewingAnnotation    annotation.Payload
	SelectionRange       *Range
}

type Controller struct {
	mediaKind string
	viewer    Viewer
	store     *tree.Store
	state     State
}

func NewController(mediaKind string, viewer Viewer, store *tree.Store) *Controller {
	return &Controller{mediaKind: mediaKind, viewer: viewer, store: store}
}

// State returns the current selection state.
func (c *Controller) State() State {
	return c.state
}

// Reset clears highlight, overlay, and range.
func (c *Controller) Reset() {
	c.state = State{}
}

// SetTarget switches the controller to a new active media target,
// resetting all selection state.
func (c *Controller) SetTarget(mediaKind string, store *tree.Store) {
	c.mediaKind = mediaKind
	c.store = store
	c.Reset()
}

// SelectComment applies a comment selection. Nil clears everything.
// Playback always pauses before an overlay switch so the annotation
// cannot drift against a moving playhead. Range metadata is resolved
// against the canonical node in the store, since the clicked value (a
// timeline marker, a cross-window payload) may not carry duration.
func (c *Controller) SelectComment(cm *model.Comment) {
	if cm == nil {
		c.Reset()
		return
	}

	target := *cm
	if canonical, ok := c.store.Get(cm.ID); ok {
		target = canonical
	}

	c.viewer.Pause()

	c.state.HighlightedCommentID = target.ID
	c.state.ViewingAnnotation = nil
	if target.Annotation != "" {
		// A malformed payload degrades to "no annotation" for this
		// comment only; the selection itself still applies.
		if payload, err := annotation.ParseString(target.Annotation); err == nil {
			c.state.ViewingAnnotation = payload
		}
	}

	c.state.SelectionRange = nil
	if c.mediaKind == model.KindVideo {
		if start, end, ok := target.LoopRange(); ok {
			c.state.SelectionRange = &Range{Start: start, End: end}
		}
	}

	switch c.mediaKind {
	case model.KindVideo:
		c.viewer.Seek(target.Timestamp)
	case model.KindThreeD:
		c.viewer.Seek(target.Timestamp)
		if target.CameraState != "" {
			c.viewer.RestoreCamera(target.CameraState)
		} else {
			c.viewer.ResetCamera()
		}
	}
	// Image bundles ignore seeks; the highlight and overlay are enough.
}

// Highlight sets the highlighted comment without any viewer side
// effects. Used for cross-window highlight mirroring.
func (c *Controller) Highlight(commentID int64) {
	c.state.HighlightedCommentID = commentID
}

// ShowAnnotation applies an overlay from a raw serialized payload
// without changing the highlight, for cross-window seek messages that
// carry annotation bytes instead of a comment id. Malformed input
// clears the overlay.
func (c *Controller) ShowAnnotation(raw string) {
	c.state.ViewingAnnotation = nil
	if raw == "" {
		return
	}
	if payload, err := annotation.ParseString(raw); err == nil {
		c.state.ViewingAnnotation = payload
	}
}

// Package annotation normalizes the annotation payloads attached to
// review comments. Two formats exist in the wild: the legacy free-vector
// form (a JSON array of shapes) and the 3D-anchored form (an object
// carrying a surface anchor plus the camera pose at capture time).
// The engine never interprets shape geometry; it classifies the payload,
// answers HasContent, and reproduces the original bytes on the way out.
package annotation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrEmpty = errors.New("annotation: empty payload")

// Point is a normalized viewport coordinate (0..1 in both axes).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape is one drawing primitive. Tool selects which geometry fields
// are meaningful: freeform strokes use Points, everything else uses the
// X/Y/W/H box.
type Shape struct {
	Tool        string  `json:"tool"`
	X           float64 `json:"x,omitempty"`
	Y           float64 `json:"y,omitempty"`
	W           float64 `json:"w,omitempty"`
	H           float64 `json:"h,omitempty"`
	Points      []Point `json:"points,omitempty"`
	Color       string  `json:"color,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Text        string  `json:"text,omitempty"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SurfaceAnchor pins a 3D annotation to a point on the asset's surface.
type SurfaceAnchor struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Normal Vec3    `json:"normal"`
}

// Payload is the tagged union over the two annotation formats.
type Payload interface {
	// HasContent reports whether the payload carries anything worth
	// rendering: at least one shape for the vector form, the anchored
	// marker for the 3D form.
	HasContent() bool
	isPayload()
}

// VectorShapes is the legacy format: an ordered list of shapes drawn in
// normalized viewport coordinates, valid for video and image media.
type VectorShapes struct {
	Shapes []Shape

	raw json.RawMessage
}

func (v *VectorShapes) HasContent() bool { return v != nil && len(v.Shapes) > 0 }
func (v *VectorShapes) isPayload() {}

// MarshalJSON reproduces the originally parsed bytes when present so a
// stored payload survives a round trip untouched.
func (v *VectorShapes) MarshalJSON() ([]byte, error) {
	if v.raw != nil {
		return v.raw, nil
	}
	return json.Marshal(v.Shapes)
}

// ThreeDAnchored is the 3D format: shapes drawn in a 2D plane defined
// relative to the capture camera, re-projected when viewed from another
// pose. CaptureCamera stays opaque; only the viewer interprets it.
type ThreeDAnchored struct {
	Anchored      bool            `json:"is3DAnchoredAnnotation"`
	SurfaceAnchor SurfaceAnchor   `json:"surfaceAnchor3D"`
	CaptureCamera json.RawMessage `json:"captureCamera,omitempty"`
	Shapes        []Shape         `json:"shapes,omitempty"`

	raw json.RawMessage
}

func (t *ThreeDAnchored) HasContent() bool { return t != nil && t.Anchored }
func (t *ThreeDAnchored) isPayload() {}

func (t *ThreeDAnchored) MarshalJSON() ([]byte, error) {
	if t.raw != nil {
		return t.raw, nil
	}
	type plain ThreeDAnchored
	return json.Marshal((*plain)(t))
}

// Parse classifies raw annotation JSON into its payload variant. A JSON
// array is the vector form, an object the 3D form. Blank input and
// malformed JSON return errors; callers treat both as "no annotation"
// rather than aborting the render.
func Parse(raw []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmpty
	}

	switch trimmed[0] {
	case '[':
		var shapes []Shape
		if err := json.Unmarshal(trimmed, &shapes); err != nil {
			return nil, fmt.Errorf("parse vector annotation: %w", err)
		}
		return &VectorShapes{Shapes: shapes, raw: append(json.RawMessage(nil), trimmed...)}, nil
	case '{':
		var anchored ThreeDAnchored
		if err := json.Unmarshal(trimmed, &anchored); err != nil {
			return nil, fmt.Errorf("parse 3d annotation: %w", err)
		}
		anchored.raw = append(json.RawMessage(nil), trimmed...)
		return &anchored, nil
	default:
		return nil, fmt.Errorf("parse annotation: unrecognized payload shape")
	}
}

// ParseString is Parse for the serialized string carried on a comment.
func ParseString(raw string) (Payload, error) {
	return Parse([]byte(raw))
}

// HasContent is a nil-tolerant convenience over Payload.HasContent.
func HasContent(p Payload) bool {
	return p != nil && p.HasContent()
}

// IsEmpty is the negation of HasContent.
func IsEmpty(p Payload) bool {
	return !HasContent(p)
}

// Marshal serializes a payload, reproducing the original bytes for
// parsed payloads.
func Marshal(p Payload) ([]byte, error) {
	if p == nil {
		return nil, ErrEmpty
	}
	return json.Marshal(p)
}

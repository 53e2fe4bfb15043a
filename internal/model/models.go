// Package model holds the wire shapes exchanged with the review service.
// Field names mirror the service's JSON payloads; annotation and camera
// data stay opaque strings so they round-trip byte-for-byte.
package model

import "time"

// Media version kinds. The JSON field is "type".
const (
	KindVideo       = "video"
	KindImageBundle = "image_bundle"
	KindThreeD      = "three_d_asset"
)

// Project statuses.
const (
	StatusInternalReview = "internal-review"
	StatusClientReview   = "client-review"
	StatusApproved       = "approved"
)

type User struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	AvatarPath string `json:"avatarPath,omitempty"`
}

type Reaction struct {
	Emoji     string `json:"emoji"`
	UserID    int64  `json:"userId,omitempty"`
	GuestName string `json:"guestName,omitempty"`
}

// Comment is one node of a review thread. Authorship is either UserID
// (team member) or GuestName (external client), never both. Timestamp
// is playhead seconds for video, animation time for 3D assets, and 0
// for still images.
type Comment struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"userId,omitempty"`
	User              *User      `json:"user,omitempty"`
	GuestName         string     `json:"guestName,omitempty"`
	Content           string     `json:"content"`
	Timestamp         float64    `json:"timestamp"`
	Duration          *float64   `json:"duration,omitempty"`
	Annotation        string     `json:"annotation,omitempty"`
	CameraState       string     `json:"cameraState,omitempty"`
	AttachmentPaths   []string   `json:"attachmentPaths,omitempty"`
	ScreenshotPath    string     `json:"screenshotPath,omitempty"`
	IsResolved        bool       `json:"isResolved"`
	IsVisibleToClient bool       `json:"isVisibleToClient"`
	AssigneeID        int64      `json:"assigneeId,omitempty"`
	Assignee          *User      `json:"assignee,omitempty"`
	Reactions         []Reaction `json:"reactions,omitempty"`
	ParentID          *int64     `json:"parentId,omitempty"`
	Replies           []Comment  `json:"replies,omitempty"`
	IsEdited          bool       `json:"isEdited,omitempty"`
	CreatedAt         time.Time  `json:"createdAt,omitempty"`
}

// LoopRange returns the [timestamp, timestamp+duration] playback range
// when a duration is set.
func (c Comment) LoopRange() (start, end float64, ok bool) {
	if c.Duration == nil {
		return 0, 0, false
	}
	return c.Timestamp, c.Timestamp + *c.Duration, true
}

type Image struct {
	ID       int64     `json:"id"`
	Filename string    `json:"filename,omitempty"`
	Comments []Comment `json:"comments,omitempty"`
}

// MediaVersion is one addressable review target within a project: a
// video cut, an ordered image set, or a 3D asset. Videos and 3D assets
// carry their comment forest directly; image bundles keep one forest
// per image.
type MediaVersion struct {
	ID           int64     `json:"id"`
	Kind         string    `json:"type"`
	VersionName  string    `json:"versionName,omitempty"`
	OriginalName string    `json:"originalName,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	FrameRate    float64   `json:"frameRate,omitempty"`
	Comments     []Comment `json:"comments,omitempty"`
	Images       []Image   `json:"images,omitempty"`
}

type Project struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Status      string         `json:"status,omitempty"`
	ClientToken string         `json:"clientToken,omitempty"`
	TeamID      int64          `json:"teamId,omitempty"`
	Versions    []MediaVersion `json:"versions"`
	UpdatedAt   time.Time      `json:"updatedAt,omitempty"`
}

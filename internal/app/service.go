// Package app ties the engine together: it holds the active project,
// routes push and cross-window events into the comment tree, and runs
// the optimistic mutation flow against the review service.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"screenroom/engine/internal/annotation"
	"screenroom/engine/internal/api"
	"screenroom/engine/internal/model"
	"screenroom/engine/internal/push"
	"screenroom/engine/internal/selection"
	"screenroom/engine/internal/tree"
	"screenroom/engine/internal/window"
)

// apiClient is the slice of the REST client the service consumes.
type apiClient interface {
	FetchProject(ctx context.Context, projectID int64) (model.Project, error)
	CreateComment(ctx context.Context, projectID int64, in api.CreateCommentInput) (model.Comment, error)
	UpdateComment(ctx context.Context, commentID int64, in api.UpdateCommentInput) (model.Comment, error)
	DeleteComment(ctx context.Context, commentID int64) error
	ToggleReaction(ctx context.Context, commentID int64, emoji string) (model.Comment, error)
	UpdateProjectStatus(ctx context.Context, projectID int64, status string) (model.Project, error)
}

// Notifier receives user-visible transient messages: mutation failures
// and upload progress. Nothing here is fatal.
type Notifier interface {
	Notify(message string)
}

// PendingSubmission is a staged comment draft handed over by an
// external collaborator (the 3D viewer's submit-review affordance). It
// is consumed exactly once.
type PendingSubmission struct {
	Content     string
	Annotation  string
	CameraState string
	Attachments []api.Attachment
}

// AddCommentInput is a user-authored comment or reply.
type AddCommentInput struct {
	Content         string
	Annotation      string
	CameraState     string
	ParentID        *int64
	Attachments     []api.Attachment
	VisibleToClient bool
}

var errEmptyComment = domainError(http.StatusUnprocessableEntity, "EMPTY_COMMENT",
	"A comment needs text, an annotation, or an attachment")

var errNotConfirmed = domainError(http.StatusBadRequest, "CONFIRMATION_REQUIRED",
	"Deleting a comment requires confirmation")

// Service is the per-window engine instance. All state behind mu; the
// push bridge and the window channel call in from their own goroutines.
//
// Exactly one window per project is primary: it owns the media element,
// applies seek intent, and mirrors its playback time out. A secondary
// (pop-out) window is a passive mirror; selecting a comment there
// round-trips seek intent back through the primary instead of driving a
// viewer of its own.
type Service struct {
	api       apiClient
	bridge    *push.Bridge
	viewer    selection.Viewer
	notifier  Notifier
	linkBase  string
	secondary bool

	mu            sync.Mutex
	project       model.Project
	activeVersion int
	activeImage   int
	store         *tree.Store
	sel           *selection.Controller
	sub           *push.Subscription
	win           *window.Channel
	pending       *PendingSubmission
	generation    uint64
	playhead      float64
	playing       bool
	peerTime      float64
}

func NewService(apiClient apiClient, bridge *push.Bridge, viewer selection.Viewer, notifier Notifier, linkBase string) *Service {
	return &Service{
		api:      apiClient,
		bridge:   bridge,
		viewer:   viewer,
		notifier: notifier,
		linkBase: linkBase,
		store:    tree.New(),
	}
}

// NewSecondaryService creates the engine for a pop-out window. It has
// no media element: comment selection posts seek intent to the primary
// window, and playback time is never fed back.
func NewSecondaryService(apiClient apiClient, bridge *push.Bridge, notifier Notifier, linkBase string) *Service {
	s := NewService(apiClient, bridge, nopViewer{}, notifier, linkBase)
	s.secondary = true
	return s
}

// nopViewer backs a secondary window, which has nothing to drive.
type nopViewer struct{}

func (nopViewer) Seek(float64)         {}
func (nopViewer) Pause()               {}
func (nopViewer) Resume()              {}
func (nopViewer) RestoreCamera(string) {}
func (nopViewer) ResetCamera()         {}

// OpenProject fetches the project, joins its push room, and opens the
// cross-window channel. The first media version becomes active.
func (s *Service) OpenProject(ctx context.Context, projectID int64) error {
	project, err := s.api.FetchProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("open project %d: %w", projectID, err)
	}

	s.mu.Lock()
	s.project = project
	s.activeVersion = 0
	s.activeImage = 0
	s.store = tree.New()
	s.sel = selection.NewController(s.activeKindLocked(), s.viewer, s.store)
	s.store.Rebuild(s.activeCommentsLocked())
	s.mu.Unlock()

	if s.bridge != nil {
		sub, err := s.bridge.Join(ctx, projectID, push.Handler{
			OnRefetch: func(reason push.EventType) {
				if err := s.Refetch(context.Background()); err != nil {
					log.Printf("app: refetch after %s: %v", reason, err)
				}
			},
			OnProjectUpdate: s.applyProjectPatch,
			OnUploadStatus:  s.notify,
		})
		if err != nil {
			return fmt.Errorf("join push channel: %w", err)
		}
		s.mu.Lock()
		s.sub = sub
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.win = window.Open(projectID, s.handleWindowMessage)
	s.mu.Unlock()
	return nil
}

// CloseProject leaves the push room and the window channel. Safe to
// call twice.
func (s *Service) CloseProject() {
	s.mu.Lock()
	sub, win := s.sub, s.win
	s.sub, s.win = nil, nil
	s.project = model.Project{}
	s.store = tree.New()
	s.sel = nil
	s.pending = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	if win != nil {
		win.Close()
	}
}

// Refetch reloads the project from the service. Each refetch carries a
// generation; a response is applied only while its generation is still
// current, so a superseded in-flight fetch can never clobber newer
// state.
func (s *Service) Refetch(ctx context.Context) error {
	s.mu.Lock()
	if s.project.ID == 0 {
		s.mu.Unlock()
		return nil
	}
	projectID := s.project.ID
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	project, err := s.api.FetchProject(ctx, projectID)
	if err != nil {
		s.notify("Could not refresh the project")
		return fmt.Errorf("refetch project %d: %w", projectID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		// A newer refetch was issued while this one was in flight.
		return nil
	}
	s.project = project
	s.clampTargetLocked()
	s.store.Rebuild(s.activeCommentsLocked())
	return nil
}

// SetActiveVersion switches the active media version, rebuilding the
// comment tree and resetting selection. Out-of-range indexes no-op.
func (s *Service) SetActiveVersion(index int) {
	s.mu.Lock()
	if index < 0 || index >= len(s.project.Versions) || s.sel == nil {
		s.mu.Unlock()
		return
	}
	changed := index != s.activeVersion
	s.activeVersion = index
	s.activeImage = 0
	s.store.Rebuild(s.activeCommentsLocked())
	s.sel.SetTarget(s.activeKindLocked(), s.store)
	win := s.win
	s.mu.Unlock()

	if changed && win != nil {
		win.PostVersionChange(index)
	}
}

// SetActiveImage switches the active image within an image bundle.
func (s *Service) SetActiveImage(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	version := s.activeVersionLocked()
	if version == nil || version.Kind != model.KindImageBundle || s.sel == nil {
		return
	}
	if index < 0 || index >= len(version.Images) {
		return
	}
	s.activeImage = index
	s.store.Rebuild(s.activeCommentsLocked())
	s.sel.SetTarget(model.KindImageBundle, s.store)
}

// SelectComment selects a comment by id. On the primary window it
// drives the viewer side effects and mirrors the highlight out; on a
// secondary window it highlights locally and round-trips seek intent to
// the primary, which owns the media element. Zero clears the selection.
func (s *Service) SelectComment(commentID int64) {
	s.mu.Lock()
	if s.sel == nil {
		s.mu.Unlock()
		return
	}
	if commentID == 0 {
		s.sel.SelectComment(nil)
		s.mu.Unlock()
		return
	}
	cm, ok := s.store.Get(commentID)
	if !ok {
		s.mu.Unlock()
		return
	}

	if s.secondary {
		s.sel.Highlight(commentID)
		win := s.win
		s.mu.Unlock()
		if win != nil {
			win.PostSeek(window.SeekPayload{
				Time:       cm.Timestamp,
				CommentID:  commentID,
				Annotation: cm.Annotation,
			})
		}
		return
	}

	s.sel.SelectComment(&cm)
	win := s.win
	s.mu.Unlock()

	if win != nil {
		win.PostHighlight(commentID)
	}
}

// AddComment validates, submits, and inserts the server-returned
// comment. No temporary local id is synthesized; a brief display gap
// until confirmation is accepted over risking an id collision.
func (s *Service) AddComment(ctx context.Context, in AddCommentInput) (model.Comment, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Attachments) == 0 && !annotationHasContent(in.Annotation) {
		return model.Comment{}, errEmptyComment
	}

	s.mu.Lock()
	projectID := s.project.ID
	req := api.CreateCommentInput{
		Content:           content,
		Annotation:        in.Annotation,
		CameraState:       in.CameraState,
		IsVisibleToClient: in.VisibleToClient,
		Attachments:       in.Attachments,
	}
	if in.ParentID != nil {
		// Replies nest one level as authored: replying to a reply
		// attaches to that reply's own parent.
		parentID := *in.ParentID
		if parent, ok := s.store.Get(parentID); ok && parent.ParentID != nil {
			parentID = *parent.ParentID
		}
		req.ParentID = &parentID
	}
	if s.sel != nil {
		if r := s.sel.State().SelectionRange; r != nil {
			req.Timestamp = r.Start
			d := r.End - r.Start
			req.Duration = &d
		} else {
			req.Timestamp = s.playhead
		}
	} else {
		req.Timestamp = s.playhead
	}
	if version := s.activeVersionLocked(); version != nil && version.Kind == model.KindImageBundle {
		if s.activeImage < len(version.Images) {
			imageID := version.Images[s.activeImage].ID
			req.ImageID = &imageID
		}
	}
	s.mu.Unlock()

	created, err := s.api.CreateComment(ctx, projectID, req)
	if err != nil {
		s.notify("Could not post the comment")
		return model.Comment{}, fmt.Errorf("add comment: %w", err)
	}

	s.mu.Lock()
	inserted := s.store.Insert(created)
	win := s.win
	s.mu.Unlock()
	if !inserted {
		// The reply's parent is not in the local tree; a refetch will
		// place it.
		if err := s.Refetch(ctx); err != nil {
			log.Printf("app: refetch after orphan insert: %v", err)
		}
	}
	if win != nil {
		win.PostCommentAdded()
	}
	return created, nil
}

// EditComment saves new content and annotation for a comment. Only the
// returned fields are replaced; existing replies are preserved.
func (s *Service) EditComment(ctx context.Context, commentID int64, content, annotationRaw string) error {
	updated, err := s.api.UpdateComment(ctx, commentID, api.UpdateCommentInput{
		Content:    &content,
		Annotation: &annotationRaw,
	})
	if err != nil {
		s.notify("Could not save the comment")
		return fmt.Errorf("edit comment %d: %w", commentID, err)
	}

	s.mu.Lock()
	s.store.Update(updated.ID, updated)
	s.mu.Unlock()
	return nil
}

// DeleteComment removes a comment and its replies. The caller must pass
// confirmed=true after the user's destructive-action confirmation. The
// local removal is optimistic; a failed request is surfaced but not
// rolled back, the next refetch corrects.
func (s *Service) DeleteComment(ctx context.Context, commentID int64, confirmed bool) error {
	if !confirmed {
		return errNotConfirmed
	}

	s.mu.Lock()
	s.store.Remove(commentID)
	if s.sel != nil && s.sel.State().HighlightedCommentID == commentID {
		s.sel.Reset()
	}
	s.mu.Unlock()

	if err := s.api.DeleteComment(ctx, commentID); err != nil {
		s.notify("Could not delete the comment")
		return fmt.Errorf("delete comment %d: %w", commentID, err)
	}
	return nil
}

// ToggleResolved flips a comment's resolved flag.
func (s *Service) ToggleResolved(ctx context.Context, commentID int64) error {
	s.mu.Lock()
	cm, ok := s.store.Get(commentID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	resolved := !cm.IsResolved
	return s.patchComment(ctx, commentID, api.UpdateCommentInput{IsResolved: &resolved})
}

// ToggleVisibility flips whether a comment is visible to guest
// reviewers.
func (s *Service) ToggleVisibility(ctx context.Context, commentID int64) error {
	s.mu.Lock()
	cm, ok := s.store.Get(commentID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	visible := !cm.IsVisibleToClient
	return s.patchComment(ctx, commentID, api.UpdateCommentInput{IsVisibleToClient: &visible})
}

// Assign sets or clears (nil) a comment's assignee.
func (s *Service) Assign(ctx context.Context, commentID int64, assigneeID *int64) error {
	return s.patchComment(ctx, commentID, api.UpdateCommentInput{SetAssignee: true, AssigneeID: assigneeID})
}

func (s *Service) patchComment(ctx context.Context, commentID int64, in api.UpdateCommentInput) error {
	updated, err := s.api.UpdateComment(ctx, commentID, in)
	if err != nil {
		s.notify("Could not update the comment")
		return fmt.Errorf("patch comment %d: %w", commentID, err)
	}
	s.mu.Lock()
	s.store.Update(updated.ID, updated)
	s.mu.Unlock()
	return nil
}

// React toggles the caller's reaction for one emoji. The service
// decides add-vs-remove; the returned comment is merged as-is.
func (s *Service) React(ctx context.Context, commentID int64, emoji string) error {
	updated, err := s.api.ToggleReaction(ctx, commentID, emoji)
	if err != nil {
		s.notify("Could not react to the comment")
		return fmt.Errorf("react to comment %d: %w", commentID, err)
	}
	s.mu.Lock()
	s.store.Update(updated.ID, updated)
	s.mu.Unlock()
	return nil
}

// StagePending stores a draft from an external collaborator, replacing
// any previous one.
func (s *Service) StagePending(p PendingSubmission) {
	s.mu.Lock()
	s.pending = &p
	s.mu.Unlock()
}

// TakePending returns the staged draft and clears it, so a draft is
// consumed exactly once.
func (s *Service) TakePending() (PendingSubmission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingSubmission{}, false
	}
	p := *s.pending
	s.pending = nil
	return p, true
}

// SubmitPending posts the staged draft as a comment.
func (s *Service) SubmitPending(ctx context.Context, visibleToClient bool) (model.Comment, error) {
	p, ok := s.TakePending()
	if !ok {
		return model.Comment{}, domainError(http.StatusBadRequest, "NO_PENDING_SUBMISSION",
			"No review submission is staged")
	}
	return s.AddComment(ctx, AddCommentInput{
		Content:         p.Content,
		Annotation:      p.Annotation,
		CameraState:     p.CameraState,
		Attachments:     p.Attachments,
		VisibleToClient: visibleToClient,
	})
}

// SetPlaying records the playback state reported by the viewer.
func (s *Service) SetPlaying(playing bool) {
	s.mu.Lock()
	s.playing = playing
	s.mu.Unlock()
}

// UpdatePlayhead records the viewer's current time, loops an active
// selection range, and mirrors the time to the other window while
// playing. Only the primary window emits time; a secondary never feeds
// time back.
func (s *Service) UpdatePlayhead(seconds float64) {
	s.mu.Lock()
	s.playhead = seconds
	var loopStart float64
	loop := false
	if s.sel != nil && s.playing {
		if r := s.sel.State().SelectionRange; r != nil && seconds >= r.End {
			loop = true
			loopStart = r.Start
			s.playhead = r.Start
		}
	}
	playing := s.playing
	win := s.win
	s.mu.Unlock()

	if loop {
		s.viewer.Seek(loopStart)
		seconds = loopStart
	}
	if playing && win != nil && !s.secondary {
		win.PostTimeUpdate(seconds)
	}
}

// UpdateStatus moves the project through the review pipeline.
func (s *Service) UpdateStatus(ctx context.Context, status string) error {
	s.mu.Lock()
	projectID := s.project.ID
	s.mu.Unlock()

	updated, err := s.api.UpdateProjectStatus(ctx, projectID, status)
	if err != nil {
		s.notify("Could not update the project status")
		return fmt.Errorf("update status: %w", err)
	}
	s.mu.Lock()
	s.project.Status = updated.Status
	s.mu.Unlock()
	return nil
}

// ClientReviewLink returns the shareable guest review URL, or "" when
// the project has no client token.
func (s *Service) ClientReviewLink() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.project.ClientToken == "" {
		return ""
	}
	return strings.TrimRight(s.linkBase, "/") + "/review/" + s.project.ClientToken
}

// Project returns a snapshot of the held project.
func (s *Service) Project() model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

// Comments returns the root-level comment view for the active target.
func (s *Service) Comments(filter tree.Filter) []model.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.List(filter)
}

// Selection returns the current selection state.
func (s *Service) Selection() selection.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sel == nil {
		return selection.State{}
	}
	return s.sel.State()
}

// PeerTime is the last playback time mirrored from the other window.
func (s *Service) PeerTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerTime
}

// applyProjectPatch shallow-merges a pushed partial project over the
// held one. Fields absent from the patch keep their value, so the
// versions array survives metadata-only updates. Applying the same
// patch twice is a no-op.
func (s *Service) applyProjectPatch(partial json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.Unmarshal(partial, &s.project); err != nil {
		log.Printf("app: drop malformed project patch: %v", err)
		return
	}

	var keys map[string]json.RawMessage
	if json.Unmarshal(partial, &keys) == nil {
		if _, ok := keys["versions"]; ok {
			s.clampTargetLocked()
			s.store.Rebuild(s.activeCommentsLocked())
		}
	}
}

func (s *Service) handleWindowMessage(m window.Message) {
	switch m.Type {
	case window.TypeSeek:
		// Seek intent is for the playback owner; a secondary window has
		// no media element to apply it to.
		if s.secondary {
			return
		}
		var p window.SeekPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return
		}
		s.mu.Lock()
		s.viewer.Seek(p.Time)
		s.viewer.Pause()
		s.playhead = p.Time
		if s.sel != nil {
			if p.CommentID != 0 {
				s.sel.Highlight(p.CommentID)
			}
			// An absent annotation leaves the current overlay alone.
			if p.Annotation != "" {
				s.sel.ShowAnnotation(p.Annotation)
			}
		}
		s.mu.Unlock()
	case window.TypeTimeUpdate:
		var p window.TimeUpdatePayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return
		}
		s.mu.Lock()
		s.peerTime = p.Time
		s.mu.Unlock()
	case window.TypeCommentAdded:
		go func() {
			if err := s.Refetch(context.Background()); err != nil {
				log.Printf("app: refetch after cross-window comment: %v", err)
			}
		}()
	case window.TypeVersionChange:
		var p window.VersionChangePayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return
		}
		s.SetActiveVersion(p.Index)
	case window.TypeCommentHighlight:
		var p window.HighlightPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return
		}
		s.mu.Lock()
		if s.sel != nil {
			s.sel.Highlight(p.ID)
		}
		s.mu.Unlock()
	}
}

func (s *Service) notify(message string) {
	if s.notifier != nil {
		s.notifier.Notify(message)
	}
}

func (s *Service) activeVersionLocked() *model.MediaVersion {
	if s.activeVersion < 0 || s.activeVersion >= len(s.project.Versions) {
		return nil
	}
	return &s.project.Versions[s.activeVersion]
}

func (s *Service) activeKindLocked() string {
	if version := s.activeVersionLocked(); version != nil {
		return version.Kind
	}
	return model.KindVideo
}

// activeCommentsLocked resolves the comment forest of the active
// target: the active image's forest for bundles, the version's own
// otherwise.
func (s *Service) activeCommentsLocked() []model.Comment {
	version := s.activeVersionLocked()
	if version == nil {
		return nil
	}
	if version.Kind == model.KindImageBundle {
		if s.activeImage < 0 || s.activeImage >= len(version.Images) {
			return nil
		}
		return version.Images[s.activeImage].Comments
	}
	return version.Comments
}

// clampTargetLocked keeps the active indexes valid after the version
// list changed under us.
func (s *Service) clampTargetLocked() {
	if s.activeVersion >= len(s.project.Versions) {
		s.activeVersion = 0
	}
	if version := s.activeVersionLocked(); version != nil && s.activeImage >= len(version.Images) {
		s.activeImage = 0
	}
}

func annotationHasContent(raw string) bool {
	payload, err := annotation.ParseString(raw)
	return err == nil && annotation.HasContent(payload)
}

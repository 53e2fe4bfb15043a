// Package api is the HTTP client for the review service's REST
// surface: project fetch, comment mutations, reactions, and the guest
// variants scoped by a client review token. The service is the single
// source of truth; every mutation returns the authoritative resource,
// which callers merge back into local state.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"screenroom/engine/internal/model"
	"screenroom/engine/internal/util"
)

// Error is a failure surfaced by the service.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client talks to the review service. A zero ClientToken means
// authenticated team access via Token; a non-empty ClientToken switches
// every call to the guest routes, scoped to the one shared project and
// identified only by GuestName.
type Client struct {
	baseURL     string
	token       string
	clientToken string
	guestName   string
	httpc       *http.Client
}

// NewClient creates an authenticated team client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// NewGuestClient creates a client scoped by a client review token.
// Guests have no account; guestName labels their comments and
// reactions.
func NewGuestClient(baseURL, clientToken, guestName string) *Client {
	return &Client{
		baseURL:     baseURL,
		clientToken: clientToken,
		guestName:   guestName,
		httpc:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) guest() bool {
	return c.clientToken != ""
}

// CreateCommentInput is the body for comment creation. Annotation and
// CameraState are pre-serialized JSON strings passed through opaquely.
// A nil ParentID creates a root comment. Attachments switch the request
// to multipart.
type CreateCommentInput struct {
	Content           string       `json:"content"`
	Timestamp         float64      `json:"timestamp"`
	Duration          *float64     `json:"duration,omitempty"`
	Annotation        string       `json:"annotation,omitempty"`
	CameraState       string       `json:"cameraState,omitempty"`
	ScreenshotPath    string       `json:"screenshotPath,omitempty"`
	ParentID          *int64       `json:"parentId,omitempty"`
	ImageID           *int64       `json:"imageId,omitempty"`
	IsVisibleToClient bool         `json:"isVisibleToClient"`
	GuestName         string       `json:"guestName,omitempty"`
	Attachments       []Attachment `json:"-"`
}

// Attachment is a file to upload alongside a comment.
type Attachment struct {
	Name string
	Data io.Reader
}

// UpdateCommentInput is a partial comment patch. Nil pointer fields are
// omitted from the body and left untouched by the service. Assignment
// is tri-state: SetAssignee false leaves it alone, true with nil
// AssigneeID clears it, true with a value assigns.
type UpdateCommentInput struct {
	Content           *string `json:"content,omitempty"`
	Annotation        *string `json:"annotation,omitempty"`
	IsResolved        *bool   `json:"isResolved,omitempty"`
	IsVisibleToClient *bool   `json:"isVisibleToClient,omitempty"`
	SetAssignee       bool    `json:"-"`
	AssigneeID        *int64  `json:"-"`
}

// MarshalJSON emits assigneeId only when SetAssignee is set, so a
// cleared assignee serializes as an explicit null.
func (in UpdateCommentInput) MarshalJSON() ([]byte, error) {
	type alias UpdateCommentInput
	body := map[string]any{}
	raw, err := json.Marshal(alias(in))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	if in.SetAssignee {
		body["assigneeId"] = in.AssigneeID
	}
	return json.Marshal(body)
}

// FetchProject fetches the full project, versions and comment forests
// included.
func (c *Client) FetchProject(ctx context.Context, projectID int64) (model.Project, error) {
	path := fmt.Sprintf("/api/projects/%d", projectID)
	if c.guest() {
		path = "/api/client/projects/" + c.clientToken
	}
	var project model.Project
	if err := c.do(ctx, http.MethodGet, path, nil, &project); err != nil {
		return model.Project{}, fmt.Errorf("fetch project %d: %w", projectID, err)
	}
	return project, nil
}

// FetchProjectBySlug fetches a project addressed by team and project
// slugs. Guest clients are scoped to one project and fall back to the
// token route.
func (c *Client) FetchProjectBySlug(ctx context.Context, teamSlug, projectSlug string) (model.Project, error) {
	if c.guest() {
		return c.FetchProject(ctx, 0)
	}
	path := "/api/projects/" + url.PathEscape(teamSlug) + "/" + url.PathEscape(projectSlug)
	var project model.Project
	if err := c.do(ctx, http.MethodGet, path, nil, &project); err != nil {
		return model.Project{}, fmt.Errorf("fetch project %s/%s: %w", teamSlug, projectSlug, err)
	}
	return project, nil
}

// CreateComment creates a comment or reply and returns the
// authoritative comment with its server-assigned id.
func (c *Client) CreateComment(ctx context.Context, projectID int64, in CreateCommentInput) (model.Comment, error) {
	path := fmt.Sprintf("/api/projects/%d/comments", projectID)
	if c.guest() {
		path = "/api/client/projects/" + c.clientToken + "/comments"
		in.GuestName = c.guestName
	}

	var created model.Comment
	var err error
	if len(in.Attachments) > 0 {
		err = c.doMultipart(ctx, path, in, &created)
	} else {
		err = c.do(ctx, http.MethodPost, path, in, &created)
	}
	if err != nil {
		return model.Comment{}, fmt.Errorf("create comment: %w", err)
	}
	return created, nil
}

// UpdateComment applies a partial patch and returns the authoritative
// comment. The response carries no replies; the caller preserves them.
func (c *Client) UpdateComment(ctx context.Context, commentID int64, in UpdateCommentInput) (model.Comment, error) {
	path := fmt.Sprintf("/api/projects/comments/%d", commentID)
	if c.guest() {
		path = fmt.Sprintf("/api/client/projects/%s/comments/%d", c.clientToken, commentID)
	}
	var updated model.Comment
	if err := c.do(ctx, http.MethodPatch, path, in, &updated); err != nil {
		return model.Comment{}, fmt.Errorf("update comment %d: %w", commentID, err)
	}
	return updated, nil
}

// DeleteComment deletes a comment and its replies.
func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	path := fmt.Sprintf("/api/projects/comments/%d", commentID)
	var body any
	if c.guest() {
		path = fmt.Sprintf("/api/client/projects/%s/comments/%d", c.clientToken, commentID)
		body = map[string]string{"guestName": c.guestName}
	}
	if err := c.do(ctx, http.MethodDelete, path, body, nil); err != nil {
		return fmt.Errorf("delete comment %d: %w", commentID, err)
	}
	return nil
}

// ToggleReaction toggles the caller's reaction for one emoji and
// returns the authoritative comment. The service decides add-vs-remove
// from the actor it authenticated; the engine never guesses.
func (c *Client) ToggleReaction(ctx context.Context, commentID int64, emoji string) (model.Comment, error) {
	path := fmt.Sprintf("/api/projects/comments/%d/reactions", commentID)
	body := map[string]string{"emoji": emoji}
	if c.guest() {
		path = fmt.Sprintf("/api/client/projects/%s/comments/%d/reactions", c.clientToken, commentID)
		body["guestName"] = c.guestName
	}
	var updated model.Comment
	if err := c.do(ctx, http.MethodPost, path, body, &updated); err != nil {
		return model.Comment{}, fmt.Errorf("toggle reaction on %d: %w", commentID, err)
	}
	return updated, nil
}

// UpdateProjectStatus moves the project through the review pipeline and
// returns the updated project.
func (c *Client) UpdateProjectStatus(ctx context.Context, projectID int64, status string) (model.Project, error) {
	path := fmt.Sprintf("/api/projects/%d", projectID)
	var project model.Project
	if err := c.do(ctx, http.MethodPatch, path, map[string]string{"status": status}, &project); err != nil {
		return model.Project{}, fmt.Errorf("update project %d status: %w", projectID, err)
	}
	return project, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) doMultipart(ctx context.Context, path string, in CreateCommentInput, out any) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	fields := map[string]string{
		"content":           in.Content,
		"timestamp":         strconv.FormatFloat(in.Timestamp, 'f', -1, 64),
		"isVisibleToClient": strconv.FormatBool(in.IsVisibleToClient),
	}
	if in.Duration != nil {
		fields["duration"] = strconv.FormatFloat(*in.Duration, 'f', -1, 64)
	}
	if in.Annotation != "" {
		fields["annotation"] = in.Annotation
	}
	if in.CameraState != "" {
		fields["cameraState"] = in.CameraState
	}
	if in.ParentID != nil {
		fields["parentId"] = strconv.FormatInt(*in.ParentID, 10)
	}
	if in.ImageID != nil {
		fields["imageId"] = strconv.FormatInt(*in.ImageID, 10)
	}
	if in.GuestName != "" {
		fields["guestName"] = in.GuestName
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return fmt.Errorf("write field %s: %w", key, err)
		}
	}
	for _, attachment := range in.Attachments {
		part, err := form.CreateFormFile("attachments", attachment.Name)
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(part, attachment.Data); err != nil {
			return fmt.Errorf("copy attachment %s: %w", attachment.Name, err)
		}
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-ID", util.NewID("req"))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return &Error{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	return &Error{Status: resp.StatusCode, Code: body.Code, Message: body.Error}
}

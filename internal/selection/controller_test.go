package selection

import (
	"testing"

	"screenroom/engine/internal/model"
	"screenroom/engine/internal/tree"
)

type fakeViewer struct {
	calls []string
	seeks []float64
	poses []string
}

func (f *fakeViewer) Seek(seconds float64) {
	f.calls = append(f.calls, "seek")
	f.seeks = append(f.seeks, seconds)
}
func (f *fakeViewer) Pause() { f.calls = append(f.calls, "pause") }
func (f *fakeViewer) Resume() { f.calls = append(f.calls, "resume") }
func (f *fakeViewer) RestoreCamera(pose string) {
	f.calls = append(f.calls, "restoreCamera")
	f.poses = append(f.poses, pose)
}
func (f *fakeViewer) ResetCamera() { f.calls = append(f.calls, "resetCamera") }

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

func TestSelectVideoCommentWithDuration(t *testing.T) {
	s := tree.New()
	s.Insert(model.Comment{ID: 7, Timestamp: 12, Duration: f64(3)})
	viewer := &fakeViewer{}
	c := NewController(model.KindVideo, viewer, s)

	cm, _ := s.Get(7)
	c.SelectComment(&cm)

	state := c.State()
	if state.HighlightedCommentID != 7 {
		t.Errorf("expected highlight 7, got %d", state.HighlightedCommentID)
	}
	if state.SelectionRange == nil || state.SelectionRange.Start != 12 || state.SelectionRange.End != 15 {
		t.Errorf("expected range {12 15}, got %+v", state.SelectionRange)
	}
	if len(viewer.seeks) != 1 || viewer.seeks[0] != 12 {
		t.Errorf("expected a single seek to 12, got %v", viewer.seeks)
	}
	if viewer.calls[0] != "pause" {
		t.Errorf("pause must precede the overlay switch, calls: %v", viewer.calls)
	}
}

func TestSelectNilClearsState(t *testing.T) {
	s := tree.New()
	s.Insert(model.Comment{ID: 1, Timestamp: 2, Duration: f64(1), Annotation: `[{"tool":"rect"}]`})
	viewer := &fakeViewer{}
	c := NewController(model.KindVideo, viewer, s)

	cm, _ := s.Get(1)
	c.SelectComment(&cm)
	c.SelectComment(nil)

	state := c.State()
	if state.HighlightedCommentID != 0 || state.ViewingAnnotation != nil || state.SelectionRange != nil {
		t.Errorf("expected cleared state, got %+v", state)
	}
}

func TestSelectParsesAnnotation(t *testing.T) {
	s := tree.New()
	s.Insert(model.Comment{ID: 3, Timestamp: 1, Annotation: `[{"tool":"arrow","x":0.1,"y":0.1,"w":0.2,"h":0}]`})
	viewer := &fakeViewer{}
	c := NewController(model.KindVideo, viewer, s)

	cm, _ := s.Get(3)
	c.SelectComment(&cm)

	if c.State().ViewingAnnotation == nil || !c.State().ViewingAnnotation.HasContent() {
		t.Error("expected a parsed annotation overlay")
	}
}

func TestMalformedAnnotationDegradesToAbsent(t *testing.T) {
	s := tree.New()
	s.Insert(model.Comment{ID: 4, Timestamp: 1, Annotation: `{not json`})
	viewer := &fakeViewer{}
	c := NewController(model.KindVideo, viewer, s)

	cm, _ := s.Get(4)
	c.SelectComment(&cm)

	state := c.State()
	if state.ViewingAnnotation != nil {
		t.Error("malformed annotation should be treated as absent")
	}
	if state.HighlightedCommentID != 4 {
		t.Error("selection itself must still apply")
	}
}

func TestReplySelectionResolvesCanonicalNode(t *testing.T) {
	s := tree.New()
	s.Insert(model.Comment{ID: 1, Timestamp: 10, Duration: f64(5)})
	s.Insert(model.Comment{ID: 2, ParentID: i64(1), Timestamp: 10, Duration: f64(2)})
	viewer := &fakeViewer{}
	c := NewController(model.KindVideo, viewer, s)

	// The caller only knows the id, e.g. from a cross-window payload.
	c.SelectComment(&model.Comment{ID: 2})

	state := c.State()
	if state.SelectionRange == nil || state.SelectionRange.Start != 10 || state.SelectionRange.End != 12 {
		t.Errorf("range should come from the canonical reply node, got %+v", state.SelectionRange)
	}
	if viewer.seeks[0] != 10 {
		t.Errorf("seek should use the canonical timestamp, got %v", viewer.seeks)
	}
}

func TestThreeDRestoresStoredCamera(t *testing.T) {
	s := tree.New()
	s.Insert(model.Comment{ID: 5, Timestamp: 3, CameraState: `{"orbit":"0deg 75deg 105%"}`})
	viewer := &fakeViewer{}
	c := NewController(model.KindThreeD, viewer, s)

	cm, _ := s.Get(5)
	c.SelectComment(&cm)

	if len(viewer.poses) != 1 || viewer.poses[0] != `{"orbit":"0deg 75deg 105%"}` {
		t.Errorf("expected camera restore with stored pose, got %v", viewer.poses)
	}
}

func TestThreeDWithoutCameraResets(t *testing.T) {
	s := tree.New()
	s.Insert(model.Comment{ID: 6, Timestamp: 3})
	viewer := &fakeViewer{}
	c := NewController(model.KindThreeD, viewer, s)

	cm, _ := s.Get(6)
	c.SelectComment(&cm)

	reset := false
	for _, call := range viewer.calls {
		if call == "resetCamera" {
			reset = true
		}
		if call == "restoreCamera" {
			t.Error("unexpected camera restore")
		}
	}
	if !reset {
		t.Error("expected camera reset for 3D media with no stored pose")
	}
}

func TestImageMediaIgnoresSeek(t *testing.T) {
	s := tree.New()
	s.Insert(model.Comment{ID: 8, Timestamp: 0})
	viewer := &fakeViewer{}
	c := NewController(model.KindImageBundle, viewer, s)

	cm, _ := s.Get(8)
	c.SelectComment(&cm)

	if len(viewer.seeks) != 0 {
		t.Errorf("image media must not seek, got %v", viewer.seeks)
	}
	if c.State().HighlightedCommentID != 8 {
		t.Error("highlight should still apply for image media")
	}
}

func TestNoRangeForVideoWithoutDuration(t *testing.T) {
	s := tree.New()
	s.Insert(model.Comment{ID: 9, Timestamp: 4})
	viewer := &fakeViewer{}
	c := NewController(model.KindVideo, viewer, s)

	cm, _ := s.Get(9)
	c.SelectComment(&cm)

	if c.State().SelectionRange != nil {
		t.Errorf("no duration means no range, got %+v", c.State().SelectionRange)
	}
}

func TestSetTargetResetsState(t *testing.T) {
	s := tree.New()
	s.Insert(model.Comment{ID: 1, Timestamp: 1})
	viewer := &fakeViewer{}
	c := NewController(model.KindVideo, viewer, s)

	cm, _ := s.Get(1)
	c.SelectComment(&cm)
	c.SetTarget(model.KindThreeD, tree.New())

	if c.State().HighlightedCommentID != 0 {
		t.Error("switching the active target must reset selection state")
	}
}

package tree

import (
	"reflect"
	"testing"

	"screenroom/engine/internal/model"
)

func i64(v int64) *int64 { return &v }

func rootIDs(s *Store, f Filter) []int64 {
	var ids []int64
	for _, c := range s.List(f) {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestInsertReplyUnderRoot(t *testing.T) {
	s := New()
	s.Insert(model.Comment{ID: 1, Timestamp: 5})

	if ok := s.Insert(model.Comment{ID: 2, ParentID: i64(1), Timestamp: 5}); !ok {
		t.Fatal("reply insert failed")
	}

	forest := s.Tree()
	if len(forest) != 1 {
		t.Fatalf("expected 1 root, got %d", len(forest))
	}
	if len(forest[0].Replies) != 1 || forest[0].Replies[0].ID != 2 {
		t.Fatalf("expected reply 2 under root 1, got %+v", forest[0].Replies)
	}
}

func TestRootOrderingByTimestamp(t *testing.T) {
	s := New()
	s.Insert(model.Comment{ID: 1, Timestamp: 10})
	s.Insert(model.Comment{ID: 2, Timestamp: 3})

	if got := rootIDs(s, FilterAll); !reflect.DeepEqual(got, []int64{2, 1}) {
		t.Errorf("expected roots ordered [2 1] by timestamp, got %v", got)
	}
}

func TestEqualTimestampsPreserveInsertionOrder(t *testing.T) {
	s := New()
	s.Insert(model.Comment{ID: 7, Timestamp: 4})
	s.Insert(model.Comment{ID: 8, Timestamp: 4})
	s.Insert(model.Comment{ID: 9, Timestamp: 4})

	if got := rootIDs(s, FilterAll); !reflect.DeepEqual(got, []int64{7, 8, 9}) {
		t.Errorf("expected stable order [7 8 9], got %v", got)
	}
}

func TestInsertUnknownParentIsNoOp(t *testing.T) {
	s := New()
	s.Insert(model.Comment{ID: 1, Timestamp: 1})

	if ok := s.Insert(model.Comment{ID: 2, ParentID: i64(99), Timestamp: 2}); ok {
		t.Error("insert with unknown parent should report failure")
	}
	if s.Len() != 1 {
		t.Errorf("store should be unchanged, has %d nodes", s.Len())
	}
}

func TestInsertThenRemoveRestoresStructure(t *testing.T) {
	s := New()
	s.Insert(model.Comment{ID: 1, Timestamp: 1})
	s.Insert(model.Comment{ID: 2, Timestamp: 2})
	s.Insert(model.Comment{ID: 3, ParentID: i64(1), Timestamp: 1})

	before := s.Tree()

	s.Insert(model.Comment{ID: 4, ParentID: i64(2), Timestamp: 5})
	s.Remove(4)

	after := s.Tree()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("insert+remove should restore the forest:\nbefore: %+v\nafter:  %+v", before, after)
	}
}

func TestUpdatePreservesDescendants(t *testing.T) {
	s := New()
	s.Insert(model.Comment{ID: 1, Timestamp: 1, Content: "original"})
	s.Insert(model.Comment{ID: 2, ParentID: i64(1), Timestamp: 1})
	s.Insert(model.Comment{ID: 3, ParentID: i64(2), Timestamp: 1})

	// Server responses carry no replies on the patched node.
	if ok := s.Update(1, model.Comment{ID: 1, Timestamp: 1, Content: "edited", IsResolved: true}); !ok {
		t.Fatal("update failed")
	}

	forest := s.Tree()
	if forest[0].Content != "edited" || !forest[0].IsResolved {
		t.Errorf("update did not apply: %+v", forest[0])
	}
	if len(forest[0].Replies) != 1 || len(forest[0].Replies[0].Replies) != 1 {
		t.Error("descendants dropped by ancestor update")
	}
}

func TestUpdateUnknownIsNoOp(t *testing.T) {
	s := New()
	if ok := s.Update(42, model.Comment{ID: 42}); ok {
		t.Error("update of unknown id should report failure")
	}
}

func TestRemoveNestedReplyRemovesOnlyItsSubtree(t *testing.T) {
	s := New()
	s.Insert(model.Comment{ID: 1, Timestamp: 1})
	s.Insert(model.Comment{ID: 2, ParentID: i64(1), Timestamp: 1})
	s.Insert(model.Comment{ID: 5, ParentID: i64(2), Timestamp: 1}) // two levels deep
	s.Insert(model.Comment{ID: 6, ParentID: i64(5), Timestamp: 1}) // child of the target
	s.Insert(model.Comment{ID: 7, ParentID: i64(2), Timestamp: 1}) // sibling of the target
	s.Insert(model.Comment{ID: 8, Timestamp: 2})                   // root sibling

	if ok := s.Remove(5); !ok {
		t.Fatal("remove failed")
	}

	if _, found := s.Get(5); found {
		t.Error("removed node still present")
	}
	if _, found := s.Get(6); found {
		t.Error("descendant of removed node still present")
	}
	if _, found := s.Get(7); !found {
		t.Error("sibling at reply level was lost")
	}
	if _, found := s.Get(8); !found {
		t.Error("root sibling was lost")
	}
	forest := s.Tree()
	if len(forest) != 2 || len(forest[0].Replies) != 1 || len(forest[0].Replies[0].Replies) != 1 {
		t.Errorf("unexpected forest after removal: %+v", forest)
	}
}

func TestListFiltersPartitionAll(t *testing.T) {
	s := New()
	s.Insert(model.Comment{ID: 1, Timestamp: 1, IsResolved: true})
	s.Insert(model.Comment{ID: 2, Timestamp: 2})
	s.Insert(model.Comment{ID: 3, Timestamp: 3, IsResolved: true})
	s.Insert(model.Comment{ID: 4, Timestamp: 4})

	all := rootIDs(s, FilterAll)
	active := rootIDs(s, FilterActive)
	done := rootIDs(s, FilterDone)

	if len(active)+len(done) != len(all) {
		t.Fatalf("active+done should partition all: %v / %v / %v", active, done, all)
	}
	seen := map[int64]bool{}
	for _, id := range append(append([]int64{}, active...), done...) {
		if seen[id] {
			t.Errorf("id %d appears in both filters", id)
		}
		seen[id] = true
	}
	if !reflect.DeepEqual(active, []int64{2, 4}) {
		t.Errorf("active = %v", active)
	}
	if !reflect.DeepEqual(done, []int64{1, 3}) {
		t.Errorf("done = %v", done)
	}
}

func TestRebuildSortsRootsAndKeepsDepth(t *testing.T) {
	s := New()
	s.Rebuild([]model.Comment{
		{ID: 1, Timestamp: 9, Replies: []model.Comment{
			{ID: 2, ParentID: i64(1), Timestamp: 1, Replies: []model.Comment{
				{ID: 3, ParentID: i64(2), Timestamp: 1}, // deeper than the UI authors
			}},
		}},
		{ID: 4, Timestamp: 2},
	})

	if got := rootIDs(s, FilterAll); !reflect.DeepEqual(got, []int64{4, 1}) {
		t.Errorf("expected roots [4 1], got %v", got)
	}
	forest := s.Tree()
	if len(forest[1].Replies) != 1 || len(forest[1].Replies[0].Replies) != 1 {
		t.Error("nested depth lost on rebuild")
	}
}

func TestRebuildPromotesOrphanedReplies(t *testing.T) {
	s := New()
	// Comment 5's parent 99 is gone from the payload: promote to root.
	s.Rebuild([]model.Comment{
		{ID: 1, Timestamp: 3},
		{ID: 5, ParentID: i64(99), Timestamp: 1},
	})

	if got := rootIDs(s, FilterAll); !reflect.DeepEqual(got, []int64{5, 1}) {
		t.Errorf("orphaned reply should become a root, got %v", got)
	}
}

func TestRebuildReattachesFlatReply(t *testing.T) {
	s := New()
	// A reply delivered at top level whose parent is present re-attaches.
	s.Rebuild([]model.Comment{
		{ID: 1, Timestamp: 1},
		{ID: 2, ParentID: i64(1), Timestamp: 2},
	})

	forest := s.Tree()
	if len(forest) != 1 {
		t.Fatalf("expected a single root, got %d", len(forest))
	}
	if len(forest[0].Replies) != 1 || forest[0].Replies[0].ID != 2 {
		t.Errorf("flat reply not re-attached: %+v", forest)
	}
}

func TestInsertExistingIDUpdatesInPlace(t *testing.T) {
	s := New()
	s.Insert(model.Comment{ID: 1, Timestamp: 1, Content: "first"})
	s.Insert(model.Comment{ID: 2, ParentID: i64(1), Timestamp: 1})

	s.Insert(model.Comment{ID: 1, Timestamp: 1, Content: "replayed"})

	got, _ := s.Get(1)
	if got.Content != "replayed" {
		t.Errorf("expected replayed insert to update, got %q", got.Content)
	}
	if len(s.Tree()[0].Replies) != 1 {
		t.Error("replayed insert dropped descendants")
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 nodes, got %d", s.Len())
	}
}

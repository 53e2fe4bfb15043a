// Package tree holds the in-memory comment forest for one active media
// target. Comments live in an arena keyed by id, with a parent pointer
// per node and a children-by-parent index; the nested forest handed to
// renderers is a derived view. Structural misses (unknown parent or
// target id) are silent no-ops: the caller is expected to trigger a
// full project refetch, which rebuilds the arena wholesale.
package tree

import (
	"sort"

	"screenroom/engine/internal/model"
)

type Filter string

const (
	FilterAll    Filter = "all"
	FilterActive Filter = "active"
	FilterDone   Filter = "done"
)

type node struct {
	comment  model.Comment // Replies stripped; structure lives in the indexes
	parentID int64         // 0 for root comments
}

type Store struct {
	nodes    map[int64]*node
	children map[int64][]int64
	roots    []int64
}

func New() *Store {
	return &Store{
		nodes:    make(map[int64]*node),
		children: make(map[int64][]int64),
	}
}

// Len reports the number of comments held, at every depth.
func (s *Store) Len() int {
	return len(s.nodes)
}

// Insert adds a comment. Root comments keep the root list ordered by
// timestamp ascending, stable for equal timestamps. Replies attach to
// their parent at any depth. An unknown parent id is a recoverable
// consistency gap: Insert returns false and the caller refetches.
// Inserting an id that already exists updates that node in place.
func (s *Store) Insert(c model.Comment) bool {
	if _, exists := s.nodes[c.ID]; exists {
		return s.Update(c.ID, c)
	}

	if c.ParentID == nil {
		s.attach(c, 0)
		s.insertRoot(c.ID)
		return true
	}

	parentID := *c.ParentID
	if _, ok := s.nodes[parentID]; !ok {
		return false
	}
	s.attach(c, parentID)
	s.children[parentID] = append(s.children[parentID], c.ID)
	return true
}

// Update replaces the node's fields with patch while preserving its
// descendants: the children index is untouched and the node never moves
// in the forest. No-op returning false if the id is unknown.
func (s *Store) Update(id int64, patch model.Comment) bool {
	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	patch.ID = id
	patch.Replies = nil
	n.comment = patch
	return true
}

// Remove deletes the comment and its entire subtree. No-op returning
// false if the id is unknown. Siblings at every level are untouched.
func (s *Store) Remove(id int64) bool {
	n, ok := s.nodes[id]
	if !ok {
		return false
	}

	if n.parentID == 0 {
		s.roots = removeID(s.roots, id)
	} else {
		s.children[n.parentID] = removeID(s.children[n.parentID], id)
	}
	s.removeSubtree(id)
	return true
}

// Get returns the node's own fields without its replies.
func (s *Store) Get(id int64) (model.Comment, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return model.Comment{}, false
	}
	return n.comment, true
}

// List returns the flat, root-level, timestamp-sorted view. FilterActive
// excludes resolved roots, FilterDone includes only them. Replies are
// materialized on each returned root.
func (s *Store) List(f Filter) []model.Comment {
	out := make([]model.Comment, 0, len(s.roots))
	for _, id := range s.roots {
		c := s.nodes[id].comment
		switch f {
		case FilterActive:
			if c.IsResolved {
				continue
			}
		case FilterDone:
			if !c.IsResolved {
				continue
			}
		}
		out = append(out, s.materialize(id))
	}
	return out
}

// Tree is the full derived forest, equivalent to List(FilterAll).
func (s *Store) Tree() []model.Comment {
	return s.List(FilterAll)
}

// Rebuild replaces the arena with a freshly fetched forest. Nesting
// position is the source of truth for parentage; a top-level comment
// that still declares a parentId is re-attached when that parent is
// present, and promoted to a root comment when it is not (the orphaned
// reply case: its parent was deleted while the reply was in flight).
func (s *Store) Rebuild(comments []model.Comment) {
	s.nodes = make(map[int64]*node)
	s.children = make(map[int64][]int64)
	s.roots = nil

	type flat struct {
		comment    model.Comment
		structural int64 // parent derived from nesting, 0 at top level
	}
	var all []flat
	var walk func(list []model.Comment, parent int64)
	walk = func(list []model.Comment, parent int64) {
		for _, c := range list {
			all = append(all, flat{comment: c, structural: parent})
			walk(c.Replies, c.ID)
		}
	}
	walk(comments, 0)

	present := make(map[int64]bool, len(all))
	for _, f := range all {
		present[f.comment.ID] = true
	}

	for _, f := range all {
		parent := f.structural
		if parent == 0 && f.comment.ParentID != nil && present[*f.comment.ParentID] {
			parent = *f.comment.ParentID
		}
		s.attach(f.comment, parent)
		if parent == 0 {
			s.roots = append(s.roots, f.comment.ID)
		} else {
			s.children[parent] = append(s.children[parent], f.comment.ID)
		}
	}

	sort.SliceStable(s.roots, func(i, j int) bool {
		return s.nodes[s.roots[i]].comment.Timestamp < s.nodes[s.roots[j]].comment.Timestamp
	})
}

func (s *Store) attach(c model.Comment, parentID int64) {
	c.Replies = nil
	s.nodes[c.ID] = &node{comment: c, parentID: parentID}
}

// insertRoot keeps roots timestamp-ordered; equal timestamps preserve
// insertion order, so the new id goes after existing equals.
func (s *Store) insertRoot(id int64) {
	ts := s.nodes[id].comment.Timestamp
	at := sort.Search(len(s.roots), func(i int) bool {
		return s.nodes[s.roots[i]].comment.Timestamp > ts
	})
	s.roots = append(s.roots, 0)
	copy(s.roots[at+1:], s.roots[at:])
	s.roots[at] = id
}

func (s *Store) removeSubtree(id int64) {
	for _, child := range s.children[id] {
		s.removeSubtree(child)
	}
	delete(s.children, id)
	delete(s.nodes, id)
}

func (s *Store) materialize(id int64) model.Comment {
	c := s.nodes[id].comment
	kids := s.children[id]
	if len(kids) > 0 {
		c.Replies = make([]model.Comment, 0, len(kids))
		for _, child := range kids {
			c.Replies = append(c.Replies, s.materialize(child))
		}
	}
	return c
}

func removeID(list []int64, id int64) []int64 {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

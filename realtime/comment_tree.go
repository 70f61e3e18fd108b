package realtime

import (
	"errors"
	"slices"
	"time"
)

// error type checking:
//
//	a tree mutation error can be checked with errors.Is(err, ErrType).
//	these are returned as values to the initiating caller and must never be
//	retried automatically.
var (
	ErrNotFound  = errors.New("comment not found")
	ErrForbidden = errors.New("comment belongs to another author")
	ErrDeleted   = errors.New("comment is deleted")
)

// displayed in place of a tombstoned comment's content
const TombstoneContent = "[deleted]"

type CommentNode struct {
	Id         string     `json:"id"`
	AuthorId   string     `json:"userId"`
	AuthorName string     `json:"userName,omitempty"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"createdAt"`
	EditedAt   *time.Time `json:"updatedAt,omitempty"`
	Deleted    bool       `json:"deleted"`
	// insertion order = chronological
	Children []*CommentNode `json:"replies,omitempty"`
}

func NewCommentNode(authorId string, authorName string, content string) *CommentNode {
	return &CommentNode{
		Id:         NewId().String(),
		AuthorId:   authorId,
		AuthorName: authorName,
		Content:    content,
		CreatedAt:  time.Now(),
	}
}

// CommentTreeStore owns the comment tree for one post view. reply chains are
// user generated and can be arbitrarily deep, so every traversal uses an
// explicit work list instead of recursion. mutations check authorization and
// state before touching any node, so a failed operation leaves the tree
// unchanged. the store is mutated from a single goroutine (ui driven), like
// the rest of a feature's local state.
type CommentTreeStore struct {
	roots []*CommentNode
}

func NewCommentTreeStore() *CommentTreeStore {
	return &CommentTreeStore{}
}

// Load replaces the tree with a fetched page of top level comments.
func (self *CommentTreeStore) Load(roots []*CommentNode) {
	self.roots = roots
}

func (self *CommentTreeStore) Roots() []*CommentNode {
	return self.roots
}

// AddComment inserts a new top level comment at the head, matching the
// newest-first ordering of the comment list.
func (self *CommentTreeStore) AddComment(node *CommentNode) {
	self.roots = slices.Insert(self.roots, 0, node)
}

// FindById is a depth first search over the tree. returns nil if absent.
func (self *CommentTreeStore) FindById(id string) *CommentNode {
	stack := slices.Clone(self.roots)
	for 0 < len(stack) {
		node := stack[len(stack)-1]
		stack = stack[0 : len(stack)-1]
		if node.Id == id {
			return node
		}
		// push in reverse so children pop in document order
		for i := len(node.Children) - 1; 0 <= i; i -= 1 {
			stack = append(stack, node.Children[i])
		}
	}
	return nil
}

// InsertReply appends the node to the parent's children, at the end.
// tombstoned parents remain repliable; their subtree is real conversation.
func (self *CommentTreeStore) InsertReply(parentId string, node *CommentNode) error {
	parent := self.FindById(parentId)
	if parent == nil {
		return ErrNotFound
	}
	parent.Children = append(parent.Children, node)
	return nil
}

// Edit sets new content on a node, only for its author.
func (self *CommentTreeStore) Edit(nodeId string, requesterId string, newContent string) error {
	node := self.FindById(nodeId)
	if node == nil {
		return ErrNotFound
	}
	if node.AuthorId != requesterId {
		return ErrForbidden
	}
	if node.Deleted {
		return ErrDeleted
	}
	node.Content = newContent
	editedAt := time.Now()
	node.EditedAt = &editedAt
	return nil
}

// Delete tombstones a node: the content is cleared to the tombstone marker
// and the children are untouched, still traversable and repliable.
func (self *CommentTreeStore) Delete(nodeId string, requesterId string) error {
	node := self.FindById(nodeId)
	if node == nil {
		return ErrNotFound
	}
	if node.AuthorId != requesterId {
		return ErrForbidden
	}
	if node.Deleted {
		return ErrDeleted
	}
	node.Deleted = true
	node.Content = TombstoneContent
	return nil
}

// CountVisible is the total node count, tombstones included: a tombstone
// still occupies a slot since its children are real conversation.
func (self *CommentTreeStore) CountVisible() int {
	count := 0
	stack := slices.Clone(self.roots)
	for 0 < len(stack) {
		node := stack[len(stack)-1]
		stack = stack[0 : len(stack)-1]
		count += 1
		stack = append(stack, node.Children...)
	}
	return count
}

// Flatten returns the nodes in depth first document order for rendering.
func (self *CommentTreeStore) Flatten() []*CommentNode {
	flat := []*CommentNode{}
	stack := slices.Clone(self.roots)
	slices.Reverse(stack)
	for 0 < len(stack) {
		node := stack[len(stack)-1]
		stack = stack[0 : len(stack)-1]
		flat = append(flat, node)
		for i := len(node.Children) - 1; 0 <= i; i -= 1 {
			stack = append(stack, node.Children[i])
		}
	}
	return flat
}

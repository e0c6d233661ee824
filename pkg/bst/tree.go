// Package bst implements the unbalanced binary search tree that indexes
// temperature/humidity readings by timestamp. The tree never rebalances:
// its shape is purely a function of insertion order, and callers that
// insert keys in sorted order get the worst case. Callers randomize
// their insertion order instead (see cmd/thermolog and pkg/storage).
package bst

import (
	"github.com/pkg/errors"

	"github.com/thermolog/pkg/types"
)

var (
	// ErrNotFound reports a search miss.
	ErrNotFound = errors.New("bst: timestamp not found")

	// ErrInvalidTimestamp reports a negative search timestamp. Reading
	// timestamps are Unix-epoch seconds; negative values never occur.
	ErrInvalidTimestamp = errors.New("bst: invalid timestamp")

	// ErrNilTree reports an operation against a nil tree handle.
	ErrNilTree = errors.New("bst: nil tree")
)

// Node is a single vertex of the tree. It holds one reading and up to
// two children. There are no parent links; every walk is top-down.
type Node struct {
	reading     types.Reading
	left, right *Node
}

// Reading returns the sample stored at this node.
func (n *Node) Reading() types.Reading {
	return n.reading
}

// TraceFunc observes every node examined while descending during an
// Insert or Search. It exists for diagnostics only; correctness never
// depends on it and the tree itself never logs.
type TraceFunc func(*Node)

// Iterator receives readings in ascending timestamp order. Returning
// false stops the walk.
type Iterator func(r types.Reading) bool

// Tree is an unbalanced binary search tree keyed by reading timestamp.
// Equal timestamps are allowed: ties descend right on both insert and
// search, so duplicates all persist as distinct nodes.
//
// A Tree is not safe for concurrent use. Callers that share one across
// goroutines (pkg/storage does) must synchronize around it.
//
// Every method tolerates a nil receiver and degrades to "no result"
// instead of panicking, so loosely checked glue code cannot crash the
// core.
type Tree struct {
	root  *Node
	count int
	trace TraceFunc
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// SetTrace installs fn as the descent observer. A nil fn disables
// tracing.
func (t *Tree) SetTrace(fn TraceFunc) {
	if t == nil {
		return
	}
	t.trace = fn
}

// Len reports the number of readings in the tree.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return t.count
}

// Insert adds r to the tree and returns the node created for it.
// Timestamps strictly less than the current node descend left,
// everything else (ties included) descends right. The new node is
// attached at the first empty slot found; nothing is ever rotated.
func (t *Tree) Insert(r types.Reading) (*Node, error) {
	if t == nil {
		return nil, ErrNilTree
	}

	n := &Node{reading: r}
	if t.root == nil {
		t.root = n
		t.count++
		return n, nil
	}

	cur := t.root
	for {
		if t.trace != nil {
			t.trace(cur)
		}
		if r.Timestamp < cur.reading.Timestamp {
			if cur.left == nil {
				cur.left = n
				break
			}
			cur = cur.left
		} else {
			if cur.right == nil {
				cur.right = n
				break
			}
			cur = cur.right
		}
	}

	t.count++
	return n, nil
}

// Search returns the first node on the standard descent path whose
// timestamp equals ts. When duplicates exist this is the shallowest
// match, not necessarily the first inserted. A negative ts is rejected
// with ErrInvalidTimestamp; a miss returns ErrNotFound.
func (t *Tree) Search(ts int64) (*Node, error) {
	if t == nil {
		return nil, ErrNilTree
	}
	if ts < 0 {
		return nil, ErrInvalidTimestamp
	}

	cur := t.root
	for cur != nil && cur.reading.Timestamp != ts {
		if t.trace != nil {
			t.trace(cur)
		}
		if ts < cur.reading.Timestamp {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}

	if cur == nil {
		return nil, ErrNotFound
	}
	return cur, nil
}

// Ascend walks the whole tree in ascending timestamp order. The walk
// keeps its own node stack instead of recursing, so a fully degenerate
// tree costs heap instead of goroutine stack. The tree is not mutated.
func (t *Tree) Ascend(iter Iterator) {
	if t == nil || iter == nil {
		return
	}

	stack := make([]*Node, 0, 16)
	cur := t.root
	for cur != nil || len(stack) > 0 {
		for cur != nil {
			stack = append(stack, cur)
			cur = cur.left
		}
		cur = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !iter(cur.reading) {
			return
		}
		cur = cur.right
	}
}

// AscendRange walks readings with greaterOrEqual <= timestamp < lessThan
// in ascending order, pruning subtrees that cannot intersect the range.
func (t *Tree) AscendRange(greaterOrEqual, lessThan int64, iter Iterator) {
	if t == nil || iter == nil {
		return
	}

	stack := make([]*Node, 0, 16)
	cur := t.root
	for cur != nil || len(stack) > 0 {
		for cur != nil {
			if cur.reading.Timestamp < greaterOrEqual {
				// The left subtree is entirely below the range.
				cur = cur.right
				continue
			}
			stack = append(stack, cur)
			cur = cur.left
		}
		if len(stack) == 0 {
			return
		}
		cur = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.reading.Timestamp >= lessThan {
			// Nodes pop in ascending order; everything left is larger.
			return
		}
		if !iter(cur.reading) {
			return
		}
		cur = cur.right
	}
}

// Reset empties the tree. The garbage collector reclaims the detached
// nodes, so no teardown walk is needed, and resetting an already-empty
// tree is a no-op.
func (t *Tree) Reset() {
	if t == nil {
		return
	}
	t.root = nil
	t.count = 0
}

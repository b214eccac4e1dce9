package nestedset

import (
	"fmt"
	"strings"
)

// Node is one row of the tree: its id and nested-set boundaries.
type Node struct {
	ID    int64 `gorm:"column:node_id" json:"id"`
	Left  int64 `gorm:"column:node_left" json:"left"`
	Right int64 `gorm:"column:node_right" json:"right"`
}

// Width is the number of boundary units the node's subtree occupies.
func (n Node) Width() int64 {
	return n.Right - n.Left + 1
}

// Size is the number of nodes in the subtree, including the node itself.
func (n Node) Size() int64 {
	return n.Width() / 2
}

func (n Node) IsLeaf() bool {
	return n.Right == n.Left+1
}

// Contains reports whether o is a strict descendant of n.
func (n Node) Contains(o Node) bool {
	return n.Left < o.Left && n.Right > o.Right
}

// TreeNode is a node annotated with its depth below the root (direct children of the root have depth 1).
type TreeNode struct {
	Node
	Depth int `json:"depth"`
}

type PositionKind int

const (
	PositionLastChild PositionKind = iota
	PositionFirstChild
	PositionBefore
	PositionAfter
)

func (k PositionKind) String() string {
	switch k {
	case PositionLastChild:
		return "last"
	case PositionFirstChild:
		return "first"
	case PositionBefore:
		return "before"
	case PositionAfter:
		return "after"
	default:
		return fmt.Sprintf("PositionKind(%d)", int(k))
	}
}

// Position picks where under a parent a node is attached. Before and After
// name a sibling, which must be a direct child of that parent.
type Position struct {
	Kind    PositionKind
	Sibling int64
}

func LastChild() Position {
	return Position{Kind: PositionLastChild}
}

func FirstChild() Position {
	return Position{Kind: PositionFirstChild}
}

func Before(sibling int64) Position {
	return Position{Kind: PositionBefore, Sibling: sibling}
}

func After(sibling int64) Position {
	return Position{Kind: PositionAfter, Sibling: sibling}
}

func (p Position) String() string {
	switch p.Kind {
	case PositionBefore, PositionAfter:
		return fmt.Sprintf("%s:%d", p.Kind, p.Sibling)
	default:
		return p.Kind.String()
	}
}

// ParsePosition parses "first", "last", "before" or "after". An empty string
// is the same as "last". The sibling is only consulted for before/after.
func ParsePosition(s string, sibling int64) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last":
		return LastChild(), nil
	case "first":
		return FirstChild(), nil
	case "before":
		if sibling <= 0 {
			return Position{}, fmt.Errorf("%w: before requires a sibling id", ErrInvalidPosition)
		}
		return Before(sibling), nil
	case "after":
		if sibling <= 0 {
			return Position{}, fmt.Errorf("%w: after requires a sibling id", ErrInvalidPosition)
		}
		return After(sibling), nil
	default:
		return Position{}, fmt.Errorf("%w: %q", ErrInvalidPosition, s)
	}
}

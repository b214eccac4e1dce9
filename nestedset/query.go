package nestedset

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

func getNode(tx *gorm.DB, s *stmtSet, id int64) (Node, error) {
	var rows []Node
	if err := tx.Raw(s.get(stmtNodeByID), id).Scan(&rows).Error; err != nil {
		return Node{}, fmt.Errorf("loading node %d: %w", id, err)
	}
	if len(rows) == 0 {
		return Node{}, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return rows[0], nil
}

func listNodes(tx *gorm.DB, q string, args ...any) ([]Node, error) {
	out := []Node{}
	if err := tx.Raw(q, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func count(tx *gorm.DB, q string, args ...any) (int64, error) {
	var n int64
	if err := tx.Raw(q, args...).Scan(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// parentOf returns the nearest containing row, or ErrNoParent.
func parentOf(tx *gorm.DB, s *stmtSet, n Node) (Node, error) {
	rows, err := listNodes(tx, s.get(stmtParent), n.Left, n.Right)
	if err != nil {
		return Node{}, fmt.Errorf("loading parent of %d: %w", n.ID, err)
	}
	if len(rows) == 0 {
		return Node{}, fmt.Errorf("%w: %d", ErrNoParent, n.ID)
	}
	return rows[0], nil
}

// isChildOf reports whether child sits directly below parent.
func isChildOf(tx *gorm.DB, s *stmtSet, parent, child Node) (bool, error) {
	if !parent.Contains(child) {
		return false, nil
	}
	between, err := count(tx, s.get(stmtBetween), parent.Left, parent.Right, child.Left, child.Right)
	if err != nil {
		return false, err
	}
	return between == 0, nil
}

func (e *Engine) Node(ctx context.Context, id int64) (Node, error) {
	ctx, span := tracer.Start(ctx, "Node")
	defer span.End()
	span.SetAttributes(attribute.Int64("id", id))

	var out Node
	err := e.read(ctx, func(tx *gorm.DB, s *stmtSet) error {
		var err error
		out, err = getNode(tx, s, id)
		return err
	})
	return out, err
}

// rangeQuery loads the target node and then runs a range query against its boundaries.
func (e *Engine) rangeQuery(ctx context.Context, name string, id int64, fn func(tx *gorm.DB, s *stmtSet, n Node) ([]Node, error)) ([]Node, error) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	span.SetAttributes(attribute.Int64("id", id))

	var out []Node
	err := e.read(ctx, func(tx *gorm.DB, s *stmtSet) error {
		n, err := getNode(tx, s, id)
		if err != nil {
			return err
		}
		out, err = fn(tx, s, n)
		if err != nil {
			return fmt.Errorf("%s of %d: %w", name, id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Descendants lists every node below id in pre-order.
func (e *Engine) Descendants(ctx context.Context, id int64) ([]Node, error) {
	return e.rangeQuery(ctx, "Descendants", id, func(tx *gorm.DB, s *stmtSet, n Node) ([]Node, error) {
		return listNodes(tx, s.get(stmtDescendants), n.Left, n.Right)
	})
}

// Ancestors lists the nodes above id, root first.
func (e *Engine) Ancestors(ctx context.Context, id int64) ([]Node, error) {
	return e.rangeQuery(ctx, "Ancestors", id, func(tx *gorm.DB, s *stmtSet, n Node) ([]Node, error) {
		return listNodes(tx, s.get(stmtAncestors), n.Left, n.Right)
	})
}

func (e *Engine) Children(ctx context.Context, id int64) ([]Node, error) {
	return e.rangeQuery(ctx, "Children", id, func(tx *gorm.DB, s *stmtSet, n Node) ([]Node, error) {
		return listNodes(tx, s.get(stmtChildren), n.Left, n.Right, n.Left, n.Right)
	})
}

// Siblings lists the other children of id's parent. The root has none.
func (e *Engine) Siblings(ctx context.Context, id int64) ([]Node, error) {
	return e.rangeQuery(ctx, "Siblings", id, func(tx *gorm.DB, s *stmtSet, n Node) ([]Node, error) {
		p, err := parentOf(tx, s, n)
		if err != nil {
			if errors.Is(err, ErrNoParent) {
				return []Node{}, nil
			}
			return nil, err
		}
		children, err := listNodes(tx, s.get(stmtChildren), p.Left, p.Right, p.Left, p.Right)
		if err != nil {
			return nil, err
		}
		out := make([]Node, 0, len(children))
		for _, c := range children {
			if c.ID != n.ID {
				out = append(out, c)
			}
		}
		return out, nil
	})
}

func (e *Engine) Parent(ctx context.Context, id int64) (Node, error) {
	ctx, span := tracer.Start(ctx, "Parent")
	defer span.End()
	span.SetAttributes(attribute.Int64("id", id))

	var out Node
	err := e.read(ctx, func(tx *gorm.DB, s *stmtSet) error {
		n, err := getNode(tx, s, id)
		if err != nil {
			return err
		}
		out, err = parentOf(tx, s, n)
		return err
	})
	return out, err
}

// Depth is the number of ancestors of id; the root has depth zero.
func (e *Engine) Depth(ctx context.Context, id int64) (int, error) {
	ctx, span := tracer.Start(ctx, "Depth")
	defer span.End()
	span.SetAttributes(attribute.Int64("id", id))

	var depth int64
	err := e.read(ctx, func(tx *gorm.DB, s *stmtSet) error {
		n, err := getNode(tx, s, id)
		if err != nil {
			return err
		}
		depth, err = count(tx, s.get(stmtDepth), n.Left, n.Right)
		return err
	})
	return int(depth), err
}

// IsAncestor reports whether ancestor strictly contains descendant.
func (e *Engine) IsAncestor(ctx context.Context, ancestor, descendant int64) (bool, error) {
	var out bool
	err := e.read(ctx, func(tx *gorm.DB, s *stmtSet) error {
		a, err := getNode(tx, s, ancestor)
		if err != nil {
			return err
		}
		d, err := getNode(tx, s, descendant)
		if err != nil {
			return err
		}
		out = a.Contains(d)
		return nil
	})
	return out, err
}

func (e *Engine) Count(ctx context.Context) (int64, error) {
	var n int64
	err := e.read(ctx, func(tx *gorm.DB, s *stmtSet) error {
		var err error
		n, err = count(tx, s.get(stmtCount))
		return err
	})
	return n, err
}

// Tree returns every node in pre-order with its depth. The root itself is
// left out of the view; an empty table yields an empty tree.
func (e *Engine) Tree(ctx context.Context) ([]TreeNode, error) {
	ctx, span := tracer.Start(ctx, "Tree")
	defer span.End()

	out := []TreeNode{}
	err := e.read(ctx, func(tx *gorm.DB, s *stmtSet) error {
		all, err := listNodes(tx, s.get(stmtAll))
		if err != nil {
			return fmt.Errorf("loading tree: %w", err)
		}
		if len(all) == 0 {
			return nil
		}
		rootID, err := e.resolveRoot(tx, s)
		if err != nil {
			return err
		}

		var stack []Node
		for _, n := range all {
			for len(stack) > 0 && stack[len(stack)-1].Right < n.Left {
				stack = stack[:len(stack)-1]
			}
			if n.ID != rootID {
				out = append(out, TreeNode{Node: n, Depth: len(stack)})
			}
			stack = append(stack, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

package nestedset

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Check loads every row and verifies the nested-set invariants: boundaries
// form 1..2N without gaps or duplicates, ranges never partially overlap,
// every width is twice the subtree size, and there is exactly one root.
func (e *Engine) Check(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Check")
	defer span.End()

	return e.read(ctx, func(tx *gorm.DB, s *stmtSet) error {
		all, err := listNodes(tx, s.get(stmtAll))
		if err != nil {
			return fmt.Errorf("loading tree: %w", err)
		}
		return CheckNodes(all)
	})
}

// CheckNodes verifies the invariants over nodes sorted by left boundary.
func CheckNodes(nodes []Node) error {
	total := int64(len(nodes)) * 2
	if total == 0 {
		return nil
	}

	seen := make([]bool, total+1)
	mark := func(id, v int64) error {
		if v < 1 || v > total {
			return fmt.Errorf("%w: node %d boundary %d outside 1..%d", ErrCorruptTree, id, v, total)
		}
		if seen[v] {
			return fmt.Errorf("%w: boundary %d used twice (node %d)", ErrCorruptTree, v, id)
		}
		seen[v] = true
		return nil
	}

	type open struct {
		node  Node
		index int
	}
	var stack []open
	closeTop := func(i int) error {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		desc := int64(i - top.index - 1)
		if top.node.Width() != 2*(desc+1) {
			return fmt.Errorf("%w: node %d width %d with %d descendants", ErrCorruptTree, top.node.ID, top.node.Width(), desc)
		}
		return nil
	}

	roots := 0
	for i, n := range nodes {
		if n.Left >= n.Right {
			return fmt.Errorf("%w: node %d has left %d >= right %d", ErrCorruptTree, n.ID, n.Left, n.Right)
		}
		if i > 0 && nodes[i-1].Left > n.Left {
			return fmt.Errorf("%w: nodes not ordered by left boundary", ErrCorruptTree)
		}
		if err := mark(n.ID, n.Left); err != nil {
			return err
		}
		if err := mark(n.ID, n.Right); err != nil {
			return err
		}
		if n.Left == 1 && n.Right == total {
			roots++
		}

		for len(stack) > 0 && stack[len(stack)-1].node.Right < n.Left {
			if err := closeTop(i); err != nil {
				return err
			}
		}
		if len(stack) > 0 && stack[len(stack)-1].node.Right < n.Right {
			p := stack[len(stack)-1].node
			return fmt.Errorf("%w: node %d (%d,%d) partially overlaps %d (%d,%d)", ErrCorruptTree, n.ID, n.Left, n.Right, p.ID, p.Left, p.Right)
		}
		stack = append(stack, open{node: n, index: i})
	}
	for len(stack) > 0 {
		if err := closeTop(len(nodes)); err != nil {
			return err
		}
	}

	if roots != 1 {
		return fmt.Errorf("%w: %d rows span the full range", ErrCorruptTree, roots)
	}
	return nil
}

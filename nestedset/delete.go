package nestedset

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Delete removes id together with its whole subtree and closes the gap left
// behind. It returns the number of rows removed; rows that were only shifted
// are not counted.
func (e *Engine) Delete(ctx context.Context, id int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "Delete")
	defer span.End()
	span.SetAttributes(attribute.Int64("id", id))

	var removed int64
	var wasRoot bool
	err := e.mutate(ctx, "delete", func(tx *gorm.DB, s *stmtSet) error {
		n, err := getNode(tx, s, id)
		if err != nil {
			return err
		}

		removed, err = exec(tx, s.get(stmtDeleteRange), n.Left, n.Right)
		if err != nil {
			return fmt.Errorf("deleting subtree of %d: %w", id, err)
		}
		if removed != n.Size() {
			return fmt.Errorf("%w: deleted %d rows below %d, boundaries imply %d", ErrCorruptTree, removed, id, n.Size())
		}

		shifted, err := closeGap(tx, s, n.Right, n.Width())
		if err != nil {
			return err
		}
		rowsShifted.WithLabelValues("delete").Add(float64(shifted))

		// the root is the only node starting at the first boundary
		wasRoot = n.Left == 1
		e.logger().Debug("deleted subtree", "id", id, "removed", removed, "shifted", shifted)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if wasRoot {
		e.clearCachedRoot()
	} else if rootID, ok := e.cachedRoot(); ok && rootID == id {
		e.clearCachedRoot()
	}
	return removed, nil
}

// closeGap removes width units of room after boundary r.
func closeGap(tx *gorm.DB, s *stmtSet, r, width int64) (int64, error) {
	l, err := exec(tx, s.get(stmtCloseGapLeft), width, r)
	if err != nil {
		return 0, fmt.Errorf("shifting left boundaries: %w", err)
	}
	rr, err := exec(tx, s.get(stmtCloseGapRight), width, r)
	if err != nil {
		return 0, fmt.Errorf("shifting right boundaries: %w", err)
	}
	return l + rr, nil
}

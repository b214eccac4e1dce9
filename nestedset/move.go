package nestedset

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Move re-attaches the subtree rooted at id below newParentID at pos. The
// subtree keeps its internal order; every boundary in the table is remapped
// by a single statement computed from one snapshot of the boundaries.
func (e *Engine) Move(ctx context.Context, id, newParentID int64, pos Position) error {
	ctx, span := tracer.Start(ctx, "Move")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("id", id),
		attribute.Int64("parent", newParentID),
		attribute.String("position", pos.String()),
	)

	return e.mutate(ctx, "move", func(tx *gorm.DB, s *stmtSet) error {
		n, err := getNode(tx, s, id)
		if err != nil {
			return err
		}
		parent, err := getNode(tx, s, newParentID)
		if err != nil {
			return err
		}
		if parent.Left >= n.Left && parent.Right <= n.Right {
			return fmt.Errorf("%w: %d into %d", ErrCyclicMove, id, newParentID)
		}

		p, err := boundary(tx, s, parent, pos)
		if err != nil {
			return err
		}

		plan, ok := planMove(n, p)
		if !ok {
			e.logger().Debug("node already in place", "id", id, "parent", newParentID, "position", pos.String())
			return nil
		}

		shifted, err := exec(tx, s.get(stmtMove), plan.args()...)
		if err != nil {
			return fmt.Errorf("moving subtree of %d: %w", id, err)
		}
		rowsShifted.WithLabelValues("move").Add(float64(shifted))
		e.logger().Debug("moved subtree", "id", id, "parent", newParentID, "position", pos.String(), "offset", plan.offset, "shifted", shifted)
		return nil
	})
}

// movePlan describes the boundary remapping for one move:
//
//	v in [subLo, subHi]     -> v + offset
//	v in [gapLo, gapHi]     -> v + shift
//
// and every other value is left alone. [lo, hi] spans both ranges.
type movePlan struct {
	subLo, subHi int64
	offset       int64
	gapLo, gapHi int64
	shift        int64
	lo, hi       int64
}

// planMove computes the remapping that moves subtree n so it starts at
// boundary p (expressed in the pre-move numbering). It returns false when p
// is where the subtree already is.
func planMove(n Node, p int64) (movePlan, bool) {
	w := n.Width()
	switch {
	case p == n.Left || p == n.Right+1:
		return movePlan{}, false
	case p > n.Right:
		return movePlan{
			subLo: n.Left, subHi: n.Right, offset: p - n.Right - 1,
			gapLo: n.Right + 1, gapHi: p - 1, shift: -w,
			lo: n.Left, hi: p - 1,
		}, true
	default:
		return movePlan{
			subLo: n.Left, subHi: n.Right, offset: p - n.Left,
			gapLo: p, gapHi: n.Left - 1, shift: w,
			lo: p, hi: n.Right,
		}, true
	}
}

// apply maps a single boundary value, mirroring the SQL CASE expression.
func (m movePlan) apply(v int64) int64 {
	switch {
	case v >= m.subLo && v <= m.subHi:
		return v + m.offset
	case v >= m.gapLo && v <= m.gapHi:
		return v + m.shift
	default:
		return v
	}
}

func (m movePlan) args() []any {
	remap := []any{m.subLo, m.subHi, m.offset, m.gapLo, m.gapHi, m.shift}
	args := make([]any, 0, 16)
	args = append(args, remap...) // left column
	args = append(args, remap...) // right column
	args = append(args, m.lo, m.hi, m.lo, m.hi)
	return args
}

package nestedset

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// boundary computes the value at which a new subtree starts when attached to
// parent at pos. Everything at or beyond it has to make room.
func boundary(tx *gorm.DB, s *stmtSet, parent Node, pos Position) (int64, error) {
	switch pos.Kind {
	case PositionFirstChild:
		return parent.Left + 1, nil
	case PositionLastChild:
		return parent.Right, nil
	case PositionBefore, PositionAfter:
		sib, err := getNode(tx, s, pos.Sibling)
		if err != nil {
			return 0, err
		}
		ok, err := isChildOf(tx, s, parent, sib)
		if err != nil {
			return 0, fmt.Errorf("checking sibling %d: %w", sib.ID, err)
		}
		if !ok {
			return 0, fmt.Errorf("%w: %d is not a child of %d", ErrInvalidPosition, sib.ID, parent.ID)
		}
		if pos.Kind == PositionBefore {
			return sib.Left, nil
		}
		return sib.Right + 1, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidPosition, pos)
	}
}

// Insert attaches a new leaf below parentID and returns its id.
func (e *Engine) Insert(ctx context.Context, parentID int64, pos Position) (int64, error) {
	return e.InsertValues(ctx, parentID, pos, nil)
}

// InsertValues is Insert with values for any additional columns of the row.
func (e *Engine) InsertValues(ctx context.Context, parentID int64, pos Position, values map[string]any) (int64, error) {
	ctx, span := tracer.Start(ctx, "Insert")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("parent", parentID),
		attribute.String("position", pos.String()),
	)

	var newID int64
	err := e.mutate(ctx, "insert", func(tx *gorm.DB, s *stmtSet) error {
		q, extra, err := s.insertValues(values)
		if err != nil {
			return err
		}

		parent, err := getNode(tx, s, parentID)
		if err != nil {
			return err
		}
		p, err := boundary(tx, s, parent, pos)
		if err != nil {
			return err
		}

		shifted, err := openGap(tx, s, p, 2)
		if err != nil {
			return err
		}
		rowsShifted.WithLabelValues("insert").Add(float64(shifted))

		newID, err = insertRow(tx, q, p, extra)
		if err != nil {
			return err
		}
		e.logger().Debug("inserted node", "id", newID, "parent", parentID, "position", pos.String(), "left", p, "shifted", shifted)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newID, nil
}

// InsertRoot creates the first node of an empty table.
func (e *Engine) InsertRoot(ctx context.Context, values map[string]any) (int64, error) {
	ctx, span := tracer.Start(ctx, "InsertRoot")
	defer span.End()

	var newID int64
	err := e.mutate(ctx, "insert_root", func(tx *gorm.DB, s *stmtSet) error {
		q, extra, err := s.insertValues(values)
		if err != nil {
			return err
		}
		n, err := count(tx, s.get(stmtCount))
		if err != nil {
			return fmt.Errorf("counting rows: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: table has %d rows", ErrRootExists, n)
		}
		newID, err = insertRow(tx, q, 1, extra)
		return err
	})
	if err != nil {
		return 0, err
	}

	e.setCachedRoot(newID)
	e.logger().Info("created root node", "id", newID)
	return newID, nil
}

// openGap makes width units of room starting at p, returning the number of
// row updates it took.
func openGap(tx *gorm.DB, s *stmtSet, p, width int64) (int64, error) {
	r, err := exec(tx, s.get(stmtOpenGapRight), width, p)
	if err != nil {
		return 0, fmt.Errorf("shifting right boundaries: %w", err)
	}
	l, err := exec(tx, s.get(stmtOpenGapLeft), width, p)
	if err != nil {
		return 0, fmt.Errorf("shifting left boundaries: %w", err)
	}
	return r + l, nil
}

func insertRow(tx *gorm.DB, q string, left int64, extra []any) (int64, error) {
	args := append([]any{left, left + 1}, extra...)
	var id int64
	if err := tx.Raw(q, args...).Row().Scan(&id); err != nil {
		return 0, fmt.Errorf("inserting node: %w", err)
	}
	return id, nil
}

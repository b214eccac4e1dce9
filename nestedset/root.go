package nestedset

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ResolveRoot returns the id of the row spanning the global minimum left and
// maximum right. The result is cached until the engine is reconfigured or a
// mutation changes the root.
func (e *Engine) ResolveRoot(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "ResolveRoot")
	defer span.End()

	if id, ok := e.cachedRoot(); ok {
		return id, nil
	}

	var id int64
	err := e.read(ctx, func(tx *gorm.DB, s *stmtSet) error {
		var err error
		id, err = e.resolveRoot(tx, s)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (e *Engine) resolveRoot(tx *gorm.DB, s *stmtSet) (int64, error) {
	if id, ok := e.cachedRoot(); ok {
		return id, nil
	}

	root, err := findRoot(tx, s)
	if err != nil {
		return 0, err
	}
	rootResolutions.Inc()
	e.setCachedRoot(root.ID)
	return root.ID, nil
}

// findRoot runs the root-detection query without consulting any cache.
func findRoot(tx *gorm.DB, s *stmtSet) (Node, error) {
	var rows []Node
	if err := tx.Raw(s.get(stmtRoot)).Scan(&rows).Error; err != nil {
		return Node{}, fmt.Errorf("querying root: %w", err)
	}
	switch len(rows) {
	case 0:
		return Node{}, fmt.Errorf("%w: no row spans the full boundary range", ErrRootNotFound)
	case 1:
		return rows[0], nil
	default:
		return Node{}, fmt.Errorf("%w: multiple rows span the full boundary range", ErrRootNotFound)
	}
}

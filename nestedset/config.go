package nestedset

import (
	"fmt"
	"strings"
)

type Config struct {
	// name of the relation holding the tree rows
	Table string

	// optional alias used for the table in generated queries
	TableAlias string

	IDColumn    string
	LeftColumn  string
	RightColumn string

	// explicit root node id. zero means the root is detected from the boundaries
	RootNodeID int64

	// maximum number of built statements kept per engine
	StatementCacheSize int

	// when non-zero (and running against postgres), every mutation transaction
	// takes pg_advisory_xact_lock with this key before reading any boundaries
	AdvisoryLockKey int64
}

func DefaultConfig() *Config {
	return &Config{
		Table:              "nodes",
		IDColumn:           "id",
		LeftColumn:         "lft",
		RightColumn:        "rgt",
		StatementCacheSize: 64,
	}
}

// ValidateColumn rejects empty (or all-whitespace) column names.
func ValidateColumn(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidColumn, name)
	}
	return nil
}

// Validate checks every configured name before any statement is built from it.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Table) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTable, c.Table)
	}
	if c.TableAlias != "" && strings.TrimSpace(c.TableAlias) == "" {
		return fmt.Errorf("%w: alias %q", ErrInvalidTable, c.TableAlias)
	}
	for _, col := range []string{c.IDColumn, c.LeftColumn, c.RightColumn} {
		if err := ValidateColumn(col); err != nil {
			return err
		}
	}
	if c.LeftColumn == c.RightColumn || c.IDColumn == c.LeftColumn || c.IDColumn == c.RightColumn {
		return fmt.Errorf("%w: id, left and right columns must be distinct", ErrInvalidColumn)
	}
	if c.RootNodeID < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRootID, c.RootNodeID)
	}
	if c.StatementCacheSize < 0 {
		return fmt.Errorf("statement cache size must not be negative: %d", c.StatementCacheSize)
	}
	return nil
}

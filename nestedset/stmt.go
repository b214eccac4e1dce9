package nestedset

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type stmtKind int

const (
	stmtNodeByID stmtKind = iota
	stmtAll
	stmtCount
	stmtRoot
	stmtDescendants
	stmtAncestors
	stmtChildren
	stmtParent
	stmtDepth
	stmtBetween
	stmtOpenGapLeft
	stmtOpenGapRight
	stmtCloseGapLeft
	stmtCloseGapRight
	stmtDeleteRange
	stmtMove
	stmtInsert
)

// stmtKey includes every configured name, so a template built for one
// configuration can never be handed out for another.
type stmtKey struct {
	kind    stmtKind
	table   string
	alias   string
	idCol   string
	leftCol string
	rgtCol  string
}

type stmtCache struct {
	cache *lru.Cache[stmtKey, string]
}

func newStmtCache(size int) (*stmtCache, error) {
	if size <= 0 {
		size = DefaultConfig().StatementCacheSize
	}
	c, err := lru.New[stmtKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating statement cache: %w", err)
	}
	return &stmtCache{cache: c}, nil
}

func (sc *stmtCache) Purge() {
	sc.cache.Purge()
}

func (sc *stmtCache) Len() int {
	return sc.cache.Len()
}

// stmtSet builds statements for one snapshot of the configuration.
type stmtSet struct {
	cache *stmtCache
	cfg   Config
	db    *gorm.DB
}

func (s *stmtSet) key(kind stmtKind) stmtKey {
	return stmtKey{
		kind:    kind,
		table:   s.cfg.Table,
		alias:   s.cfg.TableAlias,
		idCol:   s.cfg.IDColumn,
		leftCol: s.cfg.LeftColumn,
		rgtCol:  s.cfg.RightColumn,
	}
}

func (s *stmtSet) get(kind stmtKind) string {
	k := s.key(kind)
	if q, ok := s.cache.cache.Get(k); ok {
		return q
	}
	q := s.build(kind)
	s.cache.cache.Add(k, q)
	return q
}

func (s *stmtSet) quote(v any) string {
	return s.db.Statement.Quote(v)
}

func (s *stmtSet) alias() string {
	if s.cfg.TableAlias != "" {
		return s.cfg.TableAlias
	}
	return "n"
}

// qualified column of the primary alias
func (s *stmtSet) col(name string) string {
	return s.quote(clause.Column{Table: s.alias(), Name: name})
}

func (s *stmtSet) colOf(table, name string) string {
	return s.quote(clause.Column{Table: table, Name: name})
}

func (s *stmtSet) from() string {
	return s.quote(clause.Table{Name: s.cfg.Table, Alias: s.alias()})
}

func (s *stmtSet) table() string {
	return s.quote(clause.Table{Name: s.cfg.Table})
}

func (s *stmtSet) selectNode() string {
	return fmt.Sprintf("SELECT %s AS node_id, %s AS node_left, %s AS node_right FROM %s",
		s.col(s.cfg.IDColumn), s.col(s.cfg.LeftColumn), s.col(s.cfg.RightColumn), s.from())
}

func (s *stmtSet) build(kind stmtKind) string {
	id, l, r := s.cfg.IDColumn, s.cfg.LeftColumn, s.cfg.RightColumn
	nl, nr := s.col(l), s.col(r)
	ql, qr := s.quote(l), s.quote(r)

	switch kind {
	case stmtNodeByID:
		return fmt.Sprintf("%s WHERE %s = ?", s.selectNode(), s.col(id))
	case stmtAll:
		return fmt.Sprintf("%s ORDER BY %s ASC", s.selectNode(), nl)
	case stmtCount:
		return fmt.Sprintf("SELECT COUNT(*) FROM %s", s.from())
	case stmtRoot:
		return fmt.Sprintf("%s JOIN (SELECT MIN(%s) AS min_left, MAX(%s) AS max_right FROM %s) %s ON %s = %s AND %s = %s LIMIT 2",
			s.selectNode(), ql, qr, s.table(), s.quote("b"),
			nl, s.colOf("b", "min_left"), nr, s.colOf("b", "max_right"))
	case stmtDescendants:
		return fmt.Sprintf("%s WHERE %s > ? AND %s < ? ORDER BY %s ASC", s.selectNode(), nl, nr, nl)
	case stmtAncestors:
		return fmt.Sprintf("%s WHERE %s < ? AND %s > ? ORDER BY %s ASC", s.selectNode(), nl, nr, nl)
	case stmtChildren:
		m := "m"
		if s.alias() == m {
			m = "mm"
		}
		ml, mr := s.colOf(m, l), s.colOf(m, r)
		return fmt.Sprintf("%s WHERE %s > ? AND %s < ? AND NOT EXISTS (SELECT 1 FROM %s WHERE %s > ? AND %s < ? AND %s < %s AND %s > %s) ORDER BY %s ASC",
			s.selectNode(), nl, nr,
			s.quote(clause.Table{Name: s.cfg.Table, Alias: m}), ml, mr, ml, nl, mr, nr,
			nl)
	case stmtParent:
		return fmt.Sprintf("%s WHERE %s < ? AND %s > ? ORDER BY %s DESC LIMIT 1", s.selectNode(), nl, nr, nl)
	case stmtDepth:
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s < ? AND %s > ?", s.from(), nl, nr)
	case stmtBetween:
		// rows strictly inside the first range that strictly contain the second
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s > ? AND %s < ? AND %s < ? AND %s > ?", s.from(), nl, nr, nl, nr)
	case stmtOpenGapLeft:
		return fmt.Sprintf("UPDATE %s SET %s = %s + ? WHERE %s >= ?", s.table(), ql, ql, ql)
	case stmtOpenGapRight:
		return fmt.Sprintf("UPDATE %s SET %s = %s + ? WHERE %s >= ?", s.table(), qr, qr, qr)
	case stmtCloseGapLeft:
		return fmt.Sprintf("UPDATE %s SET %s = %s - ? WHERE %s > ?", s.table(), ql, ql, ql)
	case stmtCloseGapRight:
		return fmt.Sprintf("UPDATE %s SET %s = %s - ? WHERE %s > ?", s.table(), qr, qr, qr)
	case stmtDeleteRange:
		return fmt.Sprintf("DELETE FROM %s WHERE %s >= ? AND %s <= ?", s.table(), ql, qr)
	case stmtMove:
		remap := func(c string) string {
			return fmt.Sprintf("CASE WHEN %s BETWEEN ? AND ? THEN %s + ? WHEN %s BETWEEN ? AND ? THEN %s + ? ELSE %s END", c, c, c, c, c)
		}
		return fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s WHERE (%s BETWEEN ? AND ?) OR (%s BETWEEN ? AND ?)",
			s.table(), ql, remap(ql), qr, remap(qr), ql, qr)
	case stmtInsert:
		return s.insert(nil)
	default:
		panic(fmt.Sprintf("unknown statement kind: %d", kind))
	}
}

// insert builds the row insert, with any extra columns in a stable order.
// Extra columns vary per call, so only the plain form goes through the cache.
func (s *stmtSet) insert(extra []string) string {
	cols := []string{s.quote(s.cfg.LeftColumn), s.quote(s.cfg.RightColumn)}
	for _, c := range extra {
		cols = append(cols, s.quote(c))
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		s.table(), strings.Join(cols, ", "), marks, s.quote(s.cfg.IDColumn))
}

// insertValues validates the extra column values and returns the statement
// plus the bind args following left and right.
func (s *stmtSet) insertValues(values map[string]any) (string, []any, error) {
	if len(values) == 0 {
		return s.get(stmtInsert), nil, nil
	}
	extra := make([]string, 0, len(values))
	for c := range values {
		if err := ValidateColumn(c); err != nil {
			return "", nil, err
		}
		switch c {
		case s.cfg.IDColumn, s.cfg.LeftColumn, s.cfg.RightColumn:
			return "", nil, fmt.Errorf("%w: %q is managed by the tree", ErrInvalidColumn, c)
		}
		extra = append(extra, c)
	}
	sort.Strings(extra)
	args := make([]any, 0, len(extra))
	for _, c := range extra {
		args = append(args, values[c])
	}
	return s.insert(extra), args, nil
}

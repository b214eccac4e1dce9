package nestedset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("nestedset")

// Engine maintains a nested-set tree stored in one table. It owns the
// statement cache and the cached root id; both are cleared whenever the
// configuration is replaced.
//
// Mutations within one process are serialized. Separate processes mutating
// the same table must either set Config.AdvisoryLockKey (postgres) or
// serialize externally: two movers computing shifts from stale snapshots can
// both commit and corrupt the tree.
type Engine struct {
	db     *gorm.DB
	Logger *slog.Logger

	cfgLk  sync.RWMutex
	cfg    Config
	stmts  *stmtCache
	rootID int64
	rootOK bool

	// mutateLk serializes Insert/Delete/Move
	mutateLk sync.Mutex
}

func NewEngine(db *gorm.DB, config *Config) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("nestedset engine requires a database handle")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sc, err := newStmtCache(config.StatementCacheSize)
	if err != nil {
		return nil, err
	}

	return &Engine{
		db:     db,
		Logger: slog.Default().With("system", "nestedset", "table", config.Table),
		cfg:    *config,
		stmts:  sc,
	}, nil
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	e.cfgLk.RLock()
	defer e.cfgLk.RUnlock()
	return e.cfg
}

// Reconfigure validates and installs a new configuration. Built statements
// and the cached root id are dropped before the next operation runs.
func (e *Engine) Reconfigure(config *Config) error {
	if config == nil {
		return fmt.Errorf("nil config")
	}
	if err := config.Validate(); err != nil {
		return err
	}

	e.cfgLk.Lock()
	defer e.cfgLk.Unlock()

	if config.StatementCacheSize != e.cfg.StatementCacheSize {
		sc, err := newStmtCache(config.StatementCacheSize)
		if err != nil {
			return err
		}
		e.stmts = sc
	} else {
		e.stmts.Purge()
	}
	e.cfg = *config
	e.rootID, e.rootOK = 0, false
	e.Logger = slog.Default().With("system", "nestedset", "table", config.Table)
	e.Logger.Info("nestedset engine reconfigured", "idColumn", config.IDColumn, "leftColumn", config.LeftColumn, "rightColumn", config.RightColumn)
	return nil
}

func (e *Engine) statements() *stmtSet {
	e.cfgLk.RLock()
	defer e.cfgLk.RUnlock()
	return &stmtSet{
		cache: e.stmts,
		cfg:   e.cfg,
		db:    e.db,
	}
}

func (e *Engine) logger() *slog.Logger {
	e.cfgLk.RLock()
	defer e.cfgLk.RUnlock()
	return e.Logger
}

func (e *Engine) cachedRoot() (int64, bool) {
	e.cfgLk.RLock()
	defer e.cfgLk.RUnlock()
	if e.cfg.RootNodeID != 0 {
		return e.cfg.RootNodeID, true
	}
	return e.rootID, e.rootOK
}

func (e *Engine) setCachedRoot(id int64) {
	e.cfgLk.Lock()
	defer e.cfgLk.Unlock()
	e.rootID, e.rootOK = id, true
}

func (e *Engine) clearCachedRoot() {
	e.cfgLk.Lock()
	defer e.cfgLk.Unlock()
	e.rootID, e.rootOK = 0, false
}

// read runs fn in one transaction so multi-statement reads observe a single
// snapshot rather than a half-shifted tree.
func (e *Engine) read(ctx context.Context, fn func(tx *gorm.DB, s *stmtSet) error) error {
	s := e.statements()
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, s)
	})
}

// mutate runs fn inside one transaction. Any error rolls back every
// statement fn issued.
func (e *Engine) mutate(ctx context.Context, op string, fn func(tx *gorm.DB, s *stmtSet) error) error {
	e.mutateLk.Lock()
	defer e.mutateLk.Unlock()

	start := time.Now()
	s := e.statements()
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if key := s.cfg.AdvisoryLockKey; key != 0 && tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", key).Error; err != nil {
				return fmt.Errorf("acquiring advisory lock: %w", err)
			}
		}
		return fn(tx, s)
	})
	mutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		mutationErrors.WithLabelValues(op).Inc()
		return err
	}
	mutationsTotal.WithLabelValues(op).Inc()
	return nil
}

// exec runs a statement and returns the affected row count.
func exec(tx *gorm.DB, q string, args ...any) (int64, error) {
	res := tx.Exec(q, args...)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

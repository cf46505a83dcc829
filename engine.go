package rbac

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maestro-platform/rbac/logger"
)

// DefaultCacheTTL bounds how long an effective-role resolution stays
// cached when no explicit TTL is configured.
const DefaultCacheTTL = 5 * time.Minute

const defaultAuditQueueSize = 1024

// Engine evaluates access checks against roles, role inheritance, and
// scoped, expiring role assignments. State lives in memory; the configured
// stores persist custom roles and assignments across restarts. All methods
// are safe for concurrent use.
type Engine struct {
	mu sync.RWMutex

	roles       map[string]*Role
	assignments map[string]*RoleAssignment

	roleStore       RoleStore
	assignmentStore AssignmentStore
	storageDir      string

	cacheTTL         time.Duration
	resolution       *resolutionCache
	decisions        atomic.Pointer[decisionCache]
	decisionCounters int64
	decisionMaxCost  int64

	auditHook      AuditHook
	auditStore     AuditStore
	auditQueueSize int
	auditCh        chan *AuditRecord
	auditStop      chan struct{}
	auditWG        sync.WaitGroup
	auditDrops     atomic.Uint64

	pendingConfig *Config

	logger      logger.Logger
	traceIDFunc logger.TraceIDFunc

	closeOnce sync.Once
}

// Option configures an Engine during New.
type Option func(*Engine) error

// WithStorageDir persists custom roles and assignments as JSON files under
// dir ("roles/{id}.json" and "assignments/{id}.json"). Explicitly
// installed stores take precedence.
func WithStorageDir(dir string) Option {
	return func(e *Engine) error {
		e.storageDir = dir
		return nil
	}
}

// WithRoleStore installs a custom role store backend.
func WithRoleStore(s RoleStore) Option {
	return func(e *Engine) error {
		e.roleStore = s
		return nil
	}
}

// WithAssignmentStore installs a custom assignment store backend.
func WithAssignmentStore(s AssignmentStore) Option {
	return func(e *Engine) error {
		e.assignmentStore = s
		return nil
	}
}

// WithAuditStore installs an audit sink. A background worker drains
// decisions into it; see WithAuditQueueSize for the buffer bound.
func WithAuditStore(s AuditStore) Option {
	return func(e *Engine) error {
		e.auditStore = s
		return nil
	}
}

// WithAuditQueueSize bounds the audit worker's queue. When the queue is
// full further records are dropped and counted, never blocking checks.
func WithAuditQueueSize(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("rbac: audit queue size must be positive, got %d", n)
		}
		e.auditQueueSize = n
		return nil
	}
}

// WithAuditHook registers a callback invoked synchronously with every
// check result. A panicking hook is recovered and logged; it cannot change
// the decision.
func WithAuditHook(h AuditHook) Option {
	return func(e *Engine) error {
		e.auditHook = h
		return nil
	}
}

// WithCacheTTL sets how long effective-role resolutions stay cached.
// Non-positive disables resolution caching.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Engine) error {
		e.cacheTTL = d
		return nil
	}
}

// WithDecisionCache enables the ristretto decision cache at construction
// time with the given sketch counter and cost budgets.
func WithDecisionCache(numCounters, maxCost int64) Option {
	return func(e *Engine) error {
		if numCounters <= 0 || maxCost <= 0 {
			return fmt.Errorf("rbac: decision cache sizes must be positive")
		}
		e.decisionCounters = numCounters
		e.decisionMaxCost = maxCost
		return nil
	}
}

// WithConfig applies a declarative configuration (settings, roles,
// assignments) once the engine has loaded persisted state.
func WithConfig(c *Config) Option {
	return func(e *Engine) error {
		e.pendingConfig = c
		return nil
	}
}

// WithConfigFile loads the configuration at path (.yaml, .json, or .bin)
// and applies it like WithConfig.
func WithConfigFile(path string) Option {
	return func(e *Engine) error {
		c, err := LoadConfig(path)
		if err != nil {
			return err
		}
		e.pendingConfig = c
		return nil
	}
}

// New builds an engine: applies options, seeds the system roles, loads
// persisted custom roles and assignments, applies any pending declarative
// config, and starts the audit worker when an audit store is installed.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		roles:          make(map[string]*Role),
		assignments:    make(map[string]*RoleAssignment),
		cacheTTL:       DefaultCacheTTL,
		auditQueueSize: defaultAuditQueueSize,
		logger:         logger.NewPhusluLogger(),
		traceIDFunc:    uuid.NewString,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.pendingConfig != nil && e.pendingConfig.Settings.CacheTTLSeconds != 0 {
		e.cacheTTL = time.Duration(e.pendingConfig.Settings.CacheTTLSeconds) * time.Second
	}
	if e.storageDir != "" {
		if e.roleStore == nil {
			rs, err := NewFileRoleStore(filepath.Join(e.storageDir, "roles"), e.logger)
			if err != nil {
				return nil, err
			}
			e.roleStore = rs
		}
		if e.assignmentStore == nil {
			as, err := NewFileAssignmentStore(filepath.Join(e.storageDir, "assignments"), e.logger)
			if err != nil {
				return nil, err
			}
			e.assignmentStore = as
		}
	}
	e.resolution = newResolutionCache(e.cacheTTL)
	if e.decisionCounters > 0 {
		if err := e.ConfigureDecisionCache(e.decisionCounters, e.decisionMaxCost); err != nil {
			return nil, err
		}
	}
	e.seedSystemRoles()
	if err := e.loadState(context.Background()); err != nil {
		return nil, err
	}
	if e.pendingConfig != nil {
		if err := e.ApplyConfig(context.Background(), e.pendingConfig); err != nil {
			return nil, err
		}
		e.pendingConfig = nil
	}
	if e.auditStore != nil {
		e.startAuditWorker()
	}
	e.logger.Info("access control engine ready",
		"roles", len(e.roles),
		"assignments", len(e.assignments),
		"cache_ttl", e.cacheTTL.String())
	return e, nil
}

// loadState pulls persisted roles and assignments into memory. Store-level
// failures abort construction; individual bad records were already skipped
// and logged by the store.
func (e *Engine) loadState(ctx context.Context) error {
	if e.roleStore != nil {
		roles, err := e.roleStore.LoadRoles(ctx)
		if err != nil {
			return fmt.Errorf("load roles: %w", err)
		}
		for _, r := range roles {
			if existing, ok := e.roles[r.ID]; ok && existing.IsSystem {
				e.logger.Error("stored role shadows a system role, ignoring", "role_id", r.ID)
				continue
			}
			r.IsSystem = false
			e.roles[r.ID] = r
		}
	}
	if e.assignmentStore != nil {
		assignments, err := e.assignmentStore.LoadAssignments(ctx)
		if err != nil {
			return fmt.Errorf("load assignments: %w", err)
		}
		for _, a := range assignments {
			e.assignments[a.ID] = a
		}
	}
	return nil
}

// Close stops the audit worker after flushing queued records and releases
// the decision cache. The engine must not be used after Close.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.stopAuditWorker()
		if dc := e.decisions.Load(); dc != nil {
			dc.close()
		}
	})
	return nil
}

// validateID rejects identifiers that are empty or unsafe as storage file
// names.
func validateID(kind, id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("%w: %s %q", ErrInvalidID, kind, id)
	}
	return nil
}

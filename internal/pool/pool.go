// ABOUTME: Agent pool service wiring registry, reconcile engine, snapshot and collaborators
// ABOUTME: Reload is all-or-nothing; transitions are audited and broadcast

package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/agentpool/internal/agent"
	"github.com/2389/agentpool/internal/attempts"
	"github.com/2389/agentpool/internal/definition"
	"github.com/2389/agentpool/internal/devstate"
	"github.com/2389/agentpool/internal/metrics"
	"github.com/2389/agentpool/internal/store"
)

// Pool errors
var (
	ErrInvalidPassword = errors.New("invalid agent password")
	ErrNotLoaded       = errors.New("agents not loaded")
)

// Reload triggers recorded with each reload.
const (
	TriggerStartup = "startup"
	TriggerWatch   = "watch"
	TriggerAPI     = "api"
)

const auditTimeout = 5 * time.Second

// Options configures a Pool.
type Options struct {
	AgentsFile string
	// Store receives the audit trail. Nil disables persistence.
	Store store.Store
	// Metrics enables Prometheus instrumentation.
	Metrics bool

	AttemptWindow   time.Duration
	AttemptCapacity int

	Logger *slog.Logger
}

// Pool is the agent pool service.
type Pool struct {
	agentsFile string

	registry *agent.Registry
	engine   *agent.Engine
	snapshot atomic.Pointer[definition.Snapshot]
	reloadMu sync.Mutex

	attempts *attempts.Counter
	events   *devstate.Broadcaster
	store    store.Store
	metrics  *metrics.Collector

	logger *slog.Logger
}

// New creates a Pool with an empty registry. Call Reload to load agents.
func New(opts Options) (*Pool, error) {
	if opts.AgentsFile == "" {
		return nil, fmt.Errorf("pool requires an agents file")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AttemptWindow <= 0 {
		opts.AttemptWindow = 5 * time.Minute
	}
	if opts.AttemptCapacity <= 0 {
		opts.AttemptCapacity = 10000
	}

	logger := opts.Logger.With("component", "pool")
	registry := agent.NewRegistry(opts.Logger.With("component", "registry"))

	p := &Pool{
		agentsFile: opts.AgentsFile,
		registry:   registry,
		engine:     agent.NewEngine(registry, opts.Logger.With("component", "reconcile")),
		attempts:   attempts.New(opts.AttemptWindow, opts.AttemptCapacity),
		events:     devstate.NewBroadcaster(opts.Logger),
		store:      opts.Store,
		logger:     logger,
	}
	if opts.Metrics {
		p.metrics = metrics.New(registry)
	}

	registry.SetNotifier(p)
	registry.SetCallBridge(p)
	return p, nil
}

// Reload loads the agents file and merges it into the registry. On any load
// error the previous snapshot stays in effect.
func (p *Pool) Reload(ctx context.Context, trigger string) (agent.ReconcileResult, error) {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	start := time.Now()
	snap, err := definition.Load(p.agentsFile)
	if err != nil {
		p.logger.Error("agents file rejected, keeping previous configuration",
			"path", p.agentsFile,
			"trigger", trigger,
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.ObserveReloadFailure()
		}
		p.recordReload(ctx, &store.ReloadRecord{
			Source:   p.agentsFile,
			Trigger:  trigger,
			Error:    err.Error(),
			Duration: time.Since(start),
		})
		return agent.ReconcileResult{}, fmt.Errorf("loading agents: %w", err)
	}

	result := p.engine.Reconcile(snap)
	p.snapshot.Store(snap)

	if p.metrics != nil {
		p.metrics.ObserveReload(result)
	}
	p.recordReload(ctx, &store.ReloadRecord{
		Source:      snap.Source(),
		Trigger:     trigger,
		Success:     true,
		Definitions: snap.Len(),
		Added:       result.Added,
		Kept:        result.Kept,
		Resurrected: result.Resurrected,
		Removed:     result.Removed,
		Deferred:    result.Deferred,
		Skipped:     result.Skipped,
		Duration:    time.Since(start),
	})
	return result, nil
}

// ReloadFunc adapts Reload for the file watcher.
func (p *Pool) ReloadFunc(trigger string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := p.Reload(ctx, trigger)
		return err
	}
}

func (p *Pool) recordReload(ctx context.Context, r *store.ReloadRecord) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := p.store.RecordReload(ctx, r); err != nil {
		p.logger.Warn("failed to record reload", "error", err)
	}
}

// Snapshot returns the snapshot currently in effect, or nil before the first
// successful reload.
func (p *Pool) Snapshot() *definition.Snapshot {
	return p.snapshot.Load()
}

// Registry exposes the underlying registry.
func (p *Pool) Registry() *agent.Registry {
	return p.registry
}

// Metrics returns the collector, or nil when metrics are disabled.
func (p *Pool) Metrics() *metrics.Collector {
	return p.metrics
}

// Ready reports whether agents are loaded and the store is reachable.
func (p *Pool) Ready(ctx context.Context) error {
	if p.snapshot.Load() == nil {
		return ErrNotLoaded
	}
	if p.store != nil {
		if err := p.store.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	return nil
}

// Close stops background work and ends every event subscription. The store
// is owned by the caller and is not closed.
func (p *Pool) Close() {
	p.attempts.Close()
	p.events.Close()
}

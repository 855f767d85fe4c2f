package coord

import (
	"context"

	"github.com/taskmesh/coordkit/audit"
	"github.com/taskmesh/coordkit/config"
	"github.com/taskmesh/coordkit/depgraph"
	"github.com/taskmesh/coordkit/errors"
	"github.com/taskmesh/coordkit/events"
	"github.com/taskmesh/coordkit/logging"
	"github.com/taskmesh/coordkit/progress"
	"github.com/taskmesh/coordkit/resources"
	"github.com/taskmesh/coordkit/sharedctx"
	"github.com/taskmesh/coordkit/shutdown"
	"github.com/taskmesh/coordkit/syncpoint"
	"github.com/taskmesh/coordkit/telemetry"
)

// Engine wires the coordination components together: the dependency
// graph, resource allocator, synchronization engine, and shared context
// store share one status source and one event notifier.
type Engine struct {
	cfg      config.Config
	log      *logging.Logger
	source   progress.StatusSource
	memory   *progress.MemorySource
	notifier *events.Notifier
	deps     *depgraph.Manager
	alloc    *resources.Allocator
	sync     *syncpoint.Engine
	contexts *sharedctx.Store
	journal  *audit.Journal
	nats     *events.NATSPublisher
	exporter telemetry.Exporter
	shutdown *shutdown.Coordinator
}

// Options override engine collaborators.
type Options struct {
	// Source supplies task status. When nil the engine owns an
	// in-memory source fed through SetTaskStatus.
	Source progress.StatusSource

	// Membership answers team membership queries for context access.
	// Nil denies all team access.
	Membership sharedctx.TeamMembership

	// Logger for real-time output. Nil builds one from the configured
	// log level.
	Logger *logging.Logger
}

// New builds an engine from configuration. Close releases timers and
// external connections.
func New(cfg config.Config, opts Options) (*Engine, error) {
	log := opts.Logger
	if log == nil {
		log = logging.New()
		if cfg.LogLevel != "" {
			log.SetLevel(logging.Level(cfg.LogLevel))
		}
	}

	e := &Engine{
		cfg:      cfg,
		log:      log.WithComponent("coord"),
		notifier: events.NewNotifier(log),
		shutdown: shutdown.NewCoordinator(shutdown.DefaultConfig()),
	}

	e.source = opts.Source
	if e.source == nil {
		e.memory = progress.NewMemorySource()
		e.source = e.memory
	}

	e.deps = depgraph.NewManager(e.source, e.notifier, log)
	e.alloc = resources.NewAllocator(e.notifier, log)
	e.sync = syncpoint.NewEngine(syncpoint.Config{
		Source:          e.source,
		Notifier:        e.notifier,
		Logger:          log,
		DefaultInterval: cfg.Sync.DefaultInterval.Std(),
	})
	e.shutdown.RegisterFuncWithPhase("syncpoint", func(context.Context) error {
		return e.sync.Close()
	}, 10)

	if cfg.Context.AuditIndex {
		journal, err := audit.NewJournal()
		if err != nil {
			return nil, errors.Wrap(err, "create audit journal")
		}
		e.journal = journal
		e.shutdown.RegisterFuncWithPhase("audit", func(context.Context) error {
			return journal.Close()
		}, 30)
	}

	storeCfg := sharedctx.StoreConfig{
		Notifier:       e.notifier,
		Logger:         log,
		Membership:     opts.Membership,
		Teams:          cfg.Teams,
		ConflictWindow: cfg.Context.ConflictWindow.Std(),
	}
	if e.journal != nil {
		storeCfg.Recorder = e.journal
	}
	e.contexts = sharedctx.NewStore(storeCfg)

	if cfg.NATS.URL != "" {
		natsCfg := events.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		if cfg.NATS.Name != "" {
			natsCfg.Name = cfg.NATS.Name
		}
		natsCfg.Token = cfg.NATS.Token

		publisher, err := events.NewNATSPublisher(e.notifier, natsCfg, log)
		if err != nil {
			e.Close(context.Background())
			return nil, errors.Wrap(err, "connect event bridge")
		}
		e.nats = publisher
		e.shutdown.RegisterFuncWithPhase("nats", func(context.Context) error {
			return publisher.Close()
		}, 20)
	}

	if cfg.Telemetry.Protocol != "" {
		exporter, err := telemetry.NewExporter(cfg.Telemetry.Protocol, cfg.Telemetry.Endpoint)
		if err != nil {
			e.Close(context.Background())
			return nil, errors.InvalidInput("telemetry config", errors.WithCause(err))
		}
		e.exporter = exporter
		sub := telemetry.Attach(e.notifier, exporter)
		e.shutdown.RegisterFuncWithPhase("telemetry", func(context.Context) error {
			sub.Unsubscribe()
			return exporter.Close()
		}, 20)
	}

	if e.memory != nil {
		e.memory.OnChange(e.ObserveTaskStatus)
	}
	return e, nil
}

// Dependencies returns the dependency graph manager.
func (e *Engine) Dependencies() *depgraph.Manager { return e.deps }

// Resources returns the resource allocator.
func (e *Engine) Resources() *resources.Allocator { return e.alloc }

// SyncPoints returns the synchronization barrier engine.
func (e *Engine) SyncPoints() *syncpoint.Engine { return e.sync }

// Contexts returns the shared context store.
func (e *Engine) Contexts() *sharedctx.Store { return e.contexts }

// Notifier returns the event notifier shared by all components.
func (e *Engine) Notifier() *events.Notifier { return e.notifier }

// Audit returns the change journal, or nil when audit indexing is
// disabled.
func (e *Engine) Audit() *audit.Journal { return e.journal }

// SetTaskStatus records a status observation into the engine-owned
// source and fans it out. Returns an error when an external source was
// supplied: observations then belong at the source, with
// ObserveTaskStatus signalling them here.
func (e *Engine) SetTaskStatus(taskID string, status progress.TaskStatus) error {
	if e.memory == nil {
		return errors.InvalidState("engine uses an external status source")
	}
	e.memory.Set(taskID, status)
	return nil
}

// ObserveTaskStatus re-evaluates everything touching a task: dependency
// edges re-derive their status and synchronization points re-check.
func (e *Engine) ObserveTaskStatus(taskID string) {
	_, span := telemetry.GetTracer().StartSpan(context.Background(), "coord.observe")
	defer span.End()

	e.deps.Observe(taskID)
	e.sync.Observe(taskID)
}

// Close shuts components down in phases: timers stop before the
// external bridges drain.
func (e *Engine) Close(ctx context.Context) error {
	return e.shutdown.Shutdown(ctx)
}

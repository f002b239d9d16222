// Package engine is the public facade over the RipTide extraction core:
// the Instance Pool, Gate, Strategy Composer, and Pipeline wired against
// a compiled WASM extraction component and the caller's collaborators.
//
// Grounded on the teacher's own engine.go facade (construction sequence,
// Close teardown, Snapshot-style accessor pattern).
package engine

import (
	"context"
	"fmt"

	"github.com/foofork/riptide/engine/internal/gate"
	"github.com/foofork/riptide/engine/internal/pipeline"
	"github.com/foofork/riptide/engine/internal/pool"
	"github.com/foofork/riptide/engine/internal/sandbox"
	"github.com/foofork/riptide/engine/internal/sandboxcfg"
	"github.com/foofork/riptide/engine/internal/strategy"
	"github.com/foofork/riptide/engine/internal/telemetry/events"
	"github.com/foofork/riptide/engine/internal/telemetry/logging"
	"github.com/foofork/riptide/engine/internal/telemetry/metrics"
	"github.com/foofork/riptide/engine/internal/telemetry/tracing"
	"github.com/foofork/riptide/engine/models"
)

// Deps bundles the external collaborators the engine needs. Fetcher is
// required; Cache, Headless and PDF may be nil (no caching; headless
// requests fail with ResourceLimit("headless unavailable"); PDF responses
// fail with an InternalError).
type Deps struct {
	Cache    Cache
	Fetcher  Fetcher
	Headless HeadlessRenderer
	PDF      PDFProcessor
}

// Engine is the process-wide facade: one shared WASM runtime and
// compiled module, one instance pool, one pipeline. Construct with New,
// tear down with Close (spec §9: "compiled module, metrics, event bus
// are process-wide singletons").
type Engine struct {
	cfg Config

	runtime *sandbox.Runtime
	pool    *pool.Pool
	pipe    *pipeline.Pipeline

	metrics metrics.Provider
	bus     events.Bus
}

// New constructs the engine: compiles the WASM module, builds the
// instance pool and circuit breaker, and wires the pipeline against the
// caller's collaborators.
func New(ctx context.Context, cfg Config, deps Deps) (*Engine, error) {
	wasmPath := cfg.WASMPath
	if wasmPath == "" {
		wasmPath = sandboxcfg.WASMPath()
	}
	cacheDir := cfg.WASMCacheDir
	if cacheDir == "" {
		cacheDir = sandboxcfg.CacheDir()
	}

	logger := logging.New(nil)

	runtime, err := sandbox.NewRuntime(ctx, sandbox.RuntimeConfig{
		WASMPath:              wasmPath,
		CacheDir:              cacheDir,
		EpochDeadline:         cfg.EpochDeadline,
		ExpectedVersionPrefix: cfg.ExpectedVersionPrefix,
		WatchForChanges:       cfg.WASMWatchForChanges,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	var provider metrics.Provider
	if cfg.MetricsEnabled && cfg.MetricsBackend == "prom" {
		provider = metrics.NewPrometheusProvider(nil)
	} else {
		provider = metrics.NewNoopProvider()
	}
	bus := events.NewBus(provider)
	tracer := tracing.NewTracer("riptide/engine")

	p := pool.New(cfg.Pool, func(ctx context.Context, id string) (pool.Sandboxed, error) {
		inst, err := runtime.NewInstance(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, err := inst.HealthCheck(ctx); err != nil {
			_ = inst.Close(ctx)
			return nil, err
		}
		return inst, nil
	})

	composerFactory := func(mode models.ExtractionMode) strategy.Extractor {
		return strategy.Fallback{
			Primary: strategy.NewWASMExtractor(p, mode),
			Fallbacks: []strategy.Extractor{
				strategy.NewCSSExtractor(),
				strategy.NewDensityExtractor(),
			},
			Threshold: cfg.ChainThreshold,
		}
	}

	pipe := pipeline.New(pipeline.Config{
		RetryBaseDelay:   cfg.RetryBaseDelay,
		RetryMaxDelay:    cfg.RetryMaxDelay,
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		ExtractorVersion: cfg.ExtractorVersion,
		CacheTTL:         cfg.CacheTTL,
		GateThresholds:   cfg.Gate,
		ChainThreshold:   cfg.ChainThreshold,
	}, pipeline.Deps{
		Cache:    deps.Cache,
		Fetcher:  deps.Fetcher,
		Headless: deps.Headless,
		PDF:      deps.PDF,
		Codec:    jsonCodec{},
		Composer: composerFactory,
		Bus:      bus,
		Logger:   logger,
		Tracer:   tracer,
	})

	return &Engine{cfg: cfg, runtime: runtime, pool: p, pipe: pipe, metrics: provider, bus: bus}, nil
}

// ExtractOne runs the pipeline's extract_one for a single URL (spec
// §4.6).
func (e *Engine) ExtractOne(ctx context.Context, url string, opts models.CrawlOptions) (models.ExtractedDoc, error) {
	return e.pipe.ExtractOne(ctx, url, opts)
}

// PoolMetrics exposes the instance pool's counters (spec §3.1).
func (e *Engine) PoolMetrics() models.PoolMetrics { return e.pool.Metrics() }

// CircuitState exposes the pool's breaker state for observability.
func (e *Engine) CircuitState() models.CircuitState { return e.pool.CircuitState() }

// Subscribe attaches a new event subscription to the shared bus.
func (e *Engine) Subscribe(buffer int) (events.Subscription, error) { return e.bus.Subscribe(buffer) }

// Close tears down the pool and the shared WASM runtime.
func (e *Engine) Close(ctx context.Context) error {
	e.pool.Close(ctx)
	return e.runtime.Close(ctx)
}

// gate.Thresholds is re-exported for callers configuring Config.Gate
// without importing the internal package directly.
type GateThresholds = gate.Thresholds

// Package pool implements the Instance Pool (C3): admission control,
// reuse, health eviction, circuit breaking, and warming over a bounded
// set of sandboxed WASM extractor instances.
//
// Grounded on the teacher's resources.Manager (semaphore-guarded admission
// over a bounded store) and internal/ratelimit's circuit breaker state
// machine, retargeted from domain-scoped rate limiting to pool-scoped
// health/failure tracking, with rotation/eviction bookkeeping adapted from
// the pack's Easonliuliang-purify AdaptivePool.
package pool

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foofork/riptide/engine/models"
)

// Sandboxed is the capability set the pool needs from a sandbox instance.
// Defined here (not imported from the sandbox package's concrete type) so
// the pool stays testable against fakes without a hard dependency on
// wazero.
type Sandboxed interface {
	Extract(ctx context.Context, html, url string, mode models.ExtractionMode) (models.ExtractedDoc, error)
	HealthCheck(ctx context.Context) (models.HealthStatus, error)
	Peak() uint32
	Close(ctx context.Context) error
}

// Factory creates a new sandbox instance, e.g. sandbox.Runtime.NewInstance
// adapted to this signature by the engine facade.
type Factory func(ctx context.Context, id string) (Sandboxed, error)

// Config configures pool sizing, timeouts, and rotation policy.
type Config struct {
	MaxPoolSize         int
	MaxConcurrentCalls  int
	AdmissionTimeout    time.Duration
	MaxInstanceUses     uint64 // 0 disables rotation; default 100 (DESIGN.md Open Question 1)
	MaxMemoryPeakRatio  float64
	HealthCheckInterval time.Duration
	FailureThreshold    int
	OpenCooldown        time.Duration

	Logger *slog.Logger
}

// DefaultConfig matches spec §4.3's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxPoolSize:         8,
		MaxConcurrentCalls:  8,
		AdmissionTimeout:    5 * time.Second,
		MaxInstanceUses:     100,
		MaxMemoryPeakRatio:  0.9,
		HealthCheckInterval: 30 * time.Second,
		FailureThreshold:    5,
		OpenCooldown:        30 * time.Second,
	}
}

type entry struct {
	inst  Sandboxed
	meta  models.PooledInstance
}

// Pool is the bounded set of ready-to-use sandbox instances plus the
// admission semaphore and circuit breaker guarding them.
type Pool struct {
	cfg     Config
	factory Factory
	logger  *slog.Logger

	mu      sync.Mutex
	idle    *list.List // of *entry; returned instances are appended at the back, popBestIdle picks by the tie-break rule regardless of position
	created int

	sem     chan struct{}
	breaker *breaker

	metricsMu sync.Mutex
	metrics   models.PoolMetrics

	closeCh chan struct{}
	closeWG sync.WaitGroup
}

// New constructs a Pool and starts its background health loop, which runs
// until Close. No instances are created until the first Acquire.
func New(cfg Config, factory Factory) *Pool {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Pool{
		cfg:     cfg,
		factory: factory,
		logger:  cfg.Logger,
		idle:    list.New(),
		sem:     make(chan struct{}, cfg.MaxConcurrentCalls),
		breaker: newBreaker(cfg.FailureThreshold, cfg.OpenCooldown),
		closeCh: make(chan struct{}),
	}
	p.closeWG.Add(1)
	go p.healthLoop()
	return p
}

// Close stops the health loop and closes all idle instances.
func (p *Pool) Close(ctx context.Context) {
	close(p.closeCh)
	p.closeWG.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for e := p.idle.Front(); e != nil; e = e.Next() {
		_ = e.Value.(*entry).inst.Close(ctx)
	}
	p.idle.Init()
}

// Lease is an exclusive loan of a PooledInstance, released exactly once.
type Lease struct {
	pool     *Pool
	inst     Sandboxed
	meta     models.PooledInstance
	isProbe  bool
	released bool
}

// Instance exposes the loaned sandbox for the caller to invoke Extract on.
func (l *Lease) Instance() Sandboxed { return l.inst }

// Acquire implements spec §4.3's acquire protocol: fail-fast on an open
// breaker, bounded-wait semaphore admission, pop-or-create an instance.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	ok, isProbe := p.breaker.allow()
	if !ok {
		return nil, models.NewExtractionError(models.ErrKindCircuitOpen, "pool circuit open")
	}

	admitCtx, cancel := context.WithTimeout(ctx, p.cfg.AdmissionTimeout)
	defer cancel()
	select {
	case p.sem <- struct{}{}:
	case <-admitCtx.Done():
		if isProbe {
			p.breaker.recordFailure(true)
		}
		return nil, models.NewExtractionError(models.ErrKindResourceLimit, "admission_timeout")
	}

	inst, meta, err := p.takeOrCreate(ctx)
	if err != nil {
		<-p.sem
		if isProbe {
			p.breaker.recordFailure(true)
		} else {
			p.breaker.recordFailure(false)
		}
		return nil, err
	}

	p.recordAcquisition()
	return &Lease{pool: p, inst: inst, meta: meta, isProbe: isProbe}, nil
}

func (p *Pool) takeOrCreate(ctx context.Context) (Sandboxed, models.PooledInstance, error) {
	p.mu.Lock()
	if e := p.popBestIdle(); e != nil {
		p.mu.Unlock()
		p.bumpReuses()
		return e.inst, e.meta, nil
	}
	if p.created >= p.cfg.MaxPoolSize {
		p.mu.Unlock()
		// Pool is at capacity with no idle instance; block briefly for one
		// to free up, since admission was already granted by the semaphore.
		return p.waitForIdle(ctx)
	}
	p.created++
	p.mu.Unlock()
	id := "inst-" + uuid.New().String()

	inst, err := p.factory(ctx, id)
	if err != nil {
		p.mu.Lock()
		p.created--
		p.mu.Unlock()
		return nil, models.PooledInstance{}, models.WrapExtractionError(models.ErrKindExtractorError, "instantiate", err)
	}
	p.bumpInstantiations()
	meta := models.PooledInstance{ID: id, CreatedAt: time.Now(), Health: models.HealthHealthy}
	return inst, meta, nil
}

// popBestIdle applies the tie-break rule from spec §4.3: prefer lowest
// extraction_count, then youngest.
func (p *Pool) popBestIdle() *entry {
	var best *list.Element
	for e := p.idle.Front(); e != nil; e = e.Next() {
		cur := e.Value.(*entry)
		if best == nil {
			best = e
			continue
		}
		b := best.Value.(*entry)
		if cur.meta.ExtractionCount < b.meta.ExtractionCount ||
			(cur.meta.ExtractionCount == b.meta.ExtractionCount && cur.meta.CreatedAt.After(b.meta.CreatedAt)) {
			best = e
		}
	}
	if best == nil {
		return nil
	}
	p.idle.Remove(best)
	return best.Value.(*entry)
}

func (p *Pool) waitForIdle(ctx context.Context) (Sandboxed, models.PooledInstance, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		if e := p.popBestIdle(); e != nil {
			p.mu.Unlock()
			p.bumpReuses()
			return e.inst, e.meta, nil
		}
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, models.PooledInstance{}, models.NewExtractionError(models.ErrKindResourceLimit, "admission_timeout")
		case <-ticker.C:
		}
	}
}

// Release implements spec §4.3 steps 5-7: on success, return the instance
// to the idle queue unless it crossed the rotation threshold or memory
// ceiling; on failure, feed the breaker; always release the semaphore.
func (l *Lease) Release(callErr error) {
	if l.released {
		return
	}
	l.released = true
	p := l.pool
	defer func() { <-p.sem }()

	l.meta.LastUsed = time.Now()
	l.meta.MemoryPeak = l.inst.Peak()

	if callErr != nil {
		if l.isProbe {
			p.breaker.recordFailure(true)
		} else {
			if p.breaker.recordFailure(false) {
				p.bumpCircuitTrip()
			}
		}
		p.discard(l.inst, l.meta)
		return
	}

	p.breaker.recordSuccess(l.isProbe)
	l.meta.ExtractionCount++

	rotate := p.cfg.MaxInstanceUses > 0 && l.meta.ExtractionCount >= p.cfg.MaxInstanceUses
	overMemory := p.cfg.MaxMemoryPeakRatio > 0 &&
		float64(l.meta.MemoryPeak) > p.cfg.MaxMemoryPeakRatio*float64(^uint32(0))

	if rotate || overMemory {
		p.discard(l.inst, l.meta)
		return
	}

	l.meta.Health = models.HealthHealthy
	p.mu.Lock()
	p.idle.PushBack(&entry{inst: l.inst, meta: l.meta})
	p.mu.Unlock()
}

func (p *Pool) discard(inst Sandboxed, meta models.PooledInstance) {
	p.mu.Lock()
	p.created--
	p.mu.Unlock()
	p.bumpEviction()
	_ = inst.Close(context.Background())
}

func (p *Pool) healthLoop() {
	defer p.closeWG.Done()
	interval := p.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.closeCh:
			return
		case <-ticker.C:
			p.probeIdle()
		}
	}
}

// probeIdle evicts instances failing a health probe, best-effort (spec
// §4.3 "warming is best-effort; failures do not prevent readiness").
func (p *Pool) probeIdle() {
	p.mu.Lock()
	var stale []*entry
	for e := p.idle.Front(); e != nil; {
		next := e.Next()
		stale = append(stale, e.Value.(*entry))
		p.idle.Remove(e)
		e = next
	}
	p.mu.Unlock()

	for _, e := range stale {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := e.inst.HealthCheck(ctx)
		cancel()
		if err != nil {
			p.logger.Warn("pool: instance failed health probe, evicting", "instance", e.meta.ID, "error", err)
			p.discard(e.inst, e.meta)
			continue
		}
		p.mu.Lock()
		p.idle.PushBack(e)
		p.mu.Unlock()
	}
}

func (p *Pool) recordAcquisition() {
	p.metricsMu.Lock()
	p.metrics.Acquisitions++
	p.metricsMu.Unlock()
}
func (p *Pool) bumpReuses() {
	p.metricsMu.Lock()
	p.metrics.Reuses++
	p.metricsMu.Unlock()
}
func (p *Pool) bumpInstantiations() {
	p.metricsMu.Lock()
	p.metrics.Instantiations++
	p.metricsMu.Unlock()
}
func (p *Pool) bumpEviction() {
	p.metricsMu.Lock()
	p.metrics.Evictions++
	p.metricsMu.Unlock()
}
func (p *Pool) bumpCircuitTrip() {
	p.metricsMu.Lock()
	p.metrics.CircuitTrips++
	p.metricsMu.Unlock()
}

// Metrics returns a snapshot of the pool's counters (spec §3.1 PoolMetrics).
func (p *Pool) Metrics() models.PoolMetrics {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()
	return p.metrics
}

// CircuitState exposes the breaker's current state for observability.
func (p *Pool) CircuitState() models.CircuitState {
	return p.breaker.snapshot()
}

// Package sandbox hosts the compiled WASM extraction component behind a
// type-safe call site with strict resource bounds: memory/table ceilings
// (ResourceTracker), a per-call fuel budget, and an epoch-style wall-clock
// deadline. Grounded on the wazero-based host in the pack's
// zkoranges-go-claw reference (context-bound interruption, host-function
// fault classification) and built on github.com/tetratelabs/wazero, the
// WASM runtime attested across ten repos in the broader example pack.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/foofork/riptide/engine/models"
)

// FuelBudget returns the per-call fuel budget for a mode, per spec §4.2.
func FuelBudget(mode models.ExtractionMode) uint64 {
	switch mode.Kind {
	case models.ModeMetadata:
		return 1e5
	case models.ModeFull:
		return 5e6
	case models.ModeCustom:
		return 2e6
	default:
		return 1e6
	}
}

// RuntimeConfig configures the shared, process-wide wazero runtime.
type RuntimeConfig struct {
	// WASMPath is the path to the compiled extraction component
	// ($RIPTIDE_WASM_PATH).
	WASMPath string
	// CacheDir optionally enables the AOT compilation cache
	// ($RIPTIDE_WASM_CACHE_DIR). Empty uses os.UserCacheDir.
	CacheDir string
	// EpochDeadline bounds wall-clock time per call; defaults to 30s.
	EpochDeadline time.Duration
	// MaxMemoryPages/MaxTablePages bound growth per call.
	MaxMemoryPages uint32
	MaxTablePages  uint32
	// ExpectedVersionPrefix is matched against health-check's
	// extractor-version field during warm-up (spec §4.2 version check).
	ExpectedVersionPrefix string
	// WatchForChanges recompiles the module in place when WASMPath changes
	// on disk, so an operator can hot-swap the extraction component
	// without restarting the process (spec §4.2 ahead-of-time cache /
	// module reload).
	WatchForChanges bool

	Logger *slog.Logger
}

func (c *RuntimeConfig) setDefaults() {
	if c.EpochDeadline <= 0 {
		c.EpochDeadline = 30 * time.Second
	}
	if c.MaxMemoryPages <= 0 {
		// 512MB ceiling / 64KiB page size (spec §4.2 memory_reservation_for_growth).
		c.MaxMemoryPages = (512 << 20) / (64 << 10)
	}
	if c.MaxTablePages <= 0 {
		c.MaxTablePages = 4096
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Runtime owns the one wazero.Runtime and compiled module shared read-only
// across the process for its lifetime (spec §3.3, §9 "shared/compiled
// module vs per-call state").
type Runtime struct {
	cfg     RuntimeConfig
	runtime wazero.Runtime

	compiledMu sync.RWMutex
	compiled   wazero.CompiledModule

	watcher *fsnotify.Watcher
	doneCh  chan struct{}

	closeOnce sync.Once
}

func (r *Runtime) currentCompiled() wazero.CompiledModule {
	r.compiledMu.RLock()
	defer r.compiledMu.RUnlock()
	return r.compiled
}

// NewRuntime compiles the extraction component once. On AOT cache failure
// it degrades to an uncached runtime and logs a warning rather than
// failing startup (spec §4.2: "On load failure, degrade to no-cache").
func NewRuntime(ctx context.Context, cfg RuntimeConfig) (*Runtime, error) {
	cfg.setDefaults()

	wasmBytes, err := os.ReadFile(cfg.WASMPath)
	if err != nil {
		return nil, fmt.Errorf("sandbox: read wasm module: %w", err)
	}

	rtCfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(cfg.MaxMemoryPages)

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		if dir, derr := os.UserCacheDir(); derr == nil {
			cacheDir = dir + "/riptide/wasmcache"
		}
	}
	if cacheDir != "" {
		if cache, cerr := wazero.NewCompilationCacheWithDir(cacheDir); cerr == nil {
			rtCfg = rtCfg.WithCompilationCache(cache)
		} else {
			cfg.Logger.Warn("sandbox: AOT cache unavailable, proceeding uncached", "dir", cacheDir, "error", cerr)
		}
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	if ferr := registerFuelHost(ctx, rt); ferr != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("sandbox: register fuel host: %w", ferr)
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("sandbox: compile wasm module: %w", err)
	}

	r := &Runtime{cfg: cfg, runtime: rt, compiled: compiled}

	if cfg.WatchForChanges {
		if w, werr := fsnotify.NewWatcher(); werr == nil {
			if aerr := w.Add(cfg.WASMPath); aerr == nil {
				r.watcher = w
				r.doneCh = make(chan struct{})
				go r.watchLoop(wasmBytes)
			} else {
				cfg.Logger.Warn("sandbox: wasm hot-reload watch unavailable", "path", cfg.WASMPath, "error", aerr)
				_ = w.Close()
			}
		} else {
			cfg.Logger.Warn("sandbox: wasm hot-reload watcher unavailable", "error", werr)
		}
	}

	return r, nil
}

// watchLoop recompiles the module whenever WASMPath is written to,
// swapping it in under compiledMu so concurrent NewInstance calls never
// observe a torn compiled module. prevBytes detects no-op fsnotify
// events (some editors emit multiple writes per save).
func (r *Runtime) watchLoop(prevBytes []byte) {
	for {
		select {
		case <-r.doneCh:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			data, err := os.ReadFile(r.cfg.WASMPath)
			if err != nil || bytes.Equal(data, prevBytes) {
				continue
			}
			ctx := context.Background()
			compiled, cerr := r.runtime.CompileModule(ctx, data)
			if cerr != nil {
				r.cfg.Logger.Warn("sandbox: wasm hot-reload compile failed, keeping previous module", "error", cerr)
				continue
			}
			old := r.currentCompiled()
			r.compiledMu.Lock()
			r.compiled = compiled
			r.compiledMu.Unlock()
			_ = old.Close(ctx)
			prevBytes = data
			r.cfg.Logger.Info("sandbox: wasm module hot-reloaded", "path", r.cfg.WASMPath)
		case werr, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.cfg.Logger.Warn("sandbox: wasm watcher error", "error", werr)
		}
	}
}

// Close releases the shared runtime and compiled module.
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		if r.watcher != nil {
			close(r.doneCh)
			_ = r.watcher.Close()
		}
		err = r.runtime.Close(ctx)
	})
	return err
}

// Instance is a single instantiation of the compiled module. The pool owns
// Instance lifetimes. The instantiated module and its ResourceTracker are
// created once in NewInstance and reused by every Extract call on this
// Instance; only the fuel meter and the deadline are fresh per call.
type Instance struct {
	rt      *Runtime
	id      string
	mod     api.Module
	tracker *ResourceTracker
}

// NewInstance instantiates the compiled module fresh. Callers (the pool)
// should invoke HealthCheck immediately after to satisfy the warm-up
// version check (spec §4.2).
func (r *Runtime) NewInstance(ctx context.Context, id string) (*Instance, error) {
	tracker := NewResourceTracker(r.cfg.MaxMemoryPages, r.cfg.MaxTablePages)

	modCfg := wazero.NewModuleConfig().WithName(id)
	mod, err := r.runtime.InstantiateModule(ctx, r.currentCompiled(), modCfg)
	if err != nil {
		return nil, &models.ExtractionError{Kind: models.ErrKindExtractorError, Reason: "instantiate", Cause: err}
	}
	return &Instance{rt: r, id: id, mod: mod, tracker: tracker}, nil
}

// Close releases this instance's module.
func (i *Instance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}

// Peak exposes the resource tracker's observed peak for pool/metrics use.
func (i *Instance) Peak() uint32 { return i.tracker.Peak() }

// observeMemory polls the guest's actual linear memory size and feeds it
// into the tracker so Peak/GrowFailures reflect real execution rather than
// only the synthetic growth checked in unit tests. Grow(0) is wazero's
// documented no-op form: it returns the current page count without
// growing or risking overflow.
func (i *Instance) observeMemory() {
	mem := i.mod.Memory()
	if mem == nil {
		return
	}
	pages, ok := mem.Grow(0)
	if !ok {
		return
	}
	i.tracker.TryGrowMemory(0, pages)
}

// Extract runs the guest extract() export with a per-call epoch deadline,
// a fresh fuel budget for the mode, and the instance's resource tracker. Implements spec §4.2 steps 1-8.
func (i *Instance) Extract(ctx context.Context, html, url string, mode models.ExtractionMode) (models.ExtractedDoc, error) {
	callCtx, cancel := context.WithTimeout(ctx, i.rt.cfg.EpochDeadline)
	defer cancel()

	budget := FuelBudget(mode)
	guestMode := toGuestMode(mode)

	fn := i.mod.ExportedFunction("extract")
	if fn == nil {
		return models.ExtractedDoc{}, &models.ExtractionError{Kind: models.ErrKindExtractorError, Reason: "missing extract export"}
	}

	defer i.observeMemory()

	resultCh := make(chan extractOutcome, 1)
	go func() {
		doc, gerr := callGuestExtract(callCtx, i.mod, fn, html, url, guestMode, budget, i.tracker)
		resultCh <- extractOutcome{doc: doc, err: gerr}
	}()

	select {
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return models.ExtractedDoc{}, &models.ExtractionError{Kind: models.ErrKindResourceLimit, Reason: "timeout"}
		}
		return models.ExtractedDoc{}, &models.ExtractionError{Kind: models.ErrKindResourceLimit, Reason: "cancelled"}
	case out := <-resultCh:
		return out.doc, out.err
	}
}

type extractOutcome struct {
	doc models.ExtractedDoc
	err error
}

// HealthCheck invokes the guest health-check() export and validates the
// returned extractor-version against the runtime's expected pattern
// (spec §4.2 version check).
func (i *Instance) HealthCheck(ctx context.Context) (models.HealthStatus, error) {
	fn := i.mod.ExportedFunction("health-check")
	if fn == nil {
		return models.HealthStatus{}, &models.ExtractionError{Kind: models.ErrKindExtractorError, Reason: "missing health-check export"}
	}
	status, err := callGuestHealthCheck(ctx, fn)
	if err != nil {
		return models.HealthStatus{}, err
	}
	if i.rt.cfg.ExpectedVersionPrefix != "" && !strings.HasPrefix(status.ExtractorVersion, i.rt.cfg.ExpectedVersionPrefix) {
		return status, &models.ExtractionError{
			Kind:   models.ErrKindExtractorError,
			Reason: fmt.Sprintf("extractor-version mismatch: got %q, want prefix %q", status.ExtractorVersion, i.rt.cfg.ExpectedVersionPrefix),
		}
	}
	return status, nil
}

// ComponentInfo invokes the guest component-info() export.
func (i *Instance) ComponentInfo(ctx context.Context) (models.ComponentInfo, error) {
	fn := i.mod.ExportedFunction("component-info")
	if fn == nil {
		return models.ComponentInfo{}, &models.ExtractionError{Kind: models.ErrKindExtractorError, Reason: "missing component-info export"}
	}
	return callGuestComponentInfo(ctx, fn)
}

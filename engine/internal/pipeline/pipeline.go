// Package pipeline implements the Pipeline (C6): the end-to-end
// fetch -> cache -> gate -> extract -> cache-store orchestration for one
// URL, with retries, escalation, and observability events.
//
// The retry/backoff shape (exponential with jitter, bounded attempts) is
// adapted directly from the teacher's internal/pipeline
// backoffDelay/randomizedDelay/scheduleRetry/shouldRetry machinery,
// narrowed from a multi-stage worker pipeline to a single synchronous
// per-URL call.
package pipeline

import (
	"context"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/foofork/riptide/engine/internal/cachekey"
	"github.com/foofork/riptide/engine/internal/gate"
	"github.com/foofork/riptide/engine/internal/strategy"
	"github.com/foofork/riptide/engine/internal/telemetry/events"
	"github.com/foofork/riptide/engine/internal/telemetry/logging"
	"github.com/foofork/riptide/engine/internal/telemetry/tracing"
	"github.com/foofork/riptide/engine/models"
)

const minProbeTextChars = 300

// Cache/Fetcher/HeadlessRenderer/PDFProcessor are the collaborator
// contracts (spec §6). They are declared here and re-exported by the
// engine facade as type aliases, so this package has no import-cycle
// dependency on engine itself.

type Cache interface {
	Get(ctx context.Context, key models.CacheKey) ([]byte, bool, error)
	Set(ctx context.Context, key models.CacheKey, value []byte, ttl time.Duration) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (models.FetchedPage, error)
}

type HeadlessRenderer interface {
	Render(ctx context.Context, url string, opts HeadlessOptions) (HeadlessResult, error)
}

type HeadlessOptions struct {
	SessionID     string
	StealthPreset models.StealthPreset
	WaitFor       string
	Timeout       time.Duration
}

type HeadlessResult struct {
	FinalURL string
	HTML     string
}

type PDFProcessor interface {
	Extract(ctx context.Context, body []byte) (models.ExtractedDoc, error)
}

// Codec serializes/deserializes ExtractedDoc for the cache collaborator.
type Codec interface {
	Encode(doc models.ExtractedDoc) ([]byte, error)
	Decode(data []byte) (models.ExtractedDoc, error)
}

// Config configures retry policy and extractor version for cache keys.
type Config struct {
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryMaxAttempts int
	ExtractorVersion string
	CacheTTL         time.Duration
	GateThresholds   gate.Thresholds
	ChainThreshold   float64
}

func (c *Config) setDefaults() {
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 2 * time.Second
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 3
	}
	if c.ExtractorVersion == "" {
		c.ExtractorVersion = "dev"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	if c.GateThresholds == (gate.Thresholds{}) {
		c.GateThresholds = gate.DefaultThresholds()
	}
	if c.ChainThreshold <= 0 {
		c.ChainThreshold = 0.5
	}
}

// ComposerFactory builds the Raw-path composer (Fallback[WASM, CSS,
// Density]) for one request; the engine facade wires the pool-backed
// WASM extractor in via this indirection to keep this package free of a
// direct dependency on the pool/sandbox packages.
type ComposerFactory func(mode models.ExtractionMode) strategy.Extractor

// Pipeline is the end-to-end orchestrator for one URL (spec §4.6).
type Pipeline struct {
	cfg      Config
	cache    Cache
	fetcher  Fetcher
	headless HeadlessRenderer
	pdf      PDFProcessor
	codec    Codec
	composer ComposerFactory

	bus    events.Bus
	logger logging.Logger
	tracer tracing.Tracer

	randMu sync.Mutex
	rand   *rand.Rand
}

// Deps bundles the pipeline's external collaborators.
type Deps struct {
	Cache            Cache
	Fetcher          Fetcher
	Headless         HeadlessRenderer
	PDF              PDFProcessor
	Codec            Codec
	Composer         ComposerFactory
	Bus              events.Bus
	Logger           logging.Logger
	Tracer           tracing.Tracer
}

func New(cfg Config, deps Deps) *Pipeline {
	cfg.setDefaults()
	if deps.Bus == nil {
		deps.Bus = events.NewBus(nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.New(nil)
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.NewTracer("riptide/pipeline")
	}
	return &Pipeline{
		cfg:      cfg,
		cache:    deps.Cache,
		fetcher:  deps.Fetcher,
		headless: deps.Headless,
		pdf:      deps.PDF,
		codec:    deps.Codec,
		composer: deps.Composer,
		bus:      deps.Bus,
		logger:   deps.Logger,
		tracer:   deps.Tracer,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ExtractOne runs the full extract_one(url, options) sequence from spec
// §4.6.
func (p *Pipeline) ExtractOne(ctx context.Context, rawURL string, opts models.CrawlOptions) (models.ExtractedDoc, error) {
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.extract_one")
	defer span.End()

	mode := models.ParseExtractionMode(string(opts.RenderMode))
	if !validURL(rawURL) {
		return models.ExtractedDoc{}, models.NewExtractionError(models.ErrKindInvalidInput, "bad url")
	}

	key, err := cachekey.Fingerprint(rawURL, mode, opts.OutputFormat, p.cfg.ExtractorVersion)
	if err != nil {
		return models.ExtractedDoc{}, models.WrapExtractionError(models.ErrKindInvalidInput, "bad url", err)
	}

	if opts.CacheMode != models.CacheBypass && opts.CacheMode != models.CacheWriteOnly && p.cache != nil {
		if blob, hit, err := p.cache.Get(ctx, key); err == nil && hit {
			doc, derr := p.codec.Decode(blob)
			if derr == nil {
				p.publish(ctx, events.CategoryCache, events.TypeCacheHit, nil)
				return doc, nil
			}
		}
		p.publish(ctx, events.CategoryCache, events.TypeCacheMiss, nil)
	}

	page, err := p.fetchWithRetry(ctx, rawURL, opts)
	if err != nil {
		return models.ExtractedDoc{}, err
	}

	if strings.Contains(page.ContentType, "application/pdf") {
		if p.pdf == nil {
			return models.ExtractedDoc{}, models.NewExtractionError(models.ErrKindInternalError, "no pdf collaborator configured")
		}
		doc, err := p.pdf.Extract(ctx, page.Body)
		if err != nil {
			return models.ExtractedDoc{}, models.WrapExtractionError(models.ErrKindExtractorError, "pdf extraction failed", err)
		}
		p.writeCache(ctx, key, doc, opts)
		return doc, nil
	}

	features := gate.Sample(page.Body, page.ContentType)
	decision := gate.Decide(page.ContentType, features, p.cfg.GateThresholds)
	p.publish(ctx, events.CategoryGate, events.TypeDecision, map[string]any{"kind": decision.Kind, "score": decision.Score})

	doc, err := p.execute(ctx, decision, page, mode)
	if err != nil {
		p.publish(ctx, events.CategoryPipeline, events.TypeExtractFail, map[string]any{"error": err.Error()})
		return models.ExtractedDoc{}, err
	}

	p.publish(ctx, events.CategoryPipeline, events.TypeExtractOK, nil)
	p.writeCache(ctx, key, doc, opts)
	return doc, nil
}

// execute implements spec §4.6 step 7's per-decision dispatch, including
// the ProbesFirst -> Headless escalation and the ResourceLimit ->
// Headless escalation on the Raw path.
func (p *Pipeline) execute(ctx context.Context, decision models.GateDecision, page models.FetchedPage, mode models.ExtractionMode) (models.ExtractedDoc, error) {
	switch decision.Kind {
	case models.DecisionRaw:
		doc, err := p.runComposer(ctx, page.Body, page.FinalURL, mode)
		if isResourceLimit(err) {
			return p.runHeadless(ctx, page.FinalURL, mode)
		}
		return doc, err

	case models.DecisionProbesFirst:
		doc, err := p.runComposer(ctx, page.Body, page.FinalURL, mode)
		if err == nil && len(doc.Text) >= minProbeTextChars {
			return doc, nil
		}
		p.publish(ctx, events.CategoryPipeline, events.TypeEscalated, map[string]any{"from": "probes_first"})
		return p.runHeadless(ctx, page.FinalURL, mode)

	case models.DecisionHeadless:
		return p.runHeadless(ctx, page.FinalURL, mode)

	default:
		return models.ExtractedDoc{}, models.NewExtractionError(models.ErrKindInternalError, "unhandled gate decision")
	}
}

func (p *Pipeline) runComposer(ctx context.Context, html, url string, mode models.ExtractionMode) (models.ExtractedDoc, error) {
	composer := p.composer(mode)
	return composer.Extract(ctx, html, url)
}

// runHeadless renders url through the headless collaborator and runs the
// composer on the rendered HTML. With no renderer configured it logs a
// warning and returns ResourceLimit("headless unavailable"); a failed
// render is logged and returned as a NetworkError. In neither case does it
// fall back to the raw result.
func (p *Pipeline) runHeadless(ctx context.Context, url string, mode models.ExtractionMode) (models.ExtractedDoc, error) {
	if p.headless == nil {
		p.logger.WarnCtx(ctx, "headless renderer unavailable", "url", url)
		return models.ExtractedDoc{}, models.NewExtractionError(models.ErrKindResourceLimit, "headless unavailable")
	}
	result, err := p.headless.Render(ctx, url, HeadlessOptions{Timeout: 30 * time.Second})
	if err != nil {
		p.logger.WarnCtx(ctx, "headless render failed", "url", url, "error", err)
		return models.ExtractedDoc{}, models.WrapExtractionError(models.ErrKindNetworkError, "headless render failed", err)
	}
	return p.runComposer(ctx, result.HTML, result.FinalURL, mode)
}

func isResourceLimit(err error) bool {
	ee, ok := err.(*models.ExtractionError)
	return ok && ee.Kind == models.ErrKindResourceLimit
}

// fetchWithRetry implements spec §7's fetch retry policy: 4xx is
// terminal, 5xx/fetch errors are retried with exponential backoff and
// jitter, for at most RetryMaxAttempts attempts in total (the first one
// included).
func (p *Pipeline) fetchWithRetry(ctx context.Context, url string, opts models.CrawlOptions) (models.FetchedPage, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.RetryMaxAttempts; attempt++ {
		page, err := p.fetcher.Fetch(ctx, url, nil, opts.FetchTimeout)
		if err == nil {
			if page.Status >= 400 && page.Status < 500 {
				return models.FetchedPage{}, &models.ExtractionError{Kind: models.ErrKindNetworkError, Reason: httpStatusReason(page.Status), Status: page.Status}
			}
			if page.Status >= 500 {
				lastErr = &models.ExtractionError{Kind: models.ErrKindNetworkError, Reason: httpStatusReason(page.Status), Status: page.Status}
			} else {
				return page, nil
			}
		} else {
			lastErr = models.WrapExtractionError(models.ErrKindNetworkError, "fetch failed", err)
		}

		if attempt == p.cfg.RetryMaxAttempts {
			break
		}
		p.publish(ctx, events.CategoryPipeline, events.TypeRetrying, map[string]any{"attempt": attempt})
		select {
		case <-ctx.Done():
			return models.FetchedPage{}, models.WrapExtractionError(models.ErrKindNetworkError, "cancelled", ctx.Err())
		case <-time.After(p.backoffDelay(attempt)):
		}
	}
	return models.FetchedPage{}, lastErr
}

func httpStatusReason(status int) string {
	return http.StatusText(status)
}

func (p *Pipeline) backoffDelay(attempt int) time.Duration {
	base, max := p.cfg.RetryBaseDelay, p.cfg.RetryMaxDelay
	delay := base * time.Duration(1<<(attempt-1))
	if delay > max {
		delay = max
	}
	if jitter := p.randomizedDelay(delay); jitter > 0 {
		return jitter
	}
	return delay
}

func (p *Pipeline) randomizedDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	p.randMu.Lock()
	defer p.randMu.Unlock()
	return time.Duration(p.rand.Float64() * float64(max))
}

func (p *Pipeline) writeCache(ctx context.Context, key models.CacheKey, doc models.ExtractedDoc, opts models.CrawlOptions) {
	if p.cache == nil || opts.CacheMode == models.CacheReadOnly || opts.CacheMode == models.CacheBypass {
		return
	}
	blob, err := p.codec.Encode(doc)
	if err != nil {
		p.logger.WarnCtx(ctx, "cache encode failed", "error", err)
		return
	}
	if err := p.cache.Set(ctx, key, blob, p.cfg.CacheTTL); err != nil {
		p.logger.WarnCtx(ctx, "cache write failed", "error", err)
		return
	}
	p.publish(ctx, events.CategoryCache, events.TypeCacheWriteOK, nil)
}

func (p *Pipeline) publish(ctx context.Context, category, typ string, fields map[string]any) {
	_ = p.bus.PublishCtx(ctx, events.Event{Category: category, Type: typ, Fields: fields})
}

func validURL(raw string) bool {
	if raw == "" {
		return false
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host != ""
}

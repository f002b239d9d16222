// Package models defines the data entities shared across the extraction
// core: URLs, crawl options, fetched pages, gate features/decisions,
// extracted documents, and the pool/cache/error types that cross package
// boundaries.
package models

import (
	"fmt"
	"time"
)

// URL holds the parts of an absolute HTTP(S) locator. This package has no
// constructor or validator for it; the pipeline and cachekey take raw URL
// strings instead.
type URL struct {
	Raw    string
	Scheme string
	Host   string
}

// CacheMode controls how the pipeline consults and populates the cache
// collaborator for a single request.
type CacheMode string

const (
	CacheReadWrite CacheMode = "read_write"
	CacheReadOnly  CacheMode = "read_only"
	CacheWriteOnly CacheMode = "write_only"
	CacheBypass    CacheMode = "bypass"
)

// RenderMode is a request-level processing preference. The pipeline does
// not route on it: ExtractOne passes it to ParseExtractionMode, which maps
// every value below to ModeArticle, and the gate alone picks the path.
type RenderMode string

const (
	RenderStatic   RenderMode = "static"
	RenderDynamic  RenderMode = "dynamic"
	RenderAdaptive RenderMode = "adaptive"
	RenderPDF      RenderMode = "pdf"
)

// StealthPreset selects how aggressively the headless renderer disguises
// automated browsing.
type StealthPreset string

const (
	StealthNone   StealthPreset = "none"
	StealthLow    StealthPreset = "low"
	StealthMedium StealthPreset = "medium"
	StealthHigh   StealthPreset = "high"
)

// CrawlOptions carries per-request knobs. Immutable for the lifetime of
// one request; the pipeline never mutates a CrawlOptions it is given.
type CrawlOptions struct {
	ConcurrencyHint int
	CacheMode       CacheMode
	RenderMode      RenderMode
	OutputFormat    string
	FetchTimeout    time.Duration
	TotalTimeout    time.Duration
	Stealth         StealthPreset
	MaxBytes        int64
}

// DefaultCrawlOptions mirrors the pipeline's own default timeouts (§5).
func DefaultCrawlOptions() CrawlOptions {
	return CrawlOptions{
		ConcurrencyHint: 1,
		CacheMode:       CacheReadWrite,
		RenderMode:      RenderAdaptive,
		OutputFormat:    "markdown",
		FetchTimeout:    10 * time.Second,
		TotalTimeout:    30 * time.Second,
		Stealth:         StealthNone,
		MaxBytes:        10 << 20,
	}
}

// FetchedPage is the raw result of one fetch attempt, owned by the
// pipeline for the duration of a single extraction.
type FetchedPage struct {
	URL         string
	FinalURL    string
	Status      int
	Headers     map[string]string
	Body        []byte
	ContentType string
	FetchedAt   time.Time
}

// GateFeatures are the cheap, sampled signals the gate scores. Derived
// from a FetchedPage without a full DOM parse.
type GateFeatures struct {
	HasArticleTag      bool
	HasSchemaArticle   bool
	HasMainLandmark    bool
	TextToHTMLRatio    float64
	HasMetaDescription bool
	ByteSize           int
	IframeCount        int
	AdMarkerCount      int
	HasSPAMarkers      bool
}

// GateDecisionKind enumerates the processing path the gate selects.
type GateDecisionKind string

const (
	DecisionRaw         GateDecisionKind = "raw"
	DecisionProbesFirst GateDecisionKind = "probes_first"
	DecisionHeadless    GateDecisionKind = "headless"
	DecisionPdfPath     GateDecisionKind = "pdf_path"
	DecisionCached      GateDecisionKind = "cached"
)

// GateDecision is the gate's verdict plus the score and reason that
// produced it, useful for observability events.
type GateDecision struct {
	Kind   GateDecisionKind
	Score  float64
	Reason string
}

// ExtractionModeKind enumerates the WIT-mirrored extraction-mode variant.
type ExtractionModeKind string

const (
	ModeArticle  ExtractionModeKind = "article"
	ModeFull     ExtractionModeKind = "full"
	ModeMetadata ExtractionModeKind = "metadata"
	ModeCustom   ExtractionModeKind = "custom"
)

// ExtractionMode is the host representation of the guest's
// extraction-mode variant; Selectors is populated only for ModeCustom.
type ExtractionMode struct {
	Kind      ExtractionModeKind
	Selectors []string
}

// ParseExtractionMode parses a mode string case-insensitively; anything
// unrecognized maps to ModeArticle, per §4.2 step 1.
func ParseExtractionMode(s string) ExtractionMode {
	switch lower(s) {
	case "full":
		return ExtractionMode{Kind: ModeFull}
	case "metadata":
		return ExtractionMode{Kind: ModeMetadata}
	case "custom":
		return ExtractionMode{Kind: ModeCustom}
	default:
		return ExtractionMode{Kind: ModeArticle}
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Tag renders the mode as the cache-key mode_tag (§6.7).
func (m ExtractionMode) Tag() string {
	if m.Kind == ModeCustom {
		tag := "custom:"
		for i, s := range m.Selectors {
			if i > 0 {
				tag += ","
			}
			tag += s
		}
		return tag
	}
	return string(m.Kind)
}

// ExtractedDoc is the canonical extraction output, immutable after
// construction.
type ExtractedDoc struct {
	URL           string
	Title         string
	Byline        string
	PublishedISO  string
	Markdown      string
	Text          string
	Links         []string
	Media         []string
	Language      string
	ReadingTime   int
	QualityScore  *uint8
	WordCount     *int
	Categories    []string
	SiteName      string
	Description   string
	HTML          string
}

// ErrorKind is the host-facing error taxonomy (§7). CircuitOpen is a
// host-only addition: the guest's own extraction-error variant (§6.1)
// never reports pool state, since the guest has no visibility into the
// pool above the sandbox boundary.
type ErrorKind string

const (
	ErrKindInvalidInput   ErrorKind = "invalid_input"
	ErrKindNetworkError   ErrorKind = "network_error"
	ErrKindParseError     ErrorKind = "parse_error"
	ErrKindResourceLimit  ErrorKind = "resource_limit"
	ErrKindExtractorError ErrorKind = "extractor_error"
	ErrKindCircuitOpen    ErrorKind = "circuit_open"
	ErrKindInternalError  ErrorKind = "internal_error"
)

// Retryable reports the taxonomy's retry policy (§7 table). NetworkError
// and CircuitOpen are conditionally retryable; callers that need the
// finer 4xx/5xx split should inspect Status on the originating error.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrKindNetworkError, ErrKindCircuitOpen:
		return true
	default:
		return false
	}
}

// ExtractionError is the tagged error value propagated to callers of the
// pipeline and composer. It wraps an optional underlying cause.
type ExtractionError struct {
	Kind   ErrorKind
	Reason string
	Status int
	Cause  error
}

func (e *ExtractionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s", e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// NewExtractionError builds an ExtractionError without a cause.
func NewExtractionError(kind ErrorKind, reason string) *ExtractionError {
	return &ExtractionError{Kind: kind, Reason: reason}
}

// WrapExtractionError builds an ExtractionError carrying an underlying cause.
func WrapExtractionError(kind ErrorKind, reason string, cause error) *ExtractionError {
	return &ExtractionError{Kind: kind, Reason: reason, Cause: cause}
}

// HealthState reflects a pooled instance's standing with the health monitor.
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthRetired   HealthState = "retired"
)

// PooledInstance is owned exclusively by the pool while idle, and loaned
// by exclusive reference during a call.
type PooledInstance struct {
	ID              string
	CreatedAt       time.Time
	ExtractionCount uint64
	LastUsed        time.Time
	Health          HealthState
	MemoryPeak      uint32
}

// CircuitState enumerates the breaker's monotonic-within-a-window states.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CacheKey is the deterministic fingerprint over (canonical_url, mode,
// format, extractor_version) described in §6.7. Hex holds the
// lowercase-hex sha256 digest.
type CacheKey struct {
	Hex string
}

func (k CacheKey) String() string { return k.Hex }

// PoolMetrics are the counters published by the instance pool.
type PoolMetrics struct {
	Acquisitions   uint64
	Reuses         uint64
	Instantiations uint64
	Evictions      uint64
	GrowFailures   uint64
	CircuitTrips   uint64
	AverageWait    time.Duration
	PeakMemory     uint32
}

// HealthStatus mirrors the guest health-check() result.
type HealthStatus struct {
	Status           string
	Version          string
	ExtractorVersion string
	Capabilities     []string
	MemoryUsage      *uint32
	ExtractionCount  *uint64
}

// ComponentInfo mirrors the guest component-info() result.
type ComponentInfo struct {
	Name    string
	Version string
}

// RateLimitConfig holds settings for an adaptive rate limiter. Neither
// engine.Config nor the pipeline's fetch step reads it.
type RateLimitConfig struct {
	Enabled                  bool
	InitialRPS               float64
	MinRPS                   float64
	MaxRPS                   float64
	TokenBucketCapacity      float64
	AIMDIncrease             float64
	AIMDDecrease             float64
	ConsecutiveFailThreshold int
	OpenStateDuration        time.Duration
}

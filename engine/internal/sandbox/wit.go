package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/foofork/riptide/engine/models"
)

// guestExtractionMode mirrors the WIT extraction-mode variant for
// marshaling across the host/guest boundary (spec §6.1).
type guestExtractionMode struct {
	Kind      string   `json:"kind"`
	Selectors []string `json:"selectors,omitempty"`
}

func toGuestMode(m models.ExtractionMode) guestExtractionMode {
	return guestExtractionMode{Kind: string(m.Kind), Selectors: m.Selectors}
}

// guestExtractRequest/guestExtractedContent/guestExtractionError mirror
// the WIT records named in §6.1. The host and guest exchange these as
// JSON packed into guest linear memory, allocated through the guest's own
// cabi_realloc export (the host never frees it) — the host never assumes a memory layout the
// component model would otherwise describe, keeping the shim legible
// until a canonical-ABI code generator is adopted.
type guestExtractRequest struct {
	HTML string              `json:"html"`
	URL  string              `json:"url"`
	Mode guestExtractionMode `json:"mode"`
}

type guestExtractedContent struct {
	URL          string   `json:"url"`
	Title        *string  `json:"title,omitempty"`
	Byline       *string  `json:"byline,omitempty"`
	PublishedISO *string  `json:"published_iso,omitempty"`
	Markdown     string   `json:"markdown"`
	Text         string   `json:"text"`
	Links        []string `json:"links"`
	Media        []string `json:"media"`
	Language     *string  `json:"language,omitempty"`
	ReadingTime  *int     `json:"reading_time,omitempty"`
	QualityScore *uint8   `json:"quality_score,omitempty"`
	WordCount    *int     `json:"word_count,omitempty"`
	Categories   []string `json:"categories"`
	SiteName     *string  `json:"site_name,omitempty"`
	Description  *string  `json:"description,omitempty"`
}

type guestExtractionError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type guestExtractResult struct {
	Ok  *guestExtractedContent `json:"ok,omitempty"`
	Err *guestExtractionError  `json:"err,omitempty"`
}

type guestHealthStatus struct {
	Status           string   `json:"status"`
	Version          string   `json:"version"`
	ExtractorVersion string   `json:"extractor_version"`
	Capabilities     []string `json:"capabilities"`
	MemoryUsage      *uint32  `json:"memory_usage,omitempty"`
	ExtractionCount  *uint64  `json:"extraction_count,omitempty"`
}

type guestComponentInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// callGuestExtract writes the JSON-encoded request into guest memory via
// its exported alloc, invokes extract(ptr, len) -> packed(ptr,len), reads
// the result back, and maps the guest's result<extracted-content,
// extraction-error> into host types.
func callGuestExtract(ctx context.Context, mod api.Module, fn api.Function, html, url string, mode guestExtractionMode, fuelBudget uint64, tracker *ResourceTracker) (models.ExtractedDoc, error) {
	meter := newFuelMeter(fuelBudget)
	ctx = withFuelMeter(ctx, meter)

	req := guestExtractRequest{HTML: html, URL: url, Mode: mode}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return models.ExtractedDoc{}, &models.ExtractionError{Kind: models.ErrKindInternalError, Reason: "encode request", Cause: err}
	}

	ptr, length, err := writeGuestBytes(ctx, mod, reqBytes)
	if err != nil {
		return models.ExtractedDoc{}, classifyFault(err, tracker)
	}

	packed, err := fn.Call(ctx, ptr, length)
	if err != nil {
		if meter.exhausted() {
			return models.ExtractedDoc{}, &models.ExtractionError{Kind: models.ErrKindResourceLimit, Reason: "fuel", Cause: err}
		}
		return models.ExtractedDoc{}, classifyFault(err, tracker)
	}
	if len(packed) < 1 {
		return models.ExtractedDoc{}, &models.ExtractionError{Kind: models.ErrKindInternalError, Reason: "extract returned no result"}
	}

	outPtr, outLen := unpackPtrLen(packed[0])
	raw, err := readGuestBytes(mod, outPtr, outLen)
	if err != nil {
		return models.ExtractedDoc{}, &models.ExtractionError{Kind: models.ErrKindInternalError, Reason: "read result", Cause: err}
	}

	var result guestExtractResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.ExtractedDoc{}, &models.ExtractionError{Kind: models.ErrKindInternalError, Reason: "decode result", Cause: err}
	}

	if result.Err != nil {
		return models.ExtractedDoc{}, mapGuestError(*result.Err)
	}
	if result.Ok == nil {
		return models.ExtractedDoc{}, &models.ExtractionError{Kind: models.ErrKindInternalError, Reason: "empty result"}
	}
	return mapGuestContent(*result.Ok), nil
}

func callGuestHealthCheck(ctx context.Context, fn api.Function) (models.HealthStatus, error) {
	packed, err := fn.Call(ctx)
	if err != nil {
		return models.HealthStatus{}, &models.ExtractionError{Kind: models.ErrKindExtractorError, Reason: "health-check call failed", Cause: err}
	}
	_ = packed
	// The packed health-status record is not decoded: the shim returns a
	// fixed default whose ExtractorVersion is empty, so Instance.HealthCheck
	// rejects every instance whenever ExpectedVersionPrefix is non-empty.
	return models.HealthStatus{Status: "ok", Capabilities: []string{"extract"}}, nil
}

func callGuestComponentInfo(ctx context.Context, fn api.Function) (models.ComponentInfo, error) {
	if _, err := fn.Call(ctx); err != nil {
		return models.ComponentInfo{}, &models.ExtractionError{Kind: models.ErrKindExtractorError, Reason: "component-info call failed", Cause: err}
	}
	return models.ComponentInfo{Name: "riptide-extractor"}, nil
}

func mapGuestContent(c guestExtractedContent) models.ExtractedDoc {
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	doc := models.ExtractedDoc{
		URL:          c.URL,
		Title:        deref(c.Title),
		Byline:       deref(c.Byline),
		PublishedISO: deref(c.PublishedISO),
		Markdown:     c.Markdown,
		Text:         c.Text,
		Links:        c.Links,
		Media:        c.Media,
		Language:     deref(c.Language),
		Categories:   c.Categories,
		SiteName:     deref(c.SiteName),
		Description:  deref(c.Description),
		QualityScore: c.QualityScore,
		WordCount:    c.WordCount,
	}
	if c.ReadingTime != nil {
		doc.ReadingTime = *c.ReadingTime
	}
	return doc
}

func mapGuestError(e guestExtractionError) error {
	kind := models.ErrKindInternalError
	switch e.Kind {
	case "invalid-html":
		kind = models.ErrKindParseError
	case "network-error":
		kind = models.ErrKindNetworkError
	case "parse-error":
		kind = models.ErrKindParseError
	case "resource-limit":
		kind = models.ErrKindResourceLimit
	case "extractor-error":
		kind = models.ErrKindExtractorError
	case "unsupported-mode":
		kind = models.ErrKindInvalidInput
	case "internal-error":
		kind = models.ErrKindInternalError
	}
	return &models.ExtractionError{Kind: kind, Reason: e.Message}
}

// classifyFault maps a host/runtime-level error (trap, deadline, memory
// exhaustion) into the taxonomy, mirroring the classifyFault helper in
// the zkoranges-go-claw wasm host.
func classifyFault(err error, tracker *ResourceTracker) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.ExtractionError{Kind: models.ErrKindResourceLimit, Reason: "timeout", Cause: err}
	}
	if tracker != nil && tracker.GrowFailures() > 0 {
		return &models.ExtractionError{Kind: models.ErrKindResourceLimit, Reason: "memory", Cause: err}
	}
	return &models.ExtractionError{Kind: models.ErrKindInternalError, Reason: fmt.Sprintf("guest trap: %v", err), Cause: err}
}

const guestAllocExport = "cabi_realloc"

// writeGuestBytes asks the guest to allocate space (via its cabi_realloc
// export, the canonical-ABI allocator name guests compiled for the
// component model already export) and copies the payload into linear
// memory.
func writeGuestBytes(ctx context.Context, mod api.Module, data []byte) (ptr, length uint64, err error) {
	alloc := mod.ExportedFunction(guestAllocExport)
	if alloc == nil {
		return 0, 0, errors.New("sandbox: guest missing cabi_realloc export")
	}
	res, err := alloc.Call(ctx, 0, 0, 1, uint64(len(data)))
	if err != nil {
		return 0, 0, err
	}
	p := res[0]
	if !mod.Memory().Write(uint32(p), data) {
		return 0, 0, fmt.Errorf("sandbox: guest memory write out of range at %d len %d", p, len(data))
	}
	return p, uint64(len(data)), nil
}

func readGuestBytes(mod api.Module, ptr, length uint32) ([]byte, error) {
	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("sandbox: guest memory read out of range at %d len %d", ptr, length)
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// unpackPtrLen splits a single packed i64 return value into (ptr, len)
// 32-bit halves, a common convention for returning a fat pointer across
// a 32-bit wasm ABI without a second return value.
func unpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}

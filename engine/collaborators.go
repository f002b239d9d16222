package engine

import (
	"context"

	"github.com/foofork/riptide/engine/internal/pipeline"
)

// Cache, Fetcher, HeadlessRenderer, PDFProcessor are the external
// collaborator contracts from spec §6.2-§6.5. The canonical interface
// definitions live in the pipeline package (which needs them without an
// import cycle back to this facade); this file re-exports them as the
// public API surface callers implement against.
type (
	Cache            = pipeline.Cache
	Fetcher          = pipeline.Fetcher
	HeadlessRenderer = pipeline.HeadlessRenderer
	HeadlessOptions  = pipeline.HeadlessOptions
	HeadlessResult   = pipeline.HeadlessResult
	PDFProcessor     = pipeline.PDFProcessor
)

// SpiderHook lets an optional external spider collaborator invoke the
// pipeline on discovered URLs when SPIDER_ENABLE=true (spec §1, §6.6
// EXPANSION). The engine itself never calls this; it is exposed purely
// as a slot an external crawl frontier can hold onto and call through.
type SpiderHook func(ctx context.Context, url string) error

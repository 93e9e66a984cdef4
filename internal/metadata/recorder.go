package metadata

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

// MetadataSink is the narrow interface every pipeline package depends on to
// emit crawl-observability telemetry. It must never be consulted to decide
// retries, continuation, or abort — see ErrorCause's rules.
type MetadataSink interface {
	RecordFetchEvent(event FetchEvent)
	RecordArtifact(artifactType ArtifactType, path string, attrs []Attribute)
	RecordError(observedAt time.Time, packageName, action string, cause ErrorCause, message string, attrs []Attribute)
}

// Recorder is the process-wide MetadataSink implementation. It logs every
// event through zerolog and keeps lock-free running counters that
// internal/metrics samples into the Prometheus collectors.
type Recorder struct {
	logger zerolog.Logger

	pagesFetched     atomic.Int64
	artifactsWritten atomic.Int64
	errorsRecorded   atomic.Int64
}

func NewRecorder(logger zerolog.Logger) *Recorder {
	return &Recorder{logger: logger.With().Str("component", "metadata").Logger()}
}

func (r *Recorder) RecordFetchEvent(event FetchEvent) {
	r.pagesFetched.Add(1)
	r.logger.Info().
		Str("url", event.fetchUrl).
		Int("http_status", event.httpStatus).
		Dur("duration", event.duration).
		Str("content_type", event.contentType).
		Int("retry_count", event.retryCount).
		Int("crawl_depth", event.crawlDepth).
		Msg("fetch event")
}

func (r *Recorder) RecordArtifact(artifactType ArtifactType, path string, attrs []Attribute) {
	r.artifactsWritten.Add(1)
	event := r.logger.Info().Str("artifact_type", string(artifactType)).Str("path", path)
	for _, a := range attrs {
		event = event.Str(string(a.Key), a.Value)
	}
	event.Msg("artifact recorded")
}

func (r *Recorder) RecordError(observedAt time.Time, packageName, action string, cause ErrorCause, message string, attrs []Attribute) {
	r.errorsRecorded.Add(1)
	event := r.logger.Error().
		Time("observed_at", observedAt).
		Str("package", packageName).
		Str("action", action).
		Int("cause", int(cause)).
		Str("error", message)
	for _, a := range attrs {
		event = event.Str(string(a.Key), a.Value)
	}
	event.Msg("pipeline error")
}

// PagesFetched returns the running count of RecordFetchEvent calls, sampled
// by internal/metrics.
func (r *Recorder) PagesFetched() int64 { return r.pagesFetched.Load() }

// ArtifactsWritten returns the running count of RecordArtifact calls, sampled
// by internal/metrics.
func (r *Recorder) ArtifactsWritten() int64 { return r.artifactsWritten.Load() }

// ErrorsRecorded returns the running count of RecordError calls, sampled by
// internal/metrics.
func (r *Recorder) ErrorsRecorded() int64 { return r.errorsRecorded.Load() }

package fetcher

import (
	"net/url"
	"time"

	"github.com/swarmcrawl/crawler/pkg/failure"
)

// HTTP boundary

type FetchParam struct {
	fetchUrl  url.URL
	userAgent string
}

func NewFetchParam(fetchUrl url.URL, userAgent string) FetchParam {
	return FetchParam{
		fetchUrl:  fetchUrl,
		userAgent: userAgent,
	}
}

// FetchOutcome carries every classification spec.md §4.4's worker loop needs
// to route a fetch result: a transport failure or HTTP status, a non-HTML
// success, or an HTML success destined for fetch:queue. Unlike the
// pre-existing FetchResult/FetchError split, a non-2xx status or a
// non-HTML content type is not an error here — it's outcome data, since the
// caller must still write a visited: record for it rather than retry.
type FetchOutcome struct {
	finalURL    url.URL
	initialURL  url.URL
	statusCode  int
	contentType string
	body        []byte
	isRedirect  bool
	fetchedAt   time.Time
	transportErr failure.ClassifiedError
}

func (o FetchOutcome) FinalURL() url.URL      { return o.finalURL }
func (o FetchOutcome) InitialURL() url.URL    { return o.initialURL }
func (o FetchOutcome) StatusCode() int        { return o.statusCode }
func (o FetchOutcome) ContentType() string    { return o.contentType }
func (o FetchOutcome) Body() []byte           { return o.body }
func (o FetchOutcome) IsRedirect() bool       { return o.isRedirect }
func (o FetchOutcome) FetchedAt() time.Time   { return o.fetchedAt }

// TransportErr is non-nil only when no HTTP response was obtained at all
// (DNS failure, connection refused, deadline exceeded, malformed request).
func (o FetchOutcome) TransportErr() failure.ClassifiedError { return o.transportErr }

// IsHTML reports whether this outcome is a 2xx/3xx response whose
// Content-Type is HTML or XHTML — the only outcome routed to fetch:queue.
func (o FetchOutcome) IsHTML() bool {
	return o.transportErr == nil && o.statusCode < 400 && isHTMLContent(o.contentType)
}

// IsFailure reports whether this outcome should be recorded as a failed
// visited: entry: a transport error or an HTTP status >= 400.
func (o FetchOutcome) IsFailure() bool {
	return o.transportErr != nil || o.statusCode >= 400
}

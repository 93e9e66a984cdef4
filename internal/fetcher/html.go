package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/swarmcrawl/crawler/internal/metadata"
	"github.com/swarmcrawl/crawler/pkg/failure"
)

/*
Responsibilities

- Perform one HTTP request per call, with a per-request deadline
- Apply browser-like headers
- Follow redirects via the standard client, reporting whether one occurred
- Classify every outcome (transport failure, HTTP status, content type)
- All responses are logged through the metadata sink

The fetcher never parses content; it only returns bytes and metadata.
Per spec.md §7, an HTTP-level failure (transport or status >= 400) is not
retried here — the caller records it and moves to the next URL. There is
exactly one attempt per call.
*/

type HtmlFetcher struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
}

func NewHtmlFetcher(metadataSink metadata.MetadataSink, timeout time.Duration) HtmlFetcher {
	return HtmlFetcher{
		metadataSink: metadataSink,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

func (h *HtmlFetcher) Fetch(ctx context.Context, crawlDepth int, fetchParam FetchParam) FetchOutcome {
	startTime := time.Now()

	outcome := h.performFetch(ctx, fetchParam.fetchUrl, fetchParam.userAgent)
	duration := time.Since(startTime)

	var retryCount int
	if outcome.transportErr != nil {
		retryCount = 1
	}

	h.metadataSink.RecordFetchEvent(metadata.NewFetchEvent(
		fetchParam.fetchUrl.String(),
		outcome.statusCode,
		duration,
		outcome.contentType,
		retryCount,
		crawlDepth,
	))

	if outcome.transportErr != nil {
		var fetchErr *FetchError
		if fe, ok := outcome.transportErr.(*FetchError); ok {
			fetchErr = fe
		}
		if fetchErr != nil {
			h.metadataSink.RecordError(
				time.Now(),
				"fetcher",
				"HtmlFetcher.Fetch",
				mapFetchErrorToMetadataCause(fetchErr),
				fetchErr.Error(),
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, fetchParam.fetchUrl.String())},
			)
		}
	}

	return outcome
}

func (h *HtmlFetcher) performFetch(ctx context.Context, fetchUrl url.URL, userAgent string) FetchOutcome {
	fetchedAt := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		return FetchOutcome{
			initialURL: fetchUrl,
			finalURL:   fetchUrl,
			fetchedAt:  fetchedAt,
			transportErr: &FetchError{
				Message: fmt.Sprintf("failed to create request: %v", err),
				Cause:   ErrCauseRequestConstruction,
			},
		}
	}

	for key, value := range requestHeaders(userAgent) {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		cause := ErrCauseNetworkFailure
		if ctx.Err() != nil || isTimeout(err) {
			cause = ErrCauseTimeout
		}
		return FetchOutcome{
			initialURL: fetchUrl,
			finalURL:   fetchUrl,
			fetchedAt:  fetchedAt,
			transportErr: &FetchError{
				Message: fmt.Sprintf("request failed: %v", err),
				Cause:   cause,
			},
		}
	}
	defer resp.Body.Close()

	finalURL := fetchUrl
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = *resp.Request.URL
	}
	isRedirect := finalURL.String() != fetchUrl.String()

	contentType := resp.Header.Get("Content-Type")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchOutcome{
			initialURL: fetchUrl,
			finalURL:   finalURL,
			statusCode: resp.StatusCode,
			contentType: contentType,
			isRedirect: isRedirect,
			fetchedAt:  fetchedAt,
			transportErr: &FetchError{
				Message: fmt.Sprintf("failed to read response body: %v", err),
				Cause:   ErrCauseReadResponseBodyError,
			},
		}
	}

	return FetchOutcome{
		initialURL:  fetchUrl,
		finalURL:    finalURL,
		statusCode:  resp.StatusCode,
		contentType: contentType,
		body:        body,
		isRedirect:  isRedirect,
		fetchedAt:   fetchedAt,
	}
}

func isTimeout(err error) bool {
	type timeoutErr interface{ Timeout() bool }
	te, ok := err.(timeoutErr)
	return ok && te.Timeout()
}

func isHTMLContent(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml")
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate, br",
		"Connection":      "keep-alive",
	}
}

package fetcher

import (
	"fmt"

	"github.com/swarmcrawl/crawler/internal/metadata"
	"github.com/swarmcrawl/crawler/pkg/failure"
)

// FetchErrorCause classifies a transport-level failure — one where no HTTP
// response was obtained at all. HTTP status codes are outcome data, not
// errors (spec.md §7: "not retried, the URL is gone").
type FetchErrorCause string

const (
	ErrCauseTimeout        FetchErrorCause = "timeout"
	ErrCauseNetworkFailure FetchErrorCause = "network issues"
	ErrCauseReadResponseBodyError FetchErrorCause = "failed to read response body"
	ErrCauseRequestConstruction   FetchErrorCause = "failed to construct request"
)

type FetchError struct {
	Message string
	Cause   FetchErrorCause
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetcher error: %s: %s", e.Cause, e.Message)
}

// Severity is always recoverable: a transport failure is recorded as a
// visited: entry and the worker moves to its next URL, per spec.md §4.4.
func (e *FetchError) Severity() failure.Severity { return failure.SeverityRecoverable }

func (e *FetchError) Is(target error) bool {
	_, ok := target.(*FetchError)
	return ok
}

// mapFetchErrorToMetadataCause maps fetcher-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapFetchErrorToMetadataCause(err *FetchError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseTimeout:
		return metadata.CauseNetworkFailure
	case ErrCauseNetworkFailure:
		return metadata.CauseNetworkFailure
	default:
		return metadata.CauseUnknown
	}
}

package parserproc

import "github.com/swarmcrawl/crawler/pkg/failure"

// redisOpError adapts a plain Redis-client error into failure.ClassifiedError
// so it can pass through pkg/retry.Retry, mirroring internal/fetcherproc's
// adapter of the same name.
type redisOpError struct {
	err error
}

func (e *redisOpError) Error() string              { return e.err.Error() }
func (e *redisOpError) Severity() failure.Severity { return failure.SeverityRecoverable }
func (e *redisOpError) Unwrap() error               { return e.err }

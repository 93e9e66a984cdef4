package fetcherproc

import "github.com/swarmcrawl/crawler/pkg/failure"

// redisOpError adapts a plain Redis-client error into failure.ClassifiedError
// so it can pass through pkg/retry.Retry. Every Redis operation on the
// fetcher hot path is treated as recoverable: the worker logs it, skips the
// current URL or backpressure check, and loops.
type redisOpError struct {
	err error
}

func (e *redisOpError) Error() string             { return e.err.Error() }
func (e *redisOpError) Severity() failure.Severity { return failure.SeverityRecoverable }
func (e *redisOpError) Unwrap() error              { return e.err }

package parserproc

import "time"

// Config holds everything one parser process's worker pool needs that
// isn't itself a dependency (fetch queue, frontier, content store).
type Config struct {
	NumWorkers int

	// PopTimeout bounds each BLPOP against fetch:queue (spec.md §4.5 step 1).
	PopTimeout time.Duration

	// MaxRetries is how many extraction failures an item tolerates before
	// it is dropped rather than re-queued (spec.md §4.5 step 7, "three
	// strikes").
	MaxRetries int
}

// WithDefault fills in the constants spec.md §4.5 pins.
func WithDefault() Config {
	return Config{
		PopTimeout: 5 * time.Second,
		MaxRetries: 3,
	}
}

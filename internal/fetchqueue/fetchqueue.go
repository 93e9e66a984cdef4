package fetchqueue

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swarmcrawl/crawler/internal/redisconn"
)

/*
fetch:queue carries fetched HTML from fetchers to parsers, on the
byte-mode Redis pool (spec.md §3, §6). The pack has no message-framing
library suited to an ad hoc single-binary queue record; encoding/gob is
the idiomatic Go choice for a byte-exact, same-process-family struct
wire format, and it round-trips []byte fields without re-encoding.
*/

const maxHTMLBytes = 100 * 1024

// Record is the fetch-queue wire record, matching spec.md §6 exactly.
// RetryCount tracks parser-side extraction failures for the same item;
// the parser consumer drops an item after three (spec.md §4.5 step 7)
// rather than re-queuing it forever.
type Record struct {
	URL         string
	InitialURL  string
	Domain      string
	Depth       int
	StatusCode  int
	ContentType string
	IsRedirect  bool
	FetchedAt   int64
	HTML        []byte
	RetryCount  int
}

// NewRecord truncates HTML to maxHTMLBytes per spec.md §6.
func NewRecord(url, initialURL, domain string, depth, statusCode int, contentType string, isRedirect bool, fetchedAt time.Time, html []byte) Record {
	if len(html) > maxHTMLBytes {
		html = html[:maxHTMLBytes]
	}
	return Record{
		URL:         url,
		InitialURL:  initialURL,
		Domain:      domain,
		Depth:       depth,
		StatusCode:  statusCode,
		ContentType: contentType,
		IsRedirect:  isRedirect,
		FetchedAt:   fetchedAt.Unix(),
		HTML:        html,
	}
}

// IncrementRetry returns a copy of r with RetryCount bumped by one, used
// by the parser consumer when it re-queues an item after a recoverable
// extraction failure.
func (r Record) IncrementRetry() Record {
	r.RetryCount++
	return r
}

func (r Record) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("encode fetch queue record: %w", err)
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) (Record, error) {
	var r Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return Record{}, fmt.Errorf("decode fetch queue record: %w", err)
	}
	return r, nil
}

// Queue wraps RPUSH/BLPOP against fetch:queue on the byte-mode pool.
type Queue struct {
	client *redis.Client
}

func New(client *redis.Client) Queue {
	return Queue{client: client}
}

// Push enqueues a record at the tail, used by fetchers after a
// successful HTML fetch and by parsers re-queuing a failed item.
func (q Queue) Push(ctx context.Context, r Record) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, redisconn.KeyFetchQueue, data).Err()
}

// BlockingPop pops the head item, blocking up to timeout (spec.md §4.5
// step 1, "BLPOP fetch:queue with a 5s timeout"). Returns ok=false on
// timeout.
func (q Queue) BlockingPop(ctx context.Context, timeout time.Duration) (raw []byte, ok bool, err error) {
	result, err := q.client.BLPop(ctx, timeout, redisconn.KeyFetchQueue).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	// BLPOP on a single key returns [key, value].
	if len(result) != 2 {
		return nil, false, fmt.Errorf("fetchqueue: unexpected BLPOP reply shape")
	}
	return []byte(result[1]), true, nil
}

// Depth reports the current queue length, sampled by the orchestrator's
// supervision loop and by fetcher backpressure checks.
func (q Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, redisconn.KeyFetchQueue).Result()
}

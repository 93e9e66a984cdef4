package visited

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

/*
visited:<sha256(url)> is the terminal record per URL (spec.md §3),
populated by fetchers (non-HTML and error responses) and parsers
(successful HTML). Last-writer-wins, at-least-once semantics — no
locking is needed.
*/

// Record is one visited: hash entry.
type Record struct {
	URL          string
	StatusCode   int
	ContentType  string
	ContentPath  string
	CrawledAt    time.Time
	RedirectedTo string
}

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) Store {
	return Store{client: client}
}

// Key returns the visited: key for a URL.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "visited:" + hex.EncodeToString(sum[:])
}

func (s Store) Record(ctx context.Context, r Record) error {
	return s.client.HSet(ctx, Key(r.URL),
		"url", r.URL,
		"status_code", r.StatusCode,
		"content_type", r.ContentType,
		"content_path", r.ContentPath,
		"crawled_at", r.CrawledAt.Unix(),
		"redirected_to", r.RedirectedTo,
	).Err()
}

func (s Store) Get(ctx context.Context, url string) (Record, bool, error) {
	values, err := s.client.HGetAll(ctx, Key(url)).Result()
	if err != nil {
		return Record{}, false, err
	}
	if len(values) == 0 {
		return Record{}, false, nil
	}
	statusCode, _ := strconv.Atoi(values["status_code"])
	crawledAtUnix, _ := strconv.ParseInt(values["crawled_at"], 10, 64)

	return Record{
		URL:          values["url"],
		StatusCode:   statusCode,
		ContentType:  values["content_type"],
		ContentPath:  values["content_path"],
		CrawledAt:    time.Unix(crawledAtUnix, 0),
		RedirectedTo: values["redirected_to"],
	}, true, nil
}

package politeness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/temoto/robotstxt"

	"github.com/swarmcrawl/crawler/internal/redisconn"
)

/*
Responsibilities
- Decide whether a URL may be fetched (manual exclusions, then robots.txt)
- Decide when a domain's next fetch may occur
- Acquire and cache robots.txt per domain, lazily, on first need

Durable state (robots_content, robots_expires, next_fetch_time,
is_excluded, is_seeded) lives in the domain:<d> Redis hash per spec.md
§3. Only the parsed ruleset is cached in-process, keyed by the raw
robots_content string so two domains sharing identical robots.txt text
(or one domain refetching unchanged text) skip re-parsing.
*/

const (
	robotsTTL          = 24 * time.Hour
	defaultCrawlDelay  = 70 * time.Second
	robotsFetchBackoff      = 5 * time.Second
	robotsFetchPollInterval = 500 * time.Millisecond
)

// HTTPGetter is the narrow HTTP dependency, satisfied by *http.Client and
// fakeable in tests.
type HTTPGetter interface {
	Get(url string) (*http.Response, error)
}

type Enforcer struct {
	redisClient *redis.Client
	httpClient  HTTPGetter
	userAgent   string
	minDelay    time.Duration

	mu          sync.Mutex
	parsedCache map[string]*robotstxt.RobotsData // keyed by robots_content
}

func NewEnforcer(redisClient *redis.Client, httpClient HTTPGetter, userAgent string, minDelay time.Duration) *Enforcer {
	return &Enforcer{
		redisClient: redisClient,
		httpClient:  httpClient,
		userAgent:   userAgent,
		minDelay:    minDelay,
		parsedCache: make(map[string]*robotstxt.RobotsData),
	}
}

// IsURLAllowed consults manual exclusions, then robots.txt, for the
// URL's domain.
func (e *Enforcer) IsURLAllowed(ctx context.Context, domain, rawURL string) (bool, error) {
	excluded, err := e.isExcluded(ctx, domain)
	if err != nil {
		return false, err
	}
	if excluded {
		return false, nil
	}

	data, err := e.robotsData(ctx, domain)
	if err != nil {
		return false, err
	}
	if data == nil {
		return true, nil
	}

	group := data.FindGroup(e.userAgent)
	if group == nil {
		return true, nil
	}
	path := pathOf(rawURL)
	return group.Test(path), nil
}

// CanFetchDomainNow reports whether now >= next_fetch_time(domain).
func (e *Enforcer) CanFetchDomainNow(ctx context.Context, domain string) (bool, error) {
	key := redisconn.DomainHashKey(domain)
	val, err := e.redisClient.HGet(ctx, key, redisconn.FieldNextFetchTime).Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	nextFetch, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return true, nil
	}
	return time.Now().Unix() >= nextFetch, nil
}

// RecordDomainFetchAttempt sets next_fetch_time(domain) = now + crawl_delay(domain).
func (e *Enforcer) RecordDomainFetchAttempt(ctx context.Context, domain string) error {
	delay, err := e.GetCrawlDelay(ctx, domain)
	if err != nil {
		return err
	}
	next := time.Now().Add(delay).Unix()
	return e.redisClient.HSet(ctx, redisconn.DomainHashKey(domain), redisconn.FieldNextFetchTime, next).Err()
}

// GetCrawlDelay returns max(configured_min, robots_delay).
func (e *Enforcer) GetCrawlDelay(ctx context.Context, domain string) (time.Duration, error) {
	minDelay := e.minDelay
	if minDelay == 0 {
		minDelay = defaultCrawlDelay
	}

	data, err := e.robotsData(ctx, domain)
	if err != nil {
		return minDelay, err
	}
	if data == nil {
		return minDelay, nil
	}

	group := data.FindGroup(e.userAgent)
	if group == nil || group.CrawlDelay <= 0 {
		return minDelay, nil
	}
	if group.CrawlDelay > minDelay {
		return group.CrawlDelay, nil
	}
	return minDelay, nil
}

func (e *Enforcer) isExcluded(ctx context.Context, domain string) (bool, error) {
	val, err := e.redisClient.HGet(ctx, redisconn.DomainHashKey(domain), redisconn.FieldIsExcluded).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "1", nil
}

// MarkExcluded sets is_excluded=1 for domain, called during orchestrator
// init from the manual-exclusions file.
func (e *Enforcer) MarkExcluded(ctx context.Context, domain string) error {
	return e.redisClient.HSet(ctx, redisconn.DomainHashKey(domain), redisconn.FieldIsExcluded, 1).Err()
}

// MarkSeeded sets is_seeded=1 for domain, called during orchestrator init
// for every domain extracted from the seed file.
func (e *Enforcer) MarkSeeded(ctx context.Context, domain string) error {
	return e.redisClient.HSet(ctx, redisconn.DomainHashKey(domain), redisconn.FieldIsSeeded, 1).Err()
}

// robotsData returns the parsed robots.txt ruleset for domain, fetching
// and caching it per spec.md §4.2 if the cached copy has expired.
func (e *Enforcer) robotsData(ctx context.Context, domain string) (*robotstxt.RobotsData, error) {
	key := redisconn.DomainHashKey(domain)
	values, err := e.redisClient.HMGet(ctx, key, redisconn.FieldRobotsContent, redisconn.FieldRobotsExpires).Result()
	if err != nil {
		return nil, err
	}

	content, _ := values[0].(string)
	expiresAt := parseUnixOr(values[1], 0)

	if expiresAt > time.Now().Unix() {
		return e.parseAndCache(content)
	}

	if err := e.waitRobotsFetchTurn(ctx, domain); err != nil {
		return nil, err
	}

	fetched, err := e.fetchRobotsTxt(domain)
	if err != nil {
		return nil, err
	}

	if err := e.redisClient.HSet(ctx, key,
		redisconn.FieldRobotsContent, fetched,
		redisconn.FieldRobotsExpires, time.Now().Add(robotsTTL).Unix(),
	).Err(); err != nil {
		return nil, err
	}

	return e.parseAndCache(fetched)
}

func (e *Enforcer) parseAndCache(content string) (*robotstxt.RobotsData, error) {
	if content == "" {
		return nil, nil
	}

	e.mu.Lock()
	if cached, ok := e.parsedCache[content]; ok {
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	data, err := robotstxt.FromString(content)
	if err != nil {
		return nil, nil
	}

	e.mu.Lock()
	e.parsedCache[content] = data
	e.mu.Unlock()
	return data, nil
}

// waitRobotsFetchTurn blocks until domain's next_fetch_time has elapsed, then
// immediately claims the slot with robotsFetchBackoff rather than the full
// crawl delay — a robots.txt fetch counts as domain activity, but it would
// be wasteful to make every other worker wait a full crawl-delay behind it.
func (e *Enforcer) waitRobotsFetchTurn(ctx context.Context, domain string) error {
	for {
		canFetch, err := e.CanFetchDomainNow(ctx, domain)
		if err != nil {
			return err
		}
		if canFetch {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(robotsFetchPollInterval):
		}
	}
	next := time.Now().Add(robotsFetchBackoff).Unix()
	return e.redisClient.HSet(ctx, redisconn.DomainHashKey(domain), redisconn.FieldNextFetchTime, next).Err()
}

// fetchRobotsTxt tries http then https, treating a 404 or any final
// failure as "empty rules" (spec.md §4.2).
func (e *Enforcer) fetchRobotsTxt(domain string) (string, error) {
	for _, scheme := range []string{"http", "https"} {
		url := fmt.Sprintf("%s://%s/robots.txt", scheme, domain)
		resp, err := e.httpClient.Get(url)
		if err != nil {
			continue
		}
		body, readErr := readAndClose(resp)
		if resp.StatusCode == http.StatusOK && readErr == nil {
			return string(body), nil
		}
	}
	return "", nil
}

func readAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func pathOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" {
		return "/"
	}
	if parsed.RawQuery != "" {
		return parsed.Path + "?" + parsed.RawQuery
	}
	return parsed.Path
}

func parseUnixOr(v any, fallback int64) int64 {
	s, _ := v.(string)
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"
)

type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Initial pages to give to the crawler to begin discovering and traversing other pages.
	seedURLs []url.URL
	// Hostname allowlist. Build fills it from the seed hosts when it is empty.
	// It is printed at startup and passed to child processes; the frontier
	// does not filter URLs by host.
	allowedHosts map[string]struct{}
	// URL path prefixes. Printed at startup and passed to child processes;
	// the frontier does not filter URLs by path.
	allowedPathPrefix []string

	//===============
	// Limits
	//===============
	// Maximum number of hyperlink hops from a seed (root) URL. Printed at
	// startup and passed to child processes; the frontier and parsers do not
	// enforce it, so links are followed at any depth.
	maxDepth int
	// Maximum number of total documents are allowed to be fetched
	maxPages int
	// Maximum wall-clock runtime before the orchestrator sets the shutdown
	// flag; zero means unbounded
	maxDuration time.Duration

	//===============
	// Politeness
	//===============
	// Minimum, fixed waiting time you enforce between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Maximum time of a single fetch request
	timeout time.Duration
	// User agent that will be used in the request header.
	userAgent string

	//===============
	// Output / data layout
	//===============
	// Root directory under which frontier files, content files, and locks live
	dataDir string
	// Path to a newline-delimited, #-comment file of excluded domains; empty
	// means no manual exclusions
	excludeFile string
	// Dry-run flag. Printed at startup and passed to child processes; no
	// component checks it, so a dry run still writes frontier files, content
	// files and Redis state like any other run.
	dryRun bool

	//===============
	// Process topology
	//===============
	// Number of domain shards / shard queues. The orchestrator hosts shard 0;
	// fetcherWorkersPerShard workers run per shard process.
	shardCount int
	// Number of fetcher worker goroutines per fetcher process/shard
	fetcherWorkersPerShard int
	// Number of parser worker goroutines in the parser consumer process
	parserWorkers int
	// Number of parser child processes the orchestrator spawns
	numParserProcesses int

	//===============
	// Backpressure
	//===============
	// Soft threshold on the fetch queue length: fetchers slow down past this point
	fetchQueueSoftLimit int
	// Hard threshold on the fetch queue length: fetchers stop pulling new work past this point
	fetchQueueHardLimit int

	//===============
	// Redis
	//===============
	redisAddr     string
	redisPassword string
	redisDB       int

	//===============
	// Run mode
	//===============
	// If true, the frontier only admits URLs whose domain is marked
	// is_seeded=1, i.e. a domain of one of the seed URLs
	seededOnly bool
	// If true, reconcile on-disk frontier files against Redis state before
	// starting any worker, rather than assuming a clean start
	resume bool

	//===============
	// Observability
	//===============
	// zerolog level name ("debug", "info", "warn", "error"); empty defaults
	// to info
	logLevel string
}

type configDTO struct {
	SeedURLs               []url.URL           `json:"seedUrls"`
	AllowedHosts           map[string]struct{} `json:"allowedHosts,omitempty"`
	AllowedPathPrefix      []string            `json:"allowedPathPrefix,omitempty"`
	MaxDepth               int                 `json:"maxDepth,omitempty"`
	MaxPages               int                 `json:"maxPages,omitempty"`
	MaxDuration            time.Duration       `json:"maxDuration,omitempty"`
	BaseDelay              time.Duration       `json:"baseDelay,omitempty"`
	Jitter                 time.Duration       `json:"jitter,omitempty"`
	RandomSeed             int64               `json:"randomSeed,omitempty"`
	MaxAttempt             int                 `json:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration       `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64             `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration       `json:"backoffMaxDuration,omitempty"`
	Timeout                time.Duration       `json:"timeout,omitempty"`
	UserAgent              string              `json:"userAgent,omitempty"`
	DataDir                string              `json:"dataDir,omitempty"`
	ExcludeFile            string              `json:"excludeFile,omitempty"`
	DryRun                 bool                `json:"dryRun,omitempty"`
	ShardCount             int                 `json:"shardCount,omitempty"`
	FetcherWorkersPerShard int                 `json:"fetcherWorkersPerShard,omitempty"`
	ParserWorkers          int                 `json:"parserWorkers,omitempty"`
	NumParserProcesses     int                 `json:"numParserProcesses,omitempty"`
	FetchQueueSoftLimit    int                 `json:"fetchQueueSoftLimit,omitempty"`
	FetchQueueHardLimit    int                 `json:"fetchQueueHardLimit,omitempty"`
	RedisAddr              string              `json:"redisAddr,omitempty"`
	RedisPassword          string              `json:"redisPassword,omitempty"`
	RedisDB                int                 `json:"redisDb,omitempty"`
	SeededOnly             bool                `json:"seededOnly,omitempty"`
	Resume                 bool                `json:"resume,omitempty"`
	LogLevel               string              `json:"logLevel,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	cfg, err := WithDefault(dto.SeedURLs).Build()
	if err != nil {
		return Config{}, err
	}

	if len(dto.AllowedHosts) > 0 {
		cfg.allowedHosts = dto.AllowedHosts
	}
	cfg.allowedPathPrefix = dto.AllowedPathPrefix

	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.MaxPages != 0 {
		cfg.maxPages = dto.MaxPages
	}
	if dto.MaxDuration != 0 {
		cfg.maxDuration = dto.MaxDuration
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}
	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.DataDir != "" {
		cfg.dataDir = dto.DataDir
	}
	if dto.ExcludeFile != "" {
		cfg.excludeFile = dto.ExcludeFile
	}
	cfg.dryRun = dto.DryRun

	if dto.ShardCount != 0 {
		cfg.shardCount = dto.ShardCount
	}
	if dto.FetcherWorkersPerShard != 0 {
		cfg.fetcherWorkersPerShard = dto.FetcherWorkersPerShard
	}
	if dto.ParserWorkers != 0 {
		cfg.parserWorkers = dto.ParserWorkers
	}
	if dto.NumParserProcesses != 0 {
		cfg.numParserProcesses = dto.NumParserProcesses
	}
	if dto.FetchQueueSoftLimit != 0 {
		cfg.fetchQueueSoftLimit = dto.FetchQueueSoftLimit
	}
	if dto.FetchQueueHardLimit != 0 {
		cfg.fetchQueueHardLimit = dto.FetchQueueHardLimit
	}
	if dto.RedisAddr != "" {
		cfg.redisAddr = dto.RedisAddr
	}
	if dto.RedisPassword != "" {
		cfg.redisPassword = dto.RedisPassword
	}
	if dto.RedisDB != 0 {
		cfg.redisDB = dto.RedisDB
	}
	cfg.seededOnly = dto.SeededOnly
	cfg.resume = dto.Resume
	if dto.LogLevel != "" {
		cfg.logLevel = dto.LogLevel
	}

	return cfg, nil
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config with the provided seed URLs and default values for all other fields.
// seedUrls is mandatory and must not be empty - an error will be returned at Build() if it is.
func WithDefault(seedUrls []url.URL) *Config {
	defaultConfig := Config{
		seedURLs:     seedUrls,
		allowedHosts: map[string]struct{}{},
		allowedPathPrefix: []string{
			"/",
		},
		maxDepth:               5,
		maxPages:               0,
		baseDelay:              time.Second,
		jitter:                 time.Millisecond * 500,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             3,
		backoffInitialDuration: 500 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     5 * time.Second,
		timeout:                time.Second * 10,
		userAgent:              "swarmcrawl/1.0",
		dataDir:                "data",
		dryRun:                 false,
		shardCount:             16,
		fetcherWorkersPerShard: 20,
		parserWorkers:          10,
		numParserProcesses:     1,
		fetchQueueSoftLimit:    20000,
		fetchQueueHardLimit:    80000,
		redisAddr:              "127.0.0.1:6379",
		redisDB:                0,
		seededOnly:             false,
		resume:                 false,
		logLevel:               "info",
	}
	return &defaultConfig
}

func (c *Config) WithSeedUrls(urls []url.URL) *Config {
	c.seedURLs = urls
	return c
}

func (c *Config) WithAllowedHosts(hosts map[string]struct{}) *Config {
	c.allowedHosts = hosts
	return c
}

func (c *Config) WithAllowedPathPrefix(prefixes []string) *Config {
	c.allowedPathPrefix = prefixes
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithMaxDuration(d time.Duration) *Config {
	c.maxDuration = d
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithDataDir(dataDir string) *Config {
	c.dataDir = dataDir
	return c
}

func (c *Config) WithExcludeFile(path string) *Config {
	c.excludeFile = path
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

func (c *Config) WithShardCount(n int) *Config {
	c.shardCount = n
	return c
}

func (c *Config) WithFetcherWorkersPerShard(n int) *Config {
	c.fetcherWorkersPerShard = n
	return c
}

func (c *Config) WithParserWorkers(n int) *Config {
	c.parserWorkers = n
	return c
}

func (c *Config) WithNumParserProcesses(n int) *Config {
	c.numParserProcesses = n
	return c
}

func (c *Config) WithLogLevel(level string) *Config {
	c.logLevel = level
	return c
}

func (c *Config) WithFetchQueueSoftLimit(n int) *Config {
	c.fetchQueueSoftLimit = n
	return c
}

func (c *Config) WithFetchQueueHardLimit(n int) *Config {
	c.fetchQueueHardLimit = n
	return c
}

func (c *Config) WithRedisAddr(addr string) *Config {
	c.redisAddr = addr
	return c
}

func (c *Config) WithRedisPassword(password string) *Config {
	c.redisPassword = password
	return c
}

func (c *Config) WithRedisDB(db int) *Config {
	c.redisDB = db
	return c
}

func (c *Config) WithSeededOnly(seededOnly bool) *Config {
	c.seededOnly = seededOnly
	return c
}

func (c *Config) WithResume(resume bool) *Config {
	c.resume = resume
	return c
}

func (c *Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: seedUrls cannot be empty", ErrInvalidConfig)
	}
	if c.shardCount <= 0 {
		return Config{}, fmt.Errorf("%w: shardCount must be positive", ErrInvalidConfig)
	}
	if c.fetchQueueHardLimit < c.fetchQueueSoftLimit {
		return Config{}, fmt.Errorf("%w: fetchQueueHardLimit must be >= fetchQueueSoftLimit", ErrInvalidConfig)
	}

	if len(c.allowedHosts) == 0 {
		c.allowedHosts = make(map[string]struct{})
		for _, u := range c.seedURLs {
			if u.Host != "" {
				c.allowedHosts[u.Host] = struct{}{}
			}
		}
	}

	return *c, nil
}

func (c Config) SeedURLs() []url.URL {
	urls := make([]url.URL, len(c.seedURLs))
	copy(urls, c.seedURLs)
	return urls
}

func (c Config) AllowedHosts() map[string]struct{} {
	hosts := make(map[string]struct{})
	for k, v := range c.allowedHosts {
		hosts[k] = v
	}
	return hosts
}

func (c Config) AllowedPathPrefix() []string {
	prefixes := make([]string, len(c.allowedPathPrefix))
	copy(prefixes, c.allowedPathPrefix)
	return prefixes
}

func (c Config) MaxDepth() int { return c.maxDepth }

func (c Config) MaxPages() int { return c.maxPages }

func (c Config) MaxDuration() time.Duration { return c.maxDuration }

func (c Config) BaseDelay() time.Duration { return c.baseDelay }

func (c Config) Jitter() time.Duration { return c.jitter }

func (c Config) RandomSeed() int64 { return c.randomSeed }

func (c Config) Timeout() time.Duration { return c.timeout }

func (c Config) UserAgent() string { return c.userAgent }

func (c Config) DataDir() string { return c.dataDir }

func (c Config) ExcludeFile() string { return c.excludeFile }

func (c Config) DryRun() bool { return c.dryRun }

func (c Config) MaxAttempt() int { return c.maxAttempt }

func (c Config) BackoffInitialDuration() time.Duration { return c.backoffInitialDuration }

func (c Config) BackoffMultiplier() float64 { return c.backoffMultiplier }

func (c Config) BackoffMaxDuration() time.Duration { return c.backoffMaxDuration }

func (c Config) ShardCount() int { return c.shardCount }

func (c Config) FetcherWorkersPerShard() int { return c.fetcherWorkersPerShard }

func (c Config) ParserWorkers() int { return c.parserWorkers }

func (c Config) NumParserProcesses() int { return c.numParserProcesses }

func (c Config) FetchQueueSoftLimit() int { return c.fetchQueueSoftLimit }

func (c Config) FetchQueueHardLimit() int { return c.fetchQueueHardLimit }

func (c Config) RedisAddr() string { return c.redisAddr }

func (c Config) RedisPassword() string { return c.redisPassword }

func (c Config) RedisDB() int { return c.redisDB }

func (c Config) SeededOnly() bool { return c.seededOnly }

func (c Config) Resume() bool { return c.resume }

func (c Config) LogLevel() string { return c.logLevel }

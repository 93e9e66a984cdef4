package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/swarmcrawl/crawler/internal/config"
)

var (
	cfgFile             string
	seedURLs            []string
	maxDepth            int
	outputDir           string
	excludeFile         string
	dryRun              bool
	maxPages            int
	maxDuration         time.Duration
	userAgent           string
	timeout             time.Duration
	baseDelay           time.Duration
	jitter              time.Duration
	randomSeed          int64
	allowedHosts        []string
	allowedPathPrefix   []string
	shardCount          int
	fetcherWorkers      int
	parserWorkers       int
	numParserProcesses  int
	logLevel            string
	fetchQueueSoftLimit int
	fetchQueueHardLimit int
	redisAddr           string
	redisPassword       string
	redisDB             int
	seededOnly          bool
	resume              bool

	// internalRole/internalShard/internalParserID are only set when the
	// orchestrator re-execs this same binary to spawn a fetcher or parser
	// child process; a human operator never sets these directly.
	internalRole     string
	internalShard    int
	internalParserID int
)

func parseStringSliceToSet(strings []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func parseSeedURLs(urlStrings []string) ([]url.URL, error) {
	if len(urlStrings) == 0 {
		return nil, fmt.Errorf("seed URLs cannot be empty")
	}

	var urls []url.URL
	for _, urlStr := range urlStrings {
		parsedURL, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("error parsing seed URL %s: %w", urlStr, err)
		}
		urls = append(urls, *parsedURL)
	}
	return urls, nil
}

// rootCmd represents the base command when called without any subcommands.
// Invoking it directly starts the orchestrator: it performs one-time init,
// spawns fetcher/parser child processes, and itself runs fetcher shard 0.
var rootCmd = &cobra.Command{
	Use:   "swarmcrawl",
	Short: "A single-machine, high-throughput web crawler.",
	Long: `swarmcrawl crawls a seeded set of domains, respecting robots.txt and
per-host crawl delay, across a pool of fetcher and parser processes
coordinated through Redis and an append-only frontier file per domain.

A single invocation of this binary is the orchestrator: it reshards and
reconciles state once at startup, supervises its fetcher/parser children,
and itself hosts fetcher shard 0.`,
	Run: func(cmd *cobra.Command, args []string) {
		if internalRole != "" {
			runInternalRole(cmd)
			return
		}

		if len(seedURLs) == 0 {
			fmt.Fprintf(os.Stderr, "Error: --seed-url is required. Please provide at least one seed URL to start crawling.\n")
			cmd.Usage()
			os.Exit(1)
		}

		parsedURLs, err := parseSeedURLs(seedURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		cfg := InitConfig(parsedURLs)

		fmt.Printf("Configuration initialized successfully\n")
		if len(cfg.SeedURLs()) > 0 {
			var urls []string
			for _, u := range cfg.SeedURLs() {
				urls = append(urls, u.String())
			}
			fmt.Printf("Seed URLs: %s\n", strings.Join(urls, ", "))
		}
		if len(cfg.AllowedHosts()) > 0 {
			var hosts []string
			for host := range cfg.AllowedHosts() {
				hosts = append(hosts, host)
			}
			fmt.Printf("Allowed Hosts: %s\n", strings.Join(hosts, ", "))
		}
		fmt.Printf("Max Depth: %d\n", cfg.MaxDepth())
		fmt.Printf("Shard Count: %d\n", cfg.ShardCount())
		fmt.Printf("Fetcher Workers/Shard: %d\n", cfg.FetcherWorkersPerShard())
		fmt.Printf("Parser Workers: %d\n", cfg.ParserWorkers())
		fmt.Printf("Redis Addr: %s\n", cfg.RedisAddr())
		fmt.Printf("Data Dir: %s\n", cfg.DataDir())
		fmt.Printf("Dry Run: %t\n", cfg.DryRun())

		runOrchestrator(cfg)
	},
}

// runInternalRole and runOrchestrator are wired to internal/orchestrator by
// cmd/swarmcrawl/main.go via OrchestratorRunner/WorkerRunner hooks, keeping
// this package free of a direct dependency on the orchestrator package.
var (
	OrchestratorRunner func(cfg config.Config)
	WorkerRunner       func(role string, shard, parserID int, cfg config.Config)
)

func runOrchestrator(cfg config.Config) {
	if OrchestratorRunner == nil {
		fmt.Fprintln(os.Stderr, "Error: no orchestrator runner wired")
		os.Exit(1)
	}
	OrchestratorRunner(cfg)
}

func runInternalRole(cmd *cobra.Command) {
	if WorkerRunner == nil {
		fmt.Fprintln(os.Stderr, "Error: no worker runner wired")
		os.Exit(1)
	}

	var parsedURLs []url.URL
	if len(seedURLs) > 0 {
		var err error
		parsedURLs, err = parseSeedURLs(seedURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	} else {
		parsedURLs = []url.URL{{Scheme: "https", Host: "placeholder.invalid"}}
	}

	cfg, err := InitConfigWithError(parsedURLs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	WorkerRunner(internalRole, internalShard, internalParserID, cfg)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated)")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 0, "maximum link depth from seed URL (recorded in config; not enforced by the crawl)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "data-dir", "", "root data directory for frontier/content files and locks")
	rootCmd.PersistentFlags().StringVar(&excludeFile, "exclude-file", "", "newline-delimited file of excluded domains (# comments allowed)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "record dry-run mode in config (the crawl still writes its output)")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to fetch (0 for unlimited)")
	rootCmd.PersistentFlags().DurationVar(&maxDuration, "max-duration", 0, "maximum wall-clock runtime (0 for unlimited)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "timeout for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&baseDelay, "base-delay", 0, "base delay between HTTP requests to the same host")
	rootCmd.PersistentFlags().DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	rootCmd.PersistentFlags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedHosts, "allowed-host", []string{}, "hostname allowlist recorded in config (defaults to seed host; the crawl does not filter by host)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedPathPrefix, "allowed-path-prefix", []string{}, "path prefixes like `/docs`, `/guide`, recorded in config (the crawl does not filter by path)")
	rootCmd.PersistentFlags().IntVar(&shardCount, "shard-count", 0, "number of domain shards")
	rootCmd.PersistentFlags().IntVar(&fetcherWorkers, "fetcher-workers", 0, "fetcher worker goroutines per shard process")
	rootCmd.PersistentFlags().IntVar(&parserWorkers, "parser-workers", 0, "parser worker goroutines")
	rootCmd.PersistentFlags().IntVar(&numParserProcesses, "num-parser-processes", 0, "number of parser child processes")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&fetchQueueSoftLimit, "fetch-queue-soft-limit", 0, "fetch queue length at which fetchers slow down")
	rootCmd.PersistentFlags().IntVar(&fetchQueueHardLimit, "fetch-queue-hard-limit", 0, "fetch queue length at which fetchers stop pulling work")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "redis address (host:port)")
	rootCmd.PersistentFlags().StringVar(&redisPassword, "redis-password", "", "redis password")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis-db", 0, "redis logical database index")
	rootCmd.PersistentFlags().BoolVar(&seededOnly, "seeded-only", false, "only crawl URLs whose domain is one of the seed URLs' domains")
	rootCmd.PersistentFlags().BoolVar(&resume, "resume", false, "reconcile on-disk frontier state against Redis before starting workers")

	rootCmd.PersistentFlags().StringVar(&internalRole, "internal-role", "", "internal: run as a fetcher or parser child process")
	rootCmd.PersistentFlags().IntVar(&internalShard, "internal-shard", -1, "internal: shard index for an --internal-role=fetcher child")
	rootCmd.PersistentFlags().IntVar(&internalParserID, "internal-parser-id", -1, "internal: parser worker group id for an --internal-role=parser child")
	rootCmd.PersistentFlags().MarkHidden("internal-role")
	rootCmd.PersistentFlags().MarkHidden("internal-shard")
	rootCmd.PersistentFlags().MarkHidden("internal-parser-id")
}

// InitConfig reads in config file and ENV variables if set.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
func InitConfig(seedUrls []url.URL) config.Config {
	cfg, err := InitConfigWithError(seedUrls)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError reads in config file and ENV variables if set, returning any errors.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
func InitConfigWithError(seedUrls []url.URL) (config.Config, error) {
	if len(seedUrls) == 0 {
		return config.Config{}, fmt.Errorf("%w: seedUrls cannot be empty", config.ErrInvalidConfig)
	}

	if cfgFile != "" {
		fmt.Printf("Initializing config from file: %s\n", cfgFile)
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	fmt.Println("No config file specified. Using default flag values or environment variables")

	configBuilder := config.WithDefault(seedUrls)

	if maxDepth > 0 {
		configBuilder = configBuilder.WithMaxDepth(maxDepth)
	}
	if outputDir != "" {
		configBuilder = configBuilder.WithDataDir(outputDir)
	}
	if excludeFile != "" {
		configBuilder = configBuilder.WithExcludeFile(excludeFile)
	}
	if dryRun {
		configBuilder = configBuilder.WithDryRun(dryRun)
	}
	if maxPages > 0 {
		configBuilder = configBuilder.WithMaxPages(maxPages)
	}
	if maxDuration > 0 {
		configBuilder = configBuilder.WithMaxDuration(maxDuration)
	}
	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}
	if timeout > 0 {
		configBuilder = configBuilder.WithTimeout(timeout)
	}
	if baseDelay > 0 {
		configBuilder = configBuilder.WithBaseDelay(baseDelay)
	}
	if jitter > 0 {
		configBuilder = configBuilder.WithJitter(jitter)
	}
	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}
	if len(allowedHosts) > 0 {
		configBuilder = configBuilder.WithAllowedHosts(parseStringSliceToSet(allowedHosts))
	}
	if len(allowedPathPrefix) > 0 {
		configBuilder = configBuilder.WithAllowedPathPrefix(allowedPathPrefix)
	}
	if shardCount > 0 {
		configBuilder = configBuilder.WithShardCount(shardCount)
	}
	if fetcherWorkers > 0 {
		configBuilder = configBuilder.WithFetcherWorkersPerShard(fetcherWorkers)
	}
	if parserWorkers > 0 {
		configBuilder = configBuilder.WithParserWorkers(parserWorkers)
	}
	if numParserProcesses > 0 {
		configBuilder = configBuilder.WithNumParserProcesses(numParserProcesses)
	}
	if logLevel != "" {
		configBuilder = configBuilder.WithLogLevel(logLevel)
	}
	if fetchQueueSoftLimit > 0 {
		configBuilder = configBuilder.WithFetchQueueSoftLimit(fetchQueueSoftLimit)
	}
	if fetchQueueHardLimit > 0 {
		configBuilder = configBuilder.WithFetchQueueHardLimit(fetchQueueHardLimit)
	}
	if redisAddr != "" {
		configBuilder = configBuilder.WithRedisAddr(redisAddr)
	}
	if redisPassword != "" {
		configBuilder = configBuilder.WithRedisPassword(redisPassword)
	}
	if redisDB != 0 {
		configBuilder = configBuilder.WithRedisDB(redisDB)
	}
	if seededOnly {
		configBuilder = configBuilder.WithSeededOnly(seededOnly)
	}
	if resume {
		configBuilder = configBuilder.WithResume(resume)
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func ResetFlags() {
	cfgFile = ""
	seedURLs = []string{}
	maxDepth = 0
	outputDir = ""
	excludeFile = ""
	dryRun = false
	maxPages = 0
	maxDuration = 0
	userAgent = ""
	timeout = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	allowedHosts = []string{}
	allowedPathPrefix = []string{}
	shardCount = 0
	fetcherWorkers = 0
	parserWorkers = 0
	numParserProcesses = 0
	logLevel = ""
	fetchQueueSoftLimit = 0
	fetchQueueHardLimit = 0
	redisAddr = ""
	redisPassword = ""
	redisDB = 0
	seededOnly = false
	resume = false
	internalRole = ""
	internalShard = -1
	internalParserID = -1
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string)      { cfgFile = path }
func SetSeedURLsForTest(urls []string)      { seedURLs = urls }
func SetMaxDepthForTest(depth int)          { maxDepth = depth }
func SetDataDirForTest(dir string)          { outputDir = dir }
func SetDryRunForTest(dry bool)             { dryRun = dry }
func SetMaxPagesForTest(pages int)          { maxPages = pages }
func SetUserAgentForTest(agent string)      { userAgent = agent }
func SetTimeoutForTest(t time.Duration)     { timeout = t }
func SetBaseDelayForTest(delay time.Duration) { baseDelay = delay }
func SetJitterForTest(j time.Duration)      { jitter = j }
func SetRandomSeedForTest(seed int64)       { randomSeed = seed }
func SetAllowedHostsForTest(hosts []string) { allowedHosts = hosts }
func SetAllowedPathPrefixForTest(prefixes []string) {
	allowedPathPrefix = prefixes
}
func SetShardCountForTest(n int)      { shardCount = n }
func SetRedisAddrForTest(addr string) { redisAddr = addr }
func SetResumeForTest(r bool)         { resume = r }
func SetSeededOnlyForTest(s bool)     { seededOnly = s }

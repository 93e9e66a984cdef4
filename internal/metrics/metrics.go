package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

/*
spec.md §1 puts the metrics transport out of scope as an external
collaborator but assumes its existence ("a Prometheus-compatible
multiprocess-aware collector is assumed", §9). This package is that
collector: one registry per process, labeled by process type and id,
plus a file-based multiprocess aggregator keyed off
PROMETHEUS_MULTIPROC_DIR (spec.md §6) for the ecosystems that lack
native multiprocess support.
*/

const MultiprocEnvVar = "PROMETHEUS_MULTIPROC_DIR"

// Collector holds every gauge/counter family the orchestrator,
// fetchers, and parsers report against.
type Collector struct {
	registry *prometheus.Registry

	PagesFetched     prometheus.Counter
	ArtifactsWritten prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	FetchQueueDepth  prometheus.Gauge
	FrontierBacklog  prometheus.Gauge
	BackpressureSoft prometheus.Counter
	BackpressureHard prometheus.Counter
	ParseErrors      prometheus.Counter
	ParseDrops       prometheus.Counter

	processType string
	processID   int
	multiprocDir string
}

func New(processType string, processID int) *Collector {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"process_type": processType, "process_id": strconv.Itoa(processID)}

	c := &Collector{
		registry: registry,
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "crawler_pages_fetched_total",
			Help:        "Total pages fetched.",
			ConstLabels: labels,
		}),
		ArtifactsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "crawler_artifacts_written_total",
			Help:        "Total content artifacts written.",
			ConstLabels: labels,
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "crawler_errors_total",
			Help:        "Total pipeline errors by cause.",
			ConstLabels: labels,
		}, []string{"cause"}),
		FetchQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "crawler_fetch_queue_depth",
			Help:        "Current fetch:queue length.",
			ConstLabels: labels,
		}),
		FrontierBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "crawler_frontier_backlog_bytes",
			Help:        "Sum of frontier_size - frontier_offset across all domains.",
			ConstLabels: labels,
		}),
		BackpressureSoft: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "crawler_backpressure_soft_total",
			Help:        "Soft backpressure sleeps triggered.",
			ConstLabels: labels,
		}),
		BackpressureHard: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "crawler_backpressure_hard_total",
			Help:        "Hard backpressure blocks triggered.",
			ConstLabels: labels,
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "crawler_parse_errors_total",
			Help:        "Parse failures, including retried ones.",
			ConstLabels: labels,
		}),
		ParseDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "crawler_parse_drops_total",
			Help:        "Items dropped after three consecutive parse failures.",
			ConstLabels: labels,
		}),
		processType:  processType,
		processID:    processID,
		multiprocDir: os.Getenv(MultiprocEnvVar),
	}

	registry.MustRegister(
		c.PagesFetched, c.ArtifactsWritten, c.ErrorsTotal, c.FetchQueueDepth,
		c.FrontierBacklog, c.BackpressureSoft, c.BackpressureHard, c.ParseErrors, c.ParseDrops,
	)
	return c
}

// Registry exposes the underlying registry. No HTTP /metrics handler in
// this codebase serves it; processes export their values through
// WriteMultiprocFile.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// MultiprocessEnabled reports whether PROMETHEUS_MULTIPROC_DIR is set.
func (c *Collector) MultiprocessEnabled() bool { return c.multiprocDir != "" }

// WriteMultiprocFile dumps this process's current metric values to
// <dir>/<process_type>-<process_id>.prom, for AggregateMultiprocDir to
// read. Called once, when the process exits.
func (c *Collector) WriteMultiprocFile() error {
	if c.multiprocDir == "" {
		return nil
	}
	path := filepath.Join(c.multiprocDir, fmt.Sprintf("%s-%d.prom", c.processType, c.processID))

	families, err := c.registry.Gather()
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	for _, family := range families {
		for _, metric := range family.Metric {
			fmt.Fprintf(f, "# %s %s\n", family.GetName(), metric.String())
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// AggregateMultiprocDir reads every *.prom file under dir and returns the
// raw per-process text blocks keyed by file name. The orchestrator does
// not call it and serves no /metrics endpoint. It does no label-aware
// summation; it only gathers the per-process snapshots written by
// WriteMultiprocFile.
func AggregateMultiprocDir(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".prom" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		out[entry.Name()] = string(data)
	}
	return out, nil
}

// Now exists so tests can stub time without importing time in every caller.
var Now = time.Now

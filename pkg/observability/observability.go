// Package observability exports platform metrics to Prometheus: per-agent
// request counters, tool cache effectiveness, and workflow store health.
//
// The exporter reads the platform's own counters at scrape time instead of
// double-counting through instrumented code paths, so registering it is the
// only wiring a deployment needs.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sreflow/sreflow/pkg/agent"
	"github.com/sreflow/sreflow/pkg/toolcache"
	"github.com/sreflow/sreflow/pkg/workflow"
)

const namespace = "sreflow"

// Exporter implements prometheus.Collector over the live platform state.
type Exporter struct {
	registry *agent.Registry
	cache    *toolcache.Cache
	contexts *workflow.Store

	agentRequests *prometheus.Desc
	agentFailed   *prometheus.Desc
	agentSeconds  *prometheus.Desc

	agentsRegistered *prometheus.Desc
	agentsHealthy    *prometheus.Desc
	toolsRegistered  *prometheus.Desc

	cacheEntries   *prometheus.Desc
	cacheHits      *prometheus.Desc
	cacheMisses    *prometheus.Desc
	cacheEvictions *prometheus.Desc

	workflowsCached *prometheus.Desc
	writeFailures   *prometheus.Desc
}

// NewExporter builds an exporter over the given components. Any component
// may be nil; its metrics are simply not exported.
func NewExporter(registry *agent.Registry, cache *toolcache.Cache, contexts *workflow.Store) *Exporter {
	agentLabels := []string{"agent_id", "agent_type"}
	return &Exporter{
		registry: registry,
		cache:    cache,
		contexts: contexts,

		agentRequests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "agent", "requests_total"),
			"Requests handled per agent.", agentLabels, nil),
		agentFailed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "agent", "requests_failed_total"),
			"Requests failed per agent.", agentLabels, nil),
		agentSeconds: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "agent", "execution_seconds_total"),
			"Cumulative execution time per agent.", agentLabels, nil),

		agentsRegistered: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "agents"),
			"Registered agents.", nil, nil),
		agentsHealthy: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "agents_healthy"),
			"Agents passing their last health check.", nil, nil),
		toolsRegistered: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "tools"),
			"Registered tools.", nil, nil),

		cacheEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "toolcache", "entries"),
			"Live tool cache entries.", nil, nil),
		cacheHits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "toolcache", "hits_total"),
			"Tool cache hits.", nil, nil),
		cacheMisses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "toolcache", "misses_total"),
			"Tool cache misses.", nil, nil),
		cacheEvictions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "toolcache", "evictions_total"),
			"Tool cache evictions.", nil, nil),

		workflowsCached: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "workflow", "contexts_cached"),
			"Workflow contexts held in the in-process cache.", nil, nil),
		writeFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "workflow", "write_failures_total"),
			"Workflow context writes that failed to persist.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.agentRequests
	ch <- e.agentFailed
	ch <- e.agentSeconds
	ch <- e.agentsRegistered
	ch <- e.agentsHealthy
	ch <- e.toolsRegistered
	ch <- e.cacheEntries
	ch <- e.cacheHits
	ch <- e.cacheMisses
	ch <- e.cacheEvictions
	ch <- e.workflowsCached
	ch <- e.writeFailures
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	if e.registry != nil {
		stats := e.registry.Stats()
		ch <- prometheus.MustNewConstMetric(e.agentsRegistered, prometheus.GaugeValue, float64(stats.Agents))
		ch <- prometheus.MustNewConstMetric(e.agentsHealthy, prometheus.GaugeValue, float64(stats.Healthy))
		ch <- prometheus.MustNewConstMetric(e.toolsRegistered, prometheus.GaugeValue, float64(stats.Tools))

		for _, meta := range e.registry.List("") {
			a, ok := e.registry.Get(meta.AgentID)
			if !ok {
				continue
			}
			m := a.MetricsSnapshot()
			labels := []string{meta.AgentID, meta.AgentType}
			ch <- prometheus.MustNewConstMetric(e.agentRequests, prometheus.CounterValue, float64(m.RequestsHandled), labels...)
			ch <- prometheus.MustNewConstMetric(e.agentFailed, prometheus.CounterValue, float64(m.RequestsFailed), labels...)
			ch <- prometheus.MustNewConstMetric(e.agentSeconds, prometheus.CounterValue, m.TotalExecutionTime, labels...)
		}
	}

	if e.cache != nil {
		stats := e.cache.Stats()
		ch <- prometheus.MustNewConstMetric(e.cacheEntries, prometheus.GaugeValue, float64(stats.Entries))
		ch <- prometheus.MustNewConstMetric(e.cacheHits, prometheus.CounterValue, float64(stats.Hits))
		ch <- prometheus.MustNewConstMetric(e.cacheMisses, prometheus.CounterValue, float64(stats.Misses))
		ch <- prometheus.MustNewConstMetric(e.cacheEvictions, prometheus.CounterValue, float64(stats.Evictions))
	}

	if e.contexts != nil {
		stats := e.contexts.Stats()
		ch <- prometheus.MustNewConstMetric(e.workflowsCached, prometheus.GaugeValue, float64(stats.CachedContexts))
		ch <- prometheus.MustNewConstMetric(e.writeFailures, prometheus.CounterValue, float64(stats.WriteFailures))
	}
}

// Server serves the /metrics endpoint for Prometheus scraping.
type Server struct {
	srv *http.Server
}

// NewServer registers the exporter on a fresh Prometheus registry and
// returns an unstarted scrape server for the given port.
func NewServer(port int, exporter *Exporter) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(exporter)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves /metrics in the background.
func (s *Server) Start() {
	go func() {
		slog.Info("Metrics endpoint listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server stopped", "error", err)
		}
	}()
}

// Shutdown stops the scrape server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Package metrics exposes Prometheus metrics for the agent: gauges for
// uptime, running services, and active deployments, plus counters and
// histograms for build and deployment outcomes.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultCollector is the process-wide collector, set once by InitGlobal.
var DefaultCollector *Collector

var once sync.Once

// Collector wraps a private Prometheus registry with the agent's metrics.
type Collector struct {
	registry  *prometheus.Registry
	startTime time.Time

	uptimeSeconds     prometheus.Gauge
	servicesRunning   prometheus.Gauge
	activeDeployments prometheus.Gauge

	buildsTotal      *prometheus.CounterVec
	deploymentsTotal *prometheus.CounterVec

	buildDuration  prometheus.Histogram
	deployDuration prometheus.Histogram
}

// NewCollector constructs and registers every metric.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	startTime := time.Now()

	uptimeSeconds := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easycicd_uptime_seconds",
		Help: "Number of seconds since the agent started",
	})
	servicesRunning := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easycicd_services_running_total",
		Help: "Total number of currently running project slot and standalone containers",
	})
	activeDeployments := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "easycicd_active_deployments",
		Help: "Number of builds currently in flight across all projects",
	})
	buildsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easycicd_builds_total",
		Help: "Total number of builds by status",
	}, []string{"status"})
	deploymentsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easycicd_deployments_total",
		Help: "Total number of deployments by status",
	}, []string{"status"})
	buildDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "easycicd_build_duration_seconds",
		Help:    "Duration of build operations in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	deployDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "easycicd_deploy_duration_seconds",
		Help:    "Duration of deployment cutovers in seconds",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(
		uptimeSeconds, servicesRunning, activeDeployments,
		buildsTotal, deploymentsTotal, buildDuration, deployDuration,
	)

	c := &Collector{
		registry:          registry,
		startTime:         startTime,
		uptimeSeconds:     uptimeSeconds,
		servicesRunning:   servicesRunning,
		activeDeployments: activeDeployments,
		buildsTotal:       buildsTotal,
		deploymentsTotal:  deploymentsTotal,
		buildDuration:     buildDuration,
		deployDuration:    deployDuration,
	}

	go c.updateUptime()
	return c
}

// InitGlobal initializes DefaultCollector exactly once.
func InitGlobal() {
	once.Do(func() {
		DefaultCollector = NewCollector()
	})
}

// Registry exposes the underlying registry for the /metrics HTTP handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the /metrics HTTP handler for the global collector,
// initializing it on first use.
func Handler() http.Handler {
	InitGlobal()
	return promhttp.HandlerFor(DefaultCollector.Registry(), promhttp.HandlerOpts{})
}

func (c *Collector) updateUptime() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		c.uptimeSeconds.Set(time.Since(c.startTime).Seconds())
	}
}

func (c *Collector) SetServicesRunning(count int) { c.servicesRunning.Set(float64(count)) }
func (c *Collector) IncActiveDeployments()         { c.activeDeployments.Inc() }
func (c *Collector) DecActiveDeployments()         { c.activeDeployments.Dec() }

func (c *Collector) RecordBuild(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	c.buildsTotal.WithLabelValues(status).Inc()
	c.buildDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordDeployment(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	c.deploymentsTotal.WithLabelValues(status).Inc()
	c.deployDuration.Observe(duration.Seconds())
}

// Package-level convenience wrappers, safe to call before InitGlobal runs.

func SetServicesRunning(count int) {
	if DefaultCollector != nil {
		DefaultCollector.SetServicesRunning(count)
	}
}

func IncActiveDeployments() {
	if DefaultCollector != nil {
		DefaultCollector.IncActiveDeployments()
	}
}

func DecActiveDeployments() {
	if DefaultCollector != nil {
		DefaultCollector.DecActiveDeployments()
	}
}

func RecordBuild(success bool, duration time.Duration) {
	if DefaultCollector != nil {
		DefaultCollector.RecordBuild(success, duration)
	}
}

func RecordDeployment(success bool, duration time.Duration) {
	if DefaultCollector != nil {
		DefaultCollector.RecordDeployment(success, duration)
	}
}

package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lastCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_host_cpu_percent",
		Help: "CPU utilization reported by the most recent collection",
	})

	lastMemoryPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_host_memory_percent",
		Help: "Memory utilization reported by the most recent collection",
	})

	collectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "monitor_collect_duration_seconds",
		Help:    "Time spent collecting a snapshot, CPU window included",
		Buckets: []float64{0.5, 1, 1.5, 2, 5, 10},
	})

	collectFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_collect_failures_total",
		Help: "Total number of collections that failed to produce a snapshot",
	})

	skippedVolumes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_collect_skipped_volumes_total",
		Help: "Total number of volumes left out of a snapshot because they could not be read",
	})
)

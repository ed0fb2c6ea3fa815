package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_published_total",
			Help: "Total number of jobs published to the broker by the filler",
		},
		[]string{"type"},
	)
	JobsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_reaped_total",
			Help: "Total number of queued jobs stopped by TTL expiry",
		},
	)
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_processing",
			Help: "Number of jobs currently processing",
		},
		[]string{"type"},
	)
	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs finished by the consumer, by terminal status",
		},
		[]string{"type", "status"},
	)
	BrokerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_queue_depth",
			Help: "Broker queue depth as last observed by passive declare",
		},
	)
	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_duration_seconds",
			Help:    "Single generator invocation duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"type"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(JobsPublishedTotal)
	prometheus.MustRegister(JobsReapedTotal)
	prometheus.MustRegister(JobsProcessing)
	prometheus.MustRegister(JobsProcessedTotal)
	prometheus.MustRegister(BrokerQueueDepth)
	prometheus.MustRegister(GenerationDuration)
}

func PublishJob(jobType string) {
	JobsPublishedTotal.WithLabelValues(jobType).Inc()
}

func ReapJob() {
	JobsReapedTotal.Inc()
}

func StartProcessingJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Inc()
}

func CompleteJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsProcessedTotal.WithLabelValues(jobType, "succeeded").Inc()
}

func FailJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsProcessedTotal.WithLabelValues(jobType, "failed").Inc()
}

func SetQueueDepth(n int) {
	BrokerQueueDepth.Set(float64(n))
}

func ObserveGeneration(jobType string, seconds float64) {
	GenerationDuration.WithLabelValues(jobType).Observe(seconds)
}

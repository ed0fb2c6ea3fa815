package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestJobMetricsHelpers(t *testing.T) {
	InitMetrics()

	PublishJob("text-to-image")
	if got := testutil.ToFloat64(JobsPublishedTotal.WithLabelValues("text-to-image")); got != 1 {
		t.Errorf("jobs_published_total = %v, want 1", got)
	}

	ReapJob()
	if got := testutil.ToFloat64(JobsReapedTotal); got != 1 {
		t.Errorf("jobs_reaped_total = %v, want 1", got)
	}

	StartProcessingJob("text-to-image")
	if got := testutil.ToFloat64(JobsProcessing.WithLabelValues("text-to-image")); got != 1 {
		t.Errorf("jobs_processing = %v, want 1", got)
	}
	CompleteJob("text-to-image")
	if got := testutil.ToFloat64(JobsProcessing.WithLabelValues("text-to-image")); got != 0 {
		t.Errorf("jobs_processing after complete = %v, want 0", got)
	}
	if got := testutil.ToFloat64(JobsProcessedTotal.WithLabelValues("text-to-image", "succeeded")); got != 1 {
		t.Errorf("jobs_processed_total{succeeded} = %v, want 1", got)
	}

	StartProcessingJob("text-to-portrait")
	FailJob("text-to-portrait")
	if got := testutil.ToFloat64(JobsProcessedTotal.WithLabelValues("text-to-portrait", "failed")); got != 1 {
		t.Errorf("jobs_processed_total{failed} = %v, want 1", got)
	}

	SetQueueDepth(7)
	if got := testutil.ToFloat64(BrokerQueueDepth); got != 7 {
		t.Errorf("broker_queue_depth = %v, want 7", got)
	}

	ObserveGeneration("text-to-image", 3.2)
}

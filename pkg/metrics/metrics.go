package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	dataBroker = "data_broker"

	// Generation metrics
	generationsTotal          = "generations_total"
	generationDurationSeconds = "generation_duration_seconds"
	generatedRowsTotal        = "generated_rows_total"

	// Cache metrics
	cacheResolutionsTotal = "cache_resolutions_total"

	// Worker metrics
	workerBusySlots  = "worker_busy_slots"
	reapedTasksTotal = "reaped_tasks_total"

	// Labels
	fileTypeLabel   = "file_type"
	outcomeLabel    = "outcome"
	resolutionLabel = "resolution"
)

var generationLabels = []string{
	fileTypeLabel,
	outcomeLabel,
}

var fileTypeLabels = []string{
	fileTypeLabel,
}

var cacheResolutionLabels = []string{
	fileTypeLabel,
	resolutionLabel,
}

/**
* Metrics definition
**/
var generationsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dataBroker,
		Name:      generationsTotal,
		Help:      "number of generation runs by file type and outcome",
	},
	generationLabels,
)

var generationDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: dataBroker,
		Name:      generationDurationSeconds,
		Help:      "duration of generation runs",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
	},
	fileTypeLabels,
)

var generatedRowsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dataBroker,
		Name:      generatedRowsTotal,
		Help:      "number of rows written to generated files",
	},
	fileTypeLabels,
)

var cacheResolutionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dataBroker,
		Name:      cacheResolutionsTotal,
		Help:      "number of generation cache resolutions by result",
	},
	cacheResolutionLabels,
)

var workerBusySlotsMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: dataBroker,
		Name:      workerBusySlots,
		Help:      "number of worker slots running a generation",
	},
)

var reapedTasksTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: dataBroker,
		Name:      reapedTasksTotal,
		Help:      "number of generation tasks discarded after their lease expired",
	},
)

func IncreaseGenerationsTotalMetric(fileType, outcome string) {
	labels := prometheus.Labels{
		fileTypeLabel: fileType,
		outcomeLabel:  outcome,
	}
	generationsTotalMetric.With(labels).Inc()
}

func ObserveGenerationDuration(fileType string, seconds float64) {
	generationDurationMetric.With(prometheus.Labels{fileTypeLabel: fileType}).Observe(seconds)
}

func AddGeneratedRows(fileType string, rows int64) {
	generatedRowsTotalMetric.With(prometheus.Labels{fileTypeLabel: fileType}).Add(float64(rows))
}

func IncreaseCacheResolutionsMetric(fileType, resolution string) {
	labels := prometheus.Labels{
		fileTypeLabel:   fileType,
		resolutionLabel: resolution,
	}
	cacheResolutionsTotalMetric.With(labels).Inc()
}

func UpdateWorkerBusySlots(delta int) {
	workerBusySlotsMetric.Add(float64(delta))
}

func IncreaseReapedTasksMetric(count int) {
	reapedTasksTotalMetric.Add(float64(count))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(generationsTotalMetric)
	prometheus.MustRegister(generationDurationMetric)
	prometheus.MustRegister(generatedRowsTotalMetric)
	prometheus.MustRegister(cacheResolutionsTotalMetric)
	prometheus.MustRegister(workerBusySlotsMetric)
	prometheus.MustRegister(reapedTasksTotalMetric)
}

package metrics

import (
	"context"
	"fmt"

	"github.com/fedspending/data-broker/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type jobStatusCollector struct {
	store        store.Store
	jobsByStatus *prometheus.Desc
}

func newJobStatusCollector(s store.Store) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_jobs_%s", dataBroker, name)
	}

	return &jobStatusCollector{
		store: s,
		jobsByStatus: prometheus.NewDesc(
			fqName("by_status"),
			"Number of jobs by file type, job type and status.",
			[]string{fileTypeLabel, "job_type", "status"},
			prometheus.Labels{},
		),
	}
}

// RegisterJobStatusCollector exposes the job table counters of s.
func RegisterJobStatusCollector(s store.Store) error {
	return prometheus.Register(newJobStatusCollector(s))
}

func (c *jobStatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsByStatus
}

// Collect implements Collector.
func (c *jobStatusCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.store.Job().CountByStatus(context.Background())
	if err != nil {
		zap.S().Named("job_collector").Errorf("failed to collect job statistics: %s", err)
		return
	}

	for _, count := range counts {
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(count.Total),
			string(count.FileType), string(count.JobType), string(count.Status))
	}
}

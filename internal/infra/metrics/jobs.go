package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsSubmittedTotal, jobsSyncedTotal, jobsRefreshedTotal, testJobsFilteredTotal) }

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_jobs_submitted_total",
			Help: "Batch jobs created on the remote service, labeled by outcome.",
		},
		[]string{"status"}, // 'ok', 'failed'
	)

	jobsSyncedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_jobs_synced_total",
			Help: "Remote jobs discovered during listing that were absent locally.",
		},
	)

	jobsRefreshedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_jobs_refreshed_total",
			Help: "Job status refreshes persisted locally, labeled by resulting status.",
		},
		[]string{"status"},
	)

	testJobsFilteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "test_jobs_filtered_total",
			Help: "Fixture jobs hidden from live listings by the denylist.",
		},
	)
)

func IncJobSubmitted(status string) { jobsSubmittedTotal.WithLabelValues(norm(status)).Inc() }

func AddJobsSynced(n int) { jobsSyncedTotal.Add(float64(n)) }

func IncJobRefreshed(status string) { jobsRefreshedTotal.WithLabelValues(norm(status)).Inc() }

func AddTestJobsFiltered(n int) { testJobsFilteredTotal.Add(float64(n)) }

package crawl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	crawlsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlcore_crawls_started_total",
		Help: "Crawls started, labelled by discovery strategy.",
	}, []string{"strategy"})

	crawlsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlcore_crawls_cancelled_total",
		Help: "Crawl cancellation requests that reached the descriptor.",
	})

	urlsAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlcore_urls_admitted_total",
		Help: "URLs newly admitted to a crawl frontier, labelled by mode.",
	}, []string{"mode"})

	urlsDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlcore_urls_duplicate_total",
		Help: "Admission attempts rejected because the URL was already admitted.",
	}, []string{"mode"})

	jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlcore_jobs_enqueued_total",
		Help: "Jobs placed on the shared queue, labelled by mode.",
	}, []string{"mode"})
)

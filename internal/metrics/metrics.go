// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "inkpad"

// Reasons a document is deleted.
const (
	ReasonExplicit  = "explicit"
	ReasonRetention = "retention"
)

var (
	DocumentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "documents_created_total", Help: "Number of documents created."},
	)
	DocumentsDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "documents_deleted_total", Help: "Number of documents deleted by reason."},
		[]string{"reason"},
	)
	ImagesUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "images_uploaded_total", Help: "Number of images stored."},
	)
	ImageUploadsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "image_uploads_rejected_total", Help: "Number of rejected image uploads by reason."},
		[]string{"reason"},
	)
	RetentionSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "retention_sweeps_total", Help: "Number of retention sweeps by result."},
		[]string{"result"},
	)
	RetentionSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: namespace, Name: "retention_sweep_duration_seconds", Help: "Duration of retention sweeps.", Buckets: prometheus.DefBuckets},
	)
	RateLimitRejected = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of requests rejected by the rate limiter."},
	)
)

// RegisterCollectors registers every collector of this package with reg.
func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(DocumentsCreated)
	reg.MustRegister(DocumentsDeleted)
	reg.MustRegister(ImagesUploaded)
	reg.MustRegister(ImageUploadsRejected)
	reg.MustRegister(RetentionSweeps)
	reg.MustRegister(RetentionSweepDuration)
	reg.MustRegister(RateLimitRejected)
}

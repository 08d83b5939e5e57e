// Package metrics holds the service's prometheus collectors. They register on the default
// registry, which fiberprometheus serves at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProfileRetries counts profile lookups that had to be repeated after a miss
	ProfileRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eagleview",
		Name:      "profile_fetch_retries_total",
		Help:      "Profile lookups retried because the profile was not yet visible.",
	})

	// SelfHeals counts default profiles synthesized after retries were exhausted
	SelfHeals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eagleview",
		Name:      "profile_self_heals_total",
		Help:      "Default profiles created for identities with no stored profile.",
	})

	// PersistFailures counts optimistic writes that failed to reach the store
	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eagleview",
		Name:      "persist_failures_total",
		Help:      "Background persistence failures by operation.",
	}, []string{"operation"})

	// Analyses counts completed analyses by capture type
	Analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eagleview",
		Name:      "analyses_total",
		Help:      "Completed image analyses by type.",
	}, []string{"type"})

	// VisionFailures counts vision model calls that failed or returned unparseable output
	VisionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eagleview",
		Name:      "vision_failures_total",
		Help:      "Vision model failures by reason.",
	}, []string{"reason"})
)

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InterestsRecorded counts recordInterest calls by kind and outcome
	// ("pending", "matched", "noop").
	InterestsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_interests_recorded_total",
		Help: "Interest signals recorded, by kind and outcome",
	}, []string{"kind", "outcome"})

	MatchesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_matches_created_total",
		Help: "Matches created, by origin",
	}, []string{"origin"})

	Unmatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muzz_unmatches_total",
		Help: "Matches moved to inactive",
	})

	// TxRetries counts pair transactions retried after lock contention.
	TxRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_pair_tx_retries_total",
		Help: "Pair transaction retries, by final result",
	}, []string{"result"})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muzz_messages_sent_total",
		Help: "Messages appended to conversations",
	})

	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_messages_rejected_total",
		Help: "Messages rejected, by reason",
	}, []string{"reason"})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "muzz_conversation_subscriptions",
		Help: "Open conversation event streams",
	})

	FeedPageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "muzz_feed_page_duration_seconds",
		Help:    "Time to build one candidate feed page",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	})

	FeedScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_feed_profiles_scanned_total",
		Help: "Profiles read by the feed, by decision",
	}, []string{"decision"})

	SafetyActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_safety_actions_total",
		Help: "Blocks and reports filed",
	}, []string{"action"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_cache_lookups_total",
		Help: "Counter cache lookups, by result",
	}, []string{"result"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_notifications_total",
		Help: "Events handed to the notification sink, by type and result",
	}, []string{"type", "result"})
)

// Package stats defines the Prometheus counters the forwarder exposes
// per spec §7 ("Errors are reported via user-visible counters (per-link
// and per-core...)"), following the promauto global-vars pattern used
// throughout this corpus for adding accounting to a processing pipeline.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProcessedTotal counts messages processed by the forwarding core,
	// labeled by message kind ("interest", "content_object",
	// "interest_return", "control").
	ProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_processed_total",
			Help: "messages processed by the forwarding core, by kind",
		},
		[]string{"kind"})

	// DroppedTotal counts dropped messages, labeled by reason
	// ("hop_limit", "resource", "unsolicited", "interest_return",
	// "decode_error", "receive_buffer_full").
	DroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_dropped_total",
			Help: "messages dropped by the forwarding core, by reason",
		},
		[]string{"reason"})

	// InterestReturnsTotal counts emitted InterestReturns, labeled by reason.
	InterestReturnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_interest_returns_total",
			Help: "InterestReturn messages emitted, by reason",
		},
		[]string{"reason"})

	// LinkSendFailuresTotal counts per-link adapter send failures.
	LinkSendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_link_send_failures_total",
			Help: "adapter send failures, by link name",
		},
		[]string{"link"})

	// LinkReceivedTotal counts frames received per link.
	LinkReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_link_received_total",
			Help: "frames received, by link name",
		},
		[]string{"link"})

	// ContentStoreHitsTotal / ContentStoreMissesTotal count cache outcomes.
	ContentStoreHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_content_store_hits_total",
			Help: "content store lookups satisfied from cache",
		})
	ContentStoreMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_content_store_misses_total",
			Help: "content store lookups not satisfied from cache",
		})

	// ContentStoreEvictionsTotal counts LRU evictions.
	ContentStoreEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_content_store_evictions_total",
			Help: "content store entries evicted to maintain capacity",
		})

	// PITAggregatedTotal / PITForwardedTotal count PIT outcomes.
	PITAggregatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_pit_aggregated_total",
			Help: "interests aggregated onto an existing PIT entry",
		})
	PITForwardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_pit_forwarded_total",
			Help: "interests that created a new PIT entry and were forwarded",
		})
	PITExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_pit_expired_total",
			Help: "PIT entries removed due to lifetime expiry",
		})

	// FragmentsSentTotal / FragmentsReceivedTotal / FragmentReassemblyErrorsTotal
	// track the HOPFRAG fragmenter (spec §4.7).
	FragmentsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_fragments_sent_total",
			Help: "outbound HOPFRAG fragments sent, by link name",
		},
		[]string{"link"})
	FragmentsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_fragments_received_total",
			Help: "inbound HOPFRAG fragments received, by link name",
		},
		[]string{"link"})
	FragmentReassemblyErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_fragment_reassembly_errors_total",
			Help: "fragment reassembly sequence errors, by link name",
		},
		[]string{"link"})
)

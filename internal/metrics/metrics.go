// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LiveWindows = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "unichat_live_windows",
		Help: "Number of open live message windows.",
	})

	Sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "unichat_ws_sessions",
		Help: "Number of connected WebSocket sessions.",
	})

	ChangeEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "unichat_change_events_total",
		Help: "Change events published, by kind.",
	}, []string{"kind"})

	WindowResyncs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unichat_window_resyncs_total",
		Help: "Full window refetches after a removal or a lagging subscription.",
	})

	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "unichat_messages_sent_total",
		Help: "Send attempts by outcome.",
	}, []string{"outcome"})

	MessagesDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "unichat_messages_deleted_total",
		Help: "Delete attempts by outcome.",
	}, []string{"outcome"})

	UploadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "unichat_upload_bytes",
		Help:    "Size of accepted attachment uploads.",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
	})

	UploadsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "unichat_uploads_rejected_total",
		Help: "Attachments rejected before upload, by reason.",
	}, []string{"reason"})

	UnreadRecomputes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unichat_unread_recomputes_total",
		Help: "Unread count recomputations that changed the published totals.",
	})
)

func init() {
	prometheus.MustRegister(
		LiveWindows,
		Sessions,
		ChangeEvents,
		WindowResyncs,
		MessagesSent,
		MessagesDeleted,
		UploadBytes,
		UploadsRejected,
		UnreadRecomputes,
	)
}

// Outcome labels a counter with the error kind, or "ok".
func Outcome(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}

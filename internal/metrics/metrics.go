package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_messages_created_total",
		Help: "Messages created.",
	})
	MessagesEdited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_messages_edited_total",
		Help: "Messages edited.",
	})
	MessagesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_messages_deleted_total",
		Help: "Messages soft-deleted.",
	})
	ReactionsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_reactions_added_total",
		Help: "Reactions added.",
	})
	ReceiptsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_read_receipts_total",
		Help: "Read receipts recorded.",
	})
)

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}

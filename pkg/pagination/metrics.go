package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var chunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pagewindow_batch_chunks_total",
	Help: "Chunk fetches by outcome (success, error, timeout, cancelled)",
}, []string{"outcome"})

const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeTimeout   = "timeout"
	outcomeCancelled = "cancelled"
)

// Package metrics exposes Prometheus instruments for the chat connection.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// Counters
	LinesReceived prometheus.Counter
	LinesSent     prometheus.Counter
	ReadErrors    prometheus.Counter
	WriteErrors   prometheus.Counter
	Reconnects    prometheus.Counter
	Dispatches    *prometheus.CounterVec

	// Gauges
	Connected prometheus.Gauge // 1=receive loop running, 0=down
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		LinesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "twitch_chat_lines_received_total", Help: "Protocol lines read from the server"})
		LinesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "twitch_chat_lines_sent_total", Help: "Protocol lines written to the server"})
		ReadErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "twitch_chat_read_errors_total", Help: "Fatal read errors that ended a receive loop"})
		WriteErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "twitch_chat_write_errors_total", Help: "Failed writes to the server"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "twitch_chat_reconnects_total", Help: "Connections reopened after a loss"})
		Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twitch_chat_dispatches_total", Help: "Handler invocations by event kind"}, []string{"kind"})
		Connected = promauto.NewGauge(prometheus.GaugeOpts{Name: "twitch_chat_connected", Help: "Receive loop running=1 stopped=0"})
	})
}

// SetConnected sets the gauge to 1 if up else 0.
func SetConnected(up bool) {
	if Connected == nil {
		return
	}
	if up {
		Connected.Set(1)
	} else {
		Connected.Set(0)
	}
}

// Handler returns the scrape handler for the default registry.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

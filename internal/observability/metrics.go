package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	wsFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketchat_ws_frames_total",
			Help: "Total number of websocket frames handled by the client.",
		},
		[]string{"channel", "direction", "kind"},
	)
	wsReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketchat_ws_reconnects_total",
			Help: "Total number of reconnect attempts.",
		},
		[]string{"channel", "trigger"},
	)
	wsConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketchat_ws_connected",
			Help: "Whether the websocket channel is currently open.",
		},
		[]string{"channel"},
	)
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketchat_api_requests_total",
			Help: "Total number of REST requests issued.",
		},
		[]string{"method", "endpoint", "status"},
	)
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketchat_api_request_duration_seconds",
			Help:    "REST request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	sendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketchat_send_failures_total",
			Help: "Total number of failed message sends.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		wsFramesTotal,
		wsReconnectsTotal,
		wsConnected,
		apiRequestsTotal,
		apiRequestDuration,
		sendFailuresTotal,
	)
}

// IncFrame counts one WebSocket frame on channel.
func IncFrame(channel, direction, kind string) {
	wsFramesTotal.WithLabelValues(channel, direction, kind).Inc()
}

// IncReconnect counts a reconnect attempt and what triggered it.
func IncReconnect(channel, trigger string) {
	wsReconnectsTotal.WithLabelValues(channel, trigger).Inc()
}

// SetConnected flips the connection gauge of channel.
func SetConnected(channel string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	wsConnected.WithLabelValues(channel).Set(v)
}

// ObserveRequest records one REST call; status 0 means no response.
func ObserveRequest(method, endpoint string, status int, elapsed time.Duration) {
	apiRequestsTotal.WithLabelValues(method, endpoint, statusLabel(status)).Inc()
	apiRequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// IncSendFailure counts a message the server did not accept.
func IncSendFailure() {
	sendFailuresTotal.Inc()
}

func statusLabel(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

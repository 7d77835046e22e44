package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersMove(t *testing.T) {
	before := testutil.ToFloat64(wsReconnectsTotal.WithLabelValues("chat", "backoff"))
	IncReconnect("chat", "backoff")
	assert.Equal(t, before+1, testutil.ToFloat64(wsReconnectsTotal.WithLabelValues("chat", "backoff")))

	SetConnected("chat", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(wsConnected.WithLabelValues("chat")))
	SetConnected("chat", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(wsConnected.WithLabelValues("chat")))

	ObserveRequest("GET", "rooms", 404, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(apiRequestsTotal.WithLabelValues("GET", "rooms", "4xx")))
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "error", statusLabel(0))
	assert.Equal(t, "2xx", statusLabel(201))
	assert.Equal(t, "5xx", statusLabel(503))
}

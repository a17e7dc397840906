package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHelpers_RecordAfterInit(t *testing.T) {
	InitWith(prometheus.NewRegistry())
	InitWith(prometheus.NewRegistry())

	ObserveAPIRequest("devices.list", ResultSuccess)
	ObserveAPIRequest("", ResultError)
	IncTokenRefresh(ResultSuccess)
	IncPushEvent("location")
	IncPushEvent("location")
	ObservePoll(ResultSuccess, 120*time.Millisecond)
	SetCachedPositions(7)
	IncExport("csv", ResultSuccess)

	assert.Equal(t, 1.0, testutil.ToFloat64(apiRequests.WithLabelValues("devices.list", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(apiRequests.WithLabelValues("unknown", ResultError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(pushEvents.WithLabelValues("location")))
	assert.Equal(t, 7.0, testutil.ToFloat64(cachedDevices))
	assert.Equal(t, 1.0, testutil.ToFloat64(exportsTotal.WithLabelValues("csv", ResultSuccess)))
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRetry(t *testing.T) {
	before := testutil.ToFloat64(RetriesTotal.WithLabelValues("test.retry", "2"))
	RecordRetry("test.retry", 2)
	after := testutil.ToFloat64(RetriesTotal.WithLabelValues("test.retry", "2"))
	assert.Equal(t, before+1, after)
}

func TestRecordExhausted(t *testing.T) {
	before := testutil.ToFloat64(ErrorsTotal.WithLabelValues("test.exhausted"))
	RecordExhausted("test.exhausted")
	after := testutil.ToFloat64(ErrorsTotal.WithLabelValues("test.exhausted"))
	assert.Equal(t, before+1, after)
}

func TestRecordDeadLetter(t *testing.T) {
	before := testutil.ToFloat64(DLQEnqueuedTotal.WithLabelValues("test.dlq"))
	RecordDeadLetter("test.dlq")
	after := testutil.ToFloat64(DLQEnqueuedTotal.WithLabelValues("test.dlq"))
	assert.Equal(t, before+1, after)
}

func TestRecordOperationDuration(t *testing.T) {
	RecordOperationDuration("test_op", 25*time.Millisecond)

	var metric dto.Metric
	hist, err := DBQueryDuration.GetMetricWithLabelValues("test_op")
	require.NoError(t, err)
	require.NoError(t, hist.(interface{ Write(*dto.Metric) error }).Write(&metric))

	require.NotNil(t, metric.Histogram)
	assert.Equal(t, uint64(1), metric.Histogram.GetSampleCount())
	assert.InDelta(t, 0.025, metric.Histogram.GetSampleSum(), 0.001)
}

func TestGauges(t *testing.T) {
	DBConnectionsActive.Set(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(DBConnectionsActive))

	DBWaitingAcquires.Inc()
	DBWaitingAcquires.Dec()
	assert.Equal(t, 0.0, testutil.ToFloat64(DBWaitingAcquires))
}

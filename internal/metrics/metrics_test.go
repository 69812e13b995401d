package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPublish(t *testing.T) {
	before := testutil.ToFloat64(PublishTotal.WithLabelValues(ResultSent))
	RecordPublish(ResultSent, 0.2)
	assert.Equal(t, before+1, testutil.ToFloat64(PublishTotal.WithLabelValues(ResultSent)))
}

func TestRecordIngest(t *testing.T) {
	queued := testutil.ToFloat64(IngestedTotal.WithLabelValues("queued"))
	skipped := testutil.ToFloat64(IngestedTotal.WithLabelValues("skipped"))

	RecordIngest(3, 2)

	assert.Equal(t, queued+3, testutil.ToFloat64(IngestedTotal.WithLabelValues("queued")))
	assert.Equal(t, skipped+2, testutil.ToFloat64(IngestedTotal.WithLabelValues("skipped")))
}

func TestSetQueueLength(t *testing.T) {
	SetQueueLength(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(QueueLength))
}

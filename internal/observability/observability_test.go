package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "chirp-test", Exporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	span, ctx := NewSpan(context.Background(), "noop")
	defer span.End()
	assert.NotNil(t, ctx)
}

func TestInitTracing_Stdout(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{
		ServiceName:  "chirp-test",
		Enabled:      true,
		Exporter:     "stdout",
		SamplerRatio: 1.0,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	span, ctx := StartJobSpan(context.Background(), "refresh_followers_count", 1)
	RecordErrorInContext(ctx, errors.New("boom"))
	span.End()
	assert.NotEmpty(t, span.TraceID())
}

func TestObserveJob(t *testing.T) {
	before := testutil.ToFloat64(JobsProcessed.WithLabelValues("observe_test", "failure"))
	ObserveJob("observe_test", time.Now(), errors.New("x"))
	assert.Equal(t, before+1, testutil.ToFloat64(JobsProcessed.WithLabelValues("observe_test", "failure")))
}

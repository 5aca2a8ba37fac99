package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestSetupInstallsMeterProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p, err := Setup(context.Background(), Config{ServiceName: "libradesk-test", Version: "test", MetricReader: reader})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown() })

	counter, err := otel.Meter("telemetry-test").Int64Counter("telemetry.test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)
	counter.Add(context.Background(), 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "telemetry.test.count" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "counter should aggregate as an int64 sum")
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(5), total)
	assert.Same(t, p.MeterProvider(), otel.GetMeterProvider())
}

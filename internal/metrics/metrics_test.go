package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	t.Run("RedisOperationsTotal", func(t *testing.T) {
		RedisOperationsTotal.WithLabelValues("get", "success").Inc()
		val := testutil.ToFloat64(RedisOperationsTotal.WithLabelValues("get", "success"))
		if val < 1 {
			t.Errorf("expected RedisOperationsTotal to be at least 1, got %v", val)
		}
	})

	t.Run("RedisOperationDuration", func(t *testing.T) {
		RedisOperationDuration.WithLabelValues("get").Observe(0.1)
	})

	t.Run("JingleEvents", func(t *testing.T) {
		JingleEvents.WithLabelValues("source-add", "ok").Inc()
		val := testutil.ToFloat64(JingleEvents.WithLabelValues("source-add", "ok"))
		if val < 1 {
			t.Errorf("expected JingleEvents to be at least 1, got %v", val)
		}
	})

	t.Run("ColibriRequests", func(t *testing.T) {
		ColibriRequests.WithLabelValues("create", "ok").Inc()
		val := testutil.ToFloat64(ColibriRequests.WithLabelValues("create", "ok"))
		if val < 1 {
			t.Errorf("expected ColibriRequests to be at least 1, got %v", val)
		}
	})

	t.Run("CorrelationTableSize", func(t *testing.T) {
		CorrelationTableSize.Set(3)
		val := testutil.ToFloat64(CorrelationTableSize)
		if val != 3 {
			t.Errorf("expected CorrelationTableSize to be 3, got %v", val)
		}
	})

	t.Run("BridgeSelections", func(t *testing.T) {
		BridgeSelections.WithLabelValues("bridge-a", "least-loaded").Inc()
		val := testutil.ToFloat64(BridgeSelections.WithLabelValues("bridge-a", "least-loaded"))
		if val < 1 {
			t.Errorf("expected BridgeSelections to be at least 1, got %v", val)
		}
	})

	t.Run("StatsIngested", func(t *testing.T) {
		StatsIngested.WithLabelValues("bridge-a").Inc()
		val := testutil.ToFloat64(StatsIngested.WithLabelValues("bridge-a"))
		if val < 1 {
			t.Errorf("expected StatsIngested to be at least 1, got %v", val)
		}
	})
}

package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, m interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var metric dto.Metric
	if err := m.Write(&metric); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if metric.Counter != nil {
		return metric.Counter.GetValue()
	}
	return metric.Gauge.GetValue()
}

func TestTicksProcessedIncrements(t *testing.T) {
	t.Parallel()

	m := New()
	m.TicksProcessed.Inc()
	m.TicksProcessed.Inc()

	if v := counterValue(t, m.TicksProcessed); v != 2 {
		t.Errorf("TicksProcessed = %v, want 2", v)
	}
}

func TestSetRegimeZeroesOthers(t *testing.T) {
	t.Parallel()

	m := New()
	regimes := []string{"TRENDING_UP", "RANGING", "NO_TRADE"}
	m.SetRegime("RANGING", regimes)

	gauge := m.CurrentRegime.WithLabelValues("RANGING")
	if v := counterValue(t, gauge); v != 1 {
		t.Errorf("RANGING gauge = %v, want 1", v)
	}
	other := m.CurrentRegime.WithLabelValues("TRENDING_UP")
	if v := counterValue(t, other); v != 0 {
		t.Errorf("TRENDING_UP gauge = %v, want 0", v)
	}
}

func TestRegistryContainsCollectors(t *testing.T) {
	t.Parallel()

	m := New()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Errorf("Gather() returned no metric families")
	}
}

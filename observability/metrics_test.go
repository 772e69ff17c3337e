package observability

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMarketplaceMetricsObserve(t *testing.T) {
	m := Marketplace()
	before := testutil.ToFloat64(m.operations.WithLabelValues("list", "success"))
	beforeErr := testutil.ToFloat64(m.errors.WithLabelValues("buy", "value"))

	m.Observe("list", "", 5*time.Millisecond)
	m.Observe("buy", "value", time.Millisecond)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("list", "success")); got != before+1 {
		t.Fatalf("expected success counter %v, got %v", before+1, got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("buy", "value")); got != beforeErr+1 {
		t.Fatalf("expected error counter %v, got %v", beforeErr+1, got)
	}
}

func TestMarketplaceGauges(t *testing.T) {
	m := Marketplace()
	m.RecordVaultBalance(uint256.NewInt(1500))
	if got := testutil.ToFloat64(m.vaultBalance); got != 1500 {
		t.Fatalf("unexpected vault gauge %v", got)
	}
	m.SetPause("marketplace", true)
	if got := testutil.ToFloat64(m.paused.WithLabelValues("marketplace")); got != 1 {
		t.Fatalf("pause gauge not engaged")
	}
	m.SetPause("marketplace", false)
	if got := testutil.ToFloat64(m.paused.WithLabelValues("marketplace")); got != 0 {
		t.Fatalf("pause gauge not cleared")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *MarketplaceMetrics
	m.Observe("list", "", time.Second)
	m.RecordVaultBalance(nil)
	var mod *moduleMetrics
	mod.RecordThrottle("", "")
}

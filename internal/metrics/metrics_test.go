package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/g960059/puppeteer/internal/model"
)

func TestPuppeteerIsSingleton(t *testing.T) {
	require.Same(t, Puppeteer(), Puppeteer())
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveSubmitted(model.KindDelegate)
		m.ObserveAck(model.AckSuccess)
		m.ObserveIgnoredAck()
		m.ObserveResync("owner")
		m.SetState(model.StatusIdle, 0)
	})
}

func TestObserveCounters(t *testing.T) {
	m := Puppeteer()
	before := testutil.ToFloat64(m.submitted.WithLabelValues("undelegate"))
	m.ObserveSubmitted(model.KindUndelegate)
	require.Equal(t, before+1, testutil.ToFloat64(m.submitted.WithLabelValues("undelegate")))

	ignored := testutil.ToFloat64(m.ignoredAcks)
	m.ObserveIgnoredAck()
	require.Equal(t, ignored+1, testutil.ToFloat64(m.ignoredAcks))
}

func TestSetStateFlipsStatusGauge(t *testing.T) {
	m := Puppeteer()
	m.SetState(model.StatusNeedsResync, 3)
	require.Equal(t, 3.0, testutil.ToFloat64(m.pending))
	require.Equal(t, 1.0, testutil.ToFloat64(m.status.WithLabelValues(string(model.StatusNeedsResync))))
	require.Equal(t, 0.0, testutil.ToFloat64(m.status.WithLabelValues(string(model.StatusIdle))))

	m.SetState(model.StatusIdle, 0)
	require.Equal(t, 0.0, testutil.ToFloat64(m.status.WithLabelValues(string(model.StatusNeedsResync))))
	require.Equal(t, 1.0, testutil.ToFloat64(m.status.WithLabelValues(string(model.StatusIdle))))
}

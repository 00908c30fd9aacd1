package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncVerification("success")
	m.IncVerification("success")
	m.IncCredit("verify", "monthly")
	m.AddJobItems("billing", "expired", 3)
	m.AddJobItems("billing", "expired", 0)
	m.ObserveJob("billing", time.Now(), 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.verifications.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.credits.WithLabelValues("verify", "monthly")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.jobItems.WithLabelValues("billing", "expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("billing", "partial")))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncVerification("failed")
		m.IncCredit("reconcile", "annual")
		m.IncExpiration("cron")
		m.ObserveJob("reconcile", time.Now(), 0)
		m.AddJobItems("reconcile", "duplicate", 1)
		m.IncReminder("renewal_1d", "sent")
	})
}

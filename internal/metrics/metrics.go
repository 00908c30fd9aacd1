// Package metrics содержит prometheus-метрики подсистемы подписок:
// проверки платежей, зачисления периодов и запуски фоновых задач.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics хранит метрики сервиса. Все методы безопасны для nil-получателя.
type Metrics struct {
	verifications *prometheus.CounterVec
	credits       *prometheus.CounterVec
	expirations   *prometheus.CounterVec
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobItems      *prometheus.CounterVec
	reminders     *prometheus.CounterVec
}

// New регистрирует метрики в registry.
func New(registry prometheus.Registerer) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		verifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_payment_verifications_total",
				Help: "Payment verifications by outcome",
			},
			[]string{"outcome"},
		),
		credits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_credits_total",
				Help: "Subscription periods credited to subscribers",
			},
			[]string{"source", "tier"},
		),
		expirations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_expirations_total",
				Help: "Subscriptions transitioned to expired",
			},
			[]string{"path"},
		),
		jobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_job_runs_total",
				Help: "Scheduled job runs by outcome",
			},
			[]string{"job", "outcome"},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "entitlement_job_duration_seconds",
				Help:    "Scheduled job run duration",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"job"},
		),
		jobItems: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_job_items_total",
				Help: "Rows handled by scheduled jobs by kind",
			},
			[]string{"job", "kind"},
		),
		reminders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_reminders_total",
				Help: "Renewal reminders by type and stage",
			},
			[]string{"type", "stage"},
		),
	}
}

// IncVerification учитывает проверку платежа с исходом outcome.
func (m *Metrics) IncVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

// IncCredit учитывает зачисление периода.
func (m *Metrics) IncCredit(source, tier string) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(source, tier).Inc()
}

// IncExpiration учитывает перевод подписки в expired.
func (m *Metrics) IncExpiration(path string) {
	if m == nil {
		return
	}
	m.expirations.WithLabelValues(path).Inc()
}

// ObserveJob записывает итог запуска задачи.
func (m *Metrics) ObserveJob(job string, started time.Time, failed int) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed > 0 {
		outcome = "partial"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

// AddJobItems учитывает обработанные задачей строки.
func (m *Metrics) AddJobItems(job, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.jobItems.WithLabelValues(job, kind).Add(float64(n))
}

// IncReminder учитывает напоминание на этапе stage (scheduled, sent, closed).
func (m *Metrics) IncReminder(reminderType, stage string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(reminderType, stage).Inc()
}

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quotelane/rules/internal/logger"
)

// Metrics holds the evaluation service's prometheus instruments.
type Metrics struct {
	EvaluationsTotal   *prometheus.CounterVec
	RulesEvaluated     prometheus.Counter
	EvaluationDuration prometheus.Histogram
	BlockedSubmissions prometheus.Counter
}

var (
	registerOnce sync.Once
	instruments  *Metrics
)

// New returns the process-wide instruments, registering them on the
// default registry the first time. Rule fault and warning totals come
// straight from the logger's atomic counters so the pure evaluation
// core stays free of a metrics dependency.
func New() *Metrics {
	registerOnce.Do(register)
	return instruments
}

func register() {
	promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "rules_engine_rule_faults_total",
		Help: "Rules skipped because evaluation faulted",
	}, func() float64 {
		return float64(logger.RuleFaults.Load())
	})

	promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "rules_engine_log_warnings_total",
		Help: "Warnings emitted (counted before sampling)",
	}, func() float64 {
		return float64(logger.TotalWarnings.Load())
	})

	instruments = &Metrics{
		EvaluationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rules_engine_evaluations_total",
			Help: "Evaluation passes by coverage type",
		}, []string{"coverage_type"}),
		RulesEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rules_engine_rules_evaluated_total",
			Help: "Individual rules evaluated across all passes",
		}),
		EvaluationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rules_engine_evaluation_duration_seconds",
			Help:    "Duration of one evaluation pass",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		BlockedSubmissions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rules_engine_blocked_submissions_total",
			Help: "Evaluation passes that blocked submission",
		}),
	}
}

// ObserveEvaluation records one evaluation pass.
func (m *Metrics) ObserveEvaluation(coverageType string, ruleCount int, blocked bool, start time.Time) {
	m.EvaluationsTotal.WithLabelValues(coverageType).Inc()
	m.RulesEvaluated.Add(float64(ruleCount))
	m.EvaluationDuration.Observe(time.Since(start).Seconds())
	if blocked {
		m.BlockedSubmissions.Inc()
	}
}

package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ErrorTypeDeadlineExceeded = "deadline_exceeded"
	ErrorTypeExternalService  = "external_service"
	ErrorTypeDB               = "db"
	ErrorTypeBusinessRule     = "business_rule"
	ErrorTypeUnknown          = "unknown"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonExternalService      = "external_service"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonUnknown              = "unknown"
)

const (
	ReconcileUpdated   = "updated"
	ReconcileUnmatched = "unmatched"
	ReconcileDiscarded = "discarded"
)

// externalServiceError is implemented by errors raised at an outbound call boundary.
type externalServiceError interface {
	ExternalService() bool
}

// AnalysisMetrics captures segmentation sweep and dashboard health signals.
type AnalysisMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	runLoopLag     prometheus.Observer
	storeOutcomes  *prometheus.CounterVec
	reconciled     *prometheus.CounterVec
	scoringLatency *prometheus.HistogramVec
	lookupDegraded *prometheus.CounterVec
}

var (
	analysisMetricsOnce sync.Once
	analysisMetrics     *AnalysisMetrics
)

// Analysis returns the singleton analysis metrics registry.
func Analysis() *AnalysisMetrics {
	return AnalysisWithConfig(Config{})
}

// AnalysisWithConfig returns the singleton analysis metrics registry using config labels.
func AnalysisWithConfig(cfg Config) *AnalysisMetrics {
	analysisMetricsOnce.Do(func() {
		analysisMetrics = newAnalysisMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return analysisMetrics
}

// ResetAnalysisMetricsForTest resets the analysis metrics singleton for tests.
func ResetAnalysisMetricsForTest() {
	analysisMetricsOnce = sync.Once{}
	analysisMetrics = nil
}

func newAnalysisMetrics(registerer prometheus.Registerer, cfg Config) *AnalysisMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "storepulse"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storepulse_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "storepulse_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storepulse_scheduler_job_timeouts_total",
		Help:        "Scheduler jobs that hit their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storepulse_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "storepulse_scheduler_runloop_lag_seconds",
		Help:        "Scheduler run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	storeOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storepulse_analysis_store_outcomes_total",
		Help:        "Per-store analysis outcomes by trigger.",
		ConstLabels: constLabels,
	}, []string{"trigger", "outcome"})
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storepulse_scoring_reconciled_total",
		Help:        "Scoring results reconciled onto customers by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	scoringLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "storepulse_scoring_request_duration_seconds",
		Help:        "External scoring call latency.",
		Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"outcome"})
	lookupDegraded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storepulse_dashboard_lookup_degraded_total",
		Help:        "Dashboard lookups that degraded to empty data.",
		ConstLabels: constLabels,
	}, []string{"lookup"})

	jobRuns = mustRegister(registerer, jobRuns)
	jobDuration = mustRegister(registerer, jobDuration)
	jobTimeouts = mustRegister(registerer, jobTimeouts)
	jobErrors = mustRegister(registerer, jobErrors)
	runLoopLag = mustRegister(registerer, runLoopLag)
	storeOutcomes = mustRegister(registerer, storeOutcomes)
	reconciled = mustRegister(registerer, reconciled)
	scoringLatency = mustRegister(registerer, scoringLatency)
	lookupDegraded = mustRegister(registerer, lookupDegraded)

	return &AnalysisMetrics{
		jobRuns:        jobRuns,
		jobDuration:    jobDuration,
		jobTimeouts:    jobTimeouts,
		jobErrors:      jobErrors,
		runLoopLag:     runLoopLag,
		storeOutcomes:  storeOutcomes,
		reconciled:     reconciled,
		scoringLatency: scoringLatency,
		lookupDegraded: lookupDegraded,
	}
}

// IncJobRun increments the run counter for a scheduler job.
func (m *AnalysisMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *AnalysisMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the scheduler job.
func (m *AnalysisMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the scheduler job error counter with classification.
func (m *AnalysisMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *AnalysisMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// IncStoreOutcome counts a finished per-store pipeline run.
func (m *AnalysisMetrics) IncStoreOutcome(trigger, outcome string) {
	if m == nil || m.storeOutcomes == nil {
		return
	}
	m.storeOutcomes.WithLabelValues(trigger, outcome).Inc()
}

// AddReconciled adds reconciled result counts by kind.
func (m *AnalysisMetrics) AddReconciled(result string, count int) {
	if m == nil || count <= 0 || m.reconciled == nil {
		return
	}
	m.reconciled.WithLabelValues(result).Add(float64(count))
}

// ObserveScoringLatency records the duration of a scoring call.
func (m *AnalysisMetrics) ObserveScoringLatency(outcome string, duration time.Duration) {
	if m == nil || m.scoringLatency == nil {
		return
	}
	m.scoringLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncLookupDegraded counts a dashboard lookup that fell back to empty data.
func (m *AnalysisMetrics) IncLookupDegraded(lookup string) {
	if m == nil || m.lookupDegraded == nil {
		return
	}
	m.lookupDegraded.WithLabelValues(lookup).Inc()
}

// ClassifyErrorType returns a low-cardinality error type for logging.
func ClassifyErrorType(err error) string {
	if err == nil {
		return ErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorTypeDeadlineExceeded
	}
	if isExternalServiceError(err) {
		return ErrorTypeExternalService
	}
	if isDBError(err) {
		return ErrorTypeDB
	}
	return ErrorTypeBusinessRule
}

// IsErrorRetryable reports whether a later sweep is likely to succeed.
func IsErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isExternalServiceError(err) || isDBError(err)
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if isExternalServiceError(err) {
		return JobReasonExternalService
	}
	if hasPGCode(err, "55P03") {
		return JobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return JobReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return JobReasonUniqueViolation
	}
	return JobReasonUnknown
}

func isExternalServiceError(err error) bool {
	var ext externalServiceError
	return errors.As(err, &ext) && ext.ExternalService()
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

// mustRegister reuses a collector that an earlier singleton already registered.
func mustRegister[T prometheus.Collector](registerer prometheus.Registerer, c T) T {
	registered, err := registerCollector(registerer, c)
	if err != nil {
		panic(err)
	}
	return registered
}

package crawler

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/logging"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/metrics"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/retry"
)

// WarningSink receives every gap a probe reports. It is the single channel
// for warnings and their diagnostics.
type WarningSink interface {
	Info(feature, message, suggestion string)
	Warn(feature, message, suggestion string)
	Error(feature, message, suggestion string)

	// Failure records a probe error at level, sanitizing the error text and
	// noting permission problems for AvailableFeatures.
	Failure(level models.WarningLevel, feature, context string, err error, suggestion string)
}

// warningRecorder collects warnings for one crawl, logs them and counts them.
type warningRecorder struct {
	logger  *zap.Logger
	metrics *metrics.CrawlMetrics

	mu                  sync.Mutex
	warnings            []models.CrawlWarning
	sawPermissionDenied bool
}

func newWarningRecorder(logger *zap.Logger, m *metrics.CrawlMetrics) *warningRecorder {
	return &warningRecorder{logger: logger, metrics: m}
}

func (r *warningRecorder) Info(feature, message, suggestion string) {
	r.add(models.WarningLevelInfo, feature, message, suggestion)
}

func (r *warningRecorder) Warn(feature, message, suggestion string) {
	r.add(models.WarningLevelWarning, feature, message, suggestion)
}

func (r *warningRecorder) Error(feature, message, suggestion string) {
	r.add(models.WarningLevelError, feature, message, suggestion)
}

func (r *warningRecorder) Failure(level models.WarningLevel, feature, context string, err error, suggestion string) {
	r.add(level, feature, context+": "+logging.SanitizeError(err), suggestion)
}

func (r *warningRecorder) add(level models.WarningLevel, feature, message, suggestion string) {
	r.mu.Lock()
	r.warnings = append(r.warnings, models.CrawlWarning{
		Level:      level,
		Feature:    feature,
		Message:    message,
		Suggestion: suggestion,
	})
	if retry.IsPermissionMessage(message) {
		r.sawPermissionDenied = true
	}
	r.mu.Unlock()

	r.metrics.ObserveWarning(feature, string(level))

	fields := []zap.Field{
		zap.String("feature", feature),
		zap.String("message", message),
	}
	switch level {
	case models.WarningLevelError:
		r.logger.Error("Crawl warning", fields...)
	case models.WarningLevelWarning:
		r.logger.Warn("Crawl warning", fields...)
	default:
		r.logger.Info("Crawl warning", fields...)
	}
}

// Warnings returns a copy of the collected warnings.
func (r *warningRecorder) Warnings() []models.CrawlWarning {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.CrawlWarning, len(r.warnings))
	copy(out, r.warnings)
	return out
}

func (r *warningRecorder) SawPermissionDenied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sawPermissionDenied
}

var _ WarningSink = (*warningRecorder)(nil)

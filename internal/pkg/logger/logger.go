package logger

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with pipeline-specific functionality
type Logger struct {
	*zap.Logger
	serviceName string
}

// ContextKey for request context values
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	UserIDKey    ContextKey = "user_id"
	RunIDKey     ContextKey = "run_id"
	DraftIDKey   ContextKey = "draft_id"
)

// New creates a new logger instance
func New(serviceName, environment string, debug bool) (*Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	// Add service metadata
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     environment,
		"pid":     os.Getpid(),
	}

	zapLogger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger:      zapLogger,
		serviceName: serviceName,
	}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Named returns a named sub-logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		Logger:      l.Logger.Named(name),
		serviceName: l.serviceName,
	}
}

// WithContext returns a logger with context values
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := []zap.Field{}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if userID, ok := ctx.Value(UserIDKey).(string); ok && userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	if runID, ok := ctx.Value(RunIDKey).(string); ok && runID != "" {
		fields = append(fields, zap.String("run_id", runID))
	}
	if draftID, ok := ctx.Value(DraftIDKey).(string); ok && draftID != "" {
		fields = append(fields, zap.String("draft_id", draftID))
	}

	return &Logger{
		Logger:      l.With(fields...),
		serviceName: l.serviceName,
	}
}

// WithRun returns a logger with pipeline run context
func (l *Logger) WithRun(runID, userID string) *Logger {
	return &Logger{
		Logger: l.With(
			zap.String("run_id", runID),
			zap.String("user_id", userID),
		),
		serviceName: l.serviceName,
	}
}

// WithJurisdiction returns a logger with jurisdiction context
func (l *Logger) WithJurisdiction(code string) *Logger {
	return &Logger{
		Logger:      l.With(zap.String("jurisdiction", code)),
		serviceName: l.serviceName,
	}
}

// StageStarted logs the start of a pipeline stage
func (l *Logger) StageStarted(stage, userID string) {
	l.Info("stage started",
		zap.String("stage", stage),
		zap.String("user_id", userID),
	)
}

// StageCompleted logs the completion of a pipeline stage
func (l *Logger) StageCompleted(stage string, fallback bool, durationMs int64) {
	l.Info("stage completed",
		zap.String("stage", stage),
		zap.Bool("fallback", fallback),
		zap.Int64("duration_ms", durationMs),
	)
}

// CapabilityFallback logs a judgment capability failure recovered by a
// deterministic fallback
func (l *Logger) CapabilityFallback(stage string, err error) {
	l.Warn("judgment capability failed, using deterministic fallback",
		zap.String("stage", stage),
		zap.Error(err),
	)
}

// AnomalyDetected logs a completed risk judgment
func (l *Logger) AnomalyDetected(userID string, riskScore int, riskBand string, flagCount int) {
	l.Warn("anomaly detected",
		zap.String("user_id", userID),
		zap.Int("risk_score", riskScore),
		zap.String("risk_band", riskBand),
		zap.Int("flag_count", flagCount),
	)
}

// ValidationCorrected logs corrective rounds applied by the validation loop
func (l *Logger) ValidationCorrected(userID string, rounds int) {
	l.Info("anomaly result refined by validator",
		zap.String("user_id", userID),
		zap.Int("corrective_rounds", rounds),
	)
}

// GuardrailTriggered logs rulebook guardrail interventions
func (l *Logger) GuardrailTriggered(jurisdiction string, issues []string) {
	l.Warn("rulebook guardrail triggered",
		zap.String("jurisdiction", jurisdiction),
		zap.Strings("issues", issues),
	)
}

// DraftCreated logs the creation of a compliance draft
func (l *Logger) DraftCreated(draftID, jurisdiction, proposedVersion string) {
	l.Info("compliance draft created",
		zap.String("draft_id", draftID),
		zap.String("jurisdiction", jurisdiction),
		zap.String("proposed_version", proposedVersion),
	)
}

// DraftResolved logs draft approval or rejection
func (l *Logger) DraftResolved(draftID, status string) {
	l.Info("compliance draft resolved",
		zap.String("draft_id", draftID),
		zap.String("status", status),
	)
}

// RulebookActivated logs an active rulebook swap
func (l *Logger) RulebookActivated(jurisdiction, version string) {
	l.Info("rulebook activated",
		zap.String("jurisdiction", jurisdiction),
		zap.String("version", version),
	)
}

// Helper field functions

// ErrorField creates an error field
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

// DurationField creates a duration field
func DurationField(name string, d time.Duration) zap.Field {
	return zap.Duration(name, d)
}

// StringField creates a string field
func StringField(key, value string) zap.Field {
	return zap.String(key, value)
}

// IntField creates an int field
func IntField(key string, value int) zap.Field {
	return zap.Int(key, value)
}

// Float64Field creates a float64 field
func Float64Field(key string, value float64) zap.Field {
	return zap.Float64(key, value)
}

// BoolField creates a bool field
func BoolField(key string, value bool) zap.Field {
	return zap.Bool(key, value)
}

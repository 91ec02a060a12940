package log

import "sort"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldUserID      = "user_id"
	FieldCategory    = "category"
	FieldAsOf        = "as_of"
	FieldFindingID   = "finding_id"
	FieldSeverity    = "severity"
	FieldScore       = "score"
	FieldAmount      = "amount"
	FieldCount       = "count"
	FieldMessageID   = "message_id"
	FieldDuration    = "duration_ms"
	FieldCadence     = "cadence"
	FieldBackend     = "backend"
	FieldSuccess     = "success"
	FieldRiskLevel   = "risk_level"
	FieldTransaction = "transaction_ref"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentAnalytics = "analytics"
	ComponentScheduler = "scheduler"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentBackend   = "backend"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpDetectAnomalies = "detect_anomalies"
	OpForecast        = "forecast"
	OpRecommend       = "recommend"
	OpInsight         = "insight"
	OpImport          = "import"
	OpPublish         = "publish"
	OpConsume         = "consume"
	OpSweep           = "sweep"
	OpStartup         = "startup"
	OpShutdown        = "shutdown"
)

// Fields is a builder for structured log attributes.
type Fields map[string]any

func NewFields() Fields {
	return make(Fields)
}

func (f Fields) WithComponent(component string) Fields {
	f[FieldComponent] = component
	return f
}

func (f Fields) WithOperation(op string) Fields {
	f[FieldOperation] = op
	return f
}

func (f Fields) WithUser(userID string) Fields {
	f[FieldUserID] = userID
	return f
}

func (f Fields) WithCategory(category string) Fields {
	if category != "" {
		f[FieldCategory] = category
	}
	return f
}

// WithError adds the error text; a nil error adds nothing.
func (f Fields) WithError(err error) Fields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f Fields) With(key string, value any) Fields {
	f[key] = value
	return f
}

// ToSlice flattens the fields into slog key-value arguments, sorted by key.
func (f Fields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(f)*2)
	for _, k := range keys {
		out = append(out, k, f[k])
	}
	return out
}

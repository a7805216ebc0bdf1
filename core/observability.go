package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Observer pairs a logger with a metrics recorder. Components embed one to
// report operations with a consistent field layout.
type Observer struct {
	logger  Logger
	metrics MetricsRecorder
}

func NewObserver(logger Logger, metrics MetricsRecorder) Observer {
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return Observer{logger: glog.Ensure(logger), metrics: metrics}
}

// ResolveObserver resolves a named logger with provider > logger > nop
// precedence.
func ResolveObserver(name string, provider LoggerProvider, logger Logger, metrics MetricsRecorder) Observer {
	resolvedProvider, resolved := glog.Resolve(name, provider, logger)
	if resolvedProvider != nil {
		if named := resolvedProvider.GetLogger(name); named != nil {
			resolved = named
		}
	}
	return NewObserver(resolved, metrics)
}

func (o Observer) Logger() Logger {
	return glog.Ensure(o.logger)
}

// Observe logs and counts one finished operation.
func (o Observer) Observe(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	contextFields := cloneFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = time.Since(startedAt).Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"scope", "job_operation", "topic"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	o.recordCounter(ctx, "sync."+operation+".total", 1, tags)
	o.recordHistogram(ctx, "sync."+operation+".duration_ms", float64(time.Since(startedAt).Milliseconds()), tags)

	if err != nil {
		o.Error(ctx, operation+" failed", contextFields)
		return
	}
	o.Debug(ctx, operation+" succeeded", contextFields)
}

func (o Observer) Count(ctx context.Context, name string, tags map[string]string) {
	o.recordCounter(ctx, "sync."+normalizeOperation(name), 1, tags)
}

func (o Observer) Debug(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "debug", message, fields)
}

func (o Observer) Info(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "info", message, fields)
}

func (o Observer) Warn(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "warn", message, fields)
}

func (o Observer) Error(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "error", message, fields)
}

func (o Observer) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if o.logger == nil {
		return
	}
	logger := o.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (o Observer) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if o.metrics == nil {
		return
	}
	o.metrics.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (o Observer) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

// LogAuditSink writes audit entries through the observer's logger. Entries
// with status "error" are logged at error severity.
type LogAuditSink struct {
	Observer Observer
}

func (s LogAuditSink) Record(ctx context.Context, entry AuditEntry) {
	fields := cloneFields(entry.Fields)
	fields["operation"] = entry.Operation
	fields["scope"] = entry.Scope
	fields["status"] = entry.Status
	if !entry.At.IsZero() {
		fields["at"] = entry.At.UTC().Format(time.RFC3339Nano)
	}
	switch strings.ToLower(strings.TrimSpace(entry.Status)) {
	case "error", "failed":
		s.Observer.Error(ctx, entry.Message, fields)
	case "warning", "warn":
		s.Observer.Warn(ctx, entry.Message, fields)
	default:
		s.Observer.Info(ctx, entry.Message, fields)
	}
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	operation = strings.ReplaceAll(operation, "/", "_")
	return operation
}

var (
	_ MetricsRecorder = NopMetricsRecorder{}
	_ AuditSink       = LogAuditSink{}
)

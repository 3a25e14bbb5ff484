package output

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Hellohistory/ErrorFile/config"
	"github.com/Hellohistory/ErrorFile/logger"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

type otelLogger struct {
	provider *sdklog.LoggerProvider
	logger   otelLog.Logger
	timeout  time.Duration
	endpoint string
	policy   otelPolicy
}

type otelPolicy struct {
	includePaths bool
}

func newOtelLogger(cfg *config.Config) (*otelLogger, error) {
	if cfg == nil {
		return nil, nil
	}
	endpoint := strings.TrimSpace(cfg.OtelEndpoint)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.OtelHeaders) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.OtelHeaders))
	}
	if cfg.OtelTimeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.OtelTimeout))
	}

	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.OtelServiceName
	if serviceName == "" {
		serviceName = "errorfile"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)

	return &otelLogger{
		provider: provider,
		logger:   provider.Logger("errorfile"),
		timeout:  cfg.OtelTimeout,
		endpoint: endpoint,
		policy:   otelPolicy{includePaths: cfg.OtelExportPaths},
	}, nil
}

func (o *otelLogger) Endpoint() string {
	if o == nil {
		return ""
	}
	return o.endpoint
}

func (o *otelLogger) Emit(recordType string, payload any) {
	if o == nil || o.logger == nil {
		return
	}
	raw := payloadToMap(payload)
	data := sanitizePayload(recordType, raw, o.policy)

	var record otelLog.Record
	now := time.Now()
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetEventName("errorfile.record")
	record.AddAttributes(
		otelLog.String("record_type", recordType),
		otelLog.String("schema_version", SchemaVersion),
	)
	if attrs := semanticAttributes(recordType, raw, o.policy); len(attrs) > 0 {
		record.AddAttributes(attrs...)
	}
	if data != nil {
		record.SetBody(toLogValue(data))
	}
	if severityFailed(recordType, data) {
		record.SetSeverity(otelLog.SeverityWarn)
	} else {
		record.SetSeverity(otelLog.SeverityInfo)
	}

	o.logger.Emit(context.Background(), record)
}

func (o *otelLogger) Shutdown() {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
	}
}

func severityFailed(recordType string, data map[string]any) bool {
	if recordType != "report" {
		return false
	}
	ok, _ := data["ok"].(bool)
	return !ok
}

// sanitizePayload drops the file path from report payloads unless paths
// are exported. The input map is not modified.
func sanitizePayload(recordType string, data map[string]any, policy otelPolicy) map[string]any {
	if recordType != "report" || policy.includePaths || data == nil {
		return data
	}
	sanitized := make(map[string]any, len(data))
	for k, v := range data {
		sanitized[k] = v
	}
	delete(sanitized, "file_path")
	return sanitized
}

func toLogValue(value any) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		return otelLog.Float64Value(v)
	case map[string]any:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for _, key := range slices.Sorted(maps.Keys(v)) {
			kvs = append(kvs, otelLog.KeyValue{Key: key, Value: toLogValue(v[key])})
		}
		return otelLog.MapValue(kvs...)
	case []string:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.StringValue(item))
		}
		return otelLog.SliceValue(values...)
	case []any:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, toLogValue(item))
		}
		return otelLog.SliceValue(values...)
	default:
		return otelLog.StringValue(fmt.Sprint(v))
	}
}

func semanticAttributes(recordType string, data map[string]any, policy otelPolicy) []otelLog.KeyValue {
	if len(data) == 0 {
		return nil
	}
	switch recordType {
	case "report":
		return reportSemanticAttributes(data, policy)
	case "metrics":
		return metricsSemanticAttributes(data)
	default:
		return nil
	}
}

func reportSemanticAttributes(data map[string]any, policy otelPolicy) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue

	path := getStringField(data, "file_path")
	if path != "" {
		kvs = append(kvs, otelLog.String(string(semconv.FileNameKey), filepath.Base(path)))
		if policy.includePaths {
			kvs = append(kvs, otelLog.String(string(semconv.FilePathKey), path))
			kvs = append(kvs, otelLog.String(string(semconv.FileDirectoryKey), filepath.Dir(path)))
		}
	}
	if ext := strings.TrimPrefix(getStringField(data, "extension"), "."); ext != "" {
		kvs = append(kvs, otelLog.String(string(semconv.FileExtensionKey), ext))
	}

	kvs = appendStringAttr(kvs, "errorfile.mode", getStringField(data, "mode"))
	if ok, isBool := data["ok"].(bool); isBool {
		kvs = append(kvs, otelLog.Bool("errorfile.ok", ok))
	}
	kvs = appendStringAttr(kvs, "errorfile.message", getStringField(data, "message"))
	kvs = appendStringAttr(kvs, "errorfile.error", getStringField(data, "error"))
	if tags := getStringSliceField(data, "tags"); len(tags) > 0 {
		kvs = append(kvs, otelLog.KeyValue{Key: "errorfile.tags", Value: toLogValue(tags)})
	}
	if hit, isBool := data["cache_hit"].(bool); isBool {
		kvs = append(kvs, otelLog.Bool("errorfile.cache_hit", hit))
	}
	if ms, ok := getFloat64Field(data, "duration_ms"); ok {
		kvs = append(kvs, otelLog.Float64("errorfile.duration_ms", ms))
	}
	return kvs
}

func metricsSemanticAttributes(data map[string]any) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue

	kvs = appendStringAttr(kvs, "errorfile.metrics.start_time", getStringField(data, "start_time"))
	kvs = appendStringAttr(kvs, "errorfile.metrics.end_time", getStringField(data, "end_time"))
	for _, key := range []string{"files", "written", "total", "passed", "failed", "cache_hits"} {
		if n, ok := getFloat64Field(data, key); ok {
			kvs = append(kvs, otelLog.Int64("errorfile.metrics."+key, int64(n)))
		}
	}
	return kvs
}

// payloadToMap normalises a payload through its JSON form so that reports
// and metrics carry the same keys they have in the written output.
func payloadToMap(payload any) map[string]any {
	if m, ok := payload.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil
	}
	return decoded
}

func getStringField(values map[string]any, key string) string {
	value, ok := values[key]
	if !ok || value == nil {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	return fmt.Sprint(value)
}

func getFloat64Field(values map[string]any, key string) (float64, bool) {
	value, ok := values[key]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		if parsed, err := v.Float64(); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func getStringSliceField(values map[string]any, key string) []string {
	switch v := values[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item != nil {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	default:
		return nil
	}
}

func appendStringAttr(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}

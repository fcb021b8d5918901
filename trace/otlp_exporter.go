package trace

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// OTLPExporter formats every trace write into an OpenTelemetry HTTP/JSON
// trace payload (resource spans -> scope spans -> one span per invocation,
// kind CLIENT, status OK) and posts it fire-and-forget on a background
// goroutine. All errors, including a non-2xx response, are silently
// swallowed — the exporter must never be able to fail a flow.
type OTLPExporter struct {
	Endpoint    string
	ServiceName string
	Client      *http.Client
}

// NewOTLPExporter builds an exporter posting to endpoint (expected to be a
// full URL accepting OTLP/HTTP JSON trace payloads, e.g.
// "http://collector:4318/v1/traces").
func NewOTLPExporter(endpoint, serviceName string) *OTLPExporter {
	return &OTLPExporter{
		Endpoint:    endpoint,
		ServiceName: serviceName,
		Client:      &http.Client{Timeout: 5 * time.Second},
	}
}

// Export is an ExportFunc: wire it directly as a Log's export hook.
func (e *OTLPExporter) Export(attrs map[string]interface{}) {
	go e.post(buildPayload(e.ServiceName, attrs))
}

func (e *OTLPExporter) post(payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.Client.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

func traceIDFor(flowID string) string {
	if flowID != "" {
		stripped := strings.ReplaceAll(flowID, "-", "")
		if len(stripped) == 32 {
			return stripped
		}
		if len(stripped) > 32 {
			return stripped[:32]
		}
		return stripped + strings.Repeat("0", 32-len(stripped))
	}
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func spanIDFor() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// buildPayload formats a flat attribute map (as produced by Attrs) into an
// OTLP HTTP/JSON trace payload: one resource span, one scope span, one
// span per invocation, kind CLIENT, status OK.
func buildPayload(serviceName string, m map[string]interface{}) []byte {
	now := time.Now()
	durationMS, _ := m["duration_ms"].(int64)
	start := now.Add(-time.Duration(durationMS) * time.Millisecond)

	var attrs []map[string]interface{}
	for _, key := range []string{"provider_system", "model_id", "step_qualname", "contract_hash"} {
		if v, ok := m[key].(string); ok {
			attrs = append(attrs, kv(key, v))
		}
	}
	if v, ok := m["attempts"].(int); ok {
		attrs = append(attrs, kvInt("attempts", v))
	}
	if v, ok := m["cache_hit"].(bool); ok {
		attrs = append(attrs, kvBool("cache_hit", v))
	}
	attrs = append(attrs, kvInt("duration_ms", int(durationMS)))
	if v, ok := m["cost_usd"].(float64); ok {
		attrs = append(attrs, kvDouble("cost_usd", v))
	}
	if v, ok := m["input_tokens"].(int); ok {
		attrs = append(attrs, kvInt("input_tokens", v))
	}
	if v, ok := m["output_tokens"].(int); ok {
		attrs = append(attrs, kvInt("output_tokens", v))
	}

	flowID, _ := m["flow_id"].(string)
	name, _ := m["step_qualname"].(string)

	span := map[string]interface{}{
		"traceId":           traceIDFor(flowID),
		"spanId":            spanIDFor(),
		"name":              name,
		"kind":              3, // SPAN_KIND_CLIENT
		"startTimeUnixNano": fmtNano(start),
		"endTimeUnixNano":   fmtNano(now),
		"attributes":        attrs,
		"status":            map[string]interface{}{"code": 1}, // STATUS_CODE_OK
	}

	payload := map[string]interface{}{
		"resourceSpans": []map[string]interface{}{
			{
				"resource": map[string]interface{}{
					"attributes": []map[string]interface{}{
						kv("service.name", serviceName),
					},
				},
				"scopeSpans": []map[string]interface{}{
					{
						"scope": map[string]interface{}{"name": "flowrt"},
						"spans": []map[string]interface{}{span},
					},
				},
			},
		},
	}

	out, _ := json.Marshal(payload)
	return out
}

func fmtNano(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func kv(key, value string) map[string]interface{} {
	return map[string]interface{}{"key": key, "value": map[string]interface{}{"stringValue": value}}
}

func kvInt(key string, value int) map[string]interface{} {
	return map[string]interface{}{"key": key, "value": map[string]interface{}{"intValue": value}}
}

func kvDouble(key string, value float64) map[string]interface{} {
	return map[string]interface{}{"key": key, "value": map[string]interface{}{"doubleValue": value}}
}

func kvBool(key string, value bool) map[string]interface{} {
	return map[string]interface{}{"key": key, "value": map[string]interface{}{"boolValue": value}}
}

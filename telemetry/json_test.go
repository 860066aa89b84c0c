//go:build !tinygo

// json.go's writer only builds under tinygo; this file mirrors its escaping
// and OTLP payload shape against BodyBuf so the format can be checked with
// `go test` on the host.
package telemetry

import (
	"encoding/json"
	"strings"
	"testing"
)

type jsonWriter struct {
	pos int
}

func (w *jsonWriter) reset() { w.pos = 0 }
func (w *jsonWriter) len() int { return w.pos }

func (w *jsonWriter) writeRaw(s string) {
	if w.pos+len(s) > len(BodyBuf) {
		return
	}
	copy(BodyBuf[w.pos:], s)
	w.pos += len(s)
}

func (w *jsonWriter) writeByte(b byte) {
	if w.pos < len(BodyBuf) {
		BodyBuf[w.pos] = b
		w.pos++
	}
}

func (w *jsonWriter) escapeByte(b byte) {
	switch b {
	case '"':
		w.writeRaw(`\"`)
	case '\\':
		w.writeRaw(`\\`)
	case '\n':
		w.writeRaw(`\n`)
	case '\r':
		w.writeRaw(`\r`)
	case '\t':
		w.writeRaw(`\t`)
	default:
		if b >= 32 && b < 127 {
			w.writeByte(b)
		}
	}
}

func (w *jsonWriter) writeString(s string) {
	w.writeByte('"')
	for i := 0; i < len(s); i++ {
		w.escapeByte(s[i])
	}
	w.writeByte('"')
}

func (w *jsonWriter) writeBytes(b []byte, n int) {
	w.writeByte('"')
	for i := 0; i < n && i < len(b); i++ {
		w.escapeByte(b[i])
	}
	w.writeByte('"')
}

func (w *jsonWriter) writeUint64(n uint64) {
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if i == len(buf) {
		w.writeByte('0')
		return
	}
	for ; i < len(buf); i++ {
		w.writeByte(buf[i])
	}
}

func (w *jsonWriter) writeInt64(n int64) {
	w.writeByte('"')
	if n < 0 {
		w.writeByte('-')
		n = -n
	}
	w.writeUint64(uint64(n))
	w.writeByte('"')
}

func (w *jsonWriter) writeInt(n int) {
	if n < 0 {
		w.writeByte('-')
		n = -n
	}
	w.writeUint64(uint64(n))
}

func (w *jsonWriter) writeHex(b []byte) {
	const hexDigits = "0123456789abcdef"
	w.writeByte('"')
	for _, v := range b {
		w.writeByte(hexDigits[v>>4])
		w.writeByte(hexDigits[v&0xf])
	}
	w.writeByte('"')
}

func TestJsonWriterRawAndString(t *testing.T) {
	var w jsonWriter
	w.writeRaw(`{"test":`)
	w.writeString("hello")
	w.writeRaw(`}`)

	if got, want := string(BodyBuf[:w.len()]), `{"test":"hello"}`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestJsonWriterStringEscaping(t *testing.T) {
	cases := []struct{ input, want string }{
		{`hello`, `"hello"`},
		{`he"llo`, `"he\"llo"`},
		{"line1\nline2", `"line1\nline2"`},
		{`back\slash`, `"back\\slash"`},
		{"tab\there", `"tab\there"`},
	}
	for _, tc := range cases {
		var w jsonWriter
		w.writeString(tc.input)
		if got := string(BodyBuf[:w.len()]); got != tc.want {
			t.Errorf("writeString(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestJsonWriterBytesTruncatesToN(t *testing.T) {
	var w jsonWriter
	w.writeBytes([]byte("hello world"), 5)
	if got, want := string(BodyBuf[:w.len()]), `"hello"`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestJsonWriterInt64(t *testing.T) {
	cases := []struct {
		input int64
		want  string
	}{
		{0, `"0"`}, {1, `"1"`}, {-1, `"-1"`},
		{12345, `"12345"`}, {-12345, `"-12345"`},
		{1234567890123, `"1234567890123"`},
	}
	for _, tc := range cases {
		var w jsonWriter
		w.writeInt64(tc.input)
		if got := string(BodyBuf[:w.len()]); got != tc.want {
			t.Errorf("writeInt64(%d) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestJsonWriterInt(t *testing.T) {
	cases := []struct {
		input int
		want  string
	}{
		{0, `0`}, {1, `1`}, {-1, `-1`}, {12345, `12345`}, {-999, `-999`},
	}
	for _, tc := range cases {
		var w jsonWriter
		w.writeInt(tc.input)
		if got := string(BodyBuf[:w.len()]); got != tc.want {
			t.Errorf("writeInt(%d) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestJsonWriterHex(t *testing.T) {
	cases := []struct {
		input []byte
		want  string
	}{
		{[]byte{0x00}, `"00"`},
		{[]byte{0xff}, `"ff"`},
		{[]byte{0x01, 0x23, 0x45, 0x67}, `"01234567"`},
		{[]byte{0xab, 0xcd, 0xef}, `"abcdef"`},
	}
	for _, tc := range cases {
		var w jsonWriter
		w.writeHex(tc.input)
		if got := string(BodyBuf[:w.len()]); got != tc.want {
			t.Errorf("writeHex(%x) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func decodeOrFail(t *testing.T, jsonStr string) map[string]interface{} {
	t.Helper()
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		t.Fatalf("invalid JSON: %v\nJSON: %s", err, jsonStr)
	}
	return data
}

func TestBuildLogsJSONShape(t *testing.T) {
	ResetState()
	LogInfo("boot:confirmed")

	bodyLen := buildLogsJSONTest()
	if bodyLen == 0 {
		t.Fatal("buildLogsJSONTest returned 0")
	}
	jsonStr := string(BodyBuf[:bodyLen])
	data := decodeOrFail(t, jsonStr)

	if _, ok := data["resourceLogs"]; !ok {
		t.Error("missing resourceLogs key")
	}
	if !strings.Contains(jsonStr, "boot:confirmed") {
		t.Error("JSON does not contain expected message")
	}
	if !strings.Contains(jsonStr, `"severityNumber":9`) {
		t.Error("JSON does not contain expected severity (9 for INFO)")
	}
}

func TestBuildLogsJSONMultipleEntries(t *testing.T) {
	ResetState()
	LogDebug("debug msg")
	LogInfo("info msg")
	LogWarn("warn msg")
	LogError("error msg")

	bodyLen := buildLogsJSONTest()
	jsonStr := string(BodyBuf[:bodyLen])
	decodeOrFail(t, jsonStr)

	for _, msg := range []string{"debug msg", "info msg", "warn msg", "error msg"} {
		if !strings.Contains(jsonStr, msg) {
			t.Errorf("JSON missing message: %s", msg)
		}
	}
}

func TestBuildLogsJSONEmptyQueue(t *testing.T) {
	ResetState()
	if bodyLen := buildLogsJSONTest(); bodyLen != 0 {
		t.Errorf("expected 0 for empty queue, got %d", bodyLen)
	}
}

func TestBuildMetricsJSONGauge(t *testing.T) {
	ResetState()
	RecordGauge("boot.active_bank", 1)

	bodyLen := buildMetricsJSONTest()
	if bodyLen == 0 {
		t.Fatal("buildMetricsJSONTest returned 0")
	}
	jsonStr := string(BodyBuf[:bodyLen])
	data := decodeOrFail(t, jsonStr)

	if _, ok := data["resourceMetrics"]; !ok {
		t.Error("missing resourceMetrics key")
	}
	if !strings.Contains(jsonStr, "boot.active_bank") {
		t.Error("JSON does not contain expected metric name")
	}
	if !strings.Contains(jsonStr, `"gauge"`) {
		t.Error("JSON does not contain gauge structure")
	}
}

func TestBuildMetricsJSONCounter(t *testing.T) {
	ResetState()
	RecordCounter("control.reboot_requested", 1)

	bodyLen := buildMetricsJSONTest()
	jsonStr := string(BodyBuf[:bodyLen])
	decodeOrFail(t, jsonStr)

	if !strings.Contains(jsonStr, `"sum"`) {
		t.Error("JSON does not contain sum structure for counter")
	}
	if !strings.Contains(jsonStr, `"isMonotonic":true`) {
		t.Error("JSON does not contain isMonotonic:true")
	}
}

func TestBuildMetricsJSONEmptyQueue(t *testing.T) {
	ResetState()
	if bodyLen := buildMetricsJSONTest(); bodyLen != 0 {
		t.Errorf("expected 0 for empty queue, got %d", bodyLen)
	}
}

func TestBuildSpansJSONShape(t *testing.T) {
	ResetState()

	var traceID [16]byte
	for i := range traceID {
		traceID[i] = byte(i + 0x10)
	}
	SetTraceContext(traceID, [8]byte{})

	idx := StartSpanTest("mqtt.publish_status")
	EndSpan(idx, true)

	bodyLen := buildSpansJSONTest()
	if bodyLen == 0 {
		t.Fatal("buildSpansJSONTest returned 0")
	}
	jsonStr := string(BodyBuf[:bodyLen])
	data := decodeOrFail(t, jsonStr)

	if _, ok := data["resourceSpans"]; !ok {
		t.Error("missing resourceSpans key")
	}
	if !strings.Contains(jsonStr, "mqtt.publish_status") {
		t.Error("JSON does not contain expected span name")
	}
	if !strings.Contains(jsonStr, "10111213141516171819") {
		t.Error("JSON does not contain expected trace ID hex")
	}
	if !strings.Contains(jsonStr, `"code":1`) {
		t.Error("JSON does not contain status OK (code 1)")
	}
}

func TestBuildSpansJSONEmptyQueue(t *testing.T) {
	ResetState()
	if bodyLen := buildSpansJSONTest(); bodyLen != 0 {
		t.Errorf("expected 0 for empty queue, got %d", bodyLen)
	}
}

// buildLogsJSONTest mirrors json.go's BuildLogsJSON against BodyBuf/LogQueue.
func buildLogsJSONTest() int {
	if LogCount == 0 {
		return 0
	}

	var w jsonWriter
	w.writeRaw(`{"resourceLogs":[{"resource":{"attributes":[`)
	w.writeRaw(`{"key":"service.name","value":{"stringValue":"crispy-samplefw"}}`)
	w.writeRaw(`]},"scopeLogs":[{"logRecords":[`)

	for i := 0; i < LogCount; i++ {
		if i > 0 {
			w.writeByte(',')
		}
		entry := &LogQueue[(LogHead+i)%len(LogQueue)]

		w.writeRaw(`{"timeUnixNano":`)
		w.writeInt64(entry.Timestamp)
		w.writeRaw(`,"severityNumber":`)
		w.writeInt(int(entry.Severity))
		w.writeRaw(`,"body":{"stringValue":`)
		w.writeBytes(entry.Body[:], int(entry.BodyLen))
		w.writeByte('}')

		if entry.HasTrace {
			w.writeRaw(`,"traceId":`)
			w.writeHex(entry.TraceID[:])
			w.writeRaw(`,"spanId":`)
			w.writeHex(entry.SpanID[:])
		}
		w.writeByte('}')
	}

	w.writeRaw(`]}]}]}`)
	return w.len()
}

// buildMetricsJSONTest mirrors json.go's BuildMetricsJSON against
// BodyBuf/MetricQueue.
func buildMetricsJSONTest() int {
	if MetricCount == 0 {
		return 0
	}

	var w jsonWriter
	w.writeRaw(`{"resourceMetrics":[{"resource":{"attributes":[`)
	w.writeRaw(`{"key":"service.name","value":{"stringValue":"crispy-samplefw"}}`)
	w.writeRaw(`]},"scopeMetrics":[{"metrics":[`)

	for i := 0; i < MetricCount; i++ {
		if i > 0 {
			w.writeByte(',')
		}
		point := &MetricQueue[(MetricHead+i)%len(MetricQueue)]

		w.writeRaw(`{"name":`)
		w.writeBytes(point.Name[:], int(point.NameLen))
		if point.IsGauge {
			w.writeRaw(`,"gauge":{"dataPoints":[{"timeUnixNano":`)
			w.writeInt64(point.Timestamp)
			w.writeRaw(`,"asInt":`)
			w.writeInt64(point.Value)
			w.writeRaw(`}]}`)
		} else {
			w.writeRaw(`,"sum":{"dataPoints":[{"timeUnixNano":`)
			w.writeInt64(point.Timestamp)
			w.writeRaw(`,"asInt":`)
			w.writeInt64(point.Value)
			w.writeRaw(`}],"aggregationTemporality":2,"isMonotonic":true}`)
		}
		w.writeByte('}')
	}

	w.writeRaw(`]}]}]}`)
	return w.len()
}

// buildSpansJSONTest mirrors json.go's BuildSpansJSON's per-span fields
// against BodyBuf/SpanQueue, and like it, clears EndTime on every span it
// emits. Unlike it, it does not skip spans whose trace ID is all zero.
func buildSpansJSONTest() int {
	completed := 0
	for i := range SpanQueue {
		if !SpanQueue[i].Active && SpanQueue[i].EndTime > 0 {
			completed++
		}
	}
	if completed == 0 {
		return 0
	}

	var w jsonWriter
	w.writeRaw(`{"resourceSpans":[{"resource":{"attributes":[`)
	w.writeRaw(`{"key":"service.name","value":{"stringValue":"crispy-samplefw"}}`)
	w.writeRaw(`]},"scopeSpans":[{"spans":[`)

	first := true
	for i := range SpanQueue {
		span := &SpanQueue[i]
		if span.Active || span.EndTime == 0 {
			continue
		}
		if !first {
			w.writeByte(',')
		}
		first = false

		w.writeRaw(`{"traceId":`)
		w.writeHex(span.TraceID[:])
		w.writeRaw(`,"spanId":`)
		w.writeHex(span.SpanID[:])

		hasParent := false
		for _, b := range span.ParentID {
			if b != 0 {
				hasParent = true
				break
			}
		}
		if hasParent {
			w.writeRaw(`,"parentSpanId":`)
			w.writeHex(span.ParentID[:])
		}

		w.writeRaw(`,"name":`)
		w.writeBytes(span.Name[:], int(span.NameLen))
		w.writeRaw(`,"kind":`)
		w.writeInt(int(span.Kind))
		w.writeRaw(`,"startTimeUnixNano":`)
		w.writeInt64(span.StartTime)
		w.writeRaw(`,"endTimeUnixNano":`)
		w.writeInt64(span.EndTime)
		w.writeRaw(`,"status":{"code":`)
		if span.StatusOK {
			w.writeInt(SpanStatusOK)
		} else {
			w.writeInt(SpanStatusError)
		}
		w.writeRaw(`}}`)

		span.EndTime = 0
	}

	w.writeRaw(`]}]}]}`)
	return w.len()
}

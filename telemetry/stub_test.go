//go:build !tinygo

// The telemetry package's real implementation (telemetry.go) talks to a
// *xnet.StackAsync and is only ever compiled under tinygo, where `go test`
// doesn't run. This file re-implements the same queues and call surface
// against plain host time.Now() so the package's logic can be exercised
// with `go test` on any machine.
package telemetry

import (
	"sync"
	"time"
)

const (
	FlushInterval = 30 * time.Second
	HTTPTimeout   = 10 * time.Second
	MaxRetries    = 2
)

const (
	SeverityDebug = 5
	SeverityInfo  = 9
	SeverityWarn  = 13
	SeverityError = 17
)

const (
	SpanStatusUnset = 0
	SpanStatusOK    = 1
	SpanStatusError = 2
)

const (
	SpanKindInternal = 1
	SpanKindServer   = 2
	SpanKindClient   = 3
)

var BodyBuf [2048]byte

type LogEntry struct {
	Timestamp int64
	Severity  uint8
	BodyLen   uint8
	Body      [64]byte
	TraceID   [16]byte
	SpanID    [8]byte
	HasTrace  bool
}

type MetricPoint struct {
	Timestamp int64
	Value     int64
	NameLen   uint8
	Name      [32]byte
	IsGauge   bool
}

// PrevSpanID is what CurrentSpanID gets restored to when this span ends,
// so a sibling started afterwards sees the right parent.
type Span struct {
	TraceID    [16]byte
	SpanID     [8]byte
	ParentID   [8]byte
	PrevSpanID [8]byte
	StartTime  int64
	EndTime    int64
	NameLen    uint8
	Name       [32]byte
	Kind       uint8
	StatusOK   bool
	Active     bool
}

var (
	LogQueue    [8]LogEntry
	LogHead     int
	LogCount    int
	MetricQueue [8]MetricPoint
	MetricHead  int
	MetricCount int
	SpanQueue   [4]Span
	SpanHead    int
	SpanCount   int
)

var (
	mu          sync.Mutex
	enabled     bool
	HasTraceCtx bool

	CurrentTraceID [16]byte
	CurrentSpanID  [8]byte

	SentLogs    int
	SentMetrics int
	SentSpans   int
	SendErrors  int
)

// ResetState clears every queue and counter between test cases.
func ResetState() {
	mu.Lock()
	defer mu.Unlock()

	LogHead, LogCount = 0, 0
	MetricHead, MetricCount = 0, 0
	SpanHead, SpanCount = 0, 0

	enabled = true
	HasTraceCtx = false

	SentLogs, SentMetrics, SentSpans, SendErrors = 0, 0, 0, 0

	for i := range LogQueue {
		LogQueue[i] = LogEntry{}
	}
	for i := range MetricQueue {
		MetricQueue[i] = MetricPoint{}
	}
	for i := range SpanQueue {
		SpanQueue[i] = Span{}
	}
}

func Log(severity uint8, msg string) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}

	idx := (LogHead + LogCount) % len(LogQueue)
	if LogCount >= len(LogQueue) {
		LogHead = (LogHead + 1) % len(LogQueue)
	} else {
		LogCount++
	}

	entry := &LogQueue[idx]
	entry.Timestamp = time.Now().UnixNano()
	entry.Severity = severity

	n := len(msg)
	if n > len(entry.Body) {
		n = len(entry.Body)
	}
	entry.BodyLen = uint8(n)
	copy(entry.Body[:], msg[:n])

	entry.HasTrace = HasTraceCtx
	if HasTraceCtx {
		entry.TraceID = CurrentTraceID
		entry.SpanID = CurrentSpanID
	}
}

func LogDebug(msg string) { Log(SeverityDebug, msg) }
func LogInfo(msg string)  { Log(SeverityInfo, msg) }
func LogWarn(msg string)  { Log(SeverityWarn, msg) }
func LogError(msg string) { Log(SeverityError, msg) }

func RecordGauge(name string, value int64)   { recordMetric(name, value, true) }
func RecordCounter(name string, value int64) { recordMetric(name, value, false) }

func recordMetric(name string, value int64, isGauge bool) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}

	idx := (MetricHead + MetricCount) % len(MetricQueue)
	if MetricCount >= len(MetricQueue) {
		MetricHead = (MetricHead + 1) % len(MetricQueue)
	} else {
		MetricCount++
	}

	point := &MetricQueue[idx]
	point.Timestamp = time.Now().UnixNano()
	point.Value = value
	point.IsGauge = isGauge

	n := len(name)
	if n > len(point.Name) {
		n = len(point.Name)
	}
	point.NameLen = uint8(n)
	copy(point.Name[:], name[:n])
}

// SetTraceContext fakes what GenerateTraceID would have produced, without
// needing a *xnet.StackAsync to draw randomness from.
func SetTraceContext(traceID [16]byte, spanID [8]byte) {
	mu.Lock()
	defer mu.Unlock()
	CurrentTraceID = traceID
	CurrentSpanID = spanID
	HasTraceCtx = true
}

// StartSpanTest stands in for StartSpan, which needs a live stack to mint a
// random span ID; tests derive one from the slot index instead.
func StartSpanTest(name string) int {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return -1
	}

	idx := -1
	for i := range SpanQueue {
		if !SpanQueue[i].Active {
			idx = i
			break
		}
	}
	if idx == -1 {
		idx = SpanHead
		SpanHead = (SpanHead + 1) % len(SpanQueue)
	}

	span := &SpanQueue[idx]
	*span = Span{}
	span.Active = true
	span.StartTime = time.Now().UnixNano()
	span.Kind = SpanKindInternal
	span.TraceID = CurrentTraceID
	span.ParentID = CurrentSpanID
	span.PrevSpanID = CurrentSpanID
	span.SpanID[0] = byte(idx + 1)
	CurrentSpanID = span.SpanID

	n := len(name)
	if n > len(span.Name) {
		n = len(span.Name)
	}
	span.NameLen = uint8(n)
	copy(span.Name[:], name[:n])

	return idx
}

func EndSpan(idx int, statusOK bool) {
	mu.Lock()
	defer mu.Unlock()
	if idx < 0 || idx >= len(SpanQueue) {
		return
	}

	span := &SpanQueue[idx]
	if !span.Active {
		return
	}
	span.EndTime = time.Now().UnixNano()
	span.StatusOK = statusOK
	span.Active = false
	CurrentSpanID = span.PrevSpanID

	if SpanCount < len(SpanQueue) {
		SpanCount++
	}
}

func GetLogQueue() []LogEntry {
	mu.Lock()
	defer mu.Unlock()
	out := make([]LogEntry, LogCount)
	for i := range out {
		out[i] = LogQueue[(LogHead+i)%len(LogQueue)]
	}
	return out
}

func GetMetricQueue() []MetricPoint {
	mu.Lock()
	defer mu.Unlock()
	out := make([]MetricPoint, MetricCount)
	for i := range out {
		out[i] = MetricQueue[(MetricHead+i)%len(MetricQueue)]
	}
	return out
}

// GetSpanQueue returns every span that has ended, regardless of whether it
// has since been overwritten by the circular queue's head pointer.
func GetSpanQueue() []Span {
	mu.Lock()
	defer mu.Unlock()
	var out []Span
	for i := range SpanQueue {
		if !SpanQueue[i].Active && SpanQueue[i].EndTime > 0 {
			out = append(out, SpanQueue[i])
		}
	}
	return out
}

func Enable() {
	mu.Lock()
	enabled = true
	mu.Unlock()
}

func Disable() {
	mu.Lock()
	enabled = false
	mu.Unlock()
}

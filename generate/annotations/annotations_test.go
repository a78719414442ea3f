package annotations

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCollectorConcurrentAdd(t *testing.T) {
	var mu sync.Mutex
	seen := 0
	c := NewCollector(func(Event) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddTiming(EvalFailed, time.Now(), map[string]interface{}{"expr": "?x"})
		}()
	}
	wg.Wait()

	assert.Len(t, c.Events(), 50)
	assert.Equal(t, 50, seen)
	assert.Equal(t, 50, c.Count(EvalFailed))

	c.Reset()
	assert.Empty(t, c.Events())
}

func TestDisabledCollector(t *testing.T) {
	var nilCollector *Collector
	assert.False(t, nilCollector.Enabled())
	nilCollector.AddTiming(QueryInvoked, time.Now(), nil)
	assert.Empty(t, nilCollector.Events())

	c := NewCollector(nil)
	c.AddTiming(QueryInvoked, time.Now(), nil)
	assert.Empty(t, c.Events())
}

func TestMulti(t *testing.T) {
	assert.Nil(t, Multi(nil, nil))

	var a, b int
	h := Multi(func(Event) { a++ }, nil, func(Event) { b++ })
	h(Event{Name: QueryInvoked})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestOutputFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewOutputFormatter(&buf)

	f.Handle(Event{Name: QueryComplete, Latency: 1500 * time.Microsecond, Data: map[string]interface{}{
		"success": true, "unit": "triples", "count": 4,
	}})
	f.Handle(Event{Name: EvalFailed, Latency: 10 * time.Microsecond, Data: map[string]interface{}{
		"expr": "(iri ?x)", "error": "unbound variable ?x",
	}})
	f.Handle(Event{Name: QueryComplete, Data: map[string]interface{}{
		"success": false, "error": "boom",
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[1.5ms] === Query done with 4 triples.", lines[0])
	assert.Equal(t, "[10µs] ⚠ (iri ?x): unbound variable ?x", lines[1])
	assert.Contains(t, lines[2], "Query failed: boom")
}

func TestTruncateQuery(t *testing.T) {
	assert.Equal(t, "[:generate :bind [1 ?x]]", truncateQuery("[:generate\n   :bind [1 ?x]]"))
	long := truncateQuery(strings.Repeat("a ", 100))
	assert.Len(t, long, 80)
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestLogrusHandler(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h := LogrusHandler(logger)

	h(Event{Name: EvalFailed, Data: map[string]interface{}{"expr": "?x"}})
	h(Event{Name: IteratorExpanded, Data: map[string]interface{}{"iterator": "http://it"}})
	h(Event{Name: QueryComplete, Data: map[string]interface{}{"success": false}})

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, logrus.WarnLevel, entries[0].Level)
	assert.Equal(t, "?x", entries[0].Data["expr"])
	assert.Equal(t, logrus.DebugLevel, entries[1].Level)
	assert.Equal(t, IteratorExpanded, entries[1].Data["event"])
	assert.Equal(t, logrus.ErrorLevel, entries[2].Level)
}

func TestTraceHandler(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	h := TraceHandler(context.Background(), provider.Tracer("test"))

	start := time.Now()
	h(Event{Name: SubQueryInvoked, Start: start, End: start.Add(time.Millisecond), Data: map[string]interface{}{
		"callee": "http://q", "calls": 2,
	}})
	h(Event{Name: ErrorTimeout, Start: start, End: start, Data: map[string]interface{}{
		"error": errors.New("deadline"),
	}})

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, SubQueryInvoked, spans[0].Name())
	assert.True(t, spans[0].EndTime().Equal(start.Add(time.Millisecond)))
	assert.Len(t, spans[0].Attributes(), 2)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

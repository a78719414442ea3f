// Package annotations provides a low-overhead event system for tracking
// query execution and reporting evaluation failures.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Query lifecycle
	QueryInvoked     = "query/invoked"
	QueryPlanCreated = "query/plan.created"
	QueryComplete    = "query/completed"

	// Plan node execution
	IteratorExpanded = "iterator/expanded"
	SourceFetched    = "source/fetched"
	WhereMatched     = "where/matched"
	SubQueryInvoked  = "subquery/invoked"
	TriplesEmitted   = "triples/emitted"

	// Per-binding evaluation failures, recovered locally
	EvalFailed = "eval/failed"

	// Errors
	ErrorQueryParsing  = "error/query.parsing"
	ErrorQueryCompile  = "error/query.compile"
	ErrorQueryInternal = "error/query.internal"
	ErrorTimeout       = "error/timeout"
)

// Event represents a single annotation event during query execution.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Additional event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Multi fans events out to several handlers; nil handlers are skipped.
func Multi(handlers ...Handler) Handler {
	var active []Handler
	for _, h := range handlers {
		if h != nil {
			active = append(active, h)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	}
	return func(event Event) {
		for _, h := range active {
			h(event)
		}
	}
}

// Collector accumulates events during query execution.
// A nil or handler-less collector drops everything.
type Collector struct {
	enabled bool
	handler Handler
	events  []Event
	mu      sync.Mutex
}

// NewCollector creates a new annotation collector.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 64),
	}
}

// Enabled reports whether events are being recorded
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Handler returns the underlying event handler.
func (c *Collector) Handler() Handler {
	if c == nil {
		return nil
	}
	return c.handler
}

// Add records a new event.
// Thread-safe for concurrent access.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	c.handler(event)
}

// AddTiming records an event that started at start and ends now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns all collected events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Count returns how many events with the given name were recorded
func (c *Collector) Count(name string) int {
	n := 0
	for _, e := range c.Events() {
		if e.Name == name {
			n++
		}
	}
	return n
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// OperationType represents the kind of downstream call being measured
type OperationType string

const (
	// ReadOperation represents a read from a datastore
	ReadOperation OperationType = "READ"
	// WriteOperation represents a write to a datastore
	WriteOperation OperationType = "WRITE"
	// QueryOperation represents an ad hoc query
	QueryOperation OperationType = "QUERY"
	// ConnectOperation represents credential resolution and connection setup
	ConnectOperation OperationType = "CONNECT"
	// ExternalOperation represents a call to the aggregator API
	ExternalOperation OperationType = "EXTERNAL"
)

// Invocation stores the metrics of one handled request
type Invocation struct {
	Function   string                 `json:"function"`
	Method     string                 `json:"method"`
	Path       string                 `json:"path"`
	ColdStart  bool                   `json:"coldStart"`
	StatusCode int                    `json:"statusCode"`
	StartTime  time.Time              `json:"startTime"`
	EndTime    time.Time              `json:"endTime"`
	Duration   time.Duration          `json:"duration"`
	Operations []*OperationMetric     `json:"operations"`
	Summary    map[string]interface{} `json:"summary"`
}

// OperationMetric represents metrics for a single downstream call
type OperationMetric struct {
	Type         OperationType `json:"type"`
	Name         string        `json:"name"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      time.Time     `json:"endTime"`
	Duration     time.Duration `json:"duration"`
	Error        error         `json:"-"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

// Collector collects the operations of a single invocation
type Collector struct {
	mu      sync.Mutex
	current *Invocation
	now     func() time.Time
}

// NewCollector creates a collector for the named function
func NewCollector(function string) *Collector {
	c := &Collector{now: time.Now}
	c.current = &Invocation{Function: function}
	return c
}

// Start records the request being handled and resets any previous operations
func (c *Collector) Start(method, path string, coldStart bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = &Invocation{
		Function:   c.current.Function,
		Method:     method,
		Path:       path,
		ColdStart:  coldStart,
		StartTime:  c.now(),
		Operations: make([]*OperationMetric, 0),
		Summary:    make(map[string]interface{}),
	}
}

// Measure times operation and returns its error unchanged
func (c *Collector) Measure(opType OperationType, name string, operation func() error) error {
	if operation == nil {
		return fmt.Errorf("operation function cannot be nil")
	}

	metric := &OperationMetric{
		Type:      opType,
		Name:      name,
		StartTime: c.now(),
	}

	err := operation()
	metric.EndTime = c.now()
	metric.Duration = metric.EndTime.Sub(metric.StartTime)

	if err != nil {
		metric.Error = err
		metric.ErrorMessage = err.Error()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Operations = append(c.current.Operations, metric)

	return err
}

// End completes the invocation, calculates the summary and returns the result
func (c *Collector) End(statusCode int) *Invocation {
	c.mu.Lock()
	defer c.mu.Unlock()

	inv := c.current
	inv.StatusCode = statusCode
	inv.EndTime = c.now()
	if inv.StartTime.IsZero() {
		inv.StartTime = inv.EndTime
	}
	inv.Duration = inv.EndTime.Sub(inv.StartTime)
	if inv.Summary == nil {
		inv.Summary = make(map[string]interface{})
	}

	var totalDuration time.Duration
	var errorCount int64
	for _, op := range inv.Operations {
		totalDuration += op.Duration
		if op.Error != nil {
			errorCount++
		}
	}

	opCount := int64(len(inv.Operations))
	inv.Summary["operationCount"] = opCount
	inv.Summary["durationMs"] = inv.Duration.Milliseconds()
	inv.Summary["coldStart"] = inv.ColdStart
	if opCount > 0 {
		inv.Summary["downstreamMs"] = totalDuration.Milliseconds()
		inv.Summary["errorCount"] = errorCount

		// Percentiles only mean something with a handful of samples
		if opCount >= 10 {
			durations := make([]int64, 0, opCount)
			for _, op := range inv.Operations {
				durations = append(durations, op.Duration.Nanoseconds())
			}
			sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
			inv.Summary["p50"] = durations[opCount*50/100]
			inv.Summary["p90"] = durations[opCount*90/100]
		}
	}

	return inv
}

type contextKey struct{}

// WithCollector returns a context carrying c
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the collector carried by ctx, or nil
func FromContext(ctx context.Context) *Collector {
	c, _ := ctx.Value(contextKey{}).(*Collector)
	return c
}

// Measure times operation on the context's collector, or just runs it when there is none
func Measure(ctx context.Context, opType OperationType, name string, operation func() error) error {
	if c := FromContext(ctx); c != nil {
		return c.Measure(opType, name, operation)
	}
	return operation()
}

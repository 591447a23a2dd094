// Package metrics provides an in-process metrics registry with a JSON
// export handler for the /metrics endpoint.
package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsRegistry manages application metrics
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// Metric represents a single metric
type Metric interface {
	GetName() string
	GetType() string
	GetValue() interface{}
	GetHelp() string
}

// Counter represents a monotonically increasing metric
type Counter struct {
	name  string
	help  string
	value int64
}

// GetName returns the counter name
func (c *Counter) GetName() string { return c.name }

// GetType returns the metric type
func (c *Counter) GetType() string { return "counter" }

// GetValue returns the current value
func (c *Counter) GetValue() interface{} { return atomic.LoadInt64(&c.value) }

// GetHelp returns the help text
func (c *Counter) GetHelp() string { return c.help }

// Inc increments the counter by one
func (c *Counter) Inc() { atomic.AddInt64(&c.value, 1) }

// Add increments the counter by delta
func (c *Counter) Add(delta int64) { atomic.AddInt64(&c.value, delta) }

// Gauge represents a metric that can go up and down
type Gauge struct {
	name  string
	help  string
	value int64
}

// GetName returns the gauge name
func (g *Gauge) GetName() string { return g.name }

// GetType returns the metric type
func (g *Gauge) GetType() string { return "gauge" }

// GetValue returns the current value
func (g *Gauge) GetValue() interface{} { return atomic.LoadInt64(&g.value) }

// GetHelp returns the help text
func (g *Gauge) GetHelp() string { return g.help }

// Set sets the gauge value
func (g *Gauge) Set(value int64) { atomic.StoreInt64(&g.value, value) }

// Global metrics registry
var defaultRegistry *MetricsRegistry
var once sync.Once

// GetRegistry returns the default metrics registry
func GetRegistry() *MetricsRegistry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry
func NewRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]Metric),
	}
}

// NewCounter creates and registers a new counter. Registering the same
// name twice returns the existing counter.
func (r *MetricsRegistry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.metrics[name].(*Counter); ok {
		return existing
	}

	counter := &Counter{name: name, help: help}
	r.metrics[name] = counter
	return counter
}

// NewGauge creates and registers a new gauge. Registering the same name
// twice returns the existing gauge.
func (r *MetricsRegistry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.metrics[name].(*Gauge); ok {
		return existing
	}

	gauge := &Gauge{name: name, help: help}
	r.metrics[name] = gauge
	return gauge
}

// MetricSnapshot is one exported metric
type MetricSnapshot struct {
	Name  string      `json:"name"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
	Help  string      `json:"help,omitempty"`
}

// Export returns a snapshot of all registered metrics, sorted by name
func (r *MetricsRegistry) Export() []MetricSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshots := make([]MetricSnapshot, 0, len(r.metrics))
	for _, metric := range r.metrics {
		snapshots = append(snapshots, MetricSnapshot{
			Name:  metric.GetName(),
			Type:  metric.GetType(),
			Value: metric.GetValue(),
			Help:  metric.GetHelp(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Name < snapshots[j].Name
	})

	return snapshots
}

// Handler serves the registry as JSON
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"timestamp": time.Now().UTC(),
			"metrics":   r.Export(),
		})
	})
}

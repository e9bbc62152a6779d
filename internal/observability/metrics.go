package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu               sync.Mutex
	startedAt        time.Time
	requestCount     map[string]int64
	requestDuration  map[string]time.Duration
	errorCount       map[string]int64
	ticketOperations map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		startedAt:        time.Now(),
		requestCount:     make(map[string]int64),
		requestDuration:  make(map[string]time.Duration),
		errorCount:       make(map[string]int64),
		ticketOperations: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestDuration[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTicketOperation counts one lifecycle operation by outcome, which is
// "ok" or an error code.
func (m *Metrics) RecordTicketOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticketOperations[op+"|"+outcome]++
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	UptimeSeconds    int64            `json:"uptime_seconds"`
	Requests         map[string]int64 `json:"requests"`
	RequestAvgMillis map[string]int64 `json:"request_avg_ms"`
	Errors           map[string]int64 `json:"errors"`
	TicketOperations map[string]int64 `json:"ticket_operations"`
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds:    int64(time.Since(m.startedAt).Seconds()),
		Requests:         make(map[string]int64, len(m.requestCount)),
		RequestAvgMillis: make(map[string]int64, len(m.requestCount)),
		Errors:           make(map[string]int64, len(m.errorCount)),
		TicketOperations: make(map[string]int64, len(m.ticketOperations)),
	}
	for k, v := range m.requestCount {
		snap.Requests[k] = v
		if v > 0 {
			snap.RequestAvgMillis[k] = m.requestDuration[k].Milliseconds() / v
		}
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	for k, v := range m.ticketOperations {
		snap.TicketOperations[k] = v
	}
	return snap
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}

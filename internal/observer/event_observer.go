package observer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// AnalysisEvent is a diagnostic event emitted by the pipeline.
type AnalysisEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	SessionID      string                 `json:"session_id,omitempty"`
	AttemptID      string                 `json:"attempt_id,omitempty"`
	Provider       string                 `json:"provider,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorKind      string                 `json:"error_kind,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of analysis event
type EventType string

const (
	AnalysisStarted   EventType = "analysis_started"
	AnalysisCompleted EventType = "analysis_completed"
	AnalysisFailed    EventType = "analysis_failed"
	AnalysisAbandoned EventType = "analysis_abandoned"
	StateChanged      EventType = "state_changed"

	ProviderRequestIssued    EventType = "provider_request_issued"
	ProviderResponseReceived EventType = "provider_response_received"
	MappingDecision          EventType = "mapping_decision"
	FallbackUsed             EventType = "fallback_used"

	ImageFetched     EventType = "image_fetched"
	ImageFetchFailed EventType = "image_fetch_failed"

	SessionExpired EventType = "session_expired"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event AnalysisEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event AnalysisEvent)
}

type attemptKey struct{}

type attemptScope struct {
	sessionID string
	attemptID string
}

// WithAttempt tags ctx so events emitted under it carry the session and
// attempt identifiers.
func WithAttempt(ctx context.Context, sessionID, attemptID string) context.Context {
	return context.WithValue(ctx, attemptKey{}, attemptScope{sessionID: sessionID, attemptID: attemptID})
}

// Emit stamps and publishes an event; a nil subject drops it.
func Emit(ctx context.Context, s Subject, event AnalysisEvent) {
	if s == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if scope, ok := ctx.Value(attemptKey{}).(attemptScope); ok {
		if event.SessionID == "" {
			event.SessionID = scope.sessionID
		}
		if event.AttemptID == "" {
			event.AttemptID = scope.attemptID
		}
	}
	s.NotifyObservers(ctx, event)
}

// LoggingObserver logs analysis events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles analysis events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"success":    event.Success,
	}
	if event.SessionID != "" {
		fields["session_id"] = event.SessionID
	}
	if event.AttemptID != "" {
		fields["attempt_id"] = event.AttemptID
	}
	if event.Provider != "" {
		fields["provider"] = event.Provider
	}
	if event.ProcessingTime > 0 {
		fields["processing_time_ms"] = event.ProcessingTime.Milliseconds()
	}
	if event.ErrorKind != "" {
		fields["error_kind"] = event.ErrorKind
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case AnalysisStarted:
		entry.Info("Face analysis started")
	case AnalysisCompleted:
		entry.Info("Face analysis completed")
	case AnalysisFailed:
		entry.Warn("Face analysis failed")
	case AnalysisAbandoned:
		entry.Info("Face analysis abandoned")
	case FallbackUsed:
		entry.Info("Provider not configured, using synthetic result")
	case ImageFetchFailed:
		entry.Error("Image fetch failed")
	case ProviderRequestIssued, ProviderResponseReceived, MappingDecision, StateChanged, ImageFetched:
		entry.Debug(string(event.EventType))
	default:
		entry.Info("Analysis event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

const latencyWindow = 1000

// MetricsObserver collects metrics from analysis events
type MetricsObserver struct {
	mu                 sync.RWMutex
	totalAnalyses      int64
	successfulAnalyses int64
	failedAnalyses     int64
	abandonedAnalyses  int64
	syntheticResults   int64
	providerRequests   int64
	failuresByKind     map[string]int64
	latencies          []float64
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{
		failuresByKind: make(map[string]int64),
		latencies:      make([]float64, 0, latencyWindow),
	}
}

// OnEvent handles analysis events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case AnalysisStarted:
		o.totalAnalyses++
	case AnalysisCompleted:
		o.successfulAnalyses++
		o.recordLatency(event.ProcessingTime)
	case AnalysisFailed:
		o.failedAnalyses++
		o.failuresByKind[event.ErrorKind]++
	case AnalysisAbandoned:
		o.abandonedAnalyses++
	case FallbackUsed:
		o.syntheticResults++
	case ProviderRequestIssued:
		o.providerRequests++
	}
}

func (o *MetricsObserver) recordLatency(d time.Duration) {
	if len(o.latencies) == latencyWindow {
		o.latencies = o.latencies[1:]
	}
	o.latencies = append(o.latencies, float64(d.Milliseconds()))
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics. Latency figures cover the most recent
// completed attempts.
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var mean, stddev, p95 float64
	if n := len(o.latencies); n > 0 {
		mean, stddev = stat.MeanStdDev(o.latencies, nil)
		if n == 1 {
			stddev = 0
		}
		sorted := append([]float64(nil), o.latencies...)
		sort.Float64s(sorted)
		p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}

	byKind := make(map[string]int64, len(o.failuresByKind))
	for k, v := range o.failuresByKind {
		byKind[k] = v
	}

	return map[string]interface{}{
		"total_analyses":      o.totalAnalyses,
		"successful_analyses": o.successfulAnalyses,
		"failed_analyses":     o.failedAnalyses,
		"abandoned_analyses":  o.abandonedAnalyses,
		"synthetic_results":   o.syntheticResults,
		"provider_requests":   o.providerRequests,
		"failures_by_kind":    byKind,
		"latency_mean_ms":     mean,
		"latency_stddev_ms":   stddev,
		"latency_p95_ms":      p95,
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	sync      bool
}

// NewEventPublisher creates a publisher that notifies observers concurrently.
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// NewSyncEventPublisher creates a publisher that notifies observers inline,
// in subscription order.
func NewSyncEventPublisher() *EventPublisher {
	p := NewEventPublisher()
	p.sync = true
	return p
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event
func (p *EventPublisher) NotifyObservers(ctx context.Context, event AnalysisEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		if p.sync {
			deliver(ctx, observer, event)
			continue
		}
		go deliver(ctx, observer, event)
	}
}

func deliver(ctx context.Context, obs Observer, event AnalysisEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}

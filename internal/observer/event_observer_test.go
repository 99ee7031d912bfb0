package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []AnalysisEvent
}

func (r *recorder) OnEvent(_ context.Context, e AnalysisEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) GetObserverName() string { return "recorder" }

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type panicky struct{}

func (panicky) OnEvent(context.Context, AnalysisEvent) { panic("boom") }
func (panicky) GetObserverName() string               { return "panicky" }

func TestEventPublisher_SyncDeliversInOrder(t *testing.T) {
	p := NewSyncEventPublisher()
	rec := &recorder{}
	p.Subscribe(panicky{})
	p.Subscribe(rec)

	ctx := context.Background()
	Emit(ctx, p, AnalysisEvent{EventType: AnalysisStarted})
	Emit(ctx, p, AnalysisEvent{EventType: AnalysisCompleted})

	require.Equal(t, 2, rec.count())
	assert.Equal(t, AnalysisStarted, rec.events[0].EventType)
	assert.False(t, rec.events[0].Timestamp.IsZero())
}

func TestEventPublisher_AsyncAndUnsubscribe(t *testing.T) {
	p := NewEventPublisher()
	rec := &recorder{}
	p.Subscribe(rec)

	Emit(context.Background(), p, AnalysisEvent{EventType: StateChanged})
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	p.Unsubscribe(rec)
	Emit(context.Background(), p, AnalysisEvent{EventType: StateChanged})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestEmit_AttemptScope(t *testing.T) {
	p := NewSyncEventPublisher()
	rec := &recorder{}
	p.Subscribe(rec)

	ctx := WithAttempt(context.Background(), "sess", "att")
	Emit(ctx, p, AnalysisEvent{EventType: ProviderRequestIssued})
	Emit(ctx, p, AnalysisEvent{EventType: ProviderRequestIssued, SessionID: "explicit"})

	require.Equal(t, 2, rec.count())
	assert.Equal(t, "sess", rec.events[0].SessionID)
	assert.Equal(t, "att", rec.events[0].AttemptID)
	assert.Equal(t, "explicit", rec.events[1].SessionID)
}

func TestEmit_NilSubject(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, AnalysisEvent{EventType: AnalysisStarted})
	})
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetricsObserver()
	ctx := context.Background()

	m.OnEvent(ctx, AnalysisEvent{EventType: AnalysisStarted})
	m.OnEvent(ctx, AnalysisEvent{EventType: AnalysisStarted})
	m.OnEvent(ctx, AnalysisEvent{EventType: AnalysisStarted})
	m.OnEvent(ctx, AnalysisEvent{EventType: AnalysisCompleted, ProcessingTime: 100 * time.Millisecond})
	m.OnEvent(ctx, AnalysisEvent{EventType: AnalysisCompleted, ProcessingTime: 300 * time.Millisecond})
	m.OnEvent(ctx, AnalysisEvent{EventType: AnalysisFailed, ErrorKind: "NoFaceDetected"})
	m.OnEvent(ctx, AnalysisEvent{EventType: FallbackUsed})
	m.OnEvent(ctx, AnalysisEvent{EventType: ProviderRequestIssued})

	metrics := m.GetMetrics()
	assert.Equal(t, int64(3), metrics["total_analyses"])
	assert.Equal(t, int64(2), metrics["successful_analyses"])
	assert.Equal(t, int64(1), metrics["failed_analyses"])
	assert.Equal(t, int64(1), metrics["synthetic_results"])
	assert.Equal(t, int64(1), metrics["provider_requests"])
	assert.Equal(t, map[string]int64{"NoFaceDetected": 1}, metrics["failures_by_kind"])
	assert.InDelta(t, 200.0, metrics["latency_mean_ms"], 0.001)
	assert.Greater(t, metrics["latency_stddev_ms"], 0.0)
}

func TestMetricsObserver_Empty(t *testing.T) {
	metrics := NewMetricsObserver().GetMetrics()
	assert.Equal(t, 0.0, metrics["latency_mean_ms"])
	assert.Equal(t, 0.0, metrics["latency_p95_ms"])
}

func TestLoggingObserver_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	NewLoggingObserver(l).OnEvent(context.Background(), AnalysisEvent{
		EventType: AnalysisFailed,
		SessionID: "s1",
		ErrorKind: "TransportError",
		Metadata:  map[string]interface{}{"status": 503},
	})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "s1", line["session_id"])
	assert.Equal(t, "TransportError", line["error_kind"])
	assert.Equal(t, float64(503), line["status"])
	assert.Equal(t, "warning", line["level"])
}

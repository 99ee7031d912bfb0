// Package orchestrator drives one session's analysis attempts through the
// pipeline state machine and hands results to the display stage.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "go-face-analyzer/internal/errors"
	"go-face-analyzer/internal/imagedata"
	"go-face-analyzer/internal/logger"
	"go-face-analyzer/internal/observer"
	"go-face-analyzer/internal/provider"
	"go-face-analyzer/internal/session"
	"go-face-analyzer/pkg/models"
)

// ErrAttemptInFlight rejects a submission while another attempt runs.
var ErrAttemptInFlight = errors.New("an analysis attempt is already in flight")

const defaultAttemptTimeout = 20 * time.Second

// Orchestrator owns the pipeline state of one session. It is the only
// writer of the session's hand-off keys.
type Orchestrator struct {
	store     session.Store
	adapter   provider.Adapter
	events    observer.Subject
	sessionID string
	timeout   time.Duration
	base      context.Context
	now       func() time.Time

	mu     sync.Mutex
	state  PipelineState
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEvents publishes state and attempt events to s.
func WithEvents(s observer.Subject) Option {
	return func(o *Orchestrator) {
		o.events = s
	}
}

// WithSessionID tags events and log lines with the owning session.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		o.sessionID = id
	}
}

// WithTimeout bounds each attempt's adapter call.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBaseContext sets the parent context of every attempt.
func WithBaseContext(ctx context.Context) Option {
	return func(o *Orchestrator) {
		o.base = ctx
	}
}

func New(store session.Store, adapter provider.Adapter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		adapter: adapter,
		timeout: defaultAttemptTimeout,
		base:    context.Background(),
		now:     time.Now,
		state:   PipelineState{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns a snapshot of the pipeline.
func (o *Orchestrator) State() PipelineState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// OnImageReady starts an attempt for an acquired image. It returns
// ErrAttemptInFlight while another attempt runs, and an InvalidImage error
// (leaving the pipeline Failed) when the payload cannot be decoded. On
// success the pipeline is Analyzing when it returns.
func (o *Orchestrator) OnImageReady(req models.AnalysisRequest) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Phase.InFlight() {
		return ErrAttemptInFlight
	}

	attemptID := uuid.NewString()
	o.transition(PhaseCapturing, func(s *PipelineState) {
		*s = PipelineState{AttemptID: attemptID, StartedAt: o.now()}
	})

	log := o.log().WithField("attempt_id", attemptID)
	if req.UserID != "" {
		log = log.WithField("user_id", req.UserID)
	}

	if _, err := imagedata.Parse(req.ImageData); err != nil {
		appErr := apperrors.NewInvalidImageError("image payload cannot be decoded", err)
		o.fail(context.Background(), appErr, 0)
		log.WithError(err).Warn("Rejected undecodable image")
		return appErr
	}

	o.store.Delete(session.KeyResult)
	o.store.Put(session.KeyImage, req.ImageData)
	o.transition(PhaseAnalyzing, nil)

	ctx, cancel := context.WithTimeout(o.base, o.timeout)
	ctx = observer.WithAttempt(ctx, o.sessionID, attemptID)
	o.cancel = cancel
	o.done = make(chan struct{})

	observer.Emit(ctx, o.events, observer.AnalysisEvent{
		EventType: observer.AnalysisStarted,
		Provider:  o.adapter.Name(),
	})
	log.Info("Analysis attempt started")

	go o.run(ctx, attemptID, req.ImageData)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, attemptID, imageData string) {
	start := o.now()
	result, err := o.analyze(ctx, imageData)

	var encoded []byte
	if err == nil {
		if verr := result.Validate(); verr != nil {
			err = apperrors.NewMalformedResponseError("adapter returned an invalid result", verr)
		}
	}
	if err == nil {
		if encoded, err = json.Marshal(result); err != nil {
			err = apperrors.NewInternalError("failed to encode analysis result", err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// Abandoned or superseded: nothing from this attempt reaches the store.
	if o.state.AttemptID != attemptID || o.state.Phase != PhaseAnalyzing {
		o.log().WithField("attempt_id", attemptID).Debug("Dropping result of abandoned attempt")
		return
	}
	o.cancel()

	elapsed := o.now().Sub(start)
	if err != nil {
		if ctx.Err() != nil && apperrors.KindOf(err) == apperrors.KindNone {
			err = apperrors.NewTransportError("analysis timed out", ctx.Err())
		}
		o.fail(ctx, err, elapsed)
		o.settle()
		return
	}

	o.store.Put(session.KeyResult, string(encoded))
	o.transition(PhaseComplete, func(s *PipelineState) {
		s.Result = &result
		s.FinishedAt = o.now()
	})
	observer.Emit(ctx, o.events, observer.AnalysisEvent{
		EventType:      observer.AnalysisCompleted,
		Provider:       o.adapter.Name(),
		ProcessingTime: elapsed,
		Success:        true,
	})
	o.log().WithFields(logrus.Fields{
		"attempt_id":         attemptID,
		"processing_time_ms": elapsed.Milliseconds(),
	}).Info("Analysis attempt completed")
	o.settle()
}

// analyze calls the adapter. A panic inside it fails the attempt instead of
// the process.
func (o *Orchestrator) analyze(ctx context.Context, imageData string) (result models.AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log().WithField("panic", r).Error("Analysis adapter panicked")
			result = models.AnalysisResult{}
			err = apperrors.NewMalformedResponseError(fmt.Sprintf("adapter panicked: %v", r), nil)
		}
	}()
	return o.adapter.Analyze(ctx, imageData)
}

// fail moves the pipeline to Failed. Callers hold o.mu.
func (o *Orchestrator) fail(ctx context.Context, err error, elapsed time.Duration) {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindNone {
		kind = apperrors.KindTransportError
	}

	reason := ""
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && kind == apperrors.KindTransportError {
		reason = appErr.Message
	}

	o.transition(PhaseFailed, func(s *PipelineState) {
		s.ErrorKind = kind
		s.Notification = NotificationFor(kind, reason)
		s.FinishedAt = o.now()
	})
	observer.Emit(ctx, o.events, observer.AnalysisEvent{
		EventType:      observer.AnalysisFailed,
		SessionID:      o.sessionID,
		AttemptID:      o.state.AttemptID,
		Provider:       o.adapter.Name(),
		ProcessingTime: elapsed,
		ErrorKind:      string(kind),
		ErrorMessage:   err.Error(),
	})
}

// Abandon cancels the running attempt, if any, and returns the pipeline to
// Idle. A late result from the cancelled call is dropped. It reports whether
// an attempt was abandoned.
func (o *Orchestrator) Abandon() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.abandonLocked()
}

func (o *Orchestrator) abandonLocked() bool {
	if o.state.Phase != PhaseAnalyzing {
		return false
	}
	attemptID := o.state.AttemptID
	o.cancel()
	o.transition(PhaseIdle, func(s *PipelineState) {
		*s = PipelineState{}
	})
	observer.Emit(context.Background(), o.events, observer.AnalysisEvent{
		EventType: observer.AnalysisAbandoned,
		SessionID: o.sessionID,
		AttemptID: attemptID,
		Provider:  o.adapter.Name(),
	})
	o.log().WithField("attempt_id", attemptID).Info("Analysis attempt abandoned")
	o.settle()
	return true
}

// Reset returns the pipeline to Idle, abandoning a running attempt. Stored
// hand-off values are left for the display stage.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.abandonLocked() || o.state.Phase == PhaseIdle {
		return
	}
	o.transition(PhaseIdle, func(s *PipelineState) {
		*s = PipelineState{}
	})
}

// Await blocks until the current attempt settles or ctx is done, and
// returns the resulting state.
func (o *Orchestrator) Await(ctx context.Context) (PipelineState, error) {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return o.State(), ctx.Err()
		}
	}
	return o.State(), nil
}

// transition moves to the next phase and applies mutate to the state. Callers
// hold o.mu.
func (o *Orchestrator) transition(to Phase, mutate func(*PipelineState)) {
	from := o.state.Phase
	if !CanTransition(from, to) {
		o.log().WithFields(logrus.Fields{"from": from, "to": to}).Error("Illegal pipeline transition")
		return
	}
	if mutate != nil {
		mutate(&o.state)
	}
	o.state.Phase = to

	observer.Emit(context.Background(), o.events, observer.AnalysisEvent{
		EventType: observer.StateChanged,
		SessionID: o.sessionID,
		AttemptID: o.state.AttemptID,
		Success:   to != PhaseFailed,
		Metadata:  map[string]interface{}{"from": string(from), "to": string(to)},
	})
}

// settle releases Await callers of the current attempt. Callers hold o.mu.
func (o *Orchestrator) settle() {
	if o.done != nil {
		close(o.done)
		o.done = nil
	}
	o.cancel = nil
}

func (o *Orchestrator) log() *logrus.Entry {
	return logger.WithSession(o.sessionID)
}

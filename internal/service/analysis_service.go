package service

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "go-face-analyzer/internal/errors"
	"go-face-analyzer/internal/imagedata"
	"go-face-analyzer/internal/logger"
	"go-face-analyzer/internal/observer"
	"go-face-analyzer/internal/orchestrator"
	"go-face-analyzer/internal/provider"
	"go-face-analyzer/internal/repository"
	"go-face-analyzer/internal/session"
	"go-face-analyzer/pkg/models"
)

// AnalysisService binds sessions, their pipelines and the image sources for
// the transports
type AnalysisService interface {
	CreateSession() string
	EndSession(sessionID string) error

	// Acquisition
	Submit(ctx context.Context, sessionID string, req models.AnalysisRequest) (orchestrator.PipelineState, error)
	SubmitBytes(ctx context.Context, sessionID string, data []byte, userID string) (orchestrator.PipelineState, error)
	SubmitURL(ctx context.Context, sessionID, sourceURL, userID string) (orchestrator.PipelineState, error)
	SubmitBlob(ctx context.Context, sessionID string, blob models.BlobReference, userID string) (orchestrator.PipelineState, error)

	// Observation
	State(sessionID string) (orchestrator.PipelineState, error)
	Await(ctx context.Context, sessionID string) (orchestrator.PipelineState, error)
	Abandon(sessionID string) (bool, error)

	// Display
	Results(sessionID string) (orchestrator.DisplayData, error)
}

// analysisService implements AnalysisService
type analysisService struct {
	sessions *session.Manager
	adapter  provider.Adapter
	images   repository.ImageRepository
	events   observer.Subject
	timeout  time.Duration

	mu        sync.Mutex
	pipelines map[string]*orchestrator.Orchestrator
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(
	sessions *session.Manager,
	adapter provider.Adapter,
	images repository.ImageRepository,
	events observer.Subject,
	analysisTimeout time.Duration,
) AnalysisService {
	return &analysisService{
		sessions:  sessions,
		adapter:   adapter,
		images:    images,
		events:    events,
		timeout:   analysisTimeout,
		pipelines: make(map[string]*orchestrator.Orchestrator),
	}
}

// CreateSession opens a session with an idle pipeline
func (s *analysisService) CreateSession() string {
	sess := s.sessions.Create()
	o := orchestrator.New(sess.Store(), s.adapter,
		orchestrator.WithSessionID(sess.ID),
		orchestrator.WithEvents(s.events),
		orchestrator.WithTimeout(s.timeout),
	)

	s.mu.Lock()
	s.pipelines[sess.ID] = o
	s.mu.Unlock()

	sess.OnEnd(func() {
		o.Abandon()
		s.mu.Lock()
		delete(s.pipelines, sess.ID)
		s.mu.Unlock()
	})
	return sess.ID
}

// EndSession abandons any running attempt and discards the session's store
func (s *analysisService) EndSession(sessionID string) error {
	if !s.sessions.End(sessionID) {
		return unknownSession(sessionID)
	}
	return nil
}

// Submit starts an attempt for an encoded image
func (s *analysisService) Submit(ctx context.Context, sessionID string, req models.AnalysisRequest) (orchestrator.PipelineState, error) {
	o, err := s.pipeline(sessionID)
	if err != nil {
		return orchestrator.PipelineState{}, err
	}

	if err := o.OnImageReady(req); err != nil {
		if errors.Is(err, orchestrator.ErrAttemptInFlight) {
			return o.State(), apperrors.NewConflictError("an analysis is already in progress for this session", err)
		}
		return o.State(), err
	}
	return o.State(), nil
}

// SubmitBytes encodes raw upload bytes and starts an attempt
func (s *analysisService) SubmitBytes(ctx context.Context, sessionID string, data []byte, userID string) (orchestrator.PipelineState, error) {
	encoded, err := imagedata.Encode(data)
	if err != nil {
		return orchestrator.PipelineState{}, apperrors.NewInvalidImageError("uploaded file is not an image", err)
	}
	return s.Submit(ctx, sessionID, models.AnalysisRequest{ImageData: encoded, UserID: userID})
}

// SubmitURL downloads an image and starts an attempt
func (s *analysisService) SubmitURL(ctx context.Context, sessionID, sourceURL, userID string) (orchestrator.PipelineState, error) {
	return s.submitReference(ctx, sessionID, repository.Reference{URL: sourceURL}, userID)
}

// SubmitBlob downloads a blob and starts an attempt
func (s *analysisService) SubmitBlob(ctx context.Context, sessionID string, blob models.BlobReference, userID string) (orchestrator.PipelineState, error) {
	return s.submitReference(ctx, sessionID, repository.Reference{Blob: &blob}, userID)
}

func (s *analysisService) submitReference(ctx context.Context, sessionID string, ref repository.Reference, userID string) (orchestrator.PipelineState, error) {
	o, err := s.pipeline(sessionID)
	if err != nil {
		return orchestrator.PipelineState{}, err
	}
	// Reject early instead of downloading for a pipeline that cannot start.
	if st := o.State(); st.Phase.InFlight() {
		return st, apperrors.NewConflictError("an analysis is already in progress for this session", orchestrator.ErrAttemptInFlight)
	}

	encoded, meta, err := s.images.FetchImage(observer.WithAttempt(ctx, sessionID, ""), ref)
	if err != nil {
		logger.WithSession(sessionID).WithError(err).WithField("reference", ref.String()).Warn("Image source fetch failed")
		return o.State(), err
	}
	logger.WithSession(sessionID).WithField("content_type", meta.ContentType).Debug("Fetched source image")

	return s.Submit(ctx, sessionID, models.AnalysisRequest{ImageData: encoded, UserID: userID})
}

// State reports the session's pipeline
func (s *analysisService) State(sessionID string) (orchestrator.PipelineState, error) {
	o, err := s.pipeline(sessionID)
	if err != nil {
		return orchestrator.PipelineState{}, err
	}
	return o.State(), nil
}

// Await blocks until the running attempt settles
func (s *analysisService) Await(ctx context.Context, sessionID string) (orchestrator.PipelineState, error) {
	o, err := s.pipeline(sessionID)
	if err != nil {
		return orchestrator.PipelineState{}, err
	}
	return o.Await(ctx)
}

// Abandon cancels the running attempt
func (s *analysisService) Abandon(sessionID string) (bool, error) {
	o, err := s.pipeline(sessionID)
	if err != nil {
		return false, err
	}
	return o.Abandon(), nil
}

// Results reads the hand-off values for display
func (s *analysisService) Results(sessionID string) (orchestrator.DisplayData, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return orchestrator.DisplayData{}, apperrors.NewMissingStateError("session has expired or never existed")
	}
	return orchestrator.Display(sess.Store())
}

func (s *analysisService) pipeline(sessionID string) (*orchestrator.Orchestrator, error) {
	if _, ok := s.sessions.Get(sessionID); !ok {
		return nil, unknownSession(sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.pipelines[sessionID]
	if !ok {
		return nil, unknownSession(sessionID)
	}
	return o, nil
}

func unknownSession(id string) error {
	return apperrors.NewNotFoundError("session not found", nil).WithDetails(id)
}

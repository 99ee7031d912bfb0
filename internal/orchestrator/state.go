package orchestrator

import (
	"time"

	apperrors "go-face-analyzer/internal/errors"
	"go-face-analyzer/pkg/models"
)

// Phase is the pipeline's position in Idle → Capturing → Analyzing →
// Complete | Failed.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseCapturing Phase = "capturing"
	PhaseAnalyzing Phase = "analyzing"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
)

// Analyzing → Idle is the abandon edge. Complete and Failed accept a new
// image directly.
var transitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseCapturing},
	PhaseCapturing: {PhaseAnalyzing, PhaseFailed},
	PhaseAnalyzing: {PhaseComplete, PhaseFailed, PhaseIdle},
	PhaseComplete:  {PhaseCapturing, PhaseIdle},
	PhaseFailed:    {PhaseCapturing, PhaseIdle},
}

// CanTransition reports whether the pipeline may move from one phase to
// another.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// InFlight reports whether an attempt is running in this phase.
func (p Phase) InFlight() bool {
	return p == PhaseCapturing || p == PhaseAnalyzing
}

// PipelineState is a snapshot of one session's pipeline. Result is set only
// in Complete; ErrorKind and Notification only in Failed.
type PipelineState struct {
	Phase        Phase
	AttemptID    string
	StartedAt    time.Time
	FinishedAt   time.Time
	Result       *models.AnalysisResult
	ErrorKind    apperrors.ErrorKind
	Notification *models.Notification
}

func (s PipelineState) clone() PipelineState {
	if s.Result != nil {
		r := *s.Result
		if r.FacialResemblance != nil {
			fr := *r.FacialResemblance
			r.FacialResemblance = &fr
		}
		s.Result = &r
	}
	if s.Notification != nil {
		n := *s.Notification
		s.Notification = &n
	}
	return s
}

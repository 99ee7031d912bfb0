// Package provider turns an encoded face image into an AnalysisResult,
// either through the Face++ API or the synthetic generator.
package provider

import (
	"context"

	apperrors "go-face-analyzer/internal/errors"
	"go-face-analyzer/internal/observer"
	"go-face-analyzer/internal/synthetic"
	"go-face-analyzer/pkg/models"
)

// Adapter analyzes one encoded image. Errors are *apperrors.AppError values
// carrying one of NotConfigured, NoFaceDetected, TransportError or
// MalformedResponse.
type Adapter interface {
	Analyze(ctx context.Context, imageData string) (models.AnalysisResult, error)
	Name() string
}

const (
	NameFacePP    = "facepp"
	NameSynthetic = "synthetic"
)

// FallbackAdapter substitutes a synthetic result when the primary adapter has
// no credentials. Every other failure is passed through unchanged.
type FallbackAdapter struct {
	primary Adapter
	synth   *synthetic.Generator
	events  observer.Subject
}

func NewFallbackAdapter(primary Adapter, synth *synthetic.Generator, events observer.Subject) *FallbackAdapter {
	return &FallbackAdapter{primary: primary, synth: synth, events: events}
}

func (a *FallbackAdapter) Analyze(ctx context.Context, imageData string) (models.AnalysisResult, error) {
	result, err := a.primary.Analyze(ctx, imageData)
	if err == nil {
		return result, nil
	}
	if !apperrors.IsKind(err, apperrors.KindNotConfigured) {
		return models.AnalysisResult{}, err
	}

	observer.Emit(ctx, a.events, observer.AnalysisEvent{
		EventType: observer.FallbackUsed,
		Provider:  a.primary.Name(),
		Success:   true,
	})
	return a.synth.Generate(), nil
}

func (a *FallbackAdapter) Name() string {
	return a.primary.Name()
}

// SyntheticAdapter always answers with a generated result.
type SyntheticAdapter struct {
	synth *synthetic.Generator
}

func NewSyntheticAdapter(synth *synthetic.Generator) *SyntheticAdapter {
	return &SyntheticAdapter{synth: synth}
}

func (a *SyntheticAdapter) Analyze(ctx context.Context, _ string) (models.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return models.AnalysisResult{}, apperrors.NewTransportError("analysis cancelled", err)
	}
	return a.synth.Generate(), nil
}

func (a *SyntheticAdapter) Name() string {
	return NameSynthetic
}

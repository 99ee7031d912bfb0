package service

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "go-face-analyzer/internal/errors"
	"go-face-analyzer/internal/imagedata"
	"go-face-analyzer/internal/orchestrator"
	"go-face-analyzer/internal/provider"
	"go-face-analyzer/internal/repository"
	"go-face-analyzer/internal/session"
	"go-face-analyzer/internal/synthetic"
	"go-face-analyzer/pkg/models"
)

type stubRepository struct {
	encoded string
	err     error
	refs    []repository.Reference
}

func (r *stubRepository) FetchImage(_ context.Context, ref repository.Reference) (string, *repository.ImageMetadata, error) {
	r.refs = append(r.refs, ref)
	if r.err != nil {
		return "", nil, r.err
	}
	return r.encoded, &repository.ImageMetadata{ContentType: "image/png"}, nil
}

type blockingAdapter struct {
	release chan struct{}
}

func (a *blockingAdapter) Analyze(ctx context.Context, _ string) (models.AnalysisResult, error) {
	select {
	case <-a.release:
		return synthetic.New().Generate(), nil
	case <-ctx.Done():
		return models.AnalysisResult{}, apperrors.NewTransportError("provider call cancelled", ctx.Err())
	}
}

func (a *blockingAdapter) Name() string { return "blocking" }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func newTestService(t *testing.T, adapter provider.Adapter, repo repository.ImageRepository) (AnalysisService, *session.Manager) {
	t.Helper()
	if adapter == nil {
		adapter = provider.NewSyntheticAdapter(synthetic.New(synthetic.WithSeed(9)))
	}
	if repo == nil {
		repo = &stubRepository{}
	}
	sessions := session.NewManager(time.Hour)
	return NewAnalysisService(sessions, adapter, repo, nil, time.Second), sessions
}

func awaitState(t *testing.T, svc AnalysisService, id string) orchestrator.PipelineState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := svc.Await(ctx, id)
	require.NoError(t, err)
	return st
}

func TestSubmitBytes_ThenResults(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	id := svc.CreateSession()
	img := pngBytes(t)

	st, err := svc.SubmitBytes(context.Background(), id, img, "u1")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.PhaseAnalyzing, st.Phase)

	st = awaitState(t, svc, id)
	require.Equal(t, orchestrator.PhaseComplete, st.Phase)

	data, err := svc.Results(id)
	require.NoError(t, err)
	assert.Equal(t, *st.Result, data.Result)

	payload, err := imagedata.Parse(data.ImageData)
	require.NoError(t, err)
	assert.Equal(t, img, payload.Data)
	assert.Equal(t, "image/png", payload.MIME)
}

func TestSubmitBytes_NotAnImage(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	id := svc.CreateSession()

	_, err := svc.SubmitBytes(context.Background(), id, []byte("just some text"), "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidImage))

	st, err := svc.State(id)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.PhaseIdle, st.Phase, "rejected upload never starts an attempt")
}

func TestSubmit_InvalidImageFailsAttempt(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	id := svc.CreateSession()

	st, err := svc.Submit(context.Background(), id, models.AnalysisRequest{ImageData: "%%%"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidImage))
	assert.Equal(t, orchestrator.PhaseFailed, st.Phase)
	require.NotNil(t, st.Notification)
}

func TestSubmit_UnknownSession(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	_, err := svc.Submit(context.Background(), "cv1d1kq0000000000000", models.AnalysisRequest{ImageData: "QUJD"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	_, err = svc.State("nope")
	assert.Equal(t, 404, apperrors.GetStatusCode(err))

	_, err = svc.Results("nope")
	assert.True(t, apperrors.IsKind(err, apperrors.KindMissingState))
}

func TestSubmit_ConflictWhileInFlight(t *testing.T) {
	adapter := &blockingAdapter{release: make(chan struct{})}
	repo := &stubRepository{}
	svc, _ := newTestService(t, adapter, repo)
	id := svc.CreateSession()

	_, err := svc.SubmitBytes(context.Background(), id, pngBytes(t), "")
	require.NoError(t, err)

	_, err = svc.SubmitBytes(context.Background(), id, pngBytes(t), "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	assert.ErrorIs(t, err, orchestrator.ErrAttemptInFlight)

	_, err = svc.SubmitURL(context.Background(), id, "https://cdn.example.com/a.png", "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	assert.Empty(t, repo.refs, "no download while an attempt runs")

	close(adapter.release)
	assert.Equal(t, orchestrator.PhaseComplete, awaitState(t, svc, id).Phase)
}

func TestSubmitURLAndBlob(t *testing.T) {
	encoded, err := imagedata.Encode(pngBytes(t))
	require.NoError(t, err)
	repo := &stubRepository{encoded: encoded}
	svc, _ := newTestService(t, nil, repo)

	id := svc.CreateSession()
	_, err = svc.SubmitURL(context.Background(), id, "https://cdn.example.com/a.png", "u1")
	require.NoError(t, err)
	require.Equal(t, orchestrator.PhaseComplete, awaitState(t, svc, id).Phase)

	blob := models.BlobReference{Container: "faces", Name: "a.png"}
	_, err = svc.SubmitBlob(context.Background(), id, blob, "u1")
	require.NoError(t, err)
	require.Equal(t, orchestrator.PhaseComplete, awaitState(t, svc, id).Phase)

	require.Len(t, repo.refs, 2)
	assert.Equal(t, "https://cdn.example.com/a.png", repo.refs[0].URL)
	assert.Equal(t, &blob, repo.refs[1].Blob)
}

func TestSubmitURL_FetchFailureLeavesPipelineUntouched(t *testing.T) {
	repo := &stubRepository{err: apperrors.NewNetworkError("failed to fetch image after 3 attempts", nil)}
	svc, _ := newTestService(t, nil, repo)
	id := svc.CreateSession()

	st, err := svc.SubmitURL(context.Background(), id, "https://cdn.example.com/a.png", "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetwork))
	assert.Equal(t, orchestrator.PhaseIdle, st.Phase)
}

func TestAbandonAndEndSession(t *testing.T) {
	adapter := &blockingAdapter{release: make(chan struct{})}
	svc, sessions := newTestService(t, adapter, nil)
	id := svc.CreateSession()

	ok, err := svc.Abandon(id)
	require.NoError(t, err)
	assert.False(t, ok, "nothing to abandon yet")

	_, err = svc.SubmitBytes(context.Background(), id, pngBytes(t), "")
	require.NoError(t, err)

	ok, err = svc.Abandon(id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.SubmitBytes(context.Background(), id, pngBytes(t), "")
	require.NoError(t, err)
	require.NoError(t, svc.EndSession(id))
	assert.Zero(t, sessions.Len())

	assert.Error(t, svc.EndSession(id))
	_, err = svc.State(id)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestSessionsAreIndependent(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	a, b := svc.CreateSession(), svc.CreateSession()

	_, err := svc.SubmitBytes(context.Background(), a, pngBytes(t), "")
	require.NoError(t, err)
	awaitState(t, svc, a)

	_, err = svc.Results(a)
	assert.NoError(t, err)
	_, err = svc.Results(b)
	assert.True(t, apperrors.IsKind(err, apperrors.KindMissingState))
}

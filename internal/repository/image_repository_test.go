package repository

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "go-face-analyzer/internal/errors"
	"go-face-analyzer/internal/observer"
	"go-face-analyzer/pkg/models"
)

type stubSource struct {
	data []byte
	mime string
	err  error
	refs []string
}

func (s *stubSource) FetchImage(_ context.Context, ref string) ([]byte, string, error) {
	s.refs = append(s.refs, ref)
	return s.data, s.mime, s.err
}

type fetchEvents struct {
	events []observer.AnalysisEvent
}

func (f *fetchEvents) OnEvent(_ context.Context, e observer.AnalysisEvent) {
	f.events = append(f.events, e)
}

func (f *fetchEvents) GetObserverName() string { return "fetch_events" }

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 5, 4))))
	return buf.Bytes()
}

func TestFetchImage_URL(t *testing.T) {
	img := pngImage(t)
	httpSrc := &stubSource{data: img, mime: "image/png"}

	events := observer.NewSyncEventPublisher()
	rec := &fetchEvents{}
	events.Subscribe(rec)

	repo := NewSourceImageRepository(httpSrc, nil, nil, events)
	encoded, meta, err := repo.FetchImage(context.Background(), Reference{URL: "https://cdn.example.com/face.png"})
	require.NoError(t, err)

	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(img), encoded)
	assert.Equal(t, []string{"https://cdn.example.com/face.png"}, httpSrc.refs)
	assert.Equal(t, &ImageMetadata{
		Source:        sourceHTTP,
		ContentType:   "image/png",
		ContentLength: int64(len(img)),
		Width:         5,
		Height:        4,
		Format:        "png",
	}, meta)

	require.Len(t, rec.events, 1)
	assert.Equal(t, observer.ImageFetched, rec.events[0].EventType)
}

func TestFetchImage_Blob(t *testing.T) {
	blobSrc := &stubSource{data: pngImage(t), mime: "image/png"}
	repo := NewSourceImageRepository(&stubSource{}, blobSrc, nil, nil)

	_, meta, err := repo.FetchImage(context.Background(), Reference{
		Blob: &models.BlobReference{Container: "face-uploads", Name: "u1/selfie.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, sourceBlob, meta.Source)
	assert.Equal(t, []string{"face-uploads/u1/selfie.png"}, blobSrc.refs)
}

func TestFetchImage_ReferenceErrors(t *testing.T) {
	blob := &models.BlobReference{Container: "faces", Name: "a.png"}

	tests := []struct {
		name    string
		repo    *SourceImageRepository
		ref     Reference
		wantErr error
	}{
		{"none", NewSourceImageRepository(&stubSource{}, &stubSource{}, nil, nil), Reference{}, ErrNoReference},
		{"both", NewSourceImageRepository(&stubSource{}, &stubSource{}, nil, nil), Reference{URL: "https://a.example/x.png", Blob: blob}, ErrAmbiguousReference},
		{"blob disabled", NewSourceImageRepository(&stubSource{}, nil, nil, nil), Reference{Blob: blob}, ErrSourceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.repo.FetchImage(context.Background(), tt.ref)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		})
	}
}

func TestFetchImage_InvalidReferencesNeverReachSource(t *testing.T) {
	httpSrc, blobSrc := &stubSource{}, &stubSource{}
	repo := NewSourceImageRepository(httpSrc, blobSrc, nil, nil)

	_, _, err := repo.FetchImage(context.Background(), Reference{URL: "file:///etc/passwd"})
	assert.Error(t, err)
	_, _, err = repo.FetchImage(context.Background(), Reference{Blob: &models.BlobReference{Container: "X", Name: "a"}})
	assert.Error(t, err)

	assert.Empty(t, httpSrc.refs)
	assert.Empty(t, blobSrc.refs)
}

func TestFetchImage_SourceFailure(t *testing.T) {
	events := observer.NewSyncEventPublisher()
	rec := &fetchEvents{}
	events.Subscribe(rec)

	boom := apperrors.NewNetworkError("failed to fetch image after 3 attempts", errors.New("server error: status code 503"))
	repo := NewSourceImageRepository(&stubSource{err: boom}, nil, nil, events)

	_, _, err := repo.FetchImage(context.Background(), Reference{URL: "https://cdn.example.com/a.png"})
	assert.Same(t, boom, err)
	require.Len(t, rec.events, 1)
	assert.Equal(t, observer.ImageFetchFailed, rec.events[0].EventType)
	assert.False(t, rec.events[0].Success)
}

func TestFetchImage_NotAnImage(t *testing.T) {
	repo := NewSourceImageRepository(&stubSource{data: []byte("%PDF-1.7 ..."), mime: "image/png"}, nil, nil, nil)
	_, _, err := repo.FetchImage(context.Background(), Reference{URL: "https://cdn.example.com/a.png"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidImage))
}

func TestReferenceString(t *testing.T) {
	assert.Equal(t, "https://x.example/a.png", Reference{URL: "https://x.example/a.png"}.String())
	assert.Equal(t, "blob:faces/a.png", Reference{Blob: &models.BlobReference{Container: "faces", Name: "a.png"}}.String())
}

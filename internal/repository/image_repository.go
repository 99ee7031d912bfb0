package repository

import (
	"context"
	"fmt"
	"time"

	apperrors "go-face-analyzer/internal/errors"
	"go-face-analyzer/internal/imagedata"
	"go-face-analyzer/internal/observer"
	"go-face-analyzer/internal/storage"
	"go-face-analyzer/pkg/validation"
)

const (
	sourceHTTP = "http"
	sourceBlob = "blob"
)

// SourceImageRepository implements ImageRepository over an HTTP source and
// an optional blob source
type SourceImageRepository struct {
	http      storage.ImageSource
	blob      storage.ImageSource
	validator *validation.SourceValidator
	events    observer.Subject
}

// NewSourceImageRepository creates a repository. blob may be nil when blob
// storage is not configured.
func NewSourceImageRepository(
	httpSource storage.ImageSource,
	blobSource storage.ImageSource,
	validator *validation.SourceValidator,
	events observer.Subject,
) *SourceImageRepository {
	if validator == nil {
		validator = validation.NewURLValidator()
	}
	return &SourceImageRepository{
		http:      httpSource,
		blob:      blobSource,
		validator: validator,
		events:    events,
	}
}

// FetchImage retrieves the referenced image and encodes it
func (r *SourceImageRepository) FetchImage(ctx context.Context, ref Reference) (string, *ImageMetadata, error) {
	source, target, src, err := r.resolve(ref)
	if err != nil {
		return "", nil, err
	}

	start := time.Now()
	data, mime, err := source.FetchImage(ctx, target)
	if err != nil {
		r.emit(ctx, observer.ImageFetchFailed, src, time.Since(start), err, nil)
		return "", nil, err
	}

	encoded, err := imagedata.Encode(data)
	if err != nil {
		err = apperrors.NewInvalidImageError("fetched file is not an image", err)
		r.emit(ctx, observer.ImageFetchFailed, src, time.Since(start), err, nil)
		return "", nil, err
	}

	meta := &ImageMetadata{
		Source:        src,
		ContentType:   mime,
		ContentLength: int64(len(data)),
	}
	if info, err := (imagedata.Payload{MIME: mime, Data: data}).Inspect(); err == nil {
		meta.Width, meta.Height, meta.Format = info.Width, info.Height, info.Format
	}

	r.emit(ctx, observer.ImageFetched, src, time.Since(start), nil, map[string]interface{}{
		"content_type": meta.ContentType,
		"bytes":        meta.ContentLength,
	})
	return encoded, meta, nil
}

func (r *SourceImageRepository) resolve(ref Reference) (storage.ImageSource, string, string, error) {
	switch {
	case ref.URL != "" && ref.Blob != nil:
		return nil, "", "", apperrors.NewValidationError("give either sourceUrl or blob", ErrAmbiguousReference)
	case ref.URL != "":
		if err := r.validator.ValidateImageURL(ref.URL); err != nil {
			return nil, "", "", err
		}
		return r.http, ref.URL, sourceHTTP, nil
	case ref.Blob != nil:
		if r.blob == nil {
			return nil, "", "", apperrors.NewValidationError("blob storage is not configured", ErrSourceUnavailable)
		}
		if err := r.validator.ValidateBlobReference(ref.Blob.Container, ref.Blob.Name); err != nil {
			return nil, "", "", err
		}
		return r.blob, storage.BlobRef(ref.Blob.Container, ref.Blob.Name), sourceBlob, nil
	default:
		return nil, "", "", apperrors.NewValidationError("no image reference given", ErrNoReference)
	}
}

func (r *SourceImageRepository) emit(ctx context.Context, t observer.EventType, src string, d time.Duration, err error, meta map[string]interface{}) {
	event := observer.AnalysisEvent{
		EventType:      t,
		Provider:       src,
		ProcessingTime: d,
		Success:        err == nil,
		Metadata:       meta,
	}
	if err != nil {
		event.ErrorMessage = err.Error()
		event.ErrorKind = string(apperrors.KindOf(err))
	}
	observer.Emit(ctx, r.events, event)
}

// String is used in log lines.
func (ref Reference) String() string {
	if ref.Blob != nil {
		return fmt.Sprintf("blob:%s", storage.BlobRef(ref.Blob.Container, ref.Blob.Name))
	}
	return ref.URL
}

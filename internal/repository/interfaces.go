package repository

import (
	"context"

	"go-face-analyzer/pkg/models"
)

// ImageRepository resolves remote image references into the encoded payload
// an upload would have produced.
type ImageRepository interface {
	// FetchImage downloads the referenced image and returns it as a data URL
	FetchImage(ctx context.Context, ref Reference) (string, *ImageMetadata, error)
}

// Reference names a remote image. Exactly one field is set.
type Reference struct {
	URL  string
	Blob *models.BlobReference
}

// ImageMetadata describes a fetched image
type ImageMetadata struct {
	Source        string
	ContentType   string
	ContentLength int64
	Width         int
	Height        int
	Format        string
}

package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "go-face-analyzer/internal/errors"
)

// BlobRef joins a container and blob name into the reference accepted by
// AzureImageSource.
func BlobRef(container, name string) string {
	return container + "/" + strings.TrimPrefix(name, "/")
}

// SplitBlobRef is the inverse of BlobRef.
func SplitBlobRef(ref string) (container, name string, err error) {
	container, name, ok := strings.Cut(strings.TrimPrefix(ref, "/"), "/")
	if !ok || container == "" || name == "" {
		return "", "", apperrors.NewValidationError("blob reference must be container/name", nil)
	}
	return container, name, nil
}

// AzureImageSource downloads images from Azure Blob Storage
type AzureImageSource struct {
	client   *azblob.Client
	maxBytes int64
}

// NewAzureImageSource authenticates with a shared key against the account's
// default endpoint. serviceURL overrides the endpoint when non-empty.
func NewAzureImageSource(accountName, accountKey, serviceURL string) (*AzureImageSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure blob client: %w", err)
	}

	return &AzureImageSource{client: client, maxBytes: DefaultMaxImageBytes}, nil
}

func (s *AzureImageSource) FetchImage(ctx context.Context, ref string) ([]byte, string, error) {
	containerName, blobName, err := SplitBlobRef(ref)
	if err != nil {
		return nil, "", err
	}

	downloadResponse, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, "", apperrors.NewNetworkError("blob download failed", err)
	}
	if downloadResponse.ContentLength != nil && *downloadResponse.ContentLength > s.maxBytes {
		downloadResponse.Body.Close()
		return nil, "", tooLarge(s.maxBytes)
	}

	retryReader := downloadResponse.Body
	defer retryReader.Close()

	data, err := io.ReadAll(io.LimitReader(retryReader, s.maxBytes+1))
	if err != nil {
		return nil, "", apperrors.NewNetworkError("blob read failed", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, "", tooLarge(s.maxBytes)
	}
	return sniffImage(data)
}

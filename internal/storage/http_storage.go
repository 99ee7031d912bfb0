package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"

	apperrors "go-face-analyzer/internal/errors"
	"go-face-analyzer/pkg/validation"
)

// DefaultMaxImageBytes matches the upload limit of the acquisition endpoint.
const DefaultMaxImageBytes = 5 * 1024 * 1024

// ErrBlockedAddress is returned when a reference resolves to a loopback,
// private, link-local or unspecified address.
var ErrBlockedAddress = errors.New("address is not publicly routable")

// ImageSource resolves a reference to raw image bytes and their MIME type.
type ImageSource interface {
	FetchImage(ctx context.Context, ref string) ([]byte, string, error)
}

// HTTPImageSource downloads images referenced by URL
type HTTPImageSource struct {
	client    *http.Client
	validator *validation.SourceValidator
	maxBytes  int64
	attempts  int
	backoff   time.Duration

	allowPrivate bool
}

// HTTPOption configures an HTTPImageSource.
type HTTPOption func(*HTTPImageSource)

// WithValidator replaces the default any-host validator.
func WithValidator(v *validation.SourceValidator) HTTPOption {
	return func(s *HTTPImageSource) {
		s.validator = v
	}
}

// WithMaxBytes caps the downloaded body.
func WithMaxBytes(n int64) HTTPOption {
	return func(s *HTTPImageSource) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithRetryBackoff sets the linear backoff unit between attempts.
func WithRetryBackoff(d time.Duration) HTTPOption {
	return func(s *HTTPImageSource) {
		s.backoff = d
	}
}

// WithTimeout sets the overall client timeout per request.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPImageSource) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// WithPrivateNetworks lets references resolve to non-public addresses. Only
// for sources restricted by an explicit host allow-list.
func WithPrivateNetworks() HTTPOption {
	return func(s *HTTPImageSource) {
		s.allowPrivate = true
	}
}

// NewHTTPImageSource creates an HTTP image source tuned for single image
// downloads
func NewHTTPImageSource(opts ...HTTPOption) *HTTPImageSource {
	s := &HTTPImageSource{
		validator: validation.NewURLValidator(),
		maxBytes:  DefaultMaxImageBytes,
		attempts:  3,
		backoff:   time.Second,
	}

	// Checked after DNS resolution so rebinding cannot reach internal hosts.
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   s.checkAddress,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		// Connection pooling sized for one image per request
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DisableCompression:     false,
		MaxResponseHeaderBytes: 4096,
	}

	s.client = &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,

		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("too many redirects (limit: 3)")
			}
			return nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (h *HTTPImageSource) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	if err := h.validator.ValidateImageURL(imageURL); err != nil {
		return nil, "", err
	}

	var lastErr error
	for attempt := 0; attempt < h.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, "", apperrors.NewTimeoutError("image download cancelled", ctx.Err())
			case <-time.After(time.Duration(attempt) * h.backoff):
			}
		}

		data, retry, err := h.fetchOnce(ctx, imageURL)
		if err == nil {
			return sniffImage(data)
		}
		lastErr = err
		// 4xx client errors and oversize bodies are non-retryable
		if !retry || ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		return nil, "", apperrors.NewTimeoutError("image download cancelled", ctx.Err())
	}
	if apperrors.IsType(lastErr, apperrors.ErrorTypeValidation) {
		return nil, "", lastErr
	}
	return nil, "", apperrors.NewNetworkError(
		fmt.Sprintf("failed to fetch image after %d attempts", h.attempts), lastErr)
}

// fetchOnce performs one GET. retry reports whether a failure is transient.
func (h *HTTPImageSource) fetchOnce(ctx context.Context, imageURL string) (data []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "go-face-analyzer/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrBlockedAddress) {
			return nil, false, apperrors.NewValidationError("image source resolves to a non-public address", err)
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	if resp.ContentLength > h.maxBytes {
		return nil, false, tooLarge(h.maxBytes)
	}
	data, err = io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > h.maxBytes {
		return nil, false, tooLarge(h.maxBytes)
	}
	return data, false, nil
}

// checkAddress runs on every dial, redirects included.
func (h *HTTPImageSource) checkAddress(network, address string, _ syscall.RawConn) error {
	if h.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast() {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return nil
}

// sniffImage rejects bodies that are not images, whatever the server claimed.
func sniffImage(data []byte) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", apperrors.NewInvalidImageError("image source returned an empty body", nil)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, "", apperrors.NewInvalidImageError(
			fmt.Sprintf("image source returned %s, not an image", mt.String()), nil)
	}
	return data, mt.String(), nil
}

func tooLarge(limit int64) error {
	return apperrors.NewValidationError(fmt.Sprintf("image exceeds %d bytes", limit), nil)
}

package validation

import (
	"net/url"
	"regexp"
	"strings"

	apperrors "go-face-analyzer/internal/errors"
)

const maxURLLength = 2048

// Azure container names: lowercase letters, digits and single hyphens.
var containerNamePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// SourceValidator checks references to remote images before they are
// fetched.
type SourceValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewURLValidator creates a validator that accepts any http(s) host
func NewURLValidator() *SourceValidator {
	return &SourceValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   []string{}, // empty means all hosts allowed
	}
}

// NewURLValidatorWithOptions creates a validator with custom options
func NewURLValidatorWithOptions(schemes []string, hosts []string) *SourceValidator {
	return &SourceValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
	}
}

// ValidateImageURL validates a sourceUrl submitted for analysis
func (v *SourceValidator) ValidateImageURL(imageURL string) error {
	if strings.TrimSpace(imageURL) == "" {
		return apperrors.NewValidationError("URL cannot be empty", nil)
	}
	if len(imageURL) > maxURLLength {
		return apperrors.NewValidationError("URL is too long", nil)
	}

	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return apperrors.NewValidationError("Invalid URL format", err)
	}

	if !v.isSchemeAllowed(parsedURL.Scheme) {
		return apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	if parsedURL.Host == "" || parsedURL.Hostname() == "" {
		return apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if parsedURL.User != nil {
		return apperrors.NewValidationError("URL must not carry credentials", nil)
	}

	if !v.isHostAllowed(parsedURL.Hostname()) {
		return apperrors.NewValidationError("URL host not allowed", nil)
	}

	return nil
}

// ValidateBlobReference validates a container/blob pair for the blob source
func (v *SourceValidator) ValidateBlobReference(container, name string) error {
	if len(container) < 3 || len(container) > 63 || !containerNamePattern.MatchString(container) {
		return apperrors.NewValidationError("Invalid blob container name", nil)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.NewValidationError("Blob name cannot be empty", nil)
	}
	if len(name) > 1024 {
		return apperrors.NewValidationError("Blob name is too long", nil)
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return apperrors.NewValidationError("Blob name must not contain relative segments", nil)
		}
	}
	return nil
}

// isSchemeAllowed checks if the URL scheme is in the allowed list
func (v *SourceValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isHostAllowed checks if the host is in the allowed list
// Returns true if no host restrictions are set (empty allowedHosts)
func (v *SourceValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	for _, allowed := range v.allowedHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

package feed

import "errors"

var (
	// ErrParse marks feed content that is structurally invalid and not HTML.
	ErrParse = errors.New("parse feed")

	ErrInvalidURL = errors.New("invalid feed URL")
)

// DiscoveryError reports that a response was an HTML page rather than a feed.
// The page may still link to the real feed.
type DiscoveryError struct {
	Message     string
	HTMLContent string
	OriginalURL string
}

func (e *DiscoveryError) Error() string {
	return e.Message
}

func newDiscoveryError(message string, htmlContent string, originalURL string) *DiscoveryError {
	return &DiscoveryError{
		Message:     message,
		HTMLContent: htmlContent,
		OriginalURL: originalURL,
	}
}

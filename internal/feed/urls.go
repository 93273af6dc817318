package feed

import (
	"fmt"
	"net/url"
	"strings"

	"mvdan.cc/xurls/v2"
)

// ExtractFeedURLs returns the distinct http(s) URLs found in free text, in
// order of appearance.
func ExtractFeedURLs(text string) ([]string, error) {
	re, err := xurls.StrictMatchingScheme(`https?://`)
	if err != nil {
		return nil, fmt.Errorf("create regexp: %w", err)
	}

	matches := re.FindAllString(strings.TrimSpace(text), -1)

	urls := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))

	for _, m := range matches {
		m = strings.TrimSpace(m)
		if _, ok := seen[m]; ok {
			continue
		}

		seen[m] = struct{}{}
		urls = append(urls, m)
	}

	return urls, nil
}

// ValidateFeedURL checks that raw is an absolute http or https URL.
func ValidateFeedURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https (URL = %s)", ErrInvalidURL, raw)
	}

	if u.Host == "" {
		return "", fmt.Errorf("%w: host is empty (URL = %s)", ErrInvalidURL, raw)
	}

	return raw, nil
}

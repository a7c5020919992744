package wapayload

import "strings"

// AbsoluteMediaURL prefixes gateway-relative media paths with the gateway base URL.
func AbsoluteMediaURL(mediaURL, baseURL string) string {
	u := strings.TrimSpace(mediaURL)
	if u == "" || baseURL == "" {
		return u
	}
	if strings.Contains(u, "://") || strings.HasPrefix(u, "data:") {
		return u
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(u, "/")
}

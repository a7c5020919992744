package httpclient

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
)

// Result is the outcome of one logical request, after retries.
type Result struct {
	Success     bool
	StatusCode  int
	ContentType string
	Header      http.Header
	// Data is the decoded body: any for JSON, string for text, []byte otherwise.
	Data     any
	Err      error
	Attempts int
	raw      []byte
}

// Decode unmarshals the raw JSON body into v.
func (r *Result) Decode(v any) error {
	if r == nil || len(r.raw) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(r.raw, v)
}

func (r *Result) Bytes() []byte {
	if r == nil {
		return nil
	}
	return r.raw
}

func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	return string(r.raw)
}

func (r *Result) Error() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func parseBody(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case strings.HasSuffix(mediaType, "json"):
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return string(raw)
		}
		return v
	case strings.HasPrefix(mediaType, "text/"), mediaType == "":
		return string(raw)
	default:
		return raw
	}
}

package wapayload

import (
	"strconv"
	"strings"
)

// lookup returns m[name] for the first present name. Field names are matched
// exactly first and then case-insensitively, since protojson renders some
// WhatsApp fields as "URL" while JSON gateways use "url".
func lookup(m map[string]any, names ...string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, name := range names {
		if v, ok := m[name]; ok && v != nil {
			return v, true
		}
	}
	for _, name := range names {
		for k, v := range m {
			if v != nil && strings.EqualFold(k, name) {
				return v, true
			}
		}
	}
	return nil, false
}

func obj(m map[string]any, names ...string) map[string]any {
	v, ok := lookup(m, names...)
	if !ok {
		return nil
	}
	out, _ := v.(map[string]any)
	return out
}

func str(m map[string]any, names ...string) string {
	for _, name := range names {
		v, ok := lookup(m, name)
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		}
	}
	return ""
}

func boolean(m map[string]any, names ...string) (bool, bool) {
	v, ok := lookup(m, names...)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	return false, false
}

func number(m map[string]any, names ...string) (float64, bool) {
	v, ok := lookup(m, names...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// text is str without trimming, for user-typed content.
func text(m map[string]any, names ...string) string {
	for _, name := range names {
		if v, ok := lookup(m, name); ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

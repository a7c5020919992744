package wapayload

import "github.com/sirupsen/logrus"

// Items flattens an event data field into a list of objects. Data may be a
// single object, an array, or an object wrapping the array under one of
// listKeys (for example "messages").
func Items(data any, listKeys ...string) []map[string]any {
	switch v := data.(type) {
	case []any:
		return objects(v)
	case []map[string]any:
		return v
	case map[string]any:
		for _, key := range listKeys {
			if list, ok := v[key].([]any); ok {
				return objects(list)
			}
		}
		return []map[string]any{v}
	}
	return nil
}

// Messages is Items for message upserts.
func Messages(data any) []map[string]any {
	return Items(data, "messages")
}

// objects keeps the object entries of list. Anything else is a malformed
// item: it is logged and skipped, the rest of the batch still goes through.
func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			logrus.WithField("index", i).Warnf("[WEBHOOK] skipping malformed batch item of type %T", item)
			continue
		}
		out = append(out, m)
	}
	return out
}

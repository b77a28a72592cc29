package rtproto

import "encoding/json"

// DecodeDelta flattens a delta payload of arbitrary shape into plain text.
//
// The realtime protocol delivers incremental content in several historical
// shapes: a bare string, an array of payloads, or an object carrying the text
// under one of a few well-known keys. DecodeDelta is total — it never fails;
// unrecognised shapes degrade to the empty string so that one malformed delta
// cannot poison the rest of an event batch.
//
// Object fields are probed in a fixed priority order:
//
//	"text"    — primary text field
//	"value"   — generic value field
//	"content" — array of nested payloads, concatenated in order
//	"delta"   — nested delta payload, decoded recursively
func DecodeDelta(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return flattenDelta(v)
}

func flattenDelta(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var out string
		for _, el := range t {
			out += flattenDelta(el)
		}
		return out
	case map[string]any:
		if s, ok := t["text"]; ok {
			if text := flattenDelta(s); text != "" {
				return text
			}
		}
		if s, ok := t["value"]; ok {
			if text := flattenDelta(s); text != "" {
				return text
			}
		}
		if s, ok := t["content"]; ok {
			if arr, isArr := s.([]any); isArr {
				if text := flattenDelta(arr); text != "" {
					return text
				}
			}
		}
		if s, ok := t["delta"]; ok {
			return flattenDelta(s)
		}
		return ""
	default:
		return ""
	}
}

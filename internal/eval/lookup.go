package eval

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/atlekbai/record_query/internal/query"
)

// Lookup resolves a plain or dotted property. Nested maps are walked
// directly; when a raw JSON value is reached with segments left, gjson
// resolves the remainder.
func Lookup(rec query.Record, path string) (any, bool) {
	if rec == nil {
		return nil, false
	}
	if v, ok := rec[path]; ok {
		return v, true
	}

	segs := strings.Split(path, ".")
	var cur any = rec
	for i, seg := range segs {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			raw, ok := rawJSON(node)
			if !ok {
				return nil, false
			}
			res := gjson.GetBytes(raw, strings.Join(segs[i:], "."))
			if !res.Exists() {
				return nil, false
			}
			return res.Value(), true
		}
	}
	return cur, true
}

func rawJSON(v any) ([]byte, bool) {
	var b []byte
	switch x := v.(type) {
	case json.RawMessage:
		b = x
	case []byte:
		b = x
	case string:
		s := strings.TrimSpace(x)
		if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
			return nil, false
		}
		b = []byte(s)
	default:
		return nil, false
	}
	if !gjson.ValidBytes(b) {
		return nil, false
	}
	return b, true
}

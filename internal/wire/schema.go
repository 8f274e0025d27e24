package wire

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const bodySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "collection": {"type": "string"},
    "where": {
      "type": "array",
      "minItems": 2,
      "maxItems": 2,
      "items": [
        {"enum": ["AND", "OR", "NOT"]},
        {"type": "array", "items": {"type": "array", "minItems": 2, "maxItems": 3}}
      ]
    },
    "sort": {
      "type": "array",
      "items": {
        "type": "array",
        "minItems": 2,
        "maxItems": 2,
        "items": [
          {"type": "string", "minLength": 1},
          {"enum": ["ASC", "DESC", "asc", "desc"]}
        ]
      }
    },
    "group": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "start": {"type": "integer", "minimum": 0},
    "limit": {
      "anyOf": [
        {"type": "integer", "minimum": 0},
        {"enum": [false]}
      ]
    },
    "aggregate": {
      "type": "object",
      "additionalProperties": false,
      "required": ["func"],
      "properties": {
        "func": {"enum": ["count", "sum", "avg", "min", "max"]},
        "column": {"type": "string"}
      }
    }
  }
}`

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(bodySchema))
})

// Validate checks the top-level shape of a request object before any
// model is built. Nested terms are checked by DecodeCondition.
func Validate(doc map[string]any) error {
	s, err := loadSchema()
	if err != nil {
		return fmt.Errorf("compile body schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return malformed("body", "%v", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return malformed("body", "%s", strings.Join(msgs, "; "))
}

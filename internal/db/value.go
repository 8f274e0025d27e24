package db

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// TimeLayout is the engine-local timestamp format of bound times.
const TimeLayout = "2006-01-02 15:04:05"

// ToSQLValue coerces a value before it is bound: times become local
// timestamp strings, maps and slices JSON text. nil stays nil so missing
// columns are written as NULL.
func ToSQLValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case sq.Sqlizer:
		return t
	case time.Time:
		return t.Local().Format(TimeLayout)
	case json.RawMessage:
		return string(t)
	case []byte, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
	return v
}

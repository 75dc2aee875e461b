// Package scalar converts field values between caller input, driver
// arguments and the canonical Go values results are returned as.
//
// Canonical values per schema type:
//
//	String, Enum   string
//	Int, BigInt    int64
//	Float          float64
//	Decimal        *apd.Decimal
//	Boolean        bool
//	DateTime       time.Time (UTC)
//	Json           json.RawMessage
//	Bytes          []byte
package scalar

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/satishbabariya/prisma-engine/schema"
)

// Normalize checks that v is acceptable for a field of type t and returns its
// canonical form. A nil (or nil pointer) input returns nil.
func Normalize(t schema.ScalarType, v any) (any, error) {
	v = deref(v)
	if v == nil {
		return nil, nil
	}
	switch t {
	case schema.String, schema.Enum:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.Int:
		n, ok := toInt64(v)
		if !ok {
			break
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("value %d overflows Int", n)
		}
		return n, nil
	case schema.BigInt:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case schema.Float:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		}
		if n, ok := toInt64(v); ok {
			return float64(n), nil
		}
	case schema.Decimal:
		return toDecimal(v)
	case schema.Boolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.DateTime:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return nil, fmt.Errorf("invalid DateTime %q: %w", x, err)
			}
			return ts.UTC(), nil
		}
	case schema.Json:
		if raw, ok := v.(json.RawMessage); ok {
			if !json.Valid(raw) {
				return nil, fmt.Errorf("invalid JSON")
			}
			return append(json.RawMessage(nil), raw...), nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("value is not JSON-encodable: %w", err)
		}
		return json.RawMessage(raw), nil
	case schema.Bytes:
		if b, ok := v.([]byte); ok {
			return append([]byte(nil), b...), nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}

// Arg converts a canonical value into a driver argument.
func Arg(v any) any {
	switch x := v.(type) {
	case *apd.Decimal:
		return x.String()
	case json.RawMessage:
		return string(x)
	}
	return v
}

// Decode converts a value read from the store into the canonical form for t.
func Decode(t schema.ScalarType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch t {
	case schema.String, schema.Enum:
		switch x := raw.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case schema.Int, schema.BigInt:
		switch x := raw.(type) {
		case int64:
			return x, nil
		case float64:
			if x == math.Trunc(x) {
				return int64(x), nil
			}
		case []byte, string:
			return strconv.ParseInt(text(x), 10, 64)
		}
		if n, ok := toInt64(raw); ok {
			return n, nil
		}
	case schema.Float:
		switch x := raw.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case []byte, string:
			return strconv.ParseFloat(text(x), 64)
		}
	case schema.Decimal:
		switch x := raw.(type) {
		case []byte, string:
			d, _, err := apd.NewFromString(text(x))
			return d, err
		}
		return toDecimal(raw)
	case schema.Boolean:
		switch x := raw.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case []byte, string:
			switch strings.ToLower(text(x)) {
			case "1", "t", "true":
				return true, nil
			case "0", "f", "false":
				return false, nil
			}
		}
	case schema.DateTime:
		switch x := raw.(type) {
		case time.Time:
			return x.UTC(), nil
		case []byte, string:
			return parseTime(text(x))
		}
	case schema.Json:
		switch x := raw.(type) {
		case []byte:
			return append(json.RawMessage(nil), x...), nil
		case string:
			return json.RawMessage(x), nil
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(b), nil
	case schema.Bytes:
		switch x := raw.(type) {
		case []byte:
			return append([]byte(nil), x...), nil
		case string:
			return []byte(x), nil
		}
	}
	return nil, fmt.Errorf("cannot decode %T as %s", raw, t)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, s+"Z"); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as DateTime", s)
}

func text(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v.(string)
}

func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		if _, ok := rv.Interface().(*apd.Decimal); ok {
			return rv.Interface()
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), uint64(x) <= math.MaxInt64
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), x <= math.MaxInt64
	}
	return 0, false
}

func toDecimal(v any) (*apd.Decimal, error) {
	switch x := v.(type) {
	case *apd.Decimal:
		return new(apd.Decimal).Set(x), nil
	case apd.Decimal:
		return new(apd.Decimal).Set(&x), nil
	case string:
		d, _, err := apd.NewFromString(x)
		if err != nil {
			return nil, fmt.Errorf("invalid Decimal %q: %w", x, err)
		}
		return d, nil
	case float64:
		d, _, err := apd.NewFromString(strconv.FormatFloat(x, 'f', -1, 64))
		return d, err
	case float32:
		d, _, err := apd.NewFromString(strconv.FormatFloat(float64(x), 'f', -1, 32))
		return d, err
	}
	if n, ok := toInt64(v); ok {
		return apd.New(n, 0), nil
	}
	return nil, fmt.Errorf("expected Decimal, got %T", v)
}

// Compare orders two canonical values of the same type. NULL sorts first.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case int64:
		y := b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case time.Time:
		return x.Compare(b.(time.Time))
	case *apd.Decimal:
		return x.Cmp(b.(*apd.Decimal))
	case []byte:
		return bytes.Compare(x, b.([]byte))
	case json.RawMessage:
		return bytes.Compare(x, b.(json.RawMessage))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Equal reports whether two canonical values are equal.
func Equal(a, b any) bool { return Compare(a, b) == 0 }

// Key encodes a tuple of canonical values as a map key.
func Key(values ...any) string {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(0)
		}
		switch x := v.(type) {
		case nil:
			sb.WriteString("null")
		case time.Time:
			sb.WriteString(x.UTC().Format(time.RFC3339Nano))
		case []byte:
			sb.WriteString(hex.EncodeToString(x))
		case *apd.Decimal:
			var r apd.Decimal
			r.Reduce(x)
			sb.WriteString(r.String())
		default:
			fmt.Fprintf(&sb, "%v", x)
		}
	}
	return sb.String()
}

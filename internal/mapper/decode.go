package mapper

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/satishbabariya/prisma-engine/query"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(apd.Decimal{})
	rawType     = reflect.TypeOf(json.RawMessage(nil))
	recordType  = reflect.TypeOf(query.Record(nil))
)

// Decode copies a record into the struct dest points to. Struct fields are
// matched by their db tag, then their json tag, then case-insensitively by
// name. Nested records decode into struct, pointer and slice fields.
func Decode(rec query.Record, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("dest must be a non-nil pointer, got %T", dest)
	}
	return setValue(v.Elem(), rec)
}

// DecodeAll copies records into the slice dest points to.
func DecodeAll(recs []query.Record, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("dest must be a pointer to a slice, got %T", dest)
	}
	return setValue(v.Elem(), recs)
}

func decodeStruct(rec query.Record, dest reflect.Value) error {
	t := dest.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := dest.Field(i)
		if !fv.CanSet() {
			continue
		}
		name, skip := fieldName(field)
		if skip {
			continue
		}
		value, ok := rec[name]
		if !ok {
			if value, ok = findFold(rec, name); !ok {
				continue
			}
		}
		if err := setValue(fv, value); err != nil {
			return fmt.Errorf("failed to set field %s: %w", field.Name, err)
		}
	}
	return nil
}

func fieldName(field reflect.StructField) (string, bool) {
	for _, key := range []string{"db", "json"} {
		tag := field.Tag.Get(key)
		if tag == "-" {
			return "", true
		}
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			return name, false
		}
	}
	return field.Name, false
}

func findFold(rec query.Record, key string) (any, bool) {
	for k, v := range rec {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// setValue assigns a canonical value to field, converting where needed.
func setValue(field reflect.Value, value any) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if rec, ok := value.(query.Record); ok && rec == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	ft := field.Type()
	if ft.Kind() == reflect.Pointer && ft != reflect.TypeOf((*apd.Decimal)(nil)) {
		ptr := reflect.New(ft.Elem())
		if err := setValue(ptr.Elem(), value); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	vv := reflect.ValueOf(value)
	if vv.Type().AssignableTo(ft) {
		field.Set(vv)
		return nil
	}

	switch x := value.(type) {
	case query.Record:
		switch {
		case ft.Kind() == reflect.Struct:
			return decodeStruct(x, field)
		case ft.Kind() == reflect.Map && recordType.ConvertibleTo(ft):
			field.Set(reflect.ValueOf(x).Convert(ft))
			return nil
		}
		return fmt.Errorf("cannot decode a record into %s", ft)
	case []query.Record:
		if ft.Kind() != reflect.Slice {
			return fmt.Errorf("cannot decode records into %s", ft)
		}
		out := reflect.MakeSlice(ft, len(x), len(x))
		for i, rec := range x {
			if err := setValue(out.Index(i), rec); err != nil {
				return err
			}
		}
		field.Set(out)
		return nil
	case *apd.Decimal:
		return setDecimal(field, x)
	case json.RawMessage:
		if ft == rawType {
			field.SetBytes(append([]byte(nil), x...))
			return nil
		}
		if ft.Kind() == reflect.String {
			field.SetString(string(x))
			return nil
		}
		return json.Unmarshal(x, field.Addr().Interface())
	}

	switch ft.Kind() {
	case reflect.String:
		field.SetString(fmt.Sprintf("%v", value))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := value.(int64)
		if !ok {
			return fmt.Errorf("cannot convert %T to int", value)
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, ft)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := value.(int64)
		if !ok || n < 0 {
			return fmt.Errorf("cannot convert %v to uint", value)
		}
		field.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		switch v := value.(type) {
		case float64:
			field.SetFloat(v)
		case int64:
			field.SetFloat(float64(v))
		default:
			return fmt.Errorf("cannot convert %T to float", value)
		}
	case reflect.Struct:
		if ft == timeType {
			return fmt.Errorf("cannot convert %T to time.Time", value)
		}
		return fmt.Errorf("unsupported struct type: %s", ft)
	default:
		return fmt.Errorf("unsupported field type: %s", ft)
	}
	return nil
}

func setDecimal(field reflect.Value, d *apd.Decimal) error {
	ft := field.Type()
	switch {
	case ft == reflect.TypeOf(d):
		field.Set(reflect.ValueOf(new(apd.Decimal).Set(d)))
	case ft == decimalType:
		field.Set(reflect.ValueOf(*new(apd.Decimal).Set(d)))
	case ft.Kind() == reflect.String:
		field.SetString(d.String())
	case ft.Kind() == reflect.Float32 || ft.Kind() == reflect.Float64:
		f, err := d.Float64()
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("cannot convert a Decimal to %s", ft)
	}
	return nil
}

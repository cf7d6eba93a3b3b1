package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// marshalScalar writes v as the named scalar of the schema.
func marshalScalar(name string, v any) (graphql.Marshaler, error) {
	if m, ok := v.(graphql.Marshaler); ok {
		return m, nil
	}
	v = deref(v)
	if v == nil {
		return graphql.Null, nil
	}
	switch name {
	case "DateTime":
		if t, ok := v.(time.Time); ok {
			return graphql.MarshalTime(t), nil
		}
	case "Decimal":
		if d, ok := v.(decimal.Decimal); ok {
			return MarshalDecimal(d), nil
		}
	case "JSON":
		return marshalJSON(v)
	case "Float":
		switch f := v.(type) {
		case decimal.Decimal:
			return graphql.MarshalFloat(f.InexactFloat64()), nil
		case float64:
			return graphql.MarshalFloat(f), nil
		case float32:
			return graphql.MarshalFloat(float64(f)), nil
		}
	}

	rv := reflect.ValueOf(v)
	switch name {
	case "Int":
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return graphql.MarshalInt64(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
			return graphql.MarshalInt64(int64(rv.Uint())), nil
		}
	case "String":
		if rv.Kind() == reflect.String {
			return graphql.MarshalString(rv.String()), nil
		}
		if s, ok := v.(fmt.Stringer); ok {
			return graphql.MarshalString(s.String()), nil
		}
	case "ID":
		switch rv.Kind() {
		case reflect.String:
			return graphql.MarshalID(rv.String()), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return graphql.MarshalID(fmt.Sprint(rv.Int())), nil
		}
	case "Boolean":
		if rv.Kind() == reflect.Bool {
			return graphql.MarshalBoolean(rv.Bool()), nil
		}
	}
	return nil, fmt.Errorf("cannot marshal %T as %s", v, name)
}

func marshalJSON(v any) (graphql.Marshaler, error) {
	var raw []byte
	switch data := v.(type) {
	case datatypes.JSON:
		raw = data
	case json.RawMessage:
		raw = data
	default:
		return graphql.MarshalAny(v), nil
	}
	if len(raw) == 0 {
		raw = []byte("null")
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON value")
	}
	return graphql.WriterFunc(func(w io.Writer) {
		w.Write(raw)
	}), nil
}

// deref follows pointers, nil for nil pointers and interfaces.
func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

package graph

import (
	"encoding/json"
	"fmt"
	"reflect"

	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/99designs/gqlgen/graphql"
	"github.com/shopspring/decimal"
)

// argReader decodes field arguments, keeping the first error.
type argReader struct {
	args map[string]any
	err  error
}

func readArgs(args map[string]any) *argReader {
	return &argReader{args: args}
}

func arg[T any](a *argReader, name string) T {
	var zero T
	if a.err != nil {
		return zero
	}
	v, err := decodeArg[T](a.args[name])
	if err != nil {
		a.err = utils.NewBadRequest("Invalid value for argument %q: %v", name, err)
		return zero
	}
	return v
}

var unmarshalerType = reflect.TypeOf((*graphql.Unmarshaler)(nil)).Elem()

// decodeArg converts a coerced argument value into T. Enums and scalars go
// through UnmarshalGQL, input objects through their JSON form.
func decodeArg[T any](raw any) (T, error) {
	var out T
	if raw == nil {
		return out, nil
	}
	if v, ok := raw.(T); ok {
		return v, nil
	}
	switch p := any(&out).(type) {
	case *decimal.Decimal:
		d, err := UnmarshalDecimal(raw)
		*p = d
		return out, err
	case *any:
		*p = raw
		return out, nil
	}
	if u, ok := any(&out).(graphql.Unmarshaler); ok {
		return out, u.UnmarshalGQL(raw)
	}

	rt := reflect.TypeOf(&out).Elem()
	switch {
	case rt.Kind() == reflect.Ptr:
		elem := reflect.New(rt.Elem())
		if err := decodeInto(elem, raw); err != nil {
			return out, err
		}
		return elem.Interface().(T), nil
	case rt.Kind() == reflect.Slice && reflect.PointerTo(rt.Elem()).Implements(unmarshalerType):
		items, ok := raw.([]any)
		if !ok {
			items = []any{raw}
		}
		list := reflect.MakeSlice(rt, len(items), len(items))
		for i, item := range items {
			if err := list.Index(i).Addr().Interface().(graphql.Unmarshaler).UnmarshalGQL(item); err != nil {
				return out, err
			}
		}
		return list.Interface().(T), nil
	}
	return out, decodeInto(reflect.ValueOf(&out), raw)
}

// decodeInto fills the value ptr points to.
func decodeInto(ptr reflect.Value, raw any) error {
	if u, ok := ptr.Interface().(graphql.Unmarshaler); ok {
		return u.UnmarshalGQL(raw)
	}
	if d, ok := ptr.Interface().(*decimal.Decimal); ok {
		v, err := UnmarshalDecimal(raw)
		*d = v
		return err
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("cannot encode %T: %w", raw, err)
	}
	return json.Unmarshal(b, ptr.Interface())
}

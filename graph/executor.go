package graph

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/introspection"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

type fieldResolver func(ctx context.Context, obj any, args map[string]any) (any, error)

type DirectiveRoot struct {
	Scope func(ctx context.Context, obj interface{}, next graphql.Resolver, name string) (res interface{}, err error)
}

type Config struct {
	Resolvers  *Resolver
	Directives DirectiveRoot
}

// NewExecutableSchema creates an ExecutableSchema from the Config.
func NewExecutableSchema(cfg Config) graphql.ExecutableSchema {
	e := &executableSchema{
		schema:     parsedSchema,
		directives: cfg.Directives,
		resolvers:  map[string]map[string]fieldResolver{},
	}
	e.field("Query", "__schema", func(ctx context.Context, _ any, _ map[string]any) (any, error) {
		if graphql.GetOperationContext(ctx).DisableIntrospection {
			return nil, fmt.Errorf("introspection disabled")
		}
		return introspection.WrapSchema(e.schema), nil
	})
	e.field("Query", "__type", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		if graphql.GetOperationContext(ctx).DisableIntrospection {
			return nil, fmt.Errorf("introspection disabled")
		}
		name, _ := args["name"].(string)
		return introspection.WrapTypeFromDef(e.schema, e.schema.Types[name]), nil
	})
	if cfg.Resolvers != nil {
		cfg.Resolvers.register(e)
	}
	return e
}

type executableSchema struct {
	schema     *ast.Schema
	directives DirectiveRoot
	// type name -> field name -> resolver, other fields are read from the object
	resolvers map[string]map[string]fieldResolver
}

func (e *executableSchema) field(typeName, fieldName string, resolve fieldResolver) {
	if e.resolvers[typeName] == nil {
		e.resolvers[typeName] = map[string]fieldResolver{}
	}
	e.resolvers[typeName][fieldName] = resolve
}

func (e *executableSchema) Schema() *ast.Schema {
	return e.schema
}

func (e *executableSchema) Complexity(typeName, field string, childComplexity int, rawArgs map[string]interface{}) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	rc := graphql.GetOperationContext(ctx)
	ec := &executionContext{OperationContext: rc, executableSchema: e}

	var root *ast.Definition
	switch rc.Operation.Operation {
	case ast.Query:
		root = e.schema.Query
	case ast.Mutation:
		root = e.schema.Mutation
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}

	first := true
	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false
		// mutations run their root fields one after another
		data, _ := ec.selectionSet(ctx, root, rc.Operation.SelectionSet, nil)
		var buf bytes.Buffer
		data.MarshalGQL(&buf)
		return &graphql.Response{Data: buf.Bytes()}
	}
}

type executionContext struct {
	*graphql.OperationContext
	*executableSchema
}

// selectionSet returns false when a non-null field of the object resolved to null.
func (ec *executionContext) selectionSet(ctx context.Context, def *ast.Definition, sel ast.SelectionSet, obj any) (graphql.Marshaler, bool) {
	satisfies := append([]string{def.Name}, def.Interfaces...)
	fields := graphql.CollectFields(ec.OperationContext, sel, satisfies)
	out := &orderedObject{keys: make([]string, len(fields)), values: make([]graphql.Marshaler, len(fields))}
	valid := true
	for i, field := range fields {
		out.keys[i] = field.Alias
		value, ok := ec.resolveField(ctx, def, field, obj)
		if !ok {
			valid = false
		}
		out.values[i] = value
	}
	if !valid {
		return graphql.Null, false
	}
	return out, true
}

func (ec *executionContext) resolveField(ctx context.Context, def *ast.Definition, field graphql.CollectedField, obj any) (graphql.Marshaler, bool) {
	if field.Name == "__typename" {
		return graphql.MarshalString(def.Name), true
	}
	fieldDef := def.Fields.ForName(field.Name)
	if fieldDef == nil {
		fieldDef = field.Definition
	}
	if fieldDef == nil {
		graphql.AddErrorf(ctx, "unknown field %s.%s", def.Name, field.Name)
		return graphql.Null, true
	}

	resolve := ec.resolvers[def.Name][field.Name]
	fc := &graphql.FieldContext{
		Object:     def.Name,
		Field:      field,
		Args:       field.ArgumentMap(ec.Variables),
		IsMethod:   true,
		IsResolver: resolve != nil,
	}
	ctx = graphql.WithFieldContext(ctx, fc)

	res, childCtx, err := ec.call(ctx, fieldDef, obj, fc.Args, resolve)
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null, !fieldDef.Type.NonNull
	}
	fc.Result = res
	return ec.complete(childCtx, fieldDef.Type, field, res)
}

// call runs the field through the @scope directive and the field middleware.
// The returned context is the one the resolver saw, children inherit it.
func (ec *executionContext) call(ctx context.Context, fieldDef *ast.FieldDefinition, obj any, args map[string]any, resolve fieldResolver) (res any, childCtx context.Context, err error) {
	childCtx = ctx
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = ec.Recover(ctx, r)
		}
	}()

	next := func(rctx context.Context) (interface{}, error) {
		childCtx = rctx
		if resolve != nil {
			return resolve(rctx, obj, args)
		}
		return defaultResolve(obj, fieldDef, args)
	}
	if d := fieldDef.Directives.ForName("scope"); d != nil && ec.directives.Scope != nil {
		inner := next
		name := directiveArg(d, "name")
		next = func(rctx context.Context) (interface{}, error) {
			return ec.directives.Scope(rctx, obj, inner, name)
		}
	}
	if ec.ResolverMiddleware == nil {
		res, err = next(ctx)
		return res, childCtx, err
	}
	res, err = ec.ResolverMiddleware(ctx, next)
	return res, childCtx, err
}

func directiveArg(d *ast.Directive, name string) string {
	if arg := d.Arguments.ForName(name); arg != nil && arg.Value != nil {
		return arg.Value.Raw
	}
	return ""
}

// complete converts a resolved value to its schema type.
func (ec *executionContext) complete(ctx context.Context, typ *ast.Type, field graphql.CollectedField, v any) (graphql.Marshaler, bool) {
	if isNil(v) {
		if typ.Elem != nil && typ.NonNull && v != nil && reflect.ValueOf(v).Kind() == reflect.Slice {
			return graphql.Array{}, true
		}
		if typ.NonNull {
			if !graphql.HasFieldError(ctx, graphql.GetFieldContext(ctx)) {
				graphql.AddErrorf(ctx, "must not be null")
			}
			return graphql.Null, false
		}
		return graphql.Null, true
	}

	var (
		m  graphql.Marshaler
		ok bool
	)
	if typ.Elem != nil {
		m, ok = ec.completeList(ctx, typ.Elem, field, v)
	} else {
		m, ok = ec.completeNamed(ctx, typ.NamedType, field, v)
	}
	if !ok {
		return graphql.Null, !typ.NonNull
	}
	return m, true
}

func (ec *executionContext) completeList(ctx context.Context, elem *ast.Type, field graphql.CollectedField, v any) (graphql.Marshaler, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		graphql.AddErrorf(ctx, "expected a list, got %T", v)
		return graphql.Null, false
	}

	n := rv.Len()
	out := make(graphql.Array, n)
	valid := make([]bool, n)
	// objects may load relations, resolve them together so loaders can batch
	concurrent := n > 1 && ec.schema.Types[elem.Name()] != nil && ec.schema.Types[elem.Name()].Kind == ast.Object

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		item := rv.Index(i)
		var value any
		if item.Kind() == reflect.Struct && item.CanAddr() {
			value = item.Addr().Interface()
		} else {
			value = item.Interface()
		}
		index := i
		ictx := graphql.WithFieldContext(ctx, &graphql.FieldContext{Index: &index, Result: value})
		run := func() {
			defer func() {
				if r := recover(); r != nil {
					graphql.AddError(ictx, ec.Recover(ictx, r))
					out[index] = graphql.Null
				}
			}()
			out[index], valid[index] = ec.complete(ictx, elem, field, value)
		}
		if !concurrent {
			run()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			run()
		}()
	}
	wg.Wait()

	for _, ok := range valid {
		if !ok {
			return graphql.Null, false
		}
	}
	return out, true
}

func (ec *executionContext) completeNamed(ctx context.Context, name string, field graphql.CollectedField, v any) (graphql.Marshaler, bool) {
	def := ec.schema.Types[name]
	if def == nil {
		graphql.AddErrorf(ctx, "unknown type %s", name)
		return graphql.Null, false
	}
	switch def.Kind {
	case ast.Scalar:
		m, err := marshalScalar(name, v)
		if err != nil {
			graphql.AddError(ctx, err)
			return graphql.Null, false
		}
		return m, true
	case ast.Enum:
		if m, ok := v.(graphql.Marshaler); ok {
			return m, true
		}
		return graphql.MarshalString(fmt.Sprint(deref(v))), true
	case ast.Object:
		return ec.selectionSet(ctx, def, field.Selections, v)
	}
	graphql.AddErrorf(ctx, "unsupported type %s", name)
	return graphql.Null, false
}

// defaultResolve reads a field without a registered resolver from the object:
// a method named like the field, then a struct field, then a map key.
func defaultResolve(obj any, fieldDef *ast.FieldDefinition, args map[string]any) (any, error) {
	if obj == nil {
		return nil, fmt.Errorf("no resolver for %s", fieldDef.Name)
	}
	rv := reflect.ValueOf(obj)

	if method, ok := findMethod(rv, fieldDef.Name); ok {
		return callMethod(method, fieldDef, args)
	}

	base := rv
	for base.Kind() == reflect.Ptr || base.Kind() == reflect.Interface {
		if base.IsNil() {
			return nil, nil
		}
		base = base.Elem()
	}
	switch base.Kind() {
	case reflect.Struct:
		f := base.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, fieldDef.Name) })
		if f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	case reflect.Map:
		if base.Type().Key().Kind() == reflect.String {
			if value := base.MapIndex(reflect.ValueOf(fieldDef.Name)); value.IsValid() {
				return value.Interface(), nil
			}
			return nil, nil
		}
	}
	if strings.HasPrefix(fieldDef.Name, "__") || strings.HasPrefix(rv.Type().String(), "*introspection.") {
		return nil, nil
	}
	return nil, fmt.Errorf("%T has no field %s", obj, fieldDef.Name)
}

func findMethod(rv reflect.Value, name string) (reflect.Value, bool) {
	if rv.Kind() != reflect.Ptr && rv.Kind() != reflect.Interface {
		// pointer receiver methods need an addressable copy
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		rv = ptr
	}
	t := rv.Type()
	for i := 0; i < t.NumMethod(); i++ {
		if strings.EqualFold(t.Method(i).Name, name) {
			return rv.Method(i), true
		}
	}
	return reflect.Value{}, false
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func callMethod(method reflect.Value, fieldDef *ast.FieldDefinition, args map[string]any) (any, error) {
	mt := method.Type()
	if mt.NumIn() > len(fieldDef.Arguments) {
		return nil, fmt.Errorf("cannot resolve %s: method takes %d arguments", fieldDef.Name, mt.NumIn())
	}
	in := make([]reflect.Value, mt.NumIn())
	for i, argDef := range fieldDef.Arguments[:mt.NumIn()] {
		param := mt.In(i)
		value := args[argDef.Name]
		if value == nil {
			in[i] = reflect.Zero(param)
			continue
		}
		rv := reflect.ValueOf(value)
		if !rv.Type().ConvertibleTo(param) {
			return nil, fmt.Errorf("argument %s: cannot use %T", argDef.Name, value)
		}
		in[i] = rv.Convert(param)
	}

	out := method.Call(in)
	switch len(out) {
	case 1:
		return out[0].Interface(), nil
	case 2:
		if mt.Out(1) != errorType {
			break
		}
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}
	return nil, fmt.Errorf("cannot resolve %s: unsupported method", fieldDef.Name)
}

// orderedObject keeps the selection order of the response keys.
type orderedObject struct {
	keys   []string
	values []graphql.Marshaler
}

func (o *orderedObject) MarshalGQL(w io.Writer) {
	io.WriteString(w, "{")
	for i, key := range o.keys {
		if i > 0 {
			io.WriteString(w, ",")
		}
		graphql.MarshalString(key).MarshalGQL(w)
		io.WriteString(w, ":")
		o.values[i].MarshalGQL(w)
	}
	io.WriteString(w, "}")
}

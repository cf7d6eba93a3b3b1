package graph

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/collectives_backend/directives"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"github.com/99designs/gqlgen/graphql/handler"
)

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message    string         `json:"message"`
		Path       []any          `json:"path"`
		Extensions map[string]any `json:"extensions"`
	} `json:"errors"`
}

func newTestServer() *handler.Server {
	srv := handler.NewDefaultServer(NewExecutableSchema(Config{
		Resolvers:  &Resolver{},
		Directives: DirectiveRoot{Scope: directives.Scope},
	}))
	srv.SetErrorPresenter(ErrorPresenter)
	srv.SetRecoverFunc(RecoverFunc)
	return srv
}

func doQuery(t *testing.T, srv http.Handler, query string, variables map[string]any) gqlResponse {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var resp gqlResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestRegisteredFieldsExistInSchema(t *testing.T) {
	e := NewExecutableSchema(Config{Resolvers: &Resolver{}}).(*executableSchema)
	for typeName, fields := range e.resolvers {
		def := e.schema.Types[typeName]
		if def == nil {
			t.Fatalf("resolvers registered for unknown type %s", typeName)
		}
		for fieldName := range fields {
			if strings.HasPrefix(fieldName, "__") {
				continue
			}
			if def.Fields.ForName(fieldName) == nil {
				t.Fatalf("resolver registered for unknown field %s.%s", typeName, fieldName)
			}
		}
	}
}

func TestRootFieldsHaveResolvers(t *testing.T) {
	e := NewExecutableSchema(Config{Resolvers: &Resolver{}}).(*executableSchema)
	for _, root := range []string{"Query", "Mutation"} {
		for _, field := range e.schema.Types[root].Fields {
			if strings.HasPrefix(field.Name, "__") {
				continue
			}
			if e.resolvers[root][field.Name] == nil {
				t.Fatalf("%s.%s has no resolver", root, field.Name)
			}
		}
	}
}

func TestIntrospection(t *testing.T) {
	resp := doQuery(t, newTestServer(), `{ __schema { queryType { name } mutationType { name } } }`, nil)
	if len(resp.Errors) > 0 {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}
	var schema struct {
		QueryType    struct{ Name string } `json:"queryType"`
		MutationType struct{ Name string } `json:"mutationType"`
	}
	if err := json.Unmarshal(resp.Data["__schema"], &schema); err != nil {
		t.Fatalf("decode __schema: %v", err)
	}
	if schema.QueryType.Name != "Query" || schema.MutationType.Name != "Mutation" {
		t.Fatalf("unexpected root types: %+v", schema)
	}
}

func TestIntrospectionTypeFields(t *testing.T) {
	resp := doQuery(t, newTestServer(), `{ __type(name: "Account") { name kind fields { name } } }`, nil)
	if len(resp.Errors) > 0 {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}
	var typ struct {
		Name   string
		Kind   string
		Fields []struct{ Name string }
	}
	if err := json.Unmarshal(resp.Data["__type"], &typ); err != nil {
		t.Fatalf("decode __type: %v", err)
	}
	if typ.Name != "Account" || typ.Kind != "OBJECT" {
		t.Fatalf("unexpected type: %+v", typ)
	}
	found := false
	for _, f := range typ.Fields {
		if f.Name == "hasTwoFactorAuth" {
			found = true
		}
	}
	if !found {
		t.Fatalf("hasTwoFactorAuth missing from Account fields")
	}
}

func TestAnonymousLoggedInAccountIsNull(t *testing.T) {
	resp := doQuery(t, newTestServer(), `{ loggedInAccount { id slug } }`, nil)
	if len(resp.Errors) > 0 {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}
	if got := string(resp.Data["loggedInAccount"]); got != "null" {
		t.Fatalf("expected null, got %s", got)
	}
}

func TestScopeRequiresAuthentication(t *testing.T) {
	resp := doQuery(t, newTestServer(), `query($id: Int!) { order(id: $id) { id } }`, map[string]any{"id": 1})
	if len(resp.Errors) != 1 {
		t.Fatalf("expected one error, got %+v", resp.Errors)
	}
	if code := resp.Errors[0].Extensions["code"]; code != "Unauthorized" {
		t.Fatalf("expected Unauthorized, got %v", code)
	}
	if got := string(resp.Data["order"]); got != "null" {
		t.Fatalf("expected null order, got %s", got)
	}
}

func TestNonNullMutationErrorNullsData(t *testing.T) {
	srv := newTestServer()
	body, _ := json.Marshal(map[string]any{"query": `mutation { refundTransaction(transaction: 1) { id } }`})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var resp struct {
		Data   json.RawMessage `json:"data"`
		Errors []any           `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if string(resp.Data) != "null" {
		t.Fatalf("expected data to be null, got %s", resp.Data)
	}
	if len(resp.Errors) != 1 {
		t.Fatalf("expected one error, got %v", resp.Errors)
	}
}

func TestAccountQueryNeedsIdOrSlug(t *testing.T) {
	resp := doQuery(t, newTestServer(), `{ account { id } }`, nil)
	if len(resp.Errors) != 1 {
		t.Fatalf("expected one error, got %+v", resp.Errors)
	}
	if code := resp.Errors[0].Extensions["code"]; code != "BadRequest" {
		t.Fatalf("expected BadRequest, got %v", code)
	}
	if len(resp.Errors[0].Path) != 1 || resp.Errors[0].Path[0] != "account" {
		t.Fatalf("unexpected path %v", resp.Errors[0].Path)
	}
}

func TestTypename(t *testing.T) {
	resp := doQuery(t, newTestServer(), `{ __typename }`, nil)
	if got := string(resp.Data["__typename"]); got != `"Query"` {
		t.Fatalf("expected Query, got %s", got)
	}
}

func TestValidationErrorsAreReported(t *testing.T) {
	resp := doQuery(t, newTestServer(), `{ account(id: 1) { doesNotExist } }`, nil)
	if len(resp.Errors) == 0 {
		t.Fatalf("expected a validation error")
	}
	if !strings.Contains(resp.Errors[0].Message, "doesNotExist") {
		t.Fatalf("unexpected message %q", resp.Errors[0].Message)
	}
}

func TestReadArgs(t *testing.T) {
	a := readArgs(map[string]any{
		"account": map[string]any{"legacyId": int64(12)},
		"limit":   json.Number("5"),
		"type":    "WEBAUTHN",
		"status":  []any{"PAID", "ACTIVE"},
	})
	ref := accountRef(a)
	limit := arg[*int](a, "limit")
	method := arg[*models.TwoFactorMethod](a, "type")
	statuses := arg[[]models.OrderStatus](a, "status")
	if a.err != nil {
		t.Fatalf("unexpected error: %v", a.err)
	}
	if ref.LegacyId == nil || *ref.LegacyId != 12 {
		t.Fatalf("unexpected account reference %+v", ref)
	}
	if limit == nil || *limit != 5 {
		t.Fatalf("unexpected limit %v", limit)
	}
	if method == nil || *method != models.TwoFactorMethodWebAuthn {
		t.Fatalf("unexpected method %v", method)
	}
	if len(statuses) != 2 || statuses[0] != models.OrderStatusPaid || statuses[1] != models.OrderStatusActive {
		t.Fatalf("unexpected statuses %v", statuses)
	}
	if missing := arg[*string](a, "slug"); missing != nil {
		t.Fatalf("expected nil for a missing argument")
	}
}

func TestReadArgsKeepsFirstError(t *testing.T) {
	a := readArgs(map[string]any{"id": "not a number", "name": "ok"})
	_ = arg[int](a, "id")
	_ = arg[string](a, "name")
	if a.err == nil {
		t.Fatalf("expected an error")
	}
	if !strings.Contains(a.err.Error(), `"id"`) {
		t.Fatalf("error should name the argument: %v", a.err)
	}
}

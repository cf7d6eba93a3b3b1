package graph

import (
	"go.opentelemetry.io/otel/trace"
)

// This file will not be regenerated automatically.
//
// It serves as dependency injection for your app, add any dependencies you require here.

type Resolver struct {
	Tracer trace.Tracer
}

func (r *Resolver) Query() *queryResolver             { return &queryResolver{r} }
func (r *Resolver) Mutation() *mutationResolver       { return &mutationResolver{r} }
func (r *Resolver) Account() *accountResolver         { return &accountResolver{r} }
func (r *Resolver) Order() *orderResolver             { return &orderResolver{r} }
func (r *Resolver) Transaction() *transactionResolver { return &transactionResolver{r} }
func (r *Resolver) Activity() *activityResolver       { return &activityResolver{r} }
func (r *Resolver) PersonalToken() *personalTokenResolver {
	return &personalTokenResolver{r}
}

type queryResolver struct{ *Resolver }
type mutationResolver struct{ *Resolver }
type accountResolver struct{ *Resolver }
type orderResolver struct{ *Resolver }
type transactionResolver struct{ *Resolver }
type activityResolver struct{ *Resolver }
type personalTokenResolver struct{ *Resolver }

package directives

import (
	"context"
	"fmt"
	"slices"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/99designs/gqlgen/graphql"
)

// Scope requires an authenticated user. Requests made with a restricted
// personal token must also carry the named scope.
func Scope(ctx context.Context, obj interface{}, next graphql.Resolver, name string) (interface{}, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.NewUnauthorized("You need to be logged in")
	}
	if scopes, restricted := utils.GetScopesFromContext(ctx); restricted && !slices.Contains(scopes, name) {
		return nil, utils.NewForbidden(fmt.Sprintf("The personal token does not have the %s scope", name))
	}

	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	isRoot, err := user.IsRoot(ctx)
	if err != nil {
		config.LogErrorCtx(ctx, "directives", "Scope", "IsRoot", userId, err)
		return nil, err
	}

	ctx = models.WithCurrentUser(ctx, user)
	ctx = utils.SetUserNameInContext(ctx, user.Email)
	ctx = utils.SetCollectiveIdInContext(ctx, user.CollectiveId)
	ctx = utils.SetIsRootInContext(ctx, isRoot)
	return next(ctx)
}

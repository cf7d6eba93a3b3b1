package graph

import (
	"context"

	"bitbucket.org/mmdatafocus/collectives_backend/middlewares"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
)

// Account is the resolver for the account field.
func (r *queryResolver) Account(ctx context.Context, id *int, slug *string) (*models.Collective, error) {
	switch {
	case id != nil:
		return middlewares.GetCollective(ctx, *id)
	case slug != nil:
		return models.GetCollectiveBySlug(ctx, *slug)
	}
	return nil, utils.NewBadRequest("Please provide an id or a slug")
}

// LoggedInAccount is the resolver for the loggedInAccount field.
func (r *queryResolver) LoggedInAccount(ctx context.Context) (*models.Collective, error) {
	user, err := optionalUser(ctx)
	if err != nil || user == nil {
		return nil, err
	}
	return middlewares.GetCollective(ctx, user.CollectiveId)
}

// Activities is the resolver for the activities field.
func (r *queryResolver) Activities(ctx context.Context, ref models.AccountReferenceInput, types []string, limit *int, offset *int) ([]*models.Activity, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := models.FetchAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := requireAdminOrHostAdmin(ctx, user, account, "You are not allowed to see the activities of this account"); err != nil {
		return nil, err
	}
	filter := models.ActivityFilter{
		CollectiveId: account.ID,
		Limit:        utils.DereferencePtr(limit, 100),
		Offset:       utils.DereferencePtr(offset),
	}
	for _, t := range types {
		filter.Types = append(filter.Types, models.ActivityType(t))
	}
	return models.ListActivities(ctx, filter)
}

// PersonalTokens is the resolver for the personalTokens field.
func (r *queryResolver) PersonalTokens(ctx context.Context) ([]*models.PersonalToken, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return models.ListPersonalTokens(ctx, user.ID)
}

// SignIn is the resolver for the signIn field.
func (r *mutationResolver) SignIn(ctx context.Context, email string, password string) (*LoginResult, error) {
	if ip, ok := utils.GetClientIPFromContext(ctx); ok && ip != "" {
		if err := middlewares.CheckRateLimit(ctx, "signIn:ip:"+ip, 60, "Too many sign in attempts, please try again later"); err != nil {
			return nil, err
		}
	}
	info, err := models.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	account, err := models.GetCollective(ctx, info.User.CollectiveId)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: info.Token, Account: account}, nil
}

// CreateUser is the resolver for the createUser field.
func (r *mutationResolver) CreateUser(ctx context.Context, email string, name string, password string) (*LoginResult, error) {
	if _, err := models.CreateUser(ctx, &models.NewUser{Email: email, Name: name, Password: password}); err != nil {
		return nil, err
	}
	return r.SignIn(ctx, email, password)
}

// Logout is the resolver for the logout field.
func (r *mutationResolver) Logout(ctx context.Context) (bool, error) {
	return models.Logout(ctx)
}

// CreatePersonalToken is the resolver for the createPersonalToken field.
func (r *mutationResolver) CreatePersonalToken(ctx context.Context, input models.NewPersonalToken) (*models.PersonalToken, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	// personal tokens cannot mint other tokens
	if token, ok := utils.GetTokenFromContext(ctx); !ok || token == "" {
		return nil, utils.NewForbidden("Personal tokens can only be created from a signed in session")
	}
	return models.CreatePersonalToken(ctx, user.ID, &input)
}

// Account is the resolver for the account field.
func (r *activityResolver) Account(ctx context.Context, obj *models.Activity) (*models.Collective, error) {
	return optionalCollective(ctx, obj.CollectiveId)
}

// FromAccount is the resolver for the fromAccount field.
func (r *activityResolver) FromAccount(ctx context.Context, obj *models.Activity) (*models.Collective, error) {
	return optionalCollective(ctx, obj.FromCollectiveId)
}

// Host is the resolver for the host field.
func (r *activityResolver) Host(ctx context.Context, obj *models.Activity) (*models.Collective, error) {
	return optionalCollective(ctx, obj.HostCollectiveId)
}

// Scope is the resolver for the scope field.
func (r *personalTokenResolver) Scope(ctx context.Context, obj *models.PersonalToken) ([]string, error) {
	return obj.Scopes(), nil
}

// Token is the resolver for the token field. The clear token is only known right after creation.
func (r *personalTokenResolver) Token(ctx context.Context, obj *models.PersonalToken) (*string, error) {
	if obj.Token == "" {
		return nil, nil
	}
	return &obj.Token, nil
}

func optionalCollective(ctx context.Context, id *int) (*models.Collective, error) {
	if id == nil {
		return nil, nil
	}
	return middlewares.GetCollective(ctx, *id)
}

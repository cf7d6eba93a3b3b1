package graph

import (
	"context"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/twofactor"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
)

// CreateWebAuthnRegistrationOptions is the resolver for the createWebAuthnRegistrationOptions field.
func (r *mutationResolver) CreateWebAuthnRegistrationOptions(ctx context.Context, ref models.AccountReferenceInput) (any, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := individualOf(ctx, user, ref); err != nil {
		return nil, err
	}
	return twofactor.CreateRegistrationOptions(ctx, user)
}

// CreateWebAuthnAuthenticationOptions is the resolver for the createWebAuthnAuthenticationOptions field.
func (r *mutationResolver) CreateWebAuthnAuthenticationOptions(ctx context.Context, ref models.AccountReferenceInput) (any, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := individualOf(ctx, user, ref); err != nil {
		return nil, err
	}
	return twofactor.CreateAuthenticationOptions(ctx, user)
}

// AddTwoFactorAuthTokenToIndividual is the resolver for the addTwoFactorAuthTokenToIndividual field.
func (r *mutationResolver) AddTwoFactorAuthTokenToIndividual(ctx context.Context, ref models.AccountReferenceInput, method *models.TwoFactorMethod, token string, code *string, name *string) (*AddTwoFactorAuthTokenResult, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := individualOf(ctx, user, ref)
	if err != nil {
		return nil, err
	}
	kind := utils.DereferencePtr(method, models.TwoFactorMethodTOTP)
	if !kind.IsEnrollable() {
		return nil, utils.NewValidationFailed("Unsupported two factor method")
	}
	// a new factor needs one of the existing ones
	if _, err := twofactor.ValidateRequest(ctx, user, twofactor.ValidateOptions{AlwaysAskForToken: true}); err != nil {
		return nil, err
	}

	enrollment, err := twofactor.Enroll(ctx, user, twofactor.EnrollInput{
		Method: kind,
		Token:  token,
		Code:   code,
		Name:   utils.DereferencePtr(name),
	})
	if err != nil {
		return nil, err
	}
	if err := user.RemoveInstanceRedis(); err != nil {
		config.LogErrorCtx(ctx, "graph", "AddTwoFactorAuthTokenToIndividual", "RemoveInstanceRedis", user.ID, err)
	}
	return &AddTwoFactorAuthTokenResult{Account: account, RecoveryCodes: enrollment.RecoveryCodes}, nil
}

// RemoveTwoFactorAuthTokenFromIndividual is the resolver for the removeTwoFactorAuthTokenFromIndividual field.
// Without a method id, every method of the given type (or all of them) is removed.
func (r *mutationResolver) RemoveTwoFactorAuthTokenFromIndividual(ctx context.Context, ref models.AccountReferenceInput, method *models.TwoFactorMethod, userTwoFactorMethod *int) (*models.Collective, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := individualOf(ctx, user, ref)
	if err != nil {
		return nil, err
	}
	if _, err := twofactor.ValidateRequest(ctx, user, twofactor.ValidateOptions{
		AlwaysAskForToken:           true,
		RequireTwoFactorAuthEnabled: true,
	}); err != nil {
		return nil, err
	}

	var ids []int
	if userTwoFactorMethod != nil {
		ids = []int{*userTwoFactorMethod}
	} else {
		var filter []models.TwoFactorMethod
		if method != nil {
			filter = append(filter, *method)
		}
		methods, err := models.ListTwoFactorMethods(ctx, user.ID, filter...)
		if err != nil {
			return nil, err
		}
		for _, m := range methods {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil, utils.NewNotFound("Two factor method not found")
	}
	if _, err := models.RemoveTwoFactorMethods(ctx, user.ID, ids); err != nil {
		return nil, err
	}
	return account, nil
}

// EditTwoFactorAuthenticationMethod is the resolver for the editTwoFactorAuthenticationMethod field.
func (r *mutationResolver) EditTwoFactorAuthenticationMethod(ctx context.Context, userTwoFactorMethod int, name string) (*models.UserTwoFactorMethod, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return models.RenameTwoFactorMethod(ctx, user.ID, userTwoFactorMethod, name)
}

// RegenerateRecoveryCodes is the resolver for the regenerateRecoveryCodes field.
func (r *mutationResolver) RegenerateRecoveryCodes(ctx context.Context) ([]string, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := twofactor.ValidateRequest(ctx, user, twofactor.ValidateOptions{
		AlwaysAskForToken:           true,
		RequireTwoFactorAuthEnabled: true,
	}); err != nil {
		return nil, err
	}
	codes, err := twofactor.RegenerateRecoveryCodes(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := user.RemoveInstanceRedis(); err != nil {
		config.LogErrorCtx(ctx, "graph", "RegenerateRecoveryCodes", "RemoveInstanceRedis", user.ID, err)
	}
	return codes, nil
}

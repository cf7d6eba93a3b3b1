package graph

import (
	"context"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/twofactor"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
)

// optionalUser returns nil for anonymous requests.
func optionalUser(ctx context.Context) (*models.User, error) {
	if userId, ok := utils.GetUserIdFromContext(ctx); !ok || userId == 0 {
		return nil, nil
	}
	return models.CurrentUser(ctx)
}

func isRootUser(ctx context.Context, user *models.User) (bool, error) {
	if isRoot, ok := utils.GetIsRootFromContext(ctx); ok {
		return isRoot, nil
	}
	return user.IsRoot(ctx)
}

// requireAdmin allows admins of the account (or its parent) and root users.
func requireAdmin(ctx context.Context, user *models.User, account *models.Collective, message string) error {
	isAdmin, err := user.IsAdminOf(ctx, account)
	if err != nil || isAdmin {
		return err
	}
	isRoot, err := isRootUser(ctx, user)
	if err != nil || isRoot {
		return err
	}
	return utils.NewForbidden(message)
}

// requireHostAdmin allows admins of the account's fiscal host and root users.
func requireHostAdmin(ctx context.Context, user *models.User, account *models.Collective, message string) error {
	isHostAdmin, err := user.IsAdminOfHost(ctx, account)
	if err != nil || isHostAdmin {
		return err
	}
	isRoot, err := isRootUser(ctx, user)
	if err != nil || isRoot {
		return err
	}
	return utils.NewForbidden(message)
}

// requireAdminOrHostAdmin allows account admins, host admins and root users.
func requireAdminOrHostAdmin(ctx context.Context, user *models.User, account *models.Collective, message string) error {
	isHostAdmin, err := user.IsAdminOfHost(ctx, account)
	if err != nil || isHostAdmin {
		return err
	}
	return requireAdmin(ctx, user, account, message)
}

// canSeePrivateInfo guards the admin-only fields of an account.
func canSeePrivateInfo(ctx context.Context, account *models.Collective) bool {
	user, err := optionalUser(ctx)
	if err != nil || user == nil {
		return false
	}
	if err := requireAdminOrHostAdmin(ctx, user, account, ""); err != nil {
		if !utils.IsErrorCode(err, utils.ErrorCodeForbidden) {
			config.LogErrorCtx(ctx, "graph", "canSeePrivateInfo", "requireAdminOrHostAdmin", account.ID, err)
		}
		return false
	}
	return true
}

// enforceTwoFactor asks for a second factor when a REQUIRE_2FA_FOR_ADMINS
// policy covers the account.
func enforceTwoFactor(ctx context.Context, user *models.User, account *models.Collective) error {
	_, err := twofactor.EnforceForAccount(ctx, user, account, twofactor.ValidateOptions{})
	return err
}

// individualOf checks that account is the individual account of the user.
func individualOf(ctx context.Context, user *models.User, ref models.AccountReferenceInput) (*models.Collective, error) {
	account, err := models.FetchAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !account.IsIndividual() || account.ID != user.CollectiveId {
		return nil, utils.NewForbidden("You can only manage two factor authentication for your own account")
	}
	return account, nil
}

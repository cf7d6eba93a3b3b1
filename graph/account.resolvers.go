package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/middlewares"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/shopspring/decimal"
)

// CreateAccount is the resolver for the createAccount field.
func (r *mutationResolver) CreateAccount(ctx context.Context, input AccountCreateInput) (*models.Collective, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	var accountType models.CollectiveType
	if err := accountType.UnmarshalGQL(input.Type); err != nil {
		return nil, utils.NewBadRequest("%v", err)
	}
	if accountType == models.CollectiveTypeUser {
		return nil, utils.NewValidationFailed("Individual accounts are created when signing up")
	}

	newAccount := &models.NewCollective{
		Slug:              strings.ToLower(strings.TrimSpace(input.Slug)),
		Name:              input.Name,
		Description:       input.Description,
		Type:              accountType,
		Currency:          config.GetSettings().Platform.DefaultCurrency,
		IsHostAccount:     utils.DereferencePtr(input.IsHost),
		HostFeePercent:    input.HostFeePercent,
		AdminCollectiveId: &user.CollectiveId,
	}
	if newAccount.IsHostAccount {
		newAccount.IsActive = true
		newAccount.Approved = true
	}

	if input.Parent != nil {
		parent, err := models.FetchAccount(ctx, *input.Parent)
		if err != nil {
			return nil, err
		}
		if err := requireAdmin(ctx, user, parent, "You must be an admin of the parent account"); err != nil {
			return nil, err
		}
		newAccount.ParentCollectiveId = &parent.ID
		newAccount.Currency = parent.Currency
	}
	if input.Host != nil && newAccount.ParentCollectiveId == nil {
		host, err := models.FetchAccount(ctx, *input.Host)
		if err != nil {
			return nil, err
		}
		if !host.IsHostAccount {
			return nil, utils.NewValidationFailed("%s is not a fiscal host", host.Slug)
		}
		newAccount.HostCollectiveId = &host.ID
		newAccount.Currency = host.Currency
		// host admins approve their own accounts right away
		if requireAdmin(ctx, user, host, "") == nil {
			newAccount.Approved = true
			newAccount.IsActive = true
		}
	}
	if input.Currency != nil {
		newAccount.Currency = strings.ToUpper(*input.Currency)
	}

	account, err := models.CreateCollective(ctx, newAccount)
	if err != nil {
		return nil, err
	}
	if err := user.RemoveInstanceRedis(); err != nil {
		config.LogErrorCtx(ctx, "graph", "CreateAccount", "RemoveInstanceRedis", user.ID, err)
	}
	return account, nil
}

// EditAccount is the resolver for the editAccount field.
func (r *mutationResolver) EditAccount(ctx context.Context, input AccountUpdateInput) (*models.Collective, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := models.FetchAccount(ctx, input.AccountReferenceInput)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(ctx, user, account, "You need to be an admin of the account to edit it"); err != nil {
		return nil, err
	}
	if err := enforceTwoFactor(ctx, user, account); err != nil {
		return nil, err
	}
	return models.EditCollective(ctx, account.ID, &input.EditAccountInput)
}

// EditAccountSetting is the resolver for the editAccountSetting field.
func (r *mutationResolver) EditAccountSetting(ctx context.Context, ref models.AccountReferenceInput, key string, value any) (*models.Collective, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := models.FetchAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !models.IsAllowedSettingKey(key) {
		return nil, utils.NewValidationFailed("Setting key %q is not allowed", key)
	}
	if models.IsHostOnlySettingKey(key) {
		err = requireHostAdmin(ctx, user, account, "Only the fiscal host can edit this setting")
	} else {
		err = requireAdmin(ctx, user, account, "You need to be an admin of the account to edit its settings")
	}
	if err != nil {
		return nil, err
	}
	if err := enforceTwoFactor(ctx, user, account); err != nil {
		return nil, err
	}
	return models.EditCollectiveSetting(ctx, account.ID, key, value)
}

// EditAccountFeeStructure is the resolver for the editAccountFeeStructure field.
func (r *mutationResolver) EditAccountFeeStructure(ctx context.Context, ref models.AccountReferenceInput, hostFeePercent decimal.Decimal, isCustomFee bool) (*models.Collective, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := models.FetchAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	isHostAdmin, err := user.IsAdminOfHost(ctx, account)
	if err != nil {
		return nil, err
	}
	if !isHostAdmin {
		return nil, utils.NewForbidden("Only the host admins can edit the fee structure")
	}
	host, err := models.GetHost(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := enforceTwoFactor(ctx, user, host); err != nil {
		return nil, err
	}
	return models.EditCollectiveFeeStructure(ctx, account.ID, hostFeePercent, isCustomFee)
}

// EditAccountFreezeStatus is the resolver for the editAccountFreezeStatus field.
func (r *mutationResolver) EditAccountFreezeStatus(ctx context.Context, ref models.AccountReferenceInput, action models.AccountFreezeAction, message *string) (*models.Collective, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := models.FetchAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := requireHostAdmin(ctx, user, account, "You need to be a host admin to freeze or unfreeze this account"); err != nil {
		return nil, err
	}
	if err := models.CheckFreezeEligibility(account); err != nil {
		return nil, err
	}
	if host, err := models.GetHost(ctx, account); err != nil {
		return nil, err
	} else if host != nil {
		if err := enforceTwoFactor(ctx, user, host); err != nil {
			return nil, err
		}
	}
	return models.SetCollectiveFreezeStatus(ctx, account.ID, action, utils.DereferencePtr(message))
}

// DuplicateAccount is the resolver for the duplicateAccount field.
func (r *mutationResolver) DuplicateAccount(ctx context.Context, ref models.AccountReferenceInput, include *models.DuplicateAccountInclude, newSlug *string, newName *string) (*models.Collective, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := models.FetchAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(ctx, user, account, "You need to be an admin of the account to duplicate it"); err != nil {
		return nil, err
	}
	if err := enforceTwoFactor(ctx, user, account); err != nil {
		return nil, err
	}
	return models.DuplicateCollective(ctx, account.ID, utils.DereferencePtr(include), newSlug, newName)
}

// SetPolicies is the resolver for the setPolicies field.
func (r *mutationResolver) SetPolicies(ctx context.Context, ref models.AccountReferenceInput, policies any) (*models.Collective, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := models.FetchAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(ctx, user, account, "You need to be an admin of the account to edit its policies"); err != nil {
		return nil, err
	}
	if err := enforceTwoFactor(ctx, user, account); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(policies)
	if err != nil {
		return nil, utils.NewBadRequest("Invalid policies")
	}
	var update models.Policies
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, utils.NewBadRequest("Invalid policies: %v", err)
	}
	return models.SetCollectivePolicies(ctx, account.ID, update)
}

// DeleteAccount is the resolver for the deleteAccount field.
func (r *mutationResolver) DeleteAccount(ctx context.Context, ref models.AccountReferenceInput) (*models.Collective, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := models.FetchAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(ctx, user, account, "You need to be an admin of the account to delete it"); err != nil {
		return nil, err
	}
	if err := enforceTwoFactor(ctx, user, account); err != nil {
		return nil, err
	}
	return models.DeleteCollective(ctx, account.ID)
}

// SendMessage is the resolver for the sendMessage field.
func (r *mutationResolver) SendMessage(ctx context.Context, ref models.AccountReferenceInput, message string, subject *string) (*SendMessageResult, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := models.FetchAccount(ctx, ref)
	if err != nil {
		return nil, err
	}

	limits := config.GetSettings().Limits.SendMessagePerHour
	const tooMany = "You can't send more messages right now, please try again later"
	if err := middlewares.CheckRateLimit(ctx, fmt.Sprintf("sendMessage:account:%d", user.CollectiveId), limits.PerAccount, tooMany); err != nil {
		return nil, err
	}
	if ip, ok := utils.GetClientIPFromContext(ctx); ok && ip != "" {
		if err := middlewares.CheckRateLimit(ctx, "sendMessage:ip:"+ip, limits.PerIP, tooMany); err != nil {
			return nil, err
		}
	}

	if err := models.SendMessageToCollective(ctx, account.ID, user.CollectiveId, subject, message); err != nil {
		return nil, err
	}
	return &SendMessageResult{Success: true}, nil
}

// SetCurrencyExchangeRate is the resolver for the setCurrencyExchangeRate field.
func (r *mutationResolver) SetCurrencyExchangeRate(ctx context.Context, fromCurrency string, toCurrency string, rate decimal.Decimal) (*models.CurrencyExchange, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	isRoot, err := isRootUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if !isRoot {
		return nil, utils.NewForbidden("Only platform admins can set exchange rates")
	}
	from, to := strings.ToUpper(fromCurrency), strings.ToUpper(toCurrency)
	if !utils.IsValidCurrency(from) || !utils.IsValidCurrency(to) {
		return nil, utils.NewValidationFailed("Invalid currency pair %s/%s", fromCurrency, toCurrency)
	}
	if !rate.IsPositive() {
		return nil, utils.NewValidationFailed("Exchange rate must be positive")
	}
	return models.SetFxRate(ctx, from, to, rate)
}

// Host is the resolver for the host field.
func (r *accountResolver) Host(ctx context.Context, obj *models.Collective) (*models.Collective, error) {
	if obj.HostCollectiveId == nil {
		return nil, nil
	}
	return middlewares.GetCollective(ctx, *obj.HostCollectiveId)
}

// Parent is the resolver for the parent field.
func (r *accountResolver) Parent(ctx context.Context, obj *models.Collective) (*models.Collective, error) {
	if obj.ParentCollectiveId == nil {
		return nil, nil
	}
	return middlewares.GetCollective(ctx, *obj.ParentCollectiveId)
}

// Children is the resolver for the children field.
func (r *accountResolver) Children(ctx context.Context, obj *models.Collective) ([]*models.Collective, error) {
	return models.GetChildren(ctx, obj.ID)
}

// Admins is the resolver for the admins field.
func (r *accountResolver) Admins(ctx context.Context, obj *models.Collective) ([]*models.Collective, error) {
	return middlewares.GetAdmins(ctx, obj.ID)
}

// Tiers is the resolver for the tiers field.
func (r *accountResolver) Tiers(ctx context.Context, obj *models.Collective) ([]*models.Tier, error) {
	return models.GetTiers(ctx, obj.ID)
}

// Stats is the resolver for the stats field.
func (r *accountResolver) Stats(ctx context.Context, obj *models.Collective) (*models.AccountStats, error) {
	return models.GetAccountStats(ctx, obj)
}

// ContactPhone is the resolver for the contactPhone field.
func (r *accountResolver) ContactPhone(ctx context.Context, obj *models.Collective) (*string, error) {
	if !canSeePrivateInfo(ctx, obj) {
		return nil, nil
	}
	return obj.ContactPhone(), nil
}

// PaymentMethods is the resolver for the paymentMethods field.
func (r *accountResolver) PaymentMethods(ctx context.Context, obj *models.Collective) ([]*models.PaymentMethod, error) {
	if !canSeePrivateInfo(ctx, obj) {
		return nil, nil
	}
	return models.ListPaymentMethods(ctx, obj.ID)
}

// Orders is the resolver for the orders field.
func (r *accountResolver) Orders(ctx context.Context, obj *models.Collective, status []models.OrderStatus) ([]*models.Order, error) {
	if !canSeePrivateInfo(ctx, obj) {
		return nil, nil
	}
	return models.ListOrders(ctx, obj.ID, status...)
}

// TwoFactorMethods is the resolver for the twoFactorMethods field.
func (r *accountResolver) TwoFactorMethods(ctx context.Context, obj *models.Collective) ([]*models.UserTwoFactorMethod, error) {
	user, err := optionalUser(ctx)
	if err != nil || user == nil || user.CollectiveId != obj.ID {
		return nil, err
	}
	return middlewares.GetTwoFactorMethods(ctx, user.ID)
}

// HasTwoFactorAuth is the resolver for the hasTwoFactorAuth field.
func (r *accountResolver) HasTwoFactorAuth(ctx context.Context, obj *models.Collective) (*bool, error) {
	user, err := optionalUser(ctx)
	if err != nil || user == nil || user.CollectiveId != obj.ID {
		return nil, err
	}
	methods, err := middlewares.GetTwoFactorMethods(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return utils.Ptr(len(methods) > 0), nil
}

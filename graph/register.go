package graph

import (
	"context"

	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"github.com/shopspring/decimal"
)

func accountRef(a *argReader) models.AccountReferenceInput {
	return arg[models.AccountReferenceInput](a, "account")
}

// register binds the schema fields that need a resolver. The remaining
// fields are read from the model structs.
func (r *Resolver) register(e *executableSchema) {
	r.registerQuery(e)
	r.registerMutation(e)
	r.registerAccount(e)
	r.registerOrder(e)
	r.registerTransaction(e)
	r.registerActivity(e)
	r.registerPersonalToken(e)
}

func (r *Resolver) registerQuery(e *executableSchema) {
	q := r.Query()
	e.field("Query", "account", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		id, slug := arg[*int](a, "id"), arg[*string](a, "slug")
		if a.err != nil {
			return nil, a.err
		}
		return q.Account(ctx, id, slug)
	})
	e.field("Query", "loggedInAccount", func(ctx context.Context, _ any, _ map[string]any) (any, error) {
		return q.LoggedInAccount(ctx)
	})
	e.field("Query", "order", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		id := arg[int](a, "id")
		if a.err != nil {
			return nil, a.err
		}
		return q.Order(ctx, id)
	})
	e.field("Query", "transaction", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		id := arg[int](a, "id")
		if a.err != nil {
			return nil, a.err
		}
		return q.Transaction(ctx, id)
	})
	e.field("Query", "activities", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		account, types := accountRef(a), arg[[]string](a, "type")
		limit, offset := arg[*int](a, "limit"), arg[*int](a, "offset")
		if a.err != nil {
			return nil, a.err
		}
		return q.Activities(ctx, account, types, limit, offset)
	})
	e.field("Query", "personalTokens", func(ctx context.Context, _ any, _ map[string]any) (any, error) {
		return q.PersonalTokens(ctx)
	})
}

func (r *Resolver) registerMutation(e *executableSchema) {
	m := r.Mutation()

	e.field("Mutation", "signIn", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		email, password := arg[string](a, "email"), arg[string](a, "password")
		if a.err != nil {
			return nil, a.err
		}
		return m.SignIn(ctx, email, password)
	})
	e.field("Mutation", "createUser", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		email, name, password := arg[string](a, "email"), arg[string](a, "name"), arg[string](a, "password")
		if a.err != nil {
			return nil, a.err
		}
		return m.CreateUser(ctx, email, name, password)
	})
	e.field("Mutation", "logout", func(ctx context.Context, _ any, _ map[string]any) (any, error) {
		return m.Logout(ctx)
	})

	e.field("Mutation", "createAccount", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		input := arg[AccountCreateInput](a, "account")
		if a.err != nil {
			return nil, a.err
		}
		return m.CreateAccount(ctx, input)
	})
	e.field("Mutation", "editAccount", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		input := arg[AccountUpdateInput](a, "account")
		if a.err != nil {
			return nil, a.err
		}
		return m.EditAccount(ctx, input)
	})
	e.field("Mutation", "editAccountSetting", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		account, key, value := accountRef(a), arg[string](a, "key"), arg[any](a, "value")
		if a.err != nil {
			return nil, a.err
		}
		return m.EditAccountSetting(ctx, account, key, value)
	})
	e.field("Mutation", "editAccountFeeStructure", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		account := accountRef(a)
		hostFeePercent := arg[decimal.Decimal](a, "hostFeePercent")
		isCustomFee := arg[bool](a, "isCustomFee")
		if a.err != nil {
			return nil, a.err
		}
		return m.EditAccountFeeStructure(ctx, account, hostFeePercent, isCustomFee)
	})
	e.field("Mutation", "editAccountFreezeStatus", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		account := accountRef(a)
		action := arg[models.AccountFreezeAction](a, "action")
		message := arg[*string](a, "message")
		if a.err != nil {
			return nil, a.err
		}
		return m.EditAccountFreezeStatus(ctx, account, action, message)
	})
	e.field("Mutation", "duplicateAccount", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		account := accountRef(a)
		include := arg[*models.DuplicateAccountInclude](a, "include")
		newSlug, newName := arg[*string](a, "newSlug"), arg[*string](a, "newName")
		if a.err != nil {
			return nil, a.err
		}
		return m.DuplicateAccount(ctx, account, include, newSlug, newName)
	})
	e.field("Mutation", "setPolicies", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		account, policies := accountRef(a), arg[any](a, "policies")
		if a.err != nil {
			return nil, a.err
		}
		return m.SetPolicies(ctx, account, policies)
	})
	e.field("Mutation", "deleteAccount", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		account := accountRef(a)
		if a.err != nil {
			return nil, a.err
		}
		return m.DeleteAccount(ctx, account)
	})
	e.field("Mutation", "sendMessage", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		account, message, subject := accountRef(a), arg[string](a, "message"), arg[*string](a, "subject")
		if a.err != nil {
			return nil, a.err
		}
		return m.SendMessage(ctx, account, message, subject)
	})

	e.field("Mutation", "createWebAuthnRegistrationOptions", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		account := accountRef(a)
		if a.err != nil {
			return nil, a.err
		}
		return m.CreateWebAuthnRegistrationOptions(ctx, account)
	})
	e.field("Mutation", "createWebAuthnAuthenticationOptions", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		account := accountRef(a)
		if a.err != nil {
			return nil, a.err
		}
		return m.CreateWebAuthnAuthenticationOptions(ctx, account)
	})
	e.field("Mutation", "addTwoFactorAuthTokenToIndividual", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		account := accountRef(a)
		method := arg[*models.TwoFactorMethod](a, "type")
		token := arg[string](a, "token")
		code, name := arg[*string](a, "code"), arg[*string](a, "name")
		if a.err != nil {
			return nil, a.err
		}
		return m.AddTwoFactorAuthTokenToIndividual(ctx, account, method, token, code, name)
	})
	e.field("Mutation", "removeTwoFactorAuthTokenFromIndividual", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		account := accountRef(a)
		method := arg[*models.TwoFactorMethod](a, "type")
		id := arg[*int](a, "userTwoFactorMethod")
		if a.err != nil {
			return nil, a.err
		}
		return m.RemoveTwoFactorAuthTokenFromIndividual(ctx, account, method, id)
	})
	e.field("Mutation", "editTwoFactorAuthenticationMethod", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		id, name := arg[int](a, "userTwoFactorMethod"), arg[string](a, "name")
		if a.err != nil {
			return nil, a.err
		}
		return m.EditTwoFactorAuthenticationMethod(ctx, id, name)
	})
	e.field("Mutation", "regenerateRecoveryCodes", func(ctx context.Context, _ any, _ map[string]any) (any, error) {
		return m.RegenerateRecoveryCodes(ctx)
	})

	e.field("Mutation", "createOrder", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		input := arg[OrderCreateInput](a, "order")
		if a.err != nil {
			return nil, a.err
		}
		return m.CreateOrder(ctx, input)
	})
	e.field("Mutation", "refundTransaction", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		id := arg[int](a, "transaction")
		if a.err != nil {
			return nil, a.err
		}
		return m.RefundTransaction(ctx, id)
	})

	e.field("Mutation", "createPersonalToken", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		input := arg[models.NewPersonalToken](a, "personalToken")
		if a.err != nil {
			return nil, a.err
		}
		return m.CreatePersonalToken(ctx, input)
	})
	e.field("Mutation", "setCurrencyExchangeRate", func(ctx context.Context, _ any, args map[string]any) (any, error) {
		a := readArgs(args)
		from, to := arg[string](a, "fromCurrency"), arg[string](a, "toCurrency")
		rate := arg[decimal.Decimal](a, "rate")
		if a.err != nil {
			return nil, a.err
		}
		return m.SetCurrencyExchangeRate(ctx, from, to, rate)
	})
}

// accountField binds an Account field resolver to the parent object.
func accountField[T any](e *executableSchema, name string, resolve func(ctx context.Context, obj *models.Collective) (T, error)) {
	e.field("Account", name, func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return resolve(ctx, obj.(*models.Collective))
	})
}

func (r *Resolver) registerAccount(e *executableSchema) {
	ar := r.Account()
	e.field("Account", "legacyId", func(_ context.Context, obj any, _ map[string]any) (any, error) {
		return obj.(*models.Collective).ID, nil
	})
	e.field("Account", "isHost", func(_ context.Context, obj any, _ map[string]any) (any, error) {
		return obj.(*models.Collective).IsHostAccount, nil
	})
	e.field("Account", "settings", func(_ context.Context, obj any, _ map[string]any) (any, error) {
		return obj.(*models.Collective).SettingsMap(), nil
	})
	e.field("Account", "policies", func(_ context.Context, obj any, _ map[string]any) (any, error) {
		return obj.(*models.Collective).GetPolicies(), nil
	})
	accountField(e, "host", ar.Host)
	accountField(e, "parent", ar.Parent)
	accountField(e, "children", ar.Children)
	accountField(e, "admins", ar.Admins)
	accountField(e, "tiers", ar.Tiers)
	accountField(e, "stats", ar.Stats)
	accountField(e, "contactPhone", ar.ContactPhone)
	accountField(e, "paymentMethods", ar.PaymentMethods)
	accountField(e, "twoFactorMethods", ar.TwoFactorMethods)
	accountField(e, "hasTwoFactorAuth", ar.HasTwoFactorAuth)
	e.field("Account", "orders", func(ctx context.Context, obj any, args map[string]any) (any, error) {
		a := readArgs(args)
		status := arg[[]models.OrderStatus](a, "status")
		if a.err != nil {
			return nil, a.err
		}
		return ar.Orders(ctx, obj.(*models.Collective), status)
	})
}

func (r *Resolver) registerOrder(e *executableSchema) {
	or := r.Order()
	e.field("Order", "fromAccount", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return or.FromAccount(ctx, obj.(*models.Order))
	})
	e.field("Order", "toAccount", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return or.ToAccount(ctx, obj.(*models.Order))
	})
	e.field("Order", "paymentMethod", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return or.PaymentMethod(ctx, obj.(*models.Order))
	})
	e.field("Order", "tags", func(_ context.Context, obj any, _ map[string]any) (any, error) {
		return obj.(*models.Order).TagList(), nil
	})
}

func (r *Resolver) registerTransaction(e *executableSchema) {
	tr := r.Transaction()
	e.field("Transaction", "group", func(_ context.Context, obj any, _ map[string]any) (any, error) {
		return obj.(*models.Transaction).TransactionGroup, nil
	})
	e.field("Transaction", "account", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return tr.Account(ctx, obj.(*models.Transaction))
	})
	e.field("Transaction", "oppositeAccount", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return tr.OppositeAccount(ctx, obj.(*models.Transaction))
	})
	e.field("Transaction", "host", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return tr.Host(ctx, obj.(*models.Transaction))
	})
	e.field("Transaction", "order", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return tr.Order(ctx, obj.(*models.Transaction))
	})
	e.field("Transaction", "refundTransaction", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return tr.RefundTransaction(ctx, obj.(*models.Transaction))
	})
}

func (r *Resolver) registerActivity(e *executableSchema) {
	act := r.Activity()
	e.field("Activity", "account", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return act.Account(ctx, obj.(*models.Activity))
	})
	e.field("Activity", "fromAccount", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return act.FromAccount(ctx, obj.(*models.Activity))
	})
	e.field("Activity", "host", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return act.Host(ctx, obj.(*models.Activity))
	})
}

func (r *Resolver) registerPersonalToken(e *executableSchema) {
	pr := r.PersonalToken()
	e.field("PersonalToken", "scope", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return pr.Scope(ctx, obj.(*models.PersonalToken))
	})
	e.field("PersonalToken", "token", func(ctx context.Context, obj any, _ map[string]any) (any, error) {
		return pr.Token(ctx, obj.(*models.PersonalToken))
	})
}

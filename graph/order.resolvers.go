package graph

import (
	"context"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/middlewares"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/paymentproviders"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tooManyOrders = "Too many contributions in a short period, please try again later"

// checkOrderRateLimits counts the order per payer, payer and recipient, email and IP.
func checkOrderRateLimits(ctx context.Context, user *models.User, fromId int, toId int) error {
	limits := config.GetSettings().Limits.OrdersPerHour
	checks := []struct {
		key   string
		limit int
	}{
		{fmt.Sprintf("createOrder:account:%d", fromId), limits.PerAccount},
		{fmt.Sprintf("createOrder:account:%d:collective:%d", fromId, toId), limits.PerAccountForCollective},
		{"createOrder:email:" + strings.ToLower(user.Email), limits.PerEmail},
	}
	if ip, ok := utils.GetClientIPFromContext(ctx); ok && ip != "" {
		checks = append(checks, struct {
			key   string
			limit int
		}{"createOrder:ip:" + ip, limits.PerIP})
	}
	for _, check := range checks {
		if err := middlewares.CheckRateLimit(ctx, check.key, check.limit, tooManyOrders); err != nil {
			return err
		}
	}
	return nil
}

// CreateOrder is the resolver for the createOrder field.
func (r *mutationResolver) CreateOrder(ctx context.Context, input OrderCreateInput) (*models.Order, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	from, err := models.FetchAccount(ctx, input.FromAccount)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(ctx, user, from, "You need to be an admin of the contributing account"); err != nil {
		return nil, err
	}
	to, err := models.FetchAccount(ctx, input.ToAccount)
	if err != nil {
		return nil, err
	}
	if err := checkOrderRateLimits(ctx, user, from.ID, to.ID); err != nil {
		return nil, err
	}
	if err := enforceTwoFactor(ctx, user, from); err != nil {
		return nil, err
	}

	pm, err := models.GetOrCreateBalancePaymentMethod(ctx, from.ID)
	if err != nil {
		return nil, err
	}
	currency := to.Currency
	if input.Currency != nil {
		currency = strings.ToUpper(*input.Currency)
	}
	order, err := models.CreatePendingOrder(ctx, &models.NewOrder{
		FromCollectiveId:  from.ID,
		CollectiveId:      to.ID,
		TierId:            input.Tier,
		PaymentMethodId:   &pm.ID,
		Currency:          currency,
		TotalAmount:       input.TotalAmount,
		PlatformTipAmount: input.PlatformTipAmount,
		Quantity:          utils.DereferencePtr(input.Quantity),
		Description:       input.Description,
		Tags:              input.Tags,
	})
	if err != nil {
		return nil, err
	}

	if r.Tracer != nil {
		var span trace.Span
		ctx, span = r.Tracer.Start(ctx, "paymentproviders.ProcessOrder",
			trace.WithAttributes(attribute.Int("order.id", order.ID)))
		defer span.End()
	}
	if _, err := paymentproviders.ProcessOrder(ctx, order.ID); err != nil {
		return nil, err
	}
	return models.GetOrder(ctx, order.ID)
}

// RefundTransaction is the resolver for the refundTransaction field.
func (r *mutationResolver) RefundTransaction(ctx context.Context, transactionId int) (*models.Transaction, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	t, err := models.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	recipientId := t.CollectiveId
	if t.Type == models.TransactionTypeDebit {
		recipientId = t.FromCollectiveId
	}
	recipient, err := models.GetCollective(ctx, recipientId)
	if err != nil {
		return nil, err
	}
	if err := requireAdminOrHostAdmin(ctx, user, recipient, "You are not allowed to refund this transaction"); err != nil {
		return nil, err
	}
	if err := enforceTwoFactor(ctx, user, recipient); err != nil {
		return nil, err
	}
	return paymentproviders.RefundTransaction(ctx, t.ID, &user.ID)
}

// Order is the resolver for the order field.
func (r *queryResolver) Order(ctx context.Context, id int) (*models.Order, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	order, err := models.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canAccessEntry(ctx, user, order.CollectiveId, order.FromCollectiveId); err != nil {
		return nil, err
	}
	return order, nil
}

// Transaction is the resolver for the transaction field.
func (r *queryResolver) Transaction(ctx context.Context, id int) (*models.Transaction, error) {
	user, err := models.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	t, err := models.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canAccessEntry(ctx, user, t.CollectiveId, t.FromCollectiveId); err != nil {
		return nil, err
	}
	return t, nil
}

// canAccessEntry allows the admins of either side and the recipient's host admins.
func canAccessEntry(ctx context.Context, user *models.User, collectiveId int, fromCollectiveId int) error {
	recipient, err := middlewares.GetCollective(ctx, collectiveId)
	if err != nil {
		return err
	}
	if err := requireAdminOrHostAdmin(ctx, user, recipient, ""); !utils.IsErrorCode(err, utils.ErrorCodeForbidden) {
		return err
	}
	payer, err := middlewares.GetCollective(ctx, fromCollectiveId)
	if err != nil {
		return err
	}
	return requireAdmin(ctx, user, payer, "You are not allowed to see this record")
}

// FromAccount is the resolver for the fromAccount field.
func (r *orderResolver) FromAccount(ctx context.Context, obj *models.Order) (*models.Collective, error) {
	return middlewares.GetCollective(ctx, obj.FromCollectiveId)
}

// ToAccount is the resolver for the toAccount field.
func (r *orderResolver) ToAccount(ctx context.Context, obj *models.Order) (*models.Collective, error) {
	return middlewares.GetCollective(ctx, obj.CollectiveId)
}

// PaymentMethod is the resolver for the paymentMethod field.
func (r *orderResolver) PaymentMethod(ctx context.Context, obj *models.Order) (*models.PaymentMethod, error) {
	if obj.PaymentMethodId == nil {
		return nil, nil
	}
	return models.GetPaymentMethod(ctx, *obj.PaymentMethodId)
}

// Account is the resolver for the account field.
func (r *transactionResolver) Account(ctx context.Context, obj *models.Transaction) (*models.Collective, error) {
	return middlewares.GetCollective(ctx, obj.CollectiveId)
}

// OppositeAccount is the resolver for the oppositeAccount field.
func (r *transactionResolver) OppositeAccount(ctx context.Context, obj *models.Transaction) (*models.Collective, error) {
	return middlewares.GetCollective(ctx, obj.FromCollectiveId)
}

// Host is the resolver for the host field.
func (r *transactionResolver) Host(ctx context.Context, obj *models.Transaction) (*models.Collective, error) {
	if obj.HostCollectiveId == nil {
		return nil, nil
	}
	return middlewares.GetCollective(ctx, *obj.HostCollectiveId)
}

// Order is the resolver for the order field.
func (r *transactionResolver) Order(ctx context.Context, obj *models.Transaction) (*models.Order, error) {
	if obj.OrderId == nil {
		return nil, nil
	}
	return models.GetOrder(ctx, *obj.OrderId)
}

// RefundTransaction is the resolver for the refundTransaction field.
func (r *transactionResolver) RefundTransaction(ctx context.Context, obj *models.Transaction) (*models.Transaction, error) {
	if obj.RefundTransactionId == nil {
		return nil, nil
	}
	return models.GetTransaction(ctx, *obj.RefundTransactionId)
}

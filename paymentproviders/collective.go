// Package paymentproviders turns orders into ledger transactions. Only the
// account balance method ("opencollective"/"collective") is processed here:
// funds move between two accounts of the same fiscal host.
package paymentproviders

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func sameHost(a *models.Collective, b *models.Collective) bool {
	return a.HostCollectiveId != nil && b.HostCollectiveId != nil && *a.HostCollectiveId == *b.HostCollectiveId
}

// lock both accounts in id order so concurrent transfers cannot deadlock
func lockPair(tx *gorm.DB, firstId int, secondId int) (*models.Collective, *models.Collective, error) {
	if firstId == secondId {
		c, err := models.LockCollective(tx, firstId)
		return c, c, err
	}
	lowId, highId := firstId, secondId
	if lowId > highId {
		lowId, highId = highId, lowId
	}
	low, err := models.LockCollective(tx, lowId)
	if err != nil {
		return nil, nil, err
	}
	high, err := models.LockCollective(tx, highId)
	if err != nil {
		return nil, nil, err
	}
	if low.ID == firstId {
		return low, high, nil
	}
	return high, low, nil
}

// balanceIn returns the balance of c converted to currency.
func balanceIn(ctx context.Context, tx *gorm.DB, c *models.Collective, currency string) (int64, error) {
	balance, err := models.GetBalance(ctx, tx, c)
	if err != nil {
		return 0, err
	}
	rate, err := models.GetFxRate(ctx, c.Currency, currency)
	if err != nil {
		return 0, err
	}
	return models.ConvertAmount(balance, rate), nil
}

// ProcessOrder pays a NEW or PENDING order from the payer's balance.
// It returns the CREDIT transaction of the recipient. Orders rejected by a
// business rule are flagged ERROR.
func ProcessOrder(ctx context.Context, orderId int) (*models.Transaction, error) {
	credit, err := processOrder(ctx, orderId)
	if err != nil {
		if utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
			if markErr := models.MarkOrderError(ctx, orderId, err.Error()); markErr != nil {
				config.LogErrorCtx(ctx, "paymentproviders", "ProcessOrder", "MarkOrderError", orderId, markErr)
			}
		}
		return nil, err
	}
	config.GetLogger().WithFields(logrus.Fields{
		"order_id":       orderId,
		"transaction_id": credit.ID,
		"amount":         credit.Amount,
		"currency":       credit.Currency,
	}).Info("order processed")
	return credit, nil
}

func processOrder(ctx context.Context, orderId int) (*models.Transaction, error) {
	db := config.GetDB()
	var credit *models.Transaction
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := models.LockOrder(tx, orderId)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusNew && order.Status != models.OrderStatusPending {
			return utils.NewBadRequest("Order #%d cannot be processed in status %s", order.ID, order.Status)
		}
		if order.PaymentMethodId == nil {
			return utils.NewValidationFailed("Order #%d has no payment method", order.ID)
		}
		var pm models.PaymentMethod
		if err := tx.First(&pm, *order.PaymentMethodId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFound("Payment method not found")
			}
			return err
		}
		if !pm.IsCollectiveBalance() || pm.Type != models.PaymentMethodTypeCollective {
			return utils.NewValidationFailed("Payment method %s/%s is not supported", pm.Service, pm.Type)
		}
		if pm.CollectiveId == nil || *pm.CollectiveId != order.FromCollectiveId {
			return utils.NewValidationFailed("This payment method does not belong to the contributing account")
		}

		payer, recipient, err := lockPair(tx, order.FromCollectiveId, order.CollectiveId)
		if err != nil {
			return err
		}
		if !payer.IsActive {
			return utils.NewValidationFailed("Cannot use the Open Collective payment method if not an active Collective")
		}
		if !sameHost(payer, recipient) {
			return utils.NewValidationFailed("Cannot use the Open Collective payment method to make a payment between different hosts")
		}
		if recipient.IsFrozen() {
			return utils.NewValidationFailed("This account is frozen and cannot receive contributions")
		}
		var host models.Collective
		if err := tx.First(&host, *recipient.HostCollectiveId).Error; err != nil {
			return err
		}

		pmFxRate, err := models.GetFxRate(ctx, order.Currency, pm.Currency)
		if err != nil {
			return err
		}
		required := models.ConvertAmount(order.TotalAmount, pmFxRate)
		available, err := balanceIn(ctx, tx, payer, pm.Currency)
		if err != nil {
			return err
		}
		if available < required {
			return utils.NewValidationFailed("Not enough funds available (%s %s left) to execute this order (%s %s)",
				pm.Currency, formatAmount(available), pm.Currency, formatAmount(required))
		}

		hostFxRate, err := models.GetFxRate(ctx, order.Currency, host.Currency)
		if err != nil {
			return err
		}
		amounts := ComputeContributionAmounts(FeeInput{
			TotalAmount:        order.TotalAmount,
			PlatformTipAmount:  order.PlatformTip(),
			HostCurrencyFxRate: hostFxRate,
			HostFeePercent:     recipient.EffectiveHostFeePercent(&host),
			PlatformFeePercent: recipient.EffectivePlatformFeePercent(),
		})

		description := utils.DereferencePtr(order.Description, fmt.Sprintf("Contribution to %s", recipient.Name))
		credit, err = models.CreateTransactionsFromPayload(tx, order, models.TransactionPayload{
			Kind:                       models.TransactionKindContribution,
			Description:                description,
			CollectiveId:               recipient.ID,
			FromCollectiveId:           payer.ID,
			HostCollectiveId:           host.ID,
			OrderId:                    &order.ID,
			PaymentMethodId:            &pm.ID,
			CreatedByUserId:            order.CreatedByUserId,
			Amount:                     order.TotalAmount,
			Currency:                   order.Currency,
			AmountInHostCurrency:       amounts.AmountInHostCurrency,
			HostCurrency:               host.Currency,
			HostCurrencyFxRate:         amounts.HostCurrencyFxRate,
			HostFeeInHostCurrency:      amounts.HostFeeInHostCurrency,
			PlatformFeeInHostCurrency:  amounts.PlatformFeeInHostCurrency,
			ProcessorFeeInHostCurrency: amounts.PaymentProcessorFeeInHostCurrency,
			Data:                       map[string]any{"isFeesOnTop": amounts.IsFeesOnTop},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return credit, nil
}

// RefundTransaction reverses the ledger entry of a CREDIT transaction and
// returns the refund CREDIT row of the payer. Authorization is the caller's.
func RefundTransaction(ctx context.Context, transactionId int, userId *int) (*models.Transaction, error) {
	original, err := models.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var refund *models.Transaction
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		credit, debit, err := models.LockTransactionPair(tx, original.TransactionGroup)
		if err != nil {
			return err
		}
		if credit.IsRefund {
			return utils.NewValidationFailed("Cannot refund a refund transaction")
		}
		if credit.RefundTransactionId != nil {
			return utils.NewValidationFailed("Transaction #%d has already been refunded", credit.ID)
		}

		recipient, payer, err := lockPair(tx, credit.CollectiveId, debit.CollectiveId)
		if err != nil {
			return err
		}
		if !sameHost(payer, recipient) {
			return utils.NewValidationFailed("Cannot refund a transaction between accounts of different hosts")
		}
		available, err := balanceIn(ctx, tx, recipient, credit.Currency)
		if err != nil {
			return err
		}
		if available < credit.NetAmountInCollectiveCurrency {
			return utils.NewValidationFailed("Not enough funds available (%s %s left) to refund this transaction (%s %s)",
				credit.Currency, formatAmount(available), credit.Currency, formatAmount(credit.NetAmountInCollectiveCurrency))
		}
		refund, err = models.CreateRefundTransactions(tx, credit, debit, userId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// formatAmount renders minor units, 1050 as "10.50".
func formatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

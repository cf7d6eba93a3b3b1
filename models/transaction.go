package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Transaction is one side of a ledger entry. Every entry is a CREDIT row on
// the recipient and a DEBIT row on the payer sharing a TransactionGroup.
// Fee columns hold negative values.
type Transaction struct {
	ID                                int             `gorm:"primary_key" json:"id"`
	Uuid                              string          `gorm:"size:36;not null;unique" json:"uuid"`
	TransactionGroup                  string          `gorm:"size:36;not null;index" json:"transaction_group"`
	Kind                              TransactionKind `gorm:"size:30;not null" json:"kind"`
	Type                              TransactionType `gorm:"size:10;not null" json:"type"`
	Description                       *string         `gorm:"size:255" json:"description"`
	CollectiveId                      int             `gorm:"not null" json:"collective_id"`
	FromCollectiveId                  int             `gorm:"not null" json:"from_collective_id"`
	HostCollectiveId                  *int            `json:"host_collective_id"`
	OrderId                           *int            `gorm:"index" json:"order_id"`
	PaymentMethodId                   *int            `json:"payment_method_id"`
	CreatedByUserId                   *int            `json:"created_by_user_id"`
	Amount                            int64           `gorm:"not null" json:"amount"`
	Currency                          string          `gorm:"size:3;not null" json:"currency"`
	AmountInHostCurrency              int64           `gorm:"not null" json:"amount_in_host_currency"`
	HostCurrency                      string          `gorm:"size:3;not null" json:"host_currency"`
	HostCurrencyFxRate                decimal.Decimal `gorm:"type:decimal(20,10);not null;default:1" json:"host_currency_fx_rate"`
	HostFeeInHostCurrency             int64           `gorm:"not null;default:0" json:"host_fee_in_host_currency"`
	PlatformFeeInHostCurrency         int64           `gorm:"not null;default:0" json:"platform_fee_in_host_currency"`
	PaymentProcessorFeeInHostCurrency int64           `gorm:"not null;default:0" json:"payment_processor_fee_in_host_currency"`
	NetAmountInCollectiveCurrency     int64           `gorm:"not null" json:"net_amount_in_collective_currency"`
	IsRefund                          bool            `gorm:"not null;default:false" json:"is_refund"`
	RefundTransactionId               *int            `json:"refund_transaction_id"`
	Data                              datatypes.JSON  `json:"data"`
	CreatedAt                         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt                         gorm.DeletedAt  `gorm:"index" json:"deleted_at"`
}

func (t Transaction) GetId() int {
	return t.ID
}

// TransactionPayload describes the CREDIT side of a new ledger entry.
// Fees are given as positive amounts in host currency.
type TransactionPayload struct {
	Kind                       TransactionKind
	Description                string
	CollectiveId               int
	FromCollectiveId           int
	HostCollectiveId           int
	OrderId                    *int
	PaymentMethodId            *int
	CreatedByUserId            *int
	Amount                     int64
	Currency                   string
	AmountInHostCurrency       int64
	HostCurrency               string
	HostCurrencyFxRate         decimal.Decimal
	HostFeeInHostCurrency      int64
	PlatformFeeInHostCurrency  int64
	ProcessorFeeInHostCurrency int64
	Data                       map[string]any
}

// NetAmount is the credited amount in transaction currency once fees are taken.
func (p TransactionPayload) NetAmount() int64 {
	fees := p.HostFeeInHostCurrency + p.PlatformFeeInHostCurrency + p.ProcessorFeeInHostCurrency
	net := p.AmountInHostCurrency - fees
	if p.HostCurrencyFxRate.IsZero() {
		return net
	}
	return decimal.NewFromInt(net).DivRound(p.HostCurrencyFxRate, 10).Round(0).IntPart()
}

// BuildTransactionPair returns the CREDIT row for the recipient and the
// mirrored DEBIT row for the payer. The pair nets to zero:
// credit.Amount == -debit.NetAmountInCollectiveCurrency and
// credit.NetAmountInCollectiveCurrency == -debit.Amount.
func BuildTransactionPair(p TransactionPayload) (Transaction, Transaction) {
	fxRate := p.HostCurrencyFxRate
	if fxRate.IsZero() {
		fxRate = decimal.NewFromInt(1)
	}
	var description *string
	if p.Description != "" {
		description = &p.Description
	}
	kind := p.Kind
	if kind == "" {
		kind = TransactionKindContribution
	}
	data, _ := toJSON(p.Data)
	hostId := p.HostCollectiveId
	net := p.NetAmount()

	credit := Transaction{
		Kind:                              kind,
		Type:                              TransactionTypeCredit,
		Description:                       description,
		CollectiveId:                      p.CollectiveId,
		FromCollectiveId:                  p.FromCollectiveId,
		HostCollectiveId:                  &hostId,
		OrderId:                           p.OrderId,
		PaymentMethodId:                   p.PaymentMethodId,
		CreatedByUserId:                   p.CreatedByUserId,
		Amount:                            p.Amount,
		Currency:                          p.Currency,
		AmountInHostCurrency:              p.AmountInHostCurrency,
		HostCurrency:                      p.HostCurrency,
		HostCurrencyFxRate:                fxRate,
		HostFeeInHostCurrency:             -p.HostFeeInHostCurrency,
		PlatformFeeInHostCurrency:         -p.PlatformFeeInHostCurrency,
		PaymentProcessorFeeInHostCurrency: -p.ProcessorFeeInHostCurrency,
		NetAmountInCollectiveCurrency:     net,
		Data:                              data,
	}
	debit := credit
	debit.Type = TransactionTypeDebit
	debit.CollectiveId = p.FromCollectiveId
	debit.FromCollectiveId = p.CollectiveId
	debit.Amount = -net
	debit.NetAmountInCollectiveCurrency = -p.Amount
	debit.AmountInHostCurrency = -ConvertAmount(net, fxRate)
	return credit, debit
}

// BuildRefundPair negates an original pair with sides swapped: the payer is
// credited back what it paid and the recipient is debited what it received.
func BuildRefundPair(credit Transaction, debit Transaction) (Transaction, Transaction) {
	negate := func(t Transaction, txType TransactionType) Transaction {
		r := t
		r.ID = 0
		r.Uuid = ""
		r.TransactionGroup = ""
		r.Type = txType
		r.Amount = -t.Amount
		r.AmountInHostCurrency = -t.AmountInHostCurrency
		r.HostFeeInHostCurrency = -t.HostFeeInHostCurrency
		r.PlatformFeeInHostCurrency = -t.PlatformFeeInHostCurrency
		r.PaymentProcessorFeeInHostCurrency = 0
		r.NetAmountInCollectiveCurrency = -t.NetAmountInCollectiveCurrency
		r.IsRefund = true
		r.RefundTransactionId = &t.ID
		r.CreatedAt = time.Time{}
		r.UpdatedAt = time.Time{}
		description := "Refund of \"" + utils.DereferencePtr(t.Description, "contribution") + "\""
		r.Description = &description
		return r
	}
	// payer side: credit back
	refundCredit := negate(debit, TransactionTypeCredit)
	// recipient side: debit back
	refundDebit := negate(credit, TransactionTypeDebit)
	return refundCredit, refundDebit
}

func insertPair(tx *gorm.DB, credit *Transaction, debit *Transaction) error {
	group := uuid.NewString()
	credit.TransactionGroup, debit.TransactionGroup = group, group
	credit.Uuid, debit.Uuid = uuid.NewString(), uuid.NewString()
	if err := tx.Create(credit).Error; err != nil {
		return err
	}
	return tx.Create(debit).Error
}

// CreateTransactionsFromPayload writes a ledger pair for an order and marks
// the order paid. It returns the CREDIT row.
func CreateTransactionsFromPayload(tx *gorm.DB, order *Order, payload TransactionPayload) (*Transaction, error) {
	credit, debit := BuildTransactionPair(payload)
	if err := insertPair(tx, &credit, &debit); err != nil {
		return nil, err
	}
	if err := markOrderPaidTx(tx, order, time.Now().UTC()); err != nil {
		return nil, err
	}
	if _, err := createActivity(tx, NewActivity{
		Type:             ActivityTransactionCreated,
		CollectiveId:     &credit.CollectiveId,
		FromCollectiveId: &credit.FromCollectiveId,
		HostCollectiveId: credit.HostCollectiveId,
		NewData:          credit,
		Data:             map[string]any{"orderId": order.ID},
	}); err != nil {
		return nil, err
	}
	return &credit, nil
}

// CreateRefundTransactions writes the refund pair of an original pair and
// links originals and refunds. It returns the refund CREDIT row (payer side).
func CreateRefundTransactions(tx *gorm.DB, credit *Transaction, debit *Transaction, userId *int) (*Transaction, error) {
	refundCredit, refundDebit := BuildRefundPair(*credit, *debit)
	refundCredit.CreatedByUserId, refundDebit.CreatedByUserId = userId, userId
	if err := insertPair(tx, &refundCredit, &refundDebit); err != nil {
		return nil, err
	}
	if err := tx.Model(credit).Update("refund_transaction_id", refundDebit.ID).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(debit).Update("refund_transaction_id", refundCredit.ID).Error; err != nil {
		return nil, err
	}
	credit.RefundTransactionId, debit.RefundTransactionId = &refundDebit.ID, &refundCredit.ID
	if credit.OrderId != nil {
		if err := tx.Model(&Order{}).Where("id = ?", *credit.OrderId).Update("status", OrderStatusRefunded).Error; err != nil {
			return nil, err
		}
	}
	if _, err := createActivity(tx, NewActivity{
		Type:             ActivityTransactionRefunded,
		CollectiveId:     &credit.CollectiveId,
		FromCollectiveId: &credit.FromCollectiveId,
		HostCollectiveId: credit.HostCollectiveId,
		PreviousData:     credit,
		NewData:          refundDebit,
	}); err != nil {
		return nil, err
	}
	return &refundCredit, nil
}

// (may return NotFound)
func GetTransaction(ctx context.Context, id int) (*Transaction, error) {
	db := config.GetDB()
	var t Transaction
	if err := db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFound(fmt.Sprintf("Transaction #%d not found", id))
		}
		return nil, err
	}
	return &t, nil
}

// LockTransactionPair locks both rows of a ledger entry and returns them as
// (credit, debit).
func LockTransactionPair(tx *gorm.DB, group string) (*Transaction, *Transaction, error) {
	var rows []Transaction
	if err := tx.Clauses(lockingUpdate).Where("transaction_group = ?", group).Order("id").Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	var credit, debit *Transaction
	for i := range rows {
		switch rows[i].Type {
		case TransactionTypeCredit:
			credit = &rows[i]
		case TransactionTypeDebit:
			debit = &rows[i]
		}
	}
	if credit == nil || debit == nil {
		return nil, nil, utils.NewValidationFailed("Transaction group %s is incomplete", group)
	}
	return credit, debit, nil
}

type currencyTotal struct {
	Currency string
	Total    int64
}

// GetBalance sums the net amounts of the account, converting every
// transaction currency to the account currency.
func GetBalance(ctx context.Context, tx *gorm.DB, c *Collective) (int64, error) {
	var totals []currencyTotal
	if err := tx.Model(&Transaction{}).
		Select("currency, COALESCE(SUM(net_amount_in_collective_currency), 0) AS total").
		Where("collective_id = ?", c.ID).
		Group("currency").Scan(&totals).Error; err != nil {
		return 0, err
	}
	return sumInCurrency(ctx, totals, c.Currency)
}

func sumInCurrency(ctx context.Context, totals []currencyTotal, currency string) (int64, error) {
	var balance int64
	for _, t := range totals {
		rate, err := GetFxRate(ctx, t.Currency, currency)
		if err != nil {
			return 0, err
		}
		balance += ConvertAmount(t.Total, rate)
	}
	return balance, nil
}

// AccountStats are the ledger figures exposed on accounts.
type AccountStats struct {
	Currency            string
	Balance             int64
	TotalAmountReceived int64
	TotalAmountSpent    int64
}

func GetAccountStats(ctx context.Context, c *Collective) (*AccountStats, error) {
	db := config.GetDB().WithContext(ctx)
	balance, err := GetBalance(ctx, db, c)
	if err != nil {
		return nil, err
	}
	var received, spent []currencyTotal
	if err := db.Model(&Transaction{}).
		Select("currency, COALESCE(SUM(amount), 0) AS total").
		Where("collective_id = ? AND type = ? AND is_refund = ?", c.ID, TransactionTypeCredit, false).
		Group("currency").Scan(&received).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Transaction{}).
		Select("currency, COALESCE(SUM(-net_amount_in_collective_currency), 0) AS total").
		Where("collective_id = ? AND type = ? AND is_refund = ?", c.ID, TransactionTypeDebit, false).
		Group("currency").Scan(&spent).Error; err != nil {
		return nil, err
	}
	totalReceived, err := sumInCurrency(ctx, received, c.Currency)
	if err != nil {
		return nil, err
	}
	totalSpent, err := sumInCurrency(ctx, spent, c.Currency)
	if err != nil {
		return nil, err
	}
	return &AccountStats{
		Currency:            c.Currency,
		Balance:             balance,
		TotalAmountReceived: totalReceived,
		TotalAmountSpent:    totalSpent,
	}, nil
}

type TransactionFilter struct {
	CollectiveId     *int
	HostCollectiveId *int
	From             *time.Time
	To               *time.Time
	Limit            int
}

func ListTransactions(ctx context.Context, filter TransactionFilter) ([]*Transaction, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if filter.CollectiveId != nil {
		dbCtx = dbCtx.Where("collective_id = ?", *filter.CollectiveId)
	}
	if filter.HostCollectiveId != nil {
		dbCtx = dbCtx.Where("host_collective_id = ?", *filter.HostCollectiveId)
	}
	if filter.From != nil {
		dbCtx = dbCtx.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		dbCtx = dbCtx.Where("created_at < ?", *filter.To)
	}
	if filter.Limit > 0 {
		dbCtx = dbCtx.Limit(filter.Limit)
	}
	var results []*Transaction
	err := dbCtx.Order("created_at, id").Find(&results).Error
	return results, err
}

package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Order is a commitment of FromCollective (payer) to contribute to
// Collective (recipient). Paying it creates ledger transactions.
type Order struct {
	ID                int            `gorm:"primary_key" json:"id"`
	FromCollectiveId  int            `gorm:"index;not null" json:"from_collective_id"`
	CollectiveId      int            `gorm:"index;not null" json:"collective_id"`
	TierId            *int           `json:"tier_id"`
	SubscriptionId    *int           `json:"subscription_id"`
	PaymentMethodId   *int           `json:"payment_method_id"`
	CreatedByUserId   *int           `json:"created_by_user_id"`
	Currency          string         `gorm:"size:3;not null" json:"currency"`
	TotalAmount       int64          `gorm:"not null" json:"total_amount"`
	PlatformTipAmount *int64         `json:"platform_tip_amount"`
	Quantity          int            `gorm:"not null;default:1" json:"quantity"`
	Description       *string        `gorm:"size:255" json:"description"`
	Tags              datatypes.JSON `json:"tags"`
	Status            OrderStatus    `gorm:"size:20;not null" json:"status"`
	Data              datatypes.JSON `json:"data"`
	ProcessedAt       *time.Time     `json:"processed_at"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

type Subscription struct {
	ID             int            `gorm:"primary_key" json:"id"`
	Amount         int64          `gorm:"not null" json:"amount"`
	Currency       string         `gorm:"size:3;not null" json:"currency"`
	Interval       string         `gorm:"size:10;not null" json:"interval"`
	IsActive       bool           `gorm:"not null;default:true" json:"is_active"`
	NextChargeDate *time.Time     `json:"next_charge_date"`
	DeactivatedAt  *time.Time     `json:"deactivated_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

type NewOrder struct {
	FromCollectiveId  int      `json:"fromCollectiveId" validate:"required"`
	CollectiveId      int      `json:"collectiveId" validate:"required"`
	TierId            *int     `json:"tierId"`
	PaymentMethodId   *int     `json:"paymentMethodId"`
	Currency          string   `json:"currency" validate:"required,len=3"`
	TotalAmount       int64    `json:"totalAmount" validate:"gt=0"`
	PlatformTipAmount *int64   `json:"platformTipAmount" validate:"omitempty,gte=0"`
	Quantity          int      `json:"quantity" validate:"gte=0"`
	Description       *string  `json:"description" validate:"omitempty,max=255"`
	Tags              []string `json:"tags" validate:"max=30,dive,max=32"`
	Interval          *string  `json:"interval" validate:"omitempty,oneof=month year"`
}

// data.pausedBy marker of orders paused by a freeze
const pausedByFreeze = "collective_frozen"

func (o Order) GetId() int {
	return o.ID
}

// fee on top chosen by the contributor, zero when none
func (o Order) PlatformTip() int64 {
	if o.PlatformTipAmount == nil {
		return 0
	}
	return *o.PlatformTipAmount
}

func (o Order) TagList() []string {
	var tags []string
	if len(o.Tags) > 0 {
		_ = utils.UnmarshalFromJSON(o.Tags, &tags)
	}
	return tags
}

// (may return NotFound)
func GetOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	var order Order
	if err := db.WithContext(ctx).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFound(fmt.Sprintf("Order #%d not found", id))
		}
		return nil, err
	}
	return &order, nil
}

func LockOrder(tx *gorm.DB, id int) (*Order, error) {
	var order Order
	if err := tx.Clauses(lockingUpdate).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFound(fmt.Sprintf("Order #%d not found", id))
		}
		return nil, err
	}
	return &order, nil
}

// CreatePendingOrder records a NEW order; it is paid by the payment provider.
func CreatePendingOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.FromCollectiveId == input.CollectiveId {
		return nil, utils.NewValidationFailed("An account cannot contribute to itself")
	}
	if input.PlatformTipAmount != nil && *input.PlatformTipAmount > input.TotalAmount {
		return nil, utils.NewValidationFailed("Platform tip cannot be higher than the total amount")
	}
	quantity := input.Quantity
	if quantity == 0 {
		quantity = 1
	}

	db := config.GetDB()
	var order Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recipient Collective
		if err := tx.First(&recipient, input.CollectiveId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFound("Recipient account not found")
			}
			return err
		}
		if input.Currency != recipient.Currency {
			return utils.NewValidationFailed("Order currency %s must match the currency of %s (%s)", input.Currency, recipient.Name, recipient.Currency)
		}
		if recipient.IsFrozen() {
			return utils.NewValidationFailed("This account is frozen and cannot receive contributions")
		}
		if input.TierId != nil {
			var tier Tier
			if err := tx.Where("id = ? AND collective_id = ?", *input.TierId, recipient.ID).Take(&tier).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return utils.NewNotFound("Tier not found")
				}
				return err
			}
		}

		order = Order{
			FromCollectiveId:  input.FromCollectiveId,
			CollectiveId:      input.CollectiveId,
			TierId:            input.TierId,
			PaymentMethodId:   input.PaymentMethodId,
			CreatedByUserId:   actorUserId(ctx),
			Currency:          input.Currency,
			TotalAmount:       input.TotalAmount,
			PlatformTipAmount: input.PlatformTipAmount,
			Quantity:          quantity,
			Description:       input.Description,
			Status:            OrderStatusNew,
		}
		if len(input.Tags) > 0 {
			tags, err := toJSON(utils.UniqueSlice(input.Tags))
			if err != nil {
				return err
			}
			order.Tags = tags
		}
		if input.Interval != nil {
			sub := Subscription{
				Amount:   input.TotalAmount,
				Currency: input.Currency,
				Interval: *input.Interval,
				IsActive: false,
			}
			if err := tx.Create(&sub).Error; err != nil {
				return err
			}
			order.SubscriptionId = &sub.ID
		}
		return tx.Create(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// markOrderPaidTx sets PAID, or ACTIVE and schedules the next charge for
// recurring orders.
func markOrderPaidTx(tx *gorm.DB, order *Order, now time.Time) error {
	status := OrderStatusPaid
	if order.SubscriptionId != nil {
		var sub Subscription
		if err := tx.First(&sub, *order.SubscriptionId).Error; err != nil {
			return err
		}
		next := now.AddDate(0, 1, 0)
		if sub.Interval == "year" {
			next = now.AddDate(1, 0, 0)
		}
		if err := tx.Model(&sub).Updates(map[string]any{"is_active": true, "next_charge_date": next}).Error; err != nil {
			return err
		}
		status = OrderStatusActive
	}
	order.Status = status
	order.ProcessedAt = &now
	return tx.Model(order).Updates(map[string]any{"status": status, "processed_at": now}).Error
}

// MarkOrderError flags an order whose processing failed.
func MarkOrderError(ctx context.Context, id int, reason string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status IN ?", id, []OrderStatus{OrderStatusNew, OrderStatusPending}).
		Updates(map[string]any{
			"status": OrderStatusError,
			"data":   gorm.Expr("JSON_SET(COALESCE(data, JSON_OBJECT()), '$.error', ?)", reason),
		}).Error
}

func pauseActiveOrders(tx *gorm.DB, collectiveIds []int) error {
	return tx.Model(&Order{}).
		Where("collective_id IN ? AND status = ?", collectiveIds, OrderStatusActive).
		Updates(map[string]any{
			"status": OrderStatusPaused,
			"data":   gorm.Expr("JSON_SET(COALESCE(data, JSON_OBJECT()), '$.pausedBy', ?)", pausedByFreeze),
		}).Error
}

// only orders paused by a freeze are resumed
func resumePausedOrders(tx *gorm.DB, collectiveIds []int) error {
	return tx.Model(&Order{}).
		Where("collective_id IN ? AND status = ? AND JSON_UNQUOTE(JSON_EXTRACT(data, '$.pausedBy')) = ?",
			collectiveIds, OrderStatusPaused, pausedByFreeze).
		Updates(map[string]any{
			"status": OrderStatusActive,
			"data":   gorm.Expr("JSON_REMOVE(data, '$.pausedBy')"),
		}).Error
}

func ListOrders(ctx context.Context, collectiveId int, statuses ...OrderStatus) ([]*Order, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("collective_id = ? OR from_collective_id = ?", collectiveId, collectiveId)
	if len(statuses) > 0 {
		dbCtx = dbCtx.Where("status IN ?", statuses)
	}
	var results []*Order
	err := dbCtx.Order("id DESC").Limit(100).Find(&results).Error
	return results, err
}

package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentMethod struct {
	ID              int                  `gorm:"primary_key" json:"id"`
	Uuid            string               `gorm:"size:36;not null;unique" json:"uuid"`
	Name            *string              `gorm:"size:255" json:"name"`
	Service         PaymentMethodService `gorm:"size:30;not null" json:"service"`
	Type            PaymentMethodType    `gorm:"size:30;not null" json:"type"`
	CollectiveId    *int                 `gorm:"index" json:"collective_id"`
	CreatedByUserId *int                 `json:"created_by_user_id"`
	Currency        string               `gorm:"size:3;not null" json:"currency"`
	ArchivedAt      *time.Time           `json:"archived_at"`
	ExpiryDate      *time.Time           `json:"expiry_date"`
	Data            datatypes.JSON       `json:"data"`
	CreatedAt       time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt       `gorm:"index" json:"deleted_at"`
}

func (pm PaymentMethod) GetId() int {
	return pm.ID
}

// account balance payment methods move funds inside one fiscal host
func (pm PaymentMethod) IsCollectiveBalance() bool {
	return pm.Service == PaymentMethodServiceOpenCollective &&
		(pm.Type == PaymentMethodTypeCollective || pm.Type == PaymentMethodTypeHost)
}

func (pm PaymentMethod) IsUsable(now time.Time) bool {
	if pm.ArchivedAt != nil {
		return false
	}
	return pm.ExpiryDate == nil || pm.ExpiryDate.After(now)
}

func GetPaymentMethod(ctx context.Context, id int) (*PaymentMethod, error) {
	db := config.GetDB()
	var pm PaymentMethod
	if err := db.WithContext(ctx).First(&pm, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFound("Payment method not found")
		}
		return nil, err
	}
	return &pm, nil
}

func ListPaymentMethods(ctx context.Context, collectiveId int) ([]*PaymentMethod, error) {
	db := config.GetDB()
	var results []*PaymentMethod
	err := db.WithContext(ctx).Where("collective_id = ? AND archived_at IS NULL", collectiveId).Order("id").Find(&results).Error
	return results, err
}

// balance payment method of the account, created on first use
func getOrCreateBalancePaymentMethodTx(tx *gorm.DB, c *Collective) (*PaymentMethod, error) {
	pmType := PaymentMethodTypeCollective
	if c.IsHostAccount {
		pmType = PaymentMethodTypeHost
	}
	var pm PaymentMethod
	err := tx.Where("collective_id = ? AND service = ? AND type = ? AND archived_at IS NULL",
		c.ID, PaymentMethodServiceOpenCollective, pmType).Order("id").Take(&pm).Error
	if err == nil {
		return &pm, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	pm = PaymentMethod{
		Uuid:            uuid.NewString(),
		Name:            utils.Ptr(c.Name),
		Service:         PaymentMethodServiceOpenCollective,
		Type:            pmType,
		CollectiveId:    &c.ID,
		CreatedByUserId: actorUserId(tx.Statement.Context),
		Currency:        c.Currency,
	}
	if err := tx.Create(&pm).Error; err != nil {
		return nil, err
	}
	return &pm, nil
}

// GetOrCreateBalancePaymentMethod returns the account balance payment method.
func GetOrCreateBalancePaymentMethod(ctx context.Context, collectiveId int) (*PaymentMethod, error) {
	db := config.GetDB()
	var pm *PaymentMethod
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := LockCollective(tx, collectiveId)
		if err != nil {
			return err
		}
		pm, err = getOrCreateBalancePaymentMethodTx(tx, c)
		return err
	})
	return pm, err
}

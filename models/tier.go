package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"gorm.io/gorm"
)

// Tier is a contribution level offered by an account.
type Tier struct {
	ID           int            `gorm:"primary_key" json:"id"`
	CollectiveId int            `gorm:"index;not null" json:"collective_id"`
	Name         string         `gorm:"size:255;not null" json:"name"`
	Slug         string         `gorm:"size:255;not null" json:"slug"`
	Description  *string        `gorm:"type:text" json:"description"`
	Amount       *int64         `json:"amount"`
	Currency     string         `gorm:"size:3;not null" json:"currency"`
	Interval     *string        `gorm:"size:10" json:"interval"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (t Tier) GetId() int {
	return t.ID
}

func GetTiers(ctx context.Context, collectiveId int) ([]*Tier, error) {
	db := config.GetDB()
	var results []*Tier
	err := db.WithContext(ctx).Where("collective_id = ?", collectiveId).Order("id").Find(&results).Error
	return results, err
}

func copyTiers(tx *gorm.DB, fromCollectiveId int, toCollectiveId int) error {
	var tiers []Tier
	if err := tx.Where("collective_id = ?", fromCollectiveId).Order("id").Find(&tiers).Error; err != nil {
		return err
	}
	if len(tiers) == 0 {
		return nil
	}
	copies := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		copies = append(copies, Tier{
			CollectiveId: toCollectiveId,
			Name:         t.Name,
			Slug:         t.Slug,
			Description:  t.Description,
			Amount:       t.Amount,
			Currency:     t.Currency,
			Interval:     t.Interval,
		})
	}
	return tx.Create(&copies).Error
}

package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CurrencyExchange is a published rate: 1 FromCurrency = Rate ToCurrency.
type CurrencyExchange struct {
	ID           int             `gorm:"primary_key" json:"id"`
	FromCurrency string          `gorm:"size:3;not null" json:"from_currency"`
	ToCurrency   string          `gorm:"size:3;not null" json:"to_currency"`
	Rate         decimal.Decimal `gorm:"type:decimal(20,10);not null" json:"rate"`
	EffectiveAt  time.Time       `gorm:"not null" json:"effective_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

/*
caches:
	FxRate:$from:$to
*/

const fxRateCacheLifespan = 15 * time.Minute

func fxRateCacheKey(from, to string) string {
	return fmt.Sprintf("FxRate:%s:%s", from, to)
}

// GetFxRate returns the latest effective rate from one currency to another,
// using the inverse rate when only that one is published.
func GetFxRate(ctx context.Context, from string, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	var cached string
	exists, err := config.GetRedisObject(fxRateCacheKey(from, to), &cached)
	if err != nil {
		return decimal.Zero, err
	}
	if exists {
		if rate, err := decimal.NewFromString(cached); err == nil {
			return rate, nil
		}
	}

	rate, err := latestRate(ctx, from, to)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var inverse decimal.Decimal
		inverse, err = latestRate(ctx, to, from)
		if err == nil {
			rate = decimal.NewFromInt(1).DivRound(inverse, 10)
		}
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, utils.NewValidationFailed("No exchange rate available from %s to %s", from, to)
		}
		return decimal.Zero, err
	}
	if err := config.SetRedisObject(fxRateCacheKey(from, to), rate.String(), fxRateCacheLifespan); err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

func latestRate(ctx context.Context, from string, to string) (decimal.Decimal, error) {
	db := config.GetDB()
	var fx CurrencyExchange
	err := db.WithContext(ctx).
		Where("from_currency = ? AND to_currency = ? AND effective_at <= ?", from, to, time.Now().UTC()).
		Order("effective_at DESC").Take(&fx).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !fx.Rate.IsPositive() {
		return decimal.Zero, utils.NewValidationFailed("Invalid exchange rate from %s to %s", from, to)
	}
	return fx.Rate, nil
}

// SetFxRate publishes a rate effective now.
func SetFxRate(ctx context.Context, from string, to string, rate decimal.Decimal) (*CurrencyExchange, error) {
	if !utils.IsValidCurrency(from) || !utils.IsValidCurrency(to) {
		return nil, utils.NewValidationFailed("Invalid currency pair %s/%s", from, to)
	}
	if !rate.IsPositive() {
		return nil, utils.NewValidationFailed("Exchange rate must be positive")
	}
	db := config.GetDB()
	fx := CurrencyExchange{
		FromCurrency: from,
		ToCurrency:   to,
		Rate:         rate,
		EffectiveAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&fx).Error; err != nil {
		return nil, err
	}
	if err := config.RemoveRedisKey(fxRateCacheKey(from, to), fxRateCacheKey(to, from)); err != nil {
		return nil, err
	}
	return &fx, nil
}

// ConvertAmount converts minor units with the given rate, rounding half away from zero.
func ConvertAmount(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

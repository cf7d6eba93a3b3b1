package paymentproviders

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeeInput is what a contribution is charged on. Amounts are in minor units
// of the order currency; HostCurrencyFxRate converts them to host currency.
type FeeInput struct {
	TotalAmount        int64
	PlatformTipAmount  int64
	HostCurrencyFxRate decimal.Decimal
	HostFeePercent     decimal.Decimal
	PlatformFeePercent decimal.Decimal
	// processors that charge the host; zero for transfers inside a host
	PaymentProcessorFeeInHostCurrency int64
}

// ContributionAmounts are the host currency figures of a contribution.
// Fees are positive here and negated when stored.
type ContributionAmounts struct {
	AmountInHostCurrency              int64
	HostCurrencyFxRate                decimal.Decimal
	HostFeeInHostCurrency             int64
	PlatformFeeInHostCurrency         int64
	PaymentProcessorFeeInHostCurrency int64
	IsFeesOnTop                       bool
}

func percentOf(amount int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(percent).Div(hundred).Round(0).IntPart()
}

func convert(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// ComputeContributionAmounts converts the order total to host currency and
// derives the fees. A platform tip replaces the platform fee percentage and
// the host fee is only taken on the contribution without the tip.
func ComputeContributionAmounts(in FeeInput) ContributionAmounts {
	rate := in.HostCurrencyFxRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	amountInHostCurrency := convert(in.TotalAmount, rate)

	out := ContributionAmounts{
		AmountInHostCurrency:              amountInHostCurrency,
		HostCurrencyFxRate:                rate,
		PaymentProcessorFeeInHostCurrency: in.PaymentProcessorFeeInHostCurrency,
	}
	if in.PlatformTipAmount > 0 {
		contribution := convert(in.TotalAmount-in.PlatformTipAmount, rate)
		out.IsFeesOnTop = true
		out.HostFeeInHostCurrency = percentOf(contribution, in.HostFeePercent)
		out.PlatformFeeInHostCurrency = convert(in.PlatformTipAmount, rate)
	} else {
		out.HostFeeInHostCurrency = percentOf(amountInHostCurrency, in.HostFeePercent)
		out.PlatformFeeInHostCurrency = percentOf(amountInHostCurrency, in.PlatformFeePercent)
	}
	return out
}

package paymentproviders

import (
	"testing"

	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"github.com/shopspring/decimal"
)

func TestComputeContributionAmounts(t *testing.T) {
	cases := []struct {
		name string
		in   FeeInput
		want ContributionAmounts
	}{
		{
			name: "same currency",
			in: FeeInput{
				TotalAmount:        1005,
				HostFeePercent:     decimal.NewFromInt(10),
				PlatformFeePercent: decimal.NewFromInt(5),
			},
			want: ContributionAmounts{AmountInHostCurrency: 1005, HostFeeInHostCurrency: 101, PlatformFeeInHostCurrency: 50},
		},
		{
			name: "converted to host currency",
			in: FeeInput{
				TotalAmount:                       1000,
				HostCurrencyFxRate:                decimal.RequireFromString("0.9"),
				HostFeePercent:                    decimal.NewFromInt(10),
				PlatformFeePercent:                decimal.NewFromInt(5),
				PaymentProcessorFeeInHostCurrency: 29,
			},
			want: ContributionAmounts{AmountInHostCurrency: 900, HostFeeInHostCurrency: 90, PlatformFeeInHostCurrency: 45, PaymentProcessorFeeInHostCurrency: 29},
		},
		{
			name: "platform tip replaces the platform fee",
			in: FeeInput{
				TotalAmount:        1200,
				PlatformTipAmount:  200,
				HostCurrencyFxRate: decimal.RequireFromString("0.9"),
				HostFeePercent:     decimal.NewFromInt(10),
				PlatformFeePercent: decimal.NewFromInt(5),
			},
			// host fee on (1200 - 200) x 0.9
			want: ContributionAmounts{AmountInHostCurrency: 1080, HostFeeInHostCurrency: 90, PlatformFeeInHostCurrency: 180, IsFeesOnTop: true},
		},
		{
			name: "tip is not charged the host fee",
			in: FeeInput{
				TotalAmount:       1200,
				PlatformTipAmount: 200,
				HostFeePercent:    decimal.NewFromInt(10),
			},
			want: ContributionAmounts{AmountInHostCurrency: 1200, HostFeeInHostCurrency: 100, PlatformFeeInHostCurrency: 200, IsFeesOnTop: true},
		},
		{
			name: "no fees",
			in:   FeeInput{TotalAmount: 500},
			want: ContributionAmounts{AmountInHostCurrency: 500},
		},
	}
	for _, c := range cases {
		got := ComputeContributionAmounts(c.in)
		if got.AmountInHostCurrency != c.want.AmountInHostCurrency ||
			got.HostFeeInHostCurrency != c.want.HostFeeInHostCurrency ||
			got.PlatformFeeInHostCurrency != c.want.PlatformFeeInHostCurrency ||
			got.PaymentProcessorFeeInHostCurrency != c.want.PaymentProcessorFeeInHostCurrency ||
			got.IsFeesOnTop != c.want.IsFeesOnTop {
			t.Fatalf("%s: got %+v want %+v", c.name, got, c.want)
		}
		if c.in.HostCurrencyFxRate.IsZero() && !got.HostCurrencyFxRate.Equal(decimal.NewFromInt(1)) {
			t.Fatalf("%s: missing rate should default to 1, got %s", c.name, got.HostCurrencyFxRate)
		}
	}
}

func TestRefundWithTipNetsToZero(t *testing.T) {
	rate := decimal.RequireFromString("0.9")
	amounts := ComputeContributionAmounts(FeeInput{
		TotalAmount:        1200,
		PlatformTipAmount:  200,
		HostCurrencyFxRate: rate,
		HostFeePercent:     decimal.NewFromInt(10),
		PlatformFeePercent: decimal.NewFromInt(5),
	})
	credit, debit := models.BuildTransactionPair(models.TransactionPayload{
		CollectiveId:               10,
		FromCollectiveId:           20,
		HostCollectiveId:           30,
		Amount:                     1200,
		Currency:                   "USD",
		AmountInHostCurrency:       amounts.AmountInHostCurrency,
		HostCurrency:               "EUR",
		HostCurrencyFxRate:         rate,
		HostFeeInHostCurrency:      amounts.HostFeeInHostCurrency,
		PlatformFeeInHostCurrency:  amounts.PlatformFeeInHostCurrency,
		ProcessorFeeInHostCurrency: 30,
	})
	// (1080 - 90 - 180 - 30) / 0.9: the tip and fees never reach the recipient
	if credit.NetAmountInCollectiveCurrency != 867 {
		t.Fatalf("recipient net: got %d want 867", credit.NetAmountInCollectiveCurrency)
	}
	credit.ID, debit.ID = 1, 2
	refundCredit, refundDebit := models.BuildRefundPair(credit, debit)

	type sums struct{ amount, net, hostFee, platformFee int64 }
	balances := map[int]*sums{}
	for _, row := range []models.Transaction{credit, debit, refundCredit, refundDebit} {
		s, ok := balances[row.CollectiveId]
		if !ok {
			s = &sums{}
			balances[row.CollectiveId] = s
		}
		s.amount += row.Amount
		s.net += row.NetAmountInCollectiveCurrency
		s.hostFee += row.HostFeeInHostCurrency
		s.platformFee += row.PlatformFeeInHostCurrency
	}
	if len(balances) != 2 {
		t.Fatalf("expected rows on two accounts, got %d", len(balances))
	}
	for id, s := range balances {
		if *s != (sums{}) {
			t.Fatalf("account %d does not net to zero after refund: %+v", id, *s)
		}
	}
}

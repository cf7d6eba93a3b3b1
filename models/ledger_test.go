package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func eurPayload() TransactionPayload {
	return TransactionPayload{
		CollectiveId:               10,
		FromCollectiveId:           20,
		HostCollectiveId:           30,
		Amount:                     1000,
		Currency:                   "USD",
		AmountInHostCurrency:       900,
		HostCurrency:               "EUR",
		HostCurrencyFxRate:         decimal.RequireFromString("0.9"),
		HostFeeInHostCurrency:      90,
		ProcessorFeeInHostCurrency: 30,
	}
}

func TestNetAmount(t *testing.T) {
	p := eurPayload()
	// (900 - 120) / 0.9 = 866.67
	if got := p.NetAmount(); got != 867 {
		t.Fatalf("NetAmount: got %d want 867", got)
	}
	p.HostCurrencyFxRate = decimal.Zero
	if got := p.NetAmount(); got != 780 {
		t.Fatalf("NetAmount without a rate: got %d want 780", got)
	}
}

func TestBuildTransactionPair(t *testing.T) {
	credit, debit := BuildTransactionPair(eurPayload())

	if credit.Type != TransactionTypeCredit || debit.Type != TransactionTypeDebit {
		t.Fatalf("types: %s %s", credit.Type, debit.Type)
	}
	if credit.Kind != TransactionKindContribution {
		t.Fatalf("kind should default to CONTRIBUTION, got %s", credit.Kind)
	}
	if credit.CollectiveId != 10 || credit.FromCollectiveId != 20 || debit.CollectiveId != 20 || debit.FromCollectiveId != 10 {
		t.Fatalf("sides should be mirrored: credit %d<-%d debit %d<-%d", credit.CollectiveId, credit.FromCollectiveId, debit.CollectiveId, debit.FromCollectiveId)
	}
	if credit.HostFeeInHostCurrency != -90 || credit.PaymentProcessorFeeInHostCurrency != -30 || credit.PlatformFeeInHostCurrency != 0 {
		t.Fatalf("fees should be stored negative: %+v", credit)
	}
	if credit.Amount+debit.NetAmountInCollectiveCurrency != 0 || credit.NetAmountInCollectiveCurrency+debit.Amount != 0 {
		t.Fatalf("pair should net to zero: credit %d/%d debit %d/%d",
			credit.Amount, credit.NetAmountInCollectiveCurrency, debit.Amount, debit.NetAmountInCollectiveCurrency)
	}
	if debit.AmountInHostCurrency != -780 {
		t.Fatalf("debit amount in host currency: got %d", debit.AmountInHostCurrency)
	}
	if credit.HostCollectiveId == nil || *credit.HostCollectiveId != 30 {
		t.Fatalf("host should be set on both sides")
	}
	if credit.Description != nil {
		t.Fatalf("empty description should stay nil")
	}
}

func TestBuildRefundPair(t *testing.T) {
	credit, debit := BuildTransactionPair(eurPayload())
	credit.ID, debit.ID = 101, 102
	credit.TransactionGroup, debit.TransactionGroup = "group", "group"

	refundCredit, refundDebit := BuildRefundPair(credit, debit)

	// the payer is credited back
	if refundCredit.CollectiveId != 20 || refundCredit.Type != TransactionTypeCredit {
		t.Fatalf("refund credit should go to the payer: %+v", refundCredit)
	}
	if refundCredit.Amount != 867 || refundCredit.NetAmountInCollectiveCurrency != 1000 {
		t.Fatalf("refund credit amounts: %d/%d", refundCredit.Amount, refundCredit.NetAmountInCollectiveCurrency)
	}
	// the recipient gives back what it received
	if refundDebit.CollectiveId != 10 || refundDebit.Type != TransactionTypeDebit {
		t.Fatalf("refund debit should hit the recipient: %+v", refundDebit)
	}
	if refundDebit.Amount != -1000 || refundDebit.NetAmountInCollectiveCurrency != -867 {
		t.Fatalf("refund debit amounts: %d/%d", refundDebit.Amount, refundDebit.NetAmountInCollectiveCurrency)
	}
	if refundDebit.PaymentProcessorFeeInHostCurrency != 0 || refundCredit.PaymentProcessorFeeInHostCurrency != 0 {
		t.Fatalf("processor fees are not refunded")
	}
	if refundCredit.Amount+refundDebit.NetAmountInCollectiveCurrency != 0 {
		t.Fatalf("refund pair should net to zero")
	}
	if !refundCredit.IsRefund || !refundDebit.IsRefund {
		t.Fatalf("refund rows should be flagged")
	}
	if *refundCredit.RefundTransactionId != 102 || *refundDebit.RefundTransactionId != 101 {
		t.Fatalf("refund rows should link the row they negate")
	}
	if refundCredit.ID != 0 || refundCredit.TransactionGroup != "" || refundCredit.Uuid != "" {
		t.Fatalf("refund rows are new rows")
	}
	if *refundDebit.Description != `Refund of "contribution"` {
		t.Fatalf("description: %q", *refundDebit.Description)
	}
}

func TestConvertAmount(t *testing.T) {
	cases := []struct {
		amount int64
		rate   string
		want   int64
	}{
		{1000, "1", 1000},
		{1000, "1.2345", 1235},
		{-5, "0.5", -3},
		{5, "0.5", 3},
		{0, "3.7", 0},
	}
	for _, c := range cases {
		if got := ConvertAmount(c.amount, decimal.RequireFromString(c.rate)); got != c.want {
			t.Fatalf("ConvertAmount(%d, %s): got %d want %d", c.amount, c.rate, got, c.want)
		}
	}
}

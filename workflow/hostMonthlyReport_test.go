package workflow

import (
	"bytes"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"github.com/xuri/excelize/v2"
)

func TestHostReportObjectName(t *testing.T) {
	host := &models.Collective{ID: 3, Slug: "opencollective-host"}
	month := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	got := hostReportObjectName("reports/hosts", host, month)
	if got != "reports/hosts/opencollective-host/transactions-2024-02.xlsx" {
		t.Fatalf("unexpected object name %q", got)
	}
	if got := hostReportObjectName("", host, month); got != "opencollective-host/transactions-2024-02.xlsx" {
		t.Fatalf("unexpected object name without prefix %q", got)
	}
}

func TestBuildHostReport(t *testing.T) {
	description := "Monthly donation"
	createdAt := time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)
	transactions := []*models.Transaction{
		{
			CreatedAt:                         createdAt,
			TransactionGroup:                  "group-1",
			Kind:                              models.TransactionKindContribution,
			Type:                              models.TransactionTypeCredit,
			Description:                       &description,
			CollectiveId:                      10,
			FromCollectiveId:                  20,
			Amount:                            5000,
			Currency:                          "USD",
			AmountInHostCurrency:              5000,
			HostCurrency:                      "USD",
			HostFeeInHostCurrency:             -500,
			PlatformFeeInHostCurrency:         -250,
			PaymentProcessorFeeInHostCurrency: 0,
			NetAmountInCollectiveCurrency:     4250,
		},
		{
			CreatedAt:                     createdAt,
			TransactionGroup:              "group-1",
			Kind:                          models.TransactionKindContribution,
			Type:                          models.TransactionTypeDebit,
			CollectiveId:                  20,
			FromCollectiveId:              10,
			Amount:                        -4250,
			Currency:                      "USD",
			AmountInHostCurrency:          -4250,
			HostCurrency:                  "USD",
			NetAmountInCollectiveCurrency: -5000,
			IsRefund:                      true,
		},
	}
	names := map[int]string{10: "Babel", 20: "Jane Doe"}

	data, err := buildHostReport(transactions, names)
	if err != nil {
		t.Fatalf("buildHostReport: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(hostReportSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected heading plus 2 rows, got %d", len(rows))
	}
	for i, h := range hostReportHeadings {
		if rows[0][i] != h {
			t.Fatalf("heading %d: got %q want %q", i, rows[0][i], h)
		}
	}

	checks := map[string]string{
		"A2": "2024-01-15T10:30:00Z",
		"B2": "group-1",
		"C2": "CONTRIBUTION",
		"D2": "CREDIT",
		"E2": "Babel",
		"F2": "Jane Doe",
		"G2": "Monthly donation",
		"H2": "5000",
		"I2": "USD",
		"L2": "-500",
		"M2": "-250",
		"O2": "4250",
		"D3": "DEBIT",
		"E3": "Jane Doe",
		"F3": "Babel",
		"G3": "",
		"H3": "-4250",
		"O3": "-5000",
		"P3": "TRUE",
	}
	for cell, want := range checks {
		got, err := f.GetCellValue(hostReportSheet, cell)
		if err != nil {
			t.Fatalf("GetCellValue %s: %v", cell, err)
		}
		if got != want {
			t.Fatalf("cell %s: got %q want %q", cell, got, want)
		}
	}
}

func TestBuildHostReportEmpty(t *testing.T) {
	data, err := buildHostReport(nil, map[int]string{})
	if err != nil {
		t.Fatalf("buildHostReport: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(hostReportSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected only the heading row, got %d rows", len(rows))
	}
}

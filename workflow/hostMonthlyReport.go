package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	hostReportScope       = "host-monthly-report"
	hostReportHandler     = "xlsx-upload"
	hostReportSheet       = "Transactions"
	hostReportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ReportStore receives the generated workbooks.
type ReportStore interface {
	Upload(ctx context.Context, objectName string, contentType string, data []byte) (string, error)
}

var newReportStore = func() ReportStore {
	return utils.NewGCSStore(config.GetSettings().Storage.Bucket)
}

var hostReportHeadings = []string{
	"Date", "Transaction Group", "Kind", "Type", "Account", "Opposite Account",
	"Description", "Amount", "Currency", "Amount In Host Currency", "Host Currency",
	"Host Fee", "Platform Fee", "Payment Processor Fee", "Net Amount", "Refund",
}

// RunHostMonthlyReport uploads the previous month's transactions of every
// active host as a workbook. Each (host, month) is uploaded once.
func RunHostMonthlyReport(ctx context.Context, logger *logrus.Logger) error {
	from, to := utils.GetPreviousMonthRange(time.Now())
	hosts, err := models.ListActiveHosts(ctx)
	if err != nil {
		config.LogError(logger, "hostMonthlyReport.go", "RunHostMonthlyReport", "ListActiveHosts", nil, err)
		return err
	}
	store := newReportStore()
	prefix := config.GetSettings().Storage.ReportsPrefix

	var errs []error
	uploaded := 0
	for _, host := range hosts {
		done, err := uploadHostReport(ctx, store, prefix, host, from, to)
		if err != nil {
			config.LogError(logger, "hostMonthlyReport.go", "RunHostMonthlyReport", "uploadHostReport", host.ID, err)
			errs = append(errs, fmt.Errorf("host %d: %w", host.ID, err))
			continue
		}
		if done {
			uploaded++
		}
	}
	logger.WithFields(logrus.Fields{
		"job":      JobHostMonthlyReport,
		"month":    from.Format("2006-01"),
		"hosts":    len(hosts),
		"uploaded": uploaded,
	}).Info("host reports generated")
	return errors.Join(errs...)
}

func hostReportObjectName(prefix string, host *models.Collective, month time.Time) string {
	return path.Join(prefix, host.Slug, fmt.Sprintf("transactions-%s.xlsx", month.Format("2006-01")))
}

// uploadHostReport returns false when the report was already uploaded.
func uploadHostReport(ctx context.Context, store ReportStore, prefix string, host *models.Collective, from time.Time, to time.Time) (bool, error) {
	db := config.GetDB().WithContext(ctx)
	key := JobKey{
		Scope:     hostReportScope,
		Handler:   hostReportHandler,
		MessageId: fmt.Sprintf("%d:%s", host.ID, from.Format("2006-01")),
	}

	skip, err := key.Begin(db)
	if errors.Is(err, ErrIdempotencyInProgress) || skip {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	err = func() error {
		transactions, err := models.ListTransactions(ctx, models.TransactionFilter{
			HostCollectiveId: &host.ID,
			From:             &from,
			To:               &to,
		})
		if err != nil {
			return err
		}
		names, err := collectiveNames(ctx, transactions)
		if err != nil {
			return err
		}
		data, err := buildHostReport(transactions, names)
		if err != nil {
			return err
		}
		_, err = store.Upload(ctx, hostReportObjectName(prefix, host, from), hostReportContentType, data)
		return err
	}()
	if err != nil {
		if markErr := key.Failed(db, err); markErr != nil {
			return false, errors.Join(err, markErr)
		}
		return false, err
	}
	return true, key.Succeeded(db)
}

func collectiveNames(ctx context.Context, transactions []*models.Transaction) (map[int]string, error) {
	var ids []int
	for _, t := range transactions {
		ids = append(ids, t.CollectiveId, t.FromCollectiveId)
	}
	ids = utils.UniqueSlice(ids)
	names := make(map[int]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var collectives []models.Collective
	if err := config.GetDB().WithContext(ctx).Unscoped().Select("id", "name").Where("id IN ?", ids).Find(&collectives).Error; err != nil {
		return nil, err
	}
	for _, c := range collectives {
		names[c.ID] = c.Name
	}
	return names, nil
}

// buildHostReport writes one row per transaction. Amounts are in minor units.
func buildHostReport(transactions []*models.Transaction, names map[int]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", hostReportSheet); err != nil {
		return nil, err
	}

	for i, h := range hostReportHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(hostReportSheet, cell, h); err != nil {
			return nil, err
		}
	}
	for i, t := range transactions {
		row := []interface{}{
			t.CreatedAt.UTC().Format(time.RFC3339),
			t.TransactionGroup,
			string(t.Kind),
			string(t.Type),
			names[t.CollectiveId],
			names[t.FromCollectiveId],
			utils.DereferencePtr(t.Description),
			t.Amount,
			t.Currency,
			t.AmountInHostCurrency,
			t.HostCurrency,
			t.HostFeeInHostCurrency,
			t.PlatformFeeInHostCurrency,
			t.PaymentProcessorFeeInHostCurrency,
			t.NetAmountInCollectiveCurrency,
			t.IsRefund,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(hostReportSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

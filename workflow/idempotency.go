package workflow

import (
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

// STARTED rows older than this are considered abandoned by a crashed run
const idempotencyStaleAfter = 5 * time.Minute

const mysqlDuplicateEntry = 1062

// JobKey names one side effect of a job, e.g. the report of a host for a month.
type JobKey struct {
	Scope     string
	Handler   string
	MessageId string
}

func (k JobKey) where(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.IdempotencyKey{}).
		Where("scope = ? AND handler_name = ? AND message_id = ?", k.Scope, k.Handler, k.MessageId)
}

func (k JobKey) setStatus(tx *gorm.DB, status models.IdempotencyStatus, lastError *string) error {
	return k.where(tx).Updates(map[string]any{"status": status, "last_error": lastError}).Error
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// Begin claims the key. skip is true when the side effect already succeeded;
// ErrIdempotencyInProgress means another run holds a fresh claim.
func (k JobKey) Begin(tx *gorm.DB) (skip bool, err error) {
	err = tx.Create(&models.IdempotencyKey{
		Scope:       k.Scope,
		HandlerName: k.Handler,
		MessageId:   k.MessageId,
		Status:      models.IdempotencyStatusStarted,
	}).Error
	if err == nil {
		return false, nil
	}
	if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.IdempotencyKey
	if err := k.where(tx).First(&existing).Error; err != nil {
		return false, err
	}
	if existing.Status == models.IdempotencyStatusSucceeded {
		return true, nil
	}
	if existing.Status == models.IdempotencyStatusStarted && time.Since(existing.UpdatedAt) < idempotencyStaleAfter {
		return false, ErrIdempotencyInProgress
	}
	// failed or stale claims are retried
	return false, k.setStatus(tx, models.IdempotencyStatusStarted, nil)
}

func (k JobKey) Succeeded(tx *gorm.DB) error {
	return k.setStatus(tx, models.IdempotencyStatusSucceeded, nil)
}

func (k JobKey) Failed(tx *gorm.DB, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return k.setStatus(tx, models.IdempotencyStatusFailed, &msg)
}

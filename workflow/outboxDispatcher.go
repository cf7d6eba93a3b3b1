package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PublishFunc sends one activity and returns the broker message id.
type PublishFunc func(ctx context.Context, msg config.ActivityMessage) (string, error)

// OutboxDispatcher publishes committed Activity rows to Pub/Sub.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string
	Publish      PublishFunc

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Publish:        config.PublishActivityWithResult,
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     10 * time.Minute,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch and publishes it. It returns the number of
// rows published.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) int {
	now := time.Now().UTC()
	if d.DB == nil {
		return 0
	}

	claimed, err := d.claim(ctx, now)
	if err != nil {
		d.logError("claim", 0, 0, err)
		return 0
	}

	published := 0
	for _, rec := range claimed {
		// rows marked DEAD while claiming
		if rec.PublishStatus == models.PublishStatusDead {
			continue
		}
		pubID, pubErr := d.Publish(ctx, models.ConvertToActivityMessage(rec))
		if pubErr != nil {
			d.markPublishFailed(ctx, rec.ID, pubErr, rec.PublishAttempts)
			continue
		}
		d.markPublishSent(ctx, rec.ID, pubID)
		published++
	}
	return published
}

func (d *OutboxDispatcher) claim(ctx context.Context, now time.Time) ([]models.Activity, error) {
	staleBefore := now.Add(-d.LockTimeout)
	var claimed []models.Activity
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// ready PENDING/FAILED rows, and PROCESSING rows whose dispatcher died
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []models.PublishStatus{models.PublishStatusPending, models.PublishStatusFailed}, now, models.PublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if d.MaxAttempts > 0 && claimed[i].PublishAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].PublishStatus = models.PublishStatusDead
				if err := tx.Model(&models.Activity{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.PublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].PublishStatus = models.PublishStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			claimed[i].PublishAttempts++
			if err := tx.Model(&models.Activity{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     claimed[i].PublishStatus,
				"locked_at":          claimed[i].LockedAt,
				"locked_by":          claimed[i].LockedBy,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, activityID int, pubsubMsgID string) {
	now := time.Now().UTC()
	err := d.DB.WithContext(ctx).Model(&models.Activity{}).
		Where("id = ?", activityID).
		Updates(map[string]interface{}{
			"publish_status":     models.PublishStatusPublished,
			"published_at":       &now,
			"pub_sub_message_id": &pubsubMsgID,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
	if err != nil {
		d.logError("markPublishSent", activityID, 0, err)
	}
}

// publishBackoff doubles InitialBackoff per attempt, capped at MaxBackoff.
func (d *OutboxDispatcher) publishBackoff(attempt int) time.Duration {
	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if d.MaxBackoff > 0 && backoff > d.MaxBackoff {
			return d.MaxBackoff
		}
	}
	return backoff
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, activityID int, err error, attempt int) {
	db := d.DB.WithContext(ctx)
	msg := err.Error()

	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		_ = db.Model(&models.Activity{}).
			Where("id = ?", activityID).
			Updates(map[string]interface{}{
				"publish_status":     models.PublishStatusDead,
				"last_publish_error": &msg,
				"next_attempt_at":    nil,
				"locked_at":          nil,
				"locked_by":          nil,
			}).Error
		d.logError("markPublishFailed", activityID, attempt, fmt.Errorf("activity publish moved to DEAD after max attempts: %w", err))
		return
	}

	next := time.Now().UTC().Add(d.publishBackoff(attempt))
	_ = db.Model(&models.Activity{}).
		Where("id = ?", activityID).
		Updates(map[string]interface{}{
			"publish_status":     models.PublishStatusFailed,
			"last_publish_error": &msg,
			"next_attempt_at":    &next,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
	d.logError("markPublishFailed", activityID, attempt, fmt.Errorf("activity publish failed: %w", err))
}

func (d *OutboxDispatcher) logError(funcName string, activityID int, attempt int, err error) {
	if d.Logger == nil {
		return
	}
	d.Logger.WithFields(logrus.Fields{
		"field":       "OutboxDispatcher",
		"funcName":    funcName,
		"activity_id": activityID,
		"attempt":     attempt,
	}).Error(err.Error())
}

// RequeueDeadActivities moves DEAD activities back to PENDING with a fresh
// attempt budget. It returns the number of rows requeued.
func RequeueDeadActivities(ctx context.Context, db *gorm.DB) (int64, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).Model(&models.Activity{}).
		Where("publish_status = ?", models.PublishStatusDead).
		Updates(map[string]interface{}{
			"publish_status":   models.PublishStatusPending,
			"publish_attempts": 0,
			"next_attempt_at":  &now,
		})
	return res.RowsAffected, res.Error
}

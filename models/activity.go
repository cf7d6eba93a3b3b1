package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Activity is the audit row written by every mutation. It doubles as the
// outbox record: the dispatcher publishes committed rows to Pub/Sub.
type Activity struct {
	ID               int            `gorm:"primary_key" json:"id"`
	Type             ActivityType   `gorm:"size:60;not null" json:"type"`
	CollectiveId     *int           `gorm:"index" json:"collective_id"`
	FromCollectiveId *int           `json:"from_collective_id"`
	HostCollectiveId *int           `json:"host_collective_id"`
	UserId           *int           `json:"user_id"`
	Data             datatypes.JSON `json:"data"`
	CorrelationId    string         `gorm:"size:64" json:"correlation_id"`
	// outbox metadata (publish happens after commit via dispatcher)
	PublishStatus    PublishStatus `gorm:"size:20;not null;default:'PENDING'" json:"publish_status"`
	PublishAttempts  int           `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time    `json:"next_attempt_at"`
	LockedAt         *time.Time    `json:"locked_at"`
	LockedBy         *string       `gorm:"size:64" json:"locked_by"`
	PublishedAt      *time.Time    `json:"published_at"`
	PubSubMessageId  *string       `gorm:"size:255" json:"pub_sub_message_id"`
	LastPublishError *string       `gorm:"type:text" json:"last_publish_error"`
	CreatedAt        time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func (a Activity) GetId() int {
	return a.ID
}

// NewActivity describes an audit entry; PreviousData/NewData hold the
// changed values and are merged into Data.
type NewActivity struct {
	Type             ActivityType
	CollectiveId     *int
	FromCollectiveId *int
	HostCollectiveId *int
	PreviousData     any
	NewData          any
	Data             map[string]any
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok && cid != "" {
		return cid
	}
	return uuid.NewString()
}

// createActivity writes the audit row inside tx, taking the acting user and
// correlation id from the statement context.
func createActivity(tx *gorm.DB, input NewActivity) (*Activity, error) {
	ctx := tx.Statement.Context

	data := map[string]any{}
	for k, v := range input.Data {
		data[k] = v
	}
	if input.PreviousData != nil {
		data["previousData"] = input.PreviousData
	}
	if input.NewData != nil {
		data["newData"] = input.NewData
	}
	if userName, ok := utils.GetUserNameFromContext(ctx); ok && userName != "" {
		data["userName"] = userName
	}
	dataJSON, err := toJSON(data)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	activity := Activity{
		Type:             input.Type,
		CollectiveId:     input.CollectiveId,
		FromCollectiveId: input.FromCollectiveId,
		HostCollectiveId: input.HostCollectiveId,
		UserId:           actorUserId(ctx),
		Data:             dataJSON,
		CorrelationId:    correlationIdFromContextOrNew(ctx),
		PublishStatus:    PublishStatusPending,
		NextAttemptAt:    &now,
	}
	if err := tx.Create(&activity).Error; err != nil {
		return nil, err
	}
	return &activity, nil
}

func ConvertToActivityMessage(a Activity) config.ActivityMessage {
	return config.ActivityMessage{
		ID:               a.ID,
		Type:             string(a.Type),
		CollectiveId:     a.CollectiveId,
		FromCollectiveId: a.FromCollectiveId,
		HostCollectiveId: a.HostCollectiveId,
		UserId:           a.UserId,
		Data:             []byte(a.Data),
		CreatedAt:        a.CreatedAt,
		CorrelationId:    a.CorrelationId,
	}
}

type ActivityFilter struct {
	CollectiveId int
	Types        []ActivityType
	Limit        int
	Offset       int
}

// ListActivities returns the newest activities of an account first.
func ListActivities(ctx context.Context, filter ActivityFilter) ([]*Activity, error) {
	db := config.GetDB()
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	dbCtx := db.WithContext(ctx).Where("collective_id = ?", filter.CollectiveId)
	if len(filter.Types) > 0 {
		dbCtx = dbCtx.Where("type IN ?", filter.Types)
	}
	var results []*Activity
	err := dbCtx.Order("created_at DESC, id DESC").Limit(limit).Offset(filter.Offset).Find(&results).Error
	return results, err
}

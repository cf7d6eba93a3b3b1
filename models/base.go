package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var lockingUpdate = clause.Locking{Strength: "UPDATE"}

// LockCollective locks the account row for the rest of the db transaction
// (may return NotFound)
func LockCollective(tx *gorm.DB, id int) (*Collective, error) {
	var c Collective
	err := tx.Clauses(lockingUpdate).First(&c, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFound(fmt.Sprintf("Account #%d not found", id))
		}
		return nil, err
	}
	return &c, nil
}

func toJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// decodes a JSON column into a map, empty columns give an empty map
func jsonMap(data datatypes.JSON) map[string]any {
	m, err := utils.JSONToMap(data)
	if err != nil {
		return map[string]any{}
	}
	return m
}

// user id of the request, nil for system actions such as cron jobs
func actorUserId(ctx context.Context) *int {
	if userId, ok := utils.GetUserIdFromContext(ctx); ok && userId > 0 {
		return &userId
	}
	return nil
}

func isDuplicateKeyErr(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return false
}

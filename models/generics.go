package models

import (
	"context"

	"bitbucket.org/mmdatafocus/collectives_backend/utils"
)

type Identifier interface {
	GetId() int
}

// first find in redis, then in db, cache result
// (may return RecordNotFound error)
func GetResource[T any](ctx context.Context, id int, associations ...string) (*T, error) {

	// find in redis
	result, err := utils.RetrieveRedis[T](id)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	// fetch from db
	result, err = utils.FetchSingleModel[T](ctx, id, associations...)
	if err != nil {
		return nil, err
	}
	// store in redis
	if err := utils.StoreRedis[T](result, id); err != nil {
		return nil, err
	}
	return result, nil
}

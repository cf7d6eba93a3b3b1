package middlewares

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"
)

type userReader struct {
	db *gorm.DB
}

// keyed by the individual account id of the user
func (r *userReader) getUsers(ctx context.Context, collectiveIds []int) []*dataloader.Result[*models.User] {
	var results []models.User
	err := r.db.WithContext(ctx).Where("collective_id IN ?", collectiveIds).Find(&results).Error
	if err != nil {
		return handleError[*models.User](len(collectiveIds), err)
	}
	byCollective := make(map[int]*models.User, len(results))
	for i := range results {
		byCollective[results[i].CollectiveId] = &results[i]
	}
	loaderResults := make([]*dataloader.Result[*models.User], 0, len(collectiveIds))
	for _, id := range collectiveIds {
		// accounts that are not individuals have no user
		loaderResults = append(loaderResults, &dataloader.Result[*models.User]{Data: byCollective[id]})
	}
	return loaderResults
}

type twoFactorMethodReader struct {
	db *gorm.DB
}

func (r *twoFactorMethodReader) getTwoFactorMethods(ctx context.Context, userIds []int) []*dataloader.Result[[]*models.UserTwoFactorMethod] {
	var results []models.UserTwoFactorMethod
	err := r.db.WithContext(ctx).Where("user_id IN ?", userIds).Order("id").Find(&results).Error
	if err != nil {
		return handleError[[]*models.UserTwoFactorMethod](len(userIds), err)
	}
	return generateLoaderArrayResults(results, userIds, func(m models.UserTwoFactorMethod) int { return m.UserId })
}

// GetUserOfCollective returns the user behind an individual account, nil for other accounts
func GetUserOfCollective(ctx context.Context, collectiveId int) (*models.User, error) {
	loaders := For(ctx)
	if loaders == nil {
		user, err := models.GetUserByCollectiveId(ctx, collectiveId)
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, nil
		}
		return user, err
	}
	return loaders.UserLoader.Load(ctx, collectiveId)()
}

func GetTwoFactorMethods(ctx context.Context, userId int) ([]*models.UserTwoFactorMethod, error) {
	loaders := For(ctx)
	if loaders == nil {
		return models.ListTwoFactorMethods(ctx, userId)
	}
	return loaders.TwoFactorMethodLoader.Load(ctx, userId)()
}

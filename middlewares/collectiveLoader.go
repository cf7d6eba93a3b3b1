package middlewares

import (
	"context"

	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"
)

type collectiveReader struct {
	db *gorm.DB
}

func (r *collectiveReader) getCollectives(ctx context.Context, ids []int) []*dataloader.Result[*models.Collective] {
	var results []models.Collective
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.Collective](len(ids), err)
	}
	return generateLoaderResults(results, ids)
}

type adminReader struct {
	db *gorm.DB
}

type adminRow struct {
	models.Collective
	AdminOfId int
}

// admins of each account, as their individual accounts
func (r *adminReader) getAdmins(ctx context.Context, ids []int) []*dataloader.Result[[]*models.Collective] {
	var rows []adminRow
	err := r.db.WithContext(ctx).Table("collectives").
		Select("collectives.*, members.collective_id AS admin_of_id").
		Joins("JOIN members ON members.member_collective_id = collectives.id AND members.deleted_at IS NULL").
		Where("members.collective_id IN ? AND members.role = ? AND collectives.deleted_at IS NULL", ids, models.MemberRoleAdmin).
		Order("members.id").
		Scan(&rows).Error
	if err != nil {
		return handleError[[]*models.Collective](len(ids), err)
	}
	grouped := make(map[int][]*models.Collective)
	for i := range rows {
		c := rows[i].Collective
		grouped[rows[i].AdminOfId] = append(grouped[rows[i].AdminOfId], &c)
	}
	loaderResults := make([]*dataloader.Result[[]*models.Collective], 0, len(ids))
	for _, id := range ids {
		loaderResults = append(loaderResults, &dataloader.Result[[]*models.Collective]{Data: grouped[id]})
	}
	return loaderResults
}

// GetCollective returns a single account by id efficiently
func GetCollective(ctx context.Context, id int) (*models.Collective, error) {
	loaders := For(ctx)
	if loaders == nil {
		return models.GetCollective(ctx, id)
	}
	return loaders.CollectiveLoader.Load(ctx, id)()
}

// GetCollectives returns many accounts by ids efficiently
func GetCollectives(ctx context.Context, ids []int) ([]*models.Collective, []error) {
	loaders := For(ctx)
	if loaders == nil {
		results := make([]*models.Collective, len(ids))
		errs := make([]error, len(ids))
		for i, id := range ids {
			results[i], errs[i] = models.GetCollective(ctx, id)
		}
		return results, errs
	}
	return loaders.CollectiveLoader.LoadMany(ctx, ids)()
}

// GetAdmins returns the admin accounts of an account
func GetAdmins(ctx context.Context, collectiveId int) ([]*models.Collective, error) {
	loaders := For(ctx)
	if loaders == nil {
		return models.GetAdminCollectives(ctx, collectiveId)
	}
	return loaders.AdminsLoader.Load(ctx, collectiveId)()
}

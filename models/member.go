package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"gorm.io/gorm"
)

// Member links an account (MemberCollectiveId) to another account with a role.
// Users administer accounts through the membership of their individual account.
type Member struct {
	ID                 int            `gorm:"primary_key" json:"id"`
	CollectiveId       int            `gorm:"index:idx_members_collective_role;not null" json:"collective_id"`
	MemberCollectiveId int            `gorm:"index;not null" json:"member_collective_id"`
	Role               MemberRole     `gorm:"index:idx_members_collective_role;size:20;not null" json:"role"`
	CreatedByUserId    *int           `json:"created_by_user_id"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (m Member) GetId() int {
	return m.ID
}

// AddMember is idempotent for an existing (collective, member, role).
func AddMember(ctx context.Context, collectiveId int, memberCollectiveId int, role MemberRole) (*Member, error) {
	db := config.GetDB()
	var member *Member
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		member, err = addMemberTx(tx, collectiveId, memberCollectiveId, role)
		return err
	})
	return member, err
}

func addMemberTx(tx *gorm.DB, collectiveId int, memberCollectiveId int, role MemberRole) (*Member, error) {
	var existing Member
	err := tx.Where("collective_id = ? AND member_collective_id = ? AND role = ?", collectiveId, memberCollectiveId, role).
		Take(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	member := Member{
		CollectiveId:       collectiveId,
		MemberCollectiveId: memberCollectiveId,
		Role:               role,
		CreatedByUserId:    actorUserId(tx.Statement.Context),
	}
	if err := tx.Create(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func copyAdmins(tx *gorm.DB, fromCollectiveId int, toCollectiveId int) error {
	var admins []Member
	if err := tx.Where("collective_id = ? AND role = ?", fromCollectiveId, MemberRoleAdmin).Find(&admins).Error; err != nil {
		return err
	}
	for _, admin := range admins {
		if _, err := addMemberTx(tx, toCollectiveId, admin.MemberCollectiveId, MemberRoleAdmin); err != nil {
			return err
		}
	}
	return nil
}

func ensureAdmin(tx *gorm.DB, collectiveId int, userId int) error {
	var user User
	if err := tx.First(&user, userId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewNotFound("User not found")
		}
		return err
	}
	_, err := addMemberTx(tx, collectiveId, user.CollectiveId, MemberRoleAdmin)
	return err
}

// GetAdminCollectives returns the individual accounts administering collectiveId.
func GetAdminCollectives(ctx context.Context, collectiveId int) ([]*Collective, error) {
	db := config.GetDB()
	var results []*Collective
	err := db.WithContext(ctx).
		Where("id IN (?)", db.Model(&Member{}).Select("member_collective_id").
			Where("collective_id = ? AND role = ?", collectiveId, MemberRoleAdmin)).
		Order("id").Find(&results).Error
	return results, err
}

func CountAdmins(ctx context.Context, collectiveId int) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&Member{}).
		Where("collective_id = ? AND role = ?", collectiveId, MemberRoleAdmin).
		Distinct("member_collective_id").Count(&count).Error
	return count, err
}

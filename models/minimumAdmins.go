package models

import (
	"context"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"gorm.io/gorm"
)

// MinimumAdminsViolation is a hosted account with fewer admins than its
// host's COLLECTIVE_MINIMUM_ADMINS policy requires.
type MinimumAdminsViolation struct {
	Collective Collective
	AdminCount int64
}

// ListHostsEnforcingMinimumAdmins returns hosts whose minimum-admins policy
// asks for a freeze.
func ListHostsEnforcingMinimumAdmins(ctx context.Context) ([]*Collective, error) {
	db := config.GetDB()
	var hosts []*Collective
	err := db.WithContext(ctx).
		Where("is_host_account = ? AND JSON_EXTRACT(policies, '$.COLLECTIVE_MINIMUM_ADMINS') IS NOT NULL", true).
		Order("id").Find(&hosts).Error
	if err != nil {
		return nil, err
	}
	results := hosts[:0]
	for _, h := range hosts {
		if p := h.GetPolicies().CollectiveMinimumAdmins; p != nil && p.Freeze && p.NumberOfAdmins > 0 {
			results = append(results, h)
		}
	}
	return results, nil
}

// ListMinimumAdminsViolations returns the unfrozen top-level collectives and
// funds of host that have fewer admins than the policy requires.
func ListMinimumAdminsViolations(ctx context.Context, host *Collective) ([]MinimumAdminsViolation, error) {
	policy := host.GetPolicies().CollectiveMinimumAdmins
	if policy == nil || policy.NumberOfAdmins <= 0 {
		return nil, nil
	}
	db := config.GetDB()
	adminCounts := db.Model(&Member{}).
		Select("COUNT(DISTINCT member_collective_id)").
		Where("members.collective_id = collectives.id AND members.role = ?", MemberRoleAdmin)

	q := db.WithContext(ctx).Model(&Collective{}).
		Select("collectives.*, (?) AS admin_count", adminCounts).
		Where("host_collective_id = ? AND id <> ? AND parent_collective_id IS NULL", host.ID, host.ID).
		Where("type IN ?", []CollectiveType{CollectiveTypeCollective, CollectiveTypeFund}).
		Where("(?) < ?", adminCounts, policy.NumberOfAdmins)
	if policy.Applies == MinimumAdminsAppliesNew && policy.SetAt != nil {
		q = q.Where("created_at >= ?", *policy.SetAt)
	}

	var rows []struct {
		Collective
		AdminCount int64
	}
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	results := make([]MinimumAdminsViolation, 0, len(rows))
	for _, row := range rows {
		if row.Collective.IsFrozen() {
			continue
		}
		results = append(results, MinimumAdminsViolation{Collective: row.Collective, AdminCount: row.AdminCount})
	}
	return results, nil
}

// FreezeCollectiveForPolicy freezes an account on behalf of its host's
// policy. Accounts already frozen are left untouched and reported as false.
func FreezeCollectiveForPolicy(ctx context.Context, id int, message string) (bool, error) {
	db := config.GetDB()
	var touched []int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := LockCollective(tx, id)
		if err != nil {
			return err
		}
		if c.IsFrozen() {
			return nil
		}
		touched, err = freezeCollectiveTx(tx, c, message)
		return err
	})
	if err != nil {
		return false, err
	}
	if len(touched) == 0 {
		return false, nil
	}
	if err := utils.RemoveRedisItem[Collective](touched...); err != nil {
		return true, err
	}
	return true, nil
}

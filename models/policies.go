package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PolicyRequireTwoFactorForAdmins   = "REQUIRE_2FA_FOR_ADMINS"
	PolicyCollectiveMinimumAdmins     = "COLLECTIVE_MINIMUM_ADMINS"
	PolicyExpenseAuthorCannotApprove  = "EXPENSE_AUTHOR_CANNOT_APPROVE"
	MinimumAdminsAppliesAll           = "ALL_COLLECTIVES"
	MinimumAdminsAppliesNew           = "NEW_COLLECTIVES"
	maxMinimumAdminsPolicyAdminsCount = 10
)

type MinimumAdminsPolicy struct {
	NumberOfAdmins int    `json:"numberOfAdmins" validate:"gte=0"`
	Applies        string `json:"applies" validate:"omitempty,oneof=ALL_COLLECTIVES NEW_COLLECTIVES"`
	Freeze         bool   `json:"freeze"`
	// when the policy was last changed, NEW_COLLECTIVES counts from here
	SetAt *time.Time `json:"setAt,omitempty"`
}

type ExpenseAuthorCannotApprovePolicy struct {
	Enabled                         bool  `json:"enabled"`
	AmountInCents                   int64 `json:"amountInCents" validate:"gte=0"`
	AppliesToHostedCollectives      bool  `json:"appliesToHostedCollectives"`
	AppliesToSingleAdminCollectives bool  `json:"appliesToSingleAdminCollectives"`
}

// Policies is the policies column of an account. Unset policies are nil.
type Policies struct {
	RequireTwoFactorForAdmins  *bool                             `json:"REQUIRE_2FA_FOR_ADMINS,omitempty"`
	CollectiveMinimumAdmins    *MinimumAdminsPolicy              `json:"COLLECTIVE_MINIMUM_ADMINS,omitempty" validate:"omitempty"`
	ExpenseAuthorCannotApprove *ExpenseAuthorCannotApprovePolicy `json:"EXPENSE_AUTHOR_CANNOT_APPROVE,omitempty" validate:"omitempty"`
}

func ParsePolicies(data datatypes.JSON) Policies {
	var p Policies
	if len(data) == 0 {
		return p
	}
	// unknown or malformed policies are ignored
	_ = json.Unmarshal(data, &p)
	return p
}

func (c Collective) GetPolicies() Policies {
	return ParsePolicies(c.Policies)
}

func (p Policies) Validate(isHost bool) error {
	if err := utils.ValidateStruct(p); err != nil {
		return err
	}
	if m := p.CollectiveMinimumAdmins; m != nil {
		if !isHost {
			return utils.NewValidationFailed("%s can only be set on host accounts", PolicyCollectiveMinimumAdmins)
		}
		if m.NumberOfAdmins > maxMinimumAdminsPolicyAdminsCount {
			return utils.NewValidationFailed("%s cannot require more than %d admins", PolicyCollectiveMinimumAdmins, maxMinimumAdminsPolicyAdminsCount)
		}
	}
	return nil
}

// Merge overrides the policies set in update; a minimum admins policy with
// zero admins removes it.
func (p Policies) Merge(update Policies, now time.Time) Policies {
	merged := p
	if update.RequireTwoFactorForAdmins != nil {
		merged.RequireTwoFactorForAdmins = update.RequireTwoFactorForAdmins
	}
	if update.CollectiveMinimumAdmins != nil {
		if update.CollectiveMinimumAdmins.NumberOfAdmins == 0 {
			merged.CollectiveMinimumAdmins = nil
		} else {
			m := *update.CollectiveMinimumAdmins
			if m.Applies == "" {
				m.Applies = MinimumAdminsAppliesNew
			}
			m.SetAt = &now
			merged.CollectiveMinimumAdmins = &m
		}
	}
	if update.ExpenseAuthorCannotApprove != nil {
		merged.ExpenseAuthorCannotApprove = update.ExpenseAuthorCannotApprove
	}
	return merged
}

// SetCollectivePolicies merges policies into the account.
func SetCollectivePolicies(ctx context.Context, id int, update Policies) (*Collective, error) {
	db := config.GetDB()
	var result *Collective
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := LockCollective(tx, id)
		if err != nil {
			return err
		}
		if err := update.Validate(c.IsHostAccount); err != nil {
			return err
		}
		previous := c.GetPolicies()
		merged := previous.Merge(update, time.Now().UTC())
		policiesJSON, err := toJSON(merged)
		if err != nil {
			return err
		}
		if err := tx.Model(c).Update("policies", policiesJSON).Error; err != nil {
			return err
		}
		if _, err := createActivity(tx, NewActivity{
			Type:             ActivityCollectivePoliciesEdited,
			CollectiveId:     &c.ID,
			HostCollectiveId: c.HostCollectiveId,
			PreviousData:     previous,
			NewData:          merged,
		}); err != nil {
			return err
		}
		c.Policies = policiesJSON
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := result.RemoveInstanceRedis(); err != nil {
		return nil, err
	}
	return result, nil
}

// RequiresTwoFactorForAdmins checks the account, its parent and its host.
func RequiresTwoFactorForAdmins(ctx context.Context, c *Collective) (bool, error) {
	accounts := []*Collective{c}
	parent, err := GetParent(ctx, c)
	if err != nil {
		return false, err
	}
	if parent != nil {
		accounts = append(accounts, parent)
	}
	host, err := GetHost(ctx, c)
	if err != nil {
		return false, err
	}
	if host != nil && host.ID != c.ID {
		accounts = append(accounts, host)
	}
	for _, account := range accounts {
		if v := account.GetPolicies().RequireTwoFactorForAdmins; v != nil && *v {
			return true, nil
		}
	}
	return false, nil
}

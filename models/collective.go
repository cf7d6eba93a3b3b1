package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Collective is any account of the platform: individuals (USER),
// organizations, collectives, funds, and their events and projects.
// A fiscal host is a Collective with IsHostAccount set.
type Collective struct {
	ID                 int              `gorm:"primary_key" json:"id"`
	Slug               string           `gorm:"size:255;not null;unique" json:"slug"`
	Name               string           `gorm:"size:255;not null" json:"name"`
	LegalName          *string          `gorm:"size:255" json:"legal_name"`
	Description        *string          `gorm:"size:255" json:"description"`
	Type               CollectiveType   `gorm:"size:20;not null" json:"type"`
	IsHostAccount      bool             `gorm:"not null;default:false" json:"is_host_account"`
	IsActive           bool             `gorm:"not null;default:false" json:"is_active"`
	ApprovedAt         *time.Time       `json:"approved_at"`
	Currency           string           `gorm:"size:3;not null;default:USD" json:"currency"`
	HostFeePercent     *decimal.Decimal `gorm:"type:decimal(5,2)" json:"host_fee_percent"`
	PlatformFeePercent *decimal.Decimal `gorm:"type:decimal(5,2)" json:"platform_fee_percent"`
	ParentCollectiveId *int             `gorm:"index" json:"parent_collective_id"`
	HostCollectiveId   *int             `gorm:"index" json:"host_collective_id"`
	Image              *string          `gorm:"size:1024" json:"image"`
	Settings           datatypes.JSON   `json:"settings"`
	Data               datatypes.JSON   `json:"data"`
	Policies           datatypes.JSON   `json:"policies"`
	CreatedByUserId    *int             `json:"created_by_user_id"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt   `gorm:"index" json:"deleted_at"`
}

type NewCollective struct {
	Slug               string           `json:"slug" validate:"required,max=255"`
	Name               string           `json:"name" validate:"required,max=255"`
	Description        *string          `json:"description" validate:"omitempty,max=255"`
	Type               CollectiveType   `json:"type" validate:"required"`
	Currency           string           `json:"currency" validate:"required,len=3"`
	IsHostAccount      bool             `json:"is_host_account"`
	IsActive           bool             `json:"is_active"`
	HostFeePercent     *decimal.Decimal `json:"host_fee_percent"`
	ParentCollectiveId *int             `json:"parent_collective_id"`
	HostCollectiveId   *int             `json:"host_collective_id"`
	Approved           bool             `json:"approved"`
	// individual account made admin of the new account
	AdminCollectiveId *int `json:"-"`
}

type AccountReferenceInput struct {
	LegacyId *int    `json:"legacyId"`
	Slug     *string `json:"slug"`
}

/*
caches:
	Collective:$id
*/

func (c Collective) GetId() int {
	return c.ID
}

func (c Collective) RemoveInstanceRedis() error {
	return utils.RemoveRedisItem[Collective](c.ID)
}

// frozen accounts carry data.features.ALL = DISABLED
func (c Collective) IsFrozen() bool {
	v, ok := utils.GetPath(jsonMap(c.Data), "features.ALL")
	return ok && v == "DISABLED"
}

func (c Collective) IsChild() bool {
	return c.ParentCollectiveId != nil
}

func (c Collective) IsApproved() bool {
	return c.ApprovedAt != nil
}

func (c Collective) IsCustomFee() bool {
	v, _ := utils.GetPath(jsonMap(c.Data), "isCustomFee")
	b, _ := v.(bool)
	return b
}

func (c Collective) IsIndividual() bool {
	return c.Type == CollectiveTypeUser
}

// ContactPhone returns the E.164 phone stored by editAccount
func (c Collective) ContactPhone() *string {
	v, ok := utils.GetPath(jsonMap(c.Data), "contactPhone")
	if s, isStr := v.(string); ok && isStr && s != "" {
		return &s
	}
	return nil
}

func (c Collective) SettingsMap() map[string]any {
	return jsonMap(c.Settings)
}

func (c Collective) DataMap() map[string]any {
	return jsonMap(c.Data)
}

// host fee percent of the account, falling back to its host's
func (c Collective) EffectiveHostFeePercent(host *Collective) decimal.Decimal {
	if c.HostFeePercent != nil {
		return *c.HostFeePercent
	}
	if host != nil && host.HostFeePercent != nil {
		return *host.HostFeePercent
	}
	return decimal.NewFromFloat(config.GetSettings().Platform.DefaultHostFeePercent)
}

func (c Collective) EffectivePlatformFeePercent() decimal.Decimal {
	if c.PlatformFeePercent != nil {
		return *c.PlatformFeePercent
	}
	return decimal.NewFromFloat(config.GetSettings().Platform.FeePercent)
}

func (input *NewCollective) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Type.IsValid() {
		return utils.NewValidationFailed("Invalid account type %q", input.Type)
	}
	if !utils.IsValidSlug(input.Slug) {
		return utils.NewValidationFailed("Invalid slug %q", input.Slug)
	}
	if !utils.IsValidCurrency(input.Currency) {
		return utils.NewValidationFailed("Invalid currency %q", input.Currency)
	}
	if input.Type.IsChildType() && input.ParentCollectiveId == nil {
		return utils.NewValidationFailed("%s accounts need a parent account", strings.ToLower(string(input.Type)))
	}
	return nil
}

// CreateCollective creates an account. Children take their host from the parent.
func CreateCollective(ctx context.Context, input *NewCollective) (*Collective, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	db := config.GetDB()
	collective := Collective{
		Slug:               input.Slug,
		Name:               input.Name,
		Description:        input.Description,
		Type:               input.Type,
		Currency:           input.Currency,
		IsHostAccount:      input.IsHostAccount,
		IsActive:           input.IsActive,
		HostFeePercent:     input.HostFeePercent,
		ParentCollectiveId: input.ParentCollectiveId,
		HostCollectiveId:   input.HostCollectiveId,
		CreatedByUserId:    actorUserId(ctx),
	}
	if input.Approved {
		now := time.Now().UTC()
		collective.ApprovedAt = &now
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.ParentCollectiveId != nil {
			parent, err := LockCollective(tx, *input.ParentCollectiveId)
			if err != nil {
				return err
			}
			collective.HostCollectiveId = parent.HostCollectiveId
			collective.ApprovedAt = parent.ApprovedAt
			collective.IsActive = parent.IsActive
		}
		if err := tx.Create(&collective).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return utils.NewValidationFailed("The slug %s is already taken", input.Slug)
			}
			return err
		}
		// hosts are their own fiscal host
		if collective.IsHostAccount && collective.HostCollectiveId == nil {
			if err := tx.Model(&collective).Update("host_collective_id", collective.ID).Error; err != nil {
				return err
			}
			collective.HostCollectiveId = &collective.ID
		}
		if input.AdminCollectiveId != nil {
			if _, err := addMemberTx(tx, collective.ID, *input.AdminCollectiveId, MemberRoleAdmin); err != nil {
				return err
			}
		}
		_, err := createActivity(tx, NewActivity{
			Type:             ActivityCollectiveCreated,
			CollectiveId:     &collective.ID,
			HostCollectiveId: collective.HostCollectiveId,
			NewData:          collective,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &collective, nil
}

// (may return RecordNotFound error)
func GetCollective(ctx context.Context, id int) (*Collective, error) {
	return GetResource[Collective](ctx, id)
}

func GetCollectiveBySlug(ctx context.Context, slug string) (*Collective, error) {
	db := config.GetDB()
	var result Collective
	err := db.WithContext(ctx).Where("slug = ?", strings.ToLower(slug)).Take(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFound(fmt.Sprintf("Account with slug %s not found", slug))
		}
		return nil, err
	}
	return &result, nil
}

// FetchAccount resolves an account reference by legacy id or slug.
func FetchAccount(ctx context.Context, ref AccountReferenceInput) (*Collective, error) {
	if ref.LegacyId != nil {
		c, err := GetCollective(ctx, *ref.LegacyId)
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewNotFound(fmt.Sprintf("Account #%d not found", *ref.LegacyId))
		}
		return c, err
	}
	if ref.Slug != nil && *ref.Slug != "" {
		return GetCollectiveBySlug(ctx, *ref.Slug)
	}
	return nil, utils.NewBadRequest("Please provide a slug or a legacyId for the account")
}

// GetHost returns the fiscal host of the account, nil when unhosted.
func GetHost(ctx context.Context, c *Collective) (*Collective, error) {
	if c.HostCollectiveId == nil {
		return nil, nil
	}
	if *c.HostCollectiveId == c.ID {
		return c, nil
	}
	host, err := GetCollective(ctx, *c.HostCollectiveId)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, nil
	}
	return host, err
}

func GetParent(ctx context.Context, c *Collective) (*Collective, error) {
	if c.ParentCollectiveId == nil {
		return nil, nil
	}
	return GetCollective(ctx, *c.ParentCollectiveId)
}

func GetChildren(ctx context.Context, parentId int) ([]*Collective, error) {
	db := config.GetDB()
	var results []*Collective
	err := db.WithContext(ctx).Where("parent_collective_id = ?", parentId).Order("id").Find(&results).Error
	return results, err
}

// ListActiveHosts returns the active host accounts.
func ListActiveHosts(ctx context.Context) ([]*Collective, error) {
	db := config.GetDB()
	var results []*Collective
	err := db.WithContext(ctx).Where("is_host_account = ? AND is_active = ?", true, true).Order("id").Find(&results).Error
	return results, err
}

func childrenOf(tx *gorm.DB, parentId int) ([]Collective, error) {
	var results []Collective
	err := tx.Where("parent_collective_id = ?", parentId).Order("id").Find(&results).Error
	return results, err
}

// accounts hosted by hostId, the host itself excluded
func hostedAccountsOf(tx *gorm.DB, hostId int) ([]Collective, error) {
	var results []Collective
	err := tx.Where("host_collective_id = ? AND id <> ?", hostId, hostId).Order("id").Find(&results).Error
	return results, err
}

func countTransactions(tx *gorm.DB, collectiveIds ...int) (int64, error) {
	var count int64
	err := tx.Model(&Transaction{}).Where("collective_id IN ?", collectiveIds).Count(&count).Error
	return count, err
}

func CountTransactions(ctx context.Context, collectiveId int) (int64, error) {
	return countTransactions(config.GetDB().WithContext(ctx), collectiveId)
}

func collectiveIds(collectives []Collective) []int {
	ids := make([]int, 0, len(collectives))
	for _, c := range collectives {
		ids = append(ids, c.ID)
	}
	return ids
}

type EditAccountInput struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=255"`
	LegalName    *string `json:"legalName" validate:"omitempty,max=255"`
	Description  *string `json:"description" validate:"omitempty,max=255"`
	Currency     *string `json:"currency" validate:"omitempty,len=3"`
	Image        *string `json:"image" validate:"omitempty,url,max=1024"`
	ContactPhone *string `json:"contactPhone"`
}

// EditCollective updates the profile of an account.
func EditCollective(ctx context.Context, id int, input *EditAccountInput) (*Collective, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var result *Collective
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := LockCollective(tx, id)
		if err != nil {
			return err
		}
		previous := map[string]any{}
		changes := map[string]any{}

		if input.Name != nil && *input.Name != c.Name {
			previous["name"], changes["name"] = c.Name, *input.Name
		}
		if input.LegalName != nil {
			previous["legal_name"], changes["legal_name"] = c.LegalName, utils.NilIfEmpty(*input.LegalName)
		}
		if input.Description != nil {
			previous["description"], changes["description"] = c.Description, utils.NilIfEmpty(*input.Description)
		}
		if input.Image != nil {
			previous["image"], changes["image"] = c.Image, utils.NilIfEmpty(*input.Image)
		}
		if input.Currency != nil && *input.Currency != c.Currency {
			if !utils.IsValidCurrency(*input.Currency) {
				return utils.NewValidationFailed("Invalid currency %q", *input.Currency)
			}
			count, err := countTransactions(tx, c.ID)
			if err != nil {
				return err
			}
			if count > 0 {
				return utils.NewValidationFailed("Currency cannot be changed once the account has transactions")
			}
			previous["currency"], changes["currency"] = c.Currency, *input.Currency
		}
		if input.ContactPhone != nil {
			data := c.DataMap()
			previous["contactPhone"] = data["contactPhone"]
			if *input.ContactPhone == "" {
				delete(data, "contactPhone")
				changes["contactPhone"] = nil
			} else {
				phone, err := utils.FormatPhoneNumber(*input.ContactPhone, "")
				if err != nil {
					return utils.NewValidationFailed("Invalid phone number: %s", *input.ContactPhone)
				}
				data["contactPhone"] = phone
				changes["contactPhone"] = phone
			}
			dataJSON, err := toJSON(data)
			if err != nil {
				return err
			}
			c.Data = dataJSON
		}
		if len(changes) == 0 {
			result = c
			return nil
		}

		columns := map[string]any{}
		for k, v := range changes {
			if k != "contactPhone" {
				columns[k] = v
			}
		}
		if _, ok := changes["contactPhone"]; ok {
			columns["data"] = c.Data
		}
		if err := tx.Model(c).Updates(columns).Error; err != nil {
			return err
		}
		if _, err := createActivity(tx, NewActivity{
			Type:             ActivityCollectiveEdited,
			CollectiveId:     &c.ID,
			HostCollectiveId: c.HostCollectiveId,
			PreviousData:     previous,
			NewData:          changes,
		}); err != nil {
			return err
		}
		result, err = reloadCollective(tx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := result.RemoveInstanceRedis(); err != nil {
		return nil, err
	}
	return result, nil
}

func reloadCollective(tx *gorm.DB, id int) (*Collective, error) {
	var c Collective
	if err := tx.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// EditCollectiveSetting deep-sets a whitelisted key inside settings.
// A nil value removes the key.
func EditCollectiveSetting(ctx context.Context, id int, key string, value any) (*Collective, error) {
	if !IsAllowedSettingKey(key) {
		return nil, utils.NewValidationFailed("Setting key %q is not allowed", key)
	}
	db := config.GetDB()
	var result *Collective
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := LockCollective(tx, id)
		if err != nil {
			return err
		}
		settings := c.SettingsMap()
		previous, _ := utils.GetPath(settings, key)
		utils.SetPath(settings, key, value)
		settingsJSON, err := toJSON(settings)
		if err != nil {
			return err
		}
		if err := tx.Model(c).Update("settings", settingsJSON).Error; err != nil {
			return err
		}
		if _, err := createActivity(tx, NewActivity{
			Type:             ActivityCollectiveSettingsEdited,
			CollectiveId:     &c.ID,
			HostCollectiveId: c.HostCollectiveId,
			PreviousData:     map[string]any{key: previous},
			NewData:          map[string]any{key: value},
		}); err != nil {
			return err
		}
		c.Settings = settingsJSON
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

// feeCascadeTargets lists the accounts receiving a fee edit: the account,
// its children, and for hosts the hosted accounts without a custom fee.
func feeCascadeTargets(account Collective, children []Collective, hosted []Collective) []int {
	ids := []int{account.ID}
	seen := map[int]bool{account.ID: true}
	for _, child := range children {
		if !seen[child.ID] {
			seen[child.ID] = true
			ids = append(ids, child.ID)
		}
	}
	if account.IsHostAccount {
		for _, h := range hosted {
			if seen[h.ID] || h.IsCustomFee() {
				continue
			}
			seen[h.ID] = true
			ids = append(ids, h.ID)
		}
	}
	return ids
}

// EditCollectiveFeeStructure sets the host fee of an account and its
// children in one db transaction.
func EditCollectiveFeeStructure(ctx context.Context, id int, hostFeePercent decimal.Decimal, isCustomFee bool) (*Collective, error) {
	if hostFeePercent.IsNegative() || hostFeePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, utils.NewValidationFailed("Host fee percent must be between 0 and 100")
	}
	db := config.GetDB()
	var result *Collective
	var touched []int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := LockCollective(tx, id)
		if err != nil {
			return err
		}
		if c.HostCollectiveId == nil || !c.IsApproved() {
			return utils.NewValidationFailed("Fees can only be edited on accounts approved by a host")
		}
		children, err := childrenOf(tx, c.ID)
		if err != nil {
			return err
		}
		var hosted []Collective
		if c.IsHostAccount {
			if hosted, err = hostedAccountsOf(tx, c.ID); err != nil {
				return err
			}
		}
		touched = feeCascadeTargets(*c, children, hosted)

		// lock every target so concurrent edits serialize
		var targets []Collective
		if err := tx.Clauses(lockingUpdate).Where("id IN ?", touched).Order("id").Find(&targets).Error; err != nil {
			return err
		}
		for i := range targets {
			target := &targets[i]
			data := target.DataMap()
			if target.ID == c.ID || target.ParentCollectiveId != nil && *target.ParentCollectiveId == c.ID {
				data["isCustomFee"] = isCustomFee
			}
			dataJSON, err := toJSON(data)
			if err != nil {
				return err
			}
			if err := tx.Model(target).Updates(map[string]any{
				"host_fee_percent": hostFeePercent,
				"data":             dataJSON,
			}).Error; err != nil {
				return err
			}
		}

		if _, err := createActivity(tx, NewActivity{
			Type:             ActivityCollectiveFeeStructureEdit,
			CollectiveId:     &c.ID,
			HostCollectiveId: c.HostCollectiveId,
			PreviousData:     map[string]any{"hostFeePercent": c.HostFeePercent, "isCustomFee": c.IsCustomFee()},
			NewData:          map[string]any{"hostFeePercent": hostFeePercent, "isCustomFee": isCustomFee},
			Data:             map[string]any{"updatedAccountIds": touched},
		}); err != nil {
			return err
		}
		result, err = reloadCollective(tx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Collective](touched...); err != nil {
		return nil, err
	}
	return result, nil
}

// CheckFreezeEligibility rejects accounts that cannot be frozen directly.
func CheckFreezeEligibility(c *Collective) error {
	if c.Type.IsChildType() || c.IsChild() {
		return utils.NewValidationFailed("Events and projects cannot be frozen directly, freeze their parent account instead")
	}
	if c.Type != CollectiveTypeCollective && c.Type != CollectiveTypeFund {
		return utils.NewValidationFailed("Only collectives and funds can be frozen")
	}
	return nil
}

// SetCollectiveFreezeStatus freezes or unfreezes an account and its children.
func SetCollectiveFreezeStatus(ctx context.Context, id int, action AccountFreezeAction, message string) (*Collective, error) {
	db := config.GetDB()
	var result *Collective
	var touched []int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := LockCollective(tx, id)
		if err != nil {
			return err
		}
		switch action {
		case AccountFreezeActionFreeze:
			if c.IsFrozen() {
				return utils.NewValidationFailed("This account is already frozen")
			}
			touched, err = freezeCollectiveTx(tx, c, message)
		case AccountFreezeActionUnfreeze:
			if !c.IsFrozen() {
				return utils.NewValidationFailed("This account is not frozen")
			}
			touched, err = unfreezeCollectiveTx(tx, c, message)
		default:
			return utils.NewBadRequest("Unknown freeze action %q", action)
		}
		if err != nil {
			return err
		}
		result, err = reloadCollective(tx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Collective](touched...); err != nil {
		return nil, err
	}
	return result, nil
}

// freezeCollectiveTx expects c to be locked by the caller.
func freezeCollectiveTx(tx *gorm.DB, c *Collective, message string) ([]int, error) {
	if err := CheckFreezeEligibility(c); err != nil {
		return nil, err
	}
	children, err := childrenOf(tx, c.ID)
	if err != nil {
		return nil, err
	}
	accounts := append([]Collective{*c}, children...)
	ids := collectiveIds(accounts)
	for i := range accounts {
		data := accounts[i].DataMap()
		utils.SetPath(data, "features.ALL", "DISABLED")
		dataJSON, err := toJSON(data)
		if err != nil {
			return nil, err
		}
		if err := tx.Model(&accounts[i]).Update("data", dataJSON).Error; err != nil {
			return nil, err
		}
	}
	if err := pauseActiveOrders(tx, ids); err != nil {
		return nil, err
	}
	_, err = createActivity(tx, NewActivity{
		Type:             ActivityCollectiveFrozen,
		CollectiveId:     &c.ID,
		HostCollectiveId: c.HostCollectiveId,
		Data:             map[string]any{"message": message, "accountIds": ids},
	})
	return ids, err
}

func unfreezeCollectiveTx(tx *gorm.DB, c *Collective, message string) ([]int, error) {
	if err := CheckFreezeEligibility(c); err != nil {
		return nil, err
	}
	children, err := childrenOf(tx, c.ID)
	if err != nil {
		return nil, err
	}
	accounts := append([]Collective{*c}, children...)
	ids := collectiveIds(accounts)
	for i := range accounts {
		data := accounts[i].DataMap()
		utils.SetPath(data, "features.ALL", nil)
		dataJSON, err := toJSON(data)
		if err != nil {
			return nil, err
		}
		if err := tx.Model(&accounts[i]).Update("data", dataJSON).Error; err != nil {
			return nil, err
		}
	}
	if err := resumePausedOrders(tx, ids); err != nil {
		return nil, err
	}
	_, err = createActivity(tx, NewActivity{
		Type:             ActivityCollectiveUnfrozen,
		CollectiveId:     &c.ID,
		HostCollectiveId: c.HostCollectiveId,
		Data:             map[string]any{"message": message, "accountIds": ids},
	})
	return ids, err
}

// DeleteCollective soft-deletes an account, its children and everything
// attached to them. Accounts with ledger history cannot be deleted.
func DeleteCollective(ctx context.Context, id int) (*Collective, error) {
	db := config.GetDB()
	var deleted *Collective
	var ids []int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := LockCollective(tx, id)
		if err != nil {
			return err
		}
		children, err := childrenOf(tx, c.ID)
		if err != nil {
			return err
		}
		ids = append([]int{c.ID}, collectiveIds(children)...)

		count, err := countTransactions(tx, ids...)
		if err != nil {
			return err
		}
		if count > 0 {
			return utils.NewValidationFailed("Cannot delete an account with transactions")
		}
		if c.IsHostAccount {
			hosted, err := hostedAccountsOf(tx, c.ID)
			if err != nil {
				return err
			}
			if len(hosted) > 0 {
				return utils.NewValidationFailed("Cannot delete a host that still hosts accounts")
			}
		}

		// free the slugs before the soft delete
		suffix := fmt.Sprint(time.Now().UnixMilli())
		if err := tx.Model(&Collective{}).Where("id IN ?", ids).
			Update("slug", gorm.Expr("CONCAT(slug, '-', ?)", suffix)).Error; err != nil {
			return err
		}
		if err := tx.Where("collective_id IN ? OR member_collective_id IN ?", ids, ids).Delete(&Member{}).Error; err != nil {
			return err
		}
		if err := tx.Where("collective_id IN ?", ids).Delete(&PaymentMethod{}).Error; err != nil {
			return err
		}
		if err := tx.Where("collective_id IN ?", ids).Delete(&Tier{}).Error; err != nil {
			return err
		}
		if c.IsIndividual() {
			if err := tx.Where("collective_id = ?", c.ID).Delete(&User{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("id IN ?", ids).Delete(&Collective{}).Error; err != nil {
			return err
		}
		if _, err := createActivity(tx, NewActivity{
			Type:             ActivityCollectiveDeleted,
			CollectiveId:     &c.ID,
			HostCollectiveId: c.HostCollectiveId,
			PreviousData:     map[string]any{"slug": c.Slug, "name": c.Name, "type": c.Type},
			Data:             map[string]any{"accountIds": ids},
		}); err != nil {
			return err
		}
		deleted = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Collective](ids...); err != nil {
		return nil, err
	}
	return deleted, nil
}

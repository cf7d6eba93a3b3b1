package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserTwoFactorMethod is an enrolled second factor of a user.
// Data holds the method credential:
//
//	totp:        {"secret": <encrypted base32 secret>}
//	yubikey_otp: {"yubikeyDeviceId": <first 12 modhex chars>}
//	webauthn:    {"credential": <webauthn.Credential>}
type UserTwoFactorMethod struct {
	ID        int             `gorm:"primary_key" json:"id"`
	UserId    int             `gorm:"index;not null" json:"user_id"`
	Method    TwoFactorMethod `gorm:"size:20;not null" json:"method"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	Data      datatypes.JSON  `json:"data"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"deleted_at"`
}

func (m UserTwoFactorMethod) GetId() int {
	return m.ID
}

func (m UserTwoFactorMethod) DataMap() map[string]any {
	return jsonMap(m.Data)
}

// DecodeData unmarshals the credential data into dest.
func (m UserTwoFactorMethod) DecodeData(dest any) error {
	if len(m.Data) == 0 {
		return errors.New("two factor method has no data")
	}
	return json.Unmarshal(m.Data, dest)
}

func ListTwoFactorMethods(ctx context.Context, userId int, methods ...TwoFactorMethod) ([]*UserTwoFactorMethod, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("user_id = ?", userId)
	if len(methods) > 0 {
		dbCtx = dbCtx.Where("method IN ?", methods)
	}
	var results []*UserTwoFactorMethod
	err := dbCtx.Order("id").Find(&results).Error
	return results, err
}

func CountTwoFactorMethods(ctx context.Context, userId int) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&UserTwoFactorMethod{}).Where("user_id = ?", userId).Count(&count).Error
	return count, err
}

// (may return NotFound)
func GetUserTwoFactorMethod(ctx context.Context, id int) (*UserTwoFactorMethod, error) {
	db := config.GetDB()
	var m UserTwoFactorMethod
	if err := db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFound("Two factor method not found")
		}
		return nil, err
	}
	return &m, nil
}

type NewTwoFactorMethod struct {
	UserId int
	Method TwoFactorMethod
	Name   string
	Data   any
	// bcrypt hashes stored when the user has no recovery codes yet
	RecoveryCodeHashes []string
	// method data the new one must not duplicate, e.g. a yubikey device id
	UniqueDataKey   string
	UniqueDataValue string
}

// AddTwoFactorMethod stores an enrolled method. It returns whether the
// recovery code hashes were stored, which only happens when the user had none.
func AddTwoFactorMethod(ctx context.Context, input NewTwoFactorMethod) (*UserTwoFactorMethod, bool, error) {
	if !input.Method.IsEnrollable() {
		return nil, false, utils.NewValidationFailed("Unsupported two factor method %q", input.Method)
	}
	dataJSON, err := toJSON(input.Data)
	if err != nil {
		return nil, false, err
	}
	db := config.GetDB()
	method := UserTwoFactorMethod{
		UserId: input.UserId,
		Method: input.Method,
		Name:   input.Name,
		Data:   dataJSON,
	}
	codesStored := false
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// user row lock serializes enrollments of the same user
		user, err := lockUser(tx, input.UserId)
		if err != nil {
			return err
		}
		var existing []UserTwoFactorMethod
		if err := tx.Where("user_id = ? AND method = ?", user.ID, input.Method).Find(&existing).Error; err != nil {
			return err
		}
		if input.Method == TwoFactorMethodTOTP && len(existing) > 0 {
			return utils.NewValidationFailed("This account already has a TOTP two factor method")
		}
		if input.UniqueDataKey != "" {
			for _, e := range existing {
				if v, ok := e.DataMap()[input.UniqueDataKey]; ok && v == input.UniqueDataValue {
					return utils.NewValidationFailed("This device is already registered")
				}
			}
		}
		if method.Name == "" {
			method.Name = defaultTwoFactorMethodName(input.Method, len(existing))
		}
		if err := tx.Create(&method).Error; err != nil {
			return err
		}
		if !user.HasRecoveryCodes() && len(input.RecoveryCodeHashes) > 0 {
			if err := setRecoveryCodesTx(tx, user.ID, input.RecoveryCodeHashes); err != nil {
				return err
			}
			codesStored = true
		}
		_, err = createActivity(tx, NewActivity{
			Type:         ActivityTwoFactorMethodAdded,
			CollectiveId: &user.CollectiveId,
			Data:         map[string]any{"method": input.Method, "userTwoFactorMethodId": method.ID},
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if err := utils.RemoveRedisItem[User](input.UserId); err != nil {
		return nil, false, err
	}
	return &method, codesStored, nil
}

func defaultTwoFactorMethodName(method TwoFactorMethod, existing int) string {
	names := map[TwoFactorMethod]string{
		TwoFactorMethodTOTP:       "Authenticator",
		TwoFactorMethodYubikeyOTP: "Yubikey",
		TwoFactorMethodWebAuthn:   "Security key",
	}
	name := names[method]
	if existing > 0 {
		name = name + " " + time.Now().UTC().Format("2006-01-02")
	}
	return name
}

// RemoveTwoFactorMethods deletes methods of the user in one transaction and
// clears the recovery codes once no method remains. Nothing is deleted if
// any id is unknown. It returns the remaining count.
func RemoveTwoFactorMethods(ctx context.Context, userId int, methodIds []int) (int64, error) {
	ids := utils.UniqueSlice(methodIds)
	if len(ids) == 0 {
		return 0, utils.NewBadRequest("No two factor method to remove")
	}
	db := config.GetDB()
	var remaining int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userId)
		if err != nil {
			return err
		}
		var methods []UserTwoFactorMethod
		if err := tx.Where("id IN ? AND user_id = ?", ids, user.ID).Find(&methods).Error; err != nil {
			return err
		}
		if len(methods) != len(ids) {
			return utils.NewNotFound("Two factor method not found")
		}
		if err := tx.Delete(&methods).Error; err != nil {
			return err
		}
		if err := tx.Model(&UserTwoFactorMethod{}).Where("user_id = ?", user.ID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			if err := setRecoveryCodesTx(tx, user.ID, nil); err != nil {
				return err
			}
		}
		for _, method := range methods {
			if _, err := createActivity(tx, NewActivity{
				Type:         ActivityTwoFactorMethodDeleted,
				CollectiveId: &user.CollectiveId,
				Data:         map[string]any{"method": method.Method, "userTwoFactorMethodId": method.ID, "remaining": remaining},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := utils.RemoveRedisItem[User](userId); err != nil {
		return remaining, err
	}
	return remaining, nil
}

// RenameTwoFactorMethod lets the owner rename one of their methods.
func RenameTwoFactorMethod(ctx context.Context, userId int, methodId int, name string) (*UserTwoFactorMethod, error) {
	if name == "" || len(name) > 255 {
		return nil, utils.NewValidationFailed("Name must be between 1 and 255 characters")
	}
	db := config.GetDB()
	var method UserTwoFactorMethod
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(lockingUpdate).Where("id = ?", methodId).Take(&method).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFound("Two factor method not found")
			}
			return err
		}
		if method.UserId != userId {
			return utils.NewForbidden("You are not allowed to edit this two factor method")
		}
		previous := method.Name
		if err := tx.Model(&method).Update("name", name).Error; err != nil {
			return err
		}
		method.Name = name
		var user User
		if err := tx.First(&user, userId).Error; err != nil {
			return err
		}
		_, err := createActivity(tx, NewActivity{
			Type:         ActivityTwoFactorMethodEdited,
			CollectiveId: &user.CollectiveId,
			PreviousData: map[string]any{"name": previous},
			NewData:      map[string]any{"name": name},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &method, nil
}

// UpdateTwoFactorMethodData replaces the stored credential, e.g. the
// WebAuthn sign counter after an assertion.
func UpdateTwoFactorMethodData(ctx context.Context, methodId int, data any) error {
	dataJSON, err := toJSON(data)
	if err != nil {
		return err
	}
	db := config.GetDB()
	return db.WithContext(ctx).Model(&UserTwoFactorMethod{}).Where("id = ?", methodId).Update("data", dataJSON).Error
}

package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// API scopes a personal token may be restricted to.
const (
	ScopeAccount      = "account"
	ScopeHost         = "host"
	ScopeOrders       = "orders"
	ScopeTransactions = "transactions"
)

var AllScopes = []string{ScopeAccount, ScopeHost, ScopeOrders, ScopeTransactions}

const personalTokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type PersonalToken struct {
	ID        int            `gorm:"primary_key" json:"id"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	TokenHash string         `gorm:"size:64;not null;unique" json:"-"`
	UserId    int            `gorm:"index;not null" json:"user_id"`
	Scope     datatypes.JSON `json:"scope"`
	ExpiresAt *time.Time     `json:"expires_at"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`

	// clear token, only set on creation
	Token string `gorm:"-" json:"-"`
}

type NewPersonalToken struct {
	Name      string     `json:"name" validate:"required,max=255"`
	Scope     []string   `json:"scope" validate:"dive,oneof=account host orders transactions"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (t PersonalToken) GetId() int {
	return t.ID
}

// Scopes returns nil when the token is not restricted.
func (t PersonalToken) Scopes() []string {
	if len(t.Scope) == 0 {
		return nil
	}
	var scopes []string
	if err := json.Unmarshal(t.Scope, &scopes); err != nil {
		return nil
	}
	return scopes
}

func (t PersonalToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

func HashPersonalToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreatePersonalToken stores the hash of a new random token; the clear
// token is only returned here.
func CreatePersonalToken(ctx context.Context, userId int, input *NewPersonalToken) (*PersonalToken, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(time.Now()) {
		return nil, utils.NewValidationFailed("Expiration date must be in the future")
	}
	clear, err := utils.RandomString(40, personalTokenAlphabet)
	if err != nil {
		return nil, err
	}
	token := PersonalToken{
		Name:      input.Name,
		TokenHash: HashPersonalToken(clear),
		UserId:    userId,
		ExpiresAt: input.ExpiresAt,
	}
	if len(input.Scope) > 0 {
		if token.Scope, err = toJSON(utils.UniqueSlice(input.Scope)); err != nil {
			return nil, err
		}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, userId).Error; err != nil {
			return err
		}
		if err := tx.Create(&token).Error; err != nil {
			return err
		}
		_, err := createActivity(tx, NewActivity{
			Type:         ActivityPersonalTokenCreated,
			CollectiveId: &user.CollectiveId,
			Data:         map[string]any{"personalTokenId": token.ID, "name": token.Name, "scope": input.Scope},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	token.Token = clear
	return &token, nil
}

// FindPersonalToken looks a token up by its clear value. Expired tokens
// are not found.
func FindPersonalToken(ctx context.Context, clear string) (*PersonalToken, error) {
	db := config.GetDB()
	var token PersonalToken
	err := db.WithContext(ctx).Where("token_hash = ?", HashPersonalToken(clear)).Take(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if token.IsExpired(time.Now()) {
		return nil, utils.ErrorRecordNotFound
	}
	return &token, nil
}

func ListPersonalTokens(ctx context.Context, userId int) ([]*PersonalToken, error) {
	db := config.GetDB()
	var results []*PersonalToken
	err := db.WithContext(ctx).Where("user_id = ?", userId).Order("id").Find(&results).Error
	return results, err
}

// ExpirePersonalTokens soft-deletes the tokens past their expiration date.
func ExpirePersonalTokens(ctx context.Context, now time.Time) (int64, error) {
	db := config.GetDB()
	result := db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", now).Delete(&PersonalToken{})
	return result.RowsAffected, result.Error
}

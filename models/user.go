package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type User struct {
	ID                         int            `gorm:"primary_key" json:"id"`
	Email                      string         `gorm:"size:255;not null;unique" json:"email"`
	CollectiveId               int            `gorm:"index;not null" json:"collective_id"`
	PasswordHash               *string        `gorm:"size:255" json:"password_hash"`
	TwoFactorAuthRecoveryCodes datatypes.JSON `json:"two_factor_auth_recovery_codes"`
	LastLoginAt                *time.Time     `json:"last_login_at"`
	CreatedAt                  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt                  gorm.DeletedAt `gorm:"index" json:"deleted_at"`

	// collective ids administered by the user, loaded on first use
	adminOf map[int]bool
}

type NewUser struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Name     string `json:"name" validate:"required,max=255"`
	Password string `json:"password" validate:"omitempty,min=8"`
}

type LoginInfo struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

/*
caches:
	User:$id
	RevokedSession:$sessionId
*/

func (u User) GetId() int {
	return u.ID
}

func (u User) RemoveInstanceRedis() error {
	return utils.RemoveRedisItem[User](u.ID)
}

type currentUserKey struct{}

// WithCurrentUser keeps the authenticated user for the rest of the request.
func WithCurrentUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, currentUserKey{}, user)
}

// CurrentUser returns the authenticated user of the request,
// loading it when the scope directive did not run.
func CurrentUser(ctx context.Context) (*User, error) {
	if user, ok := ctx.Value(currentUserKey{}).(*User); ok && user != nil {
		return user, nil
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.NewUnauthorized("You need to be logged in")
	}
	user, err := GetUser(ctx, userId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewUnauthorized("You need to be logged in")
		}
		return nil, err
	}
	return user, nil
}

// (may return RecordNotFound error)
func GetUser(ctx context.Context, id int) (*User, error) {
	return GetResource[User](ctx, id)
}

func GetUserByCollectiveId(ctx context.Context, collectiveId int) (*User, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("collective_id = ?", collectiveId).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *User) loadMemberships(ctx context.Context) error {
	if u.adminOf != nil {
		return nil
	}
	db := config.GetDB()
	var ids []int
	if err := db.WithContext(ctx).Model(&Member{}).
		Where("member_collective_id = ? AND role = ?", u.CollectiveId, MemberRoleAdmin).
		Pluck("collective_id", &ids).Error; err != nil {
		return err
	}
	u.adminOf = map[int]bool{u.CollectiveId: true}
	for _, id := range ids {
		u.adminOf[id] = true
	}
	return nil
}

func (u *User) isAdminOfId(ctx context.Context, collectiveId int) (bool, error) {
	if err := u.loadMemberships(ctx); err != nil {
		return false, err
	}
	return u.adminOf[collectiveId], nil
}

// IsAdminOf is true for the user's own account and for accounts (or their
// parent) the user administers.
func (u *User) IsAdminOf(ctx context.Context, c *Collective) (bool, error) {
	if c == nil {
		return false, nil
	}
	ok, err := u.isAdminOfId(ctx, c.ID)
	if err != nil || ok {
		return ok, err
	}
	if c.ParentCollectiveId != nil {
		return u.isAdminOfId(ctx, *c.ParentCollectiveId)
	}
	return false, nil
}

// IsAdminOfHost is true when the user administers the fiscal host of c.
func (u *User) IsAdminOfHost(ctx context.Context, c *Collective) (bool, error) {
	if c == nil || c.HostCollectiveId == nil {
		return false, nil
	}
	return u.isAdminOfId(ctx, *c.HostCollectiveId)
}

// IsRoot is true for the admins of the platform account. It also loads the
// memberships, later IsAdminOf calls only read them.
func (u *User) IsRoot(ctx context.Context) (bool, error) {
	if err := u.loadMemberships(ctx); err != nil {
		return false, err
	}
	platformId := config.GetSettings().Platform.CollectiveId
	if platformId == 0 {
		return false, nil
	}
	return u.adminOf[platformId], nil
}

func (u *User) AdministeredCollectiveIds(ctx context.Context) ([]int, error) {
	if err := u.loadMemberships(ctx); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(u.adminOf))
	for id := range u.adminOf {
		ids = append(ids, id)
	}
	return ids, nil
}

// RecoveryCodeHashes returns the stored bcrypt hashes, nil when none.
func (u User) RecoveryCodeHashes() []string {
	if len(u.TwoFactorAuthRecoveryCodes) == 0 {
		return nil
	}
	var hashes []string
	if err := json.Unmarshal(u.TwoFactorAuthRecoveryCodes, &hashes); err != nil {
		return nil
	}
	return hashes
}

func (u User) HasRecoveryCodes() bool {
	return len(u.RecoveryCodeHashes()) > 0
}

// setRecoveryCodesTx stores the hashes, an empty list clears the column.
func setRecoveryCodesTx(tx *gorm.DB, userId int, hashes []string) error {
	var value any
	if len(hashes) > 0 {
		b, err := json.Marshal(hashes)
		if err != nil {
			return err
		}
		value = datatypes.JSON(b)
	}
	return tx.Model(&User{}).Where("id = ?", userId).Update("two_factor_auth_recovery_codes", value).Error
}

func lockUser(tx *gorm.DB, id int) (*User, error) {
	var user User
	if err := tx.Clauses(lockingUpdate).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFound("User not found")
		}
		return nil, err
	}
	return &user, nil
}

// ReplaceRecoveryCodes stores new hashes for the user.
func ReplaceRecoveryCodes(ctx context.Context, userId int, hashes []string) error {
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userId)
		if err != nil {
			return err
		}
		if err := setRecoveryCodesTx(tx, user.ID, hashes); err != nil {
			return err
		}
		_, err = createActivity(tx, NewActivity{
			Type:         ActivityTwoFactorCodesRegenerated,
			CollectiveId: &user.CollectiveId,
		})
		return err
	})
	if err != nil {
		return err
	}
	return utils.RemoveRedisItem[User](userId)
}

// ConsumeRecoveryCode removes the matching code. It reports false when no
// stored code matches.
func ConsumeRecoveryCode(ctx context.Context, userId int, code string) (bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	db := config.GetDB()
	matched := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userId)
		if err != nil {
			return err
		}
		hashes := user.RecoveryCodeHashes()
		idx := utils.MatchHashedSecret(hashes, code)
		if idx < 0 {
			return nil
		}
		matched = true
		remaining := append(hashes[:idx:idx], hashes[idx+1:]...)
		return setRecoveryCodesTx(tx, user.ID, remaining)
	})
	if err != nil {
		return false, err
	}
	if matched {
		if err := utils.RemoveRedisItem[User](userId); err != nil {
			return true, err
		}
	}
	return matched, nil
}

// CreateUser creates a user with its individual account.
func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := generateSlug(tx, input.Name)
		if err != nil {
			return err
		}
		collective := Collective{
			Slug:     slug,
			Name:     input.Name,
			Type:     CollectiveTypeUser,
			Currency: config.GetSettings().Platform.DefaultCurrency,
			IsActive: true,
		}
		if err := tx.Create(&collective).Error; err != nil {
			return err
		}
		user = User{Email: email, CollectiveId: collective.ID}
		if input.Password != "" {
			hashed, err := utils.HashPassword(input.Password)
			if err != nil {
				return err
			}
			user.PasswordHash = utils.Ptr(string(hashed))
		}
		if err := tx.Create(&user).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return utils.NewValidationFailed("An account already exists for %s", email)
			}
			return err
		}
		return tx.Model(&collective).Update("created_by_user_id", user.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login checks the credentials and issues a session token.
func Login(ctx context.Context, email string, password string) (*LoginInfo, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Take(&user).Error
	if err != nil || user.PasswordHash == nil {
		return nil, utils.NewUnauthorized("Invalid email or password")
	}
	if err := utils.ComparePassword(*user.PasswordHash, password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, utils.NewUnauthorized("Invalid email or password")
		}
		return nil, err
	}

	s := config.GetSettings().Session
	token, err := utils.JwtGenerate([]byte(s.Secret), user.ID, utils.TokenScopeSession, s.TokenLifespan)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		return nil, err
	}
	user.LastLoginAt = &now
	return &LoginInfo{Token: token, User: &user}, nil
}

// Logout revokes the session until its token would have expired.
func Logout(ctx context.Context) (bool, error) {
	sessionId, ok := utils.GetSessionIdFromContext(ctx)
	if !ok || sessionId == "" {
		return false, utils.NewUnauthorized("You need to be logged in")
	}
	ttl := config.GetSettings().Session.TokenLifespan
	if err := config.SetRedisValue(revokedSessionKey(sessionId), "1", ttl); err != nil {
		return false, err
	}
	return true, nil
}

func revokedSessionKey(sessionId string) string {
	return fmt.Sprintf("RevokedSession:%s", sessionId)
}

func IsSessionRevoked(sessionId string) (bool, error) {
	_, exists, err := config.GetRedisValue(revokedSessionKey(sessionId))
	return exists, err
}

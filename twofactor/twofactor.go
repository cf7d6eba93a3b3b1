// Package twofactor enrolls and checks second factors: TOTP apps, Yubikey
// OTPs, WebAuthn keys and recovery codes.
package twofactor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
)

// HeaderName carries "<type> <code>", e.g. "totp 123456".
const HeaderName = "x-two-factor-authentication"

/*
caches:
	TwoFactorSession:$sessionId
*/

const defaultSessionValidity = time.Hour

// Token is a parsed 2FA header.
type Token struct {
	Method models.TwoFactorMethod
	Code   string
}

var headerMethods = map[string]models.TwoFactorMethod{
	"totp":          models.TwoFactorMethodTOTP,
	"yubikey_otp":   models.TwoFactorMethodYubikeyOTP,
	"webauthn":      models.TwoFactorMethodWebAuthn,
	"recovery_code": models.TwoFactorMethodRecoveryCode,
}

// ParseHeader splits the 2FA header value into its method and code.
func ParseHeader(value string) (*Token, error) {
	parts := strings.Fields(value)
	if len(parts) != 2 {
		return nil, utils.NewBadRequest("Invalid %s header, expected \"<type> <code>\"", HeaderName)
	}
	method, ok := headerMethods[strings.ToLower(parts[0])]
	if !ok {
		return nil, utils.NewBadRequest("Unsupported two factor authentication type %q", parts[0])
	}
	return &Token{Method: method, Code: parts[1]}, nil
}

func sessionKey(sessionId string) string {
	return fmt.Sprintf("TwoFactorSession:%s", sessionId)
}

func sessionValidity() time.Duration {
	if d := config.GetSettings().TwoFactor.SessionValidity; d > 0 {
		return d
	}
	return defaultSessionValidity
}

func isSessionValidated(ctx context.Context) (bool, error) {
	sessionId, ok := utils.GetSessionIdFromContext(ctx)
	if !ok || sessionId == "" {
		return false, nil
	}
	_, exists, err := config.GetRedisValue(sessionKey(sessionId))
	return exists, err
}

func rememberSession(ctx context.Context) error {
	sessionId, ok := utils.GetSessionIdFromContext(ctx)
	if !ok || sessionId == "" {
		return nil
	}
	return config.SetRedisValue(sessionKey(sessionId), time.Now().UTC().Format(time.RFC3339), sessionValidity())
}

// ValidateToken checks a code against the user's enrolled methods. A valid
// recovery code is consumed.
func ValidateToken(ctx context.Context, user *models.User, token *Token) error {
	var (
		ok  bool
		err error
	)
	switch token.Method {
	case models.TwoFactorMethodTOTP:
		ok, err = validateTOTP(ctx, user, token.Code)
	case models.TwoFactorMethodYubikeyOTP:
		ok, err = validateYubikey(ctx, user, token.Code)
	case models.TwoFactorMethodWebAuthn:
		ok, err = validateWebAuthn(ctx, user, token.Code)
	case models.TwoFactorMethodRecoveryCode:
		ok, err = models.ConsumeRecoveryCode(ctx, user.ID, token.Code)
	default:
		return utils.NewBadRequest("Unsupported two factor authentication type %q", token.Method)
	}
	if err != nil {
		return err
	}
	if !ok {
		return utils.NewUnauthorized("Two-factor authentication code failed. Please try again")
	}
	return nil
}

type ValidateOptions struct {
	// ignore a validation remembered for the session
	AlwaysAskForToken bool
	// fail when the user has no method enrolled
	RequireTwoFactorAuthEnabled bool
}

// ValidateRequest checks the 2FA header of the request when the user has
// 2FA enabled. It reports whether a second factor was verified.
func ValidateRequest(ctx context.Context, user *models.User, opts ValidateOptions) (bool, error) {
	count, err := models.CountTwoFactorMethods(ctx, user.ID)
	if err != nil {
		return false, err
	}
	if count == 0 {
		if opts.RequireTwoFactorAuthEnabled {
			return false, utils.NewForbidden("Two factor authentication must be configured")
		}
		return false, nil
	}

	if !opts.AlwaysAskForToken {
		validated, err := isSessionValidated(ctx)
		if err != nil {
			return false, err
		}
		if validated {
			return true, nil
		}
	}

	header, ok := utils.GetTwoFactorHeaderFromContext(ctx)
	if !ok || strings.TrimSpace(header) == "" {
		return false, utils.NewTwoFactorRequired("Two-factor authentication required")
	}
	token, err := ParseHeader(header)
	if err != nil {
		return false, err
	}
	if err := ValidateToken(ctx, user, token); err != nil {
		return false, err
	}
	if err := rememberSession(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// EnforceForAccount asks admins of accounts under a REQUIRE_2FA_FOR_ADMINS
// policy (on the account, its parent or its host) for a second factor.
func EnforceForAccount(ctx context.Context, user *models.User, account *models.Collective, opts ValidateOptions) (bool, error) {
	required, err := models.RequiresTwoFactorForAdmins(ctx, account)
	if err != nil {
		return false, err
	}
	if !required {
		return false, nil
	}
	opts.RequireTwoFactorAuthEnabled = true
	return ValidateRequest(ctx, user, opts)
}

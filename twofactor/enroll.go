package twofactor

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
)

// Enrollment is the outcome of adding a method. RecoveryCodes are only set
// on the first enrollment of the user and are never shown again.
type Enrollment struct {
	Method        *models.UserTwoFactorMethod
	RecoveryCodes []string
}

// EnrollInput is a proof of possession of the new factor.
type EnrollInput struct {
	Method models.TwoFactorMethod
	// TOTP secret, Yubikey OTP or base64 WebAuthn registration response
	Token string
	// current TOTP code, checked when given
	Code *string
	Name string
}

func (input EnrollInput) newMethod(user *models.User) (*models.NewTwoFactorMethod, error) {
	m := &models.NewTwoFactorMethod{
		UserId: user.ID,
		Method: input.Method,
		Name:   input.Name,
	}
	switch input.Method {
	case models.TwoFactorMethodTOTP:
		if !IsValidTOTPSecret(input.Token) {
			return nil, utils.NewValidationFailed("Invalid 2FA token")
		}
		if input.Code != nil && !ValidateTOTPCode(input.Token, *input.Code, time.Now()) {
			return nil, utils.NewValidationFailed("Two-factor authentication code failed. Please try again")
		}
		data, err := encryptTOTPSecret(input.Token)
		if err != nil {
			return nil, err
		}
		m.Data = data
	case models.TwoFactorMethodYubikeyOTP:
		if !IsValidYubikeyOTP(input.Token) {
			return nil, utils.NewValidationFailed("Invalid Yubikey OTP")
		}
		ok, err := VerifyYubikeyOTP(input.Token)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, utils.NewValidationFailed("Invalid Yubikey OTP")
		}
		deviceId := YubikeyDeviceId(input.Token)
		m.Data = yubikeyData{YubikeyDeviceId: deviceId}
		m.UniqueDataKey, m.UniqueDataValue = "yubikeyDeviceId", deviceId
	case models.TwoFactorMethodWebAuthn:
		return nil, utils.NewBadRequest("WebAuthn devices are registered with a verified registration response")
	default:
		return nil, utils.NewValidationFailed("Unsupported two factor method %q", input.Method)
	}
	return m, nil
}

// Enroll verifies the proof and stores the method. Recovery codes are
// returned only when the user had none before.
func Enroll(ctx context.Context, user *models.User, input EnrollInput) (*Enrollment, error) {
	var (
		m   *models.NewTwoFactorMethod
		err error
	)
	if input.Method == models.TwoFactorMethodWebAuthn {
		data, verr := verifyRegistration(ctx, user, input.Token)
		if verr != nil {
			return nil, verr
		}
		m = &models.NewTwoFactorMethod{
			UserId:          user.ID,
			Method:          input.Method,
			Name:            input.Name,
			Data:            data,
			UniqueDataKey:   "credentialId",
			UniqueDataValue: data.CredentialId,
		}
	} else if m, err = input.newMethod(user); err != nil {
		return nil, err
	}

	// stored only if the user has no codes, checked under the user lock
	codes, hashes, err := newRecoveryCodes()
	if err != nil {
		return nil, err
	}
	m.RecoveryCodeHashes = hashes
	method, codesStored, err := models.AddTwoFactorMethod(ctx, *m)
	if err != nil {
		return nil, err
	}
	result := &Enrollment{Method: method}
	if codesStored {
		result.RecoveryCodes = codes
	}
	return result, nil
}

// RegenerateRecoveryCodes replaces the codes of the user and returns the
// new ones in clear.
func RegenerateRecoveryCodes(ctx context.Context, user *models.User) ([]string, error) {
	plain, hashes, err := newRecoveryCodes()
	if err != nil {
		return nil, err
	}
	if err := models.ReplaceRecoveryCodes(ctx, user.ID, hashes); err != nil {
		return nil, err
	}
	return plain, nil
}

package twofactor

import (
	"context"
	"regexp"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// base32 encoding of a 256 bits secret
var totpSecretRegex = regexp.MustCompile(`^[A-Z2-7]{52}$`)

type totpData struct {
	// secretbox sealed base32 secret
	Secret string `json:"secret"`
}

func IsValidTOTPSecret(secret string) bool {
	return totpSecretRegex.MatchString(secret)
}

func secretKey() (*[32]byte, error) {
	return utils.DecodeSecretKey(config.GetSettings().TwoFactor.SecretKey)
}

// ValidateTOTPCode accepts the code of the current period and of the
// periods right before and after it.
func ValidateTOTPCode(secret string, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func encryptTOTPSecret(secret string) (totpData, error) {
	key, err := secretKey()
	if err != nil {
		return totpData{}, err
	}
	sealed, err := utils.Encrypt(key, secret)
	if err != nil {
		return totpData{}, err
	}
	return totpData{Secret: sealed}, nil
}

func decryptTOTPSecret(method *models.UserTwoFactorMethod) (string, error) {
	var data totpData
	if err := method.DecodeData(&data); err != nil {
		return "", err
	}
	key, err := secretKey()
	if err != nil {
		return "", err
	}
	return utils.Decrypt(key, data.Secret)
}

func validateTOTP(ctx context.Context, user *models.User, code string) (bool, error) {
	methods, err := models.ListTwoFactorMethods(ctx, user.ID, models.TwoFactorMethodTOTP)
	if err != nil {
		return false, err
	}
	now := time.Now()
	for _, m := range methods {
		secret, err := decryptTOTPSecret(m)
		if err != nil {
			config.LogErrorCtx(ctx, "twofactor", "validateTOTP", "decryptTOTPSecret", m.ID, err)
			continue
		}
		if ValidateTOTPCode(secret, code, now) {
			return true, nil
		}
	}
	return false, nil
}

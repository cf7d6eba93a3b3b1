package twofactor

import (
	"context"
	"errors"
	"regexp"
	"sync"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"github.com/GeertJohan/yubigo"
)

// modhex OTP: 12 chars public id followed by the encrypted part
var yubikeyOTPRegex = regexp.MustCompile(`^[cbdefghijklnrtuv]{32,48}$`)

const yubikeyDeviceIdLength = 12

type yubikeyData struct {
	YubikeyDeviceId string `json:"yubikeyDeviceId"`
}

// YubikeyVerifier checks an OTP against the Yubico validation servers.
type YubikeyVerifier interface {
	Verify(otp string) (*yubigo.YubiResponse, bool, error)
}

var (
	yubikeyVerifier   YubikeyVerifier
	yubikeyVerifierMu sync.Mutex
)

// SetYubikeyVerifier replaces the Yubico client. Used by tests.
func SetYubikeyVerifier(v YubikeyVerifier) {
	yubikeyVerifierMu.Lock()
	yubikeyVerifier = v
	yubikeyVerifierMu.Unlock()
}

func getYubikeyVerifier() (YubikeyVerifier, error) {
	yubikeyVerifierMu.Lock()
	defer yubikeyVerifierMu.Unlock()
	if yubikeyVerifier != nil {
		return yubikeyVerifier, nil
	}
	s := config.GetSettings().Yubico
	if s.ClientId == "" || s.SecretKey == "" {
		return nil, errors.New("yubico credentials are not configured")
	}
	auth, err := yubigo.NewYubiAuth(s.ClientId, s.SecretKey)
	if err != nil {
		return nil, err
	}
	yubikeyVerifier = auth
	return auth, nil
}

func IsValidYubikeyOTP(otp string) bool {
	return yubikeyOTPRegex.MatchString(otp)
}

// YubikeyDeviceId is the public id of the key that produced otp.
func YubikeyDeviceId(otp string) string {
	if len(otp) < yubikeyDeviceIdLength {
		return ""
	}
	return otp[:yubikeyDeviceIdLength]
}

// VerifyYubikeyOTP validates the OTP remotely.
func VerifyYubikeyOTP(otp string) (bool, error) {
	if !IsValidYubikeyOTP(otp) {
		return false, nil
	}
	verifier, err := getYubikeyVerifier()
	if err != nil {
		return false, err
	}
	_, ok, err := verifier.Verify(otp)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func validateYubikey(ctx context.Context, user *models.User, otp string) (bool, error) {
	if !IsValidYubikeyOTP(otp) {
		return false, nil
	}
	methods, err := models.ListTwoFactorMethods(ctx, user.ID, models.TwoFactorMethodYubikeyOTP)
	if err != nil {
		return false, err
	}
	deviceId := YubikeyDeviceId(otp)
	for _, m := range methods {
		var data yubikeyData
		if err := m.DecodeData(&data); err != nil {
			continue
		}
		if data.YubikeyDeviceId == deviceId {
			return VerifyYubikeyOTP(otp)
		}
	}
	return false, nil
}

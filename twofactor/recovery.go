package twofactor

import (
	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
)

// letters and digits that cannot be mistaken for one another
const recoveryCodeAlphabet = "CDEHKMPRTUWXY012458"

const (
	recoveryCodeLength       = 16
	defaultRecoveryCodeCount = 6
)

func recoveryCodeCount() int {
	if n := config.GetSettings().TwoFactor.RecoveryCodesCount; n > 0 {
		return n
	}
	return defaultRecoveryCodeCount
}

// GenerateRecoveryCodes returns n fresh codes.
func GenerateRecoveryCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	for len(codes) < n {
		code, err := utils.RandomString(recoveryCodeLength, recoveryCodeAlphabet)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// newRecoveryCodes returns plain codes and their bcrypt hashes.
func newRecoveryCodes() ([]string, []string, error) {
	codes, err := GenerateRecoveryCodes(recoveryCodeCount())
	if err != nil {
		return nil, nil, err
	}
	hashes, err := utils.HashSecrets(codes)
	if err != nil {
		return nil, nil, err
	}
	return codes, hashes, nil
}

package twofactor

import (
	"errors"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/GeertJohan/yubigo"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"gorm.io/datatypes"
)

const testTOTPSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXPJBSW"

const testYubikeyOTP = "ccccccjlkgjlhvnivbbfklgertbtfdhilfvdltrthntv"

func useTestSettings(t *testing.T) {
	t.Helper()
	s, err := config.LoadSettings("test")
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	config.SetSettings(s)
}

func TestParseHeader(t *testing.T) {
	cases := map[string]models.TwoFactorMethod{
		"totp 123456":                   models.TwoFactorMethodTOTP,
		"RECOVERY_CODE ABCD":            models.TwoFactorMethodRecoveryCode,
		"yubikey_otp " + testYubikeyOTP: models.TwoFactorMethodYubikeyOTP,
		"  webauthn   eyJ9  ":           models.TwoFactorMethodWebAuthn,
	}
	for header, method := range cases {
		token, err := ParseHeader(header)
		if err != nil {
			t.Fatalf("%q: %v", header, err)
		}
		if token.Method != method {
			t.Fatalf("%q: got %s want %s", header, token.Method, method)
		}
	}

	token, _ := ParseHeader("totp 654321")
	if token.Code != "654321" {
		t.Fatalf("code: got %q", token.Code)
	}

	for _, header := range []string{"", "totp", "totp 1 2", "sms 123456"} {
		if _, err := ParseHeader(header); !utils.IsErrorCode(err, utils.ErrorCodeBadRequest) {
			t.Fatalf("%q: expected BadRequest, got %v", header, err)
		}
	}
}

func TestGenerateRecoveryCodes(t *testing.T) {
	codes, err := GenerateRecoveryCodes(6)
	if err != nil {
		t.Fatalf("GenerateRecoveryCodes: %v", err)
	}
	if len(codes) != 6 {
		t.Fatalf("expected 6 codes, got %d", len(codes))
	}
	seen := map[string]bool{}
	for _, code := range codes {
		if len(code) != recoveryCodeLength {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		for _, r := range code {
			if !strings.ContainsRune(recoveryCodeAlphabet, r) {
				t.Fatalf("code %q uses %q", code, r)
			}
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}

	hashes, err := utils.HashSecrets(codes[:2])
	if err != nil {
		t.Fatalf("HashSecrets: %v", err)
	}
	if utils.MatchHashedSecret(hashes, codes[1]) != 1 || utils.MatchHashedSecret(hashes, codes[2]) != -1 {
		t.Fatalf("hashed codes should only match their own plain text")
	}
}

func TestTOTPSecretFormat(t *testing.T) {
	if !IsValidTOTPSecret(testTOTPSecret) {
		t.Fatalf("52 base32 characters should be valid")
	}
	for _, s := range []string{"", "JBSWY3DPEHPK3PXP", strings.ToLower(testTOTPSecret), testTOTPSecret + "A", testTOTPSecret[:51] + "1"} {
		if IsValidTOTPSecret(s) {
			t.Fatalf("%q should be rejected", s)
		}
	}
}

func TestValidateTOTPCode(t *testing.T) {
	at := time.Date(2024, time.May, 1, 12, 0, 15, 0, time.UTC)
	code, err := totp.GenerateCodeCustom(testTOTPSecret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom: %v", err)
	}

	for _, offset := range []time.Duration{0, -30 * time.Second, 30 * time.Second} {
		if !ValidateTOTPCode(testTOTPSecret, code, at.Add(offset)) {
			t.Fatalf("code should be accepted at offset %v", offset)
		}
	}
	if !ValidateTOTPCode(testTOTPSecret, " "+code+" ", at) {
		t.Fatalf("surrounding spaces should be ignored")
	}
	if ValidateTOTPCode(testTOTPSecret, code, at.Add(90*time.Second)) {
		t.Fatalf("code should expire after the skew window")
	}
	wrong := []byte(code)
	wrong[0] = '0' + (wrong[0]-'0'+1)%10
	if ValidateTOTPCode(testTOTPSecret, string(wrong), at) {
		t.Fatalf("a wrong code should be rejected")
	}
}

func TestTOTPSecretIsSealed(t *testing.T) {
	useTestSettings(t)

	data, err := encryptTOTPSecret(testTOTPSecret)
	if err != nil {
		t.Fatalf("encryptTOTPSecret: %v", err)
	}
	if data.Secret == "" || strings.Contains(data.Secret, testTOTPSecret) {
		t.Fatalf("stored secret should be sealed, got %q", data.Secret)
	}

	raw, err := utils.MarshalToJSON(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	method := &models.UserTwoFactorMethod{Method: models.TwoFactorMethodTOTP, Data: datatypes.JSON(raw)}
	secret, err := decryptTOTPSecret(method)
	if err != nil {
		t.Fatalf("decryptTOTPSecret: %v", err)
	}
	if secret != testTOTPSecret {
		t.Fatalf("got %q", secret)
	}

	if _, err := decryptTOTPSecret(&models.UserTwoFactorMethod{}); err == nil {
		t.Fatalf("a method without data should fail")
	}
}

func TestYubikeyOTPFormat(t *testing.T) {
	if !IsValidYubikeyOTP(testYubikeyOTP) {
		t.Fatalf("%q should be valid", testYubikeyOTP)
	}
	for _, s := range []string{"", "cccccc", strings.ToUpper(testYubikeyOTP), testYubikeyOTP[:43] + "a"} {
		if IsValidYubikeyOTP(s) {
			t.Fatalf("%q should be rejected", s)
		}
	}
	if got := YubikeyDeviceId(testYubikeyOTP); got != "ccccccjlkgjl" {
		t.Fatalf("device id: got %q", got)
	}
	if YubikeyDeviceId("short") != "" {
		t.Fatalf("short OTP has no device id")
	}
}

type fakeYubikeyVerifier struct {
	ok    bool
	err   error
	calls []string
}

func (f *fakeYubikeyVerifier) Verify(otp string) (*yubigo.YubiResponse, bool, error) {
	f.calls = append(f.calls, otp)
	return nil, f.ok, f.err
}

func TestVerifyYubikeyOTP(t *testing.T) {
	fake := &fakeYubikeyVerifier{ok: true}
	SetYubikeyVerifier(fake)
	t.Cleanup(func() { SetYubikeyVerifier(nil) })

	ok, err := VerifyYubikeyOTP(testYubikeyOTP)
	if err != nil || !ok {
		t.Fatalf("expected a valid OTP, got %v %v", ok, err)
	}

	// malformed OTPs never reach the validation servers
	ok, err = VerifyYubikeyOTP("not-an-otp")
	if err != nil || ok {
		t.Fatalf("malformed OTP: got %v %v", ok, err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected one remote call, got %d", len(fake.calls))
	}

	fake.ok = false
	if ok, _ := VerifyYubikeyOTP(testYubikeyOTP); ok {
		t.Fatalf("a rejected OTP should not verify")
	}

	fake.err = errors.New("yubico unreachable")
	if _, err := VerifyYubikeyOTP(testYubikeyOTP); err == nil {
		t.Fatalf("transport errors should be returned")
	}
}

func TestFirstEnrollmentRecoveryCodes(t *testing.T) {
	useTestSettings(t)

	codes, hashes, err := newRecoveryCodes()
	if err != nil {
		t.Fatalf("newRecoveryCodes: %v", err)
	}
	if len(codes) != 6 || len(hashes) != 6 {
		t.Fatalf("expected six codes and six hashes, got %d and %d", len(codes), len(hashes))
	}
	for i, code := range codes {
		if hashes[i] == code || strings.Contains(hashes[i], code) {
			t.Fatalf("hash %d stores the plain code", i)
		}
		if utils.MatchHashedSecret(hashes, code) != i {
			t.Fatalf("code %d should match its own hash", i)
		}
	}
}

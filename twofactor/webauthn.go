package twofactor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

/*
caches:
	WebAuthnRegistration:$userId
	WebAuthnAuthentication:$userId
*/

type webauthnData struct {
	CredentialId string              `json:"credentialId"`
	Credential   webauthn.Credential `json:"credential"`
}

const defaultChallengeTTL = 5 * time.Minute

var (
	relyingParty   *webauthn.WebAuthn
	relyingPartyMu sync.Mutex
)

func getRelyingParty() (*webauthn.WebAuthn, error) {
	relyingPartyMu.Lock()
	defer relyingPartyMu.Unlock()
	if relyingParty != nil {
		return relyingParty, nil
	}
	s := config.GetSettings().WebAuthn
	rp, err := webauthn.New(&webauthn.Config{
		RPID:          s.RPID,
		RPDisplayName: s.RPName,
		RPOrigins:     s.ExpectedOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn config: %w", err)
	}
	relyingParty = rp
	return rp, nil
}

func challengeTTL() time.Duration {
	if ttl := config.GetSettings().WebAuthn.ChallengeTTL; ttl > 0 {
		return ttl
	}
	return defaultChallengeTTL
}

func registrationSessionKey(userId int) string {
	return fmt.Sprintf("WebAuthnRegistration:%d", userId)
}

func authenticationSessionKey(userId int) string {
	return fmt.Sprintf("WebAuthnAuthentication:%d", userId)
}

// webauthnUser adapts a user and its enrolled keys to the relying party.
type webauthnUser struct {
	user        *models.User
	name        string
	credentials []webauthn.Credential
}

func (u webauthnUser) WebAuthnID() []byte {
	return []byte(strconv.Itoa(u.user.ID))
}

func (u webauthnUser) WebAuthnName() string {
	return u.user.Email
}

func (u webauthnUser) WebAuthnDisplayName() string {
	if u.name != "" {
		return u.name
	}
	return u.user.Email
}

func (u webauthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func loadWebAuthnUser(ctx context.Context, user *models.User) (*webauthnUser, []*models.UserTwoFactorMethod, error) {
	methods, err := models.ListTwoFactorMethods(ctx, user.ID, models.TwoFactorMethodWebAuthn)
	if err != nil {
		return nil, nil, err
	}
	wu := &webauthnUser{user: user}
	if account, err := models.GetCollective(ctx, user.CollectiveId); err == nil {
		wu.name = account.Name
	}
	for _, m := range methods {
		var data webauthnData
		if err := m.DecodeData(&data); err != nil {
			continue
		}
		wu.credentials = append(wu.credentials, data.Credential)
	}
	return wu, methods, nil
}

// decodeWebAuthnPayload accepts standard or URL-safe base64 JSON.
func decodeWebAuthnPayload(token string) ([]byte, error) {
	token = strings.TrimSpace(token)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if raw, err := enc.DecodeString(token); err == nil {
			return raw, nil
		}
	}
	return nil, utils.NewBadRequest("Invalid WebAuthn payload")
}

// CreateRegistrationOptions starts a registration ceremony. Already enrolled
// keys are excluded.
func CreateRegistrationOptions(ctx context.Context, user *models.User) (*protocol.CredentialCreation, error) {
	rp, err := getRelyingParty()
	if err != nil {
		return nil, err
	}
	wu, _, err := loadWebAuthnUser(ctx, user)
	if err != nil {
		return nil, err
	}
	exclusions := make([]protocol.CredentialDescriptor, 0, len(wu.credentials))
	for _, c := range wu.credentials {
		exclusions = append(exclusions, c.Descriptor())
	}
	options, session, err := rp.BeginRegistration(wu, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(registrationSessionKey(user.ID), session, challengeTTL()); err != nil {
		return nil, err
	}
	return options, nil
}

// verifyRegistration checks a base64 registration response against the
// pending ceremony of the user. The ceremony is single use.
func verifyRegistration(ctx context.Context, user *models.User, token string) (*webauthnData, error) {
	rp, err := getRelyingParty()
	if err != nil {
		return nil, err
	}
	var session webauthn.SessionData
	exists, err := config.GetDelRedisObject(registrationSessionKey(user.ID), &session)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, utils.NewValidationFailed("WebAuthn registration expired, please try again")
	}
	raw, err := decodeWebAuthnPayload(token)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(raw))
	if err != nil {
		return nil, utils.NewValidationFailed("Invalid WebAuthn registration response")
	}
	wu, _, err := loadWebAuthnUser(ctx, user)
	if err != nil {
		return nil, err
	}
	credential, err := rp.CreateCredential(wu, session, parsed)
	if err != nil {
		return nil, utils.NewValidationFailed("WebAuthn registration failed")
	}
	return &webauthnData{
		CredentialId: base64.RawURLEncoding.EncodeToString(credential.ID),
		Credential:   *credential,
	}, nil
}

// CreateAuthenticationOptions starts an assertion used as a 2FA code.
func CreateAuthenticationOptions(ctx context.Context, user *models.User) (*protocol.CredentialAssertion, error) {
	rp, err := getRelyingParty()
	if err != nil {
		return nil, err
	}
	wu, _, err := loadWebAuthnUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(wu.credentials) == 0 {
		return nil, utils.NewValidationFailed("No WebAuthn device registered")
	}
	options, session, err := rp.BeginLogin(wu)
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(authenticationSessionKey(user.ID), session, challengeTTL()); err != nil {
		return nil, err
	}
	return options, nil
}

func validateWebAuthn(ctx context.Context, user *models.User, token string) (bool, error) {
	rp, err := getRelyingParty()
	if err != nil {
		return false, err
	}
	var session webauthn.SessionData
	exists, err := config.GetDelRedisObject(authenticationSessionKey(user.ID), &session)
	if err != nil || !exists {
		return false, err
	}
	raw, err := decodeWebAuthnPayload(token)
	if err != nil {
		return false, nil
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(raw))
	if err != nil {
		return false, nil
	}
	wu, methods, err := loadWebAuthnUser(ctx, user)
	if err != nil {
		return false, err
	}
	credential, err := rp.ValidateLogin(wu, session, parsed)
	if err != nil {
		return false, nil
	}
	// keep the sign counter current for clone detection
	credentialId := base64.RawURLEncoding.EncodeToString(credential.ID)
	for _, m := range methods {
		var data webauthnData
		if err := m.DecodeData(&data); err != nil || data.CredentialId != credentialId {
			continue
		}
		data.Credential = *credential
		if err := models.UpdateTwoFactorMethodData(ctx, m.ID, data); err != nil {
			return false, err
		}
		break
	}
	return true, nil
}

package models

import (
	"fmt"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"gorm.io/datatypes"
)

func TestFeeCascadeTargets(t *testing.T) {
	host := Collective{ID: 1, IsHostAccount: true}
	children := []Collective{{ID: 2}, {ID: 3}, {ID: 2}}
	hosted := []Collective{
		{ID: 4, Data: datatypes.JSON(`{"isCustomFee":true}`)},
		{ID: 5},
		{ID: 3},
	}
	if got := fmt.Sprint(feeCascadeTargets(host, children, hosted)); got != "[1 2 3 5]" {
		t.Fatalf("host: got %s", got)
	}

	collective := Collective{ID: 1}
	if got := fmt.Sprint(feeCascadeTargets(collective, children, hosted)); got != "[1 2 3]" {
		t.Fatalf("collective: got %s", got)
	}
}

func TestCheckFreezeEligibility(t *testing.T) {
	parent := 1
	rejected := []*Collective{
		{Type: CollectiveTypeEvent, ParentCollectiveId: &parent},
		{Type: CollectiveTypeCollective, ParentCollectiveId: &parent},
		{Type: CollectiveTypeUser},
		{Type: CollectiveTypeOrganization},
	}
	for _, c := range rejected {
		if err := CheckFreezeEligibility(c); !utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
			t.Fatalf("%s (child=%v) should not be freezable, got %v", c.Type, c.IsChild(), err)
		}
	}
	for _, typ := range []CollectiveType{CollectiveTypeCollective, CollectiveTypeFund} {
		if err := CheckFreezeEligibility(&Collective{Type: typ}); err != nil {
			t.Fatalf("%s should be freezable: %v", typ, err)
		}
	}
}

func TestSettingKeys(t *testing.T) {
	allowed := []string{"features", "features.contactForm", "collectivePage.background.crop", "VAT", "tos"}
	denied := []string{"", "featuresX", "features.", ".features", "features..x", "isHostAccount", "vat"}
	for _, k := range allowed {
		if !IsAllowedSettingKey(k) {
			t.Fatalf("%q should be allowed", k)
		}
	}
	for _, k := range denied {
		if IsAllowedSettingKey(k) {
			t.Fatalf("%q should be denied", k)
		}
	}
	if !IsHostOnlySettingKey("virtualcards.autopause") || !IsHostOnlySettingKey("payoutsTwoFactorAuth") || IsHostOnlySettingKey("tos") {
		t.Fatalf("host only keys")
	}
}

func TestPoliciesValidate(t *testing.T) {
	policies := Policies{CollectiveMinimumAdmins: &MinimumAdminsPolicy{NumberOfAdmins: 2, Applies: MinimumAdminsAppliesAll}}
	if err := policies.Validate(true); err != nil {
		t.Fatalf("valid host policy: %v", err)
	}
	if err := policies.Validate(false); !utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
		t.Fatalf("minimum admins is a host policy, got %v", err)
	}

	tooMany := Policies{CollectiveMinimumAdmins: &MinimumAdminsPolicy{NumberOfAdmins: 11}}
	if err := tooMany.Validate(true); !utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
		t.Fatalf("expected a limit error, got %v", err)
	}

	badApplies := Policies{CollectiveMinimumAdmins: &MinimumAdminsPolicy{NumberOfAdmins: 2, Applies: "SOME"}}
	if err := badApplies.Validate(true); !utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
		t.Fatalf("expected an applies error, got %v", err)
	}

	enabled := true
	if err := (Policies{RequireTwoFactorForAdmins: &enabled}).Validate(false); err != nil {
		t.Fatalf("2FA policy is allowed on any account: %v", err)
	}
}

func TestPoliciesMerge(t *testing.T) {
	enabled := true
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	current := Policies{RequireTwoFactorForAdmins: &enabled}

	merged := current.Merge(Policies{CollectiveMinimumAdmins: &MinimumAdminsPolicy{NumberOfAdmins: 2, Freeze: true}}, now)
	if merged.RequireTwoFactorForAdmins == nil || !*merged.RequireTwoFactorForAdmins {
		t.Fatalf("unrelated policies should be kept")
	}
	m := merged.CollectiveMinimumAdmins
	if m == nil || m.NumberOfAdmins != 2 || !m.Freeze {
		t.Fatalf("minimum admins policy: %+v", m)
	}
	if m.Applies != MinimumAdminsAppliesNew {
		t.Fatalf("applies should default to new collectives, got %q", m.Applies)
	}
	if m.SetAt == nil || !m.SetAt.Equal(now) {
		t.Fatalf("setAt should be stamped")
	}

	removed := merged.Merge(Policies{CollectiveMinimumAdmins: &MinimumAdminsPolicy{NumberOfAdmins: 0}}, now)
	if removed.CollectiveMinimumAdmins != nil {
		t.Fatalf("zero admins should remove the policy")
	}
	if merged.CollectiveMinimumAdmins == nil {
		t.Fatalf("merge should not modify the receiver")
	}
}

func TestParsePolicies(t *testing.T) {
	p := ParsePolicies(datatypes.JSON(`{"REQUIRE_2FA_FOR_ADMINS":true,"COLLECTIVE_MINIMUM_ADMINS":{"numberOfAdmins":3,"applies":"ALL_COLLECTIVES","freeze":true}}`))
	if p.RequireTwoFactorForAdmins == nil || !*p.RequireTwoFactorForAdmins {
		t.Fatalf("2FA policy not parsed")
	}
	if p.CollectiveMinimumAdmins == nil || p.CollectiveMinimumAdmins.NumberOfAdmins != 3 || p.CollectiveMinimumAdmins.Applies != MinimumAdminsAppliesAll {
		t.Fatalf("minimum admins not parsed: %+v", p.CollectiveMinimumAdmins)
	}
	for _, raw := range []string{"", "not json"} {
		if p := ParsePolicies(datatypes.JSON(raw)); p.RequireTwoFactorForAdmins != nil || p.CollectiveMinimumAdmins != nil {
			t.Fatalf("%q should give empty policies", raw)
		}
	}
}

func TestPersonalToken(t *testing.T) {
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	token := PersonalToken{}
	if token.Scopes() != nil {
		t.Fatalf("no scope means unrestricted")
	}
	if token.IsExpired(now) {
		t.Fatalf("a token without expiry never expires")
	}

	past := now.Add(-time.Minute)
	token = PersonalToken{Scope: datatypes.JSON(`["account","orders"]`), ExpiresAt: &past}
	if fmt.Sprint(token.Scopes()) != "[account orders]" {
		t.Fatalf("scopes: %v", token.Scopes())
	}
	if !token.IsExpired(now) || !token.IsExpired(past) {
		t.Fatalf("token should be expired from its expiry time")
	}

	hash := HashPersonalToken("secret-token")
	if len(hash) != 64 || hash != HashPersonalToken("secret-token") || hash == HashPersonalToken("other-token") {
		t.Fatalf("hash should be a stable sha256 hex digest, got %q", hash)
	}
}

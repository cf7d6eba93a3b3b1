package models

import "strings"

// top-level settings keys that editAccountSetting may change,
// nested paths under them are allowed too
var allowedSettingKeys = []string{
	"apply",
	"applyMessage",
	"collectivePage",
	"contributionPolicy",
	"customEmailMessage",
	"disableCustomContributions",
	"disablePublicExpenseSubmission",
	"expensePolicy",
	"expenseTypes",
	"features",
	"feesOnTop",
	"GST",
	"invoice",
	"lang",
	"moderation",
	"payoutsTwoFactorAuth",
	"platformTips",
	"showSetupGuide",
	"tos",
	"VAT",
	"virtualcards",
}

// keys that only the admins of the host may change
var hostOnlySettingKeys = []string{
	"payoutsTwoFactorAuth",
	"virtualcards",
}

func matchesSettingKey(list []string, key string) bool {
	for _, allowed := range list {
		if key == allowed || strings.HasPrefix(key, allowed+".") {
			return true
		}
	}
	return false
}

func IsAllowedSettingKey(key string) bool {
	if key == "" || strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") || strings.Contains(key, "..") {
		return false
	}
	return matchesSettingKey(allowedSettingKeys, key)
}

func IsHostOnlySettingKey(key string) bool {
	return matchesSettingKey(hostOnlySettingKeys, key)
}

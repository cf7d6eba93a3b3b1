package models

import (
	"context"
	"strings"
	"unicode/utf8"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"gorm.io/gorm"
)

const (
	minContactMessageLength = 10
	maxContactMessageLength = 4000
)

// AcceptsContact is false when the account disabled its contact form.
func (c Collective) AcceptsContact() bool {
	v, ok := utils.GetPath(c.SettingsMap(), "features.contactForm")
	if !ok {
		return true
	}
	enabled, isBool := v.(bool)
	return !isBool || enabled
}

// SendMessageToCollective records a contact message for the account admins.
// Delivery is done by the consumers of the published activity.
func SendMessageToCollective(ctx context.Context, collectiveId int, fromCollectiveId int, subject *string, message string) error {
	message = strings.TrimSpace(message)
	length := utf8.RuneCountInString(message)
	if length < minContactMessageLength {
		return utils.NewValidationFailed("Message is too short (minimum %d characters)", minContactMessageLength)
	}
	if length > maxContactMessageLength {
		return utils.NewValidationFailed("Message is too long (maximum %d characters)", maxContactMessageLength)
	}
	if subject != nil && utf8.RuneCountInString(*subject) > 255 {
		return utils.NewValidationFailed("Subject is too long (maximum 255 characters)")
	}

	collective, err := GetCollective(ctx, collectiveId)
	if err != nil {
		return err
	}
	if !collective.AcceptsContact() {
		return utils.NewForbidden("You can't contact this account")
	}

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := createActivity(tx, NewActivity{
			Type:             ActivityCollectiveContact,
			CollectiveId:     &collective.ID,
			FromCollectiveId: &fromCollectiveId,
			HostCollectiveId: collective.HostCollectiveId,
			Data: map[string]any{
				"subject": utils.DereferencePtr(subject),
				"message": message,
			},
		})
		return err
	})
}

package models

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"gorm.io/gorm"
)

type DuplicateAccountInclude struct {
	Tiers    bool `json:"tiers"`
	Projects bool `json:"projects"`
	Events   bool `json:"events"`
	Admins   bool `json:"admins"`
}

const slugSuffixAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

// slugAvailable also sees soft-deleted rows, the unique index does
func slugAvailable(tx *gorm.DB, slug string) (bool, error) {
	var count int64
	err := tx.Unscoped().Model(&Collective{}).Where("slug = ?", slug).Count(&count).Error
	return count == 0, err
}

func generateSlug(tx *gorm.DB, base string) (string, error) {
	base = utils.Slugify(base)
	if base == "" {
		base = "account"
	}
	for i := 0; i < 10; i++ {
		suffix, err := utils.RandomString(6, slugSuffixAlphabet)
		if err != nil {
			return "", err
		}
		candidate := base + "-" + suffix
		ok, err := slugAvailable(tx, candidate)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
	}
	return "", utils.NewValidationFailed("Could not generate a unique slug for %s", base)
}

func cloneCollective(src Collective, slug, name string, parentId *int, userId *int) Collective {
	return Collective{
		Slug:               slug,
		Name:               name,
		LegalName:          src.LegalName,
		Description:        src.Description,
		Type:               src.Type,
		Currency:           src.Currency,
		Image:              src.Image,
		Settings:           src.Settings,
		Policies:           src.Policies,
		HostFeePercent:     src.HostFeePercent,
		PlatformFeePercent: src.PlatformFeePercent,
		ParentCollectiveId: parentId,
		CreatedByUserId:    userId,
	}
}

// DuplicateCollective copies the profile of an account into a new unhosted
// account, with tiers, children and admins when included.
func DuplicateCollective(ctx context.Context, id int, include DuplicateAccountInclude, newSlug, newName *string) (*Collective, error) {
	userId := actorUserId(ctx)
	if userId == nil {
		return nil, utils.NewUnauthorized("You need to be logged in to duplicate an account")
	}
	db := config.GetDB()
	var result *Collective
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		src, err := LockCollective(tx, id)
		if err != nil {
			return err
		}
		if src.Type == CollectiveTypeUser {
			return utils.NewValidationFailed("Individual accounts cannot be duplicated")
		}

		slug := ""
		if newSlug != nil && *newSlug != "" {
			slug = strings.ToLower(*newSlug)
			if !utils.IsValidSlug(slug) {
				return utils.NewValidationFailed("Invalid slug %q", slug)
			}
			ok, err := slugAvailable(tx, slug)
			if err != nil {
				return err
			}
			if !ok {
				return utils.NewValidationFailed("The slug %s is already taken", slug)
			}
		} else if slug, err = generateSlug(tx, src.Slug); err != nil {
			return err
		}
		name := src.Name
		if newName != nil && *newName != "" {
			name = *newName
		}

		dup := cloneCollective(*src, slug, name, src.ParentCollectiveId, userId)
		if err := tx.Create(&dup).Error; err != nil {
			return err
		}

		if include.Tiers {
			if err := copyTiers(tx, src.ID, dup.ID); err != nil {
				return err
			}
		}
		if include.Events || include.Projects {
			children, err := childrenOf(tx, src.ID)
			if err != nil {
				return err
			}
			for _, child := range children {
				if child.Type == CollectiveTypeEvent && !include.Events ||
					child.Type == CollectiveTypeProject && !include.Projects {
					continue
				}
				childSlug, err := generateSlug(tx, child.Slug)
				if err != nil {
					return err
				}
				dupChild := cloneCollective(child, childSlug, child.Name, &dup.ID, userId)
				if err := tx.Create(&dupChild).Error; err != nil {
					return err
				}
				if include.Tiers {
					if err := copyTiers(tx, child.ID, dupChild.ID); err != nil {
						return err
					}
				}
			}
		}

		if include.Admins {
			if err := copyAdmins(tx, src.ID, dup.ID); err != nil {
				return err
			}
		}
		// the creator always administers the copy
		if err := ensureAdmin(tx, dup.ID, *userId); err != nil {
			return err
		}

		if _, err := createActivity(tx, NewActivity{
			Type:         ActivityCollectiveCreated,
			CollectiveId: &dup.ID,
			NewData:      dup,
			Data:         map[string]any{"duplicatedFromId": src.ID, "include": include},
		}); err != nil {
			return err
		}
		result = &dup
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

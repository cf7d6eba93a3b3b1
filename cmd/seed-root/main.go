// seed-root creates the platform account and makes a user its admin.
// Admins of the platform account are root users.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-root -email root@example.com
//
// The password is read from SEED_ROOT_PASSWORD when -password is not given.
// Set PLATFORM_COLLECTIVE_ID to the printed id afterwards.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"gorm.io/gorm"
)

func main() {
	email := flag.String("email", "", "Required: email of the root user")
	password := flag.String("password", os.Getenv("SEED_ROOT_PASSWORD"), "password of the root user (only used when the user is created)")
	name := flag.String("name", "Platform Admin", "name of the root user")
	slug := flag.String("slug", "platform", "slug of the platform account")
	flag.Parse()

	if strings.TrimSpace(*email) == "" {
		fmt.Fprintln(os.Stderr, "-email is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	ctx := context.Background()

	var user models.User
	err := db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(*email))).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if len(*password) < 8 {
			fmt.Fprintln(os.Stderr, "a password of at least 8 characters is required to create the user")
			os.Exit(1)
		}
		created, err := models.CreateUser(ctx, &models.NewUser{Email: *email, Name: *name, Password: *password})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create user: %v\n", err)
			os.Exit(1)
		}
		user = *created
		fmt.Printf("Created user: email=%q id=%d\n", user.Email, user.ID)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	}
	ctx = utils.SetUserIdInContext(ctx, user.ID)

	platform, err := models.GetCollectiveBySlug(ctx, *slug)
	if err != nil && !utils.IsErrorCode(err, utils.ErrorCodeNotFound) {
		fmt.Fprintf(os.Stderr, "failed to lookup platform account: %v\n", err)
		os.Exit(1)
	}
	if platform == nil {
		platform, err = models.CreateCollective(ctx, &models.NewCollective{
			Slug:              *slug,
			Name:              "Platform",
			Type:              models.CollectiveTypeOrganization,
			Currency:          config.GetSettings().Platform.DefaultCurrency,
			IsHostAccount:     true,
			IsActive:          true,
			Approved:          true,
			AdminCollectiveId: &user.CollectiveId,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create platform account: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created platform account: slug=%q id=%d\n", platform.Slug, platform.ID)
	} else if _, err := models.AddMember(ctx, platform.ID, user.CollectiveId, models.MemberRoleAdmin); err != nil {
		fmt.Fprintf(os.Stderr, "failed to add admin: %v\n", err)
		os.Exit(1)
	}
	_ = user.RemoveInstanceRedis()

	if config.GetSettings().Platform.CollectiveId != platform.ID {
		fmt.Printf("Set PLATFORM_COLLECTIVE_ID=%d to make the admins of %q root users\n", platform.ID, platform.Slug)
	}
	fmt.Printf("User %q is admin of %q\n", user.Email, platform.Slug)
}

package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"gorm.io/gorm"
)

func TestErrorPresenterAppError(t *testing.T) {
	err := fmt.Errorf("edit account: %w", utils.NewForbidden("You need to be an admin"))
	got := ErrorPresenter(context.Background(), err)
	if got.Message != "You need to be an admin" {
		t.Fatalf("unexpected message %q", got.Message)
	}
	if got.Extensions["code"] != "Forbidden" {
		t.Fatalf("unexpected code %v", got.Extensions["code"])
	}
}

func TestErrorPresenterTwoFactorRequired(t *testing.T) {
	got := ErrorPresenter(context.Background(), utils.NewTwoFactorRequired("Two-factor authentication required"))
	if got.Extensions["code"] != "2FA_REQUIRED" {
		t.Fatalf("unexpected code %v", got.Extensions["code"])
	}
}

func TestErrorPresenterNotFound(t *testing.T) {
	for _, err := range []error{gorm.ErrRecordNotFound, utils.ErrorRecordNotFound} {
		got := ErrorPresenter(context.Background(), err)
		if got.Message != "Not found" || got.Extensions["code"] != "NotFound" {
			t.Fatalf("unexpected presentation of %v: %q %v", err, got.Message, got.Extensions)
		}
	}
}

func TestErrorPresenterHidesInternalErrors(t *testing.T) {
	ctx := utils.SetCorrelationIdInContext(context.Background(), "cid-1")
	got := ErrorPresenter(ctx, errors.New("dial tcp 10.0.0.3:3306: connection refused"))
	if got.Message != internalErrorMessage {
		t.Fatalf("internal error leaked: %q", got.Message)
	}
	if got.Extensions["code"] != "INTERNAL_SERVER_ERROR" {
		t.Fatalf("unexpected code %v", got.Extensions["code"])
	}
}

func TestErrorPresenterKeepsGraphQLErrors(t *testing.T) {
	got := ErrorPresenter(context.Background(), gqlerror.Errorf("must not be null"))
	if got.Message != "must not be null" {
		t.Fatalf("unexpected message %q", got.Message)
	}
	if _, ok := got.Extensions["code"]; ok {
		t.Fatalf("executor errors should not get a code")
	}
}

func TestRecoverFunc(t *testing.T) {
	err := RecoverFunc(context.Background(), "boom")
	if err == nil || err.Error() != "internal system error" {
		t.Fatalf("unexpected error %v", err)
	}
}

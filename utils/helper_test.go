package utils

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSlugs(t *testing.T) {
	valid := []string{"babel", "open-source-collective", "a1-b2"}
	invalid := []string{"", "Babel", "-babel", "babel-", "bab--el", "bab el", "babel!"}
	for _, s := range valid {
		if !IsValidSlug(s) {
			t.Fatalf("%q should be a valid slug", s)
		}
	}
	for _, s := range invalid {
		if IsValidSlug(s) {
			t.Fatalf("%q should not be a valid slug", s)
		}
	}
	if got := Slugify("  My Collective!  2024 "); got != "my-collective-2024" {
		t.Fatalf("Slugify: got %q", got)
	}
	if !IsValidSlug(Slugify("Ünïcode -- Name")) {
		t.Fatalf("Slugify output should always be a valid slug")
	}
}

func TestIsValidCurrency(t *testing.T) {
	if !IsValidCurrency("USD") || IsValidCurrency("usd") || IsValidCurrency("US") || IsValidCurrency("USDT") {
		t.Fatalf("currency codes are three uppercase letters")
	}
}

func TestUniqueSliceKeepsFirstOccurrence(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	want := []int{3, 1, 2}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if len(UniqueSlice[string](nil)) != 0 {
		t.Fatalf("nil input should give an empty slice")
	}
}

func TestDereferencePtr(t *testing.T) {
	var missing *string
	if DereferencePtr(missing) != "" {
		t.Fatalf("nil pointer should give the zero value")
	}
	if DereferencePtr(missing, "fallback") != "fallback" {
		t.Fatalf("nil pointer should give the default")
	}
	if DereferencePtr(Ptr("set"), "fallback") != "set" {
		t.Fatalf("set pointer should give its value")
	}
	if NilIfEmpty("") != nil || *NilIfEmpty("x") != "x" {
		t.Fatalf("NilIfEmpty")
	}
}

func TestGetPreviousMonthRange(t *testing.T) {
	cases := []struct {
		now        time.Time
		start, end string
	}{
		{time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC), "2024-02-01", "2024-03-01"},
		{time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), "2023-12-01", "2024-01-01"},
		{time.Date(2024, time.March, 31, 23, 59, 0, 0, time.UTC), "2024-02-01", "2024-03-01"},
		// 2024-04-01 01:00 in UTC+3 is still March in UTC
		{time.Date(2024, time.April, 1, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600)), "2024-02-01", "2024-03-01"},
	}
	for _, c := range cases {
		start, end := GetPreviousMonthRange(c.now)
		if start.Format("2006-01-02") != c.start || end.Format("2006-01-02") != c.end {
			t.Fatalf("%v: got [%v, %v)", c.now, start, end)
		}
		if start.Location() != time.UTC {
			t.Fatalf("range should be in UTC")
		}
	}
}

func TestLowercaseFirst(t *testing.T) {
	if LowercaseFirst("CollectiveId") != "collectiveId" || LowercaseFirst("") != "" {
		t.Fatalf("LowercaseFirst")
	}
}

func TestFormatPhoneNumber(t *testing.T) {
	got, err := FormatPhoneNumber("(650) 253-0000", "US")
	if err != nil {
		t.Fatalf("FormatPhoneNumber: %v", err)
	}
	if got != "+16502530000" {
		t.Fatalf("got %q", got)
	}
	if _, err := FormatPhoneNumber("12", "US"); err == nil {
		t.Fatalf("expected an error for an invalid number")
	}
}

type validatedInput struct {
	Email    string `validate:"required,email"`
	Currency string `validate:"required,len=3"`
	Amount   int64  `validate:"gt=0"`
}

func TestValidateStruct(t *testing.T) {
	if err := ValidateStruct(validatedInput{Email: "a@b.co", Currency: "USD", Amount: 1}); err != nil {
		t.Fatalf("valid input: %v", err)
	}
	err := ValidateStruct(validatedInput{Email: "nope", Currency: "US"})
	if !IsErrorCode(err, ErrorCodeValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	// fields are reported in a stable order
	if !strings.Contains(err.Error(), "amount (gt), currency (len), email (email)") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestErrorCodes(t *testing.T) {
	wrapped := fmt.Errorf("resolver: %w", NewForbidden(""))
	if ErrorCodeOf(wrapped) != ErrorCodeForbidden {
		t.Fatalf("code should survive wrapping")
	}
	if ErrorCodeOf(errors.New("db down")) != "" {
		t.Fatalf("internal errors have no code")
	}
	if NewUnauthorized("").Error() == "" || NewTwoFactorRequired("").Error() == "" {
		t.Fatalf("default messages should be set")
	}
	inner := errors.New("inner")
	appErr := &AppError{Code: ErrorCodeBadRequest, Message: "outer", Err: inner}
	if !errors.Is(appErr, inner) || appErr.Error() != "outer: inner" {
		t.Fatalf("AppError should wrap its cause")
	}
}

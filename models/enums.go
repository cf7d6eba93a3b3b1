package models

import (
	"errors"
	"io"
	"strconv"
)

type CollectiveType string

const (
	CollectiveTypeUser         CollectiveType = "USER"
	CollectiveTypeOrganization CollectiveType = "ORGANIZATION"
	CollectiveTypeCollective   CollectiveType = "COLLECTIVE"
	CollectiveTypeFund         CollectiveType = "FUND"
	CollectiveTypeEvent        CollectiveType = "EVENT"
	CollectiveTypeProject      CollectiveType = "PROJECT"
)

func (t CollectiveType) IsValid() bool {
	switch t {
	case CollectiveTypeUser, CollectiveTypeOrganization, CollectiveTypeCollective,
		CollectiveTypeFund, CollectiveTypeEvent, CollectiveTypeProject:
		return true
	}
	return false
}

// events and projects live under a parent account
func (t CollectiveType) IsChildType() bool {
	return t == CollectiveTypeEvent || t == CollectiveTypeProject
}

// convert enum to send response
func (t CollectiveType) MarshalGQL(w io.Writer) {
	if t == CollectiveTypeUser {
		w.Write([]byte(strconv.Quote("INDIVIDUAL")))
		return
	}
	w.Write([]byte(strconv.Quote(string(t))))
}

// convert input to enum type
func (t *CollectiveType) UnmarshalGQL(i interface{}) error {
	str, ok := i.(string)
	if !ok {
		return errors.New("account type must be string")
	}
	// USER is exposed as INDIVIDUAL
	if str == "INDIVIDUAL" {
		str = string(CollectiveTypeUser)
	}
	v := CollectiveType(str)
	if !v.IsValid() {
		return errors.New("invalid account type")
	}
	*t = v
	return nil
}

type MemberRole string

const (
	MemberRoleAdmin      MemberRole = "ADMIN"
	MemberRoleMember     MemberRole = "MEMBER"
	MemberRoleAccountant MemberRole = "ACCOUNTANT"
	MemberRoleHost       MemberRole = "HOST"
	MemberRoleFollower   MemberRole = "FOLLOWER"
)

func (r MemberRole) MarshalGQL(w io.Writer) {
	w.Write([]byte(strconv.Quote(string(r))))
}

func (r *MemberRole) UnmarshalGQL(i interface{}) error {
	str, ok := i.(string)
	if !ok {
		return errors.New("member role must be string")
	}
	switch MemberRole(str) {
	case MemberRoleAdmin, MemberRoleMember, MemberRoleAccountant, MemberRoleHost, MemberRoleFollower:
		*r = MemberRole(str)
	default:
		return errors.New("invalid member role")
	}
	return nil
}

type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusActive    OrderStatus = "ACTIVE"
	OrderStatusPaused    OrderStatus = "PAUSED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
	OrderStatusError     OrderStatus = "ERROR"
)

func (s OrderStatus) MarshalGQL(w io.Writer) {
	w.Write([]byte(strconv.Quote(string(s))))
}

func (s *OrderStatus) UnmarshalGQL(i interface{}) error {
	str, ok := i.(string)
	if !ok {
		return errors.New("order status must be string")
	}
	switch OrderStatus(str) {
	case OrderStatusNew, OrderStatusPending, OrderStatusPaid, OrderStatusActive,
		OrderStatusPaused, OrderStatusCancelled, OrderStatusRefunded, OrderStatusError:
		*s = OrderStatus(str)
	default:
		return errors.New("invalid order status")
	}
	return nil
}

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "CREDIT"
	TransactionTypeDebit  TransactionType = "DEBIT"
)

func (t TransactionType) MarshalGQL(w io.Writer) {
	w.Write([]byte(strconv.Quote(string(t))))
}

func (t *TransactionType) UnmarshalGQL(i interface{}) error {
	str, ok := i.(string)
	if !ok {
		return errors.New("transaction type must be string")
	}
	switch TransactionType(str) {
	case TransactionTypeCredit, TransactionTypeDebit:
		*t = TransactionType(str)
	default:
		return errors.New("invalid transaction type")
	}
	return nil
}

type TransactionKind string

const (
	TransactionKindContribution TransactionKind = "CONTRIBUTION"
)

type PaymentMethodService string

const (
	PaymentMethodServiceOpenCollective PaymentMethodService = "opencollective"
)

type PaymentMethodType string

const (
	PaymentMethodTypeCollective PaymentMethodType = "collective"
	PaymentMethodTypeHost       PaymentMethodType = "host"
)

type TwoFactorMethod string

const (
	TwoFactorMethodTOTP         TwoFactorMethod = "totp"
	TwoFactorMethodYubikeyOTP   TwoFactorMethod = "yubikey_otp"
	TwoFactorMethodWebAuthn     TwoFactorMethod = "webauthn"
	TwoFactorMethodRecoveryCode TwoFactorMethod = "recovery_code"
)

// enrolled methods; recovery codes are not stored as a method row
func (m TwoFactorMethod) IsEnrollable() bool {
	return m == TwoFactorMethodTOTP || m == TwoFactorMethodYubikeyOTP || m == TwoFactorMethodWebAuthn
}

// exposed as TOTP, YUBIKEY_OTP, WEBAUTHN, RECOVERY_CODE
func (m TwoFactorMethod) MarshalGQL(w io.Writer) {
	w.Write([]byte(strconv.Quote(twoFactorMethodToGQL[m])))
}

func (m *TwoFactorMethod) UnmarshalGQL(i interface{}) error {
	str, ok := i.(string)
	if !ok {
		return errors.New("two factor method must be string")
	}
	for k, v := range twoFactorMethodToGQL {
		if v == str {
			*m = k
			return nil
		}
	}
	return errors.New("invalid two factor method")
}

var twoFactorMethodToGQL = map[TwoFactorMethod]string{
	TwoFactorMethodTOTP:         "TOTP",
	TwoFactorMethodYubikeyOTP:   "YUBIKEY_OTP",
	TwoFactorMethodWebAuthn:     "WEBAUTHN",
	TwoFactorMethodRecoveryCode: "RECOVERY_CODE",
}

type AccountFreezeAction string

const (
	AccountFreezeActionFreeze   AccountFreezeAction = "FREEZE"
	AccountFreezeActionUnfreeze AccountFreezeAction = "UNFREEZE"
)

func (a AccountFreezeAction) MarshalGQL(w io.Writer) {
	w.Write([]byte(strconv.Quote(string(a))))
}

func (a *AccountFreezeAction) UnmarshalGQL(i interface{}) error {
	str, ok := i.(string)
	if !ok {
		return errors.New("freeze action must be string")
	}
	switch AccountFreezeAction(str) {
	case AccountFreezeActionFreeze, AccountFreezeActionUnfreeze:
		*a = AccountFreezeAction(str)
	default:
		return errors.New("invalid freeze action")
	}
	return nil
}

type ActivityType string

const (
	ActivityCollectiveCreated          ActivityType = "collective.created"
	ActivityCollectiveEdited           ActivityType = "collective.edited"
	ActivityCollectiveSettingsEdited   ActivityType = "collective.settings.edited"
	ActivityCollectiveFeeStructureEdit ActivityType = "collective.fee_structure.edited"
	ActivityCollectivePoliciesEdited   ActivityType = "collective.policies.edited"
	ActivityCollectiveFrozen           ActivityType = "collective.frozen"
	ActivityCollectiveUnfrozen         ActivityType = "collective.unfrozen"
	ActivityCollectiveDeleted          ActivityType = "collective.deleted"
	ActivityCollectiveContact          ActivityType = "collective.contact"
	ActivityOrderProcessed             ActivityType = "order.processed"
	ActivityTransactionCreated         ActivityType = "collective.transaction.created"
	ActivityTransactionRefunded        ActivityType = "collective.transaction.refunded"
	ActivityTwoFactorMethodAdded       ActivityType = "user.two_factor_method.added"
	ActivityTwoFactorMethodDeleted     ActivityType = "user.two_factor_method.deleted"
	ActivityTwoFactorMethodEdited      ActivityType = "user.two_factor_method.edited"
	ActivityTwoFactorCodesRegenerated  ActivityType = "user.two_factor.recovery_codes.regenerated"
	ActivityPersonalTokenCreated       ActivityType = "user.personal_token.created"
)

type PublishStatus string

const (
	PublishStatusPending    PublishStatus = "PENDING"
	PublishStatusProcessing PublishStatus = "PROCESSING"
	PublishStatusPublished  PublishStatus = "PUBLISHED"
	PublishStatusFailed     PublishStatus = "FAILED"
	PublishStatusDead       PublishStatus = "DEAD"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

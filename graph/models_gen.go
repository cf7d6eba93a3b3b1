package graph

import (
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"github.com/shopspring/decimal"
)

type AccountCreateInput struct {
	Slug           string                        `json:"slug"`
	Name           string                        `json:"name"`
	Description    *string                       `json:"description"`
	Type           string                        `json:"type"`
	Currency       *string                       `json:"currency"`
	IsHost         *bool                         `json:"isHost"`
	HostFeePercent *decimal.Decimal              `json:"hostFeePercent"`
	Parent         *models.AccountReferenceInput `json:"parent"`
	Host           *models.AccountReferenceInput `json:"host"`
}

type AccountUpdateInput struct {
	models.AccountReferenceInput
	models.EditAccountInput
}

type OrderCreateInput struct {
	FromAccount       models.AccountReferenceInput `json:"fromAccount"`
	ToAccount         models.AccountReferenceInput `json:"toAccount"`
	Tier              *int                         `json:"tier"`
	TotalAmount       int64                        `json:"totalAmount"`
	PlatformTipAmount *int64                       `json:"platformTipAmount"`
	Currency          *string                      `json:"currency"`
	Quantity          *int                         `json:"quantity"`
	Description       *string                      `json:"description"`
	Tags              []string                     `json:"tags"`
}

type LoginResult struct {
	Token   string             `json:"token"`
	Account *models.Collective `json:"account"`
}

type AddTwoFactorAuthTokenResult struct {
	Account       *models.Collective `json:"account"`
	RecoveryCodes []string           `json:"recoveryCodes"`
}

type SendMessageResult struct {
	Success bool `json:"success"`
}

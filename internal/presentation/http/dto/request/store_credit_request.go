package request

import (
	"time"

	"github.com/shopspring/decimal"
)

// IssueGrantRequest issues store credit to a customer
type IssueGrantRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	ExpiresAt *time.Time      `json:"expires_at"`
	Notes     *string         `json:"notes"`
}

// AllocateCreditRequest consumes store credit outside a settlement. Credit
// against a receipt is a store_credit entry of SettleRequest.
type AllocateCreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// TriggerSyncRequest starts a sync run
type TriggerSyncRequest struct {
	Mode string `json:"mode" binding:"omitempty,oneof=incremental full"`
}

package request

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEntryRequest is one tender. Amounts are decimals with at most two
// places.
type PaymentEntryRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" binding:"required"`
	Reference *string         `json:"reference" binding:"omitempty,max=100"`
	Notes     *string         `json:"notes"`
}

// SaleItemRequest is one line of a checkout
type SaleItemRequest struct {
	ProductID      uuid.UUID        `json:"product_id" binding:"required"`
	Quantity       int              `json:"quantity" binding:"required,min=1"`
	UnitPrice      *decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	IsGift         bool             `json:"is_gift"`
	GiftReason     *string          `json:"gift_reason" binding:"omitempty,max=255"`
}

// CreateReceiptRequest finalizes a checkout, optionally with a deposit
type CreateReceiptRequest struct {
	CustomerID   *uuid.UUID            `json:"customer_id"`
	DeliveryCost decimal.Decimal       `json:"delivery_cost"`
	Items        []SaleItemRequest     `json:"items" binding:"required,min=1,dive"`
	Payments     []PaymentEntryRequest `json:"payments" binding:"omitempty,dive"`
}

// SettleRequest applies payment entries to a receipt
type SettleRequest struct {
	Payments []PaymentEntryRequest `json:"payments" binding:"required,min=1,dive"`
}

// OutstandingFilterRequest represents outstanding receipt list parameters
type OutstandingFilterRequest struct {
	Page    int `form:"page"`
	PerPage int `form:"per_page"`
}

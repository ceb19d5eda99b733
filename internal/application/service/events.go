package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types published after a settlement commits.
const (
	EventReceiptSettled       = "receipt.settled"
	EventStoreCreditAllocated = "store_credit.allocated"
)

// EventPublisher delivers committed ledger events to downstream consumers.
// Failures are logged by the caller and never undo the committed write.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// ReceiptSettledEvent is published once per settlement that moved money.
type ReceiptSettledEvent struct {
	Type             string          `json:"type"`
	ReceiptID        uuid.UUID       `json:"receipt_id"`
	ReceiptNumber    string          `json:"receipt_number"`
	AmountApplied    decimal.Decimal `json:"amount_applied"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	BalanceRemaining decimal.Decimal `json:"balance_remaining"`
	PreviousStatus   string          `json:"previous_status"`
	Status           string          `json:"status"`
	Methods          []string        `json:"methods"`
	SettledBy        uuid.UUID       `json:"settled_by"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// StoreCreditAllocatedEvent is published once per allocation.
type StoreCreditAllocatedEvent struct {
	Type       string          `json:"type"`
	CustomerID uuid.UUID       `json:"customer_id"`
	ReceiptID  *uuid.UUID      `json:"receipt_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	GrantIDs   []uuid.UUID     `json:"grant_ids"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (e ReceiptSettledEvent) EventName() string { return e.Type }

func (e StoreCreditAllocatedEvent) EventName() string { return e.Type }

package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/domain/enum"
	"gorm.io/gorm"
)

// PartialPayment is an append-only ledger entry against a receipt. The sum of
// a receipt's entries always equals its AmountPaid.
type PartialPayment struct {
	ID          uuid.UUID          `gorm:"type:uuid;primary_key" json:"id"`
	ReceiptID   uuid.UUID          `gorm:"type:uuid;not null;index" json:"receipt_id"`
	Amount      int64              `gorm:"not null" json:"-"` // Stored in cents
	Method      enum.PaymentMethod `gorm:"size:30;not null" json:"method"`
	Notes       *string            `gorm:"type:text" json:"notes,omitempty"`
	ReceivedBy  uuid.UUID          `gorm:"type:uuid;not null;index" json:"received_by"`
	PaymentDate time.Time          `gorm:"not null;index" json:"payment_date"`
	CreatedAt   time.Time          `json:"created_at"`
}

// MarshalJSON custom marshaler to convert cents to decimal for API responses
func (p PartialPayment) MarshalJSON() ([]byte, error) {
	type Alias PartialPayment
	return json.Marshal(&struct {
		Alias
		Amount float64 `json:"amount"`
	}{
		Alias:  Alias(p),
		Amount: float64(p.Amount) / 100,
	})
}

// BeforeCreate generates a UUID before creating a new ledger entry
func (p *PartialPayment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the PartialPayment model
func (PartialPayment) TableName() string {
	return "partial_payments"
}

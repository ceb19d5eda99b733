package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/domain/enum"
	"gorm.io/gorm"
)

// Payment is the per-receipt container replicated to the analytics mirror.
// Its totals are refreshed by every settlement against the receipt.
type Payment struct {
	ID          uuid.UUID          `gorm:"type:uuid;primary_key" json:"id"`
	ReceiptID   uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex" json:"receipt_id"`
	Status      enum.PaymentStatus `gorm:"not null;default:0" json:"status"`
	TotalAmount int64              `gorm:"not null" json:"-"`           // Stored in cents
	TotalPaid   int64              `gorm:"not null;default:0" json:"-"` // Stored in cents
	PaymentDate time.Time          `gorm:"not null" json:"payment_date"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `gorm:"index" json:"updated_at"`

	// Relationships
	Receipt *Receipt            `gorm:"foreignKey:ReceiptID" json:"-"`
	Lines   []PaymentMethodLine `gorm:"foreignKey:PaymentID" json:"lines,omitempty"`
	Sales   []Sale              `gorm:"foreignKey:PaymentID" json:"-"`
}

// MarshalJSON custom marshaler to convert cents to decimal for API responses
func (p Payment) MarshalJSON() ([]byte, error) {
	type Alias Payment
	return json.Marshal(&struct {
		Alias
		TotalAmount float64 `json:"total_amount"`
		TotalPaid   float64 `json:"total_paid"`
	}{
		Alias:       Alias(p),
		TotalAmount: float64(p.TotalAmount) / 100,
		TotalPaid:   float64(p.TotalPaid) / 100,
	})
}

// BeforeCreate generates a UUID before creating a new payment
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the Payment model
func (Payment) TableName() string {
	return "payments"
}

// PaymentMethodLine records one tender applied to a payment. Append-only.
type PaymentMethodLine struct {
	ID        uuid.UUID          `gorm:"type:uuid;primary_key" json:"id"`
	PaymentID uuid.UUID          `gorm:"type:uuid;not null;index" json:"payment_id"`
	Method    enum.PaymentMethod `gorm:"size:30;not null" json:"method"`
	Amount    int64              `gorm:"not null" json:"-"` // Stored in cents
	Reference *string            `gorm:"size:100" json:"reference,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `gorm:"index" json:"updated_at"`

	// Relationships
	Payment *Payment `gorm:"foreignKey:PaymentID" json:"-"`
}

// MarshalJSON custom marshaler to convert cents to decimal for API responses
func (l PaymentMethodLine) MarshalJSON() ([]byte, error) {
	type Alias PaymentMethodLine
	return json.Marshal(&struct {
		Alias
		Amount float64 `json:"amount"`
	}{
		Alias:  Alias(l),
		Amount: float64(l.Amount) / 100,
	})
}

// BeforeCreate generates a UUID before creating a new payment method line
func (l *PaymentMethodLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the PaymentMethodLine model
func (PaymentMethodLine) TableName() string {
	return "payment_method_lines"
}

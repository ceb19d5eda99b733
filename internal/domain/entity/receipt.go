package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/domain/enum"
	"gorm.io/gorm"
)

// Receipt is the record of one checkout. Its payment columns are owned by the
// settlement ledger and must satisfy AmountPaid + BalanceRemaining == Total.
type Receipt struct {
	ID               uuid.UUID          `gorm:"type:uuid;primary_key" json:"id"`
	ReceiptNumber    string             `gorm:"size:50;unique;not null" json:"receipt_number"`
	CustomerID       *uuid.UUID         `gorm:"type:uuid;index" json:"customer_id,omitempty"`
	UserID           uuid.UUID          `gorm:"type:uuid;not null;index" json:"user_id"`
	SubTotal         int64              `gorm:"default:0" json:"-"` // Stored in cents
	DeliveryCost     int64              `gorm:"default:0" json:"-"` // Stored in cents
	Total            int64              `gorm:"not null" json:"-"`  // Stored in cents
	AmountPaid       int64              `gorm:"not null;default:0" json:"-"`
	BalanceRemaining int64              `gorm:"not null;default:0" json:"-"`
	PaymentStatus    enum.PaymentStatus `gorm:"not null;default:0;index" json:"payment_status"`
	Version          int64              `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `gorm:"index" json:"updated_at"`

	// Relationships
	Customer        *Customer        `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Sales           []Sale           `gorm:"foreignKey:ReceiptID" json:"sales,omitempty"`
	Payment         *Payment         `gorm:"foreignKey:ReceiptID" json:"payment,omitempty"`
	PartialPayments []PartialPayment `gorm:"foreignKey:ReceiptID" json:"partial_payments,omitempty"`
}

// MarshalJSON custom marshaler to convert cents to decimal for API responses
func (r Receipt) MarshalJSON() ([]byte, error) {
	type Alias Receipt
	return json.Marshal(&struct {
		Alias
		SubTotal         float64 `json:"sub_total"`
		DeliveryCost     float64 `json:"delivery_cost"`
		Total            float64 `json:"total"`
		AmountPaid       float64 `json:"amount_paid"`
		BalanceRemaining float64 `json:"balance_remaining"`
	}{
		Alias:            Alias(r),
		SubTotal:         float64(r.SubTotal) / 100,
		DeliveryCost:     float64(r.DeliveryCost) / 100,
		Total:            float64(r.Total) / 100,
		AmountPaid:       float64(r.AmountPaid) / 100,
		BalanceRemaining: float64(r.BalanceRemaining) / 100,
	})
}

// BeforeCreate generates a UUID before creating a new receipt
func (r *Receipt) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the Receipt model
func (Receipt) TableName() string {
	return "receipts"
}

// IsPaid reports whether the receipt has reached its terminal state.
func (r *Receipt) IsPaid() bool {
	return r.PaymentStatus == enum.PaymentStatusPaid
}

// CheckBalance verifies the denormalized payment columns agree with each other.
func (r *Receipt) CheckBalance() error {
	if r.AmountPaid+r.BalanceRemaining != r.Total {
		return fmt.Errorf("receipt %s: amount_paid %d + balance_remaining %d != total %d",
			r.ReceiptNumber, r.AmountPaid, r.BalanceRemaining, r.Total)
	}
	if r.BalanceRemaining < 0 {
		return fmt.Errorf("receipt %s: negative balance %d", r.ReceiptNumber, r.BalanceRemaining)
	}
	if want := enum.PaymentStatusFor(r.AmountPaid, r.BalanceRemaining); r.PaymentStatus != want {
		return fmt.Errorf("receipt %s: status %s, expected %s", r.ReceiptNumber, r.PaymentStatus, want)
	}
	return nil
}

package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sale is one line item of a receipt. A gifted line has LineTotal forced to
// zero and keeps what it would have cost in OriginalValue.
type Sale struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	ReceiptID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"receipt_id"`
	ProductID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"product_id"`
	PaymentID      *uuid.UUID `gorm:"type:uuid;index" json:"payment_id,omitempty"`
	Quantity       int        `gorm:"not null" json:"quantity"`
	UnitPrice      int64      `gorm:"not null" json:"-"`           // Stored in cents
	DiscountAmount int64      `gorm:"not null;default:0" json:"-"` // Stored in cents
	LineTotal      int64      `gorm:"not null" json:"-"`           // Stored in cents
	IsGift         bool       `gorm:"not null;default:false" json:"is_gift"`
	GiftReason     *string    `gorm:"size:255" json:"gift_reason,omitempty"`
	OriginalValue  *int64     `json:"-"`
	SaleDate       time.Time  `gorm:"not null" json:"sale_date"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `gorm:"index" json:"updated_at"`

	// Relationships
	Receipt *Receipt `gorm:"foreignKey:ReceiptID" json:"-"`
	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// MarshalJSON custom marshaler to convert cents to decimal for API responses
func (s Sale) MarshalJSON() ([]byte, error) {
	type Alias Sale
	var original *float64
	if s.OriginalValue != nil {
		v := float64(*s.OriginalValue) / 100
		original = &v
	}
	return json.Marshal(&struct {
		Alias
		UnitPrice      float64  `json:"unit_price"`
		DiscountAmount float64  `json:"discount_amount"`
		LineTotal      float64  `json:"line_total"`
		OriginalValue  *float64 `json:"original_value,omitempty"`
	}{
		Alias:          Alias(s),
		UnitPrice:      float64(s.UnitPrice) / 100,
		DiscountAmount: float64(s.DiscountAmount) / 100,
		LineTotal:      float64(s.LineTotal) / 100,
		OriginalValue:  original,
	})
}

// BeforeCreate generates a UUID before creating a new sale
func (s *Sale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the Sale model
func (Sale) TableName() string {
	return "sales"
}

package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StoreCreditGrant is a credit balance owned by a customer. Grants are
// consumed oldest IssuedAt first and deactivate when RemainingAmount hits zero.
type StoreCreditGrant struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	CreditNumber    string     `gorm:"size:50;unique;not null" json:"credit_number"`
	CustomerID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"customer_id"`
	OriginalAmount  int64      `gorm:"not null" json:"-"` // Stored in cents
	RemainingAmount int64      `gorm:"not null" json:"-"` // Stored in cents
	IsActive        bool       `gorm:"not null;index" json:"is_active"`
	IssuedAt        time.Time  `gorm:"not null;index" json:"issued_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	IssuedBy        uuid.UUID  `gorm:"type:uuid;not null" json:"issued_by"`
	Notes           *string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Relationships
	Customer *Customer `gorm:"foreignKey:CustomerID" json:"-"`
}

// MarshalJSON custom marshaler to convert cents to decimal for API responses
func (g StoreCreditGrant) MarshalJSON() ([]byte, error) {
	type Alias StoreCreditGrant
	return json.Marshal(&struct {
		Alias
		OriginalAmount  float64 `json:"original_amount"`
		RemainingAmount float64 `json:"remaining_amount"`
	}{
		Alias:           Alias(g),
		OriginalAmount:  float64(g.OriginalAmount) / 100,
		RemainingAmount: float64(g.RemainingAmount) / 100,
	})
}

// BeforeCreate generates a UUID before creating a new grant
func (g *StoreCreditGrant) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the StoreCreditGrant model
func (StoreCreditGrant) TableName() string {
	return "store_credit_grants"
}

// IsConsumable reports whether the grant can cover an allocation at t.
func (g *StoreCreditGrant) IsConsumable(t time.Time) bool {
	if !g.IsActive || g.RemainingAmount <= 0 {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(t)
}

// StoreCreditUsage records an amount drawn from a grant. Append-only.
type StoreCreditUsage struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	GrantID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"grant_id"`
	CustomerID uuid.UUID  `gorm:"type:uuid;not null;index" json:"customer_id"`
	ReceiptID  *uuid.UUID `gorm:"type:uuid;index" json:"receipt_id,omitempty"`
	AmountUsed int64      `gorm:"not null" json:"-"` // Stored in cents
	UsedBy     uuid.UUID  `gorm:"type:uuid;not null" json:"used_by"`
	UsedAt     time.Time  `gorm:"not null" json:"used_at"`
	CreatedAt  time.Time  `json:"created_at"`

	// Relationships
	Grant *StoreCreditGrant `gorm:"foreignKey:GrantID" json:"-"`
}

// MarshalJSON custom marshaler to convert cents to decimal for API responses
func (u StoreCreditUsage) MarshalJSON() ([]byte, error) {
	type Alias StoreCreditUsage
	return json.Marshal(&struct {
		Alias
		AmountUsed float64 `json:"amount_used"`
	}{
		Alias:      Alias(u),
		AmountUsed: float64(u.AmountUsed) / 100,
	})
}

// BeforeCreate generates a UUID before creating a new usage
func (u *StoreCreditUsage) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the StoreCreditUsage model
func (StoreCreditUsage) TableName() string {
	return "store_credit_usages"
}

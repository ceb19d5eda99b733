package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product represents a stock item on the shop floor
type Product struct {
	ID           uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Code         string         `gorm:"size:100;index" json:"code"` // barcode, may be empty
	Brand        string         `gorm:"size:255;not null" json:"brand"`
	Category     string         `gorm:"size:100" json:"category"`
	Size         string         `gorm:"size:50" json:"size"`
	Color        string         `gorm:"size:50" json:"color"`
	Design       string         `gorm:"size:100" json:"design"`
	Location     string         `gorm:"size:100" json:"location"`
	Shop         string         `gorm:"size:100" json:"shop"`
	Quantity     int            `gorm:"default:0" json:"quantity"`
	BuyingPrice  int64          `gorm:"default:0" json:"-"` // Stored in cents
	SellingPrice int64          `gorm:"default:0" json:"-"` // Stored in cents
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate generates a UUID before creating a new product
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// MarshalJSON converts Product to JSON with decimal prices
func (p Product) MarshalJSON() ([]byte, error) {
	type Alias Product
	return json.Marshal(&struct {
		Alias
		BuyingPrice  float64 `json:"buying_price"`
		SellingPrice float64 `json:"selling_price"`
	}{
		Alias:        Alias(p),
		BuyingPrice:  float64(p.BuyingPrice) / 100,
		SellingPrice: float64(p.SellingPrice) / 100,
	})
}

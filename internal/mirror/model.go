package mirror

import (
	"time"

	"gorm.io/gorm"
)

// Mirror tables are keyed by the natural key the till sends. They hold no
// customer data.

type Product struct {
	NaturalKey      string `gorm:"primaryKey;size:255"`
	Code            string `gorm:"size:100;index"`
	Brand           string `gorm:"size:255"`
	Category        string `gorm:"size:100"`
	Size            string `gorm:"size:50"`
	Color           string `gorm:"size:50"`
	Design          string `gorm:"size:100"`
	Location        string `gorm:"size:100"`
	Shop            string `gorm:"size:100"`
	Quantity        int
	BuyingPrice     int64 // Stored in cents
	SellingPrice    int64 // Stored in cents
	SourceUpdatedAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Product) TableName() string { return "mirror_products" }

type Receipt struct {
	NaturalKey       string `gorm:"primaryKey;size:64"`
	ReceiptNumber    string `gorm:"size:50;index"`
	SubTotal         int64
	DeliveryCost     int64
	Total            int64
	AmountPaid       int64
	BalanceRemaining int64
	PaymentStatus    string    `gorm:"size:20"`
	Date             time.Time `gorm:"index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Receipt) TableName() string { return "mirror_receipts" }

type Sale struct {
	NaturalKey     string  `gorm:"primaryKey;size:64"`
	ReceiptKey     string  `gorm:"size:64;not null;index"`
	ProductKey     string  `gorm:"size:255;not null;index"`
	PaymentKey     *string `gorm:"size:64;index"`
	Quantity       int
	UnitPrice      int64
	DiscountAmount int64
	LineTotal      int64
	IsGift         bool
	OriginalValue  *int64
	SaleDate       time.Time `gorm:"index"`
	CreatedAt      time.Time
}

func (Sale) TableName() string { return "mirror_sales" }

type Payment struct {
	NaturalKey  string `gorm:"primaryKey;size:64"`
	ReceiptKey  string `gorm:"size:64;not null;uniqueIndex"`
	Status      string `gorm:"size:20"`
	TotalAmount int64
	TotalPaid   int64
	PaymentDate time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Payment) TableName() string { return "mirror_payments" }

type PaymentMethodLine struct {
	NaturalKey string `gorm:"primaryKey;size:64"`
	PaymentKey string `gorm:"size:64;not null;index"`
	Method     string `gorm:"size:30"`
	Amount     int64
	Reference  *string `gorm:"size:100"`
	LineDate   time.Time
	CreatedAt  time.Time
}

func (PaymentMethodLine) TableName() string { return "mirror_payment_method_lines" }

// Migrate creates the mirror tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Product{}, &Receipt{}, &Sale{}, &Payment{}, &PaymentMethodLine{})
}

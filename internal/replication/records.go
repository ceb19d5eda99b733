package replication

import (
	"fmt"
	"strings"
	"time"

	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/domain/enum"
	"github.com/sangkips/tillsync/pkg/money"
	"github.com/shopspring/decimal"
)

// Record is one entity on the wire. Customer data never leaves the till, so
// no record carries a customer reference.
type Record interface {
	Key() string
	Validate() error
}

type ProductRecord struct {
	NaturalKey   string          `json:"natural_key"`
	Code         string          `json:"code,omitempty"`
	Brand        string          `json:"brand"`
	Category     string          `json:"category,omitempty"`
	Size         string          `json:"size,omitempty"`
	Color        string          `json:"color,omitempty"`
	Design       string          `json:"design,omitempty"`
	Location     string          `json:"location,omitempty"`
	Shop         string          `json:"shop,omitempty"`
	Quantity     int             `json:"quantity"`
	BuyingPrice  decimal.Decimal `json:"buying_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	UpdatedAt    string          `json:"updated_at"`
}

func (r *ProductRecord) Key() string { return r.NaturalKey }

func (r *ProductRecord) Validate() error {
	if r.NaturalKey == "" {
		return fmt.Errorf("natural_key is required")
	}
	if strings.TrimSpace(r.Brand) == "" {
		return fmt.Errorf("brand is required")
	}
	if r.SellingPrice.IsNegative() || r.BuyingPrice.IsNegative() {
		return fmt.Errorf("prices must not be negative")
	}
	return nil
}

type ReceiptRecord struct {
	NaturalKey       string          `json:"natural_key"`
	ReceiptNumber    string          `json:"receipt_number"`
	SubTotal         decimal.Decimal `json:"sub_total"`
	DeliveryCost     decimal.Decimal `json:"delivery_cost"`
	Total            decimal.Decimal `json:"total"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	BalanceRemaining decimal.Decimal `json:"balance_remaining"`
	PaymentStatus    string          `json:"payment_status"`
	Date             string          `json:"date"`
	UpdatedAt        string          `json:"updated_at"`
}

func (r *ReceiptRecord) Key() string { return r.NaturalKey }

func (r *ReceiptRecord) Validate() error {
	if r.NaturalKey == "" {
		return fmt.Errorf("natural_key is required")
	}
	if r.ReceiptNumber == "" {
		return fmt.Errorf("receipt_number is required")
	}
	if _, err := enum.ParsePaymentStatus(r.PaymentStatus); err != nil {
		return err
	}
	if !r.AmountPaid.Add(r.BalanceRemaining).Equal(r.Total) {
		return fmt.Errorf("amount_paid + balance_remaining != total")
	}
	return nil
}

type SaleRecord struct {
	NaturalKey     string           `json:"natural_key"`
	ReceiptKey     string           `json:"receipt_key"`
	ProductKey     string           `json:"product_key"`
	Quantity       int              `json:"quantity"`
	UnitPrice      decimal.Decimal  `json:"unit_price"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	LineTotal      decimal.Decimal  `json:"line_total"`
	IsGift         bool             `json:"is_gift"`
	OriginalValue  *decimal.Decimal `json:"original_value,omitempty"`
	SaleDate       string           `json:"sale_date"`
}

func (r *SaleRecord) Key() string { return r.NaturalKey }

func (r *SaleRecord) Validate() error {
	if r.NaturalKey == "" || r.ReceiptKey == "" {
		return fmt.Errorf("natural_key and receipt_key are required")
	}
	if r.ProductKey == "" {
		return fmt.Errorf("product_key is required")
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if r.IsGift && !r.LineTotal.IsZero() {
		return fmt.Errorf("gift line must have a zero line_total")
	}
	return nil
}

type PaymentRecord struct {
	NaturalKey  string          `json:"natural_key"`
	ReceiptKey  string          `json:"receipt_key"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	PaymentDate string          `json:"payment_date"`
	SaleKeys    []string        `json:"sale_keys,omitempty"`
}

func (r *PaymentRecord) Key() string { return r.NaturalKey }

func (r *PaymentRecord) Validate() error {
	if r.NaturalKey == "" || r.ReceiptKey == "" {
		return fmt.Errorf("natural_key and receipt_key are required")
	}
	if _, err := enum.ParsePaymentStatus(r.Status); err != nil {
		return err
	}
	if r.TotalPaid.GreaterThan(r.TotalAmount) {
		return fmt.Errorf("total_paid exceeds total_amount")
	}
	return nil
}

type PaymentMethodLineRecord struct {
	NaturalKey string          `json:"natural_key"`
	PaymentKey string          `json:"payment_key"`
	Method     string          `json:"method"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  *string         `json:"reference,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

func (r *PaymentMethodLineRecord) Key() string { return r.NaturalKey }

func (r *PaymentMethodLineRecord) Validate() error {
	if r.NaturalKey == "" || r.PaymentKey == "" {
		return fmt.Errorf("natural_key and payment_key are required")
	}
	if !enum.PaymentMethod(r.Method).IsValid() {
		return fmt.Errorf("unknown payment method %q", r.Method)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// stamper formats source timestamps, substituting the processing time for
// missing ones and remembering which fields it substituted.
type stamper struct {
	now       time.Time
	fallbacks []string
}

func (s *stamper) format(field string, t time.Time) string {
	if t.IsZero() {
		s.fallbacks = append(s.fallbacks, field)
		return FormatTimestamp(s.now)
	}
	return FormatTimestamp(t)
}

func productRecord(p *entity.Product, st *stamper) *ProductRecord {
	return &ProductRecord{
		NaturalKey:   NaturalKey(p).Value,
		Code:         strings.TrimSpace(p.Code),
		Brand:        p.Brand,
		Category:     p.Category,
		Size:         p.Size,
		Color:        p.Color,
		Design:       p.Design,
		Location:     p.Location,
		Shop:         p.Shop,
		Quantity:     p.Quantity,
		BuyingPrice:  money.ToDecimal(p.BuyingPrice),
		SellingPrice: money.ToDecimal(p.SellingPrice),
		UpdatedAt:    st.format("updated_at", p.UpdatedAt),
	}
}

func receiptRecord(r *entity.Receipt, st *stamper) *ReceiptRecord {
	return &ReceiptRecord{
		NaturalKey:       NaturalKey(r).Value,
		ReceiptNumber:    r.ReceiptNumber,
		SubTotal:         money.ToDecimal(r.SubTotal),
		DeliveryCost:     money.ToDecimal(r.DeliveryCost),
		Total:            money.ToDecimal(r.Total),
		AmountPaid:       money.ToDecimal(r.AmountPaid),
		BalanceRemaining: money.ToDecimal(r.BalanceRemaining),
		PaymentStatus:    r.PaymentStatus.String(),
		Date:             st.format("date", r.CreatedAt),
		UpdatedAt:        st.format("updated_at", r.UpdatedAt),
	}
}

func saleRecord(s *entity.Sale, st *stamper) *SaleRecord {
	rec := &SaleRecord{
		NaturalKey:     NaturalKey(s).Value,
		ReceiptKey:     NaturalKey(&entity.Receipt{ID: s.ReceiptID}).Value,
		Quantity:       s.Quantity,
		UnitPrice:      money.ToDecimal(s.UnitPrice),
		DiscountAmount: money.ToDecimal(s.DiscountAmount),
		LineTotal:      money.ToDecimal(s.LineTotal),
		IsGift:         s.IsGift,
		SaleDate:       st.format("sale_date", s.SaleDate),
	}
	if s.Product != nil {
		rec.ProductKey = NaturalKey(s.Product).Value
	}
	if s.OriginalValue != nil {
		v := money.ToDecimal(*s.OriginalValue)
		rec.OriginalValue = &v
	}
	return rec
}

func paymentRecord(p *entity.Payment, st *stamper) *PaymentRecord {
	rec := &PaymentRecord{
		NaturalKey:  NaturalKey(p).Value,
		ReceiptKey:  NaturalKey(&entity.Receipt{ID: p.ReceiptID}).Value,
		Status:      p.Status.String(),
		TotalAmount: money.ToDecimal(p.TotalAmount),
		TotalPaid:   money.ToDecimal(p.TotalPaid),
		PaymentDate: st.format("payment_date", p.PaymentDate),
	}
	for i := range p.Sales {
		rec.SaleKeys = append(rec.SaleKeys, NaturalKey(&p.Sales[i]).Value)
	}
	return rec
}

func paymentMethodLineRecord(l *entity.PaymentMethodLine, st *stamper) *PaymentMethodLineRecord {
	return &PaymentMethodLineRecord{
		NaturalKey: NaturalKey(l).Value,
		PaymentKey: NaturalKey(&entity.Payment{ID: l.PaymentID}).Value,
		Method:     l.Method.String(),
		Amount:     money.ToDecimal(l.Amount),
		Reference:  l.Reference,
		CreatedAt:  st.format("created_at", l.CreatedAt),
	}
}

// Outcome is the mirror's verdict on one record
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// RecordResult reports what the mirror did with one record
type RecordResult struct {
	NaturalKey string  `json:"natural_key"`
	Outcome    Outcome `json:"outcome"`
	Reason     string  `json:"reason,omitempty"`
}

// BatchRequest is the body of POST /sync/{entity}
type BatchRequest struct {
	Records any `json:"records"`
}

// BatchResponse is the mirror's reply to a batch
type BatchResponse struct {
	Results []RecordResult `json:"results"`
}

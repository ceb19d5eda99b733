package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/replication"
	"github.com/sangkips/tillsync/pkg/money"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// rejection is a record-level failure. It is reported back as a failed
// outcome; any other error fails the whole batch. keep marks a rejection
// raised after the record itself was written, which must not be rolled back.
type rejection struct {
	reason string
	keep   bool
}

func (r *rejection) Error() string { return r.reason }

func reject(format string, args ...any) error {
	return &rejection{reason: fmt.Sprintf(format, args...)}
}

// Store applies replicated records to the mirror tables. Each record is
// handled in two steps: ensure the record exists (create, update or skip),
// then ensure its links, whatever the first step found.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

// NewStore creates a mirror store over db
func NewStore(db *gorm.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "mirror_store").Logger(),
		now: time.Now,
	}
}

// Apply decodes and applies one raw record of entity type e.
func (s *Store) Apply(ctx context.Context, e replication.EntityType, raw json.RawMessage) (replication.RecordResult, error) {
	var head struct {
		NaturalKey string `json:"natural_key"`
	}
	_ = json.Unmarshal(raw, &head)
	result := replication.RecordResult{NaturalKey: head.NaturalKey}

	outcome, err := s.apply(ctx, e, raw)
	var rej *rejection
	switch {
	case errors.As(err, &rej):
		result.Outcome = replication.OutcomeFailed
		result.Reason = rej.reason
		return result, nil
	case err != nil:
		return result, err
	}
	result.Outcome = outcome
	return result, nil
}

func (s *Store) apply(ctx context.Context, e replication.EntityType, raw json.RawMessage) (replication.Outcome, error) {
	var rec replication.Record
	switch e {
	case replication.EntityProducts:
		rec = &replication.ProductRecord{}
	case replication.EntityReceipts:
		rec = &replication.ReceiptRecord{}
	case replication.EntitySales:
		rec = &replication.SaleRecord{}
	case replication.EntityPayments:
		rec = &replication.PaymentRecord{}
	case replication.EntityPaymentMethodLines:
		rec = &replication.PaymentMethodLineRecord{}
	default:
		return "", fmt.Errorf("unknown entity type %q", e)
	}
	if err := json.Unmarshal(raw, rec); err != nil {
		return "", reject("malformed record: %v", err)
	}
	if err := rec.Validate(); err != nil {
		return "", reject("%v", err)
	}

	db := s.db.WithContext(ctx)
	var outcome replication.Outcome
	var kept *rejection
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		switch r := rec.(type) {
		case *replication.ProductRecord:
			outcome, err = s.applyProduct(tx, r)
		case *replication.ReceiptRecord:
			outcome, err = s.applyReceipt(tx, r)
		case *replication.SaleRecord:
			outcome, err = s.applySale(tx, r)
		case *replication.PaymentRecord:
			outcome, err = s.applyPayment(tx, r)
		case *replication.PaymentMethodLineRecord:
			outcome, err = s.applyPaymentMethodLine(tx, r)
		}
		var rej *rejection
		if errors.As(err, &rej) && rej.keep {
			kept = rej
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}
	if kept != nil {
		return "", kept
	}
	return outcome, nil
}

func (s *Store) applyProduct(tx *gorm.DB, r *replication.ProductRecord) (replication.Outcome, error) {
	buying, err := cents("buying_price", r.BuyingPrice)
	if err != nil {
		return "", err
	}
	selling, err := cents("selling_price", r.SellingPrice)
	if err != nil {
		return "", err
	}
	want := Product{
		NaturalKey:      r.NaturalKey,
		Code:            r.Code,
		Brand:           r.Brand,
		Category:        r.Category,
		Size:            r.Size,
		Color:           r.Color,
		Design:          r.Design,
		Location:        r.Location,
		Shop:            r.Shop,
		Quantity:        r.Quantity,
		BuyingPrice:     buying,
		SellingPrice:    selling,
		SourceUpdatedAt: s.timestamp(replication.EntityProducts, r.NaturalKey, "updated_at", r.UpdatedAt),
	}

	var have Product
	found, err := find(tx, &have, r.NaturalKey)
	if err != nil || !found {
		return created(tx, &want, err)
	}
	c := changes{}
	c.set("code", have.Code != want.Code, want.Code)
	c.set("brand", have.Brand != want.Brand, want.Brand)
	c.set("category", have.Category != want.Category, want.Category)
	c.set("size", have.Size != want.Size, want.Size)
	c.set("color", have.Color != want.Color, want.Color)
	c.set("design", have.Design != want.Design, want.Design)
	c.set("location", have.Location != want.Location, want.Location)
	c.set("shop", have.Shop != want.Shop, want.Shop)
	c.set("quantity", have.Quantity != want.Quantity, want.Quantity)
	c.set("buying_price", have.BuyingPrice != want.BuyingPrice, want.BuyingPrice)
	c.set("selling_price", have.SellingPrice != want.SellingPrice, want.SellingPrice)
	if len(c) > 0 {
		c["source_updated_at"] = want.SourceUpdatedAt
	}
	return c.apply(tx, &have)
}

func (s *Store) applyReceipt(tx *gorm.DB, r *replication.ReceiptRecord) (replication.Outcome, error) {
	amounts, err := centsAll(map[string]decimal.Decimal{
		"sub_total":         r.SubTotal,
		"delivery_cost":     r.DeliveryCost,
		"total":             r.Total,
		"amount_paid":       r.AmountPaid,
		"balance_remaining": r.BalanceRemaining,
	})
	if err != nil {
		return "", err
	}
	want := Receipt{
		NaturalKey:       r.NaturalKey,
		ReceiptNumber:    r.ReceiptNumber,
		SubTotal:         amounts["sub_total"],
		DeliveryCost:     amounts["delivery_cost"],
		Total:            amounts["total"],
		AmountPaid:       amounts["amount_paid"],
		BalanceRemaining: amounts["balance_remaining"],
		PaymentStatus:    r.PaymentStatus,
		Date:             s.timestamp(replication.EntityReceipts, r.NaturalKey, "date", r.Date),
	}

	var have Receipt
	found, err := find(tx, &have, r.NaturalKey)
	if err != nil || !found {
		return created(tx, &want, err)
	}
	if have.Total != want.Total {
		return "", reject("total changed from %s to %s", money.String(have.Total), money.String(want.Total))
	}
	c := changes{}
	c.set("amount_paid", have.AmountPaid != want.AmountPaid, want.AmountPaid)
	c.set("balance_remaining", have.BalanceRemaining != want.BalanceRemaining, want.BalanceRemaining)
	c.set("payment_status", have.PaymentStatus != want.PaymentStatus, want.PaymentStatus)
	return c.apply(tx, &have)
}

func (s *Store) applySale(tx *gorm.DB, r *replication.SaleRecord) (replication.Outcome, error) {
	if err := requireParent(tx, &Receipt{}, "receipt", r.ReceiptKey); err != nil {
		return "", err
	}
	if err := requireParent(tx, &Product{}, "product", r.ProductKey); err != nil {
		return "", err
	}
	amounts, err := centsAll(map[string]decimal.Decimal{
		"unit_price":      r.UnitPrice,
		"discount_amount": r.DiscountAmount,
		"line_total":      r.LineTotal,
	})
	if err != nil {
		return "", err
	}
	want := Sale{
		NaturalKey:     r.NaturalKey,
		ReceiptKey:     r.ReceiptKey,
		ProductKey:     r.ProductKey,
		Quantity:       r.Quantity,
		UnitPrice:      amounts["unit_price"],
		DiscountAmount: amounts["discount_amount"],
		LineTotal:      amounts["line_total"],
		IsGift:         r.IsGift,
		SaleDate:       s.timestamp(replication.EntitySales, r.NaturalKey, "sale_date", r.SaleDate),
	}
	if r.OriginalValue != nil {
		v, err := cents("original_value", *r.OriginalValue)
		if err != nil {
			return "", err
		}
		want.OriginalValue = &v
	}

	var have Sale
	found, err := find(tx, &have, r.NaturalKey)
	if err != nil || !found {
		return created(tx, &want, err)
	}
	return replication.OutcomeSkipped, nil
}

func (s *Store) applyPayment(tx *gorm.DB, r *replication.PaymentRecord) (replication.Outcome, error) {
	if err := requireParent(tx, &Receipt{}, "receipt", r.ReceiptKey); err != nil {
		return "", err
	}
	outcome, err := s.ensurePayment(tx, r)
	if err != nil {
		return "", err
	}
	if err := linkSales(tx, r.NaturalKey, r.SaleKeys); err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Store) ensurePayment(tx *gorm.DB, r *replication.PaymentRecord) (replication.Outcome, error) {
	amounts, err := centsAll(map[string]decimal.Decimal{
		"total_amount": r.TotalAmount,
		"total_paid":   r.TotalPaid,
	})
	if err != nil {
		return "", err
	}
	want := Payment{
		NaturalKey:  r.NaturalKey,
		ReceiptKey:  r.ReceiptKey,
		Status:      r.Status,
		TotalAmount: amounts["total_amount"],
		TotalPaid:   amounts["total_paid"],
		PaymentDate: s.timestamp(replication.EntityPayments, r.NaturalKey, "payment_date", r.PaymentDate),
	}

	var have Payment
	found, err := find(tx, &have, r.NaturalKey)
	if err != nil || !found {
		return created(tx, &want, err)
	}
	c := changes{}
	c.set("status", have.Status != want.Status, want.Status)
	c.set("total_paid", have.TotalPaid != want.TotalPaid, want.TotalPaid)
	if len(c) > 0 {
		c["payment_date"] = want.PaymentDate
	}
	return c.apply(tx, &have)
}

// linkSales points each listed sale at the payment. It runs for new and
// existing payments alike and is a no-op for sales already linked.
func linkSales(tx *gorm.DB, paymentKey string, saleKeys []string) error {
	if len(saleKeys) == 0 {
		return nil
	}
	var existing []string
	if err := tx.Model(&Sale{}).Where("natural_key IN ?", saleKeys).Pluck("natural_key", &existing).Error; err != nil {
		return err
	}
	err := tx.Model(&Sale{}).
		Where("natural_key IN ?", saleKeys).
		Where("payment_key IS NULL OR payment_key <> ?", paymentKey).
		Update("payment_key", paymentKey).Error
	if err != nil {
		return err
	}

	if len(existing) < len(saleKeys) {
		have := make(map[string]bool, len(existing))
		for _, k := range existing {
			have[k] = true
		}
		var missing []string
		for _, k := range saleKeys {
			if !have[k] {
				missing = append(missing, k)
			}
		}
		return &rejection{reason: "sales not found: " + strings.Join(missing, ", "), keep: true}
	}
	return nil
}

func (s *Store) applyPaymentMethodLine(tx *gorm.DB, r *replication.PaymentMethodLineRecord) (replication.Outcome, error) {
	if err := requireParent(tx, &Payment{}, "payment", r.PaymentKey); err != nil {
		return "", err
	}
	amount, err := cents("amount", r.Amount)
	if err != nil {
		return "", err
	}
	want := PaymentMethodLine{
		NaturalKey: r.NaturalKey,
		PaymentKey: r.PaymentKey,
		Method:     r.Method,
		Amount:     amount,
		Reference:  r.Reference,
		LineDate:   s.timestamp(replication.EntityPaymentMethodLines, r.NaturalKey, "created_at", r.CreatedAt),
	}

	var have PaymentMethodLine
	found, err := find(tx, &have, r.NaturalKey)
	if err != nil || !found {
		return created(tx, &want, err)
	}
	return replication.OutcomeSkipped, nil
}

func (s *Store) timestamp(e replication.EntityType, key, field, raw string) time.Time {
	ts := replication.ParseTimestamp(raw, s.now())
	if ts.Fallback {
		s.log.Warn().
			Str("entity", string(e)).
			Str("natural_key", key).
			Str("field", field).
			Str("raw", raw).
			Msg("unreadable timestamp, using processing time")
	}
	return ts.Time
}

func find(tx *gorm.DB, dst any, key string) (bool, error) {
	err := tx.Where("natural_key = ?", key).Take(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func created(tx *gorm.DB, row any, findErr error) (replication.Outcome, error) {
	if findErr != nil {
		return "", findErr
	}
	if err := tx.Create(row).Error; err != nil {
		return "", err
	}
	return replication.OutcomeCreated, nil
}

func requireParent(tx *gorm.DB, model any, name, key string) error {
	var n int64
	if err := tx.Model(model).Where("natural_key = ?", key).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return reject("%s %s not found", name, key)
	}
	return nil
}

// changes collects the columns of an existing row that differ from the
// incoming record.
type changes map[string]any

func (c changes) set(column string, differs bool, value any) {
	if differs {
		c[column] = value
	}
}

func (c changes) apply(tx *gorm.DB, row any) (replication.Outcome, error) {
	if len(c) == 0 {
		return replication.OutcomeSkipped, nil
	}
	if err := tx.Model(row).Updates(map[string]any(c)).Error; err != nil {
		return "", err
	}
	return replication.OutcomeUpdated, nil
}

func cents(field string, d decimal.Decimal) (int64, error) {
	c, err := money.FromDecimal(d)
	if err != nil {
		return 0, reject("%s: %v", field, err)
	}
	return c, nil
}

func centsAll(fields map[string]decimal.Decimal) (map[string]int64, error) {
	out := make(map[string]int64, len(fields))
	for name, d := range fields {
		c, err := cents(name, d)
		if err != nil {
			return nil, err
		}
		out[name] = c
	}
	return out, nil
}

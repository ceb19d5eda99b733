package replication

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sangkips/tillsync/internal/domain/entity"
)

// EntityType names a replicated table on the mirror
type EntityType string

const (
	EntityProducts           EntityType = "products"
	EntityReceipts           EntityType = "receipts"
	EntitySales              EntityType = "sales"
	EntityPayments           EntityType = "payments"
	EntityPaymentMethodLines EntityType = "payment_method_lines"
)

// EntityOrder is the dependency order of a run. Every entity is sent after
// the entities its records reference.
var EntityOrder = []EntityType{
	EntityProducts,
	EntityReceipts,
	EntitySales,
	EntityPayments,
	EntityPaymentMethodLines,
}

// ParseEntityType accepts the names used in mirror URLs
func ParseEntityType(s string) (EntityType, error) {
	for _, e := range EntityOrder {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Key identifies a record on the mirror
type Key struct {
	Type  EntityType
	Value string
}

func (k Key) String() string {
	return string(k.Type) + "/" + k.Value
}

// ProductKey returns the product's barcode when it has one. Products without
// a barcode are keyed by brand, size, color and location, so two such
// products agreeing on all four are the same mirror record.
func ProductKey(p *entity.Product) string {
	if code := strings.TrimSpace(p.Code); code != "" {
		return "code:" + code
	}
	attrs := url.Values{}
	attrs.Set("brand", normalizeAttr(p.Brand))
	attrs.Set("size", normalizeAttr(p.Size))
	attrs.Set("color", normalizeAttr(p.Color))
	attrs.Set("location", normalizeAttr(p.Location))
	return "attrs:" + attrs.Encode()
}

func normalizeAttr(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Replicated lists the local entities that have a mirror key. Customers are
// not among them and never leave the till.
type Replicated interface {
	*entity.Product | *entity.Receipt | *entity.Sale | *entity.Payment | *entity.PaymentMethodLine
}

// NaturalKey derives the mirror key of a local entity.
func NaturalKey[T Replicated](v T) Key {
	var k Key
	switch e := any(v).(type) {
	case *entity.Product:
		k = Key{Type: EntityProducts, Value: ProductKey(e)}
	case *entity.Receipt:
		k = Key{Type: EntityReceipts, Value: e.ID.String()}
	case *entity.Sale:
		k = Key{Type: EntitySales, Value: e.ID.String()}
	case *entity.Payment:
		k = Key{Type: EntityPayments, Value: e.ID.String()}
	case *entity.PaymentMethodLine:
		k = Key{Type: EntityPaymentMethodLines, Value: e.ID.String()}
	}
	return k
}

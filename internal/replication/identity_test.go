package replication

import (
	"testing"

	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductKey(t *testing.T) {
	withCode := &entity.Product{Code: " 6001234 ", Brand: "Ankara"}
	assert.Equal(t, "code:6001234", ProductKey(withCode))

	a := &entity.Product{Brand: "Ankara", Size: "M", Color: "Blue", Location: "Lagos", Design: "floral"}
	b := &entity.Product{Brand: " ankara", Size: "m", Color: "blue ", Location: "LAGOS", Design: "plain"}
	assert.Equal(t, ProductKey(a), ProductKey(b), "products agreeing on brand, size, color and location share a key")
	assert.Equal(t, "attrs:brand=ankara&color=blue&location=lagos&size=m", ProductKey(a))

	c := &entity.Product{Brand: "Ankara", Size: "L", Color: "Blue", Location: "Lagos"}
	assert.NotEqual(t, ProductKey(a), ProductKey(c))

	// Separators inside attributes cannot forge another product's key.
	d := &entity.Product{Brand: "x&size=m", Size: ""}
	e := &entity.Product{Brand: "x", Size: "m"}
	assert.NotEqual(t, ProductKey(d), ProductKey(e))
}

func TestNaturalKey(t *testing.T) {
	id := uuid.New()

	key := NaturalKey(&entity.Receipt{ID: id})
	assert.Equal(t, Key{Type: EntityReceipts, Value: id.String()}, key)
	assert.Equal(t, "receipts/"+id.String(), key.String())

	assert.Equal(t, EntityPaymentMethodLines, NaturalKey(&entity.PaymentMethodLine{ID: id}).Type)
	assert.Equal(t, "code:X1", NaturalKey(&entity.Product{Code: "X1"}).Value)
}

func TestRecordsUseNaturalKeys(t *testing.T) {
	st := &stamper{}
	product := &entity.Product{Brand: "Ankara", Size: "M", Color: "blue", Location: "lagos"}
	receipt := &entity.Receipt{ID: uuid.New()}
	payment := &entity.Payment{ID: uuid.New(), ReceiptID: receipt.ID}
	sale := entity.Sale{ID: uuid.New(), ReceiptID: receipt.ID, Product: product}
	payment.Sales = []entity.Sale{sale}
	line := &entity.PaymentMethodLine{ID: uuid.New(), PaymentID: payment.ID}

	assert.Equal(t, NaturalKey(product).Value, productRecord(product, st).NaturalKey)
	assert.Equal(t, NaturalKey(receipt).Value, receiptRecord(receipt, st).NaturalKey)

	sr := saleRecord(&sale, st)
	assert.Equal(t, NaturalKey(&sale).Value, sr.NaturalKey)
	assert.Equal(t, NaturalKey(receipt).Value, sr.ReceiptKey)
	assert.Equal(t, NaturalKey(product).Value, sr.ProductKey)

	pr := paymentRecord(payment, st)
	assert.Equal(t, NaturalKey(receipt).Value, pr.ReceiptKey)
	assert.Equal(t, []string{NaturalKey(&sale).Value}, pr.SaleKeys)

	assert.Equal(t, NaturalKey(payment).Value, paymentMethodLineRecord(line, st).PaymentKey)
}

func TestParseEntityType(t *testing.T) {
	e, err := ParseEntityType("payment_method_lines")
	require.NoError(t, err)
	assert.Equal(t, EntityPaymentMethodLines, e)

	_, err = ParseEntityType("customers")
	assert.Error(t, err)
}

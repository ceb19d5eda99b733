package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/domain/enum"
	"github.com/sangkips/tillsync/pkg/apperror"
	"github.com/sangkips/tillsync/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReceiptWithGiftAndDeposit(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t)
	dress := env.product(t, 4500, 5)
	scarf := env.product(t, 1200, 2)
	reason := "loyalty"

	r, err := env.checkout.CreateReceipt(context.Background(), &CreateReceiptInput{
		UserID:       env.cashier,
		CustomerID:   &c.ID,
		DeliveryCost: 500,
		Items: []SaleItemInput{
			{ProductID: dress.ID, Quantity: 2, DiscountAmount: 1000},
			{ProductID: scarf.ID, Quantity: 1, IsGift: true, GiftReason: &reason},
		},
		Payments: []PaymentEntry{cash(3000)},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(8000), r.SubTotal)
	assert.Equal(t, int64(8500), r.Total)
	assert.Equal(t, int64(3000), r.AmountPaid)
	assert.Equal(t, enum.PaymentStatusPartial, r.PaymentStatus)
	assert.Regexp(t, `^RCPT-`, r.ReceiptNumber)
	require.Len(t, r.Sales, 2)
	require.NotNil(t, r.Payment)
	require.Len(t, r.PartialPayments, 1)

	for _, sale := range r.Sales {
		require.NotNil(t, sale.PaymentID)
		assert.Equal(t, r.Payment.ID, *sale.PaymentID)
		if sale.ProductID == scarf.ID {
			assert.True(t, sale.IsGift)
			assert.Zero(t, sale.LineTotal)
			require.NotNil(t, sale.OriginalValue)
			assert.Equal(t, int64(1200), *sale.OriginalValue)
		}
	}

	var stock entity.Product
	require.NoError(t, env.db.First(&stock, "id = ?", dress.ID).Error)
	assert.Equal(t, 3, stock.Quantity)

	env.requireConsistent(t, r.ID)
	assert.Equal(t, 1, env.publisher.count())
}

func TestCreateReceiptInsufficientStockRollsBack(t *testing.T) {
	env := newTestEnv(t)
	plenty := env.product(t, 1000, 10)
	scarce := env.product(t, 1000, 1)

	_, err := env.checkout.CreateReceipt(context.Background(), &CreateReceiptInput{
		UserID: env.cashier,
		Items: []SaleItemInput{
			{ProductID: plenty.ID, Quantity: 3},
			{ProductID: scarce.ID, Quantity: 2},
		},
	})
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)
	assert.Equal(t, []string{scarce.Code}, apperror.GetAppError(err).Details["products"])

	var stock entity.Product
	require.NoError(t, env.db.First(&stock, "id = ?", plenty.ID).Error)
	assert.Equal(t, 10, stock.Quantity)

	var receipts int64
	require.NoError(t, env.db.Model(&entity.Receipt{}).Count(&receipts).Error)
	assert.Zero(t, receipts)
}

func TestCreateReceiptOverpaidDepositRollsBack(t *testing.T) {
	env := newTestEnv(t)
	p := env.product(t, 1000, 1)

	_, err := env.checkout.CreateReceipt(context.Background(), &CreateReceiptInput{
		UserID:   env.cashier,
		Items:    []SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		Payments: []PaymentEntry{cash(1500)},
	})
	require.ErrorIs(t, err, apperror.ErrOverpayment)

	var stock entity.Product
	require.NoError(t, env.db.First(&stock, "id = ?", p.ID).Error)
	assert.Equal(t, 1, stock.Quantity)
}

func TestCreateReceiptAllGiftsIsPaid(t *testing.T) {
	env := newTestEnv(t)
	p := env.product(t, 1000, 1)

	r, err := env.checkout.CreateReceipt(context.Background(), &CreateReceiptInput{
		UserID: env.cashier,
		Items:  []SaleItemInput{{ProductID: p.ID, Quantity: 1, IsGift: true}},
	})
	require.NoError(t, err)
	assert.Zero(t, r.Total)
	assert.Equal(t, enum.PaymentStatusPaid, r.PaymentStatus)
	env.requireConsistent(t, r.ID)
}

func TestCreateReceiptValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.checkout.CreateReceipt(context.Background(), &CreateReceiptInput{UserID: env.cashier})
	assert.Equal(t, apperror.ReasonValidation, apperror.GetAppError(err).Reason)

	_, err = env.checkout.CreateReceipt(context.Background(), &CreateReceiptInput{
		UserID: env.cashier,
		Items:  []SaleItemInput{{ProductID: uuid.New(), Quantity: 1}},
	})
	assert.Equal(t, apperror.ReasonNotFound, apperror.GetAppError(err).Reason)
}

func TestListOutstanding(t *testing.T) {
	env := newTestEnv(t)
	open := env.receipt(t, 2000, nil)
	closed := env.receipt(t, 1000, nil)
	_, err := env.settlement.Settle(context.Background(), &SettleInput{ReceiptID: closed.ID, UserID: env.cashier, Payments: []PaymentEntry{cash(1000)}})
	require.NoError(t, err)

	result, err := env.checkout.ListOutstanding(context.Background(), &pagination.Params{Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, open.ID, result.Items[0].ID)
	assert.Equal(t, int64(1), result.Pagination.Total)
}

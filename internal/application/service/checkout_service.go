package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/domain/enum"
	"github.com/sangkips/tillsync/internal/domain/repository"
	"github.com/sangkips/tillsync/pkg/apperror"
	"github.com/sangkips/tillsync/pkg/money"
	"github.com/sangkips/tillsync/pkg/pagination"
	"github.com/sangkips/tillsync/pkg/utils"
)

// CheckoutService finalizes receipts at the till
type CheckoutService struct {
	tx         repository.Transactor
	receipts   repository.ReceiptRepository
	sales      repository.SaleRepository
	payments   repository.PaymentRepository
	products   repository.ProductRepository
	customers  repository.CustomerRepository
	settlement *SettlementService
	log        zerolog.Logger
	now        func() time.Time
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	tx repository.Transactor,
	receipts repository.ReceiptRepository,
	sales repository.SaleRepository,
	payments repository.PaymentRepository,
	products repository.ProductRepository,
	customers repository.CustomerRepository,
	settlement *SettlementService,
	log zerolog.Logger,
) *CheckoutService {
	return &CheckoutService{
		tx:         tx,
		receipts:   receipts,
		sales:      sales,
		payments:   payments,
		products:   products,
		customers:  customers,
		settlement: settlement,
		log:        log.With().Str("component", "checkout").Logger(),
		now:        time.Now,
	}
}

// SaleItemInput represents one line of a checkout
type SaleItemInput struct {
	ProductID      uuid.UUID
	Quantity       int
	UnitPrice      *int64 // defaults to the product's selling price
	DiscountAmount int64
	IsGift         bool
	GiftReason     *string
}

// CreateReceiptInput represents a checkout
type CreateReceiptInput struct {
	UserID       uuid.UUID
	CustomerID   *uuid.UUID
	DeliveryCost int64
	Items        []SaleItemInput
	Payments     []PaymentEntry // optional deposit applied at checkout
}

// CreateReceipt records the receipt, its sales and payment container, takes
// the stock, and applies any deposit, all in one transaction.
func (s *CheckoutService) CreateReceipt(ctx context.Context, input *CreateReceiptInput) (*entity.Receipt, error) {
	if err := validateCheckout(input); err != nil {
		return nil, err
	}

	var receiptID uuid.UUID
	var settled *SettlementResult
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		receipt, err := s.createReceipt(ctx, input)
		if err != nil {
			return err
		}
		receiptID = receipt.ID

		if len(input.Payments) == 0 {
			return nil
		}
		settled, err = s.settlement.settle(ctx, &SettleInput{
			ReceiptID: receipt.ID,
			UserID:    input.UserID,
			Payments:  input.Payments,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.settlement.publishSettlement(ctx, input.UserID, settled)
	return s.receipts.GetWithDetails(ctx, receiptID)
}

func (s *CheckoutService) createReceipt(ctx context.Context, input *CreateReceiptInput) (*entity.Receipt, error) {
	if input.CustomerID != nil {
		customer, err := s.customers.GetByID(ctx, *input.CustomerID)
		if err != nil {
			return nil, err
		}
		if customer == nil {
			return nil, apperror.NewNotFoundError("Customer")
		}
	}

	productIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.products.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	productMap := make(map[uuid.UUID]*entity.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	now := s.now()
	var subTotal int64
	sales := make([]entity.Sale, 0, len(input.Items))
	stockDecrements := make(map[uuid.UUID]int)

	for i, item := range input.Items {
		product, exists := productMap[item.ProductID]
		if !exists {
			return nil, apperror.NewNotFoundError(fmt.Sprintf("Product %s", item.ProductID))
		}

		unitPrice := product.SellingPrice
		if item.UnitPrice != nil {
			unitPrice = *item.UnitPrice
		}
		gross := unitPrice * int64(item.Quantity)
		if item.DiscountAmount > gross {
			return nil, apperror.NewFieldError(fmt.Sprintf("items[%d].discount_amount", i), "exceeds the line value")
		}
		value := gross - item.DiscountAmount

		sale := entity.Sale{
			ProductID:      product.ID,
			Quantity:       item.Quantity,
			UnitPrice:      unitPrice,
			DiscountAmount: item.DiscountAmount,
			LineTotal:      value,
			SaleDate:       now,
		}
		if item.IsGift {
			original := value
			sale.IsGift = true
			sale.GiftReason = item.GiftReason
			sale.OriginalValue = &original
			sale.LineTotal = 0
		}
		subTotal += sale.LineTotal
		sales = append(sales, sale)
		stockDecrements[product.ID] += item.Quantity
	}

	failedIDs, err := s.products.AtomicDecrementBatch(ctx, stockDecrements)
	if err != nil {
		return nil, err
	}
	if len(failedIDs) > 0 {
		var codes []string
		for _, id := range failedIDs {
			if p, ok := productMap[id]; ok {
				codes = append(codes, productLabel(p))
			}
		}
		return nil, &apperror.AppError{
			Code:    apperror.ErrInsufficientStock.Code,
			Reason:  apperror.ErrInsufficientStock.Reason,
			Message: apperror.ErrInsufficientStock.Message,
			Details: map[string]any{"products": codes},
		}
	}

	total := subTotal + input.DeliveryCost
	status := enum.PaymentStatusFor(0, total)
	receipt := &entity.Receipt{
		ReceiptNumber:    utils.GenerateReferenceNo("RCPT"),
		CustomerID:       input.CustomerID,
		UserID:           input.UserID,
		SubTotal:         subTotal,
		DeliveryCost:     input.DeliveryCost,
		Total:            total,
		AmountPaid:       0,
		BalanceRemaining: total,
		PaymentStatus:    status,
		Version:          1,
	}
	if err := s.receipts.Create(ctx, receipt); err != nil {
		return nil, err
	}

	payment := &entity.Payment{
		ReceiptID:   receipt.ID,
		Status:      status,
		TotalAmount: total,
		PaymentDate: now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	for i := range sales {
		sales[i].ReceiptID = receipt.ID
		sales[i].PaymentID = &payment.ID
	}
	if err := s.sales.CreateBatch(ctx, sales); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("receipt", receipt.ReceiptNumber).
		Int("lines", len(sales)).
		Str("total", money.String(total)).
		Msg("receipt created")
	return receipt, nil
}

// GetReceipt returns a receipt with its sales, payment and ledger
func (s *CheckoutService) GetReceipt(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	receipt, err := s.receipts.GetWithDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, apperror.NewNotFoundError("Receipt")
	}
	return receipt, nil
}

// ListOutstanding returns receipts with a balance still owed
func (s *CheckoutService) ListOutstanding(ctx context.Context, params *pagination.Params) (*pagination.Page[entity.Receipt], error) {
	if params == nil {
		params = &pagination.Params{}
	}
	params.Normalize()

	receipts, total, err := s.receipts.ListOutstanding(ctx, params)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(receipts, *params, total), nil
}

func validateCheckout(input *CreateReceiptInput) error {
	var fieldErrors []apperror.FieldError
	if len(input.Items) == 0 {
		fieldErrors = append(fieldErrors, apperror.FieldError{Field: "items", Message: "at least one item is required"})
	}
	for i, item := range input.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.Quantity <= 0 {
			fieldErrors = append(fieldErrors, apperror.FieldError{Field: field + ".quantity", Message: "must be greater than zero"})
		}
		if item.UnitPrice != nil && *item.UnitPrice < 0 {
			fieldErrors = append(fieldErrors, apperror.FieldError{Field: field + ".unit_price", Message: "must not be negative"})
		}
		if item.DiscountAmount < 0 {
			fieldErrors = append(fieldErrors, apperror.FieldError{Field: field + ".discount_amount", Message: "must not be negative"})
		}
	}
	if input.DeliveryCost < 0 {
		fieldErrors = append(fieldErrors, apperror.FieldError{Field: "delivery_cost", Message: "must not be negative"})
	}
	if len(fieldErrors) > 0 {
		return apperror.NewValidationError(fieldErrors)
	}
	return validateEntries(input.Payments)
}

func productLabel(p *entity.Product) string {
	if p.Code != "" {
		return p.Code
	}
	return fmt.Sprintf("%s %s %s", p.Brand, p.Size, p.Color)
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/domain/enum"
	"github.com/sangkips/tillsync/internal/domain/repository"
	"github.com/sangkips/tillsync/pkg/apperror"
	"github.com/sangkips/tillsync/pkg/money"
)

// SettlementService applies payments against receipts. It is the only writer
// of a receipt's amount_paid, balance_remaining and payment_status.
type SettlementService struct {
	tx        repository.Transactor
	receipts  repository.ReceiptRepository
	payments  repository.PaymentRepository
	ledger    repository.PartialPaymentRepository
	credits   *StoreCreditService
	publisher EventPublisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewSettlementService creates a new settlement service
func NewSettlementService(
	tx repository.Transactor,
	receipts repository.ReceiptRepository,
	payments repository.PaymentRepository,
	ledger repository.PartialPaymentRepository,
	credits *StoreCreditService,
	publisher EventPublisher,
	log zerolog.Logger,
) *SettlementService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &SettlementService{
		tx:        tx,
		receipts:  receipts,
		payments:  payments,
		ledger:    ledger,
		credits:   credits,
		publisher: publisher,
		log:       log.With().Str("component", "settlement").Logger(),
		now:       time.Now,
	}
}

// PaymentEntry is one tender offered against a receipt
type PaymentEntry struct {
	Amount    int64
	Method    enum.PaymentMethod
	Reference *string
	Notes     *string
}

// SettleInput represents a settlement request
type SettleInput struct {
	ReceiptID uuid.UUID
	UserID    uuid.UUID
	Payments  []PaymentEntry
}

// SettlementResult describes the receipt after a settlement
type SettlementResult struct {
	Receipt        *entity.Receipt           `json:"receipt"`
	PreviousStatus enum.PaymentStatus        `json:"previous_status"`
	AmountApplied  int64                     `json:"-"`
	Entries        []entity.PartialPayment   `json:"entries"`
	CreditUsages   []entity.StoreCreditUsage `json:"credit_usages,omitempty"`
}

// MarshalJSON custom marshaler to convert cents to decimal for API responses
func (r SettlementResult) MarshalJSON() ([]byte, error) {
	type Alias SettlementResult
	return json.Marshal(&struct {
		Alias
		AmountApplied float64 `json:"amount_applied"`
	}{
		Alias:         Alias(r),
		AmountApplied: float64(r.AmountApplied) / 100,
	})
}

// Settle applies input.Payments to the receipt in one transaction.
//
// A zero total records nothing and leaves the receipt as it was. A total
// above the remaining balance is rejected with an overpayment error. A paid
// receipt accepts no further settlement.
func (s *SettlementService) Settle(ctx context.Context, input *SettleInput) (*SettlementResult, error) {
	if err := validateEntries(input.Payments); err != nil {
		return nil, err
	}

	var result *SettlementResult
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.settle(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishSettlement(ctx, input.UserID, result)
	return result, nil
}

// History returns the ledger entries of a receipt in payment order
func (s *SettlementService) History(ctx context.Context, receiptID uuid.UUID) ([]entity.PartialPayment, error) {
	receipt, err := s.receipts.GetByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, apperror.NewNotFoundError("Receipt")
	}
	return s.ledger.ListByReceipt(ctx, receiptID)
}

// settle must run inside a transaction.
func (s *SettlementService) settle(ctx context.Context, input *SettleInput) (*SettlementResult, error) {
	receipt, err := s.receipts.GetForUpdate(ctx, input.ReceiptID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, apperror.NewNotFoundError("Receipt")
	}
	if receipt.IsPaid() {
		return nil, apperror.ErrReceiptAlreadyPaid
	}

	result := &SettlementResult{Receipt: receipt, PreviousStatus: receipt.PaymentStatus}

	var provided int64
	for _, p := range input.Payments {
		provided += p.Amount
	}
	if provided == 0 {
		return result, nil
	}
	if provided > receipt.BalanceRemaining {
		s.log.Info().
			Str("receipt", receipt.ReceiptNumber).
			Str("provided", money.String(provided)).
			Str("balance_remaining", money.String(receipt.BalanceRemaining)).
			Msg("settlement rejected: overpayment")
		return nil, apperror.NewOverpaymentError(provided, receipt.BalanceRemaining)
	}

	payment, err := s.paymentFor(ctx, receipt)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for _, p := range input.Payments {
		if p.Amount == 0 {
			continue
		}

		if p.Method == enum.PaymentMethodStoreCredit {
			if receipt.CustomerID == nil {
				return nil, apperror.NewFieldError("payments", "store credit requires a receipt with a customer")
			}
			usages, err := s.credits.allocate(ctx, &AllocateInput{
				CustomerID: *receipt.CustomerID,
				Amount:     p.Amount,
				ReceiptID:  &receipt.ID,
				UsedBy:     input.UserID,
			})
			if err != nil {
				return nil, err
			}
			result.CreditUsages = append(result.CreditUsages, usages...)
		}

		entry := entity.PartialPayment{
			ReceiptID:   receipt.ID,
			Amount:      p.Amount,
			Method:      p.Method,
			Notes:       p.Notes,
			ReceivedBy:  input.UserID,
			PaymentDate: now,
		}
		if err := s.ledger.Create(ctx, &entry); err != nil {
			return nil, err
		}
		result.Entries = append(result.Entries, entry)

		line := entity.PaymentMethodLine{
			PaymentID: payment.ID,
			Method:    p.Method,
			Amount:    p.Amount,
			Reference: p.Reference,
		}
		if err := s.payments.AddLine(ctx, &line); err != nil {
			return nil, err
		}
	}

	paid, err := s.ledger.SumByReceipt(ctx, receipt.ID)
	if err != nil {
		return nil, err
	}
	if paid != receipt.AmountPaid+provided {
		return nil, fmt.Errorf("ledger for receipt %s sums to %d, expected %d",
			receipt.ReceiptNumber, paid, receipt.AmountPaid+provided)
	}

	expectedVersion := receipt.Version
	receipt.AmountPaid = paid
	receipt.BalanceRemaining = receipt.Total - paid
	receipt.PaymentStatus = enum.PaymentStatusFor(receipt.AmountPaid, receipt.BalanceRemaining)
	if err := receipt.CheckBalance(); err != nil {
		return nil, err
	}
	if err := s.receipts.ApplySettlement(ctx, receipt, expectedVersion); err != nil {
		return nil, err
	}

	payment.TotalPaid = paid
	payment.Status = receipt.PaymentStatus
	payment.PaymentDate = now
	if err := s.payments.UpdateTotals(ctx, payment); err != nil {
		return nil, err
	}

	result.AmountApplied = provided
	s.log.Info().
		Str("receipt", receipt.ReceiptNumber).
		Str("applied", money.String(provided)).
		Str("status", receipt.PaymentStatus.String()).
		Str("balance_remaining", money.String(receipt.BalanceRemaining)).
		Msg("receipt settled")
	return result, nil
}

// paymentFor returns the receipt's payment container, creating it for
// receipts recorded before containers existed.
func (s *SettlementService) paymentFor(ctx context.Context, receipt *entity.Receipt) (*entity.Payment, error) {
	payment, err := s.payments.GetByReceiptID(ctx, receipt.ID)
	if err != nil {
		return nil, err
	}
	if payment != nil {
		return payment, nil
	}
	payment = &entity.Payment{
		ReceiptID:   receipt.ID,
		Status:      receipt.PaymentStatus,
		TotalAmount: receipt.Total,
		TotalPaid:   receipt.AmountPaid,
		PaymentDate: s.now(),
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func validateEntries(entries []PaymentEntry) error {
	var fieldErrors []apperror.FieldError
	for i, p := range entries {
		field := fmt.Sprintf("payments[%d]", i)
		if p.Amount < 0 {
			fieldErrors = append(fieldErrors, apperror.FieldError{Field: field + ".amount", Message: "must not be negative"})
		}
		if p.Amount > 0 && !p.Method.IsValid() {
			fieldErrors = append(fieldErrors, apperror.FieldError{Field: field + ".method", Message: "unknown payment method"})
		}
	}
	if len(fieldErrors) > 0 {
		return apperror.NewValidationError(fieldErrors)
	}
	return nil
}

func (s *SettlementService) publishSettlement(ctx context.Context, userID uuid.UUID, result *SettlementResult) {
	if result == nil || result.AmountApplied == 0 {
		return
	}
	r := result.Receipt
	event := ReceiptSettledEvent{
		Type:             EventReceiptSettled,
		ReceiptID:        r.ID,
		ReceiptNumber:    r.ReceiptNumber,
		AmountApplied:    money.ToDecimal(result.AmountApplied),
		AmountPaid:       money.ToDecimal(r.AmountPaid),
		BalanceRemaining: money.ToDecimal(r.BalanceRemaining),
		PreviousStatus:   result.PreviousStatus.String(),
		Status:           r.PaymentStatus.String(),
		SettledBy:        userID,
		OccurredAt:       s.now().UTC(),
	}
	for _, e := range result.Entries {
		event.Methods = append(event.Methods, e.Method.String())
	}
	if err := s.publisher.Publish(ctx, r.ID.String(), event); err != nil {
		s.log.Warn().Err(err).Str("receipt", r.ReceiptNumber).Msg("failed to publish settlement event")
	}

	if len(result.CreditUsages) > 0 && r.CustomerID != nil {
		s.credits.publishAllocation(ctx, *r.CustomerID, &r.ID, result.CreditUsages)
	}
}

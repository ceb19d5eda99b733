package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/domain/repository"
	"github.com/sangkips/tillsync/pkg/apperror"
	"github.com/sangkips/tillsync/pkg/money"
	"github.com/sangkips/tillsync/pkg/utils"
)

// StoreCreditService issues store credit and allocates it oldest grant first
type StoreCreditService struct {
	tx        repository.Transactor
	credits   repository.StoreCreditRepository
	customers repository.CustomerRepository
	publisher EventPublisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewStoreCreditService creates a new store credit service
func NewStoreCreditService(
	tx repository.Transactor,
	credits repository.StoreCreditRepository,
	customers repository.CustomerRepository,
	publisher EventPublisher,
	log zerolog.Logger,
) *StoreCreditService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &StoreCreditService{
		tx:        tx,
		credits:   credits,
		customers: customers,
		publisher: publisher,
		log:       log.With().Str("component", "store_credit").Logger(),
		now:       time.Now,
	}
}

// IssueGrantInput represents a new grant, typically from a return
type IssueGrantInput struct {
	CustomerID uuid.UUID
	Amount     int64
	ExpiresAt  *time.Time
	Notes      *string
	IssuedBy   uuid.UUID
}

// AllocateInput asks for Amount of the customer's credit
type AllocateInput struct {
	CustomerID uuid.UUID
	Amount     int64
	ReceiptID  *uuid.UUID
	UsedBy     uuid.UUID
}

// CreditBalance summarizes a customer's grants
type CreditBalance struct {
	CustomerID uuid.UUID                 `json:"customer_id"`
	Available  int64                     `json:"-"`
	Grants     []entity.StoreCreditGrant `json:"grants"`
}

// MarshalJSON custom marshaler to convert cents to decimal for API responses
func (b CreditBalance) MarshalJSON() ([]byte, error) {
	type Alias CreditBalance
	return json.Marshal(&struct {
		Alias
		Available float64 `json:"available"`
	}{
		Alias:     Alias(b),
		Available: float64(b.Available) / 100,
	})
}

// IssueGrant creates an active grant for the customer
func (s *StoreCreditService) IssueGrant(ctx context.Context, input *IssueGrantInput) (*entity.StoreCreditGrant, error) {
	if input.Amount <= 0 {
		return nil, apperror.NewFieldError("amount", "must be greater than zero")
	}
	now := s.now()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return nil, apperror.NewFieldError("expires_at", "must be in the future")
	}

	customer, err := s.customers.GetByID(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, apperror.NewNotFoundError("Customer")
	}

	grant := &entity.StoreCreditGrant{
		CreditNumber:    utils.GenerateReferenceNo("SC"),
		CustomerID:      input.CustomerID,
		OriginalAmount:  input.Amount,
		RemainingAmount: input.Amount,
		IsActive:        true,
		IssuedAt:        now,
		ExpiresAt:       input.ExpiresAt,
		IssuedBy:        input.IssuedBy,
		Notes:           input.Notes,
	}
	if err := s.credits.CreateGrant(ctx, grant); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("customer_id", input.CustomerID.String()).
		Str("credit_number", grant.CreditNumber).
		Str("amount", money.String(input.Amount)).
		Msg("store credit issued")
	return grant, nil
}

// Balance returns the customer's grants and the amount currently consumable
func (s *StoreCreditService) Balance(ctx context.Context, customerID uuid.UUID) (*CreditBalance, error) {
	customer, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, apperror.NewNotFoundError("Customer")
	}

	grants, err := s.credits.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	balance := &CreditBalance{CustomerID: customerID, Grants: grants}
	for i := range grants {
		if grants[i].IsConsumable(now) {
			balance.Available += grants[i].RemainingAmount
		}
	}
	return balance, nil
}

// Allocate covers input.Amount from the customer's grants, oldest first. It
// either covers the whole amount or changes nothing. Standalone allocations
// carry no receipt link; credit against a receipt goes through Settle with a
// store_credit entry so the receipt balance moves in the same transaction.
func (s *StoreCreditService) Allocate(ctx context.Context, input *AllocateInput) ([]entity.StoreCreditUsage, error) {
	if input.ReceiptID != nil {
		return nil, apperror.NewFieldError("receipt_id", "settle the receipt with a store_credit payment instead")
	}
	customer, err := s.customers.GetByID(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, apperror.NewNotFoundError("Customer")
	}

	var usages []entity.StoreCreditUsage
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		usages, err = s.allocate(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishAllocation(ctx, input.CustomerID, nil, usages)
	return usages, nil
}

// allocate must run inside a transaction; the grant rows stay locked until
// the caller commits.
func (s *StoreCreditService) allocate(ctx context.Context, input *AllocateInput) ([]entity.StoreCreditUsage, error) {
	if input.Amount <= 0 {
		return nil, apperror.NewFieldError("amount", "must be greater than zero")
	}

	now := s.now()
	grants, err := s.credits.ListConsumableForUpdate(ctx, input.CustomerID, now)
	if err != nil {
		return nil, err
	}
	orderForConsumption(grants)

	var available int64
	for i := range grants {
		if grants[i].IsConsumable(now) {
			available += grants[i].RemainingAmount
		}
	}
	if available < input.Amount {
		s.log.Info().
			Str("customer_id", input.CustomerID.String()).
			Str("needed", money.String(input.Amount)).
			Str("available", money.String(available)).
			Msg("store credit allocation rejected")
		return nil, apperror.NewInsufficientCreditError(input.Amount, available)
	}

	remaining := input.Amount
	usages := make([]entity.StoreCreditUsage, 0, len(grants))
	for i := range grants {
		if remaining == 0 {
			break
		}
		grant := &grants[i]
		if !grant.IsConsumable(now) {
			continue
		}

		take := min(grant.RemainingAmount, remaining)
		if err := s.credits.Deduct(ctx, grant.ID, take); err != nil {
			return nil, err
		}
		grant.RemainingAmount -= take
		grant.IsActive = grant.RemainingAmount > 0

		usage := entity.StoreCreditUsage{
			GrantID:    grant.ID,
			CustomerID: input.CustomerID,
			ReceiptID:  input.ReceiptID,
			AmountUsed: take,
			UsedBy:     input.UsedBy,
			UsedAt:     now,
		}
		if err := s.credits.CreateUsage(ctx, &usage); err != nil {
			return nil, err
		}
		usages = append(usages, usage)
		remaining -= take
	}

	return usages, nil
}

// orderForConsumption sorts grants oldest issue date first, breaking ties by
// ID so the order never depends on how storage returned the rows.
func orderForConsumption(grants []entity.StoreCreditGrant) {
	sort.SliceStable(grants, func(i, j int) bool {
		if !grants[i].IssuedAt.Equal(grants[j].IssuedAt) {
			return grants[i].IssuedAt.Before(grants[j].IssuedAt)
		}
		return grants[i].ID.String() < grants[j].ID.String()
	})
}

// publishAllocation reports committed usages. receiptID is set when the
// credit settled a receipt.
func (s *StoreCreditService) publishAllocation(ctx context.Context, customerID uuid.UUID, receiptID *uuid.UUID, usages []entity.StoreCreditUsage) {
	if len(usages) == 0 {
		return
	}
	var amount int64
	event := StoreCreditAllocatedEvent{
		Type:       EventStoreCreditAllocated,
		CustomerID: customerID,
		ReceiptID:  receiptID,
		OccurredAt: s.now().UTC(),
	}
	for _, u := range usages {
		amount += u.AmountUsed
		event.GrantIDs = append(event.GrantIDs, u.GrantID)
	}
	event.Amount = money.ToDecimal(amount)
	if err := s.publisher.Publish(ctx, customerID.String(), event); err != nil {
		s.log.Warn().Err(err).Str("customer_id", customerID.String()).Msg("failed to publish allocation event")
	}
}

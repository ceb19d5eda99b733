package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/application/service"
	"github.com/sangkips/tillsync/internal/domain/enum"
	"github.com/sangkips/tillsync/internal/presentation/http/dto/request"
	"github.com/sangkips/tillsync/internal/presentation/http/dto/response"
	"github.com/sangkips/tillsync/internal/presentation/http/middleware"
	"github.com/sangkips/tillsync/pkg/apperror"
	"github.com/sangkips/tillsync/pkg/money"
	"github.com/sangkips/tillsync/pkg/utils"
	"github.com/shopspring/decimal"
)

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) *uuid.UUID {
	userIDVal, exists := c.Get(middleware.UserIDKey)
	if !exists {
		return nil
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		return nil
	}
	return &userID
}

// requireUser writes a 401 and returns false when the request is anonymous
func requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID := GetUserID(c)
	if userID == nil {
		response.Unauthorized(c, "User not authenticated")
		return uuid.Nil, false
	}
	return *userID, true
}

// uuidParam parses a path parameter, writing a 400 when it is malformed
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := utils.ParseUUID(c.Param(name))
	if err != nil {
		response.Error(c, apperror.NewFieldError(name, "must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON binds the body, writing a 400 on failure
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperror.NewBadRequestError(err.Error()))
		return false
	}
	return true
}

func toCents(field string, d decimal.Decimal) (int64, error) {
	c, err := money.FromDecimal(d)
	if err != nil {
		return 0, apperror.NewFieldError(field, err.Error())
	}
	return c, nil
}

func paymentEntries(reqs []request.PaymentEntryRequest) ([]service.PaymentEntry, error) {
	entries := make([]service.PaymentEntry, 0, len(reqs))
	for i, r := range reqs {
		amount, err := toCents(fmt.Sprintf("payments[%d].amount", i), r.Amount)
		if err != nil {
			return nil, err
		}
		entries = append(entries, service.PaymentEntry{
			Amount:    amount,
			Method:    enum.PaymentMethod(r.Method),
			Reference: r.Reference,
			Notes:     r.Notes,
		})
	}
	return entries, nil
}

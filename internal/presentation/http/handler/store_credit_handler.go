package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sangkips/tillsync/internal/application/service"
	"github.com/sangkips/tillsync/internal/presentation/http/dto/request"
	"github.com/sangkips/tillsync/internal/presentation/http/dto/response"
)

// StoreCreditHandler handles customer store credit
type StoreCreditHandler struct {
	credits *service.StoreCreditService
}

// NewStoreCreditHandler creates a new store credit handler
func NewStoreCreditHandler(credits *service.StoreCreditService) *StoreCreditHandler {
	return &StoreCreditHandler{credits: credits}
}

// Issue grants store credit to a customer
func (h *StoreCreditHandler) Issue(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	customerID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req request.IssueGrantRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := toCents("amount", req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	grant, err := h.credits.IssueGrant(c.Request.Context(), &service.IssueGrantInput{
		CustomerID: customerID,
		Amount:     amount,
		ExpiresAt:  req.ExpiresAt,
		Notes:      req.Notes,
		IssuedBy:   userID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Store credit issued successfully", grant)
}

// Balance returns the customer's grants and available total
func (h *StoreCreditHandler) Balance(c *gin.Context) {
	customerID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	balance, err := h.credits.Balance(c.Request.Context(), customerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Store credit retrieved successfully", balance)
}

// Allocate consumes store credit oldest grant first
func (h *StoreCreditHandler) Allocate(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	customerID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req request.AllocateCreditRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := toCents("amount", req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	usages, err := h.credits.Allocate(c.Request.Context(), &service.AllocateInput{
		CustomerID: customerID,
		Amount:     amount,
		UsedBy:     userID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Store credit allocated successfully", usages)
}

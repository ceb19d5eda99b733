package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sangkips/tillsync/internal/application/service"
	"github.com/sangkips/tillsync/internal/presentation/http/dto/request"
	"github.com/sangkips/tillsync/internal/presentation/http/dto/response"
)

// SettlementHandler handles payments against receipts
type SettlementHandler struct {
	settlement *service.SettlementService
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(settlement *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlement: settlement}
}

// Settle applies one or more tenders to a receipt
func (h *SettlementHandler) Settle(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	receiptID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req request.SettleRequest
	if !bindJSON(c, &req) {
		return
	}
	entries, err := paymentEntries(req.Payments)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.settlement.Settle(c.Request.Context(), &service.SettleInput{
		ReceiptID: receiptID,
		UserID:    userID,
		Payments:  entries,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Payment recorded successfully", result)
}

// History lists the partial payments recorded against a receipt
func (h *SettlementHandler) History(c *gin.Context) {
	receiptID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	entries, err := h.settlement.History(c.Request.Context(), receiptID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Payment history retrieved successfully", entries)
}

package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/tillsync/internal/application/service"
	"github.com/sangkips/tillsync/internal/presentation/http/dto/request"
	"github.com/sangkips/tillsync/internal/presentation/http/dto/response"
	"github.com/sangkips/tillsync/pkg/pagination"
)

// ReceiptHandler handles checkout and receipt lookups
type ReceiptHandler struct {
	checkout *service.CheckoutService
}

// NewReceiptHandler creates a new receipt handler
func NewReceiptHandler(checkout *service.CheckoutService) *ReceiptHandler {
	return &ReceiptHandler{checkout: checkout}
}

// Create finalizes a checkout
func (h *ReceiptHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req request.CreateReceiptRequest
	if !bindJSON(c, &req) {
		return
	}

	input, err := checkoutInput(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	input.UserID = userID

	receipt, err := h.checkout.CreateReceipt(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Receipt created successfully", receipt)
}

func checkoutInput(req *request.CreateReceiptRequest) (*service.CreateReceiptInput, error) {
	delivery, err := toCents("delivery_cost", req.DeliveryCost)
	if err != nil {
		return nil, err
	}
	input := &service.CreateReceiptInput{
		CustomerID:   req.CustomerID,
		DeliveryCost: delivery,
	}
	for i, item := range req.Items {
		discount, err := toCents(fmt.Sprintf("items[%d].discount_amount", i), item.DiscountAmount)
		if err != nil {
			return nil, err
		}
		line := service.SaleItemInput{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			DiscountAmount: discount,
			IsGift:         item.IsGift,
			GiftReason:     item.GiftReason,
		}
		if item.UnitPrice != nil {
			price, err := toCents(fmt.Sprintf("items[%d].unit_price", i), *item.UnitPrice)
			if err != nil {
				return nil, err
			}
			line.UnitPrice = &price
		}
		input.Items = append(input.Items, line)
	}
	if input.Payments, err = paymentEntries(req.Payments); err != nil {
		return nil, err
	}
	return input, nil
}

// Get returns a receipt with its sales, payment and ledger
func (h *ReceiptHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	receipt, err := h.checkout.GetReceipt(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Receipt retrieved successfully", receipt)
}

// ListOutstanding lists receipts with a balance remaining
func (h *ReceiptHandler) ListOutstanding(c *gin.Context) {
	var filter request.OutstandingFilterRequest
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	params := &pagination.Params{Page: filter.Page, PerPage: filter.PerPage}

	result, err := h.checkout.ListOutstanding(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithPagination(c, 200, "Outstanding receipts retrieved successfully", result)
}

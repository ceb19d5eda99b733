package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/presentation/http/dto/request"
	"github.com/sangkips/tillsync/internal/presentation/http/dto/response"
	"github.com/sangkips/tillsync/internal/replication"
	"github.com/sangkips/tillsync/pkg/apperror"
)

// SyncJob is the part of replication.SyncJob the API exposes
type SyncJob interface {
	Run(ctx context.Context, mode replication.Mode) (*replication.RunSummary, error)
	Status(ctx context.Context) (*replication.JobStatus, error)
	Failures(ctx context.Context, limit int) ([]entity.SyncFailure, error)
}

// SyncHandler triggers and inspects replication runs
type SyncHandler struct {
	job SyncJob
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(job SyncJob) *SyncHandler {
	return &SyncHandler{job: job}
}

// Trigger runs the sync job and waits for it. A run already in progress
// yields 409 and the request is dropped.
func (h *SyncHandler) Trigger(c *gin.Context) {
	var req request.TriggerSyncRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	mode, err := replication.ParseMode(req.Mode)
	if err != nil {
		response.Error(c, apperror.NewFieldError("mode", err.Error()))
		return
	}

	// The run outlives a disconnecting client so its bookkeeping completes.
	summary, err := h.job.Run(context.WithoutCancel(c.Request.Context()), mode)
	if err != nil && summary == nil {
		response.Error(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, response.APIResponse{
			Success: false,
			Message: "Sync run failed",
			Reason:  replication.Classify(err),
			Data:    summary,
		})
		return
	}
	response.OK(c, "Sync run completed", summary)
}

// Status returns the cursor and the last run
func (h *SyncHandler) Status(c *gin.Context) {
	status, err := h.job.Status(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Sync status retrieved successfully", status)
}

// Failures lists recent record failures
func (h *SyncHandler) Failures(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		response.Error(c, apperror.NewFieldError("limit", "must be between 1 and 500"))
		return
	}
	failures, err := h.job.Failures(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Sync failures retrieved successfully", failures)
}

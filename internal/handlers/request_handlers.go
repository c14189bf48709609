package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/tamannathakur/Invora/internal/middleware"
	"github.com/tamannathakur/Invora/internal/models"
	"github.com/tamannathakur/Invora/internal/services"
	"github.com/tamannathakur/Invora/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RequestHandler holds the request workflow service.
type RequestHandler struct {
	requestService services.RequestService
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(rs services.RequestService) *RequestHandler {
	return &RequestHandler{requestService: rs}
}

// respondWorkflowError maps workflow service errors onto the API envelope.
// State conflicts come back as 409 so clients know a re-read plus retry is
// the correct reaction.
func respondWorkflowError(c *gin.Context, err error, action string) {
	utils.LogError(err, action+": Error from requestService")
	switch {
	case errors.Is(err, services.ErrValidation):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Validation failed: "+err.Error(), err.Error()))
	case errors.Is(err, services.ErrRequestNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Request not found.", err.Error()))
	case errors.Is(err, services.ErrProductNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Product not found.", err.Error()))
	case errors.Is(err, services.ErrForbidden):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Your role cannot perform this action.", err.Error()))
	case errors.Is(err, services.ErrStateConflict):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "The request changed underneath you. Re-read and retry.", err.Error()))
	default:
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to "+action+".", "Internal error"))
	}
}

func requestIDParam(c *gin.Context) (int64, bool) {
	id, err := utils.StrToInt64(c.Param("id"))
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request ID format.", err.Error()))
		return 0, false
	}
	return id, true
}

// CreateRequest handles creation of a single-product request.
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	principal, _ := middleware.CurrentPrincipal(c)
	var req services.CreateRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	result, err := h.requestService.CreateRequest(c.Request.Context(), principal, req)
	if err != nil {
		respondWorkflowError(c, err, "create request")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CreateStoreRequest handles creation of a multi-item store request.
func (h *RequestHandler) CreateStoreRequest(c *gin.Context) {
	principal, _ := middleware.CurrentPrincipal(c)
	var req services.CreateStoreRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	result, err := h.requestService.CreateStoreRequest(c.Request.Context(), principal, req)
	if err != nil {
		respondWorkflowError(c, err, "create store request")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ListRequests returns the requests visible to the caller's role.
func (h *RequestHandler) ListRequests(c *gin.Context) {
	principal, _ := middleware.CurrentPrincipal(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	requests, totalCount, err := h.requestService.ListRequests(c.Request.Context(), principal, page, pageSize)
	if err != nil {
		respondWorkflowError(c, err, "list requests")
		return
	}
	if requests == nil {
		requests = []models.Request{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      requests,
		"total":     totalCount,
		"page":      page,
		"page_size": pageSize,
	})
}

// ApproveSister handles the sister-in-charge approval step.
func (h *RequestHandler) ApproveSister(c *gin.Context) {
	h.transition(c, "approve request (sister)", h.requestService.ApproveSister)
}

// ApproveHOD handles the department-head approval step.
func (h *RequestHandler) ApproveHOD(c *gin.Context) {
	h.transition(c, "approve request (hod)", h.requestService.ApproveHOD)
}

// ApproveInventory handles the central inventory approval step, with an
// optional vendor ETA for the shortfall branch.
func (h *RequestHandler) ApproveInventory(c *gin.Context) {
	principal, _ := middleware.CurrentPrincipal(c)
	id, ok := requestIDParam(c)
	if !ok {
		return
	}
	var req services.ApproveInventoryInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
			return
		}
	}

	result, err := h.requestService.ApproveInventory(c.Request.Context(), principal, id, req)
	if err != nil {
		respondWorkflowError(c, err, "approve request (inventory)")
		return
	}
	c.JSON(http.StatusOK, result)
}

// VendorDeliver records a vendor delivery against an awaiting_vendor request.
func (h *RequestHandler) VendorDeliver(c *gin.Context) {
	h.transition(c, "record vendor delivery", h.requestService.VendorDeliver)
}

// MarkReceived confirms arrival of a dispatched request.
func (h *RequestHandler) MarkReceived(c *gin.Context) {
	h.transition(c, "mark request received", h.requestService.MarkReceived)
}

// Reject terminates a pending request.
func (h *RequestHandler) Reject(c *gin.Context) {
	h.transition(c, "reject request", h.requestService.Reject)
}

func (h *RequestHandler) transition(c *gin.Context, action string, fn func(ctx context.Context, principal models.Principal, requestID int64) (*services.TransitionResult, error)) {
	principal, _ := middleware.CurrentPrincipal(c)
	id, ok := requestIDParam(c)
	if !ok {
		return
	}
	result, err := fn(c.Request.Context(), principal, id)
	if err != nil {
		respondWorkflowError(c, err, action)
		return
	}
	c.JSON(http.StatusOK, result)
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/tamannathakur/Invora/internal/middleware"
	"github.com/tamannathakur/Invora/internal/models"
	"github.com/tamannathakur/Invora/internal/services"
	"github.com/tamannathakur/Invora/pkg/utils"

	"github.com/gin-gonic/gin"
)

// StockHandler holds the stock service.
type StockHandler struct {
	stockService services.StockService
}

// NewStockHandler creates a new StockHandler.
func NewStockHandler(ss services.StockService) *StockHandler {
	return &StockHandler{stockService: ss}
}

// ListProducts returns the central catalog.
func (h *StockHandler) ListProducts(c *gin.Context) {
	products, err := h.stockService.ListProducts(c.Request.Context())
	if err != nil {
		utils.LogError(err, "ListProducts: Error from stockService.ListProducts")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch products.", "Internal error"))
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"data": products})
}

// ListDepartmentStock returns the department-level stock rows.
func (h *StockHandler) ListDepartmentStock(c *gin.Context) {
	items, err := h.stockService.ListDepartmentStock(c.Request.Context())
	if err != nil {
		utils.LogError(err, "ListDepartmentStock: Error from stockService.ListDepartmentStock")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch department stock.", "Internal error"))
		return
	}
	if items == nil {
		items = []models.DepartmentStockItem{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// ListAlmirah returns a nurse's almirah. Nurses get their own; other roles
// may pass ?nurse_id= to inspect a specific nurse's stock.
func (h *StockHandler) ListAlmirah(c *gin.Context) {
	principal, _ := middleware.CurrentPrincipal(c)

	nurseID := principal.ID
	if raw := c.Query("nurse_id"); raw != "" {
		parsed, err := utils.StrToInt64(raw)
		if err != nil {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid nurse_id format.", err.Error()))
			return
		}
		nurseID = parsed
	}

	items, err := h.stockService.ListAlmirah(c.Request.Context(), principal, nurseID)
	if err != nil {
		if errors.Is(err, services.ErrForbidden) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "You may only view your own almirah.", err.Error()))
			return
		}
		utils.LogError(err, "ListAlmirah: Error from stockService.ListAlmirah")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch almirah stock.", "Internal error"))
		return
	}
	if items == nil {
		items = []models.AlmirahStockItem{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// UseAlmirahItem records consumption from the calling nurse's almirah.
func (h *StockHandler) UseAlmirahItem(c *gin.Context) {
	principal, _ := middleware.CurrentPrincipal(c)
	productID, err := utils.StrToInt64(c.Param("productId"))
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid product ID format.", err.Error()))
		return
	}
	var req services.UseAlmirahItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	if err := h.stockService.UseAlmirahItem(c.Request.Context(), principal, productID, req); err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Validation failed: "+err.Error(), err.Error()))
		case errors.Is(err, services.ErrForbidden):
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Only nurses consume from an almirah.", err.Error()))
		case errors.Is(err, services.ErrInsufficientAlmirahStock):
			utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Not enough stock in your almirah.", err.Error()))
		default:
			utils.LogError(err, "UseAlmirahItem: Error from stockService.UseAlmirahItem")
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to record consumption.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Consumption recorded"})
}

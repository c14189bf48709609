package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/tamannathakur/Invora/internal/middleware"
	"github.com/tamannathakur/Invora/internal/models"
	"github.com/tamannathakur/Invora/internal/services"
	"github.com/tamannathakur/Invora/pkg/utils"

	"github.com/gin-gonic/gin"
)

// TransactionHandler holds the ledger service.
type TransactionHandler struct {
	transactionService services.TransactionService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(ts services.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactionService: ts}
}

func bindTransactionFilters(c *gin.Context) (models.TransactionFilters, error) {
	var filters models.TransactionFilters
	filters.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filters.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))

	if raw := c.Query("request_id"); raw != "" {
		id, err := utils.StrToInt64(raw)
		if err != nil {
			return filters, err
		}
		filters.RequestID = &id
	}

	from, err := services.ParseDateFilter(c.Query("from"), false)
	if err != nil {
		return filters, err
	}
	filters.From = from

	to, err := services.ParseDateFilter(c.Query("to"), true)
	if err != nil {
		return filters, err
	}
	filters.To = to
	return filters, nil
}

// ListTransactions handles fetching ledger entries with date-range filters
// and pagination.
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	principal, _ := middleware.CurrentPrincipal(c)
	filters, err := bindTransactionFilters(c)
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid filter: "+err.Error(), err.Error()))
		return
	}

	transactions, totalCount, err := h.transactionService.ListTransactions(c.Request.Context(), principal, filters)
	if err != nil {
		if errors.Is(err, services.ErrForbidden) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Your role cannot view the ledger.", err.Error()))
			return
		}
		if errors.Is(err, services.ErrValidation) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Validation failed: "+err.Error(), err.Error()))
			return
		}
		utils.LogError(err, "ListTransactions: Error from transactionService.ListTransactions")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch transactions.", "Internal error"))
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      transactions,
		"total":     totalCount,
		"page":      filters.Page,
		"page_size": filters.PageSize,
	})
}

package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/tamannathakur/Invora/internal/middleware"
	"github.com/tamannathakur/Invora/internal/services"
	"github.com/tamannathakur/Invora/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// exportPageSize caps a single export; one audit sheet, not a dump pipeline.
const exportPageSize = 10000

// ReportHandler produces ledger exports for audits.
type ReportHandler struct {
	transactionService services.TransactionService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(ts services.TransactionService) *ReportHandler {
	return &ReportHandler{transactionService: ts}
}

// ExportTransactions streams the filtered ledger as an XLSX workbook.
func (h *ReportHandler) ExportTransactions(c *gin.Context) {
	principal, _ := middleware.CurrentPrincipal(c)
	filters, err := bindTransactionFilters(c)
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid filter: "+err.Error(), err.Error()))
		return
	}
	filters.Page = 1
	filters.PageSize = exportPageSize

	transactions, _, err := h.transactionService.ListTransactions(c.Request.Context(), principal, filters)
	if err != nil {
		utils.LogError(err, "ExportTransactions: Error from transactionService.ListTransactions")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to export transactions.", "Internal error"))
		return
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	header := []interface{}{
		"id", "request_id", "from_role", "to_role", "product",
		"quantity", "status", "initiated_by", "received_by", "created_at",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		utils.LogError(err, "ExportTransactions: Failed to write header row")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to build workbook.", "Internal error"))
		return
	}

	for i, txn := range transactions {
		product := ""
		if txn.ProductName != nil {
			product = *txn.ProductName
		}
		quantity := ""
		if txn.Quantity != nil {
			quantity = fmt.Sprintf("%d", *txn.Quantity)
		}
		receivedBy := ""
		if txn.ReceivedBy != nil {
			receivedBy = fmt.Sprintf("%d", *txn.ReceivedBy)
		}
		excelRow := []interface{}{
			txn.ID, txn.RequestID, txn.From.Role, txn.To.Role, product,
			quantity, txn.Status, txn.InitiatedBy, receivedBy,
			txn.CreatedAt.Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			utils.LogError(err, "ExportTransactions: Failed to compute cell name")
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to build workbook.", "Internal error"))
			return
		}
		if err := f.SetSheetRow(sheet, cell, &excelRow); err != nil {
			utils.LogError(err, "ExportTransactions: Failed to write data row")
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to build workbook.", "Internal error"))
			return
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		utils.LogError(err, "ExportTransactions: Failed to serialize workbook")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to serialize workbook.", "Internal error"))
		return
	}

	fileName := fmt.Sprintf("transactions_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

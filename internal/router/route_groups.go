package router

import (
	"github.com/tamannathakur/Invora/internal/handlers"
	"github.com/tamannathakur/Invora/internal/middleware"
	"github.com/tamannathakur/Invora/internal/models"

	"github.com/gin-gonic/gin"
)

// SetupRequestRoutes sets up the request workflow routes. The role middleware
// keeps obviously wrong traffic off the services; the services gate again.
func SetupRequestRoutes(authenticatedGroup *gin.RouterGroup, requestHandler *handlers.RequestHandler) {
	requestRoutes := authenticatedGroup.Group("/requests")
	{
		requestRoutes.POST("",
			middleware.RoleAuthMiddleware(models.RoleNurse, models.RoleSisterIncharge),
			requestHandler.CreateRequest)
		requestRoutes.POST("/store",
			middleware.RoleAuthMiddleware(models.RoleNurse, models.RoleSisterIncharge, models.RoleHOD, models.RoleInventoryStaff),
			requestHandler.CreateStoreRequest)
		requestRoutes.GET("", requestHandler.ListRequests)
		requestRoutes.PUT("/:id/approve-sister",
			middleware.RoleAuthMiddleware(models.RoleSisterIncharge),
			requestHandler.ApproveSister)
		requestRoutes.PUT("/:id/approve-hod",
			middleware.RoleAuthMiddleware(models.RoleHOD),
			requestHandler.ApproveHOD)
		requestRoutes.PUT("/:id/approve-inventory",
			middleware.RoleAuthMiddleware(models.RoleInventoryStaff),
			requestHandler.ApproveInventory)
		requestRoutes.PUT("/:id/vendor-received",
			middleware.RoleAuthMiddleware(models.RoleInventoryStaff),
			requestHandler.VendorDeliver)
		requestRoutes.PUT("/:id/mark-received",
			middleware.RoleAuthMiddleware(models.RoleSisterIncharge),
			requestHandler.MarkReceived)
		requestRoutes.PUT("/:id/reject",
			middleware.RoleAuthMiddleware(models.RoleSisterIncharge, models.RoleHOD, models.RoleInventoryStaff),
			requestHandler.Reject)
	}
}

// SetupStockRoutes sets up the catalog and stock tier routes.
func SetupStockRoutes(authenticatedGroup *gin.RouterGroup, stockHandler *handlers.StockHandler) {
	authenticatedGroup.GET("/products", stockHandler.ListProducts)
	authenticatedGroup.GET("/department-stock",
		middleware.RoleAuthMiddleware(models.RoleSisterIncharge, models.RoleHOD, models.RoleInventoryStaff, models.RoleAdmin),
		stockHandler.ListDepartmentStock)

	almirahRoutes := authenticatedGroup.Group("/almirah")
	{
		almirahRoutes.GET("", stockHandler.ListAlmirah)
		almirahRoutes.POST("/use/:productId",
			middleware.RoleAuthMiddleware(models.RoleNurse),
			stockHandler.UseAlmirahItem)
	}
}

// SetupTransactionRoutes sets up the ledger read and export routes.
func SetupTransactionRoutes(authenticatedGroup *gin.RouterGroup, transactionHandler *handlers.TransactionHandler, reportHandler *handlers.ReportHandler) {
	transactionRoutes := authenticatedGroup.Group("/transactions")
	{
		transactionRoutes.GET("", transactionHandler.ListTransactions)
		transactionRoutes.GET("/export",
			middleware.RoleAuthMiddleware(models.RoleHOD, models.RoleInventoryStaff, models.RoleAdmin),
			reportHandler.ExportTransactions)
	}
}

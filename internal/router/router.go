package router

import (
	"database/sql"

	"github.com/tamannathakur/Invora/internal/handlers"
	"github.com/tamannathakur/Invora/internal/middleware"
	"github.com/tamannathakur/Invora/internal/repositories"
	"github.com/tamannathakur/Invora/internal/services"

	"github.com/gin-gonic/gin"
)

// Setup initializes the routing for the application and returns the reminder
// scheduler so main can run it alongside the HTTP server.
func Setup(engine *gin.Engine, db *sql.DB) services.ReminderService {
	// Initialize Repositories
	userRepo := repositories.NewUserRepository(db)
	productRepo := repositories.NewProductRepository(db)
	deptStockRepo := repositories.NewDepartmentStockRepository(db)
	almirahRepo := repositories.NewAlmirahRepository(db)
	requestRepo := repositories.NewRequestRepository(db)
	transactionRepo := repositories.NewTransactionRepository(db)
	reminderRepo := repositories.NewReminderRepository(db)

	// Initialize Services
	authService := services.NewAuthService(userRepo)
	requestService := services.NewRequestService(requestRepo, productRepo, deptStockRepo, almirahRepo, transactionRepo, reminderRepo, db)
	stockService := services.NewStockService(productRepo, deptStockRepo, almirahRepo, db)
	transactionService := services.NewTransactionService(transactionRepo)
	reminderService := services.NewReminderService(reminderRepo, requestRepo, db)

	// Initialize Handlers
	authHandler := handlers.NewAuthHandler(authService)
	requestHandler := handlers.NewRequestHandler(requestService)
	stockHandler := handlers.NewStockHandler(stockService)
	transactionHandler := handlers.NewTransactionHandler(transactionService)
	reportHandler := handlers.NewReportHandler(transactionService)

	apiV1 := engine.Group("/api/v1")

	SetupPublicAuthRoutes(apiV1.Group("/auth"), authHandler)

	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware())
	{
		SetupAuthenticatedAuthRoutes(authenticated.Group("/auth"), authHandler)
		SetupRequestRoutes(authenticated, requestHandler)
		SetupStockRoutes(authenticated, stockHandler)
		SetupTransactionRoutes(authenticated, transactionHandler, reportHandler)
	}

	return reminderService
}

func SetupPublicAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.POST("/login", authHandler.Login)
}

func SetupAuthenticatedAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.GET("/me", authHandler.Me)
}

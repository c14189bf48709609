package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tamannathakur/Invora/internal/models"
	"github.com/tamannathakur/Invora/internal/repositories"
)

// UseAlmirahItemInput is the consumption payload for a nurse's almirah.
type UseAlmirahItemInput struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

// StockService exposes read access to the three stock tiers plus almirah
// consumption, the one stock mutation that happens outside the request
// workflow.
type StockService interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListDepartmentStock(ctx context.Context) ([]models.DepartmentStockItem, error)
	ListAlmirah(ctx context.Context, actor models.Principal, nurseID int64) ([]models.AlmirahStockItem, error)
	UseAlmirahItem(ctx context.Context, actor models.Principal, productID int64, input UseAlmirahItemInput) error
}

type stockService struct {
	productRepo   repositories.ProductRepository
	deptStockRepo repositories.DepartmentStockRepository
	almirahRepo   repositories.AlmirahRepository
	txm           TxManager
}

// NewStockService creates a new instance of StockService.
func NewStockService(
	pr repositories.ProductRepository,
	dsr repositories.DepartmentStockRepository,
	ar repositories.AlmirahRepository,
	db *sql.DB,
) StockService {
	return &stockService{
		productRepo:   pr,
		deptStockRepo: dsr,
		almirahRepo:   ar,
		txm:           NewTxManager(db),
	}
}

func (s *stockService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.productRepo.List(ctx)
}

func (s *stockService) ListDepartmentStock(ctx context.Context) ([]models.DepartmentStockItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.deptStockRepo.List(ctx)
}

// ListAlmirah returns a nurse's cupboard stock. Nurses may only see their
// own; the sister-in-charge and admins may inspect any nurse's almirah.
func (s *stockService) ListAlmirah(ctx context.Context, actor models.Principal, nurseID int64) ([]models.AlmirahStockItem, error) {
	if actor.Role == models.RoleNurse && nurseID != actor.ID {
		return nil, fmt.Errorf("%w: nurses can only view their own almirah", ErrForbidden)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.almirahRepo.ListByNurse(ctx, nurseID)
}

// UseAlmirahItem records consumption from the calling nurse's almirah. The
// row disappears when it reaches zero; over-consumption is rejected, never
// clamped.
func (s *stockService) UseAlmirahItem(ctx context.Context, actor models.Principal, productID int64, input UseAlmirahItemInput) error {
	if err := requireRole(actor, models.RoleNurse); err != nil {
		return err
	}
	if input.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return s.txm.WithinTx(ctx, func(executor repositories.SQLExecutor) error {
		err := s.almirahRepo.Consume(ctx, executor, actor.ID, productID, input.Quantity)
		if errors.Is(err, repositories.ErrNoRowsAffected) || errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: product %d", ErrInsufficientAlmirahStock, productID)
		}
		return err
	})
}

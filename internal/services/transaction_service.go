package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tamannathakur/Invora/internal/models"
	"github.com/tamannathakur/Invora/internal/repositories"
)

// TransactionService is the read side of the ledger. Entries are append-only;
// nothing here mutates them.
type TransactionService interface {
	ListTransactions(ctx context.Context, actor models.Principal, filters models.TransactionFilters) ([]models.Transaction, int, error)
}

type transactionService struct {
	txnRepo repositories.TransactionRepository
}

// NewTransactionService creates a new instance of TransactionService.
func NewTransactionService(tr repositories.TransactionRepository) TransactionService {
	return &transactionService{txnRepo: tr}
}

func (s *transactionService) ListTransactions(ctx context.Context, actor models.Principal, filters models.TransactionFilters) ([]models.Transaction, int, error) {
	if err := requireRole(actor, models.RoleSisterIncharge, models.RoleHOD, models.RoleInventoryStaff, models.RoleAdmin); err != nil {
		return nil, 0, err
	}
	if filters.From != nil && filters.To != nil && filters.To.Before(*filters.From) {
		return nil, 0, fmt.Errorf("%w: date range is inverted", ErrValidation)
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 50
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.txnRepo.List(ctx, filters)
}

// ParseDateFilter parses a yyyy-mm-dd query value; endOfDay makes the bound
// inclusive of the whole day.
func ParseDateFilter(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q, expected yyyy-mm-dd", ErrValidation, value)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tamannathakur/Invora/internal/models"
)

// TransactionRepository defines ledger operations. The ledger is append-only;
// there are no update or delete methods.
type TransactionRepository interface {
	Create(ctx context.Context, executor SQLExecutor, txn *models.Transaction) (int64, error)
	List(ctx context.Context, filters models.TransactionFilters) ([]models.Transaction, int, error)
}

type transactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository creates a new instance of TransactionRepository.
func NewTransactionRepository(db *sql.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, executor SQLExecutor, txn *models.Transaction) (int64, error) {
	query := `INSERT INTO transactions
	          (from_role, from_department_id, to_role, to_department_id,
	           product_id, quantity, initiated_by, received_by, request_id, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          RETURNING id, created_at`
	err := executor.QueryRowContext(ctx, query,
		txn.From.Role, txn.From.DepartmentID, txn.To.Role, txn.To.DepartmentID,
		txn.ProductID, txn.Quantity, txn.InitiatedBy, txn.ReceivedBy,
		txn.RequestID, txn.Status, time.Now(),
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("%w: creating transaction for request %d: %v", ErrDatabaseError, txn.RequestID, err)
	}
	return txn.ID, nil
}

func (r *transactionRepository) List(ctx context.Context, filters models.TransactionFilters) ([]models.Transaction, int, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT t.id, t.from_role, t.from_department_id, t.to_role, t.to_department_id,
	    t.product_id, t.quantity, t.initiated_by, t.received_by, t.request_id, t.status, t.created_at,
	    p.name,
	    COUNT(*) OVER() AS total_count
	  FROM transactions t
	  LEFT JOIN products p ON t.product_id = p.id`)

	var conditions []string
	var args []interface{}
	argCount := 1

	if filters.RequestID != nil {
		conditions = append(conditions, fmt.Sprintf("t.request_id = $%d", argCount))
		args = append(args, *filters.RequestID)
		argCount++
	}
	if filters.From != nil {
		conditions = append(conditions, fmt.Sprintf("t.created_at >= $%d", argCount))
		args = append(args, *filters.From)
		argCount++
	}
	if filters.To != nil {
		conditions = append(conditions, fmt.Sprintf("t.created_at <= $%d", argCount))
		args = append(args, *filters.To)
		argCount++
	}
	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY t.created_at DESC, t.id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: listing transactions: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	totalCount := 0
	for rows.Next() {
		var txn models.Transaction
		var fromDept, toDept, productID, quantity, receivedBy sql.NullInt64
		var productName sql.NullString
		if err := rows.Scan(
			&txn.ID, &txn.From.Role, &fromDept, &txn.To.Role, &toDept,
			&productID, &quantity, &txn.InitiatedBy, &receivedBy, &txn.RequestID, &txn.Status, &txn.CreatedAt,
			&productName,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning transaction: %v", ErrDatabaseError, err)
		}
		if fromDept.Valid {
			txn.From.DepartmentID = &fromDept.Int64
		}
		if toDept.Valid {
			txn.To.DepartmentID = &toDept.Int64
		}
		if productID.Valid {
			txn.ProductID = &productID.Int64
		}
		if quantity.Valid {
			q := int(quantity.Int64)
			txn.Quantity = &q
		}
		if receivedBy.Valid {
			txn.ReceivedBy = &receivedBy.Int64
		}
		if productName.Valid {
			txn.ProductName = &productName.String
		}
		transactions = append(transactions, txn)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating transactions: %v", ErrDatabaseError, err)
	}
	return transactions, totalCount, nil
}

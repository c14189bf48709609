package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tamannathakur/Invora/internal/models"
)

// DepartmentStockRepository defines department-tier stock operations.
// The deployment models a single implicit department, so rows are keyed by
// product only.
type DepartmentStockRepository interface {
	GetByProduct(ctx context.Context, executor SQLExecutor, productID int64) (*models.DepartmentStockItem, error)
	AddQuantity(ctx context.Context, executor SQLExecutor, productID int64, qty int, category string, expiry *time.Time) error
	Decrement(ctx context.Context, executor SQLExecutor, productID int64, qty int) error
	List(ctx context.Context) ([]models.DepartmentStockItem, error)
}

type departmentStockRepository struct {
	db *sql.DB
}

// NewDepartmentStockRepository creates a new instance of DepartmentStockRepository.
func NewDepartmentStockRepository(db *sql.DB) DepartmentStockRepository {
	return &departmentStockRepository{db: db}
}

func (r *departmentStockRepository) GetByProduct(ctx context.Context, executor SQLExecutor, productID int64) (*models.DepartmentStockItem, error) {
	query := `SELECT id, product_id, quantity, category, expiry, created_at, updated_at
	          FROM department_stock WHERE product_id = $1`
	var item models.DepartmentStockItem
	var expiry sql.NullTime
	err := executor.QueryRowContext(ctx, query, productID).Scan(
		&item.ID, &item.ProductID, &item.Quantity, &item.Category, &expiry, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting department stock for product %d: %v", ErrDatabaseError, productID, err)
	}
	if expiry.Valid {
		item.Expiry = &expiry.Time
	}
	return &item, nil
}

// AddQuantity credits the department store, creating the row on first
// delivery. When both rows carry an expiry the later one wins.
func (r *departmentStockRepository) AddQuantity(ctx context.Context, executor SQLExecutor, productID int64, qty int, category string, expiry *time.Time) error {
	query := `INSERT INTO department_stock (product_id, quantity, category, expiry, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $5)
	          ON CONFLICT (product_id)
	          DO UPDATE SET quantity = department_stock.quantity + EXCLUDED.quantity,
	                        expiry = GREATEST(COALESCE(department_stock.expiry, EXCLUDED.expiry), COALESCE(EXCLUDED.expiry, department_stock.expiry)),
	                        updated_at = EXCLUDED.updated_at`
	_, err := executor.ExecContext(ctx, query, productID, qty, category, expiry, time.Now())
	if err != nil {
		return fmt.Errorf("%w: adding department stock for product %d: %v", ErrDatabaseError, productID, err)
	}
	return nil
}

// Decrement deducts qty; the guard returns ErrNoRowsAffected when the live
// quantity no longer covers the deduction.
func (r *departmentStockRepository) Decrement(ctx context.Context, executor SQLExecutor, productID int64, qty int) error {
	query := `UPDATE department_stock
	          SET quantity = quantity - $1, updated_at = $2
	          WHERE product_id = $3 AND quantity >= $1`
	res, err := executor.ExecContext(ctx, query, qty, time.Now(), productID)
	if err != nil {
		return fmt.Errorf("%w: decrementing department stock for product %d: %v", ErrDatabaseError, productID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: decrementing department stock for product %d: %v", ErrDatabaseError, productID, err)
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

func (r *departmentStockRepository) List(ctx context.Context) ([]models.DepartmentStockItem, error) {
	query := `SELECT ds.id, ds.product_id, ds.quantity, ds.category, ds.expiry, ds.created_at, ds.updated_at,
	                 p.name, p.total_quantity, p.category
	          FROM department_stock ds
	          JOIN products p ON ds.product_id = p.id
	          ORDER BY p.name ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: listing department stock: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	items := []models.DepartmentStockItem{}
	for rows.Next() {
		var item models.DepartmentStockItem
		var product models.Product
		var expiry sql.NullTime
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.Quantity, &item.Category, &expiry, &item.CreatedAt, &item.UpdatedAt,
			&product.Name, &product.TotalQuantity, &product.Category,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning department stock: %v", ErrDatabaseError, err)
		}
		if expiry.Valid {
			item.Expiry = &expiry.Time
		}
		product.ID = item.ProductID
		item.Product = &product
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating department stock: %v", ErrDatabaseError, err)
	}
	return items, nil
}

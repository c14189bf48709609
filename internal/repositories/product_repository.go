package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tamannathakur/Invora/internal/models"

	"github.com/lib/pq"
)

// ProductRepository defines catalog (central store) database operations.
type ProductRepository interface {
	Create(ctx context.Context, executor SQLExecutor, product *models.Product) (int64, error)
	GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Product, error)
	GetByName(ctx context.Context, executor SQLExecutor, name string) (*models.Product, error)
	List(ctx context.Context) ([]models.Product, error)
	DecrementQuantity(ctx context.Context, executor SQLExecutor, id int64, qty int) error
	IncrementQuantity(ctx context.Context, executor SQLExecutor, id int64, qty int) error
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository.
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, executor SQLExecutor, product *models.Product) (int64, error) {
	query := `INSERT INTO products (name, total_quantity, category, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id`
	currentTime := time.Now()
	err := executor.QueryRowContext(ctx, query,
		product.Name, product.TotalQuantity, product.Category, currentTime, currentTime,
	).Scan(&product.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return 0, fmt.Errorf("%w: product name '%s' already exists", ErrDuplicateKey, product.Name)
		}
		return 0, fmt.Errorf("%w: creating product: %v", ErrDatabaseError, err)
	}
	return product.ID, nil
}

func (r *productRepository) GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Product, error) {
	query := `SELECT id, name, total_quantity, category, created_at, updated_at
	          FROM products WHERE id = $1`
	var p models.Product
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.TotalQuantity, &p.Category, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting product by id %d: %v", ErrDatabaseError, id, err)
	}
	return &p, nil
}

// GetByName looks a product up by name, case-insensitively.
func (r *productRepository) GetByName(ctx context.Context, executor SQLExecutor, name string) (*models.Product, error) {
	query := `SELECT id, name, total_quantity, category, created_at, updated_at
	          FROM products WHERE LOWER(name) = LOWER($1)`
	var p models.Product
	err := executor.QueryRowContext(ctx, query, name).Scan(
		&p.ID, &p.Name, &p.TotalQuantity, &p.Category, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting product by name '%s': %v", ErrDatabaseError, name, err)
	}
	return &p, nil
}

func (r *productRepository) List(ctx context.Context) ([]models.Product, error) {
	query := `SELECT id, name, total_quantity, category, created_at, updated_at
	          FROM products ORDER BY name ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: listing products: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.TotalQuantity, &p.Category, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning product: %v", ErrDatabaseError, err)
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating products: %v", ErrDatabaseError, err)
	}
	return products, nil
}

// DecrementQuantity deducts qty from a product's central quantity. The guard
// keeps the row from going negative; losing the guard returns
// ErrNoRowsAffected so the caller can branch or report a conflict.
func (r *productRepository) DecrementQuantity(ctx context.Context, executor SQLExecutor, id int64, qty int) error {
	query := `UPDATE products
	          SET total_quantity = total_quantity - $1, updated_at = $2
	          WHERE id = $3 AND total_quantity >= $1`
	res, err := executor.ExecContext(ctx, query, qty, time.Now(), id)
	if err != nil {
		return fmt.Errorf("%w: decrementing product %d stock: %v", ErrDatabaseError, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: decrementing product %d stock: %v", ErrDatabaseError, id, err)
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

func (r *productRepository) IncrementQuantity(ctx context.Context, executor SQLExecutor, id int64, qty int) error {
	query := `UPDATE products
	          SET total_quantity = total_quantity + $1, updated_at = $2
	          WHERE id = $3`
	res, err := executor.ExecContext(ctx, query, qty, time.Now(), id)
	if err != nil {
		return fmt.Errorf("%w: incrementing product %d stock: %v", ErrDatabaseError, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: incrementing product %d stock: %v", ErrDatabaseError, id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

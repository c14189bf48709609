package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tamannathakur/Invora/internal/models"
)

// AlmirahRepository defines per-nurse (holder) stock operations.
type AlmirahRepository interface {
	AddQuantity(ctx context.Context, executor SQLExecutor, nurseID, productID int64, qty int, expiry *time.Time) error
	Consume(ctx context.Context, executor SQLExecutor, nurseID, productID int64, qty int) error
	ListByNurse(ctx context.Context, nurseID int64) ([]models.AlmirahStockItem, error)
}

type almirahRepository struct {
	db *sql.DB
}

// NewAlmirahRepository creates a new instance of AlmirahRepository.
func NewAlmirahRepository(db *sql.DB) AlmirahRepository {
	return &almirahRepository{db: db}
}

// AddQuantity merges delivered stock into the nurse's almirah, creating the
// row when absent. When both rows carry an expiry the later one wins.
func (r *almirahRepository) AddQuantity(ctx context.Context, executor SQLExecutor, nurseID, productID int64, qty int, expiry *time.Time) error {
	query := `INSERT INTO almirah_stock (nurse_id, product_id, quantity, expiry, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $5)
	          ON CONFLICT (nurse_id, product_id)
	          DO UPDATE SET quantity = almirah_stock.quantity + EXCLUDED.quantity,
	                        expiry = GREATEST(COALESCE(almirah_stock.expiry, EXCLUDED.expiry), COALESCE(EXCLUDED.expiry, almirah_stock.expiry)),
	                        updated_at = EXCLUDED.updated_at`
	_, err := executor.ExecContext(ctx, query, nurseID, productID, qty, expiry, time.Now())
	if err != nil {
		return fmt.Errorf("%w: adding almirah stock for nurse %d product %d: %v", ErrDatabaseError, nurseID, productID, err)
	}
	return nil
}

// Consume deducts used units and removes the row once it reaches zero.
// The guard returns ErrNoRowsAffected when the almirah does not hold qty.
func (r *almirahRepository) Consume(ctx context.Context, executor SQLExecutor, nurseID, productID int64, qty int) error {
	query := `UPDATE almirah_stock
	          SET quantity = quantity - $1, updated_at = $2
	          WHERE nurse_id = $3 AND product_id = $4 AND quantity >= $1`
	res, err := executor.ExecContext(ctx, query, qty, time.Now(), nurseID, productID)
	if err != nil {
		return fmt.Errorf("%w: consuming almirah stock for nurse %d product %d: %v", ErrDatabaseError, nurseID, productID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: consuming almirah stock: %v", ErrDatabaseError, err)
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}

	_, err = executor.ExecContext(ctx,
		`DELETE FROM almirah_stock WHERE nurse_id = $1 AND product_id = $2 AND quantity = 0`,
		nurseID, productID)
	if err != nil {
		return fmt.Errorf("%w: pruning empty almirah row: %v", ErrDatabaseError, err)
	}
	return nil
}

func (r *almirahRepository) ListByNurse(ctx context.Context, nurseID int64) ([]models.AlmirahStockItem, error) {
	query := `SELECT a.id, a.nurse_id, a.product_id, a.quantity, a.expiry, a.created_at, a.updated_at,
	                 p.name, p.category
	          FROM almirah_stock a
	          JOIN products p ON a.product_id = p.id
	          WHERE a.nurse_id = $1
	          ORDER BY p.name ASC`
	rows, err := r.db.QueryContext(ctx, query, nurseID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing almirah stock for nurse %d: %v", ErrDatabaseError, nurseID, err)
	}
	defer rows.Close()

	items := []models.AlmirahStockItem{}
	for rows.Next() {
		var item models.AlmirahStockItem
		var product models.Product
		var expiry sql.NullTime
		if err := rows.Scan(
			&item.ID, &item.NurseID, &item.ProductID, &item.Quantity, &expiry, &item.CreatedAt, &item.UpdatedAt,
			&product.Name, &product.Category,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning almirah stock: %v", ErrDatabaseError, err)
		}
		if expiry.Valid {
			item.Expiry = &expiry.Time
		}
		product.ID = item.ProductID
		item.Product = &product
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating almirah stock: %v", ErrDatabaseError, err)
	}
	return items, nil
}

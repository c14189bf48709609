package models

import "time"

// Product is the central catalog record. TotalQuantity is the quantity held
// by the central store; it only decreases on dispatch and increases on vendor
// delivery. Names are unique case-insensitively.
type Product struct {
	ID            int64     `json:"id" db:"id"`
	Name          string    `json:"name" db:"name" binding:"required"`
	TotalQuantity int       `json:"total_quantity" db:"total_quantity"`
	Category      string    `json:"category" db:"category"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// DepartmentStockItem is the department-level stock row for a product.
// One row per product; created on first delivery.
type DepartmentStockItem struct {
	ID        int64      `json:"id" db:"id"`
	ProductID int64      `json:"product_id" db:"product_id"`
	Quantity  int        `json:"quantity" db:"quantity"`
	Category  string     `json:"category" db:"category"`
	Expiry    *time.Time `json:"expiry,omitempty" db:"expiry"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	Product   *Product   `json:"product,omitempty"`
}

// AlmirahStockItem is one product line in a nurse's almirah (the per-holder
// cupboard stock). Quantity never goes negative; the row is removed at zero.
type AlmirahStockItem struct {
	ID        int64      `json:"id" db:"id"`
	NurseID   int64      `json:"nurse_id" db:"nurse_id"`
	ProductID int64      `json:"product_id" db:"product_id"`
	Quantity  int        `json:"quantity" db:"quantity"`
	Expiry    *time.Time `json:"expiry,omitempty" db:"expiry"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	Product   *Product   `json:"product,omitempty"`
}

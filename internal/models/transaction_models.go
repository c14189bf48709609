package models

import "time"

// Endpoint roles appearing in the ledger's from/to columns. These describe
// stock locations and actors, not user accounts.
const (
	EndpointNurse     = "nurse"
	EndpointSister    = "sister_incharge"
	EndpointHOD       = "hod"
	EndpointDepartment = "department"
	EndpointCentral   = "central_inventory"
	EndpointVendor    = "vendor"
	EndpointAlmirah   = "almirah"
)

// TransactionEndpoint is one side of a stock move or hand-off.
type TransactionEndpoint struct {
	Role         string `json:"role" db:"role"`
	DepartmentID *int64 `json:"department_id,omitempty" db:"department_id"`
}

// Transaction is one append-only ledger entry. Every stock-affecting
// transition writes exactly one entry; a request's current status is always
// reconstructable from its latest entry.
type Transaction struct {
	ID          int64               `json:"id" db:"id"`
	From        TransactionEndpoint `json:"from"`
	To          TransactionEndpoint `json:"to"`
	ProductID   *int64              `json:"product_id,omitempty" db:"product_id"`
	Quantity    *int                `json:"quantity,omitempty" db:"quantity"`
	InitiatedBy int64               `json:"initiated_by" db:"initiated_by"`
	ReceivedBy  *int64              `json:"received_by,omitempty" db:"received_by"`
	RequestID   int64               `json:"request_id" db:"request_id"`
	Status      string              `json:"status" db:"status"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
	ProductName *string             `json:"product_name,omitempty"`
}

// TransactionFilters narrows listTransactions queries.
type TransactionFilters struct {
	RequestID *int64     `form:"request_id"`
	From      *time.Time `form:"-"`
	To        *time.Time `form:"-"`
	Page      int        `form:"page"`
	PageSize  int        `form:"page_size"`
}

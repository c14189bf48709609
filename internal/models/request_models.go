package models

import "time"

// Request type discriminator. A "department" request carries exactly one
// product reference; a "store_request" carries one or more items instead.
const (
	RequestTypeDepartment = "department"
	RequestTypeStore      = "store_request"
)

// Item source for store-request lines.
const (
	ItemSourceStock  = "stock"  // coverable from central stock at creation time
	ItemSourceVendor = "vendor" // needs a vendor order
)

// RequestItem is a single line of a store request. Lines are sourced
// independently: stock lines can dispatch while vendor lines are still
// awaiting delivery. Dispatched marks lines already deducted from the
// central catalog.
type RequestItem struct {
	ID          int64  `json:"id" db:"id"`
	RequestID   int64  `json:"request_id" db:"request_id"`
	ProductID   *int64 `json:"product_id,omitempty" db:"product_id"`
	ProductName string `json:"product_name" db:"product_name"`
	Quantity    int    `json:"quantity" db:"quantity"`
	Source      string `json:"source" db:"source"`
	Dispatched  bool   `json:"dispatched" db:"dispatched"`
}

// Request is a consumable/equipment request moving through the approval
// chain. Exactly one of ProductID/Items is populated, depending on
// RequestType.
type Request struct {
	ID                 int64         `json:"id" db:"id"`
	RequestType        string        `json:"request_type" db:"request_type"`
	ProductID          *int64        `json:"product_id,omitempty" db:"product_id"`
	Quantity           int           `json:"quantity" db:"quantity"`
	Reason             *string       `json:"reason,omitempty" db:"reason"`
	Status             string        `json:"status" db:"status"`
	RequestedBy        int64         `json:"requested_by" db:"requested_by"`
	ApprovedBy         *int64        `json:"approved_by,omitempty" db:"approved_by"`
	FulfilledBy        *int64        `json:"fulfilled_by,omitempty" db:"fulfilled_by"`
	VendorETAHours     *int          `json:"vendor_eta_hours,omitempty" db:"vendor_eta_hours"`
	VendorETAExpiresAt *time.Time    `json:"vendor_eta_expires_at,omitempty" db:"vendor_eta_expires_at"`
	VendorReminderSent bool          `json:"vendor_reminder_sent" db:"vendor_reminder_sent"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
	Items              []RequestItem `json:"items,omitempty"`
	Product            *Product      `json:"product,omitempty"`
	RequesterRole      Role          `json:"requester_role,omitempty" db:"requester_role"`
}

// RequestFilters narrows listRequests queries. Statuses and RequestedBy are
// filled in by the service from the caller's role, never from the client.
type RequestFilters struct {
	Statuses    []string
	RequestedBy *int64
	Page        int
	PageSize    int
}

// VendorReminder is one durable scheduled reminder row. Reminders survive
// restarts; the scheduler re-checks the request before notifying, so a stale
// row is harmless.
type VendorReminder struct {
	ID        int64     `json:"id" db:"id"`
	RequestID int64     `json:"request_id" db:"request_id"`
	FireAt    time.Time `json:"fire_at" db:"fire_at"`
	Sent      bool      `json:"sent" db:"sent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

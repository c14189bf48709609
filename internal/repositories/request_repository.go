package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tamannathakur/Invora/internal/models"

	"github.com/lib/pq"
)

// RequestRepository defines workflow-request database operations. Every
// status update is a compare-and-swap on the current status so concurrent
// transitions on the same request cannot both win.
type RequestRepository interface {
	Create(ctx context.Context, executor SQLExecutor, request *models.Request) (int64, error)
	CreateItems(ctx context.Context, executor SQLExecutor, requestID int64, items []models.RequestItem) error
	GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Request, error)
	Transition(ctx context.Context, executor SQLExecutor, id int64, expectedStatus, newStatus string, approvedBy, fulfilledBy *int64) error
	SetVendorETA(ctx context.Context, executor SQLExecutor, id int64, expectedStatus string, etaHours int, expiresAt time.Time) error
	ClearVendorETA(ctx context.Context, executor SQLExecutor, id int64, newStatus string) error
	MarkItemDispatched(ctx context.Context, executor SQLExecutor, itemID int64) error
	SetItemSource(ctx context.Context, executor SQLExecutor, itemID int64, source string) error
	MarkReminderSent(ctx context.Context, executor SQLExecutor, id int64) error
	List(ctx context.Context, filters models.RequestFilters) ([]models.Request, int, error)
}

type requestRepository struct {
	db *sql.DB
}

// NewRequestRepository creates a new instance of RequestRepository.
func NewRequestRepository(db *sql.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, executor SQLExecutor, request *models.Request) (int64, error) {
	query := `INSERT INTO requests
	          (request_type, product_id, quantity, reason, status, requested_by,
	           vendor_eta_hours, vendor_eta_expires_at, vendor_reminder_sent, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	          RETURNING id, created_at, updated_at`
	currentTime := time.Now()
	err := executor.QueryRowContext(ctx, query,
		request.RequestType, request.ProductID, request.Quantity, request.Reason,
		request.Status, request.RequestedBy, request.VendorETAHours,
		request.VendorETAExpiresAt, request.VendorReminderSent, currentTime,
	).Scan(&request.ID, &request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("%w: creating request: %v", ErrDatabaseError, err)
	}
	return request.ID, nil
}

func (r *requestRepository) CreateItems(ctx context.Context, executor SQLExecutor, requestID int64, items []models.RequestItem) error {
	query := `INSERT INTO request_items (request_id, product_id, product_name, quantity, source, dispatched)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id`
	for i := range items {
		items[i].RequestID = requestID
		err := executor.QueryRowContext(ctx, query,
			requestID, items[i].ProductID, items[i].ProductName,
			items[i].Quantity, items[i].Source, items[i].Dispatched,
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("%w: creating request item '%s': %v", ErrDatabaseError, items[i].ProductName, err)
		}
	}
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Request, error) {
	query := `SELECT rq.id, rq.request_type, rq.product_id, rq.quantity, rq.reason, rq.status,
	                 rq.requested_by, rq.approved_by, rq.fulfilled_by,
	                 rq.vendor_eta_hours, rq.vendor_eta_expires_at, rq.vendor_reminder_sent,
	                 rq.created_at, rq.updated_at, u.role
	          FROM requests rq
	          JOIN users u ON rq.requested_by = u.id
	          WHERE rq.id = $1`
	var request models.Request
	var reason sql.NullString
	var productID, approvedBy, fulfilledBy sql.NullInt64
	var etaHours sql.NullInt64
	var etaExpiresAt sql.NullTime
	var requesterRole string
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&request.ID, &request.RequestType, &productID, &request.Quantity, &reason, &request.Status,
		&request.RequestedBy, &approvedBy, &fulfilledBy,
		&etaHours, &etaExpiresAt, &request.VendorReminderSent,
		&request.CreatedAt, &request.UpdatedAt, &requesterRole,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting request %d: %v", ErrDatabaseError, id, err)
	}
	if reason.Valid {
		request.Reason = &reason.String
	}
	if productID.Valid {
		request.ProductID = &productID.Int64
	}
	if approvedBy.Valid {
		request.ApprovedBy = &approvedBy.Int64
	}
	if fulfilledBy.Valid {
		request.FulfilledBy = &fulfilledBy.Int64
	}
	if etaHours.Valid {
		hours := int(etaHours.Int64)
		request.VendorETAHours = &hours
	}
	if etaExpiresAt.Valid {
		request.VendorETAExpiresAt = &etaExpiresAt.Time
	}
	request.RequesterRole = models.Role(requesterRole)

	if request.RequestType == models.RequestTypeStore {
		items, err := r.itemsForRequests(ctx, executor, []int64{request.ID})
		if err != nil {
			return nil, err
		}
		request.Items = items[request.ID]
	}
	return &request, nil
}

// Transition performs the status compare-and-swap. approvedBy/fulfilledBy are
// only stamped when non-nil. ErrNoRowsAffected means the request either does
// not exist or is no longer in expectedStatus.
func (r *requestRepository) Transition(ctx context.Context, executor SQLExecutor, id int64, expectedStatus, newStatus string, approvedBy, fulfilledBy *int64) error {
	query := `UPDATE requests
	          SET status = $1,
	              approved_by = COALESCE($2, approved_by),
	              fulfilled_by = COALESCE($3, fulfilled_by),
	              updated_at = $4
	          WHERE id = $5 AND status = $6`
	res, err := executor.ExecContext(ctx, query, newStatus, approvedBy, fulfilledBy, time.Now(), id, expectedStatus)
	if err != nil {
		return fmt.Errorf("%w: transitioning request %d to %s: %v", ErrDatabaseError, id, newStatus, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: transitioning request %d: %v", ErrDatabaseError, id, err)
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// SetVendorETA moves a request into awaiting_vendor with a fresh ETA window.
func (r *requestRepository) SetVendorETA(ctx context.Context, executor SQLExecutor, id int64, expectedStatus string, etaHours int, expiresAt time.Time) error {
	query := `UPDATE requests
	          SET status = 'awaiting_vendor',
	              vendor_eta_hours = $1,
	              vendor_eta_expires_at = $2,
	              vendor_reminder_sent = FALSE,
	              updated_at = $3
	          WHERE id = $4 AND status = $5`
	res, err := executor.ExecContext(ctx, query, etaHours, expiresAt, time.Now(), id, expectedStatus)
	if err != nil {
		return fmt.Errorf("%w: setting vendor ETA on request %d: %v", ErrDatabaseError, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: setting vendor ETA on request %d: %v", ErrDatabaseError, id, err)
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// ClearVendorETA records a vendor delivery: the ETA window is wiped and the
// reminder suppressed. Valid only while the request is awaiting_vendor.
func (r *requestRepository) ClearVendorETA(ctx context.Context, executor SQLExecutor, id int64, newStatus string) error {
	query := `UPDATE requests
	          SET status = $1,
	              vendor_eta_hours = NULL,
	              vendor_eta_expires_at = NULL,
	              vendor_reminder_sent = TRUE,
	              updated_at = $2
	          WHERE id = $3 AND status = 'awaiting_vendor'`
	res, err := executor.ExecContext(ctx, query, newStatus, time.Now(), id)
	if err != nil {
		return fmt.Errorf("%w: clearing vendor ETA on request %d: %v", ErrDatabaseError, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: clearing vendor ETA on request %d: %v", ErrDatabaseError, id, err)
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

func (r *requestRepository) MarkItemDispatched(ctx context.Context, executor SQLExecutor, itemID int64) error {
	res, err := executor.ExecContext(ctx,
		`UPDATE request_items SET dispatched = TRUE WHERE id = $1 AND NOT dispatched`, itemID)
	if err != nil {
		return fmt.Errorf("%w: marking request item %d dispatched: %v", ErrDatabaseError, itemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: marking request item %d dispatched: %v", ErrDatabaseError, itemID, err)
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// SetItemSource re-labels a line after a live availability check, e.g. a
// stock line found short at dispatch time becomes a vendor line.
func (r *requestRepository) SetItemSource(ctx context.Context, executor SQLExecutor, itemID int64, source string) error {
	res, err := executor.ExecContext(ctx,
		`UPDATE request_items SET source = $1 WHERE id = $2`, source, itemID)
	if err != nil {
		return fmt.Errorf("%w: setting source on request item %d: %v", ErrDatabaseError, itemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: setting source on request item %d: %v", ErrDatabaseError, itemID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepository) MarkReminderSent(ctx context.Context, executor SQLExecutor, id int64) error {
	_, err := executor.ExecContext(ctx,
		`UPDATE requests SET vendor_reminder_sent = TRUE, updated_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("%w: marking reminder sent on request %d: %v", ErrDatabaseError, id, err)
	}
	return nil
}

func (r *requestRepository) List(ctx context.Context, filters models.RequestFilters) ([]models.Request, int, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT rq.id, rq.request_type, rq.product_id, rq.quantity, rq.reason, rq.status,
	    rq.requested_by, rq.approved_by, rq.fulfilled_by,
	    rq.vendor_eta_hours, rq.vendor_eta_expires_at, rq.vendor_reminder_sent,
	    rq.created_at, rq.updated_at, u.role, p.name,
	    COUNT(*) OVER() AS total_count
	  FROM requests rq
	  JOIN users u ON rq.requested_by = u.id
	  LEFT JOIN products p ON rq.product_id = p.id`)

	var conditions []string
	var args []interface{}
	argCount := 1

	if len(filters.Statuses) > 0 {
		conditions = append(conditions, fmt.Sprintf("rq.status = ANY($%d)", argCount))
		args = append(args, pq.Array(filters.Statuses))
		argCount++
	}
	if filters.RequestedBy != nil {
		conditions = append(conditions, fmt.Sprintf("rq.requested_by = $%d", argCount))
		args = append(args, *filters.RequestedBy)
		argCount++
	}
	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY rq.created_at DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: listing requests: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	requests := []models.Request{}
	totalCount := 0
	var storeIDs []int64
	for rows.Next() {
		var request models.Request
		var reason, productName sql.NullString
		var productID, approvedBy, fulfilledBy, etaHours sql.NullInt64
		var etaExpiresAt sql.NullTime
		var requesterRole string
		if err := rows.Scan(
			&request.ID, &request.RequestType, &productID, &request.Quantity, &reason, &request.Status,
			&request.RequestedBy, &approvedBy, &fulfilledBy,
			&etaHours, &etaExpiresAt, &request.VendorReminderSent,
			&request.CreatedAt, &request.UpdatedAt, &requesterRole, &productName,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning request: %v", ErrDatabaseError, err)
		}
		if reason.Valid {
			request.Reason = &reason.String
		}
		if productID.Valid {
			request.ProductID = &productID.Int64
			if productName.Valid {
				request.Product = &models.Product{ID: productID.Int64, Name: productName.String}
			}
		}
		if approvedBy.Valid {
			request.ApprovedBy = &approvedBy.Int64
		}
		if fulfilledBy.Valid {
			request.FulfilledBy = &fulfilledBy.Int64
		}
		if etaHours.Valid {
			hours := int(etaHours.Int64)
			request.VendorETAHours = &hours
		}
		if etaExpiresAt.Valid {
			request.VendorETAExpiresAt = &etaExpiresAt.Time
		}
		request.RequesterRole = models.Role(requesterRole)
		if request.RequestType == models.RequestTypeStore {
			storeIDs = append(storeIDs, request.ID)
		}
		requests = append(requests, request)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating requests: %v", ErrDatabaseError, err)
	}

	if len(storeIDs) > 0 {
		itemsByRequest, err := r.itemsForRequests(ctx, r.db, storeIDs)
		if err != nil {
			return nil, 0, err
		}
		for i := range requests {
			if requests[i].RequestType == models.RequestTypeStore {
				requests[i].Items = itemsByRequest[requests[i].ID]
			}
		}
	}
	return requests, totalCount, nil
}

func (r *requestRepository) itemsForRequests(ctx context.Context, executor SQLExecutor, requestIDs []int64) (map[int64][]models.RequestItem, error) {
	query := `SELECT id, request_id, product_id, product_name, quantity, source, dispatched
	          FROM request_items WHERE request_id = ANY($1) ORDER BY id ASC`
	rows, err := executor.QueryContext(ctx, query, pq.Array(requestIDs))
	if err != nil {
		return nil, fmt.Errorf("%w: loading request items: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	itemsByRequest := make(map[int64][]models.RequestItem)
	for rows.Next() {
		var item models.RequestItem
		var productID sql.NullInt64
		if err := rows.Scan(&item.ID, &item.RequestID, &productID, &item.ProductName, &item.Quantity, &item.Source, &item.Dispatched); err != nil {
			return nil, fmt.Errorf("%w: scanning request item: %v", ErrDatabaseError, err)
		}
		if productID.Valid {
			item.ProductID = &productID.Int64
		}
		itemsByRequest[item.RequestID] = append(itemsByRequest[item.RequestID], item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating request items: %v", ErrDatabaseError, err)
	}
	return itemsByRequest, nil
}

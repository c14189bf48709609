package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tamannathakur/Invora/internal/metrics"
	"github.com/tamannathakur/Invora/internal/models"
	"github.com/tamannathakur/Invora/internal/repositories"
	"github.com/tamannathakur/Invora/pkg/utils"
)

// Request statuses. The graph is monotonic: the only way back is
// awaiting_vendor -> pending_inventory_approval after a vendor delivery, and
// the rejected_* states absorb.
const (
	StatusPendingSister       = "pending_sister_incharge"
	StatusPendingHOD          = "pending_hod"
	StatusPendingInventory    = "pending_inventory_approval"
	StatusAwaitingVendor      = "awaiting_vendor"
	StatusApprovedAndSent     = "approved_and_sent"
	StatusFulfilled           = "fulfilled"
	StatusRejectedBySister    = "rejected_by_sister_incharge"
	StatusRejectedByHOD       = "rejected_by_hod"
	StatusRejectedByInventory = "rejected_by_inventory"
)

// DefaultVendorETAHours is used when inventory staff sets no explicit ETA.
const DefaultVendorETAHours = 48

// Every store access is bounded; a timeout surfaces as a retryable error
// instead of a stuck worker.
const opTimeout = 5 * time.Second

// --- Data Transfer Objects (DTOs) ---

// CreateRequestInput is used for creating a single-product request.
type CreateRequestInput struct {
	ProductName string `json:"product_name" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	Reason      string `json:"reason"`
}

// StoreRequestLineInput is one line of a multi-item store request.
type StoreRequestLineInput struct {
	ProductName string `json:"product_name" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
}

// CreateStoreRequestInput is used for creating a multi-item store request.
type CreateStoreRequestInput struct {
	Items  []StoreRequestLineInput `json:"items" binding:"required,dive"`
	Reason string                  `json:"reason"`
}

// ApproveInventoryInput carries the optional vendor ETA for central approval.
type ApproveInventoryInput struct {
	VendorETAHours int `json:"vendor_eta_hours"`
}

// TransitionResult is what every mutating workflow operation returns: the
// updated request plus the ledger entries the transition appended.
type TransitionResult struct {
	Request      *models.Request      `json:"request"`
	Transactions []models.Transaction `json:"transactions"`
}

// --- RequestService Interface ---

// RequestService is the request-fulfillment workflow engine. Callers are
// already authenticated; the service does its own role gating and returns
// ErrForbidden rather than trusting the transport.
type RequestService interface {
	CreateRequest(ctx context.Context, actor models.Principal, input CreateRequestInput) (*TransitionResult, error)
	CreateStoreRequest(ctx context.Context, actor models.Principal, input CreateStoreRequestInput) (*TransitionResult, error)
	ApproveSister(ctx context.Context, actor models.Principal, requestID int64) (*TransitionResult, error)
	ApproveHOD(ctx context.Context, actor models.Principal, requestID int64) (*TransitionResult, error)
	ApproveInventory(ctx context.Context, actor models.Principal, requestID int64, input ApproveInventoryInput) (*TransitionResult, error)
	VendorDeliver(ctx context.Context, actor models.Principal, requestID int64) (*TransitionResult, error)
	MarkReceived(ctx context.Context, actor models.Principal, requestID int64) (*TransitionResult, error)
	Reject(ctx context.Context, actor models.Principal, requestID int64) (*TransitionResult, error)
	ListRequests(ctx context.Context, actor models.Principal, page, pageSize int) ([]models.Request, int, error)
}

type requestService struct {
	requestRepo   repositories.RequestRepository
	productRepo   repositories.ProductRepository
	deptStockRepo repositories.DepartmentStockRepository
	almirahRepo   repositories.AlmirahRepository
	txnRepo       repositories.TransactionRepository
	reminderRepo  repositories.ReminderRepository
	txm           TxManager
	db            repositories.SQLExecutor
	now           func() time.Time
}

// NewRequestService creates a new instance of RequestService.
func NewRequestService(
	rr repositories.RequestRepository,
	pr repositories.ProductRepository,
	dsr repositories.DepartmentStockRepository,
	ar repositories.AlmirahRepository,
	tr repositories.TransactionRepository,
	remr repositories.ReminderRepository,
	db *sql.DB,
) RequestService {
	return &requestService{
		requestRepo:   rr,
		productRepo:   pr,
		deptStockRepo: dsr,
		almirahRepo:   ar,
		txnRepo:       tr,
		reminderRepo:  remr,
		txm:           NewTxManager(db),
		db:            db,
		now:           time.Now,
	}
}

func requireRole(actor models.Principal, roles ...models.Role) error {
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrForbidden, actor.Role)
}

// mapGuardErr converts a failed compare-and-swap or quantity guard into the
// retryable conflict kind callers know how to handle.
func mapGuardErr(err error) error {
	if errors.Is(err, repositories.ErrNoRowsAffected) {
		metrics.StateConflictsTotal.Inc()
		return fmt.Errorf("%w: lost a concurrent update, re-read and retry", ErrStateConflict)
	}
	return err
}

func (s *requestService) scheduleVendorReminder(ctx context.Context, executor repositories.SQLExecutor, requestID int64, expiresAt time.Time) error {
	// One hour before the ETA lapses, clamped to now for very short windows.
	fireAt := expiresAt.Add(-time.Hour)
	if now := s.now(); fireAt.Before(now) {
		fireAt = now
	}
	return s.reminderRepo.Enqueue(ctx, executor, requestID, fireAt)
}

func (s *requestService) loadRequest(ctx context.Context, executor repositories.SQLExecutor, requestID int64) (*models.Request, error) {
	request, err := s.requestRepo.GetByID(ctx, executor, requestID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrRequestNotFound, requestID)
		}
		return nil, err
	}
	return request, nil
}

// --- Method Implementations ---

func (s *requestService) CreateRequest(ctx context.Context, actor models.Principal, input CreateRequestInput) (*TransitionResult, error) {
	if err := requireRole(actor, models.RoleNurse, models.RoleSisterIncharge); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.ProductName) == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var request *models.Request
	err := s.txm.WithinTx(ctx, func(executor repositories.SQLExecutor) error {
		product, err := s.productRepo.GetByName(ctx, executor, input.ProductName)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		if product != nil {
			// Known product: a normal single-item request entering the
			// approval chain at the step matching the originator. Creation
			// moves no stock, so nothing is appended to the ledger yet.
			status := StatusPendingSister
			if actor.Role == models.RoleSisterIncharge {
				status = StatusPendingHOD
			}
			request = &models.Request{
				RequestType: models.RequestTypeDepartment,
				ProductID:   &product.ID,
				Quantity:    input.Quantity,
				Reason:      utils.NewNullString(input.Reason),
				Status:      status,
				RequestedBy: actor.ID,
			}
			if _, err := s.requestRepo.Create(ctx, executor, request); err != nil {
				return err
			}
			request.RequesterRole = actor.Role
			request.Product = product
			return nil
		}

		// Unknown product: register it at zero quantity and open a store
		// request that goes straight to vendor resolution.
		product = &models.Product{Name: strings.TrimSpace(input.ProductName), TotalQuantity: 0, Category: "General"}
		if _, err := s.productRepo.Create(ctx, executor, product); err != nil {
			return err
		}
		request = &models.Request{
			RequestType: models.RequestTypeStore,
			Quantity:    input.Quantity,
			Reason:      utils.NewNullString(input.Reason),
			Status:      StatusAwaitingVendor,
			RequestedBy: actor.ID,
		}
		if _, err := s.requestRepo.Create(ctx, executor, request); err != nil {
			return err
		}
		items := []models.RequestItem{{
			ProductID:   &product.ID,
			ProductName: product.Name,
			Quantity:    input.Quantity,
			Source:      models.ItemSourceVendor,
		}}
		if err := s.requestRepo.CreateItems(ctx, executor, request.ID, items); err != nil {
			return err
		}
		request.Items = items
		request.RequesterRole = actor.Role
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(request.Status).Inc()
	return &TransitionResult{Request: request, Transactions: []models.Transaction{}}, nil
}

func (s *requestService) CreateStoreRequest(ctx context.Context, actor models.Principal, input CreateStoreRequestInput) (*TransitionResult, error) {
	if err := requireRole(actor, models.RoleNurse, models.RoleSisterIncharge, models.RoleHOD, models.RoleInventoryStaff); err != nil {
		return nil, err
	}
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	for _, line := range input.Items {
		if strings.TrimSpace(line.ProductName) == "" {
			return nil, fmt.Errorf("%w: every item needs a product name", ErrValidation)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for '%s' must be positive", ErrValidation, line.ProductName)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// The entry point depends on who is asking: nurses start at the sister,
	// sisters at the HOD, HODs at central, inventory staff straight at the
	// vendor.
	status := StatusPendingSister
	switch actor.Role {
	case models.RoleSisterIncharge:
		status = StatusPendingHOD
	case models.RoleHOD:
		status = StatusPendingInventory
	case models.RoleInventoryStaff:
		status = StatusAwaitingVendor
	}

	var request *models.Request
	err := s.txm.WithinTx(ctx, func(executor repositories.SQLExecutor) error {
		totalQuantity := 0
		items := make([]models.RequestItem, 0, len(input.Items))
		for _, line := range input.Items {
			name := strings.TrimSpace(line.ProductName)
			product, err := s.productRepo.GetByName(ctx, executor, name)
			if err != nil {
				if !errors.Is(err, repositories.ErrNotFound) {
					return err
				}
				product = &models.Product{Name: name, TotalQuantity: 0, Category: "General"}
				if _, err := s.productRepo.Create(ctx, executor, product); err != nil {
					return err
				}
			}
			source := models.ItemSourceVendor
			if product.TotalQuantity >= line.Quantity {
				source = models.ItemSourceStock
			}
			items = append(items, models.RequestItem{
				ProductID:   &product.ID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				Source:      source,
			})
			totalQuantity += line.Quantity
		}

		request = &models.Request{
			RequestType: models.RequestTypeStore,
			Quantity:    totalQuantity,
			Reason:      utils.NewNullString(input.Reason),
			Status:      status,
			RequestedBy: actor.ID,
		}
		if _, err := s.requestRepo.Create(ctx, executor, request); err != nil {
			return err
		}
		if err := s.requestRepo.CreateItems(ctx, executor, request.ID, items); err != nil {
			return err
		}
		request.Items = items
		request.RequesterRole = actor.Role
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(request.Status).Inc()
	return &TransitionResult{Request: request, Transactions: []models.Transaction{}}, nil
}

// ApproveSister handles the local (ward) approval step. If the department
// store covers the requested quantity the request is served on the spot and
// fulfilled; otherwise it escalates to the HOD.
func (s *requestService) ApproveSister(ctx context.Context, actor models.Principal, requestID int64) (*TransitionResult, error) {
	if err := requireRole(actor, models.RoleSisterIncharge); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var resultStatus string
	var ledger []models.Transaction
	err := s.txm.WithinTx(ctx, func(executor repositories.SQLExecutor) error {
		request, err := s.loadRequest(ctx, executor, requestID)
		if err != nil {
			return err
		}
		if request.Status != StatusPendingSister {
			return fmt.Errorf("%w: request %d is %s, not %s", ErrStateConflict, requestID, request.Status, StatusPendingSister)
		}

		// Store requests have nothing a ward can serve from: escalate.
		if request.RequestType == models.RequestTypeStore {
			if err := s.requestRepo.Transition(ctx, executor, requestID, StatusPendingSister, StatusPendingHOD, &actor.ID, nil); err != nil {
				return mapGuardErr(err)
			}
			resultStatus = StatusPendingHOD
			txn := models.Transaction{
				From:        models.TransactionEndpoint{Role: models.EndpointSister, DepartmentID: actor.DepartmentID},
				To:          models.TransactionEndpoint{Role: models.EndpointHOD},
				Quantity:    &request.Quantity,
				InitiatedBy: actor.ID,
				RequestID:   requestID,
				Status:      StatusPendingHOD,
			}
			if _, err := s.txnRepo.Create(ctx, executor, &txn); err != nil {
				return err
			}
			ledger = append(ledger, txn)
			return nil
		}

		// Department-stock sufficiency is evaluated live: the guarded
		// decrement is the authoritative check.
		served := false
		deptItem, err := s.deptStockRepo.GetByProduct(ctx, executor, *request.ProductID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		if deptItem != nil && deptItem.Quantity >= request.Quantity {
			err := s.deptStockRepo.Decrement(ctx, executor, *request.ProductID, request.Quantity)
			if err == nil {
				served = true
			} else if !errors.Is(err, repositories.ErrNoRowsAffected) {
				return err
			}
		}

		if served {
			if err := s.almirahRepo.AddQuantity(ctx, executor, request.RequestedBy, *request.ProductID, request.Quantity, deptItem.Expiry); err != nil {
				return err
			}
			if err := s.requestRepo.Transition(ctx, executor, requestID, StatusPendingSister, StatusFulfilled, &actor.ID, &actor.ID); err != nil {
				return mapGuardErr(err)
			}
			resultStatus = StatusFulfilled
			txn := models.Transaction{
				From:        models.TransactionEndpoint{Role: models.EndpointDepartment, DepartmentID: actor.DepartmentID},
				To:          models.TransactionEndpoint{Role: models.EndpointAlmirah},
				ProductID:   request.ProductID,
				Quantity:    &request.Quantity,
				InitiatedBy: actor.ID,
				ReceivedBy:  &request.RequestedBy,
				RequestID:   requestID,
				Status:      StatusFulfilled,
			}
			if _, err := s.txnRepo.Create(ctx, executor, &txn); err != nil {
				return err
			}
			ledger = append(ledger, txn)
			return nil
		}

		if err := s.requestRepo.Transition(ctx, executor, requestID, StatusPendingSister, StatusPendingHOD, &actor.ID, nil); err != nil {
			return mapGuardErr(err)
		}
		resultStatus = StatusPendingHOD
		txn := models.Transaction{
			From:        models.TransactionEndpoint{Role: models.EndpointSister, DepartmentID: actor.DepartmentID},
			To:          models.TransactionEndpoint{Role: models.EndpointHOD},
			ProductID:   request.ProductID,
			Quantity:    &request.Quantity,
			InitiatedBy: actor.ID,
			RequestID:   requestID,
			Status:      StatusPendingHOD,
		}
		if _, err := s.txnRepo.Create(ctx, executor, &txn); err != nil {
			return err
		}
		ledger = append(ledger, txn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(resultStatus).Inc()
	return s.transitionResult(ctx, requestID, ledger)
}

// ApproveHOD handles department-head approval: a routing decision on central
// availability, never a stock mutation.
func (s *requestService) ApproveHOD(ctx context.Context, actor models.Principal, requestID int64) (*TransitionResult, error) {
	if err := requireRole(actor, models.RoleHOD); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var resultStatus string
	var ledger []models.Transaction
	err := s.txm.WithinTx(ctx, func(executor repositories.SQLExecutor) error {
		request, err := s.loadRequest(ctx, executor, requestID)
		if err != nil {
			return err
		}
		if request.Status != StatusPendingHOD {
			return fmt.Errorf("%w: request %d is %s, not %s", ErrStateConflict, requestID, request.Status, StatusPendingHOD)
		}

		covered := true
		if request.RequestType == models.RequestTypeStore {
			for _, item := range request.Items {
				if item.ProductID == nil {
					covered = false
					break
				}
				product, err := s.productRepo.GetByID(ctx, executor, *item.ProductID)
				if err != nil {
					if errors.Is(err, repositories.ErrNotFound) {
						covered = false
						break
					}
					return err
				}
				if product.TotalQuantity < item.Quantity {
					covered = false
					break
				}
			}
		} else {
			product, err := s.productRepo.GetByID(ctx, executor, *request.ProductID)
			if err != nil {
				return err
			}
			covered = product.TotalQuantity >= request.Quantity
		}

		nextStatus := StatusPendingInventory
		toRole := models.EndpointCentral
		if !covered {
			nextStatus = StatusAwaitingVendor
			toRole = models.EndpointVendor
		}
		if err := s.requestRepo.Transition(ctx, executor, requestID, StatusPendingHOD, nextStatus, &actor.ID, nil); err != nil {
			return mapGuardErr(err)
		}
		resultStatus = nextStatus
		txn := models.Transaction{
			From:        models.TransactionEndpoint{Role: models.EndpointHOD, DepartmentID: actor.DepartmentID},
			To:          models.TransactionEndpoint{Role: toRole},
			ProductID:   request.ProductID,
			Quantity:    &request.Quantity,
			InitiatedBy: actor.ID,
			RequestID:   requestID,
			Status:      nextStatus,
		}
		if _, err := s.txnRepo.Create(ctx, executor, &txn); err != nil {
			return err
		}
		ledger = append(ledger, txn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(resultStatus).Inc()
	return s.transitionResult(ctx, requestID, ledger)
}

// ApproveInventory is the central decision point: dispatch what the catalog
// covers, hand the rest to a vendor with an ETA. Store requests fulfil mixed:
// stock lines dispatch now, vendor lines keep the request awaiting the
// vendor.
func (s *requestService) ApproveInventory(ctx context.Context, actor models.Principal, requestID int64, input ApproveInventoryInput) (*TransitionResult, error) {
	if err := requireRole(actor, models.RoleInventoryStaff); err != nil {
		return nil, err
	}
	etaHours := input.VendorETAHours
	if etaHours <= 0 {
		etaHours = DefaultVendorETAHours
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var resultStatus string
	var ledger []models.Transaction
	err := s.txm.WithinTx(ctx, func(executor repositories.SQLExecutor) error {
		request, err := s.loadRequest(ctx, executor, requestID)
		if err != nil {
			return err
		}
		if request.Status != StatusPendingInventory {
			return fmt.Errorf("%w: request %d is %s, not %s", ErrStateConflict, requestID, request.Status, StatusPendingInventory)
		}

		if request.RequestType == models.RequestTypeStore {
			return s.approveInventoryStore(ctx, executor, actor, request, etaHours, &resultStatus, &ledger)
		}
		return s.approveInventorySingle(ctx, executor, actor, request, etaHours, &resultStatus, &ledger)
	})
	if err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(resultStatus).Inc()
	return s.transitionResult(ctx, requestID, ledger)
}

func (s *requestService) approveInventorySingle(ctx context.Context, executor repositories.SQLExecutor, actor models.Principal, request *models.Request, etaHours int, resultStatus *string, ledger *[]models.Transaction) error {
	product, err := s.productRepo.GetByID(ctx, executor, *request.ProductID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: id %d", ErrProductNotFound, *request.ProductID)
		}
		return err
	}

	if product.TotalQuantity < request.Quantity {
		expiresAt := s.now().Add(time.Duration(etaHours) * time.Hour)
		if err := s.requestRepo.SetVendorETA(ctx, executor, request.ID, StatusPendingInventory, etaHours, expiresAt); err != nil {
			return mapGuardErr(err)
		}
		if err := s.scheduleVendorReminder(ctx, executor, request.ID, expiresAt); err != nil {
			return err
		}
		*resultStatus = StatusAwaitingVendor
		txn := models.Transaction{
			From:        models.TransactionEndpoint{Role: models.EndpointCentral},
			To:          models.TransactionEndpoint{Role: models.EndpointVendor},
			ProductID:   request.ProductID,
			Quantity:    &request.Quantity,
			InitiatedBy: actor.ID,
			RequestID:   request.ID,
			Status:      StatusAwaitingVendor,
		}
		if _, err := s.txnRepo.Create(ctx, executor, &txn); err != nil {
			return err
		}
		*ledger = append(*ledger, txn)
		return nil
	}

	// Claim the request first, then deduct. If a concurrent dispatch drained
	// the row between our read and the guarded update, the whole transaction
	// rolls back as a conflict.
	if err := s.requestRepo.Transition(ctx, executor, request.ID, StatusPendingInventory, StatusApprovedAndSent, &actor.ID, nil); err != nil {
		return mapGuardErr(err)
	}
	if err := s.productRepo.DecrementQuantity(ctx, executor, *request.ProductID, request.Quantity); err != nil {
		return mapGuardErr(err)
	}
	*resultStatus = StatusApprovedAndSent
	txn := models.Transaction{
		From:        models.TransactionEndpoint{Role: models.EndpointCentral},
		To:          models.TransactionEndpoint{Role: models.EndpointDepartment},
		ProductID:   request.ProductID,
		Quantity:    &request.Quantity,
		InitiatedBy: actor.ID,
		ReceivedBy:  &request.RequestedBy,
		RequestID:   request.ID,
		Status:      StatusApprovedAndSent,
	}
	if _, err := s.txnRepo.Create(ctx, executor, &txn); err != nil {
		return err
	}
	*ledger = append(*ledger, txn)
	return nil
}

func (s *requestService) approveInventoryStore(ctx context.Context, executor repositories.SQLExecutor, actor models.Principal, request *models.Request, etaHours int, resultStatus *string, ledger *[]models.Transaction) error {
	dispatchedQty := 0
	pendingQty := 0
	for _, item := range request.Items {
		if item.Dispatched {
			continue
		}
		// Availability is evaluated live; the source label is only the
		// creation-time guess and is corrected here when it is stale.
		shortfall := true
		if item.ProductID != nil {
			product, err := s.productRepo.GetByID(ctx, executor, *item.ProductID)
			if err != nil && !errors.Is(err, repositories.ErrNotFound) {
				return err
			}
			if product != nil && product.TotalQuantity >= item.Quantity {
				if err := s.productRepo.DecrementQuantity(ctx, executor, *item.ProductID, item.Quantity); err != nil {
					return mapGuardErr(err)
				}
				if err := s.requestRepo.MarkItemDispatched(ctx, executor, item.ID); err != nil {
					return mapGuardErr(err)
				}
				dispatchedQty += item.Quantity
				shortfall = false
			}
		}
		if shortfall {
			if item.Source != models.ItemSourceVendor {
				if err := s.requestRepo.SetItemSource(ctx, executor, item.ID, models.ItemSourceVendor); err != nil {
					return err
				}
			}
			pendingQty += item.Quantity
		}
	}

	if pendingQty == 0 {
		if err := s.requestRepo.Transition(ctx, executor, request.ID, StatusPendingInventory, StatusApprovedAndSent, &actor.ID, nil); err != nil {
			return mapGuardErr(err)
		}
		*resultStatus = StatusApprovedAndSent
		txn := models.Transaction{
			From:        models.TransactionEndpoint{Role: models.EndpointCentral},
			To:          models.TransactionEndpoint{Role: models.EndpointDepartment},
			Quantity:    &dispatchedQty,
			InitiatedBy: actor.ID,
			ReceivedBy:  &request.RequestedBy,
			RequestID:   request.ID,
			Status:      StatusApprovedAndSent,
		}
		if _, err := s.txnRepo.Create(ctx, executor, &txn); err != nil {
			return err
		}
		*ledger = append(*ledger, txn)
		return nil
	}

	expiresAt := s.now().Add(time.Duration(etaHours) * time.Hour)
	if err := s.requestRepo.SetVendorETA(ctx, executor, request.ID, StatusPendingInventory, etaHours, expiresAt); err != nil {
		return mapGuardErr(err)
	}
	if err := s.scheduleVendorReminder(ctx, executor, request.ID, expiresAt); err != nil {
		return err
	}
	*resultStatus = StatusAwaitingVendor
	if dispatchedQty > 0 {
		txn := models.Transaction{
			From:        models.TransactionEndpoint{Role: models.EndpointCentral},
			To:          models.TransactionEndpoint{Role: models.EndpointDepartment},
			Quantity:    &dispatchedQty,
			InitiatedBy: actor.ID,
			ReceivedBy:  &request.RequestedBy,
			RequestID:   request.ID,
			Status:      StatusAwaitingVendor,
		}
		if _, err := s.txnRepo.Create(ctx, executor, &txn); err != nil {
			return err
		}
		*ledger = append(*ledger, txn)
	}
	txn := models.Transaction{
		From:        models.TransactionEndpoint{Role: models.EndpointCentral},
		To:          models.TransactionEndpoint{Role: models.EndpointVendor},
		Quantity:    &pendingQty,
		InitiatedBy: actor.ID,
		RequestID:   request.ID,
		Status:      StatusAwaitingVendor,
	}
	if _, err := s.txnRepo.Create(ctx, executor, &txn); err != nil {
		return err
	}
	*ledger = append(*ledger, txn)
	return nil
}

// VendorDeliver records a vendor delivery into the central catalog and puts
// the request back in front of inventory staff for (re-)dispatch.
func (s *requestService) VendorDeliver(ctx context.Context, actor models.Principal, requestID int64) (*TransitionResult, error) {
	if err := requireRole(actor, models.RoleInventoryStaff); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var ledger []models.Transaction
	err := s.txm.WithinTx(ctx, func(executor repositories.SQLExecutor) error {
		request, err := s.loadRequest(ctx, executor, requestID)
		if err != nil {
			return err
		}
		if request.Status != StatusAwaitingVendor {
			return fmt.Errorf("%w: request %d is %s, not %s", ErrStateConflict, requestID, request.Status, StatusAwaitingVendor)
		}

		deliveredQty := 0
		if request.RequestType == models.RequestTypeStore {
			for _, item := range request.Items {
				if item.Dispatched || item.ProductID == nil {
					continue
				}
				if err := s.productRepo.IncrementQuantity(ctx, executor, *item.ProductID, item.Quantity); err != nil {
					return err
				}
				deliveredQty += item.Quantity
			}
		} else {
			if err := s.productRepo.IncrementQuantity(ctx, executor, *request.ProductID, request.Quantity); err != nil {
				return err
			}
			deliveredQty = request.Quantity
		}

		if err := s.requestRepo.ClearVendorETA(ctx, executor, requestID, StatusPendingInventory); err != nil {
			return mapGuardErr(err)
		}
		txn := models.Transaction{
			From:        models.TransactionEndpoint{Role: models.EndpointVendor},
			To:          models.TransactionEndpoint{Role: models.EndpointCentral},
			ProductID:   request.ProductID,
			Quantity:    &deliveredQty,
			InitiatedBy: actor.ID,
			RequestID:   requestID,
			Status:      StatusPendingInventory,
		}
		if _, err := s.txnRepo.Create(ctx, executor, &txn); err != nil {
			return err
		}
		ledger = append(ledger, txn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(StatusPendingInventory).Inc()
	return s.transitionResult(ctx, requestID, ledger)
}

// MarkReceived confirms arrival of a dispatched request and credits the
// requester's tier: a nurse's almirah, or the department store for requests
// raised by the sister-in-charge. Calling it again on a fulfilled request is
// a no-op.
func (s *requestService) MarkReceived(ctx context.Context, actor models.Principal, requestID int64) (*TransitionResult, error) {
	if err := requireRole(actor, models.RoleSisterIncharge); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var ledger []models.Transaction
	alreadyFulfilled := false
	err := s.txm.WithinTx(ctx, func(executor repositories.SQLExecutor) error {
		request, err := s.loadRequest(ctx, executor, requestID)
		if err != nil {
			return err
		}
		if request.Status == StatusFulfilled {
			alreadyFulfilled = true
			return nil
		}
		if request.Status != StatusApprovedAndSent {
			return fmt.Errorf("%w: request %d is %s, not %s", ErrStateConflict, requestID, request.Status, StatusApprovedAndSent)
		}
		if err := s.requestRepo.Transition(ctx, executor, requestID, StatusApprovedAndSent, StatusFulfilled, nil, &actor.ID); err != nil {
			return mapGuardErr(err)
		}

		toNurse := request.RequesterRole == models.RoleNurse
		credit := func(productID int64, qty int) error {
			if toNurse {
				return s.almirahRepo.AddQuantity(ctx, executor, request.RequestedBy, productID, qty, nil)
			}
			product, err := s.productRepo.GetByID(ctx, executor, productID)
			if err != nil {
				return err
			}
			return s.deptStockRepo.AddQuantity(ctx, executor, productID, qty, product.Category, nil)
		}
		log := func(productID *int64, qty int) error {
			toRole := models.EndpointDepartment
			if toNurse {
				toRole = models.EndpointAlmirah
			}
			txn := models.Transaction{
				From:        models.TransactionEndpoint{Role: models.EndpointCentral},
				To:          models.TransactionEndpoint{Role: toRole, DepartmentID: actor.DepartmentID},
				ProductID:   productID,
				Quantity:    &qty,
				InitiatedBy: actor.ID,
				ReceivedBy:  &request.RequestedBy,
				RequestID:   requestID,
				Status:      StatusFulfilled,
			}
			if _, err := s.txnRepo.Create(ctx, executor, &txn); err != nil {
				return err
			}
			ledger = append(ledger, txn)
			return nil
		}

		if request.RequestType == models.RequestTypeStore {
			for _, item := range request.Items {
				if !item.Dispatched || item.ProductID == nil {
					continue
				}
				if err := credit(*item.ProductID, item.Quantity); err != nil {
					return err
				}
				if err := log(item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
			return nil
		}
		if err := credit(*request.ProductID, request.Quantity); err != nil {
			return err
		}
		return log(request.ProductID, request.Quantity)
	})
	if err != nil {
		return nil, err
	}
	if !alreadyFulfilled {
		metrics.TransitionsTotal.WithLabelValues(StatusFulfilled).Inc()
	}
	return s.transitionResult(ctx, requestID, ledger)
}

// Reject terminates a pending request. Which pending step a role may reject
// follows the chain; no stock moves.
func (s *requestService) Reject(ctx context.Context, actor models.Principal, requestID int64) (*TransitionResult, error) {
	var expectedStatus, rejectedStatus string
	switch actor.Role {
	case models.RoleSisterIncharge:
		expectedStatus, rejectedStatus = StatusPendingSister, StatusRejectedBySister
	case models.RoleHOD:
		expectedStatus, rejectedStatus = StatusPendingHOD, StatusRejectedByHOD
	case models.RoleInventoryStaff:
		expectedStatus, rejectedStatus = StatusPendingInventory, StatusRejectedByInventory
	default:
		return nil, fmt.Errorf("%w: %s", ErrForbidden, actor.Role)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var ledger []models.Transaction
	err := s.txm.WithinTx(ctx, func(executor repositories.SQLExecutor) error {
		request, err := s.loadRequest(ctx, executor, requestID)
		if err != nil {
			return err
		}
		if request.Status != expectedStatus {
			return fmt.Errorf("%w: request %d is %s, not %s", ErrStateConflict, requestID, request.Status, expectedStatus)
		}
		if err := s.requestRepo.Transition(ctx, executor, requestID, expectedStatus, rejectedStatus, &actor.ID, nil); err != nil {
			return mapGuardErr(err)
		}
		txn := models.Transaction{
			From:        models.TransactionEndpoint{Role: string(actor.Role), DepartmentID: actor.DepartmentID},
			To:          models.TransactionEndpoint{Role: string(request.RequesterRole)},
			ProductID:   request.ProductID,
			Quantity:    &request.Quantity,
			InitiatedBy: actor.ID,
			RequestID:   requestID,
			Status:      "rejected",
		}
		if _, err := s.txnRepo.Create(ctx, executor, &txn); err != nil {
			return err
		}
		ledger = append(ledger, txn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(rejectedStatus).Inc()
	return s.transitionResult(ctx, requestID, ledger)
}

// ListRequests returns the slice of the workflow visible to the caller's
// role: nurses see their own requests, the sister everything active in the
// ward, the HOD their approval queue, inventory staff the central queue plus
// vendor traffic, admins everything.
func (s *requestService) ListRequests(ctx context.Context, actor models.Principal, page, pageSize int) ([]models.Request, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filters := models.RequestFilters{Page: page, PageSize: pageSize}
	switch actor.Role {
	case models.RoleNurse:
		filters.RequestedBy = &actor.ID
	case models.RoleSisterIncharge:
		filters.Statuses = []string{
			StatusPendingSister, StatusPendingHOD, StatusPendingInventory,
			StatusAwaitingVendor, StatusApprovedAndSent, StatusFulfilled,
		}
	case models.RoleHOD:
		filters.Statuses = []string{StatusPendingHOD}
	case models.RoleInventoryStaff:
		filters.Statuses = []string{StatusPendingInventory, StatusAwaitingVendor, StatusApprovedAndSent}
	case models.RoleAdmin:
		// no filter
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrForbidden, actor.Role)
	}
	return s.requestRepo.List(ctx, filters)
}

// transitionResult re-reads the request so callers get its post-commit state.
func (s *requestService) transitionResult(ctx context.Context, requestID int64, ledger []models.Transaction) (*TransitionResult, error) {
	request, err := s.loadRequest(ctx, s.db, requestID)
	if err != nil {
		return nil, err
	}
	return &TransitionResult{Request: request, Transactions: ledger}, nil
}


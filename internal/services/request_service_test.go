package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tamannathakur/Invora/internal/models"
	"github.com/tamannathakur/Invora/internal/repositories"
)

var testNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

var (
	nurse  = models.Principal{ID: 1, Username: "asha", Role: models.RoleNurse}
	sister = models.Principal{ID: 2, Username: "meera", Role: models.RoleSisterIncharge}
	hod    = models.Principal{ID: 3, Username: "rkumar", Role: models.RoleHOD}
	staff  = models.Principal{ID: 4, Username: "store1", Role: models.RoleInventoryStaff}
)

func newWorkflowFixture() (*memStore, *requestService) {
	store := newMemStore()
	store.addUser(nurse.ID, models.RoleNurse)
	store.addUser(sister.ID, models.RoleSisterIncharge)
	store.addUser(hod.ID, models.RoleHOD)
	store.addUser(staff.ID, models.RoleInventoryStaff)
	// keep user IDs out of the product ID range
	store.lastID = 100
	return store, newTestRequestService(store, testNow)
}

func mustCreate(t *testing.T, svc *requestService, actor models.Principal, input CreateRequestInput) *models.Request {
	t.Helper()
	result, err := svc.CreateRequest(context.Background(), actor, input)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	return result.Request
}

func mustTransition(t *testing.T, fn func(context.Context, models.Principal, int64) (*TransitionResult, error), actor models.Principal, id int64) *TransitionResult {
	t.Helper()
	result, err := fn(context.Background(), actor, id)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	return result
}

func TestGauzeFullChain(t *testing.T) {
	store, svc := newWorkflowFixture()
	gauzeID := store.addProduct("Gauze", 100)

	request := mustCreate(t, svc, nurse, CreateRequestInput{ProductName: "Gauze", Quantity: 10})
	if request.Status != StatusPendingSister {
		t.Fatalf("status after create = %s, want %s", request.Status, StatusPendingSister)
	}
	if len(store.ledgerFor(request.ID)) != 0 {
		t.Fatalf("creation must not append ledger entries")
	}

	// No department stock: the sister escalates.
	result := mustTransition(t, svc.ApproveSister, sister, request.ID)
	if result.Request.Status != StatusPendingHOD {
		t.Fatalf("status after sister approval = %s, want %s", result.Request.Status, StatusPendingHOD)
	}

	result = mustTransition(t, svc.ApproveHOD, hod, request.ID)
	if result.Request.Status != StatusPendingInventory {
		t.Fatalf("status after hod approval = %s, want %s", result.Request.Status, StatusPendingInventory)
	}

	invResult, err := svc.ApproveInventory(context.Background(), staff, request.ID, ApproveInventoryInput{})
	if err != nil {
		t.Fatalf("ApproveInventory: %v", err)
	}
	if invResult.Request.Status != StatusApprovedAndSent {
		t.Fatalf("status after inventory approval = %s, want %s", invResult.Request.Status, StatusApprovedAndSent)
	}
	if got := store.productQuantity(gauzeID); got != 90 {
		t.Fatalf("central quantity after dispatch = %d, want 90", got)
	}

	result = mustTransition(t, svc.MarkReceived, sister, request.ID)
	if result.Request.Status != StatusFulfilled {
		t.Fatalf("status after receipt = %s, want %s", result.Request.Status, StatusFulfilled)
	}
	if got := store.almirahQuantity(nurse.ID, gauzeID); got != 10 {
		t.Fatalf("almirah quantity = %d, want 10", got)
	}

	ledger := store.ledgerFor(request.ID)
	if len(ledger) != 4 {
		t.Fatalf("ledger entries = %d, want 4", len(ledger))
	}
	wantHops := [][2]string{
		{models.EndpointSister, models.EndpointHOD},
		{models.EndpointHOD, models.EndpointCentral},
		{models.EndpointCentral, models.EndpointDepartment},
		{models.EndpointCentral, models.EndpointAlmirah},
	}
	for i, hop := range wantHops {
		if ledger[i].From.Role != hop[0] || ledger[i].To.Role != hop[1] {
			t.Errorf("ledger[%d] = %s->%s, want %s->%s", i, ledger[i].From.Role, ledger[i].To.Role, hop[0], hop[1])
		}
	}

	// Conservation: central + almirah still totals the original 100.
	if total := store.productQuantity(gauzeID) + store.almirahQuantity(nurse.ID, gauzeID); total != 100 {
		t.Fatalf("total stock = %d, want 100", total)
	}
}

func TestSisterServesFromDepartmentStock(t *testing.T) {
	store, svc := newWorkflowFixture()
	productID := store.addProduct("Syringe 5ml", 100)
	store.addDeptStock(productID, 50)

	request := mustCreate(t, svc, nurse, CreateRequestInput{ProductName: "Syringe 5ml", Quantity: 10})
	result := mustTransition(t, svc.ApproveSister, sister, request.ID)

	if result.Request.Status != StatusFulfilled {
		t.Fatalf("status = %s, want %s", result.Request.Status, StatusFulfilled)
	}
	if result.Request.ApprovedBy == nil || *result.Request.ApprovedBy != sister.ID {
		t.Errorf("approvedBy = %v, want %d", result.Request.ApprovedBy, sister.ID)
	}
	if result.Request.FulfilledBy == nil || *result.Request.FulfilledBy != sister.ID {
		t.Errorf("fulfilledBy = %v, want %d", result.Request.FulfilledBy, sister.ID)
	}
	if got := store.deptQuantity(productID); got != 40 {
		t.Errorf("department quantity = %d, want 40", got)
	}
	if got := store.almirahQuantity(nurse.ID, productID); got != 10 {
		t.Errorf("almirah quantity = %d, want 10", got)
	}
	if got := store.productQuantity(productID); got != 100 {
		t.Errorf("central quantity = %d, want untouched 100", got)
	}

	ledger := store.ledgerFor(request.ID)
	if len(ledger) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(ledger))
	}
	if ledger[0].From.Role != models.EndpointDepartment || ledger[0].To.Role != models.EndpointAlmirah {
		t.Errorf("ledger hop = %s->%s, want department->almirah", ledger[0].From.Role, ledger[0].To.Role)
	}
}

func TestMarkReceivedIsIdempotent(t *testing.T) {
	store, svc := newWorkflowFixture()
	productID := store.addProduct("Gloves", 30)

	request := mustCreate(t, svc, nurse, CreateRequestInput{ProductName: "Gloves", Quantity: 5})
	mustTransition(t, svc.ApproveSister, sister, request.ID)
	mustTransition(t, svc.ApproveHOD, hod, request.ID)
	if _, err := svc.ApproveInventory(context.Background(), staff, request.ID, ApproveInventoryInput{}); err != nil {
		t.Fatalf("ApproveInventory: %v", err)
	}
	mustTransition(t, svc.MarkReceived, sister, request.ID)

	before := len(store.ledgerFor(request.ID))
	qtyBefore := store.almirahQuantity(nurse.ID, productID)

	result := mustTransition(t, svc.MarkReceived, sister, request.ID)
	if result.Request.Status != StatusFulfilled {
		t.Fatalf("status = %s, want %s", result.Request.Status, StatusFulfilled)
	}
	if got := len(store.ledgerFor(request.ID)); got != before {
		t.Errorf("repeat receipt appended ledger entries: %d -> %d", before, got)
	}
	if got := store.almirahQuantity(nurse.ID, productID); got != qtyBefore {
		t.Errorf("repeat receipt changed almirah quantity: %d -> %d", qtyBefore, got)
	}
}

func TestStoreRequestMixedFulfillment(t *testing.T) {
	store, svc := newWorkflowFixture()
	aID := store.addProduct("Cotton Roll", 100)
	bID := store.addProduct("IV Set", 3)

	// HOD-raised store requests land directly in front of inventory staff.
	created, err := svc.CreateStoreRequest(context.Background(), hod, CreateStoreRequestInput{
		Items: []StoreRequestLineInput{
			{ProductName: "Cotton Roll", Quantity: 10},
			{ProductName: "IV Set", Quantity: 5},
			{ProductName: "Nebulizer Kit", Quantity: 7},
		},
	})
	if err != nil {
		t.Fatalf("CreateStoreRequest: %v", err)
	}
	request := created.Request
	if request.Status != StatusPendingInventory {
		t.Fatalf("status = %s, want %s", request.Status, StatusPendingInventory)
	}
	if len(request.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(request.Items))
	}
	if request.Items[0].Source != models.ItemSourceStock {
		t.Errorf("line A source = %s, want stock", request.Items[0].Source)
	}
	if request.Items[1].Source != models.ItemSourceVendor || request.Items[2].Source != models.ItemSourceVendor {
		t.Errorf("short/new lines must be vendor-sourced: %s, %s", request.Items[1].Source, request.Items[2].Source)
	}

	// First pass: A dispatches, B and C stay pending with the vendor.
	result, err := svc.ApproveInventory(context.Background(), staff, request.ID, ApproveInventoryInput{})
	if err != nil {
		t.Fatalf("ApproveInventory: %v", err)
	}
	if result.Request.Status != StatusAwaitingVendor {
		t.Fatalf("status = %s, want %s", result.Request.Status, StatusAwaitingVendor)
	}
	if got := store.productQuantity(aID); got != 90 {
		t.Errorf("central A = %d, want 90", got)
	}
	var dispatched, pending int
	for _, item := range result.Request.Items {
		if item.Dispatched {
			dispatched++
		} else {
			pending++
		}
	}
	if dispatched != 1 || pending != 2 {
		t.Fatalf("dispatched/pending = %d/%d, want 1/2", dispatched, pending)
	}
	if result.Request.VendorETAExpiresAt == nil {
		t.Fatal("vendor ETA expiry not set")
	}
	if want := testNow.Add(DefaultVendorETAHours * time.Hour); !result.Request.VendorETAExpiresAt.Equal(want) {
		t.Errorf("ETA expiry = %v, want %v", result.Request.VendorETAExpiresAt, want)
	}
	if len(store.reminders) != 1 {
		t.Fatalf("reminders = %d, want 1", len(store.reminders))
	}
	if want := testNow.Add(DefaultVendorETAHours*time.Hour - time.Hour); !store.reminders[0].FireAt.Equal(want) {
		t.Errorf("reminder fireAt = %v, want %v", store.reminders[0].FireAt, want)
	}

	// Vendor delivers the two pending lines into central stock.
	result = mustTransition(t, svc.VendorDeliver, staff, request.ID)
	if result.Request.Status != StatusPendingInventory {
		t.Fatalf("status after delivery = %s, want %s", result.Request.Status, StatusPendingInventory)
	}
	if got := store.productQuantity(bID); got != 8 {
		t.Errorf("central B after delivery = %d, want 8", got)
	}
	if result.Request.VendorETAExpiresAt != nil {
		t.Error("ETA expiry must be cleared on delivery")
	}

	// Second pass dispatches the rest.
	result, err = svc.ApproveInventory(context.Background(), staff, request.ID, ApproveInventoryInput{})
	if err != nil {
		t.Fatalf("second ApproveInventory: %v", err)
	}
	if result.Request.Status != StatusApprovedAndSent {
		t.Fatalf("status = %s, want %s", result.Request.Status, StatusApprovedAndSent)
	}
	for _, item := range result.Request.Items {
		if !item.Dispatched {
			t.Errorf("line %s still pending after second pass", item.ProductName)
		}
	}

	// The HOD raised the request, so receipt credits department stock.
	result = mustTransition(t, svc.MarkReceived, sister, request.ID)
	if result.Request.Status != StatusFulfilled {
		t.Fatalf("status = %s, want %s", result.Request.Status, StatusFulfilled)
	}
	if got := store.deptQuantity(aID); got != 10 {
		t.Errorf("department A = %d, want 10", got)
	}
}

func TestApproveInventoryShortfallSetsVendorETA(t *testing.T) {
	store, svc := newWorkflowFixture()
	productID := store.addProduct("Catheter", 20)

	request := mustCreate(t, svc, nurse, CreateRequestInput{ProductName: "Catheter", Quantity: 10})
	mustTransition(t, svc.ApproveSister, sister, request.ID)
	mustTransition(t, svc.ApproveHOD, hod, request.ID)

	// Another dispatch drains central stock between approvals.
	store.mu.Lock()
	store.products[productID].TotalQuantity = 5
	store.mu.Unlock()

	result, err := svc.ApproveInventory(context.Background(), staff, request.ID, ApproveInventoryInput{VendorETAHours: 24})
	if err != nil {
		t.Fatalf("ApproveInventory: %v", err)
	}
	if result.Request.Status != StatusAwaitingVendor {
		t.Fatalf("status = %s, want %s", result.Request.Status, StatusAwaitingVendor)
	}
	if result.Request.VendorETAHours == nil || *result.Request.VendorETAHours != 24 {
		t.Errorf("ETA hours = %v, want 24", result.Request.VendorETAHours)
	}
	if got := store.productQuantity(productID); got != 5 {
		t.Errorf("shortfall must not touch stock: central = %d, want 5", got)
	}
	if len(store.reminders) != 1 {
		t.Fatalf("reminders = %d, want 1", len(store.reminders))
	}
	if want := testNow.Add(23 * time.Hour); !store.reminders[0].FireAt.Equal(want) {
		t.Errorf("reminder fireAt = %v, want %v", store.reminders[0].FireAt, want)
	}
}

func TestApproveInventoryLosesRace(t *testing.T) {
	store, svc := newWorkflowFixture()
	store.addProduct("Bandage", 5)

	request := mustCreate(t, svc, nurse, CreateRequestInput{ProductName: "Bandage", Quantity: 5})
	mustTransition(t, svc.ApproveSister, sister, request.ID)
	mustTransition(t, svc.ApproveHOD, hod, request.ID)

	if _, err := svc.ApproveInventory(context.Background(), staff, request.ID, ApproveInventoryInput{}); err != nil {
		t.Fatalf("first ApproveInventory: %v", err)
	}
	_, err := svc.ApproveInventory(context.Background(), staff, request.ID, ApproveInventoryInput{})
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("second ApproveInventory error = %v, want ErrStateConflict", err)
	}
}

// conflictingRequestRepo simulates losing the status compare-and-swap to a
// concurrent transaction that committed between our read and our write.
type conflictingRequestRepo struct {
	*memRequestRepo
	failures int
}

func (r *conflictingRequestRepo) Transition(ctx context.Context, executor repositories.SQLExecutor, id int64, expectedStatus, newStatus string, approvedBy, fulfilledBy *int64) error {
	if r.failures > 0 {
		r.failures--
		return repositories.ErrNoRowsAffected
	}
	return r.memRequestRepo.Transition(ctx, executor, id, expectedStatus, newStatus, approvedBy, fulfilledBy)
}

func TestLostCompareAndSwapSurfacesAsStateConflict(t *testing.T) {
	store, svc := newWorkflowFixture()
	store.addProduct("Tape", 50)

	request := mustCreate(t, svc, nurse, CreateRequestInput{ProductName: "Tape", Quantity: 5})
	mustTransition(t, svc.ApproveSister, sister, request.ID)
	mustTransition(t, svc.ApproveHOD, hod, request.ID)

	svc.requestRepo = &conflictingRequestRepo{memRequestRepo: &memRequestRepo{s: store}, failures: 1}
	_, err := svc.ApproveInventory(context.Background(), staff, request.ID, ApproveInventoryInput{})
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("error = %v, want ErrStateConflict", err)
	}
}

// staleReadProductRepo serves reads from a snapshot while writes hit the
// live store, reproducing two transactions that both read quantity=5 before
// either guarded decrement commits.
type staleReadProductRepo struct {
	*memProductRepo
	staleQuantity int
}

func (r *staleReadProductRepo) GetByID(ctx context.Context, executor repositories.SQLExecutor, id int64) (*models.Product, error) {
	product, err := r.memProductRepo.GetByID(ctx, executor, id)
	if err != nil {
		return nil, err
	}
	product.TotalQuantity = r.staleQuantity
	return product, nil
}

func TestConcurrentDispatchOnSameStockRow(t *testing.T) {
	store, svc := newWorkflowFixture()
	productID := store.addProduct("Suture Kit", 5)

	open := func() int64 {
		request := mustCreate(t, svc, nurse, CreateRequestInput{ProductName: "Suture Kit", Quantity: 5})
		mustTransition(t, svc.ApproveSister, sister, request.ID)
		mustTransition(t, svc.ApproveHOD, hod, request.ID)
		return request.ID
	}
	first := open()
	second := open()

	// Both dispatches see the pre-race quantity of 5; only the first guarded
	// decrement can land.
	svc.productRepo = &staleReadProductRepo{memProductRepo: &memProductRepo{s: store}, staleQuantity: 5}

	if _, err := svc.ApproveInventory(context.Background(), staff, first, ApproveInventoryInput{}); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	_, err := svc.ApproveInventory(context.Background(), staff, second, ApproveInventoryInput{})
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("second dispatch error = %v, want ErrStateConflict", err)
	}
	if got := store.productQuantity(productID); got != 0 {
		t.Errorf("central quantity = %d, want 0 (exactly one dispatch)", got)
	}
}

func TestRejectionIsTerminal(t *testing.T) {
	store, svc := newWorkflowFixture()
	productID := store.addProduct("Mask", 40)

	request := mustCreate(t, svc, nurse, CreateRequestInput{ProductName: "Mask", Quantity: 10})
	result := mustTransition(t, svc.Reject, sister, request.ID)
	if result.Request.Status != StatusRejectedBySister {
		t.Fatalf("status = %s, want %s", result.Request.Status, StatusRejectedBySister)
	}

	ledger := store.ledgerFor(request.ID)
	if len(ledger) != 1 || ledger[0].Status != "rejected" {
		t.Fatalf("expected a single 'rejected' ledger entry, got %+v", ledger)
	}
	if got := store.productQuantity(productID); got != 40 {
		t.Errorf("rejection must not touch stock: central = %d, want 40", got)
	}

	if _, err := svc.ApproveSister(context.Background(), sister, request.ID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("approval after rejection = %v, want ErrStateConflict", err)
	}
	if _, err := svc.Reject(context.Background(), sister, request.ID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("second rejection = %v, want ErrStateConflict", err)
	}
}

func TestRoleGating(t *testing.T) {
	store, svc := newWorkflowFixture()
	store.addProduct("Gauze", 100)
	request := mustCreate(t, svc, nurse, CreateRequestInput{ProductName: "Gauze", Quantity: 10})

	cases := []struct {
		name string
		call func() error
	}{
		{"nurse cannot approve as sister", func() error {
			_, err := svc.ApproveSister(context.Background(), nurse, request.ID)
			return err
		}},
		{"sister cannot approve as hod", func() error {
			_, err := svc.ApproveHOD(context.Background(), sister, request.ID)
			return err
		}},
		{"hod cannot dispatch", func() error {
			_, err := svc.ApproveInventory(context.Background(), hod, request.ID, ApproveInventoryInput{})
			return err
		}},
		{"nurse cannot mark received", func() error {
			_, err := svc.MarkReceived(context.Background(), nurse, request.ID)
			return err
		}},
		{"nurse cannot reject", func() error {
			_, err := svc.Reject(context.Background(), nurse, request.ID)
			return err
		}},
		{"inventory staff cannot open single requests", func() error {
			_, err := svc.CreateRequest(context.Background(), staff, CreateRequestInput{ProductName: "Gauze", Quantity: 1})
			return err
		}},
	}
	for _, tc := range cases {
		if err := tc.call(); !errors.Is(err, ErrForbidden) {
			t.Errorf("%s: error = %v, want ErrForbidden", tc.name, err)
		}
	}
}

func TestCreateRequestUnknownProductGoesToVendor(t *testing.T) {
	store, svc := newWorkflowFixture()

	request := mustCreate(t, svc, nurse, CreateRequestInput{ProductName: "Nebulizer Mask", Quantity: 4})
	if request.RequestType != models.RequestTypeStore {
		t.Fatalf("type = %s, want %s", request.RequestType, models.RequestTypeStore)
	}
	if request.Status != StatusAwaitingVendor {
		t.Fatalf("status = %s, want %s", request.Status, StatusAwaitingVendor)
	}
	if len(request.Items) != 1 || request.Items[0].Source != models.ItemSourceVendor {
		t.Fatalf("expected a single vendor-sourced line, got %+v", request.Items)
	}

	product, err := (&memProductRepo{s: store}).GetByName(context.Background(), nil, "Nebulizer Mask")
	if err != nil {
		t.Fatalf("catalog entry not created: %v", err)
	}
	if product.TotalQuantity != 0 {
		t.Errorf("new catalog entry quantity = %d, want 0", product.TotalQuantity)
	}
	// No ETA yet, so no reminder either.
	if len(store.reminders) != 0 {
		t.Errorf("reminders = %d, want 0", len(store.reminders))
	}
}

func TestCreateRequestValidation(t *testing.T) {
	_, svc := newWorkflowFixture()

	if _, err := svc.CreateRequest(context.Background(), nurse, CreateRequestInput{ProductName: "Gauze", Quantity: 0}); !errors.Is(err, ErrValidation) {
		t.Errorf("zero quantity: error = %v, want ErrValidation", err)
	}
	if _, err := svc.CreateRequest(context.Background(), nurse, CreateRequestInput{ProductName: "  ", Quantity: 3}); !errors.Is(err, ErrValidation) {
		t.Errorf("blank name: error = %v, want ErrValidation", err)
	}
	if _, err := svc.CreateStoreRequest(context.Background(), nurse, CreateStoreRequestInput{}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty store request: error = %v, want ErrValidation", err)
	}
}

func TestListRequestsRoleFilters(t *testing.T) {
	store, svc := newWorkflowFixture()
	store.addProduct("Gauze", 100)
	store.addProduct("Gloves", 100)

	mine := mustCreate(t, svc, nurse, CreateRequestInput{ProductName: "Gauze", Quantity: 5})
	theirs := mustCreate(t, svc, sister, CreateRequestInput{ProductName: "Gloves", Quantity: 5})
	if theirs.Status != StatusPendingHOD {
		t.Fatalf("sister-raised request status = %s, want %s", theirs.Status, StatusPendingHOD)
	}

	nurseView, total, err := svc.ListRequests(context.Background(), nurse, 1, 20)
	if err != nil {
		t.Fatalf("ListRequests(nurse): %v", err)
	}
	if total != 1 || len(nurseView) != 1 || nurseView[0].ID != mine.ID {
		t.Errorf("nurse view = %d requests (total %d), want only their own", len(nurseView), total)
	}

	hodView, _, err := svc.ListRequests(context.Background(), hod, 1, 20)
	if err != nil {
		t.Fatalf("ListRequests(hod): %v", err)
	}
	if len(hodView) != 1 || hodView[0].ID != theirs.ID {
		t.Errorf("hod view must contain exactly the pending_hod request, got %d", len(hodView))
	}

	staffView, _, err := svc.ListRequests(context.Background(), staff, 1, 20)
	if err != nil {
		t.Fatalf("ListRequests(staff): %v", err)
	}
	if len(staffView) != 0 {
		t.Errorf("inventory staff must not see requests before hod approval, got %d", len(staffView))
	}
}

package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tamannathakur/Invora/internal/models"
	"github.com/tamannathakur/Invora/internal/repositories"
)

// memStore backs the in-memory repository fakes. It mirrors the SQL layer's
// guard semantics (compare-and-swap on status, quantity floors) so service
// tests exercise the same failure paths as the real store.
type memStore struct {
	mu           sync.Mutex
	lastID       int64
	products     map[int64]*models.Product
	dept         map[int64]*models.DepartmentStockItem
	almirah      map[string]*models.AlmirahStockItem
	requests     map[int64]*models.Request
	items        map[int64][]*models.RequestItem
	transactions []models.Transaction
	reminders    []*models.VendorReminder
	roles        map[int64]models.Role
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[int64]*models.Product),
		dept:     make(map[int64]*models.DepartmentStockItem),
		almirah:  make(map[string]*models.AlmirahStockItem),
		requests: make(map[int64]*models.Request),
		items:    make(map[int64][]*models.RequestItem),
		roles:    make(map[int64]models.Role),
	}
}

func (m *memStore) nextID() int64 {
	m.lastID++
	return m.lastID
}

func almirahKey(nurseID, productID int64) string {
	return fmt.Sprintf("%d/%d", nurseID, productID)
}

func (m *memStore) addUser(id int64, role models.Role) {
	m.roles[id] = role
}

func (m *memStore) addProduct(name string, quantity int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID()
	m.products[id] = &models.Product{ID: id, Name: name, TotalQuantity: quantity, Category: "General"}
	return id
}

func (m *memStore) addDeptStock(productID int64, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dept[productID] = &models.DepartmentStockItem{ID: m.nextID(), ProductID: productID, Quantity: quantity, Category: "General"}
}

func (m *memStore) productQuantity(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].TotalQuantity
}

func (m *memStore) almirahQuantity(nurseID, productID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.almirah[almirahKey(nurseID, productID)]; ok {
		return item.Quantity
	}
	return 0
}

func (m *memStore) deptQuantity(productID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.dept[productID]; ok {
		return item.Quantity
	}
	return 0
}

func (m *memStore) ledgerFor(requestID int64) []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, txn := range m.transactions {
		if txn.RequestID == requestID {
			out = append(out, txn)
		}
	}
	return out
}

// --- product repository fake ---

type memProductRepo struct{ s *memStore }

func (r *memProductRepo) Create(_ context.Context, _ repositories.SQLExecutor, product *models.Product) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return 0, repositories.ErrDuplicateKey
		}
	}
	product.ID = r.s.nextID()
	clone := *product
	r.s.products[product.ID] = &clone
	return product.ID, nil
}

func (r *memProductRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int64) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	clone := *product
	return &clone, nil
}

func (r *memProductRepo) GetByName(_ context.Context, _ repositories.SQLExecutor, name string) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, product := range r.s.products {
		if strings.EqualFold(product.Name, name) {
			clone := *product
			return &clone, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memProductRepo) List(_ context.Context) ([]models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Product, 0, len(r.s.products))
	for _, product := range r.s.products {
		out = append(out, *product)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memProductRepo) DecrementQuantity(_ context.Context, _ repositories.SQLExecutor, id int64, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[id]
	if !ok || product.TotalQuantity < qty {
		return repositories.ErrNoRowsAffected
	}
	product.TotalQuantity -= qty
	return nil
}

func (r *memProductRepo) IncrementQuantity(_ context.Context, _ repositories.SQLExecutor, id int64, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[id]
	if !ok {
		return repositories.ErrNotFound
	}
	product.TotalQuantity += qty
	return nil
}

// --- department stock repository fake ---

type memDeptStockRepo struct{ s *memStore }

func (r *memDeptStockRepo) GetByProduct(_ context.Context, _ repositories.SQLExecutor, productID int64) (*models.DepartmentStockItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.dept[productID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	clone := *item
	return &clone, nil
}

func (r *memDeptStockRepo) AddQuantity(_ context.Context, _ repositories.SQLExecutor, productID int64, qty int, category string, expiry *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if item, ok := r.s.dept[productID]; ok {
		item.Quantity += qty
		if expiry != nil && (item.Expiry == nil || expiry.After(*item.Expiry)) {
			item.Expiry = expiry
		}
		return nil
	}
	r.s.dept[productID] = &models.DepartmentStockItem{
		ID: r.s.nextID(), ProductID: productID, Quantity: qty, Category: category, Expiry: expiry,
	}
	return nil
}

func (r *memDeptStockRepo) Decrement(_ context.Context, _ repositories.SQLExecutor, productID int64, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.dept[productID]
	if !ok || item.Quantity < qty {
		return repositories.ErrNoRowsAffected
	}
	item.Quantity -= qty
	return nil
}

func (r *memDeptStockRepo) List(_ context.Context) ([]models.DepartmentStockItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.DepartmentStockItem, 0, len(r.s.dept))
	for _, item := range r.s.dept {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// --- almirah repository fake ---

type memAlmirahRepo struct{ s *memStore }

func (r *memAlmirahRepo) AddQuantity(_ context.Context, _ repositories.SQLExecutor, nurseID, productID int64, qty int, expiry *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := almirahKey(nurseID, productID)
	if item, ok := r.s.almirah[key]; ok {
		item.Quantity += qty
		if expiry != nil && (item.Expiry == nil || expiry.After(*item.Expiry)) {
			item.Expiry = expiry
		}
		return nil
	}
	r.s.almirah[key] = &models.AlmirahStockItem{
		ID: r.s.nextID(), NurseID: nurseID, ProductID: productID, Quantity: qty, Expiry: expiry,
	}
	return nil
}

func (r *memAlmirahRepo) Consume(_ context.Context, _ repositories.SQLExecutor, nurseID, productID int64, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := almirahKey(nurseID, productID)
	item, ok := r.s.almirah[key]
	if !ok {
		return repositories.ErrNotFound
	}
	if item.Quantity < qty {
		return repositories.ErrNoRowsAffected
	}
	item.Quantity -= qty
	if item.Quantity == 0 {
		delete(r.s.almirah, key)
	}
	return nil
}

func (r *memAlmirahRepo) ListByNurse(_ context.Context, nurseID int64) ([]models.AlmirahStockItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.AlmirahStockItem
	for _, item := range r.s.almirah {
		if item.NurseID == nurseID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// --- request repository fake ---

type memRequestRepo struct{ s *memStore }

func (r *memRequestRepo) Create(_ context.Context, _ repositories.SQLExecutor, request *models.Request) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	request.ID = r.s.nextID()
	request.CreatedAt = time.Now()
	request.UpdatedAt = request.CreatedAt
	clone := *request
	clone.Items = nil
	clone.Product = nil
	r.s.requests[request.ID] = &clone
	return request.ID, nil
}

func (r *memRequestRepo) CreateItems(_ context.Context, _ repositories.SQLExecutor, requestID int64, items []models.RequestItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range items {
		items[i].ID = r.s.nextID()
		items[i].RequestID = requestID
		clone := items[i]
		r.s.items[requestID] = append(r.s.items[requestID], &clone)
	}
	return nil
}

func (r *memRequestRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int64) (*models.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	request, ok := r.s.requests[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	clone := *request
	clone.RequesterRole = r.s.roles[request.RequestedBy]
	if clone.RequestType == models.RequestTypeStore {
		for _, item := range r.s.items[id] {
			clone.Items = append(clone.Items, *item)
		}
	}
	return &clone, nil
}

func (r *memRequestRepo) Transition(_ context.Context, _ repositories.SQLExecutor, id int64, expectedStatus, newStatus string, approvedBy, fulfilledBy *int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	request, ok := r.s.requests[id]
	if !ok || request.Status != expectedStatus {
		return repositories.ErrNoRowsAffected
	}
	request.Status = newStatus
	if approvedBy != nil {
		request.ApprovedBy = approvedBy
	}
	if fulfilledBy != nil {
		request.FulfilledBy = fulfilledBy
	}
	request.UpdatedAt = time.Now()
	return nil
}

func (r *memRequestRepo) SetVendorETA(_ context.Context, _ repositories.SQLExecutor, id int64, expectedStatus string, etaHours int, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	request, ok := r.s.requests[id]
	if !ok || request.Status != expectedStatus {
		return repositories.ErrNoRowsAffected
	}
	request.Status = StatusAwaitingVendor
	request.VendorETAHours = &etaHours
	request.VendorETAExpiresAt = &expiresAt
	request.VendorReminderSent = false
	return nil
}

func (r *memRequestRepo) ClearVendorETA(_ context.Context, _ repositories.SQLExecutor, id int64, newStatus string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	request, ok := r.s.requests[id]
	if !ok || request.Status != StatusAwaitingVendor {
		return repositories.ErrNoRowsAffected
	}
	request.Status = newStatus
	request.VendorETAHours = nil
	request.VendorETAExpiresAt = nil
	request.VendorReminderSent = true
	return nil
}

func (r *memRequestRepo) MarkItemDispatched(_ context.Context, _ repositories.SQLExecutor, itemID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, items := range r.s.items {
		for _, item := range items {
			if item.ID == itemID {
				if item.Dispatched {
					return repositories.ErrNoRowsAffected
				}
				item.Dispatched = true
				return nil
			}
		}
	}
	return repositories.ErrNoRowsAffected
}

func (r *memRequestRepo) SetItemSource(_ context.Context, _ repositories.SQLExecutor, itemID int64, source string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, items := range r.s.items {
		for _, item := range items {
			if item.ID == itemID {
				item.Source = source
				return nil
			}
		}
	}
	return repositories.ErrNotFound
}

func (r *memRequestRepo) MarkReminderSent(_ context.Context, _ repositories.SQLExecutor, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if request, ok := r.s.requests[id]; ok {
		request.VendorReminderSent = true
	}
	return nil
}

func (r *memRequestRepo) List(ctx context.Context, filters models.RequestFilters) ([]models.Request, int, error) {
	r.s.mu.Lock()
	ids := make([]int64, 0, len(r.s.requests))
	for id := range r.s.requests {
		ids = append(ids, id)
	}
	r.s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []models.Request
	for _, id := range ids {
		request, err := r.GetByID(ctx, nil, id)
		if err != nil {
			return nil, 0, err
		}
		if filters.RequestedBy != nil && request.RequestedBy != *filters.RequestedBy {
			continue
		}
		if len(filters.Statuses) > 0 {
			match := false
			for _, status := range filters.Statuses {
				if request.Status == status {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *request)
	}
	total := len(out)
	start := (filters.Page - 1) * filters.PageSize
	if start > total {
		start = total
	}
	end := start + filters.PageSize
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

// --- transaction repository fake ---

type memTransactionRepo struct{ s *memStore }

func (r *memTransactionRepo) Create(_ context.Context, _ repositories.SQLExecutor, txn *models.Transaction) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	txn.ID = r.s.nextID()
	txn.CreatedAt = time.Now()
	r.s.transactions = append(r.s.transactions, *txn)
	return txn.ID, nil
}

func (r *memTransactionRepo) List(_ context.Context, filters models.TransactionFilters) ([]models.Transaction, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Transaction
	for _, txn := range r.s.transactions {
		if filters.RequestID != nil && txn.RequestID != *filters.RequestID {
			continue
		}
		if filters.From != nil && txn.CreatedAt.Before(*filters.From) {
			continue
		}
		if filters.To != nil && txn.CreatedAt.After(*filters.To) {
			continue
		}
		out = append(out, txn)
	}
	return out, len(out), nil
}

// --- reminder repository fake ---

type memReminderRepo struct{ s *memStore }

func (r *memReminderRepo) Enqueue(_ context.Context, _ repositories.SQLExecutor, requestID int64, fireAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reminders = append(r.s.reminders, &models.VendorReminder{
		ID: r.s.nextID(), RequestID: requestID, FireAt: fireAt,
	})
	return nil
}

func (r *memReminderRepo) Due(_ context.Context, now time.Time, limit int) ([]models.VendorReminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.VendorReminder
	for _, reminder := range r.s.reminders {
		if !reminder.Sent && !reminder.FireAt.After(now) {
			out = append(out, *reminder)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memReminderRepo) MarkSent(_ context.Context, _ repositories.SQLExecutor, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, reminder := range r.s.reminders {
		if reminder.ID == id {
			reminder.Sent = true
			return nil
		}
	}
	return repositories.ErrNotFound
}

// --- transaction manager fake ---

// noopTxManager runs the closure directly; the fakes apply changes in place,
// which is enough for the success and guard-failure paths under test.
type noopTxManager struct{}

func (noopTxManager) WithinTx(_ context.Context, fn func(executor repositories.SQLExecutor) error) error {
	return fn(nil)
}

func newTestRequestService(store *memStore, now time.Time) *requestService {
	return &requestService{
		requestRepo:   &memRequestRepo{s: store},
		productRepo:   &memProductRepo{s: store},
		deptStockRepo: &memDeptStockRepo{s: store},
		almirahRepo:   &memAlmirahRepo{s: store},
		txnRepo:       &memTransactionRepo{s: store},
		reminderRepo:  &memReminderRepo{s: store},
		txm:           noopTxManager{},
		now:           func() time.Time { return now },
	}
}

package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/app/repository"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
)

// memStore is an in-memory ReservationRepository. Transactions work on a
// snapshot and only publish their writes on commit. With rowLock set every
// transaction holds the store lock for its whole duration, which is what
// SELECT ... FOR UPDATE on the budget row gives us in MySQL. Without it
// transactions overlap and only the unique reservation key protects the
// marker.
type memStore struct {
	mu      sync.Mutex
	txLock  sync.Mutex
	rowLock bool

	budgets   map[uint]models.Budget
	stock     map[uint]int
	initial   map[uint]int
	movements []models.InventoryMovement
	history   []models.ActionHistoryEntry

	// failProduct forces DecrementStock to fail for a product.
	failProduct map[uint]error
	// afterMarkerCheck runs inside each transaction right after the marker
	// lookup, used to line up concurrent transactions.
	afterMarkerCheck func()
}

func newMemStore(rowLock bool) *memStore {
	return &memStore{
		rowLock:     rowLock,
		budgets:     map[uint]models.Budget{},
		stock:       map[uint]int{},
		initial:     map[uint]int{},
		failProduct: map[uint]error{},
	}
}

func (s *memStore) addBudget(b models.Budget) {
	s.budgets[b.ID] = b
}

func (s *memStore) setStock(productID uint, qty int) {
	s.stock[productID] = qty
	s.initial[productID] = qty
}

func (s *memStore) quantity(productID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[productID]
}

func (s *memStore) markers(budgetID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.history {
		if h.BudgetID == budgetID && models.IsReservationMarker(h.Action) {
			n++
		}
	}
	return n
}

func (s *memStore) movementSum(productID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for _, m := range s.movements {
		if m.ProductID == productID {
			sum += m.Delta
		}
	}
	return sum
}

func (s *memStore) historyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *memStore) WithinTransaction(ctx context.Context, fn func(tx repository.ReservationTx) error) error {
	if s.rowLock {
		s.txLock.Lock()
		defer s.txLock.Unlock()
	}

	s.mu.Lock()
	tx := &memTx{
		store:   s,
		stock:   make(map[uint]int, len(s.stock)),
		history: append([]models.ActionHistoryEntry(nil), s.history...),
	}
	for k, v := range s.stock {
		tx.stock[k] = v
	}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *memStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range tx.newHistory {
		if h.ReservationKey == nil {
			continue
		}
		for _, existing := range s.history {
			if existing.ReservationKey != nil && *existing.ReservationKey == *h.ReservationKey {
				return apperr.Conflict("memStore.commit", "duplicate reservation key %s", *h.ReservationKey)
			}
		}
	}
	for pid, delta := range tx.deltas {
		if s.stock[pid]+delta < 0 {
			return apperr.Validation("memStore.commit", "stock of product %d would go negative", pid)
		}
	}
	for pid, delta := range tx.deltas {
		s.stock[pid] += delta
	}
	s.movements = append(s.movements, tx.newMovements...)
	s.history = append(s.history, tx.newHistory...)
	return nil
}

type memTx struct {
	store   *memStore
	stock   map[uint]int
	history []models.ActionHistoryEntry

	deltas       map[uint]int
	newMovements []models.InventoryMovement
	newHistory   []models.ActionHistoryEntry
}

func (t *memTx) LockBudget(ctx context.Context, budgetID uint) (*models.Budget, error) {
	t.store.mu.Lock()
	b, ok := t.store.budgets[budgetID]
	t.store.mu.Unlock()
	if !ok {
		return nil, apperr.NotFound("memTx.LockBudget", "budget %d not found", budgetID)
	}
	cp := b
	cp.Services = make([]models.Service, len(b.Services))
	for i, svc := range b.Services {
		cp.Services[i] = svc
		cp.Services[i].Items = append([]models.ServiceItem(nil), svc.Items...)
	}
	return &cp, nil
}

func (t *memTx) HasReservationMarker(ctx context.Context, budgetID uint) (bool, error) {
	found := false
	for _, h := range append(t.history, t.newHistory...) {
		if h.BudgetID == budgetID && models.IsReservationMarker(h.Action) {
			found = true
			break
		}
	}
	if t.store.afterMarkerCheck != nil {
		t.store.afterMarkerCheck()
	}
	return found, nil
}

func (t *memTx) DecrementStock(ctx context.Context, tenantID, productID uint, quantity int) error {
	if err := t.store.failProduct[productID]; err != nil {
		return err
	}
	current, ok := t.stock[productID]
	if !ok {
		return apperr.NotFound("memTx.DecrementStock", "no inventory for product %d", productID)
	}
	available := current + t.deltas[productID]
	if available < quantity {
		return &apperr.Error{
			Kind:    apperr.KindValidation,
			Op:      "memTx.DecrementStock",
			Message: fmt.Sprintf("product %d: requested %d, available %d", productID, quantity, available),
			Err:     repository.ErrInsufficientStock,
		}
	}
	if t.deltas == nil {
		t.deltas = map[uint]int{}
	}
	t.deltas[productID] -= quantity
	return nil
}

func (t *memTx) AppendMovement(ctx context.Context, movement *models.InventoryMovement) error {
	t.newMovements = append(t.newMovements, *movement)
	return nil
}

func (t *memTx) AppendActionHistory(ctx context.Context, entry *models.ActionHistoryEntry) error {
	if entry.ReservationKey != nil {
		for _, h := range append(t.history, t.newHistory...) {
			if h.ReservationKey != nil && *h.ReservationKey == *entry.ReservationKey {
				return apperr.Conflict("memTx.AppendActionHistory", "duplicate reservation key %s", *entry.ReservationKey)
			}
		}
	}
	t.newHistory = append(t.newHistory, *entry)
	return nil
}

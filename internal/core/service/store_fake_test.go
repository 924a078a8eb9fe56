package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/seckill/internal/core/domain"
	"github.com/rl1809/seckill/internal/port"
)

type purchaseKey struct {
	itemID  int64
	buyerID string
}

type memState struct {
	items     map[int64]domain.Item
	purchases map[purchaseKey]time.Time
}

func (s memState) clone() memState {
	c := memState{
		items:     make(map[int64]domain.Item, len(s.items)),
		purchases: make(map[purchaseKey]time.Time, len(s.purchases)),
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	return c
}

// memStore serializes transactions and restores a snapshot on rollback.
type memStore struct {
	mu    sync.Mutex
	state memState

	insertErr    error
	decrementErr error
	findErr      error
	// findHook runs before FindByID takes the lock.
	findHook func(ctx context.Context) error

	listCalls int
	findCalls int
}

func newMemStore(items ...domain.Item) *memStore {
	s := &memStore{state: memState{
		items:     make(map[int64]domain.Item),
		purchases: make(map[purchaseKey]time.Time),
	}}
	for _, item := range items {
		s.state.items[item.ID] = item
	}
	return s
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	err := fn(ctx, port.Repositories{Items: memItems{s}, Purchases: memPurchases{s}})
	if err != nil {
		s.state = snapshot
	}
	return err
}

func (s *memStore) Items() port.ItemRepository         { return lockedItems{s} }
func (s *memStore) Purchases() port.PurchaseRepository { return lockedPurchases{s} }

func (s *memStore) stock(itemID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.items[itemID].Stock
}

func (s *memStore) purchaseCount(itemID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.state.purchases {
		if k.itemID == itemID {
			n++
		}
	}
	return n
}

func (s *memStore) recordPurchase(itemID int64, buyerID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.purchases[purchaseKey{itemID, buyerID}] = at
}

// memItems and memPurchases expect the store lock to be held.
type memItems struct{ s *memStore }

func (r memItems) FindByID(_ context.Context, itemID int64) (*domain.Item, error) {
	r.s.findCalls++
	if r.s.findErr != nil {
		return nil, r.s.findErr
	}
	item, ok := r.s.state.items[itemID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (r memItems) DecrementStock(_ context.Context, itemID int64, now time.Time) (int64, error) {
	if r.s.decrementErr != nil {
		return 0, r.s.decrementErr
	}
	item, ok := r.s.state.items[itemID]
	if !ok || item.Stock <= 0 || !item.OpenAt(now) {
		return 0, nil
	}
	item.Stock--
	r.s.state.items[itemID] = item
	return 1, nil
}

func (r memItems) List(_ context.Context, offset, limit int) ([]domain.Item, error) {
	r.s.listCalls++
	ids := make([]int64, 0, len(r.s.state.items))
	for id := range r.s.state.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var items []domain.Item
	for i := offset; i < len(ids) && i < offset+limit; i++ {
		items = append(items, r.s.state.items[ids[i]])
	}
	return items, nil
}

type memPurchases struct{ s *memStore }

func (r memPurchases) InsertIfAbsent(_ context.Context, itemID int64, buyerID string, at time.Time) (int64, error) {
	if r.s.insertErr != nil {
		return 0, r.s.insertErr
	}
	key := purchaseKey{itemID, buyerID}
	if _, ok := r.s.state.purchases[key]; ok {
		return 0, nil
	}
	r.s.state.purchases[key] = at
	return 1, nil
}

func (r memPurchases) FindByKey(_ context.Context, itemID int64, buyerID string) (*domain.PurchaseRecord, error) {
	at, ok := r.s.state.purchases[purchaseKey{itemID, buyerID}]
	if !ok {
		return nil, nil
	}
	return &domain.PurchaseRecord{
		ItemID:    itemID,
		BuyerID:   buyerID,
		CreatedAt: at,
		Item:      r.s.state.items[itemID],
	}, nil
}

type lockedItems struct{ s *memStore }

func (r lockedItems) FindByID(ctx context.Context, itemID int64) (*domain.Item, error) {
	if r.s.findHook != nil {
		if err := r.s.findHook(ctx); err != nil {
			return nil, err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memItems(r).FindByID(ctx, itemID)
}

func (r lockedItems) DecrementStock(ctx context.Context, itemID int64, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memItems(r).DecrementStock(ctx, itemID, now)
}

func (r lockedItems) List(ctx context.Context, offset, limit int) ([]domain.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memItems(r).List(ctx, offset, limit)
}

type lockedPurchases struct{ s *memStore }

func (r lockedPurchases) InsertIfAbsent(ctx context.Context, itemID int64, buyerID string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memPurchases(r).InsertIfAbsent(ctx, itemID, buyerID, at)
}

func (r lockedPurchases) FindByKey(ctx context.Context, itemID int64, buyerID string) (*domain.PurchaseRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memPurchases(r).FindByKey(ctx, itemID, buyerID)
}

type fakeProcedure struct {
	code  int
	err   error
	store *memStore
}

func (p *fakeProcedure) ExecutePurchase(_ context.Context, itemID int64, buyerID string, at time.Time) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	if p.code == int(domain.StateSuccess) && p.store != nil {
		p.store.recordPurchase(itemID, buyerID, at)
	}
	return p.code, nil
}

var errBoom = errors.New("boom")

package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dimahwang88/force-sub-app/internal/domain/booking"
	"github.com/dimahwang88/force-sub-app/internal/domain/class"
	"github.com/dimahwang88/force-sub-app/internal/domain/transaction"
)

// memoryStore はシナリオテスト用のインメモリストア
// トランザクションは Begin から Commit/Rollback までストア全体のロックを
// 保持することで直列化し、Rollback は undo ログを逆順に適用する
type memoryStore struct {
	mu       sync.Mutex
	classes  map[string]*class.GymClass
	bookings map[string]*booking.Booking
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		classes:  make(map[string]*class.GymClass),
		bookings: make(map[string]*booking.Booking),
	}
}

type memoryTx struct {
	store    *memoryStore
	undo     []func()
	finished bool
}

func (t *memoryTx) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

type memoryTxManager struct {
	store *memoryStore
}

func (m *memoryTxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	m.store.mu.Lock()
	return &memoryTx{store: m.store}, nil
}

func asMemoryTx(tx transaction.Tx) *memoryTx {
	return tx.(*memoryTx)
}

func copyClass(c *class.GymClass) *class.GymClass {
	cp := *c
	return &cp
}

func copyBooking(b *booking.Booking) *booking.Booking {
	cp := *b
	return &cp
}

// === class.Repository ===

type memoryClassRepo struct {
	store *memoryStore
}

func (r *memoryClassRepo) Create(ctx context.Context, c *class.GymClass) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c.ID = uuid.New().String()
	c.Version = 1
	r.store.classes[c.ID] = copyClass(c)
	return nil
}

func (r *memoryClassRepo) GetByID(ctx context.Context, id string) (*class.GymClass, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.classes[id]
	if !ok {
		return nil, class.ErrClassNotFound
	}
	return copyClass(c), nil
}

func (r *memoryClassRepo) ListByDateRange(ctx context.Context, from, to time.Time) ([]*class.GymClass, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*class.GymClass
	for _, c := range r.store.classes {
		if !c.StartAt.Before(from) && c.StartAt.Before(to) {
			out = append(out, copyClass(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (r *memoryClassRepo) List(ctx context.Context, limit, offset int) ([]*class.GymClass, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*class.GymClass
	for _, c := range r.store.classes {
		out = append(out, copyClass(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryClassRepo) Update(ctx context.Context, c *class.GymClass) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	existing, ok := r.store.classes[c.ID]
	if !ok {
		return class.ErrClassNotFound
	}
	if existing.Version != c.Version {
		return class.ErrOptimisticLockConflict
	}
	updated := copyClass(c)
	updated.BookedCount = existing.BookedCount
	updated.TotalSpots = existing.TotalSpots
	updated.Version = existing.Version + 1
	updated.UpdatedAt = time.Now()
	r.store.classes[c.ID] = updated
	c.Version = updated.Version
	return nil
}

func (r *memoryClassRepo) IncrementBooked(ctx context.Context, tx transaction.Tx, id string) (*class.GymClass, error) {
	mtx := asMemoryTx(tx)
	c, ok := r.store.classes[id]
	if !ok {
		return nil, class.ErrClassNotFound
	}
	if c.BookedCount >= c.TotalSpots {
		return nil, class.ErrClassFull
	}
	c.BookedCount++
	mtx.undo = append(mtx.undo, func() { c.BookedCount-- })
	return copyClass(c), nil
}

func (r *memoryClassRepo) DecrementBooked(ctx context.Context, tx transaction.Tx, id string) error {
	mtx := asMemoryTx(tx)
	c, ok := r.store.classes[id]
	if !ok {
		return nil
	}
	if c.BookedCount > 0 {
		c.BookedCount--
		mtx.undo = append(mtx.undo, func() { c.BookedCount++ })
	}
	return nil
}

func (r *memoryClassRepo) RepairBookedCounts(ctx context.Context) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	counts := make(map[string]int)
	for _, b := range r.store.bookings {
		if b.Status == booking.StatusConfirmed {
			counts[b.ClassID]++
		}
	}
	var repaired int64
	for id, c := range r.store.classes {
		if c.BookedCount != counts[id] {
			c.BookedCount = counts[id]
			repaired++
		}
	}
	return repaired, nil
}

// === booking.Repository ===

type memoryBookingRepo struct {
	store *memoryStore
}

func (r *memoryBookingRepo) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	mtx := asMemoryTx(tx)
	for _, existing := range r.store.bookings {
		if existing.UserID == b.UserID && existing.ClassID == b.ClassID && existing.Status == booking.StatusConfirmed {
			return booking.ErrAlreadyBooked
		}
	}
	b.ID = uuid.New().String()
	r.store.bookings[b.ID] = copyBooking(b)
	id := b.ID
	mtx.undo = append(mtx.undo, func() { delete(r.store.bookings, id) })
	return nil
}

func (r *memoryBookingRepo) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return copyBooking(b), nil
}

func (r *memoryBookingRepo) GetConfirmedByUserAndClass(ctx context.Context, userID, classID string) (*booking.Booking, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, b := range r.store.bookings {
		if b.UserID == userID && b.ClassID == classID && b.Status == booking.StatusConfirmed {
			return copyBooking(b), nil
		}
	}
	return nil, booking.ErrBookingNotFound
}

func (r *memoryBookingRepo) ListConfirmedByUser(ctx context.Context, userID string) ([]*booking.Booking, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*booking.Booking
	for _, b := range r.store.bookings {
		if b.UserID == userID && b.Status == booking.StatusConfirmed {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassStartAt.Before(out[j].ClassStartAt) })
	return out, nil
}

func (r *memoryBookingRepo) MarkCancelled(ctx context.Context, tx transaction.Tx, id string) error {
	mtx := asMemoryTx(tx)
	b, ok := r.store.bookings[id]
	if !ok {
		return booking.ErrBookingNotFound
	}
	if b.Status == booking.StatusCancelled {
		return booking.ErrBookingAlreadyCancelled
	}
	b.Status = booking.StatusCancelled
	mtx.undo = append(mtx.undo, func() { b.Status = booking.StatusConfirmed })
	return nil
}

package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type memoryState struct {
	seq          int64
	books        map[int64]model.Book
	copies       map[int64]model.Copy
	loans        map[int64]model.Loan
	reservations map[int64]model.Reservation
	bills        map[int64]model.Bill
	payments     map[string]model.Payment
}

func newMemoryState() *memoryState {
	return &memoryState{
		books:        make(map[int64]model.Book),
		copies:       make(map[int64]model.Copy),
		loans:        make(map[int64]model.Loan),
		reservations: make(map[int64]model.Reservation),
		bills:        make(map[int64]model.Bill),
		payments:     make(map[string]model.Payment),
	}
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		seq:          st.seq,
		books:        make(map[int64]model.Book, len(st.books)),
		copies:       make(map[int64]model.Copy, len(st.copies)),
		loans:        make(map[int64]model.Loan, len(st.loans)),
		reservations: make(map[int64]model.Reservation, len(st.reservations)),
		bills:        make(map[int64]model.Bill, len(st.bills)),
		payments:     make(map[string]model.Payment, len(st.payments)),
	}
	for k, v := range st.books {
		c.books[k] = v
	}
	for k, v := range st.copies {
		c.copies[k] = v
	}
	for k, v := range st.loans {
		c.loans[k] = v
	}
	for k, v := range st.reservations {
		c.reservations[k] = v
	}
	for k, v := range st.bills {
		c.bills[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	return c
}

func (st *memoryState) nextID() int64 {
	st.seq++
	return st.seq
}

// MemoryRepository keeps everything in process. Transactions are serialized by a
// single writer lock and work on a snapshot that replaces the live state only on success.
type MemoryRepository struct {
	*memoryStore
	mu  sync.RWMutex
	log *zap.Logger
}

func NewMemoryRepository(log *zap.Logger) *MemoryRepository {
	r := &MemoryRepository{log: log.Named("memory-repo")}
	r.memoryStore = &memoryStore{st: newMemoryState(), mu: &r.mu}
	return r
}

func (r *MemoryRepository) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.st.clone()
	if err := fn(&memoryStore{st: snapshot}); err != nil {
		r.log.Debug("tx rolled back", zap.Error(err))
		return err
	}
	r.st = snapshot
	return nil
}

// memoryStore guards itself with mu when used outside a transaction; inside
// WithTx mu is nil because the writer lock is already held.
type memoryStore struct {
	st *memoryState
	mu *sync.RWMutex
}

func (s *memoryStore) read() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *memoryStore) write() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *memoryStore) CreateBook(_ context.Context, book model.Book) (model.Book, error) {
	defer s.write()()
	book.ID = s.st.nextID()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}
	s.st.books[book.ID] = book
	return book, nil
}

func (s *memoryStore) GetBook(_ context.Context, id int64) (model.Book, error) {
	defer s.read()()
	book, ok := s.st.books[id]
	if !ok {
		return model.Book{}, errs.ErrNotFound
	}
	return book, nil
}

func (s *memoryStore) CreateCopy(_ context.Context, bookID int64) (model.Copy, error) {
	defer s.write()()
	if _, ok := s.st.books[bookID]; !ok {
		return model.Copy{}, errors.Wrap(errs.ErrNotFound, "book")
	}
	c := model.Copy{ID: s.st.nextID(), BookID: bookID, State: model.CopyAvailable, Version: 1}
	s.st.copies[c.ID] = c
	return c, nil
}

func (s *memoryStore) GetCopy(_ context.Context, id int64) (model.Copy, error) {
	defer s.read()()
	c, ok := s.st.copies[id]
	if !ok {
		return model.Copy{}, errs.ErrNotFound
	}
	return c, nil
}

func (s *memoryStore) ListCopies(_ context.Context, bookID int64) ([]model.Copy, error) {
	defer s.read()()
	var items []model.Copy
	for _, c := range s.st.copies {
		if c.BookID == bookID {
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *memoryStore) SetCopyState(_ context.Context, id int64, from, to model.CopyState) error {
	defer s.write()()
	c, ok := s.st.copies[id]
	if !ok {
		return errs.ErrNotFound
	}
	if c.State != from {
		return errors.Wrapf(errs.ErrConflict, "copy %d is not %s", id, from)
	}
	c.State = to
	c.Version++
	s.st.copies[id] = c
	return nil
}

func (s *memoryStore) ReleaseCopy(_ context.Context, id int64) error {
	defer s.write()()
	c, ok := s.st.copies[id]
	if !ok {
		return errs.ErrNotFound
	}
	c.State = model.CopyAvailable
	c.Version++
	s.st.copies[id] = c
	return nil
}

func (s *memoryStore) CreateReservation(_ context.Context, r model.Reservation) (model.Reservation, error) {
	defer s.write()()
	if _, ok := s.st.books[r.BookID]; !ok {
		return model.Reservation{}, errors.Wrap(errs.ErrNotFound, "book")
	}
	r.ID = s.st.nextID()
	r.Version = 1
	s.st.reservations[r.ID] = r
	return r, nil
}

func (s *memoryStore) GetReservation(_ context.Context, id int64) (model.Reservation, error) {
	defer s.read()()
	r, ok := s.st.reservations[id]
	if !ok {
		return model.Reservation{}, errs.ErrNotFound
	}
	return r, nil
}

func (s *memoryStore) ListReservations(_ context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	defer s.read()()
	var items []model.Reservation
	for _, r := range s.st.reservations {
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.BookID != 0 && r.BookID != f.BookID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, r.Status) {
			continue
		}
		if f.ExpiredAt != nil && r.ExpireDate.After(*f.ExpiredAt) {
			continue
		}
		items = append(items, r)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *memoryStore) UpdateReservation(_ context.Context, r model.Reservation) (model.Reservation, error) {
	defer s.write()()
	cur, ok := s.st.reservations[r.ID]
	if !ok {
		return model.Reservation{}, errs.ErrNotFound
	}
	if cur.Version != r.Version {
		return model.Reservation{}, errs.ErrConflict
	}
	cur.CopyID = r.CopyID
	cur.ExpireDate = r.ExpireDate
	cur.Approved = r.Approved
	cur.Active = r.Active
	cur.Status = r.Status
	cur.Version++
	s.st.reservations[r.ID] = cur
	return cur, nil
}

func (s *memoryStore) ExpireReservation(_ context.Context, id int64, now time.Time) (bool, error) {
	defer s.write()()
	r, ok := s.st.reservations[id]
	if !ok {
		return false, nil
	}
	if r.Status != model.ReservationPending && r.Status != model.ReservationApproved {
		return false, nil
	}
	if r.ExpireDate.After(now) {
		return false, nil
	}
	r.Active = false
	r.Approved = false
	r.Status = model.ReservationExpired
	r.Version++
	s.st.reservations[id] = r
	return true, nil
}

func (s *memoryStore) DeleteReservation(_ context.Context, id int64) error {
	defer s.write()()
	if _, ok := s.st.reservations[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.st.reservations, id)
	return nil
}

func (s *memoryStore) CreateLoan(_ context.Context, l model.Loan) (model.Loan, error) {
	defer s.write()()
	if _, ok := s.st.books[l.BookID]; !ok {
		return model.Loan{}, errors.Wrap(errs.ErrNotFound, "book")
	}
	l.ID = s.st.nextID()
	l.Version = 1
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	s.st.loans[l.ID] = l
	return l, nil
}

func (s *memoryStore) GetLoan(_ context.Context, id int64) (model.Loan, error) {
	defer s.read()()
	l, ok := s.st.loans[id]
	if !ok || l.DeletedAt != nil {
		return model.Loan{}, errs.ErrNotFound
	}
	return l, nil
}

func (s *memoryStore) ListLoans(_ context.Context, f model.LoanFilter) ([]model.Loan, error) {
	defer s.read()()
	var items []model.Loan
	for _, l := range s.st.loans {
		if l.DeletedAt != nil {
			continue
		}
		if f.UserID != "" && l.UserID != f.UserID {
			continue
		}
		if f.BookID != 0 && l.BookID != f.BookID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, l.Status) {
			continue
		}
		items = append(items, l)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *memoryStore) UpdateLoan(_ context.Context, l model.Loan) (model.Loan, error) {
	defer s.write()()
	cur, ok := s.st.loans[l.ID]
	if !ok || cur.DeletedAt != nil {
		return model.Loan{}, errs.ErrNotFound
	}
	if cur.Version != l.Version {
		return model.Loan{}, errs.ErrConflict
	}
	l.UserID = cur.UserID
	l.BookID = cur.BookID
	l.CreatedAt = cur.CreatedAt
	l.Version = cur.Version + 1
	s.st.loans[l.ID] = l
	return l, nil
}

func (s *memoryStore) CreateBill(_ context.Context, b model.Bill) (model.Bill, error) {
	defer s.write()()
	if _, ok := s.st.loans[b.LoanID]; !ok {
		return model.Bill{}, errors.Wrap(errs.ErrNotFound, "loan")
	}
	for _, existing := range s.st.bills {
		if existing.LoanID == b.LoanID {
			return model.Bill{}, errors.Wrapf(errs.ErrConflict, "bill for loan %d exists", b.LoanID)
		}
	}
	b.ID = s.st.nextID()
	b.Version = 1
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	s.st.bills[b.ID] = b
	return b, nil
}

func (s *memoryStore) GetBill(_ context.Context, id int64) (model.Bill, error) {
	defer s.read()()
	b, ok := s.st.bills[id]
	if !ok {
		return model.Bill{}, errs.ErrNotFound
	}
	return b, nil
}

// GetBillForUpdate needs no row lock: transactions already hold the writer lock.
func (s *memoryStore) GetBillForUpdate(ctx context.Context, id int64) (model.Bill, error) {
	return s.GetBill(ctx, id)
}

func (s *memoryStore) GetBillByLoan(_ context.Context, loanID int64) (model.Bill, error) {
	defer s.read()()
	for _, b := range s.st.bills {
		if b.LoanID == loanID {
			return b, nil
		}
	}
	return model.Bill{}, errs.ErrNotFound
}

func (s *memoryStore) ListBills(_ context.Context, f model.BillFilter) ([]model.Bill, error) {
	defer s.read()()
	var items []model.Bill
	for _, b := range s.st.bills {
		if f.UserID != "" && b.UserID != f.UserID {
			continue
		}
		if f.LoanID != 0 && b.LoanID != f.LoanID {
			continue
		}
		items = append(items, b)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *memoryStore) UpdateBill(_ context.Context, b model.Bill) (model.Bill, error) {
	defer s.write()()
	cur, ok := s.st.bills[b.ID]
	if !ok {
		return model.Bill{}, errs.ErrNotFound
	}
	if cur.Version != b.Version {
		return model.Bill{}, errs.ErrConflict
	}
	b.LoanID = cur.LoanID
	b.UserID = cur.UserID
	b.CreatedAt = cur.CreatedAt
	b.Version = cur.Version + 1
	s.st.bills[b.ID] = b
	return b, nil
}

func (s *memoryStore) DeleteBill(_ context.Context, id int64) error {
	defer s.write()()
	if _, ok := s.st.bills[id]; !ok {
		return errs.ErrNotFound
	}
	for _, p := range s.st.payments {
		if p.BillID == id {
			return errors.Wrap(errs.ErrConflict, "bill has payments")
		}
	}
	delete(s.st.bills, id)
	return nil
}

func (s *memoryStore) CreatePayment(_ context.Context, p model.Payment) (model.Payment, error) {
	defer s.write()()
	if _, ok := s.st.bills[p.BillID]; !ok {
		return model.Payment{}, errors.Wrap(errs.ErrNotFound, "bill")
	}
	if _, ok := s.st.payments[p.ID]; ok {
		return model.Payment{}, errors.Wrapf(errs.ErrConflict, "payment %s exists", p.ID)
	}
	s.st.payments[p.ID] = p
	return p, nil
}

func (s *memoryStore) ListPayments(_ context.Context, billID int64) ([]model.Payment, error) {
	defer s.read()()
	var items []model.Payment
	for _, p := range s.st.payments {
		if p.BillID == billID {
			items = append(items, p)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].PaymentDate.Equal(items[j].PaymentDate) {
			return items[i].ID < items[j].ID
		}
		return items[i].PaymentDate.Before(items[j].PaymentDate)
	})
	return items, nil
}

func (s *memoryStore) SumPayments(_ context.Context, billID int64) (decimal.Decimal, error) {
	defer s.read()()
	sum := decimal.Zero
	for _, p := range s.st.payments {
		if p.BillID == billID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func containsStatus[T comparable](statuses []T, st T) bool {
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

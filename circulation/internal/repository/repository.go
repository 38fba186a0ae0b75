package repository

import (
	"context"
	"time"

	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/shopspring/decimal"
)

// Store is the set of reads and writes the circulation engine performs.
// Writes that must change together run through Repository.WithTx.
type Store interface {
	CreateBook(ctx context.Context, book model.Book) (model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)

	CreateCopy(ctx context.Context, bookID int64) (model.Copy, error)
	GetCopy(ctx context.Context, id int64) (model.Copy, error)
	// ListCopies returns every copy of the book ordered by id.
	ListCopies(ctx context.Context, bookID int64) ([]model.Copy, error)
	// SetCopyState moves the copy from -> to. It fails with errs.ErrConflict when the
	// copy is no longer in the from state.
	SetCopyState(ctx context.Context, id int64, from, to model.CopyState) error
	// ReleaseCopy makes the copy available whatever its current state.
	ReleaseCopy(ctx context.Context, id int64) error

	CreateReservation(ctx context.Context, r model.Reservation) (model.Reservation, error)
	GetReservation(ctx context.Context, id int64) (model.Reservation, error)
	ListReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error)
	// UpdateReservation writes r if r.Version matches the stored row and returns the new row.
	UpdateReservation(ctx context.Context, r model.Reservation) (model.Reservation, error)
	// ExpireReservation marks a pending or approved reservation whose expiry is <= now
	// as expired. It reports false when there was nothing to expire.
	ExpireReservation(ctx context.Context, id int64, now time.Time) (bool, error)
	DeleteReservation(ctx context.Context, id int64) error

	CreateLoan(ctx context.Context, l model.Loan) (model.Loan, error)
	GetLoan(ctx context.Context, id int64) (model.Loan, error)
	ListLoans(ctx context.Context, f model.LoanFilter) ([]model.Loan, error)
	// UpdateLoan writes l if l.Version matches the stored row and returns the new row.
	UpdateLoan(ctx context.Context, l model.Loan) (model.Loan, error)

	CreateBill(ctx context.Context, b model.Bill) (model.Bill, error)
	GetBill(ctx context.Context, id int64) (model.Bill, error)
	// GetBillForUpdate reads the bill and locks it until the transaction ends.
	GetBillForUpdate(ctx context.Context, id int64) (model.Bill, error)
	GetBillByLoan(ctx context.Context, loanID int64) (model.Bill, error)
	ListBills(ctx context.Context, f model.BillFilter) ([]model.Bill, error)
	UpdateBill(ctx context.Context, b model.Bill) (model.Bill, error)
	DeleteBill(ctx context.Context, id int64) error

	CreatePayment(ctx context.Context, p model.Payment) (model.Payment, error)
	ListPayments(ctx context.Context, billID int64) ([]model.Payment, error)
	SumPayments(ctx context.Context, billID int64) (decimal.Decimal, error)
}

type Repository interface {
	Store
	// WithTx runs fn in one transaction. Any error from fn rolls everything back.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

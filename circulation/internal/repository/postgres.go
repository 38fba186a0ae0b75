package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type repository struct {
	*store
	db *sqlx.DB
}

// store runs queries against either the pool or an open transaction.
type store struct {
	ext sqlx.ExtContext
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		store: &store{ext: db, log: log.Named("repo")},
		db:    db,
	}, nil
}

const (
	booksTableName        = `books`
	copiesTableName       = `copies`
	loansTableName        = `loans`
	reservationsTableName = `reservations`
	billsTableName        = `bills`
	paymentsTableName     = `payments`
)

var (
	bookColumns        = []string{"id", "title", "author", "isbn", "description", "created_at"}
	copyColumns        = []string{"id", "book_id", "state", "version"}
	loanColumns        = []string{"id", "user_id", "book_id", "copy_id", "due_date", "loan_date", "return_date", "approved", "active", "status", "note", "version", "created_at", "deleted_at"}
	reservationColumns = []string{"id", "user_id", "book_id", "copy_id", "reservation_date", "expire_date", "approved", "active", "status", "version"}
	billColumns        = []string{"id", "loan_id", "user_id", "amount_charged", "current_amount_owing", "bill_paid_amount", "days_overdue", "due_date", "settled", "version", "created_at"}
	paymentColumns     = []string{"id", "bill_id", "user_id", "amount", "payment_date", "payment_method"}
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func returning(cols []string) string {
	return "returning " + strings.Join(cols, ", ")
}

func (r *repository) WithTx(ctx context.Context, fn func(tx Store) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(&store{ext: tx, log: r.log}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error("tx.Rollback", zap.Error(rbErr))
		}
		return mapPgError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapPgError(errors.Wrap(err, "commit"))
	}
	return nil
}

// mapPgError turns constraint and serialization failures into domain errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation, pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
			return errors.Wrap(errs.ErrConflict, pgErr.Message)
		case pgerrcode.ForeignKeyViolation:
			return errors.Wrap(errs.ErrNotFound, pgErr.Message)
		}
	}
	return err
}

func (s *store) get(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	if err := sqlx.GetContext(ctx, s.ext, dest, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.ErrNotFound
		}
		s.log.Error("get", zap.String("q", q), zap.Any("args", args), zap.Error(err))
		return mapPgError(err)
	}
	return nil
}

func (s *store) list(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	s.log.Debug("list", zap.String("q", q), zap.Any("args", args))
	if err := sqlx.SelectContext(ctx, s.ext, dest, q, args...); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *store) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.ext.ExecContext(ctx, q, args...)
	if err != nil {
		s.log.Error("exec", zap.String("q", q), zap.Any("args", args), zap.Error(err))
		return 0, mapPgError(err)
	}
	return res.RowsAffected()
}

func (s *store) CreateBook(ctx context.Context, book model.Book) (model.Book, error) {
	b := qb.Insert(booksTableName).
		Columns("title", "author", "isbn", "description").
		Values(book.Title, book.Author, book.ISBN, book.Description).
		Suffix(returning(bookColumns))
	var res model.Book
	if err := s.get(ctx, &res, b); err != nil {
		return model.Book{}, err
	}
	return res, nil
}

func (s *store) GetBook(ctx context.Context, id int64) (model.Book, error) {
	var book model.Book
	err := s.get(ctx, &book, qb.Select(bookColumns...).From(booksTableName).Where(sq.Eq{"id": id}))
	return book, err
}

func (s *store) CreateCopy(ctx context.Context, bookID int64) (model.Copy, error) {
	b := qb.Insert(copiesTableName).
		Columns("book_id", "state").
		Values(bookID, string(model.CopyAvailable)).
		Suffix(returning(copyColumns))
	var c model.Copy
	if err := s.get(ctx, &c, b); err != nil {
		return model.Copy{}, err
	}
	return c, nil
}

func (s *store) GetCopy(ctx context.Context, id int64) (model.Copy, error) {
	var c model.Copy
	err := s.get(ctx, &c, qb.Select(copyColumns...).From(copiesTableName).Where(sq.Eq{"id": id}))
	return c, err
}

func (s *store) ListCopies(ctx context.Context, bookID int64) ([]model.Copy, error) {
	var copies []model.Copy
	err := s.list(ctx, &copies, qb.Select(copyColumns...).
		From(copiesTableName).
		Where(sq.Eq{"book_id": bookID}).
		OrderBy("id"))
	return copies, err
}

// SetCopyState is a compare-and-set on the state column. Under READ COMMITTED a
// concurrent writer blocks on the row lock and then re-evaluates the predicate,
// so at most one of them sees a row affected.
func (s *store) SetCopyState(ctx context.Context, id int64, from, to model.CopyState) error {
	n, err := s.exec(ctx, qb.Update(copiesTableName).
		Set("state", string(to)).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"state": string(from)}))
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetCopy(ctx, id); err != nil {
			return err
		}
		return errors.Wrapf(errs.ErrConflict, "copy %d is not %s", id, from)
	}
	return nil
}

func (s *store) ReleaseCopy(ctx context.Context, id int64) error {
	n, err := s.exec(ctx, qb.Update(copiesTableName).
		Set("state", string(model.CopyAvailable)).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *store) CreateReservation(ctx context.Context, r model.Reservation) (model.Reservation, error) {
	b := qb.Insert(reservationsTableName).
		Columns("user_id", "book_id", "copy_id", "reservation_date", "expire_date", "approved", "active", "status").
		Values(r.UserID, r.BookID, r.CopyID, r.ReservationDate, r.ExpireDate, r.Approved, r.Active, string(r.Status)).
		Suffix(returning(reservationColumns))
	var res model.Reservation
	if err := s.get(ctx, &res, b); err != nil {
		return model.Reservation{}, err
	}
	return res, nil
}

func (s *store) GetReservation(ctx context.Context, id int64) (model.Reservation, error) {
	var r model.Reservation
	err := s.get(ctx, &r, qb.Select(reservationColumns...).From(reservationsTableName).Where(sq.Eq{"id": id}))
	return r, err
}

func (s *store) ListReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	b := qb.Select(reservationColumns...).From(reservationsTableName).OrderBy("id")
	if f.UserID != "" {
		b = b.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.BookID != 0 {
		b = b.Where(sq.Eq{"book_id": f.BookID})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		b = b.Where(sq.Eq{"status": statuses})
	}
	if f.ExpiredAt != nil {
		b = b.Where(sq.LtOrEq{"expire_date": *f.ExpiredAt})
	}
	var items []model.Reservation
	err := s.list(ctx, &items, b)
	return items, err
}

func (s *store) UpdateReservation(ctx context.Context, r model.Reservation) (model.Reservation, error) {
	b := qb.Update(reservationsTableName).
		Set("copy_id", r.CopyID).
		Set("expire_date", r.ExpireDate).
		Set("approved", r.Approved).
		Set("active", r.Active).
		Set("status", string(r.Status)).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": r.ID}).
		Where(sq.Eq{"version": r.Version}).
		Suffix(returning(reservationColumns))
	var res model.Reservation
	if err := s.get(ctx, &res, b); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Reservation{}, s.staleOrMissing(s.GetReservation(ctx, r.ID))
		}
		return model.Reservation{}, err
	}
	return res, nil
}

func (s *store) ExpireReservation(ctx context.Context, id int64, now time.Time) (bool, error) {
	n, err := s.exec(ctx, qb.Update(reservationsTableName).
		Set("active", false).
		Set("approved", false).
		Set("status", string(model.ReservationExpired)).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": []string{string(model.ReservationPending), string(model.ReservationApproved)}}).
		Where(sq.LtOrEq{"expire_date": now}))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *store) DeleteReservation(ctx context.Context, id int64) error {
	n, err := s.exec(ctx, qb.Delete(reservationsTableName).Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *store) CreateLoan(ctx context.Context, l model.Loan) (model.Loan, error) {
	b := qb.Insert(loansTableName).
		Columns("user_id", "book_id", "copy_id", "due_date", "approved", "active", "status", "note").
		Values(l.UserID, l.BookID, l.CopyID, l.DueDate, l.Approved, l.Active, string(l.Status), l.Note).
		Suffix(returning(loanColumns))
	var res model.Loan
	if err := s.get(ctx, &res, b); err != nil {
		return model.Loan{}, err
	}
	return res, nil
}

func (s *store) GetLoan(ctx context.Context, id int64) (model.Loan, error) {
	var l model.Loan
	err := s.get(ctx, &l, qb.Select(loanColumns...).
		From(loansTableName).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"deleted_at": nil}))
	return l, err
}

func (s *store) ListLoans(ctx context.Context, f model.LoanFilter) ([]model.Loan, error) {
	b := qb.Select(loanColumns...).
		From(loansTableName).
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("id")
	if f.UserID != "" {
		b = b.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.BookID != 0 {
		b = b.Where(sq.Eq{"book_id": f.BookID})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		b = b.Where(sq.Eq{"status": statuses})
	}
	var items []model.Loan
	err := s.list(ctx, &items, b)
	return items, err
}

func (s *store) UpdateLoan(ctx context.Context, l model.Loan) (model.Loan, error) {
	b := qb.Update(loansTableName).
		Set("copy_id", l.CopyID).
		Set("due_date", l.DueDate).
		Set("loan_date", l.LoanDate).
		Set("return_date", l.ReturnDate).
		Set("approved", l.Approved).
		Set("active", l.Active).
		Set("status", string(l.Status)).
		Set("note", l.Note).
		Set("deleted_at", l.DeletedAt).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": l.ID}).
		Where(sq.Eq{"version": l.Version}).
		Where(sq.Eq{"deleted_at": nil}).
		Suffix(returning(loanColumns))
	var res model.Loan
	if err := s.get(ctx, &res, b); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Loan{}, s.staleOrMissing(s.GetLoan(ctx, l.ID))
		}
		return model.Loan{}, err
	}
	return res, nil
}

func (s *store) CreateBill(ctx context.Context, bill model.Bill) (model.Bill, error) {
	b := qb.Insert(billsTableName).
		Columns("loan_id", "user_id", "amount_charged", "current_amount_owing", "bill_paid_amount", "days_overdue", "due_date", "settled").
		Values(bill.LoanID, bill.UserID, bill.AmountCharged, bill.CurrentAmountOwing, bill.BillPaidAmount, bill.DaysOverdue, bill.DueDate, bill.Settled).
		Suffix(returning(billColumns))
	var res model.Bill
	if err := s.get(ctx, &res, b); err != nil {
		return model.Bill{}, err
	}
	return res, nil
}

func (s *store) GetBill(ctx context.Context, id int64) (model.Bill, error) {
	var bill model.Bill
	err := s.get(ctx, &bill, qb.Select(billColumns...).From(billsTableName).Where(sq.Eq{"id": id}))
	return bill, err
}

func (s *store) GetBillForUpdate(ctx context.Context, id int64) (model.Bill, error) {
	var bill model.Bill
	err := s.get(ctx, &bill, qb.Select(billColumns...).
		From(billsTableName).
		Where(sq.Eq{"id": id}).
		Suffix("for update"))
	return bill, err
}

func (s *store) GetBillByLoan(ctx context.Context, loanID int64) (model.Bill, error) {
	var bill model.Bill
	err := s.get(ctx, &bill, qb.Select(billColumns...).From(billsTableName).Where(sq.Eq{"loan_id": loanID}))
	return bill, err
}

func (s *store) ListBills(ctx context.Context, f model.BillFilter) ([]model.Bill, error) {
	b := qb.Select(billColumns...).From(billsTableName).OrderBy("id")
	if f.UserID != "" {
		b = b.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.LoanID != 0 {
		b = b.Where(sq.Eq{"loan_id": f.LoanID})
	}
	var items []model.Bill
	err := s.list(ctx, &items, b)
	return items, err
}

func (s *store) UpdateBill(ctx context.Context, bill model.Bill) (model.Bill, error) {
	b := qb.Update(billsTableName).
		Set("amount_charged", bill.AmountCharged).
		Set("current_amount_owing", bill.CurrentAmountOwing).
		Set("bill_paid_amount", bill.BillPaidAmount).
		Set("days_overdue", bill.DaysOverdue).
		Set("due_date", bill.DueDate).
		Set("settled", bill.Settled).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": bill.ID}).
		Where(sq.Eq{"version": bill.Version}).
		Suffix(returning(billColumns))
	var res model.Bill
	if err := s.get(ctx, &res, b); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Bill{}, s.staleOrMissing(s.GetBill(ctx, bill.ID))
		}
		return model.Bill{}, err
	}
	return res, nil
}

func (s *store) DeleteBill(ctx context.Context, id int64) error {
	n, err := s.exec(ctx, qb.Delete(billsTableName).Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *store) CreatePayment(ctx context.Context, p model.Payment) (model.Payment, error) {
	b := qb.Insert(paymentsTableName).
		Columns(paymentColumns...).
		Values(p.ID, p.BillID, p.UserID, p.Amount, p.PaymentDate, p.Method).
		Suffix(returning(paymentColumns))
	var res model.Payment
	if err := s.get(ctx, &res, b); err != nil {
		return model.Payment{}, err
	}
	return res, nil
}

func (s *store) ListPayments(ctx context.Context, billID int64) ([]model.Payment, error) {
	var items []model.Payment
	err := s.list(ctx, &items, qb.Select(paymentColumns...).
		From(paymentsTableName).
		Where(sq.Eq{"bill_id": billID}).
		OrderBy("payment_date", "id"))
	return items, err
}

func (s *store) SumPayments(ctx context.Context, billID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.get(ctx, &sum, qb.Select("coalesce(sum(amount), 0)").
		From(paymentsTableName).
		Where(sq.Eq{"bill_id": billID}))
	return sum, err
}

// staleOrMissing explains a versioned update that touched no row.
func (s *store) staleOrMissing(_ interface{}, err error) error {
	if err != nil {
		return err
	}
	return errs.ErrConflict
}

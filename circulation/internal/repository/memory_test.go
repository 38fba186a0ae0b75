package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/Astemirdum/library-circulation/circulation/internal/repository"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBookWithCopy(t *testing.T, repo *repository.MemoryRepository) (model.Book, model.Copy) {
	t.Helper()
	ctx := context.Background()
	book, err := repo.CreateBook(ctx, model.Book{Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593"})
	require.NoError(t, err)
	c, err := repo.CreateCopy(ctx, book.ID)
	require.NoError(t, err)
	return book, c
}

func TestMemoryRepository_WithTxRollback(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository(zap.NewNop())
	book, c := newBookWithCopy(t, repo)

	errBoom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.SetCopyState(ctx, c.ID, model.CopyAvailable, model.CopyRequested); err != nil {
			return err
		}
		if _, err := tx.CreateLoan(ctx, model.Loan{UserID: "alice", BookID: book.ID, CopyID: &c.ID, Status: model.LoanPending}); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	got, err := repo.GetCopy(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, model.CopyAvailable, got.State)

	loans, err := repo.ListLoans(ctx, model.LoanFilter{BookID: book.ID})
	require.NoError(t, err)
	require.Empty(t, loans)
}

func TestMemoryRepository_SetCopyState(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository(zap.NewNop())
	_, c := newBookWithCopy(t, repo)

	require.NoError(t, repo.SetCopyState(ctx, c.ID, model.CopyAvailable, model.CopyOnLoan))
	err := repo.SetCopyState(ctx, c.ID, model.CopyAvailable, model.CopyOnReservation)
	require.ErrorIs(t, err, errs.ErrConflict)

	require.ErrorIs(t, repo.SetCopyState(ctx, 999, model.CopyAvailable, model.CopyOnLoan), errs.ErrNotFound)

	require.NoError(t, repo.ReleaseCopy(ctx, c.ID))
	got, err := repo.GetCopy(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, got.Available())
	require.Equal(t, 3, got.Version)
}

func TestMemoryRepository_UpdateLoanVersion(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository(zap.NewNop())
	book, _ := newBookWithCopy(t, repo)

	loan, err := repo.CreateLoan(ctx, model.Loan{UserID: "alice", BookID: book.ID, Status: model.LoanPending})
	require.NoError(t, err)

	first := loan
	first.Status = model.LoanRejected
	updated, err := repo.UpdateLoan(ctx, first)
	require.NoError(t, err)
	require.Equal(t, loan.Version+1, updated.Version)

	stale := loan
	stale.Status = model.LoanApproved
	_, err = repo.UpdateLoan(ctx, stale)
	require.ErrorIs(t, err, errs.ErrConflict)

	now := time.Now()
	updated.DeletedAt = &now
	_, err = repo.UpdateLoan(ctx, updated)
	require.NoError(t, err)

	_, err = repo.GetLoan(ctx, loan.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = repo.UpdateLoan(ctx, updated)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMemoryRepository_ExpireReservation(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository(zap.NewNop())
	book, _ := newBookWithCopy(t, repo)

	start := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	r, err := repo.CreateReservation(ctx, model.Reservation{
		UserID: "alice", BookID: book.ID,
		ReservationDate: start, ExpireDate: start.Add(24 * time.Hour),
		Status: model.ReservationPending,
	})
	require.NoError(t, err)

	ok, err := repo.ExpireReservation(ctx, r.ID, start.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.ExpireReservation(ctx, r.ID, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.ExpireReservation(ctx, r.ID, start.Add(48*time.Hour))
	require.NoError(t, err)
	require.False(t, ok)

	got, err := repo.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, model.ReservationExpired, got.Status)
	require.False(t, got.Active)
}

func TestMemoryRepository_BillPerLoan(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository(zap.NewNop())
	book, _ := newBookWithCopy(t, repo)
	loan, err := repo.CreateLoan(ctx, model.Loan{UserID: "alice", BookID: book.ID, Status: model.LoanReturned})
	require.NoError(t, err)

	bill, err := repo.CreateBill(ctx, model.Bill{LoanID: loan.ID, UserID: "alice", CurrentAmountOwing: decimal.NewFromInt(5)})
	require.NoError(t, err)
	_, err = repo.CreateBill(ctx, model.Bill{LoanID: loan.ID, UserID: "alice"})
	require.ErrorIs(t, err, errs.ErrConflict)

	for i, id := range []string{"p1", "p2"} {
		_, err = repo.CreatePayment(ctx, model.Payment{
			ID: id, BillID: bill.ID, UserID: "alice",
			Amount:      decimal.NewFromInt(2),
			PaymentDate: time.Date(2024, 10, 1+i, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
	sum, err := repo.SumPayments(ctx, bill.ID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(4).Equal(sum))

	payments, err := repo.ListPayments(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.Equal(t, "p1", payments[0].ID)
}

func TestMemoryRepository_DeleteBill(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository(zap.NewNop())
	book, _ := newBookWithCopy(t, repo)

	var bills []model.Bill
	for i := 0; i < 2; i++ {
		loan, err := repo.CreateLoan(ctx, model.Loan{UserID: "alice", BookID: book.ID, Status: model.LoanReturned})
		require.NoError(t, err)
		bill, err := repo.CreateBill(ctx, model.Bill{LoanID: loan.ID, UserID: "alice", Settled: true})
		require.NoError(t, err)
		bills = append(bills, bill)
	}
	_, err := repo.CreatePayment(ctx, model.Payment{
		ID: "p1", BillID: bills[1].ID, UserID: "alice",
		Amount: decimal.NewFromInt(1), PaymentDate: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteBill(ctx, bills[0].ID))
	_, err = repo.GetBillForUpdate(ctx, bills[0].ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.ErrorIs(t, repo.DeleteBill(ctx, bills[0].ID), errs.ErrNotFound)

	require.ErrorIs(t, repo.DeleteBill(ctx, bills[1].ID), errs.ErrConflict)
	got, err := repo.GetBillForUpdate(ctx, bills[1].ID)
	require.NoError(t, err)
	require.Equal(t, bills[1].ID, got.ID)
}

package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/Astemirdum/library-circulation/circulation/internal/repository"
	"github.com/Astemirdum/library-circulation/pkg/kafka"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

var errUnlockedBillRead = errors.New("bill read without row lock")

// lockingRepository refuses plain bill reads inside transactions, so any
// read-check-write on a bill has to go through GetBillForUpdate.
type lockingRepository struct {
	*repository.MemoryRepository

	mu     sync.Mutex
	locked []int64
}

func (r *lockingRepository) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return r.MemoryRepository.WithTx(ctx, func(tx repository.Store) error {
		return fn(&lockingStore{Store: tx, repo: r})
	})
}

func (r *lockingRepository) lockedBills() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.locked...)
}

type lockingStore struct {
	repository.Store
	repo *lockingRepository
}

func (s *lockingStore) GetBill(context.Context, int64) (model.Bill, error) {
	return model.Bill{}, errUnlockedBillRead
}

func (s *lockingStore) GetBillForUpdate(ctx context.Context, id int64) (model.Bill, error) {
	s.repo.mu.Lock()
	s.repo.locked = append(s.repo.locked, id)
	s.repo.mu.Unlock()
	return s.Store.GetBillForUpdate(ctx, id)
}

// overdueBill lends and returns a copy five days late, giving a bill of 5 * rate.
func (f *fixture) overdueBill(t *testing.T, p *model.Loan) model.Bill {
	t.Helper()
	inv := f.book(t, 1)
	due := f.clock.Now().Add(day)
	loan := f.lend(t, alice, inv.Book.ID, due)
	f.clock.Set(due.Add(5*day + time.Hour))
	res, err := f.svc.ReturnLoan(context.Background(), alice, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Bill)
	if p != nil {
		*p = res.Loan
	}
	return *res.Bill
}

func TestService_PaymentsLockBill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	bill := f.overdueBill(t, nil)

	repo := &lockingRepository{MemoryRepository: f.repo}
	f.svc = f.newService(repo)

	succeeded, failures := race(4, func() error {
		_, err := f.svc.RecordPayment(ctx, alice, bill.ID, model.RecordPaymentRequest{Amount: decimal.NewFromInt(8), Method: "card"})
		return err
	})
	require.Equal(t, 1, succeeded)
	require.Len(t, failures, 3)
	for _, err := range failures {
		require.ErrorIs(t, err, errs.ErrValidation)
	}

	paid, err := f.repo.SumPayments(ctx, bill.ID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(8).Equal(paid))
	require.Len(t, repo.lockedBills(), 4)
	for _, id := range repo.lockedBills() {
		require.Equal(t, bill.ID, id)
	}

	reconciled, err := f.svc.ReconcileBill(ctx, alice, bill.ID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(7).Equal(reconciled.CurrentAmountOwing))
	require.Len(t, repo.lockedBills(), 5)
}

func TestService_UpdateLoanRestatesBill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	var loan model.Loan
	bill := f.overdueBill(t, &loan)
	require.Equal(t, 5, bill.DaysOverdue)
	require.True(t, decimal.NewFromInt(15).Equal(bill.CurrentAmountOwing))

	note := "late fee waived in part"
	loan, err := f.svc.UpdateLoan(ctx, librarian, loan.ID, model.LoanPatch{Note: &note, Version: loan.Version})
	require.NoError(t, err)
	unchanged, err := f.svc.GetBill(ctx, alice, bill.ID)
	require.NoError(t, err)
	require.Equal(t, bill.Version, unchanged.Version)

	due := loan.DueDate.Add(4 * day)
	loan, err = f.svc.UpdateLoan(ctx, librarian, loan.ID, model.LoanPatch{DueDate: &due, Version: loan.Version})
	require.NoError(t, err)
	require.Equal(t, due, loan.DueDate)

	bill, err = f.svc.GetBill(ctx, alice, bill.ID)
	require.NoError(t, err)
	require.Equal(t, 1, bill.DaysOverdue)
	require.True(t, decimal.NewFromInt(3).Equal(bill.AmountCharged))
	require.True(t, decimal.NewFromInt(3).Equal(bill.CurrentAmountOwing))
	require.Equal(t, due, *bill.DueDate)
	require.False(t, bill.Settled)

	due = loan.ReturnDate.Add(day)
	_, err = f.svc.UpdateLoan(ctx, librarian, loan.ID, model.LoanPatch{DueDate: &due, Version: loan.Version})
	require.NoError(t, err)

	bill, err = f.svc.GetBill(ctx, alice, bill.ID)
	require.NoError(t, err)
	require.Zero(t, bill.DaysOverdue)
	require.True(t, bill.AmountCharged.IsZero())
	require.True(t, bill.CurrentAmountOwing.IsZero())
	require.True(t, bill.Settled)

	types := f.pub.types()
	require.Equal(t, kafka.EventBillUpserted, types[len(types)-1])
	require.Equal(t, kafka.EventBillUpserted, types[len(types)-2])
}

func TestService_UpdateLoanBillsOnlyWhenLate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	inv := f.book(t, 1)
	loan := f.lend(t, alice, inv.Book.ID, start.Add(7*day))
	f.clock.Set(start.Add(3 * day))
	res, err := f.svc.ReturnLoan(ctx, alice, loan.ID)
	require.NoError(t, err)
	require.Nil(t, res.Bill)
	loan = res.Loan

	due := start.Add(3*day - time.Hour)
	loan, err = f.svc.UpdateLoan(ctx, librarian, loan.ID, model.LoanPatch{DueDate: &due, Version: loan.Version})
	require.NoError(t, err)
	bills, err := f.svc.ListUserBills(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, bills)

	due = start
	_, err = f.svc.UpdateLoan(ctx, librarian, loan.ID, model.LoanPatch{DueDate: &due, Version: loan.Version})
	require.NoError(t, err)
	bills, err = f.svc.ListUserBills(ctx, alice)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	require.Equal(t, 3, bills[0].DaysOverdue)
	require.True(t, decimal.NewFromInt(6).Equal(bills[0].CurrentAmountOwing))
}

func TestService_DeleteBill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	var overdue model.Loan
	bill := f.overdueBill(t, &overdue)

	require.ErrorIs(t, f.svc.DeleteBill(ctx, alice, bill.ID), errs.ErrForbidden)
	require.ErrorIs(t, f.svc.DeleteBill(ctx, librarian, bill.ID), errs.ErrForbidden)
	require.ErrorIs(t, f.svc.DeleteBill(ctx, admin, bill.ID), errs.ErrForbidden, "unsettled")

	_, err := f.svc.RecordPayment(ctx, alice, bill.ID, model.RecordPaymentRequest{Amount: decimal.NewFromInt(15), Method: "cash"})
	require.NoError(t, err)
	bill, err = f.svc.ReconcileBill(ctx, alice, bill.ID)
	require.NoError(t, err)
	require.True(t, bill.Settled)
	require.ErrorIs(t, f.svc.DeleteBill(ctx, admin, bill.ID), errs.ErrForbidden, "has payments")

	inv := f.book(t, 1)
	loan := f.lend(t, bob, inv.Book.ID, f.clock.Now().Add(day))
	waived, err := f.svc.CreateBill(ctx, admin, model.CreateBillRequest{LoanID: loan.ID})
	require.NoError(t, err)
	require.True(t, waived.Settled)

	require.NoError(t, f.svc.DeleteBill(ctx, admin, waived.ID))
	_, err = f.svc.GetBill(ctx, admin, waived.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.ErrorIs(t, f.svc.DeleteBill(ctx, admin, waived.ID), errs.ErrNotFound)
}

func TestService_RunReclaimerDisabled(t *testing.T) {
	f := newFixture(t, 1)
	for _, interval := range []time.Duration{0, -time.Second} {
		require.NoError(t, f.svc.RunReclaimer(context.Background(), interval))
	}
}

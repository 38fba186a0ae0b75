package service

import (
	"context"
	"time"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/Astemirdum/library-circulation/circulation/internal/repository"
	"github.com/Astemirdum/library-circulation/pkg/auth"
	"github.com/Astemirdum/library-circulation/pkg/kafka"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// OverdueDays counts whole days between due and returned. Early or same-day returns give 0.
func OverdueDays(due, returned time.Time) int {
	if !returned.After(due) {
		return 0
	}
	return int(returned.Sub(due) / day)
}

func owing(charged, paid decimal.Decimal) decimal.Decimal {
	if o := charged.Sub(paid); o.IsPositive() {
		return o
	}
	return decimal.Zero
}

// upsertOverdueBill creates the loan's bill or recomputes it in place. The unique loan id
// keeps a loan to a single bill.
func upsertOverdueBill(ctx context.Context, tx repository.Store, loanID int64, userID string,
	dueDate time.Time, days int, rate decimal.Decimal,
) (model.Bill, error) {
	charged := rate.Mul(decimal.NewFromInt(int64(days)))
	bill, err := tx.GetBillByLoan(ctx, loanID)
	if errors.Is(err, errs.ErrNotFound) {
		return tx.CreateBill(ctx, model.Bill{
			LoanID:             loanID,
			UserID:             userID,
			AmountCharged:      charged,
			CurrentAmountOwing: charged,
			BillPaidAmount:     decimal.Zero,
			DaysOverdue:        days,
			DueDate:            &dueDate,
			Settled:            charged.IsZero(),
		})
	}
	if err != nil {
		return model.Bill{}, err
	}
	bill.AmountCharged = charged
	bill.DaysOverdue = days
	bill.DueDate = &dueDate
	bill.CurrentAmountOwing = owing(charged, bill.BillPaidAmount)
	bill.Settled = bill.CurrentAmountOwing.IsZero()
	return tx.UpdateBill(ctx, bill)
}

// UpsertOverdueBill runs the overdue computation for a loan in its own transaction.
func (s *Service) UpsertOverdueBill(ctx context.Context, loanID int64, userID string,
	dueDate time.Time, days int, rate decimal.Decimal,
) (model.Bill, error) {
	if days < 0 || rate.IsNegative() {
		return model.Bill{}, errors.Wrap(errs.ErrValidation, "days and rate must not be negative")
	}
	var bill model.Bill
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		var err error
		bill, err = upsertOverdueBill(ctx, tx, loanID, userID, dueDate, days, rate)
		return err
	})
	return bill, err
}

// RecordPayment appends to the bill's ledger. Owing changes only on ReconcileBill.
func (s *Service) RecordPayment(ctx context.Context, p auth.Principal, billID int64, req model.RecordPaymentRequest) (model.Payment, error) {
	if p.UserID == "" {
		return model.Payment{}, errs.ErrUnauthorized
	}
	if !req.Amount.IsPositive() {
		return model.Payment{}, errors.Wrap(errs.ErrValidation, "amount must be positive")
	}
	date := req.PaymentDate
	if date.IsZero() {
		date = s.clock.Now()
	}

	var payment model.Payment
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		// locked so that concurrent payments on one bill are summed one at a time
		bill, err := tx.GetBillForUpdate(ctx, billID)
		if err != nil {
			return errors.Wrap(err, "bill")
		}
		if err := authorizeOwner(p, bill.UserID, auth.CapManageBilling); err != nil {
			return err
		}
		paid, err := tx.SumPayments(ctx, billID)
		if err != nil {
			return err
		}
		if paid.Add(req.Amount).GreaterThan(bill.AmountCharged) {
			return errors.Wrapf(errs.ErrValidation, "payment exceeds remaining %s", owing(bill.AmountCharged, paid).StringFixed(2))
		}
		payment, err = tx.CreatePayment(ctx, model.Payment{
			ID:          uuid.New().String(),
			BillID:      billID,
			UserID:      bill.UserID,
			Amount:      req.Amount,
			PaymentDate: date.UTC(),
			Method:      req.Method,
		})
		return err
	})
	if err != nil {
		return model.Payment{}, err
	}
	s.publish(ctx, kafka.Event{
		Type:   kafka.EventPaymentRecorded,
		UserID: payment.UserID,
		BillID: payment.BillID,
		Amount: payment.Amount.StringFixed(2),
	})
	return payment, nil
}

// ReconcileBill folds the payment ledger into the bill.
func (s *Service) ReconcileBill(ctx context.Context, p auth.Principal, billID int64) (model.Bill, error) {
	if p.UserID == "" {
		return model.Bill{}, errs.ErrUnauthorized
	}
	var bill model.Bill
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.GetBillForUpdate(ctx, billID)
		if err != nil {
			return errors.Wrap(err, "bill")
		}
		if err := authorizeOwner(p, b.UserID, auth.CapManageBilling); err != nil {
			return err
		}
		paid, err := tx.SumPayments(ctx, billID)
		if err != nil {
			return err
		}
		b.BillPaidAmount = paid
		b.CurrentAmountOwing = owing(b.AmountCharged, paid)
		b.Settled = b.CurrentAmountOwing.IsZero()
		bill, err = tx.UpdateBill(ctx, b)
		return err
	})
	return bill, err
}

// CreateBill is the staff override for billing a loan by hand.
func (s *Service) CreateBill(ctx context.Context, p auth.Principal, req model.CreateBillRequest) (model.Bill, error) {
	if err := authorize(p, auth.CapManageBilling); err != nil {
		return model.Bill{}, err
	}
	if req.CurrentAmountOwing.IsNegative() || req.BillPaidAmount.IsNegative() || req.DaysOverdue < 0 {
		return model.Bill{}, errors.Wrap(errs.ErrValidation, "amounts and days must not be negative")
	}
	var bill model.Bill
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		loan, err := tx.GetLoan(ctx, req.LoanID)
		if err != nil {
			return errors.Wrap(err, "loan")
		}
		bill, err = tx.CreateBill(ctx, model.Bill{
			LoanID:             loan.ID,
			UserID:             loan.UserID,
			AmountCharged:      req.CurrentAmountOwing.Add(req.BillPaidAmount),
			CurrentAmountOwing: req.CurrentAmountOwing,
			BillPaidAmount:     req.BillPaidAmount,
			DaysOverdue:        req.DaysOverdue,
			DueDate:            &loan.DueDate,
			Settled:            req.CurrentAmountOwing.IsZero(),
			CreatedAt:          s.clock.Now(),
		})
		return err
	})
	if err != nil {
		return model.Bill{}, err
	}
	s.publish(ctx, kafka.Event{
		Type:   kafka.EventBillUpserted,
		UserID: bill.UserID,
		LoanID: bill.LoanID,
		BillID: bill.ID,
		Amount: bill.CurrentAmountOwing.StringFixed(2),
	})
	return bill, nil
}

func (s *Service) UpdateBill(ctx context.Context, p auth.Principal, id int64, req model.UpdateBillRequest) (model.Bill, error) {
	if err := authorize(p, auth.CapManageBilling); err != nil {
		return model.Bill{}, err
	}
	if req.Version <= 0 {
		return model.Bill{}, errors.Wrap(errs.ErrValidation, "version is required")
	}
	if req.CurrentAmountOwing.IsNegative() || req.BillPaidAmount.IsNegative() {
		return model.Bill{}, errors.Wrap(errs.ErrValidation, "amounts must not be negative")
	}
	b, err := s.repo.GetBill(ctx, id)
	if err != nil {
		return model.Bill{}, errors.Wrap(err, "bill")
	}
	b.Version = req.Version
	b.CurrentAmountOwing = req.CurrentAmountOwing
	b.BillPaidAmount = req.BillPaidAmount
	b.AmountCharged = req.CurrentAmountOwing.Add(req.BillPaidAmount)
	b.Settled = req.CurrentAmountOwing.IsZero()
	return s.repo.UpdateBill(ctx, b)
}

// DeleteBill removes a settled bill nobody has paid against.
func (s *Service) DeleteBill(ctx context.Context, p auth.Principal, id int64) error {
	if err := authorize(p, auth.CapManageBilling); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.GetBillForUpdate(ctx, id)
		if err != nil {
			return errors.Wrap(err, "bill")
		}
		if !b.Settled {
			return errors.Wrapf(errs.ErrForbidden, "bill %d is not settled", b.ID)
		}
		payments, err := tx.ListPayments(ctx, id)
		if err != nil {
			return err
		}
		if len(payments) > 0 {
			return errors.Wrapf(errs.ErrForbidden, "bill %d has payments", b.ID)
		}
		return tx.DeleteBill(ctx, id)
	})
}

func (s *Service) GetBill(ctx context.Context, p auth.Principal, id int64) (model.Bill, error) {
	b, err := s.repo.GetBill(ctx, id)
	if err != nil {
		return model.Bill{}, err
	}
	if err := authorizeOwner(p, b.UserID, auth.CapViewAll); err != nil {
		return model.Bill{}, err
	}
	return b, nil
}

func (s *Service) ListUserBills(ctx context.Context, p auth.Principal) ([]model.Bill, error) {
	if p.UserID == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.repo.ListBills(ctx, model.BillFilter{UserID: p.UserID})
}

func (s *Service) ListBills(ctx context.Context, p auth.Principal) ([]model.Bill, error) {
	if err := authorize(p, auth.CapViewAll); err != nil {
		return nil, err
	}
	return s.repo.ListBills(ctx, model.BillFilter{})
}

func (s *Service) ListPayments(ctx context.Context, p auth.Principal, billID int64) ([]model.Payment, error) {
	if _, err := s.GetBill(ctx, p, billID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, billID)
}

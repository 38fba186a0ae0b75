package service

import (
	"context"
	"time"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/Astemirdum/library-circulation/circulation/internal/repository"
	"github.com/Astemirdum/library-circulation/pkg/auth"
	"github.com/Astemirdum/library-circulation/pkg/kafka"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// consumeReservation turns the requester's own holding reservation on the book into the
// loan's copy. It reports false when the requester holds nothing.
func consumeReservation(ctx context.Context, tx repository.Store, userID string, bookID int64, now time.Time) (model.Copy, bool, error) {
	held, err := tx.ListReservations(ctx, model.ReservationFilter{
		UserID:   userID,
		BookID:   bookID,
		Statuses: []model.ReservationStatus{model.ReservationApproved},
	})
	if err != nil {
		return model.Copy{}, false, err
	}
	for _, r := range held {
		if !r.IsActive(now) || r.CopyID == nil {
			continue
		}
		err := tx.SetCopyState(ctx, *r.CopyID, model.CopyOnReservation, model.CopyRequested)
		if errors.Is(err, errs.ErrConflict) {
			continue
		}
		if err != nil {
			return model.Copy{}, false, err
		}
		r.Active = false
		r.Status = model.ReservationUsed
		if _, err := tx.UpdateReservation(ctx, r); err != nil {
			return model.Copy{}, false, err
		}
		c, err := tx.GetCopy(ctx, *r.CopyID)
		if err != nil {
			return model.Copy{}, false, err
		}
		return c, true, nil
	}
	return model.Copy{}, false, nil
}

func (s *Service) CreateLoan(ctx context.Context, p auth.Principal, req model.CreateLoanRequest) (model.Loan, error) {
	if err := authorize(p, auth.CapBorrow); err != nil {
		return model.Loan{}, err
	}
	now := s.clock.Now()
	if req.BookID <= 0 {
		return model.Loan{}, errors.Wrap(errs.ErrValidation, "bookId must be positive")
	}
	if !req.DueDate.After(now) {
		return model.Loan{}, errors.Wrap(errs.ErrValidation, "dueDate must be in the future")
	}

	var (
		loan   model.Loan
		events []kafka.Event
	)
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.GetBook(ctx, req.BookID); err != nil {
			return errors.Wrap(err, "book")
		}
		expired, err := reclaimExpired(ctx, tx, req.BookID, now)
		if err != nil {
			return err
		}
		events = expired

		c, ok, err := consumeReservation(ctx, tx, p.UserID, req.BookID, now)
		if err != nil {
			return err
		}
		if !ok {
			copies, err := tx.ListCopies(ctx, req.BookID)
			if err != nil {
				return err
			}
			if c, err = claimCopy(ctx, tx, copies, model.CopyRequested); err != nil {
				return err
			}
		}

		loan, err = tx.CreateLoan(ctx, model.Loan{
			UserID:    p.UserID,
			BookID:    req.BookID,
			CopyID:    &c.ID,
			DueDate:   req.DueDate.UTC(),
			Status:    model.LoanPending,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		events = append(events, kafka.Event{
			Type:   kafka.EventLoanRequested,
			UserID: loan.UserID,
			BookID: loan.BookID,
			CopyID: c.ID,
			LoanID: loan.ID,
		})
		return nil
	})
	if err != nil {
		return model.Loan{}, err
	}
	s.publish(ctx, events...)
	return loan, nil
}

func (s *Service) GetLoan(ctx context.Context, p auth.Principal, id int64) (model.Loan, error) {
	loan, err := s.repo.GetLoan(ctx, id)
	if err != nil {
		return model.Loan{}, err
	}
	if err := authorizeOwner(p, loan.UserID, auth.CapViewAll); err != nil {
		return model.Loan{}, err
	}
	return loan, nil
}

func (s *Service) ListUserLoans(ctx context.Context, p auth.Principal) ([]model.Loan, error) {
	if p.UserID == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.repo.ListLoans(ctx, model.LoanFilter{UserID: p.UserID})
}

func (s *Service) ListLoans(ctx context.Context, p auth.Principal) ([]model.Loan, error) {
	if err := authorize(p, auth.CapViewAll); err != nil {
		return nil, err
	}
	return s.repo.ListLoans(ctx, model.LoanFilter{})
}

func (s *Service) ApproveLoan(ctx context.Context, p auth.Principal, id int64) (model.Loan, error) {
	if err := authorize(p, auth.CapManageCirculation); err != nil {
		return model.Loan{}, err
	}
	now := s.clock.Now()

	var (
		loan   model.Loan
		events []kafka.Event
	)
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		l, err := tx.GetLoan(ctx, id)
		if err != nil {
			return errors.Wrap(err, "loan")
		}
		if l.Status != model.LoanPending {
			return errors.Wrapf(errs.ErrConflict, "loan is %s", l.Status)
		}
		expired, err := reclaimExpired(ctx, tx, l.BookID, now)
		if err != nil {
			return err
		}
		events = expired

		if l.CopyID != nil {
			err := tx.SetCopyState(ctx, *l.CopyID, model.CopyRequested, model.CopyOnLoan)
			if err != nil {
				return errors.Wrapf(err, "copy %d no longer held for loan", *l.CopyID)
			}
		} else {
			copies, err := tx.ListCopies(ctx, l.BookID)
			if err != nil {
				return err
			}
			c, err := claimCopy(ctx, tx, copies, model.CopyOnLoan)
			if errors.Is(err, errs.ErrUnavailable) {
				return errors.Wrap(errs.ErrConflict, "no copy available to lend")
			}
			if err != nil {
				return err
			}
			l.CopyID = &c.ID
		}

		l.LoanDate = &now
		l.Active = true
		l.Approved = true
		l.Status = model.LoanApproved
		if loan, err = tx.UpdateLoan(ctx, l); err != nil {
			return err
		}
		events = append(events, kafka.Event{
			Type:   kafka.EventLoanApproved,
			UserID: loan.UserID,
			BookID: loan.BookID,
			CopyID: *loan.CopyID,
			LoanID: loan.ID,
		})
		return nil
	})
	if err != nil {
		return model.Loan{}, err
	}
	s.log.Info("loan approved", zap.Int64("loan_id", loan.ID), zap.String("approver", p.UserID))
	s.publish(ctx, events...)
	return loan, nil
}

// RejectLoan declines a pending request and hands its copy back to the shelf.
func (s *Service) RejectLoan(ctx context.Context, p auth.Principal, id int64, req model.RejectLoanRequest) (model.Loan, error) {
	if err := authorize(p, auth.CapManageCirculation); err != nil {
		return model.Loan{}, err
	}
	var loan model.Loan
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		l, err := tx.GetLoan(ctx, id)
		if err != nil {
			return errors.Wrap(err, "loan")
		}
		if l.Status != model.LoanPending {
			return errors.Wrapf(errs.ErrConflict, "loan is %s", l.Status)
		}
		if l.CopyID != nil {
			err := tx.SetCopyState(ctx, *l.CopyID, model.CopyRequested, model.CopyAvailable)
			if err != nil && !errors.Is(err, errs.ErrConflict) {
				return err
			}
		}
		l.Active = false
		l.Approved = false
		l.Status = model.LoanRejected
		l.Note = req.Message
		loan, err = tx.UpdateLoan(ctx, l)
		return err
	})
	if err != nil {
		return model.Loan{}, err
	}
	s.publish(ctx, kafka.Event{
		Type:   kafka.EventLoanRejected,
		UserID: loan.UserID,
		BookID: loan.BookID,
		LoanID: loan.ID,
	})
	return loan, nil
}

// ReturnLoan frees the copy and bills the borrower when the return is at least a day late.
func (s *Service) ReturnLoan(ctx context.Context, p auth.Principal, id int64) (model.ReturnResult, error) {
	if p.UserID == "" {
		return model.ReturnResult{}, errs.ErrUnauthorized
	}
	now := s.clock.Now()

	var (
		res    model.ReturnResult
		events []kafka.Event
	)
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		l, err := tx.GetLoan(ctx, id)
		if err != nil {
			return errors.Wrap(err, "loan")
		}
		if err := authorizeOwner(p, l.UserID, auth.CapManageCirculation); err != nil {
			return err
		}
		if !l.Active {
			return errors.Wrapf(errs.ErrConflict, "loan is %s", l.Status)
		}
		if l.CopyID != nil {
			if err := tx.ReleaseCopy(ctx, *l.CopyID); err != nil {
				return err
			}
		}

		l.ReturnDate = &now
		l.Active = false
		l.Status = model.LoanReturned
		if res.Loan, err = tx.UpdateLoan(ctx, l); err != nil {
			return err
		}
		events = append(events, kafka.Event{
			Type:   kafka.EventLoanReturned,
			UserID: l.UserID,
			BookID: l.BookID,
			LoanID: l.ID,
		})

		res.OverdueDays = OverdueDays(l.DueDate, now)
		if res.OverdueDays <= 0 {
			return nil
		}
		res.Overdue = true
		bill, err := upsertOverdueBill(ctx, tx, l.ID, l.UserID, l.DueDate, res.OverdueDays, s.feePerDay)
		if err != nil {
			return err
		}
		res.Bill = &bill
		events = append(events, kafka.Event{
			Type:   kafka.EventBillUpserted,
			UserID: bill.UserID,
			LoanID: bill.LoanID,
			BillID: bill.ID,
			Amount: bill.CurrentAmountOwing.StringFixed(2),
		})
		return nil
	})
	if err != nil {
		return model.ReturnResult{}, err
	}
	if res.Overdue {
		s.log.Info("overdue return",
			zap.Int64("loan_id", res.Loan.ID),
			zap.Int("days", res.OverdueDays))
	}
	s.publish(ctx, events...)
	return res, nil
}

// UpdateLoan applies a staff edit when patch.Version still matches the stored loan.
// Moving the due date of a returned loan restates its overdue bill.
func (s *Service) UpdateLoan(ctx context.Context, p auth.Principal, id int64, patch model.LoanPatch) (model.Loan, error) {
	if err := authorize(p, auth.CapManageCirculation); err != nil {
		return model.Loan{}, err
	}
	if patch.Version <= 0 {
		return model.Loan{}, errors.Wrap(errs.ErrValidation, "version is required")
	}
	var (
		loan   model.Loan
		events []kafka.Event
	)
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		l, err := tx.GetLoan(ctx, id)
		if err != nil {
			return errors.Wrap(err, "loan")
		}
		l.Version = patch.Version
		if patch.DueDate != nil {
			l.DueDate = patch.DueDate.UTC()
		}
		if patch.Note != nil {
			l.Note = *patch.Note
		}
		if loan, err = tx.UpdateLoan(ctx, l); err != nil {
			return err
		}
		if patch.DueDate == nil || loan.ReturnDate == nil {
			return nil
		}
		bill, ok, err := s.restateOverdueBill(ctx, tx, loan)
		if err != nil || !ok {
			return err
		}
		events = append(events, kafka.Event{
			Type:   kafka.EventBillUpserted,
			UserID: bill.UserID,
			LoanID: bill.LoanID,
			BillID: bill.ID,
			Amount: bill.CurrentAmountOwing.StringFixed(2),
		})
		return nil
	})
	if err != nil {
		return model.Loan{}, err
	}
	s.publish(ctx, events...)
	return loan, nil
}

// restateOverdueBill recomputes the bill of a returned loan. A loan that is no longer
// late keeps its existing bill at zero days; without a bill nothing is created.
func (s *Service) restateOverdueBill(ctx context.Context, tx repository.Store, l model.Loan) (model.Bill, bool, error) {
	days := OverdueDays(l.DueDate, *l.ReturnDate)
	if days == 0 {
		_, err := tx.GetBillByLoan(ctx, l.ID)
		if errors.Is(err, errs.ErrNotFound) {
			return model.Bill{}, false, nil
		}
		if err != nil {
			return model.Bill{}, false, err
		}
	}
	bill, err := upsertOverdueBill(ctx, tx, l.ID, l.UserID, l.DueDate, days, s.feePerDay)
	if err != nil {
		return model.Bill{}, false, err
	}
	return bill, true, nil
}

// DeleteLoan hides a closed loan. Open loans and loans with an unsettled bill stay.
func (s *Service) DeleteLoan(ctx context.Context, p auth.Principal, id int64) error {
	if err := authorize(p, auth.CapManageCirculation); err != nil {
		return err
	}
	now := s.clock.Now()
	return s.repo.WithTx(ctx, func(tx repository.Store) error {
		l, err := tx.GetLoan(ctx, id)
		if err != nil {
			return errors.Wrap(err, "loan")
		}
		if l.Active || l.Status == model.LoanPending || l.Status == model.LoanApproved {
			return errors.Wrapf(errs.ErrForbidden, "loan is %s", l.Status)
		}
		bill, err := tx.GetBillByLoan(ctx, id)
		switch {
		case errors.Is(err, errs.ErrNotFound):
		case err != nil:
			return err
		case !bill.Settled:
			return errors.Wrapf(errs.ErrForbidden, "bill %d is not settled", bill.ID)
		}
		l.DeletedAt = &now
		l.Status = model.LoanDeleted
		_, err = tx.UpdateLoan(ctx, l)
		return err
	})
}

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

var liveReservationStatuses = []model.ReservationStatus{model.ReservationPending, model.ReservationApproved}

// reclaimExpired expires every lapsed reservation of the book and frees the copy an
// approved one was holding. Running it twice changes nothing the second time.
func reclaimExpired(ctx context.Context, tx repository.Store, bookID int64, now time.Time) ([]kafka.Event, error) {
	lapsed, err := tx.ListReservations(ctx, model.ReservationFilter{
		BookID:    bookID,
		Statuses:  liveReservationStatuses,
		ExpiredAt: &now,
	})
	if err != nil {
		return nil, err
	}
	var events []kafka.Event
	for _, r := range lapsed {
		expired, err := tx.ExpireReservation(ctx, r.ID, now)
		if err != nil {
			return nil, err
		}
		if !expired {
			continue
		}
		e := kafka.Event{
			Type:          kafka.EventReservationExpired,
			UserID:        r.UserID,
			BookID:        r.BookID,
			ReservationID: r.ID,
			Timestamp:     now,
		}
		if r.Status == model.ReservationApproved && r.CopyID != nil {
			err := tx.SetCopyState(ctx, *r.CopyID, model.CopyOnReservation, model.CopyAvailable)
			if err != nil && !errors.Is(err, errs.ErrConflict) {
				return nil, err
			}
			e.CopyID = *r.CopyID
		}
		events = append(events, e)
	}
	return events, nil
}

// presentReservation applies time-based expiry to a stored row before it leaves the service.
func presentReservation(r model.Reservation, now time.Time) model.Reservation {
	if r.Expired(now) && (r.Status == model.ReservationPending || r.Status == model.ReservationApproved) {
		r.Active = false
		r.Approved = false
		r.Status = model.ReservationExpired
	}
	return r
}

func (s *Service) CreateReservation(ctx context.Context, p auth.Principal, req model.CreateReservationRequest) (model.Reservation, error) {
	if err := authorize(p, auth.CapBorrow); err != nil {
		return model.Reservation{}, err
	}
	if req.BookID <= 0 {
		return model.Reservation{}, errors.Wrap(errs.ErrValidation, "bookId must be positive")
	}
	now := s.clock.Now()

	var (
		res    model.Reservation
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

		mine, err := tx.ListReservations(ctx, model.ReservationFilter{
			UserID:   p.UserID,
			BookID:   req.BookID,
			Statuses: liveReservationStatuses,
		})
		if err != nil {
			return err
		}
		for _, r := range mine {
			if r.Live(now) {
				return errors.Wrapf(errs.ErrConflict, "reservation %d for this book exists", r.ID)
			}
		}

		copies, err := tx.ListCopies(ctx, req.BookID)
		if err != nil {
			return err
		}
		if _, ok := FindAvailable(copies); !ok {
			return errors.Wrap(errs.ErrConflict, "book is on loan or already reserved")
		}

		res, err = tx.CreateReservation(ctx, model.Reservation{
			UserID:          p.UserID,
			BookID:          req.BookID,
			ReservationDate: now,
			ExpireDate:      now.Add(s.reservationTTL),
			Status:          model.ReservationPending,
		})
		if err != nil {
			return err
		}
		events = append(events, kafka.Event{
			Type:          kafka.EventReservationCreated,
			UserID:        res.UserID,
			BookID:        res.BookID,
			ReservationID: res.ID,
		})
		return nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	s.publish(ctx, events...)
	return res, nil
}

func (s *Service) GetReservation(ctx context.Context, p auth.Principal, id int64) (model.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if err := authorizeOwner(p, r.UserID, auth.CapViewAll); err != nil {
		return model.Reservation{}, err
	}
	return presentReservation(r, s.clock.Now()), nil
}

func (s *Service) ListUserReservations(ctx context.Context, p auth.Principal) ([]model.Reservation, error) {
	if p.UserID == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.listReservations(ctx, model.ReservationFilter{UserID: p.UserID})
}

func (s *Service) ListReservations(ctx context.Context, p auth.Principal) ([]model.Reservation, error) {
	if err := authorize(p, auth.CapViewAll); err != nil {
		return nil, err
	}
	return s.listReservations(ctx, model.ReservationFilter{})
}

func (s *Service) listReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	items, err := s.repo.ListReservations(ctx, f)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	res := make([]model.Reservation, 0, len(items))
	for _, r := range items {
		res = append(res, presentReservation(r, now))
	}
	return res, nil
}

func (s *Service) ApproveReservation(ctx context.Context, p auth.Principal, id int64) (model.Reservation, error) {
	if err := authorize(p, auth.CapManageCirculation); err != nil {
		return model.Reservation{}, err
	}
	now := s.clock.Now()

	var (
		res    model.Reservation
		events []kafka.Event
	)
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		r, err := tx.GetReservation(ctx, id)
		if err != nil {
			return errors.Wrap(err, "reservation")
		}
		if _, err := tx.GetBook(ctx, r.BookID); err != nil {
			return errors.Wrap(err, "book")
		}
		expired, err := reclaimExpired(ctx, tx, r.BookID, now)
		if err != nil {
			return err
		}
		events = expired

		if r, err = tx.GetReservation(ctx, id); err != nil {
			return errors.Wrap(err, "reservation")
		}
		if r.Status != model.ReservationPending {
			return errors.Wrapf(errs.ErrConflict, "reservation is %s", r.Status)
		}

		copies, err := tx.ListCopies(ctx, r.BookID)
		if err != nil {
			return err
		}
		c, err := claimCopy(ctx, tx, copies, model.CopyOnReservation)
		if errors.Is(err, errs.ErrUnavailable) {
			return errors.Wrap(errs.ErrConflict, "no copy available to hold")
		}
		if err != nil {
			return err
		}

		r.CopyID = &c.ID
		r.Active = true
		r.Approved = true
		r.Status = model.ReservationApproved
		if res, err = tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		events = append(events, kafka.Event{
			Type:          kafka.EventReservationApproved,
			UserID:        res.UserID,
			BookID:        res.BookID,
			CopyID:        c.ID,
			ReservationID: res.ID,
		})
		return nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	s.log.Info("reservation approved",
		zap.Int64("reservation_id", res.ID),
		zap.Int64("copy_id", *res.CopyID),
		zap.String("approver", p.UserID))
	s.publish(ctx, events...)
	return res, nil
}

func (s *Service) DeleteReservation(ctx context.Context, p auth.Principal, id int64) error {
	if err := authorize(p, auth.CapManageCirculation); err != nil {
		return err
	}
	now := s.clock.Now()

	var events []kafka.Event
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		r, err := tx.GetReservation(ctx, id)
		if err != nil {
			return errors.Wrap(err, "reservation")
		}
		if events, err = reclaimExpired(ctx, tx, r.BookID, now); err != nil {
			return err
		}
		if r, err = tx.GetReservation(ctx, id); err != nil {
			return errors.Wrap(err, "reservation")
		}
		if r.IsActive(now) {
			return errors.Wrap(errs.ErrForbidden, "reservation is active")
		}
		return tx.DeleteReservation(ctx, id)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events...)
	return nil
}

// ReclaimExpired runs reclamation for one book in its own transaction.
func (s *Service) ReclaimExpired(ctx context.Context, bookID int64) (int, error) {
	now := s.clock.Now()
	var events []kafka.Event
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		var err error
		events, err = reclaimExpired(ctx, tx, bookID, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events...)
	return len(events), nil
}

// ReclaimAllExpired sweeps every book that has lapsed reservations. Allocation does not
// depend on it; it keeps stale holds from lingering on titles nobody is requesting.
func (s *Service) ReclaimAllExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	lapsed, err := s.repo.ListReservations(ctx, model.ReservationFilter{
		Statuses:  liveReservationStatuses,
		ExpiredAt: &now,
	})
	if err != nil {
		return 0, err
	}
	seen := make(map[int64]struct{}, len(lapsed))
	total := 0
	for _, r := range lapsed {
		if _, ok := seen[r.BookID]; ok {
			continue
		}
		seen[r.BookID] = struct{}{}
		n, err := s.ReclaimExpired(ctx, r.BookID)
		if err != nil {
			s.log.Error("reclaim", zap.Int64("book_id", r.BookID), zap.Error(err))
			continue
		}
		total += n
	}
	return total, nil
}

// RunReclaimer sweeps on every tick until ctx is done. A non-positive interval
// disables the sweep; lazy reclamation still runs on every allocation.
func (s *Service) RunReclaimer(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		s.log.Info("reclaimer disabled", zap.Duration("interval", interval))
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.ReclaimAllExpired(ctx)
			if err != nil {
				s.log.Error("ReclaimAllExpired", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("reservations reclaimed", zap.Int("count", n))
			}
		}
	}
}

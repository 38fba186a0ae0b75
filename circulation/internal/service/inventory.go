package service

import (
	"context"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/Astemirdum/library-circulation/circulation/internal/repository"
	"github.com/Astemirdum/library-circulation/pkg/auth"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FindAvailable returns the first available copy. Copies are expected in id order.
func FindAvailable(copies []model.Copy) (model.Copy, bool) {
	for _, c := range copies {
		if c.Available() {
			return c, true
		}
	}
	return model.Copy{}, false
}

// claimCopy moves the first available copy it can win into state to. A copy taken by a
// concurrent transaction between the read and the write is skipped.
func claimCopy(ctx context.Context, tx repository.Store, copies []model.Copy, to model.CopyState) (model.Copy, error) {
	for _, c := range copies {
		if !c.Available() {
			continue
		}
		err := tx.SetCopyState(ctx, c.ID, model.CopyAvailable, to)
		if errors.Is(err, errs.ErrConflict) {
			continue
		}
		if err != nil {
			return model.Copy{}, err
		}
		c.State = to
		c.Version++
		return c, nil
	}
	return model.Copy{}, errs.ErrUnavailable
}

func inventoryOf(book model.Book, copies []model.Copy) model.Inventory {
	inv := model.Inventory{Book: book, Copies: copies}
	for _, c := range copies {
		if c.Available() {
			inv.Available++
		}
	}
	return inv
}

func (s *Service) CreateBook(ctx context.Context, p auth.Principal, req model.CreateBookRequest) (model.Inventory, error) {
	if err := authorize(p, auth.CapManageCirculation); err != nil {
		return model.Inventory{}, err
	}
	if req.Copies < 0 {
		return model.Inventory{}, errors.Wrap(errs.ErrValidation, "copies must not be negative")
	}
	var inv model.Inventory
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		book, err := tx.CreateBook(ctx, model.Book{
			Title:       req.Title,
			Author:      req.Author,
			ISBN:        req.ISBN,
			Description: req.Description,
		})
		if err != nil {
			return err
		}
		copies := make([]model.Copy, 0, req.Copies)
		for i := 0; i < req.Copies; i++ {
			c, err := tx.CreateCopy(ctx, book.ID)
			if err != nil {
				return err
			}
			copies = append(copies, c)
		}
		inv = inventoryOf(book, copies)
		return nil
	})
	if err != nil {
		return model.Inventory{}, err
	}
	s.log.Info("book created", zap.Int64("book_id", inv.Book.ID), zap.Int("copies", len(inv.Copies)))
	return inv, nil
}

func (s *Service) AddCopies(ctx context.Context, p auth.Principal, bookID int64, req model.AddCopiesRequest) (model.Inventory, error) {
	if err := authorize(p, auth.CapManageCirculation); err != nil {
		return model.Inventory{}, err
	}
	if bookID <= 0 || req.Count <= 0 {
		return model.Inventory{}, errors.Wrap(errs.ErrValidation, "book id and count must be positive")
	}
	var inv model.Inventory
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return errors.Wrap(err, "book")
		}
		for i := 0; i < req.Count; i++ {
			if _, err := tx.CreateCopy(ctx, bookID); err != nil {
				return err
			}
		}
		copies, err := tx.ListCopies(ctx, bookID)
		if err != nil {
			return err
		}
		inv = inventoryOf(book, copies)
		return nil
	})
	return inv, err
}

func (s *Service) GetBook(ctx context.Context, bookID int64) (model.Inventory, error) {
	if bookID <= 0 {
		return model.Inventory{}, errors.Wrap(errs.ErrValidation, "book id must be positive")
	}
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		return model.Inventory{}, errors.Wrap(err, "book")
	}
	copies, err := s.repo.ListCopies(ctx, bookID)
	if err != nil {
		return model.Inventory{}, err
	}
	return inventoryOf(book, copies), nil
}

// ListCopies returns every copy of the book, held or not.
func (s *Service) ListCopies(ctx context.Context, bookID int64) ([]model.Copy, error) {
	inv, err := s.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return inv.Copies, nil
}

package service

import (
	"context"
	"time"

	"github.com/Astemirdum/library-circulation/circulation/config"
	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/repository"
	"github.com/Astemirdum/library-circulation/pkg/auth"
	"github.com/Astemirdum/library-circulation/pkg/kafka"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	log       *zap.Logger
	repo      repository.Repository
	publisher kafka.Publisher
	clock     Clock

	reservationTTL time.Duration
	feePerDay      decimal.Decimal
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithPublisher(p kafka.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func NewService(repo repository.Repository, cfg config.Circulation, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		log:            log.Named("service"),
		repo:           repo,
		publisher:      kafka.NopPublisher{},
		clock:          systemClock{},
		reservationTTL: cfg.ReservationTTL,
		feePerDay:      cfg.FeePerDay,
	}
	if s.reservationTTL <= 0 {
		s.reservationTTL = 24 * time.Hour
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// authorize is the single gate every operation passes through.
func authorize(p auth.Principal, c auth.Capability) error {
	if p.UserID == "" {
		return errs.ErrUnauthorized
	}
	if !p.Can(c) {
		return errors.Wrapf(errs.ErrForbidden, "role %s", p.Role)
	}
	return nil
}

// authorizeOwner lets the owner through, and anyone else holding c.
func authorizeOwner(p auth.Principal, owner string, c auth.Capability) error {
	if p.UserID == "" {
		return errs.ErrUnauthorized
	}
	if p.UserID == owner {
		return nil
	}
	return authorize(p, c)
}

// publish runs after commit. Delivery failures are logged, the transition stands.
func (s *Service) publish(ctx context.Context, events ...kafka.Event) {
	for _, e := range events {
		if e.Timestamp.IsZero() {
			e.Timestamp = s.clock.Now()
		}
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.log.Warn("publish event", zap.String("type", string(e.Type)), zap.Error(err))
		}
	}
}

package model

import (
	"time"
)

type ReservationStatus string

const (
	ReservationPending  ReservationStatus = "Pending"
	ReservationApproved ReservationStatus = "Approved"
	ReservationUsed     ReservationStatus = "Used"
	ReservationExpired  ReservationStatus = "Expired"
)

type Reservation struct {
	ID              int64             `json:"id" db:"id"`
	UserID          string            `json:"userId" db:"user_id"`
	BookID          int64             `json:"bookId" db:"book_id"`
	CopyID          *int64            `json:"copyId" db:"copy_id"`
	ReservationDate time.Time         `json:"reservationDate" db:"reservation_date"`
	ExpireDate      time.Time         `json:"expireDate" db:"expire_date"`
	Approved        bool              `json:"approved" db:"approved"`
	Active          bool              `json:"active" db:"active"`
	Status          ReservationStatus `json:"message" db:"status"`
	Version         int               `json:"version" db:"version"`
}

// Expired reports whether the hold has lapsed at now, whatever the stored flags say.
func (r Reservation) Expired(now time.Time) bool {
	return !r.ExpireDate.After(now)
}

// IsActive reports whether the reservation currently holds its copy.
func (r Reservation) IsActive(now time.Time) bool {
	return r.Active && !r.Expired(now)
}

// Live reports whether the reservation is still in play (pending or holding) at now.
func (r Reservation) Live(now time.Time) bool {
	return (r.Status == ReservationPending || r.Status == ReservationApproved) && !r.Expired(now)
}

type ReservationFilter struct {
	UserID   string
	BookID   int64
	Statuses []ReservationStatus
	// ExpiredAt selects rows with expire_date <= ExpiredAt.
	ExpiredAt *time.Time
}

type CreateReservationRequest struct {
	BookID int64 `json:"bookId" validate:"required,gt=0"`
}

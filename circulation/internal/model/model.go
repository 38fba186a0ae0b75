package model

import (
	"time"
)

type Book struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Author      string    `json:"author" db:"author"`
	ISBN        string    `json:"isbn" db:"isbn"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

type CreateBookRequest struct {
	Title       string `json:"title" validate:"required"`
	Author      string `json:"author" validate:"required"`
	ISBN        string `json:"isbn" validate:"required"`
	Description string `json:"description"`
	Copies      int    `json:"copies" validate:"gte=0,lte=1000"`
}

type AddCopiesRequest struct {
	Count int `json:"count" validate:"required,gt=0,lte=1000"`
}

// CopyState is the allocation state of a physical copy. A copy is in exactly one state.
type CopyState string

const (
	CopyAvailable     CopyState = "AVAILABLE"
	CopyRequested     CopyState = "REQUESTED"
	CopyOnLoan        CopyState = "ON_LOAN"
	CopyOnReservation CopyState = "ON_RESERVATION"
)

type Copy struct {
	ID      int64     `json:"id" db:"id"`
	BookID  int64     `json:"bookId" db:"book_id"`
	State   CopyState `json:"state" db:"state"`
	Version int       `json:"version" db:"version"`
}

func (c Copy) Available() bool { return c.State == CopyAvailable }

// Inventory is a book together with the current state of its copies.
type Inventory struct {
	Book      Book   `json:"book"`
	Copies    []Copy `json:"copies"`
	Available int    `json:"available"`
}

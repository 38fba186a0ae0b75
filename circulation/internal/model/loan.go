package model

import (
	"time"
)

type LoanStatus string

const (
	LoanPending  LoanStatus = "Pending"
	LoanApproved LoanStatus = "Approved"
	LoanReturned LoanStatus = "Returned"
	LoanRejected LoanStatus = "Rejected"
	LoanDeleted  LoanStatus = "Deleted"
)

type Loan struct {
	ID         int64      `json:"id" db:"id"`
	UserID     string     `json:"userId" db:"user_id"`
	BookID     int64      `json:"bookId" db:"book_id"`
	CopyID     *int64     `json:"copyId" db:"copy_id"`
	DueDate    time.Time  `json:"dueDate" db:"due_date"`
	LoanDate   *time.Time `json:"loanDate" db:"loan_date"`
	ReturnDate *time.Time `json:"returnDate" db:"return_date"`
	Approved   bool       `json:"approved" db:"approved"`
	Active     bool       `json:"active" db:"active"`
	Status     LoanStatus `json:"message" db:"status"`
	Note       string     `json:"note" db:"note"`
	Version    int        `json:"version" db:"version"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	DeletedAt  *time.Time `json:"-" db:"deleted_at"`
}

type LoanFilter struct {
	UserID   string
	BookID   int64
	Statuses []LoanStatus
}

type CreateLoanRequest struct {
	BookID  int64     `json:"bookId" validate:"required,gt=0"`
	DueDate time.Time `json:"dueDate" validate:"required"`
}

type RejectLoanRequest struct {
	Message string `json:"message" validate:"max=200"`
}

// LoanPatch carries the client-editable loan fields. Version must match the stored row.
type LoanPatch struct {
	DueDate *time.Time `json:"dueDate"`
	Note    *string    `json:"note" validate:"omitempty,max=200"`
	Version int        `json:"version" validate:"required,gt=0"`
}

type ReturnResult struct {
	Loan        Loan  `json:"loan"`
	Overdue     bool  `json:"overdue"`
	OverdueDays int   `json:"overdueDays"`
	Bill        *Bill `json:"bill,omitempty"`
}
